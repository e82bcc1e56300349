package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMotor struct {
	speeds  []float64
	stopped int
	dir     int
}

func (m *recordingMotor) SetSpeed(s float64) error { m.speeds = append(m.speeds, s); return nil }
func (m *recordingMotor) Stop() error              { m.stopped++; return nil }
func (m *recordingMotor) ReverseCalibrationDirection() { m.dir = -m.dir }
func (m *recordingMotor) CalibrationDirection() int    { return m.dir }

type recordingServo struct {
	angle float64
}

func (s *recordingServo) SetAngle(a float64) error                    { s.angle = a; return nil }
func (s *recordingServo) Angle() float64                              { return s.angle }
func (s *recordingServo) UpdateCalibration(float64, bool) error       { return nil }
func (s *recordingServo) ResetCalibration()                           {}
func (s *recordingServo) CalibrationOffset() float64                  { return 0 }
func (s *recordingServo) SavedCalibrationOffset() float64             { return 0 }

func TestStraightForward(t *testing.T) {
	steering := &recordingServo{}
	left, right := &recordingMotor{}, &recordingMotor{}
	c := NewCoordinator(steering, left, right, -30, 30, nil)

	require.NoError(t, c.Move(Forward, 60))
	dir, speed, _ := c.State()
	assert.Equal(t, Forward, dir)
	assert.Equal(t, 60.0, speed)
	assert.Equal(t, []float64{60}, left.speeds)
	assert.Equal(t, []float64{-60}, right.speeds)
}

func TestRightTurnScalesInnerMotor(t *testing.T) {
	steering := &recordingServo{}
	left, right := &recordingMotor{}, &recordingMotor{}
	c := NewCoordinator(steering, left, right, -30, 30, nil)

	require.NoError(t, c.Steer(30))
	require.NoError(t, c.Move(Forward, 100))

	assert.Equal(t, []float64{100}, left.speeds)
	assert.InDelta(t, -70, right.speeds[0], 1e-9)
}

func TestLeftTurnScalesInnerMotor(t *testing.T) {
	steering := &recordingServo{}
	left, right := &recordingMotor{}, &recordingMotor{}
	c := NewCoordinator(steering, left, right, -30, 30, nil)

	require.NoError(t, c.Steer(-30))
	require.NoError(t, c.Move(Forward, 100))

	assert.InDelta(t, 70, left.speeds[0], 1e-9)
	assert.Equal(t, []float64{-100}, right.speeds)
}

func TestStopAlwaysTransitionsToStoppedAndIsIdempotent(t *testing.T) {
	steering := &recordingServo{}
	left, right := &recordingMotor{}, &recordingMotor{}
	c := NewCoordinator(steering, left, right, -30, 30, nil)

	require.NoError(t, c.Move(Forward, 50))
	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())

	dir, speed, _ := c.State()
	assert.Equal(t, Stopped, dir)
	assert.Equal(t, 0.0, speed)
	assert.Equal(t, 2, left.stopped)
	assert.Equal(t, 2, right.stopped)
}

func TestMoveWithZeroSpeedResolvesDirectionStopped(t *testing.T) {
	steering := &recordingServo{}
	left, right := &recordingMotor{}, &recordingMotor{}
	c := NewCoordinator(steering, left, right, -30, 30, nil)

	require.NoError(t, c.Move(Forward, 0))
	dir, _, _ := c.State()
	assert.Equal(t, Stopped, dir)
}
