package calibration

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rovercore/hal"
)

type fakeServo struct {
	offset, saved float64
}

func (f *fakeServo) SetAngle(float64) error                         { return nil }
func (f *fakeServo) Angle() float64                                 { return 0 }
func (f *fakeServo) UpdateCalibration(offset float64, persist bool) error {
	f.offset = offset
	if persist {
		f.saved = offset
	}
	return nil
}
func (f *fakeServo) ResetCalibration()          { f.offset = f.saved }
func (f *fakeServo) CalibrationOffset() float64 { return f.offset }
func (f *fakeServo) SavedCalibrationOffset() float64 { return f.saved }

type fakeMotor struct {
	dir int
}

func (f *fakeMotor) SetSpeed(float64) error           { return nil }
func (f *fakeMotor) Stop() error                      { return nil }
func (f *fakeMotor) ReverseCalibrationDirection()     { f.dir = -f.dir }
func (f *fakeMotor) CalibrationDirection() int        { return f.dir }

func TestIncrementThenDecrementIsIdentity(t *testing.T) {
	steering := &fakeServo{}
	svc := NewService(nil, Handles{Steering: steering}, nil)

	require.NoError(t, svc.IncrementServo(ServoSteering, 0.1))
	require.NoError(t, svc.IncrementServo(ServoSteering, 0.1))
	require.NoError(t, svc.DecrementServo(ServoSteering, -0.1))
	require.NoError(t, svc.DecrementServo(ServoSteering, -0.1))

	assert.InDelta(t, 0.0, steering.CalibrationOffset(), 1e-9)
}

func TestNudgeServoRejectsOutOfBounds(t *testing.T) {
	steering := &fakeServo{offset: hal.MaxOffset}
	svc := NewService(nil, Handles{Steering: steering}, nil)

	err := svc.IncrementServo(ServoSteering, 1)
	assert.Error(t, err)
	assert.Equal(t, hal.MaxOffset, steering.CalibrationOffset())
}

func TestReverseMotorTwiceIsIdentity(t *testing.T) {
	left := &fakeMotor{dir: 1}
	svc := NewService(nil, Handles{Left: left}, nil)

	require.NoError(t, svc.ReverseMotor(MotorLeft))
	assert.Equal(t, -1, left.CalibrationDirection())
	require.NoError(t, svc.ReverseMotor(MotorLeft))
	assert.Equal(t, 1, left.CalibrationDirection())
}

func TestSaveRoundTripsThroughStore(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "hwconfig.json"), nil)
	cfg, err := store.Load()
	require.NoError(t, err)

	steering := &fakeServo{offset: 0.4}
	svc := NewService(store, Handles{Steering: steering}, nil)

	saved, err := svc.Save(cfg)
	require.NoError(t, err)
	assert.Equal(t, 0.4, saved.SteeringServo.SavedCalibrationOffset)

	reloaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 0.4, reloaded.SteeringServo.CalibrationOffset)
}

func TestResetRestoresServoOffsetToSaved(t *testing.T) {
	steering := &fakeServo{offset: 0.8, saved: 0.3}
	svc := NewService(nil, Handles{Steering: steering}, nil)
	svc.Reset()
	assert.Equal(t, 0.3, steering.CalibrationOffset())
}

func TestResetRestoresMotorDirectionToSaved(t *testing.T) {
	left := &fakeMotor{dir: 1}
	svc := NewService(nil, Handles{Left: left}, nil)

	require.NoError(t, svc.ReverseMotor(MotorLeft))
	assert.Equal(t, -1, left.CalibrationDirection())

	svc.Reset()
	assert.Equal(t, 1, left.CalibrationDirection())
}

func TestResetAfterSaveKeepsNewSavedDirection(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "hwconfig.json"), nil)
	cfg, err := store.Load()
	require.NoError(t, err)

	left := &fakeMotor{dir: 1}
	svc := NewService(store, Handles{Left: left}, nil)

	require.NoError(t, svc.ReverseMotor(MotorLeft))
	_, err = svc.Save(cfg)
	require.NoError(t, err)

	svc.Reset()
	assert.Equal(t, -1, left.CalibrationDirection())
}
