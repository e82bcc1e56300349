package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rovercore/bus"
	"rovercore/pwm"
)

func newTestServo(t *testing.T, mode CalibrationMode) (Servo, *bus.MockI2C) {
	t.Helper()
	dev := bus.NewMockI2C()
	driver, err := pwm.Open(dev, 0x40, nil)
	require.NoError(t, err)

	cfg := ServoConfig{
		Name: "steering", Enabled: true,
		MinAngle: -30, MaxAngle: 30,
		MinPulse: 500, MaxPulse: 2500,
		CalibrationMode: mode,
	}
	return NewServo(driver, cfg), dev
}

func TestSetAngleClampsOutOfRangeInput(t *testing.T) {
	s, _ := newTestServo(t, CalibrationSum)
	require.NoError(t, s.SetAngle(9999))
	assert.Equal(t, 30.0, s.Angle())

	require.NoError(t, s.SetAngle(-9999))
	assert.Equal(t, -30.0, s.Angle())
}

func TestSetAngleZeroMapsToMidpointPulse(t *testing.T) {
	s, dev := newTestServo(t, CalibrationSum)
	require.NoError(t, s.SetAngle(0))
	assert.Equal(t, 0.0, s.Angle())

	// 1500us at 50Hz: round(1500*50*4096/1e6) = 307 in channel 0's
	// off-count registers (0x08 low, 0x09 high).
	out := make([]byte, 2)
	require.NoError(t, dev.Tx([]byte{0x08}, out))
	assert.Equal(t, 307, int(out[0])|int(out[1])<<8)
}

func TestUpdateCalibrationPersistParity(t *testing.T) {
	s, _ := newTestServo(t, CalibrationSum)
	require.NoError(t, s.UpdateCalibration(5, false))
	assert.Equal(t, 5.0, s.CalibrationOffset())
	assert.Equal(t, 0.0, s.SavedCalibrationOffset())

	require.NoError(t, s.UpdateCalibration(10, true))
	assert.Equal(t, 10.0, s.CalibrationOffset())
	assert.Equal(t, 10.0, s.SavedCalibrationOffset())
}

func TestResetCalibrationRestoresSavedOffset(t *testing.T) {
	s, _ := newTestServo(t, CalibrationSum)
	require.NoError(t, s.UpdateCalibration(8, true))
	require.NoError(t, s.UpdateCalibration(20, false))
	s.ResetCalibration()
	assert.Equal(t, 8.0, s.CalibrationOffset())
}
