package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rovercore/bus"
	"rovercore/pwm"
)

func newTestI2CMotor(t *testing.T) (Motor, *bus.MockGPIO) {
	t.Helper()
	dev := bus.NewMockI2C()
	driver, err := pwm.Open(dev, 0x40, nil)
	require.NoError(t, err)

	dirPin := bus.NewMockGPIO("dir")
	cfg := MotorConfig{Name: "left", Enabled: true, MaxSpeed: 100, CalibrationDirection: 1}
	return NewI2CMotor(driver, dirPin, cfg), dirPin
}

func TestDutyForSpeedDeadZoneMapping(t *testing.T) {
	assert.Equal(t, 0.0, dutyForSpeed(0, 0))
	assert.Equal(t, 80.0, dutyForSpeed(60, 0))
	assert.Equal(t, 100.0, dutyForSpeed(100, 0))
	assert.Equal(t, 80.0, dutyForSpeed(-60, 0))
}

func TestStopIssuesTwoZeroWrites(t *testing.T) {
	dev := bus.NewMockI2C()
	driver, err := pwm.Open(dev, 0x40, nil)
	require.NoError(t, err)
	cfg := MotorConfig{Name: "left", Enabled: true, MaxSpeed: 100, CalibrationDirection: 1}
	m := NewI2CMotor(driver, bus.NewMockGPIO("dir"), cfg)

	require.NoError(t, m.SetSpeed(60))
	before := len(dev.Txs)
	require.NoError(t, m.Stop())

	// Each zero-duty write programs channel 0's four registers; the
	// off-count low byte (0x08) is written as 0 in both.
	require.Len(t, dev.Txs, before+8)
	assert.Equal(t, []byte{0x08, 0x00}, dev.Txs[before+2])
	assert.Equal(t, []byte{0x08, 0x00}, dev.Txs[before+6])
}

func TestReverseCalibrationDirectionFlipsSign(t *testing.T) {
	m, _ := newTestI2CMotor(t)
	assert.Equal(t, 1, m.CalibrationDirection())
	m.ReverseCalibrationDirection()
	assert.Equal(t, -1, m.CalibrationDirection())
	m.ReverseCalibrationDirection()
	assert.Equal(t, 1, m.CalibrationDirection())
}

func TestSetSpeedBeyondMaxSpeedSetsDirectionPin(t *testing.T) {
	m, dirPin := newTestI2CMotor(t)
	require.NoError(t, m.SetSpeed(999))
	assert.True(t, dirPin.Current)
	require.NoError(t, m.SetSpeed(-999))
	assert.False(t, dirPin.Current)
}
