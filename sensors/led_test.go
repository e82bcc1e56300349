package sensors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rovercore/bus"
)

func TestLEDBlinksUntilStopped(t *testing.T) {
	pin := bus.NewMockGPIO("led")
	l := NewLED(pin, 5*time.Millisecond, nil)
	l.Start()
	time.Sleep(30 * time.Millisecond)
	l.Stop()

	assert.NotEmpty(t, pin.Levels)
	assert.False(t, l.Running())
	assert.False(t, pin.Current)
}

func TestReconfigureRestartsOnlyIfRunning(t *testing.T) {
	pin := bus.NewMockGPIO("led")
	l := NewLED(pin, 5*time.Millisecond, nil)

	l.Reconfigure(nil, 10*time.Millisecond)
	assert.False(t, l.Running())

	l.Start()
	other := bus.NewMockGPIO("led2")
	l.Reconfigure(other, 5*time.Millisecond)
	assert.True(t, l.Running())
	l.Stop()
}
