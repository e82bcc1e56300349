package sensors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rovercore/bus"
)

type fixedReader struct{ value float64 }

func (f fixedReader) Read(time.Duration) (float64, error) { return f.value, nil }

func TestUltrasonicPublishesToSubscribers(t *testing.T) {
	u := NewUltrasonic(fixedReader{value: 42}, 5*time.Millisecond, 100*time.Millisecond, nil)
	sub := u.Subscribe()
	u.Start()
	defer u.Stop()

	select {
	case v := <-sub:
		assert.Equal(t, 42.0, v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reading")
	}
}

func TestUltrasonicStartStopIdempotentAndRunningReflectsState(t *testing.T) {
	u := NewUltrasonic(fixedReader{value: 1}, 5*time.Millisecond, 50*time.Millisecond, nil)
	assert.False(t, u.Running())
	u.Start()
	u.Start()
	assert.True(t, u.Running())
	u.Stop()
	u.Stop()
	assert.False(t, u.Running())
}

func TestUltrasonicLatestSurvivesSentinelValues(t *testing.T) {
	u := NewUltrasonic(fixedReader{value: DistanceEchoTimeout}, 5*time.Millisecond, 50*time.Millisecond, nil)
	u.Start()
	defer u.Stop()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, DistanceEchoTimeout, u.Latest())
}

func TestGPIOUltrasonicReadTimesEchoPulse(t *testing.T) {
	trig := bus.NewMockGPIO("trig")
	echo := bus.NewMockGPIO("echo")
	// Rising edge after 100us, falling edge 580us later: 580us/58 = 10cm.
	echo.QueueEdge(100*time.Microsecond, true, true)
	echo.QueueEdge(580*time.Microsecond, false, true)

	r := NewGPIOUltrasonicReader(trig, echo)
	d, err := r.Read(50 * time.Millisecond)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, d, 1.0)
	assert.Equal(t, []bool{true, false}, trig.Levels)
}

func TestGPIOUltrasonicReadReportsEchoTimeout(t *testing.T) {
	trig := bus.NewMockGPIO("trig")
	echo := bus.NewMockGPIO("echo")
	// No edge queued: WaitForEdge sleeps out the timeout and reports none.

	r := NewGPIOUltrasonicReader(trig, echo)
	d, err := r.Read(5 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, DistanceEchoTimeout, d)
}

func TestGPIOUltrasonicReadReportsPulseDetectFailOnMissingFallingEdge(t *testing.T) {
	trig := bus.NewMockGPIO("trig")
	echo := bus.NewMockGPIO("echo")
	echo.QueueEdge(100*time.Microsecond, true, true)
	// No second edge queued: the falling edge never arrives.

	r := NewGPIOUltrasonicReader(trig, echo)
	d, err := r.Read(5 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, DistancePulseDetectFail, d)
}
