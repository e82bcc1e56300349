package autopilot

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rovercore/motion"
	"rovercore/sensors"
)

type fakeReader struct {
	mu     sync.Mutex
	values []float64
	i      int
}

func (f *fakeReader) Read(time.Duration) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.i >= len(f.values) {
		return f.values[len(f.values)-1], nil
	}
	v := f.values[f.i]
	f.i++
	return v, nil
}

type recordingActuator struct {
	mu      sync.Mutex
	angles  []float64
	moves   []float64
	dirs    []motion.Direction
	stopped int
}

func (a *recordingActuator) Steer(angle float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.angles = append(a.angles, angle)
	return nil
}

func (a *recordingActuator) Move(dir motion.Direction, speed float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dirs = append(a.dirs, dir)
	a.moves = append(a.moves, speed)
	return nil
}

func (a *recordingActuator) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped++
	return nil
}

func TestObstacleAvoidanceThreeTierPolicy(t *testing.T) {
	reader := &fakeReader{values: []float64{50, 50, 30, 30, 10, 10}}
	u := sensors.NewUltrasonic(reader, 5*time.Millisecond, 50*time.Millisecond, nil)
	act := &recordingActuator{}
	ap := New(act, u, nil)

	ap.Enable()
	// Enable retunes sampling to 100ms, so the first 10cm reading (the
	// fifth sample) arrives around 500ms; wait well past it.
	time.Sleep(1 * time.Second)
	ap.Disable()

	act.mu.Lock()
	defer act.mu.Unlock()
	assert.NotEmpty(t, act.angles)
	assert.Contains(t, act.angles, 0.0)
	assert.Contains(t, act.angles, 30.0)
	assert.Contains(t, act.angles, -30.0)
}

func TestEchoTimeoutSampleIsSkippedNotTreatedAsNear(t *testing.T) {
	reader := &fakeReader{values: []float64{sensors.DistanceEchoTimeout}}
	u := sensors.NewUltrasonic(reader, 5*time.Millisecond, 50*time.Millisecond, nil)
	act := &recordingActuator{}
	ap := New(act, u, nil)

	ap.Enable()
	time.Sleep(150 * time.Millisecond)
	ap.Disable()

	act.mu.Lock()
	defer act.mu.Unlock()
	assert.Empty(t, act.angles)
}

func TestDisableRestoresUltrasonicPriorState(t *testing.T) {
	reader := &fakeReader{values: []float64{50}}
	u := sensors.NewUltrasonic(reader, 1*time.Second, 50*time.Millisecond, nil)
	act := &recordingActuator{}
	ap := New(act, u, nil)

	assert.False(t, u.Running())
	ap.Enable()
	assert.True(t, u.Running())
	ap.Disable()
	assert.False(t, u.Running())
	assert.Equal(t, 1*time.Second, u.Interval())
}
