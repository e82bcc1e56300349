// Package autopilot implements the obstacle-avoidance sub-mode of the
// Command Dispatcher, per spec §4.7: a bounded policy reacting to the
// ultrasonic distance stream at 10Hz.
package autopilot

import (
	"sync"
	"time"

	"go.viam.com/rdk/logging"

	"rovercore/motion"
	"rovercore/sensors"
)

const (
	// SafeCM and DangerCM are the three-tier distance policy
	// thresholds from spec §4.7.
	SafeCM   = 40.0
	DangerCM = 20.0

	// Power is the forward/reverse speed magnitude the autopilot
	// drives at.
	Power = 50.0

	dangerHold = 100 * time.Millisecond
	criticalHold = 500 * time.Millisecond
)

// Actuator is the subset of the Motion Coordinator the autopilot
// drives; it never touches calibration.
type Actuator interface {
	Steer(angle float64) error
	Move(direction motion.Direction, speed float64) error
	Stop() error
}

// Autopilot subscribes to an ultrasonic distance channel and drives
// Actuator according to the three-tier policy while Enabled.
type Autopilot struct {
	coordinator Actuator
	ultrasonic  *sensors.Ultrasonic
	logger      logging.Logger

	mu      sync.Mutex
	enabled bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	priorInterval time.Duration
	priorRunning  bool
}

func New(coordinator Actuator, ultrasonic *sensors.Ultrasonic, logger logging.Logger) *Autopilot {
	return &Autopilot{coordinator: coordinator, ultrasonic: ultrasonic, logger: logger}
}

// Enable subscribes to ultrasonic distance at 10Hz and starts applying
// the avoidance policy. It remembers the ultrasonic supervisor's
// running state and interval so Disable can restore them.
func (a *Autopilot) Enable() {
	a.mu.Lock()
	if a.enabled {
		a.mu.Unlock()
		return
	}
	a.priorRunning = a.ultrasonic.Running()
	a.priorInterval = a.ultrasonic.Interval()
	a.ultrasonic.SetInterval(100 * time.Millisecond) // 10Hz
	if a.priorRunning {
		// A new interval only takes effect on restart.
		a.ultrasonic.Stop()
	}
	a.ultrasonic.Start()

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	a.enabled = true
	stop, done := a.stopCh, a.doneCh
	a.mu.Unlock()

	go a.run(stop, done)
}

func (a *Autopilot) run(stop, done chan struct{}) {
	defer close(done)
	sub := a.ultrasonic.Subscribe()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var lastValid float64 = SafeCM
	haveReading := false

	for {
		select {
		case <-stop:
			return
		case d := <-sub:
			// A -1 echo timeout is not interpreted as "too close";
			// the autopilot skips that sample rather than treating it
			// as symmetric with d < DangerCM.
			if d == sensors.DistanceEchoTimeout {
				continue
			}
			if d == sensors.DistancePulseDetectFail {
				continue
			}
			lastValid = d
			haveReading = true
		case <-ticker.C:
			if !haveReading {
				continue
			}
			a.applyPolicy(lastValid)
		}
	}
}

func (a *Autopilot) applyPolicy(d float64) {
	switch {
	case d >= SafeCM:
		_ = a.coordinator.Steer(0)
		_ = a.coordinator.Move(motion.Forward, Power)
	case d >= DangerCM:
		_ = a.coordinator.Steer(30)
		_ = a.coordinator.Move(motion.Forward, Power)
		time.Sleep(dangerHold)
	default:
		_ = a.coordinator.Steer(-30)
		_ = a.coordinator.Move(motion.Reverse, Power)
		time.Sleep(criticalHold)
	}
}

// Disable stops motors, restores the ultrasonic supervisor's prior
// interval, and returns it to its prior running state.
func (a *Autopilot) Disable() {
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return
	}
	close(a.stopCh)
	done := a.doneCh
	a.enabled = false
	priorRunning := a.priorRunning
	priorInterval := a.priorInterval
	a.mu.Unlock()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		if a.logger != nil {
			a.logger.Warnf("autopilot worker did not stop within 10s")
		}
	}

	_ = a.coordinator.Stop()
	a.ultrasonic.SetInterval(priorInterval)
	a.ultrasonic.Stop()
	if priorRunning {
		a.ultrasonic.Start()
	}
}

func (a *Autopilot) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}
