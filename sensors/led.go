package sensors

import (
	"sync"
	"time"

	"go.viam.com/rdk/logging"

	"rovercore/bus"
)

// LED is the start/stop/running supervisor that blinks a GPIO pin
// symmetrically on/off at Interval until stopped.
type LED struct {
	pin      bus.GPIO
	interval time.Duration
	logger   logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewLED(pin bus.GPIO, interval time.Duration, logger logging.Logger) *LED {
	return &LED{pin: pin, interval: interval, logger: logger}
}

func (l *LED) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	l.running = true
	go l.run(l.stopCh, l.doneCh, l.interval)
}

func (l *LED) run(stop, done chan struct{}, interval time.Duration) {
	defer close(done)
	on := false
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			_ = l.pin.Out(false)
			return
		case <-ticker.C:
			on = !on
			if err := l.pin.Out(on); err != nil && l.logger != nil {
				l.logger.Warnf("led gpio write failed: %v", err)
			}
		}
	}
}

func (l *LED) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	close(l.stopCh)
	done := l.doneCh
	l.running = false
	l.mu.Unlock()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
	}
}

func (l *LED) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Reconfigure stops the worker (if running), swaps in a new pin
// and/or interval, and restarts it if it had been running, per
// spec §4.6.3.
func (l *LED) Reconfigure(pin bus.GPIO, interval time.Duration) {
	l.mu.Lock()
	wasRunning := l.running
	l.mu.Unlock()

	if wasRunning {
		l.Stop()
	}

	l.mu.Lock()
	if pin != nil {
		l.pin = pin
	}
	if interval > 0 {
		l.interval = interval
	}
	l.mu.Unlock()

	if wasRunning {
		l.Start()
	}
}
