// Package sensors implements the three independent sensor supervisors
// from spec §4.6: ultrasonic rangefinder, battery ADC poller, and
// status LED blinker. Each follows the same start/stop/running
// lifecycle, with the worker isolated from its consumer by a
// single-producer/single-consumer cell, grounded on the teacher's
// worker-isolation and bounded-join patterns (registry.go) and on the
// periph.io gpio continuous-measurement goroutine from the retrieval
// pack's VL53L0X executor.
package sensors

import (
	"sync"
	"time"

	"go.viam.com/rdk/logging"
	"periph.io/x/conn/v3/gpio"

	"rovercore/bus"
)

// hcsr04UsPerCM converts an echo pulse width in microseconds to
// centimeters, the standard HC-SR04 approximation for a ~340m/s round
// trip (pulse_us / 58 ≈ cm) that robot_hat-style ultrasonic drivers use.
const hcsr04UsPerCM = 58.0

// DistanceSentinel values, propagated rather than masked per spec §3.
const (
	DistanceEchoTimeout      = -1.0
	DistancePulseDetectFail  = -2.0
)

// UltrasonicReader performs one trigger/echo cycle and returns a
// distance in centimeters or a sentinel value.
type UltrasonicReader interface {
	Read(timeout time.Duration) (float64, error)
}

// gpioUltrasonic is the real trigger/echo HC-SR04-style reader: it
// pulses trig then times how long echo stays high via edge detection.
type gpioUltrasonic struct {
	trig bus.GPIO
	echo bus.GPIOIn
}

func NewGPIOUltrasonicReader(trig bus.GPIO, echo bus.GPIOIn) UltrasonicReader {
	return &gpioUltrasonic{trig: trig, echo: echo}
}

// Read pulses trig high for 10us, then waits for the echo line's
// rising edge (echo started) and falling edge (echo ended), timing the
// gap between them and converting it to centimeters. DistanceEchoTimeout
// signals no rising edge within timeout (nothing in range or no echo
// hardware attached); DistancePulseDetectFail signals a rising edge was
// seen but the matching falling edge never arrived.
func (g *gpioUltrasonic) Read(timeout time.Duration) (float64, error) {
	if err := g.echo.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return 0, err
	}
	if err := g.trig.Out(true); err != nil {
		return 0, err
	}
	time.Sleep(10 * time.Microsecond)
	if err := g.trig.Out(false); err != nil {
		return 0, err
	}

	if !g.echo.WaitForEdge(timeout) {
		return DistanceEchoTimeout, nil
	}
	start := time.Now()
	if !g.echo.WaitForEdge(timeout) {
		return DistancePulseDetectFail, nil
	}
	pulse := time.Since(start)
	return float64(pulse.Microseconds()) / hcsr04UsPerCM, nil
}

// Ultrasonic is the start/stop/running supervisor around an
// UltrasonicReader, sampling at Interval and publishing into a single
// lock-protected cell that Latest reads without blocking the worker.
type Ultrasonic struct {
	reader   UltrasonicReader
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	cellMu sync.RWMutex
	latest float64

	subMu sync.Mutex
	subs  []chan float64
}

func NewUltrasonic(reader UltrasonicReader, interval, timeout time.Duration, logger logging.Logger) *Ultrasonic {
	return &Ultrasonic{reader: reader, interval: interval, timeout: timeout, logger: logger}
}

// Start spawns the sampling worker if not already running.
func (u *Ultrasonic) Start() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running {
		return
	}
	u.stopCh = make(chan struct{})
	u.doneCh = make(chan struct{})
	u.running = true
	go u.run(u.stopCh, u.doneCh)
}

func (u *Ultrasonic) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d, err := u.reader.Read(u.timeout)
			if err != nil {
				if u.logger != nil {
					u.logger.Warnf("ultrasonic read failed: %v", err)
				}
				continue
			}
			u.cellMu.Lock()
			u.latest = d
			u.cellMu.Unlock()
			u.publish(d)
		}
	}
}

// publish fans the reading out non-blocking: a slow subscriber is
// dropped rather than backpressuring the worker.
func (u *Ultrasonic) publish(d float64) {
	u.subMu.Lock()
	defer u.subMu.Unlock()
	for _, ch := range u.subs {
		select {
		case ch <- d:
		default:
		}
	}
}

// Subscribe registers a channel that receives every reading the
// worker publishes, used by the broadcaster and the obstacle-avoidance
// autopilot.
func (u *Ultrasonic) Subscribe() <-chan float64 {
	ch := make(chan float64, 1)
	u.subMu.Lock()
	u.subs = append(u.subs, ch)
	u.subMu.Unlock()
	return ch
}

// Stop signals the worker to exit and joins with a 10s bounded
// timeout, matching the reference distance service's join-then-force
// pattern; there is no real process to terminate in-process, so on
// timeout it simply abandons the goroutine and reports not running.
func (u *Ultrasonic) Stop() {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return
	}
	close(u.stopCh)
	done := u.doneCh
	u.running = false
	u.mu.Unlock()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		if u.logger != nil {
			u.logger.Warnf("ultrasonic worker did not stop within 10s")
		}
	}
}

func (u *Ultrasonic) Running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running
}

// Latest returns the most recently published reading without blocking
// the worker.
func (u *Ultrasonic) Latest() float64 {
	u.cellMu.RLock()
	defer u.cellMu.RUnlock()
	return u.latest
}

// SetInterval changes the sampling cadence; callers restart the
// supervisor for it to take effect, matching the LED supervisor's
// stop-update-restart reconfiguration pattern.
func (u *Ultrasonic) SetInterval(interval time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.interval = interval
}

func (u *Ultrasonic) Interval() time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.interval
}
