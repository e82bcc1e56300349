package sensors

import (
	"sync"
	"time"

	"go.viam.com/rdk/logging"
)

// ADCReader samples a raw battery voltage, e.g. from an ADS1115-style
// ADC channel.
type ADCReader interface {
	ReadVoltage() (float64, error)
}

// BatteryThresholds names the voltage bands that select log level
// only, per spec §4.6.2.
type BatteryThresholds struct {
	VMin, VDanger, VWarn, VFull float64
}

// Percentage clamps (v-VMin)/(VFull-VMin)*100 to [0,100].
func (t BatteryThresholds) Percentage(v float64) float64 {
	if t.VFull <= t.VMin {
		return 0
	}
	pct := (v - t.VMin) / (t.VFull - t.VMin) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Reading is a {voltage, percentage} pair broadcast on the battery
// supervisor's cadence.
type Reading struct {
	Voltage    float64 `json:"voltage"`
	Percentage float64 `json:"percentage"`
}

// Battery is the start/stop supervisor that reads ADC voltage on
// demand, caches it for CacheSeconds, and broadcasts on
// AutoMeasureInterval while it has at least one subscriber.
type Battery struct {
	reader       ADCReader
	thresholds   BatteryThresholds
	cacheFor     time.Duration
	autoInterval time.Duration
	logger       logging.Logger

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	subs      int
	cached    Reading
	cachedAt  time.Time

	subMu sync.Mutex
	chans []chan Reading
}

func NewBattery(reader ADCReader, thresholds BatteryThresholds, cacheFor, autoInterval time.Duration, logger logging.Logger) *Battery {
	return &Battery{reader: reader, thresholds: thresholds, cacheFor: cacheFor, autoInterval: autoInterval, logger: logger}
}

// Read returns the cached reading if younger than cacheFor, otherwise
// samples the ADC, logging at a level selected by the voltage band.
func (b *Battery) Read() (Reading, error) {
	b.mu.Lock()
	if time.Since(b.cachedAt) < b.cacheFor && !b.cachedAt.IsZero() {
		r := b.cached
		b.mu.Unlock()
		return r, nil
	}
	b.mu.Unlock()

	v, err := b.reader.ReadVoltage()
	if err != nil {
		return Reading{}, err
	}
	r := Reading{Voltage: v, Percentage: b.thresholds.Percentage(v)}

	b.logBand(v)

	b.mu.Lock()
	b.cached = r
	b.cachedAt = time.Now()
	b.mu.Unlock()
	return r, nil
}

func (b *Battery) logBand(v float64) {
	if b.logger == nil {
		return
	}
	switch {
	case v >= b.thresholds.VWarn:
		b.logger.Infof("battery voltage %.2fV", v)
	case v >= b.thresholds.VDanger:
		b.logger.Warnf("battery voltage %.2fV in warn band", v)
	case v >= b.thresholds.VMin:
		b.logger.Errorf("battery voltage %.2fV in danger band", v)
	default:
		b.logger.Errorf("battery voltage %.2fV below minimum, critical", v)
	}
}

// Subscribe increments the subscriber count, starting the broadcast
// loop on the first subscriber, and returns a channel of readings plus
// an unsubscribe func that stops the loop once the last subscriber
// disconnects.
func (b *Battery) Subscribe() (<-chan Reading, func()) {
	ch := make(chan Reading, 1)

	b.mu.Lock()
	b.subs++
	first := b.subs == 1
	b.mu.Unlock()

	b.subMu.Lock()
	b.chans = append(b.chans, ch)
	b.subMu.Unlock()

	if first {
		b.start()
	}

	return ch, func() { b.unsubscribe(ch) }
}

func (b *Battery) start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	b.running = true
	stop, done := b.stopCh, b.doneCh
	b.mu.Unlock()

	go b.run(stop, done)
}

func (b *Battery) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(b.autoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r, err := b.Read()
			if err != nil {
				if b.logger != nil {
					b.logger.Warnf("battery read failed: %v", err)
				}
				continue
			}
			b.subMu.Lock()
			for _, ch := range b.chans {
				select {
				case ch <- r:
				default:
				}
			}
			b.subMu.Unlock()
		}
	}
}

func (b *Battery) unsubscribe(target chan Reading) {
	b.subMu.Lock()
	for i, ch := range b.chans {
		if ch == target {
			b.chans = append(b.chans[:i], b.chans[i+1:]...)
			break
		}
	}
	remaining := len(b.chans)
	b.subMu.Unlock()
	close(target)

	b.mu.Lock()
	if b.subs > 0 {
		b.subs--
	}
	b.mu.Unlock()

	if remaining == 0 {
		b.stop()
	}
}

func (b *Battery) stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	close(b.stopCh)
	done := b.doneCh
	b.running = false
	b.subs = 0
	b.mu.Unlock()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
	}
}

func (b *Battery) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}
