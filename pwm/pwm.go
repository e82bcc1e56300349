// Package pwm implements the PCA9685-style PWM driver chip abstraction:
// one I2C-attached chip exposing N duty-cycle channels shared by every
// servo and I2C-DC motor on that address.
package pwm

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"rovercore/bus"
	"rovercore/roverr"
)

const (
	// Resolution is the chip's duty-cycle counter resolution (PCA9685: 12-bit).
	Resolution = 4096

	// Retry bounds bus write attempts on transient I/O errors (spec §4.1).
	retry = 5

	regMode1    = 0x00
	regPrescale = 0xFE
	regLED0On   = 0x06

	oscClockHz = 25_000_000
)

// Driver programs pulse widths on the channels of one PCA9685-family
// chip. It is shared by every actuator addressed to the same chip.
type Driver struct {
	logger logging.Logger
	dev    bus.I2C
	addr   uint16

	mu         sync.Mutex
	frequency  float64
	frameWidth float64 // microseconds
}

// Open brings up a driver at addr on dev with a default 50Hz frequency,
// matching the servo-friendly default most PCA9685 boards ship with.
func Open(dev bus.I2C, addr uint16, logger logging.Logger) (*Driver, error) {
	d := &Driver{dev: dev, addr: addr, logger: logger}
	if err := d.writeReg(regMode1, 0x00); err != nil {
		return nil, errors.Wrap(err, "reset pwm driver")
	}
	if err := d.SetFrequency(50); err != nil {
		return nil, err
	}
	return d, nil
}

// SetFrequency quantizes the requested frequency via the chip's
// prescaler and recomputes the frame width.
func (d *Driver) SetFrequency(hz float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prescale := byte(round(oscClockHz/(Resolution*hz)) - 1)

	if err := d.writeReg(regMode1, 0x10); err != nil { // sleep
		return errors.Wrap(err, "sleep before prescale")
	}
	if err := d.writeReg(regPrescale, prescale); err != nil {
		return errors.Wrap(err, "set prescale")
	}
	if err := d.writeReg(regMode1, 0x00); err != nil { // wake
		return errors.Wrap(err, "wake after prescale")
	}
	time.Sleep(500 * time.Microsecond)
	if err := d.writeReg(regMode1, 0x80); err != nil { // restart, auto-increment
		return errors.Wrap(err, "restart after prescale")
	}

	d.frequency = hz
	d.frameWidth = 1_000_000 / hz
	return nil
}

// FrameWidth returns the current PWM period in microseconds.
func (d *Driver) FrameWidth() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frameWidth
}

// SetPulseWidthUS programs channel to a pulse width clamped to
// [0, frameWidth]. off_count = round(pulse_us * freq * Resolution / 1e6);
// on_count is always 0, matching the reference register layout.
func (d *Driver) SetPulseWidthUS(channel int, us float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if us < 0 {
		us = 0
	}
	if us > d.frameWidth {
		us = d.frameWidth
	}

	offCount := int(round(us * d.frequency * Resolution / 1_000_000))
	if offCount >= Resolution {
		offCount = Resolution - 1
	}

	base := regLED0On + 4*channel
	regs := []struct {
		reg byte
		val byte
	}{
		{byte(base), 0},
		{byte(base + 1), 0},
		{byte(base + 2), byte(offCount & 0xFF)},
		{byte(base + 3), byte((offCount >> 8) & 0x0F)},
	}
	for _, r := range regs {
		if err := d.writeRegRetry(r.reg, r.val); err != nil {
			return err
		}
	}
	return nil
}

// SetPulseWidthPercent maps percent (0..100) linearly onto the frame
// width and delegates to SetPulseWidthUS.
func (d *Driver) SetPulseWidthPercent(channel int, percent float64) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	d.mu.Lock()
	frameWidth := d.frameWidth
	d.mu.Unlock()
	return d.SetPulseWidthUS(channel, percent/100*frameWidth)
}

func (d *Driver) writeReg(reg, value byte) error {
	return d.dev.Tx([]byte{reg, value}, nil)
}

// writeRegRetry retries transient bus errors up to `retry` times before
// surfacing a BusError, matching the chip's documented contract: on
// exhaustion the driver's in-memory state (frequency/frameWidth) is left
// untouched since only the register write itself failed.
func (d *Driver) writeRegRetry(reg, value byte) error {
	var lastErr error
	for attempt := 0; attempt < retry; attempt++ {
		if err := d.writeReg(reg, value); err != nil {
			lastErr = err
			if d.logger != nil {
				d.logger.Warnf("pwm write reg 0x%02x retry %d: %v", reg, attempt, err)
			}
			continue
		}
		return nil
	}
	return &roverr.BusError{Bus: "i2c", Op: "write pwm register", Err: lastErr}
}

func round(f float64) float64 {
	if f < 0 {
		return float64(int(f - 0.5))
	}
	return float64(int(f + 0.5))
}
