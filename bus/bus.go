// Package bus provides the I2C and GPIO bus handles the rest of the core
// builds on. A real bus is backed by periph.io's host drivers; a mock bus
// backs tests and CI where no hardware is attached.
package bus

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// I2C is the subset of an I2C bus that the PWM driver and any
// register-level sensor needs. It is implemented by realI2C (a wrapper
// over a periph.io i2c bus) and by the mock in mock.go.
type I2C interface {
	// Tx writes w then reads len(r) bytes into r in one transaction.
	Tx(w, r []byte) error
	Close() error
}

// GPIO is a single digital output pin, implemented by realGPIO (a
// wrapper over periph.io's gpio.PinIO) and by the mock in mock.go.
type GPIO interface {
	Out(level bool) error
	Name() string
}

// GPIOIn is a digital pin that can also be read, used by the
// ultrasonic rangefinder's echo line to time the return pulse.
// Implemented by realGPIO (over periph.io's gpio.PinIO, which provides
// both PinIn and PinOut) and by MockGPIO in mock.go.
type GPIOIn interface {
	GPIO
	// In configures the pin as input with the given pull resistor and
	// edge-detection mode before Read or WaitForEdge are meaningful.
	In(pull gpio.Pull, edge gpio.Edge) error
	// Read returns the pin's current level.
	Read() bool
	// WaitForEdge blocks until an edge configured by In is detected or
	// timeout elapses, reporting whether an edge occurred.
	WaitForEdge(timeout time.Duration) bool
}

var (
	hostOnce sync.Once
	hostErr  error
)

// InitHost registers periph.io's platform host drivers exactly once per
// process. It must run before OpenI2C or OpenGPIO touch real hardware.
func InitHost() error {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	return hostErr
}

type realI2C struct {
	bus  i2c.BusCloser
	addr uint16
}

// OpenI2C opens the named I2C bus (empty string selects the platform
// default) and returns a device handle at addr. name and addr follow
// periph.io/x/conn/v3/i2c/i2creg naming.
func OpenI2C(name string, addr uint16) (I2C, error) {
	if err := InitHost(); err != nil {
		return nil, errors.Wrap(err, "init periph host")
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "open i2c bus %q", name)
	}
	return &realI2C{bus: b, addr: addr}, nil
}

func (r *realI2C) Tx(w, rd []byte) error {
	dev := i2c.Dev{Bus: r.bus, Addr: r.addr}
	return dev.Tx(w, rd)
}

func (r *realI2C) Close() error { return r.bus.Close() }

type realGPIO struct {
	pin gpio.PinIO
}

// OpenGPIO resolves a GPIO pin by its periph.io name (e.g. "GPIO17").
func OpenGPIO(name string) (GPIO, error) {
	if err := InitHost(); err != nil {
		return nil, errors.Wrap(err, "init periph host")
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("no such gpio pin %q", name)
	}
	return &realGPIO{pin: p}, nil
}

func (r *realGPIO) Out(level bool) error {
	l := gpio.Low
	if level {
		l = gpio.High
	}
	return r.pin.Out(l)
}

func (r *realGPIO) Name() string { return r.pin.Name() }

// In configures the pin for input, delegating to the underlying
// periph.io gpio.PinIO (which implements both PinIn and PinOut).
func (r *realGPIO) In(pull gpio.Pull, edge gpio.Edge) error {
	return r.pin.In(pull, edge)
}

func (r *realGPIO) Read() bool { return bool(r.pin.Read()) }

func (r *realGPIO) WaitForEdge(timeout time.Duration) bool {
	return r.pin.WaitForEdge(timeout)
}

// OpenGPIOIn resolves name the same way OpenGPIO does but returns the
// GPIOIn view, for pins (like an ultrasonic echo line) that must be
// read rather than only driven.
func OpenGPIOIn(name string) (GPIOIn, error) {
	if err := InitHost(); err != nil {
		return nil, errors.Wrap(err, "init periph host")
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("no such gpio pin %q", name)
	}
	return &realGPIO{pin: p}, nil
}
