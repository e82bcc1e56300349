package hal

import (
	"sync"
	"time"

	"rovercore/bus"
	"rovercore/pwm"
)

// Motor is the capability shared by all three wiring variants: I2C-DC,
// GPIO-DC, and phase/enable, per spec §4.3's MotorABC.
type Motor interface {
	SetSpeed(signedSpeed float64) error
	Stop() error
	ReverseCalibrationDirection()
	CalibrationDirection() int
}

// dutyForSpeed implements the shared duty curve: |s|/2+50 with a
// calibration offset subtracted and clamped to [0,100]. A zero speed
// always yields zero duty regardless of offset.
func dutyForSpeed(signedSpeed, offset float64) float64 {
	s := signedSpeed
	if s < 0 {
		s = -s
	}
	if s == 0 {
		return 0
	}
	duty := s/2 + 50 - offset
	return clampFloat(duty, 0, 100)
}

// i2cMotor drives a PWM-channel motor whose direction is set by a
// single GPIO pin level.
type i2cMotor struct {
	mu      sync.Mutex
	driver  *pwm.Driver
	dirPin  bus.GPIO
	cfg     MotorConfig
}

func NewI2CMotor(driver *pwm.Driver, dirPin bus.GPIO, cfg MotorConfig) Motor {
	return &i2cMotor{driver: driver, dirPin: dirPin, cfg: cfg}
}

func (m *i2cMotor) SetSpeed(signedSpeed float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	signedSpeed = clampFloat(signedSpeed, -m.cfg.MaxSpeed, m.cfg.MaxSpeed)
	effectiveDir := sign(signedSpeed) * m.cfg.CalibrationDirection

	if m.dirPin != nil {
		if err := m.dirPin.Out(effectiveDir >= 0); err != nil {
			return err
		}
	}
	return m.driver.SetPulseWidthPercent(m.cfg.Channel, dutyForSpeed(signedSpeed, m.cfg.CalibrationSpeedOffset))
}

func (m *i2cMotor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.driver.SetPulseWidthPercent(m.cfg.Channel, 0); err != nil {
		return err
	}
	time.Sleep(2 * time.Millisecond)
	return m.driver.SetPulseWidthPercent(m.cfg.Channel, 0)
}

func (m *i2cMotor) ReverseCalibrationDirection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.CalibrationDirection = -m.cfg.CalibrationDirection
}

func (m *i2cMotor) CalibrationDirection() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.CalibrationDirection
}

// gpioDCMotor drives two GPIO pins as PWM-capable outputs (forward/
// backward), with an optional always-on enable pin.
type gpioDCMotor struct {
	mu                   sync.Mutex
	forward, backward    bus.GPIO
	enable               bus.GPIO
	cfg                  MotorConfig
}

func NewGPIODCMotor(forward, backward, enable bus.GPIO, cfg MotorConfig) Motor {
	return &gpioDCMotor{forward: forward, backward: backward, enable: enable, cfg: cfg}
}

func (m *gpioDCMotor) SetSpeed(signedSpeed float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	signedSpeed = clampFloat(signedSpeed, -m.cfg.MaxSpeed, m.cfg.MaxSpeed)
	effectiveDir := sign(signedSpeed) * m.cfg.CalibrationDirection

	if m.enable != nil {
		if err := m.enable.Out(true); err != nil {
			return err
		}
	}

	active, idle := m.forward, m.backward
	if effectiveDir < 0 {
		active, idle = m.backward, m.forward
	}
	if idle != nil {
		if err := idle.Out(false); err != nil {
			return err
		}
	}
	if active == nil {
		return nil
	}
	// GPIO-DC has no PWM channel of its own here; a nonzero duty is
	// represented as the active pin driven high, matching boards where
	// the enable pin (not forward/backward) carries the PWM.
	return active.Out(dutyForSpeed(signedSpeed, m.cfg.CalibrationSpeedOffset) > 0)
}

func (m *gpioDCMotor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, p := range []bus.GPIO{m.forward, m.backward} {
		if p == nil {
			continue
		}
		if err := p.Out(false); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	time.Sleep(2 * time.Millisecond)
	for _, p := range []bus.GPIO{m.forward, m.backward} {
		if p == nil {
			continue
		}
		if err := p.Out(false); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *gpioDCMotor) ReverseCalibrationDirection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.CalibrationDirection = -m.cfg.CalibrationDirection
}

func (m *gpioDCMotor) CalibrationDirection() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.CalibrationDirection
}

// phaseEnableMotor drives a single phase pin for direction and PWMs a
// separate enable pin for speed.
type phaseEnableMotor struct {
	mu       sync.Mutex
	phase    bus.GPIO
	enable   *pwm.Driver
	enableCh int
	cfg      MotorConfig
}

func NewPhaseEnableMotor(phase bus.GPIO, enable *pwm.Driver, enableChannel int, cfg MotorConfig) Motor {
	return &phaseEnableMotor{phase: phase, enable: enable, enableCh: enableChannel, cfg: cfg}
}

func (m *phaseEnableMotor) SetSpeed(signedSpeed float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	signedSpeed = clampFloat(signedSpeed, -m.cfg.MaxSpeed, m.cfg.MaxSpeed)
	effectiveDir := sign(signedSpeed) * m.cfg.CalibrationDirection

	if m.phase != nil {
		if err := m.phase.Out(effectiveDir >= 0); err != nil {
			return err
		}
	}
	return m.enable.SetPulseWidthPercent(m.enableCh, dutyForSpeed(signedSpeed, m.cfg.CalibrationSpeedOffset))
}

func (m *phaseEnableMotor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enable.SetPulseWidthPercent(m.enableCh, 0); err != nil {
		return err
	}
	time.Sleep(2 * time.Millisecond)
	return m.enable.SetPulseWidthPercent(m.enableCh, 0)
}

func (m *phaseEnableMotor) ReverseCalibrationDirection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.CalibrationDirection = -m.cfg.CalibrationDirection
}

func (m *phaseEnableMotor) CalibrationDirection() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.CalibrationDirection
}

func sign(f float64) int {
	switch {
	case f > 0:
		return 1
	case f < 0:
		return -1
	default:
		return 0
	}
}
