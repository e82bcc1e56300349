package hal

import (
	"sync"

	"rovercore/pwm"
)

// Servo maps a commanded angle to a pulse width through a calibration
// offset, per spec §4.2.
type Servo interface {
	SetAngle(angle float64) error
	Angle() float64
	UpdateCalibration(offset float64, persist bool) error
	ResetCalibration()
	CalibrationOffset() float64
	SavedCalibrationOffset() float64
}

// pwmServo is the concrete Servo backed by one PWM driver channel. It
// owns its own mutex the way CalibratedServo in the teacher guards
// config mutation against concurrent position reads.
type pwmServo struct {
	mu     sync.RWMutex
	driver *pwm.Driver
	cfg    ServoConfig
	angle  float64
}

// NewServo wraps driver's channel cfg.Channel as a Servo.
func NewServo(driver *pwm.Driver, cfg ServoConfig) Servo {
	return &pwmServo{driver: driver, cfg: cfg}
}

// SetAngle clamps a to [min_angle, max_angle], applies calibration per
// calibration_mode, linearly maps the result to a pulse width, and
// programs it. Out-of-range input is clamped silently, never an error.
func (s *pwmServo) SetAngle(a float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a < s.cfg.MinAngle {
		a = s.cfg.MinAngle
	}
	if a > s.cfg.MaxAngle {
		a = s.cfg.MaxAngle
	}

	var effective float64
	switch s.cfg.CalibrationMode {
	case CalibrationNegative:
		// effective = -(a + (-1)*offset) = -a + offset, preserved
		// verbatim from the reference implementation's NEGATIVE mode.
		effective = -a + s.cfg.CalibrationOffset
	default:
		effective = a + s.cfg.CalibrationOffset
	}

	span := s.cfg.MaxAngle - s.cfg.MinAngle
	pulse := s.cfg.MinPulse + ((effective - s.cfg.MinAngle) / span * (s.cfg.MaxPulse - s.cfg.MinPulse))
	if pulse < s.cfg.MinPulse {
		pulse = s.cfg.MinPulse
	}
	if pulse > s.cfg.MaxPulse {
		pulse = s.cfg.MaxPulse
	}

	if err := s.driver.SetPulseWidthUS(s.cfg.Channel, pulse); err != nil {
		return err
	}
	s.angle = a
	return nil
}

func (s *pwmServo) Angle() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.angle
}

// UpdateCalibration updates the live offset; if persist, also mirrors
// it into saved_calibration_offset (the actual file write is the
// Calibration Service's job, not the servo's).
func (s *pwmServo) UpdateCalibration(offset float64, persist bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset < -MaxOffset || offset > MaxOffset {
		offset = clampFloat(offset, -MaxOffset, MaxOffset)
	}
	s.cfg.CalibrationOffset = offset
	if persist {
		s.cfg.SavedCalibrationOffset = offset
	}
	return nil
}

func (s *pwmServo) ResetCalibration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.CalibrationOffset = s.cfg.SavedCalibrationOffset
}

func (s *pwmServo) CalibrationOffset() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.CalibrationOffset
}

func (s *pwmServo) SavedCalibrationOffset() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.SavedCalibrationOffset
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
