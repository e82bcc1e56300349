package calibration

import (
	"sync"

	"go.viam.com/rdk/logging"

	"rovercore/hal"
	"rovercore/roverr"
)

// ServoID and MotorID name the actuators the Calibration Service can
// target, mirroring the canonical HardwareConfig slots.
type ServoID int

const (
	ServoSteering ServoID = iota
	ServoCamPan
	ServoCamTilt
)

type MotorID int

const (
	MotorLeft MotorID = iota
	MotorRight
)

// Handles is the set of live actuator handles the Calibration Service
// holds a shared reference to for the duration of an update/save call;
// it never drives motion itself (spec §3 Ownership).
type Handles struct {
	Steering, CamPan, CamTilt hal.Servo
	Left, Right               hal.Motor
}

// Service mutates live calibration offsets with bounded increments and
// commits them to the persistent store, per spec §4.5.
type Service struct {
	mu      sync.Mutex
	store   *Store
	handles Handles
	logger  logging.Logger

	// savedLeftDir/savedRightDir mirror saved_calibration_direction for
	// each motor; Reset flips a motor back when its live direction has
	// drifted from the saved one (there being only two states, one
	// ReverseCalibrationDirection call suffices).
	savedLeftDir, savedRightDir int
}

func NewService(store *Store, handles Handles, logger logging.Logger) *Service {
	s := &Service{store: store, handles: handles, logger: logger}
	if handles.Left != nil {
		s.savedLeftDir = handles.Left.CalibrationDirection()
	}
	if handles.Right != nil {
		s.savedRightDir = handles.Right.CalibrationDirection()
	}
	return s
}

func (s *Service) servo(id ServoID) hal.Servo {
	switch id {
	case ServoCamPan:
		return s.handles.CamPan
	case ServoCamTilt:
		return s.handles.CamTilt
	default:
		return s.handles.Steering
	}
}

// IncrementServo adds step (the dispatcher passes +0.1 by default) to a
// servo's live offset. A result outside [-MaxOffset, MaxOffset] is
// rejected with a CalibrationError and the offset is left unchanged.
func (s *Service) IncrementServo(id ServoID, step float64) error {
	return s.nudgeServo(id, step)
}

// DecrementServo adds step to a servo's live offset, so the caller
// passes a negative step (the dispatcher passes -0.1 by default); the
// same bounds check as IncrementServo applies.
func (s *Service) DecrementServo(id ServoID, step float64) error {
	return s.nudgeServo(id, step)
}

func (s *Service) nudgeServo(id ServoID, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	servo := s.servo(id)
	if servo == nil {
		return &roverr.CalibrationError{Target: "servo", Op: "nudge", Err: errNoHandle}
	}
	next := servo.CalibrationOffset() + delta
	if next < -hal.MaxOffset || next > hal.MaxOffset {
		return &roverr.CalibrationError{Target: "servo", Op: "nudge", Err: errOffsetBounds}
	}
	return servo.UpdateCalibration(next, false)
}

// ReverseMotor flips a motor's live calibration_direction.
func (s *Service) ReverseMotor(id MotorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	motor := s.motor(id)
	if motor == nil {
		return &roverr.CalibrationError{Target: "motor", Op: "reverse", Err: errNoHandle}
	}
	motor.ReverseCalibrationDirection()
	return nil
}

func (s *Service) motor(id MotorID) hal.Motor {
	if id == MotorRight {
		return s.handles.Right
	}
	return s.handles.Left
}

// Save writes the full HardwareConfig atomically, setting every
// saved_* field to its current live value, then returns the persisted
// snapshot so the caller can re-initialize hardware from it.
func (s *Service) Save(cfg hal.HardwareConfig) (hal.HardwareConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handles.Steering != nil && cfg.SteeringServo != nil {
		cfg.SteeringServo.CalibrationOffset = s.handles.Steering.CalibrationOffset()
		cfg.SteeringServo.SavedCalibrationOffset = cfg.SteeringServo.CalibrationOffset
		if err := s.handles.Steering.UpdateCalibration(cfg.SteeringServo.CalibrationOffset, true); err != nil {
			return cfg, err
		}
	}
	if s.handles.CamPan != nil && cfg.CamPanServo != nil {
		cfg.CamPanServo.CalibrationOffset = s.handles.CamPan.CalibrationOffset()
		cfg.CamPanServo.SavedCalibrationOffset = cfg.CamPanServo.CalibrationOffset
		if err := s.handles.CamPan.UpdateCalibration(cfg.CamPanServo.CalibrationOffset, true); err != nil {
			return cfg, err
		}
	}
	if s.handles.CamTilt != nil && cfg.CamTiltServo != nil {
		cfg.CamTiltServo.CalibrationOffset = s.handles.CamTilt.CalibrationOffset()
		cfg.CamTiltServo.SavedCalibrationOffset = cfg.CamTiltServo.CalibrationOffset
		if err := s.handles.CamTilt.UpdateCalibration(cfg.CamTiltServo.CalibrationOffset, true); err != nil {
			return cfg, err
		}
	}
	if s.handles.Left != nil && cfg.LeftMotor != nil {
		cfg.LeftMotor.CalibrationDirection = s.handles.Left.CalibrationDirection()
		cfg.LeftMotor.SavedCalibrationDirection = cfg.LeftMotor.CalibrationDirection
		s.savedLeftDir = cfg.LeftMotor.SavedCalibrationDirection
	}
	if s.handles.Right != nil && cfg.RightMotor != nil {
		cfg.RightMotor.CalibrationDirection = s.handles.Right.CalibrationDirection()
		cfg.RightMotor.SavedCalibrationDirection = cfg.RightMotor.CalibrationDirection
		s.savedRightDir = cfg.RightMotor.SavedCalibrationDirection
	}

	if err := s.store.Save(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// CalibrationSnapshot is the live offsets/directions of every
// configured actuator, broadcast alongside updateCalibration and
// saveCalibration events so subscribers never have to separately poll
// for what a calibration action changed.
type CalibrationSnapshot struct {
	SteeringOffset float64 `json:"steeringOffset"`
	CamPanOffset   float64 `json:"camPanOffset"`
	CamTiltOffset  float64 `json:"camTiltOffset"`
	LeftDirection  int     `json:"leftDirection"`
	RightDirection int     `json:"rightDirection"`
}

// Snapshot reads the live calibration offset/direction from every
// configured actuator handle.
func (s *Service) Snapshot() CalibrationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snap CalibrationSnapshot
	if s.handles.Steering != nil {
		snap.SteeringOffset = s.handles.Steering.CalibrationOffset()
	}
	if s.handles.CamPan != nil {
		snap.CamPanOffset = s.handles.CamPan.CalibrationOffset()
	}
	if s.handles.CamTilt != nil {
		snap.CamTiltOffset = s.handles.CamTilt.CalibrationOffset()
	}
	if s.handles.Left != nil {
		snap.LeftDirection = s.handles.Left.CalibrationDirection()
	}
	if s.handles.Right != nil {
		snap.RightDirection = s.handles.Right.CalibrationDirection()
	}
	return snap
}

// Reset restores every live calibration_offset to its saved value and
// every motor direction to its saved direction; it never persists.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, servo := range []hal.Servo{s.handles.Steering, s.handles.CamPan, s.handles.CamTilt} {
		if servo != nil {
			servo.ResetCalibration()
		}
	}
	if s.handles.Left != nil && s.handles.Left.CalibrationDirection() != s.savedLeftDir {
		s.handles.Left.ReverseCalibrationDirection()
	}
	if s.handles.Right != nil && s.handles.Right.CalibrationDirection() != s.savedRightDir {
		s.handles.Right.ReverseCalibrationDirection()
	}
}

var (
	errNoHandle     = calErr("actuator handle not present")
	errOffsetBounds = calErr("calibration offset out of bounds")
)

type calErr string

func (e calErr) Error() string { return string(e) }
