// Package hal is the hardware abstraction layer: a uniform Servo/Motor
// interface over heterogeneous I2C- and GPIO-driven actuators, plus the
// HardwareConfig data model those actuators are constructed from.
package hal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"rovercore/roverr"
)

// Address is an I2C bus address. It decodes from either a JSON number
// (0..127) or a "0x.."-prefixed hex string, per spec §6, normalizing to
// the plain integer form on any subsequent marshal — round-tripping a
// hex-string config preserves the address's value, not its original
// on-disk spelling.
type Address int

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(a))
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*a = Address(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("address: expected a number or hex string, got %s", data)
	}
	v, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 32)
	if err != nil {
		return fmt.Errorf("address: invalid hex string %q: %w", s, err)
	}
	*a = Address(v)
	return nil
}

// CalibrationMode selects how a servo's calibration offset combines
// with the commanded angle.
type CalibrationMode int

const (
	CalibrationSum CalibrationMode = iota
	CalibrationNegative
)

// ServoConfig is the persisted configuration for one servo.
type ServoConfig struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`

	MinAngle float64 `json:"min_angle"`
	MaxAngle float64 `json:"max_angle"`
	MinPulse float64 `json:"min_pulse_us"`
	MaxPulse float64 `json:"max_pulse_us"`

	CalibrationOffset      float64         `json:"calibration_offset"`
	SavedCalibrationOffset float64         `json:"saved_calibration_offset"`
	CalibrationMode        CalibrationMode `json:"calibration_mode"`

	DecStep float64 `json:"dec_step"`
	IncStep float64 `json:"inc_step"`

	// Channel addresses an I2C PWM channel; Pin addresses a GPIO pin.
	// Exactly one is populated depending on the servo's wiring.
	Channel int    `json:"channel,omitempty"`
	Pin     string `json:"pin,omitempty"`
}

// Validate enforces the invariants from the data model: min < max
// angle/pulse and a bounded calibration offset (spec's MAX_OFFSET=90).
func (c ServoConfig) Validate() error {
	if c.MinAngle >= c.MaxAngle {
		return &roverr.ConfigError{Path: c.Name, Op: "validate", Err: fmt.Errorf("min_angle %.1f >= max_angle %.1f", c.MinAngle, c.MaxAngle)}
	}
	if c.MinPulse >= c.MaxPulse {
		return &roverr.ConfigError{Path: c.Name, Op: "validate", Err: fmt.Errorf("min_pulse %.1f >= max_pulse %.1f", c.MinPulse, c.MaxPulse)}
	}
	if c.CalibrationOffset < -MaxOffset || c.CalibrationOffset > MaxOffset {
		return &roverr.ConfigError{Path: c.Name, Op: "validate", Err: fmt.Errorf("calibration_offset %.1f out of [-%v,%v]", c.CalibrationOffset, MaxOffset, MaxOffset)}
	}
	return nil
}

// MaxOffset bounds a servo calibration offset, matching the reference's
// documented example of ±90 degrees.
const MaxOffset = 90.0

// MotorKind tags which of the three wiring variants a MotorConfig uses.
type MotorKind int

const (
	MotorI2CDC MotorKind = iota
	MotorGPIODC
	MotorPhaseEnable
)

// MotorConfig is the persisted configuration for one motor.
type MotorConfig struct {
	Name    string    `json:"name"`
	Enabled bool      `json:"enabled"`
	Kind    MotorKind `json:"kind"`

	MaxSpeed float64 `json:"max_speed"`

	CalibrationDirection      int     `json:"calibration_direction"`
	SavedCalibrationDirection int     `json:"saved_calibration_direction"`
	CalibrationSpeedOffset    float64 `json:"calibration_speed_offset,omitempty"`

	// I2C-DC wiring.
	Channel int    `json:"channel,omitempty"`
	DirPin  string `json:"dir_pin,omitempty"`

	// GPIO-DC wiring.
	ForwardPin  string `json:"forward_pin,omitempty"`
	BackwardPin string `json:"backward_pin,omitempty"`
	EnablePin   string `json:"enable_pin,omitempty"`

	// Phase/Enable wiring.
	PhasePin string `json:"phase_pin,omitempty"`
}

// Validate enforces |calibration_direction| = 1 and max_speed > 0.
func (c MotorConfig) Validate() error {
	if c.CalibrationDirection != 1 && c.CalibrationDirection != -1 {
		return &roverr.ConfigError{Path: c.Name, Op: "validate", Err: fmt.Errorf("calibration_direction must be ±1, got %d", c.CalibrationDirection)}
	}
	if c.MaxSpeed <= 0 {
		return &roverr.ConfigError{Path: c.Name, Op: "validate", Err: fmt.Errorf("max_speed must be > 0, got %.1f", c.MaxSpeed)}
	}
	return nil
}

// PWMDriverConfig names the chip and bus address a set of actuators
// share.
type PWMDriverConfig struct {
	Chip    string  `json:"chip"`
	Address Address `json:"address"`
	Bus     string  `json:"bus"`
}

func (c PWMDriverConfig) Validate() error {
	if c.Address < 0 || c.Address > 127 {
		return &roverr.ConfigError{Path: c.Chip, Op: "validate", Err: fmt.Errorf("i2c address %d out of [0,127]", c.Address)}
	}
	return nil
}

// UltrasonicConfig configures the ultrasonic rangefinder supervisor.
type UltrasonicConfig struct {
	TrigPin  string  `json:"trig_pin"`
	EchoPin  string  `json:"echo_pin"`
	Interval float64 `json:"interval_seconds"`
	Timeout  float64 `json:"timeout_seconds"`
}

// BatteryConfig configures the battery ADC supervisor.
type BatteryConfig struct {
	Channel            int     `json:"channel"`
	VMin               float64 `json:"v_min"`
	VDanger            float64 `json:"v_danger"`
	VWarn              float64 `json:"v_warn"`
	VFull              float64 `json:"v_full"`
	CacheSeconds       float64 `json:"cache_seconds"`
	AutoMeasureSeconds float64 `json:"auto_measure_seconds"`
}

// LEDConfig configures the status LED blinker supervisor.
type LEDConfig struct {
	Pin      string  `json:"pin"`
	Interval float64 `json:"interval_seconds"`
}

// HardwareConfig is the full persisted configuration blob: optional
// sub-configs for every actuator and sensor on the rover.
type HardwareConfig struct {
	Driver PWMDriverConfig `json:"driver"`

	SteeringServo *ServoConfig `json:"steering_servo,omitempty"`
	CamPanServo   *ServoConfig `json:"cam_pan_servo,omitempty"`
	CamTiltServo  *ServoConfig `json:"cam_tilt_servo,omitempty"`

	LeftMotor  *MotorConfig `json:"left_motor,omitempty"`
	RightMotor *MotorConfig `json:"right_motor,omitempty"`

	Battery    *BatteryConfig    `json:"battery,omitempty"`
	Ultrasonic *UltrasonicConfig `json:"ultrasonic,omitempty"`
	LED        *LEDConfig        `json:"led,omitempty"`
}

// Validate checks every populated sub-config, including that referenced
// GPIO pin names resolve against the board pin table (callers pass that
// check in via pinValidator to avoid an import cycle with boardpins).
// PWM channel numbers are not checked against the pin table.
func (c HardwareConfig) Validate(pinValidator func(map[string]string) error) error {
	if err := c.Driver.Validate(); err != nil {
		return err
	}

	servos := map[string]*ServoConfig{
		"steering_servo": c.SteeringServo,
		"cam_pan_servo":   c.CamPanServo,
		"cam_tilt_servo":  c.CamTiltServo,
	}
	pinRefs := map[string]string{}
	for name, s := range servos {
		if s == nil {
			continue
		}
		if err := s.Validate(); err != nil {
			return err
		}
		if s.Pin != "" {
			pinRefs[name] = s.Pin
		}
	}

	motors := map[string]*MotorConfig{"left_motor": c.LeftMotor, "right_motor": c.RightMotor}
	for name, m := range motors {
		if m == nil {
			continue
		}
		if err := m.Validate(); err != nil {
			return err
		}
		for field, ref := range map[string]string{"dir": m.DirPin, "fwd": m.ForwardPin, "bwd": m.BackwardPin, "en": m.EnablePin, "phase": m.PhasePin} {
			if ref != "" {
				pinRefs[name+"."+field] = ref
			}
		}
	}

	if c.LED != nil && c.LED.Pin != "" {
		pinRefs["led"] = c.LED.Pin
	}
	if c.Ultrasonic != nil {
		if c.Ultrasonic.TrigPin != "" {
			pinRefs["ultrasonic.trig"] = c.Ultrasonic.TrigPin
		}
		if c.Ultrasonic.EchoPin != "" {
			pinRefs["ultrasonic.echo"] = c.Ultrasonic.EchoPin
		}
	}

	if pinValidator != nil {
		if err := pinValidator(pinRefs); err != nil {
			return err
		}
	}
	return nil
}
