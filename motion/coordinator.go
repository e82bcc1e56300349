// Package motion implements the Motion Coordinator: the sole owner of
// every Servo and Motor handle, translating move/steer commands into
// coordinated actuator writes per spec §4.4.
package motion

import (
	"sync"

	"go.viam.com/rdk/logging"

	"rovercore/hal"
)

// Direction mirrors RobotState's direction field.
type Direction int

const (
	Stopped Direction = 0
	Forward Direction = 1
	Reverse Direction = -1
)

// Coordinator owns the steering servo and both drive motors and is the
// only component permitted to issue actuator writes to them.
type Coordinator struct {
	mu sync.Mutex

	steering    hal.Servo
	left, right hal.Motor
	logger      logging.Logger

	dirMin, dirMax float64 // steering angle clamp, e.g. -30/+30

	direction Direction
	speed     float64
	angle     float64
}

func NewCoordinator(steering hal.Servo, left, right hal.Motor, dirMin, dirMax float64, logger logging.Logger) *Coordinator {
	return &Coordinator{steering: steering, left: left, right: right, dirMin: dirMin, dirMax: dirMax, logger: logger}
}

// Steer clamps angle to [dirMin, dirMax] and applies it to the
// steering servo immediately; it does not by itself change direction
// or speed.
func (c *Coordinator) Steer(angle float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if angle < c.dirMin {
		angle = c.dirMin
	}
	if angle > c.dirMax {
		angle = c.dirMax
	}
	if err := c.steering.SetAngle(angle); err != nil {
		if c.logger != nil {
			c.logger.Warnf("steering servo write failed: %v", err)
		}
		return err
	}
	c.angle = angle
	return nil
}

// Move applies direction and speed with the differential power
// scaling from the current steering angle: the inner wheel (relative
// to the turn) is scaled by p = (100-|theta|)/100. Turning right
// (theta>0) slows the right motor; turning left (theta<0) slows the
// left motor — the motors are mounted mirrored, so direction is
// negated between them.
//
//	speed1 =  speed * direction   // left motor
//	speed2 = -speed * direction   // right motor
//	theta > 0 (right turn): speed2 *= p   // slows the right (inner) motor
//	theta < 0 (left turn):  speed1 *= p   // slows the left (inner) motor
func (c *Coordinator) Move(direction Direction, speed float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if speed == 0 {
		direction = Stopped
	}

	theta := c.angle
	p := (100 - abs(theta)) / 100

	speed1 := speed * float64(direction)
	speed2 := -speed * float64(direction)
	if theta > 0 {
		speed2 *= p
	} else if theta < 0 {
		speed1 *= p
	}

	if err := c.left.SetSpeed(speed1); err != nil {
		if c.logger != nil {
			c.logger.Warnf("left motor write failed: %v", err)
		}
		return err
	}
	if err := c.right.SetSpeed(speed2); err != nil {
		if c.logger != nil {
			c.logger.Warnf("right motor write failed: %v", err)
		}
		return err
	}

	c.direction = direction
	c.speed = speed
	return nil
}

// Stop always transitions to Stopped and issues Motor.Stop on both
// motors regardless of the prior state; it is idempotent.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	if err := c.left.Stop(); err != nil {
		firstErr = err
	}
	if err := c.right.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	c.direction = Stopped
	c.speed = 0
	return firstErr
}

// State returns the coordinator's current direction, speed, and
// steering angle for inclusion in a RobotState snapshot.
func (c *Coordinator) State() (Direction, float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.direction, c.speed, c.angle
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
