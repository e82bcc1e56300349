// Package dispatcher implements the Command Dispatcher & State
// Broadcaster from spec §4.8: a single-writer command loop that
// serializes every inbound action against the Motion Coordinator, the
// Calibration Service, and the sensor supervisors, and fans the
// resulting RobotState out to subscribers. Grounded on the
// Sioux-Steel-Solutions-raptor-core reference's single cmdCh + periodic
// state-publisher main loop.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"go.viam.com/rdk/logging"
	"golang.org/x/sync/errgroup"

	"rovercore/autopilot"
	"rovercore/calibration"
	"rovercore/hal"
	"rovercore/motion"
	"rovercore/sensors"
)

const (
	cmdBuffer      = 16
	avoidDebounce  = time.Second
	servoTestDwell = 500 * time.Millisecond
)

// Dispatcher owns every component that mutates rover state and is the
// sole caller into them: no other package may call Motion Coordinator,
// Calibration Service, or sensor-supervisor mutators directly once a
// Dispatcher is running.
type Dispatcher struct {
	coordinator *motion.Coordinator
	calibration *calibration.Service
	camPan      hal.Servo
	camTilt     hal.Servo
	ultrasonic  *sensors.Ultrasonic
	battery     *sensors.Battery
	led         *sensors.LED
	autopilot   *autopilot.Autopilot
	logger      logging.Logger

	// cfg is the last-loaded HardwareConfig shape (pin/channel wiring,
	// thresholds, etc); saveCalibration mutates only its calibration
	// fields from the live actuator handles before persisting it.
	cfg hal.HardwareConfig

	cmdCh  chan Command
	stopCh chan struct{}
	doneCh chan struct{}

	// eg runs the sensor-forwarding goroutines (currently battery) that
	// merge supervisor output into the broadcaster, under one
	// cancellable group separate from the command loop per spec §5's
	// "event-bus task ... re-emits" description.
	eg       *errgroup.Group
	egCancel context.CancelFunc

	subMu sync.Mutex
	subs  []chan Event

	// state mirrors the fields broadcast in RobotState; it is only ever
	// touched from the command loop goroutine.
	state           RobotState
	lastAvoidToggle time.Time
}

// Config bundles the collaborators a Dispatcher drives.
type Config struct {
	Coordinator *motion.Coordinator
	Calibration *calibration.Service
	CamPan      hal.Servo
	CamTilt     hal.Servo
	Ultrasonic  *sensors.Ultrasonic
	Battery     *sensors.Battery
	LED         *sensors.LED
	Autopilot   *autopilot.Autopilot
	MaxSpeed    float64
	HWConfig    hal.HardwareConfig
	Logger      logging.Logger
}

func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		coordinator: cfg.Coordinator,
		calibration: cfg.Calibration,
		camPan:      cfg.CamPan,
		camTilt:     cfg.CamTilt,
		ultrasonic:  cfg.Ultrasonic,
		battery:     cfg.Battery,
		led:         cfg.LED,
		autopilot:   cfg.Autopilot,
		logger:      cfg.Logger,
		cfg:         cfg.HWConfig,
		cmdCh:       make(chan Command, cmdBuffer),
		state:       RobotState{MaxSpeed: cfg.MaxSpeed},
	}
}

// Start spawns the single command-loop goroutine plus the sensor-
// forwarding group.
func (d *Dispatcher) Start() {
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	go d.loop(d.stopCh, d.doneCh)

	ctx, cancel := context.WithCancel(context.Background())
	d.egCancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	d.eg = g
	if d.battery != nil {
		g.Go(func() error { return d.forwardBattery(gctx) })
	}
}

// forwardBattery subscribes to the battery supervisor and re-emits
// every reading as its own broadcast frame (not a full RobotState,
// since RobotState is mutated only from the command loop).
func (d *Dispatcher) forwardBattery(ctx context.Context) error {
	ch, unsubscribe := d.battery.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-ch:
			if !ok {
				return nil
			}
			d.broadcast(Event{Type: "battery", Payload: r})
		}
	}
}

// Stop ends the command loop, waiting for the command in progress but
// not processing commands still queued, cancels the sensor forwarders,
// then idempotently stops both motors as the final action.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	select {
	case <-d.doneCh:
	case <-time.After(10 * time.Second):
		if d.logger != nil {
			d.logger.Warnf("dispatcher loop did not stop within 10s")
		}
	}

	if d.egCancel != nil {
		d.egCancel()
		done := make(chan struct{})
		go func() { _ = d.eg.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			if d.logger != nil {
				d.logger.Warnf("sensor forwarders did not stop within 10s")
			}
		}
	}

	if d.coordinator != nil {
		_ = d.coordinator.Stop()
	}
}

// Submit enqueues a command for sequential processing. It blocks only
// if the command buffer is full, applying natural backpressure to a
// misbehaving originator rather than dropping commands silently.
func (d *Dispatcher) Submit(cmd Command) {
	d.cmdCh <- cmd
}

// Subscribe registers a channel that receives every broadcast Event
// (state snapshots and calibration/save notifications) until the
// returned func is called.
func (d *Dispatcher) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 4)
	d.subMu.Lock()
	d.subs = append(d.subs, ch)
	d.subMu.Unlock()
	return ch, func() { d.unsubscribe(ch) }
}

func (d *Dispatcher) unsubscribe(target chan Event) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for i, ch := range d.subs {
		if ch == target {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// broadcast fans an Event out to every subscriber without blocking the
// command loop: a slow subscriber is dropped for that frame rather
// than stalling every other consumer, mirroring the sensor
// supervisors' non-blocking publish.
func (d *Dispatcher) broadcast(ev Event) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// reply sends an event to a single command's originator only, per
// spec §4.8's "errors are replied to the originator, not broadcast".
func reply(cmd Command, ev Event) {
	if cmd.ReplyTo == nil {
		return
	}
	select {
	case cmd.ReplyTo <- ev:
	default:
	}
}

func (d *Dispatcher) loop(stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case cmd := <-d.cmdCh:
			d.handle(cmd)
		}
	}
}

func (d *Dispatcher) handle(cmd Command) {
	var err error
	switch cmd.Action {
	case "move":
		err = d.handleMove(cmd)
	case "stop":
		err = d.coordinator.Stop()
		d.state.Speed = 0
		d.state.Direction = int(motion.Stopped)
	case "setServoDirAngle":
		err = d.handleSteer(cmd)
	case "setCamPanAngle":
		err = d.handleCamPan(cmd)
	case "setCamTiltAngle":
		err = d.handleCamTilt(cmd)
	case "setMaxSpeed":
		err = d.handleSetMaxSpeed(cmd)
	case "avoidObstacles":
		changed, aerr := d.handleAvoidObstacles(cmd)
		if aerr != nil {
			reply(cmd, Event{Type: "error", Error: aerr.Error()})
			return
		}
		if !changed {
			// Debounced: the toggle is silently dropped, no restate.
			return
		}
	case "startAutoMeasureDistance":
		err = d.handleAutoMeasureDistance(cmd, true)
	case "stopAutoMeasureDistance":
		err = d.handleAutoMeasureDistance(cmd, false)
	case "increaseServoDirCali", "decreaseServoDirCali",
		"increaseCamPanCali", "decreaseCamPanCali",
		"increaseCamTiltCali", "decreaseCamTiltCali",
		"reverseLeftMotor", "reverseRightMotor", "resetCalibration":
		d.handleCalibrationAction(cmd)
		return
	case "saveCalibration":
		d.handleSaveCalibrationAction(cmd)
		return
	case "servosTest":
		err = d.handleServosTest()
	default:
		reply(cmd, Event{Type: "error", Error: "unrecognized action: " + cmd.Action})
		return
	}

	if err != nil {
		reply(cmd, Event{Type: "error", Error: err.Error()})
		return
	}
	d.broadcastState()
}

func (d *Dispatcher) handleMove(cmd Command) error {
	direction := motion.Direction(intPayload(cmd, "direction", 0))
	speed := floatPayload(cmd, "speed", 0)
	if speed > d.state.MaxSpeed {
		speed = d.state.MaxSpeed
	}
	if speed < -d.state.MaxSpeed {
		speed = -d.state.MaxSpeed
	}
	if err := d.coordinator.Move(direction, speed); err != nil {
		return err
	}
	d.state.Direction = int(direction)
	d.state.Speed = speed
	return nil
}

func (d *Dispatcher) handleSteer(cmd Command) error {
	angle := floatPayload(cmd, "angle", 0)
	if err := d.coordinator.Steer(angle); err != nil {
		return err
	}
	_, _, a := d.coordinator.State()
	d.state.ServoAngle = a
	return nil
}

func (d *Dispatcher) handleCamPan(cmd Command) error {
	if d.camPan == nil {
		return nil
	}
	angle := floatPayload(cmd, "angle", 0)
	if err := d.camPan.SetAngle(angle); err != nil {
		return err
	}
	d.state.CamPan = d.camPan.Angle()
	return nil
}

func (d *Dispatcher) handleCamTilt(cmd Command) error {
	if d.camTilt == nil {
		return nil
	}
	angle := floatPayload(cmd, "angle", 0)
	if err := d.camTilt.SetAngle(angle); err != nil {
		return err
	}
	d.state.CamTilt = d.camTilt.Angle()
	return nil
}

func (d *Dispatcher) handleSetMaxSpeed(cmd Command) error {
	d.state.MaxSpeed = floatPayload(cmd, "maxSpeed", d.state.MaxSpeed)
	return nil
}

// handleAvoidObstacles toggles the autopilot sub-mode with a 1s
// debounce window: a second toggle request within the window is
// silently dropped (changed=false, no restate) rather than erroring,
// per spec §4.8.
func (d *Dispatcher) handleAvoidObstacles(cmd Command) (changed bool, err error) {
	now := time.Now()
	if !d.lastAvoidToggle.IsZero() && now.Sub(d.lastAvoidToggle) < avoidDebounce {
		return false, nil
	}
	d.lastAvoidToggle = now

	enable := boolPayload(cmd, "enabled", !d.state.AvoidObstacles)
	if enable == d.state.AvoidObstacles {
		return false, nil
	}
	if enable {
		d.autopilot.Enable()
	} else {
		d.autopilot.Disable()
	}
	d.state.AvoidObstacles = enable
	return true, nil
}

func (d *Dispatcher) handleAutoMeasureDistance(cmd Command, enable bool) error {
	if enable {
		d.ultrasonic.Start()
	} else if !d.state.AvoidObstacles {
		// Leave it running if the autopilot still needs the stream.
		d.ultrasonic.Stop()
	}
	d.state.AutoMeasureDistanceMode = enable
	if enable {
		v := d.ultrasonic.Latest()
		d.state.Distance = &v
	} else {
		d.state.Distance = nil
	}
	return nil
}

// handleCalibrationAction performs one calibration nudge/reverse/reset
// and broadcasts the resulting offsets/directions as an
// updateCalibration event. Per spec §4.8, calibration actions carry
// their own payload and never also trigger the generic state broadcast.
func (d *Dispatcher) handleCalibrationAction(cmd Command) {
	var err error
	switch cmd.Action {
	case "increaseServoDirCali":
		err = d.calibration.IncrementServo(calibration.ServoSteering, floatPayload(cmd, "step", 0.1))
	case "decreaseServoDirCali":
		err = d.calibration.DecrementServo(calibration.ServoSteering, -floatPayload(cmd, "step", 0.1))
	case "increaseCamPanCali":
		err = d.calibration.IncrementServo(calibration.ServoCamPan, floatPayload(cmd, "step", 0.1))
	case "decreaseCamPanCali":
		err = d.calibration.DecrementServo(calibration.ServoCamPan, -floatPayload(cmd, "step", 0.1))
	case "increaseCamTiltCali":
		err = d.calibration.IncrementServo(calibration.ServoCamTilt, floatPayload(cmd, "step", 0.1))
	case "decreaseCamTiltCali":
		err = d.calibration.DecrementServo(calibration.ServoCamTilt, -floatPayload(cmd, "step", 0.1))
	case "reverseLeftMotor":
		err = d.calibration.ReverseMotor(calibration.MotorLeft)
	case "reverseRightMotor":
		err = d.calibration.ReverseMotor(calibration.MotorRight)
	case "resetCalibration":
		d.calibration.Reset()
	}
	if err != nil {
		reply(cmd, Event{Type: "error", Error: err.Error()})
		return
	}
	d.broadcast(Event{Type: "updateCalibration", Payload: d.calibration.Snapshot()})
}

// handleSaveCalibrationAction persists the live calibration snapshot
// and broadcasts it as a saveCalibration event; like every other
// calibration action it never also triggers the generic state
// broadcast.
func (d *Dispatcher) handleSaveCalibrationAction(cmd Command) {
	saved, err := d.calibration.Save(d.cfg)
	if err != nil {
		reply(cmd, Event{Type: "error", Error: err.Error()})
		return
	}
	d.cfg = saved
	d.broadcast(Event{Type: "saveCalibration", Payload: d.calibration.Snapshot()})
}

// handleServosTest sweeps the steering, pan, and tilt servos in turn
// through each servo's own [min_angle, max_angle, center] with a dwell
// between steps, broadcasting after every step so the intermediate
// states are observable. The sweep runs on the command loop, so other
// commands wait until it finishes.
func (d *Dispatcher) handleServosTest() error {
	if d.cfg.SteeringServo != nil {
		if err := d.sweepServo(*d.cfg.SteeringServo, func(a float64) error { return d.coordinator.Steer(a) }, func() {
			_, _, a := d.coordinator.State()
			d.state.ServoAngle = a
		}); err != nil {
			return err
		}
	}
	if d.camPan != nil && d.cfg.CamPanServo != nil {
		if err := d.sweepServo(*d.cfg.CamPanServo, d.camPan.SetAngle, func() { d.state.CamPan = d.camPan.Angle() }); err != nil {
			return err
		}
	}
	if d.camTilt != nil && d.cfg.CamTiltServo != nil {
		if err := d.sweepServo(*d.cfg.CamTiltServo, d.camTilt.SetAngle, func() { d.state.CamTilt = d.camTilt.Angle() }); err != nil {
			return err
		}
	}
	return nil
}

// sweepServo drives one servo through min, max, then center, applying
// updateState and broadcasting after each step.
func (d *Dispatcher) sweepServo(cfg hal.ServoConfig, setAngle func(float64) error, updateState func()) error {
	center := (cfg.MinAngle + cfg.MaxAngle) / 2
	for _, angle := range []float64{cfg.MinAngle, cfg.MaxAngle, center} {
		if err := setAngle(angle); err != nil {
			return err
		}
		updateState()
		d.broadcastState()
		time.Sleep(servoTestDwell)
	}
	return nil
}

func (d *Dispatcher) broadcastState() {
	snapshot := d.state
	if d.ultrasonic != nil && d.state.AutoMeasureDistanceMode {
		v := d.ultrasonic.Latest()
		snapshot.Distance = &v
	}
	d.broadcast(Event{Type: "update", Payload: snapshot})
}

func floatPayload(cmd Command, key string, def float64) float64 {
	if cmd.Payload == nil {
		return def
	}
	v, ok := cmd.Payload[key]
	if !ok {
		return def
	}
	f, ok := v.(float64)
	if !ok {
		return def
	}
	return f
}

func intPayload(cmd Command, key string, def int) int {
	return int(floatPayload(cmd, key, float64(def)))
}

func boolPayload(cmd Command, key string, def bool) bool {
	if cmd.Payload == nil {
		return def
	}
	v, ok := cmd.Payload[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}
