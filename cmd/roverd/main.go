// Command roverd wires bus providers, the PWM driver, every actuator
// and sensor supervisor, the motion coordinator, the calibration
// service, and the command dispatcher into one running process. It
// exposes the dispatcher's Submit/Subscribe seams for an external
// transport (HTTP/WebSocket, out of scope here) to plug into, and
// optionally mirrors broadcasts onto MQTT for telemetry.
package main

import (
	"os"
	"strconv"
	"time"

	"go.viam.com/rdk/logging"

	"rovercore/autopilot"
	"rovercore/bus"
	"rovercore/calibration"
	"rovercore/dispatcher"
	"rovercore/hal"
	"rovercore/motion"
	"rovercore/pwm"
	"rovercore/sensors"
	"rovercore/telemetry"
)

func main() {
	logger := logging.NewLogger("roverd")
	if lvl := os.Getenv("PX_LOG_LEVEL"); lvl == "DEBUG" {
		logger = logging.NewDebugLogger("roverd")
	}

	cfgPath := envOr("ROVERD_HWCONFIG_PATH", "/etc/roverd/hwconfig.json")
	store := calibration.NewStore(cfgPath, logger)
	cfg, err := store.Load()
	if err != nil {
		logger.Errorf("load hardware config: %v", err)
		os.Exit(1)
	}

	mock := os.Getenv("ROBOT_HAT_MOCK_SMBUS") == "1"

	steering, camPan, camTilt, left, right, driver, err := buildActuators(cfg, mock, logger)
	if err != nil {
		logger.Errorf("build actuators: %v", err)
		os.Exit(1)
	}
	_ = driver

	coordinator := motion.NewCoordinator(steering, left, right, -30, 30, logger)

	calSvc := calibration.NewService(store, calibration.Handles{
		Steering: steering, CamPan: camPan, CamTilt: camTilt, Left: left, Right: right,
	}, logger)

	ultrasonic, battery, led, err := buildSensors(cfg, mock, logger)
	if err != nil {
		logger.Errorf("build sensors: %v", err)
		os.Exit(1)
	}
	if led != nil {
		led.Start()
	}

	ap := autopilot.New(coordinator, ultrasonic, logger)

	d := dispatcher.New(dispatcher.Config{
		Coordinator: coordinator,
		Calibration: calSvc,
		CamPan:      camPan,
		CamTilt:     camTilt,
		Ultrasonic:  ultrasonic,
		Battery:     battery,
		LED:         led,
		Autopilot:   ap,
		MaxSpeed:    100,
		HWConfig:    cfg,
		Logger:      logger,
	})
	d.Start()
	defer d.Stop()

	if brokerURL := os.Getenv("ROVERD_MQTT_URL"); brokerURL != "" {
		exp, err := telemetry.Connect(telemetry.Config{
			BrokerURL: brokerURL,
			ClientID:  envOr("ROVERD_MQTT_CLIENT_ID", "roverd"),
			Topic:     envOr("ROVERD_MQTT_TOPIC", "rover/state"),
			Username:  os.Getenv("ROVERD_MQTT_USER"),
			Password:  os.Getenv("ROVERD_MQTT_PASS"),
		}, logger)
		if err != nil {
			logger.Warnf("telemetry disabled: %v", err)
		} else {
			exp.Run(d)
			defer exp.Stop()
		}
	}

	// The HTTP/WebSocket transport (out of scope) would Submit commands
	// and Subscribe for broadcasts here. Block until terminated so the
	// supervisors and dispatcher keep running.
	select {}
}

// buildActuators opens the PWM driver(s) and constructs every
// configured servo and motor, choosing real periph.io-backed bus
// handles or the in-memory mock per ROBOT_HAT_MOCK_SMBUS.
func buildActuators(cfg hal.HardwareConfig, mock bool, logger logging.Logger) (steering, camPan, camTilt hal.Servo, left, right hal.Motor, driver *pwm.Driver, err error) {
	var i2cDev bus.I2C
	if mock {
		i2cDev = bus.NewMockI2C()
	} else {
		i2cDev, err = bus.OpenI2C(cfg.Driver.Bus, uint16(cfg.Driver.Address))
		if err != nil {
			return nil, nil, nil, nil, nil, nil, err
		}
	}

	driver, err = pwm.Open(i2cDev, uint16(cfg.Driver.Address), logger)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}

	gpioFor := func(name string) (bus.GPIO, error) {
		if name == "" {
			return nil, nil
		}
		if mock {
			return bus.NewMockGPIO(name), nil
		}
		return bus.OpenGPIO(name)
	}

	if cfg.SteeringServo != nil {
		steering = hal.NewServo(driver, *cfg.SteeringServo)
	}
	if cfg.CamPanServo != nil {
		camPan = hal.NewServo(driver, *cfg.CamPanServo)
	}
	if cfg.CamTiltServo != nil {
		camTilt = hal.NewServo(driver, *cfg.CamTiltServo)
	}

	if cfg.LeftMotor != nil {
		left, err = buildMotor(driver, gpioFor, *cfg.LeftMotor)
		if err != nil {
			return nil, nil, nil, nil, nil, nil, err
		}
	}
	if cfg.RightMotor != nil {
		right, err = buildMotor(driver, gpioFor, *cfg.RightMotor)
		if err != nil {
			return nil, nil, nil, nil, nil, nil, err
		}
	}

	return steering, camPan, camTilt, left, right, driver, nil
}

func buildMotor(driver *pwm.Driver, gpioFor func(string) (bus.GPIO, error), cfg hal.MotorConfig) (hal.Motor, error) {
	switch cfg.Kind {
	case hal.MotorGPIODC:
		fwd, err := gpioFor(cfg.ForwardPin)
		if err != nil {
			return nil, err
		}
		bwd, err := gpioFor(cfg.BackwardPin)
		if err != nil {
			return nil, err
		}
		en, err := gpioFor(cfg.EnablePin)
		if err != nil {
			return nil, err
		}
		return hal.NewGPIODCMotor(fwd, bwd, en, cfg), nil
	case hal.MotorPhaseEnable:
		phase, err := gpioFor(cfg.PhasePin)
		if err != nil {
			return nil, err
		}
		return hal.NewPhaseEnableMotor(phase, driver, cfg.Channel, cfg), nil
	default:
		dirPin, err := gpioFor(cfg.DirPin)
		if err != nil {
			return nil, err
		}
		return hal.NewI2CMotor(driver, dirPin, cfg), nil
	}
}

// buildSensors constructs the three sensor supervisors named in cfg,
// substituting mock GPIO/ADC backends when ROBOT_HAT_MOCK_SMBUS is set.
func buildSensors(cfg hal.HardwareConfig, mock bool, logger logging.Logger) (*sensors.Ultrasonic, *sensors.Battery, *sensors.LED, error) {
	var ultrasonic *sensors.Ultrasonic
	if cfg.Ultrasonic != nil {
		var reader sensors.UltrasonicReader
		if mock {
			reader = sensors.NewGPIOUltrasonicReader(bus.NewMockGPIO("trig"), bus.NewMockGPIO("echo"))
		} else {
			trig, err := bus.OpenGPIO(cfg.Ultrasonic.TrigPin)
			if err != nil {
				return nil, nil, nil, err
			}
			echo, err := bus.OpenGPIOIn(cfg.Ultrasonic.EchoPin)
			if err != nil {
				return nil, nil, nil, err
			}
			reader = sensors.NewGPIOUltrasonicReader(trig, echo)
		}
		ultrasonic = sensors.NewUltrasonic(reader,
			secondsToDuration(cfg.Ultrasonic.Interval),
			secondsToDuration(cfg.Ultrasonic.Timeout),
			logger)
	}

	var battery *sensors.Battery
	if cfg.Battery != nil {
		var reader sensors.ADCReader
		if mock {
			rate := 0.01
			if v := os.Getenv("ROBOT_HAT_DISCHARGE_RATE"); v != "" {
				if n, err := strconv.Atoi(v); err == nil && n >= 1 {
					rate = float64(n) * 0.01
				}
			}
			reader = sensors.NewMockADCReader(cfg.Battery.VFull, rate)
		} else {
			logger.Warnf("battery %d: real ADC reader wiring is board-specific and not provided here", cfg.Battery.Channel)
		}
		if reader != nil {
			battery = sensors.NewBattery(reader, sensors.BatteryThresholds{
				VMin: cfg.Battery.VMin, VDanger: cfg.Battery.VDanger, VWarn: cfg.Battery.VWarn, VFull: cfg.Battery.VFull,
			}, secondsToDuration(cfg.Battery.CacheSeconds), secondsToDuration(cfg.Battery.AutoMeasureSeconds), logger)
		}
	}

	var led *sensors.LED
	if cfg.LED != nil {
		var pin bus.GPIO
		var err error
		if mock {
			pin = bus.NewMockGPIO(cfg.LED.Pin)
		} else {
			pin, err = bus.OpenGPIO(cfg.LED.Pin)
		}
		if err != nil {
			return nil, nil, nil, err
		}
		led = sensors.NewLED(pin, secondsToDuration(cfg.LED.Interval), logger)
	}

	return ultrasonic, battery, led, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
