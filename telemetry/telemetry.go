// Package telemetry mirrors every dispatcher broadcast onto an MQTT
// topic, grounded on the Sioux-Steel-Solutions-raptor-core reference's
// paho.mqtt.golang publish loop: connect with auto-reconnect, marshal
// each outbound frame to JSON, publish at QoS 1 without retaining.
// It is a pure observer of the dispatcher's Subscribe() feed; it never
// issues commands back.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"rovercore/dispatcher"
)

// Config names the broker and topic this exporter publishes to.
type Config struct {
	BrokerURL string
	ClientID  string
	Topic     string
	Username  string
	Password  string
}

// Exporter owns one MQTT client and forwards dispatcher Events to
// <Topic>/<event type> until Stop is called.
type Exporter struct {
	client mqtt.Client
	topic  string
	logger logging.Logger

	unsubscribe func()
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// Connect dials the broker with auto-reconnect enabled, matching the
// reference's SetAutoReconnect/SetConnectRetry options.
func Connect(cfg Config, logger logging.Logger) (*Exporter, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(10*time.Second) || tok.Error() != nil {
		return nil, errors.Wrapf(tok.Error(), "mqtt connect %s", cfg.BrokerURL)
	}

	return &Exporter{client: client, topic: cfg.Topic, logger: logger}, nil
}

// Run subscribes to src and republishes every event as JSON on
// <Topic>/<event type> at QoS 1, unretained, until Stop is called.
func (e *Exporter) Run(src *dispatcher.Dispatcher) {
	sub, unsubscribe := src.Subscribe()
	e.unsubscribe = unsubscribe
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	go e.loop(sub, e.stopCh, e.doneCh)
}

func (e *Exporter) loop(sub <-chan dispatcher.Event, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				if e.logger != nil {
					e.logger.Warnf("telemetry: marshal event %q: %v", ev.Type, err)
				}
				continue
			}
			topic := fmt.Sprintf("%s/%s", e.topic, ev.Type)
			e.client.Publish(topic, 1, false, b)
		}
	}
}

// Stop unsubscribes from the dispatcher, joins the forwarding
// goroutine, then disconnects the MQTT client.
func (e *Exporter) Stop() {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	if e.stopCh != nil {
		close(e.stopCh)
		select {
		case <-e.doneCh:
		case <-time.After(10 * time.Second):
			if e.logger != nil {
				e.logger.Warnf("telemetry forwarder did not stop within 10s")
			}
		}
	}
	e.client.Disconnect(250)
}
