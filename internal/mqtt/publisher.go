// internal/mqtt/publisher.go
package mqtt

import (
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tamzrod/cnc-monitor/internal/config"
	"github.com/tamzrod/cnc-monitor/internal/state"
)

// Publisher pushes machine snapshots to an MQTT broker as JSON.
// It implements the poller's Sink contract.
type Publisher struct {
	client paho.Client
	topic  string
}

// New connects to the broker. The paho client reconnects on its own;
// publishes during an outage are dropped, not queued.
func New(cfg config.MQTTConfig) (*Publisher, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	return &Publisher{client: client, topic: cfg.Topic}, nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// Record publishes one snapshot at QoS 0.
func (p *Publisher) Record(s state.MachineState) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt: not connected")
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("mqtt marshal: %w", err)
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt publish: %w", token.Error())
	}
	return nil
}
