package publish

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ironsheep/gauge-reader/internal/config"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttQuiesceMillis  = 250
)

// MQTT publishes to a broker through a paho client.
type MQTT struct {
	client mqtt.Client
	qos    byte
	retain bool
}

// NewMQTT connects to the broker in cfg. The connection is retried by the
// client in the background after the first successful connect.
func NewMQTT(ctx context.Context, cfg config.MQTTConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("Connected to MQTT broker %s:%d", cfg.Broker, cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s:%d: %w", cfg.Broker, cfg.Port, err)
	}
	return newMQTT(client, cfg), nil
}

func newMQTT(client mqtt.Client, cfg config.MQTTConfig) *MQTT {
	return &MQTT{client: client, qos: byte(cfg.QoS), retain: cfg.Retain}
}

// Publish implements Publisher.
func (m *MQTT) Publish(ctx context.Context, topic string, payload []byte) error {
	if !m.client.IsConnectionOpen() {
		return fmt.Errorf("publish to %s: MQTT not connected", topic)
	}
	if err := wait(ctx, m.client.Publish(topic, m.qos, m.retain, payload)); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.client.Disconnect(mqttQuiesceMillis)
	return nil
}

// wait blocks until the token completes or ctx ends.
func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return errors.Join(errors.New("MQTT operation abandoned"), ctx.Err())
	}
}
