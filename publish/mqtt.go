// Package publish forwards decoded register values to an MQTT broker.
package publish

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/arloliu/go-converse/device"
	"github.com/arloliu/go-converse/logger"
	"github.com/arloliu/go-converse/register"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"

	DefaultBaseTopic      = "convpoll"
	DefaultPublishTimeout = 2 * time.Second
)

// MQTTConfig configures the MQTT publisher.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	Broker   string
	ClientID string
	Username string
	Password string
	// BaseTopic prefixes every topic; values go to <base>/<device>/<register>.
	BaseTopic      string
	QoS            byte
	Retain         bool
	PublishTimeout time.Duration
}

// Publisher is the part of mqtt.Client used to publish values.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// MQTT publishes register values. It implements register.Consumer through
// ForDevice.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
	pub    Publisher
	logger logger.Logger

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewMQTT creates a publisher with a paho client. Call Connect before use.
func NewMQTT(cfg MQTTConfig, l logger.Logger) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errors.New("publish: broker is required")
	}
	cfg = withDefaults(cfg)
	if l == nil {
		l = logger.GetLogger()
	}

	m := &MQTT{cfg: cfg, logger: l.With("component", "mqtt")}
	m.client = mqtt.NewClient(m.clientOptions())
	m.pub = m.client

	return m, nil
}

// NewMQTTWithPublisher creates a publisher over an existing Publisher.
// Connect and Close are no-ops for it.
func NewMQTTWithPublisher(cfg MQTTConfig, pub Publisher, l logger.Logger) *MQTT {
	if l == nil {
		l = logger.GetLogger()
	}

	return &MQTT{cfg: withDefaults(cfg), pub: pub, logger: l.With("component", "mqtt")}
}

func withDefaults(cfg MQTTConfig) MQTTConfig {
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = DefaultBaseTopic
	}
	cfg.BaseTopic = strings.TrimSuffix(cfg.BaseTopic, "/")
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("convpoll_%d", rand.IntN(1000))
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}

	return cfg
}

func (m *MQTT) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.cfg.Broker)
	opts.SetClientID(m.cfg.ClientID)
	if m.cfg.Username != "" && m.cfg.Password != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetWill(m.BridgeStateTopic(), PayloadOffline, 0, true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		m.logger.Info("connected to broker", "broker", m.cfg.Broker)
		m.publish(m.BridgeStateTopic(), PayloadOnline, true)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.logger.Warn("broker connection lost", "broker", m.cfg.Broker, "error", err)
	})

	return opts
}

// Connect connects to the broker and waits up to timeout.
func (m *MQTT) Connect(timeout time.Duration) error {
	if m.client == nil {
		return nil
	}

	token := m.client.Connect()
	if !token.WaitTimeout(timeout) {
		return errors.New("publish: MQTT connect timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: MQTT connect: %w", err)
	}

	return nil
}

// Close publishes the offline state and disconnects.
func (m *MQTT) Close() {
	if m.client == nil || !m.client.IsConnected() {
		return
	}

	token := m.client.Publish(m.BridgeStateTopic(), 0, true, PayloadOffline)
	token.WaitTimeout(m.cfg.PublishTimeout)
	m.client.Disconnect(uint(m.cfg.PublishTimeout.Milliseconds()))
}

// BridgeStateTopic is the retained online/offline topic.
func (m *MQTT) BridgeStateTopic() string {
	return m.cfg.BaseTopic + "/bridge/state"
}

// Topic returns the topic of a device register.
func (m *MQTT) Topic(deviceName, registerName string) string {
	return m.cfg.BaseTopic + "/" + topicLevel(deviceName) + "/" + topicLevel(registerName)
}

// topicLevel lower-cases name and replaces characters MQTT treats specially.
func topicLevel(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', ' ':
			return '_'
		}

		return r
	}, strings.ToLower(strings.TrimSpace(name)))
}

// Published returns the number of completed publishes.
func (m *MQTT) Published() uint64 { return m.published.Load() }

// Failed returns the number of failed or timed out publishes.
func (m *MQTT) Failed() uint64 { return m.failed.Load() }

// ForDevice returns a register.Consumer publishing under the device's topics.
func (m *MQTT) ForDevice(deviceName string) register.Consumer {
	return register.ConsumerFunc(func(reg register.Register, v register.Value) {
		m.publish(m.Topic(deviceName, reg.Name()), v.String(), m.cfg.Retain)
	})
}

// PublishSnapshot publishes every value of a snapshot.
func (m *MQTT) PublishSnapshot(s *device.Snapshot) {
	for name, v := range s.Values {
		m.publish(m.Topic(s.Device, name), v.String(), m.cfg.Retain)
	}
}

// publish sends payload without blocking the caller; the outcome is logged.
func (m *MQTT) publish(topic, payload string, retain bool) {
	token := m.pub.Publish(topic, m.cfg.QoS, retain, payload)
	go func() {
		if !token.WaitTimeout(m.cfg.PublishTimeout) {
			m.failed.Add(1)
			m.logger.Warn("MQTT publish timed out", "topic", topic)

			return
		}
		if err := token.Error(); err != nil {
			m.failed.Add(1)
			m.logger.Warn("MQTT publish failed", "topic", topic, "error", err)

			return
		}
		m.published.Add(1)
	}()
}
