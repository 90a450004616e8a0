package publish

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-converse/device"
	"github.com/arloliu/go-converse/logger"
	"github.com/arloliu/go-converse/register"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error, completed bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if completed {
		close(t.done)
	}

	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done

	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type message struct {
	topic   string
	qos     byte
	retain  bool
	payload string
}

type fakePublisher struct {
	mu    sync.Mutex
	sent  []message
	token func() mqtt.Token
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, message{topic, qos, retained, payload.(string)})
	if p.token != nil {
		return p.token()
	}

	return newToken(nil, true)
}

func (p *fakePublisher) messages() []message {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]message(nil), p.sent...)
}

func quietLogger() logger.Logger {
	return logger.NewSlogWriter(io.Discard, logger.ErrorLevel, false)
}

func TestTopic(t *testing.T) {
	m := NewMQTTWithPublisher(MQTTConfig{BaseTopic: "solar/"}, &fakePublisher{}, quietLogger())

	assert.Equal(t, "solar/inv1/power", m.Topic("inv1", "power"))
	assert.Equal(t, "solar/roof_west/ac_power", m.Topic(" Roof West ", "AC Power"))
	assert.Equal(t, "solar/a_b/c__", m.Topic("a/b", "c+#"))
	assert.Equal(t, "solar/bridge/state", m.BridgeStateTopic())

	m = NewMQTTWithPublisher(MQTTConfig{}, &fakePublisher{}, quietLogger())
	assert.Equal(t, "convpoll/inv1/power", m.Topic("inv1", "power"))
}

func TestForDevice(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMQTTWithPublisher(MQTTConfig{BaseTopic: "pv", QoS: 1, Retain: true}, pub, quietLogger())

	reg, err := register.NewNumber(register.Spec{
		Name:       "power",
		Addressing: register.MappedToRegisterData{Offset: 0},
	}, register.TypeUint16, register.WithLogger(quietLogger()))
	require.NoError(t, err)
	reg.SetConsumer(m.ForDevice("inv1"))

	_, err = reg.GetItemValue([]byte{0x01, 0xF4})
	require.NoError(t, err)

	msgs := pub.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, message{topic: "pv/inv1/power", qos: 1, retain: true, payload: "500"}, msgs[0])
	assert.Eventually(t, func() bool { return m.Published() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPublishSnapshot(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMQTTWithPublisher(MQTTConfig{BaseTopic: "pv"}, pub, quietLogger())

	m.PublishSnapshot(&device.Snapshot{
		Device: "inv1",
		Block:  "main",
		Values: map[string]register.Value{
			"power": register.NumberValue(1.5),
			"model": register.StringValue("FRONIUS IG 15"),
		},
	})

	got := map[string]string{}
	for _, msg := range pub.messages() {
		assert.False(t, msg.retain)
		got[msg.topic] = msg.payload
	}
	assert.Equal(t, map[string]string{
		"pv/inv1/power": "1.5",
		"pv/inv1/model": "FRONIUS IG 15",
	}, got)
}

func TestPublishFailures(t *testing.T) {
	pub := &fakePublisher{token: func() mqtt.Token { return newToken(errors.New("not connected"), true) }}
	m := NewMQTTWithPublisher(MQTTConfig{}, pub, quietLogger())

	m.PublishSnapshot(&device.Snapshot{Device: "d", Values: map[string]register.Value{"x": register.NumberValue(1)}})
	assert.Eventually(t, func() bool { return m.Failed() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, m.Published())

	pub.token = func() mqtt.Token { return newToken(nil, false) }
	m = NewMQTTWithPublisher(MQTTConfig{PublishTimeout: 10 * time.Millisecond}, pub, quietLogger())
	m.PublishSnapshot(&device.Snapshot{Device: "d", Values: map[string]register.Value{"x": register.NumberValue(1)}})
	assert.Eventually(t, func() bool { return m.Failed() == 1 }, time.Second, 5*time.Millisecond)
}

func TestNewMQTT(t *testing.T) {
	_, err := NewMQTT(MQTTConfig{}, nil)
	require.Error(t, err)

	m, err := NewMQTT(MQTTConfig{Broker: "tcp://127.0.0.1:1883", ClientID: "test"}, quietLogger())
	require.NoError(t, err)
	assert.False(t, m.client.IsConnected())
	assert.Equal(t, "convpoll/bridge/state", m.BridgeStateTopic())

	opts := m.clientOptions()
	assert.Equal(t, "test", opts.ClientID)
	assert.True(t, opts.WillEnabled)
	assert.True(t, opts.WillRetained)
	assert.Equal(t, "convpoll/bridge/state", opts.WillTopic)
	assert.Equal(t, []byte(PayloadOffline), opts.WillPayload)

	// Close on a client that never connected does nothing.
	m.Close()
}
