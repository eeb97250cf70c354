package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type recorder struct {
	mu  sync.Mutex
	got []string
}

func (r *recorder) handle(payload []byte) error {
	r.mu.Lock()
	r.got = append(r.got, string(payload))
	r.mu.Unlock()
	return nil
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func TestTopics_Name(t *testing.T) {
	topics := Topics{Prefix: DefaultPrefix}
	assert.Equal(t, "uarm_metal/string_write", topics.Name(StringWrite))
	assert.Equal(t, "uarm_metal/analog_inputs_read", topics.Name(AnalogRead))
}

func TestRouter_ExactMatchOnly(t *testing.T) {
	r := newRouter(discard)
	rec := &recorder{}
	r.Handle("a/b", rec.handle)
	r.Handle("a/err", func([]byte) error { return errors.New("bad payload") })

	r.route("a/b", []byte("1"))
	r.route("a/b/c", []byte("2"))
	r.route("a/err", []byte("3"))

	assert.Equal(t, []string{"1"}, rec.messages())
	assert.ElementsMatch(t, []string{"a/b", "a/err"}, r.topics())
}

func TestNewMQTT_Validation(t *testing.T) {
	_, err := NewMQTT(MQTTConfig{ClientID: "x"}, discard)
	assert.Error(t, err)
	_, err = NewMQTT(MQTTConfig{URL: "mqtt://localhost:1883"}, discard)
	assert.Error(t, err)
	_, err = NewMQTT(MQTTConfig{URL: "mqtt://localhost:1883", ClientID: "x", QoS: 3}, discard)
	assert.Error(t, err)

	m, err := NewMQTT(MQTTConfig{URL: "mqtt://localhost:1883", ClientID: "x"}, discard)
	require.NoError(t, err)
	assert.Error(t, m.Publish(context.Background(), "t", nil), "publish before start")
	assert.NoError(t, m.Close())
}

func TestInline_RoundTrip(t *testing.T) {
	broker, err := NewBroker(BrokerConfig{}, discard)
	require.NoError(t, err)
	require.NoError(t, broker.Start())
	defer broker.Close()

	b, err := NewInline(broker, 0, discard)
	require.NoError(t, err)

	topics := Topics{Prefix: "test/"}
	rec := &recorder{}
	b.Handle(topics.Name(StringWrite), rec.handle)
	require.NoError(t, b.Start(context.Background()))

	require.NoError(t, b.Publish(context.Background(), topics.Name(StringWrite), []byte("READ")))
	require.NoError(t, b.Publish(context.Background(), topics.Name(StringRead), []byte("ignored")))

	assert.Eventually(t, func() bool {
		return len(rec.messages()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"READ"}, rec.messages())

	require.NoError(t, b.Close())
}
