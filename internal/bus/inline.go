// internal/bus/inline.go
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
)

// Inline is a Bus on an in-process broker. Messages never leave the process
// unless the broker also has a listener.
type Inline struct {
	*router
	server *mochi.Server
	qos    byte

	mu   sync.Mutex
	subs []inlineSub
}

type inlineSub struct {
	topic string
	id    int
}

var _ Bus = (*Inline)(nil)

// NewInline builds a bus on broker.
func NewInline(broker *Broker, qos byte, log *slog.Logger) (*Inline, error) {
	if broker == nil {
		return nil, errors.New("bus: inline broker required")
	}
	return &Inline{router: newRouter(log), server: broker.Server(), qos: qos}, nil
}

// Start subscribes every registered topic on the inline client.
func (b *Inline) Start(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, topic := range b.topics() {
		id := i + 1
		err := b.server.Subscribe(topic, id, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
			b.route(pk.TopicName, pk.Payload)
		})
		if err != nil {
			return fmt.Errorf("bus: inline subscribe %s: %w", topic, err)
		}
		b.subs = append(b.subs, inlineSub{topic: topic, id: id})
	}
	return nil
}

// Publish delivers to local and (via listener) remote subscribers.
func (b *Inline) Publish(_ context.Context, topic string, payload []byte) error {
	return b.server.Publish(topic, payload, false, b.qos)
}

// Close removes the inline subscriptions. The broker is closed by its owner.
func (b *Inline) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for _, sub := range b.subs {
		if err := b.server.Unsubscribe(sub.topic, sub.id); err != nil {
			errs = append(errs, err)
		}
	}
	b.subs = nil
	return errors.Join(errs...)
}
