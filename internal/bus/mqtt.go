// internal/bus/mqtt.go
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// MQTTConfig is the broker connection config.
type MQTTConfig struct {
	URL       string
	ClientID  string
	Username  string
	Password  string
	QoS       byte
	KeepAlive uint16
}

// MQTT is a Bus over an external broker. It reconnects on its own and
// re-subscribes every time the connection comes up.
type MQTT struct {
	*router
	cfg MQTTConfig
	log *slog.Logger

	mu sync.Mutex
	cm *autopaho.ConnectionManager
}

var _ Bus = (*MQTT)(nil)

// NewMQTT validates cfg. Nothing connects until Start.
func NewMQTT(cfg MQTTConfig, log *slog.Logger) (*MQTT, error) {
	if cfg.URL == "" {
		return nil, errors.New("bus: mqtt url required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("bus: mqtt client id required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("bus: invalid qos %d", cfg.QoS)
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 20
	}
	if log == nil {
		log = slog.Default()
	}
	return &MQTT{router: newRouter(log), cfg: cfg, log: log}, nil
}

// Start begins connecting. The connection manager keeps retrying until ctx is done.
func (m *MQTT) Start(ctx context.Context) error {
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return fmt.Errorf("bus: parse url: %w", err)
	}

	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     m.cfg.KeepAlive,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         0,
		ConnectUsername:               m.cfg.Username,
		ConnectPassword:               []byte(m.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			m.log.Info("mqtt connection up", "url", m.cfg.URL)
			m.subscribe(ctx, cm)
		},
		OnConnectError: func(err error) {
			m.log.Warn("mqtt connect failed", "err", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: m.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					m.route(pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
			OnClientError: func(err error) {
				m.log.Warn("mqtt client error", "err", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.Properties != nil {
					m.log.Warn("mqtt server disconnect", "reason", d.Properties.ReasonString)
				} else {
					m.log.Warn("mqtt server disconnect", "code", d.ReasonCode)
				}
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return fmt.Errorf("bus: mqtt connect: %w", err)
	}

	m.mu.Lock()
	m.cm = cm
	m.mu.Unlock()
	return nil
}

func (m *MQTT) subscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	topics := m.topics()
	if len(topics) == 0 {
		return
	}
	subs := make([]paho.SubscribeOptions, 0, len(topics))
	for _, t := range topics {
		subs = append(subs, paho.SubscribeOptions{Topic: t, QoS: m.cfg.QoS})
	}
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs}); err != nil {
		m.log.Error("mqtt subscribe failed", "err", err)
		return
	}
	m.log.Info("mqtt subscribed", "topics", len(subs))
}

// AwaitConnection blocks until the first connection is up or ctx is done.
func (m *MQTT) AwaitConnection(ctx context.Context) error {
	cm := m.manager()
	if cm == nil {
		return errors.New("bus: mqtt not started")
	}
	return cm.AwaitConnection(ctx)
}

// Publish sends one message. It fails while the connection is down.
func (m *MQTT) Publish(ctx context.Context, topic string, payload []byte) error {
	cm := m.manager()
	if cm == nil {
		return errors.New("bus: mqtt not started")
	}
	_, err := cm.Publish(ctx, &paho.Publish{
		QoS:     m.cfg.QoS,
		Topic:   topic,
		Payload: payload,
	})
	return err
}

// Close disconnects cleanly.
func (m *MQTT) Close() error {
	cm := m.manager()
	if cm == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return cm.Disconnect(ctx)
}

func (m *MQTT) manager() *autopaho.ConnectionManager {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cm
}
