// internal/bus/broker.go
package bus

import (
	"fmt"
	"log/slog"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

const disconnectTimeout = 2 * time.Second

// BrokerConfig is the embedded broker config.
type BrokerConfig struct {
	// Listen is the TCP address for external clients. Empty means in-process only.
	Listen string
	// Username and Password, when set, are required of external clients.
	// Local connections are always allowed.
	Username string
	Password string
}

// Broker is an embedded MQTT broker with the inline client enabled,
// so the bridge can publish and subscribe without a network hop.
type Broker struct {
	server *mochi.Server
	cfg    BrokerConfig
	log    *slog.Logger
}

// NewBroker creates the broker and its hooks and listener. Start serves it.
func NewBroker(cfg BrokerConfig, log *slog.Logger) (*Broker, error) {
	if log == nil {
		log = slog.Default()
	}
	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       log,
	})

	var err error
	if cfg.Username == "" {
		err = server.AddHook(new(auth.AllowHook), nil)
	} else {
		err = server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger(cfg)})
	}
	if err != nil {
		return nil, fmt.Errorf("bus: broker auth hook: %w", err)
	}

	if cfg.Listen != "" {
		tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: cfg.Listen})
		if err := server.AddListener(tcp); err != nil {
			return nil, fmt.Errorf("bus: broker listener %s: %w", cfg.Listen, err)
		}
	}

	return &Broker{server: server, cfg: cfg, log: log}, nil
}

// ledger admits the configured user and local connections. ACLs allow all.
func ledger(cfg BrokerConfig) *auth.Ledger {
	return &auth.Ledger{
		Auth: auth.AuthRules{
			{Username: auth.RString(cfg.Username), Password: auth.RString(cfg.Password), Allow: true},
			{Remote: "127.0.0.1:*", Allow: true},
			{Remote: "localhost:*", Allow: true},
		},
	}
}

// Server exposes the underlying server for the inline bus.
func (b *Broker) Server() *mochi.Server {
	return b.server
}

// Start serves the broker in the background.
func (b *Broker) Start() error {
	if err := b.server.Serve(); err != nil {
		return fmt.Errorf("bus: broker serve: %w", err)
	}
	if b.cfg.Listen != "" {
		b.log.Info("embedded broker listening", "addr", b.cfg.Listen)
	}
	return nil
}

// Close stops the broker and disconnects every client.
func (b *Broker) Close() error {
	return b.server.Close()
}
