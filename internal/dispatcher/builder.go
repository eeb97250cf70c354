// internal/dispatcher/builder.go
package dispatcher

import (
	"log/slog"
	"time"

	"github.com/tamzrod/uarm-bridge/internal/command"
	cfg "github.com/tamzrod/uarm-bridge/internal/config"
	"github.com/tamzrod/uarm-bridge/internal/device"
	"github.com/tamzrod/uarm-bridge/internal/queue"
	"github.com/tamzrod/uarm-bridge/internal/settings"
	"github.com/tamzrod/uarm-bridge/internal/telemetry"
)

// Build constructs a Dispatcher from normalized configuration.
// The adapter is already open; the dispatcher never closes it.
// No retries, no loops, no semantics.
func Build(
	c *cfg.Config,
	adapter device.Adapter,
	commands *queue.Queue[command.Command],
	results *queue.Queue[telemetry.Result],
	polling *settings.Polling,
	gate *Gate,
	log *slog.Logger,
) (*Dispatcher, error) {
	return New(
		Config{
			SettleInterval: time.Duration(c.Dispatcher.SettleMs) * time.Millisecond,
			PollRate:       c.Polling.Hz,
		},
		adapter,
		commands,
		results,
		polling,
		gate,
		log,
	)
}
