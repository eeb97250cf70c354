// internal/settings/refresher.go
package settings

import (
	"context"
	"log/slog"
	"time"
)

// DefaultRefreshInterval is how often the store is re-read.
const DefaultRefreshInterval = 500 * time.Millisecond

// Refresher copies Params from a Store into a Polling on a fixed interval.
// It is the only writer of the Polling it owns.
type Refresher struct {
	store    Store
	polling  *Polling
	interval time.Duration
	log      *slog.Logger
}

// NewRefresher builds a refresher. A non-positive interval selects the default.
func NewRefresher(store Store, polling *Polling, interval time.Duration, log *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{store: store, polling: polling, interval: interval, log: log}
}

// RefreshOnce loads and applies the store once.
// On error the previous values stay in effect.
func (r *Refresher) RefreshOnce() error {
	p, err := r.store.Load()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	r.polling.Apply(p)
	return nil
}

// Run refreshes until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.RefreshOnce(); err != nil {
			r.log.Warn("settings refresh failed, keeping previous values", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
