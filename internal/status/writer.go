// internal/status/writer.go
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Sink delivers one message to the bus.
type Sink interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Writer publishes snapshots to a status topic. It publishes the full
// snapshot on the first call, after any failure and after Reassert;
// otherwise only when the health fields changed.
type Writer struct {
	sink  Sink
	topic string

	needFull bool
	last     Snapshot
}

// NewWriter builds a writer. The first WriteStatus always publishes.
func NewWriter(sink Sink, topic string) (*Writer, error) {
	if sink == nil {
		return nil, errors.New("status writer: sink required")
	}
	if topic == "" {
		return nil, errors.New("status writer: topic required")
	}
	return &Writer{
		sink:     sink,
		topic:    topic,
		needFull: true,
		last:     Snapshot{Health: HealthUnknown},
	}, nil
}

// Reassert forces the next WriteStatus to publish.
func (w *Writer) Reassert() {
	w.needFull = true
}

// WriteStatus publishes s if required. It reports whether a message was sent.
func (w *Writer) WriteStatus(ctx context.Context, s Snapshot) (bool, error) {
	if !w.needFull && sameHealth(w.last, s) {
		return false, nil
	}

	b, err := Encode(s)
	if err != nil {
		return false, fmt.Errorf("status writer: encode: %w", err)
	}
	if err := w.sink.Publish(ctx, w.topic, b); err != nil {
		w.needFull = true
		return false, fmt.Errorf("status writer: publish: %w", err)
	}

	w.needFull = false
	w.last = s
	return true, nil
}

// Reporter ticks a Collector once per second and feeds a Writer.
type Reporter struct {
	collector *Collector
	writer    *Writer
	interval  time.Duration
	log       *slog.Logger
}

// NewReporter builds a reporter. interval is the full re-publish period.
func NewReporter(c *Collector, w *Writer, interval time.Duration, log *slog.Logger) *Reporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{collector: c, writer: w, interval: interval, log: log}
}

// Run reports until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	full := time.NewTicker(r.interval)
	defer full.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-full.C:
			r.writer.Reassert()
		case <-tick.C:
			r.collector.Tick()
			if _, err := r.writer.WriteStatus(ctx, r.collector.Snapshot()); err != nil {
				r.log.Warn("status publish failed", "err", err)
			}
		}
	}
}
