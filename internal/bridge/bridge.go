// internal/bridge/bridge.go
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/uarm-bridge/internal/api"
	"github.com/tamzrod/uarm-bridge/internal/bus"
	"github.com/tamzrod/uarm-bridge/internal/command"
	cfg "github.com/tamzrod/uarm-bridge/internal/config"
	"github.com/tamzrod/uarm-bridge/internal/device"
	"github.com/tamzrod/uarm-bridge/internal/dispatcher"
	"github.com/tamzrod/uarm-bridge/internal/publisher"
	"github.com/tamzrod/uarm-bridge/internal/queue"
	"github.com/tamzrod/uarm-bridge/internal/settings"
	"github.com/tamzrod/uarm-bridge/internal/shutdown"
	"github.com/tamzrod/uarm-bridge/internal/status"
	"github.com/tamzrod/uarm-bridge/internal/telemetry"
)

var (
	// ErrShutdownTimeout is returned by Run when a loop did not stop in time.
	ErrShutdownTimeout = errors.New("bridge: shutdown timed out")
	// ErrBusUnavailable is returned by Run when the bus never connected.
	ErrBusUnavailable = errors.New("bridge: bus unavailable")
)

// connectionWaiter is a bus that connects in the background.
type connectionWaiter interface {
	AwaitConnection(ctx context.Context) error
}

// Bridge owns the queues, the loops and the device for one arm.
type Bridge struct {
	cfg *cfg.Config
	log *slog.Logger

	adapter device.Adapter
	bus     bus.Bus
	broker  *bus.Broker
	topics  bus.Topics

	commands *queue.Queue[command.Command]
	results  *queue.Queue[telemetry.Result]
	gate     *dispatcher.Gate

	polling   *settings.Polling
	params    *settings.MemoryStore // nil when a params file is configured
	refresher *settings.Refresher

	dispatcher  *dispatcher.Dispatcher
	publisher   *publisher.Publisher
	coordinator *shutdown.Coordinator
	collector   *status.Collector
	reporter    *status.Reporter
	api         *api.Server
}

// Build opens the device and the bus from normalized configuration and
// wires the bridge. A device that cannot be opened is a startup failure.
func Build(c *cfg.Config, log *slog.Logger) (*Bridge, error) {
	adapter, err := OpenAdapter(c.Device, log.With("component", "device"))
	if err != nil {
		return nil, fmt.Errorf("bridge: open device: %w", err)
	}

	b, broker, err := BuildBus(c.Bus, log)
	if err != nil {
		adapter.Close()
		return nil, err
	}

	br, err := New(c, adapter, b, broker, log)
	if err != nil {
		adapter.Close()
		return nil, err
	}
	return br, nil
}

// New wires a bridge around an open adapter and an unstarted bus.
// broker may be nil. c must be normalized.
func New(c *cfg.Config, adapter device.Adapter, b bus.Bus, broker *bus.Broker, log *slog.Logger) (*Bridge, error) {
	if c == nil || adapter == nil || b == nil {
		return nil, errors.New("bridge: config, adapter and bus required")
	}
	if log == nil {
		log = slog.Default()
	}

	br := &Bridge{
		cfg:      c,
		log:      log.With("component", "bridge"),
		adapter:  adapter,
		bus:      b,
		broker:   broker,
		topics:   bus.Topics{Prefix: c.Bus.TopicPrefix},
		commands: queue.New[command.Command]("commands"),
		results:  queue.New[telemetry.Result]("telemetry"),
		gate:     &dispatcher.Gate{},
	}

	// ---- settings ----
	initial := PollingParams(c.Polling)
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	br.polling = settings.NewPolling(initial)

	var store settings.Store
	if c.Polling.ParamsFile != "" {
		store = settings.FileStore{Path: c.Polling.ParamsFile}
	} else {
		br.params = settings.NewMemoryStore(initial)
		store = br.params
	}
	br.refresher = settings.NewRefresher(store, br.polling, ms(c.Polling.RefreshMs), log.With("component", "settings"))

	// ---- loops ----
	br.coordinator = shutdown.New(
		shutdown.Config{
			RetryInterval: ms(c.Shutdown.RetryMs),
			Timeout:       ms(c.Shutdown.TimeoutMs),
		},
		br.commands, br.results, adapter, log.With("component", "shutdown"),
	)

	d, err := dispatcher.Build(c, adapter, br.commands, br.results, br.polling, br.gate, log.With("component", "dispatcher"))
	if err != nil {
		return nil, err
	}
	br.dispatcher = d

	p, err := publisher.New(
		publisher.Config{
			Topics:       publisherTopics(br.topics),
			IdleInterval: ms(c.Publisher.IdleMs),
		},
		br.results, b, br.coordinator, log.With("component", "publisher"),
	)
	if err != nil {
		return nil, err
	}
	br.publisher = p

	br.coordinator.Watch("dispatcher", d.Done())
	br.coordinator.Watch("publisher", p.Done())

	// ---- status ----
	br.collector = status.NewCollector(d, p, br.commands, br.results, br.polling)
	sw, err := status.NewWriter(b, br.topics.Name(bus.Status))
	if err != nil {
		return nil, err
	}
	br.reporter = status.NewReporter(br.collector, sw, ms(c.Bus.StatusMs), log.With("component", "status"))

	if c.HTTP.Listen != "" {
		srv, err := api.New(c.HTTP.Listen, br, br.collector, log.With("component", "http"))
		if err != nil {
			return nil, err
		}
		br.api = srv
	}

	return br, nil
}

// Gate exposes the polling pause flags.
func (b *Bridge) Gate() *dispatcher.Gate { return b.gate }

// Snapshot returns the last collected runtime status.
func (b *Bridge) Snapshot() status.Snapshot { return b.collector.Snapshot() }

// Coordinator exposes the shutdown protocol, e.g. to terminate from a signal.
func (b *Bridge) Coordinator() *shutdown.Coordinator { return b.coordinator }

func (b *Bridge) shuttingDown() bool {
	select {
	case <-b.coordinator.Triggered():
		return true
	default:
		return false
	}
}

// Run starts every loop and blocks until the shutdown protocol completes.
// Cancelling ctx starts the protocol. A loop that stopped for a fault is
// reported as the returned error.
func (b *Bridge) Run(ctx context.Context) error {
	if b.broker != nil {
		if err := b.broker.Start(); err != nil {
			b.adapter.Close()
			return err
		}
		defer b.broker.Close()
	}

	// The bus must outlive ctx: the publisher drains after cancellation.
	busCtx, cancelBus := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBus()

	b.registerHandlers()
	if err := b.bus.Start(busCtx); err != nil {
		b.adapter.Close()
		return fmt.Errorf("bridge: start bus: %w", err)
	}
	defer b.bus.Close()

	if err := b.awaitBus(ctx); err != nil {
		b.adapter.Close()
		return err
	}

	loopCtx, cancelLoops := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelLoops()

	// seed the self-sustaining poll cycle
	b.commands.Push(command.Poll{}, queue.PriorityNormal)

	// ---- core loops ----
	// each loop records its own exit error; Run reports both
	var (
		core            sync.WaitGroup
		dispErr, pubErr error
	)
	core.Add(2)
	go func() {
		defer core.Done()
		dispErr = b.dispatcher.Run(loopCtx)
		b.coordinator.Terminate(exitReason("dispatcher", dispErr))
	}()
	go func() {
		defer core.Done()
		pubErr = b.publisher.Run(loopCtx, b.coordinator.Stopped())
		b.coordinator.Terminate(exitReason("publisher", pubErr))
	}()

	// ---- auxiliary loops ----
	aux, auxCtx := errgroup.WithContext(loopCtx)
	aux.Go(func() error {
		b.refresher.Run(auxCtx)
		return nil
	})
	aux.Go(func() error {
		b.reporter.Run(auxCtx)
		return nil
	})
	if b.api != nil {
		aux.Go(func() error {
			if err := b.api.Start(); err != nil {
				b.coordinator.Terminate(exitReason("http", err))
				return err
			}
			return nil
		})
		aux.Go(func() error {
			<-auxCtx.Done()
			return b.api.Shutdown(context.Background())
		})
	}

	b.log.Info("bridge running", "topics", b.topics.Prefix)

	select {
	case <-ctx.Done():
		b.coordinator.Terminate("context cancelled")
	case <-b.coordinator.Triggered():
	}
	<-b.coordinator.Stopped()
	cancelLoops()

	if err := aux.Wait(); err != nil {
		b.log.Warn("auxiliary loop failed", "err", err)
	}

	if b.coordinator.TimedOut() {
		b.log.Error("bridge stopped with loops still running", "reason", b.coordinator.Reason())
		return fmt.Errorf("%w: %s", ErrShutdownTimeout, b.coordinator.Reason())
	}

	core.Wait()
	b.log.Info("bridge stopped", "reason", b.coordinator.Reason())
	return errors.Join(dispErr, pubErr)
}

// awaitBus holds startup until a background-connecting bus is up.
func (b *Bridge) awaitBus(ctx context.Context) error {
	w, ok := b.bus.(connectionWaiter)
	if !ok {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, ms(b.cfg.Bus.ConnectMs))
	defer cancel()
	if err := w.AwaitConnection(wctx); err != nil {
		return fmt.Errorf("%w: %w", ErrBusUnavailable, err)
	}
	return nil
}

func exitReason(loop string, err error) string {
	if err == nil {
		return loop + " stopped"
	}
	return loop + ": " + err.Error()
}
