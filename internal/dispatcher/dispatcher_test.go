package dispatcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/uarm-bridge/internal/arm"
	"github.com/tamzrod/uarm-bridge/internal/command"
	"github.com/tamzrod/uarm-bridge/internal/device"
	"github.com/tamzrod/uarm-bridge/internal/device/sim"
	"github.com/tamzrod/uarm-bridge/internal/queue"
	"github.com/tamzrod/uarm-bridge/internal/settings"
	"github.com/tamzrod/uarm-bridge/internal/telemetry"
)

type harness struct {
	d        *Dispatcher
	arm      *sim.Arm
	commands *queue.Queue[command.Command]
	results  *queue.Queue[telemetry.Result]
	gate     *Gate
}

func newHarness(t *testing.T, cfg Config, params settings.Params) *harness {
	t.Helper()
	h := &harness{
		arm:      sim.New(),
		commands: queue.New[command.Command]("commands"),
		results:  queue.New[telemetry.Result]("telemetry"),
		gate:     &Gate{},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := New(cfg, h.arm, h.commands, h.results, settings.NewPolling(params), h.gate, log)
	require.NoError(t, err)
	h.d = d
	return h
}

func (h *harness) push(cmds ...command.Command) {
	for _, c := range cmds {
		h.commands.Push(c, queue.PriorityNormal)
	}
}

func (h *harness) run(t *testing.T) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.d.Run(ctx)
}

func (h *harness) drainResults() []telemetry.Result {
	return h.results.DrainAll()
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{}, sim.New(), nil, nil, settings.NewPolling(settings.Params{}), nil, nil)
	assert.Error(t, err)
}

func TestRun_WriteReenqueuesExactlyOnePoll(t *testing.T) {
	h := newHarness(t, Config{}, settings.Params{})
	h.push(command.Move{X: 1, Y: 2, Z: 3}, command.Shutdown{})

	require.NoError(t, h.run(t))

	left := h.commands.DrainAll()
	assert.Equal(t, []command.Command{command.Poll{}}, left)
	assert.Equal(t, StateStopped, h.d.State())
	assert.Equal(t, []string{sim.OpMove}, h.arm.Calls())
}

func TestRun_FailedWriteStillReenqueuesOnce(t *testing.T) {
	h := newHarness(t, Config{}, settings.Params{})
	h.arm.Fail(sim.OpMove, errors.New("out of reach"))
	h.push(command.Move{X: 999}, command.Shutdown{})

	require.NoError(t, h.run(t))

	assert.Equal(t, 1, h.commands.Len())
	assert.Equal(t, uint64(1), h.d.Stats().CommandErrors)
}

func TestRun_PausedGateSuppressesReenqueue(t *testing.T) {
	h := newHarness(t, Config{}, settings.Params{})
	h.gate.SetLoading(true)
	h.push(command.PumpOn{}, command.Shutdown{})

	require.NoError(t, h.run(t))

	assert.Equal(t, 0, h.commands.Len())
	assert.True(t, h.arm.Pump())
}

func TestRun_GateResumeRestartsPolling(t *testing.T) {
	h := newHarness(t, Config{}, settings.Params{Position: true})
	h.push(command.Poll{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- h.d.Run(ctx) }()

	require.Eventually(t, func() bool { return h.d.Stats().Polls > 0 }, time.Second, time.Millisecond)
	h.gate.SetLoading(true)
	time.Sleep(20 * time.Millisecond)
	before := h.d.Stats().Polls
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, before, h.d.Stats().Polls)
	assert.Equal(t, 0, h.commands.Len())

	h.gate.SetLoading(false)
	require.Eventually(t, func() bool { return h.d.Stats().Polls > before+2 }, time.Second, time.Millisecond)
	assert.LessOrEqual(t, h.commands.Len(), 1)

	// a second pause and resume still leaves a single cycle
	h.gate.SetPlayback(true)
	time.Sleep(20 * time.Millisecond)
	h.gate.SetPlayback(false)
	h.gate.SetLoading(false)
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, h.commands.Len(), 1)

	cancel()
	require.NoError(t, <-errc)
}

func TestRestorePoll_DeferredWhilePaused(t *testing.T) {
	h := newHarness(t, Config{}, settings.Params{})
	h.gate.SetLoading(true)

	h.d.RestorePoll()
	assert.Equal(t, 0, h.commands.Len())

	h.gate.SetLoading(false)
	assert.Equal(t, 1, h.commands.Len())
	c, ok := h.commands.TryPop()
	require.True(t, ok)
	assert.True(t, command.IsPoll(c))

	// nothing was parked, so a later resume queues nothing
	h.gate.SetLoading(true)
	h.gate.SetLoading(false)
	assert.Equal(t, 0, h.commands.Len())

	h.d.RestorePoll()
	assert.Equal(t, 1, h.commands.Len())
}

func TestRun_ShutdownDoesNotReenqueue(t *testing.T) {
	h := newHarness(t, Config{}, settings.Params{})
	h.push(command.Shutdown{})

	require.NoError(t, h.run(t))

	assert.Equal(t, 0, h.commands.Len())
	assert.False(t, h.arm.Closed())
	select {
	case <-h.d.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestRun_MoveThenPollReportsPosition(t *testing.T) {
	h := newHarness(t, Config{}, settings.Params{Position: true})
	h.push(command.Move{X: 1, Y: 2, Z: 3}, command.Poll{}, command.Poll{}, command.Shutdown{})

	require.NoError(t, h.run(t))

	results := h.drainResults()
	require.Len(t, results, 2)
	for _, r := range results {
		require.NotNil(t, r.Position)
		assert.Equal(t, arm.NewPosition(1, 2, 3), *r.Position)
		assert.Nil(t, r.Joints)
	}
}

func TestRun_StopPurgesPollsAndJointMoves(t *testing.T) {
	h := newHarness(t, Config{SettleInterval: time.Hour}, settings.Params{})
	h.push(
		command.Poll{},
		command.SetJointAngles{Angles: arm.JointAngles{1, 2, 3, 4}},
		command.Move{X: 5},
		command.Poll{},
		command.Shutdown{},
	)
	h.commands.Push(command.Stop{}, queue.PriorityUrgent)

	require.NoError(t, h.run(t))

	// Move ran inside the settle window, so no poll came back
	assert.Equal(t, 0, h.commands.Len())
	assert.Equal(t, []string{sim.OpMove}, h.arm.Calls())
	assert.Equal(t, uint64(1), h.d.Stats().StopsProcessed)
}

func TestRun_PollingResumesAfterSettle(t *testing.T) {
	const settle = 30 * time.Millisecond
	h := newHarness(t, Config{SettleInterval: settle}, settings.Params{Position: true})
	h.commands.Push(command.Stop{}, queue.PriorityUrgent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	errc := make(chan error, 1)
	go func() { errc <- h.d.Run(ctx) }()

	var first telemetry.Result
	require.Eventually(t, func() bool {
		r, ok := h.results.TryPop()
		if ok {
			first = r
		}
		return ok
	}, 2*time.Second, time.Millisecond)

	assert.GreaterOrEqual(t, first.At.Sub(start), settle)
	assert.NotNil(t, first.Position)

	h.commands.Push(command.Shutdown{}, queue.PriorityUrgent)
	require.NoError(t, <-errc)
}

func TestRun_LinkFailureEmitsHardwareError(t *testing.T) {
	h := newHarness(t, Config{}, settings.Params{Position: true, JointAngles: true})
	h.arm.Fail(sim.OpPosition, device.ErrLinkDown)
	h.push(command.Poll{})

	err := h.run(t)
	require.ErrorIs(t, err, ErrLinkFailure)

	results := h.drainResults()
	require.Len(t, results, 1)
	assert.Equal(t, telemetry.KindHardwareError, results[0].Kind)
	assert.Equal(t, StateStopped, h.d.State())
	// joint angles were not attempted after the link dropped
	assert.Equal(t, []string{sim.OpPosition}, h.arm.Calls())
}

func TestRun_FieldFailureOmitsOnlyThatField(t *testing.T) {
	h := newHarness(t, Config{}, settings.Params{Position: true, JointAngles: true, DigitalPins: []int{1}})
	h.arm.Fail(sim.OpJointAngles, errors.New("checksum"))
	h.arm.SetDigital(1, 1)
	h.push(command.Poll{}, command.Shutdown{})

	require.NoError(t, h.run(t))

	results := h.drainResults()
	require.Len(t, results, 1)
	r := results[0]
	assert.NotNil(t, r.Position)
	assert.Nil(t, r.Joints)
	assert.Equal(t, []int{1}, r.Digital)
	assert.Equal(t, uint64(1), h.d.Stats().FieldErrors)
}

func TestPollOnce_AnalogCategoryIsAllOrNothing(t *testing.T) {
	h := newHarness(t, Config{}, settings.Params{AnalogPins: []int{0, 1}})
	h.arm.SetAnalog(0, 0.12345)
	h.arm.SetAnalog(1, 2)

	res, err := h.d.PollOnce()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.123, 2}, res.Analog)

	h.arm.Fail(sim.OpAnalog, errors.New("adc busy"))
	res, err = h.d.PollOnce()
	require.NoError(t, err)
	assert.Nil(t, res.Analog)
}

func TestRun_BeepAndServoCommands(t *testing.T) {
	h := newHarness(t, Config{}, settings.Params{JointAngles: true})
	beep, err := command.Decode("BEEPgarbled")
	require.NoError(t, err)
	h.push(beep, command.SetServoAngle{Index: arm.WristServo, Angle: 10}, command.Shutdown{})
	h.gate.SetPlayback(true)

	require.NoError(t, h.run(t))

	assert.Equal(t, []string{sim.OpBeep, sim.OpServo}, h.arm.Calls())
	ja, err := h.arm.JointAngles()
	require.NoError(t, err)
	assert.Equal(t, 10.0, ja[arm.WristServo])
}

func TestRun_ClearAllDrainsQueue(t *testing.T) {
	h := newHarness(t, Config{}, settings.Params{})
	h.commands.Push(command.ClearAll{}, queue.PriorityUrgent)
	h.push(command.Move{}, command.PumpOn{})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.d.Run(ctx) }()

	// the poll cycle survives the clear; the queued writes do not
	require.Eventually(t, func() bool { return h.d.Stats().Polls >= 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-errc)
	assert.Empty(t, h.arm.Calls())
	assert.Equal(t, uint64(0), h.d.Stats().Commands)
	assert.LessOrEqual(t, h.commands.Len(), 1)
}

func TestRun_CancelExits(t *testing.T) {
	h := newHarness(t, Config{}, settings.Params{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.d.Run(ctx))
	assert.Equal(t, StateStopped, h.d.State())
}

func TestRun_PollPacing(t *testing.T) {
	h := newHarness(t, Config{PollRate: 50}, settings.Params{Position: true})
	h.push(command.Poll{}, command.Poll{}, command.Poll{}, command.Shutdown{})

	start := time.Now()
	require.NoError(t, h.run(t))

	// burst of one, then 20ms per poll
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
	assert.Len(t, h.drainResults(), 3)
}
