package publisher

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

	"github.com/tamzrod/uarm-bridge/internal/arm"
	"github.com/tamzrod/uarm-bridge/internal/queue"
	"github.com/tamzrod/uarm-bridge/internal/telemetry"
)

type message struct {
	topic   string
	payload string
}

type fakeSink struct {
	mu   sync.Mutex
	sent []message
	fail map[string]bool
}

func (s *fakeSink) Publish(_ context.Context, topic string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[topic] {
		return errors.New("broker unavailable")
	}
	s.sent = append(s.sent, message{topic, string(payload)})
	return nil
}

func (s *fakeSink) messages() []message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message(nil), s.sent...)
}

type fakeTerminator struct {
	mu      sync.Mutex
	reasons []string
}

func (f *fakeTerminator) Terminate(reason string) {
	f.mu.Lock()
	f.reasons = append(f.reasons, reason)
	f.mu.Unlock()
}

func (f *fakeTerminator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reasons)
}

var testTopics = Topics{
	Raw:         "raw",
	Position:    "pos",
	JointAngles: "ja",
	Analog:      "analog",
	Digital:     "digital",
}

func newTestPublisher(t *testing.T, sink *fakeSink) (*Publisher, *queue.Queue[telemetry.Result], *fakeTerminator) {
	t.Helper()
	results := queue.New[telemetry.Result]("telemetry")
	term := &fakeTerminator{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := New(Config{Topics: testTopics, IdleInterval: time.Millisecond}, results, sink, term, log)
	require.NoError(t, err)
	return p, results, term
}

func fullReading() telemetry.Result {
	pos := arm.NewPosition(1, 2, 3)
	ja := arm.JointAngles{90, 45, 30, 0}
	return telemetry.Result{
		Kind:     telemetry.KindReading,
		Position: &pos,
		Joints:   &ja,
		Analog:   []float64{0.5},
		Digital:  []int{1},
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Topics: testTopics}, nil, &fakeSink{}, &fakeTerminator{}, nil)
	assert.Error(t, err)
	_, err = New(Config{}, queue.New[telemetry.Result]("t"), &fakeSink{}, &fakeTerminator{}, nil)
	assert.Error(t, err)
}

func TestWrite_RawFirstThenFields(t *testing.T) {
	sink := &fakeSink{}
	p, _, _ := newTestPublisher(t, sink)

	require.NoError(t, p.Write(context.Background(), fullReading()))

	assert.Equal(t, []message{
		{"raw", "1, 2, 3, 90, 45, 30, 0, 0.5, 1"},
		{"pos", `{"x":1,"y":2,"z":3}`},
		{"ja", `{"j0":90,"j1":45,"j2":30,"j3":0}`},
		{"analog", "0.5"},
		{"digital", "1"},
	}, sink.messages())
}

func TestWrite_FieldFailureDoesNotStopOthers(t *testing.T) {
	sink := &fakeSink{fail: map[string]bool{"pos": true}}
	p, _, _ := newTestPublisher(t, sink)

	err := p.Write(context.Background(), fullReading())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRawChannel)
	assert.Len(t, sink.messages(), 4)
	assert.Equal(t, uint64(1), p.Stats().FieldFailures)
}

func TestWrite_RawFailureIsFatal(t *testing.T) {
	sink := &fakeSink{fail: map[string]bool{"raw": true}}
	p, _, _ := newTestPublisher(t, sink)

	err := p.Write(context.Background(), fullReading())
	require.ErrorIs(t, err, ErrRawChannel)
	assert.Empty(t, sink.messages())
}

func TestRun_ShutdownTerminatesOnce(t *testing.T) {
	sink := &fakeSink{}
	p, results, term := newTestPublisher(t, sink)
	results.Push(fullReading(), queue.PriorityNormal)
	results.Push(telemetry.Shutdown(), queue.PriorityNormal)
	results.Push(fullReading(), queue.PriorityNormal)

	require.NoError(t, p.Run(context.Background(), nil))

	assert.Equal(t, 1, term.count())
	assert.Len(t, sink.messages(), 5)
	assert.Equal(t, 1, results.Len())
	assert.Equal(t, StateStopped, p.State())
}

func TestRun_HardwareErrorIsFatal(t *testing.T) {
	p, results, term := newTestPublisher(t, &fakeSink{})
	results.Push(telemetry.HardwareError(errors.New("cable pulled")), queue.PriorityNormal)

	err := p.Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrHardware)
	assert.Equal(t, 1, term.count())
}

func TestRun_RawFailureTerminates(t *testing.T) {
	p, results, term := newTestPublisher(t, &fakeSink{fail: map[string]bool{"raw": true}})
	results.Push(fullReading(), queue.PriorityNormal)

	err := p.Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrRawChannel)
	assert.Equal(t, 1, term.count())
}

func TestRun_StopWhileIdle(t *testing.T) {
	p, _, term := newTestPublisher(t, &fakeSink{})
	stop := make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- p.Run(context.Background(), stop) }()

	close(stop)
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher did not observe stop")
	}
	assert.Equal(t, 0, term.count())
}

func TestRun_PicksUpLateResults(t *testing.T) {
	sink := &fakeSink{}
	p, results, _ := newTestPublisher(t, sink)

	errc := make(chan error, 1)
	go func() { errc <- p.Run(context.Background(), nil) }()

	time.Sleep(5 * time.Millisecond)
	results.Push(telemetry.Result{Kind: telemetry.KindReading, Digital: []int{0}}, queue.PriorityNormal)
	results.Push(telemetry.Shutdown(), queue.PriorityNormal)

	require.NoError(t, <-errc)
	assert.Equal(t, []message{{"raw", "0"}, {"digital", "0"}}, sink.messages())
}
