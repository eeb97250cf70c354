package serial

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/uarm-bridge/internal/arm"
	"github.com/tamzrod/uarm-bridge/internal/device"
)

// fakePort answers each request with reply(code). An empty reply means silence.
type fakePort struct {
	mu      sync.Mutex
	reply   func(code string) string
	written []string
	out     []byte
	readErr error
	closed  bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req := strings.TrimSpace(string(b))
	p.written = append(p.written, req)

	// "#<id> <code...>"
	sp := strings.IndexByte(req, ' ')
	id, code := req[1:sp], req[sp+1:]
	if r := p.reply(code); r != "" {
		p.out = append(p.out, []byte("$"+id+" "+r+"\n")...)
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.out) == 0 {
		// read timeout: no data, no error
		return 0, nil
	}
	n := copy(b, p.out)
	p.out = p.out[n:]
	return n, nil
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePort) requests() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

func newTestClient(t *testing.T, p *fakePort) *Client {
	t.Helper()
	c, err := newClient(p, Config{Timeout: 100 * time.Millisecond, Speed: 2000})
	require.NoError(t, err)
	return c
}

func TestClient_Position(t *testing.T) {
	p := &fakePort{reply: func(code string) string {
		if code == codePosition {
			return "ok X1.5 Y-2.00 Z300"
		}
		return "E20"
	}}
	c := newTestClient(t, p)

	pos, err := c.Position()
	require.NoError(t, err)
	assert.Equal(t, arm.NewPosition(1.5, -2, 300), pos)
	assert.Equal(t, []string{"#1 P2220"}, p.requests())
}

func TestClient_JointAnglesAndPins(t *testing.T) {
	p := &fakePort{reply: func(code string) string {
		switch {
		case code == codeJointAngles:
			return "ok B90 L45.5 R30 H0"
		case strings.HasPrefix(code, codeAnalog):
			return "ok V512"
		case strings.HasPrefix(code, codeDigital):
			return "ok V1"
		}
		return "E20"
	}}
	c := newTestClient(t, p)

	ja, err := c.JointAngles()
	require.NoError(t, err)
	assert.Equal(t, arm.JointAngles{90, 45.5, 30, 0}, ja)

	a, err := c.Analog(2)
	require.NoError(t, err)
	assert.Equal(t, 512.0, a)

	d, err := c.Digital(7)
	require.NoError(t, err)
	assert.Equal(t, 1, d)

	assert.Equal(t, []string{"#1 P2200", "#2 P2201 N2", "#3 P2202 N7"}, p.requests())
}

func TestClient_WriteCommands(t *testing.T) {
	p := &fakePort{reply: func(string) string { return "ok" }}
	c := newTestClient(t, p)

	require.NoError(t, c.MoveTo(1, 2, 3))
	require.NoError(t, c.MoveRelative(-5))
	require.NoError(t, c.SetServoAngle(arm.WristServo, 120))
	require.NoError(t, c.SetPump(true))
	require.NoError(t, c.Attach())
	require.NoError(t, c.Detach())
	require.NoError(t, c.Beep(1000, 0.2))

	assert.Equal(t, []string{
		"#1 G0 X1 Y2 Z3 F2000",
		"#2 G204 X0 Y0 Z-5 F0",
		"#3 G202 N3 V120",
		"#4 M2231 V1",
		"#5 M17",
		"#6 M2019",
		"#7 M2210 F1000 T200",
	}, p.requests())
}

func TestClient_FirmwareErrorIsNotLinkDown(t *testing.T) {
	p := &fakePort{reply: func(string) string { return "E22" }}
	c := newTestClient(t, p)

	err := c.MoveTo(0, 0, 0)
	require.Error(t, err)
	assert.False(t, device.IsLinkDown(err))
}

func TestClient_TimeoutIsLinkDown(t *testing.T) {
	p := &fakePort{reply: func(string) string { return "" }}
	c := newTestClient(t, p)

	_, err := c.Position()
	require.Error(t, err)
	assert.True(t, device.IsLinkDown(err))
}

func TestClient_ReadErrorIsLinkDown(t *testing.T) {
	p := &fakePort{reply: func(string) string { return "ok" }, readErr: errors.New("device unplugged")}
	c := newTestClient(t, p)

	err := c.Attach()
	require.Error(t, err)
	assert.True(t, device.IsLinkDown(err))
}

func TestClient_SkipsBannerAndStaleReplies(t *testing.T) {
	p := &fakePort{reply: func(string) string { return "ok X1 Y2 Z3" }}
	p.out = []byte("@1 boot\n$0 ok X9 Y9 Z9\n")
	c := newTestClient(t, p)

	pos, err := c.Position()
	require.NoError(t, err)
	assert.Equal(t, arm.NewPosition(1, 2, 3), pos)
}

func TestClient_ClosedIsLinkDown(t *testing.T) {
	p := &fakePort{reply: func(string) string { return "ok" }}
	c := newTestClient(t, p)

	require.NoError(t, c.Close())
	assert.True(t, p.closed)

	err := c.Attach()
	assert.True(t, device.IsLinkDown(err))
	require.NoError(t, c.Close())
}
