// internal/device/serial/client.go
package serial

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/tamzrod/uarm-bridge/internal/arm"
	"github.com/tamzrod/uarm-bridge/internal/device"
)

// Line protocol spoken by the arm firmware:
//
//	request:  "#<id> <code> [args]\n"
//	response: "$<id> ok [K<value> ...]\n" or "$<id> E<code>\n"
//
// Lines that do not start with "$" (boot banner, async reports) are skipped.
const (
	codeMove         = "G0"
	codeMoveRelative = "G204"
	codeServo        = "G202"
	codeAttach       = "M17"
	codeDetach       = "M2019"
	codePump         = "M2231"
	codeBuzzer       = "M2210"
	codePosition     = "P2220"
	codeJointAngles  = "P2200"
	codeAnalog       = "P2201"
	codeDigital      = "P2202"
)

// port is the subset of serial.Port the client uses.
type port interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Config is the serial link config.
type Config struct {
	// Port is the device path. Empty means auto-discover by HWIDs.
	Port     string
	BaudRate int
	// HWIDs are "VID:PID" pairs accepted by discovery.
	HWIDs   []string
	Timeout time.Duration
	// Speed is the feed rate used for moves, mm/min.
	Speed float64
	// ResetDelay is how long to wait after opening: the board resets on connect.
	ResetDelay time.Duration
}

// Client implements device.Adapter over the line protocol.
type Client struct {
	mu      sync.Mutex
	port    port
	timeout time.Duration
	speed   float64

	seq     int
	buf     []byte
	pending []byte
}

var _ device.Adapter = (*Client)(nil)

// Open connects to the arm, discovering the port when none is configured.
func Open(cfg Config) (*Client, error) {
	name := cfg.Port
	if name == "" {
		found, err := Discover(cfg.HWIDs)
		if err != nil {
			return nil, err
		}
		name = found
	}

	p, err := serial.Open(name, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "serial: open %s", name)
	}

	if cfg.ResetDelay > 0 {
		time.Sleep(cfg.ResetDelay)
	}

	return newClient(p, cfg)
}

func newClient(p port, cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	// short read timeout; the overall deadline is enforced per request
	if err := p.SetReadTimeout(50 * time.Millisecond); err != nil {
		_ = p.Close()
		return nil, errors.Wrap(err, "serial: set read timeout")
	}
	return &Client{
		port:    p,
		timeout: timeout,
		speed:   cfg.Speed,
		buf:     make([]byte, 128),
	}, nil
}

// Discover returns the first USB port whose VID:PID matches one of hwids.
func Discover(hwids []string) (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", errors.Wrap(err, "serial: enumerate ports")
	}
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		id := strings.ToUpper(p.VID + ":" + p.PID)
		for _, want := range hwids {
			if strings.ToUpper(want) == id {
				return p.Name, nil
			}
		}
	}
	return "", errors.Errorf("serial: no port matches %v", hwids)
}

// Close releases the port.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	return err
}

// ---- device.Reader ----

func (c *Client) Position() (arm.Position, error) {
	v, err := c.query(codePosition, 3)
	if err != nil {
		return arm.Position{}, err
	}
	return arm.NewPosition(v[0], v[1], v[2]), nil
}

func (c *Client) JointAngles() (arm.JointAngles, error) {
	v, err := c.query(codeJointAngles, 4)
	if err != nil {
		return arm.JointAngles{}, err
	}
	var ja arm.JointAngles
	copy(ja[:], v)
	return ja, nil
}

func (c *Client) Analog(pin int) (float64, error) {
	v, err := c.query(fmt.Sprintf("%s N%d", codeAnalog, pin), 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

func (c *Client) Digital(pin int) (int, error) {
	v, err := c.query(fmt.Sprintf("%s N%d", codeDigital, pin), 1)
	if err != nil {
		return 0, err
	}
	return int(v[0]), nil
}

// ---- device.Writer ----

func (c *Client) MoveTo(x, y, z float64) error {
	return c.exec(fmt.Sprintf("%s X%s Y%s Z%s F%s", codeMove, ff(x), ff(y), ff(z), ff(c.speed)))
}

func (c *Client) MoveRelative(dz float64) error {
	return c.exec(fmt.Sprintf("%s X0 Y0 Z%s F0", codeMoveRelative, ff(dz)))
}

func (c *Client) SetServoAngle(index int, angle float64) error {
	return c.exec(fmt.Sprintf("%s N%d V%s", codeServo, index, ff(angle)))
}

func (c *Client) SetPump(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return c.exec(fmt.Sprintf("%s V%d", codePump, v))
}

func (c *Client) Attach() error {
	return c.exec(codeAttach)
}

func (c *Client) Detach() error {
	return c.exec(codeDetach)
}

func (c *Client) Beep(frequency, duration float64) error {
	ms := int(duration * 1000)
	return c.exec(fmt.Sprintf("%s F%s T%d", codeBuzzer, ff(frequency), ms))
}

// ---- request/response ----

func (c *Client) exec(code string) error {
	_, err := c.roundTrip(code)
	return err
}

// query sends code and parses n numeric fields from the reply.
func (c *Client) query(code string, n int) ([]float64, error) {
	fields, err := c.roundTrip(code)
	if err != nil {
		return nil, err
	}
	if len(fields) < n {
		return nil, errors.Errorf("serial: %s: expected %d values, got %d", code, n, len(fields))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		// each field is a one-letter key followed by the number
		f := fields[i]
		if len(f) < 2 {
			return nil, errors.Errorf("serial: %s: malformed field %q", code, f)
		}
		v, err := strconv.ParseFloat(f[1:], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "serial: %s: field %q", code, f)
		}
		out[i] = v
	}
	return out, nil
}

// roundTrip writes one request and returns the fields after "ok".
// IO failures and timeouts wrap device.ErrLinkDown; firmware errors do not.
func (c *Client) roundTrip(code string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return nil, errors.Wrap(device.ErrLinkDown, "serial: not connected")
	}

	c.seq++
	id := strconv.Itoa(c.seq)
	req := "#" + id + " " + code + "\n"

	if _, err := c.port.Write([]byte(req)); err != nil {
		return nil, errors.Wrapf(device.ErrLinkDown, "serial: write %s: %v", code, err)
	}

	deadline := time.Now().Add(c.timeout)
	for {
		line, err := c.readLine(deadline)
		if err != nil {
			return nil, errors.Wrapf(err, "serial: %s", code)
		}
		if !strings.HasPrefix(line, "$") {
			continue
		}
		parts := strings.Fields(line)
		if parts[0] != "$"+id {
			// stale reply to an earlier, timed-out request
			continue
		}
		if len(parts) < 2 {
			return nil, errors.Errorf("serial: %s: empty reply", code)
		}
		if parts[1] != "ok" {
			return nil, errors.Errorf("serial: %s: firmware error %s", code, parts[1])
		}
		return parts[2:], nil
	}
}

func (c *Client) readLine(deadline time.Time) (string, error) {
	for {
		if i := bytes.IndexByte(c.pending, '\n'); i >= 0 {
			line := string(bytes.TrimSpace(c.pending[:i]))
			c.pending = c.pending[i+1:]
			return line, nil
		}
		if time.Now().After(deadline) {
			return "", errors.Wrap(device.ErrLinkDown, "response timeout")
		}
		n, err := c.port.Read(c.buf)
		if err != nil {
			return "", errors.Wrapf(device.ErrLinkDown, "read: %v", err)
		}
		c.pending = append(c.pending, c.buf[:n]...)
	}
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
