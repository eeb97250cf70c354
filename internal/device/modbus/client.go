// internal/device/modbus/client.go
package modbus

import (
	"math"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/pkg/errors"

	"github.com/tamzrod/uarm-bridge/internal/arm"
	"github.com/tamzrod/uarm-bridge/internal/device"
)

// Opcodes written to the first register of the command block.
// The remaining registers of the block carry the arguments.
const (
	opMove         uint16 = 1
	opMoveRelative uint16 = 2
	opServo        uint16 = 3
	opBeep         uint16 = 4

	commandArgs = 4
)

const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

// registerClient is the subset of modbus.Client the adapter uses.
type registerClient interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	ReadDiscreteInputs(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
	WriteSingleCoil(address, value uint16) ([]byte, error)
}

// Registers is the arm's memory map.
type Registers struct {
	Position    uint16 // holding, x y z
	JointAngles uint16 // holding, 4 servos
	Command     uint16 // holding, opcode + args
	AnalogBase  uint16 // input register per pin
	DigitalBase uint16 // discrete input per pin
	PumpCoil    uint16
	AttachCoil  uint16
}

// Config is the adapter transport config.
type Config struct {
	// Transport is "tcp" (Endpoint is host:port) or "rtu" (Endpoint is a serial device).
	Transport string
	Endpoint  string
	UnitID    uint8
	Timeout   time.Duration
	BaudRate  int

	Registers Registers
	// Scale converts engineering units to signed registers: reg = value * Scale.
	Scale float64
}

// Client implements device.Adapter over Modbus.
// Values are signed 16-bit registers scaled by Config.Scale.
type Client struct {
	mu     sync.Mutex
	closer func() error
	client registerClient
	regs   Registers
	scale  float64
}

var _ device.Adapter = (*Client)(nil)

// Open connects to the arm controller.
func Open(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus: endpoint required")
	}

	switch cfg.Transport {
	case "", "tcp":
		h := modbus.NewTCPClientHandler(cfg.Endpoint)
		h.Timeout = cfg.Timeout
		h.SlaveId = cfg.UnitID
		if err := h.Connect(); err != nil {
			return nil, errors.Wrapf(err, "modbus: connect %s", cfg.Endpoint)
		}
		return newClient(modbus.NewClient(h), h.Close, cfg), nil

	case "rtu":
		h := modbus.NewRTUClientHandler(cfg.Endpoint)
		h.BaudRate = cfg.BaudRate
		h.DataBits = 8
		h.Parity = "N"
		h.StopBits = 1
		h.Timeout = cfg.Timeout
		h.SlaveId = cfg.UnitID
		if err := h.Connect(); err != nil {
			return nil, errors.Wrapf(err, "modbus: open %s", cfg.Endpoint)
		}
		return newClient(modbus.NewClient(h), h.Close, cfg), nil
	}

	return nil, errors.Errorf("modbus: unknown transport %q", cfg.Transport)
}

func newClient(c registerClient, closer func() error, cfg Config) *Client {
	scale := cfg.Scale
	if scale <= 0 {
		scale = 10
	}
	return &Client{
		closer: closer,
		client: c,
		regs:   cfg.Registers,
		scale:  scale,
	}
}

// Close closes the transport. Later calls report a dead link.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	c.client = nil
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// ---- device.Reader ----

func (c *Client) Position() (arm.Position, error) {
	v, err := c.readHolding("position", c.regs.Position, 3)
	if err != nil {
		return arm.Position{}, err
	}
	return arm.NewPosition(v[0], v[1], v[2]), nil
}

func (c *Client) JointAngles() (arm.JointAngles, error) {
	v, err := c.readHolding("joint angles", c.regs.JointAngles, 4)
	if err != nil {
		return arm.JointAngles{}, err
	}
	var ja arm.JointAngles
	copy(ja[:], v)
	return ja, nil
}

func (c *Client) Analog(pin int) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return 0, errNotConnected
	}
	raw, err := c.client.ReadInputRegisters(c.regs.AnalogBase+uint16(pin), 1)
	if err != nil {
		return 0, classify("analog", err)
	}
	regs := unpackRegisters(raw)
	if len(regs) < 1 {
		return 0, errors.New("modbus: analog: short payload")
	}
	// analog pins are raw counts, not scaled
	return float64(regs[0]), nil
}

func (c *Client) Digital(pin int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return 0, errNotConnected
	}
	raw, err := c.client.ReadDiscreteInputs(c.regs.DigitalBase+uint16(pin), 1)
	if err != nil {
		return 0, classify("digital", err)
	}
	if len(raw) < 1 {
		return 0, errors.New("modbus: digital: short payload")
	}
	return int(raw[0] & 1), nil
}

// ---- device.Writer ----

func (c *Client) MoveTo(x, y, z float64) error {
	args, err := c.scaledAll(x, y, z)
	if err != nil {
		return errors.Wrap(err, "modbus: move")
	}
	return c.command(opMove, args...)
}

func (c *Client) MoveRelative(dz float64) error {
	v, err := c.scaled(dz)
	if err != nil {
		return errors.Wrap(err, "modbus: relative move")
	}
	return c.command(opMoveRelative, 0, 0, v)
}

func (c *Client) SetServoAngle(index int, angle float64) error {
	if index < 0 || index >= len(arm.JointAngles{}) {
		return errors.Errorf("modbus: servo index %d out of range", index)
	}
	v, err := c.scaled(angle)
	if err != nil {
		return errors.Wrap(err, "modbus: servo")
	}
	return c.command(opServo, uint16(index), v)
}

func (c *Client) SetPump(on bool) error {
	return c.coil("pump", c.regs.PumpCoil, on)
}

func (c *Client) Attach() error {
	return c.coil("attach", c.regs.AttachCoil, true)
}

func (c *Client) Detach() error {
	return c.coil("detach", c.regs.AttachCoil, false)
}

func (c *Client) Beep(frequency, duration float64) error {
	// frequency in Hz, duration in ms; both sent unscaled
	f, err := unsigned("frequency", frequency)
	if err != nil {
		return errors.Wrap(err, "modbus: beep")
	}
	d, err := unsigned("duration", duration*1000)
	if err != nil {
		return errors.Wrap(err, "modbus: beep")
	}
	return c.command(opBeep, f, d)
}

// ---- register helpers ----

var errNotConnected = errors.Wrap(device.ErrLinkDown, "modbus: not connected")

// classify wraps transport failures as link down; device exceptions stay plain.
func classify(op string, err error) error {
	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return errors.Wrapf(err, "modbus: %s", op)
	}
	return errors.Wrapf(device.ErrLinkDown, "modbus: %s: %v", op, err)
}

func (c *Client) readHolding(op string, addr uint16, n int) ([]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, errNotConnected
	}
	raw, err := c.client.ReadHoldingRegisters(addr, uint16(n))
	if err != nil {
		return nil, classify(op, err)
	}
	regs := unpackRegisters(raw)
	if len(regs) < n {
		return nil, errors.Errorf("modbus: %s: expected %d registers, got %d", op, n, len(regs))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = float64(int16(regs[i])) / c.scale
	}
	return out, nil
}

// command writes the whole block in one request so the controller never
// sees an opcode with stale arguments.
func (c *Client) command(op uint16, args ...uint16) error {
	block := make([]uint16, 1+commandArgs)
	block[0] = op
	copy(block[1:], args)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return errNotConnected
	}
	_, err := c.client.WriteMultipleRegisters(c.regs.Command, uint16(len(block)), packRegisters(block))
	if err != nil {
		return classify("command", err)
	}
	return nil
}

func (c *Client) coil(op string, addr uint16, on bool) error {
	v := coilOff
	if on {
		v = coilOn
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return errNotConnected
	}
	if _, err := c.client.WriteSingleCoil(addr, v); err != nil {
		return classify(op, err)
	}
	return nil
}

// scaled encodes v as a signed register. Values the register cannot hold
// are rejected rather than wrapped.
func (c *Client) scaled(v float64) (uint16, error) {
	r := math.Round(v * c.scale)
	if math.IsNaN(r) || r < math.MinInt16 || r > math.MaxInt16 {
		return 0, errors.Errorf("%g out of register range at scale %g", v, c.scale)
	}
	return uint16(int16(r)), nil
}

func (c *Client) scaledAll(vs ...float64) ([]uint16, error) {
	out := make([]uint16, len(vs))
	for i, v := range vs {
		r, err := c.scaled(v)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func unsigned(name string, v float64) (uint16, error) {
	r := math.Round(v)
	if math.IsNaN(r) || r < 0 || r > math.MaxUint16 {
		return 0, errors.Errorf("%s %g out of register range", name, v)
	}
	return uint16(r), nil
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
