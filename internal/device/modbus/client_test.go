package modbus

import (
	"errors"
	"math"
	"testing"

	"github.com/goburrow/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/uarm-bridge/internal/arm"
	"github.com/tamzrod/uarm-bridge/internal/device"
)

type fakeClient struct {
	holding  map[uint16]uint16
	input    map[uint16]uint16
	discrete map[uint16]bool
	coils    map[uint16]uint16

	writes [][]uint16
	err    error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		holding:  make(map[uint16]uint16),
		input:    make(map[uint16]uint16),
		discrete: make(map[uint16]bool),
		coils:    make(map[uint16]uint16),
	}
}

func (f *fakeClient) ReadHoldingRegisters(addr, qty uint16) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	regs := make([]uint16, qty)
	for i := range regs {
		regs[i] = f.holding[addr+uint16(i)]
	}
	return packRegisters(regs), nil
}

func (f *fakeClient) ReadInputRegisters(addr, qty uint16) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	regs := make([]uint16, qty)
	for i := range regs {
		regs[i] = f.input[addr+uint16(i)]
	}
	return packRegisters(regs), nil
}

func (f *fakeClient) ReadDiscreteInputs(addr, qty uint16) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	var b byte
	if f.discrete[addr] {
		b = 1
	}
	return []byte{b}, nil
}

func (f *fakeClient) WriteMultipleRegisters(addr, qty uint16, value []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.writes = append(f.writes, unpackRegisters(value))
	return nil, nil
}

func (f *fakeClient) WriteSingleCoil(addr, value uint16) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.coils[addr] = value
	return nil, nil
}

var testRegisters = Registers{
	Position:    0,
	JointAngles: 3,
	Command:     100,
	AnalogBase:  200,
	DigitalBase: 300,
	PumpCoil:    0,
	AttachCoil:  1,
}

func newTestClient(f *fakeClient) *Client {
	return newClient(f, nil, Config{Registers: testRegisters, Scale: 10})
}

func TestClient_ReadScaledSigned(t *testing.T) {
	f := newFakeClient()
	f.holding[0] = 15
	f.holding[1] = uint16(0xFFEC) // -20 -> -2.0
	f.holding[2] = 3000
	f.holding[3], f.holding[4], f.holding[5], f.holding[6] = 900, 455, 300, 0
	f.input[202] = 512
	f.discrete[307] = true

	c := newTestClient(f)

	pos, err := c.Position()
	require.NoError(t, err)
	assert.Equal(t, arm.NewPosition(1.5, -2, 300), pos)

	ja, err := c.JointAngles()
	require.NoError(t, err)
	assert.Equal(t, arm.JointAngles{90, 45.5, 30, 0}, ja)

	a, err := c.Analog(2)
	require.NoError(t, err)
	assert.Equal(t, 512.0, a)

	d, err := c.Digital(7)
	require.NoError(t, err)
	assert.Equal(t, 1, d)
}

func TestClient_CommandBlock(t *testing.T) {
	f := newFakeClient()
	c := newTestClient(f)

	require.NoError(t, c.MoveTo(1, -2, 3))
	require.NoError(t, c.SetServoAngle(arm.WristServo, 120))
	require.NoError(t, c.Beep(1000, 0.2))

	require.Len(t, f.writes, 3)
	assert.Equal(t, []uint16{opMove, 10, uint16(0xFFEC), 30, 0}, f.writes[0])
	assert.Equal(t, []uint16{opServo, 3, 1200, 0, 0}, f.writes[1])
	assert.Equal(t, []uint16{opBeep, 1000, 200, 0, 0}, f.writes[2])
}

func TestClient_OutOfRangeArgumentsRejected(t *testing.T) {
	f := newFakeClient()
	c := newTestClient(f)

	// 4000 mm at scale 10 does not fit a signed register
	err := c.MoveTo(4000, 0, 0)
	require.Error(t, err)
	assert.False(t, device.IsLinkDown(err))

	assert.Error(t, c.MoveRelative(-3300))
	assert.Error(t, c.SetServoAngle(arm.WristServo, math.NaN()))
	assert.Error(t, c.SetServoAngle(7, 10))
	assert.Error(t, c.Beep(70000, 0.1))
	assert.Error(t, c.Beep(-1, 0.1))
	assert.Error(t, c.Beep(1000, 70))
	assert.Empty(t, f.writes)

	// the edges of the signed range still encode
	require.NoError(t, c.MoveTo(3276.7, -3276.8, 0))
	require.Len(t, f.writes, 1)
	assert.Equal(t, []uint16{opMove, 0x7FFF, 0x8000, 0, 0}, f.writes[0])
}

func TestClient_Coils(t *testing.T) {
	f := newFakeClient()
	c := newTestClient(f)

	require.NoError(t, c.SetPump(true))
	require.NoError(t, c.Detach())
	assert.Equal(t, coilOn, f.coils[0])
	assert.Equal(t, coilOff, f.coils[1])
}

func TestClient_ErrorClassification(t *testing.T) {
	f := newFakeClient()
	c := newTestClient(f)

	f.err = &modbus.ModbusError{FunctionCode: 3, ExceptionCode: 2}
	_, err := c.Position()
	require.Error(t, err)
	assert.False(t, device.IsLinkDown(err))

	f.err = errors.New("connection reset by peer")
	_, err = c.Position()
	require.Error(t, err)
	assert.True(t, device.IsLinkDown(err))
}

func TestClient_ClosedIsLinkDown(t *testing.T) {
	c := newTestClient(newFakeClient())
	require.NoError(t, c.Close())

	assert.True(t, device.IsLinkDown(c.Attach()))
	require.NoError(t, c.Close())
}
