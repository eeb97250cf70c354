// internal/bridge/builder.go
package bridge

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tamzrod/uarm-bridge/internal/bus"
	cfg "github.com/tamzrod/uarm-bridge/internal/config"
	"github.com/tamzrod/uarm-bridge/internal/device"
	dmodbus "github.com/tamzrod/uarm-bridge/internal/device/modbus"
	dserial "github.com/tamzrod/uarm-bridge/internal/device/serial"
	"github.com/tamzrod/uarm-bridge/internal/device/sim"
	"github.com/tamzrod/uarm-bridge/internal/publisher"
	"github.com/tamzrod/uarm-bridge/internal/settings"
)

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// OpenAdapter connects to the arm. ONE attempt: an error here is a
// startup failure and no loop is started.
func OpenAdapter(d cfg.DeviceConfig, log *slog.Logger) (device.Adapter, error) {
	switch d.Driver {
	case cfg.DriverSerial:
		c, err := dserial.Open(dserial.Config{
			Port:       d.Port,
			BaudRate:   d.BaudRate,
			HWIDs:      d.HWIDs,
			Timeout:    ms(d.TimeoutMs),
			Speed:      d.Speed,
			ResetDelay: ms(d.ResetDelayMs),
		})
		if err != nil {
			return nil, err
		}
		log.Info("arm connected", "driver", d.Driver, "port", d.Port)
		return c, nil

	case cfg.DriverModbus:
		r := d.Modbus.Registers
		c, err := dmodbus.Open(dmodbus.Config{
			Transport: d.Modbus.Transport,
			Endpoint:  d.Modbus.Endpoint,
			UnitID:    d.Modbus.UnitID,
			Timeout:   ms(d.TimeoutMs),
			BaudRate:  d.BaudRate,
			Scale:     d.Modbus.Scale,
			Registers: dmodbus.Registers{
				Position:    r.Position,
				JointAngles: r.JointAngles,
				Command:     r.Command,
				AnalogBase:  r.AnalogBase,
				DigitalBase: r.DigitalBase,
				PumpCoil:    r.PumpCoil,
				AttachCoil:  r.AttachCoil,
			},
		})
		if err != nil {
			return nil, err
		}
		log.Info("arm connected", "driver", d.Driver, "endpoint", d.Modbus.Endpoint)
		return c, nil

	case cfg.DriverSim:
		log.Info("arm simulated")
		return sim.New(), nil
	}
	return nil, fmt.Errorf("bridge: unknown device driver %q", d.Driver)
}

// BuildBus creates the message bus and, when configured or required by the
// inline driver, the embedded broker. Neither is started.
func BuildBus(b cfg.BusConfig, log *slog.Logger) (bus.Bus, *bus.Broker, error) {
	var broker *bus.Broker
	if b.Driver == cfg.BusInline || b.EmbeddedBroker.Listen != "" {
		var err error
		broker, err = bus.NewBroker(bus.BrokerConfig{
			Listen:   b.EmbeddedBroker.Listen,
			Username: b.Username,
			Password: b.Password,
		}, log.With("component", "broker"))
		if err != nil {
			return nil, nil, err
		}
	}

	switch b.Driver {
	case cfg.BusInline:
		inline, err := bus.NewInline(broker, b.QoS, log.With("component", "bus"))
		if err != nil {
			return nil, nil, err
		}
		return inline, broker, nil

	case cfg.BusMQTT:
		m, err := bus.NewMQTT(bus.MQTTConfig{
			URL:      b.URL,
			ClientID: b.ClientID,
			Username: b.Username,
			Password: b.Password,
			QoS:      b.QoS,
		}, log.With("component", "bus"))
		if err != nil {
			return nil, nil, err
		}
		return m, broker, nil
	}
	return nil, nil, fmt.Errorf("bridge: unknown bus driver %q", b.Driver)
}

// PollingParams is the startup polling selection.
func PollingParams(p cfg.PollingConfig) settings.Params {
	params := settings.Params{
		Position:    true,
		JointAngles: true,
		AnalogPins:  p.AnalogPins,
		DigitalPins: p.DigitalPins,
	}
	if p.Position != nil {
		params.Position = *p.Position
	}
	if p.JointAngles != nil {
		params.JointAngles = *p.JointAngles
	}
	return params
}

func publisherTopics(t bus.Topics) publisher.Topics {
	return publisher.Topics{
		Raw:         t.Name(bus.StringRead),
		Position:    t.Name(bus.PositionRead),
		JointAngles: t.Name(bus.JointAnglesRead),
		Analog:      t.Name(bus.AnalogRead),
		Digital:     t.Name(bus.DigitalRead),
	}
}
