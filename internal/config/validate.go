// internal/config/validate.go
package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration. Zero values mean "use the default"
// and are accepted; Normalize fills them in afterwards.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	d := cfg.Device
	switch d.Driver {
	case "", DriverSerial, DriverSim:
	case DriverModbus:
		if d.Modbus.Endpoint == "" {
			return fmt.Errorf("device.modbus.endpoint: required for driver %q", DriverModbus)
		}
		switch d.Modbus.Transport {
		case "", "tcp", "rtu":
		default:
			return fmt.Errorf("device.modbus.transport: %q must be tcp or rtu", d.Modbus.Transport)
		}
		if d.Modbus.Scale < 0 {
			return fmt.Errorf("device.modbus.scale: must be > 0")
		}
	default:
		return fmt.Errorf("device.driver: unknown driver %q", d.Driver)
	}

	for _, id := range d.HWIDs {
		if !validHWID(id) {
			return fmt.Errorf("device.hwids: %q is not VID:PID (4 hex digits each)", id)
		}
	}
	if d.TimeoutMs < 0 || d.BaudRate < 0 || d.ResetDelayMs < 0 {
		return fmt.Errorf("device: timeout_ms, baud_rate and reset_delay_ms must be >= 0")
	}

	// ------------------------------------------------------------
	// POLLING
	// ------------------------------------------------------------

	p := cfg.Polling
	if p.Hz < 0 {
		return fmt.Errorf("polling.hz: must be >= 0")
	}
	if p.RefreshMs < 0 {
		return fmt.Errorf("polling.refresh_ms: must be >= 0")
	}
	for _, pin := range p.AnalogPins {
		if pin < 0 {
			return fmt.Errorf("polling.analog_pins: pin %d must be >= 0", pin)
		}
	}
	for _, pin := range p.DigitalPins {
		if pin < 0 {
			return fmt.Errorf("polling.digital_pins: pin %d must be >= 0", pin)
		}
	}

	// ------------------------------------------------------------
	// LOOPS
	// ------------------------------------------------------------

	if cfg.Dispatcher.SettleMs < 0 {
		return fmt.Errorf("dispatcher.settle_ms: must be >= 0")
	}
	if cfg.Publisher.IdleMs < 0 {
		return fmt.Errorf("publisher.idle_ms: must be >= 0")
	}
	s := cfg.Shutdown
	if s.RetryMs < 0 || s.TimeoutMs < 0 {
		return fmt.Errorf("shutdown: retry_ms and timeout_ms must be >= 0")
	}
	if s.RetryMs > 0 && s.TimeoutMs > 0 && s.RetryMs > s.TimeoutMs {
		return fmt.Errorf("shutdown: retry_ms (%d) exceeds timeout_ms (%d)", s.RetryMs, s.TimeoutMs)
	}

	// ------------------------------------------------------------
	// BUS
	// ------------------------------------------------------------

	b := cfg.Bus
	switch b.Driver {
	case "", BusMQTT, BusInline:
	default:
		return fmt.Errorf("bus.driver: unknown driver %q", b.Driver)
	}
	if b.QoS > 2 {
		return fmt.Errorf("bus.qos: %d must be 0, 1 or 2", b.QoS)
	}
	if strings.ContainsAny(b.TopicPrefix, "#+") {
		return fmt.Errorf("bus.topic_prefix: wildcards not allowed")
	}
	if b.StatusMs < 0 || b.ConnectMs < 0 {
		return fmt.Errorf("bus: status_ms and connect_ms must be >= 0")
	}

	// ------------------------------------------------------------
	// LOGGING
	// ------------------------------------------------------------

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format: %q must be text or json", cfg.Logging.Format)
	}

	return nil
}

func validHWID(s string) bool {
	vid, pid, ok := strings.Cut(s, ":")
	return ok && isHex4(vid) && isHex4(pid)
}

func isHex4(s string) bool {
	if len(s) != 4 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
