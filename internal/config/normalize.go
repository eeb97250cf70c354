// internal/config/normalize.go
package config

import "strings"

// Defaults applied by Normalize.
const (
	DefaultBaudRate   = 115200
	DefaultHWID       = "0403:6001"
	DefaultTimeoutMs  = 1000
	DefaultSpeed      = 5000
	DefaultResetDelay = 2000

	DefaultModbusScale = 10

	DefaultPollHz     = 10
	DefaultRefreshMs  = 500
	DefaultSettleMs   = 500
	DefaultIdleMs     = 10
	DefaultRetryMs    = 500
	DefaultShutdownMs = 5000

	DefaultBusURL      = "mqtt://localhost:1883"
	DefaultClientID    = "uarm-bridge"
	DefaultTopicPrefix = "uarm_metal/"
	DefaultStatusMs    = 5000
	DefaultConnectMs   = 10000

	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	d := &cfg.Device
	if d.Driver == "" {
		d.Driver = DriverSerial
	}
	if d.TimeoutMs == 0 {
		d.TimeoutMs = DefaultTimeoutMs
	}
	if d.BaudRate == 0 {
		d.BaudRate = DefaultBaudRate
	}
	if len(d.HWIDs) == 0 {
		d.HWIDs = []string{DefaultHWID}
	}
	for i, id := range d.HWIDs {
		d.HWIDs[i] = strings.ToUpper(id)
	}
	if d.Speed == 0 {
		d.Speed = DefaultSpeed
	}
	if d.ResetDelayMs == 0 {
		d.ResetDelayMs = DefaultResetDelay
	}
	if d.Modbus.Transport == "" {
		d.Modbus.Transport = "tcp"
	}
	if d.Modbus.Scale == 0 {
		d.Modbus.Scale = DefaultModbusScale
	}

	// ------------------------------------------------------------
	// POLLING
	// ------------------------------------------------------------

	p := &cfg.Polling
	if p.Hz == 0 {
		p.Hz = DefaultPollHz
	}
	if p.RefreshMs == 0 {
		p.RefreshMs = DefaultRefreshMs
	}
	if p.Position == nil {
		p.Position = boolPtr(true)
	}
	if p.JointAngles == nil {
		p.JointAngles = boolPtr(true)
	}

	// ------------------------------------------------------------
	// LOOPS
	// ------------------------------------------------------------

	if cfg.Dispatcher.SettleMs == 0 {
		cfg.Dispatcher.SettleMs = DefaultSettleMs
	}
	if cfg.Publisher.IdleMs == 0 {
		cfg.Publisher.IdleMs = DefaultIdleMs
	}
	if cfg.Shutdown.RetryMs == 0 {
		cfg.Shutdown.RetryMs = DefaultRetryMs
	}
	if cfg.Shutdown.TimeoutMs == 0 {
		cfg.Shutdown.TimeoutMs = DefaultShutdownMs
	}

	// ------------------------------------------------------------
	// BUS
	// ------------------------------------------------------------

	b := &cfg.Bus
	if b.Driver == "" {
		b.Driver = BusMQTT
	}
	if b.URL == "" {
		b.URL = DefaultBusURL
	}
	if b.ClientID == "" {
		b.ClientID = DefaultClientID
	}
	if b.TopicPrefix == "" {
		b.TopicPrefix = DefaultTopicPrefix
	}
	if b.StatusMs == 0 {
		b.StatusMs = DefaultStatusMs
	}
	if b.ConnectMs == 0 {
		b.ConnectMs = DefaultConnectMs
	}

	// ------------------------------------------------------------
	// LOGGING
	// ------------------------------------------------------------

	l := &cfg.Logging
	l.Level = strings.ToLower(l.Level)
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "text"
	}
	if l.MaxSizeMB == 0 {
		l.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = DefaultLogMaxBackups
	}
}

func boolPtr(v bool) *bool {
	return &v
}
