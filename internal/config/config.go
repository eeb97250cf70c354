// internal/config/config.go
package config

type Config struct {
	Device     DeviceConfig     `yaml:"device" envPrefix:"DEVICE_"`
	Polling    PollingConfig    `yaml:"polling" envPrefix:"POLLING_"`
	Dispatcher DispatcherConfig `yaml:"dispatcher" envPrefix:"DISPATCHER_"`
	Publisher  PublisherConfig  `yaml:"publisher" envPrefix:"PUBLISHER_"`
	Shutdown   ShutdownConfig   `yaml:"shutdown" envPrefix:"SHUTDOWN_"`
	Bus        BusConfig        `yaml:"bus" envPrefix:"BUS_"`
	HTTP       HTTPConfig       `yaml:"http" envPrefix:"HTTP_"`
	Logging    LoggingConfig    `yaml:"logging" envPrefix:"LOGGING_"`
}

// ---- DEVICE ----

const (
	DriverSerial = "serial"
	DriverModbus = "modbus"
	DriverSim    = "sim"
)

type DeviceConfig struct {
	Driver    string `yaml:"driver" env:"DRIVER"`
	TimeoutMs int    `yaml:"timeout_ms" env:"TIMEOUT_MS"`

	// serial
	Port         string   `yaml:"port" env:"PORT"`
	BaudRate     int      `yaml:"baud_rate" env:"BAUD_RATE"`
	HWIDs        []string `yaml:"hwids" env:"HWIDS"`
	Speed        float64  `yaml:"speed" env:"SPEED"`
	ResetDelayMs int      `yaml:"reset_delay_ms" env:"RESET_DELAY_MS"`

	Modbus ModbusConfig `yaml:"modbus" envPrefix:"MODBUS_"`
}

type ModbusConfig struct {
	Transport string         `yaml:"transport" env:"TRANSPORT"`
	Endpoint  string         `yaml:"endpoint" env:"ENDPOINT"`
	UnitID    uint8          `yaml:"unit_id" env:"UNIT_ID"`
	Scale     float64        `yaml:"scale" env:"SCALE"`
	Registers RegisterConfig `yaml:"registers"`
}

type RegisterConfig struct {
	Position    uint16 `yaml:"position"`
	JointAngles uint16 `yaml:"joint_angles"`
	Command     uint16 `yaml:"command"`
	AnalogBase  uint16 `yaml:"analog_base"`
	DigitalBase uint16 `yaml:"digital_base"`
	PumpCoil    uint16 `yaml:"pump_coil"`
	AttachCoil  uint16 `yaml:"attach_coil"`
}

// ---- POLLING ----

type PollingConfig struct {
	Hz float64 `yaml:"hz" env:"HZ"`

	// nil means enabled
	Position    *bool `yaml:"position" env:"POSITION"`
	JointAngles *bool `yaml:"joint_angles" env:"JOINT_ANGLES"`
	AnalogPins  []int `yaml:"analog_pins" env:"ANALOG_PINS"`
	DigitalPins []int `yaml:"digital_pins" env:"DIGITAL_PINS"`

	// ParamsFile, when set, is re-read every RefreshMs.
	ParamsFile string `yaml:"params_file" env:"PARAMS_FILE"`
	RefreshMs  int    `yaml:"refresh_ms" env:"REFRESH_MS"`
}

// ---- LOOPS ----

type DispatcherConfig struct {
	SettleMs int `yaml:"settle_ms" env:"SETTLE_MS"`
}

type PublisherConfig struct {
	IdleMs int `yaml:"idle_ms" env:"IDLE_MS"`
}

type ShutdownConfig struct {
	RetryMs   int `yaml:"retry_ms" env:"RETRY_MS"`
	TimeoutMs int `yaml:"timeout_ms" env:"TIMEOUT_MS"`
}

// ---- BUS ----

const (
	BusMQTT   = "mqtt"
	BusInline = "inline"
)

type BusConfig struct {
	Driver      string `yaml:"driver" env:"DRIVER"`
	URL         string `yaml:"url" env:"URL"`
	ClientID    string `yaml:"client_id" env:"CLIENT_ID"`
	Username    string `yaml:"username" env:"USERNAME"`
	Password    string `yaml:"password" env:"PASSWORD"`
	TopicPrefix string `yaml:"topic_prefix" env:"TOPIC_PREFIX"`
	QoS         byte   `yaml:"qos" env:"QOS"`
	StatusMs    int    `yaml:"status_ms" env:"STATUS_MS"`

	// ConnectMs bounds the wait for the first broker connection at startup.
	ConnectMs int `yaml:"connect_ms" env:"CONNECT_MS"`

	EmbeddedBroker BrokerConfig `yaml:"embedded_broker" envPrefix:"BROKER_"`
}

type BrokerConfig struct {
	Listen string `yaml:"listen" env:"LISTEN"`
}

// ---- HTTP ----

type HTTPConfig struct {
	Listen string `yaml:"listen" env:"LISTEN"`
}

// ---- LOGGING ----

type LoggingConfig struct {
	Level      string `yaml:"level" env:"LEVEL"`
	Format     string `yaml:"format" env:"FORMAT"`
	File       string `yaml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
}
