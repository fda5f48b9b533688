package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// HOSTPANEL_TRANSPORT_SERIAL_DEVICE=/dev/ttyUSB0.
const EnvPrefix = "HOSTPANEL"

// Transport kinds.
const (
	TransportSerial = "serial"
	TransportMQTT   = "mqtt"
)

// Connectivity flag modes.
const (
	ConnectivityStatic = "static"
	ConnectivityPing   = "ping"
)

// Ping modes.
const (
	PingICMP    = "icmp"
	PingCommand = "command"
)

// Settings is the typed hostpanel configuration.
type Settings struct {
	Interval      time.Duration `mapstructure:"interval"`
	CycleTimeout  time.Duration `mapstructure:"cycle_timeout"`
	SourceTimeout time.Duration `mapstructure:"source_timeout"`
	MaxParallel   int           `mapstructure:"max_parallel"`
	Timezone      string        `mapstructure:"timezone"`

	Sources      SourceSettings       `mapstructure:"sources"`
	Connectivity ConnectivitySettings `mapstructure:"connectivity"`
	Transport    TransportSettings    `mapstructure:"transport"`
	Server       ServerSettings       `mapstructure:"server"`
	Log          LogSettings          `mapstructure:"log"`
}

// SourceSettings configures the metric sources.
type SourceSettings struct {
	Disks         []string           `mapstructure:"disks"`
	Smartctl      string             `mapstructure:"smartctl"`
	CPUSensor     string             `mapstructure:"cpu_sensor"`
	GPUSensor     string             `mapstructure:"gpu_sensor"`
	CPUWindow     time.Duration      `mapstructure:"cpu_window"`
	GPUCommand    string             `mapstructure:"gpu_command"`
	MemoryCommand string             `mapstructure:"memory_command"`
	ExternalIP    ExternalIPSettings `mapstructure:"external_ip"`
	Ping          PingSettings       `mapstructure:"ping"`
}

// ExternalIPSettings configures the public IP lookup.
type ExternalIPSettings struct {
	URL     string        `mapstructure:"url"`
	Refresh time.Duration `mapstructure:"refresh"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PingSettings configures the latency probe.
type PingSettings struct {
	Destination string        `mapstructure:"destination"`
	Count       int           `mapstructure:"count"`
	Mode        string        `mapstructure:"mode"`
	Privileged  bool          `mapstructure:"privileged"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ConnectivitySettings controls the connectivity flag field.
type ConnectivitySettings struct {
	Mode  string `mapstructure:"mode"`
	Value string `mapstructure:"value"`
}

// TransportSettings selects and configures the frame sink.
type TransportSettings struct {
	Kind         string         `mapstructure:"kind"`
	Retries      int            `mapstructure:"retries"`
	RetryBackoff time.Duration  `mapstructure:"retry_backoff"`
	Serial       SerialSettings `mapstructure:"serial"`
	MQTT         MQTTSettings   `mapstructure:"mqtt"`
}

// SerialSettings configures the serial endpoint.
type SerialSettings struct {
	Device       string        `mapstructure:"device"`
	BaudRate     int           `mapstructure:"baud_rate"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MQTTSettings configures the MQTT endpoint.
type MQTTSettings struct {
	Broker   string        `mapstructure:"broker"`
	Topic    string        `mapstructure:"topic"`
	ClientID string        `mapstructure:"client_id"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	QoS      int           `mapstructure:"qos"`
	Retained bool          `mapstructure:"retained"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ServerSettings configures the optional health/metrics listener.
type ServerSettings struct {
	Addr string `mapstructure:"addr"`
}

// LogSettings configures the zap logger.
type LogSettings struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("interval", "10s")
	v.SetDefault("cycle_timeout", "8s")
	v.SetDefault("source_timeout", "6s")
	v.SetDefault("max_parallel", 9)
	v.SetDefault("timezone", "Local")

	v.SetDefault("sources.disks", []string{"sda", "sdb"})
	v.SetDefault("sources.smartctl", "smartctl")
	v.SetDefault("sources.cpu_sensor", "k10temp")
	v.SetDefault("sources.gpu_sensor", "amdgpu")
	v.SetDefault("sources.cpu_window", "1s")
	v.SetDefault("sources.gpu_command", "amdgpu_top")
	v.SetDefault("sources.memory_command", "free")
	v.SetDefault("sources.external_ip.url", "https://api.ipify.org?format=json")
	v.SetDefault("sources.external_ip.refresh", "5m")
	v.SetDefault("sources.external_ip.timeout", "3s")
	v.SetDefault("sources.ping.destination", "1.1.1.1")
	v.SetDefault("sources.ping.count", 4)
	v.SetDefault("sources.ping.mode", PingICMP)
	v.SetDefault("sources.ping.privileged", false)
	v.SetDefault("sources.ping.timeout", "5s")

	v.SetDefault("connectivity.mode", ConnectivityStatic)
	v.SetDefault("connectivity.value", "YES")

	v.SetDefault("transport.kind", TransportSerial)
	v.SetDefault("transport.retries", 0)
	v.SetDefault("transport.retry_backoff", "250ms")
	v.SetDefault("transport.serial.device", "/dev/ttyACM0")
	v.SetDefault("transport.serial.baud_rate", 115200)
	v.SetDefault("transport.serial.write_timeout", "1s")
	v.SetDefault("transport.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("transport.mqtt.topic", "hostpanel/frame")
	v.SetDefault("transport.mqtt.client_id", "hostpanel")
	v.SetDefault("transport.mqtt.qos", 0)
	v.SetDefault("transport.mqtt.retained", true)
	v.SetDefault("transport.mqtt.timeout", "3s")

	v.SetDefault("server.addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load builds a Config from defaults, the YAML file at path (or
// hostpanel.yaml in /etc/hostpanel or the working directory when path is
// empty) and HOSTPANEL_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return New(v), nil
	}

	v.SetConfigName("hostpanel")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/hostpanel")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return New(v), nil
}

// Settings decodes and validates the typed settings.
func (c *Config) Settings() (*Settings, error) {
	var s Settings
	if err := c.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Location resolves the configured timezone.
func (s *Settings) Location() (*time.Location, error) {
	if s.Timezone == "" || s.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// Validate checks the settings for values the pipeline cannot run with.
func (s *Settings) Validate() error {
	var errs []error
	if s.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if s.CycleTimeout <= 0 {
		errs = append(errs, errors.New("cycle_timeout must be positive"))
	}
	if s.SourceTimeout <= 0 {
		errs = append(errs, errors.New("source_timeout must be positive"))
	}
	if s.SourceTimeout > s.CycleTimeout {
		errs = append(errs, fmt.Errorf("source_timeout %s exceeds cycle_timeout %s", s.SourceTimeout, s.CycleTimeout))
	}
	if s.MaxParallel < 1 {
		errs = append(errs, errors.New("max_parallel must be at least 1"))
	}
	if len(s.Sources.Disks) != 2 {
		errs = append(errs, fmt.Errorf("sources.disks must name exactly 2 devices, got %d", len(s.Sources.Disks)))
	} else if s.Sources.Disks[0] == s.Sources.Disks[1] {
		errs = append(errs, fmt.Errorf("sources.disks names %q twice", s.Sources.Disks[0]))
	}
	if s.Sources.CPUWindow <= 0 || s.Sources.CPUWindow >= s.SourceTimeout {
		errs = append(errs, fmt.Errorf("sources.cpu_window %s must be positive and below source_timeout", s.Sources.CPUWindow))
	}
	if s.Sources.Ping.Count < 1 {
		errs = append(errs, errors.New("sources.ping.count must be at least 1"))
	}
	switch s.Sources.Ping.Mode {
	case PingICMP, PingCommand:
	default:
		errs = append(errs, fmt.Errorf("sources.ping.mode %q: want %q or %q", s.Sources.Ping.Mode, PingICMP, PingCommand))
	}
	switch s.Connectivity.Mode {
	case ConnectivityStatic:
		if s.Connectivity.Value == "" || strings.Contains(s.Connectivity.Value, "-") {
			errs = append(errs, fmt.Errorf("connectivity.value %q must be non-empty and free of '-'", s.Connectivity.Value))
		}
	case ConnectivityPing:
	default:
		errs = append(errs, fmt.Errorf("connectivity.mode %q: want %q or %q", s.Connectivity.Mode, ConnectivityStatic, ConnectivityPing))
	}
	if s.Transport.Retries < 0 {
		errs = append(errs, errors.New("transport.retries must not be negative"))
	}
	switch s.Transport.Kind {
	case TransportSerial:
		if s.Transport.Serial.Device == "" {
			errs = append(errs, errors.New("transport.serial.device is required"))
		}
		if s.Transport.Serial.BaudRate <= 0 {
			errs = append(errs, errors.New("transport.serial.baud_rate must be positive"))
		}
	case TransportMQTT:
		if s.Transport.MQTT.Broker == "" || s.Transport.MQTT.Topic == "" {
			errs = append(errs, errors.New("transport.mqtt.broker and transport.mqtt.topic are required"))
		}
		if s.Transport.MQTT.QoS < 0 || s.Transport.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("transport.mqtt.qos %d out of range 0-2", s.Transport.MQTT.QoS))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.kind %q: want %q or %q", s.Transport.Kind, TransportSerial, TransportMQTT))
	}
	if _, err := s.Location(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
