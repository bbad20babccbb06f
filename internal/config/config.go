package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/leandrodaf/midiscan/sdk/contracts"
	"gopkg.in/yaml.v3"
)

// Payload formats accepted by mqtt.format.
const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// Config is the root configuration for the midiscan daemon.
type Config struct {
	ClientName string        `yaml:"client_name"`
	Connect    ConnectConfig `yaml:"connect"`
	Logging    LoggingConfig `yaml:"logging"`
	Filter     FilterConfig  `yaml:"filter"`
	MQTT       MQTTConfig    `yaml:"mqtt"`
}

// ConnectConfig bounds connection attempts.
type ConnectConfig struct {
	AttemptTimeoutMS int `yaml:"attempt_timeout_ms"`
	MaxAttempts      int `yaml:"max_attempts"`
}

// LoggingConfig selects log level and destination.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Output string `yaml:"output"` // console or file
	File   string `yaml:"file"`
}

// FilterConfig lists the decoded kinds to forward. Empty means all.
type FilterConfig struct {
	Kinds []string `yaml:"kinds"`
}

// MQTTConfig configures the optional event sink.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
	Format      string `yaml:"format"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// Load reads configuration from path and applies environment overrides.
// An empty path skips the file and starts from defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		ClientName: "GO MIDI Client",
		Connect: ConnectConfig{
			AttemptTimeoutMS: 1000,
			MaxAttempts:      3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: string(contracts.ConsoleLog),
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "midiscan",
			TopicPrefix: "midiscan",
			QoS:         0,
			Format:      FormatJSON,
		},
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("MIDISCAN_CLIENT_NAME"); v != "" {
		cfg.ClientName = v
	}
	if v := os.Getenv("MIDISCAN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIDISCAN_LOG_FILE"); v != "" {
		cfg.Logging.Output = string(contracts.FileLog)
		cfg.Logging.File = v
	}
	if v := os.Getenv("MIDISCAN_ATTEMPT_TIMEOUT_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MIDISCAN_ATTEMPT_TIMEOUT_MS: %w", err)
		}
		cfg.Connect.AttemptTimeoutMS = n
	}
	if v := os.Getenv("MIDISCAN_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MIDISCAN_MAX_ATTEMPTS: %w", err)
		}
		cfg.Connect.MaxAttempts = n
	}

	// MQTT
	if v := os.Getenv("MIDISCAN_MQTT_BROKER"); v != "" {
		cfg.MQTT.Enabled = true
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("MIDISCAN_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("MIDISCAN_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.ClientName == "" {
		errs = append(errs, "client_name is required")
	}
	if c.Connect.AttemptTimeoutMS <= 0 {
		errs = append(errs, "connect.attempt_timeout_ms must be positive")
	}
	if c.Connect.MaxAttempts <= 0 {
		errs = append(errs, "connect.max_attempts must be positive")
	}

	if _, ok := contracts.ParseLogLevel(c.Logging.Level); !ok {
		errs = append(errs, fmt.Sprintf("logging.level %q is not recognised", c.Logging.Level))
	}
	switch contracts.LogDestination(c.Logging.Output) {
	case contracts.ConsoleLog:
	case contracts.FileLog:
		if c.Logging.File == "" {
			errs = append(errs, "logging.file is required when logging.output is file")
		}
	default:
		errs = append(errs, fmt.Sprintf("logging.output %q must be console or file", c.Logging.Output))
	}

	for _, k := range c.Filter.Kinds {
		if _, ok := contracts.ParseMessageKind(k); !ok {
			errs = append(errs, fmt.Sprintf("filter.kinds: unknown kind %q", k))
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errs = append(errs, "mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1 or 2")
		}
		if c.MQTT.Format != FormatJSON && c.MQTT.Format != FormatCBOR {
			errs = append(errs, fmt.Sprintf("mqtt.format %q must be json or cbor", c.MQTT.Format))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// AttemptTimeout returns connect.attempt_timeout_ms as a duration.
func (c *Config) AttemptTimeout() time.Duration {
	return time.Duration(c.Connect.AttemptTimeoutMS) * time.Millisecond
}

// LogLevel returns the parsed logging level, defaulting to info.
func (c *Config) LogLevel() contracts.LogLevel {
	level, ok := contracts.ParseLogLevel(c.Logging.Level)
	if !ok {
		return contracts.InfoLevel
	}
	return level
}

// EventFilter returns the configured filter, or nil when every kind passes.
func (c *Config) EventFilter() *contracts.MIDIEventFilter {
	if len(c.Filter.Kinds) == 0 {
		return nil
	}
	filter := &contracts.MIDIEventFilter{}
	for _, k := range c.Filter.Kinds {
		if kind, ok := contracts.ParseMessageKind(k); ok {
			filter.Kinds = append(filter.Kinds, kind)
		}
	}
	return filter
}
