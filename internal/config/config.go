// Package config loads the bridge configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/banshee-data/anygrow.bridge/internal/alarm"
	"github.com/banshee-data/anygrow.bridge/internal/hub"
	"github.com/banshee-data/anygrow.bridge/internal/ledtimer"
	"github.com/banshee-data/anygrow.bridge/internal/serialmux"
	"github.com/banshee-data/anygrow.bridge/internal/units"
)

// DefaultConfigPath is the sample configuration shipped with the repository.
const DefaultConfigPath = "config/anygrow.example.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// SerialConfig is the "serial" block. Durations are strings like "100ms".
type SerialConfig struct {
	Port string `json:"port"`
	serialmux.PortOptions
	ReadTimeout string `json:"read_timeout"`
	IdleSleep   string `json:"idle_sleep"`
}

type AlarmConfig struct {
	RearmOnRecovery bool             `json:"rearm_on_recovery"`
	Thresholds      alarm.Thresholds `json:"thresholds"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Config is the root of the configuration file. Keys missing from the file
// keep the values from Default.
type Config struct {
	Serial         SerialConfig      `json:"serial"`
	Listen         string            `json:"listen"`
	DBPath         string            `json:"db_path"`
	PollInterval   string            `json:"poll_interval"`
	MaxMissedPolls int               `json:"max_missed_polls"`
	RetentionHours int               `json:"retention_hours"`
	Alarms         AlarmConfig       `json:"alarms"`
	LEDTimer       *ledtimer.Profile `json:"led_timer,omitempty"`
	Timezone       string            `json:"timezone"`
	MQTT           hub.MQTTConfig    `json:"mqtt"`
	Log            LogConfig         `json:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port: "/dev/ttyUSB0",
			PortOptions: serialmux.PortOptions{
				BaudRate: serialmux.DefaultBaudRate,
				DataBits: 8,
				StopBits: 1,
				Parity:   "N",
			},
			ReadTimeout: "100ms",
			IdleSleep:   "10ms",
		},
		Listen:         ":8080",
		DBPath:         "anygrow2_sensor.db",
		PollInterval:   "1s",
		MaxMissedPolls: 5,
		RetentionHours: 168,
		Alarms: AlarmConfig{
			RearmOnRecovery: true,
			Thresholds:      alarm.DefaultThresholds(),
		},
		MQTT: hub.MQTTConfig{
			ClientID:    "anygrow-bridge",
			TopicPrefix: "anygrow",
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// MQTTEnabled reports whether a broker is configured.
func (c *Config) MQTTEnabled() bool {
	return c.MQTT.Broker != ""
}

// Load reads a JSON configuration file over the defaults. Comments and
// trailing commas are allowed; unknown keys are rejected.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration text over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if _, err := c.Serial.PortOptions.Normalise(); err != nil {
		return fmt.Errorf("serial: %w", err)
	}
	for key, v := range map[string]string{
		"serial.read_timeout": c.Serial.ReadTimeout,
		"serial.idle_sleep":   c.Serial.IdleSleep,
		"poll_interval":       c.PollInterval,
	} {
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", key, v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", key, v)
		}
	}
	if c.MaxMissedPolls < 1 {
		return fmt.Errorf("max_missed_polls must be at least 1, got %d", c.MaxMissedPolls)
	}
	if c.RetentionHours < 1 {
		return fmt.Errorf("retention_hours must be at least 1, got %d", c.RetentionHours)
	}
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if err := c.Alarms.Thresholds.Validate(); err != nil {
		return fmt.Errorf("alarms: %w", err)
	}
	if c.LEDTimer != nil {
		if err := c.LEDTimer.Validate(); err != nil {
			return fmt.Errorf("led_timer: %w", err)
		}
	}
	if _, err := units.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if c.MQTTEnabled() {
		if c.MQTT.ClientID == "" {
			return fmt.Errorf("mqtt.client_id must not be empty")
		}
		if c.MQTT.TopicPrefix == "" {
			return fmt.Errorf("mqtt.topic_prefix must not be empty")
		}
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetPollInterval returns poll_interval as a time.Duration.
func (c *Config) GetPollInterval() time.Duration {
	return parseDuration(c.PollInterval, time.Second)
}

// GetReadTimeout returns serial.read_timeout as a time.Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Serial.ReadTimeout, serialmux.DefaultReadTimeout)
}

// GetIdleSleep returns serial.idle_sleep as a time.Duration.
func (c *Config) GetIdleSleep() time.Duration {
	return parseDuration(c.Serial.IdleSleep, serialmux.DefaultIdleSleep)
}

// Location returns the timezone LED timer segments are read in.
func (c *Config) Location() *time.Location {
	loc, err := units.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Retention returns retention_hours as a time.Duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}
