// Package config loads and validates the JSON configuration document
// described in spec.md §6.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Mode selects which radio backend the coordinator drives.
type Mode string

const (
	ModeStandard Mode = "STANDARD"
	ModeFlex     Mode = "FLEX"
)

// Config is the top-level JSON document. Unknown keys are ignored by
// encoding/json's default Unmarshal behavior; missing keys keep their
// Go zero value until ApplyDefaults fills them in.
type Config struct {
	Mode      Mode            `json:"mode"`
	WSJTX     WSJTXConfig     `json:"wsjtx"`
	Station   StationConfig   `json:"station"`
	Standard  StandardConfig  `json:"standard"`
	Flex      FlexConfig      `json:"flex"`
	Dashboard DashboardConfig `json:"dashboard"`
	Web       WebConfig       `json:"web"`
}

type WSJTXConfig struct {
	Path string `json:"path"`
}

type StationConfig struct {
	Callsign string `json:"callsign"`
	Grid     string `json:"grid"`
}

type StandardConfig struct {
	RigName string `json:"rig_name"`
}

type FlexConfig struct {
	Host          string  `json:"host"`
	CATBasePort   int     `json:"cat_base_port"`
	DefaultBands  []int64 `json:"default_bands"`
}

type DashboardConfig struct {
	StationLifetimeS   int        `json:"station_lifetime_s"`
	SNRWeakThreshold   float64    `json:"snr_weak_threshold"`
	SNRStrongThreshold float64    `json:"snr_strong_threshold"`
	ADIFLogPath        string     `json:"adif_log_path"`
	MQTT               MQTTConfig `json:"mqtt"`
}

// MQTTConfig mirrors the teacher's own MQTTConfig shape (mqtt_publisher.go):
// an empty Broker disables the mirror entirely.
type MQTTConfig struct {
	Broker      string `json:"broker"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
}

type WebConfig struct {
	Port int `json:"port"`
}

// Defaults matching spec.md §6 / §4 well-known values.
const (
	DefaultTelemetryPort = 2237
	DefaultRadioPort     = 4992
	DefaultCATBasePort   = 7809
	DefaultWebPort        = 8080
)

// Load reads filename, parses it as JSON, applies environment overrides,
// then fills unset fields with defaults.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides implements spec.md §6: MODE, FLEX_HOST, RIG_NAME.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MODE"); v != "" {
		c.Mode = Mode(v)
	}
	if v := os.Getenv("FLEX_HOST"); v != "" {
		c.Flex.Host = v
	}
	if v := os.Getenv("RIG_NAME"); v != "" {
		c.Standard.RigName = v
	}
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeFlex
	}
	if c.Flex.CATBasePort == 0 {
		c.Flex.CATBasePort = DefaultCATBasePort
	}
	if c.Flex.Host == "" {
		c.Flex.Host = "127.0.0.1"
	}
	if c.Web.Port == 0 {
		c.Web.Port = DefaultWebPort
	}
	if c.Dashboard.StationLifetimeS == 0 {
		c.Dashboard.StationLifetimeS = 300
	}
	if c.Dashboard.SNRWeakThreshold == 0 {
		c.Dashboard.SNRWeakThreshold = -15
	}
	if c.Dashboard.SNRStrongThreshold == 0 {
		c.Dashboard.SNRStrongThreshold = 0
	}
	if c.Standard.RigName == "" {
		c.Standard.RigName = "TS-2000"
	}
	if c.Dashboard.MQTT.TopicPrefix == "" {
		c.Dashboard.MQTT.TopicPrefix = "wsjtxmcpd"
	}
}

// Validate rejects configurations the coordinator could not act on.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeStandard, ModeFlex:
	default:
		return fmt.Errorf("config: unrecognized mode %q (want STANDARD or FLEX)", c.Mode)
	}
	if c.Mode == ModeFlex && c.Flex.Host == "" {
		return fmt.Errorf("config: flex.host is required in FLEX mode")
	}
	return nil
}
