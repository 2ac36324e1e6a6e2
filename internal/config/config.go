// Package config loads fleet-wide and per-charger configuration: a layered
// loader where a YAML file is overlaid by environment variables, built on
// viper and mapstructure tags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// TLSConfig carries the certificate material needed for a wss:// endpoint.
type TLSConfig struct {
	CAFile     string `yaml:"ca_file" mapstructure:"ca_file"`
	CertFile   string `yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile    string `yaml:"key_file" mapstructure:"key_file"`
	SkipVerify bool   `yaml:"skip_verify" mapstructure:"skip_verify"`
}

// ChargerConfig is the identity and capability record for one virtual
// charger. The json tags are the roster file's on-disk field names.
type ChargerConfig struct {
	CpId              string `yaml:"cp_id" json:"cp_id" mapstructure:"cp_id" validate:"required"`
	Vendor            string `yaml:"vendor" json:"vendor" mapstructure:"vendor" validate:"required,max=20"`
	Model             string `yaml:"model" json:"model" mapstructure:"model" validate:"required,max=20"`
	SerialNumber      string `yaml:"serial_number" json:"serial_number,omitempty" mapstructure:"serial_number" validate:"omitempty,max=25"`
	FirmwareVersion   string `yaml:"firmware_version" json:"firmware_version,omitempty" mapstructure:"firmware_version" validate:"omitempty,max=50"`
	NumConnectors     int    `yaml:"num_connectors" json:"num_connectors" mapstructure:"num_connectors" validate:"gte=1,lte=99"`
	Phases            int    `yaml:"phases" json:"phases" mapstructure:"phases" validate:"oneof=1 3"`
	MeterType         string `yaml:"meter_type" json:"meter_type,omitempty" mapstructure:"meter_type" validate:"omitempty,max=25"`
	MeterSerialNumber string `yaml:"meter_serial_number" json:"meter_serial_number,omitempty" mapstructure:"meter_serial_number" validate:"omitempty,max=25"`
	Iccid             string `yaml:"iccid" json:"iccid,omitempty" mapstructure:"iccid" validate:"omitempty,max=20"`
	Imsi              string `yaml:"imsi" json:"imsi,omitempty" mapstructure:"imsi" validate:"omitempty,max=20"`
}

// Validate enforces the struct tags above via go-playground/validator.
func (c *ChargerConfig) Validate() error {
	return validatorInstance.Struct(c)
}

var validatorInstance = validator.New()

// FleetConfig is the process-wide configuration: default CSMS endpoint,
// roster file location, and the simulation timing constants.
type FleetConfig struct {
	WSURL              string     `mapstructure:"ws_url"`
	RosterPath         string     `mapstructure:"roster_path"`
	CallTimeoutSeconds int        `mapstructure:"call_timeout_seconds"`
	MeterTickSeconds   int        `mapstructure:"meter_tick_seconds"`
	LogLevel           string     `mapstructure:"log_level"`
	LogFormat          string     `mapstructure:"log_format"`
	TLS                *TLSConfig `mapstructure:"tls"`
}

// DefaultFleetConfig returns the baseline configuration used when no file
// or environment override is present.
func DefaultFleetConfig() FleetConfig {
	return FleetConfig{
		WSURL:              "ws://proxy.vcpfleet.local/v1",
		RosterPath:         "roster.json",
		CallTimeoutSeconds: 120,
		MeterTickSeconds:   15,
		LogLevel:           "info",
		LogFormat:          "console",
	}
}

// Load reads an optional YAML file and overlays environment variables
// (WS_URL in particular), falling back to defaults when neither is set.
func Load(path string) (FleetConfig, error) {
	cfg := DefaultFleetConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("") // WS_URL, not VCPFLEET_WS_URL
	v.AutomaticEnv()
	v.SetDefault("ws_url", cfg.WSURL)
	v.SetDefault("roster_path", cfg.RosterPath)
	v.SetDefault("call_timeout_seconds", cfg.CallTimeoutSeconds)
	v.SetDefault("meter_tick_seconds", cfg.MeterTickSeconds)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)

	if err := v.ReadInConfig(); err != nil {
		// SetConfigFile surfaces a missing file as a plain path error rather
		// than viper's not-found type; both mean defaults + env only.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.BindEnv("ws_url", "WS_URL"); err != nil {
		return cfg, err
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// IsSecureScheme reports whether a websocket endpoint URL uses wss://.
func IsSecureScheme(endpoint string) bool {
	return strings.HasPrefix(endpoint, "wss://")
}

// IsWebSocketScheme reports whether an endpoint URL carries a scheme a
// charge point session can dial; anything other than ws:// or wss:// is
// rejected before a connection attempt is made.
func IsWebSocketScheme(endpoint string) bool {
	return strings.HasPrefix(endpoint, "ws://") || IsSecureScheme(endpoint)
}
