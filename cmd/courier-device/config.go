package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment keys, usually provided through a .env file.
const (
	keyConfigFile = "COURIER_CONFIG_FILE"
	keyDeviceID   = "COURIER_DEVICE_ID"
	keyTokenFile  = "COURIER_TOKEN_FILE"
	keyListenAddr = "COURIER_LISTEN_ADDR"
)

// Session log formats. The daemon itself always logs through zap.
const (
	logFormatZap  = "zap"
	logFormatSlog = "slog"
)

type (
	Config struct {
		Device        DeviceConfig  `yaml:"device"`
		Broker        BrokerConfig  `yaml:"broker"`
		Backoff       BackoffConfig `yaml:"backoff"`
		TokenFile     string        `yaml:"token_file"`
		TokenLifetime time.Duration `yaml:"token_lifetime"`
		TickInterval  time.Duration `yaml:"tick_interval"`
		ListenAddr    string        `yaml:"listen_addr"`
		Notifications *bool         `yaml:"connect_notifications"`
		LogFormat     string        `yaml:"log_format"`
	}

	DeviceConfig struct {
		ProjectID  string `yaml:"project_id"`
		Region     string `yaml:"region"`
		RegistryID string `yaml:"registry_id"`
		ID         string `yaml:"id"`
	}

	BrokerConfig struct {
		Host       string `yaml:"host"`
		UseLTS     bool   `yaml:"use_lts"`
		Use443     bool   `yaml:"use_443"`
		CACertFile string `yaml:"ca_cert_file"`
		Insecure   bool   `yaml:"insecure"`
	}

	BackoffConfig struct {
		Min    time.Duration `yaml:"min"`
		Max    time.Duration `yaml:"max"`
		Factor float64       `yaml:"factor"`
		Jitter time.Duration `yaml:"jitter"`
	}
)

func defaultConfig() Config {
	return Config{
		Backoff: BackoffConfig{
			Min:    time.Second,
			Max:    time.Minute,
			Factor: 2.5,
			Jitter: 500 * time.Millisecond,
		},
		TokenLifetime: time.Hour,
		TickInterval:  time.Second,
		ListenAddr:    ":9090",
		LogFormat:     logFormatZap,
	}
}

// loadConfig reads the YAML file at path, expanding ${VAR} references from the
// environment, then applies the COURIER_* overrides.
func loadConfig(path string) (Config, error) {
	conf := defaultConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &conf); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv(keyDeviceID); v != "" {
		conf.Device.ID = v
	}

	if v := os.Getenv(keyTokenFile); v != "" {
		conf.TokenFile = v
	}

	if v := os.Getenv(keyListenAddr); v != "" {
		conf.ListenAddr = v
	}

	return conf, conf.validate()
}

func (c Config) validate() error {
	var missing []string

	for name, v := range map[string]string{
		"device.project_id":  c.Device.ProjectID,
		"device.region":      c.Device.Region,
		"device.registry_id": c.Device.RegistryID,
		"device.id":          c.Device.ID,
		"token_file":         c.TokenFile,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		slices.Sort(missing)

		return fmt.Errorf("config: missing %v", missing)
	}

	if c.LogFormat != logFormatZap && c.LogFormat != logFormatSlog {
		return fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}

	if c.Broker.Insecure && c.Broker.Host == "" {
		return errors.New("config: broker.insecure requires broker.host")
	}

	return nil
}

func (c Config) notifications() bool {
	return c.Notifications == nil || *c.Notifications
}
