// Package config loads the host's static configuration.
//
// HostConfig is immutable once constructed: every other component in the
// host receives it by value or read-only pointer and never mutates it.
// Loading itself (the concern the spec treats as an external,
// out-of-scope collaborator) is handled here via viper, the way
// hewenyu-kong-discovery/internal/config/config.go loads its own
// top-level Config: a YAML file on a search path, overridable by
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServiceSpec describes one service identifier's registration.
type ServiceSpec struct {
	Enable      bool              `mapstructure:"enable"`
	ServiceName string            `mapstructure:"serviceName"` // qualified implementation name, resolved at startup
	Namespace   string            `mapstructure:"namespace"`
	Contract    map[string]string `mapstructure:"contract"` // alias -> real method name
}

// ConfigSpec describes one watched remote configuration entry.
type ConfigSpec struct {
	Enable      bool   `mapstructure:"enable"`
	PublishOnStart bool `mapstructure:"publish"`
	DataID      string `mapstructure:"dataId"`
	Group       string `mapstructure:"group"`
	Tenant      string `mapstructure:"tenant"`
	File        string `mapstructure:"file"`
}

// HostConfig is the full, immutable configuration of the host process.
type HostConfig struct {
	Server struct {
		Host             string `mapstructure:"host"`
		Username         string `mapstructure:"username"`
		Password         string `mapstructure:"password"`
		HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	} `mapstructure:"server"`

	Instance struct {
		IP              string  `mapstructure:"ip"`
		Port            int     `mapstructure:"port"`
		Weight          float64 `mapstructure:"weight"`
		TimeoutThreshold int64  `mapstructure:"timeout_threshold"` // milliseconds
	} `mapstructure:"instance"`

	Health struct {
		StatWindowSize  int           `mapstructure:"stat_window_size"`
		AdjustCoolDown  time.Duration `mapstructure:"adjust_cool_down"`
	} `mapstructure:"health"`

	RateLimit struct {
		RequestsPerSecond float64 `mapstructure:"requests_per_second"`
		Burst             int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`

	Debug bool `mapstructure:"debug"`

	Service map[string]ServiceSpec `mapstructure:"service"`
	Config  map[string]ConfigSpec  `mapstructure:"config"`
}

// Validate checks the invariants the rest of the host assumes hold.
func (c *HostConfig) Validate() error {
	if c.Instance.Weight <= 0 {
		return fmt.Errorf("config: instance.weight must be > 0, got %v", c.Instance.Weight)
	}
	if c.Instance.Port <= 0 || c.Instance.Port > 65535 {
		return fmt.Errorf("config: instance.port out of range: %d", c.Instance.Port)
	}
	if c.Health.StatWindowSize < 10 {
		return fmt.Errorf("config: health.stat_window_size must be >= 10, got %d", c.Health.StatWindowSize)
	}
	if c.Health.AdjustCoolDown <= 0 {
		return fmt.Errorf("config: health.adjust_cool_down must be > 0")
	}
	if c.Server.HeartbeatInterval <= 0 {
		return fmt.Errorf("config: server.heartbeat_interval must be > 0")
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("config: rate_limit.requests_per_second must be > 0, got %v", c.RateLimit.RequestsPerSecond)
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("config: rate_limit.burst must be > 0, got %d", c.RateLimit.Burst)
	}
	for k, svc := range c.Service {
		if svc.Enable && svc.ServiceName == "" {
			return fmt.Errorf("config: service %q is enabled but has no serviceName", k)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.heartbeat_interval", "5s")
	v.SetDefault("instance.weight", 100.0)
	v.SetDefault("instance.timeout_threshold", 1000)
	v.SetDefault("health.stat_window_size", 50)
	v.SetDefault("health.adjust_cool_down", "5s")
	v.SetDefault("rate_limit.requests_per_second", 200.0)
	v.SetDefault("rate_limit.burst", 400)
	v.SetDefault("debug", false)
}

// Load reads HostConfig from the given file path (if non-empty) or from
// the conventional search path (current directory, ./configs,
// $HOME/.servicehost, /etc/servicehost), then applies environment
// variable overrides (prefix SERVICEHOST_, nested keys joined by "_").
func Load(path string) (*HostConfig, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.servicehost")
		v.AddConfigPath("/etc/servicehost")
	}

	v.SetEnvPrefix("SERVICEHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg HostConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
