package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type LoggingCfg struct {
	Level string `mapstructure:"level"`
}

type AuditCfg struct {
	Dir string `mapstructure:"dir"`
}

type CatalogCfg struct {
	File string `mapstructure:"file"`
}

// BackendCfg describes one named execution target.
type BackendCfg struct {
	Kind string `mapstructure:"kind"` // mysql | postgres
	DSN  string `mapstructure:"dsn"`
}

type ExecutionCfg struct {
	Timeout string `mapstructure:"timeout"`
}

type Config struct {
	Version   string                `mapstructure:"version"`
	Audit     AuditCfg              `mapstructure:"audit"`
	Catalog   CatalogCfg            `mapstructure:"catalog"`
	Execution ExecutionCfg          `mapstructure:"execution"`
	Backends  map[string]BackendCfg `mapstructure:"backends"`
	Logging   LoggingCfg            `mapstructure:"logging"`
}

var cfg *Config

// Load populates global config from a viper instance
func Load(v *viper.Viper) error {
	// set defaults
	v.SetDefault("version", "0.1")
	v.SetDefault("audit.dir", "audit_logs")
	v.SetDefault("execution.timeout", "30s")
	v.SetDefault("logging.level", "info")

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	cfg = &c
	return nil
}

func Get() *Config {
	if cfg == nil {
		cfg = &Config{}
	}
	return cfg
}

// ExecutionTimeout parses the configured execution timeout.
// Invalid or empty values fall back to 30 seconds.
func (c *Config) ExecutionTimeout() time.Duration {
	d, err := time.ParseDuration(c.Execution.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
