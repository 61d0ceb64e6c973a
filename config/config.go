// Package config loads process configuration for the incentive server.
//
// Load layers, lowest precedence first:
//  1. defaults (New)
//  2. a YAML file when INCENTIVE_CONFIG is set
//  3. environment variables prefixed INCENTIVE_ (INCENTIVE_DB_PATH -> db_path)
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/warp/incentive-engine/approval"
)

const (
	EnvPrefix = "INCENTIVE_"
	EnvFile   = "INCENTIVE_CONFIG"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite file; ":memory:" keeps everything in process.
	DBPath string `koanf:"db_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Currency is assumed for employees and plans that omit one.
	Currency string `koanf:"currency"`

	// Approval thresholds, inclusive upper bounds, as decimal strings.
	ApprovalLevel1Max string `koanf:"approval_level1_max"`
	ApprovalLevel2Max string `koanf:"approval_level2_max"`

	SLALevel1Hours int `koanf:"sla_level1_hours"`
	SLALevel2Hours int `koanf:"sla_level2_hours"`
	SLALevel3Hours int `koanf:"sla_level3_hours"`

	// RedisAddr enables the department cache when set.
	RedisAddr       string `koanf:"redis_addr"`
	RedisTTLSeconds int    `koanf:"redis_ttl_seconds"`

	SweepEnabled         bool `koanf:"sweep_enabled"`
	SweepIntervalSeconds int  `koanf:"sweep_interval_seconds"`
}

// New returns a Config with defaults.
func New() *Config {
	return &Config{
		Addr:                 ":8080",
		DBPath:               "./data/incentive.db",
		LogLevel:             "info",
		Currency:             "INR",
		ApprovalLevel1Max:    "50000",
		ApprovalLevel2Max:    "100000",
		SLALevel1Hours:       72,
		SLALevel2Hours:       48,
		SLALevel3Hours:       24,
		RedisTTLSeconds:      600,
		SweepEnabled:         false,
		SweepIntervalSeconds: 300,
	}
}

// Load builds a Config from defaults, the optional file and the environment.
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(EnvFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// Keys are flat, so underscores stay as they are.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	}
	if len(strings.TrimSpace(c.Currency)) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidConfig)
	}
	if c.RedisTTLSeconds <= 0 {
		return fmt.Errorf("%w: redis_ttl_seconds must be positive", ErrInvalidConfig)
	}
	if c.SweepEnabled && c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("%w: sweep_interval_seconds must be positive", ErrInvalidConfig)
	}
	if _, err := c.Approval(); err != nil {
		return err
	}
	return nil
}

// Approval converts the threshold and SLA keys into a workflow config.
func (c *Config) Approval() (approval.Config, error) {
	l1, err := decimal.NewFromString(c.ApprovalLevel1Max)
	if err != nil {
		return approval.Config{}, fmt.Errorf("%w: approval_level1_max: %v", ErrInvalidConfig, err)
	}
	l2, err := decimal.NewFromString(c.ApprovalLevel2Max)
	if err != nil {
		return approval.Config{}, fmt.Errorf("%w: approval_level2_max: %v", ErrInvalidConfig, err)
	}
	ac := approval.Config{
		Level1Max: l1,
		Level2Max: l2,
		Level1SLA: time.Duration(c.SLALevel1Hours) * time.Hour,
		Level2SLA: time.Duration(c.SLALevel2Hours) * time.Hour,
		Level3SLA: time.Duration(c.SLALevel3Hours) * time.Hour,
	}
	if err := ac.Validate(); err != nil {
		return approval.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return ac, nil
}

func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.RedisTTLSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
