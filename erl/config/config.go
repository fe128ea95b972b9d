// Package config loads runtime settings from YAML, with environment
// overrides, and installs them into the runtime.
//
//	log:
//	  level: debug
//	call_timeout: 10s
//	registry:
//	  multiple_names: true
//	supervisor:
//	  strategy: one_for_all
//	  intensity: 3
//	  period: 5
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/genserver"
	"github.com/uberbrodt/otp-go/erl/supervisor"
	"github.com/uberbrodt/otp-go/erl/timeout"
)

// Environment variables read by [Load] and [Parse]. They win over the file.
const (
	EnvLogLevel      = "OTP_LOG_LEVEL"
	EnvCallTimeout   = "OTP_CALL_TIMEOUT"
	EnvMultipleNames = "OTP_REGISTRY_MULTIPLE_NAMES"
)

type Config struct {
	Log LogConfig `yaml:"log"`
	// used by genserver.CallDefault and the supervisor queries
	CallTimeout time.Duration        `yaml:"call_timeout"`
	Registry    RegistryConfig       `yaml:"registry"`
	Supervisor  supervisor.SupFlagsS `yaml:"supervisor"`
}

type LogConfig struct {
	// a zap level name: debug, info, warn, error
	Level string `yaml:"level"`
}

type RegistryConfig struct {
	MultipleNames bool `yaml:"multiple_names"`
}

func Default() Config {
	return Config{
		Log:         LogConfig{Level: "info"},
		CallTimeout: timeout.Default,
		Supervisor:  supervisor.NewSupFlags(),
	}
}

// Load reads the YAML file at [path] over [Default], then applies the
// environment. An empty path skips the file.
func Load(path string) (Config, error) {
	if path == "" {
		return fromEnv(Default())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse is [Load] for YAML already in memory.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return fromEnv(cfg)
}

func fromEnv(cfg Config) (Config, error) {
	var err error
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		cfg.Log.Level = v
	}
	if v, ok := os.LookupEnv(EnvCallTimeout); ok {
		d, parseErr := time.ParseDuration(v)
		if parseErr != nil {
			multierr.AppendInto(&err, fmt.Errorf("%s: %w", EnvCallTimeout, parseErr))
		}
		cfg.CallTimeout = d
	}
	if v, ok := os.LookupEnv(EnvMultipleNames); ok {
		b, parseErr := strconv.ParseBool(v)
		if parseErr != nil {
			multierr.AppendInto(&err, fmt.Errorf("%s: %w", EnvMultipleNames, parseErr))
		}
		cfg.Registry.MultipleNames = b
	}
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid setting, not just the first.
func (c Config) Validate() error {
	var err error
	if _, lvlErr := zapcore.ParseLevel(c.Log.Level); lvlErr != nil {
		multierr.AppendInto(&err, fmt.Errorf("log.level: %w", lvlErr))
	}
	if c.CallTimeout <= 0 {
		multierr.AppendInto(&err, errors.New("call_timeout must be positive"))
	}
	if stratErr := c.Supervisor.Strategy.Validate(); stratErr != nil {
		multierr.AppendInto(&err, fmt.Errorf("supervisor.strategy: %w", stratErr))
	}
	if c.Supervisor.Intensity < 0 {
		multierr.AppendInto(&err, errors.New("supervisor.intensity must not be negative"))
	}
	if c.Supervisor.Period <= 0 {
		multierr.AppendInto(&err, errors.New("supervisor.period must be positive"))
	}
	return err
}

// Apply installs the configuration into the runtime.
func (c Config) Apply() error {
	if err := c.Validate(); err != nil {
		return err
	}
	level, _ := zapcore.ParseLevel(c.Log.Level)
	erl.SetLogLevel(level)
	genserver.SetDefaultCallTimeout(c.CallTimeout)

	if c.Registry.MultipleNames {
		erl.SetDefaultRegistryPolicy(erl.AllowMultipleNames())
	} else {
		erl.SetDefaultRegistryPolicy()
	}
	return supervisor.SetDefaultFlags(c.Supervisor)
}
