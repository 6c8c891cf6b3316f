// Package rconfig loads echoreactord's runtime configuration from flags,
// environment variables (prefixed ECHOREACTORD_), and an optional YAML
// file, with that precedence order, via viper.
package rconfig

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the typed, validated configuration for an echoreactord
// instance.
type Config struct {
	Listen         string        `mapstructure:"listen"`
	FIFOCapacity   int           `mapstructure:"fifo-capacity"`
	PollTimeout    time.Duration `mapstructure:"poll-timeout"`
	IdleSleep      time.Duration `mapstructure:"idle-sleep"`
	Daemon         bool          `mapstructure:"daemon"`
	MetricsAddr    string        `mapstructure:"metrics-addr"`
	MaxIdleTimeout int           `mapstructure:"max-idle-timeouts"`
}

// defaults are the values used when no flag, env var, or config file
// overrides them, so the daemon runs with reasonable settings out of the box.
func defaults() Config {
	return Config{
		Listen:       "127.0.0.1:7007",
		FIFOCapacity: 1024,
		PollTimeout:  100 * time.Millisecond,
		IdleSleep:    50 * time.Millisecond,
	}
}

// BindFlags registers echoreactord's CLI flags onto fs and binds them into
// v, so that flag > env > file > default resolution falls out of viper's
// own precedence rules.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	d := defaults()
	fs.String("listen", d.Listen, "address to listen on")
	fs.Int("fifo-capacity", d.FIFOCapacity, "per-direction FIFO capacity in bytes")
	fs.Duration("poll-timeout", d.PollTimeout, "epoll_wait timeout per cycle")
	fs.Duration("idle-sleep", d.IdleSleep, "sleep duration when no socket accepts any notification")
	fs.Bool("daemon", false, "log plain structured JSON to stdout instead of the console writer (does not detach from the terminal)")
	fs.String("metrics-addr", "", "address to serve /metrics on (disabled if empty)")
	fs.Int("max-idle-timeouts", 0, "consecutive idle reactor timeouts before a connection self-destructs (0 disables)")

	_ = v.BindPFlags(fs)
}

// Load resolves a Config from v (flags/env already bound) and an optional
// YAML file at configPath. An empty configPath skips the file layer
// entirely; a configPath that does not exist is an error, reported to the
// caller so cmd/echoreactord can exit EX_CONFIG.
func Load(v *viper.Viper, configPath string) (Config, error) {
	v.SetEnvPrefix("ECHOREACTORD")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "rconfig: reading config file %q", configPath)
		}
	}

	cfg := defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "rconfig: decoding configuration")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports a descriptive error for any configuration value the
// reactor core cannot act on.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("rconfig: listen address must not be empty")
	}
	if c.FIFOCapacity <= 0 {
		return errors.New("rconfig: fifo-capacity must be positive")
	}
	if c.PollTimeout <= 0 {
		return errors.New("rconfig: poll-timeout must be positive")
	}
	if c.IdleSleep <= 0 {
		return errors.New("rconfig: idle-sleep must be positive")
	}
	if c.MaxIdleTimeout < 0 {
		return errors.New("rconfig: max-idle-timeouts must not be negative")
	}
	return nil
}
