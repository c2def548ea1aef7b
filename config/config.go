// Package config loads the growpipe daemon configuration from YAML.
package config

import (
	"os"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/mcuadros/go-defaults"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/jacoelho/growpipe"
)

// Config is the top level configuration file. See New for default values.
type Config struct {
	Listen string `yaml:"listen" default:":8080"`
	// ListenRetries is how many more times binding Listen is attempted, with
	// exponential back-off, while the address is unavailable.
	ListenRetries uint64 `yaml:"listenRetries" default:"5"`
	// AllowedOrigins lists the origins allowed to open websockets. Empty
	// allows same-origin requests only; "*" allows any.
	AllowedOrigins []string   `yaml:"allowedOrigins"`
	Log            LogConfig  `yaml:"log"`
	Pipe           PipeConfig `yaml:"pipe"`
}

// LogConfig selects the logrus formatter and level.
type LogConfig struct {
	// Format is one of text, json or mozlog.
	Format string `yaml:"format" default:"text"`
	Level  string `yaml:"level" default:"info"`
}

// PipeConfig holds the options applied to every pipe.
type PipeConfig struct {
	InitialCapacity int `yaml:"initialCapacity" default:"1024"`
	// MaxCapacity bounds buffer growth; 0 leaves it unbounded.
	MaxCapacity int `yaml:"maxCapacity" default:"0"`
	// ReadTimeout bounds how long a front end waits for data. 0 waits until the
	// client goes away.
	ReadTimeout time.Duration `yaml:"readTimeout"`
}

// New returns a Config populated with defaults.
func New() *Config {
	c := new(Config)
	defaults.SetDefaults(c)
	return c
}

// Load reads filename over the defaults. An empty filename returns the
// defaults unchanged.
func Load(filename string) (*Config, error) {
	c := New()
	if filename == "" {
		return c, nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", filename)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "validating %s", filename)
	}
	return c, nil
}

// Validate checks values that the pipe would otherwise reject at creation.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "text", "json", "mozlog":
	default:
		return errors.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Pipe.InitialCapacity <= 0 {
		return errors.Wrapf(growpipe.ErrInvalidCapacity, "initialCapacity %d", c.Pipe.InitialCapacity)
	}
	if c.Pipe.MaxCapacity != 0 && c.Pipe.MaxCapacity < c.Pipe.InitialCapacity {
		return errors.Wrapf(growpipe.ErrInvalidCapacity, "maxCapacity %d", c.Pipe.MaxCapacity)
	}
	if c.Pipe.ReadTimeout < 0 {
		return errors.Errorf("negative readTimeout %s", c.Pipe.ReadTimeout)
	}
	return nil
}

// Options converts the pipe section into growpipe options.
func (pc PipeConfig) Options() []growpipe.Option {
	return []growpipe.Option{
		growpipe.WithInitialCapacity(pc.InitialCapacity),
		growpipe.WithMaxCapacity(pc.MaxCapacity),
	}
}

// ListenBackOff returns the back-off used while binding the listen address.
// Zero ListenRetries fails on the first error.
func (c *Config) ListenBackOff() backoff.BackOff {
	if c.ListenRetries == 0 {
		return &backoff.StopBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return backoff.WithMaxRetries(b, c.ListenRetries)
}
