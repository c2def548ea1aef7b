package growpipe

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	nullLog "github.com/sirupsen/logrus/hooks/test"
)

// Option configures a Pipe.
type Option func(*config)

type config struct {
	initialCapacity int
	maxCapacity     int
	logger          logrus.FieldLogger
}

func parseConfig(opts []Option) (config, error) {
	c := config{
		initialCapacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.initialCapacity <= 0 {
		return c, errors.Wrapf(ErrInvalidCapacity, "initial capacity %d", c.initialCapacity)
	}
	if c.maxCapacity < 0 || (c.maxCapacity > 0 && c.maxCapacity < c.initialCapacity) {
		return c, errors.Wrapf(ErrInvalidCapacity, "max capacity %d below initial capacity %d",
			c.maxCapacity, c.initialCapacity)
	}
	if c.logger == nil {
		logger, _ := nullLog.NewNullLogger()
		c.logger = logger
	}
	return c, nil
}

// WithInitialCapacity sets the buffer size allocated by New. Defaults to
// DefaultCapacity.
func WithInitialCapacity(size int) Option {
	return func(c *config) {
		c.initialCapacity = size
	}
}

// WithMaxCapacity bounds buffer growth. Writes that would need a larger
// buffer fail with ErrOutOfMemory. Zero, the default, means unbounded.
func WithMaxCapacity(size int) Option {
	return func(c *config) {
		c.maxCapacity = size
	}
}

// WithLogger sets the logger used for lifecycle and growth events.
// Nothing is logged by default.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
