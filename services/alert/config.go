package alert

import (
	"github.com/pkg/errors"
)

const (
	// DefaultMaxTriggers bounds the trigger rows of a single submission.
	DefaultMaxTriggers = 1000
)

type Config struct {
	MaxTriggers int `toml:"max-triggers"`
}

func NewConfig() Config {
	return Config{
		MaxTriggers: DefaultMaxTriggers,
	}
}

func (c Config) Validate() error {
	if c.MaxTriggers <= 0 {
		return errors.New("alert max-triggers must be positive")
	}
	return nil
}
