package auth

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb/toml"
	"golang.org/x/crypto/bcrypt"
)

const (
	// Default cost is 10
	DefaultBcryptCost      = bcrypt.DefaultCost
	DefaultCacheExpiration = 10 * time.Minute
)

type Config struct {
	// How long a user read from the store is served from memory.
	CacheExpiration toml.Duration `toml:"cache-expiration"`
	BcryptCost      int           `toml:"bcrypt-cost"`
}

func NewConfig() Config {
	return Config{
		CacheExpiration: toml.Duration(DefaultCacheExpiration),
		BcryptCost:      DefaultBcryptCost,
	}
}

func (c Config) Validate() error {
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("must provide a bcrypt cost between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	}
	if c.CacheExpiration < 0 {
		return fmt.Errorf("cache-expiration cannot be negative, got %v", c.CacheExpiration)
	}
	return nil
}
