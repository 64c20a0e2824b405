package storage

import (
	"time"

	"github.com/influxdata/influxdb/toml"
	"github.com/pkg/errors"
)

const (
	DefaultBoltDBPath  = "./alertd.db"
	DefaultOpenTimeout = 2 * time.Second
	DefaultOpenRetries = 5
)

type Config struct {
	// Path to the bolt database file.
	BoltDBPath string `toml:"boltdb"`
	// How long a single attempt waits for the file lock held by another process.
	// Zero waits indefinitely.
	OpenTimeout toml.Duration `toml:"open-timeout"`
	// Additional attempts made when the database cannot be opened.
	OpenRetries int `toml:"open-retries"`
}

func NewConfig() Config {
	return Config{
		BoltDBPath:  DefaultBoltDBPath,
		OpenTimeout: toml.Duration(DefaultOpenTimeout),
		OpenRetries: DefaultOpenRetries,
	}
}

func (c Config) Validate() error {
	if c.BoltDBPath == "" {
		return errors.New("must specify storage 'boltdb' path")
	}
	if c.OpenTimeout < 0 {
		return errors.New("storage 'open-timeout' cannot be negative")
	}
	if c.OpenRetries < 0 {
		return errors.New("storage 'open-retries' cannot be negative")
	}
	return nil
}
