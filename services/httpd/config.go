package httpd

import (
	"net"
	"strconv"
	"time"

	"github.com/influxdata/influxdb/toml"
	"github.com/pkg/errors"
)

const (
	DefaultShutdownTimeout = toml.Duration(time.Second * 10)
)

type Config struct {
	BindAddress      string        `toml:"bind-address"`
	LogEnabled       bool          `toml:"log-enabled"`
	GZIP             bool          `toml:"gzip"`
	HttpsEnabled     bool          `toml:"https-enabled"`
	HttpsCertificate string        `toml:"https-certificate"`
	HttpsPrivateKey  string        `toml:"https-private-key"`
	ShutdownTimeout  toml.Duration `toml:"shutdown-timeout"`
	// Key used to verify HS256/HS512 bearer tokens. Bearer tokens are rejected when empty.
	SharedSecret string `toml:"shared-secret"`
}

func NewConfig() Config {
	return Config{
		BindAddress:      ":9595",
		LogEnabled:       true,
		GZIP:             true,
		HttpsCertificate: "/etc/ssl/alertd.pem",
		ShutdownTimeout:  DefaultShutdownTimeout,
	}
}

func (c Config) Validate() error {
	if _, err := c.Port(); err != nil {
		return errors.Wrapf(err, "invalid http bind-address %q", c.BindAddress)
	}
	if c.ShutdownTimeout < 0 {
		return errors.New("http shutdown-timeout cannot be negative")
	}
	return nil
}

// Port returns the port of the bind address.
func (c Config) Port() (int, error) {
	_, portStr, err := net.SplitHostPort(c.BindAddress)
	if err != nil {
		return -1, err
	}
	return strconv.Atoi(portStr)
}
