package server

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/alertd/services/alert"
	"github.com/influxdata/alertd/services/auth"
	"github.com/influxdata/alertd/services/diagnostic"
	"github.com/influxdata/alertd/services/httpd"
	"github.com/influxdata/alertd/services/storage"
	"github.com/influxdata/alertd/tlsconfig"
)

// EnvPrefix starts the name of every environment variable that overrides the config.
const EnvPrefix = "ALERTD"

// Config represents the configuration format for the alertd binary.
type Config struct {
	HTTP    httpd.Config      `toml:"http"`
	Storage storage.Config    `toml:"storage"`
	Auth    auth.Config       `toml:"auth"`
	Alert   alert.Config      `toml:"alert"`
	Logging diagnostic.Config `toml:"logging"`
	TLS     tlsconfig.Config  `toml:"tls"`

	Hostname string `toml:"hostname"`
	DataDir  string `toml:"data_dir"`
}

// NewConfig returns an instance of Config with reasonable defaults.
func NewConfig() *Config {
	c := &Config{
		Hostname: "localhost",
		DataDir:  "./",
	}

	c.HTTP = httpd.NewConfig()
	c.Storage = storage.NewConfig()
	c.Auth = auth.NewConfig()
	c.Alert = alert.NewConfig()
	c.Logging = diagnostic.NewConfig()
	c.TLS = tlsconfig.NewConfig()

	return c
}

// NewDemoConfig returns the config that runs when no config is specified.
// Data files live under ~/.alertd.
func NewDemoConfig() (*Config, error) {
	c := NewConfig()

	var homeDir string
	u, err := user.Current()
	if err == nil {
		homeDir = u.HomeDir
	} else if os.Getenv("HOME") != "" {
		homeDir = os.Getenv("HOME")
	} else {
		return nil, fmt.Errorf("failed to determine current user for storage")
	}

	c.Storage.BoltDBPath = filepath.Join(homeDir, ".alertd", c.Storage.BoltDBPath)
	c.DataDir = filepath.Join(homeDir, ".alertd", c.DataDir)

	return c, nil
}

// Validate returns an error if the config is invalid.
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return fmt.Errorf("must configure valid hostname")
	}
	if c.DataDir == "" {
		return fmt.Errorf("must configure valid data dir")
	}
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Alert.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.TLS.Validate(); err != nil {
		return err
	}
	return nil
}

// ApplyEnvOverrides sets fields from ALERTD_<SECTION>_<KEY> environment variables.
// Hyphens in toml keys become underscores, e.g. ALERTD_HTTP_BIND_ADDRESS.
func (c *Config) ApplyEnvOverrides() error {
	return c.applyEnvOverrides(EnvPrefix, "", reflect.ValueOf(c))
}

func (c *Config) applyEnvOverrides(prefix string, fieldDesc string, val reflect.Value) error {
	// If we have a pointer, dereference it
	s := val
	if val.Kind() == reflect.Ptr {
		s = val.Elem()
	}

	var value string

	if s.Kind() != reflect.Struct {
		value = os.Getenv(prefix)
		// Skip any fields we don't have a value to set
		if value == "" {
			return nil
		}

		if fieldDesc != "" {
			fieldDesc = " to " + fieldDesc
		}
	}

	fail := func() error {
		return fmt.Errorf("failed to apply %v%v using type %v and value '%v'", prefix, fieldDesc, s.Type().String(), value)
	}

	switch s.Kind() {
	case reflect.String:
		s.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var intValue int64

		// Handle toml.Duration
		if s.Type().Name() == "Duration" {
			dur, err := time.ParseDuration(value)
			if err != nil {
				return fail()
			}
			intValue = dur.Nanoseconds()
		} else {
			var err error
			intValue, err = strconv.ParseInt(value, 0, s.Type().Bits())
			if err != nil {
				return fail()
			}
		}
		s.SetInt(intValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return fail()
		}
		s.SetBool(boolValue)
	case reflect.Float32, reflect.Float64:
		floatValue, err := strconv.ParseFloat(value, s.Type().Bits())
		if err != nil {
			return fail()
		}
		s.SetFloat(floatValue)
	case reflect.Struct:
		if err := c.applyEnvOverridesToStruct(prefix, s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyEnvOverridesToStruct(prefix string, s reflect.Value) error {
	typeOfVal := s.Type()
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		// Get the toml tag to determine what env var name to use
		configName := typeOfVal.Field(i).Tag.Get("toml")
		if configName == "" || configName == "-" || !f.CanSet() {
			continue
		}
		// Replace hyphens with underscores to avoid issues with shells
		configName = strings.Replace(configName, "-", "_", -1)
		fieldName := typeOfVal.Field(i).Name

		key := strings.ToUpper(configName)
		if prefix != "" {
			key = strings.ToUpper(fmt.Sprintf("%s_%s", prefix, configName))
		}
		if err := c.applyEnvOverrides(key, fieldName, f); err != nil {
			return err
		}
	}
	return nil
}
