package main

import (
	"github.com/BurntSushi/toml"
	"github.com/influxdata/alertd/server"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func newConfigCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the configuration, the defaults unless --config is given",
		Flags: []cli.Flag{configFlag()},
		Action: func(c *cli.Context) error {
			config, err := loadConfig(c.String("config"))
			if err != nil {
				return err
			}
			return toml.NewEncoder(c.App.Writer).Encode(config)
		},
	}
}

// loadConfig reads the config at path, or the demo config when path is empty,
// and applies the environment on top.
func loadConfig(path string) (*server.Config, error) {
	var config *server.Config
	if path == "" {
		var err error
		config, err = server.NewDemoConfig()
		if err != nil {
			return nil, err
		}
	} else {
		config = server.NewConfig()
		if _, err := toml.DecodeFile(path, config); err != nil {
			return nil, errors.Wrapf(err, "parse config %q", path)
		}
	}
	if err := config.ApplyEnvOverrides(); err != nil {
		return nil, errors.Wrap(err, "apply env config")
	}
	return config, nil
}
