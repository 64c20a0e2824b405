package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/influxdata/alertd/server"
	"github.com/influxdata/alertd/services/auth"
	"github.com/influxdata/alertd/services/diagnostic"
	"github.com/influxdata/alertd/services/httpd"
	"github.com/influxdata/alertd/services/storage"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

const defaultTokenDuration = 24 * time.Hour

func newUserCmd() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage users directly in the database, the server must not be running",
		Flags: []cli.Flag{configFlag()},
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create a user",
				ArgsUsage: "USERNAME",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "password", Usage: "the user's password", Required: true},
					&cli.BoolFlag{Name: "admin", Usage: "allow managing users and storage"},
				},
				Action: withUsers(func(c *cli.Context, users *auth.Service, _ *server.Config) error {
					u, err := users.CreateUser(username(c), c.String("password"), c.Bool("admin"))
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(c.App.Writer, "created user %s\n", u.Name())
					return err
				}),
			},
			{
				Name:      "update",
				Usage:     "Change a user's password or admin flag",
				ArgsUsage: "USERNAME",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "password", Usage: "a new password"},
					&cli.BoolFlag{Name: "admin", Usage: "allow managing users and storage"},
				},
				Action: withUsers(func(c *cli.Context, users *auth.Service, _ *server.Config) error {
					var admin *bool
					if c.IsSet("admin") {
						a := c.Bool("admin")
						admin = &a
					}
					if c.String("password") == "" && admin == nil {
						return errors.New("nothing to update, set --password or --admin")
					}
					u, err := users.UpdateUser(username(c), c.String("password"), admin)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(c.App.Writer, "updated user %s\n", u.Name())
					return err
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a user",
				ArgsUsage: "USERNAME",
				Action: withUsers(func(c *cli.Context, users *auth.Service, _ *server.Config) error {
					name := username(c)
					if err := users.DeleteUser(name); err != nil {
						return err
					}
					_, err := fmt.Fprintf(c.App.Writer, "deleted user %s\n", name)
					return err
				}),
			},
			{
				Name:      "list",
				Usage:     "List users, optionally those matching a glob pattern",
				ArgsUsage: "[PATTERN]",
				Action: withUsers(func(c *cli.Context, users *auth.Service, _ *server.Config) error {
					list, err := users.ListUsers(c.Args().First(), 0, -1)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(c.App.Writer, 0, 8, 2, ' ', 0)
					fmt.Fprintln(w, "NAME\tADMIN")
					for _, u := range list {
						fmt.Fprintf(w, "%s\t%t\n", u.Name(), u.IsAdmin())
					}
					return w.Flush()
				}),
			},
			{
				Name:      "token",
				Usage:     "Sign a bearer token for a user with the http shared secret",
				ArgsUsage: "USERNAME",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "duration", Usage: "how long the token is valid", Value: defaultTokenDuration},
				},
				Action: withUsers(func(c *cli.Context, users *auth.Service, config *server.Config) error {
					u, err := users.User(username(c))
					if err != nil {
						return err
					}
					d := c.Duration("duration")
					if d <= 0 {
						return errors.New("duration must be positive")
					}
					token, err := httpd.NewToken(config.HTTP.SharedSecret, u.Name(), d)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.ErrWriter, "token expires "+humanize.Time(time.Now().Add(d)))
					_, err = fmt.Fprintln(c.App.Writer, token)
					return err
				}),
			},
		},
	}
}

func username(c *cli.Context) string {
	return c.Args().First()
}

type userAction func(c *cli.Context, users *auth.Service, config *server.Config) error

// withUsers opens the database named by the config and runs f against its users.
func withUsers(f userAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() == 0 && c.Command.ArgsUsage == "USERNAME" {
			return errors.New("a username is required")
		}
		config, err := loadConfig(c.String("config"))
		if err != nil {
			return err
		}
		if err := config.Validate(); err != nil {
			return err
		}

		// Only problems are worth reporting from a one-shot command.
		logging := config.Logging
		logging.Level = "warn"
		ds := diagnostic.NewService(logging, c.App.ErrWriter, c.App.ErrWriter)
		if err := ds.Open(); err != nil {
			return err
		}
		defer ds.Close()

		store := storage.NewService(config.Storage, ds.NewStorageHandler())
		if err := store.Open(); err != nil {
			return err
		}
		defer store.Close()

		users := auth.NewService(config.Auth, ds.NewAuthHandler())
		users.StorageService = store
		if err := users.Open(); err != nil {
			return err
		}
		defer users.Close()

		return f(c, users, config)
	}
}
