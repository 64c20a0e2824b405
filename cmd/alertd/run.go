package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/influxdata/alertd/server"
	"github.com/influxdata/alertd/services/diagnostic"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

// How long a second signal is waited for before giving up on a clean shutdown.
const shutdownTimeout = 30 * time.Second

// Options represents the command line options of the run command.
type Options struct {
	ConfigPath string
	PIDFile    string
	Hostname   string
	LogFile    string
	LogLevel   string
}

func newRunCmd() *cli.Command {
	var options Options
	return &cli.Command{
		Name:  "run",
		Usage: "Start the server",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:        "pidfile",
				Usage:       "write process ID to `FILE`",
				Destination: &options.PIDFile,
			},
			&cli.StringFlag{
				Name:        "hostname",
				Usage:       "override the 'hostname' configuration option",
				Destination: &options.Hostname,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "write logs to `FILE`",
				Destination: &options.LogFile,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "one of debug, info, warn, error",
				Destination: &options.LogLevel,
			},
		},
		Action: func(c *cli.Context) error {
			options.ConfigPath = c.String("config")
			cmd := NewCommand(c.App.Writer, c.App.ErrWriter)
			if err := cmd.Open(options); err != nil {
				return err
			}
			return cmd.Wait(c.Context)
		},
	}
}

type Diagnostic interface {
	Error(msg string, err error)
	AlertdStarting(version, commit string)
	GoVersion()
	Info(msg string)
}

// Command represents the command executed by "alertd run".
type Command struct {
	Stdout io.Writer
	Stderr io.Writer

	Server      *server.Server
	diagService *diagnostic.Service
	diag        Diagnostic
}

func NewCommand(stdout, stderr io.Writer) *Command {
	return &Command{
		Stdout: stdout,
		Stderr: stderr,
	}
}

// Open parses the config and starts the server.
func (cmd *Command) Open(options Options) error {
	config, err := loadConfig(options.ConfigPath)
	if err != nil {
		return err
	}

	// Override config hostname if specified in the command line args.
	if options.Hostname != "" {
		config.Hostname = options.Hostname
	}
	if options.LogFile != "" {
		config.Logging.File = options.LogFile
	}
	if options.LogLevel != "" {
		config.Logging.Level = options.LogLevel
	}
	if err := config.Logging.Validate(); err != nil {
		return err
	}

	cmd.diagService = diagnostic.NewService(config.Logging, cmd.Stdout, cmd.Stderr)
	if err := cmd.diagService.Open(); err != nil {
		return errors.Wrap(err, "init logging")
	}
	cmd.diag = cmd.diagService.NewCmdHandler()

	cmd.diag.AlertdStarting(version, commit)
	cmd.diag.GoVersion()
	if options.ConfigPath == "" {
		cmd.diag.Info("no configuration provided, using default settings")
	} else {
		cmd.diag.Info("using configuration at: " + options.ConfigPath)
	}

	if err := writePIDFile(options.PIDFile); err != nil {
		cmd.diagService.Close()
		return errors.Wrap(err, "write pid file")
	}

	buildInfo := server.BuildInfo{Version: version, Commit: commit, Branch: branch}
	s, err := server.New(config, buildInfo, cmd.diagService)
	if err != nil {
		cmd.diagService.Close()
		return errors.Wrap(err, "create server")
	}
	if err := s.Open(); err != nil {
		cmd.diagService.Close()
		return errors.Wrap(err, "open server")
	}
	cmd.Server = s
	return nil
}

// Wait blocks until ctx is done, a signal arrives or the server fails, then closes the server.
func (cmd *Command) Wait(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.diag.Info("listening for signals")

	var serverErr error
	select {
	case <-ctx.Done():
		cmd.diag.Info("signal received, initializing clean shutdown...")
	case serverErr = <-cmd.Server.Err():
		if serverErr != nil {
			cmd.diag.Error("server failed", serverErr)
		}
	}
	stop()

	// A second signal or the timeout abandons the clean shutdown.
	done := make(chan error, 1)
	go func() {
		done <- cmd.Close()
	}()
	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)
	select {
	case err := <-done:
		if serverErr != nil {
			return serverErr
		}
		return err
	case <-force:
		return errors.New("second signal received, shutdown aborted")
	case <-time.After(shutdownTimeout):
		return errors.New("time limit reached, shutdown aborted")
	}
}

// Close shuts down the server and then the logger.
func (cmd *Command) Close() error {
	var err error
	if cmd.Server != nil {
		err = cmd.Server.Close()
		cmd.diag.Info("server shutdown completed")
	}
	if cmd.diagService != nil {
		if lerr := cmd.diagService.Close(); err == nil {
			err = lerr
		}
	}
	return err
}

// writePIDFile writes the process ID to path.
func writePIDFile(path string) error {
	// Ignore if path is not set.
	if path == "" {
		return nil
	}

	// Ensure the required directory structure exists.
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return fmt.Errorf("mkdir: %s", err)
	}

	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(path, []byte(pid), 0666); err != nil {
		return fmt.Errorf("write file: %s", err)
	}
	return nil
}
