// Package server wires the alertd services together and manages their lifecycle.
package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/influxdata/alertd/server/vars"
	"github.com/influxdata/alertd/services/alert"
	"github.com/influxdata/alertd/services/auth"
	"github.com/influxdata/alertd/services/diagnostic"
	"github.com/influxdata/alertd/services/httpd"
	"github.com/influxdata/alertd/services/storage"
	"github.com/pkg/errors"
)

const serverIDFilename = "server.id"

// BuildInfo represents the build details for the server code.
type BuildInfo struct {
	Version string
	Commit  string
	Branch  string
}

type Diagnostic interface {
	Error(msg string, err error)
	Info(msg string)
	Debug(msg string)
	OpenedService(name string)
	ClosedService(name string, err error)
}

// Server represents a container for the storage and services.
// It is built using a Config and it manages the startup and shutdown of all
// services in the proper order.
type Server struct {
	dataDir  string
	hostname string

	config *Config

	err chan error

	DiagService      *diagnostic.Service
	StorageService   *storage.Service
	StorageAPIServer *storage.APIServer
	AuthService      *auth.Service
	HTTPDService     *httpd.Service
	AlertService     *alert.Service

	// List of services in startup order
	Services []Service
	// Map of service name to index in Services list
	ServicesByName map[string]int
	names          []string

	BuildInfo BuildInfo
	ServerID  uuid.UUID
	started   time.Time

	diag Diagnostic
}

// New returns a new instance of Server built from a config.
// ds must already be open so the handlers it hands out write to the configured output.
func New(c *Config, buildInfo BuildInfo, ds *diagnostic.Service) (*Server, error) {
	err := c.Validate()
	if err != nil {
		return nil, fmt.Errorf("%s. To generate a valid configuration file run `alertd config > alertd.generated.conf`.", err)
	}
	d := ds.NewServerHandler()
	s := &Server{
		config:         c,
		BuildInfo:      buildInfo,
		dataDir:        c.DataDir,
		hostname:       c.Hostname,
		err:            make(chan error, 1),
		DiagService:    ds,
		ServicesByName: make(map[string]int),
		started:        time.Now(),
		diag:           d,
	}
	s.diag.Info("alertd hostname: " + s.hostname)

	if err := s.setupIDs(); err != nil {
		return nil, err
	}
	s.diag.Info("server id: " + s.ServerID.String())

	s.initHTTPDService()
	s.appendStorageService()
	s.appendAuthService()
	s.appendAlertService()
	if err := s.registerServerMetrics(); err != nil {
		return nil, err
	}

	// Append HTTPD Service last so that the API is not listening till everything else succeeded.
	s.appendHTTPDService()

	return s, nil
}

func (s *Server) AppendService(name string, srv Service) {
	if _, ok := s.ServicesByName[name]; ok {
		// Should be unreachable code
		panic("cannot append service twice")
	}
	i := len(s.Services)
	s.Services = append(s.Services, srv)
	s.ServicesByName[name] = i
	s.names = append(s.names, name)
}

func (s *Server) initHTTPDService() {
	srv := httpd.NewService(s.config.HTTP, s.hostname, s.DiagService.NewHTTPDHandler())
	srv.Handler.Version = s.BuildInfo.Version
	srv.Handler.DiagService = s.DiagService
	srv.TLS = s.config.TLS

	s.HTTPDService = srv
}

func (s *Server) appendHTTPDService() {
	s.AppendService("httpd", s.HTTPDService)
}

func (s *Server) appendStorageService() {
	srv := storage.NewService(s.config.Storage, s.DiagService.NewStorageHandler())
	s.StorageService = srv
	s.AppendService("storage", srv)

	api := storage.NewAPIServer(srv)
	api.HTTPDService = s.HTTPDService
	s.StorageAPIServer = api
	s.AppendService("storage_api", api)
}

func (s *Server) appendAuthService() {
	srv := auth.NewService(s.config.Auth, s.DiagService.NewAuthHandler())
	srv.StorageService = s.StorageService
	srv.HTTPDService = s.HTTPDService

	s.AuthService = srv
	s.HTTPDService.Handler.AuthService = srv
	s.AppendService("auth", srv)
}

func (s *Server) appendAlertService() {
	srv := alert.NewService(s.config.Alert, s.DiagService.NewAlertHandler())
	srv.StorageService = s.StorageService
	srv.AuthService = s.AuthService
	srv.HTTPDService = s.HTTPDService
	srv.Registerer = s.HTTPDService.Handler.Registry

	s.AlertService = srv
	s.AppendService("alert", srv)
}

func (s *Server) registerServerMetrics() error {
	info := vars.Info{
		ServerID: s.ServerID.String(),
		Host:     s.hostname,
		Version:  s.BuildInfo.Version,
		Commit:   s.BuildInfo.Commit,
	}
	for _, c := range vars.Collectors(info, s.started) {
		if err := s.HTTPDService.Handler.Registry.Register(c); err != nil {
			return errors.Wrap(err, "failed to register server metrics")
		}
	}
	return nil
}

// Err returns an error channel that multiplexes all out of band errors received from all services.
func (s *Server) Err() <-chan error { return s.err }

// Open opens all the services.
func (s *Server) Open() error {
	if err := s.startServices(); err != nil {
		s.Close()
		return err
	}

	go s.watchServices()

	return nil
}

func (s *Server) startServices() error {
	for i, service := range s.Services {
		if err := service.Open(); err != nil {
			return fmt.Errorf("open service %s: %s", s.names[i], err)
		}
		s.diag.OpenedService(s.names[i])
	}
	return nil
}

// Watch if something dies
func (s *Server) watchServices() {
	err := <-s.HTTPDService.Err()
	s.err <- err
}

// Close shuts down all services in reverse startup order.
func (s *Server) Close() error {
	// Stop accepting requests before anything they use goes away.
	if err := s.HTTPDService.Close(); err != nil {
		s.diag.Error("error closing httpd service", err)
	}

	var errs []string
	for i := len(s.Services) - 1; i >= 0; i-- {
		if s.Services[i] == s.HTTPDService {
			continue
		}
		err := s.Services[i].Close()
		s.diag.ClosedService(s.names[i], err)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", s.names[i], err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close services: %s", strings.Join(errs, "; "))
	}
	return nil
}

// setupIDs creates the data dir and reads, or creates, the server ID kept in it.
func (s *Server) setupIDs() error {
	// Create the data dir if not exists
	if f, err := os.Stat(s.dataDir); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(s.dataDir, 0755); err != nil {
				return errors.Wrapf(err, "data_dir %q does not exist, failed to create it", s.dataDir)
			}
		} else {
			return errors.Wrapf(err, "failed to stat data dir %q", s.dataDir)
		}
	} else if !f.IsDir() {
		return fmt.Errorf("path data_dir %s exists and is not a directory", s.dataDir)
	}

	serverIDPath := filepath.Join(s.dataDir, serverIDFilename)
	serverID, err := readID(serverIDPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if serverID == uuid.Nil {
		serverID = uuid.New()
		if err := writeID(serverIDPath, serverID); err != nil {
			return errors.Wrap(err, "failed to save server ID")
		}
	}
	s.ServerID = serverID
	return nil
}

func readID(file string) (uuid.UUID, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.ParseBytes(b)
	return id, errors.Wrapf(err, "invalid id in %q", file)
}

func writeID(file string, id uuid.UUID) error {
	return os.WriteFile(file, []byte(id.String()), 0644)
}

// Service represents a service attached to the server.
type Service interface {
	Open() error
	Close() error
}
