package httpd

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/influxdata/alertd/tlsconfig"
)

type Diagnostic interface {
	NewHTTPServerErrorLogger() *log.Logger

	StartingService()
	StoppedService()
	ShutdownTimeout()
	AuthenticationEnabled(enabled bool)

	ListeningOn(addr string, proto string)

	HTTP(
		host string,
		username string,
		start time.Time,
		method string,
		uri string,
		proto string,
		status int,
		referer string,
		userAgent string,
		reqID string,
		duration time.Duration,
	)

	Error(msg string, err error)
	RecoveryError(
		msg string,
		err string,
		host string,
		username string,
		start time.Time,
		method string,
		uri string,
		proto string,
		status int,
		referer string,
		userAgent string,
		reqID string,
		duration time.Duration,
	)
}

type Service struct {
	mu    sync.Mutex
	ln    net.Listener
	addr  string
	https bool
	cert  string
	key   string
	err   chan error

	externalURL     string
	shutdownTimeout time.Duration

	server *http.Server
	done   chan struct{}

	Handler *Handler
	// TLS restricts the HTTPS listener.
	TLS tlsconfig.Config

	diag Diagnostic
}

func NewService(c Config, hostname string, d Diagnostic) *Service {
	port, _ := c.Port()
	u := url.URL{
		Host:   fmt.Sprintf("%s:%d", hostname, port),
		Scheme: "http",
	}
	if c.HttpsEnabled {
		u.Scheme = "https"
	}
	s := &Service{
		addr:            c.BindAddress,
		https:           c.HttpsEnabled,
		cert:            c.HttpsCertificate,
		key:             c.HttpsPrivateKey,
		externalURL:     u.String(),
		err:             make(chan error, 1),
		shutdownTimeout: time.Duration(c.ShutdownTimeout),
		Handler:         NewHandler(c.LogEnabled, c.GZIP, c.SharedSecret, d),
		diag:            d,
	}
	if s.key == "" {
		s.key = s.cert
	}
	return s
}

// Open starts listening and serving requests in the background.
// Serving failures are reported on Err.
func (s *Service) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diag.StartingService()
	s.diag.AuthenticationEnabled(s.Handler.AuthService != nil)

	proto := "http"
	if s.https {
		tlsConfig, err := s.TLS.Server(s.cert, s.key)
		if err != nil {
			return err
		}
		listener, err := tls.Listen("tcp", s.addr, tlsConfig)
		if err != nil {
			return err
		}
		s.ln = listener
		proto = "https"
	} else {
		listener, err := net.Listen("tcp", s.addr)
		if err != nil {
			return err
		}
		s.ln = listener
	}
	s.diag.ListeningOn(s.ln.Addr().String(), proto)

	s.server = &http.Server{
		Handler:  s.Handler,
		ErrorLog: s.diag.NewHTTPServerErrorLogger(),
	}
	s.done = make(chan struct{})
	go s.serve(s.server, s.ln, s.done)
	return nil
}

// Close stops accepting connections and waits up to the shutdown timeout
// for in-flight requests before closing them.
func (s *Service) Close() error {
	defer s.diag.StoppedService()
	s.mu.Lock()
	defer s.mu.Unlock()
	// If server is not set we were never started
	if s.server == nil {
		return nil
	}

	ctx := context.Background()
	if s.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}
	err := s.server.Shutdown(ctx)
	if err == context.DeadlineExceeded {
		s.diag.ShutdownTimeout()
		err = s.server.Close()
	}
	<-s.done
	s.server = nil
	return err
}

// Err reports the error that stopped the server, or nil after a clean Close.
func (s *Service) Err() <-chan error {
	return s.err
}

func (s *Service) serve(server *http.Server, ln net.Listener, done chan struct{}) {
	defer close(done)
	err := server.Serve(ln)
	if err == http.ErrServerClosed {
		err = nil
	} else {
		err = fmt.Errorf("listener failed: addr=%s, err=%s", ln.Addr(), err)
	}
	select {
	case s.err <- err:
	default:
	}
}

func (s *Service) Addr() net.Addr {
	if s.ln != nil {
		return s.ln.Addr()
	}
	return nil
}

// URL is the address the server is actually listening on.
func (s *Service) URL() string {
	if s.ln != nil {
		if s.https {
			return "https://" + s.Addr().String()
		}
		return "http://" + s.Addr().String()
	}
	return ""
}

// ExternalURL should resolve externally to the server HTTP endpoint.
// It is possible that the URL does not resolve correctly if the hostname config setting is incorrect.
func (s *Service) ExternalURL() string {
	return s.externalURL
}

func (s *Service) AddRoutes(routes []Route) error {
	return s.Handler.AddRoutes(routes)
}

func (s *Service) DelRoutes(routes []Route) {
	s.Handler.DelRoutes(routes)
}
