// Package httpdtest serves an httpd.Handler over a local test server.
package httpdtest

import (
	"net/http/httptest"

	"github.com/influxdata/alertd/auth"
	"github.com/influxdata/alertd/services/diagnostic"
	"github.com/influxdata/alertd/services/httpd"
	"go.uber.org/zap"
)

// SharedSecret signs bearer tokens accepted by servers from NewServer.
const SharedSecret = "httpdtest-secret"

type Server struct {
	Handler *httpd.Handler
	Server  *httptest.Server
}

// NewServer serves a Handler that authenticates callers against as.
// A nil as accepts only anonymous requests.
func NewServer(as auth.Interface, verbose bool) *Server {
	l := zap.NewNop()
	if verbose {
		l = zap.NewExample()
	}
	ds := diagnostic.NewServiceWithLogger(l)
	h := httpd.NewHandler(verbose, false, SharedSecret, ds.NewHTTPDHandler())
	if as != nil {
		h.AuthService = as
	}
	h.DiagService = ds
	s := &Server{
		Handler: h,
		Server:  httptest.NewServer(h),
	}
	return s
}

func (s *Server) URL() string {
	return s.Server.URL
}

func (s *Server) Close() error {
	s.Server.Close()
	return nil
}

func (s *Server) AddRoutes(routes []httpd.Route) error {
	return s.Handler.AddRoutes(routes)
}

func (s *Server) DelRoutes(routes []httpd.Route) {
	s.Handler.DelRoutes(routes)
}
