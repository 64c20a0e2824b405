package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/influxdata/alertd/auth"
	"github.com/influxdata/alertd/services/httpd"
	"github.com/influxdata/httprouter"
)

const (
	storagePath   = "/storage"
	backupPath    = storagePath + "/backup"
	storesPath    = storagePath + "/stores"
	storeNamePath = storesPath + "/:name"

	// RebuildAction is the only action stores currently support.
	RebuildAction = "rebuild"
)

type StoreLink struct {
	Href string `json:"href"`
	Name string `json:"name"`
}

type StoreList struct {
	Stores []StoreLink `json:"stores"`
}

type StoreActionOptions struct {
	Action string `json:"action"`
}

// APIServer exposes backup and index maintenance to administrators.
type APIServer struct {
	Registrar *StoreActionerRegistrar
	routes    []httpd.Route
	diag      Diagnostic

	Backuper interface {
		Backup(w io.Writer, size func(int64)) error
	}
	HTTPDService interface {
		AddRoutes([]httpd.Route) error
		DelRoutes([]httpd.Route)
	}
}

func NewAPIServer(s *Service) *APIServer {
	return &APIServer{
		Registrar: s.Registrar(),
		Backuper:  s,
		diag:      s.Diagnostic(),
	}
}

func (s *APIServer) Open() error {
	s.routes = []httpd.Route{
		{
			Method:      "GET",
			Pattern:     backupPath,
			HandlerFunc: httpd.AuthorizationHandler(s.handleBackup),
			NoJSON:      true,
		},
		{
			Method:      "GET",
			Pattern:     storesPath,
			HandlerFunc: httpd.AuthorizationHandler(s.handleListStores),
		},
		{
			Method:      "POST",
			Pattern:     storeNamePath,
			HandlerFunc: httpd.AuthorizationHandler(s.handleStoreAction),
		},
	}
	return s.HTTPDService.AddRoutes(s.routes)
}

func (s *APIServer) Close() error {
	if s.HTTPDService != nil {
		s.HTTPDService.DelRoutes(s.routes)
	}
	return nil
}

func requireAdmin(w http.ResponseWriter, user auth.User) bool {
	if user.IsAnonymous() {
		httpd.HttpError(w, "authentication required", true, http.StatusUnauthorized)
		return false
	}
	if !user.IsAdmin() {
		httpd.HttpError(w, fmt.Sprintf("user %q is not an administrator", user.Name()), true, http.StatusForbidden)
		return false
	}
	return true
}

func (s *APIServer) handleBackup(w http.ResponseWriter, r *http.Request, user auth.User) {
	if !requireAdmin(w, user) {
		return
	}
	started := false
	err := s.Backuper.Backup(w, func(size int64) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="alertd.db"`)
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		started = true
	})
	if err == nil {
		return
	}
	if !started {
		httpd.HttpError(w, err.Error(), true, http.StatusInternalServerError)
		return
	}
	// Headers are gone already, a client detects the failure by
	// comparing the bytes received with Content-Length.
	s.diag.Error("failed to send backup data", err)
}

func (s *APIServer) handleListStores(w http.ResponseWriter, r *http.Request, user auth.User) {
	if !requireAdmin(w, user) {
		return
	}
	names := s.Registrar.List()
	list := StoreList{
		Stores: make([]StoreLink, len(names)),
	}
	for i, name := range names {
		list.Stores[i] = StoreLink{
			Href: path.Join(storesPath, name),
			Name: name,
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write(httpd.MarshalJSON(list, true))
}

func (s *APIServer) handleStoreAction(w http.ResponseWriter, r *http.Request, user auth.User) {
	if !requireAdmin(w, user) {
		return
	}
	name := httprouter.ParamsFromContext(r.Context()).ByName("name")
	store, ok := s.Registrar.Get(name)
	if !ok {
		httpd.HttpError(w, fmt.Sprintf("unknown storage %q", name), true, http.StatusNotFound)
		return
	}

	var action StoreActionOptions
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		httpd.HttpError(w, fmt.Sprintf("failed to unmarshal storage action %v", err), true, http.StatusBadRequest)
		return
	}

	switch action.Action {
	case RebuildAction:
		if err := store.Rebuild(); err != nil {
			s.diag.Error("failed to rebuild store", err)
			httpd.HttpError(w, fmt.Sprintf("failed to rebuild %q: %v", name, err), true, http.StatusInternalServerError)
			return
		}
	default:
		httpd.HttpError(w, fmt.Sprintf("unknown storage action %q", action.Action), true, http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
