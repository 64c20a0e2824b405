package alert

import (
	"net/http"
	"path"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/influxdata/alertd/auth"
	"github.com/influxdata/alertd/services/httpd"
	"github.com/influxdata/httprouter"
	"github.com/pkg/errors"
)

const (
	alertPath  = "/alert"
	listPath   = alertPath + "/list"
	createPath = alertPath + "/create"
	configPath = alertPath + "/config"
	detailPath = alertPath + "/detail"
	deletePath = alertPath + "/delete"

	idParam = "id"
)

func configLink(id string) string { return path.Join(configPath, id) }
func detailLink(id string) string { return path.Join(detailPath, id) }
func deleteLink(id string) string { return path.Join(deletePath, id) }

type apiServer struct {
	service      *Service
	routes       []httpd.Route
	HTTPDService interface {
		AddRoutes([]httpd.Route) error
		DelRoutes([]httpd.Route)
	}
	diag Diagnostic
}

func (s *apiServer) Open() error {
	// Define API routes
	s.routes = []httpd.Route{
		{
			Method:      "GET",
			Pattern:     listPath,
			HandlerFunc: httpd.AuthorizationHandler(s.handleList),
		},
		{
			Method:      "GET",
			Pattern:     createPath,
			HandlerFunc: s.handleView(CreateView),
		},
		{
			Method:      "POST",
			Pattern:     createPath,
			HandlerFunc: httpd.AuthorizationHandler(s.handleSubmit),
		},
		{
			Method:      "GET",
			Pattern:     configPath + "/:" + idParam,
			HandlerFunc: s.handleView(EditView),
		},
		{
			Method:      "POST",
			Pattern:     configPath + "/:" + idParam,
			HandlerFunc: httpd.AuthorizationHandler(s.handleSubmit),
		},
		{
			Method:      "GET",
			Pattern:     detailPath + "/:" + idParam,
			HandlerFunc: s.handleView(DetailView),
		},
		{
			Method:      "POST",
			Pattern:     detailPath + "/:" + idParam,
			HandlerFunc: httpd.AuthorizationHandler(s.handleSubscribe),
		},
		{
			// Confirmation page, same rules as editing.
			Method:      "GET",
			Pattern:     deletePath + "/:" + idParam,
			HandlerFunc: s.handleView(EditView),
		},
		{
			Method:      "POST",
			Pattern:     deletePath + "/:" + idParam,
			HandlerFunc: httpd.AuthorizationHandler(s.handleDelete),
		},
		{
			Method:      "DELETE",
			Pattern:     deletePath + "/:" + idParam,
			HandlerFunc: httpd.AuthorizationHandler(s.handleDelete),
		},
	}

	return s.HTTPDService.AddRoutes(s.routes)
}

func (s *apiServer) Close() error {
	if s.HTTPDService != nil {
		s.HTTPDService.DelRoutes(s.routes)
	}
	return nil
}

func alertID(r *http.Request) string {
	return httprouter.ParamsFromContext(r.Context()).ByName(idParam)
}

// viewResponse is the body of a rendered view.
type viewResponse struct {
	Decision
	Alert *alertJSON  `json:"alert,omitempty"`
	Form  *Submission `json:"form,omitempty"`
}

type alertJSON struct {
	Link        string   `json:"link"`
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Owners      []string `json:"owners"`
	Subscribers []string `json:"subscribers"`
	// Lockout is formatted as [D ]HH:MM:SS, empty when unset.
	Lockout  string    `json:"lockout-duration"`
	LastSent string    `json:"last-sent"`
	Modified string    `json:"modified"`
	Triggers []Trigger `json:"triggers,omitempty"`
}

func toJSON(a Alert) *alertJSON {
	lastSent := "never"
	if a.LastSent != nil {
		lastSent = humanize.Time(*a.LastSent)
	}
	return &alertJSON{
		Link:        detailLink(a.ID),
		ID:          a.ID,
		Name:        a.Name,
		Owners:      a.Owners,
		Subscribers: a.Subscribers,
		Lockout:     FormatLockout(a.LockoutDuration),
		LastSent:    lastSent,
		Modified:    humanize.Time(a.Modified),
		Triggers:    a.Triggers,
	}
}

// formFor pre-fills the edit form of a as seen by caller.
func formFor(a Alert, caller auth.User) *Submission {
	sub := &Submission{
		Name:            a.Name,
		LockoutDuration: FormatLockout(a.LockoutDuration),
		OwnerNames:      a.Owners,
		Subscribe:       a.IsSubscriber(caller),
		Triggers:        make([]TriggerRow, len(a.Triggers)),
	}
	for i, t := range a.Triggers {
		row := TriggerRow{
			Name:        t.Name,
			ValueSource: noSelection,
			Compare:     noSelection,
		}
		if t.ValueSource != nil {
			row.ValueSource = *t.ValueSource
		}
		if t.Value != nil {
			row.Value = strconv.FormatFloat(*t.Value, 'g', -1, 64)
		}
		if t.Compare != NoCompare {
			row.Compare = string(t.Compare)
		}
		sub.Triggers[i] = row
	}
	return sub
}

func (s *apiServer) handleView(view View) httpd.AuthorizationHandler {
	return func(w http.ResponseWriter, r *http.Request, caller auth.User) {
		d, a, err := s.service.Resolve(caller, view, alertID(r))
		if err != nil {
			httpd.HttpError(w, err.Error(), true, http.StatusInternalServerError)
			return
		}
		s.render(w, caller, d, a)
	}
}

// render writes the response for a decision.
func (s *apiServer) render(w http.ResponseWriter, caller auth.User, d Decision, a *Alert) {
	switch d.Kind {
	case Create:
		writeView(w, http.StatusOK, viewResponse{Decision: d, Form: &Submission{Subscribe: true}})
	case Edit:
		writeView(w, http.StatusOK, viewResponse{Decision: d, Alert: toJSON(*a), Form: formFor(*a, caller)})
	case ReadOnly:
		// Only the caller's own subscription is exposed.
		ro := toJSON(*a)
		ro.Subscribers = nil
		writeView(w, http.StatusOK, viewResponse{Decision: d, Alert: ro})
	case RedirectToCreate:
		redirect(w, d, createPath)
	case RedirectToDetail:
		redirect(w, d, detailLink(d.AlertID))
	case RedirectToEdit:
		redirect(w, d, configLink(d.AlertID))
	case RequireAuthentication:
		httpd.HttpError(w, ErrAuthenticationRequired.Error(), true, http.StatusUnauthorized)
	default:
		httpd.HttpError(w, "unknown decision "+d.Kind.String(), true, http.StatusInternalServerError)
	}
}

func writeView(w http.ResponseWriter, code int, v viewResponse) {
	w.WriteHeader(code)
	w.Write(httpd.MarshalJSON(v, true))
}

func redirect(w http.ResponseWriter, d Decision, location string) {
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusSeeOther)
	w.Write(httpd.MarshalJSON(struct {
		Decision
		Location string `json:"location"`
	}{d, location}, true))
}

type validationResponse struct {
	Error      string         `json:"error"`
	Kind       ValidationKind `json:"kind"`
	Owner      string         `json:"owner,omitempty"`
	Row        *int           `json:"row,omitempty"`
	Submission Submission     `json:"submission"`
}

// writeError maps service errors onto responses. id is the alert the request was about.
func writeError(w http.ResponseWriter, err error, id string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		resp := validationResponse{
			Error:      verr.Error(),
			Kind:       verr.Kind,
			Owner:      verr.Owner,
			Submission: verr.Submission,
		}
		switch verr.Kind {
		case BadOperator, BadValue, FieldTooLong:
			row := verr.Row
			resp.Row = &row
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write(httpd.MarshalJSON(resp, true))
	case err == ErrAlertNotFound:
		redirect(w, Decision{Kind: RedirectToCreate}, createPath)
	case err == ErrNotAuthorized:
		redirect(w, Decision{Kind: RedirectToDetail, AlertID: id}, detailLink(id))
	case err == ErrAuthenticationRequired:
		httpd.HttpError(w, err.Error(), true, http.StatusUnauthorized)
	default:
		httpd.HttpError(w, err.Error(), true, http.StatusInternalServerError)
	}
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request, caller auth.User) {
	if caller.IsAnonymous() {
		httpd.HttpError(w, ErrAuthenticationRequired.Error(), true, http.StatusUnauthorized)
		return
	}
	pattern := r.URL.Query().Get("pattern")
	if _, err := path.Match(pattern, ""); err != nil {
		httpd.HttpError(w, "invalid pattern: "+err.Error(), true, http.StatusBadRequest)
		return
	}
	offset, limit := 0, 100
	for name, dst := range map[string]*int{"offset": &offset, "limit": &limit} {
		if v := r.URL.Query().Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				httpd.HttpError(w, "invalid "+name+" "+strconv.Quote(v), true, http.StatusBadRequest)
				return
			}
			*dst = n
		}
	}
	alerts, err := s.service.ListAlerts(pattern, offset, limit)
	if err != nil {
		httpd.HttpError(w, err.Error(), true, http.StatusInternalServerError)
		return
	}
	type listEntry struct {
		Link       string   `json:"link"`
		ID         string   `json:"id"`
		Name       string   `json:"name"`
		Owners     []string `json:"owners"`
		Owner      bool     `json:"owner"`
		Subscribed bool     `json:"subscribed"`
	}
	list := make([]listEntry, len(alerts))
	for i, a := range alerts {
		list[i] = listEntry{
			Link:       detailLink(a.ID),
			ID:         a.ID,
			Name:       a.Name,
			Owners:     a.Owners,
			Owner:      a.IsOwner(caller),
			Subscribed: a.IsSubscriber(caller),
		}
	}
	w.Write(httpd.MarshalJSON(map[string]interface{}{"alerts": list}, true))
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request, caller auth.User) {
	id := alertID(r)
	if caller.IsAnonymous() {
		writeError(w, ErrAuthenticationRequired, id)
		return
	}
	if err := r.ParseForm(); err != nil {
		httpd.HttpError(w, "invalid form: "+err.Error(), true, http.StatusBadRequest)
		return
	}
	sub, err := ParseSubmission(r.PostForm, s.service.c.MaxTriggers)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			writeError(w, err, id)
			return
		}
		httpd.HttpError(w, err.Error(), true, http.StatusBadRequest)
		return
	}
	a, err := s.service.Reconcile(caller, id, sub)
	if err != nil {
		writeError(w, err, id)
		return
	}
	code := http.StatusOK
	if id == "" {
		code = http.StatusCreated
		w.Header().Set("Location", configLink(a.ID))
	}
	d := Decision{Kind: Edit, AlertID: a.ID}
	writeView(w, code, viewResponse{Decision: d, Alert: toJSON(a), Form: formFor(a, caller)})
}

// handleSubscribe is the subscription toggle of the detail view.
func (s *apiServer) handleSubscribe(w http.ResponseWriter, r *http.Request, caller auth.User) {
	id := alertID(r)
	if err := r.ParseForm(); err != nil {
		httpd.HttpError(w, "invalid form: "+err.Error(), true, http.StatusBadRequest)
		return
	}
	var toggle struct {
		Subscribe bool `mapstructure:"new_subscribe"`
	}
	if err := decodeForm(r.PostForm, &toggle); err != nil {
		httpd.HttpError(w, err.Error(), true, http.StatusBadRequest)
		return
	}
	a, err := s.service.SetSubscription(caller, id, toggle.Subscribe)
	if err != nil {
		writeError(w, err, id)
		return
	}
	s.render(w, caller, ResolveAccess(caller, DetailView, &a), &a)
}

func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request, caller auth.User) {
	id := alertID(r)
	if err := s.service.Delete(caller, id); err != nil {
		writeError(w, err, id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
