package alert

import (
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/influxdata/alertd/auth"
	"github.com/influxdata/alertd/services/httpd"
	"github.com/influxdata/alertd/services/storage"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type Diagnostic interface {
	Error(msg string, err error, alertID string)
	Decision(username, view, alertID, decision string)
	Reconciled(username, alertID string, created bool, creates, updates, deletes int)
	ValidationFailed(username, alertID string, err error)
	SubscriptionChanged(username, alertID string, subscribed bool)
	Deleted(username, alertID string)
}

const (
	// Public name of the alerts store.
	alertsAPIName = "alerts"
	// The storage namespace for all alert data.
	alertNamespace = "alert_store"

	alertStoreVersionKey = "alerts"
	alertStoreVersion1   = "1"
)

type Service struct {
	mu sync.RWMutex
	c  Config

	alerts AlertDAO

	APIServer *apiServer

	StorageService interface {
		Store(namespace string) storage.Interface
		Register(name string, store storage.StoreActioner)
		Versions() storage.Versions
	}
	AuthService  UserResolver
	HTTPDService interface {
		AddRoutes([]httpd.Route) error
		DelRoutes([]httpd.Route)
	}
	// Registerer receives the service metrics. Optional.
	Registerer prometheus.Registerer
	// Clock stamps Created and Modified.
	Clock clock.Clock

	decisions  *prometheus.CounterVec
	reconciles *prometheus.CounterVec

	db    storage.Interface
	newID func() string

	diag Diagnostic
}

func NewService(c Config, d Diagnostic) *Service {
	s := &Service{
		c: c,
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alertd",
			Subsystem: "alert",
			Name:      "decisions_total",
			Help:      "Access decisions, by view and decision.",
		}, []string{"view", "decision"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alertd",
			Subsystem: "alert",
			Name:      "reconciliations_total",
			Help:      "Submitted alert edits, by result.",
		}, []string{"result"}),
		Clock: clock.New(),
		newID: uuid.NewString,
		diag:  d,
	}
	s.APIServer = &apiServer{
		service: s,
		diag:    d,
	}
	return s
}

func (s *Service) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StorageService == nil {
		return errors.New("missing storage service")
	}
	if s.AuthService == nil {
		return errors.New("missing auth service")
	}

	// Create DAO
	s.db = s.StorageService.Store(alertNamespace)
	alerts, err := newAlertKV(s.db)
	if err != nil {
		return err
	}
	s.alerts = alerts
	s.StorageService.Register(alertsAPIName, alerts)

	if err := s.checkStoreVersion(); err != nil {
		return err
	}

	if s.Registerer != nil {
		for _, c := range []prometheus.Collector{s.decisions, s.reconciles} {
			if err := s.Registerer.Register(c); err != nil {
				return errors.Wrap(err, "failed to register alert metrics")
			}
		}
	}

	if s.HTTPDService != nil {
		s.APIServer.HTTPDService = s.HTTPDService
		if err := s.APIServer.Open(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Registerer != nil {
		s.Registerer.Unregister(s.decisions)
		s.Registerer.Unregister(s.reconciles)
	}
	return s.APIServer.Close()
}

// checkStoreVersion records the layout of a new store and refuses layouts it does not know.
func (s *Service) checkStoreVersion() error {
	return storage.EnsureVersion(s.StorageService.Versions(), alertStoreVersionKey, alertStoreVersion1)
}

// Resolve loads alert id, empty for the create view, and decides what caller may see of it.
// The alert is returned for Edit and ReadOnly decisions only.
func (s *Service) Resolve(caller auth.User, view View, id string) (Decision, *Alert, error) {
	var a *Alert
	if view != CreateView {
		found, err := s.alerts.Get(id)
		switch {
		case err == ErrNoAlertExists:
		case err != nil:
			s.diag.Error("failed to load alert", err, id)
			return Decision{}, nil, err
		default:
			a = &found
		}
	}
	d := ResolveAccess(caller, view, a)
	s.decisions.WithLabelValues(view.String(), d.Kind.String()).Inc()
	s.diag.Decision(caller.Name(), view.String(), id, d.Kind.String())
	if d.Kind != Edit && d.Kind != ReadOnly {
		a = nil
	}
	return d, a, nil
}

// Reconcile applies sub to alert id, or creates a new alert when id is empty.
//
// The caller must own an existing alert. All writes happen in one transaction;
// a rejected submission writes nothing and is returned as a *ValidationError.
func (s *Service) Reconcile(caller auth.User, id string, sub Submission) (Alert, error) {
	if caller.IsAnonymous() {
		return Alert{}, ErrAuthenticationRequired
	}

	var plan Plan
	err := s.db.Update(func(tx storage.Tx) error {
		var existing *Alert
		if id != "" {
			a, err := s.alerts.GetTx(tx, id)
			if err == ErrNoAlertExists {
				return ErrAlertNotFound
			} else if err != nil {
				return err
			}
			if !a.IsOwner(caller) {
				return ErrNotAuthorized
			}
			existing = &a
		}

		// Owners are read from the user store while this write transaction is held,
		// so a user deletion cannot commit between lookup and save.
		var err error
		plan, err = Reconcile(existing, caller, sub, s.AuthService, s.c.MaxTriggers)
		if err != nil {
			return err
		}
		s.assignIDs(&plan)
		if plan.Created {
			return s.alerts.CreateTx(tx, plan.Alert)
		}
		return s.alerts.ReplaceTx(tx, plan.Alert, plan.Triggers)
	})

	var verr *ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		s.reconciles.WithLabelValues("invalid").Inc()
		s.diag.ValidationFailed(caller.Name(), id, err)
		return Alert{}, err
	case err == ErrAlertNotFound, err == ErrNotAuthorized:
		s.reconciles.WithLabelValues("rejected").Inc()
		return Alert{}, err
	default:
		s.reconciles.WithLabelValues("error").Inc()
		s.diag.Error("failed to reconcile alert", err, id)
		return Alert{}, err
	}

	result := "updated"
	if plan.Created {
		result = "created"
	}
	s.reconciles.WithLabelValues(result).Inc()
	s.diag.Reconciled(caller.Name(), plan.Alert.ID, plan.Created,
		len(plan.Triggers.Create), len(plan.Triggers.Update), len(plan.Triggers.Delete))
	return plan.Alert, nil
}

// assignIDs names a new alert and its new triggers and stamps the modification time.
func (s *Service) assignIDs(plan *Plan) {
	now := s.Clock.Now().UTC()
	if plan.Created {
		plan.Alert.ID = s.newID()
		plan.Alert.Created = now
	}
	plan.Alert.Modified = now

	create := make([]Trigger, 0, len(plan.Triggers.Create))
	for i := range plan.Alert.Triggers {
		t := &plan.Alert.Triggers[i]
		t.AlertID = plan.Alert.ID
		if t.ID == "" {
			t.ID = s.newID()
			create = append(create, *t)
		}
	}
	plan.Triggers.Create = create
	plan.Triggers.Final = plan.Alert.Triggers
}

// SetSubscription subscribes or unsubscribes a caller who does not own the alert.
// Owners are always subscribed and are left unchanged.
func (s *Service) SetSubscription(caller auth.User, id string, subscribe bool) (Alert, error) {
	if caller.IsAnonymous() {
		return Alert{}, ErrAuthenticationRequired
	}
	var a Alert
	changed := false
	err := s.db.Update(func(tx storage.Tx) error {
		var err error
		a, err = s.alerts.GetTx(tx, id)
		if err == ErrNoAlertExists {
			return ErrAlertNotFound
		} else if err != nil {
			return err
		}
		if a.IsOwner(caller) || a.IsSubscriber(caller) == subscribe {
			return nil
		}
		a.Subscribers = resolveSubscribers(caller, a.Subscribers, a.Owners, subscribe)
		a.Modified = s.Clock.Now().UTC()
		changed = true
		return s.alerts.ReplaceTx(tx, a, TriggerDiff{})
	})
	if err != nil {
		if err != ErrAlertNotFound {
			s.diag.Error("failed to change subscription", err, id)
		}
		return Alert{}, err
	}
	if changed {
		s.diag.SubscriptionChanged(caller.Name(), id, subscribe)
	}
	return a, nil
}

// Delete removes an alert the caller owns, together with its triggers.
func (s *Service) Delete(caller auth.User, id string) error {
	if caller.IsAnonymous() {
		return ErrAuthenticationRequired
	}
	err := s.db.Update(func(tx storage.Tx) error {
		a, err := s.alerts.GetTx(tx, id)
		if err == ErrNoAlertExists {
			return ErrAlertNotFound
		} else if err != nil {
			return err
		}
		if !a.IsOwner(caller) {
			return ErrNotAuthorized
		}
		return s.alerts.DeleteTx(tx, id)
	})
	switch err {
	case nil:
		s.diag.Deleted(caller.Name(), id)
	case ErrAlertNotFound, ErrNotAuthorized:
	default:
		s.diag.Error("failed to delete alert", err, id)
	}
	return err
}

// Alert returns alert id with its triggers.
func (s *Service) Alert(id string) (Alert, error) {
	a, err := s.alerts.Get(id)
	if err == ErrNoAlertExists {
		return Alert{}, ErrAlertNotFound
	}
	return a, err
}

// ListAlerts lists alerts by name without their triggers.
// See AlertDAO.List for pattern, offset and limit.
func (s *Service) ListAlerts(pattern string, offset, limit int) ([]Alert, error) {
	return s.alerts.List(pattern, offset, limit)
}
