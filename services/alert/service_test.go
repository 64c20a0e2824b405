package alert_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"github.com/influxdata/alertd/auth"
	"github.com/influxdata/alertd/services/alert"
	sauth "github.com/influxdata/alertd/services/auth"
	"github.com/influxdata/alertd/services/diagnostic"
	"github.com/influxdata/alertd/services/httpd/httpdtest"
	"github.com/influxdata/alertd/services/storage"
	"github.com/influxdata/alertd/services/storage/storagetest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
)

type harness struct {
	alerts   *alert.Service
	auth     *sauth.Service
	store    *storagetest.TestStore
	logs     *observer.ObservedLogs
	registry *prometheus.Registry
	server   *httpdtest.Server
	clock    *clock.Mock

	primary, secondary, third auth.User
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithHTTP(t, false)
}

// newHarnessWithHTTP also serves the alert routes when serve is set.
func newHarnessWithHTTP(t *testing.T, serve bool) *harness {
	t.Helper()
	store := storagetest.New(t)
	t.Cleanup(func() { store.Close() })

	core, logs := observer.New(zapcore.DebugLevel)
	ds := diagnostic.NewServiceWithLogger(zap.New(core))

	ac := sauth.NewConfig()
	ac.BcryptCost = bcrypt.MinCost
	as := sauth.NewService(ac, ds.NewAuthHandler())
	as.StorageService = store
	require.NoError(t, as.Open())
	t.Cleanup(func() { as.Close() })

	h := &harness{
		auth:     as,
		store:    store,
		logs:     logs,
		registry: prometheus.NewRegistry(),
		clock:    clock.NewMock(),
	}
	for _, u := range []struct {
		name string
		dst  *auth.User
	}{
		{"primary", &h.primary},
		{"secondary", &h.secondary},
		{"third", &h.third},
	} {
		user, err := as.CreateUser(u.name, "pw", false)
		require.NoError(t, err)
		*u.dst = user
	}

	s := alert.NewService(alert.NewConfig(), ds.NewAlertHandler())
	s.StorageService = store
	s.AuthService = as
	s.Registerer = h.registry
	s.Clock = h.clock
	if serve {
		h.server = httpdtest.NewServer(as, testing.Verbose())
		t.Cleanup(func() { h.server.Close() })
		s.HTTPDService = h.server
	}
	require.NoError(t, s.Open())
	t.Cleanup(func() { s.Close() })
	h.alerts = s
	return h
}

func (h *harness) create(t *testing.T, caller auth.User, sub alert.Submission) alert.Alert {
	t.Helper()
	a, err := h.alerts.Reconcile(caller, "", sub)
	require.NoError(t, err)
	return a
}

func triggerNames(a alert.Alert) []string {
	var names []string
	for _, tr := range a.Triggers {
		names = append(names, tr.Name)
	}
	return names
}

func TestService_CreateEndToEnd(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, h.primary, validSubmission())
	require.NotEmpty(t, a.ID)

	stored, err := h.alerts.Alert(a.ID)
	require.NoError(t, err)
	require.Equal(t, "alert_name", stored.Name)
	require.Equal(t, []string{"primary"}, stored.Owners)
	require.Contains(t, stored.Subscribers, "primary")
	require.Equal(t, 2*time.Hour+33*time.Minute+15*time.Second, *stored.LockoutDuration)
	require.Equal(t, []string{"0 trigger", "1 trigger"}, triggerNames(stored))
	for i, tr := range stored.Triggers {
		require.NotEmpty(t, tr.ID)
		require.Equal(t, a.ID, tr.AlertID)
		require.Equal(t, i, tr.Position)
	}
	if !cmp.Equal(a, stored) {
		t.Errorf("returned alert differs from stored -want/+got\n%s", cmp.Diff(stored, a))
	}

	entries := h.logs.FilterMessage("reconciled alert").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, true, fields["created"])
	require.Equal(t, int64(2), fields["triggers_created"])

	expected := `
# HELP alertd_alert_reconciliations_total Submitted alert edits, by result.
# TYPE alertd_alert_reconciliations_total counter
alertd_alert_reconciliations_total{result="created"} 1
`
	require.NoError(t, testutil.GatherAndCompare(h.registry, strings.NewReader(expected), "alertd_alert_reconciliations_total"))
}

func TestService_UpdateBlankRow(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, h.primary, validSubmission())

	sub := alert.Submission{
		Name:            "modified_name",
		OwnerNames:      []string{"primary"},
		LockoutDuration: "01:15:30",
		Triggers: []alert.TriggerRow{
			{Compare: "-1", ValueSource: "-1"},
			{Name: "generic_name", Value: "5", Compare: "==", ValueSource: "-1"},
		},
	}
	updated, err := h.alerts.Reconcile(h.primary, a.ID, sub)
	require.NoError(t, err)
	require.Equal(t, a.ID, updated.ID)

	stored, err := h.alerts.Alert(a.ID)
	require.NoError(t, err)
	require.Equal(t, "modified_name", stored.Name)
	require.Equal(t, []string{"generic_name"}, triggerNames(stored))
	require.Equal(t, 5.0, *stored.Triggers[0].Value)
	require.Equal(t, alert.Equal, stored.Triggers[0].Compare)
	require.Equal(t, 0, stored.Triggers[0].Position)
	require.Equal(t, time.Hour+15*time.Minute+30*time.Second, *stored.LockoutDuration)
}

func TestService_Timestamps(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC))
	a := h.create(t, h.primary, validSubmission())
	require.Equal(t, h.clock.Now().UTC(), a.Created)
	require.Equal(t, a.Created, a.Modified)

	h.clock.Add(time.Hour)
	updated, err := h.alerts.Reconcile(h.primary, a.ID, validSubmission())
	require.NoError(t, err)
	require.Equal(t, a.Created, updated.Created)
	require.Equal(t, a.Created.Add(time.Hour), updated.Modified)

	h.clock.Add(time.Minute)
	toggled, err := h.alerts.SetSubscription(h.secondary, a.ID, true)
	require.NoError(t, err)
	require.Equal(t, a.Created.Add(time.Hour+time.Minute), toggled.Modified)
}

func TestService_NoOwnersPersistsNothing(t *testing.T) {
	h := newHarness(t)
	sub := validSubmission()
	sub.OwnerNames = nil
	_, err := h.alerts.Reconcile(h.primary, "", sub)
	requireKind(t, err, alert.NoOwners)

	alerts, err := h.alerts.ListAlerts("", 0, -1)
	require.NoError(t, err)
	require.Empty(t, alerts)
	require.Equal(t, 1, h.logs.FilterMessage("rejected alert submission").Len())
}

func TestService_UnknownOwner(t *testing.T) {
	h := newHarness(t)
	sub := validSubmission()
	sub.OwnerNames = []string{"primary", "nobody"}
	_, err := h.alerts.Reconcile(h.primary, "", sub)
	verr := requireKind(t, err, alert.UnknownOwner)
	require.Equal(t, "nobody", verr.Owner)
}

func TestService_SubscriptionToggle(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, h.primary, validSubmission())

	got, err := h.alerts.SetSubscription(h.secondary, a.ID, true)
	require.NoError(t, err)
	require.True(t, got.IsSubscriber(h.secondary))
	stored, err := h.alerts.Alert(a.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"primary", "secondary"}, stored.Subscribers)

	// The toggle left unticked unsubscribes.
	_, err = h.alerts.SetSubscription(h.secondary, a.ID, false)
	require.NoError(t, err)
	stored, err = h.alerts.Alert(a.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"primary"}, stored.Subscribers)

	// Owners stay subscribed.
	_, err = h.alerts.SetSubscription(h.primary, a.ID, false)
	require.NoError(t, err)
	stored, err = h.alerts.Alert(a.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"primary"}, stored.Subscribers)

	require.Equal(t, 2, h.logs.FilterMessage("subscription changed").Len())

	_, err = h.alerts.SetSubscription(auth.Anonymous, a.ID, true)
	require.Equal(t, alert.ErrAuthenticationRequired, err)
	_, err = h.alerts.SetSubscription(h.secondary, "missing", true)
	require.Equal(t, alert.ErrAlertNotFound, err)
}

func TestService_SubscriberBecomesOwner(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, h.primary, validSubmission())
	_, err := h.alerts.SetSubscription(h.secondary, a.ID, true)
	require.NoError(t, err)

	sub := validSubmission()
	sub.OwnerNames = []string{"primary", "secondary"}
	sub.Subscribe = false
	_, err = h.alerts.Reconcile(h.primary, a.ID, sub)
	require.NoError(t, err)

	// Owners cannot unsubscribe through the toggle.
	_, err = h.alerts.SetSubscription(h.secondary, a.ID, false)
	require.NoError(t, err)
	stored, err := h.alerts.Alert(a.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"primary", "secondary"}, stored.Owners)
	require.Equal(t, []string{"primary", "secondary"}, stored.Subscribers)
}

func TestService_ReconcileIdempotent(t *testing.T) {
	h := newHarness(t)
	sub := validSubmission()
	a := h.create(t, h.primary, sub)

	for i := 0; i < 3; i++ {
		_, err := h.alerts.Reconcile(h.primary, a.ID, sub)
		require.NoError(t, err)
	}
	stored, err := h.alerts.Alert(a.ID)
	require.NoError(t, err)
	require.Len(t, stored.Triggers, 2)
	for i := range stored.Triggers {
		require.Equal(t, a.Triggers[i].ID, stored.Triggers[i].ID)
		require.Equal(t, a.Triggers[i].Name, stored.Triggers[i].Name)
		require.Equal(t, *a.Triggers[i].Value, *stored.Triggers[i].Value)
		require.Equal(t, a.Triggers[i].Compare, stored.Triggers[i].Compare)
	}
}

func TestService_BadOperatorIsAtomic(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, h.primary, validSubmission())
	before, err := h.alerts.Alert(a.ID)
	require.NoError(t, err)

	sub := validSubmission()
	sub.Name = "renamed"
	sub.OwnerNames = []string{"primary", "secondary"}
	sub.Triggers = append(sub.Triggers, alert.TriggerRow{Name: "bad", Compare: "-1"})
	_, err = h.alerts.Reconcile(h.primary, a.ID, sub)
	verr := requireKind(t, err, alert.BadOperator)
	require.Equal(t, 3, verr.Row)

	after, err := h.alerts.Alert(a.ID)
	require.NoError(t, err)
	if !cmp.Equal(before, after) {
		t.Errorf("rejected submission changed the alert -want/+got\n%s", cmp.Diff(before, after))
	}
}

func TestService_Resolve(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, h.primary, validSubmission())

	d, got, err := h.alerts.Resolve(h.primary, alert.EditView, a.ID)
	require.NoError(t, err)
	require.Equal(t, alert.Edit, d.Kind)
	require.NotNil(t, got)
	require.Equal(t, a.ID, got.ID)

	d, got, err = h.alerts.Resolve(h.secondary, alert.EditView, a.ID)
	require.NoError(t, err)
	require.Equal(t, alert.RedirectToDetail, d.Kind)
	require.Nil(t, got)

	d, got, err = h.alerts.Resolve(h.secondary, alert.DetailView, a.ID)
	require.NoError(t, err)
	require.Equal(t, alert.ReadOnly, d.Kind)
	require.NotNil(t, got)

	d, _, err = h.alerts.Resolve(h.primary, alert.DetailView, a.ID)
	require.NoError(t, err)
	require.Equal(t, alert.RedirectToEdit, d.Kind)

	for _, caller := range []auth.User{h.primary, h.secondary, auth.Anonymous} {
		d, _, err = h.alerts.Resolve(caller, alert.EditView, "no-such-alert")
		require.NoError(t, err)
		require.Equal(t, alert.RedirectToCreate, d.Kind)
	}

	d, _, err = h.alerts.Resolve(auth.Anonymous, alert.CreateView, "")
	require.NoError(t, err)
	require.Equal(t, alert.RequireAuthentication, d.Kind)
}

func TestService_ReconcileNavigation(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, h.primary, validSubmission())

	_, err := h.alerts.Reconcile(h.secondary, a.ID, validSubmission())
	require.Equal(t, alert.ErrNotAuthorized, err)

	_, err = h.alerts.Reconcile(h.primary, "no-such-alert", validSubmission())
	require.Equal(t, alert.ErrAlertNotFound, err)

	_, err = h.alerts.Reconcile(auth.Anonymous, "", validSubmission())
	require.Equal(t, alert.ErrAuthenticationRequired, err)
}

func TestService_Delete(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, h.primary, validSubmission())
	keep := h.create(t, h.secondary, validSubmission())

	require.Equal(t, alert.ErrNotAuthorized, h.alerts.Delete(h.secondary, a.ID))
	require.Equal(t, alert.ErrAuthenticationRequired, h.alerts.Delete(auth.Anonymous, a.ID))
	require.NoError(t, h.alerts.Delete(h.primary, a.ID))
	require.Equal(t, alert.ErrAlertNotFound, h.alerts.Delete(h.primary, a.ID))

	_, err := h.alerts.Alert(a.ID)
	require.Equal(t, alert.ErrAlertNotFound, err)

	// Triggers go with their alert.
	err = h.store.Store("alert_store").View(func(tx storage.ReadOnlyTx) error {
		kvs, err := tx.List("/triggers/data/" + a.ID + "/")
		require.NoError(t, err)
		require.Empty(t, kvs)
		kvs, err = tx.List("/triggers/data/" + keep.ID + "/")
		require.NoError(t, err)
		require.Len(t, kvs, 2)
		return nil
	})
	require.NoError(t, err)
}

func TestService_ListAlerts(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"cpu", "disk", "cpu-high"} {
		sub := validSubmission()
		sub.Name = name
		h.create(t, h.primary, sub)
	}
	alerts, err := h.alerts.ListAlerts("cpu*", 0, -1)
	require.NoError(t, err)
	var names []string
	for _, a := range alerts {
		names = append(names, a.Name)
		require.Empty(t, a.Triggers)
	}
	require.Equal(t, []string{"cpu", "cpu-high"}, names)

	alerts, err = h.alerts.ListAlerts("", 1, 1)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "cpu-high", alerts[0].Name)
}

func TestService_NamesWithPathSegments(t *testing.T) {
	h := newHarness(t)
	victim := h.create(t, h.primary, validSubmission())

	names := []string{".", "..", "/", "a/b", "../../data/" + victim.ID,
		"../../../triggers/indexes/position/" + victim.ID + "/00000000"}
	for _, name := range names {
		sub := validSubmission()
		sub.Name = name
		sub.OwnerNames = []string{"secondary"}
		a := h.create(t, h.secondary, sub)
		stored, err := h.alerts.Alert(a.ID)
		require.NoError(t, err)
		require.Equal(t, name, stored.Name)
	}

	alerts, err := h.alerts.ListAlerts("", 0, -1)
	require.NoError(t, err)
	require.Len(t, alerts, len(names)+1)

	stored, err := h.alerts.Alert(victim.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"0 trigger", "1 trigger"}, triggerNames(stored))
	require.Equal(t, []string{"primary"}, stored.Owners)

	d, _, err := h.alerts.Resolve(h.primary, alert.EditView, victim.ID)
	require.NoError(t, err)
	require.Equal(t, alert.Edit, d.Kind)
	_, err = h.alerts.Reconcile(h.primary, victim.ID, validSubmission())
	require.NoError(t, err)
}

// deletingResolver starts deleting a user while owners are being resolved
// and records whether the deletion had to wait.
type deletingResolver struct {
	alert.UserResolver
	delete  func() error
	waited  bool
	deleted chan error
}

func (r *deletingResolver) ResolveUsers(names []string) ([]auth.User, error) {
	r.deleted = make(chan error, 1)
	go func() { r.deleted <- r.delete() }()
	select {
	case err := <-r.deleted:
		r.deleted <- err
	case <-time.After(100 * time.Millisecond):
		r.waited = true
	}
	return r.UserResolver.ResolveUsers(names)
}

func TestService_OwnerDeletionWaitsForReconcile(t *testing.T) {
	h := newHarness(t)
	r := &deletingResolver{
		UserResolver: h.auth,
		delete:       func() error { return h.auth.DeleteUser("third") },
	}
	h.alerts.AuthService = r

	sub := validSubmission()
	sub.OwnerNames = []string{"third"}
	a, err := h.alerts.Reconcile(h.primary, "", sub)
	require.NoError(t, err)
	require.True(t, r.waited, "user deletion committed while owners were being resolved")
	require.NoError(t, <-r.deleted)
	require.Equal(t, []string{"primary", "third"}, a.Owners)

	// Once the deletion has committed the same owner is rejected.
	_, err = h.alerts.Reconcile(h.primary, a.ID, sub)
	requireKind(t, err, alert.UnknownOwner)
}

func TestService_ConcurrentReconcile(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, h.primary, validSubmission())

	sub := validSubmission()
	sub.Triggers = append(sub.Triggers, alert.TriggerRow{Name: "extra", Value: "1", Compare: ">"})
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.alerts.Reconcile(h.primary, a.ID, sub)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := h.alerts.Alert(a.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"0 trigger", "1 trigger", "extra"}, triggerNames(stored))
}

func TestService_Rebuild(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, h.primary, validSubmission())

	store, ok := h.store.Registrar().Get("alerts")
	require.True(t, ok)
	require.NoError(t, store.Rebuild())

	stored, err := h.alerts.Alert(a.ID)
	require.NoError(t, err)
	require.Len(t, stored.Triggers, 2)
}

func TestService_StoreVersion(t *testing.T) {
	h := newHarness(t)
	v, err := h.store.Versions().Get("alerts")
	require.NoError(t, err)
	require.Equal(t, "1", v)
}

func TestConfig_Validate(t *testing.T) {
	c := alert.NewConfig()
	require.NoError(t, c.Validate())
	c.MaxTriggers = 0
	require.Error(t, c.Validate())
}
