package alert

import (
	"math"
	"strconv"
	"strings"

	"github.com/influxdata/alertd/auth"
	sauth "github.com/influxdata/alertd/services/auth"
	"github.com/pkg/errors"
)

// UserResolver looks up the users named by a submission.
// Unknown names are reported as *auth.UnknownUserError from services/auth.
type UserResolver interface {
	ResolveUsers(usernames []string) ([]auth.User, error)
}

// Plan is the outcome of a successful reconciliation.
type Plan struct {
	// Alert is the alert as it will be stored, Triggers in position order.
	// New triggers have no ID yet.
	Alert    Alert
	Created  bool
	Triggers TriggerDiff
}

// Reconcile validates sub against existing, nil when creating, and plans the writes that apply it.
// Nothing is written; a rejected submission returns a *ValidationError.
// Other errors come from users.
func Reconcile(existing *Alert, caller auth.User, sub Submission, users UserResolver, maxTriggers int) (Plan, error) {
	// Name
	name := strings.TrimSpace(sub.Name)
	if name == "" {
		return Plan{}, invalid(MissingName, sub)
	}
	if tooLong(name) {
		return Plan{}, invalid(NameTooLong, sub)
	}

	// Owners
	if len(sub.OwnerNames) == 0 {
		return Plan{}, invalid(NoOwners, sub)
	}
	resolved, err := users.ResolveUsers(sub.OwnerNames)
	if err != nil {
		var unknown *sauth.UnknownUserError
		if errors.As(err, &unknown) {
			return Plan{}, &ValidationError{Kind: UnknownOwner, Owner: unknown.Name, Submission: sub}
		}
		return Plan{}, errors.Wrap(err, "failed to resolve owners")
	}
	if len(resolved) == 0 {
		return Plan{}, invalid(NoOwners, sub)
	}

	// Subscribers
	var previous []string
	if existing != nil {
		previous = existing.Subscribers
	}
	owners, subscribers := addSelfMembership(caller, auth.Names(resolved), previous)
	subscribers = resolveSubscribers(caller, subscribers, owners, sub.Subscribe)

	// Triggers
	if len(sub.Triggers) > maxTriggers {
		return Plan{}, invalid(TooManyTriggers, sub)
	}
	submitted := make([]Trigger, len(sub.Triggers))
	for i, row := range sub.Triggers {
		t, err := rowTrigger(i, row, sub)
		if err != nil {
			return Plan{}, err
		}
		submitted[i] = t
	}

	plan := Plan{Created: existing == nil}
	if existing != nil {
		plan.Alert = *existing
		plan.Triggers = DiffTriggers(existing.Triggers, submitted)
	} else {
		plan.Triggers = DiffTriggers(nil, submitted)
	}
	plan.Alert.Name = name
	plan.Alert.Owners = owners
	plan.Alert.Subscribers = subscribers
	plan.Alert.LockoutDuration = ParseLockout(sub.LockoutDuration)
	plan.Alert.Triggers = plan.Triggers.Final
	return plan, nil
}

// rowTrigger converts submitted row i. Empty rows yield an empty Trigger.
func rowTrigger(i int, row TriggerRow, sub Submission) (Trigger, error) {
	if row.Empty() {
		return Trigger{}, nil
	}
	t := Trigger{
		Name:    strings.TrimSpace(row.Name),
		Compare: Compare(strings.TrimSpace(row.Compare)),
	}
	if !t.Compare.Valid() {
		return Trigger{}, invalidRow(BadOperator, i, sub)
	}
	if !unselected(row.ValueSource) {
		vs := strings.TrimSpace(row.ValueSource)
		t.ValueSource = &vs
		if tooLong(vs) {
			return Trigger{}, invalidRow(FieldTooLong, i, sub)
		}
	}
	if tooLong(t.Name) {
		return Trigger{}, invalidRow(FieldTooLong, i, sub)
	}
	if v := strings.TrimSpace(row.Value); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Trigger{}, invalidRow(BadValue, i, sub)
		}
		t.Value = &f
	}
	return t, nil
}
