package alert

import (
	"fmt"

	"github.com/influxdata/alertd/auth"
)

// View is the page of an alert a caller asks for.
type View int

const (
	CreateView View = iota
	EditView
	DetailView
)

func (v View) String() string {
	switch v {
	case CreateView:
		return "create"
	case EditView:
		return "edit"
	case DetailView:
		return "detail"
	default:
		return fmt.Sprintf("View(%d)", int(v))
	}
}

type DecisionKind int

const (
	// Create renders an empty edit form.
	Create DecisionKind = iota
	// Edit renders the edit form of an alert the caller owns.
	Edit
	// ReadOnly renders the detail view, whose only control is the caller's subscription.
	ReadOnly
	RedirectToCreate
	RedirectToDetail
	RedirectToEdit
	RequireAuthentication
)

var decisionKindNames = [...]string{
	Create:                "create",
	Edit:                  "edit",
	ReadOnly:              "read-only",
	RedirectToCreate:      "redirect-to-create",
	RedirectToDetail:      "redirect-to-detail",
	RedirectToEdit:        "redirect-to-edit",
	RequireAuthentication: "require-authentication",
}

func (k DecisionKind) String() string {
	if k < 0 || int(k) >= len(decisionKindNames) {
		return fmt.Sprintf("DecisionKind(%d)", int(k))
	}
	return decisionKindNames[k]
}

func (k DecisionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Decision is what the caller gets to see.
type Decision struct {
	Kind DecisionKind `json:"decision"`
	// AlertID is the alert viewed or redirected to, empty for Create and RedirectToCreate.
	AlertID string `json:"alert-id,omitempty"`
	// Subscribed reports the caller's subscription for ReadOnly.
	Subscribed bool `json:"subscribed"`
}

// ResolveAccess decides what caller may do with view of a, where a nil a is an unknown alert.
// a is ignored for CreateView.
func ResolveAccess(caller auth.User, view View, a *Alert) Decision {
	if view == CreateView {
		if caller.IsAnonymous() {
			return Decision{Kind: RequireAuthentication}
		}
		return Decision{Kind: Create}
	}
	if a == nil {
		return Decision{Kind: RedirectToCreate}
	}
	if caller.IsAnonymous() {
		return Decision{Kind: RequireAuthentication, AlertID: a.ID}
	}
	owner := a.IsOwner(caller)
	switch view {
	case EditView:
		if owner {
			return Decision{Kind: Edit, AlertID: a.ID}
		}
		return Decision{Kind: RedirectToDetail, AlertID: a.ID}
	default:
		if owner {
			return Decision{Kind: RedirectToEdit, AlertID: a.ID}
		}
		return Decision{Kind: ReadOnly, AlertID: a.ID, Subscribed: a.IsSubscriber(caller)}
	}
}
