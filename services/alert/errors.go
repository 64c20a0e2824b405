package alert

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNoAlertExists = errors.New("no alert exists")
	ErrAlertExists   = errors.New("alert already exists")

	// ErrAlertNotFound sends the caller to the create flow.
	ErrAlertNotFound = errors.New("alert not found")
	// ErrNotAuthorized sends a non-owner to the detail view.
	ErrNotAuthorized = errors.New("only owners may change an alert")
	// ErrAuthenticationRequired is returned for anonymous callers.
	ErrAuthenticationRequired = errors.New("authentication required")
)

// ValidationKind classifies why a submission was rejected.
type ValidationKind int

const (
	MissingName ValidationKind = iota
	NameTooLong
	NoOwners
	UnknownOwner
	BadOperator
	BadValue
	FieldTooLong
	TooManyTriggers
)

var validationKindNames = [...]string{
	MissingName:     "missing-name",
	NameTooLong:     "name-too-long",
	NoOwners:        "no-owners",
	UnknownOwner:    "unknown-owner",
	BadOperator:     "bad-operator",
	BadValue:        "bad-value",
	FieldTooLong:    "field-too-long",
	TooManyTriggers: "too-many-triggers",
}

func (k ValidationKind) String() string {
	if k < 0 || int(k) >= len(validationKindNames) {
		return fmt.Sprintf("ValidationKind(%d)", int(k))
	}
	return validationKindNames[k]
}

func (k ValidationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ValidationError rejects a whole submission.
// Submission is echoed back unchanged so it can be shown again.
type ValidationError struct {
	Kind ValidationKind
	// Owner is the unknown username for UnknownOwner.
	Owner string
	// Row is the trigger row for BadOperator, BadValue and FieldTooLong.
	Row        int
	Submission Submission
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case MissingName:
		return "alert name is required"
	case NameTooLong:
		return fmt.Sprintf("alert name must be at most %d characters", MaxNameLength)
	case NoOwners:
		return "an alert needs at least one owner"
	case UnknownOwner:
		return fmt.Sprintf("unknown owner %q", e.Owner)
	case BadOperator:
		return fmt.Sprintf("trigger %d: compare must be one of == <= >= < > !=", e.Row)
	case BadValue:
		return fmt.Sprintf("trigger %d: value must be a number", e.Row)
	case FieldTooLong:
		return fmt.Sprintf("trigger %d: name and value source must be at most %d characters", e.Row, MaxNameLength)
	case TooManyTriggers:
		return "too many triggers"
	default:
		return e.Kind.String()
	}
}

func invalid(kind ValidationKind, sub Submission) *ValidationError {
	return &ValidationError{Kind: kind, Submission: sub}
}

func invalidRow(kind ValidationKind, row int, sub Submission) *ValidationError {
	return &ValidationError{Kind: kind, Row: row, Submission: sub}
}
