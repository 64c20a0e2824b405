package alert

import (
	"time"
	"unicode/utf8"

	"github.com/influxdata/alertd/auth"
)

const (
	// MaxNameLength bounds alert names, trigger names and value sources, in runes.
	MaxNameLength = 100

	// noSelection is the value of a select input left at its placeholder.
	noSelection = "-1"
)

// Compare is the operator a trigger applies between its value source and its value.
type Compare string

const (
	NoCompare      Compare = ""
	Equal          Compare = "=="
	LessOrEqual    Compare = "<="
	GreaterOrEqual Compare = ">="
	Less           Compare = "<"
	Greater        Compare = ">"
	NotEqual       Compare = "!="
)

// Compares lists the operators in the order they are offered.
var Compares = []Compare{Equal, LessOrEqual, GreaterOrEqual, Less, Greater, NotEqual}

func (c Compare) Valid() bool {
	if c == NoCompare {
		return true
	}
	for _, o := range Compares {
		if c == o {
			return true
		}
	}
	return false
}

// Trigger is one comparison belonging to exactly one alert.
type Trigger struct {
	ID          string   `json:"id"`
	AlertID     string   `json:"alert-id"`
	Position    int      `json:"position"`
	Name        string   `json:"name"`
	ValueSource *string  `json:"value-source"`
	Value       *float64 `json:"value"`
	Compare     Compare  `json:"compare"`
}

// Empty reports whether t has no name, no value and no operator.
// Empty triggers are never stored.
func (t Trigger) Empty() bool {
	return t.Name == "" && t.Value == nil && t.Compare == NoCompare
}

// sameFields reports whether t and o configure the same comparison at the same position.
func (t Trigger) sameFields(o Trigger) bool {
	return t.Position == o.Position &&
		t.Name == o.Name &&
		t.Compare == o.Compare &&
		equalStringPtr(t.ValueSource, o.ValueSource) &&
		equalFloatPtr(t.Value, o.Value)
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Alert is a named rule with owners, subscribers and triggers.
type Alert struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Owners          []string       `json:"owners"`
	Subscribers     []string       `json:"subscribers"`
	LockoutDuration *time.Duration `json:"lockout-duration"`
	// LastSent is maintained by whatever dispatches notifications, never by this package.
	LastSent *time.Time `json:"last-sent"`
	Triggers []Trigger  `json:"triggers"`
	Created  time.Time  `json:"created"`
	Modified time.Time  `json:"modified"`
}

func (a Alert) IsOwner(u auth.User) bool {
	return u.MemberOf(a.Owners)
}

func (a Alert) IsSubscriber(u auth.User) bool {
	return u.MemberOf(a.Subscribers)
}

func tooLong(s string) bool {
	return utf8.RuneCountInString(s) > MaxNameLength
}
