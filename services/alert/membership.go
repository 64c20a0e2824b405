package alert

import (
	"github.com/influxdata/alertd/auth"
)

// addSelfMembership makes the caller an owner and a subscriber.
// Whoever submits an alert can always edit it and hears about it.
func addSelfMembership(caller auth.User, owners, subscribers []string) ([]string, []string) {
	if caller.IsAnonymous() {
		return normalizeNames(owners), normalizeNames(subscribers)
	}
	owners = append(append([]string(nil), owners...), caller.Name())
	subscribers = append(append([]string(nil), subscribers...), caller.Name())
	return normalizeNames(owners), normalizeNames(subscribers)
}

// resolveSubscribers returns owners together with the previous subscribers,
// with the caller added when subscribe is set and removed otherwise.
// Owners are always subscribers; the caller is never removed while an owner.
func resolveSubscribers(caller auth.User, previous, owners []string, subscribe bool) []string {
	set := append(append([]string(nil), owners...), previous...)
	if caller.IsAnonymous() {
		return normalizeNames(set)
	}
	if subscribe {
		return normalizeNames(append(set, caller.Name()))
	}
	if caller.MemberOf(owners) {
		return normalizeNames(set)
	}
	kept := set[:0]
	for _, n := range set {
		if n != caller.Name() {
			kept = append(kept, n)
		}
	}
	return normalizeNames(kept)
}
