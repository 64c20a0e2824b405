package alert

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/influxdata/alertd/auth"
)

func TestAddSelfMembership(t *testing.T) {
	bob := auth.NewUser("bob", nil, false)

	owners, subs := addSelfMembership(bob, []string{"carol", "alice"}, []string{"dave"})
	if exp := []string{"alice", "bob", "carol"}; !cmp.Equal(owners, exp) {
		t.Errorf("unexpected owners -want/+got\n%s", cmp.Diff(exp, owners))
	}
	if exp := []string{"bob", "dave"}; !cmp.Equal(subs, exp) {
		t.Errorf("unexpected subscribers -want/+got\n%s", cmp.Diff(exp, subs))
	}

	// Already a member.
	owners, subs = addSelfMembership(bob, []string{"bob"}, []string{"bob"})
	if exp := []string{"bob"}; !cmp.Equal(owners, exp) || !cmp.Equal(subs, exp) {
		t.Errorf("caller duplicated: owners %v subscribers %v", owners, subs)
	}

	owners, subs = addSelfMembership(auth.Anonymous, []string{"alice"}, nil)
	if exp := []string{"alice"}; !cmp.Equal(owners, exp) || len(subs) != 0 {
		t.Errorf("anonymous caller added: owners %v subscribers %v", owners, subs)
	}
}

func TestResolveSubscribers(t *testing.T) {
	bob := auth.NewUser("bob", nil, false)
	testCases := []struct {
		name      string
		previous  []string
		owners    []string
		subscribe bool
		exp       []string
	}{
		{
			name:      "subscribe adds caller",
			owners:    []string{"alice"},
			subscribe: true,
			exp:       []string{"alice", "bob"},
		},
		{
			name:     "unsubscribe removes caller",
			previous: []string{"alice", "bob", "carol"},
			owners:   []string{"alice"},
			exp:      []string{"alice", "carol"},
		},
		{
			name:     "owners are never removed",
			previous: []string{"bob"},
			owners:   []string{"alice", "bob"},
			exp:      []string{"alice", "bob"},
		},
		{
			name:     "owners are always subscribers",
			previous: []string{"carol"},
			owners:   []string{"alice"},
			exp:      []string{"alice", "carol"},
		},
		{
			name:     "unsubscribing when not subscribed",
			previous: []string{"alice"},
			owners:   []string{"alice"},
			exp:      []string{"alice"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := resolveSubscribers(bob, tc.previous, tc.owners, tc.subscribe)
			if !cmp.Equal(got, tc.exp, cmpopts.EquateEmpty()) {
				t.Errorf("unexpected subscribers -want/+got\n%s", cmp.Diff(tc.exp, got))
			}
		})
	}
}
