package auth_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/influxdata/alertd/auth"
)

func Test_User_Immutable(t *testing.T) {
	hash := []byte("hash")
	u := auth.NewUser("bob", hash, false)
	hash[0] = 'X'
	if got := string(u.Hash()); got != "hash" {
		t.Fatalf("hash changed through caller slice: %q", got)
	}
	h := u.Hash()
	h[0] = 'Y'
	if got := string(u.Hash()); got != "hash" {
		t.Fatalf("hash changed through returned slice: %q", got)
	}
}

func Test_User_Is(t *testing.T) {
	testCases := []struct {
		name string
		a, b auth.User
		exp  bool
	}{
		{
			name: "same name",
			a:    auth.NewUser("bob", nil, false),
			b:    auth.NewUser("bob", []byte("other"), true),
			exp:  true,
		},
		{
			name: "different name",
			a:    auth.NewUser("bob", nil, false),
			b:    auth.NewUser("alice", nil, false),
			exp:  false,
		},
		{
			name: "both anonymous",
			a:    auth.Anonymous,
			b:    auth.User{},
			exp:  false,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Is(tc.b); got != tc.exp {
				t.Errorf("unexpected Is: got %v exp %v", got, tc.exp)
			}
		})
	}
}

func Test_User_MemberOf(t *testing.T) {
	names := []string{"alice", "bob"}
	if !auth.NewUser("bob", nil, false).MemberOf(names) {
		t.Error("expected bob to be a member")
	}
	if auth.NewUser("carol", nil, false).MemberOf(names) {
		t.Error("expected carol not to be a member")
	}
	if auth.Anonymous.MemberOf(append(names, "")) {
		t.Error("anonymous must never be a member")
	}
}

func Test_Names(t *testing.T) {
	users := []auth.User{
		auth.NewUser("carol", nil, false),
		auth.Anonymous,
		auth.NewUser("alice", nil, false),
		auth.NewUser("carol", nil, true),
	}
	exp := []string{"alice", "carol"}
	if diff := cmp.Diff(exp, auth.Names(users)); diff != "" {
		t.Errorf("unexpected names -exp/+got:\n%s", diff)
	}
}
