package auth

import (
	"errors"
	"sort"
)

// Interface for authenticating and retrieving users.
type Interface interface {
	Authenticate(username, password string) (User, error)
	User(username string) (User, error)
}

// ErrAuthenticate is returned when authentication fails.
var ErrAuthenticate = errors.New("authentication failed")

// This structure is designed to be immutable, to avoid bugs/exploits where
// the user could be modified by external code.
// For this reason all fields are private and methods are value receivers.
//
// The zero User is the anonymous caller.
type User struct {
	name  string
	admin bool
	hash  []byte
}

// Create a user with the given password hash.
func NewUser(name string, hash []byte, admin bool) User {
	// Make our own copy of the hash
	h := make([]byte, len(hash))
	copy(h, hash)
	return User{
		name:  name,
		admin: admin,
		hash:  h,
	}
}

// Anonymous is the identity of a request that carried no credentials.
var Anonymous = User{}

func (u User) Name() string {
	return u.name
}

// Report whether the user is an Admin user.
// Admin users may manage other users; they have no implicit rights over alerts.
func (u User) IsAdmin() bool {
	return u.admin
}

// IsAnonymous reports whether u carries no identity.
func (u User) IsAnonymous() bool {
	return u.name == ""
}

// Return a copy of the user's password hash
func (u User) Hash() []byte {
	hash := make([]byte, len(u.hash))
	copy(hash, u.hash)
	return hash
}

// Is reports whether u and o are the same identity.
// Anonymous callers are never the same identity as anyone.
func (u User) Is(o User) bool {
	return !u.IsAnonymous() && u.name == o.name
}

// MemberOf reports whether the user's name is present in the set of names.
func (u User) MemberOf(names []string) bool {
	if u.IsAnonymous() {
		return false
	}
	for _, n := range names {
		if n == u.name {
			return true
		}
	}
	return false
}

// Names returns the sorted, de-duplicated usernames of users.
func Names(users []User) []string {
	seen := make(map[string]bool, len(users))
	names := make([]string, 0, len(users))
	for _, u := range users {
		if u.IsAnonymous() || seen[u.name] {
			continue
		}
		seen[u.name] = true
		names = append(names, u.name)
	}
	sort.Strings(names)
	return names
}
