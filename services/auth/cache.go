package auth

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru"
	"github.com/influxdata/alertd/auth"
)

// userCacheSize bounds how many resolved users stay in memory.
const userCacheSize = 4096

type UserCache interface {
	Get(username string) (auth.User, bool)
	Set(auth.User)
	Delete(username string)
	DeleteAll()
}

// lruUserCache holds the most recently resolved users.
// Entries older than ttl are dropped when read.
type lruUserCache struct {
	users *lru.Cache
	ttl   time.Duration
	clock clock.Clock
}

type cachedUser struct {
	user    auth.User
	expires time.Time
}

func newLRUUserCache(size int, ttl time.Duration, c clock.Clock) (*lruUserCache, error) {
	users, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &lruUserCache{users: users, ttl: ttl, clock: c}, nil
}

func (c *lruUserCache) Get(username string) (auth.User, bool) {
	v, ok := c.users.Get(username)
	if !ok {
		return auth.User{}, false
	}
	cu := v.(cachedUser)
	if !cu.expires.After(c.clock.Now()) {
		c.users.Remove(username)
		return auth.User{}, false
	}
	return cu.user, true
}

func (c *lruUserCache) Set(u auth.User) {
	c.users.Add(u.Name(), cachedUser{user: u, expires: c.clock.Now().Add(c.ttl)})
}

func (c *lruUserCache) Delete(username string) { c.users.Remove(username) }

func (c *lruUserCache) DeleteAll() { c.users.Purge() }
