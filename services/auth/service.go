package auth

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/influxdata/alertd/auth"
	"github.com/influxdata/alertd/services/httpd"
	"github.com/influxdata/alertd/services/storage"
	"github.com/influxdata/httprouter"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	usersPath    = "/users"
	userNamePath = usersPath + "/:name"

	// SaltBytes is the number of bytes used for salts
	saltBytes = 32

	authCacheExpiration = time.Hour

	userNamespace = "user_store"
)

// UnknownUserError names a username that has no account.
type UnknownUserError struct {
	Name string
}

func (e *UnknownUserError) Error() string {
	return fmt.Sprintf("unknown user %q", e.Name)
}

type Diagnostic interface {
	Error(msg string, err error)
	UserCreated(username string, admin bool)
	UserDeleted(username string)
	AuthenticationFailed(username string, err error)
}

type Service struct {
	diag   Diagnostic
	routes []httpd.Route

	StorageService interface {
		Store(namespace string) storage.Interface
		Register(name string, store storage.StoreActioner)
	}
	// Optional, offline commands run without it.
	HTTPDService interface {
		AddRoutes([]httpd.Route) error
		DelRoutes([]httpd.Route)
	}
	// Clock expires cached users and credentials.
	Clock clock.Clock

	users           UserDAO
	userCache       UserCache
	cacheExpiration time.Duration

	bcryptCost int

	// Authentication cache.
	// Caches sha256 hashes of passwords for faster authentication
	authCache map[string]authCred
	authMU    sync.RWMutex
}

type authCred struct {
	salt    []byte
	hash    []byte
	expires time.Time
}

func NewService(c Config, d Diagnostic) *Service {
	return &Service{
		diag:            d,
		authCache:       make(map[string]authCred),
		cacheExpiration: time.Duration(c.CacheExpiration),
		bcryptCost:      c.BcryptCost,
		Clock:           clock.New(),
	}
}

func (s *Service) Open() error {
	if s.StorageService == nil {
		return errors.New("missing storage service")
	}
	users, err := newUserKV(s.StorageService.Store(userNamespace))
	if err != nil {
		return err
	}
	s.users = users
	cache, err := newLRUUserCache(userCacheSize, s.cacheExpiration, s.Clock)
	if err != nil {
		return errors.Wrap(err, "failed to create user cache")
	}
	s.userCache = cache
	s.StorageService.Register("users", users)

	if s.HTTPDService == nil {
		return nil
	}
	s.routes = []httpd.Route{
		{
			Method:      "GET",
			Pattern:     usersPath,
			HandlerFunc: httpd.AuthorizationHandler(s.handleListUsers),
		},
		{
			Method:      "POST",
			Pattern:     usersPath,
			HandlerFunc: httpd.AuthorizationHandler(s.handleCreateUser),
		},
		{
			Method:      "GET",
			Pattern:     userNamePath,
			HandlerFunc: httpd.AuthorizationHandler(s.handleUser),
		},
		{
			Method:      "PATCH",
			Pattern:     userNamePath,
			HandlerFunc: httpd.AuthorizationHandler(s.handleUpdateUser),
		},
		{
			Method:      "DELETE",
			Pattern:     userNamePath,
			HandlerFunc: httpd.AuthorizationHandler(s.handleDeleteUser),
		},
	}
	return s.HTTPDService.AddRoutes(s.routes)
}

func (s *Service) Close() error {
	if s.HTTPDService != nil {
		s.HTTPDService.DelRoutes(s.routes)
	}
	return nil
}

func (s *Service) Authenticate(username, password string) (auth.User, error) {
	user, err := s.User(username)
	if err != nil {
		s.diag.AuthenticationFailed(username, err)
		return auth.User{}, auth.ErrAuthenticate
	}

	// Check for auth cache entry first
	s.authMU.RLock()
	cred, ok := s.authCache[username]
	s.authMU.RUnlock()
	if ok && cred.expires.After(s.Clock.Now()) && bytes.Equal(s.hashWithSalt(cred.salt, password), cred.hash) {
		return user, nil
	}

	if err := bcrypt.CompareHashAndPassword(user.Hash(), []byte(password)); err != nil {
		s.userCache.Delete(username)
		s.diag.AuthenticationFailed(username, err)
		return auth.User{}, auth.ErrAuthenticate
	}

	// generate a salt and hash of the password for the cache
	if salt, hashed, err := s.saltedHash(password); err == nil {
		s.authMU.Lock()
		s.authCache[username] = authCred{salt: salt, hash: hashed, expires: s.Clock.Now().Add(authCacheExpiration)}
		s.authMU.Unlock()
	}
	return user, nil
}

// saltedHash returns a salt and salted hash of password
func (s *Service) saltedHash(password string) (salt, hash []byte, err error) {
	salt = make([]byte, saltBytes)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, err
	}
	return salt, s.hashWithSalt(salt, password), nil
}

// hashWithSalt returns a salted hash of password using salt
func (s *Service) hashWithSalt(salt []byte, password string) []byte {
	hasher := sha256.New()
	hasher.Write(salt)
	hasher.Write([]byte(password))
	return hasher.Sum(nil)
}

// User returns the identity for username, ErrNoUserExists if there is none.
func (s *Service) User(username string) (auth.User, error) {
	if cached, found := s.userCache.Get(username); found {
		return cached, nil
	}
	u, err := s.users.Get(username)
	if err != nil {
		return auth.User{}, errors.Wrapf(err, "retrieving user %q from store", username)
	}
	au := convertToAuthUser(u)
	s.userCache.Set(au)
	return au, nil
}

// ResolveUsers maps usernames to identities from a single snapshot of the store.
// Duplicates are collapsed. The first unknown name is returned as an *UnknownUserError.
func (s *Service) ResolveUsers(usernames []string) ([]auth.User, error) {
	seen := make(map[string]bool, len(usernames))
	unique := make([]string, 0, len(usernames))
	for _, name := range usernames {
		if seen[name] {
			continue
		}
		seen[name] = true
		unique = append(unique, name)
	}
	users, err := s.users.GetMany(unique)
	if err != nil {
		return nil, err
	}
	resolved := make([]auth.User, len(users))
	for i, u := range users {
		resolved[i] = convertToAuthUser(u)
	}
	return resolved, nil
}

// Pattern for valid usernames. Commas separate owners in alert forms.
var validUsername = regexp.MustCompile(`^[-\._\p{L}0-9@]+$`)

func ValidUsername(name string) bool {
	return validUsername.MatchString(name)
}

func (s *Service) CreateUser(username, password string, admin bool) (auth.User, error) {
	if !ValidUsername(username) {
		return auth.User{}, fmt.Errorf("username must contain only letters, numbers, '-', '.', '@' and '_': %q", username)
	}
	if password == "" {
		return auth.User{}, errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return auth.User{}, errors.Wrap(err, "hashing password")
	}
	u := User{
		Name:  username,
		Hash:  hash,
		Admin: admin,
	}
	if err := s.users.Create(u); err != nil {
		return auth.User{}, errors.Wrap(err, "saving user")
	}
	au := convertToAuthUser(u)
	s.userCache.Set(au)
	s.diag.UserCreated(username, admin)
	return au, nil
}

// UpdateUser changes the password when it is not empty and the admin flag when admin is not nil.
func (s *Service) UpdateUser(username, password string, admin *bool) (auth.User, error) {
	u, err := s.users.Get(username)
	if err != nil {
		return auth.User{}, errors.Wrap(err, "updating user")
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
		if err != nil {
			return auth.User{}, errors.Wrap(err, "hashing password")
		}
		u.Hash = hash
		s.forgetCredentials(username)
	}
	if admin != nil {
		u.Admin = *admin
	}
	if err := s.users.Replace(u); err != nil {
		return auth.User{}, errors.Wrap(err, "saving user")
	}
	au := convertToAuthUser(u)
	s.userCache.Set(au)
	return au, nil
}

func (s *Service) DeleteUser(username string) error {
	s.forgetCredentials(username)
	if err := s.users.Delete(username); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	s.diag.UserDeleted(username)
	return nil
}

// ListUsers lists users whose name matches pattern.
func (s *Service) ListUsers(pattern string, offset, limit int) ([]auth.User, error) {
	users, err := s.users.List(pattern, offset, limit)
	if err != nil {
		return nil, err
	}
	list := make([]auth.User, len(users))
	for i, u := range users {
		list[i] = convertToAuthUser(u)
	}
	return list, nil
}

func (s *Service) forgetCredentials(username string) {
	s.userCache.Delete(username)
	s.authMU.Lock()
	delete(s.authCache, username)
	s.authMU.Unlock()
}

func convertToAuthUser(u User) auth.User {
	return auth.NewUser(u.Name, u.Hash, u.Admin)
}

// HTTP API, administrators only.

type userJSON struct {
	Link  string `json:"link"`
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

type createUserOptions struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Admin    bool   `json:"admin"`
}

type updateUserOptions struct {
	Password string `json:"password"`
	Admin    *bool  `json:"admin"`
}

func userLink(username string) string {
	return path.Join(usersPath, username)
}

func toJSON(u auth.User) userJSON {
	return userJSON{
		Link:  userLink(u.Name()),
		Name:  u.Name(),
		Admin: u.IsAdmin(),
	}
}

func requireAdmin(w http.ResponseWriter, user auth.User) bool {
	if user.IsAnonymous() {
		httpd.HttpError(w, "authentication required", true, http.StatusUnauthorized)
		return false
	}
	if !user.IsAdmin() {
		httpd.HttpError(w, "user management requires an administrator", true, http.StatusForbidden)
		return false
	}
	return true
}

func (s *Service) handleUser(w http.ResponseWriter, r *http.Request, caller auth.User) {
	if !requireAdmin(w, caller) {
		return
	}
	username := httprouter.ParamsFromContext(r.Context()).ByName("name")
	u, err := s.User(username)
	if err != nil {
		if errors.Cause(err) == ErrNoUserExists {
			httpd.HttpError(w, err.Error(), true, http.StatusNotFound)
			return
		}
		httpd.HttpError(w, err.Error(), true, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(httpd.MarshalJSON(toJSON(u), true))
}

func (s *Service) handleCreateUser(w http.ResponseWriter, r *http.Request, caller auth.User) {
	if !requireAdmin(w, caller) {
		return
	}
	var opts createUserOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		httpd.HttpError(w, "invalid JSON", true, http.StatusBadRequest)
		return
	}
	if opts.Name == "" {
		httpd.HttpError(w, "username is required", true, http.StatusBadRequest)
		return
	}
	if !ValidUsername(opts.Name) {
		httpd.HttpError(w, fmt.Sprintf("username must contain only letters, numbers, '-', '.', '@' and '_'. %q", opts.Name), true, http.StatusBadRequest)
		return
	}
	if opts.Password == "" {
		httpd.HttpError(w, "password is required", true, http.StatusBadRequest)
		return
	}
	u, err := s.CreateUser(opts.Name, opts.Password, opts.Admin)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Cause(err) == ErrUserExists {
			code = http.StatusConflict
		}
		httpd.HttpError(w, fmt.Sprintf("failed to create user: %s", err.Error()), true, code)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(httpd.MarshalJSON(toJSON(u), true))
}

func (s *Service) handleUpdateUser(w http.ResponseWriter, r *http.Request, caller auth.User) {
	if !requireAdmin(w, caller) {
		return
	}
	username := httprouter.ParamsFromContext(r.Context()).ByName("name")
	var opts updateUserOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		httpd.HttpError(w, "invalid JSON", true, http.StatusBadRequest)
		return
	}
	u, err := s.UpdateUser(username, opts.Password, opts.Admin)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Cause(err) == ErrNoUserExists {
			code = http.StatusNotFound
		}
		httpd.HttpError(w, fmt.Sprintf("failed to update user: %s", err.Error()), true, code)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(httpd.MarshalJSON(toJSON(u), true))
}

func (s *Service) handleDeleteUser(w http.ResponseWriter, r *http.Request, caller auth.User) {
	if !requireAdmin(w, caller) {
		return
	}
	username := httprouter.ParamsFromContext(r.Context()).ByName("name")
	if err := s.DeleteUser(username); err != nil {
		httpd.HttpError(w, fmt.Sprintf("failed to delete user: %s", err.Error()), true, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleListUsers(w http.ResponseWriter, r *http.Request, caller auth.User) {
	if !requireAdmin(w, caller) {
		return
	}
	q := r.URL.Query()
	pattern := q.Get("pattern")

	offset, limit := 0, 100
	var err error
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil {
			httpd.HttpError(w, fmt.Sprintf("invalid offset parameter %q must be an integer: %s", v, err), true, http.StatusBadRequest)
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil {
			httpd.HttpError(w, fmt.Sprintf("invalid limit parameter %q must be an integer: %s", v, err), true, http.StatusBadRequest)
			return
		}
	}

	users, err := s.ListUsers(strings.TrimSpace(pattern), offset, limit)
	if err != nil {
		httpd.HttpError(w, err.Error(), true, http.StatusInternalServerError)
		return
	}
	type response struct {
		Users []userJSON `json:"users"`
	}
	resp := response{Users: make([]userJSON, len(users))}
	for i, u := range users {
		resp.Users[i] = toJSON(u)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(httpd.MarshalJSON(resp, true))
}
