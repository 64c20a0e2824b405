package auth

import (
	"bytes"
	"encoding/gob"
	"errors"

	"github.com/influxdata/alertd/services/storage"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrNoUserExists = errors.New("no user exists")
)

type UserDAO interface {
	// Retrieve a user
	Get(username string) (User, error)

	// GetMany reads several users in a single snapshot.
	// The first missing username is reported as an *UnknownUserError.
	GetMany(usernames []string) ([]User, error)

	// Create a user.
	// ErrUserExists is returned if a user already exists with the same username.
	Create(u User) error

	// Replace an existing user.
	// ErrNoUserExists is returned if the user does not exist.
	Replace(u User) error

	// Delete a user.
	// It is not an error to delete an non-existent user.
	Delete(username string) error

	// List users matching a pattern on username.
	// The pattern is shell/glob matching see https://golang.org/pkg/path/#Match
	// Offset and limit are pagination bounds. Offset is inclusive starting at index 0.
	// More results may exist while the number of returned items is equal to limit.
	List(pattern string, offset, limit int) ([]User, error)

	Rebuild() error
}

//--------------------------------------------------------------------
// The following structure is stored in the database via gob encoding.
// Changes to it could break existing data.

// User is the stored form of a user.
type User struct {
	Name  string
	Admin bool
	Hash  []byte
}

type rawUser User

func (u User) ObjectID() string {
	return u.Name
}

func (u User) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(rawUser(u))
	return buf.Bytes(), err
}

func (u *User) UnmarshalBinary(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode((*rawUser)(u))
}

const (
	// Name of username index
	usernameIndex = "username"
)

// Key/Value store based implementation of the UserDAO
type userKV struct {
	db    storage.Interface
	store *storage.IndexedStore
}

func newUserKV(db storage.Interface) (*userKV, error) {
	c := storage.DefaultIndexedStoreConfig("users", func() storage.BinaryObject {
		return new(User)
	})
	c.Indexes = []storage.Index{{
		Name:   usernameIndex,
		Unique: true,
		ValueFunc: func(o storage.BinaryObject) (string, error) {
			return o.ObjectID(), nil
		},
	}}
	istore, err := storage.NewIndexedStore(db, c)
	if err != nil {
		return nil, err
	}
	return &userKV{
		db:    db,
		store: istore,
	}, nil
}

func (kv *userKV) error(err error) error {
	if err == storage.ErrNoObjectExists {
		return ErrNoUserExists
	} else if err == storage.ErrObjectExists {
		return ErrUserExists
	}
	return err
}

func (kv *userKV) Get(username string) (User, error) {
	o, err := kv.store.Get(username)
	if err != nil {
		return User{}, kv.error(err)
	}
	u, ok := o.(*User)
	if !ok {
		return User{}, storage.ImpossibleTypeErr(u, o)
	}
	return *u, nil
}

func (kv *userKV) GetMany(usernames []string) ([]User, error) {
	users := make([]User, 0, len(usernames))
	err := kv.db.View(func(tx storage.ReadOnlyTx) error {
		for _, name := range usernames {
			o, err := kv.store.GetTx(tx, name)
			if err == storage.ErrNoObjectExists {
				return &UnknownUserError{Name: name}
			} else if err != nil {
				return err
			}
			u, ok := o.(*User)
			if !ok {
				return storage.ImpossibleTypeErr(u, o)
			}
			users = append(users, *u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (kv *userKV) Create(u User) error {
	return kv.error(kv.store.Create(&u))
}

func (kv *userKV) Replace(u User) error {
	return kv.error(kv.store.Replace(&u))
}

func (kv *userKV) Delete(username string) error {
	return kv.error(kv.store.Delete(username))
}

func (kv *userKV) List(pattern string, offset, limit int) ([]User, error) {
	objects, err := kv.store.List(usernameIndex, pattern, offset, limit)
	if err != nil {
		return nil, kv.error(err)
	}
	users := make([]User, len(objects))
	for i, o := range objects {
		u, ok := o.(*User)
		if !ok {
			return nil, storage.ImpossibleTypeErr(u, o)
		}
		users[i] = *u
	}
	return users, nil
}

func (kv *userKV) Rebuild() error {
	return kv.store.Rebuild()
}
