// Package storagetest provides throwaway storage for tests.
package storagetest

import (
	"os"
	"path/filepath"
	"time"

	"github.com/influxdata/alertd/services/storage"
	bolt "go.etcd.io/bbolt"
)

type CleanedTest interface {
	TempDir() string
}

// TestStore satisfies the StorageService dependency of every service.
type TestStore struct {
	db        *BoltDB
	versions  storage.Versions
	registrar *storage.StoreActionerRegistrar
}

// BoltDB is a bolt database living in a test temp dir.
type BoltDB struct {
	*bolt.DB
}

func NewBolt(t CleanedTest) (*BoltDB, error) {
	f, err := os.CreateTemp(t.TempDir(), "alertd*.db")
	if err != nil {
		return nil, err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return nil, err
	}
	db, err := bolt.Open(name, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	return &BoltDB{db}, nil
}

func (b BoltDB) Store(namespace string) storage.Interface {
	return storage.NewBolt(b.DB, namespace)
}

func (b BoltDB) Close() error {
	dir := filepath.Dir(b.Path())
	if err := b.DB.Close(); err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// New panics if the database cannot be created.
func New(t CleanedTest) *TestStore {
	db, err := NewBolt(t)
	if err != nil {
		panic(err)
	}
	return &TestStore{
		db:        db,
		versions:  storage.NewVersions(db.Store("versions")),
		registrar: storage.NewStorageRegistrar(),
	}
}

func (s *TestStore) Store(namespace string) storage.Interface {
	return s.db.Store(namespace)
}

func (s *TestStore) Versions() storage.Versions {
	return s.versions
}

func (s *TestStore) Register(name string, store storage.StoreActioner) {
	s.registrar.Register(name, store)
}

func (s *TestStore) Registrar() *storage.StoreActionerRegistrar {
	return s.registrar
}

func (s *TestStore) Close() error {
	return s.db.Close()
}

// NopDiagnostic discards everything.
type NopDiagnostic struct{}

func (NopDiagnostic) Error(string, error)                    {}
func (NopDiagnostic) OpenRetry(string, error, time.Duration) {}
func (NopDiagnostic) Opened(string)                          {}
