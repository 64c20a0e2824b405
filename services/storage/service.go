package storage

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

const (
	versionsNamespace = "versions"
)

type Diagnostic interface {
	Error(msg string, err error)
	OpenRetry(path string, err error, wait time.Duration)
	Opened(path string)
}

// Service owns the bolt database and hands out namespaced stores.
type Service struct {
	dbpath      string
	openTimeout time.Duration
	openRetries uint64

	boltdb *bolt.DB
	stores map[string]Interface
	mu     sync.Mutex

	versions  Versions
	registrar *StoreActionerRegistrar

	diag Diagnostic
}

func NewService(c Config, d Diagnostic) *Service {
	return &Service{
		dbpath:      c.BoltDBPath,
		openTimeout: time.Duration(c.OpenTimeout),
		openRetries: uint64(c.OpenRetries),
		stores:      make(map[string]Interface),
		registrar:   NewStorageRegistrar(),
		diag:        d,
	}
}

func (s *Service) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.dbpath), 0755); err != nil {
		return errors.Wrapf(err, "mkdir dirs %q", s.dbpath)
	}

	// Another process holding the file lock makes bolt.Open time out,
	// which is worth waiting out for a while during restarts.
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 0
	open := func() error {
		db, err := bolt.Open(s.dbpath, 0600, &bolt.Options{Timeout: s.openTimeout})
		if err == bolt.ErrTimeout {
			return err
		} else if err != nil {
			return backoff.Permanent(err)
		}
		s.boltdb = db
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.diag.OpenRetry(s.dbpath, err, wait)
	}
	if err := backoff.RetryNotify(open, backoff.WithMaxRetries(b, s.openRetries), notify); err != nil {
		return errors.Wrapf(err, "open boltdb @ %q", s.dbpath)
	}
	s.diag.Opened(s.dbpath)

	s.versions = NewVersions(s.store(versionsNamespace))
	return nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boltdb != nil {
		err := s.boltdb.Close()
		s.boltdb = nil
		s.stores = make(map[string]Interface)
		return err
	}
	return nil
}

// Store returns the store for namespace name.
// Calling Store with the same namespace returns the same store.
func (s *Service) Store(name string) Interface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(name)
}

func (s *Service) store(name string) Interface {
	if store, ok := s.stores[name]; ok {
		return store
	}
	store := NewBolt(s.boltdb, name)
	s.stores[name] = store
	return store
}

func (s *Service) Versions() Versions {
	return s.versions
}

// Register makes a store available to the maintenance API.
func (s *Service) Register(name string, store StoreActioner) {
	s.registrar.Register(name, store)
}

func (s *Service) Registrar() *StoreActionerRegistrar {
	return s.registrar
}

func (s *Service) Diagnostic() Diagnostic {
	return s.diag
}

// Backup writes a consistent copy of the whole database to w.
// size is called with the number of bytes that will follow before anything is written.
func (s *Service) Backup(w io.Writer, size func(int64)) error {
	s.mu.Lock()
	db := s.boltdb
	s.mu.Unlock()
	if db == nil {
		return errors.New("storage service is not open")
	}
	return db.View(func(tx *bolt.Tx) error {
		if size != nil {
			size(tx.Size())
		}
		_, err := tx.WriteTo(w)
		return err
	})
}
