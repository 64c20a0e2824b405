package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-memory Interface used by tests.
// A transaction holds the store lock from begin until commit or rollback,
// so transactions never interleave.
type MemStore struct {
	mu    sync.Mutex
	Name  string
	store map[string][]byte
}

func NewMemStore(name string) *MemStore {
	return &MemStore{
		Name:  name,
		store: make(map[string][]byte),
	}
}

func (s *MemStore) View(f func(tx ReadOnlyTx) error) error {
	return DoView(s, f)
}

func (s *MemStore) Update(f func(tx Tx) error) error {
	return DoUpdate(s, f)
}

func (s *MemStore) BeginTx() (Tx, error) {
	return s.begin(), nil
}

func (s *MemStore) BeginReadOnlyTx() (ReadOnlyTx, error) {
	return s.begin(), nil
}

func (s *MemStore) begin() *memTx {
	s.mu.Lock()
	snapshot := make(map[string][]byte, len(s.store))
	for k, v := range s.store {
		snapshot[k] = v
	}
	return &memTx{
		m:     s,
		store: snapshot,
	}
}

type memTxState int

const (
	open memTxState = iota
	committed
	rolledBack
)

func (s memTxState) String() string {
	switch s {
	case open:
		return "open"
	case committed:
		return "committed"
	case rolledBack:
		return "rolled back"
	default:
		return fmt.Sprintf("memTxState(%d)", int(s))
	}
}

type memTx struct {
	state memTxState
	m     *MemStore
	store map[string][]byte
}

func (t *memTx) Get(key string) (*KeyValue, error) {
	v, ok := t.store[key]
	if !ok {
		return nil, ErrNoKeyExists
	}
	return &KeyValue{Key: key, Value: v}, nil
}

func (t *memTx) Exists(key string) (bool, error) {
	_, ok := t.store[key]
	return ok, nil
}

func (t *memTx) List(prefix string) ([]*KeyValue, error) {
	var kvs []*KeyValue
	for k, v := range t.store {
		if strings.HasPrefix(k, prefix) {
			kvs = append(kvs, &KeyValue{Key: k, Value: v})
		}
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].Key < kvs[j].Key })
	return kvs, nil
}

func (t *memTx) Put(key string, value []byte) error {
	t.store[key] = append([]byte(nil), value...)
	return nil
}

func (t *memTx) Delete(key string) error {
	delete(t.store, key)
	return nil
}

func (t *memTx) Commit() error {
	if t.state != open {
		return fmt.Errorf("cannot commit transaction, transaction is %v", t.state)
	}
	t.m.store = t.store
	t.state = committed
	t.m.mu.Unlock()
	return nil
}

func (t *memTx) Rollback() error {
	if t.state == open {
		t.state = rolledBack
		t.m.mu.Unlock()
	}
	return nil
}
