package storage

import "errors"

var (
	ErrNoKeyExists = errors.New("no key exists")
)

// ReadOperator is the set of reads available inside any transaction.
type ReadOperator interface {
	// Get returns the value stored at key or ErrNoKeyExists.
	Get(key string) (*KeyValue, error)
	// Exists reports whether key holds a value.
	Exists(key string) (bool, error)
	// List returns all entries whose key starts with prefix, sorted by key.
	List(prefix string) ([]*KeyValue, error)
}

// WriteOperator is the set of writes available inside a read-write transaction.
type WriteOperator interface {
	Put(key string, value []byte) error
	// Delete removes key. A missing key is not an error.
	Delete(key string) error
}

// ReadOnlyTx is a consistent snapshot of a namespace.
type ReadOnlyTx interface {
	ReadOperator

	// Rollback ends the transaction, discarding any uncommitted change.
	// It must be called exactly once for every transaction and is a no-op after Commit.
	Rollback() error
}

// Tx is a read-write transaction.
type Tx interface {
	ReadOnlyTx
	WriteOperator

	Commit() error
}

// TxOperator begins transactions.
// A goroutine must not hold more than one open transaction at a time,
// backends allow a single writer and a second BeginTx from the same goroutine blocks forever.
type TxOperator interface {
	BeginReadOnlyTx() (ReadOnlyTx, error)
	BeginTx() (Tx, error)
}

// Interface is a namespaced transactional key/value store.
type Interface interface {
	// View runs f in a read-only transaction which is always rolled back.
	View(f func(ReadOnlyTx) error) error

	// Update runs f in a read-write transaction.
	// The transaction is committed if f returns nil and rolled back otherwise,
	// in which case the error from f is returned unchanged.
	Update(f func(Tx) error) error
}

// DoView implements Interface.View for a TxOperator.
func DoView(o TxOperator, f func(ReadOnlyTx) error) error {
	tx, err := o.BeginReadOnlyTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return f(tx)
}

// DoUpdate implements Interface.Update for a TxOperator.
func DoUpdate(o TxOperator, f func(Tx) error) error {
	tx, err := o.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := f(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type KeyValue struct {
	Key   string
	Value []byte
}

// DoListFunc returns the values of list that satisfy match,
// skipping the first offset matches and returning at most limit values.
func DoListFunc(list []*KeyValue, match func(value []byte) bool, offset, limit int) []string {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || offset >= len(list) {
		return nil
	}
	size := limit
	if rest := len(list) - offset; rest < size {
		size = rest
	}
	matches := make([]string, 0, size)
	seen := 0
	for _, kv := range list {
		if !match(kv.Value) {
			continue
		}
		seen++
		if seen <= offset {
			continue
		}
		matches = append(matches, string(kv.Value))
		if len(matches) == limit {
			break
		}
	}
	return matches
}
