package storage

import (
	"bytes"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Bolt is an Interface backed by one top level bucket of a bbolt database.
type Bolt struct {
	db     *bolt.DB
	bucket []byte
}

func NewBolt(db *bolt.DB, bucket string) *Bolt {
	return &Bolt{
		db:     db,
		bucket: []byte(bucket),
	}
}

func (b *Bolt) View(f func(tx ReadOnlyTx) error) error {
	return DoView(b, f)
}

func (b *Bolt) Update(f func(tx Tx) error) error {
	return DoUpdate(b, f)
}

func (b *Bolt) BeginTx() (Tx, error) {
	return b.begin(true)
}

func (b *Bolt) BeginReadOnlyTx() (ReadOnlyTx, error) {
	return b.begin(false)
}

func (b *Bolt) begin(writable bool) (*boltTx, error) {
	tx, err := b.db.Begin(writable)
	if err != nil {
		return nil, errors.Wrapf(err, "begin transaction on %q", b.bucket)
	}
	return &boltTx{
		name: b.bucket,
		tx:   tx,
	}, nil
}

// boltTx scopes a bolt.Tx to a single bucket.
// The bucket is created lazily by the first write.
type boltTx struct {
	name []byte
	tx   *bolt.Tx
}

func (t *boltTx) bucket() *bolt.Bucket {
	return t.tx.Bucket(t.name)
}

func (t *boltTx) Get(key string) (*KeyValue, error) {
	bucket := t.bucket()
	if bucket == nil {
		return nil, ErrNoKeyExists
	}
	v := bucket.Get([]byte(key))
	if v == nil {
		return nil, ErrNoKeyExists
	}
	// Values are only valid for the life of the transaction.
	return &KeyValue{
		Key:   key,
		Value: append([]byte(nil), v...),
	}, nil
}

func (t *boltTx) Exists(key string) (bool, error) {
	bucket := t.bucket()
	if bucket == nil {
		return false, nil
	}
	return bucket.Get([]byte(key)) != nil, nil
}

func (t *boltTx) List(prefix string) ([]*KeyValue, error) {
	bucket := t.bucket()
	if bucket == nil {
		return nil, nil
	}
	var kvs []*KeyValue
	p := []byte(prefix)
	c := bucket.Cursor()
	for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		if v == nil {
			// nested bucket
			continue
		}
		kvs = append(kvs, &KeyValue{
			Key:   string(k),
			Value: append([]byte(nil), v...),
		})
	}
	return kvs, nil
}

func (t *boltTx) Put(key string, value []byte) error {
	bucket, err := t.tx.CreateBucketIfNotExists(t.name)
	if err != nil {
		return errors.Wrapf(err, "create bucket %q", t.name)
	}
	return bucket.Put([]byte(key), value)
}

func (t *boltTx) Delete(key string) error {
	bucket := t.bucket()
	if bucket == nil {
		return nil
	}
	return bucket.Delete([]byte(key))
}

func (t *boltTx) Commit() error {
	return t.tx.Commit()
}

func (t *boltTx) Rollback() error {
	err := t.tx.Rollback()
	if err == bolt.ErrTxClosed {
		return nil
	}
	return err
}
