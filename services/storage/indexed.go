package storage

import (
	"encoding"
	"fmt"
	"path"
	"strings"

	"github.com/pkg/errors"
)

const (
	defaultDataPrefix    = "data"
	defaultIndexesPrefix = "indexes"

	DefaultIDIndex = "id"
)

var (
	ErrObjectExists   = errors.New("object already exists")
	ErrNoObjectExists = errors.New("no object exists")
)

// BinaryObject is anything an IndexedStore can hold.
type BinaryObject interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
	ObjectID() string
}

type NewObjectF func() BinaryObject
type ValueFunc func(BinaryObject) (string, error)

// Index is a secondary ordering over the objects of an IndexedStore.
// Non unique index values are suffixed with the object ID so that
// equal values do not collide.
type Index struct {
	Name      string
	ValueFunc ValueFunc
	Unique    bool
}

func (idx Index) ValueOf(o BinaryObject) (string, error) {
	value, err := idx.ValueFunc(o)
	if err != nil {
		return "", err
	}
	if !idx.Unique {
		value = value + "/" + o.ObjectID()
	}
	return value, nil
}

// IndexedStore stores BinaryObjects and keeps their indexes in step.
//
// Keys are laid out like a directory tree:
//
//	/<prefix>/<dataPrefix>/<ID>                  encoded object
//	/<prefix>/<indexesPrefix>/<index>/<value>    object ID
//
// Listing an index therefore walks the objects in index value order.
type IndexedStore struct {
	store Interface

	dataPrefix    string
	indexesPrefix string

	indexes []Index

	newObject NewObjectF
}

type IndexedStoreConfig struct {
	Prefix        string
	DataPrefix    string
	IndexesPrefix string
	NewObject     NewObjectF
	Indexes       []Index
}

// DefaultIndexedStoreConfig returns a config with the unique "id" index.
func DefaultIndexedStoreConfig(prefix string, newObject NewObjectF) IndexedStoreConfig {
	return IndexedStoreConfig{
		Prefix:        prefix,
		DataPrefix:    defaultDataPrefix,
		IndexesPrefix: defaultIndexesPrefix,
		NewObject:     newObject,
		Indexes: []Index{{
			Name:   DefaultIDIndex,
			Unique: true,
			ValueFunc: func(o BinaryObject) (string, error) {
				return o.ObjectID(), nil
			},
		}},
	}
}

func validPath(p string) bool {
	return !strings.Contains(p, "/")
}

func (c IndexedStoreConfig) Validate() error {
	if c.Prefix == "" {
		return errors.New("must provide a prefix")
	}
	if !validPath(c.Prefix) {
		return fmt.Errorf("invalid prefix %q", c.Prefix)
	}
	if !validPath(c.DataPrefix) {
		return fmt.Errorf("invalid data prefix %q", c.DataPrefix)
	}
	if !validPath(c.IndexesPrefix) {
		return fmt.Errorf("invalid indexes prefix %q", c.IndexesPrefix)
	}
	if c.IndexesPrefix == c.DataPrefix {
		return fmt.Errorf("data prefix and indexes prefix must differ, both are %q", c.IndexesPrefix)
	}
	if c.NewObject == nil {
		return errors.New("must provide a NewObject function")
	}
	names := make(map[string]bool, len(c.Indexes))
	for _, idx := range c.Indexes {
		if !validPath(idx.Name) {
			return fmt.Errorf("invalid index name %q", idx.Name)
		}
		if names[idx.Name] {
			return fmt.Errorf("duplicate index name %q", idx.Name)
		}
		names[idx.Name] = true
		if idx.ValueFunc == nil {
			return fmt.Errorf("index %q has no ValueFunc", idx.Name)
		}
	}
	return nil
}

func NewIndexedStore(store Interface, c IndexedStoreConfig) (*IndexedStore, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &IndexedStore{
		store:         store,
		dataPrefix:    path.Join("/", c.Prefix, c.DataPrefix) + "/",
		indexesPrefix: path.Join("/", c.Prefix, c.IndexesPrefix),
		indexes:       c.Indexes,
		newObject:     c.NewObject,
	}, nil
}

func (s *IndexedStore) dataKey(id string) string {
	return s.dataPrefix + id
}

// indexPrefix is the key prefix shared by every entry of index.
func (s *IndexedStore) indexPrefix(index string) string {
	return s.indexesPrefix + "/" + index + "/"
}

// indexKey appends value verbatim. Values are never cleaned, so "." and ".."
// segments stay inside the index.
func (s *IndexedStore) indexKey(index, value string) string {
	return s.indexPrefix(index) + value
}

func (s *IndexedStore) hasIndex(index string) bool {
	for _, idx := range s.indexes {
		if idx.Name == index {
			return true
		}
	}
	return false
}

func (s *IndexedStore) decode(data []byte) (BinaryObject, error) {
	o := s.newObject()
	if err := o.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *IndexedStore) Get(id string) (o BinaryObject, err error) {
	err = s.store.View(func(tx ReadOnlyTx) error {
		o, err = s.GetTx(tx, id)
		return err
	})
	return
}

func (s *IndexedStore) GetTx(tx ReadOnlyTx, id string) (BinaryObject, error) {
	kv, err := tx.Get(s.dataKey(id))
	if err == ErrNoKeyExists {
		return nil, ErrNoObjectExists
	} else if err != nil {
		return nil, err
	}
	return s.decode(kv.Value)
}

// Create stores a new object, failing with ErrObjectExists if the ID is taken.
func (s *IndexedStore) Create(o BinaryObject) error {
	return s.put(o, false, false)
}
func (s *IndexedStore) CreateTx(tx Tx, o BinaryObject) error {
	return s.putTx(tx, o, false, false)
}

// Put stores an object, creating or replacing it.
func (s *IndexedStore) Put(o BinaryObject) error {
	return s.put(o, true, false)
}
func (s *IndexedStore) PutTx(tx Tx, o BinaryObject) error {
	return s.putTx(tx, o, true, false)
}

// Replace stores an object that must already exist.
func (s *IndexedStore) Replace(o BinaryObject) error {
	return s.put(o, true, true)
}
func (s *IndexedStore) ReplaceTx(tx Tx, o BinaryObject) error {
	return s.putTx(tx, o, true, true)
}

func (s *IndexedStore) put(o BinaryObject, allowReplace, requireReplace bool) error {
	return s.store.Update(func(tx Tx) error {
		return s.putTx(tx, o, allowReplace, requireReplace)
	})
}

func (s *IndexedStore) putTx(tx Tx, o BinaryObject, allowReplace, requireReplace bool) error {
	old, err := s.GetTx(tx, o.ObjectID())
	switch {
	case err == ErrNoObjectExists:
		if requireReplace {
			return err
		}
		old = nil
	case err != nil:
		return err
	case !allowReplace:
		return ErrObjectExists
	}

	data, err := o.MarshalBinary()
	if err != nil {
		return err
	}
	if err := tx.Put(s.dataKey(o.ObjectID()), data); err != nil {
		return err
	}

	for _, idx := range s.indexes {
		newValue, err := idx.ValueOf(o)
		if err != nil {
			return err
		}
		newKey := s.indexKey(idx.Name, newValue)
		if old != nil {
			oldValue, err := idx.ValueOf(old)
			if err != nil {
				return err
			}
			oldKey := s.indexKey(idx.Name, oldValue)
			if oldKey == newKey {
				continue
			}
			if err := tx.Delete(oldKey); err != nil {
				return err
			}
		}
		if err := tx.Put(newKey, []byte(o.ObjectID())); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes an object and its index entries. Deleting a missing object is not an error.
func (s *IndexedStore) Delete(id string) error {
	return s.store.Update(func(tx Tx) error {
		return s.DeleteTx(tx, id)
	})
}

func (s *IndexedStore) DeleteTx(tx Tx, id string) error {
	o, err := s.GetTx(tx, id)
	if err == ErrNoObjectExists {
		return nil
	} else if err != nil {
		return err
	}

	if err := tx.Delete(s.dataKey(id)); err != nil {
		return err
	}
	for _, idx := range s.indexes {
		value, err := idx.ValueOf(o)
		if err != nil {
			return err
		}
		if err := tx.Delete(s.indexKey(idx.Name, value)); err != nil {
			return err
		}
	}
	return nil
}

// List returns objects in index order whose ID matches pattern (see path.Match).
// An empty pattern matches every object. If limit < 0, then no limit is enforced.
func (s *IndexedStore) List(index, pattern string, offset, limit int) (objects []BinaryObject, err error) {
	err = s.store.View(func(tx ReadOnlyTx) error {
		objects, err = s.ListTx(tx, index, pattern, offset, limit)
		return err
	})
	return
}

func (s *IndexedStore) ListTx(tx ReadOnlyTx, index, pattern string, offset, limit int) ([]BinaryObject, error) {
	return s.list(tx, index, "", pattern, offset, limit, false)
}

// ReverseList is List in descending index order.
func (s *IndexedStore) ReverseList(index, pattern string, offset, limit int) (objects []BinaryObject, err error) {
	err = s.store.View(func(tx ReadOnlyTx) error {
		objects, err = s.ReverseListTx(tx, index, pattern, offset, limit)
		return err
	})
	return
}

func (s *IndexedStore) ReverseListTx(tx ReadOnlyTx, index, pattern string, offset, limit int) ([]BinaryObject, error) {
	return s.list(tx, index, "", pattern, offset, limit, true)
}

// ListPrefixTx returns, in index order, every object whose index value starts with prefix.
// Only the matching range of the index is read.
func (s *IndexedStore) ListPrefixTx(tx ReadOnlyTx, index, prefix string) ([]BinaryObject, error) {
	return s.list(tx, index, prefix, "", 0, -1, false)
}

func (s *IndexedStore) list(tx ReadOnlyTx, index, prefix, pattern string, offset, limit int, reverse bool) ([]BinaryObject, error) {
	if !s.hasIndex(index) {
		return nil, fmt.Errorf("unknown index %q", index)
	}
	ids, err := tx.List(s.indexPrefix(index) + prefix)
	if err != nil {
		return nil, err
	}
	if reverse {
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}

	match := func([]byte) bool { return true }
	if pattern != "" {
		match = func(value []byte) bool {
			matched, _ := path.Match(pattern, string(value))
			return matched
		}
	}
	var matches []string
	if limit >= 0 {
		matches = DoListFunc(ids, match, offset, limit)
	} else {
		for _, kv := range ids {
			if match(kv.Value) {
				matches = append(matches, string(kv.Value))
			}
		}
	}

	objects := make([]BinaryObject, len(matches))
	for i, id := range matches {
		o, err := s.GetTx(tx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "index %q references object %q", index, id)
		}
		objects[i] = o
	}
	return objects, nil
}

// Rebuild drops and recreates every index from the stored objects.
func (s *IndexedStore) Rebuild() error {
	return s.store.Update(func(tx Tx) error {
		return s.RebuildTx(tx)
	})
}

func (s *IndexedStore) RebuildTx(tx Tx) error {
	for _, idx := range s.indexes {
		if err := s.deleteIndex(tx, idx.Name); err != nil {
			return errors.Wrapf(err, "failed to clean index %s", idx.Name)
		}
	}
	data, err := tx.List(s.dataPrefix)
	if err != nil {
		return err
	}
	for _, kv := range data {
		o, err := s.decode(kv.Value)
		if err != nil {
			return errors.Wrapf(err, "failed to unmarshal object with key: %q", kv.Key)
		}
		for _, idx := range s.indexes {
			v, err := idx.ValueOf(o)
			if err != nil {
				return errors.Wrapf(err, "failed to get index value for object with key: %q", kv.Key)
			}
			if err := tx.Put(s.indexKey(idx.Name, v), []byte(o.ObjectID())); err != nil {
				return errors.Wrapf(err, "failed to update index for object with key: %q", kv.Key)
			}
		}
	}
	return nil
}

func (s *IndexedStore) deleteIndex(tx Tx, index string) error {
	entries, err := tx.List(s.indexPrefix(index))
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := tx.Delete(entry.Key); err != nil {
			return err
		}
	}
	return nil
}

func ImpossibleTypeErr(exp interface{}, got interface{}) error {
	return fmt.Errorf("impossible error, object not of type %T, got %T", exp, got)
}
