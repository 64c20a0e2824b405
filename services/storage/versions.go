package storage

import "github.com/pkg/errors"

// Versions records the layout version each service last wrote its namespace with.
type Versions interface {
	// Get returns ErrNoKeyExists when no version was ever recorded for namespace.
	Get(namespace string) (string, error)
	Set(namespace, version string) error
}

// UnsupportedVersionError is returned by EnsureVersion when a namespace
// was written with a layout this build does not read.
type UnsupportedVersionError struct {
	Namespace string
	Found     string
	Want      string
}

func (e *UnsupportedVersionError) Error() string {
	return "unsupported " + e.Namespace + " store version " + e.Found + ", want " + e.Want
}

type kvVersions struct {
	store Interface
}

func NewVersions(store Interface) Versions {
	return kvVersions{store: store}
}

func (v kvVersions) Get(namespace string) (string, error) {
	var version string
	err := v.store.View(func(tx ReadOnlyTx) error {
		kv, err := tx.Get(namespace)
		if err != nil {
			return err
		}
		version = string(kv.Value)
		return nil
	})
	return version, err
}

func (v kvVersions) Set(namespace, version string) error {
	return v.store.Update(func(tx Tx) error {
		return tx.Put(namespace, []byte(version))
	})
}

// EnsureVersion stamps a fresh namespace with want and rejects one stamped with anything else.
func EnsureVersion(v Versions, namespace, want string) error {
	found, err := v.Get(namespace)
	switch {
	case err == ErrNoKeyExists:
		return errors.Wrapf(v.Set(namespace, want), "stamp %s store version", namespace)
	case err != nil:
		return errors.Wrapf(err, "read %s store version", namespace)
	case found != want:
		return &UnsupportedVersionError{Namespace: namespace, Found: found, Want: want}
	}
	return nil
}
