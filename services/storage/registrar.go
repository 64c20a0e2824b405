package storage

import (
	"sort"
	"sync"
)

// StoreActioner is a store that supports maintenance actions.
type StoreActioner interface {
	// Rebuild recreates all derived data, such as indexes, of the store.
	Rebuild() error
}

type StoreActionerRegistrar struct {
	mu     sync.RWMutex
	stores map[string]StoreActioner
}

func NewStorageRegistrar() *StoreActionerRegistrar {
	return &StoreActionerRegistrar{
		stores: make(map[string]StoreActioner),
	}
}

// List returns the registered store names in sorted order.
func (sr *StoreActionerRegistrar) List() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	list := make([]string, 0, len(sr.stores))
	for name := range sr.stores {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

func (sr *StoreActionerRegistrar) Register(name string, store StoreActioner) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.stores[name] = store
}

func (sr *StoreActionerRegistrar) Get(name string) (store StoreActioner, ok bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	store, ok = sr.stores[name]
	return
}
