// Package memory is an in-process settings backend for tests and embedding.
package memory

import (
	"context"
	"sync"

	settings "github.com/goliatone/go-settings"
)

// ErrKeyLocked is returned by Set for locked keys.
var ErrKeyLocked = settings.ErrKeyLocked

type ref struct {
	schemaID string
	key      string
}

// Store keeps committed values and a staging area. Set stages, Sync and
// SyncKey commit and Get only sees committed values, so a missing sync is
// observable.
type Store struct {
	mu        sync.RWMutex
	committed map[ref]settings.Variant
	staged    map[ref]settings.Variant
	failed    map[ref]error
	locked    map[ref]bool
	syncErr   error
	syncs     int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		committed: map[ref]settings.Variant{},
		staged:    map[ref]settings.Variant{},
		failed:    map[ref]error{},
		locked:    map[ref]bool{},
	}
}

func (s *Store) Get(_ context.Context, schemaID, key string) (settings.Variant, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.committed[ref{schemaID, key}]
	return value, ok, nil
}

func (s *Store) Set(_ context.Context, schemaID, key string, value settings.Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := ref{schemaID, key}
	if s.locked[r] {
		return ErrKeyLocked
	}
	s.staged[r] = value
	return nil
}

// Sync commits every staged value. When a failure was injected with
// FailSync the staged values are dropped and the error returned.
func (s *Store) Sync(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncs++
	for r := range s.staged {
		s.commit(r)
	}
	return s.syncErr
}

// SyncKey implements settings.KeySyncer. It commits only the value staged for
// key; with nothing staged it returns the outcome of the flush that took the
// key's last value.
func (s *Store) SyncKey(_ context.Context, schemaID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncs++
	r := ref{schemaID, key}
	if _, ok := s.staged[r]; !ok {
		return s.failed[r]
	}
	s.commit(r)
	return s.syncErr
}

func (s *Store) commit(r ref) {
	value := s.staged[r]
	delete(s.staged, r)
	if s.syncErr != nil {
		s.failed[r] = s.syncErr
		return
	}
	delete(s.failed, r)
	s.committed[r] = value
}

// Writable implements settings.WritableChecker.
func (s *Store) Writable(_ context.Context, schemaID, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.locked[ref{schemaID, key}], nil
}

// Lock makes Set refuse key.
func (s *Store) Lock(schemaID, key string) {
	s.mu.Lock()
	s.locked[ref{schemaID, key}] = true
	s.mu.Unlock()
}

// Unlock reverses Lock.
func (s *Store) Unlock(schemaID, key string) {
	s.mu.Lock()
	delete(s.locked, ref{schemaID, key})
	s.mu.Unlock()
}

// Put commits value directly, bypassing locks and staging. Use it to seed
// the store, including with values whose tag disagrees with the schema.
func (s *Store) Put(schemaID, key string, value settings.Variant) {
	s.mu.Lock()
	s.committed[ref{schemaID, key}] = value
	s.mu.Unlock()
}

// FailSync makes every following Sync fail with err; nil restores normal
// behaviour.
func (s *Store) FailSync(err error) {
	s.mu.Lock()
	s.syncErr = err
	s.mu.Unlock()
}

// Syncs reports how many times Sync or SyncKey was called.
func (s *Store) Syncs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncs
}

// Pending reports how many values are staged and not yet synced.
func (s *Store) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.staged)
}
