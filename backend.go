package settings

import "context"

// Backend is the persistent store below the bridge. It is keyed by schema id
// and key name and treated as a black box.
//
// Get reports ok=false for keys that were never set. Set stages a value; the
// value is only guaranteed to be visible to other readers after Sync returns.
// An error from Set means the backend refused the write, for example with
// ErrKeyLocked.
type Backend interface {
	Get(ctx context.Context, schemaID, key string) (Variant, bool, error)
	Set(ctx context.Context, schemaID, key string, value Variant) error
	Sync(ctx context.Context) error
}

// WritableChecker is implemented by backends that can tell ahead of a write
// whether a key accepts new values.
type WritableChecker interface {
	Writable(ctx context.Context, schemaID, key string) (bool, error)
}

// KeySyncer is implemented by backends that can flush a single key. Writes
// use SyncKey instead of Sync when it is available, so one writer's failed
// flush cannot drop or hide another writer's staged value.
//
// SyncKey flushes the value staged for the key. When another flush already
// took that value, SyncKey reports the outcome of that flush.
type KeySyncer interface {
	SyncKey(ctx context.Context, schemaID, key string) error
}

func syncKey(ctx context.Context, backend Backend, schemaID, key string) error {
	if syncer, ok := backend.(KeySyncer); ok {
		return syncer.SyncKey(ctx, schemaID, key)
	}
	return backend.Sync(ctx)
}
