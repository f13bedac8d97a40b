package memory

import (
	"context"
	"errors"
	"testing"

	settings "github.com/goliatone/go-settings"
)

var _ settings.Backend = (*Store)(nil)
var _ settings.WritableChecker = (*Store)(nil)
var _ settings.KeySyncer = (*Store)(nil)

func TestStoreSetIsInvisibleUntilSync(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if err := store.Set(ctx, "org.example.a", "flag", settings.Boolean(true)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "org.example.a", "flag"); ok {
		t.Fatalf("expected staged value to be invisible before sync")
	}
	if store.Pending() != 1 {
		t.Fatalf("expected one pending value, got %d", store.Pending())
	}

	if err := store.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	value, ok, err := store.Get(ctx, "org.example.a", "flag")
	if err != nil || !ok {
		t.Fatalf("expected committed value, ok=%v err=%v", ok, err)
	}
	if value != settings.Boolean(true) {
		t.Fatalf("expected true, got %v", value)
	}
	if store.Pending() != 0 || store.Syncs() != 1 {
		t.Fatalf("unexpected counters pending=%d syncs=%d", store.Pending(), store.Syncs())
	}
}

func TestStoreLockRejectsSet(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.Lock("org.example.a", "flag")

	err := store.Set(ctx, "org.example.a", "flag", settings.Boolean(true))
	if !errors.Is(err, settings.ErrKeyLocked) {
		t.Fatalf("expected ErrKeyLocked, got %v", err)
	}
	if writable, _ := store.Writable(ctx, "org.example.a", "flag"); writable {
		t.Fatalf("expected locked key to be reported read-only")
	}

	store.Unlock("org.example.a", "flag")
	if err := store.Set(ctx, "org.example.a", "flag", settings.Boolean(true)); err != nil {
		t.Fatalf("set after unlock: %v", err)
	}
}

func TestStoreFailedSyncDropsStagedValues(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.Put("org.example.a", "count", settings.Int32(5))
	boom := errors.New("disk full")
	store.FailSync(boom)

	if err := store.Set(ctx, "org.example.a", "count", settings.Int32(6)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Sync(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected injected sync error, got %v", err)
	}

	store.FailSync(nil)
	if err := store.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	value, _, _ := store.Get(ctx, "org.example.a", "count")
	if value != settings.Int32(5) {
		t.Fatalf("expected committed value to survive failed sync, got %v", value)
	}
}

func TestStoreSyncKeyLeavesOtherWritersStaged(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	boom := errors.New("disk full")

	if err := store.Set(ctx, "org.example.a", "first", settings.Int32(1)); err != nil {
		t.Fatalf("set first: %v", err)
	}
	if err := store.Set(ctx, "org.example.a", "second", settings.Int32(2)); err != nil {
		t.Fatalf("set second: %v", err)
	}

	store.FailSync(boom)
	if err := store.SyncKey(ctx, "org.example.a", "second"); !errors.Is(err, boom) {
		t.Fatalf("expected second writer to see the failure, got %v", err)
	}
	store.FailSync(nil)

	if store.Pending() != 1 {
		t.Fatalf("expected first value to stay staged, got %d pending", store.Pending())
	}
	if err := store.SyncKey(ctx, "org.example.a", "first"); err != nil {
		t.Fatalf("sync first: %v", err)
	}
	if value, ok, _ := store.Get(ctx, "org.example.a", "first"); !ok || value != settings.Int32(1) {
		t.Fatalf("expected first value to be committed, got %v %v", value, ok)
	}
	if _, ok, _ := store.Get(ctx, "org.example.a", "second"); ok {
		t.Fatalf("expected failed value to stay uncommitted")
	}
}

func TestStoreSyncKeyReportsFailedSharedFlush(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	boom := errors.New("disk full")

	if err := store.Set(ctx, "org.example.a", "count", settings.Int32(6)); err != nil {
		t.Fatalf("set: %v", err)
	}
	store.FailSync(boom)
	if err := store.Sync(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected injected sync error, got %v", err)
	}
	store.FailSync(nil)

	if err := store.SyncKey(ctx, "org.example.a", "count"); !errors.Is(err, boom) {
		t.Fatalf("expected writer to learn its value was lost, got %v", err)
	}

	if err := store.Set(ctx, "org.example.a", "count", settings.Int32(7)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := store.SyncKey(ctx, "org.example.a", "count"); err != nil {
		t.Fatalf("expected committed key to report success, got %v", err)
	}
}
