package settings_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/activity"
	"github.com/goliatone/go-settings/pkg/backend/memory"
	"github.com/google/go-cmp/cmp"
)

const appSchema = "org.example"

func newAppSchema(t *testing.T) *settings.Schema {
	t.Helper()
	volume, err := settings.NewRangeConstraint(0, 10)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	schema, err := settings.NewSchema(appSchema,
		settings.KeySpec{Name: "volume", Type: settings.TypeInt32, Default: settings.Int32(3), Constraint: volume},
		settings.KeySpec{Name: "muted", Type: settings.TypeBoolean},
		settings.KeySpec{Name: "size", Type: settings.TypeUInt32, Default: settings.UInt32(12)},
		settings.KeySpec{Name: "scale", Type: settings.TypeDouble, Default: settings.Double(1)},
		settings.KeySpec{Name: "theme", Type: settings.TypeString, Default: settings.String("light"),
			Constraint: settings.NewChoicesConstraint("light", "dark")},
		settings.KeySpec{Name: "hosts", Type: settings.TypeStringArray},
		settings.KeySpec{Name: "env", Type: settings.TypeStringPairArray},
		settings.KeySpec{Name: "geometry", Signature: "(iiii)"},
	)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return schema
}

func newManager(t *testing.T, opts ...settings.Option) (*settings.Manager, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	source := settings.NewStaticSource(newAppSchema(t))
	return settings.New(source, store, opts...), store
}

func TestWriteThenReadEveryType(t *testing.T) {
	ctx := context.Background()
	manager, store := newManager(t)

	writes := map[string]any{
		"volume": 7,
		"muted":  true,
		"size":   4294967295.0,
		"scale":  1.25,
		"theme":  "dark",
		"hosts":  []string{"a.example", "b.example"},
		"env":    [][]string{{"LANG", "C"}},
	}
	want := map[string]any{
		"volume": int64(7),
		"muted":  true,
		"size":   int64(4294967295),
		"scale":  1.25,
		"theme":  "dark",
		"hosts":  []any{"a.example", "b.example"},
		"env":    []any{[]any{"LANG", "C"}},
	}
	for key, value := range writes {
		if err := manager.Write(ctx, appSchema, key, value); err != nil {
			t.Fatalf("write %s: %v", key, err)
		}
	}
	if store.Syncs() != len(writes) || store.Pending() != 0 {
		t.Fatalf("expected one sync per write, got %d syncs and %d pending", store.Syncs(), store.Pending())
	}
	for key, expected := range want {
		got, err := manager.Read(ctx, appSchema, key)
		if err != nil {
			t.Fatalf("read %s: %v", key, err)
		}
		if diff := cmp.Diff(expected, got); diff != "" {
			t.Fatalf("%s mismatch (-want +got):\n%s", key, diff)
		}
	}
}

func TestReadReturnsDefaultsForUnsetKeys(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t)

	cases := map[string]any{
		"volume": int64(3),
		"muted":  false,
		"size":   int64(12),
		"hosts":  []any{},
		"env":    []any{},
	}
	for key, expected := range cases {
		got, err := manager.Read(ctx, appSchema, key)
		if err != nil {
			t.Fatalf("read %s: %v", key, err)
		}
		if diff := cmp.Diff(expected, got); diff != "" {
			t.Fatalf("%s mismatch (-want +got):\n%s", key, diff)
		}
	}
}

func TestUInt32MaxSurvivesTheBoundary(t *testing.T) {
	ctx := context.Background()
	manager, store := newManager(t)
	store.Put(appSchema, "size", settings.UInt32(4294967295))

	got, err := manager.Read(ctx, appSchema, "size")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != int64(4294967295) {
		t.Fatalf("expected 4294967295, got %v (%T)", got, got)
	}
}

func TestFailedWritesLeaveStoredValueUnchanged(t *testing.T) {
	ctx := context.Background()
	manager, store := newManager(t)
	if err := manager.Write(ctx, appSchema, "volume", 5); err != nil {
		t.Fatalf("seed: %v", err)
	}
	syncs := store.Syncs()

	cases := []struct {
		name  string
		key   string
		value any
		kind  settings.Kind
	}{
		{"string into int32", "volume", "not a number", settings.KindTypeMismatch},
		{"out of range", "volume", 11, settings.KindConstraintViolation},
		{"fractional", "volume", 5.5, settings.KindTypeMismatch},
		{"undefined", "volume", nil, settings.KindInvalidArgument},
		{"heterogeneous array", "hosts", []any{"a", "b", 3}, settings.KindArrayElementTypeMismatch},
		{"not a choice", "theme", "blue", settings.KindConstraintViolation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := manager.Write(ctx, appSchema, tc.key, tc.value)
			if settings.KindOf(err) != tc.kind {
				t.Fatalf("expected %s, got %v", tc.kind, err)
			}
			var settingsErr *settings.Error
			if errors.As(err, &settingsErr) && (settingsErr.SchemaID != appSchema || settingsErr.Key != tc.key) {
				t.Fatalf("expected error to name %s/%s, got %q/%q", appSchema, tc.key, settingsErr.SchemaID, settingsErr.Key)
			}
		})
	}

	if store.Syncs() != syncs || store.Pending() != 0 {
		t.Fatalf("expected no backend activity for rejected candidates")
	}
	got, err := manager.Read(ctx, appSchema, "volume")
	if err != nil || got != int64(5) {
		t.Fatalf("expected volume to stay 5, got %v %v", got, err)
	}
	hosts, err := manager.Read(ctx, appSchema, "hosts")
	if err != nil || len(hosts.([]any)) != 0 {
		t.Fatalf("expected hosts to stay unset, got %v %v", hosts, err)
	}
}

func TestConstraintBoundaries(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t)

	if err := manager.Write(ctx, appSchema, "volume", 11); !errors.Is(err, settings.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
	if err := manager.Write(ctx, appSchema, "volume", 10); err != nil {
		t.Fatalf("expected 10 to be accepted: %v", err)
	}
	got, err := manager.Read(ctx, appSchema, "volume")
	if err != nil || got != int64(10) {
		t.Fatalf("expected 10, got %v %v", got, err)
	}
}

func TestUnknownSchemaAndKey(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t)

	if _, err := manager.Read(ctx, "no.such.schema", "k"); !errors.Is(err, settings.ErrSchemaNotFound) {
		t.Fatalf("expected ErrSchemaNotFound, got %v", err)
	}
	if _, err := manager.Read(ctx, appSchema, "no-such-key"); !errors.Is(err, settings.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if err := manager.Write(ctx, appSchema, "no-such-key", 1); !errors.Is(err, settings.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound on write, got %v", err)
	}
	if _, err := manager.ListKeys(ctx, "no.such.schema"); !errors.Is(err, settings.ErrSchemaNotFound) {
		t.Fatalf("expected ErrSchemaNotFound from ListKeys, got %v", err)
	}
}

func TestMalformedIdentifiers(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t)

	if _, err := manager.Read(ctx, "noDots", "volume"); !errors.Is(err, settings.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for schema id, got %v", err)
	}
	if _, err := manager.Read(ctx, appSchema, "Volume"); !errors.Is(err, settings.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for key, got %v", err)
	}
	exists, err := manager.SchemaExists(ctx, "noDots")
	if err != nil || exists {
		t.Fatalf("expected malformed id to simply not exist, got %v %v", exists, err)
	}

	lenient, _ := newManager(t, settings.WithIdentifierValidation(false))
	if _, err := lenient.Read(ctx, appSchema, "Volume"); !errors.Is(err, settings.ErrKeyNotFound) {
		t.Fatalf("expected lookup without validation to reach the resolver, got %v", err)
	}
}

func TestListKeysMatchesResolvableKeys(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t)

	keys, err := manager.ListKeys(ctx, appSchema)
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	want := []string{"volume", "muted", "size", "scale", "theme", "hosts", "env", "geometry"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}

	schema, err := manager.Resolver().ResolveSchema(ctx, appSchema)
	if err != nil {
		t.Fatalf("resolve schema: %v", err)
	}
	for _, key := range keys {
		if _, err := manager.Resolver().ResolveKey(schema, key); err != nil {
			t.Fatalf("listed key %q does not resolve: %v", key, err)
		}
	}
}

func TestSchemaExistsAndListSchemas(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t)

	exists, err := manager.SchemaExists(ctx, appSchema)
	if err != nil || !exists {
		t.Fatalf("expected %s to exist, got %v %v", appSchema, exists, err)
	}
	exists, err = manager.SchemaExists(ctx, "org.example.other")
	if err != nil || exists {
		t.Fatalf("expected unknown schema to not exist, got %v %v", exists, err)
	}
	ids, err := manager.ListSchemas(ctx)
	if err != nil || !cmp.Equal(ids, []string{appSchema}) {
		t.Fatalf("unexpected schema list %v %v", ids, err)
	}

	offline := settings.New(nil, memory.NewStore())
	if _, err := offline.SchemaExists(ctx, appSchema); !errors.Is(err, settings.ErrSchemaSourceUnavailable) {
		t.Fatalf("expected unavailable source, got %v", err)
	}
}

func TestUnsupportedKeysAreListedButUnusable(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t)

	_, err := manager.Read(ctx, appSchema, "geometry")
	var settingsErr *settings.Error
	if !errors.As(err, &settingsErr) || settingsErr.Kind != settings.KindUnsupportedType || settingsErr.Detail != "(iiii)" {
		t.Fatalf("expected unsupported type naming the signature, got %v", err)
	}
	if err := manager.Write(ctx, appSchema, "geometry", []int{0, 0, 1, 1}); !errors.Is(err, settings.ErrUnsupportedType) {
		t.Fatalf("expected unsupported type on write, got %v", err)
	}
}

func TestBackendRefusals(t *testing.T) {
	ctx := context.Background()
	manager, store := newManager(t)

	store.Lock(appSchema, "theme")
	err := manager.Write(ctx, appSchema, "theme", "dark")
	if !errors.Is(err, settings.ErrWriteRejected) || !errors.Is(err, settings.ErrKeyLocked) {
		t.Fatalf("expected locked write to be rejected, got %v", err)
	}
	store.Unlock(appSchema, "theme")

	diskFull := errors.New("disk full")
	store.FailSync(diskFull)
	err = manager.Write(ctx, appSchema, "theme", "dark")
	if !errors.Is(err, settings.ErrWriteRejected) || !errors.Is(err, diskFull) {
		t.Fatalf("expected sync failure to be rejected, got %v", err)
	}
	store.FailSync(nil)

	got, err := manager.Read(ctx, appSchema, "theme")
	if err != nil || got != "light" {
		t.Fatalf("expected default after refused writes, got %v %v", got, err)
	}
}

type brokenBackend struct {
	err error
}

func (b brokenBackend) Get(context.Context, string, string) (settings.Variant, bool, error) {
	return nil, false, b.err
}
func (b brokenBackend) Set(context.Context, string, string, settings.Variant) error { return b.err }
func (b brokenBackend) Sync(context.Context) error                                  { return b.err }

func TestBackendFailuresAndMismatchedValues(t *testing.T) {
	ctx := context.Background()
	source := settings.NewStaticSource(newAppSchema(t))

	offline := errors.New("connection refused")
	broken := settings.New(source, brokenBackend{err: offline})
	if _, err := broken.Read(ctx, appSchema, "volume"); !errors.Is(err, settings.ErrSchemaSourceUnavailable) || !errors.Is(err, offline) {
		t.Fatalf("expected unavailable backend, got %v", err)
	}
	if err := broken.Write(ctx, appSchema, "volume", 1); !errors.Is(err, settings.ErrWriteRejected) {
		t.Fatalf("expected rejected write, got %v", err)
	}

	noBackend := settings.New(source, nil)
	if err := noBackend.Write(ctx, appSchema, "volume", 1); !errors.Is(err, settings.ErrWriteRejected) {
		t.Fatalf("expected rejected write without backend, got %v", err)
	}

	logs := &bytes.Buffer{}
	store := memory.NewStore()
	store.Put(appSchema, "volume", settings.String("loud"))
	manager := settings.New(source, store, settings.WithLogger(slog.New(slog.NewTextHandler(logs, nil))))
	got, err := manager.Read(ctx, appSchema, "volume")
	if err != nil || got != int64(3) {
		t.Fatalf("expected default for mismatched stored value, got %v %v", got, err)
	}
	if !strings.Contains(logs.String(), "wrong type") {
		t.Fatalf("expected a warning about the stored value, got %q", logs.String())
	}
}

func TestWritesEmitActivity(t *testing.T) {
	ctx := context.Background()
	capture := &activity.CaptureHook{}
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	manager, store := newManager(t,
		settings.WithActivityHooks(activity.Hooks{capture}),
		settings.WithClock(func() time.Time { return fixed }),
	)

	if err := manager.Write(ctx, appSchema, "volume", 8); err != nil {
		t.Fatalf("write: %v", err)
	}
	store.Lock(appSchema, "theme")
	if err := manager.Write(ctx, appSchema, "theme", "dark"); err == nil {
		t.Fatalf("expected locked write to fail")
	}
	if err := manager.Write(ctx, appSchema, "volume", 99); err == nil {
		t.Fatalf("expected constraint violation")
	}

	if len(capture.Events) != 2 {
		t.Fatalf("expected updated and rejected events, got %d", len(capture.Events))
	}
	updated := capture.Events[0]
	if updated.Verb != activity.VerbKeyUpdated || updated.ObjectID != "org.example/volume" || updated.Channel != "settings" {
		t.Fatalf("unexpected updated event %+v", updated)
	}
	if !updated.OccurredAt.Equal(fixed) {
		t.Fatalf("expected clock timestamp, got %v", updated.OccurredAt)
	}
	wantMeta := map[string]any{
		"schema_id": appSchema,
		"key":       "volume",
		"signature": "i",
		"old_value": int64(3),
		"new_value": int64(8),
	}
	if diff := cmp.Diff(wantMeta, updated.Metadata); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
	rejected := capture.Events[1]
	if rejected.Verb != activity.VerbKeyRejected || rejected.ObjectID != "org.example/theme" {
		t.Fatalf("unexpected rejected event %+v", rejected)
	}
	if reason, _ := rejected.Metadata["reason"].(string); !strings.Contains(reason, "not writable") {
		t.Fatalf("expected rejection reason, got %v", rejected.Metadata)
	}
	if diff := cmp.Diff([]string{activity.VerbKeyUpdated, activity.VerbKeyRejected}, capture.Verbs()); diff != "" {
		t.Fatalf("verbs mismatch (-want +got):\n%s", diff)
	}
	if events := capture.ForKey(appSchema, "theme"); len(events) != 1 || events[0].Verb != activity.VerbKeyRejected {
		t.Fatalf("expected one rejected theme event, got %+v", events)
	}
}

func TestActivityFailuresDoNotFailWrites(t *testing.T) {
	ctx := context.Background()
	capture := &activity.CaptureHook{Err: errors.New("sink down")}
	manager, _ := newManager(t,
		settings.WithActivityHooks(activity.Hooks{capture}),
		settings.WithActivityConfig(activity.Config{Enabled: true, Channel: "audit"}),
	)
	if err := manager.Write(ctx, appSchema, "muted", true); err != nil {
		t.Fatalf("expected write to succeed despite hook failure: %v", err)
	}
	if len(capture.Events) != 1 || capture.Events[0].Channel != "audit" {
		t.Fatalf("expected one event on the audit channel, got %+v", capture.Events)
	}

	disabled, _ := newManager(t,
		settings.WithActivityHooks(activity.Hooks{capture}),
		settings.WithActivityConfig(activity.Config{Enabled: false}),
	)
	if err := disabled.Write(ctx, appSchema, "muted", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(capture.Events) != 1 {
		t.Fatalf("expected disabled emitter to stay quiet")
	}
}

func TestOperationLoggerSeesEveryBoundaryCall(t *testing.T) {
	ctx := context.Background()
	var events []settings.OperationLogEvent
	manager, _ := newManager(t, settings.WithOperationLogger(settings.OperationLoggerFunc(func(event settings.OperationLogEvent) {
		events = append(events, event)
	})))

	_, _ = manager.SchemaExists(ctx, appSchema)
	_, _ = manager.ListSchemas(ctx)
	_, _ = manager.ListKeys(ctx, appSchema)
	_, _ = manager.Read(ctx, appSchema, "volume")
	_ = manager.Write(ctx, appSchema, "volume", 42)

	ops := make([]string, len(events))
	for i, event := range events {
		ops[i] = event.Op
	}
	want := []string{settings.OpSchemaExists, settings.OpListSchemas, settings.OpListKeys, settings.OpRead, settings.OpWrite}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Fatalf("ops mismatch (-want +got):\n%s", diff)
	}
	last := events[len(events)-1]
	if last.Key != "volume" || !errors.Is(last.Err, settings.ErrConstraintViolation) {
		t.Fatalf("expected failed write to be logged with its error, got %+v", last)
	}
}

func TestWriteNilIsInvalidArgument(t *testing.T) {
	ctx := context.Background()
	manager, store := newManager(t)
	if err := manager.Write(ctx, appSchema, "muted", true); err != nil {
		t.Fatalf("seed: %v", err)
	}
	syncs := store.Syncs()

	err := manager.Write(ctx, appSchema, "muted", nil)
	if !errors.Is(err, settings.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for nil, got %v", err)
	}
	if errors.Is(err, settings.ErrTypeMismatch) {
		t.Fatalf("expected nil not to be reported as a type mismatch, got %v", err)
	}
	if store.Syncs() != syncs {
		t.Fatalf("expected nil write to stop before the backend")
	}
	got, err := manager.Read(ctx, appSchema, "muted")
	if err != nil || got != true {
		t.Fatalf("expected muted to stay true, got %v %v", got, err)
	}
}

func TestOperationLoggerFlagsStoredTypeMismatch(t *testing.T) {
	ctx := context.Background()
	var events []settings.OperationLogEvent
	manager, store := newManager(t, settings.WithOperationLogger(settings.OperationLoggerFunc(func(event settings.OperationLogEvent) {
		events = append(events, event)
	})))
	store.Put(appSchema, "volume", settings.String("loud"))
	store.Put(appSchema, "size", settings.UInt32(20))

	got, err := manager.Read(ctx, appSchema, "volume")
	if err != nil || got != int64(3) {
		t.Fatalf("expected default for mismatched stored value, got %v %v", got, err)
	}
	session, err := manager.Open(ctx, appSchema)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := session.Get(ctx, "volume"); err != nil {
		t.Fatalf("session get: %v", err)
	}
	if _, err := manager.Read(ctx, appSchema, "size"); err != nil {
		t.Fatalf("read size: %v", err)
	}

	var flagged []string
	for _, event := range events {
		if event.Op != settings.OpRead {
			continue
		}
		if event.StoredTypeMismatch {
			flagged = append(flagged, event.Key)
		}
	}
	if diff := cmp.Diff([]string{"volume", "volume"}, flagged); diff != "" {
		t.Fatalf("flagged reads mismatch (-want +got):\n%s", diff)
	}
	if last := events[len(events)-1]; last.Key != "size" || last.StoredTypeMismatch || last.Err != nil {
		t.Fatalf("expected clean read of size, got %+v", last)
	}
}

func TestWriteSyncsOnlyItsOwnKey(t *testing.T) {
	ctx := context.Background()
	manager, store := newManager(t)

	// Another writer has staged theme and not yet synced it.
	if err := store.Set(ctx, appSchema, "theme", settings.String("dark")); err != nil {
		t.Fatalf("stage theme: %v", err)
	}

	diskFull := errors.New("disk full")
	store.FailSync(diskFull)
	if err := manager.Write(ctx, appSchema, "volume", 6); !errors.Is(err, diskFull) {
		t.Fatalf("expected failed sync, got %v", err)
	}
	store.FailSync(nil)

	if store.Pending() != 1 {
		t.Fatalf("expected the other writer's value to stay staged, got %d pending", store.Pending())
	}
	if err := store.SyncKey(ctx, appSchema, "theme"); err != nil {
		t.Fatalf("expected the other writer's sync to succeed, got %v", err)
	}
	theme, err := manager.Read(ctx, appSchema, "theme")
	if err != nil || theme != "dark" {
		t.Fatalf("expected theme to be persisted, got %v %v", theme, err)
	}
	volume, err := manager.Read(ctx, appSchema, "volume")
	if err != nil || volume != int64(3) {
		t.Fatalf("expected volume to keep its default, got %v %v", volume, err)
	}

	if err := manager.Write(ctx, appSchema, "muted", true); err != nil {
		t.Fatalf("write: %v", err)
	}
	if store.Pending() != 0 {
		t.Fatalf("expected nothing left staged")
	}
}
