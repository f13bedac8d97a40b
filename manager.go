package settings

import (
	"context"
	"time"

	"github.com/goliatone/go-settings/pkg/activity"
)

// Manager is the bridge boundary. Each call opens a fresh Session, so no
// state is carried between calls; ordering guarantees come from the backend
// and the sync performed by every write.
type Manager struct {
	resolver *Resolver
	backend  Backend
	cfg      managerConfig
	emitter  *activity.Emitter
}

// New builds a Manager over an explicit schema source and backend.
func New(source SchemaSource, backend Backend, opts ...Option) *Manager {
	cfg := applyOptions(opts)
	activityConfig := cfg.activityConfig
	if activityConfig.Clock == nil {
		activityConfig.Clock = cfg.now
	}
	return &Manager{
		resolver: NewResolver(source),
		backend:  backend,
		cfg:      cfg,
		emitter:  activity.NewEmitter(cfg.activityHooks, activityConfig),
	}
}

// Resolver exposes the schema resolver the manager uses.
func (m *Manager) Resolver() *Resolver {
	return m.resolver
}

// SchemaExists reports whether id names an installed schema. Malformed ids
// simply do not exist; only an unreachable catalog is an error.
func (m *Manager) SchemaExists(ctx context.Context, id string) (exists bool, err error) {
	defer m.track(OpSchemaExists, id, "").done(&err)
	if m.cfg.validateIDs && !ValidSchemaID(id) {
		return false, nil
	}
	return m.resolver.SchemaExists(ctx, id)
}

// ListSchemas returns the ids of every installed schema.
func (m *Manager) ListSchemas(ctx context.Context) (ids []string, err error) {
	defer m.track(OpListSchemas, "", "").done(&err)
	return m.resolver.ListSchemas(ctx)
}

// ListKeys returns the key names of a schema in declaration order.
func (m *Manager) ListKeys(ctx context.Context, schemaID string) (keys []string, err error) {
	defer m.track(OpListKeys, schemaID, "").done(&err)
	session, err := m.open(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	return session.Keys(), nil
}

// Read returns the dynamic value of a key, or its default when unset.
func (m *Manager) Read(ctx context.Context, schemaID, key string) (value any, err error) {
	op := m.track(OpRead, schemaID, key)
	defer op.done(&err)
	session, err := m.open(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	return session.get(ctx, key, op)
}

// Write validates value against the key's declared type and constraint,
// stores it and syncs the backend. It returns nil only after the sync
// succeeded; on any error the stored value is unchanged.
//
// A nil value is never a valid setting. It fails with KindInvalidArgument
// (ErrInvalidArgument) rather than KindTypeMismatch, since there is no value
// whose type could be compared with the declared one.
func (m *Manager) Write(ctx context.Context, schemaID, key string, value any) (err error) {
	defer m.track(OpWrite, schemaID, key).done(&err)
	session, err := m.open(ctx, schemaID)
	if err != nil {
		return err
	}
	return session.set(ctx, key, value)
}

// Open resolves schemaID and returns a session bound to it.
func (m *Manager) Open(ctx context.Context, schemaID string) (session *Session, err error) {
	defer m.track(OpOpen, schemaID, "").done(&err)
	return m.open(ctx, schemaID)
}

func (m *Manager) open(ctx context.Context, schemaID string) (*Session, error) {
	if m.cfg.validateIDs && !ValidSchemaID(schemaID) {
		return nil, invalidSchemaID(schemaID)
	}
	schema, err := m.resolver.ResolveSchema(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	return &Session{manager: m, schema: schema}, nil
}

// operation reports one boundary call to the operation logger.
type operation struct {
	manager *Manager
	event   OperationLogEvent
	start   time.Time
}

// track starts an operation; done reports it once the named error result is
// final.
func (m *Manager) track(op, schemaID, key string) *operation {
	return &operation{
		manager: m,
		event:   OperationLogEvent{Op: op, SchemaID: schemaID, Key: key},
		start:   m.cfg.now(),
	}
}

func (o *operation) storedTypeMismatch() {
	if o != nil {
		o.event.StoredTypeMismatch = true
	}
}

func (o *operation) done(errp *error) {
	o.event.Duration = o.manager.cfg.now().Sub(o.start)
	o.event.Err = *errp
	o.manager.cfg.opLogger.LogOperation(o.event)
}

func (m *Manager) emit(ctx context.Context, event activity.Event) {
	if !m.emitter.Enabled() {
		return
	}
	if err := m.emitter.Emit(ctx, event); err != nil {
		m.cfg.logger.WarnContext(ctx, "settings activity emission failed",
			"verb", event.Verb, "object", event.ObjectID, "error", err)
	}
}
