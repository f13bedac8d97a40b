package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-settings/pkg/activity"
)

// Session binds one resolved schema to the manager's backend. Sessions are
// cheap and hold no cached values; reads always go to the backend.
type Session struct {
	manager *Manager
	schema  *Schema
}

// SchemaID returns the id of the bound schema.
func (s *Session) SchemaID() string { return s.schema.id }

// Keys returns key names in declaration order.
func (s *Session) Keys() []string { return s.schema.Keys() }

// Describe lists descriptors for every key of the bound schema.
func (s *Session) Describe() []FieldDescriptor { return Describe(s.schema) }

// Get returns the dynamic value of key, or its default when unset.
func (s *Session) Get(ctx context.Context, key string) (value any, err error) {
	op := s.manager.track(OpRead, s.schema.id, key)
	defer op.done(&err)
	return s.get(ctx, key, op)
}

// Set validates, stores and syncs value for key. A nil value fails with
// KindInvalidArgument.
func (s *Session) Set(ctx context.Context, key string, value any) (err error) {
	defer s.manager.track(OpWrite, s.schema.id, key).done(&err)
	return s.set(ctx, key, value)
}

// GetAll reads every supported key. Keys with an unsupported declared type
// are left out.
func (s *Session) GetAll(ctx context.Context) (map[string]any, error) {
	out := make(map[string]any, len(s.schema.keys))
	for _, desc := range s.schema.keys {
		if !desc.Supported() {
			s.manager.cfg.logger.DebugContext(ctx, "settings skipping unsupported key",
				"schema", s.schema.id, "key", desc.name, "signature", desc.signature)
			continue
		}
		value, err := s.readDescriptor(ctx, desc, nil)
		if err != nil {
			return nil, err
		}
		out[desc.name] = value
	}
	return out, nil
}

// Serialize renders GetAll as a JSON object.
func (s *Session) Serialize(ctx context.Context) ([]byte, error) {
	values, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("settings: serialize schema %q: %w", s.schema.id, err)
	}
	return data, nil
}

func (s *Session) resolve(key string) (KeyDescriptor, error) {
	if s.manager.cfg.validateIDs && !ValidKeyName(key) {
		return KeyDescriptor{}, invalidKeyName(s.schema.id, key)
	}
	desc, err := s.manager.resolver.ResolveKey(s.schema, key)
	if err != nil {
		return KeyDescriptor{}, err
	}
	if !desc.Supported() {
		return KeyDescriptor{}, &Error{
			Kind:     KindUnsupportedType,
			SchemaID: s.schema.id,
			Key:      key,
			Detail:   desc.signature,
		}
	}
	return desc, nil
}

func (s *Session) get(ctx context.Context, key string, op *operation) (any, error) {
	desc, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return s.readDescriptor(ctx, desc, op)
}

func (s *Session) readDescriptor(ctx context.Context, desc KeyDescriptor, op *operation) (any, error) {
	stored, mismatched, err := s.stored(ctx, desc)
	if err != nil {
		return nil, err
	}
	if mismatched {
		op.storedTypeMismatch()
	}
	value, err := Decode(stored)
	return value, withTarget(err, desc.schemaID, desc.name)
}

// stored returns the backend value of desc, falling back to the default for
// unset keys and for values whose tag disagrees with the declared type.
// mismatched reports the second kind of fallback.
func (s *Session) stored(ctx context.Context, desc KeyDescriptor) (_ Variant, mismatched bool, _ error) {
	backend := s.manager.backend
	if backend == nil {
		return nil, false, &Error{
			Kind:     KindSchemaSourceUnavailable,
			SchemaID: desc.schemaID,
			Key:      desc.name,
			Detail:   "no backend configured",
		}
	}
	value, ok, err := backend.Get(ctx, desc.schemaID, desc.name)
	if err != nil {
		return nil, false, &Error{
			Kind:     KindSchemaSourceUnavailable,
			SchemaID: desc.schemaID,
			Key:      desc.name,
			Detail:   "backend read failed",
			Err:      err,
		}
	}
	if !ok {
		return desc.def, false, nil
	}
	if value == nil || value.Type() != desc.typ {
		s.manager.cfg.logger.WarnContext(ctx, "settings backend value has wrong type, using default",
			"schema", desc.schemaID, "key", desc.name,
			"declared", desc.typ.String(), "stored", variantTagName(value))
		return desc.def, true, nil
	}
	return value, false, nil
}

func (s *Session) set(ctx context.Context, key string, value any) error {
	desc, err := s.resolve(key)
	if err != nil {
		return err
	}
	variant, err := Encode(desc.typ, desc.constraint, value)
	if err != nil {
		return withTarget(err, desc.schemaID, desc.name)
	}

	backend := s.manager.backend
	if backend == nil {
		return s.rejected(ctx, desc, "no backend configured", nil)
	}
	if checker, ok := backend.(WritableChecker); ok {
		writable, err := checker.Writable(ctx, desc.schemaID, desc.name)
		if err != nil {
			return s.rejected(ctx, desc, "writable check failed", err)
		}
		if !writable {
			return s.rejected(ctx, desc, "key is not writable", ErrKeyLocked)
		}
	}

	var previous any
	if s.manager.emitter.Enabled() {
		if old, _, err := s.stored(ctx, desc); err == nil {
			previous, _ = Decode(old)
		}
	}

	if err := backend.Set(ctx, desc.schemaID, desc.name, variant); err != nil {
		return s.rejected(ctx, desc, "backend refused the value", err)
	}
	if err := syncKey(ctx, backend, desc.schemaID, desc.name); err != nil {
		return s.rejected(ctx, desc, "backend sync failed", err)
	}

	if s.manager.emitter.Enabled() {
		current, _ := Decode(variant)
		s.manager.emit(ctx, activity.BuildKeyUpdatedEvent(activity.KeyEventInput{
			SchemaID:  desc.schemaID,
			Key:       desc.name,
			Signature: desc.signature,
			OldValue:  previous,
			NewValue:  current,
		}))
	}
	return nil
}

func (s *Session) rejected(ctx context.Context, desc KeyDescriptor, detail string, cause error) error {
	err := &Error{
		Kind:     KindWriteRejected,
		SchemaID: desc.schemaID,
		Key:      desc.name,
		Detail:   detail,
		Err:      cause,
	}
	s.manager.emit(ctx, activity.BuildKeyRejectedEvent(activity.KeyEventInput{
		SchemaID:  desc.schemaID,
		Key:       desc.name,
		Signature: desc.signature,
		Reason:    err.Error(),
	}))
	return err
}
