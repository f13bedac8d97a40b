package settings

import (
	"context"
	"slices"
	"sync"
)

// SchemaSource is the catalog of installed schemas. Lookup reports ok=false
// for unknown ids; an error means the catalog itself could not be read.
type SchemaSource interface {
	Lookup(ctx context.Context, id string) (*Schema, bool, error)
	List(ctx context.Context) ([]string, error)
}

// Resolver turns schema ids and key names into descriptors. It holds no
// cache; every call consults the source.
type Resolver struct {
	source SchemaSource
}

// NewResolver returns a resolver over source.
func NewResolver(source SchemaSource) *Resolver {
	return &Resolver{source: source}
}

// ResolveSchema fails with KindSchemaSourceUnavailable when the source is
// missing or errors, and with KindSchemaNotFound for unknown ids.
func (r *Resolver) ResolveSchema(ctx context.Context, id string) (*Schema, error) {
	if r == nil || r.source == nil {
		return nil, &Error{Kind: KindSchemaSourceUnavailable, SchemaID: id, Detail: "no schema source configured"}
	}
	schema, ok, err := r.source.Lookup(ctx, id)
	if err != nil {
		return nil, &Error{Kind: KindSchemaSourceUnavailable, SchemaID: id, Err: err}
	}
	if !ok || schema == nil {
		return nil, &Error{Kind: KindSchemaNotFound, SchemaID: id}
	}
	return schema, nil
}

// ResolveKey fails with KindKeyNotFound when schema does not declare name.
func (r *Resolver) ResolveKey(schema *Schema, name string) (KeyDescriptor, error) {
	if schema == nil {
		return KeyDescriptor{}, &Error{Kind: KindSchemaNotFound, Key: name}
	}
	desc, ok := schema.key(name)
	if !ok {
		return KeyDescriptor{}, &Error{Kind: KindKeyNotFound, SchemaID: schema.id, Key: name}
	}
	return desc, nil
}

// SchemaExists only fails with KindSchemaSourceUnavailable.
func (r *Resolver) SchemaExists(ctx context.Context, id string) (bool, error) {
	_, err := r.ResolveSchema(ctx, id)
	if err == nil {
		return true, nil
	}
	if KindOf(err) == KindSchemaNotFound {
		return false, nil
	}
	return false, err
}

// ListSchemas returns the ids known to the source.
func (r *Resolver) ListSchemas(ctx context.Context) ([]string, error) {
	if r == nil || r.source == nil {
		return nil, &Error{Kind: KindSchemaSourceUnavailable, Detail: "no schema source configured"}
	}
	ids, err := r.source.List(ctx)
	if err != nil {
		return nil, &Error{Kind: KindSchemaSourceUnavailable, Err: err}
	}
	return ids, nil
}

// StaticSource is an in-memory SchemaSource.
type StaticSource struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewStaticSource registers schemas; a later schema replaces an earlier one
// with the same id.
func NewStaticSource(schemas ...*Schema) *StaticSource {
	s := &StaticSource{schemas: make(map[string]*Schema, len(schemas))}
	for _, schema := range schemas {
		s.Add(schema)
	}
	return s
}

// Add registers or replaces schema.
func (s *StaticSource) Add(schema *Schema) {
	if schema == nil {
		return
	}
	s.mu.Lock()
	s.schemas[schema.id] = schema
	s.mu.Unlock()
}

func (s *StaticSource) Lookup(_ context.Context, id string) (*Schema, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schema, ok := s.schemas[id]
	return schema, ok, nil
}

// List returns schema ids sorted alphabetically.
func (s *StaticSource) List(context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.schemas))
	for id := range s.schemas {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids, nil
}
