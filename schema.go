package settings

import (
	"fmt"
	"slices"
)

// KeySpec declares one key of a schema. Sources build schemas from key specs
// through NewSchema, which validates them and freezes the result into
// KeyDescriptor values.
//
// Type may be left as TypeUnknown when Signature is set; the signature is then
// parsed. A signature outside the supported set keeps the key as an
// unsupported key: it is listed but every read or write of it fails with
// KindUnsupportedType.
type KeySpec struct {
	Name        string
	Type        Type
	Signature   string
	Default     Variant
	Constraint  Constraint
	Summary     string
	Description string
}

// KeyDescriptor is the resolved, read-only description of one key.
type KeyDescriptor struct {
	schemaID    string
	name        string
	typ         Type
	signature   string
	def         Variant
	constraint  Constraint
	summary     string
	description string
}

func (k KeyDescriptor) SchemaID() string       { return k.schemaID }
func (k KeyDescriptor) Name() string           { return k.name }
func (k KeyDescriptor) Type() Type             { return k.typ }
func (k KeyDescriptor) Signature() string      { return k.signature }
func (k KeyDescriptor) Constraint() Constraint { return k.constraint }
func (k KeyDescriptor) Summary() string        { return k.summary }
func (k KeyDescriptor) Description() string    { return k.description }

// Default returns the key's default value; nil for unsupported keys.
func (k KeyDescriptor) Default() Variant { return k.def }

// Supported reports whether the declared type is one of the seven tags.
func (k KeyDescriptor) Supported() bool { return k.typ.Valid() }

// Schema is an immutable set of key descriptors identified by id.
type Schema struct {
	id    string
	keys  []KeyDescriptor
	index map[string]int
}

// NewSchema validates specs and builds a schema. Key names must be unique.
// Supported keys without a default get the zero value of their type; an
// explicit default must carry the declared tag and satisfy the constraint.
func NewSchema(id string, specs ...KeySpec) (*Schema, error) {
	if id == "" {
		return nil, fmt.Errorf("settings: schema id must not be empty")
	}
	schema := &Schema{
		id:    id,
		keys:  make([]KeyDescriptor, 0, len(specs)),
		index: make(map[string]int, len(specs)),
	}
	for _, spec := range specs {
		desc, err := newKeyDescriptor(id, spec)
		if err != nil {
			return nil, err
		}
		if _, dup := schema.index[desc.name]; dup {
			return nil, fmt.Errorf("settings: schema %q declares key %q twice", id, desc.name)
		}
		schema.index[desc.name] = len(schema.keys)
		schema.keys = append(schema.keys, desc)
	}
	return schema, nil
}

func newKeyDescriptor(schemaID string, spec KeySpec) (KeyDescriptor, error) {
	if spec.Name == "" {
		return KeyDescriptor{}, fmt.Errorf("settings: schema %q declares a key without a name", schemaID)
	}
	typ := spec.Type
	signature := spec.Signature
	switch parsed, ok := ParseType(signature); {
	case signature == "" && !typ.Valid():
		return KeyDescriptor{}, fmt.Errorf("settings: key %q in schema %q has no type", spec.Name, schemaID)
	case signature == "":
		signature = typ.Signature()
	case ok && typ.Valid() && parsed != typ, !ok && typ.Valid():
		return KeyDescriptor{}, fmt.Errorf("settings: key %q in schema %q: signature %q does not match declared %s",
			spec.Name, schemaID, signature, typ)
	case ok:
		typ = parsed
		signature = parsed.Signature()
	}

	desc := KeyDescriptor{
		schemaID:    schemaID,
		name:        spec.Name,
		typ:         typ,
		signature:   signature,
		constraint:  spec.Constraint,
		summary:     spec.Summary,
		description: spec.Description,
	}
	if !typ.Valid() {
		return desc, nil
	}

	def := spec.Default
	if def == nil {
		def = zeroVariant(typ)
	}
	if def.Type() != typ {
		return KeyDescriptor{}, fmt.Errorf("settings: key %q in schema %q: default is %s, declared %s",
			spec.Name, schemaID, def.Type(), typ)
	}
	if spec.Constraint != nil {
		if err := spec.Constraint.Check(def); err != nil {
			return KeyDescriptor{}, fmt.Errorf("settings: key %q in schema %q: default %s: %w",
				spec.Name, schemaID, Format(def), err)
		}
	}
	desc.def = def
	return desc, nil
}

// zeroVariant is only called with a valid type.
func zeroVariant(t Type) Variant {
	v, _ := MatchType[Variant](t, zeroCases{})
	return v
}

type zeroCases struct{}

func (zeroCases) OnBoolean() (Variant, error)         { return Boolean(false), nil }
func (zeroCases) OnInt32() (Variant, error)           { return Int32(0), nil }
func (zeroCases) OnUInt32() (Variant, error)          { return UInt32(0), nil }
func (zeroCases) OnDouble() (Variant, error)          { return Double(0), nil }
func (zeroCases) OnString() (Variant, error)          { return String(""), nil }
func (zeroCases) OnStringArray() (Variant, error)     { return StringArray{}, nil }
func (zeroCases) OnStringPairArray() (Variant, error) { return StringPairArray{}, nil }

// ID returns the schema id.
func (s *Schema) ID() string { return s.id }

// Keys returns key names in declaration order.
func (s *Schema) Keys() []string {
	names := make([]string, len(s.keys))
	for i, key := range s.keys {
		names[i] = key.name
	}
	return names
}

// Descriptors returns every key descriptor in declaration order.
func (s *Schema) Descriptors() []KeyDescriptor {
	return slices.Clone(s.keys)
}

func (s *Schema) key(name string) (KeyDescriptor, bool) {
	i, ok := s.index[name]
	if !ok {
		return KeyDescriptor{}, false
	}
	return s.keys[i], true
}
