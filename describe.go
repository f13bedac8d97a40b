package settings

// FieldDescriptor describes one key for introspection.
type FieldDescriptor struct {
	Key         string
	Type        string
	Signature   string
	Default     string
	Constraint  string
	Summary     string
	Description string
}

// Describe lists a descriptor per key in declaration order. Defaults are
// rendered in GVariant text form; unsupported keys have an empty default.
func Describe(schema *Schema) []FieldDescriptor {
	if schema == nil {
		return []FieldDescriptor{}
	}
	fields := make([]FieldDescriptor, 0, len(schema.keys))
	for _, key := range schema.keys {
		field := FieldDescriptor{
			Key:         key.name,
			Type:        key.typ.String(),
			Signature:   key.signature,
			Summary:     key.summary,
			Description: key.description,
		}
		if key.def != nil {
			field.Default = Format(key.def)
		}
		if key.constraint != nil {
			field.Constraint = key.constraint.String()
		}
		fields = append(fields, field)
	}
	return fields
}
