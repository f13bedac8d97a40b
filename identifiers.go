package settings

import "regexp"

var (
	schemaIDPattern = regexp.MustCompile(`^([A-Za-z0-9_-]+\.)+[A-Za-z0-9_-]+$`)
	keyNamePattern  = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// ValidSchemaID reports whether id is a dotted identifier such as
// "org.example.desktop".
func ValidSchemaID(id string) bool {
	return schemaIDPattern.MatchString(id)
}

// ValidKeyName reports whether name uses lowercase letters, digits and
// dashes only.
func ValidKeyName(name string) bool {
	return keyNamePattern.MatchString(name)
}

func invalidSchemaID(id string) *Error {
	return &Error{Kind: KindInvalidArgument, SchemaID: id, Detail: "malformed schema id"}
}

func invalidKeyName(schemaID, key string) *Error {
	return &Error{Kind: KindInvalidArgument, SchemaID: schemaID, Key: key, Detail: "malformed key name"}
}
