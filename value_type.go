package settings

import "strings"

// Type identifies one member of the closed set of wire types a key can
// declare. The zero value is TypeUnknown.
type Type uint8

const (
	// TypeUnknown marks a key whose declared signature is outside the
	// supported set. Reads and writes on such keys fail with
	// KindUnsupportedType.
	TypeUnknown Type = iota
	TypeBoolean
	TypeInt32
	TypeUInt32
	TypeDouble
	TypeString
	TypeStringArray
	TypeStringPairArray
)

// Types lists every supported type in declaration order.
func Types() []Type {
	return []Type{
		TypeBoolean,
		TypeInt32,
		TypeUInt32,
		TypeDouble,
		TypeString,
		TypeStringArray,
		TypeStringPairArray,
	}
}

func (t Type) String() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeInt32:
		return "int32"
	case TypeUInt32:
		return "uint32"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeStringArray:
		return "string array"
	case TypeStringPairArray:
		return "string pair array"
	default:
		return "unknown"
	}
}

// Signature returns the GVariant type signature for t.
func (t Type) Signature() string {
	switch t {
	case TypeBoolean:
		return "b"
	case TypeInt32:
		return "i"
	case TypeUInt32:
		return "u"
	case TypeDouble:
		return "d"
	case TypeString:
		return "s"
	case TypeStringArray:
		return "as"
	case TypeStringPairArray:
		return "a(ss)"
	default:
		return ""
	}
}

// Valid reports whether t is one of the supported types.
func (t Type) Valid() bool {
	return t >= TypeBoolean && t <= TypeStringPairArray
}

// ParseType maps a GVariant signature or a type name onto a Type. Unknown
// inputs return TypeUnknown and false.
func ParseType(value string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "b", "bool", "boolean":
		return TypeBoolean, true
	case "i", "int", "int32":
		return TypeInt32, true
	case "u", "uint", "uint32":
		return TypeUInt32, true
	case "d", "double", "float", "number":
		return TypeDouble, true
	case "s", "string":
		return TypeString, true
	case "as", "strings", "string_array":
		return TypeStringArray, true
	case "a(ss)", "string_pairs", "string_pair_array":
		return TypeStringPairArray, true
	default:
		return TypeUnknown, false
	}
}
