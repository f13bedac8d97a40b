package settings

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Variant is the tagged wire representation stored per key. The set of
// implementations is closed: Boolean, Int32, UInt32, Double, String,
// StringArray and StringPairArray.
type Variant interface {
	Type() Type
	isVariant()
}

// Boolean is the wire form of a "b" value.
type Boolean bool

// Int32 is the wire form of an "i" value.
type Int32 int32

// UInt32 is the wire form of a "u" value.
type UInt32 uint32

// Double is the wire form of a "d" value.
type Double float64

// String is the wire form of an "s" value.
type String string

// StringArray is the wire form of an "as" value.
type StringArray []string

// StringPair is one element of a StringPairArray.
type StringPair struct {
	First  string
	Second string
}

// StringPairArray is the wire form of an "a(ss)" value.
type StringPairArray []StringPair

func (Boolean) Type() Type         { return TypeBoolean }
func (Int32) Type() Type           { return TypeInt32 }
func (UInt32) Type() Type          { return TypeUInt32 }
func (Double) Type() Type          { return TypeDouble }
func (String) Type() Type          { return TypeString }
func (StringArray) Type() Type     { return TypeStringArray }
func (StringPairArray) Type() Type { return TypeStringPairArray }

func (Boolean) isVariant()         {}
func (Int32) isVariant()           {}
func (UInt32) isVariant()          {}
func (Double) isVariant()          {}
func (String) isVariant()          {}
func (StringArray) isVariant()     {}
func (StringPairArray) isVariant() {}

// NewStringArray copies values into a StringArray so later mutation of the
// input slice cannot leak into the variant.
func NewStringArray(values ...string) StringArray {
	return StringArray(slices.Clone(values))
}

// NewStringPairArray copies pairs into a StringPairArray.
func NewStringPairArray(pairs ...StringPair) StringPairArray {
	return StringPairArray(slices.Clone(pairs))
}

// VariantVisitor has one method per supported variant. Adding a wire type
// adds a method here, which breaks every implementation until it handles the
// new case.
type VariantVisitor[R any] interface {
	VisitBoolean(Boolean) (R, error)
	VisitInt32(Int32) (R, error)
	VisitUInt32(UInt32) (R, error)
	VisitDouble(Double) (R, error)
	VisitString(String) (R, error)
	VisitStringArray(StringArray) (R, error)
	VisitStringPairArray(StringPairArray) (R, error)
}

// Visit dispatches v to the matching visitor method. A nil variant fails with
// KindUnsupportedType.
func Visit[R any](v Variant, visitor VariantVisitor[R]) (R, error) {
	switch typed := v.(type) {
	case Boolean:
		return visitor.VisitBoolean(typed)
	case Int32:
		return visitor.VisitInt32(typed)
	case UInt32:
		return visitor.VisitUInt32(typed)
	case Double:
		return visitor.VisitDouble(typed)
	case String:
		return visitor.VisitString(typed)
	case StringArray:
		return visitor.VisitStringArray(typed)
	case StringPairArray:
		return visitor.VisitStringPairArray(typed)
	default:
		var zero R
		return zero, unsupportedType(variantTagName(v))
	}
}

// TypeCases has one method per supported type and is the dispatch target of
// MatchType.
type TypeCases[R any] interface {
	OnBoolean() (R, error)
	OnInt32() (R, error)
	OnUInt32() (R, error)
	OnDouble() (R, error)
	OnString() (R, error)
	OnStringArray() (R, error)
	OnStringPairArray() (R, error)
}

// MatchType dispatches on a declared type. TypeUnknown and out-of-range
// values fail with KindUnsupportedType.
func MatchType[R any](t Type, cases TypeCases[R]) (R, error) {
	switch t {
	case TypeBoolean:
		return cases.OnBoolean()
	case TypeInt32:
		return cases.OnInt32()
	case TypeUInt32:
		return cases.OnUInt32()
	case TypeDouble:
		return cases.OnDouble()
	case TypeString:
		return cases.OnString()
	case TypeStringArray:
		return cases.OnStringArray()
	case TypeStringPairArray:
		return cases.OnStringPairArray()
	default:
		var zero R
		return zero, unsupportedType(t.String())
	}
}

// Equal reports whether a and b carry the same tag and payload.
func Equal(a, b Variant) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Type() != b.Type() {
		return false
	}
	switch left := a.(type) {
	case StringArray:
		return slices.Equal(left, b.(StringArray))
	case StringPairArray:
		return slices.Equal(left, b.(StringPairArray))
	default:
		return a == b
	}
}

// Format renders v in GVariant text notation, e.g. `uint32 12` or
// `[('a', 'b')]`. It is meant for logs and error messages.
func Format(v Variant) string {
	out, err := Visit[string](v, formatter{})
	if err != nil {
		return "<" + variantTagName(v) + ">"
	}
	return out
}

type formatter struct{}

func (formatter) VisitBoolean(v Boolean) (string, error) {
	return strconv.FormatBool(bool(v)), nil
}

func (formatter) VisitInt32(v Int32) (string, error) {
	return strconv.FormatInt(int64(v), 10), nil
}

func (formatter) VisitUInt32(v UInt32) (string, error) {
	return "uint32 " + strconv.FormatUint(uint64(v), 10), nil
}

func (formatter) VisitDouble(v Double) (string, error) {
	out := strconv.FormatFloat(float64(v), 'g', -1, 64)
	if !strings.ContainsAny(out, ".eEnN") {
		out += ".0"
	}
	return out, nil
}

func (formatter) VisitString(v String) (string, error) {
	return quoteGVariant(string(v)), nil
}

func (formatter) VisitStringArray(v StringArray) (string, error) {
	parts := make([]string, len(v))
	for i, item := range v {
		parts[i] = quoteGVariant(item)
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}

func (formatter) VisitStringPairArray(v StringPairArray) (string, error) {
	parts := make([]string, len(v))
	for i, pair := range v {
		parts[i] = "(" + quoteGVariant(pair.First) + ", " + quoteGVariant(pair.Second) + ")"
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}

func quoteGVariant(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + replacer.Replace(value) + "'"
}

func variantTagName(v Variant) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", v)
}
