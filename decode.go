package settings

// Decode converts a stored variant into a dynamic value:
//
//	Boolean         -> bool
//	Int32           -> int64
//	UInt32          -> int64 (wide enough for the full unsigned range)
//	Double          -> float64
//	String          -> string
//	StringArray     -> []any of string
//	StringPairArray -> []any of []any{first, second}
//
// A nil variant fails with KindUnsupportedType.
func Decode(v Variant) (any, error) {
	return Visit[any](v, decoder{})
}

type decoder struct{}

func (decoder) VisitBoolean(v Boolean) (any, error) {
	return bool(v), nil
}

func (decoder) VisitInt32(v Int32) (any, error) {
	return int64(v), nil
}

func (decoder) VisitUInt32(v UInt32) (any, error) {
	return int64(v), nil
}

func (decoder) VisitDouble(v Double) (any, error) {
	return float64(v), nil
}

func (decoder) VisitString(v String) (any, error) {
	return string(v), nil
}

func (decoder) VisitStringArray(v StringArray) (any, error) {
	out := make([]any, len(v))
	for i, item := range v {
		out[i] = item
	}
	return out, nil
}

func (decoder) VisitStringPairArray(v StringPairArray) (any, error) {
	out := make([]any, len(v))
	for i, pair := range v {
		out[i] = []any{pair.First, pair.Second}
	}
	return out, nil
}
