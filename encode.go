package settings

import (
	"math"
	"unicode/utf8"
)

// Encode converts candidate into a variant of the declared type and checks it
// against constraint when one is given. It has no side effects: persisting the
// result is the caller's job, and a rejected candidate never yields a
// variant.
//
// Int32 and UInt32 accept only numbers exactly representable in the target
// width; fractional and out-of-range numbers fail with KindTypeMismatch
// rather than being truncated. Double accepts any number, NaN and the
// infinities included; a range constraint refuses NaN, and backends that
// cannot store a non-finite double refuse it when the write is synced.
// Sequences are checked element by element and fail on the first bad
// element.
//
// A nil candidate fails with KindInvalidArgument, not KindTypeMismatch.
func Encode(declared Type, constraint Constraint, candidate any) (Variant, error) {
	if candidate == nil {
		return nil, &Error{
			Kind:     KindInvalidArgument,
			Expected: declared.String(),
			Received: "null",
			Detail:   "value is undefined",
		}
	}
	value, err := MatchType[Variant](declared, encoder{candidate: candidate})
	if err != nil {
		return nil, err
	}
	if constraint == nil {
		return value, nil
	}
	if err := constraint.Check(value); err != nil {
		return nil, constraintViolation(constraint, value, err)
	}
	return value, nil
}

type encoder struct {
	candidate any
}

func (e encoder) OnBoolean() (Variant, error) {
	b, ok := dynamicBool(e.candidate)
	if !ok {
		return nil, typeMismatch(TypeBoolean, e.candidate, "")
	}
	return Boolean(b), nil
}

func (e encoder) OnInt32() (Variant, error) {
	n, detail, ok := dynamicInteger(e.candidate, math.MinInt32, math.MaxInt32)
	if !ok || detail != "" {
		return nil, typeMismatch(TypeInt32, e.candidate, detail)
	}
	return Int32(n), nil
}

func (e encoder) OnUInt32() (Variant, error) {
	n, detail, ok := dynamicInteger(e.candidate, 0, math.MaxUint32)
	if !ok || detail != "" {
		return nil, typeMismatch(TypeUInt32, e.candidate, detail)
	}
	return UInt32(n), nil
}

func (e encoder) OnDouble() (Variant, error) {
	f, ok := dynamicFloat(e.candidate)
	if !ok {
		return nil, typeMismatch(TypeDouble, e.candidate, "")
	}
	return Double(f), nil
}

func (e encoder) OnString() (Variant, error) {
	s, ok := dynamicString(e.candidate)
	if !ok {
		return nil, typeMismatch(TypeString, e.candidate, "")
	}
	if !utf8.ValidString(s) {
		return nil, typeMismatch(TypeString, e.candidate, "string is not valid UTF-8")
	}
	return String(s), nil
}

func (e encoder) OnStringArray() (Variant, error) {
	items, ok := dynamicSequence(e.candidate)
	if !ok {
		return nil, typeMismatch(TypeStringArray, e.candidate, "")
	}
	out := make(StringArray, 0, len(items))
	for i, item := range items {
		s, ok := dynamicString(item)
		if !ok || !utf8.ValidString(s) {
			return nil, elementMismatch("string", i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

func (e encoder) OnStringPairArray() (Variant, error) {
	items, ok := dynamicSequence(e.candidate)
	if !ok {
		return nil, typeMismatch(TypeStringPairArray, e.candidate, "")
	}
	out := make(StringPairArray, 0, len(items))
	for i, item := range items {
		pair, ok := dynamicPair(item)
		if !ok || !utf8.ValidString(pair.First) || !utf8.ValidString(pair.Second) {
			return nil, elementMismatch("pair of strings", i, item)
		}
		out = append(out, pair)
	}
	return out, nil
}
