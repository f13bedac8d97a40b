package settings

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Dynamic values are plain Go values: bool, the numeric kinds, json.Number,
// string and slices or arrays of dynamic values. Named types are matched by
// their underlying kind, so Variants can be passed back in as candidates.

var jsonNumberType = reflect.TypeOf(json.Number(""))

func describeShape(value any) string {
	if value == nil {
		return "null"
	}
	if _, ok := value.(StringPair); ok {
		return "string pair"
	}
	rv := reflect.ValueOf(value)
	if rv.Type() == jsonNumberType {
		return "number"
	}
	switch rv.Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "null"
		}
		return describeShape(rv.Elem().Interface())
	default:
		return fmt.Sprintf("%T", value)
	}
}

func dynamicBool(value any) (bool, bool) {
	if value == nil {
		return false, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Bool {
		return false, false
	}
	return rv.Bool(), true
}

func dynamicString(value any) (string, bool) {
	if value == nil {
		return "", false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.String || rv.Type() == jsonNumberType {
		return "", false
	}
	return rv.String(), true
}

func dynamicFloat(value any) (float64, bool) {
	if value == nil {
		return 0, false
	}
	rv := reflect.ValueOf(value)
	if rv.Type() == jsonNumberType {
		f, err := json.Number(rv.String()).Float64()
		return f, err == nil
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

// dynamicInteger returns the exact integer held by value. ok is false when
// value is not a number at all; detail explains why a number was refused.
func dynamicInteger(value any, lo, hi int64) (n int64, detail string, ok bool) {
	if value == nil {
		return 0, "", false
	}
	rv := reflect.ValueOf(value)
	if rv.Type() == jsonNumberType {
		number := json.Number(rv.String())
		if i, err := number.Int64(); err == nil {
			return checkIntegerRange(i, lo, hi)
		}
		f, err := number.Float64()
		if err != nil {
			return 0, "", false
		}
		return integerFromFloat(f, lo, hi)
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return checkIntegerRange(rv.Int(), lo, hi)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Sprintf("%d is out of range [%d, %d]", u, lo, hi), true
		}
		return checkIntegerRange(int64(u), lo, hi)
	case reflect.Float32, reflect.Float64:
		return integerFromFloat(rv.Float(), lo, hi)
	default:
		return 0, "", false
	}
}

func integerFromFloat(f float64, lo, hi int64) (int64, string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Sprintf("%v is not an integer", f), true
	}
	if math.Trunc(f) != f {
		return 0, fmt.Sprintf("%v has a fractional part", f), true
	}
	if f < float64(lo) || f > float64(hi) {
		return 0, fmt.Sprintf("%v is out of range [%d, %d]", f, lo, hi), true
	}
	return int64(f), "", true
}

func checkIntegerRange(i, lo, hi int64) (int64, string, bool) {
	if i < lo || i > hi {
		return 0, fmt.Sprintf("%d is out of range [%d, %d]", i, lo, hi), true
	}
	return i, "", true
}

// dynamicSequence returns the elements of a slice or array value. Strings
// are not sequences.
func dynamicSequence(value any) ([]any, bool) {
	if value == nil {
		return nil, false
	}
	if items, ok := value.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func dynamicPair(value any) (StringPair, bool) {
	if pair, ok := value.(StringPair); ok {
		return pair, true
	}
	items, ok := dynamicSequence(value)
	if !ok || len(items) != 2 {
		return StringPair{}, false
	}
	first, ok := dynamicString(items[0])
	if !ok {
		return StringPair{}, false
	}
	second, ok := dynamicString(items[1])
	if !ok {
		return StringPair{}, false
	}
	return StringPair{First: first, Second: second}, true
}
