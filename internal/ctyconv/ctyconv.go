// Package ctyconv converts between cty values, dynamic Go values and
// settings variants. It backs the HCL schema loader and the HCL file backend.
package ctyconv

import (
	"fmt"
	"math"
	"math/big"

	settings "github.com/goliatone/go-settings"
	"github.com/zclconf/go-cty/cty"
)

// ToDynamic converts v into the dynamic form Encode accepts. Whole numbers
// that fit int64 become int64, other numbers float64. Lists, sets and tuples
// become []any; maps and objects become map[string]any. Null and unknown
// values become nil.
func ToDynamic(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		return number(v.AsBigFloat()), nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsListType() || ty.IsSetType() || ty.IsTupleType():
		items := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			item, err := ToDynamic(elem)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	case ty.IsMapType() || ty.IsObjectType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			item, err := ToDynamic(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key.AsString(), err)
			}
			out[key.AsString()] = item
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported cty type %s", ty.FriendlyName())
	}
}

func number(bf *big.Float) any {
	if bf.IsInt() {
		if i, acc := bf.Int64(); acc == big.Exact {
			return i
		}
	}
	f, _ := bf.Float64()
	return f
}

// ToVariant encodes v as a variant of the declared type. Constraints are not
// checked here.
func ToVariant(declared settings.Type, v cty.Value) (settings.Variant, error) {
	dynamic, err := ToDynamic(v)
	if err != nil {
		return nil, err
	}
	return settings.Encode(declared, nil, dynamic)
}

var pairType = cty.Tuple([]cty.Type{cty.String, cty.String})

// FromVariant renders a variant as a cty value: numbers as cty.Number, string
// arrays as lists of strings and pair arrays as lists of two-string tuples.
func FromVariant(v settings.Variant) (cty.Value, error) {
	return settings.Visit[cty.Value](v, variantEncoder{})
}

type variantEncoder struct{}

func (variantEncoder) VisitBoolean(v settings.Boolean) (cty.Value, error) {
	return cty.BoolVal(bool(v)), nil
}

func (variantEncoder) VisitInt32(v settings.Int32) (cty.Value, error) {
	return cty.NumberIntVal(int64(v)), nil
}

func (variantEncoder) VisitUInt32(v settings.UInt32) (cty.Value, error) {
	return cty.NumberUIntVal(uint64(v)), nil
}

// VisitDouble rejects NaN and the infinities, which have no cty number form
// that survives a file round trip.
func (variantEncoder) VisitDouble(v settings.Double) (cty.Value, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return cty.NilVal, fmt.Errorf("non-finite double %v has no number form", f)
	}
	return cty.NumberFloatVal(f), nil
}

func (variantEncoder) VisitString(v settings.String) (cty.Value, error) {
	return cty.StringVal(string(v)), nil
}

func (variantEncoder) VisitStringArray(v settings.StringArray) (cty.Value, error) {
	if len(v) == 0 {
		return cty.ListValEmpty(cty.String), nil
	}
	items := make([]cty.Value, len(v))
	for i, item := range v {
		items[i] = cty.StringVal(item)
	}
	return cty.ListVal(items), nil
}

func (variantEncoder) VisitStringPairArray(v settings.StringPairArray) (cty.Value, error) {
	if len(v) == 0 {
		return cty.ListValEmpty(pairType), nil
	}
	items := make([]cty.Value, len(v))
	for i, pair := range v {
		items[i] = cty.TupleVal([]cty.Value{cty.StringVal(pair.First), cty.StringVal(pair.Second)})
	}
	return cty.ListVal(items), nil
}
