package openapi

import (
	"fmt"
	"math"

	settings "github.com/goliatone/go-settings"
)

// signatureExtension carries the key's GVariant signature.
const signatureExtension = "x-gvariant-signature"

func objectSchema(schema *settings.Schema) (map[string]any, error) {
	properties := map[string]any{}
	var unsupported []string
	for _, desc := range schema.Descriptors() {
		if !desc.Supported() {
			unsupported = append(unsupported, desc.Name())
			continue
		}
		prop, err := propertySchema(desc)
		if err != nil {
			return nil, fmt.Errorf("openapi: key %q: %w", desc.Name(), err)
		}
		properties[desc.Name()] = prop
	}
	object := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
		"x-schema-id":          schema.ID(),
	}
	if len(unsupported) > 0 {
		object["x-unsupported-keys"] = unsupported
	}
	return object, nil
}

func propertySchema(desc settings.KeyDescriptor) (map[string]any, error) {
	prop, err := settings.MatchType[map[string]any](desc.Type(), propertyCases{})
	if err != nil {
		return nil, err
	}
	prop[signatureExtension] = desc.Signature()
	if summary := desc.Summary(); summary != "" {
		prop["title"] = summary
	}
	if description := desc.Description(); description != "" {
		prop["description"] = description
	}
	def, err := settings.Decode(desc.Default())
	if err != nil {
		return nil, err
	}
	prop["default"] = def
	applyConstraint(prop, desc.Constraint())
	return prop, nil
}

type propertyCases struct{}

func (propertyCases) OnBoolean() (map[string]any, error) {
	return map[string]any{"type": "boolean"}, nil
}

func (propertyCases) OnInt32() (map[string]any, error) {
	return map[string]any{
		"type":    "integer",
		"format":  "int32",
		"minimum": float64(math.MinInt32),
		"maximum": float64(math.MaxInt32),
	}, nil
}

func (propertyCases) OnUInt32() (map[string]any, error) {
	return map[string]any{
		"type":    "integer",
		"format":  "int64",
		"minimum": float64(0),
		"maximum": float64(math.MaxUint32),
	}, nil
}

func (propertyCases) OnDouble() (map[string]any, error) {
	return map[string]any{"type": "number", "format": "double"}, nil
}

func (propertyCases) OnString() (map[string]any, error) {
	return map[string]any{"type": "string"}, nil
}

func (propertyCases) OnStringArray() (map[string]any, error) {
	return map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}, nil
}

func (propertyCases) OnStringPairArray() (map[string]any, error) {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string"},
			"minItems": 2,
			"maxItems": 2,
		},
	}, nil
}

type compositeConstraint interface {
	Constraints() []settings.Constraint
}

// applyConstraint maps constraints onto JSON Schema keywords. Rules and
// unknown constraints have no keyword and are kept as extensions.
func applyConstraint(prop map[string]any, constraint settings.Constraint) {
	switch typed := constraint.(type) {
	case nil:
	case settings.RangeConstraint:
		prop["minimum"] = typed.Min
		prop["maximum"] = typed.Max
	case settings.ChoicesConstraint:
		stringLeaf(prop)["enum"] = typed.Choices()
	case *settings.PatternConstraint:
		stringLeaf(prop)["pattern"] = typed.Pattern()
	case *settings.RuleConstraint:
		appendExtension(prop, "x-rules", map[string]any{
			"engine":     typed.Engine(),
			"expression": typed.Expression(),
		})
	case compositeConstraint:
		for _, inner := range typed.Constraints() {
			applyConstraint(prop, inner)
		}
	default:
		appendExtension(prop, "x-constraints", constraint.String())
	}
}

// stringLeaf descends through array items to the string schema.
func stringLeaf(prop map[string]any) map[string]any {
	for prop["type"] == "array" {
		items, ok := prop["items"].(map[string]any)
		if !ok {
			break
		}
		prop = items
	}
	return prop
}

func appendExtension(prop map[string]any, name string, value any) {
	existing, _ := prop[name].([]any)
	prop[name] = append(existing, value)
}
