package dynamo

import (
	"fmt"
	"math"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	settings "github.com/goliatone/go-settings"
)

// encodeValue renders a variant as the "value" attribute. Arrays are lists
// rather than string sets: sets are unordered and cannot be empty.
func encodeValue(v settings.Variant) (types.AttributeValue, error) {
	return settings.Visit[types.AttributeValue](v, attrEncoder{})
}

type attrEncoder struct{}

func (attrEncoder) VisitBoolean(v settings.Boolean) (types.AttributeValue, error) {
	return &types.AttributeValueMemberBOOL{Value: bool(v)}, nil
}

func (attrEncoder) VisitInt32(v settings.Int32) (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(v), 10)}, nil
}

func (attrEncoder) VisitUInt32(v settings.UInt32) (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(v), 10)}, nil
}

// VisitDouble rejects NaN and the infinities; DynamoDB numbers are finite.
func (attrEncoder) VisitDouble(v settings.Double) (types.AttributeValue, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite double %v has no number form", f)
	}
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(f, 'g', -1, 64)}, nil
}

func (attrEncoder) VisitString(v settings.String) (types.AttributeValue, error) {
	return &types.AttributeValueMemberS{Value: string(v)}, nil
}

func (attrEncoder) VisitStringArray(v settings.StringArray) (types.AttributeValue, error) {
	items := make([]types.AttributeValue, len(v))
	for i, item := range v {
		items[i] = &types.AttributeValueMemberS{Value: item}
	}
	return &types.AttributeValueMemberL{Value: items}, nil
}

func (attrEncoder) VisitStringPairArray(v settings.StringPairArray) (types.AttributeValue, error) {
	items := make([]types.AttributeValue, len(v))
	for i, pair := range v {
		member, err := attributevalue.MarshalList([]string{pair.First, pair.Second})
		if err != nil {
			return nil, err
		}
		items[i] = &types.AttributeValueMemberL{Value: member}
	}
	return &types.AttributeValueMemberL{Value: items}, nil
}

// decodeValue reads the "value" attribute as the type named by signature.
func decodeValue(signature string, av types.AttributeValue) (settings.Variant, error) {
	typ, ok := settings.ParseType(signature)
	if !ok {
		return nil, fmt.Errorf("dynamo: unsupported stored type %q", signature)
	}
	return settings.MatchType[settings.Variant](typ, attrDecoder{av: av})
}

type attrDecoder struct {
	av types.AttributeValue
}

func (d attrDecoder) OnBoolean() (settings.Variant, error) {
	b, ok := d.av.(*types.AttributeValueMemberBOOL)
	if !ok {
		return nil, d.mismatch("BOOL")
	}
	return settings.Boolean(b.Value), nil
}

func (d attrDecoder) OnInt32() (settings.Variant, error) {
	n, err := d.number()
	if err != nil {
		return nil, err
	}
	i, err := strconv.ParseInt(n, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("dynamo: int32 value %q: %w", n, err)
	}
	return settings.Int32(i), nil
}

func (d attrDecoder) OnUInt32() (settings.Variant, error) {
	n, err := d.number()
	if err != nil {
		return nil, err
	}
	u, err := strconv.ParseUint(n, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("dynamo: uint32 value %q: %w", n, err)
	}
	return settings.UInt32(u), nil
}

func (d attrDecoder) OnDouble() (settings.Variant, error) {
	n, err := d.number()
	if err != nil {
		return nil, err
	}
	f, err := strconv.ParseFloat(n, 64)
	if err != nil {
		return nil, fmt.Errorf("dynamo: double value %q: %w", n, err)
	}
	return settings.Double(f), nil
}

func (d attrDecoder) OnString() (settings.Variant, error) {
	s, ok := d.av.(*types.AttributeValueMemberS)
	if !ok {
		return nil, d.mismatch("S")
	}
	return settings.String(s.Value), nil
}

func (d attrDecoder) OnStringArray() (settings.Variant, error) {
	l, ok := d.av.(*types.AttributeValueMemberL)
	if !ok {
		return nil, d.mismatch("L")
	}
	var items []string
	if err := attributevalue.UnmarshalList(l.Value, &items); err != nil {
		return nil, fmt.Errorf("dynamo: string array value: %w", err)
	}
	return settings.NewStringArray(items...), nil
}

func (d attrDecoder) OnStringPairArray() (settings.Variant, error) {
	l, ok := d.av.(*types.AttributeValueMemberL)
	if !ok {
		return nil, d.mismatch("L")
	}
	var items [][]string
	if err := attributevalue.UnmarshalList(l.Value, &items); err != nil {
		return nil, fmt.Errorf("dynamo: string pair array value: %w", err)
	}
	pairs := make([]settings.StringPair, len(items))
	for i, item := range items {
		if len(item) != 2 {
			return nil, fmt.Errorf("dynamo: string pair array element %d has %d members", i, len(item))
		}
		pairs[i] = settings.StringPair{First: item[0], Second: item[1]}
	}
	return settings.NewStringPairArray(pairs...), nil
}

func (d attrDecoder) number() (string, error) {
	n, ok := d.av.(*types.AttributeValueMemberN)
	if !ok {
		return "", d.mismatch("N")
	}
	return n.Value, nil
}

func (d attrDecoder) mismatch(want string) error {
	return fmt.Errorf("dynamo: value attribute is %T, want %s", d.av, want)
}
