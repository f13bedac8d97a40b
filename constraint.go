package settings

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// Constraint is a schema-declared predicate a value must satisfy before it
// is persisted. Check returns nil when v is acceptable.
type Constraint interface {
	Check(v Variant) error
	String() string
}

func constraintViolation(constraint Constraint, value Variant, cause error) *Error {
	return &Error{
		Kind:   KindConstraintViolation,
		Detail: fmt.Sprintf("%s rejects %s", constraint, Format(value)),
		Err:    cause,
	}
}

var errNotApplicable = errors.New("constraint does not apply to this type")

// RangeConstraint bounds numeric values inclusively.
type RangeConstraint struct {
	Min float64
	Max float64
}

// NewRangeConstraint returns a range constraint, rejecting inverted bounds.
func NewRangeConstraint(lo, hi float64) (RangeConstraint, error) {
	if lo > hi {
		return RangeConstraint{}, fmt.Errorf("settings: range min %v is greater than max %v", lo, hi)
	}
	return RangeConstraint{Min: lo, Max: hi}, nil
}

func (c RangeConstraint) Check(v Variant) error {
	var f float64
	switch typed := v.(type) {
	case Int32:
		f = float64(typed)
	case UInt32:
		f = float64(typed)
	case Double:
		f = float64(typed)
	default:
		return fmt.Errorf("range on %s: %w", typeOf(v), errNotApplicable)
	}
	if math.IsNaN(f) || f < c.Min || f > c.Max {
		return fmt.Errorf("%v is outside [%v, %v]", f, c.Min, c.Max)
	}
	return nil
}

func (c RangeConstraint) String() string {
	return "range [" + formatBound(c.Min) + ", " + formatBound(c.Max) + "]"
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ChoicesConstraint restricts strings to an enumerated set. For string
// arrays every element must be one of the choices.
type ChoicesConstraint struct {
	choices []string
}

// NewChoicesConstraint copies choices into a new constraint.
func NewChoicesConstraint(choices ...string) ChoicesConstraint {
	return ChoicesConstraint{choices: slices.Clone(choices)}
}

// Choices returns a copy of the allowed values.
func (c ChoicesConstraint) Choices() []string {
	return slices.Clone(c.choices)
}

func (c ChoicesConstraint) Check(v Variant) error {
	switch typed := v.(type) {
	case String:
		return c.checkOne(string(typed))
	case StringArray:
		for _, item := range typed {
			if err := c.checkOne(item); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("choices on %s: %w", typeOf(v), errNotApplicable)
	}
}

func (c ChoicesConstraint) checkOne(value string) error {
	if slices.Contains(c.choices, value) {
		return nil
	}
	return fmt.Errorf("%q is not one of %s", value, c.quoted())
}

func (c ChoicesConstraint) quoted() string {
	parts := make([]string, len(c.choices))
	for i, choice := range c.choices {
		parts[i] = strconv.Quote(choice)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (c ChoicesConstraint) String() string {
	return "choices " + c.quoted()
}

const patternMatchTimeout = 250 * time.Millisecond

// PatternConstraint requires strings to match a regular expression. It
// applies to String, every StringArray element and both members of every
// StringPairArray element.
type PatternConstraint struct {
	pattern string
	re      *regexp2.Regexp
}

// NewPatternConstraint compiles pattern with regexp2 defaults.
func NewPatternConstraint(pattern string) (*PatternConstraint, error) {
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("settings: compile pattern %q: %w", pattern, err)
	}
	re.MatchTimeout = patternMatchTimeout
	return &PatternConstraint{pattern: pattern, re: re}, nil
}

func (c *PatternConstraint) Check(v Variant) error {
	switch typed := v.(type) {
	case String:
		return c.match(string(typed))
	case StringArray:
		for _, item := range typed {
			if err := c.match(item); err != nil {
				return err
			}
		}
		return nil
	case StringPairArray:
		for _, pair := range typed {
			if err := c.match(pair.First); err != nil {
				return err
			}
			if err := c.match(pair.Second); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("pattern on %s: %w", typeOf(v), errNotApplicable)
	}
}

func (c *PatternConstraint) match(value string) error {
	ok, err := c.re.MatchString(value)
	if err != nil {
		return fmt.Errorf("match %q: %w", value, err)
	}
	if !ok {
		return fmt.Errorf("%q does not match %q", value, c.pattern)
	}
	return nil
}

// Pattern returns the source expression.
func (c *PatternConstraint) Pattern() string { return c.pattern }

func (c *PatternConstraint) String() string {
	return "pattern " + strconv.Quote(c.pattern)
}

type allOf []Constraint

// AllOf combines constraints; they are checked in order and the first
// failure wins. Nil entries are dropped and a single constraint is returned
// unwrapped.
func AllOf(constraints ...Constraint) Constraint {
	kept := make(allOf, 0, len(constraints))
	for _, c := range constraints {
		if c != nil {
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return kept
	}
}

func (a allOf) Check(v Variant) error {
	for _, c := range a {
		if err := c.Check(v); err != nil {
			return err
		}
	}
	return nil
}

// Constraints returns the combined constraints in check order.
func (a allOf) Constraints() []Constraint {
	return slices.Clone([]Constraint(a))
}

func (a allOf) String() string {
	parts := make([]string, len(a))
	for i, c := range a {
		parts[i] = c.String()
	}
	return strings.Join(parts, " and ")
}

func typeOf(v Variant) string {
	if v == nil {
		return "<nil>"
	}
	return v.Type().String()
}
