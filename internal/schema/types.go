// Package schema describes the entity kinds a catalog may hold and the
// typed fields of their elements. It covers what resolution needs (field
// types, required attributes, allowed children) rather than the complete
// scenario schema.
package schema

import (
	"fmt"
	"math"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// BaseType is the primitive kind behind a ValueType.
type BaseType uint8

const (
	String BaseType = iota
	Double
	Integer
	UnsignedInt
	UnsignedShort
	Boolean
	DateTime
	Enum
)

var baseNames = map[BaseType]string{
	String:        "string",
	Double:        "double",
	Integer:       "integer",
	UnsignedInt:   "unsignedInt",
	UnsignedShort: "unsignedShort",
	Boolean:       "boolean",
	DateTime:      "dateTime",
	Enum:          "enum",
}

// ValueType is the declared type of a parameter or attribute.
type ValueType struct {
	Base   BaseType
	Values []string // allowed literals when Base is Enum
}

// Common value types.
var (
	TString        = ValueType{Base: String}
	TDouble        = ValueType{Base: Double}
	TInteger       = ValueType{Base: Integer}
	TUnsignedInt   = ValueType{Base: UnsignedInt}
	TUnsignedShort = ValueType{Base: UnsignedShort}
	TBoolean       = ValueType{Base: Boolean}
	TDateTime      = ValueType{Base: DateTime}
)

// EnumOf returns an enumeration type over the given literals.
func EnumOf(values ...string) ValueType {
	return ValueType{Base: Enum, Values: values}
}

// ParseParameterType maps a parameterType attribute to a ValueType.
func ParseParameterType(name string) (ValueType, bool) {
	for base, n := range baseNames {
		if n == name && base != Enum {
			return ValueType{Base: base}, true
		}
	}
	return ValueType{}, false
}

func (t ValueType) String() string {
	if t.Base == Enum {
		return "enum(" + strings.Join(t.Values, "|") + ")"
	}
	return baseNames[t.Base]
}

// CtyType is the cty type values of t convert to.
func (t ValueType) CtyType() cty.Type {
	switch t.Base {
	case Double, Integer, UnsignedInt, UnsignedShort:
		return cty.Number
	case Boolean:
		return cty.Bool
	default:
		return cty.String
	}
}

// ConversionError reports a value that does not fit its declared type.
type ConversionError struct {
	Expected string
	Got      string
	Reason   string
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("expected %s, got %q", e.Expected, e.Got)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Convert parses raw into a typed value.
func (t ValueType) Convert(raw string) (cty.Value, error) {
	fail := func(reason string) (cty.Value, error) {
		return cty.NilVal, &ConversionError{Expected: t.String(), Got: raw, Reason: reason}
	}

	switch t.Base {
	case String:
		return cty.StringVal(raw), nil

	case Enum:
		if !slices.Contains(t.Values, raw) {
			return fail("not an allowed value")
		}
		return cty.StringVal(raw), nil

	case DateTime:
		if _, err := time.Parse(time.RFC3339, raw); err != nil {
			return fail("not an RFC 3339 timestamp")
		}
		return cty.StringVal(raw), nil

	case Boolean:
		v, err := convert.Convert(cty.StringVal(raw), cty.Bool)
		if err != nil {
			return fail("")
		}
		return v, nil
	}

	v, err := convert.Convert(cty.StringVal(strings.TrimSpace(raw)), cty.Number)
	if err != nil {
		return fail("")
	}
	if t.Base == Double {
		return v, nil
	}

	bf := v.AsBigFloat()
	if !bf.IsInt() {
		return fail("not a whole number")
	}
	switch t.Base {
	case UnsignedInt, UnsignedShort:
		limit := float64(math.MaxUint32)
		if t.Base == UnsignedShort {
			limit = math.MaxUint16
		}
		f, _ := bf.Float64()
		if bf.Sign() < 0 || f > limit {
			return fail("out of range")
		}
	case Integer:
		if _, acc := bf.Int64(); acc != big.Exact {
			return fail("out of range")
		}
	}
	return v, nil
}
