// Package rule defines a single named, typed rule: its value domain, its
// validator and the metadata used to list and search it.
//
// Values are a closed tagged variant. Every value has a canonical string
// form that is used for comparison, display and persistence.
package rule

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the value domain of a rule.
type Kind uint8

const (
	// KindBool is a true/false rule.
	KindBool Kind = iota
	// KindInt is a signed integer rule.
	KindInt
	// KindEnum is a rule restricted to a fixed set of options.
	KindEnum
	// KindString is a free-form text rule.
	KindString
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindEnum:
		return "enum"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// ParseKind maps a kind name back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bool", "boolean":
		return KindBool, nil
	case "int", "integer":
		return KindInt, nil
	case "enum":
		return KindEnum, nil
	case "string", "str", "text":
		return KindString, nil
	default:
		return 0, fmt.Errorf("unknown rule kind %q", s)
	}
}

// Value is a typed rule value. The zero Value is a false boolean.
type Value struct {
	kind Kind
	b    bool
	i    int64
	s    string
}

// BoolValue returns a boolean value.
func BoolValue(v bool) Value {
	return Value{kind: KindBool, b: v}
}

// IntValue returns an integer value.
func IntValue(v int64) Value {
	return Value{kind: KindInt, i: v}
}

// EnumValue returns an enum option value.
func EnumValue(option string) Value {
	return Value{kind: KindEnum, s: option}
}

// StringValue returns a free-form string value.
func StringValue(v string) Value {
	return Value{kind: KindString, s: v}
}

// Kind returns the value's domain.
func (v Value) Kind() Kind {
	return v.kind
}

// Bool returns the boolean payload. Only meaningful for KindBool.
func (v Value) Bool() bool {
	return v.b
}

// Int returns the integer payload. Only meaningful for KindInt.
func (v Value) Int() int64 {
	return v.i
}

// String returns the canonical string representation.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	default:
		return v.s
	}
}

// Equal compares two values by canonical string.
func (v Value) Equal(other Value) bool {
	return v.String() == other.String()
}

// Truthy reports whether the value reads as "on": a true boolean, a
// non-zero integer, or any option other than false/off/none/empty.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	default:
		switch strings.ToLower(v.s) {
		case "", "false", "off", "none", "0":
			return false
		}
		return true
	}
}

// Parse coerces a raw string into a value of the given kind.
// Failures are returned as *InvalidValueError with a presentable reason.
func Parse(kind Kind, raw string) (Value, error) {
	switch kind {
	case KindBool:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true":
			return BoolValue(true), nil
		case "false":
			return BoolValue(false), nil
		}
		return Value{}, Invalid("expected one of: true, false")
	case KindInt:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Value{}, Invalid("expected an integer")
		}
		return IntValue(n), nil
	case KindEnum:
		return EnumValue(strings.TrimSpace(raw)), nil
	case KindString:
		return StringValue(raw), nil
	default:
		return Value{}, Invalid(fmt.Sprintf("unsupported rule kind %d", kind))
	}
}
