package models

import (
	"fmt"
	"strconv"
	"time"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindDate
	KindEnum
	KindBool
	KindID
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	case KindEnum:
		return "enum"
	case KindBool:
		return "bool"
	case KindID:
		return "id"
	default:
		return "invalid"
	}
}

// Value is a typed cell value produced by the transformer.
// The zero Value is invalid.
type Value struct {
	kind Kind
	str  string
	num  float64
	id   int64
	t    time.Time
	b    bool
}

func StringValue(s string) Value { return Value{kind: KindString, str: s} }
func NumberValue(n float64) Value { return Value{kind: KindNumber, num: n} }
func DateValue(t time.Time) Value { return Value{kind: KindDate, t: t} }
func EnumValue(s string) Value { return Value{kind: KindEnum, str: s} }
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }
func IDValue(id int64) Value { return Value{kind: KindID, id: id} }
func (v Value) Kind() Kind { return v.kind }
func (v Value) Valid() bool { return v.kind != KindInvalid }
func (v Value) Number() (float64, bool) { return v.num, v.kind == KindNumber }
func (v Value) Date() (time.Time, bool) { return v.t, v.kind == KindDate }
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }
func (v Value) ID() (int64, bool) { return v.id, v.kind == KindID }

// Str returns the text of string and enum values.
func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString || v.kind == KindEnum
}

// Native returns the representation handed to a store.
func (v Value) Native() any {
	switch v.kind {
	case KindString, KindEnum:
		return v.str
	case KindNumber:
		return v.num
	case KindDate:
		return v.t
	case KindBool:
		return v.b
	case KindID:
		return v.id
	default:
		return nil
	}
}

// String renders the value for messages and lookup keys.
func (v Value) String() string {
	switch v.kind {
	case KindString, KindEnum:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindDate:
		return v.t.Format(time.RFC3339)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindID:
		return strconv.FormatInt(v.id, 10)
	default:
		return ""
	}
}

func (v Value) GoString() string {
	return fmt.Sprintf("%s(%s)", v.kind, v.String())
}
