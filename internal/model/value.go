// Package model holds the data types shared across every stage of the
// collection pipeline: tag values, polling samples, buffered readings, and
// the small enums (mode, category, log mode, thread state) that travel with
// them.
package model

import (
	"encoding/json"
	"strconv"
)

// ValueKind discriminates the variant held by a Value.
type ValueKind int

const (
	KindInteger ValueKind = iota
	KindReal
	KindBoolean
	KindText
)

// Value is the dynamic, sum-typed tag value that crosses every package
// boundary in this module. Nothing downstream of the PLC client carries an
// untyped interface{} blob — every reading is one of these four shapes.
type Value struct {
	Kind    ValueKind
	Integer int64
	Real    float64
	Boolean bool
	Text    string
}

func Int(v int64) Value   { return Value{Kind: KindInteger, Integer: v} }
func Float(v float64) Value { return Value{Kind: KindReal, Real: v} }
func Bool(v bool) Value    { return Value{Kind: KindBoolean, Boolean: v} }
func Str(v string) Value   { return Value{Kind: KindText, Text: v} }

// String renders the value the way every change-detection and CSV/Oracle
// write path compares and serializes it: str(value).
func (v Value) String() string {
	switch v.Kind {
	case KindInteger:
		return strconv.FormatInt(v.Integer, 10)
	case KindReal:
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	case KindBoolean:
		if v.Boolean {
			return "true"
		}
		return "false"
	default:
		return v.Text
	}
}

// MarshalJSON renders a Value as its bare underlying value (a number, bool,
// or string) rather than exposing the Kind/Integer/Real/Boolean/Text
// struct shape, since every consumer across the wire (WS clients, CSV) only
// ever wants the value itself.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindInteger:
		return json.Marshal(v.Integer)
	case KindReal:
		return json.Marshal(v.Real)
	case KindBoolean:
		return json.Marshal(v.Boolean)
	default:
		return json.Marshal(v.Text)
	}
}

// Numeric returns the VALUE_NUM coercion used by the tag-log table:
// Integer/Real pass through as float64, Boolean becomes 0.0/1.0, Text has
// no numeric coercion.
func (v Value) Numeric() (float64, bool) {
	switch v.Kind {
	case KindInteger:
		return float64(v.Integer), true
	case KindReal:
		return v.Real, true
	case KindBoolean:
		if v.Boolean {
			return 1.0, true
		}
		return 0.0, true
	default:
		return 0, false
	}
}
