package register

import (
	"bytes"
	"cmp"
	"strconv"
	"strings"

	"github.com/arloliu/go-converse/internal/util"
)

// Value is an immutable snapshot of a decoded register value.
//
// The concrete types are NumberValue, StringValue and BytesValue.
type Value interface {
	String() string
	isValue()
}

// NumberValue is a decoded numeric register value with the scale factor applied.
type NumberValue float64

// StringValue is a decoded text register value.
type StringValue string

// BytesValue is a raw register value.
type BytesValue []byte

func (v NumberValue) String() string { return strconv.FormatFloat(float64(v), 'f', -1, 64) }
func (v StringValue) String() string { return string(v) }
func (v BytesValue) String() string { return util.HexDump(v) }

func (NumberValue) isValue() {}
func (StringValue) isValue() {}
func (BytesValue) isValue()  {}

// Ordering is the result of comparing two values.
type Ordering int

const (
	Less Ordering = iota - 1
	Equal
	Greater
	// Incompatible is returned when the values are of different kinds.
	Incompatible
)

func (o Ordering) String() string {
	switch o {
	case Less:
		return "less"
	case Equal:
		return "equal"
	case Greater:
		return "greater"
	default:
		return "incompatible"
	}
}

// Compare orders a against b.
//
// Numbers compare numerically, strings lexically and bytes big-endian style:
// the first differing byte decides and a shorter slice with an equal prefix is Less.
// Values of different kinds, or nil values, are Incompatible.
func Compare(a, b Value) Ordering {
	switch av := a.(type) {
	case NumberValue:
		if bv, ok := b.(NumberValue); ok {
			return Ordering(cmp.Compare(av, bv))
		}
	case StringValue:
		if bv, ok := b.(StringValue); ok {
			return Ordering(strings.Compare(string(av), string(bv)))
		}
	case BytesValue:
		if bv, ok := b.(BytesValue); ok {
			return Ordering(bytes.Compare(av, bv))
		}
	}

	return Incompatible
}

// NamedValue maps a raw register value to a name and a semantic tag such as
// "OK", "Error" or "Alarm".
type NamedValue struct {
	Name  string
	Tag   string
	Value Value
}

// ValueList is an ordered list of named values attached to a register.
type ValueList []NamedValue

// Locate returns the first entry whose value compares Equal to v.
func (l ValueList) Locate(v Value) (NamedValue, bool) {
	return LocateInValueList(l, v)
}

// LocateInValueList scans list in order and returns the first entry whose
// value compares Equal to v.
func LocateInValueList(list ValueList, v Value) (NamedValue, bool) {
	for _, nv := range list {
		if Compare(nv.Value, v) == Equal {
			return nv, true
		}
	}

	return NamedValue{}, false
}
