package script

import (
	"fmt"
	"strconv"
)

// ValueType tags the payload carried by a Value
type ValueType int

const (
	NumberValue ValueType = iota
	BoolValue
	TextValue
)

func (t ValueType) String() string {
	switch t {
	case NumberValue:
		return "number"
	case BoolValue:
		return "bool"
	case TextValue:
		return "text"
	default:
		return fmt.Sprintf("ValueType(%d)", int(t))
	}
}

// Value is the result of evaluating a script node
type Value struct {
	Type ValueType
	Num  float64
	Bool bool
	Text string
}

func Number(f float64) Value { return Value{Type: NumberValue, Num: f} }
func Bool(b bool) Value      { return Value{Type: BoolValue, Bool: b} }
func Text(s string) Value    { return Value{Type: TextValue, Text: s} }

// Float returns the numeric reading of v. Booleans coerce to 1 and 0;
// text has no numeric reading.
func (v Value) Float() (float64, bool) {
	switch v.Type {
	case NumberValue:
		return v.Num, true
	case BoolValue:
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Truthy reports whether v passes a gate (visibility, acceptability)
func (v Value) Truthy() bool {
	switch v.Type {
	case BoolValue:
		return v.Bool
	case NumberValue:
		return v.Num != 0
	default:
		return v.Text != ""
	}
}

func (v Value) String() string {
	switch v.Type {
	case NumberValue:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case BoolValue:
		return strconv.FormatBool(v.Bool)
	default:
		return strconv.Quote(v.Text)
	}
}
