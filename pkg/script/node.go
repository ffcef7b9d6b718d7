// Package script models the SweepWeave script trees that gate encounters,
// options and reactions, and evaluates them against a character state.
package script

import "encoding/json"

// Node is one element of a script tree
type Node interface {
	node()
}

// Constant is a bounded number literal
type Constant struct {
	Value float64
	Bare  bool // authored as a plain JSON number
}

// BoolConstant is a boolean literal
type BoolConstant struct {
	Value bool
	Bare  bool // authored as a plain JSON true/false
}

// StringConstant is a text literal
type StringConstant struct {
	Value string
	Bare  bool
}

// PropertyRef reads state[(Character, Property)] scaled by Coefficient
type PropertyRef struct {
	Character   string
	Property    string
	Coefficient float64
}

// Comparator compares two operands numerically
type Comparator struct {
	Op       Operator
	Spelling string // authored operator_subtype, kept for round trips
	Left     Node
	Right    Node
}

type And struct{ Operands []Node }
type Or struct{ Operands []Node }
type Add struct{ Operands []Node }
type Multiply struct{ Operands []Node }

type AbsoluteValue struct{ Operand Node }

// Nudge moves Current by Delta and clamps the result into [-1, 1]
type Nudge struct {
	Current Node
	Delta   Node
}

// Legacy is an unrecognised object that carries a literal value. The
// lenient evaluator returns the value; the strict evaluator rejects it.
type Legacy struct {
	Value Value
	Raw   json.RawMessage
}

// Malformed holds a node that could not be decoded. It is kept so the
// document still round-trips; evaluating it fails.
type Malformed struct {
	Raw    json.RawMessage
	Reason string
}

func (*Constant) node()       {}
func (*BoolConstant) node()   {}
func (*StringConstant) node() {}
func (*PropertyRef) node()    {}
func (*Comparator) node()     {}
func (*And) node()            {}
func (*Or) node()             {}
func (*Add) node()            {}
func (*Multiply) node()       {}
func (*AbsoluteValue) node()  {}
func (*Nudge) node()          {}
func (*Legacy) node()         {}
func (*Malformed) node()      {}

// Operator is a comparator subtype
type Operator int

const (
	OpInvalid Operator = iota
	OpGTE
	OpLTE
	OpGT
	OpLT
	OpEQ
	OpNEQ
)

var operatorNames = map[string]Operator{
	"Greater Than or Equal To": OpGTE,
	"Less Than or Equal To":    OpLTE,
	"Greater Than":             OpGT,
	"Less Than":                OpLT,
	"Equal To":                 OpEQ,
	"Not Equal To":             OpNEQ,
	"GTE":                      OpGTE,
	"LTE":                      OpLTE,
	"GT":                       OpGT,
	"LT":                       OpLT,
	"EQ":                       OpEQ,
	"NEQ":                      OpNEQ,
}

// ParseOperator resolves an operator_subtype in either long or short form
func ParseOperator(s string) (Operator, bool) {
	op, ok := operatorNames[s]
	return op, ok
}

// String returns the long SweepWeave spelling
func (o Operator) String() string {
	switch o {
	case OpGTE:
		return "Greater Than or Equal To"
	case OpLTE:
		return "Less Than or Equal To"
	case OpGT:
		return "Greater Than"
	case OpLT:
		return "Less Than"
	case OpEQ:
		return "Equal To"
	case OpNEQ:
		return "Not Equal To"
	default:
		return "Invalid"
	}
}

func (o Operator) compare(l, r float64) bool {
	switch o {
	case OpGTE:
		return l >= r
	case OpLTE:
		return l <= r
	case OpGT:
		return l > r
	case OpLT:
		return l < r
	case OpEQ:
		return l == r
	case OpNEQ:
		return l != r
	default:
		return false
	}
}
