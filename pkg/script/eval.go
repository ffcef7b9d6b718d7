package script

import "math"

// StateReader is the read side of a character state. Absent keys read 0.
type StateReader interface {
	Get(character, property string) float64
}

// Evaluator evaluates script trees. The zero value is lenient: Legacy
// nodes evaluate to their literal value.
type Evaluator struct {
	Strict bool // reject Legacy nodes
}

// Evaluate evaluates n with the lenient evaluator
func Evaluate(n Node, st StateReader) (Value, error) {
	return Evaluator{}.Evaluate(n, st)
}

// Evaluate computes the value of n against st. It never mutates st.
func (e Evaluator) Evaluate(n Node, st StateReader) (Value, error) {
	switch t := n.(type) {
	case nil:
		return Value{}, malformed("missing script node")
	case *Constant:
		return Number(t.Value), nil
	case *BoolConstant:
		return Bool(t.Value), nil
	case *StringConstant:
		return Text(t.Value), nil
	case *PropertyRef:
		return Number(st.Get(t.Character, t.Property) * t.Coefficient), nil
	case *Comparator:
		return e.compare(t, st)
	case *And:
		result := true
		for _, op := range t.Operands {
			v, err := e.Evaluate(op, st)
			if err != nil {
				return Value{}, err
			}
			result = result && v.Truthy()
		}
		return Bool(result), nil
	case *Or:
		result := false
		for _, op := range t.Operands {
			v, err := e.Evaluate(op, st)
			if err != nil {
				return Value{}, err
			}
			result = result || v.Truthy()
		}
		return Bool(result), nil
	case *Add:
		sum := 0.0
		for _, op := range t.Operands {
			f, err := e.number(op, st, "addition")
			if err != nil {
				return Value{}, err
			}
			sum += f
		}
		return Number(sum), nil
	case *Multiply:
		product := 1.0
		for _, op := range t.Operands {
			f, err := e.number(op, st, "multiplication")
			if err != nil {
				return Value{}, err
			}
			product *= f
		}
		return Number(product), nil
	case *AbsoluteValue:
		f, err := e.number(t.Operand, st, "absolute value")
		if err != nil {
			return Value{}, err
		}
		return Number(math.Abs(f)), nil
	case *Nudge:
		return e.nudge(t, st)
	case *Legacy:
		if e.Strict {
			return Value{}, malformed("legacy value node %s", string(t.Raw))
		}
		return t.Value, nil
	case *Malformed:
		return Value{}, malformed("%s", t.Reason)
	default:
		return Value{}, malformed("unsupported node %T", n)
	}
}

func (e Evaluator) compare(c *Comparator, st StateReader) (Value, error) {
	if c.Op == OpInvalid {
		return Value{}, malformed("unknown comparator subtype %q", c.Spelling)
	}
	l, err := e.Evaluate(c.Left, st)
	if err != nil {
		return Value{}, err
	}
	r, err := e.Evaluate(c.Right, st)
	if err != nil {
		return Value{}, err
	}
	if l.Type == TextValue && r.Type == TextValue {
		switch c.Op {
		case OpEQ:
			return Bool(l.Text == r.Text), nil
		case OpNEQ:
			return Bool(l.Text != r.Text), nil
		}
	}
	lf, lok := l.Float()
	rf, rok := r.Float()
	if !lok || !rok {
		return Value{}, malformed("comparator %q on %s and %s operands", c.Op, l.Type, r.Type)
	}
	return Bool(c.Op.compare(lf, rf)), nil
}

func (e Evaluator) number(n Node, st StateReader, where string) (float64, error) {
	v, err := e.Evaluate(n, st)
	if err != nil {
		return 0, err
	}
	f, ok := v.Float()
	if !ok {
		return 0, malformed("%s operand is %s", where, v.Type)
	}
	return f, nil
}

// nudge accepts numeric operands only; booleans are not coerced here
func (e Evaluator) nudge(n *Nudge, st StateReader) (Value, error) {
	cur, err := e.Evaluate(n.Current, st)
	if err != nil {
		return Value{}, err
	}
	delta, err := e.Evaluate(n.Delta, st)
	if err != nil {
		return Value{}, err
	}
	if cur.Type != NumberValue || delta.Type != NumberValue {
		return Value{}, malformed("nudge operands are %s and %s", cur.Type, delta.Type)
	}
	return Number(Clamp(cur.Num + delta.Num)), nil
}

// Clamp bounds v into [-1, 1]
func Clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
