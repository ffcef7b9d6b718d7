package script

import "encoding/json"

// Children returns the direct operands of n
func Children(n Node) []Node {
	switch t := n.(type) {
	case *Comparator:
		return []Node{t.Left, t.Right}
	case *And:
		return t.Operands
	case *Or:
		return t.Operands
	case *Add:
		return t.Operands
	case *Multiply:
		return t.Operands
	case *AbsoluteValue:
		return []Node{t.Operand}
	case *Nudge:
		return []Node{t.Current, t.Delta}
	default:
		return nil
	}
}

// Walk visits n and its descendants depth first. Returning false from fn
// skips the children of the visited node.
func Walk(n Node, fn func(Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range Children(n) {
		Walk(c, fn)
	}
}

// Thresholds returns every Constant that is the right operand of a
// Comparator anywhere in n, in visit order. The pointers alias the tree.
func Thresholds(n Node) []*Constant {
	var out []*Constant
	Walk(n, func(node Node) bool {
		if c, ok := node.(*Comparator); ok {
			if k, ok := c.Right.(*Constant); ok {
				out = append(out, k)
			}
		}
		return true
	})
	return out
}

// Properties returns the property references read by n
func Properties(n Node) []*PropertyRef {
	var out []*PropertyRef
	Walk(n, func(node Node) bool {
		if p, ok := node.(*PropertyRef); ok {
			out = append(out, p)
		}
		return true
	})
	return out
}

// Problems returns the reasons of every Malformed node in n, plus Legacy
// nodes when strict is set.
func Problems(n Node, strict bool) []string {
	var out []string
	Walk(n, func(node Node) bool {
		switch t := node.(type) {
		case *Malformed:
			out = append(out, t.Reason)
		case *Legacy:
			if strict {
				out = append(out, "legacy value node "+string(t.Raw))
			}
		}
		return true
	})
	return out
}

// Clone deep-copies n
func Clone(n Node) Node {
	switch t := n.(type) {
	case nil:
		return nil
	case *Constant:
		c := *t
		return &c
	case *BoolConstant:
		c := *t
		return &c
	case *StringConstant:
		c := *t
		return &c
	case *PropertyRef:
		c := *t
		return &c
	case *Comparator:
		return &Comparator{Op: t.Op, Spelling: t.Spelling, Left: Clone(t.Left), Right: Clone(t.Right)}
	case *And:
		return &And{Operands: cloneAll(t.Operands)}
	case *Or:
		return &Or{Operands: cloneAll(t.Operands)}
	case *Add:
		return &Add{Operands: cloneAll(t.Operands)}
	case *Multiply:
		return &Multiply{Operands: cloneAll(t.Operands)}
	case *AbsoluteValue:
		return &AbsoluteValue{Operand: Clone(t.Operand)}
	case *Nudge:
		return &Nudge{Current: Clone(t.Current), Delta: Clone(t.Delta)}
	case *Legacy:
		return &Legacy{Value: t.Value, Raw: append(json.RawMessage(nil), t.Raw...)}
	case *Malformed:
		return &Malformed{Raw: append(json.RawMessage(nil), t.Raw...), Reason: t.Reason}
	default:
		return n
	}
}

func cloneAll(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = Clone(n)
	}
	return out
}

// IsTrue reports whether n is the literal true
func IsTrue(n Node) bool {
	b, ok := n.(*BoolConstant)
	return ok && b.Value
}
