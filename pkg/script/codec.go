package script

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	pointerElement  = "Pointer"
	operatorElement = "Operator"

	pointerNumberConstant = "Bounded Number Constant"
	pointerBoolConstant   = "Boolean Constant"
	pointerStringConstant = "String Constant"
	pointerProperty       = "Bounded Number Pointer"

	operatorComparator = "Arithmetic Comparator"
	operatorAnd        = "And"
	operatorOr         = "Or"
	operatorAdd        = "Addition"
	operatorMultiply   = "Multiplication"
	operatorAbs        = "Absolute Value"
	operatorNudge      = "Nudge"
)

// wireNode is the union of every field a SweepWeave script object may carry
type wireNode struct {
	PointerType       string            `json:"pointer_type,omitempty"`
	OperatorType      string            `json:"operator_type,omitempty"`
	ScriptElementType string            `json:"script_element_type,omitempty"`
	OperatorSubtype   string            `json:"operator_subtype,omitempty"`
	Character         string            `json:"character,omitempty"`
	Keyring           []string          `json:"keyring,omitempty"`
	Coefficient       *float64          `json:"coefficient,omitempty"`
	Value             json.RawMessage   `json:"value,omitempty"`
	Operands          []json.RawMessage `json:"operands,omitempty"`
}

// Decode parses one script tree. Only invalid JSON is an error: shapes the
// evaluator does not know are kept as Legacy or Malformed nodes.
func Decode(data []byte) (Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to decode script: empty input")
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("failed to decode script: invalid JSON")
	}
	return decode(data), nil
}

func decode(data json.RawMessage) Node {
	raw := append(json.RawMessage(nil), data...)
	switch data[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return &Malformed{Raw: raw, Reason: err.Error()}
		}
		return &BoolConstant{Value: b, Bare: true}
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return &Malformed{Raw: raw, Reason: err.Error()}
		}
		return &StringConstant{Value: s, Bare: true}
	case '{':
		return decodeObject(raw)
	case '[':
		return &Malformed{Raw: raw, Reason: "array is not a script node"}
	case 'n':
		return &Malformed{Raw: raw, Reason: "null script"}
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return &Malformed{Raw: raw, Reason: err.Error()}
		}
		return &Constant{Value: f, Bare: true}
	}
}

func decodeObject(raw json.RawMessage) Node {
	var w wireNode
	if err := json.Unmarshal(raw, &w); err != nil {
		return &Malformed{Raw: raw, Reason: err.Error()}
	}

	switch w.PointerType {
	case pointerNumberConstant:
		v, ok := literal(w.Value)
		if !ok {
			return &Malformed{Raw: raw, Reason: "constant without a literal value"}
		}
		if f, isNum := v.Float(); isNum {
			return &Constant{Value: f}
		}
		return &Malformed{Raw: raw, Reason: "bounded number constant with text value"}
	case pointerBoolConstant:
		v, ok := literal(w.Value)
		if !ok || v.Type != BoolValue {
			return &Malformed{Raw: raw, Reason: "boolean constant without a boolean value"}
		}
		return &BoolConstant{Value: v.Bool}
	case pointerStringConstant:
		v, ok := literal(w.Value)
		if !ok || v.Type != TextValue {
			return &Malformed{Raw: raw, Reason: "string constant without a string value"}
		}
		return &StringConstant{Value: v.Text}
	case pointerProperty:
		if w.Character == "" || len(w.Keyring) == 0 || w.Keyring[0] == "" {
			return &Malformed{Raw: raw, Reason: "bounded number pointer without character or keyring"}
		}
		coef := 1.0
		if w.Coefficient != nil {
			coef = *w.Coefficient
		}
		return &PropertyRef{Character: w.Character, Property: w.Keyring[0], Coefficient: coef}
	}

	operands := make([]Node, len(w.Operands))
	for i, op := range w.Operands {
		operands[i] = decode(op)
	}

	switch w.OperatorType {
	case operatorComparator:
		op, ok := ParseOperator(w.OperatorSubtype)
		if !ok {
			return &Malformed{Raw: raw, Reason: fmt.Sprintf("unknown comparator subtype %q", w.OperatorSubtype)}
		}
		if len(operands) != 2 {
			return &Malformed{Raw: raw, Reason: fmt.Sprintf("comparator needs 2 operands, got %d", len(operands))}
		}
		return &Comparator{Op: op, Spelling: w.OperatorSubtype, Left: operands[0], Right: operands[1]}
	case operatorAnd:
		return &And{Operands: operands}
	case operatorOr:
		return &Or{Operands: operands}
	case operatorAdd:
		return &Add{Operands: operands}
	case operatorMultiply:
		return &Multiply{Operands: operands}
	case operatorAbs:
		if len(operands) != 1 {
			return &Malformed{Raw: raw, Reason: fmt.Sprintf("absolute value needs 1 operand, got %d", len(operands))}
		}
		return &AbsoluteValue{Operand: operands[0]}
	case operatorNudge:
		if len(operands) != 2 {
			return &Malformed{Raw: raw, Reason: fmt.Sprintf("nudge needs 2 operands, got %d", len(operands))}
		}
		return &Nudge{Current: operands[0], Delta: operands[1]}
	}

	if v, ok := literal(w.Value); ok {
		return &Legacy{Value: v, Raw: raw}
	}
	return &Malformed{Raw: raw, Reason: fmt.Sprintf("unknown script node (pointer_type %q, operator_type %q)", w.PointerType, w.OperatorType)}
}

func literal(data json.RawMessage) (Value, bool) {
	if len(data) == 0 {
		return Value{}, false
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return Value{}, false
	}
	switch t := v.(type) {
	case float64:
		return Number(t), true
	case bool:
		return Bool(t), true
	case string:
		return Text(t), true
	default:
		return Value{}, false
	}
}

// Encode renders n in SweepWeave JSON form
func Encode(n Node) ([]byte, error) {
	switch t := n.(type) {
	case nil:
		return nil, fmt.Errorf("failed to encode script: nil node")
	case *Constant:
		if t.Bare {
			return marshal(t.Value)
		}
		return marshalWire(wireNode{PointerType: pointerNumberConstant, ScriptElementType: pointerElement, Value: mustJSON(t.Value)})
	case *BoolConstant:
		if t.Bare {
			return marshal(t.Value)
		}
		return marshalWire(wireNode{PointerType: pointerBoolConstant, ScriptElementType: pointerElement, Value: mustJSON(t.Value)})
	case *StringConstant:
		if t.Bare {
			return marshal(t.Value)
		}
		return marshalWire(wireNode{PointerType: pointerStringConstant, ScriptElementType: pointerElement, Value: mustJSON(t.Value)})
	case *PropertyRef:
		coef := t.Coefficient
		return marshalWire(wireNode{
			PointerType:       pointerProperty,
			ScriptElementType: pointerElement,
			Character:         t.Character,
			Keyring:           []string{t.Property},
			Coefficient:       &coef,
		})
	case *Comparator:
		spelling := t.Spelling
		if op, ok := ParseOperator(spelling); !ok || op != t.Op {
			spelling = t.Op.String()
		}
		return encodeOperator(operatorComparator, spelling, t.Left, t.Right)
	case *And:
		return encodeOperator(operatorAnd, "", t.Operands...)
	case *Or:
		return encodeOperator(operatorOr, "", t.Operands...)
	case *Add:
		return encodeOperator(operatorAdd, "", t.Operands...)
	case *Multiply:
		return encodeOperator(operatorMultiply, "", t.Operands...)
	case *AbsoluteValue:
		return encodeOperator(operatorAbs, "", t.Operand)
	case *Nudge:
		return encodeOperator(operatorNudge, "", t.Current, t.Delta)
	case *Legacy:
		return t.Raw, nil
	case *Malformed:
		if len(t.Raw) == 0 {
			return []byte("null"), nil
		}
		return t.Raw, nil
	default:
		return nil, fmt.Errorf("failed to encode script: unsupported node %T", n)
	}
}

func encodeOperator(opType, subtype string, operands ...Node) ([]byte, error) {
	w := wireNode{
		OperatorType:      opType,
		ScriptElementType: operatorElement,
		OperatorSubtype:   subtype,
		Operands:          make([]json.RawMessage, 0, len(operands)),
	}
	for _, op := range operands {
		data, err := Encode(op)
		if err != nil {
			return nil, err
		}
		w.Operands = append(w.Operands, data)
	}
	// operands:[] must survive even when empty
	type alias wireNode
	out := struct {
		alias
		Operands []json.RawMessage `json:"operands"`
	}{alias: alias(w), Operands: w.Operands}
	return marshal(out)
}

func marshalWire(w wireNode) ([]byte, error) {
	return marshal(w)
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func mustJSON(v any) json.RawMessage {
	data, err := marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// Script wraps a Node so it can sit in a JSON document field
type Script struct {
	Node Node
}

// New wraps n
func New(n Node) *Script { return &Script{Node: n} }

func (s *Script) UnmarshalJSON(data []byte) error {
	n, err := Decode(data)
	if err != nil {
		return err
	}
	s.Node = n
	return nil
}

func (s Script) MarshalJSON() ([]byte, error) {
	if s.Node == nil {
		return []byte("null"), nil
	}
	return Encode(s.Node)
}
