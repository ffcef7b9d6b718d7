package script

// Helpers for building scripts in code and tests

func Const(v float64) *Constant { return &Constant{Value: v} }

func True() *BoolConstant  { return &BoolConstant{Value: true} }
func False() *BoolConstant { return &BoolConstant{Value: false} }

func Prop(character, property string) *PropertyRef {
	return &PropertyRef{Character: character, Property: property, Coefficient: 1}
}

func Compare(op Operator, left, right Node) *Comparator {
	return &Comparator{Op: op, Spelling: op.String(), Left: left, Right: right}
}

// AtLeast is the common gate shape: character.property >= threshold
func AtLeast(character, property string, threshold float64) *Comparator {
	return Compare(OpGTE, Prop(character, property), Const(threshold))
}

// AtMost is character.property <= threshold
func AtMost(character, property string, threshold float64) *Comparator {
	return Compare(OpLTE, Prop(character, property), Const(threshold))
}

func AllOf(operands ...Node) *And { return &And{Operands: operands} }
func AnyOf(operands ...Node) *Or  { return &Or{Operands: operands} }

// NudgeBy nudges character.property by delta
func NudgeBy(character, property string, delta float64) *Nudge {
	return &Nudge{Current: Prop(character, property), Delta: Const(delta)}
}
