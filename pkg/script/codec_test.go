package script

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeShapes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, n Node)
	}{
		{
			name:  "bounded number constant",
			input: `{"pointer_type":"Bounded Number Constant","script_element_type":"Pointer","value":0.35}`,
			check: func(t *testing.T, n Node) {
				c, ok := n.(*Constant)
				require.True(t, ok)
				assert.Equal(t, 0.35, c.Value)
				assert.False(t, c.Bare)
			},
		},
		{
			name:  "bare true",
			input: `true`,
			check: func(t *testing.T, n Node) {
				b, ok := n.(*BoolConstant)
				require.True(t, ok)
				assert.True(t, b.Value)
				assert.True(t, b.Bare)
			},
		},
		{
			name:  "bare number",
			input: `0.001`,
			check: func(t *testing.T, n Node) {
				c, ok := n.(*Constant)
				require.True(t, ok)
				assert.Equal(t, 0.001, c.Value)
			},
		},
		{
			name:  "pointer defaults coefficient",
			input: `{"pointer_type":"Bounded Number Pointer","script_element_type":"Pointer","character":"hero","keyring":["Calm"]}`,
			check: func(t *testing.T, n Node) {
				p, ok := n.(*PropertyRef)
				require.True(t, ok)
				assert.Equal(t, "hero", p.Character)
				assert.Equal(t, "Calm", p.Property)
				assert.Equal(t, 1.0, p.Coefficient)
			},
		},
		{
			name: "comparator short subtype",
			input: `{"operator_type":"Arithmetic Comparator","script_element_type":"Operator","operator_subtype":"GTE","operands":[
				{"pointer_type":"Bounded Number Pointer","character":"hero","keyring":["Calm"],"coefficient":1.0},
				{"pointer_type":"Bounded Number Constant","value":0.2}]}`,
			check: func(t *testing.T, n Node) {
				c, ok := n.(*Comparator)
				require.True(t, ok)
				assert.Equal(t, OpGTE, c.Op)
				assert.Equal(t, "GTE", c.Spelling)
			},
		},
		{
			name:  "unknown comparator subtype",
			input: `{"operator_type":"Arithmetic Comparator","operator_subtype":"Roughly","operands":[1,2]}`,
			check: func(t *testing.T, n Node) {
				_, ok := n.(*Malformed)
				assert.True(t, ok)
			},
		},
		{
			name:  "nudge with wrong arity",
			input: `{"operator_type":"Nudge","operands":[1]}`,
			check: func(t *testing.T, n Node) {
				_, ok := n.(*Malformed)
				assert.True(t, ok)
			},
		},
		{
			name:  "unknown object with value is legacy",
			input: `{"pointer_type":"Spooky Constant","value":0.5}`,
			check: func(t *testing.T, n Node) {
				l, ok := n.(*Legacy)
				require.True(t, ok)
				assert.Equal(t, Number(0.5), l.Value)
			},
		},
		{
			name:  "unknown object without value is malformed",
			input: `{"operator_type":"Exponent","operands":[]}`,
			check: func(t *testing.T, n Node) {
				_, ok := n.(*Malformed)
				assert.True(t, ok)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			tt.check(t, n)
		})
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{"pointer_type":`))
	assert.Error(t, err)

	_, err = Decode(nil)
	assert.Error(t, err)
}

func TestEncodeRoundTrip(t *testing.T) {
	inputs := []string{
		`true`,
		`0.5`,
		`{"pointer_type":"Bounded Number Constant","script_element_type":"Pointer","value":0.35}`,
		`{"operator_type":"Arithmetic Comparator","script_element_type":"Operator","operator_subtype":"LTE","operands":[{"pointer_type":"Bounded Number Pointer","script_element_type":"Pointer","character":"hero","keyring":["Calm"],"coefficient":-1},{"pointer_type":"Bounded Number Constant","script_element_type":"Pointer","value":0.2}]}`,
		`{"operator_type":"Or","script_element_type":"Operator","operands":[true,false]}`,
		`{"operator_type":"And","script_element_type":"Operator","operands":[]}`,
		`{"pointer_type":"Spooky Constant","value":0.5,"extra":"kept"}`,
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			n, err := Decode([]byte(input))
			require.NoError(t, err)

			out, err := Encode(n)
			require.NoError(t, err)
			assert.JSONEq(t, input, string(out))
		})
	}
}

func TestScriptFieldJSON(t *testing.T) {
	type holder struct {
		Gate *Script `json:"gate,omitempty"`
	}

	var h holder
	require.NoError(t, json.Unmarshal([]byte(`{"gate":{"operator_type":"Absolute Value","operands":[-0.5]}}`), &h))
	require.NotNil(t, h.Gate)
	v, err := Evaluate(h.Gate.Node, mapState{})
	require.NoError(t, err)
	assert.Equal(t, Number(0.5), v)

	var empty holder
	require.NoError(t, json.Unmarshal([]byte(`{}`), &empty))
	assert.Nil(t, empty.Gate)
	out, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(out))
}
