package mir

import (
	"github.com/holiman/uint256"
)

// ValueKind classifies a stack value during CFG construction.
type ValueKind uint8

const (
	// Konst is a compile-time constant (PUSH data or folded arithmetic).
	Konst ValueKind = iota
	// Variable is the result of a MIR instruction.
	Variable
	// Unknown is a value the builder cannot model: a live-in from an
	// unbuilt predecessor or the result of an unmodeled operation.
	Unknown
)

// Value is an operand in the SSA-like stack model of the builder.
type Value struct {
	kind ValueKind
	u    *uint256.Int
	def  *MIR
}

func newConstValue(x *uint256.Int) *Value {
	if x == nil {
		x = uint256.NewInt(0)
	}
	return &Value{kind: Konst, u: new(uint256.Int).Set(x)}
}

func newConstValueBytes(payload []byte) *Value {
	return &Value{kind: Konst, u: uint256.NewInt(0).SetBytes(payload)}
}

func newUnknownValue() *Value {
	return &Value{kind: Unknown}
}

// Kind returns the value's classification.
func (v *Value) Kind() ValueKind {
	if v == nil {
		return Unknown
	}
	return v.kind
}

// Const returns the constant held by the value, if it is a Konst.
func (v *Value) Const() (*uint256.Int, bool) {
	if v == nil || v.kind != Konst || v.u == nil {
		return nil, false
	}
	return new(uint256.Int).Set(v.u), true
}

// Def returns the defining instruction for a Variable value.
func (v *Value) Def() *MIR {
	if v == nil {
		return nil
	}
	return v.def
}

// ValueStack models the EVM operand stack during CFG construction.
type ValueStack struct {
	data []*Value
}

func (s *ValueStack) push(v *Value) {
	s.data = append(s.data, v)
}

// pop returns the top of the stack. Underflow yields an Unknown value so that
// dead code and blocks entered with an unmodeled stack still parse.
func (s *ValueStack) pop() *Value {
	if len(s.data) == 0 {
		return newUnknownValue()
	}
	v := s.data[len(s.data)-1]
	s.data = s.data[:len(s.data)-1]
	return v
}

// peek returns the nth value from the top (0 = top) without removing it.
func (s *ValueStack) peek(n int) *Value {
	if n < 0 || n >= len(s.data) {
		return newUnknownValue()
	}
	return s.data[len(s.data)-1-n]
}

// swap exchanges the values at depths i and j from the top.
func (s *ValueStack) swap(i, j int) {
	n := len(s.data)
	if i < 0 || j < 0 || i >= n || j >= n {
		return
	}
	s.data[n-1-i], s.data[n-1-j] = s.data[n-1-j], s.data[n-1-i]
}

func (s *ValueStack) snapshot() []*Value {
	out := make([]*Value, len(s.data))
	copy(out, s.data)
	return out
}
