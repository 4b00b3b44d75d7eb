package mir

import (
	"fmt"

	"github.com/holiman/uint256"
)

// MIR is a register based intermediate representation of one EVM operation.
// Its identity (the pointer) is what analyses key their caches on; the struct
// never carries analysis state itself.
type MIR struct {
	op       MirOperation
	operands []*Value // in pop order: operands[0] was the stack top
	idx      int      // index within the owning basic block
	block    *BasicBlock
	evmPC    uint // byte offset of the originating EVM opcode
	evmOp    byte // originating EVM opcode byte value
}

// Op returns the MIR operation opcode for this instruction.
func (m *MIR) Op() MirOperation {
	if m == nil {
		return MirINVALID
	}
	return m.op
}

// Block returns the basic block the instruction belongs to, or nil if it has
// been detached.
func (m *MIR) Block() *BasicBlock {
	if m == nil {
		return nil
	}
	return m.block
}

// Index returns the instruction's position within its basic block.
func (m *MIR) Index() int {
	if m == nil {
		return -1
	}
	return m.idx
}

// EvmPC returns the originating EVM program counter for this instruction.
func (m *MIR) EvmPC() uint {
	if m == nil {
		return 0
	}
	return m.evmPC
}

// EvmOp returns the originating EVM opcode byte for this instruction.
func (m *MIR) EvmOp() byte {
	if m == nil {
		return 0
	}
	return m.evmOp
}

// Operands returns the instruction's operands in pop order.
func (m *MIR) Operands() []*Value {
	if m == nil {
		return nil
	}
	return m.operands
}

// ConstOperand returns operand i as a constant, if the builder resolved it to one.
func (m *MIR) ConstOperand(i int) (*uint256.Int, bool) {
	if m == nil || i < 0 || i >= len(m.operands) {
		return nil, false
	}
	return m.operands[i].Const()
}

// IsMemoryOp reports whether the instruction reads or writes addressable state.
func (m *MIR) IsMemoryOp() bool {
	if m == nil {
		return false
	}
	return memoryOps[m.op]
}

func (m *MIR) String() string {
	if m == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s@%d", m.op, m.evmPC)
}

// Result produces a Variable value defined by this instruction.
func (m *MIR) Result() *Value {
	return &Value{kind: Variable, def: m}
}

func tryConstFoldUnary(op MirOperation, aVal *Value) (*Value, bool) {
	a, ok := aVal.Const()
	if !ok {
		return nil, false
	}
	out := new(uint256.Int)
	switch op {
	case MirNOT:
		out.Not(a)
	case MirISZERO:
		if a.IsZero() {
			out.SetOne()
		} else {
			out.Clear()
		}
	default:
		return nil, false
	}
	return newConstValue(out), true
}

// tryConstFoldBinary folds two-operand arithmetic when both inputs are
// constants. Operand order matches pop order: 'a' was the stack top.
func tryConstFoldBinary(op MirOperation, aVal, bVal *Value) (*Value, bool) {
	a, okA := aVal.Const()
	b, okB := bVal.Const()
	if !okA || !okB {
		return nil, false
	}
	out := new(uint256.Int)
	switch op {
	case MirADD:
		out.Add(a, b)
	case MirMUL:
		out.Mul(a, b)
	case MirSUB:
		out.Sub(a, b)
	case MirDIV:
		out.Div(a, b)
	case MirMOD:
		out.Mod(a, b)
	case MirEXP:
		out.Exp(a, b)
	case MirLT:
		if a.Lt(b) {
			out.SetOne()
		} else {
			out.Clear()
		}
	case MirGT:
		if a.Gt(b) {
			out.SetOne()
		} else {
			out.Clear()
		}
	case MirEQ:
		if a.Eq(b) {
			out.SetOne()
		} else {
			out.Clear()
		}
	case MirAND:
		out.And(a, b)
	case MirOR:
		out.Or(a, b)
	case MirXOR:
		out.Xor(a, b)
	case MirSHL:
		out.Lsh(b, uint(a.Uint64()))
	case MirSHR:
		out.Rsh(b, uint(a.Uint64()))
	default:
		return nil, false
	}
	return newConstValue(out), true
}
