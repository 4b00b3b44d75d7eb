package mir

// bitmap is a bit map which maps basic blocks to a bit, used to deduplicate
// parent/child edges cheaply.
type bitmap []byte

func (bits *bitmap) ensure(pos uint64) {
	need := int(pos/8) + 1
	if need <= len(*bits) {
		return
	}
	*bits = append(*bits, make([]byte, need-len(*bits))...)
}

func (bits *bitmap) set1(pos uint64) {
	bits.ensure(pos)
	(*bits)[pos/8] |= 1 << (pos % 8)
}

func (bits *bitmap) isBitSet(pos uint64) bool {
	idx := int(pos / 8)
	if idx >= len(*bits) {
		return false
	}
	return (((*bits)[idx] >> (pos % 8)) & 1) == 1
}

// BasicBlock is a straight-line sequence of MIR instructions with
// predecessor (parent) and successor (child) edges.
type BasicBlock struct {
	blockNum       uint
	firstPC        uint
	lastPC         uint
	parentsBitmap  *bitmap
	childrenBitmap *bitmap
	parents        []*BasicBlock
	children       []*BasicBlock
	instructions   []*MIR
	// exitStack is the stack snapshot at block exit, used to seed children.
	exitStack []*Value
	// built is set after the block body has been decoded.
	built bool
	// unresolvedJump indicates the block ends in a JUMP/JUMPI whose
	// destination could not be resolved to a constant at build time.
	unresolvedJump bool
}

// NewBasicBlock creates an empty block starting at the given PC.
func NewBasicBlock(blockNum, pc uint) *BasicBlock {
	return &BasicBlock{
		blockNum:       blockNum,
		firstPC:        pc,
		parentsBitmap:  &bitmap{0},
		childrenBitmap: &bitmap{0},
		instructions:   []*MIR{},
	}
}

func (b *BasicBlock) BlockNum() uint { return b.blockNum }

func (b *BasicBlock) FirstPC() uint { return b.firstPC }

func (b *BasicBlock) LastPC() uint { return b.lastPC }

// Size returns the number of MIR instructions in this block.
func (b *BasicBlock) Size() uint {
	return uint(len(b.instructions))
}

// Instructions returns the MIR instructions within this basic block in
// program order.
func (b *BasicBlock) Instructions() []*MIR {
	return b.instructions
}

// Parents returns the block's predecessors.
func (b *BasicBlock) Parents() []*BasicBlock {
	return b.parents
}

// Children returns the block's successors.
func (b *BasicBlock) Children() []*BasicBlock {
	return b.children
}

// SetParents records predecessor edges, skipping duplicates.
func (b *BasicBlock) SetParents(parents []*BasicBlock) {
	for _, parent := range parents {
		if !b.parentsBitmap.isBitSet(uint64(parent.blockNum)) {
			b.parentsBitmap.set1(uint64(parent.blockNum))
			b.parents = append(b.parents, parent)
		}
	}
}

// SetChildren records successor edges, skipping duplicates.
func (b *BasicBlock) SetChildren(children []*BasicBlock) {
	for _, child := range children {
		if !b.childrenBitmap.isBitSet(uint64(child.blockNum)) {
			b.childrenBitmap.set1(uint64(child.blockNum))
			b.children = append(b.children, child)
		}
	}
}

// UnresolvedJump reports whether the block's terminator target could not be
// resolved at build time.
func (b *BasicBlock) UnresolvedJump() bool {
	return b.unresolvedJump
}

// appendMIR anchors the instruction in this block and assigns its index.
func (b *BasicBlock) appendMIR(m *MIR) *MIR {
	m.idx = len(b.instructions)
	m.block = b
	b.instructions = append(b.instructions, m)
	return m
}

// emit creates an instruction from decoded operands and appends it.
func (b *BasicBlock) emit(op MirOperation, pc uint, evmOp byte, operands []*Value) *MIR {
	m := &MIR{op: op, operands: operands, evmPC: pc, evmOp: evmOp}
	return b.appendMIR(m)
}

// RemoveInstruction detaches m from the block and reindexes the remainder.
// Callers that maintain a dependence analysis over this block must notify it
// (memdep.Analysis.RemoveInstruction) before or after this call; the IR does
// not do so itself.
func (b *BasicBlock) RemoveInstruction(m *MIR) {
	if m == nil || m.block != b {
		return
	}
	at := m.idx
	if at < 0 || at >= len(b.instructions) || b.instructions[at] != m {
		return
	}
	b.instructions = append(b.instructions[:at], b.instructions[at+1:]...)
	for i := at; i < len(b.instructions); i++ {
		b.instructions[i].idx = i
	}
	m.block = nil
	m.idx = -1
}
