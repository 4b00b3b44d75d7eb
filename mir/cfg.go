package mir

import (
	"github.com/ethereum/go-ethereum/common"
)

// CFG records the control flow of one contract's code: basic blocks, their
// edges, and the MIR instruction stream of each block. It is keyed by the
// code hash so callers can cache one CFG per deployed code blob.
type CFG struct {
	codeAddr        common.Hash
	rawCode         []byte
	basicBlocks     []*BasicBlock
	basicBlockCount uint

	// Mapping from EVM PC to the BasicBlock starting at that PC.
	pcToBlock map[uint]*BasicBlock
	// Valid JUMPDEST positions.
	jumpDests map[uint]bool
}

// opInfo describes the stack effect of a straight-line opcode.
type opInfo struct {
	mirOp  MirOperation
	pops   int
	pushes int
	fold   bool // eligible for build-time constant folding
}

var opTable = map[ByteCode]opInfo{
	ADD:        {MirADD, 2, 1, true},
	MUL:        {MirMUL, 2, 1, true},
	SUB:        {MirSUB, 2, 1, true},
	DIV:        {MirDIV, 2, 1, true},
	SDIV:       {MirSDIV, 2, 1, false},
	MOD:        {MirMOD, 2, 1, true},
	SMOD:       {MirSMOD, 2, 1, false},
	ADDMOD:     {MirADDMOD, 3, 1, false},
	MULMOD:     {MirMULMOD, 3, 1, false},
	EXP:        {MirEXP, 2, 1, true},
	SIGNEXTEND: {MirSIGNEXT, 2, 1, false},
	LT:         {MirLT, 2, 1, true},
	GT:         {MirGT, 2, 1, true},
	SLT:        {MirSLT, 2, 1, false},
	SGT:        {MirSGT, 2, 1, false},
	EQ:         {MirEQ, 2, 1, true},
	ISZERO:     {MirISZERO, 1, 1, true},
	AND:        {MirAND, 2, 1, true},
	OR:         {MirOR, 2, 1, true},
	XOR:        {MirXOR, 2, 1, true},
	NOT:        {MirNOT, 1, 1, true},
	BYTE:       {MirBYTE, 2, 1, false},
	SHL:        {MirSHL, 2, 1, true},
	SHR:        {MirSHR, 2, 1, true},
	SAR:        {MirSAR, 2, 1, false},

	KECCAK256: {MirKECCAK256, 2, 1, false},

	ADDRESS:        {MirADDRESS, 0, 1, false},
	BALANCE:        {MirBALANCE, 1, 1, false},
	ORIGIN:         {MirORIGIN, 0, 1, false},
	CALLER:         {MirCALLER, 0, 1, false},
	CALLVALUE:      {MirCALLVALUE, 0, 1, false},
	CALLDATALOAD:   {MirCALLDATALOAD, 1, 1, false},
	CALLDATASIZE:   {MirCALLDATASIZE, 0, 1, false},
	CALLDATACOPY:   {MirCALLDATACOPY, 3, 0, false},
	CODESIZE:       {MirCODESIZE, 0, 1, false},
	CODECOPY:       {MirCODECOPY, 3, 0, false},
	GASPRICE:       {MirGASPRICE, 0, 1, false},
	EXTCODESIZE:    {MirEXTCODESIZE, 1, 1, false},
	EXTCODECOPY:    {MirEXTCODECOPY, 4, 0, false},
	RETURNDATASIZE: {MirRETURNDATASIZE, 0, 1, false},
	RETURNDATACOPY: {MirRETURNDATACOPY, 3, 0, false},
	EXTCODEHASH:    {MirEXTCODEHASH, 1, 1, false},

	BLOCKHASH:   {MirBLOCKHASH, 1, 1, false},
	COINBASE:    {MirCOINBASE, 0, 1, false},
	TIMESTAMP:   {MirTIMESTAMP, 0, 1, false},
	NUMBER:      {MirNUMBER, 0, 1, false},
	PREVRANDAO:  {MirPREVRANDAO, 0, 1, false},
	GASLIMIT:    {MirGASLIMIT, 0, 1, false},
	CHAINID:     {MirCHAINID, 0, 1, false},
	SELFBALANCE: {MirSELFBALANCE, 0, 1, false},
	BASEFEE:     {MirBASEFEE, 0, 1, false},
	BLOBHASH:    {MirBLOBHASH, 1, 1, false},
	BLOBBASEFEE: {MirBLOBBASEFEE, 0, 1, false},

	MLOAD:   {MirMLOAD, 1, 1, false},
	MSTORE:  {MirMSTORE, 2, 0, false},
	MSTORE8: {MirMSTORE8, 2, 0, false},
	SLOAD:   {MirSLOAD, 1, 1, false},
	SSTORE:  {MirSSTORE, 2, 0, false},
	PC:      {MirPC, 0, 1, false},
	MSIZE:   {MirMSIZE, 0, 1, false},
	GAS:     {MirGAS, 0, 1, false},
	TLOAD:   {MirTLOAD, 1, 1, false},
	TSTORE:  {MirTSTORE, 2, 0, false},
	MCOPY:   {MirMCOPY, 3, 0, false},

	LOG0: {MirLOG0, 2, 0, false},
	LOG1: {MirLOG1, 3, 0, false},
	LOG2: {MirLOG2, 4, 0, false},
	LOG3: {MirLOG3, 5, 0, false},
	LOG4: {MirLOG4, 6, 0, false},

	CREATE:       {MirCREATE, 3, 1, false},
	CALL:         {MirCALL, 7, 1, false},
	CALLCODE:     {MirCALLCODE, 7, 1, false},
	DELEGATECALL: {MirDELEGATECALL, 6, 1, false},
	CREATE2:      {MirCREATE2, 4, 1, false},
	STATICCALL:   {MirSTATICCALL, 6, 1, false},
}

// terminators end a basic block with no fallthrough.
var terminators = map[ByteCode]opInfo{
	STOP:         {MirSTOP, 0, 0, false},
	RETURN:       {MirRETURN, 2, 0, false},
	REVERT:       {MirREVERT, 2, 0, false},
	INVALID:      {MirINVALID, 0, 0, false},
	SELFDESTRUCT: {MirSELFDESTRUCT, 1, 0, false},
}

// NewCFG builds an empty CFG for the given code.
func NewCFG(hash common.Hash, code []byte) *CFG {
	return &CFG{
		codeAddr:  hash,
		rawCode:   code,
		pcToBlock: make(map[uint]*BasicBlock),
		jumpDests: make(map[uint]bool),
	}
}

// CodeAddr returns the code hash the CFG was built for.
func (c *CFG) CodeAddr() common.Hash {
	return c.codeAddr
}

// Blocks returns all basic blocks in creation (PC) order.
func (c *CFG) Blocks() []*BasicBlock {
	return c.basicBlocks
}

// Entry returns the block starting at PC 0.
func (c *CFG) Entry() *BasicBlock {
	return c.pcToBlock[0]
}

// BlockAtPC returns the block starting at the given PC, or nil.
func (c *CFG) BlockAtPC(pc uint) *BasicBlock {
	return c.pcToBlock[pc]
}

func (c *CFG) addBlock(block *BasicBlock) {
	c.basicBlocks = append(c.basicBlocks, block)
	c.basicBlockCount++
	c.pcToBlock[block.firstPC] = block
}

func (c *CFG) getOrCreateBlock(pc uint) *BasicBlock {
	if block, exists := c.pcToBlock[pc]; exists {
		return block
	}
	newBlock := NewBasicBlock(c.basicBlockCount, pc)
	c.addBlock(newBlock)
	return newBlock
}

// preScanBlocks identifies all block start PCs: PC 0, every JUMPDEST, and the
// instruction following a terminator or branch. It creates the block stubs in
// PC order so block numbering is deterministic.
func (c *CFG) preScanBlocks() {
	c.getOrCreateBlock(0)

	code := c.rawCode
	i := 0
	for i < len(code) {
		op := ByteCode(code[i])

		if op == JUMPDEST {
			c.jumpDests[uint(i)] = true
			c.getOrCreateBlock(uint(i))
		}

		var nextPC int
		isTerminatorOrBranch := false
		if op >= PUSH1 && op <= PUSH32 {
			nextPC = i + 1 + int(op-PUSH1) + 1
		} else {
			nextPC = i + 1
			switch op {
			case STOP, RETURN, REVERT, INVALID, SELFDESTRUCT, JUMP, JUMPI:
				isTerminatorOrBranch = true
			}
		}

		if isTerminatorOrBranch && nextPC < len(code) {
			c.getOrCreateBlock(uint(nextPC))
		}
		i = nextPC
	}
}

// Parse builds the control flow graph from the raw EVM code.
func (c *CFG) Parse() error {
	c.preScanBlocks()

	// Worklist over reachable blocks, entry first.
	queue := []*BasicBlock{c.Entry()}
	for len(queue) > 0 {
		block := queue[0]
		queue = queue[1:]
		if block.built {
			continue
		}
		if err := c.buildBlock(block); err != nil {
			return err
		}
		queue = append(queue, block.children...)
	}

	// Blocks not reached through resolved edges (dynamic jump targets, dead
	// code) are still decoded so queries against them behave.
	for _, block := range c.basicBlocks {
		if block.built {
			continue
		}
		if err := c.buildBlock(block); err != nil {
			return err
		}
	}
	return nil
}

// entryStackFor seeds a block's working stack by merging the exit snapshots
// of its predecessors, aligned from the top of the stack. A slot keeps a
// constant only when every predecessor has been built and agrees on it; a
// disagreement, or an unbuilt predecessor, degrades the slot to Unknown.
// Blocks with no built predecessor start empty and rely on pop-underflow
// yielding Unknowns.
func (c *CFG) entryStackFor(block *BasicBlock) *ValueStack {
	stack := new(ValueStack)
	if block.blockNum == 0 {
		return stack
	}
	var snaps [][]*Value
	complete := true
	for _, parent := range block.parents {
		if parent.exitStack == nil {
			complete = false
			continue
		}
		snaps = append(snaps, parent.exitStack)
	}
	if len(snaps) == 0 {
		return stack
	}
	depth := len(snaps[0])
	for _, s := range snaps[1:] {
		if len(s) < depth {
			depth = len(s)
		}
	}
	for d := depth - 1; d >= 0; d-- {
		stack.push(mergeSlot(snaps, d, complete))
	}
	return stack
}

// mergeSlot merges one stack slot, addressed by depth from the top, across
// the predecessor snapshots.
func mergeSlot(snaps [][]*Value, fromTop int, complete bool) *Value {
	if !complete {
		return newUnknownValue()
	}
	u, ok := snaps[0][len(snaps[0])-1-fromTop].Const()
	if !ok {
		return newUnknownValue()
	}
	for _, s := range snaps[1:] {
		w, ok := s[len(s)-1-fromTop].Const()
		if !ok || !w.Eq(u) {
			return newUnknownValue()
		}
	}
	return newConstValue(u)
}

func (c *CFG) link(parent, child *BasicBlock) {
	parent.SetChildren([]*BasicBlock{child})
	child.SetParents([]*BasicBlock{parent})
}

func (c *CFG) finishBlock(b *BasicBlock, stack *ValueStack, lastPC uint) {
	b.lastPC = lastPC
	b.exitStack = stack.snapshot()
	b.built = true
}

func (c *CFG) buildBlock(b *BasicBlock) error {
	code := c.rawCode
	codeLen := uint(len(code))
	stack := c.entryStackFor(b)

	pc := b.firstPC
	lastPC := pc
	for pc < codeLen {
		// Fallthrough into a known block boundary (JUMPDEST or post-branch
		// start) ends this block.
		if pc != b.firstPC {
			if next, ok := c.pcToBlock[pc]; ok {
				c.link(b, next)
				c.finishBlock(b, stack, lastPC)
				return nil
			}
		}

		op := ByteCode(code[pc])
		lastPC = pc

		switch {
		case op == PUSH0:
			stack.push(newConstValueBytes(nil))
			pc++

		case op >= PUSH1 && op <= PUSH32:
			size := uint(op-PUSH1) + 1
			end := pc + 1 + size
			if end > codeLen {
				end = codeLen // truncated PUSH reads implicit zero bytes
			}
			stack.push(newConstValueBytes(code[pc+1 : end]))
			pc += 1 + size

		case op >= DUP1 && op <= DUP16:
			stack.push(stack.peek(int(op - DUP1)))
			pc++

		case op >= SWAP1 && op <= SWAP16:
			stack.swap(0, int(op-SWAP1)+1)
			pc++

		case op == POP:
			stack.pop()
			pc++

		case op == JUMPDEST:
			// Only reachable at firstPC; mid-block JUMPDESTs are block
			// boundaries handled above.
			pc++

		case op == JUMP:
			dest := stack.pop()
			b.emit(MirJUMP, pc, byte(op), []*Value{dest})
			c.linkJumpTarget(b, dest)
			c.finishBlock(b, stack, pc)
			return nil

		case op == JUMPI:
			dest := stack.pop()
			cond := stack.pop()
			b.emit(MirJUMPI, pc, byte(op), []*Value{dest, cond})
			c.linkJumpTarget(b, dest)
			if pc+1 < codeLen {
				c.link(b, c.getOrCreateBlock(pc+1))
			}
			c.finishBlock(b, stack, pc)
			return nil

		default:
			if info, ok := terminators[op]; ok {
				operands := popN(stack, info.pops)
				b.emit(info.mirOp, pc, byte(op), operands)
				c.finishBlock(b, stack, pc)
				return nil
			}
			info, ok := opTable[op]
			if !ok {
				// Undefined opcode (or a data byte decoded as code): the EVM
				// aborts here, so the block ends as INVALID.
				b.emit(MirINVALID, pc, byte(op), nil)
				c.finishBlock(b, stack, pc)
				return nil
			}
			c.emitSimpleOp(b, info, stack, pc, byte(op))
			pc++
		}
	}

	// Ran off the end of code: implicit STOP.
	b.emit(MirSTOP, codeLen, byte(STOP), nil)
	c.finishBlock(b, stack, lastPC)
	return nil
}

// emitSimpleOp handles every straight-line opcode: pop operands, fold if all
// are constants, otherwise emit a MIR and push its result for producers.
func (c *CFG) emitSimpleOp(b *BasicBlock, info opInfo, stack *ValueStack, pc uint, evmOp byte) {
	operands := popN(stack, info.pops)
	if info.fold {
		var folded *Value
		var ok bool
		switch info.pops {
		case 1:
			folded, ok = tryConstFoldUnary(info.mirOp, operands[0])
		case 2:
			folded, ok = tryConstFoldBinary(info.mirOp, operands[0], operands[1])
		}
		if ok {
			stack.push(folded)
			return
		}
	}
	m := b.emit(info.mirOp, pc, evmOp, operands)
	if info.pushes == 1 {
		stack.push(m.Result())
	}
}

// linkJumpTarget connects a constant jump destination; dynamic destinations
// mark the block unresolved and create no edge.
func (c *CFG) linkJumpTarget(b *BasicBlock, dest *Value) {
	d, ok := dest.Const()
	if !ok {
		b.unresolvedJump = true
		return
	}
	target, overflow := d.Uint64WithOverflow()
	if overflow || !c.jumpDests[uint(target)] {
		// Invalid destination aborts at runtime; no edge to record.
		return
	}
	c.link(b, c.getOrCreateBlock(uint(target)))
}

func popN(stack *ValueStack, n int) []*Value {
	if n == 0 {
		return nil
	}
	operands := make([]*Value, n)
	for i := 0; i < n; i++ {
		operands[i] = stack.pop()
	}
	return operands
}
