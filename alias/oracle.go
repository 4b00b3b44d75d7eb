// Package alias implements the EVM alias oracle consumed by memdep. It
// decides whether two MIR memory operations can access overlapping state,
// using region partitioning and constant-offset reasoning; everything it
// cannot prove disjoint is reported as a possible alias.
package alias

import (
	"github.com/opcodelabs/mirdep/mir"
)

// region identifies one of the EVM's disjoint address spaces. Accesses in
// different regions never alias.
type region uint8

const (
	regMemory region = iota
	regStorage
	regTransient
	regCalldata
	regReturndata
	regCode
)

// access is one region touch of an instruction: an optional constant byte
// range for linear regions, or an optional constant slot for keyed ones.
type access struct {
	region region
	write  bool

	// Linear regions. known=false means the whole region.
	rangeKnown bool
	off, size  uint64

	// Keyed regions. slotKnown=false means any slot.
	slotKnown bool
	slot      [32]byte
}

// EVMOracle answers alias queries over MIR instructions.
type EVMOracle struct {
	policy Policy
}

// NewOracle creates an oracle with the given policy.
func NewOracle(p Policy) *EVMOracle {
	return &EVMOracle{policy: p}
}

// IsBarrier reports whether the instruction transfers control to external
// code and so conservatively clobbers all memory.
func (o *EVMOracle) IsBarrier(i *mir.MIR) bool {
	switch i.Op() {
	case mir.MirCALL, mir.MirCALLCODE, mir.MirDELEGATECALL, mir.MirSTATICCALL,
		mir.MirCREATE, mir.MirCREATE2, mir.MirSELFDESTRUCT:
		return true
	}
	return false
}

// MayAlias reports whether a and b may interact: overlapping accesses with at
// least one write, or a barrier that cannot be proven independent.
func (o *EVMOracle) MayAlias(a, b *mir.MIR) bool {
	if o.IsBarrier(a) || o.IsBarrier(b) {
		return o.barrierMayAlias(a, b)
	}

	accA := accessesOf(a)
	accB := accessesOf(b)
	if len(accA) == 0 || len(accB) == 0 {
		// Unmodeled memory operation: assume interaction.
		return true
	}
	for _, x := range accA {
		for _, y := range accB {
			if overlap(x, y, o.policy) {
				return true
			}
		}
	}
	return false
}

// barrierMayAlias handles pairs where at least one side is call-like. A
// static call cannot write storage or transient storage, so pure reads of
// those regions are independent of it; everything else interacts.
func (o *EVMOracle) barrierMayAlias(a, b *mir.MIR) bool {
	if o.IsBarrier(a) && o.IsBarrier(b) {
		return true
	}
	bar, other := a, b
	if o.IsBarrier(b) {
		bar, other = b, a
	}
	if o.policy.StaticCallRefinement && bar.Op() == mir.MirSTATICCALL && isPureStorageRead(other) {
		return false
	}
	return true
}

func isPureStorageRead(m *mir.MIR) bool {
	switch m.Op() {
	case mir.MirSLOAD, mir.MirTLOAD:
		return true
	}
	return false
}

// overlap reports whether two accesses can touch the same state with at
// least one write involved.
func overlap(x, y access, p Policy) bool {
	if x.region != y.region {
		return false
	}
	if !x.write && !y.write {
		// Two reads never order each other.
		return false
	}
	if !p.DisjointOffsets {
		return true
	}
	switch x.region {
	case regStorage, regTransient:
		if x.slotKnown && y.slotKnown {
			return x.slot == y.slot
		}
		return true
	default:
		if x.rangeKnown && y.rangeKnown {
			return x.off < y.off+y.size && y.off < x.off+x.size
		}
		return true
	}
}

// linearAccess builds a byte-range access from constant offset/size operands.
func linearAccess(m *mir.MIR, reg region, write bool, offIdx int, size uint64, sizeIdx int) access {
	a := access{region: reg, write: write}
	off, okOff := m.ConstOperand(offIdx)
	if sizeIdx >= 0 {
		sz, okSz := m.ConstOperand(sizeIdx)
		if !okSz {
			return a
		}
		szU, ovf := sz.Uint64WithOverflow()
		if ovf {
			return a
		}
		size = szU
	}
	if !okOff {
		return a
	}
	offU, ovf := off.Uint64WithOverflow()
	if ovf {
		return a
	}
	a.rangeKnown = true
	a.off = offU
	a.size = size
	return a
}

func slotAccess(m *mir.MIR, reg region, write bool, slotIdx int) access {
	a := access{region: reg, write: write}
	if slot, ok := m.ConstOperand(slotIdx); ok {
		a.slotKnown = true
		a.slot = slot.Bytes32()
	}
	return a
}

// accessesOf models the state touched by one instruction. Operand indices
// follow pop order (index 0 was the stack top). An empty result means the
// instruction is not modeled and must be treated conservatively.
func accessesOf(m *mir.MIR) []access {
	switch m.Op() {
	case mir.MirMLOAD:
		return []access{linearAccess(m, regMemory, false, 0, 32, -1)}
	case mir.MirMSTORE:
		return []access{linearAccess(m, regMemory, true, 0, 32, -1)}
	case mir.MirMSTORE8:
		return []access{linearAccess(m, regMemory, true, 0, 1, -1)}
	case mir.MirMCOPY:
		// dest, src, size
		return []access{
			linearAccess(m, regMemory, true, 0, 0, 2),
			linearAccess(m, regMemory, false, 1, 0, 2),
		}
	case mir.MirKECCAK256:
		// offset, size
		return []access{linearAccess(m, regMemory, false, 0, 0, 1)}
	case mir.MirSLOAD:
		return []access{slotAccess(m, regStorage, false, 0)}
	case mir.MirSSTORE:
		return []access{slotAccess(m, regStorage, true, 0)}
	case mir.MirTLOAD:
		return []access{slotAccess(m, regTransient, false, 0)}
	case mir.MirTSTORE:
		return []access{slotAccess(m, regTransient, true, 0)}
	case mir.MirCALLDATALOAD:
		return []access{{region: regCalldata}}
	case mir.MirCALLDATACOPY:
		// dest, offset, size
		return []access{
			linearAccess(m, regMemory, true, 0, 0, 2),
			{region: regCalldata},
		}
	case mir.MirCODECOPY:
		return []access{
			linearAccess(m, regMemory, true, 0, 0, 2),
			{region: regCode},
		}
	case mir.MirEXTCODECOPY:
		// address, dest, offset, size
		return []access{
			linearAccess(m, regMemory, true, 1, 0, 3),
			{region: regCode},
		}
	case mir.MirRETURNDATACOPY:
		return []access{
			linearAccess(m, regMemory, true, 0, 0, 2),
			{region: regReturndata},
		}
	case mir.MirLOG0, mir.MirLOG1, mir.MirLOG2, mir.MirLOG3, mir.MirLOG4:
		// offset, size, topics...
		return []access{linearAccess(m, regMemory, false, 0, 0, 1)}
	case mir.MirRETURN, mir.MirREVERT:
		return []access{linearAccess(m, regMemory, false, 0, 0, 1)}
	}
	return nil
}
