package memdep_test

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/opcodelabs/mirdep/alias"
	"github.com/opcodelabs/mirdep/memdep"
	"github.com/opcodelabs/mirdep/mir"
)

// countingOracle wraps the real oracle and counts MayAlias calls so tests can
// assert that cached queries do not rescan.
type countingOracle struct {
	inner    memdep.Oracle
	mayAlias int
}

func (c *countingOracle) MayAlias(a, b *mir.MIR) bool {
	c.mayAlias++
	return c.inner.MayAlias(a, b)
}

func (c *countingOracle) IsBarrier(i *mir.MIR) bool {
	return c.inner.IsBarrier(i)
}

func newCountingOracle() *countingOracle {
	return &countingOracle{inner: alias.NewOracle(alias.DefaultPolicy())}
}

func parseCFG(t *testing.T, codeHex string) *mir.CFG {
	t.Helper()
	code, err := hex.DecodeString(codeHex)
	require.NoError(t, err)
	cfg := mir.NewCFG(common.Hash{}, code)
	require.NoError(t, cfg.Parse())
	return cfg
}

func findOp(t *testing.T, cfg *mir.CFG, op mir.MirOperation, pc uint) *mir.MIR {
	t.Helper()
	for _, b := range cfg.Blocks() {
		for _, m := range b.Instructions() {
			if m.Op() == op && m.EvmPC() == pc {
				return m
			}
		}
	}
	t.Fatalf("no %s at pc=%d", op, pc)
	return nil
}

func TestLocalDependency(t *testing.T) {
	// PUSH1 0x2a; PUSH1 0; MSTORE; PUSH1 0; MLOAD; STOP
	cfg := parseCFG(t, "602a60005260005100")
	mstore := findOp(t, cfg, mir.MirMSTORE, 4)
	mload := findOp(t, cfg, mir.MirMLOAD, 7)

	a := memdep.NewAnalysis(newCountingOracle())

	res := a.GetDependency(mload)
	require.Equal(t, memdep.Known, res.Kind())
	require.Same(t, mstore, res.Inst())

	// A store with nothing above it in an entry block has no dependency.
	require.Equal(t, memdep.None, a.GetDependency(mstore).Kind())
}

func TestLocalDependencyIsCached(t *testing.T) {
	cfg := parseCFG(t, "602a60005260005100")
	mload := findOp(t, cfg, mir.MirMLOAD, 7)

	oracle := newCountingOracle()
	a := memdep.NewAnalysis(oracle)

	first := a.GetDependency(mload)
	calls := oracle.mayAlias
	require.NotZero(t, calls)

	second := a.GetDependency(mload)
	require.Equal(t, first, second)
	require.Equal(t, calls, oracle.mayAlias, "cached query must not rescan")
}

func TestDisjointStoreSkipped(t *testing.T) {
	// MSTORE at offset 0, MSTORE at offset 0x20, MLOAD at offset 0. The
	// intervening disjoint store must not shadow the real dependency.
	cfg := parseCFG(t, "602a600052602b60205260005100")
	first := findOp(t, cfg, mir.MirMSTORE, 4)
	mload := findOp(t, cfg, mir.MirMLOAD, 12)

	a := memdep.NewAnalysis(newCountingOracle())

	res := a.GetDependency(mload)
	require.Equal(t, memdep.Known, res.Kind())
	require.Same(t, first, res.Inst())
}

func TestHypotheticalQueryFromStart(t *testing.T) {
	cfg := parseCFG(t, "602a600052602b60205260005100")
	first := findOp(t, cfg, mir.MirMSTORE, 4)
	mload := findOp(t, cfg, mir.MirMLOAD, 12)

	oracle := newCountingOracle()
	a := memdep.NewAnalysis(oracle)

	// Re-inserted just above the first store, the load sees nothing.
	res := a.GetDependencyFrom(mload, first, nil)
	require.Equal(t, memdep.None, res.Kind())

	// Hypothetical answers are never cached.
	calls := oracle.mayAlias
	a.GetDependencyFrom(mload, first, nil)
	require.Greater(t, oracle.mayAlias, calls)
}

func TestBarrierPrecedesAliasCheck(t *testing.T) {
	// MSTORE off 0; CALL; MSTORE off 0x20; MLOAD off 0. The load skips the
	// disjoint store but must stop at the call.
	cfg := parseCFG(t, "602a6000526000600060006000600060006000f1602a60205260005100")
	call := findOp(t, cfg, mir.MirCALL, 19)
	mload := findOp(t, cfg, mir.MirMLOAD, 27)

	a := memdep.NewAnalysis(newCountingOracle())

	res := a.GetDependency(mload)
	require.Equal(t, memdep.Known, res.Kind())
	require.Same(t, call, res.Inst())
}

func TestStaticCallDoesNotBlockStorageRead(t *testing.T) {
	// STATICCALL; PUSH1 0; SLOAD. A static call cannot write storage.
	cfg := parseCFG(t, "600060006000600060006000fa60005400")
	sload := findOp(t, cfg, mir.MirSLOAD, 15)

	a := memdep.NewAnalysis(newCountingOracle())
	require.Equal(t, memdep.None, a.GetDependency(sload).Kind())
}

func TestStaticCallBlocksMemoryLoad(t *testing.T) {
	// Same shape with MLOAD: the static call writes returndata into memory.
	cfg := parseCFG(t, "600060006000600060006000fa60005100")
	static := findOp(t, cfg, mir.MirSTATICCALL, 12)
	mload := findOp(t, cfg, mir.MirMLOAD, 15)

	a := memdep.NewAnalysis(newCountingOracle())

	res := a.GetDependency(mload)
	require.Equal(t, memdep.Known, res.Kind())
	require.Same(t, static, res.Inst())
}

// diamond builds:
//
//	b0: JUMPI                     (pc 0..4)
//	b1: SSTORE(0, 1); JUMP merge  (pc 5..12)
//	b2: SSTORE(0, 2); JUMP merge  (pc 13..21)
//	b3: SLOAD(0); STOP            (pc 22..26)
const diamond = "6001600d5760016000556016565b6002600055601656" + "5b60005400"

func TestNonLocalDependencyAcrossDiamond(t *testing.T) {
	cfg := parseCFG(t, diamond)
	storeLeft := findOp(t, cfg, mir.MirSSTORE, 9)
	storeRight := findOp(t, cfg, mir.MirSSTORE, 18)
	sload := findOp(t, cfg, mir.MirSLOAD, 25)

	a := memdep.NewAnalysis(newCountingOracle())

	require.Equal(t, memdep.NonLocal, a.GetDependency(sload).Kind())

	out := make(map[*mir.BasicBlock]memdep.Result)
	a.GetNonLocalDependency(sload, out)

	require.Len(t, out, 2)
	require.Same(t, storeLeft, out[storeLeft.Block()].Inst())
	require.Same(t, storeRight, out[storeRight.Block()].Inst())
}

func TestNonLocalDependencyIsCached(t *testing.T) {
	cfg := parseCFG(t, diamond)
	sload := findOp(t, cfg, mir.MirSLOAD, 25)

	oracle := newCountingOracle()
	a := memdep.NewAnalysis(oracle)

	out := make(map[*mir.BasicBlock]memdep.Result)
	a.GetNonLocalDependency(sload, out)
	calls := oracle.mayAlias

	again := make(map[*mir.BasicBlock]memdep.Result)
	a.GetNonLocalDependency(sload, again)
	require.Equal(t, out, again)
	require.Equal(t, calls, oracle.mayAlias, "cached non-local query must not rescan")
}

func TestLoopSelfDependencyOmitted(t *testing.T) {
	// JUMPDEST; SSTORE(0, 0x2a); JUMP 0. The only thing the store could
	// depend on through the back edge is itself; the result set stays empty.
	cfg := parseCFG(t, "5b602a60005560005600")
	sstore := findOp(t, cfg, mir.MirSSTORE, 5)

	a := memdep.NewAnalysis(newCountingOracle())

	require.Equal(t, memdep.NonLocal, a.GetDependency(sstore).Kind())

	out := make(map[*mir.BasicBlock]memdep.Result)
	a.GetNonLocalDependency(sstore, out)
	require.Empty(t, out)
}

func TestLoopCarriedDependency(t *testing.T) {
	// JUMPDEST; SLOAD(0); POP; SSTORE(0, 0x2a); JUMP 0. The load depends on
	// the store from the previous iteration.
	cfg := parseCFG(t, "5b60005450602a600055600056")
	sload := findOp(t, cfg, mir.MirSLOAD, 3)
	sstore := findOp(t, cfg, mir.MirSSTORE, 9)

	a := memdep.NewAnalysis(newCountingOracle())

	require.Equal(t, memdep.NonLocal, a.GetDependency(sload).Kind())

	out := make(map[*mir.BasicBlock]memdep.Result)
	a.GetNonLocalDependency(sload, out)
	require.Len(t, out, 1)
	require.Same(t, sstore, out[sload.Block()].Inst())
}

func TestMergedOffsetFindsDependency(t *testing.T) {
	// Diamond whose arms leave different constant offsets in the slot the
	// merge block stores through. The store's offset is unknowable, so the
	// load at offset 0 must conservatively depend on it.
	cfg := parseCFG(t, "6001600a5760006010565b60206010565b602a905260005100")
	mstore := findOp(t, cfg, mir.MirMSTORE, 20)
	mload := findOp(t, cfg, mir.MirMLOAD, 23)

	a := memdep.NewAnalysis(newCountingOracle())

	res := a.GetDependency(mload)
	require.Equal(t, memdep.Known, res.Kind())
	require.Same(t, mstore, res.Inst())
}

func TestNonLocalQueryRequiresNonLocalResult(t *testing.T) {
	cfg := parseCFG(t, "602a60005260005100")
	mload := findOp(t, cfg, mir.MirMLOAD, 7)

	a := memdep.NewVerifiedAnalysis(newCountingOracle())
	require.Equal(t, memdep.Known, a.GetDependency(mload).Kind())

	require.Panics(t, func() {
		a.GetNonLocalDependency(mload, make(map[*mir.BasicBlock]memdep.Result))
	})
}

func TestRemoveInstructionInvalidatesLocal(t *testing.T) {
	cfg := parseCFG(t, "602a60005260005100")
	mstore := findOp(t, cfg, mir.MirMSTORE, 4)
	mload := findOp(t, cfg, mir.MirMLOAD, 7)

	a := memdep.NewVerifiedAnalysis(newCountingOracle())

	res := a.GetDependency(mload)
	require.Same(t, mstore, res.Inst())

	mstore.Block().RemoveInstruction(mstore)
	a.RemoveInstruction(mstore)

	require.Equal(t, memdep.None, a.GetDependency(mload).Kind())
}

func TestRemoveInstructionInvalidatesNonLocal(t *testing.T) {
	cfg := parseCFG(t, diamond)
	storeLeft := findOp(t, cfg, mir.MirSSTORE, 9)
	storeRight := findOp(t, cfg, mir.MirSSTORE, 18)
	sload := findOp(t, cfg, mir.MirSLOAD, 25)
	leftBlock := storeLeft.Block()

	a := memdep.NewVerifiedAnalysis(newCountingOracle())

	out := make(map[*mir.BasicBlock]memdep.Result)
	a.GetNonLocalDependency(sload, out)
	require.Len(t, out, 2)

	storeLeft.Block().RemoveInstruction(storeLeft)
	a.RemoveInstruction(storeLeft)

	// The removed store's block no longer resolves; the walk continues past
	// it into the dependency-free entry block.
	out = make(map[*mir.BasicBlock]memdep.Result)
	a.GetNonLocalDependency(sload, out)
	require.Len(t, out, 3)
	require.Equal(t, memdep.NonLocal, out[leftBlock].Kind())
	require.Same(t, storeRight, out[storeRight.Block()].Inst())
	require.Equal(t, memdep.None, out[cfg.Entry()].Kind())
}

func TestDropInstructionForcesRevalidation(t *testing.T) {
	cfg := parseCFG(t, "602a60005260005100")
	mstore := findOp(t, cfg, mir.MirMSTORE, 4)
	mload := findOp(t, cfg, mir.MirMLOAD, 7)

	oracle := newCountingOracle()
	a := memdep.NewAnalysis(oracle)

	res := a.GetDependency(mload)
	require.Same(t, mstore, res.Inst())

	// The store stays in the block; dependents must rescan before trusting
	// their entry, and the rescan confirms the same dependency.
	a.DropInstruction(mstore)
	calls := oracle.mayAlias

	res = a.GetDependency(mload)
	require.Same(t, mstore, res.Inst())
	require.Greater(t, oracle.mayAlias, calls, "dropped dependency must be revalidated")
}

func TestReleaseMemoryResetsCaches(t *testing.T) {
	cfg := parseCFG(t, "602a60005260005100")
	mstore := findOp(t, cfg, mir.MirMSTORE, 4)
	mload := findOp(t, cfg, mir.MirMLOAD, 7)

	oracle := newCountingOracle()
	a := memdep.NewAnalysis(oracle)

	require.Same(t, mstore, a.GetDependency(mload).Inst())

	a.ReleaseMemory()
	calls := oracle.mayAlias

	require.Same(t, mstore, a.GetDependency(mload).Inst())
	require.Greater(t, oracle.mayAlias, calls, "release must discard cached results")
}

func TestQueryInOtherBlock(t *testing.T) {
	cfg := parseCFG(t, diamond)
	storeLeft := findOp(t, cfg, mir.MirSSTORE, 9)
	sload := findOp(t, cfg, mir.MirSLOAD, 25)

	a := memdep.NewAnalysis(newCountingOracle())

	// Scanning the whole of another block from its end.
	res := a.GetDependencyFrom(sload, nil, storeLeft.Block())
	require.Equal(t, memdep.Known, res.Kind())
	require.Same(t, storeLeft, res.Inst())
}
