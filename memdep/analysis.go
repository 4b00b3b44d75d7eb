package memdep

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/opcodelabs/mirdep/mir"
)

// Oracle answers the two aliasing questions the analysis needs. It is
// consumed, never implemented, here; see the alias package for the EVM one.
type Oracle interface {
	// MayAlias reports whether a and b may access overlapping state in a way
	// that orders them (at least one side writing, or a barrier involved).
	MayAlias(a, b *mir.MIR) bool
	// IsBarrier reports whether the instruction is call-like and
	// conservatively clobbers all memory unless proven otherwise.
	IsBarrier(i *mir.MIR) bool
}

type localEntry struct {
	res Result
	// confirmed entries were derived by a full scan; unconfirmed ones were
	// installed conservatively (by DropInstruction) and are re-derived on
	// the next access instead of being trusted.
	confirmed bool
}

// Analysis is the memory dependence cache for one function body (one CFG).
// It is stateful and not safe for concurrent use; use one instance per CFG,
// owned by the pass driving it.
type Analysis struct {
	oracle Oracle

	// local maps a query instruction to its nearest same-block dependency.
	local map[*mir.MIR]localEntry
	// nonLocal maps a query instruction to its per-predecessor-block results.
	nonLocal map[*mir.MIR]map[*mir.BasicBlock]Result

	// Reverse indices from a dependency target to the instructions that
	// recorded it, maintained alongside every forward write so invalidation
	// cost is proportional to the number of dependents.
	reverseLocal    map[*mir.MIR]map[*mir.MIR]struct{}
	reverseNonLocal map[*mir.MIR]map[*mir.MIR]struct{}

	// verify enables the internal consistency assertions after removals.
	verify bool
}

// NewAnalysis creates an empty-cache analysis over the given oracle.
func NewAnalysis(oracle Oracle) *Analysis {
	a := &Analysis{oracle: oracle}
	a.ReleaseMemory()
	return a
}

// NewVerifiedAnalysis is NewAnalysis with internal consistency assertions
// enabled; breaches panic. Intended for tests and debug builds.
func NewVerifiedAnalysis(oracle Oracle) *Analysis {
	a := NewAnalysis(oracle)
	a.verify = true
	return a
}

// ReleaseMemory clears all caches and reverse indices unconditionally. The
// analysis afterwards behaves as freshly constructed; call it between uses on
// different functions.
func (a *Analysis) ReleaseMemory() {
	a.local = make(map[*mir.MIR]localEntry)
	a.nonLocal = make(map[*mir.MIR]map[*mir.BasicBlock]Result)
	a.reverseLocal = make(map[*mir.MIR]map[*mir.MIR]struct{})
	a.reverseNonLocal = make(map[*mir.MIR]map[*mir.MIR]struct{})
}

// GetDependency returns the nearest preceding memory operation the query may
// depend on within its own block: Known(dep), NonLocal if the scan reached
// the block top with predecessors remaining, or None at an entry block.
func (a *Analysis) GetDependency(query *mir.MIR) Result {
	if e, ok := a.local[query]; ok {
		if e.confirmed && e.res.kind != Dirty {
			return e.res
		}
		// Dirty tombstone or unconfirmed entry: drop it (and its reverse
		// edge) and re-derive from scratch.
		a.evictLocal(query, e)
	}
	res := a.scan(query, nil, nil)
	a.setLocal(query, res)
	return res
}

// GetDependencyFrom answers a hypothetical query: the dependency the query
// would have if it were re-inserted just before start, or at the end of
// block when start is nil. Results are not cached. Scanning a range that
// contains the query itself may legitimately return the query.
func (a *Analysis) GetDependencyFrom(query, start *mir.MIR, block *mir.BasicBlock) Result {
	if start == nil && block == nil {
		return a.GetDependency(query)
	}
	return a.scan(query, start, block)
}

// scan walks instructions strictly preceding the scan origin in reverse
// program order. Origin is start's position when given, the end of block for
// an out-of-block query, or the query's own position otherwise.
func (a *Analysis) scan(query, start *mir.MIR, block *mir.BasicBlock) Result {
	blk := block
	if blk == nil {
		blk = query.Block()
	}
	instrs := blk.Instructions()

	origin := len(instrs)
	if start != nil && start.Block() == blk {
		origin = start.Index()
	} else if start == nil && block == nil {
		origin = query.Index()
	}
	if origin > len(instrs) {
		origin = len(instrs)
	}

	for i := origin - 1; i >= 0; i-- {
		cand := instrs[i]
		if !cand.IsMemoryOp() {
			continue
		}
		// Barriers take precedence over ordinary alias checks: a call-like
		// candidate terminates the scan unless the oracle proves the query
		// cannot interact with a call boundary.
		if a.oracle.IsBarrier(cand) {
			if a.oracle.IsBarrier(query) || a.oracle.MayAlias(cand, query) {
				return Dep(cand)
			}
			continue
		}
		if a.oracle.MayAlias(cand, query) {
			return Dep(cand)
		}
	}

	if len(blk.Parents()) == 0 {
		return noneResult
	}
	return nonLocalResult
}

// GetNonLocalDependency fills out with, for every block reachable backward
// from the query, the dependency one would find entering that block from its
// end: Known where the walk resolved, None at dependency-free entry blocks,
// and NonLocal for blocks the walk escaped past.
func (a *Analysis) GetNonLocalDependency(query *mir.MIR, out map[*mir.BasicBlock]Result) {
	// The local and non-local caches partition queries: an instruction whose
	// local result resolved has no business in the non-local search.
	if a.verify {
		if e, ok := a.local[query]; ok && e.confirmed && e.res.kind != NonLocal {
			panic(fmt.Sprintf("memdep: non-local query for %s with local result %s", query, e.res))
		}
	}

	cached, ok := a.nonLocal[query]
	if ok {
		// Recompute tombstoned entries, re-walking past any block the fresh
		// scan no longer resolves in.
		var dirtied []*mir.BasicBlock
		for b, r := range cached {
			if r.kind == Dirty {
				dirtied = append(dirtied, b)
			}
		}
		if len(dirtied) > 0 {
			for _, b := range dirtied {
				delete(cached, b)
			}
			a.nonLocalWalk(query, dirtied, cached)
			a.installNonLocalReverse(query, cached)
		}
	} else {
		cached = make(map[*mir.BasicBlock]Result)
		a.nonLocalWalk(query, query.Block().Parents(), cached)
		a.nonLocal[query] = cached
		a.installNonLocalReverse(query, cached)
	}

	for b, r := range cached {
		out[b] = r
	}
}

// nonLocalWalk runs the worklist DFS over predecessor blocks. Blocks already
// present in resp are treated as visited so dirty re-walks do not recompute
// settled entries. Every block visited gets exactly one entry, except the
// degenerate case where the query is found as its own dependency through a
// back edge; that block is omitted (its predecessors are already seeded).
func (a *Analysis) nonLocalWalk(query *mir.MIR, seeds []*mir.BasicBlock, resp map[*mir.BasicBlock]Result) {
	visited := make(map[*mir.BasicBlock]bool, len(resp))
	for b := range resp {
		visited[b] = true
	}

	stack := make([]*mir.BasicBlock, 0, len(seeds))
	stack = append(stack, seeds...)

	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[b] {
			continue
		}
		visited[b] = true

		res := a.scan(query, nil, b)
		switch res.kind {
		case Known:
			if res.inst != query {
				resp[b] = res
			}
		case None:
			resp[b] = res
		case NonLocal:
			resp[b] = res
			for _, p := range b.Parents() {
				if !visited[p] {
					stack = append(stack, p)
				}
			}
		}
	}
}

// RemoveInstruction removes rem from the analysis: every dependent recorded
// against it is tombstoned for recomputation, rem's own entries are purged,
// and no reverse edge referencing rem survives. Must be called whenever the
// host deletes an instruction; querying a deleted instruction without it is
// a contract violation.
func (a *Analysis) RemoveInstruction(rem *mir.MIR) {
	log.Trace("memdep: remove instruction", "ins", rem)

	for d := range a.reverseLocal[rem] {
		a.local[d] = localEntry{res: dirtyResult}
	}
	delete(a.reverseLocal, rem)

	for d := range a.reverseNonLocal[rem] {
		for b, r := range a.nonLocal[d] {
			if r.kind == Known && r.inst == rem {
				a.nonLocal[d][b] = dirtyResult
			}
		}
	}
	delete(a.reverseNonLocal, rem)

	a.purgeOwnEntries(rem)

	if a.verify {
		a.verifyRemoved(rem)
	}
}

// DropInstruction invalidates the analysis around drop without deleting it:
// used when the instruction is mutated in place. Dependents keep their entry
// but are downgraded to unconfirmed, since drop may still be a valid
// dependency under its new semantics; drop's own entries are cleared so they
// re-derive.
func (a *Analysis) DropInstruction(drop *mir.MIR) {
	log.Trace("memdep: drop instruction", "ins", drop)

	// Local dependents keep Known(drop) — and its reverse edge — but must
	// revalidate before trusting it.
	for d := range a.reverseLocal[drop] {
		if e, ok := a.local[d]; ok {
			e.confirmed = false
			a.local[d] = e
		}
	}

	// Non-local entries carry no confirmed bit; tombstone them instead.
	for d := range a.reverseNonLocal[drop] {
		for b, r := range a.nonLocal[d] {
			if r.kind == Known && r.inst == drop {
				a.nonLocal[d][b] = dirtyResult
			}
		}
	}
	delete(a.reverseNonLocal, drop)

	a.purgeOwnEntries(drop)
}

// purgeOwnEntries erases the instruction's own cache entries along with the
// reverse edges they installed.
func (a *Analysis) purgeOwnEntries(ins *mir.MIR) {
	if e, ok := a.local[ins]; ok {
		if e.res.kind == Known {
			a.delReverse(a.reverseLocal, e.res.inst, ins)
		}
		delete(a.local, ins)
	}
	if m, ok := a.nonLocal[ins]; ok {
		for _, r := range m {
			if r.kind == Known {
				a.delReverse(a.reverseNonLocal, r.inst, ins)
			}
		}
		delete(a.nonLocal, ins)
	}
}

func (a *Analysis) setLocal(query *mir.MIR, res Result) {
	a.local[query] = localEntry{res: res, confirmed: true}
	if res.kind == Known {
		a.addReverse(a.reverseLocal, res.inst, query)
	}
}

func (a *Analysis) evictLocal(query *mir.MIR, e localEntry) {
	if e.res.kind == Known {
		a.delReverse(a.reverseLocal, e.res.inst, query)
	}
	delete(a.local, query)
}

func (a *Analysis) installNonLocalReverse(query *mir.MIR, resp map[*mir.BasicBlock]Result) {
	for _, r := range resp {
		if r.kind == Known {
			a.addReverse(a.reverseNonLocal, r.inst, query)
		}
	}
}

func (a *Analysis) addReverse(idx map[*mir.MIR]map[*mir.MIR]struct{}, target, dependent *mir.MIR) {
	set, ok := idx[target]
	if !ok {
		set = make(map[*mir.MIR]struct{})
		idx[target] = set
	}
	set[dependent] = struct{}{}
}

func (a *Analysis) delReverse(idx map[*mir.MIR]map[*mir.MIR]struct{}, target, dependent *mir.MIR) {
	if set, ok := idx[target]; ok {
		delete(set, dependent)
		if len(set) == 0 {
			delete(idx, target)
		}
	}
}

// verifyRemoved asserts that the instruction occurs nowhere in the internal
// data structures. A failure indicates a bug in cache maintenance, not a
// recoverable condition, so it panics.
func (a *Analysis) verifyRemoved(ins *mir.MIR) {
	if _, ok := a.local[ins]; ok {
		panic(fmt.Sprintf("memdep: removed instruction %s still keyed in local cache", ins))
	}
	for q, e := range a.local {
		if e.res.kind == Known && e.res.inst == ins {
			panic(fmt.Sprintf("memdep: removed instruction %s still dependency of %s", ins, q))
		}
	}
	if _, ok := a.nonLocal[ins]; ok {
		panic(fmt.Sprintf("memdep: removed instruction %s still keyed in non-local cache", ins))
	}
	for q, m := range a.nonLocal {
		for _, r := range m {
			if r.kind == Known && r.inst == ins {
				panic(fmt.Sprintf("memdep: removed instruction %s still non-local dependency of %s", ins, q))
			}
		}
	}
	if _, ok := a.reverseLocal[ins]; ok {
		panic(fmt.Sprintf("memdep: removed instruction %s still keyed in local reverse index", ins))
	}
	if _, ok := a.reverseNonLocal[ins]; ok {
		panic(fmt.Sprintf("memdep: removed instruction %s still keyed in non-local reverse index", ins))
	}
	for target, set := range a.reverseLocal {
		if _, ok := set[ins]; ok {
			panic(fmt.Sprintf("memdep: removed instruction %s still local dependent of %s", ins, target))
		}
	}
	for target, set := range a.reverseNonLocal {
		if _, ok := set[ins]; ok {
			panic(fmt.Sprintf("memdep: removed instruction %s still non-local dependent of %s", ins, target))
		}
	}
}
