// Package memdep determines, for a given memory operation, which preceding
// memory operation it depends on. It builds on an alias oracle and provides a
// lazy, caching interface to a common kind of alias query, staying coherent
// across instruction removal and in-place mutation.
package memdep

import (
	"github.com/opcodelabs/mirdep/mir"
)

// Kind tags a dependency query result.
type Kind uint8

const (
	// Known names a concrete prior instruction the query depends on.
	Known Kind = iota
	// None means no dependency exists on any path back to function entry.
	None
	// NonLocal means the dependency, if any, lies outside the scanned block
	// and must be resolved by the non-local search.
	NonLocal
	// Dirty marks a stale cache entry awaiting recomputation. It is never
	// returned to a caller.
	Dirty
)

func (k Kind) String() string {
	switch k {
	case Known:
		return "Known"
	case None:
		return "None"
	case NonLocal:
		return "NonLocal"
	case Dirty:
		return "Dirty"
	}
	return "Invalid"
}

// Result is the outcome of a dependency query.
type Result struct {
	kind Kind
	inst *mir.MIR
}

var (
	noneResult     = Result{kind: None}
	nonLocalResult = Result{kind: NonLocal}
	dirtyResult    = Result{kind: Dirty}
)

// Dep wraps a concrete dependency instruction.
func Dep(inst *mir.MIR) Result {
	return Result{kind: Known, inst: inst}
}

// Kind returns the result tag.
func (r Result) Kind() Kind {
	return r.kind
}

// Inst returns the dependency instruction for Known results, nil otherwise.
func (r Result) Inst() *mir.MIR {
	if r.kind != Known {
		return nil
	}
	return r.inst
}

func (r Result) String() string {
	if r.kind == Known {
		return "Known(" + r.inst.String() + ")"
	}
	return r.kind.String()
}
