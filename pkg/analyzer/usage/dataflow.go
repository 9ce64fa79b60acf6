package usage

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// predecessors inverts the successor lists once per function.
func (an *analysis) predecessors() [][]int {
	preds := make([][]int, len(an.blocks))
	for _, b := range an.blocks {
		for _, s := range b.succs {
			preds[s] = append(preds[s], b.id)
		}
	}
	return preds
}

// isReadKind reports whether the event consumes the variable's current
// value. Escapes count: untracked code may read through the alias.
func isReadKind(k opKind) bool {
	switch k {
	case opRead, opReadWrite, opDerefRead, opDerefWrite, opFree, opEscape:
		return true
	}
	return false
}

// isWriteKind reports whether the event stores a new value.
func isWriteKind(k opKind) bool {
	switch k {
	case opWrite, opReadWrite, opAlloc, opEscape:
		return true
	}
	return false
}

// liveness computes the backward fixpoint: liveOut[b] holds the variables
// whose current value may still be read on some path leaving b.
func (an *analysis) liveness() (liveIn, liveOut []*roaring.Bitmap) {
	n := len(an.blocks)
	use := make([]*roaring.Bitmap, n)
	def := make([]*roaring.Bitmap, n)
	liveIn = make([]*roaring.Bitmap, n)
	liveOut = make([]*roaring.Bitmap, n)

	for i, b := range an.blocks {
		use[i] = roaring.New()
		def[i] = roaring.New()
		liveIn[i] = roaring.New()
		liveOut[i] = roaring.New()
		for _, e := range b.events {
			id := uint32(e.varID)
			if isReadKind(e.kind) && !def[i].Contains(id) {
				use[i].Add(id)
			}
			if isWriteKind(e.kind) {
				def[i].Add(id)
			}
		}
	}

	changed := true
	for changed {
		changed = false
		for i := n - 1; i >= 0; i-- {
			out := roaring.New()
			for _, s := range an.blocks[i].succs {
				out.Or(liveIn[s])
			}
			in := out.Clone()
			in.AndNot(def[i])
			in.Or(use[i])

			if !out.Equals(liveOut[i]) || !in.Equals(liveIn[i]) {
				liveOut[i] = out
				liveIn[i] = in
				changed = true
			}
		}
	}
	return liveIn, liveOut
}

// deadWrites walks each block backward from its live-out set and collects
// write events whose stored value is never read on any path before being
// overwritten or going out of scope. Alloc writes and writes with
// side-effecting right-hand sides are excluded; escaped variables are
// excluded wholesale.
func (an *analysis) deadWrites(liveOut []*roaring.Bitmap) []event {
	var dead []event
	for i, b := range an.blocks {
		live := liveOut[i].Clone()
		for j := len(b.events) - 1; j >= 0; j-- {
			e := b.events[j]
			id := uint32(e.varID)
			v := an.vars[e.varID]

			if e.kind == opWrite && !e.sideEffect && !live.Contains(id) && an.reportable(v) {
				dead = append(dead, e)
			}

			// Transfer in reverse: a write kills liveness above it, a
			// read revives it. Read-modify-writes and escapes read the
			// prior value, so the net effect is live.
			switch {
			case isReadKind(e.kind):
				live.Add(id)
			case isWriteKind(e.kind):
				live.Remove(id)
			}
		}
	}
	return dead
}

// definiteAssignment runs the forward must-assign fixpoint and returns, per
// variable, the first read reached while the variable may still be
// unassigned. The meet is intersection, so the analysis starts from the
// universal set everywhere except the entry block.
func (an *analysis) definiteAssignment() map[int]bool {
	n := len(an.blocks)
	preds := an.predecessors()

	universe := roaring.New()
	universe.AddRange(0, uint64(len(an.vars)))

	initial := roaring.New()
	for _, v := range an.vars {
		if v.isParam || v.static || v.extern {
			initial.Add(uint32(v.id))
		}
	}

	out := make([]*roaring.Bitmap, n)
	for i := range out {
		out[i] = universe.Clone()
	}

	transfer := func(i int, in *roaring.Bitmap) *roaring.Bitmap {
		assigned := in.Clone()
		for _, e := range an.blocks[i].events {
			if isWriteKind(e.kind) || e.kind == opAlloc {
				assigned.Add(uint32(e.varID))
			}
		}
		return assigned
	}

	entry := an.entry.id
	changed := true
	for changed {
		changed = false
		for i := range n {
			in := universe.Clone()
			if i == entry {
				in = initial.Clone()
			} else if len(preds[i]) > 0 {
				in = out[preds[i][0]].Clone()
				for _, p := range preds[i][1:] {
					in.And(out[p])
				}
			}
			newOut := transfer(i, in)
			if !newOut.Equals(out[i]) {
				out[i] = newOut
				changed = true
			}
		}
	}

	// Final pass: record reads that may see an unassigned value.
	uninit := make(map[int]bool)
	for i := range n {
		in := universe.Clone()
		if i == entry {
			in = initial.Clone()
		} else if len(preds[i]) > 0 {
			in = out[preds[i][0]].Clone()
			for _, p := range preds[i][1:] {
				in.And(out[p])
			}
		}
		assigned := in
		for _, e := range an.blocks[i].events {
			id := uint32(e.varID)
			if (e.kind == opRead || e.kind == opReadWrite) && !assigned.Contains(id) {
				uninit[e.varID] = true
			}
			if isWriteKind(e.kind) || e.kind == opAlloc {
				assigned.Add(id)
			}
		}
	}
	return uninit
}
