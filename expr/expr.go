// Package expr implements the rewrite engine that normalizes a sequence
// of block.Block edits into an equivalent, shorter program.
//
// This is the Go counterpart of edwood's sam.Elog (github.com/rjkroege/
// edwood/sam), generalized well past Elog's single "merge with the
// previous entry" heuristic into the full level 0-3 optimization scheme:
// reordering into INSERT/REMOVE/REPLACE runs, merging adjacent inserts
// and removes, and cancelling INSERT/REMOVE pairs that touch the same
// position (levels 2 and 3).
package expr

import (
	"fmt"
	"sort"

	"github.com/rjkroege/polonius-opt/block"
)

// ErrInvariant reports a programming defect: an unexpected block kind
// turned up where the run-ordering invariant forbids it. It is always
// fatal to the caller that receives it — it can only mean this package
// has a bug.
var ErrInvariant = fmt.Errorf("invariant violation: unexpected block kind mid-run")

// Expression is an ordered edit program: a sequence of Blocks plus the
// optimization level that governs how new Blocks are merged into it.
//
// The zero value is a valid, empty Expression at optimization level 0.
// An Expression is not safe for concurrent mutation; exclusive access by
// one goroutine at a time is the caller's responsibility. Print may run
// concurrently with other readers but never with a mutator.
type Expression struct {
	blocks []block.Block
	level  uint8
}

// New returns an Expression at the given optimization level, clamped to
// [0,3] the same way SetOptimizationLevel clamps it.
func New(level uint8) *Expression {
	return &Expression{level: clampLevel(level)}
}

func clampLevel(level uint8) uint8 {
	if level > 3 {
		return 3
	}
	return level
}

// Level returns the current optimization level.
func (e *Expression) Level() uint8 {
	return e.level
}

// Len returns the number of Blocks currently stored.
func (e *Expression) Len() int {
	return len(e.blocks)
}

// Blocks returns a defensive copy of the stored sequence, in order.
func (e *Expression) Blocks() []block.Block {
	out := make([]block.Block, len(e.blocks))
	copy(out, e.blocks)
	return out
}

// SetOptimizationLevel changes the active level. If the sequence is
// non-empty, it is fully re-evaluated: snapshotted, cleared, and
// re-inserted one Block at a time through the level-appropriate path, so
// the stored invariant is never observed half-updated by outside code.
func (e *Expression) SetOptimizationLevel(level uint8) {
	e.level = clampLevel(level)
	if len(e.blocks) == 0 {
		return
	}
	snapshot := e.blocks
	e.blocks = nil
	for _, b := range snapshot {
		switch b.Op() {
		case block.Insert:
			e.Insert(b)
		case block.Remove:
			e.Remove(b)
		case block.Replace:
			e.Replace(b)
		}
	}
}

// tail reports the last block in the working sequence, and whether one
// exists.
func (e *Expression) tail() (block.Block, bool) {
	if len(e.blocks) == 0 {
		return block.Block{}, false
	}
	return e.blocks[len(e.blocks)-1], true
}

func (e *Expression) popBack() block.Block {
	b := e.blocks[len(e.blocks)-1]
	e.blocks = e.blocks[:len(e.blocks)-1]
	return b
}

func (e *Expression) pushBack(b block.Block) {
	if b.Empty() {
		return
	}
	e.blocks = append(e.blocks, b)
}

// Insert merges an INSERT block into the sequence, running the rewrite
// rules appropriate for the current optimization level.
func (e *Expression) Insert(b block.Block) {
	if b.Empty() {
		return
	}
	b = b.Clone()
	b.SetOp(block.Insert)

	var removesPulled, replacesPulled []block.Block

	if e.level >= 2 {
		var done bool
		b, done = e.insertLevel2(b, &removesPulled, &replacesPulled)
		if done {
			return
		}
	}

	if e.level >= 1 {
		e.insertLevel1(b, removesPulled, replacesPulled)
		return
	}

	// Level 0: append-only.
	e.pushBack(b)
	for _, r := range removesPulled {
		e.pushBack(r)
	}
	for _, r := range replacesPulled {
		e.pushBack(r)
	}
}

// insertLevel2 applies theorem #3 (INSERT/REMOVE at the same effective
// position collapse to a REPLACE). It returns the (possibly shortened)
// incoming block and whether processing is already complete (the INSERT
// was fully absorbed into a synthesized REPLACE).
func (e *Expression) insertLevel2(incoming block.Block, removesPulled, replacesPulled *[]block.Block) (block.Block, bool) {
	var leftShift uint64

	for {
		tail, ok := e.tail()
		if !ok || tail.Op() == block.Insert {
			break
		}
		switch tail.Op() {
		case block.Replace:
			*replacesPulled = append([]block.Block{tail}, *replacesPulled...)
			e.popBack()
		case block.Remove:
			effectiveStart := incoming.Start() + leftShift
			if tail.Start() == effectiveStart {
				e.popBack()
				return e.collapseInsertRemove(incoming, tail, leftShift, removesPulled, replacesPulled)
			} else if tail.Start() < effectiveStart {
				leftShift += tail.Size()
			}
			*removesPulled = append([]block.Block{tail}, *removesPulled...)
			e.popBack()
		default:
			panic(ErrInvariant)
		}
	}

	for _, r := range *removesPulled {
		e.pushBack(r)
	}
	*removesPulled = nil
	for _, r := range *replacesPulled {
		e.pushBack(r)
	}
	*replacesPulled = nil

	return incoming, false
}

// collapseInsertRemove implements theorem #3's actual splice once an
// exact-coincidence REMOVE has been found at the tail.
func (e *Expression) collapseInsertRemove(incoming, removeBlock block.Block, leftShift uint64, removesPulled, replacesPulled *[]block.Block) (block.Block, bool) {
	ov := removeBlock.OverlapRange(incoming.Start()+leftShift, incoming.End()+leftShift)
	overlapLen := ov.End - ov.Start + 1

	replaceBlock := incoming.Clone()
	replaceBlock.Remove(ov.End-leftShift+1, incoming.End())
	replaceBlock.SetOp(block.Replace)

	originalStart := incoming.Start()

	removeBlock.Remove(ov.Start, ov.End)
	incoming.Remove(ov.Start-leftShift, ov.End-leftShift)

	if !removeBlock.Empty() {
		// The REMOVE was only partly absorbed; it belongs back in the
		// removes-pulled stash ahead of anything shifted below.
		*removesPulled = append([]block.Block{removeBlock}, *removesPulled...)
	}

	var shiftedRemoves []block.Block
	for _, b := range *removesPulled {
		if b.Start() >= originalStart+leftShift {
			b.ShiftRight(overlapLen)
		}
		shiftedRemoves = append(shiftedRemoves, b)
	}
	*removesPulled = nil

	var shiftedReplaces []block.Block
	for _, b := range *replacesPulled {
		shiftedReplaces = append(shiftedReplaces, splitReplaceAtBoundary(b, originalStart+leftShift, overlapLen)...)
	}
	*replacesPulled = nil

	for _, b := range shiftedRemoves {
		e.pushBack(b)
	}
	for _, b := range shiftedReplaces {
		e.pushBack(b)
	}
	e.pushBack(replaceBlock)

	if incoming.Empty() {
		return incoming, true
	}
	return incoming, false
}

// splitReplaceAtBoundary handles a pulled REPLACE that straddles the
// cancellation boundary: only the portion at or after boundary shifts
// right by shiftLen, matching the spec's "REPLACEs overlapping that point
// are split at the boundary and only their right-half shifts".
func splitReplaceAtBoundary(r block.Block, boundary, shiftLen uint64) []block.Block {
	if r.Start() >= boundary {
		r.ShiftRight(shiftLen)
		return []block.Block{r}
	}
	if r.End() < boundary {
		return []block.Block{r}
	}
	left := r.Clone()
	right := r.Clone()
	left.Remove(boundary, r.End())
	right.Remove(r.Start(), boundary-1)
	right.ShiftRight(shiftLen)
	var out []block.Block
	if !left.Empty() {
		out = append(out, left)
	}
	if !right.Empty() {
		out = append(out, right)
	}
	return out
}

// insertLevel1 applies theorem #0: merge the incoming INSERT into the
// sorted INSERT run, keeping the REMOVE/REPLACE runs consistent as
// blocks shift underneath it.
func (e *Expression) insertLevel1(incoming block.Block, removesPulled, replacesPulled []block.Block) {
	var insertsBefore, insertsAfter []block.Block

	for {
		tail, ok := e.tail()
		if !ok {
			break
		}
		switch tail.Op() {
		case block.Insert:
			e.popBack()
			if tail.Start() > incoming.Start() {
				tail.ShiftRight(incoming.Size())
				insertsAfter = append([]block.Block{tail}, insertsAfter...)
				continue
			}
			if combined := block.CombineInserts(tail, incoming); !combined.Empty() {
				incoming = combined
				continue
			}
			insertsBefore = append([]block.Block{tail}, insertsBefore...)
		case block.Remove:
			e.popBack()
			if tail.Start() <= incoming.Start() {
				incoming.ShiftRight(tail.Size())
			} else {
				tail.ShiftRight(incoming.Size())
			}
			removesPulled = append([]block.Block{tail}, removesPulled...)
		case block.Replace:
			e.popBack()
			ov := tail.Overlap(incoming)
			switch {
			case !ov.Empty:
				pre := tail.Clone()
				post := tail.Clone()
				pre.Remove(ov.Start, tail.End())
				if ov.Start != tail.Start() {
					post.Remove(tail.Start(), ov.Start-1)
				}
				// pre keeps the lower-start half, post the upper-start half:
				// prepend post first so the final order is [pre, post, ...].
				if !post.Empty() {
					post.ShiftRight(incoming.Size())
					replacesPulled = append([]block.Block{post}, replacesPulled...)
				}
				if !pre.Empty() {
					replacesPulled = append([]block.Block{pre}, replacesPulled...)
				}
			case tail.Start() >= incoming.Start():
				tail.ShiftRight(incoming.Size())
				replacesPulled = append([]block.Block{tail}, replacesPulled...)
			default:
				replacesPulled = append([]block.Block{tail}, replacesPulled...)
			}
		default:
			panic(ErrInvariant)
		}
	}

	for _, b := range insertsBefore {
		e.pushBack(b)
	}
	e.pushBack(incoming)
	for _, b := range insertsAfter {
		e.pushBack(b)
	}
	for _, b := range removesPulled {
		e.pushBack(b)
	}
	for _, b := range replacesPulled {
		e.pushBack(b)
	}
}

// Remove merges a REMOVE block into the sequence.
func (e *Expression) Remove(b block.Block) {
	if b.Empty() {
		return
	}
	b = b.Clone()
	b.SetOp(block.Remove)

	if e.level >= 2 {
		e.removeLevel2(b)
		return
	}
	if e.level == 0 {
		// Level 0: append-only.
		e.pushBack(b)
		return
	}

	e.removeLevel1(b)
}

// removeLevel1 applies theorem #1: merge adjacent REMOVEs and keep the
// REMOVE run separated from the REPLACE run.
func (e *Expression) removeLevel1(incoming block.Block) {
	var replaces []block.Block

	for {
		tail, ok := e.tail()
		if !ok || tail.Op() != block.Replace {
			break
		}
		e.popBack()
		ov := tail.Overlap(incoming)
		if !ov.Empty {
			pre := tail.Clone()
			post := tail.Clone()
			pre.Remove(ov.Start, tail.End())
			post.Remove(tail.Start(), ov.End)
			// The overlapping middle of the REPLACE is discarded: that
			// text is gone once the REMOVE executes.

			// pre keeps the lower-start half, post the upper-start half:
			// prepend post first so the final order is [pre, post, ...].
			if !post.Empty() {
				post.ShiftLeft(incoming.Size())
				replaces = append([]block.Block{post}, replaces...)
			}
			if !pre.Empty() {
				replaces = append([]block.Block{pre}, replaces...)
			}
		} else if tail.Start() >= incoming.Start() {
			tail.ShiftLeft(incoming.Size())
			replaces = append([]block.Block{tail}, replaces...)
		} else {
			replaces = append([]block.Block{tail}, replaces...)
		}
	}

	var removesBefore, removesAfter []block.Block
	for {
		tail, ok := e.tail()
		if !ok || tail.Op() != block.Remove {
			break
		}
		e.popBack()
		if combined := block.CombineRemoves(tail, incoming); !combined.Empty() {
			incoming = combined
			continue
		}
		if tail.Start() < incoming.Start() {
			removesBefore = append([]block.Block{tail}, removesBefore...)
		} else {
			tail.ShiftLeft(incoming.Size())
			removesAfter = append([]block.Block{tail}, removesAfter...)
		}
	}

	for _, b := range removesBefore {
		e.pushBack(b)
	}
	e.pushBack(incoming)
	for _, b := range removesAfter {
		e.pushBack(b)
	}
	for _, b := range replaces {
		e.pushBack(b)
	}
}

// removeLevel2 applies theorem #4: a REMOVE that overlaps a preceding
// INSERT cancels that overlap from both instructions. The INSERT run
// always sits at the front of the sequence (the level-1 invariant), so
// this scans that run directly from its rightmost (most recently placed)
// entry backward, tracking rightShift: the cumulative length of
// INSERT/REMOVE overlap already cancelled further right, which must be
// added back to translate the still-pending REMOVE remainder into the
// coordinate system of earlier (further-left) INSERTs.
//
// It always fully handles the incoming block, delegating whatever
// survives cancellation to removeLevel1.
func (e *Expression) removeLevel2(incoming block.Block) bool {
	n := 0
	for n < len(e.blocks) && e.blocks[n].Op() == block.Insert {
		n++
	}
	inserts := append([]block.Block(nil), e.blocks[:n]...)
	rest := append([]block.Block(nil), e.blocks[n:]...)

	var kept []block.Block
	var survivors []block.Block // finalized REMOVE fragments, to be merged in once scanning ends
	var rightShift uint64
	remaining := incoming
	originalStart := incoming.Start()

	i := n - 1
	for ; i >= 0 && !remaining.Empty(); i-- {
		ins := inserts[i]
		effStart := remaining.Start() - rightShift
		effEnd := remaining.End() - rightShift
		ov := ins.OverlapRange(effStart, effEnd)
		if ov.Empty {
			kept = append([]block.Block{ins}, kept...)
			continue
		}
		overlapLen := ov.End - ov.Start + 1

		// The cancelled overlap vanishes with nothing taking its place, so
		// pre and post are reunited as adjacent inserts rather than kept at
		// their original offsets: post's payload is ins's content past the
		// overlap, but it lands where pre's insertion leaves off (ov.Start),
		// not at its pre-cancellation offset (ov.End+1).
		pre := ins.Clone()
		pre.Remove(ov.Start, ins.End())
		var post block.Block
		if ov.End < ins.End() {
			suffix := append([]byte(nil), ins.Contents()[ov.End-ins.Start()+1:]...)
			post = block.New(block.Insert, ov.Start, suffix)
		}
		// pre keeps the lower-start half, post the upper-start half:
		// prepend post first so the final order is [..., pre, post, ...].
		if !post.Empty() {
			kept = append([]block.Block{post}, kept...)
		}
		if !pre.Empty() {
			kept = append([]block.Block{pre}, kept...)
		}

		// Translate the overlap boundary back into remaining's own
		// (pre-shift) coordinates to split off the surviving pieces: the
		// part right of the overlap is done (no earlier insert can touch
		// it), the part left of it keeps scanning.
		cutLeft := ov.Start + rightShift
		cutRight := ov.End + rightShift

		leftPiece := remaining.Clone()
		rightPiece := remaining.Clone()
		leftPiece.Remove(cutLeft, remaining.End())
		rightPiece.Remove(remaining.Start(), cutRight)

		if !rightPiece.Empty() {
			survivors = append(survivors, rightPiece)
		}
		remaining = leftPiece
		rightShift += overlapLen
	}
	// Any inserts at or before index i were never reached by the scan.
	if i >= 0 {
		kept = append(append([]block.Block(nil), inserts[:i+1]...), kept...)
	}
	if !remaining.Empty() {
		survivors = append(survivors, remaining)
	}

	// The insert run shrank by rightShift (the total cancelled length);
	// every REMOVE/REPLACE already queued behind it that starts at or
	// past where the cancellation happened needs to move left by the
	// same amount to stay in the now-shorter coordinate system.
	if rightShift > 0 {
		for i := range rest {
			if rest[i].Start() >= originalStart {
				rest[i].ShiftLeft(rightShift)
			}
		}
	}

	e.blocks = append(append([]block.Block(nil), kept...), rest...)

	sort.Slice(survivors, func(a, b int) bool {
		return survivors[a].Start() < survivors[b].Start()
	})
	for _, s := range survivors {
		e.removeLevel1(s)
	}
	return true
}

// Replace merges a REPLACE block into the sequence. No cross-block
// rewriting happens on this path except, at level 3, the dominating-
// REPLACE rule: a later REPLACE that shares its start with an earlier one
// and fully covers its range causes the earlier one to be dropped.
func (e *Expression) Replace(b block.Block) {
	if b.Empty() {
		return
	}
	b = b.Clone()
	b.SetOp(block.Replace)

	if e.level >= 3 {
		kept := e.blocks[:0]
		for _, existing := range e.blocks {
			if existing.Op() == block.Replace && existing.Start() == b.Start() && existing.End() <= b.End() {
				continue // dominated by b; drop it
			}
			kept = append(kept, existing)
		}
		e.blocks = kept
	}

	e.pushBack(b)
}

// Print renders the Expression as instruction text: one instruction per
// line, uppercase kind, fields space-separated. INSERT/REPLACE payload
// bytes are emitted literally with any zero byte rendered as '?'; REMOVE
// is rendered as "REMOVE start end".
func (e *Expression) Print() string {
	var out []byte
	for _, b := range e.blocks {
		switch b.Op() {
		case block.Insert:
			out = append(out, "INSERT "...)
			out = appendUint(out, b.Start())
			out = append(out, ' ')
			out = appendPayload(out, b.Contents())
		case block.Remove:
			out = append(out, "REMOVE "...)
			out = appendUint(out, b.Start())
			out = append(out, ' ')
			out = appendUint(out, b.End())
		case block.Replace:
			out = append(out, "REPLACE "...)
			out = appendUint(out, b.Start())
			out = append(out, ' ')
			out = appendPayload(out, b.Contents())
		}
		out = append(out, '\n')
	}
	return string(out)
}

func appendPayload(out, payload []byte) []byte {
	for _, c := range payload {
		if c == 0 {
			out = append(out, '?')
		} else {
			out = append(out, c)
		}
	}
	return out
}

func appendUint(out []byte, v uint64) []byte {
	return append(out, []byte(fmt.Sprintf("%d", v))...)
}
