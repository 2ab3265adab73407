// Package block implements the positional edit fragment that the
// expr rewrite engine operates on.
//
// The concept mirrors edwood's sam.ElogOperation (see
// github.com/rjkroege/edwood/sam), generalized to a standalone algebra: a
// Block is a contiguous run of bytes tagged with an operation and located
// at an absolute start position. Unlike ElogOperation, a Block carries its
// own contents (so REPLACE and INSERT can be manipulated independently of
// any backing Texter) and supports the splice/shift/overlap arithmetic the
// expr package's rewrite rules need.
package block

import "fmt"

// Op identifies the kind of edit a Block represents.
type Op int

const (
	// opNone marks the zero-value Block, which is always empty.
	opNone Op = iota
	Insert
	Remove
	Replace
)

func (o Op) String() string {
	switch o {
	case Insert:
		return "INSERT"
	case Remove:
		return "REMOVE"
	case Replace:
		return "REPLACE"
	default:
		return "NONE"
	}
}

// ErrBounds describes a ShiftLeft that would underflow the block's start
// position below zero. ShiftLeft itself reports that case by returning
// false; no function in this package returns ErrBounds.
var ErrBounds = fmt.Errorf("shift would underflow block start")

// Block is a contiguous, operation-tagged run of bytes.
//
// Zero value is an empty block: Size()==0, Start()==0, Op()==opNone. Empty
// blocks are never stored in an Expression (see expr.Expression); they are
// discarded at insertion time per spec.
type Block struct {
	start    uint64
	contents []byte
	op       Op
}

// Empty reports whether the block has no contents.
func (b Block) Empty() bool {
	return len(b.contents) == 0
}

// Op returns the block's operation kind.
func (b Block) Op() Op {
	return b.op
}

// SetOp overrides the block's operation kind. Used by the expr package
// when it takes ownership of a caller-constructed Block.
func (b *Block) SetOp(op Op) {
	b.op = op
}

// Start returns the block's absolute start position.
func (b Block) Start() uint64 {
	return b.start
}

// Size returns the number of bytes the block covers.
func (b Block) Size() uint64 {
	return uint64(len(b.contents))
}

// End returns start+size-1, or 0 for an empty block (undefined per spec,
// but zero is the conventional sentinel edwood-style code relies on).
func (b Block) End() uint64 {
	if b.Empty() {
		return 0
	}
	return b.start + uint64(len(b.contents)) - 1
}

// Contents returns the block's raw bytes. For REMOVE blocks these are
// placeholder bytes; only their length is meaningful.
func (b Block) Contents() []byte {
	return b.contents
}

// At returns the byte at absolute position i, or 0 if i falls outside the
// block's range.
func (b Block) At(i uint64) byte {
	if b.Empty() || i < b.start || i >= b.start+uint64(len(b.contents)) {
		return 0
	}
	return b.contents[i-b.start]
}

// Add sets the block to an INSERT/REPLACE-shaped fragment: start at
// position start, contents exactly value. The caller is expected to call
// SetOp afterward (or rely on the expr package to do so).
func (b *Block) Add(start uint64, value []byte) {
	b.start = start
	b.contents = append([]byte(nil), value...)
}

// AddRange sets the block to a REMOVE-shaped fragment covering
// [start, end] inclusive, filled with placeholder bytes whose values
// carry no meaning — only the length does.
func (b *Block) AddRange(start, end uint64) {
	b.start = start
	if end < start {
		b.contents = nil
		return
	}
	n := end - start + 1
	b.contents = make([]byte, n)
}

// Remove splices the inclusive range [from, to] out of the block,
// clipping to the block's actual range. If the splice touches the left
// edge, start advances past the removed region; otherwise the block
// shrinks in place. The block becomes empty iff its entire range is
// removed.
func (b *Block) Remove(from, to uint64) {
	if b.Empty() {
		return
	}
	removeStart := from
	if b.start > removeStart {
		removeStart = b.start
	}
	removeEnd := to
	if end := b.End(); end < removeEnd {
		removeEnd = end
	}
	if removeStart > removeEnd {
		// Range doesn't actually intersect the block.
		return
	}

	lhs := append([]byte(nil), b.contents[:removeStart-b.start]...)
	rhs := append([]byte(nil), b.contents[removeEnd-b.start+1:]...)
	b.contents = append(lhs, rhs...)

	if removeStart <= b.start {
		b.start = removeEnd + 1
	}
	if len(b.contents) == 0 {
		b.Clear()
	}
}

// Clear empties the block and resets its start to 0. The operation kind
// is left as it was.
func (b *Block) Clear() {
	b.start = 0
	b.contents = nil
}

// ShiftLeft translates start left by n, failing (leaving the block
// unchanged) if that would underflow below zero.
func (b *Block) ShiftLeft(n uint64) bool {
	if n > b.start {
		return false
	}
	b.start -= n
	return true
}

// ShiftRight translates start right by n. Cannot fail.
func (b *Block) ShiftRight(n uint64) {
	b.start += n
}

// Clone returns an independent deep copy: mutating the clone's contents
// never aliases the original's backing array.
func (b Block) Clone() Block {
	return Block{
		start:    b.start,
		contents: append([]byte(nil), b.contents...),
		op:       b.op,
	}
}

// Overlap is a closed interval [Start, End], or the empty interval when
// two ranges don't touch.
type Overlap struct {
	Start uint64
	End   uint64
	Empty bool
}

// Overlap computes the overlap between b and other, symmetric in its
// arguments: b.Overlap(other) == other.Overlap(b).
func (b Block) Overlap(other Block) Overlap {
	if b.Empty() || other.Empty() {
		return Overlap{Empty: true}
	}
	return b.OverlapRange(other.start, other.End())
}

// OverlapRange computes the overlap between b and the closed range
// [from, to].
func (b Block) OverlapRange(from, to uint64) Overlap {
	if b.Empty() {
		return Overlap{Empty: true}
	}
	if b.start > to || b.End() < from {
		return Overlap{Empty: true}
	}
	s := b.start
	if from > s {
		s = from
	}
	e := b.End()
	if to < e {
		e = to
	}
	return Overlap{Start: s, End: e}
}

// New constructs a non-empty INSERT/REPLACE-shaped block.
func New(op Op, start uint64, value []byte) Block {
	var b Block
	b.Add(start, value)
	b.SetOp(op)
	return b
}

// NewRange constructs a non-empty REMOVE-shaped block.
func NewRange(start, end uint64) Block {
	var b Block
	b.AddRange(start, end)
	b.SetOp(Remove)
	return b
}

// CombineInserts returns a single INSERT block equivalent to executing a
// then b in a single left-to-right pass, if both are non-empty INSERTs
// that overlap and a.Start() <= b.Start(). Otherwise it returns the empty
// Block.
func CombineInserts(a, b Block) Block {
	if a.Empty() || b.Empty() {
		return Block{}
	}
	if a.op != Insert || b.op != Insert {
		return Block{}
	}
	ov := a.Overlap(b)
	if ov.Empty || a.start > b.start {
		return Block{}
	}

	prefixLen := b.start - a.start
	combined := make([]byte, 0, len(a.contents)+len(b.contents))
	combined = append(combined, a.contents[:prefixLen]...)
	combined = append(combined, b.contents...)
	combined = append(combined, a.contents[prefixLen:]...)

	return New(Insert, a.start, combined)
}

// CombineRemoves returns a single REMOVE block equivalent to executing a
// then b, if both are non-empty REMOVEs and b.Start() <= a.Start() <=
// b.End() (a's start lies within b's range, in the post-execution
// coordinate system where a has already contracted the text). Otherwise
// returns the empty Block.
func CombineRemoves(a, b Block) Block {
	if a.Empty() || b.Empty() {
		return Block{}
	}
	if a.op != Remove || b.op != Remove {
		return Block{}
	}
	if a.start < b.start || a.start > b.End() {
		return Block{}
	}
	return NewRange(b.start, b.End()+a.Size())
}
