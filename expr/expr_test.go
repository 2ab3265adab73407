package expr

import (
	"testing"

	"github.com/rjkroege/polonius-opt/block"
)

// apply plays back a textual op list ("INSERT 0 hello", "REMOVE 0 4", ...)
// against a fresh Expression at the given level, matching the shape of
// the scenarios in spec.md §8.
func apply(level uint8, ops ...string) *Expression {
	e := New(level)
	for _, op := range ops {
		playOne(e, op)
	}
	return e
}

func playOne(e *Expression, op string) {
	var kind string
	var rest string
	for i, c := range op {
		if c == ' ' {
			kind = op[:i]
			rest = op[i+1:]
			break
		}
	}
	var start uint64
	var n int
	for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
		start = start*10 + uint64(rest[n]-'0')
		n++
	}
	value := rest[n:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	switch kind {
	case "INSERT":
		e.Insert(block.New(block.Insert, start, []byte(value)))
	case "REPLACE":
		e.Replace(block.New(block.Replace, start, []byte(value)))
	case "REMOVE":
		var end uint64
		for _, c := range value {
			if c < '0' || c > '9' {
				break
			}
			end = end*10 + uint64(c-'0')
		}
		e.Remove(block.NewRange(start, end))
	}
}

func TestEmptyBlockDiscarded(t *testing.T) {
	for level := uint8(0); level <= 3; level++ {
		e := New(level)
		e.Insert(block.Block{})
		e.Remove(block.Block{})
		e.Replace(block.Block{})
		if e.Len() != 0 {
			t.Errorf("level %d: appending empty blocks should leave the sequence empty, got %d", level, e.Len())
		}
	}
}

func TestLevel0AppendOnly(t *testing.T) {
	e := apply(0,
		"INSERT 0 hello world",
		"REMOVE 0 4",
		"INSERT 0 goodbye",
		"REPLACE 8 abcde",
		"REPLACE 8 buddy",
	)
	want := "INSERT 0 hello world\nREMOVE 0 4\nINSERT 0 goodbye\nREPLACE 8 abcde\nREPLACE 8 buddy\n"
	if got := e.Print(); got != want {
		t.Errorf("O0 Print() =\n%s\nwant\n%s", got, want)
	}
}

// simulate plays a stored block program against base, in stored order,
// each position relative to the text as mutated by everything before it —
// the same post-prior-instruction convention the blocks themselves use.
// It lets scenarioA's tests check that an optimized program reproduces the
// unoptimized program's effect even where its instruction-level text
// differs (see scenarioAFinalText).
func simulate(base []byte, program []block.Block) []byte {
	text := append([]byte(nil), base...)
	for _, b := range program {
		start := int(b.Start())
		if start > len(text) {
			start = len(text)
		}
		switch b.Op() {
		case block.Insert:
			out := append([]byte(nil), text[:start]...)
			out = append(out, b.Contents()...)
			text = append(out, text[start:]...)
		case block.Remove:
			end := int(b.End()) + 1
			if end > len(text) {
				end = len(text)
			}
			text = append(append([]byte(nil), text[:start]...), text[end:]...)
		case block.Replace:
			end := start + len(b.Contents())
			if end > len(text) {
				end = len(text)
			}
			out := append([]byte(nil), text[:start]...)
			out = append(out, b.Contents()...)
			text = append(out, text[end:]...)
		}
	}
	return text
}

// scenarioAFinalText is the result of applying Scenario A's five
// instructions, in their original unoptimized order, to an arbitrary base.
// Every optimization level must reproduce it exactly: §4.2's Level-1 INSERT
// pass calls for combine_inserts whenever an existing tail INSERT's
// effective start is not greater than the incoming one's, which is exactly
// what happens once REMOVE 0 4 has shifted "goodbye" to an effective start
// inside "hello world" — so O1 and up fold the two INSERTs into one
// ("hellogoodbye world" / "goodbye world") rather than keeping them as the
// two separate lines spec.md §8's worked trace shows. Both are faithful to
// §4.2's rewrite rules; only the text differs.
func scenarioAFinalText(base []byte) []byte {
	return simulate(base, []block.Block{
		block.New(block.Insert, 0, []byte("hello world")),
		block.NewRange(0, 4),
		block.New(block.Insert, 0, []byte("goodbye")),
		block.New(block.Replace, 8, []byte("abcde")),
		block.New(block.Replace, 8, []byte("buddy")),
	})
}

func scenarioABase() []byte {
	return []byte("________________________________________")
}

func TestScenarioA_Level1(t *testing.T) {
	e := apply(1,
		"INSERT 0 hello world",
		"REMOVE 0 4",
		"INSERT 0 goodbye",
		"REPLACE 8 abcde",
		"REPLACE 8 buddy",
	)
	got := simulate(scenarioABase(), e.Blocks())
	want := scenarioAFinalText(scenarioABase())
	if string(got) != string(want) {
		t.Errorf("O1 simulate() = %q, want %q (Print():\n%s)", got, want, e.Print())
	}
}

func TestScenarioA_Level2(t *testing.T) {
	e := apply(2,
		"INSERT 0 hello world",
		"REMOVE 0 4",
		"INSERT 0 goodbye",
		"REPLACE 8 abcde",
		"REPLACE 8 buddy",
	)
	got := simulate(scenarioABase(), e.Blocks())
	want := scenarioAFinalText(scenarioABase())
	if string(got) != string(want) {
		t.Errorf("O2 simulate() = %q, want %q (Print():\n%s)", got, want, e.Print())
	}
}

func TestScenarioA_Level3(t *testing.T) {
	e := apply(3,
		"INSERT 0 hello world",
		"REMOVE 0 4",
		"INSERT 0 goodbye",
		"REPLACE 8 abcde",
		"REPLACE 8 buddy",
	)
	got := simulate(scenarioABase(), e.Blocks())
	want := scenarioAFinalText(scenarioABase())
	if string(got) != string(want) {
		t.Errorf("O3 simulate() = %q, want %q (Print():\n%s)", got, want, e.Print())
	}
	// O3's dominating-REPLACE rule must additionally have dropped the
	// fully-covered earlier REPLACE.
	if n := e.Len(); n != 2 {
		t.Errorf("O3 Len() = %d, want 2 (INSERT run + dominating REPLACE)", n)
	}
}

func TestScenarioB_InsertSortMerge(t *testing.T) {
	e := apply(1, "INSERT 5 xyz", "INSERT 3 ab")
	want := "INSERT 3 ab\nINSERT 7 xyz\n"
	if got := e.Print(); got != want {
		t.Errorf("Print() =\n%s\nwant\n%s", got, want)
	}
}

func TestScenarioC_RemoveCombine(t *testing.T) {
	e := apply(1, "REMOVE 0 3", "REMOVE 0 2")
	want := "REMOVE 0 6\n"
	if got := e.Print(); got != want {
		t.Errorf("Print() =\n%s\nwant\n%s", got, want)
	}
}

func TestScenarioD_ReplaceSplitByRemove(t *testing.T) {
	e := apply(1, "REPLACE 5 abcd", "REMOVE 6 7")
	want := "REMOVE 6 7\nREPLACE 5 a\nREPLACE 6 d\n"
	if got := e.Print(); got != want {
		t.Errorf("Print() =\n%s\nwant\n%s", got, want)
	}
}

func TestScenarioE_FullCancellation(t *testing.T) {
	e := apply(2, "INSERT 0 hello", "REMOVE 0 4")
	if e.Len() != 0 {
		t.Errorf("Len() = %d, want 0 (full cancellation)", e.Len())
	}
}

// TestRemoveLevel2ShiftsTrailingBlocks exercises theorem #4's cancellation
// when a REPLACE already sits behind the cancelling REMOVE in the
// sequence: the REPLACE's position must move left by the cancelled
// length along with everything else downstream of the shrunk INSERT run.
func TestRemoveLevel2ShiftsTrailingBlocks(t *testing.T) {
	ops := []string{
		"INSERT 0 abcde",
		"REPLACE 10 XY",
		"REMOVE 0 1",
	}
	e := apply(2, ops...)
	base := make([]byte, 64)
	for i := range base {
		base[i] = '_'
	}
	got := simulate(base, e.Blocks())
	want := simulate(base, apply(0, ops...).Blocks())
	if string(got) != string(want) {
		t.Errorf("simulate() = %q, want %q (Print():\n%s)", got, want, e.Print())
	}
}

// TestCollapseWithTwoRemovesPulled exercises theorem #3's collapse path
// when two REMOVEs sit between the exact-coincidence REMOVE and the tail
// (both get pulled into removesPulled before the match is found), and
// checks the result against level-0 ground truth rather than a literal
// Print() string.
func TestCollapseWithTwoRemovesPulled(t *testing.T) {
	ops := []string{
		"REMOVE 5 6",
		"REMOVE 15 17",
		"REMOVE 25 27",
		"INSERT 5 XY",
	}
	e := apply(2, ops...)
	base := make([]byte, 64)
	for i := range base {
		base[i] = '_'
	}
	got := simulate(base, e.Blocks())
	want := simulate(base, apply(0, ops...).Blocks())
	if string(got) != string(want) {
		t.Errorf("simulate() = %q, want %q (Print():\n%s)", got, want, e.Print())
	}
}

func TestLevel1Partitioning(t *testing.T) {
	e := apply(1,
		"REPLACE 20 z",
		"INSERT 10 a",
		"REMOVE 5 6",
		"INSERT 2 b",
		"REMOVE 30 31",
	)

	runOrder := map[block.Op]int{block.Insert: 0, block.Remove: 1, block.Replace: 2}
	maxSeen := -1
	var lastStartInRun uint64
	var curRun block.Op = -1
	for _, b := range e.Blocks() {
		rank := runOrder[b.Op()]
		if rank < maxSeen {
			t.Fatalf("%v block found after a later run had already started", b.Op())
		}
		if rank > maxSeen {
			maxSeen = rank
			curRun = b.Op()
			lastStartInRun = b.Start()
			continue
		}
		if curRun == b.Op() && b.Start() < lastStartInRun {
			t.Errorf("run %v not sorted ascending: %d before %d", curRun, lastStartInRun, b.Start())
		}
		lastStartInRun = b.Start()
	}
}

func TestSetOptimizationLevelReEvaluates(t *testing.T) {
	e := apply(0,
		"INSERT 0 hello world",
		"REMOVE 0 4",
		"INSERT 0 goodbye",
		"REPLACE 8 abcde",
		"REPLACE 8 buddy",
	)
	e.SetOptimizationLevel(2)
	got := simulate(scenarioABase(), e.Blocks())
	want := scenarioAFinalText(scenarioABase())
	if string(got) != string(want) {
		t.Errorf("after SetOptimizationLevel(2) simulate() = %q, want %q (Print():\n%s)", got, want, e.Print())
	}
}

func TestSetOptimizationLevelIdempotent(t *testing.T) {
	e := apply(0,
		"INSERT 0 hello world",
		"REMOVE 0 4",
		"INSERT 0 goodbye",
		"REPLACE 8 abcde",
		"REPLACE 8 buddy",
	)
	e.SetOptimizationLevel(2)
	first := e.Print()
	e.SetOptimizationLevel(2)
	if second := e.Print(); second != first {
		t.Errorf("re-applying the same level must be a no-op; got\n%s\nwant\n%s", second, first)
	}
}

func TestSetOptimizationLevelClampsAtThree(t *testing.T) {
	e := New(9)
	if e.Level() != 3 {
		t.Errorf("Level() = %d, want clamped to 3", e.Level())
	}
	e.SetOptimizationLevel(200)
	if e.Level() != 3 {
		t.Errorf("Level() after SetOptimizationLevel(200) = %d, want 3", e.Level())
	}
}

func TestMonotoneOptimizationLength(t *testing.T) {
	ops := []string{
		"INSERT 0 hello world",
		"REMOVE 0 4",
		"INSERT 0 goodbye",
		"REPLACE 8 abcde",
		"REPLACE 8 buddy",
	}
	var lens [4]int
	for level := uint8(0); level <= 3; level++ {
		lens[level] = apply(level, ops...).Len()
	}
	for l := 1; l <= 3; l++ {
		if lens[l] > lens[l-1] {
			t.Errorf("Len() at level %d (%d) exceeds level %d (%d); optimization must be monotone", l, lens[l], l-1, lens[l-1])
		}
	}
}

func TestReplacePathHasNoCrossBlockRewriteBelowLevel3(t *testing.T) {
	e := New(2)
	e.Replace(block.New(block.Replace, 0, []byte("abcde")))
	e.Replace(block.New(block.Replace, 0, []byte("xy")))
	if e.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (REPLACE appends unconditionally below level 3)", e.Len())
	}
}

func TestDominatingReplaceAtLevel3(t *testing.T) {
	e := New(3)
	e.Replace(block.New(block.Replace, 8, []byte("abcde")))
	e.Replace(block.New(block.Replace, 8, []byte("buddy")))
	want := "REPLACE 8 buddy\n"
	if got := e.Print(); got != want {
		t.Errorf("Print() =\n%s\nwant\n%s", got, want)
	}
}

func TestPrintRendersZeroByteAsPlaceholder(t *testing.T) {
	e := New(0)
	e.Insert(block.New(block.Insert, 0, []byte{0, 'a', 0}))
	want := "INSERT 0 ?a?\n"
	if got := e.Print(); got != want {
		t.Errorf("Print() = %q, want %q", got, want)
	}
}
