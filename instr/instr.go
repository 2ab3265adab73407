// Package instr implements the textual instruction protocol described in
// spec.md §6: the line-oriented, ';'-separated INSERT/REMOVE/REPLACE
// grammar that the CLI layer (cmd/poloptimize) uses to feed block.Blocks
// into an expr.Expression.
//
// This is an external collaborator, not THE CORE: the grammar is
// deliberately simple and is re-implemented here from spec.md's prose and
// the original_source/helpers.cpp tokenizer it distills, in the idiom of
// edwood's own command-line tokenizer (edit.go's getnum/cmdtext split on
// whitespace with escape handling).
package instr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rjkroege/polonius-opt/block"
)

// ErrParse reports a malformed instruction line: wrong arity or a
// non-integer position/end field.
var ErrParse = fmt.Errorf("malformed instruction")

// ErrUnknownKind reports an instruction whose kind word is none of
// INSERT, REMOVE, REPLACE.
var ErrUnknownKind = fmt.Errorf("unknown instruction kind")

// Instruction is a single parsed line of the textual protocol, not yet
// turned into a block.Block (that requires knowing the Expression it will
// be appended to only insofar as Kind selects the entry point).
type Instruction struct {
	Kind  block.Op
	Start uint64
	End   uint64 // meaningful only for Kind == block.Remove
	Value []byte // meaningful only for Kind == block.Insert/block.Replace
}

// Block converts the parsed instruction into a block.Block, ready to hand
// to the matching Expression method (Insert/Remove/Replace).
func (in Instruction) Block() block.Block {
	if in.Kind == block.Remove {
		return block.NewRange(in.Start, in.End)
	}
	return block.New(in.Kind, in.Start, in.Value)
}

// Sink is the subset of *expr.Expression that Apply needs. Declaring it
// here (rather than importing expr) keeps instr a leaf package with no
// dependency on the rewrite engine, matching THE CORE's "instr feeds the
// core via a small API" framing in spec.md §1.
type Sink interface {
	Insert(block.Block)
	Remove(block.Block)
	Replace(block.Block)
}

// Apply feeds a parsed Instruction into sink via the operation-specific
// entry point named in spec.md §4.2.
func Apply(sink Sink, in Instruction) error {
	b := in.Block()
	switch in.Kind {
	case block.Insert:
		sink.Insert(b)
	case block.Remove:
		sink.Remove(b)
	case block.Replace:
		sink.Replace(b)
	default:
		return fmt.Errorf("%w: %v", ErrUnknownKind, in.Kind)
	}
	return nil
}

// Parse splits sequence into Instructions. sequence may contain multiple
// lines (split on '\n') and, within a line, multiple instructions of the
// same kind chained with ';' — the kind word appears once per line, per
// spec.md §6, with later chained segments supplying only the remaining
// position/value fields.
func Parse(sequence string) ([]Instruction, error) {
	var out []Instruction
	for _, line := range explode(sequence, '\n', true, 0, true) {
		instrs, err := parseLine(line)
		if err != nil {
			return nil, err
		}
		out = append(out, instrs...)
	}
	return out, nil
}

func parseLine(line string) ([]Instruction, error) {
	if strings.TrimSpace(line) == "" {
		return nil, nil
	}
	parts := explode(line, ';', true, 0, true)
	if len(parts) == 0 {
		return nil, nil
	}

	kind, err := kindWord(parts[0])
	if err != nil {
		return nil, err
	}

	first, err := parseFields(parts[0])
	if err != nil {
		return nil, err
	}
	out := []Instruction{first}

	for _, chained := range parts[1:] {
		if strings.TrimSpace(chained) == "" {
			continue
		}
		in, err := parseFields(chainedLine(kind, chained))
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

// chainedLine reconstructs a full "<KIND> <position> <value-or-end>" line
// from a ';'-chained segment. Per spec.md §6 the kind word appears once
// per line, so a bare segment like " 0 2" is prefixed with the line's
// kind; a segment that repeats the kind word itself (as in spec.md §8's
// scenario notation) is passed through unchanged.
func chainedLine(kind block.Op, segment string) string {
	if _, err := kindWord(segment); err == nil {
		return segment
	}
	return kindWordPrefix(kind) + segment
}

// kindWord extracts the first whitespace-delimited field of line (the
// instruction kind), without consuming the rest.
func kindWord(line string) (block.Op, error) {
	fields := explode(line, ' ', true, 2, false)
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: empty instruction", ErrParse)
	}
	switch strings.ToUpper(fields[0]) {
	case "INSERT":
		return block.Insert, nil
	case "REMOVE":
		return block.Remove, nil
	case "REPLACE":
		return block.Replace, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, fields[0])
	}
}

func kindWordPrefix(kind block.Op) string {
	return kind.String() + " "
}

// parseFields parses one fully-qualified "<KIND> <position> <value-or-end>"
// line into an Instruction. Splitting caps at three fields so the value
// field keeps interior spaces; a backslash escapes the field separator.
func parseFields(line string) (Instruction, error) {
	fields := explode(line, ' ', true, 3, false)
	if len(fields) != 3 {
		return Instruction{}, fmt.Errorf("%w: %q", ErrParse, line)
	}

	kind, err := kindWord(fields[0])
	if err != nil {
		return Instruction{}, err
	}

	start, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Instruction{}, fmt.Errorf("%w: bad position %q: %v", ErrParse, fields[1], err)
	}

	in := Instruction{Kind: kind, Start: start}
	if kind == block.Remove {
		end, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return Instruction{}, fmt.Errorf("%w: bad end %q: %v", ErrParse, fields[2], err)
		}
		in.End = end
	} else {
		in.Value = []byte(fields[2])
	}
	return in, nil
}

// explode splits input on delimiter, honoring backslash escapes of the
// delimiter itself. maximum caps the number of result elements (0 means
// unbounded), appending the remainder of the input verbatim to the final
// element once reached. preserveEmpty controls whether empty elements are
// kept. Ported from original_source/helpers.cpp's explode() to keep the
// exact field-splitting semantics the spec's protocol relies on.
func explode(input string, delimiter byte, canEscape bool, maximum int, preserveEmpty bool) []string {
	var result []string
	var current strings.Builder
	escaped := false

	for i := 0; i < len(input); i++ {
		c := input[i]

		if c == '\\' {
			if escaped {
				current.WriteByte('\\')
				current.WriteByte(c)
				escaped = false
				continue
			}
			if !canEscape {
				current.WriteByte(c)
				escaped = false
			} else {
				escaped = true
			}
			continue
		}

		if c == delimiter {
			if maximum > 0 && len(result) >= maximum-1 {
				if escaped {
					current.WriteByte('\\')
					escaped = false
				}
				current.WriteByte(c)
				continue
			}
			if escaped {
				current.WriteByte(c)
				escaped = false
			} else {
				if current.Len() > 0 || preserveEmpty {
					result = append(result, current.String())
					current.Reset()
				}
			}
			continue
		}

		if escaped {
			current.WriteByte('\\')
			escaped = false
		}
		current.WriteByte(c)
	}
	if current.Len() > 0 || preserveEmpty {
		result = append(result, current.String())
	}
	return result
}
