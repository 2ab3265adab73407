// Package elogtrace implements the optional "-d" debug-dump support
// described in spec.md §6: a per-instruction snapshot pair written under
// a debug/ directory, one file recording the instruction text fed in so
// far and one recording the Expression's fully-optimized state
// immediately after that instruction's rewrite pass completes.
//
// The cadence (one file pair per appended instruction, 1-based, reset per
// invocation) is grounded in original_source/helpers.cpp's
// parse_instruction, the only place in the original implementation that
// writes these files.
package elogtrace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Tracer writes numbered original/optimized snapshot pairs into dir.
type Tracer struct {
	dir     string
	step    uint64
	history []byte // accumulated original instruction text, step_counter-style
}

// New creates a Tracer rooted at dir, creating the directory if needed
// and clearing any stale *.txt dumps left over from a previous run (the
// same "rm -f debug/*.txt" edwood's teacher source performs on -d).
func New(dir string) (*Tracer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("elogtrace: creating %s: %w", dir, err)
	}
	stale, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("elogtrace: listing %s: %w", dir, err)
	}
	for _, f := range stale {
		if err := os.Remove(f); err != nil {
			return nil, fmt.Errorf("elogtrace: clearing %s: %w", f, err)
		}
	}
	return &Tracer{dir: dir}, nil
}

// Step records one processed instruction: rawLine is the instruction
// text as parsed, optimized is the Expression's Print() output
// immediately after rawLine's rewrite pass completed.
func (t *Tracer) Step(rawLine, optimized string) error {
	t.step++
	t.history = append(t.history, []byte(rawLine)...)
	t.history = append(t.history, '\n')

	if err := t.writeSynced(fmt.Sprintf("original-%d.txt", t.step), t.history); err != nil {
		return err
	}
	return t.writeSynced(fmt.Sprintf("optimized-%d.txt", t.step), []byte(optimized))
}

func (t *Tracer) writeSynced(name string, contents []byte) error {
	path := filepath.Join(t.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("elogtrace: opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(contents); err != nil {
		return fmt.Errorf("elogtrace: writing %s: %w", path, err)
	}
	return fsyncFile(f)
}
