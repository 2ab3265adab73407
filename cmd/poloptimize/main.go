// poloptimize is the CLI driver for the instruction optimizer: it parses
// a positional edit-instruction sequence (from -s or -f), runs it through
// an expr.Expression at the requested optimization level, and prints the
// optimized program. With -d it writes the debug/ snapshots instead and
// prints nothing.
//
// This is an external collaborator per spec.md §1/§6, not THE CORE;
// flag wiring follows edwood's acme.go convention of package-level
// flag vars parsed once in main.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/rjkroege/polonius-opt/block"
	"github.com/rjkroege/polonius-opt/expr"
	"github.com/rjkroege/polonius-opt/instr"
	"github.com/rjkroege/polonius-opt/internal/elogtrace"
)

// Exit codes per spec.md §6: 0 success, 1 parse failure, 2 I/O failure,
// 3 unknown operation.
const (
	exitOK          = 0
	exitParseError  = 1
	exitIOError     = 2
	exitUnknownKind = 3
)

var (
	levelFlag    = flag.Int("O", 0, "optimization level (0-3)")
	sequenceFlag = flag.String("s", "", "instruction sequence to optimize")
	fileFlag     = flag.String("f", "", "read instruction sequence from path")
	debugFlag    = flag.Bool("d", false, "dump pre/post optimization snapshots under debug/")
)

var errlog = log.New(os.Stderr, "", 0)

func main() {
	// Accept the level attached to the flag (-O2) as well as -O 2 and -O=2.
	for i := 1; i < len(os.Args); i++ {
		if a := os.Args[i]; len(a) > 2 && strings.HasPrefix(a, "-O") && a[2] >= '0' && a[2] <= '9' {
			os.Args[i] = "-O=" + a[2:]
		}
	}
	flag.Parse()
	os.Exit(run())
}

func run() int {
	sequence, code := loadSequence()
	if code != exitOK {
		return code
	}

	instructions, err := instr.Parse(sequence)
	if err != nil {
		errlog.Printf("parse error: %v", err)
		if errors.Is(err, instr.ErrUnknownKind) {
			return exitUnknownKind
		}
		return exitParseError
	}

	expression := expr.New(uint8(*levelFlag))

	var tracer *elogtrace.Tracer
	if *debugFlag {
		tracer, err = elogtrace.New("debug")
		if err != nil {
			errlog.Printf("debug setup failed: %v", err)
			return exitIOError
		}
	}

	for _, in := range instructions {
		if err := instr.Apply(expression, in); err != nil {
			errlog.Printf("apply error: %v", err)
			return exitUnknownKind
		}
		if tracer != nil {
			if err := tracer.Step(printInstruction(in), expression.Print()); err != nil {
				errlog.Printf("debug dump failed: %v", err)
				return exitIOError
			}
		}
	}

	if !*debugFlag {
		fmt.Print(expression.Print())
	}
	return exitOK
}

func loadSequence() (string, int) {
	if *fileFlag != "" {
		data, err := os.ReadFile(*fileFlag)
		if err != nil {
			errlog.Printf("failed to open file: %v", err)
			return "", exitIOError
		}
		return string(data), exitOK
	}
	return *sequenceFlag, exitOK
}

// printInstruction renders the instruction the way it was consumed, for
// the debug dump's running "original" history.
func printInstruction(in instr.Instruction) string {
	if in.Kind == block.Remove {
		return fmt.Sprintf("%s %d %d", in.Kind, in.Start, in.End)
	}
	return fmt.Sprintf("%s %d %s", in.Kind, in.Start, in.Value)
}
