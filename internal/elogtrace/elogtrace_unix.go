//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris
// +build darwin dragonfly freebsd linux netbsd openbsd solaris

package elogtrace

import (
	"os"

	"golang.org/x/sys/unix"
)

// fsyncFile flushes f's data to stable storage before the debug dump
// returns, the same durability-over-throughput posture edwood's disk.go
// takes when persisting edit-log blocks.
func fsyncFile(f *os.File) error {
	return unix.Fsync(int(f.Fd()))
}
