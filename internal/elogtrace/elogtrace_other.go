//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris)

package elogtrace

import "os"

// fsyncFile is the non-unix fallback: os.File.Sync is portable, matching
// the split edwood takes between expandfile.go and expandfile_win.go.
func fsyncFile(f *os.File) error {
	return f.Sync()
}
