//go:build !linux || !amd64

// Package native transfers control from Go into generated machine code.
// Only linux/amd64 is supported; elsewhere Call panics.
package native

const Supported = false

func Call(entry uintptr, arg uint64) uint64 {
	panic("native: generated code can only run on linux/amd64")
}
