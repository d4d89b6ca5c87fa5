//go:build linux && amd64

// Package native transfers control from Go into generated machine code.
package native

// Supported reports whether Call can run generated code on this platform.
const Supported = true

// Call runs the function at entry with arg in RDI following the System V
// AMD64 convention and returns RAX. The callee runs on a stack carved out of
// the trampoline's own frame and must not allocate more than MaxFrameSize.
func Call(entry uintptr, arg uint64) uint64 {
	return callSysV(entry, arg)
}

func callSysV(entry uintptr, arg uint64) uint64
