// Package codegen defines what the back end expects from a machine code
// generator and provides a small amd64 generator over the IR.
package codegen

import (
	"translator/pkg/ir"
)

// UnwindPseudoOp describes one step of a function prologue.
type UnwindPseudoOp uint8

const (
	UnwindPushReg UnwindPseudoOp = iota
	UnwindSetFrame
	UnwindAllocStack
)

func (op UnwindPseudoOp) String() string {
	switch op {
	case UnwindPushReg:
		return "push_reg"
	case UnwindSetFrame:
		return "set_frame"
	case UnwindAllocStack:
		return "alloc_stack"
	}
	return "unknown"
}

// UnwindPushEntry records a prologue step ending at PrologOffset.
type UnwindPushEntry struct {
	PseudoOp     UnwindPseudoOp
	PrologOffset int
	RegIndex     int
	StackOffset  int
}

// UnwindInfo is the frame metadata a stack walker needs for a function.
type UnwindInfo struct {
	PushEntries []UnwindPushEntry
	PrologSize  int
}

// CompiledFunction is host machine code plus its frame metadata.
type CompiledFunction struct {
	Code       []byte
	UnwindInfo UnwindInfo
}

// Context is everything a generator is handed for one compilation unit.
type Context struct {
	Cfg        *ir.ControlFlowGraph
	ArgTypes   []ir.OperandType
	ReturnType ir.OperandType

	// Optimize is set when the caller asked for optimized code.
	Optimize bool
	// Lsra selects linear-scan register allocation when the generator has one.
	Lsra bool
}

// Generator turns an IR function into host machine code.
type Generator interface {
	Generate(ctx *Context) (*CompiledFunction, error)
}
