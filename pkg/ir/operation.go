package ir

import (
	"fmt"
)

// Instruction is the opcode of an Operation.
type Instruction uint16

const (
	Add Instruction = iota
	BitwiseAnd
	BitwiseExclusiveOr
	BitwiseOr
	Branch
	BranchIf
	CompareEqual
	CompareLess
	CompareNotEqual
	Copy
	LoadArgument
	Multiply
	Return
	Subtract

	InstructionCount
)

var instructionNames = [InstructionCount]string{
	Add:                "add",
	BitwiseAnd:         "and",
	BitwiseExclusiveOr: "xor",
	BitwiseOr:          "or",
	Branch:             "br",
	BranchIf:           "brif",
	CompareEqual:       "ceq",
	CompareLess:        "clt",
	CompareNotEqual:    "cne",
	Copy:               "copy",
	LoadArgument:       "ldarg",
	Multiply:           "mul",
	Return:             "ret",
	Subtract:           "sub",
}

func (i Instruction) String() string {
	if i < InstructionCount {
		return instructionNames[i]
	}
	return fmt.Sprintf("Instruction(%d)", uint16(i))
}

// IsTerminator reports whether i ends a basic block.
func (i Instruction) IsTerminator() bool {
	return i == Branch || i == BranchIf || i == Return
}

// Node is an element of a block's operation list.
type Node interface {
	Destination() *Operand
	SetDestination(dest *Operand)
	SourcesCount() int
	Source(index int) *Operand
	SetSource(index int, src *Operand)
}

// Operation is an ordinary IR node with zero or one destination.
type Operation struct {
	Instruction Instruction

	dest    *Operand
	sources []*Operand
}

// NewOperation creates an operation. dest may be nil.
func NewOperation(inst Instruction, dest *Operand, sources ...*Operand) *Operation {
	return &Operation{Instruction: inst, dest: dest, sources: sources}
}

func (o *Operation) Destination() *Operand          { return o.dest }
func (o *Operation) SetDestination(dest *Operand)   { o.dest = dest }
func (o *Operation) SourcesCount() int              { return len(o.sources) }
func (o *Operation) Source(index int) *Operand      { return o.sources[index] }
func (o *Operation) SetSource(index int, s *Operand) { o.sources[index] = s }

// PhiNode merges one value per predecessor of the block it lives in.
type PhiNode struct {
	dest    *Operand
	sources []*Operand
	blocks  []*BasicBlock
}

// NewPhiNode creates a phi with room for predecessorsCount incoming values.
func NewPhiNode(dest *Operand, predecessorsCount int) *PhiNode {
	return &PhiNode{
		dest:    dest,
		sources: make([]*Operand, predecessorsCount),
		blocks:  make([]*BasicBlock, predecessorsCount),
	}
}

func (p *PhiNode) Destination() *Operand          { return p.dest }
func (p *PhiNode) SetDestination(dest *Operand)   { p.dest = dest }
func (p *PhiNode) SourcesCount() int              { return len(p.sources) }
func (p *PhiNode) Source(index int) *Operand      { return p.sources[index] }
func (p *PhiNode) SetSource(index int, s *Operand) { p.sources[index] = s }

// Block returns the predecessor the index-th source flows in from.
func (p *PhiNode) Block(index int) *BasicBlock { return p.blocks[index] }

// SetBlock tags the index-th source with its predecessor.
func (p *PhiNode) SetBlock(index int, block *BasicBlock) { p.blocks[index] = block }

// SourceFor returns the incoming value from pred, or nil if pred is not an
// incoming block of this phi.
func (p *PhiNode) SourceFor(pred *BasicBlock) *Operand {
	for i, b := range p.blocks {
		if b == pred {
			return p.sources[i]
		}
	}
	return nil
}
