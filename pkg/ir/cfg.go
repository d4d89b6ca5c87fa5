// Package ir holds the translator's intermediate representation: operands,
// operations, phi nodes, basic blocks and the control-flow graph that owns
// them for the duration of one compilation.
package ir

import (
	"fmt"
)

// ControlFlowGraph is an ordered list of blocks. Blocks[i].Index == i and
// Blocks[0] is the entry block.
type ControlFlowGraph struct {
	Entry  *BasicBlock
	Blocks []*BasicBlock

	// LocalsCount is the number of numbered locals handed out by NewLocal.
	LocalsCount int
}

// NewControlFlowGraph creates a graph with an empty entry block.
func NewControlFlowGraph() *ControlFlowGraph {
	cfg := &ControlFlowGraph{}
	cfg.Entry = cfg.NewBlock()
	return cfg
}

// NewBlock appends a new empty block in layout order.
func (cfg *ControlFlowGraph) NewBlock() *BasicBlock {
	block := &BasicBlock{Index: len(cfg.Blocks)}
	cfg.Blocks = append(cfg.Blocks, block)
	return block
}

// AddEdge records a control-flow edge from -> to.
func (cfg *ControlFlowGraph) AddEdge(from, to *BasicBlock) {
	from.Successors = append(from.Successors, to)
	to.Predecessors = append(to.Predecessors, from)
}

// NewLocal returns a numbered local. The same pointer must be used for every
// access to the variable.
func (cfg *ControlFlowGraph) NewLocal(t OperandType) *Operand {
	cfg.LocalsCount++
	return &Operand{Kind: KindLocal, Type: t, Value: uint64(cfg.LocalsCount)}
}

// HasDominance reports whether dominance information is attached to every
// block.
func (cfg *ControlFlowGraph) HasDominance() bool {
	if cfg.Entry == nil || cfg.Entry.ImmediateDominator != cfg.Entry {
		return false
	}
	for _, block := range cfg.Blocks {
		if block.ImmediateDominator == nil {
			return false
		}
	}
	return true
}

// Validate checks the structural invariants the back end relies on: dense
// indices, an entry block in slot 0 and symmetric edges.
func (cfg *ControlFlowGraph) Validate() error {
	if len(cfg.Blocks) == 0 || cfg.Entry != cfg.Blocks[0] {
		return fmt.Errorf("entry block must be the first block")
	}
	for i, block := range cfg.Blocks {
		if block.Index != i {
			return fmt.Errorf("block at position %d has index %d", i, block.Index)
		}
		if len(block.Successors) > 2 {
			return fmt.Errorf("block %d has %d successors", i, len(block.Successors))
		}
		for _, succ := range block.Successors {
			if succ.PredecessorIndex(block) < 0 {
				return fmt.Errorf("edge %d -> %d missing from predecessor list", i, succ.Index)
			}
		}
	}
	return nil
}
