// Package ssa rewrites a control-flow graph so that every register and local
// access refers to a value with exactly one definition, inserting phi nodes
// on demand at dominance frontiers.
package ssa

import (
	"translator/pkg/bitmap"
	"translator/pkg/errors"
	"translator/pkg/ir"
)

// defMap tracks, for one block, the last definition of each key in that
// block, which keys need a phi, and which phis have been materialized.
type defMap struct {
	defs     map[int]*ir.Operand
	phiMasks *bitmap.BitMap
	phis     map[int]*ir.Operand
}

func newDefMap() *defMap {
	return &defMap{
		defs:     make(map[int]*ir.Operand),
		phiMasks: bitmap.New(ir.TotalCount),
		phis:     make(map[int]*ir.Operand),
	}
}

func (m *defMap) tryAddOperand(key int, operand *ir.Operand) bool {
	if _, ok := m.defs[key]; ok {
		return false
	}
	m.defs[key] = operand
	return true
}

func (m *defMap) tryGetOperand(key int) (*ir.Operand, bool) {
	operand, ok := m.defs[key]
	return operand, ok
}

func (m *defMap) addPhi(key int) bool {
	return m.phiMasks.Set(key)
}

func (m *defMap) hasPhi(key int) bool {
	return m.phiMasks.IsSet(key)
}

// Construct converts cfg to SSA form in place. Dominators and dominance
// frontiers must already be attached to every block.
func Construct(cfg *ir.ControlFlowGraph) {
	err := cfg.Validate()
	errors.Assert(err == nil, "malformed control-flow graph: %v", err)
	errors.Assert(cfg.HasDominance(), "control-flow graph has no dominance information")

	globalDefs := make([]*defMap, len(cfg.Blocks))
	localDefs := make([]*ir.Operand, cfg.LocalsCount+ir.TotalCount)

	var dfPhiBlocks []*ir.BasicBlock

	for _, block := range cfg.Blocks {
		globalDefs[block.Index] = newDefMap()
	}

	// First pass, rename block-local defs and uses and mark where phis are
	// needed.
	for _, block := range cfg.Blocks {
		for _, node := range block.Operations {
			operation, ok := node.(*ir.Operation)
			if !ok {
				continue
			}

			for index := 0; index < operation.SourcesCount(); index++ {
				src := operation.Source(index)

				if src.IsRegisterOrNumberedLocal() {
					if local := localDefs[keyOf(src)]; local != nil {
						operation.SetSource(index, local)
					}
				}
			}

			dest := operation.Destination()

			if dest.IsRegisterOrNumberedLocal() {
				local := ir.Local(dest.Type)

				localDefs[keyOf(dest)] = local

				operation.SetDestination(local)
			}
		}

		for key, local := range localDefs {
			if local == nil {
				continue
			}

			globalDefs[block.Index].tryAddOperand(key, local)

			dfPhiBlocks = append(dfPhiBlocks, block)

			for len(dfPhiBlocks) > 0 {
				dfPhiBlock := dfPhiBlocks[0]
				dfPhiBlocks = dfPhiBlocks[1:]

				for _, domFrontier := range dfPhiBlock.DominanceFrontiers {
					if globalDefs[domFrontier.Index].addPhi(key) {
						dfPhiBlocks = append(dfPhiBlocks, domFrontier)
					}
				}
			}
		}

		clear(localDefs)
	}

	// Second pass, rename uses whose definition lives in another block.
	for _, block := range cfg.Blocks {
		// Phis may be inserted at the head of this block while it is being
		// scanned, so walk a snapshot.
		nodes := append([]ir.Node(nil), block.Operations...)

		for _, node := range nodes {
			operation, ok := node.(*ir.Operation)
			if !ok {
				continue
			}

			for index := 0; index < operation.SourcesCount(); index++ {
				src := operation.Source(index)

				if !src.IsRegisterOrNumberedLocal() {
					continue
				}

				key := keyOf(src)

				local := localDefs[key]

				if local == nil {
					local = findDef(globalDefs, block, src)
					localDefs[key] = local
				}

				operation.SetSource(index, local)
			}
		}

		clear(localDefs)
	}
}

func findDef(globalDefs []*defMap, current *ir.BasicBlock, operand *ir.Operand) *ir.Operand {
	if globalDefs[current.Index].hasPhi(keyOf(operand)) {
		return insertPhi(globalDefs, current, operand)
	}

	if current != current.ImmediateDominator {
		return findDefOnPred(globalDefs, current.ImmediateDominator, operand)
	}

	return ir.Undef()
}

func findDefOnPred(globalDefs []*defMap, current *ir.BasicBlock, operand *ir.Operand) *ir.Operand {
	key := keyOf(operand)

	for {
		defs := globalDefs[current.Index]

		if lastDef, ok := defs.tryGetOperand(key); ok {
			return lastDef
		}

		if defs.hasPhi(key) {
			return insertPhi(globalDefs, current, operand)
		}

		if current == current.ImmediateDominator {
			return ir.Undef()
		}
		current = current.ImmediateDominator
	}
}

// insertPhi materializes the phi block needs for operand's key, fills one
// source per predecessor and returns the phi's value.
func insertPhi(globalDefs []*defMap, block *ir.BasicBlock, operand *ir.Operand) *ir.Operand {
	key := keyOf(operand)
	defs := globalDefs[block.Index]

	if local, ok := defs.phis[key]; ok {
		return local
	}

	local := ir.Local(operand.Type)

	phi := ir.NewPhiNode(local, len(block.Predecessors))

	block.AddPhi(phi)

	defs.phis[key] = local
	// Registered before the predecessors are walked so loops back into this
	// block find the phi instead of recursing forever.
	defs.tryAddOperand(key, local)

	for index, predecessor := range block.Predecessors {
		phi.SetBlock(index, predecessor)
		phi.SetSource(index, findDefOnPred(globalDefs, predecessor, operand))
	}

	return local
}

// keyOf flattens a register or numbered local into a slot of the per-block
// definition tables.
func keyOf(operand *ir.Operand) int {
	if operand.Kind == ir.KindRegister {
		return operand.Register().Key()
	}
	return ir.TotalCount + operand.Number() - 1
}
