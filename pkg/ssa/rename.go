package ssa

import (
	"translator/pkg/ir"
)

// RenameRegisters replaces every register operand with a local variable, one
// local per register. It is the cheap alternative to Construct for compiler
// modes that do not need single-assignment form: no phis are inserted and the
// resulting locals may be assigned many times.
func RenameRegisters(cfg *ir.ControlFlowGraph) {
	registerToLocal := make(map[ir.Register]*ir.Operand)

	getLocal := func(op *ir.Operand) *ir.Operand {
		reg := op.Register()
		local, ok := registerToLocal[reg]
		if !ok {
			local = ir.Local(op.Type)
			registerToLocal[reg] = local
		}
		return local
	}

	for _, block := range cfg.Blocks {
		for _, node := range block.Operations {
			if dest := node.Destination(); dest != nil && dest.Kind == ir.KindRegister {
				node.SetDestination(getLocal(dest))
			}

			for index := 0; index < node.SourcesCount(); index++ {
				if src := node.Source(index); src != nil && src.Kind == ir.KindRegister {
					node.SetSource(index, getLocal(src))
				}
			}
		}
	}
}
