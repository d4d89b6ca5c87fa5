package ir

import (
	"fmt"
	"strings"
)

// Dump renders the graph as text. Unnumbered locals are named %0, %1, ...
// in order of first appearance so two dumps of equivalent graphs compare
// equal.
func Dump(cfg *ControlFlowGraph) string {
	var sb strings.Builder
	names := make(map[*Operand]int)

	name := func(o *Operand) string {
		if o == nil {
			return "<nil>"
		}
		if o.Kind == KindLocal && o.Value == 0 {
			id, ok := names[o]
			if !ok {
				id = len(names)
				names[o] = id
			}
			return fmt.Sprintf("%%%d", id)
		}
		return o.String()
	}

	for _, block := range cfg.Blocks {
		sb.WriteString(fmt.Sprintf("block%d:", block.Index))
		if len(block.Predecessors) > 0 {
			sb.WriteString(" ; preds:")
			for _, pred := range block.Predecessors {
				sb.WriteString(fmt.Sprintf(" block%d", pred.Index))
			}
		}
		sb.WriteString("\n")

		for _, node := range block.Operations {
			sb.WriteString("    ")
			if dest := node.Destination(); dest != nil {
				sb.WriteString(fmt.Sprintf("%s %s = ", dest.Type, name(dest)))
			}
			switch n := node.(type) {
			case *PhiNode:
				sb.WriteString("phi")
				for i := 0; i < n.SourcesCount(); i++ {
					if i > 0 {
						sb.WriteString(",")
					}
					pred := "?"
					if b := n.Block(i); b != nil {
						pred = fmt.Sprintf("block%d", b.Index)
					}
					sb.WriteString(fmt.Sprintf(" [%s, %s]", pred, name(n.Source(i))))
				}
			case *Operation:
				sb.WriteString(n.Instruction.String())
				for i := 0; i < n.SourcesCount(); i++ {
					if i > 0 {
						sb.WriteString(",")
					}
					sb.WriteString(" " + name(n.Source(i)))
				}
			}
			sb.WriteString("\n")
		}

		if len(block.Successors) > 0 {
			sb.WriteString("    ; succs:")
			for _, succ := range block.Successors {
				sb.WriteString(fmt.Sprintf(" block%d", succ.Index))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
