package ir

// BasicBlock is a straight-line run of operations.
//
// Successors[0] is the fall-through or unconditional target, Successors[1]
// the target taken by a BranchIf when its condition is non-zero.
type BasicBlock struct {
	Index      int
	Operations []Node

	Predecessors []*BasicBlock
	Successors   []*BasicBlock

	// Filled in by the dominance pass. The entry block is its own immediate
	// dominator.
	ImmediateDominator *BasicBlock
	DominanceFrontiers []*BasicBlock
}

// Append adds node at the end of the block.
func (b *BasicBlock) Append(node Node) {
	b.Operations = append(b.Operations, node)
}

// AddPhi inserts phi after any phis already at the front of the block.
func (b *BasicBlock) AddPhi(phi *PhiNode) {
	at := 0
	for at < len(b.Operations) {
		if _, ok := b.Operations[at].(*PhiNode); !ok {
			break
		}
		at++
	}
	b.Operations = append(b.Operations, nil)
	copy(b.Operations[at+1:], b.Operations[at:])
	b.Operations[at] = phi
}

// Phis returns the phi nodes at the front of the block.
func (b *BasicBlock) Phis() []*PhiNode {
	var phis []*PhiNode
	for _, node := range b.Operations {
		phi, ok := node.(*PhiNode)
		if !ok {
			break
		}
		phis = append(phis, phi)
	}
	return phis
}

// Last returns the final operation of the block, or nil.
func (b *BasicBlock) Last() *Operation {
	if len(b.Operations) == 0 {
		return nil
	}
	op, _ := b.Operations[len(b.Operations)-1].(*Operation)
	return op
}

// PredecessorIndex returns the position of pred in b.Predecessors, or -1.
func (b *BasicBlock) PredecessorIndex(pred *BasicBlock) int {
	for i, p := range b.Predecessors {
		if p == pred {
			return i
		}
	}
	return -1
}

// Dominates reports whether b dominates other. Requires dominance info.
func (b *BasicBlock) Dominates(other *BasicBlock) bool {
	for {
		if other == b {
			return true
		}
		idom := other.ImmediateDominator
		if idom == nil || idom == other {
			return false
		}
		other = idom
	}
}
