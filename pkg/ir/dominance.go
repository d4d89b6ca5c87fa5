package ir

// FindDominators computes immediate dominators with the Cooper, Harvey and
// Kennedy iterative algorithm. Blocks unreachable from the entry are left
// without a dominator.
func FindDominators(cfg *ControlFlowGraph) {
	for _, block := range cfg.Blocks {
		block.ImmediateDominator = nil
	}

	postOrder := postOrderBlocks(cfg)
	postIndex := make([]int, len(cfg.Blocks))
	for i := range postIndex {
		postIndex[i] = -1
	}
	for i, block := range postOrder {
		postIndex[block.Index] = i
	}

	intersect := func(a, b *BasicBlock) *BasicBlock {
		for a != b {
			for postIndex[a.Index] < postIndex[b.Index] {
				a = a.ImmediateDominator
			}
			for postIndex[b.Index] < postIndex[a.Index] {
				b = b.ImmediateDominator
			}
		}
		return a
	}

	cfg.Entry.ImmediateDominator = cfg.Entry

	for changed := true; changed; {
		changed = false
		for i := len(postOrder) - 1; i >= 0; i-- {
			block := postOrder[i]
			if block == cfg.Entry {
				continue
			}

			var idom *BasicBlock
			for _, pred := range block.Predecessors {
				if pred.ImmediateDominator == nil {
					continue
				}
				if idom == nil {
					idom = pred
				} else {
					idom = intersect(pred, idom)
				}
			}

			if block.ImmediateDominator != idom {
				block.ImmediateDominator = idom
				changed = true
			}
		}
	}
}

// FindDominanceFrontiers fills DominanceFrontiers for every block. Requires
// FindDominators to have run.
func FindDominanceFrontiers(cfg *ControlFlowGraph) {
	for _, block := range cfg.Blocks {
		block.DominanceFrontiers = nil
	}

	for _, block := range cfg.Blocks {
		if len(block.Predecessors) < 2 || block.ImmediateDominator == nil {
			continue
		}
		for _, pred := range block.Predecessors {
			for runner := pred; runner != nil && runner != block.ImmediateDominator; runner = runner.ImmediateDominator {
				if !containsBlock(runner.DominanceFrontiers, block) {
					runner.DominanceFrontiers = append(runner.DominanceFrontiers, block)
				}
				if runner == runner.ImmediateDominator {
					break
				}
			}
		}
	}
}

// ComputeDominance runs FindDominators followed by FindDominanceFrontiers.
func ComputeDominance(cfg *ControlFlowGraph) {
	FindDominators(cfg)
	FindDominanceFrontiers(cfg)
}

func postOrderBlocks(cfg *ControlFlowGraph) []*BasicBlock {
	visited := make([]bool, len(cfg.Blocks))
	order := make([]*BasicBlock, 0, len(cfg.Blocks))

	type frame struct {
		block *BasicBlock
		next  int
	}
	stack := []frame{{block: cfg.Entry}}
	visited[cfg.Entry.Index] = true

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.block.Successors) {
			succ := top.block.Successors[top.next]
			top.next++
			if !visited[succ.Index] {
				visited[succ.Index] = true
				stack = append(stack, frame{block: succ})
			}
			continue
		}
		order = append(order, top.block)
		stack = stack[:len(stack)-1]
	}
	return order
}

func containsBlock(blocks []*BasicBlock, block *BasicBlock) bool {
	for _, b := range blocks {
		if b == block {
			return true
		}
	}
	return false
}
