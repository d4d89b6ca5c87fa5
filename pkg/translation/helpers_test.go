package translation

import (
	"testing"

	"translator/pkg/ir"
	"translator/pkg/jitcache"
	"translator/pkg/memory"
)

func r(index int) *ir.Operand { return ir.Reg(index, ir.Integer, ir.I64) }

func newCache(t *testing.T, allocator memory.Allocator, size int) *jitcache.Cache {
	t.Helper()

	config := jitcache.DefaultConfig()
	config.Size = size

	cache := jitcache.New(config)
	if err := cache.Initialize(allocator); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return cache
}

// diamond computes x < 10 ? x + 100 : x * 2. Dominance is left unset.
func diamond() *ir.ControlFlowGraph {
	cfg := ir.NewControlFlowGraph()
	entry := cfg.Entry
	left := cfg.NewBlock()
	right := cfg.NewBlock()
	merge := cfg.NewBlock()

	cfg.AddEdge(entry, right)
	cfg.AddEdge(entry, left)
	cfg.AddEdge(left, merge)
	cfg.AddEdge(right, merge)

	cond := ir.Reg(0, ir.Flag, ir.I32)
	entry.Append(ir.NewOperation(ir.LoadArgument, r(0), ir.Const32(0)))
	entry.Append(ir.NewOperation(ir.CompareLess, cond, r(0), ir.Const(10)))
	entry.Append(ir.NewOperation(ir.BranchIf, nil, cond))

	left.Append(ir.NewOperation(ir.Add, r(1), r(0), ir.Const(100)))
	left.Append(ir.NewOperation(ir.Branch, nil))

	right.Append(ir.NewOperation(ir.Multiply, r(1), r(0), ir.Const(2)))
	right.Append(ir.NewOperation(ir.Branch, nil))

	merge.Append(ir.NewOperation(ir.Return, nil, r(1)))

	return cfg
}

// fibonacci returns the n-th Fibonacci number with a loop, so the header
// block carries phis for three registers.
func fibonacci() *ir.ControlFlowGraph {
	cfg := ir.NewControlFlowGraph()
	entry := cfg.Entry
	header := cfg.NewBlock()
	body := cfg.NewBlock()
	exit := cfg.NewBlock()

	cfg.AddEdge(entry, header)
	cfg.AddEdge(header, body)
	cfg.AddEdge(header, exit)
	cfg.AddEdge(body, header)

	done := ir.Reg(0, ir.Flag, ir.I32)

	entry.Append(ir.NewOperation(ir.LoadArgument, r(0), ir.Const32(0)))
	entry.Append(ir.NewOperation(ir.Copy, r(1), ir.Const(0)))
	entry.Append(ir.NewOperation(ir.Copy, r(2), ir.Const(1)))
	entry.Append(ir.NewOperation(ir.Branch, nil))

	header.Append(ir.NewOperation(ir.CompareEqual, done, r(0), ir.Const(0)))
	header.Append(ir.NewOperation(ir.BranchIf, nil, done))

	body.Append(ir.NewOperation(ir.Add, r(3), r(1), r(2)))
	body.Append(ir.NewOperation(ir.Copy, r(1), r(2)))
	body.Append(ir.NewOperation(ir.Copy, r(2), r(3)))
	body.Append(ir.NewOperation(ir.Subtract, r(0), r(0), ir.Const(1)))
	body.Append(ir.NewOperation(ir.Branch, nil))

	exit.Append(ir.NewOperation(ir.Return, nil, r(1)))

	return cfg
}

func withDominance(cfg *ir.ControlFlowGraph) *ir.ControlFlowGraph {
	ir.ComputeDominance(cfg)
	return cfg
}

var unary = []ir.OperandType{ir.I64}

// increments returns x + count as count additions to one register. In SSA
// form every addition gets its own stack slot.
func increments(count int) *ir.ControlFlowGraph {
	cfg := ir.NewControlFlowGraph()
	cfg.Entry.Append(ir.NewOperation(ir.LoadArgument, r(0), ir.Const32(0)))
	for i := 0; i < count; i++ {
		cfg.Entry.Append(ir.NewOperation(ir.Add, r(0), r(0), ir.Const(1)))
	}
	cfg.Entry.Append(ir.NewOperation(ir.Return, nil, r(0)))
	return cfg
}
