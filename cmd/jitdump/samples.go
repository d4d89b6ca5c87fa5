package main

import (
	"fmt"
	"log"

	"github.com/dustin/go-humanize"

	"translator/pkg/codegen"
	"translator/pkg/diagnostics"
	"translator/pkg/ir"
	"translator/pkg/jitcache"
	"translator/pkg/memory"
	"translator/pkg/native"
	"translator/pkg/translation"
)

type sample struct {
	name  string
	build func() *ir.ControlFlowGraph
	args  []uint64
}

var samples = []sample{
	{"diamond", diamond, []uint64{5, 20}},
	{"fibonacci", fibonacci, []uint64{10, 50}},
	{"sumsquares", sumSquares, []uint64{3, 100}},
}

func reg(index int) *ir.Operand { return ir.Reg(index, ir.Integer, ir.I64) }

// x < 10 ? x + 100 : x * 2
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
	entry.Append(ir.NewOperation(ir.LoadArgument, reg(0), ir.Const32(0)))
	entry.Append(ir.NewOperation(ir.CompareLess, cond, reg(0), ir.Const(10)))
	entry.Append(ir.NewOperation(ir.BranchIf, nil, cond))

	left.Append(ir.NewOperation(ir.Add, reg(1), reg(0), ir.Const(100)))
	left.Append(ir.NewOperation(ir.Branch, nil))

	right.Append(ir.NewOperation(ir.Multiply, reg(1), reg(0), ir.Const(2)))
	right.Append(ir.NewOperation(ir.Branch, nil))

	merge.Append(ir.NewOperation(ir.Return, nil, reg(1)))
	return cfg
}

// counted loop over a, b = b, a+b
func fibonacci() *ir.ControlFlowGraph {
	return countedLoop(func(body *ir.BasicBlock) {
		body.Append(ir.NewOperation(ir.Add, reg(3), reg(1), reg(2)))
		body.Append(ir.NewOperation(ir.Copy, reg(1), reg(2)))
		body.Append(ir.NewOperation(ir.Copy, reg(2), reg(3)))
	}, 0, 1)
}

// 1*1 + 2*2 + ... + n*n
func sumSquares() *ir.ControlFlowGraph {
	return countedLoop(func(body *ir.BasicBlock) {
		body.Append(ir.NewOperation(ir.Multiply, reg(3), reg(0), reg(0)))
		body.Append(ir.NewOperation(ir.Add, reg(1), reg(1), reg(3)))
	}, 0, 0)
}

// countedLoop runs step with r0 counting down from the argument to 1 and
// returns r1. r1 and r2 start at init1 and init2.
func countedLoop(step func(body *ir.BasicBlock), init1, init2 uint64) *ir.ControlFlowGraph {
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

	entry.Append(ir.NewOperation(ir.LoadArgument, reg(0), ir.Const32(0)))
	entry.Append(ir.NewOperation(ir.Copy, reg(1), ir.Const(init1)))
	entry.Append(ir.NewOperation(ir.Copy, reg(2), ir.Const(init2)))
	entry.Append(ir.NewOperation(ir.Branch, nil))

	header.Append(ir.NewOperation(ir.CompareEqual, done, reg(0), ir.Const(0)))
	header.Append(ir.NewOperation(ir.BranchIf, nil, done))

	step(body)
	body.Append(ir.NewOperation(ir.Subtract, reg(0), reg(0), ir.Const(1)))
	body.Append(ir.NewOperation(ir.Branch, nil))

	exit.Append(ir.NewOperation(ir.Return, nil, reg(1)))
	return cfg
}

func compileSamples(config translation.Config, store *diagnostics.DumpStore) error {
	options, err := config.CompilerOptions()
	if err != nil {
		return err
	}

	cache := jitcache.New(config.CacheConfig())
	if err := cache.Initialize(memory.DefaultAllocator()); err != nil {
		return err
	}

	dumper, err := diagnostics.NewDumper(store, config.DumpConcurrency)
	if err != nil {
		return err
	}

	compiler := translation.NewCompiler(cache, codegen.AMD64Generator{},
		translation.WithDumper(dumper),
		translation.WithPassLogger(diagnostics.NewPassLogger(config.LogPasses)))

	for _, s := range samples {
		cfg := s.build()
		ir.ComputeDominance(cfg)

		fn, err := compiler.Compile(cfg, []ir.OperandType{ir.I64}, ir.I64, options, s.name)
		if err != nil {
			return err
		}
		log.Printf("Compiled %v at %v", fn, options)

		if !native.Supported {
			continue
		}
		for _, arg := range s.args {
			result, err := fn.Call(arg)
			if err != nil {
				return err
			}
			fmt.Printf("%s(%d) = %d\n", s.name, arg, result)
		}
	}

	stats := cache.Stats()
	log.Printf("Code cache holds %d functions in %s, %s committed",
		stats.Functions, humanize.IBytes(uint64(stats.UsedBytes)), humanize.IBytes(stats.CommittedBytes))

	if err := dumper.Wait(); err != nil {
		return err
	}
	return store.Flush()
}
