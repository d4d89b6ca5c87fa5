package codegen

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/arch/x86/x86asm"

	"translator/pkg/errors"
	"translator/pkg/ir"
	"translator/pkg/native"
	"translator/pkg/ssa"
)

func r(index int) *ir.Operand { return ir.Reg(index, ir.Integer, ir.I64) }

func decode(t *testing.T, code []byte) []x86asm.Inst {
	t.Helper()

	var insts []x86asm.Inst
	for offset := 0; offset < len(code); {
		inst, err := x86asm.Decode(code[offset:], 64)
		if err != nil {
			t.Fatalf("decode at 0x%x failed: %v (% x)", offset, err, code[offset:])
		}
		insts = append(insts, inst)
		offset += inst.Len
	}
	return insts
}

func ops(insts []x86asm.Inst) []x86asm.Op {
	result := make([]x86asm.Op, len(insts))
	for i, inst := range insts {
		result[i] = inst.Op
	}
	return result
}

// buildDiamond returns f(x) = x < 10 ? x + 100 : x * 2 in SSA form.
func buildDiamond() *ir.ControlFlowGraph {
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

	ir.ComputeDominance(cfg)
	ssa.Construct(cfg)
	return cfg
}

func TestGenerateStraightLine(t *testing.T) {
	cfg := ir.NewControlFlowGraph()
	cfg.Entry.Append(ir.NewOperation(ir.LoadArgument, r(0), ir.Const32(0)))
	cfg.Entry.Append(ir.NewOperation(ir.LoadArgument, r(1), ir.Const32(1)))
	cfg.Entry.Append(ir.NewOperation(ir.Add, r(2), r(0), r(1)))
	cfg.Entry.Append(ir.NewOperation(ir.Return, nil, r(2)))
	ir.ComputeDominance(cfg)
	ssa.Construct(cfg)

	fn, err := AMD64Generator{}.Generate(&Context{
		Cfg:        cfg,
		ArgTypes:   []ir.OperandType{ir.I64, ir.I64},
		ReturnType: ir.I64,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	want := []x86asm.Op{
		x86asm.PUSH, x86asm.MOV, x86asm.SUB, // prologue
		x86asm.MOV, x86asm.MOV, // arg 0
		x86asm.MOV, x86asm.MOV, // arg 1
		x86asm.MOV, x86asm.MOV, x86asm.ADD, x86asm.MOV, // add
		x86asm.MOV,                           // load result
		x86asm.MOV, x86asm.POP, x86asm.RET, // epilogue
	}
	if diff := cmp.Diff(want, ops(decode(t, fn.Code))); diff != "" {
		t.Fatalf("instruction mismatch (-want +got):\n%s", diff)
	}

	wantUnwind := UnwindInfo{
		PushEntries: []UnwindPushEntry{
			{PseudoOp: UnwindPushReg, PrologOffset: 1, RegIndex: int(RBP)},
			{PseudoOp: UnwindSetFrame, PrologOffset: 4, RegIndex: int(RBP)},
			{PseudoOp: UnwindAllocStack, PrologOffset: 8, StackOffset: 32},
		},
		PrologSize: 8,
	}
	if diff := cmp.Diff(wantUnwind, fn.UnwindInfo); diff != "" {
		t.Fatalf("unwind info mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateDiamond(t *testing.T) {
	fn, err := AMD64Generator{}.Generate(&Context{
		Cfg:        buildDiamond(),
		ArgTypes:   []ir.OperandType{ir.I64},
		ReturnType: ir.I64,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	insts := decode(t, fn.Code)

	counts := make(map[x86asm.Op]int)
	for _, inst := range insts {
		counts[inst.Op]++
	}
	if counts[x86asm.RET] != 1 {
		t.Errorf("RET count = %d, want 1", counts[x86asm.RET])
	}
	if counts[x86asm.JNE] != 1 {
		t.Errorf("JNE count = %d, want 1", counts[x86asm.JNE])
	}
	if counts[x86asm.SETL] != 1 {
		t.Errorf("SETL count = %d, want 1", counts[x86asm.SETL])
	}
	// One jump per edge into a block: two out of entry, one each out of
	// the branches.
	if counts[x86asm.JMP] != 4 {
		t.Errorf("JMP count = %d, want 4", counts[x86asm.JMP])
	}
}

func TestGenerateRejectsRegisters(t *testing.T) {
	cfg := ir.NewControlFlowGraph()
	cfg.Entry.Append(ir.NewOperation(ir.Return, nil, r(0)))

	_, err := AMD64Generator{}.Generate(&Context{Cfg: cfg, ReturnType: ir.I64})
	if !errors.IsTranslationError(err) {
		t.Fatalf("Generate error = %v, want a translation error", err)
	}
}

func TestGenerateErrors(t *testing.T) {
	tooManyArgs := make([]ir.OperandType, 7)
	for i := range tooManyArgs {
		tooManyArgs[i] = ir.I64
	}

	unsupported := ir.NewControlFlowGraph()
	unsupported.Entry.Append(ir.NewOperation(ir.Instruction(200), ir.Local(ir.I64), ir.Const(1)))

	fallsOff := ir.NewControlFlowGraph()
	fallsOff.Entry.Append(ir.NewOperation(ir.Copy, ir.Local(ir.I64), ir.Const(1)))

	cases := []struct {
		name string
		ctx  *Context
	}{
		{"too many arguments", &Context{Cfg: ir.NewControlFlowGraph(), ArgTypes: tooManyArgs}},
		{"vector argument", &Context{Cfg: ir.NewControlFlowGraph(), ArgTypes: []ir.OperandType{ir.V128}}},
		{"float return", &Context{Cfg: ir.NewControlFlowGraph(), ReturnType: ir.FP64}},
		{"unsupported instruction", &Context{Cfg: unsupported}},
		{"missing terminator", &Context{Cfg: fallsOff}},
	}

	for _, c := range cases {
		_, err := AMD64Generator{}.Generate(c.ctx)
		if !errors.IsTranslationError(err) {
			t.Errorf("%s: error = %v, want a translation error", c.name, err)
		}
	}
}

// chain returns x + count, one fresh local per step.
func chain(count int) *ir.ControlFlowGraph {
	cfg := ir.NewControlFlowGraph()
	value := ir.Local(ir.I64)
	cfg.Entry.Append(ir.NewOperation(ir.LoadArgument, value, ir.Const32(0)))
	for i := 0; i < count; i++ {
		next := ir.Local(ir.I64)
		cfg.Entry.Append(ir.NewOperation(ir.Add, next, value, ir.Const(1)))
		value = next
	}
	cfg.Entry.Append(ir.NewOperation(ir.Return, nil, value))
	return cfg
}

func TestGenerateFrameLimit(t *testing.T) {
	// One slot for the argument plus one per step.
	largest := native.MaxFrameSize/8 - 1

	fn, err := AMD64Generator{}.Generate(&Context{
		Cfg:        chain(largest),
		ArgTypes:   []ir.OperandType{ir.I64},
		ReturnType: ir.I64,
	})
	if err != nil {
		t.Fatalf("Generate of a %d byte frame failed: %v", native.MaxFrameSize, err)
	}
	if got := fn.UnwindInfo.PushEntries[2].StackOffset; got != native.MaxFrameSize {
		t.Errorf("frame = %d bytes, want %d", got, native.MaxFrameSize)
	}

	for _, count := range []int{largest + 1, 4000} {
		_, err := AMD64Generator{}.Generate(&Context{
			Cfg:        chain(count),
			ArgTypes:   []ir.OperandType{ir.I64},
			ReturnType: ir.I64,
		})
		if !errors.IsTranslationError(err) {
			t.Errorf("chain(%d): error = %v, want a translation error", count, err)
		}
	}
}
