package codegen

import (
	"translator/pkg/errors"
	"translator/pkg/ir"
	"translator/pkg/native"
)

// argumentRegisters follows the System V AMD64 calling convention.
var argumentRegisters = []Reg{RDI, RSI, RDX, RCX, R8, R9}

// AMD64Generator is a straightforward code generator: every IR value lives
// in its own stack slot below RBP and each operation loads its sources into
// RAX and RCX, computes into RAX and stores the result back. Phi nodes are
// lowered to parallel copies on each incoming edge.
type AMD64Generator struct{}

type slotKey struct {
	operand *ir.Operand
	number  int
}

type amd64Function struct {
	ctx *Context
	asm *Assembler

	slots      map[slotKey]int
	tempsBase  int
	frameSize  int
	blockLabel []Label
}

func (AMD64Generator) Generate(ctx *Context) (*CompiledFunction, error) {
	if len(ctx.ArgTypes) > len(argumentRegisters) {
		return nil, errors.TranslationErrorf("%d arguments, at most %d are supported", len(ctx.ArgTypes), len(argumentRegisters))
	}
	for i, t := range ctx.ArgTypes {
		if !t.IsInteger() {
			return nil, errors.TranslationErrorf("argument %d has unsupported type %v", i, t)
		}
	}
	if ctx.ReturnType != ir.None && !ctx.ReturnType.IsInteger() {
		return nil, errors.TranslationErrorf("unsupported return type %v", ctx.ReturnType)
	}

	f := &amd64Function{
		ctx:   ctx,
		asm:   NewAssembler(),
		slots: make(map[slotKey]int),
	}

	if err := f.allocateSlots(); err != nil {
		return nil, err
	}

	unwind := f.emitPrologue()

	for range ctx.Cfg.Blocks {
		f.blockLabel = append(f.blockLabel, f.asm.NewLabel())
	}

	for _, block := range ctx.Cfg.Blocks {
		if err := f.emitBlock(block); err != nil {
			return nil, err
		}
	}

	code, err := f.asm.Bytes()
	if err != nil {
		return nil, errors.WrapTranslationError(err, "resolving branches")
	}

	return &CompiledFunction{Code: code, UnwindInfo: unwind}, nil
}

// allocateSlots gives every local a stack slot and reserves temporaries for
// the widest set of phi copies on any edge.
func (f *amd64Function) allocateSlots() error {
	maxPhis := 0

	visit := func(operand *ir.Operand) error {
		if operand == nil {
			return nil
		}
		switch operand.Kind {
		case ir.KindRegister:
			return errors.TranslationErrorf("register %v survived renaming", operand.Register())
		case ir.KindLocal:
			key := keyFor(operand)
			if _, ok := f.slots[key]; !ok {
				f.slots[key] = len(f.slots)
			}
		}
		return nil
	}

	for _, block := range f.ctx.Cfg.Blocks {
		maxPhis = max(maxPhis, len(block.Phis()))

		for _, node := range block.Operations {
			if err := visit(node.Destination()); err != nil {
				return err
			}
			for index := 0; index < node.SourcesCount(); index++ {
				if err := visit(node.Source(index)); err != nil {
					return err
				}
			}
		}
	}

	f.tempsBase = len(f.slots)

	slotCount := f.tempsBase + maxPhis
	f.frameSize = (slotCount*8 + 15) &^ 15

	if f.frameSize > native.MaxFrameSize {
		return errors.TranslationErrorf("%d values need a %d byte frame, at most %d bytes are available",
			slotCount, f.frameSize, native.MaxFrameSize)
	}

	return nil
}

func keyFor(operand *ir.Operand) slotKey {
	if number := operand.Number(); number > 0 {
		return slotKey{number: number}
	}
	return slotKey{operand: operand}
}

func slotDisp(slot int) int32 {
	return int32(-8 * (slot + 1))
}

func (f *amd64Function) emitPrologue() UnwindInfo {
	var unwind UnwindInfo

	f.asm.Push(RBP)
	unwind.PushEntries = append(unwind.PushEntries, UnwindPushEntry{
		PseudoOp:     UnwindPushReg,
		PrologOffset: f.asm.Offset(),
		RegIndex:     int(RBP),
	})

	f.asm.MovRegReg(RBP, RSP)
	unwind.PushEntries = append(unwind.PushEntries, UnwindPushEntry{
		PseudoOp:     UnwindSetFrame,
		PrologOffset: f.asm.Offset(),
		RegIndex:     int(RBP),
	})

	if f.frameSize > 0 {
		f.asm.SubRegImm32(RSP, int32(f.frameSize))
		unwind.PushEntries = append(unwind.PushEntries, UnwindPushEntry{
			PseudoOp:     UnwindAllocStack,
			PrologOffset: f.asm.Offset(),
			StackOffset:  f.frameSize,
		})
	}

	unwind.PrologSize = f.asm.Offset()
	return unwind
}

func (f *amd64Function) emitEpilogue() {
	f.asm.MovRegReg(RSP, RBP)
	f.asm.Pop(RBP)
	f.asm.Ret()
}

func (f *amd64Function) load(reg Reg, operand *ir.Operand) {
	if operand == nil {
		operand = ir.Undef()
	}

	switch operand.Kind {
	case ir.KindConstant:
		value := operand.Value
		if operand.Type == ir.I32 {
			value = uint64(uint32(value))
		}
		f.asm.MovRegImm(reg, value)
	case ir.KindLocal:
		f.asm.MovRegMem64(reg, RBP, slotDisp(f.slots[keyFor(operand)]))
	default:
		// Undefined values read as zero.
		f.asm.XorRegReg32(reg, reg)
	}
}

func (f *amd64Function) store(operand *ir.Operand, reg Reg) {
	if operand.Type == ir.I32 {
		f.asm.MovRegReg32(reg, reg)
	}
	f.asm.MovMemReg64(RBP, slotDisp(f.slots[keyFor(operand)]), reg)
}

func (f *amd64Function) emitBlock(block *ir.BasicBlock) error {
	f.asm.Bind(f.blockLabel[block.Index])

	terminated := false

	for _, node := range block.Operations {
		operation, ok := node.(*ir.Operation)
		if !ok {
			continue
		}

		switch inst := operation.Instruction; inst {
		case ir.Copy:
			f.load(RAX, operation.Source(0))
			f.store(operation.Destination(), RAX)

		case ir.Add, ir.Subtract, ir.Multiply, ir.BitwiseAnd, ir.BitwiseOr, ir.BitwiseExclusiveOr:
			f.load(RAX, operation.Source(0))
			f.load(RCX, operation.Source(1))
			switch inst {
			case ir.Add:
				f.asm.AddRegReg(RAX, RCX)
			case ir.Subtract:
				f.asm.SubRegReg(RAX, RCX)
			case ir.Multiply:
				f.asm.IMulRegReg(RAX, RCX)
			case ir.BitwiseAnd:
				f.asm.AndRegReg(RAX, RCX)
			case ir.BitwiseOr:
				f.asm.OrRegReg(RAX, RCX)
			case ir.BitwiseExclusiveOr:
				f.asm.XorRegReg(RAX, RCX)
			}
			f.store(operation.Destination(), RAX)

		case ir.CompareEqual, ir.CompareNotEqual, ir.CompareLess:
			left, right := operation.Source(0), operation.Source(1)
			f.load(RAX, left)
			f.load(RCX, right)
			if left.Type == ir.I32 {
				f.asm.CmpRegReg32(RAX, RCX)
			} else {
				f.asm.CmpRegReg(RAX, RCX)
			}
			cond := CondE
			switch inst {
			case ir.CompareNotEqual:
				cond = CondNE
			case ir.CompareLess:
				cond = CondL
			}
			f.asm.Setcc(cond, RAX)
			f.asm.MovzxRegReg8(RAX, RAX)
			f.store(operation.Destination(), RAX)

		case ir.LoadArgument:
			index := int(operation.Source(0).Value)
			if index >= len(f.ctx.ArgTypes) {
				return errors.TranslationErrorf("block %d loads argument %d of %d", block.Index, index, len(f.ctx.ArgTypes))
			}
			f.asm.MovRegReg(RAX, argumentRegisters[index])
			f.store(operation.Destination(), RAX)

		case ir.Return:
			if operation.SourcesCount() > 0 {
				f.load(RAX, operation.Source(0))
				if f.ctx.ReturnType == ir.I32 {
					f.asm.MovRegReg32(RAX, RAX)
				}
			} else {
				f.asm.XorRegReg32(RAX, RAX)
			}
			f.emitEpilogue()
			terminated = true

		case ir.Branch:
			if len(block.Successors) < 1 {
				return errors.TranslationErrorf("block %d branches without a successor", block.Index)
			}
			f.emitEdge(block, block.Successors[0])
			terminated = true

		case ir.BranchIf:
			if len(block.Successors) < 2 {
				return errors.TranslationErrorf("block %d has a conditional branch without two successors", block.Index)
			}
			taken := f.asm.NewLabel()
			f.load(RAX, operation.Source(0))
			f.asm.TestRegReg(RAX, RAX)
			f.asm.Jcc(CondNE, taken)
			f.emitEdge(block, block.Successors[0])
			f.asm.Bind(taken)
			f.emitEdge(block, block.Successors[1])
			terminated = true

		default:
			return errors.TranslationErrorf("instruction %v is not supported", inst)
		}

		if terminated {
			break
		}
	}

	if !terminated {
		if len(block.Successors) == 0 {
			return errors.TranslationErrorf("block %d falls off the end of the function", block.Index)
		}
		f.emitEdge(block, block.Successors[0])
	}

	return nil
}

// emitEdge moves the values the phis of to expect from from, then jumps.
func (f *amd64Function) emitEdge(from, to *ir.BasicBlock) {
	phis := to.Phis()

	// Read every source before writing any destination.
	for i, phi := range phis {
		f.load(RAX, phi.SourceFor(from))
		f.asm.MovMemReg64(RBP, slotDisp(f.tempsBase+i), RAX)
	}
	for i, phi := range phis {
		f.asm.MovRegMem64(RAX, RBP, slotDisp(f.tempsBase+i))
		f.asm.MovMemReg64(RBP, slotDisp(f.slots[keyFor(phi.Destination())]), RAX)
	}

	f.asm.Jmp(f.blockLabel[to.Index])
}
