package codegen

import (
	"encoding/binary"
	"fmt"
)

// x86-64 register encoding
type Reg byte

const (
	RAX Reg = 0
	RCX Reg = 1
	RDX Reg = 2
	RBX Reg = 3
	RSP Reg = 4
	RBP Reg = 5
	RSI Reg = 6
	RDI Reg = 7
	R8  Reg = 8
	R9  Reg = 9
	R10 Reg = 10
	R11 Reg = 11
	R12 Reg = 12
	R13 Reg = 13
	R14 Reg = 14
	R15 Reg = 15
)

// Cond is the low nibble shared by the Jcc, SETcc and CMOVcc opcodes.
type Cond byte

const (
	CondB  Cond = 0x2 // below (unsigned)
	CondAE Cond = 0x3 // above or equal (unsigned)
	CondE  Cond = 0x4
	CondNE Cond = 0x5
	CondBE Cond = 0x6 // below or equal (unsigned)
	CondA  Cond = 0x7 // above (unsigned)
	CondL  Cond = 0xC // less (signed)
	CondGE Cond = 0xD // greater or equal (signed)
	CondLE Cond = 0xE // less or equal (signed)
	CondG  Cond = 0xF // greater (signed)
)

// Label is a position in the code that jumps can target before it is known.
type Label int

type fixup struct {
	label Label
	at    int // offset of the rel32 field
}

// Assembler emits x86-64 machine code into a growing buffer.
type Assembler struct {
	buf    []byte
	labels []int
	fixups []fixup
}

func NewAssembler() *Assembler {
	return &Assembler{buf: make([]byte, 0, 256)}
}

// Offset returns current write position
func (a *Assembler) Offset() int {
	return len(a.buf)
}

func (a *Assembler) emit(bytes ...byte) {
	a.buf = append(a.buf, bytes...)
}

func (a *Assembler) emitInt32(v int32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, uint32(v))
}

func (a *Assembler) emitUint64(v uint64) {
	a.buf = binary.LittleEndian.AppendUint64(a.buf, v)
}

// rex builds REX prefix: 0100WRXB
func rex(w, r, x, b bool) byte {
	var prefix byte = 0x40
	if w {
		prefix |= 0x08
	}
	if r {
		prefix |= 0x04
	}
	if x {
		prefix |= 0x02
	}
	if b {
		prefix |= 0x01
	}
	return prefix
}

// rexW returns REX.W prefix for 64-bit operations
func rexW(reg, rm Reg) byte {
	return rex(true, reg >= 8, false, rm >= 8)
}

// modRM builds ModR/M byte: [mod:2][reg:3][rm:3]
// mod should be pre-shifted: 0x00=no disp, 0x40=disp8, 0x80=disp32, 0xC0=register
func modRM(mod byte, reg, rm Reg) byte {
	return mod | ((byte(reg) & 7) << 3) | (byte(rm) & 7)
}

// emitMemOperand emits ModR/M and displacement for [base + disp]
func (a *Assembler) emitMemOperand(reg, base Reg, disp int32) {
	if base == RSP || base == R12 {
		if disp == 0 {
			a.emit(modRM(0x00, reg, RSP), 0x24)
		} else if disp >= -128 && disp <= 127 {
			a.emit(modRM(0x40, reg, RSP), 0x24, byte(disp))
		} else {
			a.emit(modRM(0x80, reg, RSP), 0x24)
			a.emitInt32(disp)
		}
	} else if base == RBP || base == R13 {
		if disp >= -128 && disp <= 127 {
			a.emit(modRM(0x40, reg, base), byte(disp))
		} else {
			a.emit(modRM(0x80, reg, base))
			a.emitInt32(disp)
		}
	} else if disp == 0 {
		a.emit(modRM(0x00, reg, base))
	} else if disp >= -128 && disp <= 127 {
		a.emit(modRM(0x40, reg, base), byte(disp))
	} else {
		a.emit(modRM(0x80, reg, base))
		a.emitInt32(disp)
	}
}

// MovRegReg: mov dst, src (64-bit)
func (a *Assembler) MovRegReg(dst, src Reg) {
	a.emit(rexW(src, dst), 0x89, modRM(0xC0, src, dst))
}

// MovRegReg32: mov dst32, src32 (clears the upper half of dst)
func (a *Assembler) MovRegReg32(dst, src Reg) {
	if dst >= 8 || src >= 8 {
		a.emit(rex(false, src >= 8, false, dst >= 8))
	}
	a.emit(0x89, modRM(0xC0, src, dst))
}

// MovRegImm64: mov reg, imm64
func (a *Assembler) MovRegImm64(reg Reg, imm uint64) {
	a.emit(rex(true, false, false, reg >= 8), 0xB8|byte(reg&7))
	a.emitUint64(imm)
}

// MovRegImm32SignExt: mov reg, imm32 (sign-extended to 64-bit)
func (a *Assembler) MovRegImm32SignExt(reg Reg, imm int32) {
	a.emit(rex(true, false, false, reg >= 8), 0xC7, modRM(0xC0, 0, reg))
	a.emitInt32(imm)
}

// MovRegImm picks the shortest encoding that loads imm.
func (a *Assembler) MovRegImm(reg Reg, imm uint64) {
	switch {
	case imm == 0:
		a.XorRegReg32(reg, reg)
	case int64(imm) >= -1<<31 && int64(imm) < 1<<31:
		a.MovRegImm32SignExt(reg, int32(imm))
	default:
		a.MovRegImm64(reg, imm)
	}
}

// MovRegMem64: mov reg, [base + disp]
func (a *Assembler) MovRegMem64(reg, base Reg, disp int32) {
	a.emit(rexW(reg, base), 0x8B)
	a.emitMemOperand(reg, base, disp)
}

// MovMemReg64: mov [base + disp], reg
func (a *Assembler) MovMemReg64(base Reg, disp int32, reg Reg) {
	a.emit(rexW(reg, base), 0x89)
	a.emitMemOperand(reg, base, disp)
}

func (a *Assembler) aluRegReg(opcode byte, dst, src Reg) {
	a.emit(rexW(src, dst), opcode, modRM(0xC0, src, dst))
}

// AddRegReg: add dst, src (64-bit)
func (a *Assembler) AddRegReg(dst, src Reg) { a.aluRegReg(0x01, dst, src) }

// SubRegReg: sub dst, src (64-bit)
func (a *Assembler) SubRegReg(dst, src Reg) { a.aluRegReg(0x29, dst, src) }

// AndRegReg: and dst, src (64-bit)
func (a *Assembler) AndRegReg(dst, src Reg) { a.aluRegReg(0x21, dst, src) }

// OrRegReg: or dst, src (64-bit)
func (a *Assembler) OrRegReg(dst, src Reg) { a.aluRegReg(0x09, dst, src) }

// XorRegReg: xor dst, src (64-bit)
func (a *Assembler) XorRegReg(dst, src Reg) { a.aluRegReg(0x31, dst, src) }

// CmpRegReg: cmp left, right (64-bit)
func (a *Assembler) CmpRegReg(left, right Reg) { a.aluRegReg(0x39, left, right) }

// TestRegReg: test left, right (64-bit)
func (a *Assembler) TestRegReg(left, right Reg) { a.aluRegReg(0x85, left, right) }

// XorRegReg32: xor dst32, src32
func (a *Assembler) XorRegReg32(dst, src Reg) {
	if dst >= 8 || src >= 8 {
		a.emit(rex(false, src >= 8, false, dst >= 8))
	}
	a.emit(0x31, modRM(0xC0, src, dst))
}

// CmpRegReg32: cmp left32, right32
func (a *Assembler) CmpRegReg32(left, right Reg) {
	if left >= 8 || right >= 8 {
		a.emit(rex(false, right >= 8, false, left >= 8))
	}
	a.emit(0x39, modRM(0xC0, right, left))
}

// IMulRegReg: imul dst, src (64-bit signed multiply)
func (a *Assembler) IMulRegReg(dst, src Reg) {
	a.emit(rexW(dst, src), 0x0F, 0xAF, modRM(0xC0, dst, src))
}

// SubRegImm32: sub reg, imm32 (64-bit, sign-extended)
func (a *Assembler) SubRegImm32(reg Reg, imm int32) {
	if imm >= -128 && imm <= 127 {
		a.emit(rexW(0, reg), 0x83, modRM(0xC0, 5, reg), byte(imm))
	} else {
		a.emit(rexW(0, reg), 0x81, modRM(0xC0, 5, reg))
		a.emitInt32(imm)
	}
}

// Setcc: set reg8 to 1 when cond holds
func (a *Assembler) Setcc(cond Cond, reg Reg) {
	// SPL, BPL, SIL and DIL need a REX prefix to be addressable.
	if reg >= RSP {
		a.emit(rex(false, false, false, reg >= 8))
	}
	a.emit(0x0F, 0x90|byte(cond), modRM(0xC0, 0, reg))
}

// MovzxRegReg8: movzx dst, src8 (zero-extend byte to 64-bit)
func (a *Assembler) MovzxRegReg8(dst, src Reg) {
	a.emit(rexW(dst, src), 0x0F, 0xB6, modRM(0xC0, dst, src))
}

// Push: push reg
func (a *Assembler) Push(reg Reg) {
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x50 | byte(reg&7))
}

// Pop: pop reg
func (a *Assembler) Pop(reg Reg) {
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x58 | byte(reg&7))
}

// Ret: ret
func (a *Assembler) Ret() {
	a.emit(0xC3)
}

func (a *Assembler) NewLabel() Label {
	a.labels = append(a.labels, -1)
	return Label(len(a.labels) - 1)
}

// Bind places label at the current offset.
func (a *Assembler) Bind(label Label) {
	a.labels[label] = len(a.buf)
}

// Jmp: jmp rel32 to label
func (a *Assembler) Jmp(label Label) {
	a.emit(0xE9)
	a.addFixup(label)
}

// Jcc: conditional near jump to label
func (a *Assembler) Jcc(cond Cond, label Label) {
	a.emit(0x0F, 0x80|byte(cond))
	a.addFixup(label)
}

func (a *Assembler) addFixup(label Label) {
	a.fixups = append(a.fixups, fixup{label: label, at: len(a.buf)})
	a.emitInt32(0)
}

// Bytes resolves every jump and returns the code.
func (a *Assembler) Bytes() ([]byte, error) {
	for _, f := range a.fixups {
		target := a.labels[f.label]
		if target < 0 {
			return nil, fmt.Errorf("jump at 0x%x to unbound label %d", f.at, f.label)
		}
		rel := int32(target - (f.at + 4))
		binary.LittleEndian.PutUint32(a.buf[f.at:], uint32(rel))
	}
	return a.buf, nil
}
