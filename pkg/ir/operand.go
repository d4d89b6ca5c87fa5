package ir

import (
	"fmt"
)

// OperandKind tags what an Operand refers to.
type OperandKind uint8

const (
	KindConstant OperandKind = iota
	KindRegister
	KindLocal
	KindUndefined
)

func (k OperandKind) String() string {
	switch k {
	case KindConstant:
		return "Constant"
	case KindRegister:
		return "Register"
	case KindLocal:
		return "LocalVariable"
	case KindUndefined:
		return "Undefined"
	}
	return fmt.Sprintf("OperandKind(%d)", uint8(k))
}

// OperandType is the machine type of a value.
type OperandType uint8

const (
	None OperandType = iota
	I32
	I64
	FP32
	FP64
	V128
)

func (t OperandType) String() string {
	switch t {
	case None:
		return "none"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case FP32:
		return "f32"
	case FP64:
		return "f64"
	case V128:
		return "v128"
	}
	return fmt.Sprintf("OperandType(%d)", uint8(t))
}

// IsInteger reports whether t is an integer type.
func (t OperandType) IsInteger() bool {
	return t == I32 || t == I64
}

// Operand is a tagged IR value: a constant, a guest register, a local
// variable or the undefined sentinel.
//
// Locals created by a front end through ControlFlowGraph.NewLocal are
// numbered (Number() > 0) and are shared by pointer across every use.
// Locals minted by SSA construction are unnumbered; each one is a distinct
// value identified by its pointer.
type Operand struct {
	Kind  OperandKind
	Type  OperandType
	Value uint64

	reg Register
}

// Const returns a 64-bit integer constant.
func Const(value uint64) *Operand {
	return &Operand{Kind: KindConstant, Type: I64, Value: value}
}

// Const32 returns a 32-bit integer constant.
func Const32(value uint32) *Operand {
	return &Operand{Kind: KindConstant, Type: I32, Value: uint64(value)}
}

// Reg returns an operand that names a guest register.
func Reg(index int, regType RegisterType, t OperandType) *Operand {
	return &Operand{Kind: KindRegister, Type: t, reg: Register{Index: index, Type: regType}}
}

// Local returns a fresh unnumbered local variable.
func Local(t OperandType) *Operand {
	return &Operand{Kind: KindLocal, Type: t}
}

// Undef returns the undefined sentinel. Consumers must tolerate reading it.
func Undef() *Operand {
	return &Operand{Kind: KindUndefined, Type: None}
}

// Register returns the register named by a Register operand.
func (o *Operand) Register() Register {
	return o.reg
}

// Number returns the front end number of a local, 0 for unnumbered locals.
func (o *Operand) Number() int {
	if o.Kind != KindLocal {
		return 0
	}
	return int(o.Value)
}

// IsRegisterOrNumberedLocal reports whether o is a value that still needs
// SSA renaming.
func (o *Operand) IsRegisterOrNumberedLocal() bool {
	if o == nil {
		return false
	}
	return o.Kind == KindRegister || (o.Kind == KindLocal && o.Value > 0)
}

func (o *Operand) String() string {
	if o == nil {
		return "<nil>"
	}
	switch o.Kind {
	case KindConstant:
		return fmt.Sprintf("0x%x", o.Value)
	case KindRegister:
		return o.reg.String()
	case KindLocal:
		if o.Value > 0 {
			return fmt.Sprintf("l%d", o.Value)
		}
		return fmt.Sprintf("%%%p", o)
	case KindUndefined:
		return "undef"
	}
	return o.Kind.String()
}
