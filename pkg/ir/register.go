package ir

import (
	"fmt"
)

// RegisterType is the guest register file a register belongs to.
type RegisterType uint8

const (
	Integer RegisterType = iota
	Vector
	Flag
	FpFlag
)

// Register counts per file and the offsets of each file in the flat key space
// used by SSA construction.
const (
	IntRegsCount       = 32
	VecRegsCount       = 32
	FlagsCount         = 32
	FpFlagsCount       = 32
	IntAndVecRegsCount = IntRegsCount + VecRegsCount
	FpFlagsOffset      = IntAndVecRegsCount + FlagsCount
	TotalCount         = FpFlagsOffset + FpFlagsCount
)

// Register names one guest register.
type Register struct {
	Index int
	Type  RegisterType
}

// Key flattens the register into the range [0, TotalCount).
func (r Register) Key() int {
	switch r.Type {
	case Integer:
		return r.Index
	case Vector:
		return IntRegsCount + r.Index
	case Flag:
		return IntAndVecRegsCount + r.Index
	default:
		return FpFlagsOffset + r.Index
	}
}

func (r Register) String() string {
	switch r.Type {
	case Integer:
		return fmt.Sprintf("r%d", r.Index)
	case Vector:
		return fmt.Sprintf("v%d", r.Index)
	case Flag:
		return fmt.Sprintf("f%d", r.Index)
	default:
		return fmt.Sprintf("fpf%d", r.Index)
	}
}
