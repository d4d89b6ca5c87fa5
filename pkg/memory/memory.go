// Package memory reserves address space for generated code and moves pages
// of it between writable and executable states.
package memory

import (
	"fmt"
)

const (
	PageSize = 4096
	PageMask = PageSize - 1
)

// Protection is the access a range of pages allows.
type Protection uint8

const (
	ProtectionNone Protection = iota
	ProtectionReadWrite
	ProtectionReadExecute
	ProtectionReadWriteExecute
)

func (p Protection) String() string {
	switch p {
	case ProtectionNone:
		return "---"
	case ProtectionReadWrite:
		return "rw-"
	case ProtectionReadExecute:
		return "r-x"
	case ProtectionReadWriteExecute:
		return "rwx"
	}
	return fmt.Sprintf("Protection(%d)", uint8(p))
}

// Writable reports whether code may be copied into pages with p.
func (p Protection) Writable() bool {
	return p == ProtectionReadWrite || p == ProtectionReadWriteExecute
}

// Block is a reserved, fixed-size range of address space. Offsets are
// relative to Pointer(); every offset and size passed to Commit and
// Reprotect must be page aligned.
type Block interface {
	Pointer() uintptr
	Size() uint64

	// Commit backs [offset, offset+size) with memory, readable and writable.
	Commit(offset, size uint64) error
	// Reprotect changes the protection of [offset, offset+size).
	Reprotect(offset, size uint64, prot Protection) error

	Write(offset uint64, data []byte)
	Read(offset, size uint64) []byte

	Release() error
}

// Allocator reserves blocks of address space.
type Allocator interface {
	Reserve(size uint64) (Block, error)
}

// PageRange widens [offset, offset+size) to whole pages.
func PageRange(offset, size uint64) (start, end uint64) {
	start = offset &^ PageMask
	end = (offset + size + PageMask) &^ PageMask
	return start, end
}

func checkAligned(offset, size uint64) error {
	if offset&PageMask != 0 || size&PageMask != 0 {
		return fmt.Errorf("range 0x%x+0x%x is not page aligned", offset, size)
	}
	return nil
}
