//go:build linux

package memory

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MmapAllocator reserves address space with mmap. Reserved pages start
// inaccessible and are committed by changing their protection.
type MmapAllocator struct{}

func (MmapAllocator) Reserve(size uint64) (Block, error) {
	if size == 0 || size&PageMask != 0 {
		return nil, fmt.Errorf("reservation size 0x%x must be a non-zero multiple of the page size", size)
	}

	buffer, err := unix.Mmap(
		-1, 0,
		int(size),
		unix.PROT_NONE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve 0x%x bytes: %w", size, err)
	}

	return &MmapBlock{buffer: buffer}, nil
}

// MmapBlock is a Block backed by an anonymous private mapping.
type MmapBlock struct {
	mu     sync.Mutex
	buffer []byte
}

func (b *MmapBlock) Pointer() uintptr {
	return uintptr(unsafe.Pointer(&b.buffer[0]))
}

func (b *MmapBlock) Size() uint64 {
	return uint64(len(b.buffer))
}

func (b *MmapBlock) Commit(offset, size uint64) error {
	return b.Reprotect(offset, size, ProtectionReadWrite)
}

func (b *MmapBlock) Reprotect(offset, size uint64, prot Protection) error {
	if err := checkAligned(offset, size); err != nil {
		return err
	}
	if offset+size > uint64(len(b.buffer)) {
		return fmt.Errorf("range 0x%x+0x%x outside block of 0x%x bytes", offset, size, len(b.buffer))
	}
	if size == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	err := unix.Mprotect(unsafe.Slice((*byte)(unsafe.Add(unsafe.Pointer(&b.buffer[0]), offset)), size), hostProtection(prot))
	if err != nil {
		return fmt.Errorf("mprotect failed: start=0x%x length=0x%x prot=%v: %w", offset, size, prot, err)
	}
	return nil
}

func (b *MmapBlock) Write(offset uint64, data []byte) {
	copy(b.buffer[offset:], data)
}

func (b *MmapBlock) Read(offset, size uint64) []byte {
	result := make([]byte, size)
	copy(result, b.buffer[offset:offset+size])
	return result
}

func (b *MmapBlock) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buffer == nil {
		return nil
	}

	err := unix.Munmap(b.buffer)
	b.buffer = nil
	return err
}

func hostProtection(prot Protection) int {
	switch prot {
	case ProtectionReadWrite:
		return unix.PROT_READ | unix.PROT_WRITE
	case ProtectionReadExecute:
		return unix.PROT_READ | unix.PROT_EXEC
	case ProtectionReadWriteExecute:
		return unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC
	}
	return unix.PROT_NONE
}

// DefaultAllocator returns the allocator whose blocks can hold runnable code
// on this platform.
func DefaultAllocator() Allocator {
	return MmapAllocator{}
}
