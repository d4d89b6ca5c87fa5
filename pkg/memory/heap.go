package memory

import (
	"fmt"
	"sync"
	"unsafe"

	"translator/pkg/errors"
)

// HeapAllocator reserves blocks from the Go heap. Protection changes are
// tracked in software only, so code placed in a heap block cannot be run;
// it serves platforms without mmap and tests that inspect page state.
type HeapAllocator struct{}

func (HeapAllocator) Reserve(size uint64) (Block, error) {
	if size == 0 || size&PageMask != 0 {
		return nil, fmt.Errorf("reservation size 0x%x must be a non-zero multiple of the page size", size)
	}
	return &HeapBlock{
		buffer:      make([]byte, size),
		permissions: make([]Protection, size/PageSize),
	}, nil
}

// HeapBlock is a Block backed by a byte slice with per-page protection
// bookkeeping.
type HeapBlock struct {
	mu          sync.Mutex
	buffer      []byte
	permissions []Protection // software permission tracking (1 byte per page)
	reprotects  int
}

func (b *HeapBlock) Pointer() uintptr {
	return uintptr(unsafe.Pointer(&b.buffer[0]))
}

func (b *HeapBlock) Size() uint64 {
	return uint64(len(b.buffer))
}

func (b *HeapBlock) Commit(offset, size uint64) error {
	if err := b.checkRange(offset, size); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for page := offset / PageSize; page < (offset+size)/PageSize; page++ {
		b.permissions[page] = ProtectionReadWrite
	}
	return nil
}

func (b *HeapBlock) Reprotect(offset, size uint64, prot Protection) error {
	if err := b.checkRange(offset, size); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for page := offset / PageSize; page < (offset+size)/PageSize; page++ {
		if b.permissions[page] == ProtectionNone {
			return fmt.Errorf("reprotect of uncommitted page 0x%x", page*PageSize)
		}
	}
	for page := offset / PageSize; page < (offset+size)/PageSize; page++ {
		b.permissions[page] = prot
	}
	b.reprotects++
	return nil
}

// Write copies data in. Writing to a page that is not writable is the
// software equivalent of a protection fault.
func (b *HeapBlock) Write(offset uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	start, end := PageRange(offset, uint64(len(data)))
	for page := start / PageSize; page < end/PageSize; page++ {
		errors.Assert(b.permissions[page].Writable(),
			"write to page 0x%x with protection %v", page*PageSize, b.permissions[page])
	}
	copy(b.buffer[offset:], data)
}

func (b *HeapBlock) Read(offset, size uint64) []byte {
	result := make([]byte, size)
	copy(result, b.buffer[offset:offset+size])
	return result
}

func (b *HeapBlock) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffer = nil
	b.permissions = nil
	return nil
}

// Protection returns the current protection of the page holding offset.
func (b *HeapBlock) Protection(offset uint64) Protection {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.permissions[offset/PageSize]
}

// Reprotects returns how many Reprotect calls succeeded.
func (b *HeapBlock) Reprotects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reprotects
}

func (b *HeapBlock) checkRange(offset, size uint64) error {
	if err := checkAligned(offset, size); err != nil {
		return err
	}
	if offset+size > uint64(len(b.buffer)) {
		return fmt.Errorf("range 0x%x+0x%x outside block of 0x%x bytes", offset, size, len(b.buffer))
	}
	return nil
}
