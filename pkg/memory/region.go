package memory

import (
	"fmt"
	"sync"
)

// DefaultGranularity is how much address space is committed at a time.
const DefaultGranularity = 65536

// ReservedRegion is a reservation whose committed prefix grows on demand.
type ReservedRegion struct {
	block       Block
	granularity uint64

	mu        sync.Mutex
	committed uint64
}

func NewReservedRegion(allocator Allocator, maxSize uint64) (*ReservedRegion, error) {
	return NewReservedRegionWithGranularity(allocator, maxSize, DefaultGranularity)
}

func NewReservedRegionWithGranularity(allocator Allocator, maxSize, granularity uint64) (*ReservedRegion, error) {
	if granularity == 0 || granularity&PageMask != 0 {
		return nil, fmt.Errorf("commit granularity 0x%x must be a non-zero multiple of the page size", granularity)
	}

	block, err := allocator.Reserve(maxSize)
	if err != nil {
		return nil, err
	}

	return &ReservedRegion{
		block:       block,
		granularity: granularity,
	}, nil
}

// ExpandIfNeeded commits enough of the region that the first desiredSize
// bytes are backed.
func (r *ReservedRegion) ExpandIfNeeded(desiredSize uint64) error {
	maxSize := r.block.Size()
	if desiredSize > maxSize {
		return fmt.Errorf("desired size 0x%x exceeds reservation of 0x%x", desiredSize, maxSize)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if desiredSize <= r.committed {
		return nil
	}

	newCommitted := (desiredSize + r.granularity - 1) / r.granularity * r.granularity
	if newCommitted > maxSize {
		newCommitted = maxSize
	}

	if err := r.block.Commit(r.committed, newCommitted-r.committed); err != nil {
		return err
	}
	r.committed = newCommitted
	return nil
}

func (r *ReservedRegion) Block() Block {
	return r.block
}

func (r *ReservedRegion) Pointer() uintptr {
	return r.block.Pointer()
}

func (r *ReservedRegion) Size() uint64 {
	return r.block.Size()
}

func (r *ReservedRegion) Committed() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed
}

func (r *ReservedRegion) Release() error {
	return r.block.Release()
}
