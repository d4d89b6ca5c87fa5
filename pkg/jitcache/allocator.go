package jitcache

import (
	"log"
	"slices"
	"sort"

	"translator/pkg/errors"
)

type memoryBlock struct {
	offset int
	size   int
}

func (b memoryBlock) end() int {
	return b.offset + b.size
}

// Allocator hands out byte ranges of the cache arena. Free ranges are kept
// sorted by offset so a freed range can be merged with its neighbours.
type Allocator struct {
	blocks []memoryBlock
}

func NewAllocator(capacity int) *Allocator {
	return &Allocator{blocks: []memoryBlock{{offset: 0, size: capacity}}}
}

// Allocate returns the offset of the first free range that fits size.
func (a *Allocator) Allocate(size int) (int, bool) {
	for i := range a.blocks {
		block := &a.blocks[i]

		if block.size > size {
			offset := block.offset
			block.offset += size
			block.size -= size
			return offset, true
		} else if block.size == size {
			offset := block.offset
			a.blocks = slices.Delete(a.blocks, i, i+1)
			return offset, true
		}
	}

	return -1, false
}

// Free returns [offset, offset+size) to the arena.
func (a *Allocator) Free(offset, size int) {
	freed := memoryBlock{offset: offset, size: size}

	index := sort.Search(len(a.blocks), func(i int) bool {
		return a.blocks[i].offset >= offset
	})

	if index < len(a.blocks) {
		errors.Assert(freed.end() <= a.blocks[index].offset,
			"free of 0x%x+0x%x overlaps free range at 0x%x", offset, size, a.blocks[index].offset)
	}
	if index > 0 {
		errors.Assert(a.blocks[index-1].end() <= offset,
			"free of 0x%x+0x%x overlaps free range at 0x%x", offset, size, a.blocks[index-1].offset)
	}

	a.blocks = slices.Insert(a.blocks, index, freed)

	if index+1 < len(a.blocks) && a.blocks[index].end() == a.blocks[index+1].offset {
		a.blocks[index].size += a.blocks[index+1].size
		a.blocks = slices.Delete(a.blocks, index+1, index+2)
	}

	if index > 0 && a.blocks[index-1].end() == a.blocks[index].offset {
		a.blocks[index-1].size += a.blocks[index].size
		a.blocks = slices.Delete(a.blocks, index, index+1)
	}
}

// FreeBytes is the total size of all free ranges.
func (a *Allocator) FreeBytes() int {
	total := 0
	for _, block := range a.blocks {
		total += block.size
	}
	return total
}

// FreeRanges returns the number of disjoint free ranges.
func (a *Allocator) FreeRanges() int {
	return len(a.blocks)
}

// Dump logs the free list.
func (a *Allocator) Dump(label string) {
	log.Printf("[JIT Cache] free list %s: %d ranges, %d bytes free", label, len(a.blocks), a.FreeBytes())
	for _, block := range a.blocks {
		log.Printf("[JIT Cache]   [0x%08x, 0x%08x) %d bytes", block.offset, block.end(), block.size)
	}
}
