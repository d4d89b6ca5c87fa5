// Package jitcache owns the executable memory that generated functions live
// in: one reserved arena, a free-list allocator over it and an offset-sorted
// index of mapped functions.
package jitcache

import (
	"log"
	"slices"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"

	"translator/pkg/codegen"
	"translator/pkg/errors"
	"translator/pkg/memory"
)

// Entry describes one mapped function. Offset is relative to Base.
type Entry struct {
	Offset     int
	Size       int
	UnwindInfo codegen.UnwindInfo
}

// Stats is a snapshot of the cache occupancy.
type Stats struct {
	UsedBytes      int
	FreeBytes      int
	Functions      int
	CommittedBytes uint64
}

// Cache maps compiled functions into executable memory.
type Cache struct {
	config Config

	mu          sync.RWMutex
	initialized bool
	region      *memory.ReservedRegion
	allocator   *Allocator
	entries     []Entry
	usedBytes   int

	purgeQueue chan uintptr
	metrics    *metrics
}

func New(config Config) *Cache {
	config = config.withDefaults()

	errors.Assert(config.Size%memory.PageSize == 0,
		"cache size 0x%x is not a multiple of the page size 0x%x", config.Size, memory.PageSize)

	return &Cache{
		config:     config,
		purgeQueue: make(chan uintptr, config.PurgeQueueSize),
		metrics:    newMetrics(config.Registerer),
	}
}

// Initialize reserves the arena. Calls after the first successful one are
// no-ops.
func (c *Cache) Initialize(allocator memory.Allocator) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	region, err := memory.NewReservedRegion(allocator, uint64(c.config.Size))
	if err != nil {
		return errors.Wrapf(err, "reserving %d bytes of code cache", c.config.Size)
	}

	c.region = region
	c.allocator = NewAllocator(c.config.Size)
	c.initialized = true

	return nil
}

// Map copies fn into the arena and returns the host address of its first
// instruction. When the arena is full the purge queue is drained and the
// allocation retried once.
func (c *Cache) Map(fn *codegen.CompiledFunction) (uintptr, error) {
	code := fn.Code
	if len(code) == 0 {
		return 0, errors.New("cannot map an empty function")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return 0, errors.ErrNotInitialized
	}

	funcSize := alignCodeSize(len(code))

	funcOffset, ok := c.allocator.Allocate(funcSize)
	if !ok {
		c.purgeLocked(funcSize)

		funcOffset, ok = c.allocator.Allocate(funcSize)
		if !ok {
			return 0, errors.Wrapf(errors.ErrCacheExhausted, "mapping %d bytes", len(code))
		}
	}

	if err := c.region.ExpandIfNeeded(uint64(funcOffset + funcSize)); err != nil {
		c.allocator.Free(funcOffset, funcSize)
		return 0, errors.Wrap(err, "committing code cache pages")
	}

	if err := c.writeCode(funcOffset, code); err != nil {
		c.allocator.Free(funcOffset, funcSize)
		return 0, errors.Wrap(err, "writing code")
	}

	c.add(Entry{Offset: funcOffset, Size: len(code), UnwindInfo: fn.UnwindInfo})

	c.usedBytes += funcSize
	c.metrics.usedBytes.Set(float64(c.usedBytes))
	c.metrics.functions.Set(float64(len(c.entries)))
	c.metrics.mapped.Inc()

	return c.region.Pointer() + uintptr(funcOffset), nil
}

// Unmap frees the function starting at ptr.
func (c *Cache) Unmap(ptr uintptr) {
	c.mu.Lock()
	defer c.mu.Unlock()

	errors.Assert(c.initialized, "unmap before initialization")

	c.unmapLocked(ptr)
}

// TryFind returns the entry whose code covers offset.
func (c *Cache) TryFind(offset int) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	index := c.findIndex(offset)
	if index < 0 {
		return Entry{}, false
	}

	entry := c.entries[index]
	if offset >= entry.Offset+entry.Size {
		return Entry{}, false
	}

	return entry, true
}

// EnqueuePurge schedules the function at ptr for removal by the next purge.
func (c *Cache) EnqueuePurge(ptr uintptr) {
	c.mu.RLock()
	initialized := c.initialized
	c.mu.RUnlock()

	errors.Assert(initialized, "purge enqueued before initialization")

	for {
		select {
		case c.purgeQueue <- ptr:
			return
		default:
		}

		// Queue full.
		c.Purge(0)
	}
}

// Purge unmaps every function queued for removal, oldest first.
func (c *Cache) Purge(sizeHint int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return
	}

	c.purgeLocked(sizeHint)
}

// Base is the host address of offset 0, or 0 before Initialize.
func (c *Cache) Base() uintptr {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return 0
	}
	return c.region.Pointer()
}

func (c *Cache) Size() int {
	return c.config.Size
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		UsedBytes: c.usedBytes,
		Functions: len(c.entries),
	}
	if c.initialized {
		stats.FreeBytes = c.allocator.FreeBytes()
		stats.CommittedBytes = c.region.Committed()
	}
	return stats
}

func (c *Cache) purgeLocked(sizeHint int) {
	c.allocator.Dump("before purge")

	freedBytes := 0
	freedFunctions := 0

drain:
	for {
		select {
		case ptr := <-c.purgeQueue:
			freedBytes += c.unmapLocked(ptr)
			freedFunctions++
		default:
			break drain
		}
	}

	log.Printf("[JIT Cache] purge freed %s from %d functions (wanted %s)",
		humanize.IBytes(uint64(freedBytes)), freedFunctions, humanize.IBytes(uint64(sizeHint)))

	c.allocator.Dump("after purge")

	c.metrics.purges.Inc()
	c.metrics.purgedBytes.Add(float64(freedBytes))
}

func (c *Cache) unmapLocked(ptr uintptr) int {
	base := c.region.Pointer()
	errors.Assert(ptr >= base && ptr < base+uintptr(c.config.Size),
		"unmap of 0x%x outside the code cache", ptr)

	offset := int(ptr - base)

	index := c.findIndex(offset)
	errors.Assert(index >= 0 && c.entries[index].Offset == offset,
		"unmap of 0x%x which is not the start of a mapped function", ptr)

	funcSize := alignCodeSize(c.entries[index].Size)

	c.allocator.Free(offset, funcSize)
	c.entries = slices.Delete(c.entries, index, index+1)

	c.usedBytes -= funcSize
	c.metrics.usedBytes.Set(float64(c.usedBytes))
	c.metrics.functions.Set(float64(len(c.entries)))

	return funcSize
}

// writeCode copies code in at offset, widening protection changes to whole
// pages.
func (c *Cache) writeCode(offset int, code []byte) error {
	block := c.region.Block()
	start, end := memory.PageRange(uint64(offset), uint64(len(code)))

	if c.config.AllowReadWriteExecute {
		if err := block.Reprotect(start, end-start, memory.ProtectionReadWriteExecute); err != nil {
			return err
		}
		block.Write(uint64(offset), code)
		return nil
	}

	if err := block.Reprotect(start, end-start, memory.ProtectionReadWrite); err != nil {
		return err
	}

	block.Write(uint64(offset), code)

	return block.Reprotect(start, end-start, memory.ProtectionReadExecute)
}

func (c *Cache) add(entry Entry) {
	index := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].Offset >= entry.Offset
	})
	c.entries = slices.Insert(c.entries, index, entry)
}

// findIndex returns the index of the last entry starting at or before
// offset, or -1.
func (c *Cache) findIndex(offset int) int {
	return sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].Offset > offset
	}) - 1
}

func alignCodeSize(size int) int {
	return (size + CodeAlignment - 1) &^ (CodeAlignment - 1)
}
