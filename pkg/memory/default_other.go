//go:build !linux

package memory

// DefaultAllocator falls back to the heap where mmap is unavailable. Code
// mapped there can be inspected but not run.
func DefaultAllocator() Allocator {
	return HeapAllocator{}
}
