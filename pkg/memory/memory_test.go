package memory

import (
	"testing"

	"translator/pkg/errors"
)

func TestPageRange(t *testing.T) {
	cases := []struct {
		offset, size uint64
		start, end   uint64
	}{
		{0, 1, 0, PageSize},
		{0, PageSize, 0, PageSize},
		{100, 8, 0, PageSize},
		{PageSize - 4, 8, 0, 2 * PageSize},
		{3 * PageSize, 2 * PageSize, 3 * PageSize, 5 * PageSize},
	}

	for _, c := range cases {
		start, end := PageRange(c.offset, c.size)
		if start != c.start || end != c.end {
			t.Errorf("PageRange(0x%x, 0x%x) = [0x%x, 0x%x), want [0x%x, 0x%x)",
				c.offset, c.size, start, end, c.start, c.end)
		}
	}
}

func TestHeapBlockProtection(t *testing.T) {
	block, err := HeapAllocator{}.Reserve(4 * PageSize)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	heap := block.(*HeapBlock)

	if got := heap.Protection(0); got != ProtectionNone {
		t.Fatalf("fresh page protection = %v, want %v", got, ProtectionNone)
	}

	if err := block.Reprotect(0, PageSize, ProtectionReadExecute); err == nil {
		t.Fatal("expected reprotect of uncommitted page to fail")
	}

	if err := block.Commit(0, 2*PageSize); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	block.Write(10, []byte{0xC3})
	if got := block.Read(10, 1); got[0] != 0xC3 {
		t.Fatalf("Read = %x, want c3", got)
	}

	if err := block.Reprotect(0, PageSize, ProtectionReadExecute); err != nil {
		t.Fatalf("Reprotect failed: %v", err)
	}
	if got := heap.Protection(0); got != ProtectionReadExecute {
		t.Fatalf("protection = %v, want %v", got, ProtectionReadExecute)
	}
	if got := heap.Protection(PageSize); got != ProtectionReadWrite {
		t.Fatalf("neighbour protection = %v, want %v", got, ProtectionReadWrite)
	}
	if heap.Reprotects() != 1 {
		t.Fatalf("Reprotects = %d, want 1", heap.Reprotects())
	}

	if err := block.Commit(1, PageSize); err == nil {
		t.Fatal("expected unaligned commit to fail")
	}
	if err := block.Commit(3*PageSize, 2*PageSize); err == nil {
		t.Fatal("expected commit past the end to fail")
	}
}

func TestHeapBlockWriteToExecutablePagePanics(t *testing.T) {
	block, _ := HeapAllocator{}.Reserve(PageSize)
	if err := block.Commit(0, PageSize); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := block.Reprotect(0, PageSize, ProtectionReadExecute); err != nil {
		t.Fatalf("Reprotect failed: %v", err)
	}

	defer func() {
		if r := recover(); r == nil || !errors.IsAssertionFailure(r) {
			t.Fatalf("expected assertion failure, got %v", r)
		}
	}()
	block.Write(0, []byte{0x90})
}

func TestReservedRegionExpand(t *testing.T) {
	region, err := NewReservedRegion(HeapAllocator{}, 4*DefaultGranularity)
	if err != nil {
		t.Fatalf("NewReservedRegion failed: %v", err)
	}
	heap := region.Block().(*HeapBlock)

	if region.Committed() != 0 {
		t.Fatalf("Committed = %d, want 0", region.Committed())
	}

	if err := region.ExpandIfNeeded(100); err != nil {
		t.Fatalf("ExpandIfNeeded failed: %v", err)
	}
	if region.Committed() != DefaultGranularity {
		t.Fatalf("Committed = 0x%x, want 0x%x", region.Committed(), DefaultGranularity)
	}
	if heap.Protection(DefaultGranularity-1) != ProtectionReadWrite {
		t.Fatal("last page of first granule not committed")
	}
	if heap.Protection(DefaultGranularity) != ProtectionNone {
		t.Fatal("page past first granule committed")
	}

	// Already covered.
	if err := region.ExpandIfNeeded(DefaultGranularity); err != nil {
		t.Fatalf("ExpandIfNeeded failed: %v", err)
	}
	if region.Committed() != DefaultGranularity {
		t.Fatalf("Committed = 0x%x, want 0x%x", region.Committed(), DefaultGranularity)
	}

	if err := region.ExpandIfNeeded(DefaultGranularity + 1); err != nil {
		t.Fatalf("ExpandIfNeeded failed: %v", err)
	}
	if region.Committed() != 2*DefaultGranularity {
		t.Fatalf("Committed = 0x%x, want 0x%x", region.Committed(), 2*DefaultGranularity)
	}

	if err := region.ExpandIfNeeded(4*DefaultGranularity + 1); err == nil {
		t.Fatal("expected expansion past the reservation to fail")
	}
}

func TestReservedRegionCapsAtReservation(t *testing.T) {
	region, err := NewReservedRegion(HeapAllocator{}, 3*PageSize)
	if err != nil {
		t.Fatalf("NewReservedRegion failed: %v", err)
	}
	if err := region.ExpandIfNeeded(1); err != nil {
		t.Fatalf("ExpandIfNeeded failed: %v", err)
	}
	if region.Committed() != 3*PageSize {
		t.Fatalf("Committed = 0x%x, want 0x%x", region.Committed(), 3*PageSize)
	}
}
