//go:build linux

package memory

import (
	"bytes"
	"testing"
)

func TestMmapBlockLifecycle(t *testing.T) {
	region, err := NewReservedRegion(MmapAllocator{}, 16*DefaultGranularity)
	if err != nil {
		t.Fatalf("NewReservedRegion failed: %v", err)
	}
	defer region.Release()

	if err := region.ExpandIfNeeded(64); err != nil {
		t.Fatalf("ExpandIfNeeded failed: %v", err)
	}

	block := region.Block()
	code := []byte{0x48, 0x31, 0xC0, 0xC3}
	block.Write(0, code)

	if err := block.Reprotect(0, PageSize, ProtectionReadExecute); err != nil {
		t.Fatalf("Reprotect RX failed: %v", err)
	}
	if got := block.Read(0, uint64(len(code))); !bytes.Equal(got, code) {
		t.Fatalf("Read = %x, want %x", got, code)
	}

	if err := block.Reprotect(0, PageSize, ProtectionReadWrite); err != nil {
		t.Fatalf("Reprotect RW failed: %v", err)
	}
	block.Write(0, []byte{0x90})

	if err := block.Reprotect(1, PageSize, ProtectionReadWrite); err == nil {
		t.Fatal("expected unaligned reprotect to fail")
	}
}
