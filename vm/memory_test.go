package scvm_test

import (
	"testing"
	"unsafe"

	"scvm/vm"
)

func TestMemoryMapAllocateAndFree(t *testing.T) {
	var usage scvm.MemoryUsageCounters
	mm := scvm.NewMemoryMap(&usage)

	h, ok := mm.Allocate(64)
	if !ok {
		t.Fatal("Allocate(64) failed unexpectedly")
	}
	size, ok := mm.SlotSize(h)
	if !ok || size != 64 {
		t.Fatalf("SlotSize(h) = %d, %v, want 64, true", size, ok)
	}
	if usage.Total.Usage != 64 || usage.PublicHeap.Usage != 64 {
		t.Fatalf("usage after alloc = %+v", usage)
	}

	if res := mm.Free(h); res != scvm.FreeOk {
		t.Fatalf("Free(h) = %v, want FreeOk", res)
	}
	if usage.Total.Usage != 0 || usage.PublicHeap.Usage != 0 {
		t.Fatalf("usage after free = %+v", usage)
	}
	if _, ok := mm.Get(h); ok {
		t.Fatal("handle still resolves after Free")
	}
}

func TestMemoryMapFreeUnknownHandle(t *testing.T) {
	var usage scvm.MemoryUsageCounters
	mm := scvm.NewMemoryMap(&usage)
	if res := mm.Free(scvm.Handle(999)); res != scvm.FreeInvalidHandle {
		t.Fatalf("Free(unknown) = %v, want FreeInvalidHandle", res)
	}
}

func TestMemoryMapFreeNullHandle(t *testing.T) {
	var usage scvm.MemoryUsageCounters
	mm := scvm.NewMemoryMap(&usage)
	if res := mm.Free(scvm.HandleNull); res != scvm.FreeInvalidHandle {
		t.Fatalf("Free(HandleNull) = %v, want FreeInvalidHandle", res)
	}
}

func TestMemoryMapRespectsPublicHeapLimit(t *testing.T) {
	var usage scvm.MemoryUsageCounters
	usage.PublicHeap.Limit = 32
	mm := scvm.NewMemoryMap(&usage)

	if _, ok := mm.Allocate(64); ok {
		t.Fatal("Allocate(64) should fail against a 32-byte public heap limit")
	}
	if _, ok := mm.Allocate(32); !ok {
		t.Fatal("Allocate(32) should succeed exactly at the limit")
	}
}

func TestMemoryMapHandlesDoNotCollideAcrossAllocations(t *testing.T) {
	var usage scvm.MemoryUsageCounters
	mm := scvm.NewMemoryMap(&usage)

	a, _ := mm.Allocate(8)
	b, _ := mm.Allocate(8)
	if a == b {
		t.Fatalf("two live allocations returned the same handle %d", a)
	}
}

func TestPrivateMemoryMapTrackUntrack(t *testing.T) {
	var usage scvm.MemoryUsageCounters
	pmm := scvm.NewPrivateMemoryMap(&usage)

	var scratch [16]byte
	ptr := uintptr(unsafe.Pointer(&scratch))
	pmm.Track(ptr, 16)
	if usage.Private.Usage != 16 || usage.Total.Usage != 16 {
		t.Fatalf("usage after Track = %+v", usage)
	}
	size, ok := pmm.Size(ptr)
	if !ok || size != 16 {
		t.Fatalf("Size(ptr) = %d, %v, want 16, true", size, ok)
	}

	pmm.Untrack(ptr)
	if usage.Private.Usage != 0 || usage.Total.Usage != 0 {
		t.Fatalf("usage after Untrack = %+v", usage)
	}
	if _, ok := pmm.Size(ptr); ok {
		t.Fatal("Size still resolves after Untrack")
	}
}
