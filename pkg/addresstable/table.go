// Package addresstable maps guest code addresses to host function pointers
// through a four level radix table that generated code can walk directly.
//
// A guest address is split as follows:
//
//	bits 39-47  index into level 3 (the root, see Table.Base)
//	bits 30-38  index into level 2
//	bits 21-29  index into level 1
//	bits  2-20  index into the leaf
//
// Interior entries are 8-byte pointers; leaf entries are unsafe.Sizeof(V)
// bytes wide. Levels are allocated on first touch and never freed or moved.
package addresstable

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"translator/pkg/errors"
)

const (
	LevelBits = 9
	LeafBits  = 19

	LeafShift   = 2
	Level1Shift = 21
	Level2Shift = 30
	Level3Shift = 39

	levelMask = 1<<LevelBits - 1
	leafMask  = 1<<LeafBits - 1
)

// Value is the set of slot types generated code can load in one instruction.
type Value interface {
	~uint32 | ~uint64 | ~uintptr
}

type leaf[V Value] [1 << LeafBits]V

type level1[V Value] [1 << LevelBits]atomic.Pointer[leaf[V]]

type level2[V Value] [1 << LevelBits]atomic.Pointer[level1[V]]

type level3[V Value] [1 << LevelBits]atomic.Pointer[level2[V]]

// Table is safe for concurrent use. Structural changes are serialized by a
// mutex; lookups through levels that already exist take no lock.
type Table[V Value] struct {
	mu   sync.Mutex
	root *level3[V]
}

func New[V Value]() *Table[V] {
	return &Table[V]{root: new(level3[V])}
}

// Base is the address of the root level.
func (t *Table[V]) Base() uintptr {
	return uintptr(unsafe.Pointer(t.root))
}

// GetValue returns the slot for guestAddress, allocating any missing level.
// The returned pointer stays valid for the lifetime of the table.
func (t *Table[V]) GetValue(guestAddress uint64) *V {
	errors.Assert(guestAddress&3 == 0, "guest address 0x%x is not 4-byte aligned", guestAddress)

	l2 := nextLevel(&t.mu, &t.root[Level3Index(guestAddress)])
	l1 := nextLevel(&t.mu, &l2[Level2Index(guestAddress)])
	l0 := nextLevel(&t.mu, &l1[Level1Index(guestAddress)])

	return &l0[LeafIndex(guestAddress)]
}

// SetValue stores value in the slot for guestAddress.
func (t *Table[V]) SetValue(guestAddress uint64, value V) {
	slot := t.GetValue(guestAddress)

	t.mu.Lock()
	defer t.mu.Unlock()

	storeSlot(slot, value)
}

// TryGetValue reads the slot for guestAddress without allocating. A false
// result means no value has been stored; so does a zero value.
func (t *Table[V]) TryGetValue(guestAddress uint64) (V, bool) {
	errors.Assert(guestAddress&3 == 0, "guest address 0x%x is not 4-byte aligned", guestAddress)

	l2 := t.root[Level3Index(guestAddress)].Load()
	if l2 == nil {
		return 0, false
	}
	l1 := l2[Level2Index(guestAddress)].Load()
	if l1 == nil {
		return 0, false
	}
	l0 := l1[Level1Index(guestAddress)].Load()
	if l0 == nil {
		return 0, false
	}

	value := loadSlot(&l0[LeafIndex(guestAddress)])
	return value, value != 0
}

func nextLevel[T any](mu *sync.Mutex, slot *atomic.Pointer[T]) *T {
	if next := slot.Load(); next != nil {
		return next
	}

	mu.Lock()
	defer mu.Unlock()

	if next := slot.Load(); next != nil {
		return next
	}

	next := new(T)
	slot.Store(next)
	return next
}

// Slots are read by generated code and by TryGetValue without the lock.
func storeSlot[V Value](slot *V, value V) {
	switch unsafe.Sizeof(value) {
	case 4:
		atomic.StoreUint32((*uint32)(unsafe.Pointer(slot)), uint32(value))
	default:
		atomic.StoreUint64((*uint64)(unsafe.Pointer(slot)), uint64(value))
	}
}

func loadSlot[V Value](slot *V) V {
	var zero V
	switch unsafe.Sizeof(zero) {
	case 4:
		return V(atomic.LoadUint32((*uint32)(unsafe.Pointer(slot))))
	default:
		return V(atomic.LoadUint64((*uint64)(unsafe.Pointer(slot))))
	}
}

func Level3Index(guestAddress uint64) int {
	return int(guestAddress >> Level3Shift & levelMask)
}

func Level2Index(guestAddress uint64) int {
	return int(guestAddress >> Level2Shift & levelMask)
}

func Level1Index(guestAddress uint64) int {
	return int(guestAddress >> Level1Shift & levelMask)
}

func LeafIndex(guestAddress uint64) int {
	return int(guestAddress >> LeafShift & leafMask)
}

// Indices returns the level 3, 2, 1 and leaf indices of guestAddress, in
// walk order.
func Indices(guestAddress uint64) [4]int {
	return [4]int{
		Level3Index(guestAddress),
		Level2Index(guestAddress),
		Level1Index(guestAddress),
		LeafIndex(guestAddress),
	}
}
