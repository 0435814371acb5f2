// Package binheap provides an indexed binary min-heap.
//
// Elements are identified by a stable external index (for example a slot in
// an edge array), not by their position in the heap. A reverse lookup from
// index to heap slot lets Update and Remove work on arbitrary elements in
// O(log n).
package binheap

import (
	"fmt"
	"math/bits"

	"golang.org/x/exp/constraints"
)

const (
	notPresent = ^uint32(0)
	minSize    = 32
)

// Heap is a min-heap of (key, index) pairs. Each index may be present at most
// once at a time.
type Heap[K constraints.Ordered] struct {
	heap        []uint32 // heap slot -> index, len == capacity
	num         uint32
	keys        []K      // index -> key
	heapIndexes []uint32 // index -> heap slot or notPresent
}

// New creates a heap with room for heapSize entries and indices below
// indexSize. Both grow on demand.
func New[K constraints.Ordered](heapSize, indexSize uint32) *Heap[K] {
	h := &Heap[K]{}
	h.Resize(heapSize, indexSize)
	return h
}

// Num returns the number of entries.
func (h *Heap[K]) Num() uint32 {
	return h.num
}

// Empty reports whether the heap has no entries.
func (h *Heap[K]) Empty() bool {
	return h.num == 0
}

// Top returns the index with the smallest key.
func (h *Heap[K]) Top() uint32 {
	if h.num == 0 {
		panic("binheap: Top on empty heap")
	}
	return h.heap[0]
}

// Pop removes the entry with the smallest key.
func (h *Heap[K]) Pop() {
	if h.num == 0 {
		panic("binheap: Pop on empty heap")
	}

	index := h.heap[0]
	h.num--
	h.heapIndexes[index] = notPresent
	if h.num == 0 {
		return
	}

	h.heap[0] = h.heap[h.num]
	h.heapIndexes[h.heap[0]] = 0
	h.downHeap(0)
}

// Add inserts index with key. Adding an index that is already present panics.
func (h *Heap[K]) Add(key K, index uint32) {
	if index == notPresent {
		panic("binheap: invalid index")
	}
	if h.num == uint32(len(h.heap)) {
		h.resizeHeap(max(minSize, h.num*2))
	}
	if index >= uint32(len(h.keys)) {
		h.resizeIndexes(max(minSize, roundUpPow2(index+1)))
	}
	if h.IsPresent(index) {
		panic(fmt.Sprintf("binheap: index %d already present", index))
	}

	slot := h.num
	h.num++
	h.heap[slot] = index
	h.keys[index] = key
	h.heapIndexes[index] = slot
	h.upHeap(slot)
}

// Update changes the key of a present index.
func (h *Heap[K]) Update(key K, index uint32) {
	if !h.IsPresent(index) {
		panic(fmt.Sprintf("binheap: update of absent index %d", index))
	}

	h.keys[index] = key
	slot := h.heapIndexes[index]
	if slot > 0 && key < h.keys[h.heap[(slot-1)>>1]] {
		h.upHeap(slot)
	} else {
		h.downHeap(slot)
	}
}

// Remove deletes index from the heap. Absent indices are ignored.
func (h *Heap[K]) Remove(index uint32) {
	if !h.IsPresent(index) {
		return
	}

	key := h.keys[index]
	slot := h.heapIndexes[index]
	h.num--
	h.heapIndexes[index] = notPresent
	if slot == h.num {
		return
	}

	moved := h.heap[h.num]
	h.heap[slot] = moved
	h.heapIndexes[moved] = slot
	if key < h.keys[moved] {
		h.downHeap(slot)
	} else {
		h.upHeap(slot)
	}
}

// IsPresent reports whether index is in the heap.
func (h *Heap[K]) IsPresent(index uint32) bool {
	return index < uint32(len(h.heapIndexes)) && h.heapIndexes[index] != notPresent
}

// Key returns the key stored for index. The value is meaningless if the index
// was never added.
func (h *Heap[K]) Key(index uint32) K {
	if index >= uint32(len(h.keys)) {
		panic(fmt.Sprintf("binheap: index %d out of range", index))
	}
	return h.keys[index]
}

// Clear removes every entry but keeps storage.
func (h *Heap[K]) Clear() {
	for i := uint32(0); i < h.num; i++ {
		h.heapIndexes[h.heap[i]] = notPresent
	}
	h.num = 0
}

// Free releases all storage.
func (h *Heap[K]) Free() {
	h.heap = nil
	h.keys = nil
	h.heapIndexes = nil
	h.num = 0
}

// Resize grows the heap and index capacities. Shrinking is ignored.
func (h *Heap[K]) Resize(heapSize, indexSize uint32) {
	if heapSize > uint32(len(h.heap)) {
		h.resizeHeap(heapSize)
	}
	if indexSize > uint32(len(h.keys)) {
		h.resizeIndexes(indexSize)
	}
}

func (h *Heap[K]) resizeHeap(size uint32) {
	heap := make([]uint32, size)
	copy(heap, h.heap[:h.num])
	h.heap = heap
}

func (h *Heap[K]) resizeIndexes(size uint32) {
	keys := make([]K, size)
	copy(keys, h.keys)
	heapIndexes := make([]uint32, size)
	n := copy(heapIndexes, h.heapIndexes)
	for i := n; i < len(heapIndexes); i++ {
		heapIndexes[i] = notPresent
	}
	h.keys = keys
	h.heapIndexes = heapIndexes
}

func (h *Heap[K]) upHeap(slot uint32) {
	add := h.heap[slot]
	for slot > 0 {
		parent := (slot - 1) >> 1
		if !(h.keys[add] < h.keys[h.heap[parent]]) {
			break
		}
		h.heap[slot] = h.heap[parent]
		h.heapIndexes[h.heap[slot]] = slot
		slot = parent
	}
	h.heap[slot] = add
	h.heapIndexes[add] = slot
}

func (h *Heap[K]) downHeap(slot uint32) {
	add := h.heap[slot]
	for {
		left := slot*2 + 1
		if left >= h.num {
			break
		}
		minSlot := left
		if right := left + 1; right < h.num && h.keys[h.heap[right]] < h.keys[h.heap[left]] {
			minSlot = right
		}
		if !(h.keys[h.heap[minSlot]] < h.keys[add]) {
			break
		}
		h.heap[slot] = h.heap[minSlot]
		h.heapIndexes[h.heap[slot]] = slot
		slot = minSlot
	}
	h.heap[slot] = add
	h.heapIndexes[add] = slot
}

func roundUpPow2(v uint32) uint32 {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len32(v-1)
}
