// Package hashtable provides a small separate-chaining hash table that maps
// 16-bit keys to chains of indices into an external array.
//
// The table never stores values. Chains are intrusive: the link for an index
// lives in a parallel next-index array addressed by the index itself, so one
// index can belong to at most one chain at a time.
package hashtable

import (
	"fmt"
	"iter"
	"math/bits"
)

// InvalidIndex marks the end of a chain or an empty bucket.
const InvalidIndex = ^uint32(0)

// minIndexSize is the smallest index capacity allocated on growth.
const minIndexSize = 32

// emptyHash is the bucket array used before the first allocation. The mask is
// zero then, so every key lands on this single empty bucket.
var emptyHash = []uint32{InvalidIndex}

// HashTable maps keys to chains of indices.
type HashTable struct {
	hashSize uint16
	hashMask uint16
	hash     []uint32
	next     []uint32
}

// New creates a table with hashSize buckets and room for indexSize indices.
// hashSize must be a power of two. With indexSize == 0 nothing is allocated
// until the first Add.
func New(hashSize uint16, indexSize uint32) *HashTable {
	if hashSize == 0 || hashSize&(hashSize-1) != 0 {
		panic(fmt.Sprintf("hashtable: hash size %d is not a power of two", hashSize))
	}

	h := &HashTable{
		hashSize: hashSize,
		hash:     emptyHash,
	}
	h.Resize(indexSize)
	return h
}

// HashSize returns the number of buckets.
func (h *HashTable) HashSize() uint16 {
	return h.hashSize
}

// IndexSize returns the current index capacity.
func (h *HashTable) IndexSize() uint32 {
	return uint32(len(h.next))
}

// First returns the head of the chain for key, or InvalidIndex.
func (h *HashTable) First(key uint16) uint32 {
	return h.hash[key&h.hashMask]
}

// Next returns the index following index in its chain, or InvalidIndex.
func (h *HashTable) Next(index uint32) uint32 {
	if index >= uint32(len(h.next)) {
		panic(fmt.Sprintf("hashtable: index %d out of range [0,%d)", index, len(h.next)))
	}
	return h.next[index]
}

// IsValid reports whether index refers to a chain entry.
func (h *HashTable) IsValid(index uint32) bool {
	return index != InvalidIndex
}

// Chain iterates the chain for key.
func (h *HashTable) Chain(key uint16) iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		for i := h.First(key); h.IsValid(i); i = h.next[i] {
			if !yield(i) {
				return
			}
		}
	}
}

// Add prepends index to the chain for key, growing the index capacity if
// needed.
func (h *HashTable) Add(key uint16, index uint32) {
	if index == InvalidIndex {
		panic("hashtable: cannot add the invalid index")
	}
	if index >= uint32(len(h.next)) {
		h.Resize(max(minIndexSize, roundUpPow2(index+1)))
	}

	key &= h.hashMask
	h.next[index] = h.hash[key]
	h.hash[key] = index
}

// Remove unlinks index from the chain for key. Indices beyond the current
// capacity or not present in the chain are ignored.
func (h *HashTable) Remove(key uint16, index uint32) {
	if index >= uint32(len(h.next)) {
		return
	}

	key &= h.hashMask
	if h.hash[key] == index {
		h.hash[key] = h.next[index]
		h.next[index] = InvalidIndex
		return
	}
	for i := h.hash[key]; h.IsValid(i); i = h.next[i] {
		if h.next[i] == index {
			h.next[i] = h.next[index]
			h.next[index] = InvalidIndex
			return
		}
	}
}

// Clear empties every bucket without releasing memory.
func (h *HashTable) Clear() {
	if len(h.next) == 0 {
		return
	}
	for i := range h.hash {
		h.hash[i] = InvalidIndex
	}
}

// Free releases all storage. The table stays usable.
func (h *HashTable) Free() {
	h.hashMask = 0
	h.hash = emptyHash
	h.next = nil
}

// Resize changes the index capacity, preserving existing chains. Shrinking
// below an index that is still linked leaves the table inconsistent.
func (h *HashTable) Resize(newIndexSize uint32) {
	if newIndexSize == uint32(len(h.next)) {
		return
	}
	if newIndexSize == 0 {
		h.Free()
		return
	}
	if len(h.next) == 0 {
		h.allocHash()
	}

	next := make([]uint32, newIndexSize)
	n := copy(next, h.next)
	for i := n; i < len(next); i++ {
		next[i] = InvalidIndex
	}
	h.next = next
}

func (h *HashTable) allocHash() {
	h.hashMask = h.hashSize - 1
	h.hash = make([]uint32, h.hashSize)
	for i := range h.hash {
		h.hash[i] = InvalidIndex
	}
}

func roundUpPow2(v uint32) uint32 {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len32(v-1)
}

// Murmur32 mixes a sequence of words into a 32-bit hash (MurmurHash3 finalizer
// per word). Used to build keys for point and edge lookups.
func Murmur32(words ...uint32) uint32 {
	var h uint32
	for _, k := range words {
		k *= 0xcc9e2d51
		k = bits.RotateLeft32(k, 15)
		k *= 0x1b873593

		h ^= k
		h = bits.RotateLeft32(h, 13)
		h = h*5 + 0xe6546b64
	}
	h ^= uint32(len(words) * 4)

	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
