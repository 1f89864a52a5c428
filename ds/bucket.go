package ds

import (
	"golang.org/x/sys/cpu"
)

// Entry is a stored key and the cell holding its value.
type Entry[K, V any] struct {
	Key  K
	Cell *ValueCell[V]
}

// Bucket is one independently locked slot of a Table. Methods other than the ones on
// Table expect the caller to hold the bucket's lock.
type Bucket[K, V any] struct {
	mu       rwMutex // r&w lock for every bucket
	entries  []Entry[K, V]
	poisoned bool
	_        cpu.CacheLinePad
}

// Find returns the position of the first entry whose key satisfies match, or -1.
func (b *Bucket[K, V]) Find(match func(K) bool) int {
	for i := range b.entries {
		if match(b.entries[i].Key) {
			return i
		}
	}
	return -1
}

// At returns the entry at position i.
func (b *Bucket[K, V]) At(i int) Entry[K, V] {
	return b.entries[i]
}

// Append adds a new entry. The caller checked that key is not present.
func (b *Bucket[K, V]) Append(key K, value V) {
	b.entries = append(b.entries, Entry[K, V]{Key: key, Cell: NewValueCell(value)})
}

// RemoveAt deletes the entry at position i by moving the last entry into its place.
func (b *Bucket[K, V]) RemoveAt(i int) Entry[K, V] {
	e := b.entries[i]
	last := len(b.entries) - 1
	b.entries[i] = b.entries[last]
	b.entries[last] = Entry[K, V]{}
	b.entries = b.entries[:last]
	return e
}

// Len returns the number of entries.
func (b *Bucket[K, V]) Len() int {
	return len(b.entries)
}

func (b *Bucket[K, V]) reset() {
	clear(b.entries)
	b.entries = nil
	b.poisoned = false
}
