package ds

import (
	"errors"
	"fmt"
)

const (
	// DefaultBucketCount is 2048 * 16 buckets, enough to keep writers on unrelated
	// keys apart without resizing.
	DefaultBucketCount = 2048 * 16
)

// ErrPoisoned is returned for a bucket or cell whose last write did not complete.
var ErrPoisoned = errors.New("ds: poisoned by an interrupted write")

// PoisonPolicy selects what happens to a bucket whose write section panicked or
// called runtime.Goexit.
type PoisonPolicy uint8

const (
	// PoisonFail marks the bucket; every later operation on it returns ErrPoisoned.
	PoisonFail PoisonPolicy = iota
	// PoisonReset drops the bucket's entries and keeps it usable.
	PoisonReset
)

func (p PoisonPolicy) String() string {
	switch p {
	case PoisonFail:
		return "fail"
	case PoisonReset:
		return "reset"
	default:
		return fmt.Sprintf("PoisonPolicy(%d)", uint8(p))
	}
}

// PoisonEvent describes one interrupted write.
type PoisonEvent struct {
	Index   int // bucket index
	Entries int // entries in the bucket when the write was interrupted
	Policy  PoisonPolicy
}

// BucketStats is a point-in-time view of one bucket.
type BucketStats struct {
	Index    int
	Entries  int
	Poisoned bool
}

// Table is a fixed-length array of independently locked buckets. Its length never
// changes; there is no rehashing.
type Table[K, V any] struct {
	buckets  []Bucket[K, V]
	policy   PoisonPolicy
	onPoison func(PoisonEvent)
}

// NewTable creates a table with bucketCount buckets. A non-positive count falls back to
// DefaultBucketCount. onPoison may be nil; it is called after the bucket lock is released.
func NewTable[K, V any](bucketCount int, policy PoisonPolicy, onPoison func(PoisonEvent)) *Table[K, V] {
	if bucketCount <= 0 {
		bucketCount = DefaultBucketCount
	}
	return &Table[K, V]{
		buckets:  make([]Bucket[K, V], bucketCount),
		policy:   policy,
		onPoison: onPoison,
	}
}

// BucketCount returns the fixed number of buckets.
func (t *Table[K, V]) BucketCount() int {
	return len(t.buckets)
}

// Index maps a digest to a bucket position.
func (t *Table[K, V]) Index(sum uint64) int {
	return int(sum % uint64(len(t.buckets)))
}

// ReadBucket runs fn with bucket i held under the shared lock. Concurrent readers of
// the same bucket proceed together.
func (t *Table[K, V]) ReadBucket(i int, fn func(b *Bucket[K, V]) error) error {
	b := &t.buckets[i]
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.poisoned {
		return poisonedErr(i)
	}
	return fn(b)
}

// WriteBucket runs fn with bucket i held under the exclusive lock. If fn panics or
// exits the goroutine, the bucket is poisoned or reset according to the table policy
// before the lock is released, and the panic continues.
func (t *Table[K, V]) WriteBucket(i int, fn func(b *Bucket[K, V]) error) error {
	b := &t.buckets[i]
	b.mu.Lock()
	done := false
	defer func() {
		if done {
			b.mu.Unlock()
			return
		}
		ev := PoisonEvent{Index: i, Entries: len(b.entries), Policy: t.policy}
		if t.policy == PoisonReset {
			b.reset()
		} else {
			b.poisoned = true
		}
		b.mu.Unlock()
		if t.onPoison != nil {
			t.onPoison(ev)
		}
	}()

	if b.poisoned {
		done = true
		return poisonedErr(i)
	}
	err := fn(b)
	done = true
	return err
}

// Stats reports every bucket to fn, one bucket lock at a time. The reports are not a
// consistent snapshot of the whole table.
func (t *Table[K, V]) Stats(fn func(BucketStats)) {
	for i := range t.buckets {
		b := &t.buckets[i]
		b.mu.RLock()
		s := BucketStats{Index: i, Entries: len(b.entries), Poisoned: b.poisoned}
		b.mu.RUnlock()
		fn(s)
	}
}

func poisonedErr(i int) error {
	return fmt.Errorf("bucket %d: %w", i, ErrPoisoned)
}
