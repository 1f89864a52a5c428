// Package carta implements a concurrent hash map with a fixed table of independently
// locked buckets.
//
// Every operation hashes the key, picks one bucket (digest mod bucket count), takes that
// bucket's lock and scans its entries for an equal key. Get takes the shared lock, the
// other operations take the exclusive lock; matched values sit in their own locked cell,
// always acquired after the bucket lock. Operations on different buckets never contend.
//
// The bucket count is fixed at construction. There is no rehashing, so a bucket's
// entry list grows with the number of keys that land in it.
//
// An absent key is reported as ok == false with a nil error. The only error is
// poisoning: see PoisonPolicy.
package carta

import (
	"carta/ds"
	"carta/hashing"

	"go.uber.org/zap"
)

// Map is a concurrent map from K to V. The zero value is not usable; use New.
type Map[K comparable, V any] struct {
	hasher hashing.Provider[K]
	table  *ds.Table[K, V]
	logger *zap.Logger
}

// Stats is a per-bucket aggregate of a Map. Buckets are visited one lock at a time, so
// it is not a snapshot of the whole map under concurrent writes.
type Stats struct {
	Buckets          int
	Entries          int
	EmptyBuckets     int
	MaxBucketEntries int
	PoisonedBuckets  int
}

// New creates a map that selects buckets with hasher.
func New[K comparable, V any](hasher hashing.Provider[K], opts ...Option) *Map[K, V] {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewWithConfig[K, V](cfg, hasher)
}

// NewWithConfig creates a map from cfg. A non-positive BucketCount falls back to
// DefaultBucketCount.
func NewWithConfig[K comparable, V any](cfg Config, hasher hashing.Provider[K]) *Map[K, V] {
	if hasher == nil {
		panic("carta: nil hash provider")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("carta")
	if cfg.BucketCount <= 0 {
		logger.Warn("invalid bucket count, using default",
			zap.Int("bucket_count", cfg.BucketCount),
			zap.Int("default", DefaultBucketCount))
		cfg.BucketCount = DefaultBucketCount
	}

	m := &Map[K, V]{
		hasher: hasher,
		logger: logger,
	}
	m.table = ds.NewTable[K, V](cfg.BucketCount, cfg.PoisonPolicy, m.logPoison)
	logger.Debug("map created",
		zap.Int("buckets", cfg.BucketCount),
		zap.Stringer("poison_policy", cfg.PoisonPolicy))
	return m
}

// Insert stores value under key. If key was present, its previous value is returned
// with replaced set.
func (m *Map[K, V]) Insert(key K, value V) (prev V, replaced bool, err error) {
	idx := m.table.Index(m.hasher.Sum64(key))
	err = m.table.WriteBucket(idx, func(b *ds.Bucket[K, V]) error {
		if i := b.Find(equalTo(key)); i >= 0 {
			var err error
			prev, err = b.At(i).Cell.Swap(value)
			replaced = err == nil
			return err
		}
		b.Append(key, value)
		return nil
	})
	return prev, replaced, err
}

// Get returns the value stored under key. Concurrent Gets on one bucket run together.
func (m *Map[K, V]) Get(key K) (V, bool, error) {
	return m.get(m.hasher.Sum64(key), equalTo(key))
}

// Remove deletes key and returns the value it held.
func (m *Map[K, V]) Remove(key K) (V, bool, error) {
	return m.remove(m.hasher.Sum64(key), equalTo(key))
}

// Update replaces the value under key with fn(value) and returns the new value. If key
// is absent fn is not called.
//
// fn runs while the bucket's exclusive lock is held. It must not call any method of
// m: a call that lands in the same bucket deadlocks. If fn panics, the bucket is
// poisoned (or reset) and the panic continues.
func (m *Map[K, V]) Update(key K, fn func(V) V) (V, bool, error) {
	return m.update(m.hasher.Sum64(key), equalTo(key), fn)
}

// BucketCount returns the fixed number of buckets.
func (m *Map[K, V]) BucketCount() int {
	return m.table.BucketCount()
}

// Len returns the number of keys.
func (m *Map[K, V]) Len() int {
	return m.Stats().Entries
}

// Stats aggregates bucket occupancy.
func (m *Map[K, V]) Stats() Stats {
	s := Stats{Buckets: m.table.BucketCount()}
	m.table.Stats(func(b ds.BucketStats) {
		s.Entries += b.Entries
		if b.Entries == 0 {
			s.EmptyBuckets++
		}
		if b.Entries > s.MaxBucketEntries {
			s.MaxBucketEntries = b.Entries
		}
		if b.Poisoned {
			s.PoisonedBuckets++
		}
	})
	return s
}

func (m *Map[K, V]) get(sum uint64, match func(K) bool) (v V, ok bool, err error) {
	err = m.table.ReadBucket(m.table.Index(sum), func(b *ds.Bucket[K, V]) error {
		i := b.Find(match)
		if i < 0 {
			return nil
		}
		var err error
		v, err = b.At(i).Cell.Load()
		ok = err == nil
		return err
	})
	return v, ok, err
}

func (m *Map[K, V]) remove(sum uint64, match func(K) bool) (v V, ok bool, err error) {
	err = m.table.WriteBucket(m.table.Index(sum), func(b *ds.Bucket[K, V]) error {
		i := b.Find(match)
		if i < 0 {
			return nil
		}
		var err error
		v, err = b.RemoveAt(i).Cell.Load()
		ok = err == nil
		return err
	})
	return v, ok, err
}

func (m *Map[K, V]) update(sum uint64, match func(K) bool, fn func(V) V) (v V, ok bool, err error) {
	err = m.table.WriteBucket(m.table.Index(sum), func(b *ds.Bucket[K, V]) error {
		i := b.Find(match)
		if i < 0 {
			return nil
		}
		var err error
		v, err = b.At(i).Cell.Apply(fn)
		ok = err == nil
		return err
	})
	return v, ok, err
}

func (m *Map[K, V]) logPoison(ev ds.PoisonEvent) {
	fields := []zap.Field{
		zap.Int("bucket", ev.Index),
		zap.Int("entries", ev.Entries),
		zap.Stringer("policy", ev.Policy),
	}
	if ev.Policy == PoisonReset {
		m.logger.Warn("bucket reset after interrupted write", fields...)
		return
	}
	m.logger.Error("bucket poisoned by interrupted write", fields...)
}

func equalTo[K comparable](key K) func(K) bool {
	return func(k K) bool {
		return k == key
	}
}
