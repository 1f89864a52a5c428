package carta

import (
	"fmt"
	"runtime"
	"sync"
	"testing"

	"carta/hashing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func identity() hashing.Provider[int] {
	return hashing.Func[int](func(k int) uint64 { return uint64(k) })
}

func newStringMap(opts ...Option) *Map[string, string] {
	return New[string, string](hashing.String(hashing.Default()), opts...)
}

func TestNew(t *testing.T) {
	type args struct {
		bucketCount int
	}
	tests := []struct {
		name string
		args args
		want int
	}{
		{name: "default", args: args{bucketCount: DefaultBucketCount}, want: DefaultBucketCount},
		{name: "small", args: args{bucketCount: 4}, want: 4},
		{name: "negative", args: args{bucketCount: -4}, want: DefaultBucketCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newStringMap(WithBucketCount(tt.args.bucketCount))
			assert.Equal(t, tt.want, m.BucketCount())
			assert.Equal(t, 0, m.Len())
		})
	}
}

func TestNew_NilHasher(t *testing.T) {
	assert.Panics(t, func() {
		New[string, int](nil)
	})
}

func TestNew_InvalidBucketCountLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m := newStringMap(WithBucketCount(0), WithLogger(zap.New(core)))
	assert.Equal(t, DefaultBucketCount, m.BucketCount())
	assert.Equal(t, 1, logs.FilterMessage("invalid bucket count, using default").Len())
}

func TestMap_GetNeverInserted(t *testing.T) {
	m := newStringMap(WithBucketCount(16))
	for _, k := range []string{"", "carta", "missing"} {
		v, ok, err := m.Get(k)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, "", v)
	}
}

func TestMap_Insert(t *testing.T) {
	m := newStringMap(WithBucketCount(16))

	prev, replaced, err := m.Insert("k", "v1")
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Equal(t, "", prev)

	v, ok, err := m.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	prev, replaced, err = m.Insert("k", "v2")
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, "v1", prev)

	v, _, _ = m.Get("k")
	assert.Equal(t, "v2", v)
	assert.Equal(t, 1, m.Len())
}

func TestMap_Remove(t *testing.T) {
	m := newStringMap(WithBucketCount(16))
	_, _, err := m.Insert("k", "v")
	require.NoError(t, err)

	v, ok, err := m.Remove("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok, _ = m.Get("k")
	assert.False(t, ok)

	_, ok, err = m.Remove("k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestMap_Update(t *testing.T) {
	m := New[string, int](hashing.String(hashing.XXHash()), WithBucketCount(16))
	_, _, _ = m.Insert("counter", 41)

	tests := []struct {
		name   string
		key    string
		wantV  int
		wantOK bool
	}{
		{name: "present", key: "counter", wantV: 42, wantOK: true},
		{name: "absent", key: "missing", wantV: 0, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			v, ok, err := m.Update(tt.key, func(v int) int {
				called = true
				return v + 1
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantV, v)
			assert.Equal(t, tt.wantOK, called)
		})
	}

	v, _, _ := m.Get("counter")
	assert.Equal(t, 42, v)
	_, ok, _ := m.Get("missing")
	assert.False(t, ok)
}

func TestMap_IdentityScenario(t *testing.T) {
	m := New[int, string](identity(), WithBucketCount(4))
	assert.Equal(t, 1, m.table.Index(identity().Sum64(5)))

	_, replaced, err := m.Insert(5, "v1")
	require.NoError(t, err)
	assert.False(t, replaced)

	v, ok, _ := m.Get(5)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	prev, replaced, _ := m.Insert(5, "v2")
	assert.True(t, replaced)
	assert.Equal(t, "v1", prev)

	v, _, _ = m.Get(5)
	assert.Equal(t, "v2", v)

	v, ok, _ = m.Remove(5)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	_, ok, _ = m.Get(5)
	assert.False(t, ok)
}

func TestMap_Collisions(t *testing.T) {
	// 1, 5 and 9 all land in bucket 1
	m := New[int, string](identity(), WithBucketCount(4))
	for _, k := range []int{1, 5, 9} {
		_, replaced, err := m.Insert(k, fmt.Sprintf("v%d", k))
		require.NoError(t, err)
		assert.False(t, replaced)
	}
	s := m.Stats()
	assert.Equal(t, 3, s.Entries)
	assert.Equal(t, 3, s.MaxBucketEntries)
	assert.Equal(t, 3, s.EmptyBuckets)

	for _, k := range []int{1, 5, 9} {
		v, ok, _ := m.Get(k)
		assert.True(t, ok)
		assert.Equal(t, fmt.Sprintf("v%d", k), v)
	}

	v, ok, _ := m.Remove(5)
	assert.True(t, ok)
	assert.Equal(t, "v5", v)

	_, ok, _ = m.Get(5)
	assert.False(t, ok)
	for _, k := range []int{1, 9} {
		v, ok, _ := m.Get(k)
		assert.True(t, ok)
		assert.Equal(t, fmt.Sprintf("v%d", k), v)
	}

	v, _, _ = m.Update(9, func(s string) string { return s + "+" })
	assert.Equal(t, "v9+", v)
	v, _, _ = m.Get(1)
	assert.Equal(t, "v1", v)
}

func TestMap_ConcurrentInsert(t *testing.T) {
	const (
		workers = 8
		perW    = 2000
	)
	m := New[int, int](hashing.Integer[int](hashing.Default()), WithBucketCount(64))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w * perW; i < (w+1)*perW; i++ {
				_, replaced, err := m.Insert(i, i*10)
				assert.NoError(t, err)
				assert.False(t, replaced)
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, workers*perW, m.Len())
	for i := 0; i < workers*perW; i++ {
		v, ok, err := m.Get(i)
		require.NoError(t, err)
		require.True(t, ok, "key %d", i)
		require.Equal(t, i*10, v)
	}
}

func TestMap_ConcurrentMixed(t *testing.T) {
	m := New[int, int](hashing.Integer[int](hashing.FNV()), WithBucketCount(8))
	for i := 0; i < 100; i++ {
		_, _, _ = m.Insert(i, 0)
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				k := i % 100
				_, _, err := m.Update(k, func(v int) int { return v + 1 })
				assert.NoError(t, err)
				_, _, err = m.Get(k)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	total := 0
	for i := 0; i < 100; i++ {
		v, ok, _ := m.Get(i)
		require.True(t, ok)
		total += v
	}
	assert.Equal(t, 8*1000, total)
}

func TestMap_HandleSurvivesRemoveAndUpdate(t *testing.T) {
	type record struct {
		Name  string
		Count int
	}
	m := New[string, record](hashing.String(hashing.Default()), WithBucketCount(4))
	_, _, _ = m.Insert("a", record{Name: "a", Count: 1})
	_, _, _ = m.Insert("b", record{Name: "b", Count: 1})

	ha, _, _ := m.Get("a")
	hb, _, _ := m.Get("b")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _, _ = m.Remove("a")
	}()
	go func() {
		defer wg.Done()
		_, _, _ = m.Update("b", func(r record) record {
			r.Count = 100
			return r
		})
	}()
	wg.Wait()

	assert.Equal(t, record{Name: "a", Count: 1}, ha)
	assert.Equal(t, record{Name: "b", Count: 1}, hb)

	nb, _, _ := m.Get("b")
	assert.Equal(t, 100, nb.Count)
}

func TestMap_UpdatePanicPoisons(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := New[int, string](identity(), WithBucketCount(4), WithLogger(zap.New(core)))
	_, _, _ = m.Insert(1, "one")
	_, _, _ = m.Insert(2, "two")

	assert.Panics(t, func() {
		_, _, _ = m.Update(1, func(string) string { panic("boom") })
	})

	_, ok, err := m.Get(1)
	assert.ErrorIs(t, err, ErrPoisoned)
	assert.False(t, ok)
	_, _, err = m.Insert(5, "five") // same bucket, different key
	assert.ErrorIs(t, err, ErrPoisoned)
	_, _, err = m.Remove(1)
	assert.ErrorIs(t, err, ErrPoisoned)
	_, _, err = m.Update(1, func(s string) string { return s })
	assert.ErrorIs(t, err, ErrPoisoned)

	// other buckets keep working
	v, ok, err := m.Get(2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", v)

	assert.Equal(t, 1, m.Stats().PoisonedBuckets)
	entries := logs.FilterMessage("bucket poisoned by interrupted write").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, int64(1), entries[0].ContextMap()["bucket"])
}

func TestMap_UpdateGoexitReset(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := New[int, string](identity(), WithBucketCount(4),
		WithPoisonPolicy(PoisonReset), WithLogger(zap.New(core)))
	_, _, _ = m.Insert(3, "three")
	_, _, _ = m.Insert(7, "seven")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, _ = m.Update(3, func(s string) string {
			runtime.Goexit()
			return s
		})
	}()
	wg.Wait()

	// bucket 3 was emptied and keeps serving
	for _, k := range []int{3, 7} {
		_, ok, err := m.Get(k)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	_, replaced, err := m.Insert(3, "again")
	require.NoError(t, err)
	assert.False(t, replaced)

	assert.Equal(t, 0, m.Stats().PoisonedBuckets)
	assert.Equal(t, 1, logs.FilterMessage("bucket reset after interrupted write").Len())
}

func TestMap_UncomparableInterfaceKeyPoisons(t *testing.T) {
	m := New[any, int](hashing.Func[any](func(any) uint64 { return 0 }), WithBucketCount(1))
	_, _, err := m.Insert([]int{1}, 1)
	require.NoError(t, err) // empty bucket, no comparison happens

	// comparing two slices inside an interface panics with the bucket locked
	assert.Panics(t, func() {
		_, _, _ = m.Insert([]int{2}, 2)
	})
	_, _, err = m.Get("anything")
	assert.ErrorIs(t, err, ErrPoisoned)
}
