package carta

import (
	"hash"
	"strings"
	"testing"

	"carta/hashing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringBytesQuery(t *testing.T) {
	build := hashing.Murmur3(17)
	m := New[string, int](hashing.String(build), WithBucketCount(32))
	q := StringBytes(build)

	for i, k := range []string{"alpha", "beta", "gamma"} {
		_, _, err := m.Insert(k, i)
		require.NoError(t, err)
	}

	type args struct {
		key []byte
	}
	tests := []struct {
		name   string
		args   args
		wantV  int
		wantOK bool
	}{
		{name: "present", args: args{key: []byte("beta")}, wantV: 1, wantOK: true},
		{name: "absent", args: args{key: []byte("delta")}, wantV: 0, wantOK: false},
		{name: "nil", args: args{key: nil}, wantV: 0, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok, err := GetBy(m, q, tt.args.key)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantV, v)
		})
	}

	v, ok, err := UpdateBy(m, q, []byte("gamma"), func(v int) int { return v * 10 })
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 20, v)

	v, ok, err = RemoveBy(m, q, []byte("alpha"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, v)

	_, ok, _ = m.Get("alpha")
	assert.False(t, ok)
	assert.Equal(t, 2, m.Len())
}

func TestCustomQuery(t *testing.T) {
	type userID struct {
		Tenant string
		Name   string
	}
	// digest and equality only look at the lower-cased name
	byName := hashing.New[string](hashing.FNV(), func(h hash.Hash64, s string) {
		hashing.WriteString(h, strings.ToLower(s))
	})
	m := New[userID, string](hashing.Func[userID](func(k userID) uint64 {
		return byName.Sum64(k.Name)
	}), WithBucketCount(8))
	q := Query[userID, string]{
		Hash: byName,
		Equal: func(stored userID, name string) bool {
			return strings.EqualFold(stored.Name, name)
		},
	}

	_, _, _ = m.Insert(userID{Tenant: "t1", Name: "ada"}, "Ada Lovelace")

	v, ok, err := GetBy(m, q, "ADA")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ada Lovelace", v)

	_, ok, _ = GetBy(m, q, "grace")
	assert.False(t, ok)
}
