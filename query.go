package carta

import (
	"carta/hashing"
	"carta/util"
)

// Query looks up stored keys of type K by a value of another type Q, e.g. string keys
// by []byte. Hash must give a query the digest the map's provider gives the stored key
// it equals, and Equal must agree with == on K. Neither is checked.
type Query[K, Q any] struct {
	Hash  hashing.Provider[Q]
	Equal func(stored K, q Q) bool
}

// StringBytes queries string keys with []byte. build must be the builder the map's
// provider was made from with hashing.String.
func StringBytes(build hashing.Builder) Query[string, []byte] {
	return Query[string, []byte]{
		Hash: hashing.Bytes(build),
		Equal: func(stored string, q []byte) bool {
			return stored == util.ByteToString(q)
		},
	}
}

// GetBy is Map.Get with a query key.
func GetBy[K comparable, V, Q any](m *Map[K, V], query Query[K, Q], q Q) (V, bool, error) {
	return m.get(query.Hash.Sum64(q), matchQuery(query, q))
}

// RemoveBy is Map.Remove with a query key.
func RemoveBy[K comparable, V, Q any](m *Map[K, V], query Query[K, Q], q Q) (V, bool, error) {
	return m.remove(query.Hash.Sum64(q), matchQuery(query, q))
}

// UpdateBy is Map.Update with a query key. The same restrictions on fn apply.
func UpdateBy[K comparable, V, Q any](m *Map[K, V], query Query[K, Q], q Q, fn func(V) V) (V, bool, error) {
	return m.update(query.Hash.Sum64(q), matchQuery(query, q), fn)
}

func matchQuery[K, Q any](query Query[K, Q], q Q) func(K) bool {
	return func(k K) bool {
		return query.Equal(k, q)
	}
}
