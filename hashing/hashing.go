// Package hashing provides the hash providers a carta map uses to pick a bucket.
//
// A Provider turns a key into a 64-bit digest. Providers built with New never share
// hasher state between keys: every call to Sum64 builds a fresh hash.Hash64, feeds the
// key into it and reads the digest back.
package hashing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/fnv"
	"hash/maphash"

	"carta/util"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
	"golang.org/x/exp/constraints"
)

// Provider produces a deterministic digest for a key. Equal keys must produce equal
// digests for the lifetime of the map using the provider.
type Provider[K any] interface {
	Sum64(key K) uint64
}

// Builder returns a hasher with a clear internal state.
type Builder func() hash.Hash64

// Writer feeds key into h.
type Writer[K any] func(h hash.Hash64, key K)

type builderProvider[K any] struct {
	build Builder
	write Writer[K]
}

// New returns a Provider that builds a fresh hasher for every key.
func New[K any](build Builder, write Writer[K]) Provider[K] {
	return builderProvider[K]{build: build, write: write}
}

func (p builderProvider[K]) Sum64(key K) uint64 {
	h := p.build()
	p.write(h, key)
	return h.Sum64()
}

// Func adapts a plain digest function to a Provider.
type Func[K any] func(key K) uint64

// Sum64 returns f(key).
func (f Func[K]) Sum64(key K) uint64 {
	return f(key)
}

// Murmur3 builds 64-bit murmur3 hashers seeded with seed.
func Murmur3(seed uint32) Builder {
	return func() hash.Hash64 {
		return murmur3.New64WithSeed(seed)
	}
}

// XXHash builds xxh64 hashers.
func XXHash() Builder {
	return func() hash.Hash64 {
		return xxhash.New()
	}
}

// FNV builds 64-bit FNV-1a hashers.
func FNV() Builder {
	return fnv.New64a
}

// Maphash builds runtime-backed hashers (aeshash where the CPU has it).
// NOTE: seeds are per process, so the digests cannot be persisted.
func Maphash(seed maphash.Seed) Builder {
	return func() hash.Hash64 {
		h := new(maphash.Hash)
		h.SetSeed(seed)
		return h
	}
}

// ErrUnknownBuilder is returned by Lookup for an unregistered name.
var ErrUnknownBuilder = errors.New("hashing: unknown builder")

// Names lists the builders Lookup knows.
var Names = []string{"murmur3", "xxhash", "fnv", "maphash"}

// Lookup returns the builder registered under name. Maphash gets a new random seed.
func Lookup(name string) (Builder, error) {
	switch name {
	case "murmur3", "":
		return Murmur3(0), nil
	case "xxhash":
		return XXHash(), nil
	case "fnv":
		return FNV(), nil
	case "maphash":
		return Maphash(maphash.MakeSeed()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBuilder, name)
	}
}

// Default is the builder used when a caller has no preference.
func Default() Builder {
	return Murmur3(0)
}

// WriteString writes s without copying it.
func WriteString(h hash.Hash64, s string) {
	_, _ = h.Write(util.StringToByte(s))
}

// WriteBytes writes b as is. It yields the same digest as WriteString for the same
// content, so string keys can be looked up with []byte queries.
func WriteBytes(h hash.Hash64, b []byte) {
	_, _ = h.Write(b)
}

// WriteInteger writes v as 8 little-endian bytes.
func WriteInteger[T constraints.Integer](h hash.Hash64, v T) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	_, _ = h.Write(buf[:])
}

// String returns a Provider for string keys.
func String(build Builder) Provider[string] {
	return New[string](build, WriteString)
}

// Bytes returns a Provider for []byte keys, digest-compatible with String.
func Bytes(build Builder) Provider[[]byte] {
	return New[[]byte](build, WriteBytes)
}

// Integer returns a Provider for integer keys.
func Integer[T constraints.Integer](build Builder) Provider[T] {
	return New[T](build, WriteInteger[T])
}
