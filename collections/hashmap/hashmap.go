// Package hashmap is a hash table keyed with SipHash.
//
// Each Map draws its own pair of SipHash keys from a randstate.Source, so
// bucket placement differs between maps and between runs. Keys are turned
// into bytes by an Encoder before hashing.
package hashmap

import (
	"encoding/binary"
	"iter"

	"github.com/dchest/siphash"

	"github.com/joshuapare/heapkit/collections/randstate"
)

const (
	minBuckets = 8
	// maxLoad is the average chain length that triggers a resize.
	maxLoad = 2
)

// Encoder appends the hashed representation of k to dst. Equal keys must
// produce equal bytes.
type Encoder[K comparable] func(dst []byte, k K) []byte

// StringKey encodes a string key as its bytes.
func StringKey(dst []byte, k string) []byte {
	return append(dst, k...)
}

// Uint64Key encodes an integer key little-endian.
func Uint64Key(dst []byte, k uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, k)
}

type entry[K comparable, V any] struct {
	hash uint64
	key  K
	val  V
}

// Map is a chained hash table. Not safe for concurrent use.
type Map[K comparable, V any] struct {
	k0, k1  uint64
	encode  Encoder[K]
	buckets [][]entry[K, V]
	count   int
	scratch []byte
}

// New returns an empty map keyed from src. A nil src uses a fresh
// clock-seeded source.
func New[K comparable, V any](src *randstate.Source, encode Encoder[K]) *Map[K, V] {
	if src == nil {
		src = randstate.New(nil)
	}
	k0, k1 := src.Keys()
	return &Map[K, V]{
		k0:      k0,
		k1:      k1,
		encode:  encode,
		buckets: make([][]entry[K, V], minBuckets),
	}
}

// NewString is New with StringKey.
func NewString[V any](src *randstate.Source) *Map[string, V] {
	return New[string, V](src, StringKey)
}

// Keys returns the SipHash keys in use.
func (m *Map[K, V]) Keys() (k0, k1 uint64) {
	return m.k0, m.k1
}

// Hash returns the keyed hash of k.
func (m *Map[K, V]) Hash(k K) uint64 {
	m.scratch = m.encode(m.scratch[:0], k)
	return siphash.Hash(m.k0, m.k1, m.scratch)
}

// Insert stores v under k and returns the value it replaced, if any.
func (m *Map[K, V]) Insert(k K, v V) (old V, replaced bool) {
	h := m.Hash(k)
	b := m.bucket(h)
	for i := range m.buckets[b] {
		e := &m.buckets[b][i]
		if e.hash == h && e.key == k {
			old, e.val = e.val, v
			return old, true
		}
	}

	m.buckets[b] = append(m.buckets[b], entry[K, V]{hash: h, key: k, val: v})
	m.count++
	if m.count > maxLoad*len(m.buckets) {
		m.resize(2 * len(m.buckets))
	}
	return old, false
}

// Get returns the value stored under k.
func (m *Map[K, V]) Get(k K) (V, bool) {
	h := m.Hash(k)
	for _, e := range m.buckets[m.bucket(h)] {
		if e.hash == h && e.key == k {
			return e.val, true
		}
	}
	var zero V
	return zero, false
}

// Delete removes k and returns the value it held.
func (m *Map[K, V]) Delete(k K) (V, bool) {
	h := m.Hash(k)
	b := m.bucket(h)
	chain := m.buckets[b]
	for i, e := range chain {
		if e.hash == h && e.key == k {
			last := len(chain) - 1
			chain[i] = chain[last]
			chain[last] = entry[K, V]{}
			m.buckets[b] = chain[:last]
			m.count--
			return e.val, true
		}
	}
	var zero V
	return zero, false
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	return m.count
}

// All iterates over every entry in unspecified order. The map must not be
// modified during iteration.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, chain := range m.buckets {
			for _, e := range chain {
				if !yield(e.key, e.val) {
					return
				}
			}
		}
	}
}

func (m *Map[K, V]) bucket(h uint64) int {
	// len(buckets) is always a power of two
	return int(h & uint64(len(m.buckets)-1))
}

func (m *Map[K, V]) resize(n int) {
	old := m.buckets
	m.buckets = make([][]entry[K, V], n)
	for _, chain := range old {
		for _, e := range chain {
			b := m.bucket(e.hash)
			m.buckets[b] = append(m.buckets[b], e)
		}
	}
}
