package trigram

import "math/bits"

// Bitset is a growable set of uint32 slot ids backed by a word array. It is
// the compact representation used for the forward posting list: one bit per
// document slot per trigram, instead of a set literal.
type Bitset struct {
	words []uint64
}

// NewBitset returns an empty bitset.
func NewBitset() *Bitset {
	return &Bitset{}
}

func (b *Bitset) ensure(word int) {
	if word < len(b.words) {
		return
	}
	grown := make([]uint64, word+1)
	copy(grown, b.words)
	b.words = grown
}

// Set marks slot i as present.
func (b *Bitset) Set(i uint32) {
	word := int(i / 64)
	b.ensure(word)
	b.words[word] |= 1 << (i % 64)
}

// Clear marks slot i as absent.
func (b *Bitset) Clear(i uint32) {
	word := int(i / 64)
	if word >= len(b.words) {
		return
	}
	b.words[word] &^= 1 << (i % 64)
}

// Has reports whether slot i is present.
func (b *Bitset) Has(i uint32) bool {
	word := int(i / 64)
	if word >= len(b.words) {
		return false
	}
	return b.words[word]&(1<<(i%64)) != 0
}

// Len returns the number of set bits.
func (b *Bitset) Len() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// And returns the intersection of b and other, leaving both unmodified.
func (b *Bitset) And(other *Bitset) *Bitset {
	n := len(b.words)
	if len(other.words) < n {
		n = len(other.words)
	}
	result := &Bitset{words: make([]uint64, n)}
	for i := 0; i < n; i++ {
		result.words[i] = b.words[i] & other.words[i]
	}
	return result
}

// ForEach invokes fn once per set bit, in ascending order.
func (b *Bitset) ForEach(fn func(uint32)) {
	for wi, w := range b.words {
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			fn(uint32(wi*64 + tz))
			w &= w - 1
		}
	}
}
