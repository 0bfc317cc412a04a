// Package bloom provides the visitor-id membership filter stored in snapshot
// sidecars, so a lookup for one visitor can skip batches that never saw it.
package bloom

import (
	"math"

	"github.com/spaolacci/murmur3"
)

// Filter provides probabilistic membership testing. It has no false
// negatives: after Add(x), Contains(x) is always true.
//
// A Filter is not safe for concurrent mutation. Snapshot writers build one
// per batch and only read it afterwards.
type Filter struct {
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64
}

// New creates a Filter with the given number of bits (rounded up to a
// multiple of 64) and hash functions.
func New(numBits, numHashes int) *Filter {
	if numBits <= 0 {
		numBits = 1024
	}
	if numHashes <= 0 {
		numHashes = 7
	}

	numWords := (numBits + 63) / 64
	return &Filter{
		bits:      make([]uint64, numWords),
		numBits:   uint64(numWords * 64),
		numHashes: uint64(numHashes),
	}
}

// NewWithEstimates sizes a Filter for the expected number of items and
// target false positive rate.
func NewWithEstimates(expectedItems int, targetFPR float64) *Filter {
	return New(OptimalParameters(expectedItems, targetFPR))
}

// OptimalParameters returns the bit count m = -n*ln(p)/ln(2)^2 and hash
// count k = (m/n)*ln(2) for n items at false positive rate p.
func OptimalParameters(expectedItems int, targetFPR float64) (numBits, numHashes int) {
	if expectedItems <= 0 {
		expectedItems = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	n := float64(expectedItems)
	m := -n * math.Log(targetFPR) / (math.Ln2 * math.Ln2)
	k := (m / n) * math.Ln2

	numBits = max(int(math.Ceil(m)), 64)
	numHashes = max(int(math.Ceil(k)), 1)
	return numBits, numHashes
}

// Add adds an item to the filter.
func (f *Filter) Add(item []byte) {
	h1, h2 := murmur3.Sum128(item)
	for i := uint64(0); i < f.numHashes; i++ {
		// Double hashing: h(i) = h1 + i*h2
		pos := (h1 + i*h2) % f.numBits
		f.bits[pos/64] |= 1 << (pos % 64)
	}
	f.count++
}

// AddString adds a string item.
func (f *Filter) AddString(s string) {
	f.Add([]byte(s))
}

// Contains reports whether item might be in the filter.
func (f *Filter) Contains(item []byte) bool {
	h1, h2 := murmur3.Sum128(item)
	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % f.numBits
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// ContainsString reports whether a string item might be in the filter.
func (f *Filter) ContainsString(s string) bool {
	return f.Contains([]byte(s))
}

func (f *Filter) NumBits() int   { return int(f.numBits) }
func (f *Filter) NumHashes() int { return int(f.numHashes) }
func (f *Filter) Count() uint64  { return f.count }

// FalsePositiveRate estimates the false positive rate from the fill,
// (1 - e^(-k*n/m))^k.
func (f *Filter) FalsePositiveRate() float64 {
	if f.count == 0 {
		return 0
	}
	k := float64(f.numHashes)
	n := float64(f.count)
	m := float64(f.numBits)
	return math.Pow(1-math.Exp(-k*n/m), k)
}
