package cache

import "github.com/IvanBrykalov/concache/internal/util"

// frequencySketch is a count-min sketch estimating recent per-key access
// frequency, used by the admission policy to decide window→main-segment
// competitions.
//
// Four hash functions, saturating 4-bit counters (max 15), width
// proportional to capacity, periodic halving reset. Counters are packed
// 16-per-uint64 in one backing array shared by all four rows: each row
// re-hashes the key with its own seed to pick a word and one of that
// word's 16 nibbles, so any nibble may serve any row.
//
// This is drain-private: only the maintenance drain reads or mutates it.
type frequencySketch struct {
	table      []uint64 // packed 4-bit counters, 16 per word
	sampleSize int64    // reset threshold: 10x table size, matching the "periodic reset" cadence
	size       int64    // running increment count since last reset
}

const (
	sketchCounterBits = 4
	sketchCounterMax  = 15
	countersPerWord   = 64 / sketchCounterBits // 16
	sketchRows        = 4
)

// resetSampleFactor: a periodic reset halves every counter when the
// total increment count reaches a multiple of the sketch size. We use
// 10x the table length as one "sketch size" unit, the standard sizing
// for a count-min sketch tracking a working set on the order of the
// configured capacity.
const resetSampleFactor = 10

func newFrequencySketch(estimatedCapacity int64) *frequencySketch {
	if estimatedCapacity < 1 {
		estimatedCapacity = 1
	}
	width := util.NextPow2(uint64(estimatedCapacity))
	if width < 8 {
		width = 8
	}
	fs := &frequencySketch{
		table:      make([]uint64, width),
		sampleSize: resetSampleFactor * int64(width),
	}
	return fs
}

// indexOf computes the table slot and counter offset for hash function i
// (0..3) of the given key hash: each row re-hashes with a distinct seed to
// pick both a word within the table and a nibble within that word.
func (fs *frequencySketch) indexOf(keyHash uint64, i int) (word int, counterShift uint) {
	seeds := [sketchRows]uint64{
		0x9e3779b97f4a7c15, 0xbf58476d1ce4e5b9, 0x94d049bb133111eb, 0xff51afd7ed558ccd,
	}
	h := util.Rehash(keyHash ^ seeds[i]*uint64(i+1))
	blockLen := len(fs.table)
	if blockLen == 0 {
		return 0, 0
	}
	idx := int(h % uint64(blockLen))
	counterShift = uint((h>>32)%countersPerWord) * sketchCounterBits
	return idx, counterShift
}

func (fs *frequencySketch) frequency(keyHash uint64) int {
	if len(fs.table) == 0 {
		return 0
	}
	min := sketchCounterMax
	for i := 0; i < sketchRows; i++ {
		word, shift := fs.indexOf(keyHash, i)
		c := int((fs.table[word] >> shift) & sketchCounterMax)
		if c < min {
			min = c
		}
	}
	return min
}

// increment bumps the estimate for keyHash, saturating each row at 15 and
// triggering a halving reset once sampleSize increments have accumulated.
func (fs *frequencySketch) increment(keyHash uint64) {
	if len(fs.table) == 0 {
		return
	}
	added := false
	for i := 0; i < sketchRows; i++ {
		word, shift := fs.indexOf(keyHash, i)
		c := (fs.table[word] >> shift) & sketchCounterMax
		if c < sketchCounterMax {
			fs.table[word] += 1 << shift
			added = true
		}
	}
	if added {
		fs.size++
		if fs.size >= fs.sampleSize {
			fs.reset()
		}
	}
}

// reset halves every counter, aging out stale frequency estimates.
func (fs *frequencySketch) reset() {
	for i := range fs.table {
		fs.table[i] = (fs.table[i] >> 1) & 0x7777777777777777
	}
	fs.size >>= 1
}
