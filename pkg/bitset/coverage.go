package bitset

import (
	"math/bits"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/bits-and-blooms/bitset"
)

// DenseWidth is the widest universe tracked with a dense bit vector.
// Wider universes fall back to a compressed roaring bitmap.
const DenseWidth = 24

// membership is the backing store of a Coverage.
type membership interface {
	test(v uint64) bool
	set(v uint64)
	clear(v uint64)
}

type denseMembership struct {
	b *bitset.BitSet
}

func (d denseMembership) test(v uint64) bool { return d.b.Test(uint(v)) }
func (d denseMembership) set(v uint64)       { d.b.Set(uint(v)) }
func (d denseMembership) clear(v uint64)     { d.b.Clear(uint(v)) }

type sparseMembership struct {
	b *roaring64.Bitmap
}

func (s sparseMembership) test(v uint64) bool { return s.b.Contains(v) }
func (s sparseMembership) set(v uint64)       { s.b.Add(v) }
func (s sparseMembership) clear(v uint64)     { s.b.Remove(v) }

// Coverage accumulates the union of submask closures of the masks added
// to it, counting each submask exactly once.
type Coverage struct {
	width     int
	members   membership
	count     uint64
	added     []uint64
	journaled bool
	journal   []uint64
	marks     []mark
}

type mark struct {
	journal int
	added   int
}

// NewCoverage returns an empty Coverage for masks drawn from the low
// width bits.
func NewCoverage(width int) (*Coverage, error) {
	if width < 0 || width > MaxBound {
		return nil, &RangeError{Position: width, Bound: MaxBound + 1}
	}
	c := &Coverage{width: width}
	if width <= DenseWidth {
		c.members = denseMembership{b: bitset.New(uint(1) << uint(width))}
	} else {
		c.members = sparseMembership{b: roaring64.New()}
	}
	return c, nil
}

// NewJournaledCoverage returns a Coverage that records every newly
// covered value so that additions can be undone with Rollback.
func NewJournaledCoverage(width int) (*Coverage, error) {
	c, err := NewCoverage(width)
	if err != nil {
		return nil, err
	}
	c.journaled = true
	return c, nil
}

// Count returns the number of distinct values covered so far.
func (c *Coverage) Count() uint64 {
	return c.count
}

// Contains returns true if v is a submask of some added mask.
func (c *Coverage) Contains(v uint64) bool {
	if v>>uint(c.width) != 0 {
		return false
	}
	return c.members.test(v)
}

// Add marks every submask of mask as covered and returns how many values
// were newly covered. A non-zero limit stops the walk as soon as the
// total exceeds it; the Coverage is then only partially updated and the
// caller should discard it or Rollback.
func (c *Coverage) Add(mask uint64, limit uint64) (added uint64, exceeded bool) {
	if mask>>uint(c.width) != 0 {
		// Out-of-width bits are a caller bug.
		panic(&RangeError{Position: 63 - bits.LeadingZeros64(mask), Bound: c.width})
	}
	for _, prev := range c.added {
		if IsSubmask(mask, prev) {
			return 0, false
		}
	}
	c.added = append(c.added, mask)

	s := mask
	for {
		if !c.members.test(s) {
			c.members.set(s)
			c.count++
			added++
			if c.journaled {
				c.journal = append(c.journal, s)
			}
			if limit > 0 && c.count > limit {
				return added, true
			}
		}
		if s == 0 {
			break
		}
		s = (s - 1) & mask
	}
	return added, false
}

// Mark records the current state so that it can be restored with
// Rollback. Marks nest.
func (c *Coverage) Mark() {
	c.marks = append(c.marks, mark{journal: len(c.journal), added: len(c.added)})
}

// Rollback undoes every addition since the matching Mark. It panics if
// the Coverage is not journaled or there is no outstanding Mark.
func (c *Coverage) Rollback() {
	if !c.journaled {
		panic("bitset: rollback on a coverage without a journal")
	}
	m := c.marks[len(c.marks)-1]
	c.marks = c.marks[:len(c.marks)-1]
	for _, v := range c.journal[m.journal:] {
		c.members.clear(v)
	}
	c.count -= uint64(len(c.journal) - m.journal)
	c.journal = c.journal[:m.journal]
	c.added = c.added[:m.added]
}
