package shadow

import (
	"fmt"
	"io"
	"iter"

	"github.com/bits-and-blooms/bitset"
)

// PageSize is the number of bytes covered by one shadow page.
const PageSize = 1 << log2PageSize

const log2PageSize = 12

// wordBits is the number of offsets covered by one word of the dirty bitmap.
const wordBits = 64

// A Page shadows one aligned PageSize window of the address space. It keeps
// the patched byte values and one dirty bit per byte. A page knows nothing
// about absolute addresses; all offsets are relative to the page start.
//
// A byte whose dirty bit is clear is absent, not zero. Only the bitmap tells
// a stored zero apart from a byte that was never written.
type Page struct {
	data  [PageSize]byte
	dirty *bitset.BitSet
}

// NewPage creates an empty page with all dirty bits clear.
func NewPage() *Page {
	return &Page{
		dirty: bitset.New(PageSize),
	}
}

// Mark stores value at offset and sets the dirty bit of the offset.
func (p *Page) Mark(offset uint64, value byte) {
	p.data[offset] = value
	p.dirty.Set(uint(offset))
}

// IsMarked tells if the byte at offset has been patched.
func (p *Page) IsMarked(offset uint64) bool {
	words := p.dirty.Words()
	if words[offset/wordBits] == 0 {
		return false
	}

	return p.dirty.Test(uint(offset))
}

// IsMarkedInRange tells if any offset in the inclusive range [begin, end] has
// been patched. An end beyond the page is clamped to the last offset.
//
// Empty bitmap words are skipped whole, so a miss costs one step per 64
// offsets and a hit returns as soon as the first dirty bit is found.
func (p *Page) IsMarkedInRange(begin, end uint64) bool {
	if end >= PageSize {
		end = PageSize - 1
	}

	if begin > end {
		return false
	}

	next, found := p.dirty.NextSet(uint(begin))
	if !found {
		return false
	}

	return uint64(next) <= end
}

// Value returns the byte stored at offset. The bool is false if the offset
// was never patched, in which case the byte is meaningless.
func (p *Page) Value(offset uint64) (byte, bool) {
	if !p.IsMarked(offset) {
		return 0, false
	}

	return p.data[offset], true
}

// Data returns a copy of the raw bytes of the page. Bytes that were never
// patched read as zero.
func (p *Page) Data() [PageSize]byte {
	return p.data
}

// NumMarked returns how many bytes of the page have been patched.
func (p *Page) NumMarked() uint {
	return p.dirty.Count()
}

// Offsets yields the patched offsets in ascending order.
func (p *Page) Offsets() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		for i, found := p.dirty.NextSet(0); found; i, found = p.dirty.NextSet(i + 1) {
			if !yield(uint64(i)) {
				return
			}
		}
	}
}

// Dump writes the raw bytes of the page in hex, 32 bytes per line. Bytes that
// were never patched are printed as "..".
func (p *Page) Dump(w io.Writer) error {
	const perLine = 32

	for i := uint64(0); i < PageSize; i++ {
		sep := " "
		if (i+1)%perLine == 0 {
			sep = "\n"
		}

		var err error
		if p.dirty.Test(uint(i)) {
			_, err = fmt.Fprintf(w, "%02x%s", p.data[i], sep)
		} else {
			_, err = fmt.Fprintf(w, "..%s", sep)
		}

		if err != nil {
			return err
		}
	}

	return nil
}
