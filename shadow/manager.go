package shadow

import (
	"fmt"
	"io"
	"iter"
	"slices"

	"github.com/pkg/errors"
	"github.com/sarchlab/shadowmem/hooking"
)

// HookPosPageAlloc is triggered right after a new page is inserted into the
// page table. The hook item is a PageAlloc.
var HookPosPageAlloc = &hooking.HookPos{Name: "PageAlloc"}

// HookPosRecord is triggered after a byte has been recorded. The hook item is
// a Patch.
var HookPosRecord = &hooking.HookPos{Name: "Record"}

// A Patch is a byte value recorded at an absolute address.
type Patch struct {
	Address uint64
	Value   byte
}

// PageAlloc describes the creation of a page.
type PageAlloc struct {
	Base uint64
}

// RangeScanMode selects how range queries that span several pages are
// answered.
type RangeScanMode int

const (
	// RangeScanFull checks every allocated page in the span and skips the
	// holes, so a patch anywhere in the range is found.
	RangeScanFull RangeScanMode = iota

	// RangeScanReference reproduces the legacy scan: the first page missing
	// from the span ends the query with false, and pages strictly between
	// the head and the tail page are never tested.
	RangeScanReference
)

func (m RangeScanMode) String() string {
	switch m {
	case RangeScanFull:
		return "full"
	case RangeScanReference:
		return "reference"
	default:
		return fmt.Sprintf("RangeScanMode(%d)", int(m))
	}
}

// ParseRangeScanMode converts "full" or "reference" to a RangeScanMode.
func ParseRangeScanMode(s string) (RangeScanMode, error) {
	switch s {
	case "", "full":
		return RangeScanFull, nil
	case "reference":
		return RangeScanReference, nil
	default:
		return RangeScanFull, errors.Errorf("unknown range scan mode %q", s)
	}
}

// A Manager presents a flat 64-bit address space backed by pages that are
// allocated on the first write into their window. A Manager is not safe for
// concurrent use; wrap it in a Locked when several goroutines share it.
type Manager struct {
	hooking.HookableBase

	rangeScanMode RangeScanMode
	pages         map[uint64]*Page
}

// NewManager creates an empty Manager with the default range scan mode.
func NewManager() *Manager {
	return MakeBuilder().Build()
}

// RangeScanMode returns the mode used by multi-page range queries.
func (m *Manager) RangeScanMode() RangeScanMode {
	return m.rangeScanMode
}

// Record stores value at addr, allocating the owning page if needed.
func (m *Manager) Record(addr uint64, value byte) {
	base, offset := splitAddress(addr)
	page := m.createOrGetPage(base)
	page.Mark(offset, value)

	m.invokeRecordHook(addr, value)
}

// RecordBytes stores a contiguous patch starting at addr. The patch may cross
// page boundaries but must not run past the last address of the 64-bit space.
func (m *Manager) RecordBytes(addr uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	last := addr + uint64(len(data)-1)
	if last < addr {
		return errors.Wrapf(ErrAddressOverflow,
			"%d bytes at %#x", len(data), addr)
	}

	currAddr := addr
	dataOffset := uint64(0)
	for dataOffset < uint64(len(data)) {
		base, offset := splitAddress(currAddr)
		page := m.createOrGetPage(base)

		lenLeftInData := uint64(len(data)) - dataOffset
		lenLeftInPage := PageSize - offset
		lenToWrite := min(lenLeftInData, lenLeftInPage)

		for i := uint64(0); i < lenToWrite; i++ {
			value := data[dataOffset+i]
			page.Mark(offset+i, value)
			m.invokeRecordHook(currAddr+i, value)
		}

		dataOffset += lenToWrite
		currAddr += lenToWrite
	}

	return nil
}

func (m *Manager) createOrGetPage(base uint64) *Page {
	page, found := m.pages[base]
	if found {
		return page
	}

	page = NewPage()
	m.pages[base] = page

	if m.NumHooks() > 0 {
		m.InvokeHook(hooking.HookCtx{
			Domain: m,
			Pos:    HookPosPageAlloc,
			Item:   PageAlloc{Base: base},
		})
	}

	return page
}

func (m *Manager) invokeRecordHook(addr uint64, value byte) {
	if m.NumHooks() == 0 {
		return
	}

	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    HookPosRecord,
		Item:   Patch{Address: addr, Value: value},
	})
}

// IsMarked tells if the byte at addr has been recorded.
func (m *Manager) IsMarked(addr uint64) bool {
	base, offset := splitAddress(addr)

	page, found := m.pages[base]
	if !found {
		return false
	}

	return page.IsMarked(offset)
}

// Value returns the byte recorded at addr. The bool is false if nothing was
// recorded there.
func (m *Manager) Value(addr uint64) (byte, bool) {
	base, offset := splitAddress(addr)

	page, found := m.pages[base]
	if !found {
		return 0, false
	}

	return page.Value(offset)
}

// IsMarkedInRange tells if any byte in the inclusive range [begin, end] has
// been recorded. It returns ErrInvalidRange if begin is after end.
func (m *Manager) IsMarkedInRange(begin, end uint64) (bool, error) {
	if begin > end {
		return false, invalidRange(begin, end)
	}

	firstBase, relBegin := splitAddress(begin)
	lastBase, relEnd := splitAddress(end)

	if firstBase == lastBase {
		page, found := m.pages[firstBase]
		if !found {
			return false, nil
		}

		if relBegin == relEnd {
			return page.IsMarked(relBegin), nil
		}

		return page.IsMarkedInRange(relBegin, relEnd), nil
	}

	s := span{
		firstBase: firstBase,
		lastBase:  lastBase,
		relBegin:  relBegin,
		relEnd:    relEnd,
	}

	if m.rangeScanMode == RangeScanReference {
		return m.scanReference(s), nil
	}

	return m.scanFull(s), nil
}

// span is a range query that covers more than one page.
type span struct {
	firstBase, lastBase uint64
	relBegin, relEnd    uint64
}

func (s span) contains(base uint64) bool {
	return base >= s.firstBase && base <= s.lastBase
}

func (s span) numPages() uint64 {
	return (s.lastBase-s.firstBase)>>log2PageSize + 1
}

// window returns the in-page offsets of the span that fall into the page at
// base.
func (s span) window(base uint64) (from, to uint64) {
	from, to = 0, PageSize-1

	if base == s.firstBase {
		from = s.relBegin
	}

	if base == s.lastBase {
		to = s.relEnd
	}

	return from, to
}

func (m *Manager) scanFull(s span) bool {
	if s.numPages() > uint64(len(m.pages)) {
		return m.scanAllocatedPages(s)
	}

	for base := s.firstBase; ; base += PageSize {
		if page, found := m.pages[base]; found {
			from, to := s.window(base)
			if page.IsMarkedInRange(from, to) {
				return true
			}
		}

		if base == s.lastBase {
			return false
		}
	}
}

func (m *Manager) scanAllocatedPages(s span) bool {
	for base, page := range m.pages {
		if !s.contains(base) {
			continue
		}

		from, to := s.window(base)
		if page.IsMarkedInRange(from, to) {
			return true
		}
	}

	return false
}

func (m *Manager) scanReference(s span) bool {
	onFirstPage := true

	for base := s.firstBase; ; base += PageSize {
		page, found := m.pages[base]
		if !found {
			return false
		}

		if onFirstPage {
			onFirstPage = false

			if page.IsMarkedInRange(s.relBegin, PageSize-1) {
				return true
			}
		}

		if base == s.lastBase {
			return page.IsMarkedInRange(0, s.relEnd)
		}
	}
}

// NumPages returns the number of allocated pages.
func (m *Manager) NumPages() int {
	return len(m.pages)
}

// Page returns the page whose base address is base.
func (m *Manager) Page(base uint64) (*Page, bool) {
	page, found := m.pages[base]
	return page, found
}

// PageBases returns the base addresses of all allocated pages in ascending
// order.
func (m *Manager) PageBases() []uint64 {
	bases := make([]uint64, 0, len(m.pages))
	for base := range m.pages {
		bases = append(bases, base)
	}

	slices.Sort(bases)

	return bases
}

// MarkedAddresses yields every recorded address in ascending order. Each
// call walks the page table again, so the sequence can be restarted.
func (m *Manager) MarkedAddresses() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		for _, base := range m.PageBases() {
			for offset := range m.pages[base].Offsets() {
				if !yield(base + offset) {
					return
				}
			}
		}
	}
}

// DumpPages writes the number of pages followed by a hex dump of every page.
func (m *Manager) DumpPages(w io.Writer) error {
	_, err := fmt.Fprintf(w, "--> There are %d shadow pages.\n", len(m.pages))
	if err != nil {
		return err
	}

	for _, base := range m.PageBases() {
		page := m.pages[base]

		_, err = fmt.Fprintf(w, "base=%#x, marked=%d\n", base, page.NumMarked())
		if err != nil {
			return err
		}

		err = page.Dump(w)
		if err != nil {
			return err
		}
	}

	return nil
}
