package shadow

import (
	"iter"
	"slices"
	"sync"
)

// A Tracker answers whether bytes of a 64-bit address space have been
// patched.
type Tracker interface {
	// Record stores value at addr.
	Record(addr uint64, value byte)

	// RecordBytes stores a contiguous patch starting at addr.
	RecordBytes(addr uint64, data []byte) error

	// IsMarked tells if the byte at addr has been recorded.
	IsMarked(addr uint64) bool

	// IsMarkedInRange tells if any byte in [begin, end] has been recorded.
	IsMarkedInRange(begin, end uint64) (bool, error)

	// Value returns the byte recorded at addr.
	Value(addr uint64) (byte, bool)

	// MarkedAddresses yields every recorded address in ascending order.
	MarkedAddresses() iter.Seq[uint64]

	// NumPages returns the number of allocated pages.
	NumPages() int
}

var (
	_ Tracker = (*Manager)(nil)
	_ Tracker = (*Locked)(nil)
)

// Locked guards a Manager with a single reader/writer lock. Writers hold the
// write lock for the whole create-if-absent step, so two goroutines writing
// into the same absent page always end up sharing one page.
type Locked struct {
	mu      sync.RWMutex
	manager *Manager
}

// NewLocked wraps m. The caller must not use m directly afterwards.
func NewLocked(m *Manager) *Locked {
	return &Locked{manager: m}
}

// Record stores value at addr.
func (l *Locked) Record(addr uint64, value byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.manager.Record(addr, value)
}

// RecordBytes stores a contiguous patch starting at addr.
func (l *Locked) RecordBytes(addr uint64, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.manager.RecordBytes(addr, data)
}

// IsMarked tells if the byte at addr has been recorded.
func (l *Locked) IsMarked(addr uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.manager.IsMarked(addr)
}

// IsMarkedInRange tells if any byte in [begin, end] has been recorded.
func (l *Locked) IsMarkedInRange(begin, end uint64) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.manager.IsMarkedInRange(begin, end)
}

// Value returns the byte recorded at addr.
func (l *Locked) Value(addr uint64) (byte, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.manager.Value(addr)
}

// MarkedAddresses yields a snapshot of the recorded addresses taken under the
// read lock when iteration starts.
func (l *Locked) MarkedAddresses() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		l.mu.RLock()
		addrs := slices.Collect(l.manager.MarkedAddresses())
		l.mu.RUnlock()

		for _, addr := range addrs {
			if !yield(addr) {
				return
			}
		}
	}
}

// NumPages returns the number of allocated pages.
func (l *Locked) NumPages() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.manager.NumPages()
}

// View runs f with shared access to the wrapped Manager. f must not modify
// the Manager.
func (l *Locked) View(f func(m *Manager)) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	f(l.manager)
}
