// Package shadow tracks which bytes of a sparse 64-bit address space have
// been patched and with what value.
//
// The address space is split into PageSize windows. A Manager maps the base
// address of each window to a Page, creating the page on the first write into
// the window. A Page stores the patched bytes together with a dirty bitmap,
// one bit per byte, so a stored zero can be told apart from a byte that was
// never written.
//
//	m := shadow.NewManager()
//	m.Record(0x1123, 0xa1)
//	m.IsMarked(0x1123)                       // true
//	found, err := m.IsMarkedInRange(0x1000, 0x1fff) // true, nil
//
// Range queries short-circuit on the first dirty bit and skip empty bitmap
// words whole, so a miss over a long empty range is cheap.
package shadow
