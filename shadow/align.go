package shadow

// AlignDown rounds v down to a multiple of align. The alignment must be a
// power of two.
func AlignDown(v, align uint64) uint64 {
	return v &^ (align - 1)
}

// AlignUp rounds v up to the next multiple of align, leaving v unchanged if
// it is already aligned. The alignment must be a power of two.
func AlignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// PageBase returns the base address of the page that contains addr.
func PageBase(addr uint64) uint64 {
	return AlignDown(addr, PageSize)
}

func splitAddress(addr uint64) (base, offset uint64) {
	base = PageBase(addr)
	offset = addr - base

	return base, offset
}
