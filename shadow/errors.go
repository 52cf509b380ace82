package shadow

import "github.com/pkg/errors"

var (
	// ErrInvalidRange is returned when a range query has begin > end.
	ErrInvalidRange = errors.New("invalid address range")

	// ErrAddressOverflow is returned when a patch would run past the end of
	// the 64-bit address space.
	ErrAddressOverflow = errors.New("patch overflows the address space")
)

func invalidRange(begin, end uint64) error {
	return errors.Wrapf(ErrInvalidRange, "begin %#x is after end %#x", begin, end)
}
