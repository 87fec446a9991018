package catalog

import (
	"fmt"
	"strconv"
)

// Flags is a bitmask of entry states layered onto any catalog entry. It is
// persisted as a single hex-encoded integer attribute.
type Flags uint32

const (
	// FlagDeleted marks a tombstoned entry whose physical file vanished.
	FlagDeleted Flags = 1 << 0
	// FlagFavorite marks a user favorite.
	FlagFavorite Flags = 1 << 1
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// With returns f with the bits in mask set.
func (f Flags) With(mask Flags) Flags {
	return f | mask
}

// Without returns f with the bits in mask cleared.
func (f Flags) Without(mask Flags) Flags {
	return f &^ mask
}

// Matches implements the bulk query predicate: the bits selected by mask
// must equal the corresponding bits of want.
func (f Flags) Matches(mask, want Flags) bool {
	return f&mask == want&mask
}

// String returns the hex encoding used in the catalog document.
func (f Flags) String() string {
	return strconv.FormatUint(uint64(f), 16)
}

// ParseFlags decodes the hex encoding used in the catalog document.
// An empty string decodes to zero flags.
func ParseFlags(s string) (Flags, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid flags value %q: %w", s, err)
	}
	return Flags(v), nil
}
