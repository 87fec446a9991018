package catalog

import "time"

// Handle is a stable index into the document's entry arena. Parent and child
// links are handles rather than pointers so the tree has no reference cycles
// and entries stay addressable across flushes.
type Handle int32

// InvalidHandle marks the absence of an entry.
const InvalidHandle Handle = -1

// Entry is one node in the media hierarchy. Container variants (drive,
// server, folder) use Name, Flags and Serial; file variants additionally
// carry identity, size, timestamps and probed metadata.
//
// Entries are owned by their Document. Mutations go through Document methods
// so the dirty flag tracks every change.
type Entry struct {
	handle   Handle
	parent   Handle
	children []Handle

	Kind  EntryKind
	Name  string
	Flags Flags

	// Serial is a stable hardware/volume identifier for drive and server
	// roots, so a catalog survives drive-letter reassignment.
	Serial string

	// File attributes. ID is generated once at creation and never changes;
	// it is the sole correlation key with the thumbnail store.
	ID           string
	Size         int64
	DateCreated  time.Time
	DateModified time.Time
	ContentType  string

	// Probed video metadata. Zero values are the "not probed / probe
	// failed" sentinel that blocks thumbnail generation.
	Duration float64
	Width    int
	Height   int

	// Probed photo metadata.
	DateTaken time.Time
}

// Handle returns the entry's arena handle.
func (e *Entry) Handle() Handle {
	return e.handle
}

// Parent returns the handle of the entry's parent, or InvalidHandle for the
// synthetic root.
func (e *Entry) Parent() Handle {
	return e.parent
}

// Children returns the handles of the entry's direct children.
func (e *Entry) Children() []Handle {
	return e.children
}

// Deleted reports whether the entry is a tombstone.
func (e *Entry) Deleted() bool {
	return e.Flags.Has(FlagDeleted)
}

// Favorite reports whether the entry is flagged as a favorite.
func (e *Entry) Favorite() bool {
	return e.Flags.Has(FlagFavorite)
}

// Probed reports whether file metadata extraction succeeded. Files with
// sentinel zero resolution are skipped by the derivation pipeline.
func (e *Entry) Probed() bool {
	return e.Width > 0 && e.Height > 0
}
