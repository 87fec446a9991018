package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
)

// ThumbnailInvalidator is the slice of the thumbnail store the tree needs
// when a file's content changes: clearing stale blobs and checking whether
// any exist.
type ThumbnailInvalidator interface {
	DeleteAll(ctx context.Context, id string) (int64, error)
	Count(ctx context.Context, id string) (int, error)
}

// Tree is the typed mutation/query view over a catalog document. The
// document's single-writer assumption carries over: callers serialize
// mutations externally.
type Tree struct {
	doc    *Document
	thumbs ThumbnailInvalidator

	// onChanged is invoked after Update detects a content change, so the
	// scanning collaborator can requeue derivation work for the entry.
	onChanged func(*Entry)
}

// NewTree creates a tree view over doc. thumbs may be nil when no thumbnail
// store is attached (flag-only catalogs, tests).
func NewTree(doc *Document, thumbs ThumbnailInvalidator) *Tree {
	return &Tree{doc: doc, thumbs: thumbs}
}

// Document returns the backing document.
func (t *Tree) Document() *Document {
	return t.doc
}

// SetOnChanged registers the callback invoked when Update detects that a
// file's content changed and derived assets must be rebuilt.
func (t *Tree) SetOnChanged(fn func(*Entry)) {
	t.onChanged = fn
}

// Resolve walks path segment by segment, classifying each segment by its
// lexical shape and creating any missing entries, and returns the entry for
// the final segment. Parents are always resolved before children, so the
// resulting chain mirrors the filesystem hierarchy exactly.
//
// Fails with ErrUnsupportedPathSegment if any segment matches no recognized
// shape.
func (t *Tree) Resolve(path string) (*Entry, error) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	parent := t.doc.Root()
	var entry *Entry
	for i, seg := range segments {
		leaf := i == len(segments)-1
		kind, err := ClassifySegment(seg, leaf)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", path, err)
		}
		entry, err = t.GetOrCreate(kind, segmentName(seg), parent)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", path, err)
		}
		parent = entry.handle
	}
	return entry, nil
}

// Lookup is Resolve without creation: it returns ErrNotFound when any
// segment has no catalog entry yet.
func (t *Tree) Lookup(path string) (*Entry, error) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	parent := t.doc.Root()
	var entry *Entry
	for i, seg := range segments {
		leaf := i == len(segments)-1
		kind, err := ClassifySegment(seg, leaf)
		if err != nil {
			return nil, fmt.Errorf("looking up %q: %w", path, err)
		}
		entry = t.doc.findChild(parent, kind, segmentName(seg))
		if entry == nil {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
		}
		parent = entry.handle
	}
	return entry, nil
}

// GetOrCreate returns the same-kind, same-name child of parent, creating it
// with its required attributes if absent. Name comparison is
// case-insensitive. A freshly created entry is re-read and verified; a
// mismatch fails with ErrStorageIntegrity.
func (t *Tree) GetOrCreate(kind EntryKind, name string, parent Handle) (*Entry, error) {
	if err := t.checkNesting(kind, parent); err != nil {
		return nil, err
	}

	if existing := t.doc.findChild(parent, kind, name); existing != nil {
		return existing, nil
	}

	e := &Entry{Kind: kind, Name: name}
	if kind.IsFile() {
		e.ID = uuid.NewString()
		e.ContentType = mediatypes.MimeForExtension(strings.ToLower(filepath.Ext(name)))
	}
	h := t.doc.append(parent, e)
	t.doc.MarkDirty()

	got := t.doc.findChild(parent, kind, name)
	if got == nil || got.handle != h || got.Name != name || got.Kind != kind || got.ID != e.ID {
		return nil, fmt.Errorf("%w: created %s %q under %d but re-read returned %+v",
			ErrStorageIntegrity, kind, name, parent, got)
	}

	logging.Debug("Created catalog entry %s %q (id=%s)", kind, name, e.ID)
	return e, nil
}

// checkNesting enforces the structural rules of the hierarchy: roots live
// directly under the document root, everything else under a container.
func (t *Tree) checkNesting(kind EntryKind, parent Handle) error {
	p := t.doc.Entry(parent)
	if p == nil {
		return fmt.Errorf("%w: invalid parent handle %d", ErrStorageIntegrity, parent)
	}
	if kind.IsRoot() {
		if parent != t.doc.Root() {
			return fmt.Errorf("%w: %s must be a tree root", ErrUnsupportedPathSegment, kind)
		}
		return nil
	}
	if parent == t.doc.Root() || !p.Kind.IsContainer() {
		return fmt.Errorf("%w: %s cannot contain %s", ErrUnsupportedPathSegment, p.Kind, kind)
	}
	return nil
}

// BindRoot attaches a drive or server root identified by (name, serial).
// When an existing root carries the same serial under a different name the
// entry is renamed in place, so catalogs survive drive-letter reassignment
// without duplicating the subtree.
func (t *Tree) BindRoot(kind EntryKind, name, serial string) (*Entry, error) {
	if !kind.IsRoot() {
		return nil, fmt.Errorf("%w: %s is not a root kind", ErrUnsupportedPathSegment, kind)
	}

	if serial != "" {
		for _, h := range t.doc.Entry(t.doc.Root()).children {
			e := t.doc.Entry(h)
			if e.Kind == kind && e.Serial == serial {
				if !strings.EqualFold(e.Name, name) {
					logging.Info("Root %q reassigned to %q (serial %s)", e.Name, name, serial)
					e.Name = name
					t.doc.MarkDirty()
				}
				return e, nil
			}
		}
	}

	e, err := t.GetOrCreate(kind, name, t.doc.Root())
	if err != nil {
		return nil, err
	}
	if serial != "" && e.Serial != serial {
		e.Serial = serial
		t.doc.MarkDirty()
	}
	return e, nil
}

// Stat carries the physical state of a file as observed by the scanning
// collaborator.
type Stat struct {
	Exists   bool
	Size     int64
	Created  time.Time
	Modified time.Time
}

// UpdateResult reports what Update did to the entry.
type UpdateResult struct {
	// Changed means content metadata diverged: thumbnails were cleared and
	// regeneration was triggered.
	Changed bool
	// Tombstoned means the physical file vanished and the entry was marked
	// deleted but retained.
	Tombstoned bool
	// Restored means a tombstoned entry's file reappeared.
	Restored bool
}

// Update reconciles a file entry with the observed physical state.
//
// A missing file tombstones the entry (Deleted flag set, node retained) so
// flag queries and later "file came back" detection keep working. A file
// that reappears with identical size and dates just drops the tombstone,
// keeping existing thumbnails. Any metadata divergence clears the thumbnail
// row and triggers regeneration via the onChanged callback.
func (t *Tree) Update(ctx context.Context, e *Entry, st Stat) (UpdateResult, error) {
	var res UpdateResult
	if e == nil || !e.Kind.IsFile() {
		return res, fmt.Errorf("update: not a file entry")
	}

	if !st.Exists {
		if !e.Deleted() {
			e.Flags = e.Flags.With(FlagDeleted)
			t.doc.MarkDirty()
			res.Tombstoned = true
			logging.Debug("Tombstoned %q (id=%s)", e.Name, e.ID)
		}
		return res, nil
	}

	changed := e.Size != st.Size ||
		!e.DateCreated.Equal(st.Created) ||
		!e.DateModified.Equal(st.Modified)

	if e.Deleted() {
		e.Flags = e.Flags.Without(FlagDeleted)
		t.doc.MarkDirty()
		res.Restored = true

		if !changed && t.thumbs != nil {
			n, err := t.thumbs.Count(ctx, e.ID)
			if err != nil {
				logging.Warn("Thumbnail count for %s failed: %v", e.ID, err)
			}
			// Identical file with thumbnails intact: nothing to redo.
			if n > 0 {
				return res, nil
			}
			changed = true
		}
	}

	if !changed {
		return res, nil
	}

	e.Size = st.Size
	e.DateCreated = st.Created
	e.DateModified = st.Modified
	t.doc.MarkDirty()
	res.Changed = true

	if t.thumbs != nil {
		if _, err := t.thumbs.DeleteAll(ctx, e.ID); err != nil {
			logging.Warn("Clearing thumbnails for %s failed: %v", e.ID, err)
		}
	}
	if t.onChanged != nil {
		t.onChanged(e)
	}
	return res, nil
}

// ListOptions filters a listing.
type ListOptions struct {
	// Query is an optional case-insensitive substring match on Name.
	Query string
	// Mask selects which flag bits to compare; Want supplies the expected
	// values for those bits.
	Mask Flags
	Want Flags
	// Recursive lists all descendants instead of direct children.
	Recursive bool
}

// List returns the children (or, recursively, all descendants) of root that
// pass the flag predicate and query. Containers with zero matching
// descendant files are suppressed.
func (t *Tree) List(root Handle, opts ListOptions) []*Entry {
	parent := t.doc.Entry(root)
	if parent == nil {
		return nil
	}

	var out []*Entry
	for _, h := range parent.children {
		t.collect(h, opts, &out)
	}
	return out
}

func (t *Tree) collect(h Handle, opts ListOptions, out *[]*Entry) {
	e := t.doc.Entry(h)
	if e.Kind.IsFile() {
		if t.matches(e, opts) {
			*out = append(*out, e)
		}
		return
	}

	if !t.hasMatchingFile(h, opts) {
		return
	}
	if t.matchesFlags(e, opts) {
		*out = append(*out, e)
	}
	if opts.Recursive {
		for _, ch := range e.children {
			t.collect(ch, opts, out)
		}
	}
}

func (t *Tree) matchesFlags(e *Entry, opts ListOptions) bool {
	return e.Flags.Matches(opts.Mask, opts.Want)
}

func (t *Tree) matches(e *Entry, opts ListOptions) bool {
	if !t.matchesFlags(e, opts) {
		return false
	}
	if opts.Query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Name), strings.ToLower(opts.Query))
}

// hasMatchingFile reports whether any descendant file of h passes the
// filter. Containers empty of matching media are suppressed from listings.
func (t *Tree) hasMatchingFile(h Handle, opts ListOptions) bool {
	e := t.doc.Entry(h)
	for _, ch := range e.children {
		c := t.doc.Entry(ch)
		if c.Kind.IsFile() {
			if t.matches(c, opts) {
				return true
			}
			continue
		}
		if t.hasMatchingFile(ch, opts) {
			return true
		}
	}
	return false
}

// Stats summarizes the catalog contents.
type Stats struct {
	Drives    int
	Servers   int
	Folders   int
	Videos    int
	Photos    int
	Audio     int
	Favorites int
	Deleted   int
}

// Stats walks the arena and counts entries per kind and flag.
func (t *Tree) Stats() Stats {
	var s Stats
	for _, e := range t.doc.nodes[1:] {
		switch e.Kind {
		case KindDrive:
			s.Drives++
		case KindServer:
			s.Servers++
		case KindFolder:
			s.Folders++
		case KindVideo:
			s.Videos++
		case KindPhoto:
			s.Photos++
		case KindAudio:
			s.Audio++
		}
		if e.Favorite() {
			s.Favorites++
		}
		if e.Deleted() {
			s.Deleted++
		}
	}
	return s
}
