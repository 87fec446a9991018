package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// fakeThumbs records invalidation calls and serves canned slot counts.
type fakeThumbs struct {
	counts  map[string]int
	deleted []string
}

func (f *fakeThumbs) DeleteAll(_ context.Context, id string) (int64, error) {
	f.deleted = append(f.deleted, id)
	delete(f.counts, id)
	return 1, nil
}

func (f *fakeThumbs) Count(_ context.Context, id string) (int, error) {
	return f.counts[id], nil
}

func newTestTree(t *testing.T, thumbs ThumbnailInvalidator) *Tree {
	t.Helper()
	doc, err := Load(filepath.Join(t.TempDir(), "catalog.xml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return NewTree(doc, thumbs)
}

// TestGetOrCreateIdempotent tests that resolving the same child twice, with
// different name casing, returns one entry.
func TestGetOrCreateIdempotent(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t, nil)
	drive, err := tree.GetOrCreate(KindDrive, "C:", tree.Document().Root())
	if err != nil {
		t.Fatalf("GetOrCreate drive failed: %v", err)
	}

	a, err := tree.GetOrCreate(KindFolder, "Photos", drive.Handle())
	if err != nil {
		t.Fatalf("GetOrCreate folder failed: %v", err)
	}
	b, err := tree.GetOrCreate(KindFolder, "PHOTOS", drive.Handle())
	if err != nil {
		t.Fatalf("GetOrCreate folder (case variant) failed: %v", err)
	}
	if a.Handle() != b.Handle() {
		t.Error("case-variant lookup created a duplicate folder")
	}

	// Same name, different kind is a distinct entry.
	file, err := tree.GetOrCreate(KindPhoto, "Photos.jpg", drive.Handle())
	if err != nil {
		t.Fatalf("GetOrCreate photo failed: %v", err)
	}
	if file.ID == "" {
		t.Error("file entry created without an id")
	}
	if file.ContentType != "image/jpeg" {
		t.Errorf("file content type = %q, want image/jpeg", file.ContentType)
	}
}

// TestNestingRules tests the structural constraints of the hierarchy.
func TestNestingRules(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t, nil)
	root := tree.Document().Root()
	drive, err := tree.GetOrCreate(KindDrive, "C:", root)
	if err != nil {
		t.Fatalf("GetOrCreate drive failed: %v", err)
	}
	video, err := tree.GetOrCreate(KindVideo, "movie.mkv", drive.Handle())
	if err != nil {
		t.Fatalf("GetOrCreate video failed: %v", err)
	}

	tests := []struct {
		name   string
		kind   EntryKind
		parent Handle
	}{
		{name: "drive below another drive", kind: KindDrive, parent: drive.Handle()},
		{name: "server below a drive", kind: KindServer, parent: drive.Handle()},
		{name: "folder at document root", kind: KindFolder, parent: root},
		{name: "file at document root", kind: KindPhoto, parent: root},
		{name: "folder below a file", kind: KindFolder, parent: video.Handle()},
		{name: "file below a file", kind: KindPhoto, parent: video.Handle()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tree.GetOrCreate(tt.kind, "x", tt.parent); !errors.Is(err, ErrUnsupportedPathSegment) {
				t.Errorf("GetOrCreate(%v under %d) err = %v, want ErrUnsupportedPathSegment",
					tt.kind, tt.parent, err)
			}
		})
	}
}

// TestLookupMissing tests that Lookup never creates entries.
func TestLookupMissing(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t, nil)
	if _, err := tree.Lookup(`C:\nothing\here.jpg`); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup err = %v, want ErrNotFound", err)
	}
	if tree.Document().Len() != 0 {
		t.Errorf("Lookup created %d entries", tree.Document().Len())
	}
}

// TestBindRootSerialRename tests drive-letter reassignment: a root with a
// known serial under a new name is renamed in place.
func TestBindRootSerialRename(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t, nil)

	e, err := tree.BindRoot(KindDrive, "E:", "VOL-1234")
	if err != nil {
		t.Fatalf("BindRoot failed: %v", err)
	}
	if e.Serial != "VOL-1234" {
		t.Errorf("serial = %q, want VOL-1234", e.Serial)
	}

	child, err := tree.GetOrCreate(KindVideo, "movie.mkv", e.Handle())
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	// Same volume shows up under a different letter.
	renamed, err := tree.BindRoot(KindDrive, "F:", "VOL-1234")
	if err != nil {
		t.Fatalf("BindRoot after reassignment failed: %v", err)
	}
	if renamed.Handle() != e.Handle() {
		t.Error("reassignment created a second root instead of renaming")
	}
	if renamed.Name != "F:" {
		t.Errorf("root name = %q, want F:", renamed.Name)
	}
	if got := tree.Document().FullPath(child.Handle()); got != `F:\movie.mkv` {
		t.Errorf("child path after rename = %q, want F:\\movie.mkv", got)
	}

	// A different serial under the same letter is a new root.
	other, err := tree.BindRoot(KindDrive, "F:", "VOL-9999")
	if err != nil {
		t.Fatalf("BindRoot with new serial failed: %v", err)
	}
	if other.Handle() == renamed.Handle() {
		t.Error("distinct serial bound to the existing root")
	}
}

// TestUpdateTombstoneRestore tests the vanish / reappear lifecycle.
func TestUpdateTombstoneRestore(t *testing.T) {
	t.Parallel()

	thumbs := &fakeThumbs{counts: make(map[string]int)}
	tree := newTestTree(t, thumbs)

	var requeued []string
	tree.SetOnChanged(func(e *Entry) { requeued = append(requeued, e.ID) })

	e, err := tree.Resolve(`C:\Media\movie.mkv`)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	stamp := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	st := Stat{Exists: true, Size: 4096, Created: stamp, Modified: stamp}

	ctx := context.Background()

	// Initial observation populates metadata and triggers derivation.
	res, err := tree.Update(ctx, e, st)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !res.Changed || res.Tombstoned || res.Restored {
		t.Errorf("initial update result = %+v, want Changed only", res)
	}
	if len(requeued) != 1 {
		t.Fatalf("onChanged fired %d times, want 1", len(requeued))
	}
	thumbs.counts[e.ID] = 3
	thumbs.deleted = nil

	// File vanishes: tombstone, entry retained.
	res, err = tree.Update(ctx, e, Stat{Exists: false})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !res.Tombstoned || !e.Deleted() {
		t.Errorf("vanish result = %+v, Deleted = %v", res, e.Deleted())
	}
	if e.Size != 4096 {
		t.Error("tombstoning wiped metadata")
	}

	// A second missing observation is a no-op.
	res, err = tree.Update(ctx, e, Stat{Exists: false})
	if err != nil || res.Tombstoned {
		t.Errorf("repeated vanish result = %+v, err = %v", res, err)
	}

	// File reappears unchanged with thumbnails intact: flag flip only.
	res, err = tree.Update(ctx, e, st)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !res.Restored || res.Changed || e.Deleted() {
		t.Errorf("restore result = %+v, Deleted = %v", res, e.Deleted())
	}
	if len(thumbs.deleted) != 0 {
		t.Error("identical restore cleared thumbnails")
	}
	if len(requeued) != 1 {
		t.Error("identical restore requeued derivation")
	}

	// Content change: thumbnails cleared, regeneration queued.
	changed := st
	changed.Size = 8192
	res, err = tree.Update(ctx, e, changed)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !res.Changed {
		t.Errorf("content change result = %+v", res)
	}
	if len(thumbs.deleted) != 1 || thumbs.deleted[0] != e.ID {
		t.Errorf("thumbnails not cleared: %v", thumbs.deleted)
	}
	if len(requeued) != 2 {
		t.Errorf("onChanged fired %d times, want 2", len(requeued))
	}
	if e.Size != 8192 {
		t.Errorf("size not updated: %d", e.Size)
	}
}

// TestUpdateRestoreWithoutThumbs tests that a restored file with no stored
// thumbnails still triggers regeneration.
func TestUpdateRestoreWithoutThumbs(t *testing.T) {
	t.Parallel()

	thumbs := &fakeThumbs{counts: make(map[string]int)}
	tree := newTestTree(t, thumbs)

	e, err := tree.Resolve(`C:\Media\img.jpg`)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	stamp := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	st := Stat{Exists: true, Size: 100, Created: stamp, Modified: stamp}

	ctx := context.Background()
	if _, err := tree.Update(ctx, e, st); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := tree.Update(ctx, e, Stat{Exists: false}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	res, err := tree.Update(ctx, e, st)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !res.Restored || !res.Changed {
		t.Errorf("restore without thumbnails result = %+v, want Restored and Changed", res)
	}
}

// TestListSuppression tests flag filtering and empty-container suppression.
func TestListSuppression(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t, nil)
	for _, path := range []string{
		`C:\Media\Movies\alpha.mkv`,
		`C:\Media\Movies\beta.mkv`,
		`C:\Media\Empty\`,
		`C:\Media\Photos\sunset.jpg`,
	} {
		if _, err := tree.Resolve(path); err != nil {
			t.Fatalf("Resolve(%q) failed: %v", path, err)
		}
	}

	beta, err := tree.Lookup(`C:\Media\Movies\beta.mkv`)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	beta.Flags = beta.Flags.With(FlagDeleted)

	sunset, err := tree.Lookup(`C:\Media\Photos\sunset.jpg`)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	sunset.Flags = sunset.Flags.With(FlagFavorite)

	media, err := tree.Lookup(`C:\Media\`)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	names := func(entries []*Entry) []string {
		out := make([]string, len(entries))
		for i, e := range entries {
			out[i] = e.Name
		}
		return out
	}

	// Direct children with live files; the empty folder is suppressed.
	got := tree.List(media.Handle(), ListOptions{Mask: FlagDeleted})
	if want := []string{"Movies", "Photos"}; !equalStrings(names(got), want) {
		t.Errorf("List children = %v, want %v", names(got), want)
	}

	// Recursive live files.
	got = tree.List(media.Handle(), ListOptions{Mask: FlagDeleted, Recursive: true})
	if want := []string{"Movies", "alpha.mkv", "Photos", "sunset.jpg"}; !equalStrings(names(got), want) {
		t.Errorf("recursive list = %v, want %v", names(got), want)
	}

	// Tombstones only. Containers carry no deleted flag, so they fail the
	// predicate themselves and only the file appears.
	got = tree.List(media.Handle(), ListOptions{Mask: FlagDeleted, Want: FlagDeleted, Recursive: true})
	if want := []string{"beta.mkv"}; !equalStrings(names(got), want) {
		t.Errorf("tombstone list = %v, want %v", names(got), want)
	}

	// Favorites only.
	got = tree.List(media.Handle(), ListOptions{Mask: FlagFavorite, Want: FlagFavorite, Recursive: true})
	if len(got) != 1 || got[0].Name != "sunset.jpg" {
		t.Errorf("favorite list = %v", names(got))
	}

	// Substring query is case-insensitive.
	got = tree.List(media.Handle(), ListOptions{Query: "ALPHA", Recursive: true})
	if len(got) != 2 || got[1].Name != "alpha.mkv" {
		t.Errorf("query list = %v", names(got))
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestStats tests per-kind and per-flag counting.
func TestStats(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t, nil)
	for _, path := range []string{
		`C:\Media\a.mkv`,
		`C:\Media\b.jpg`,
		`C:\Media\c.jpg`,
		`C:\Media\d.mp3`,
		`\\nas\share\e.mkv`,
	} {
		if _, err := tree.Resolve(path); err != nil {
			t.Fatalf("Resolve(%q) failed: %v", path, err)
		}
	}
	e, err := tree.Lookup(`C:\Media\b.jpg`)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	e.Flags = e.Flags.With(FlagFavorite)

	s := tree.Stats()
	want := Stats{Drives: 1, Servers: 1, Folders: 2, Videos: 2, Photos: 2, Audio: 1, Favorites: 1}
	if s != want {
		t.Errorf("Stats() = %+v, want %+v", s, want)
	}
}
