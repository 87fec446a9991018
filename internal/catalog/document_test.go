package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoadMissingCreatesNew tests that a missing document file yields a fresh
// dirty library.
func TestLoadMissingCreatesNew(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.xml")
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%q) failed: %v", path, err)
	}

	if doc.LibraryID == "" {
		t.Error("new document has no library id")
	}
	if doc.Len() != 0 {
		t.Errorf("new document Len() = %d, want 0", doc.Len())
	}
	if !doc.Dirty() {
		t.Error("new document should be dirty so the first flush creates the file")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Load should not create the file; Flush does")
	}
}

// TestFlushRoundTrip tests that a populated document survives flush and
// reload with entries, flags and file metadata intact.
func TestFlushRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.xml")
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	tree := NewTree(doc, nil)

	video, err := tree.Resolve(`C:\Media\Movies\movie.mkv`)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	photo, err := tree.Resolve(`\\nas\photos\img.jpg`)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	created := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	video.Size = 1 << 30
	video.DateCreated = created
	video.DateModified = created.Add(time.Hour)
	video.Duration = 125.5
	video.Width = 1920
	video.Height = 1080
	video.Flags = video.Flags.With(FlagFavorite)

	photo.Size = 2048
	photo.DateTaken = time.Date(2019, 7, 14, 12, 0, 0, 0, time.UTC)
	photo.Flags = photo.Flags.With(FlagDeleted)
	doc.MarkDirty()

	if err := doc.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if doc.Dirty() {
		t.Error("document still dirty after flush")
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.LibraryID != doc.LibraryID {
		t.Errorf("library id changed across reload: %q != %q", reloaded.LibraryID, doc.LibraryID)
	}
	if reloaded.Len() != doc.Len() {
		t.Errorf("reloaded Len() = %d, want %d", reloaded.Len(), doc.Len())
	}

	rt := NewTree(reloaded, nil)
	gotVideo, err := rt.Lookup(`C:\Media\Movies\movie.mkv`)
	if err != nil {
		t.Fatalf("Lookup after reload failed: %v", err)
	}
	if gotVideo.ID != video.ID {
		t.Errorf("video id changed across reload: %q != %q", gotVideo.ID, video.ID)
	}
	if gotVideo.Size != video.Size || gotVideo.Width != 1920 || gotVideo.Height != 1080 {
		t.Errorf("video metadata lost: %+v", gotVideo)
	}
	if gotVideo.Duration != 125.5 {
		t.Errorf("video duration = %v, want 125.5", gotVideo.Duration)
	}
	if !gotVideo.DateCreated.Equal(created) {
		t.Errorf("video DateCreated = %v, want %v", gotVideo.DateCreated, created)
	}
	if !gotVideo.Favorite() {
		t.Error("video favorite flag lost")
	}
	if gotVideo.ContentType != "video/x-matroska" {
		t.Errorf("video content type = %q", gotVideo.ContentType)
	}

	gotPhoto, err := rt.Lookup(`\\nas\photos\img.jpg`)
	if err != nil {
		t.Fatalf("Lookup after reload failed: %v", err)
	}
	if !gotPhoto.Deleted() {
		t.Error("photo tombstone flag lost")
	}
	if !gotPhoto.DateTaken.Equal(photo.DateTaken) {
		t.Errorf("photo DateTaken = %v, want %v", gotPhoto.DateTaken, photo.DateTaken)
	}
}

// TestFlushCleanNoop tests that flushing a clean document does nothing.
func TestFlushCleanNoop(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.xml")
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := doc.Flush(); err != nil {
		t.Fatalf("first Flush failed: %v", err)
	}

	before, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if err := doc.Flush(); err != nil {
		t.Fatalf("clean Flush failed: %v", err)
	}
	after, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if !before.ModTime().Equal(after.ModTime()) {
		t.Error("clean flush rewrote the document")
	}
}

// TestFullPathRoundTrip tests that FullPath of a resolved entry resolves back
// to the same entry.
func TestFullPathRoundTrip(t *testing.T) {
	t.Parallel()

	paths := []string{
		`C:\Media\Movies\movie.mkv`,
		`C:\Media\Photos\2019\img.jpg`,
		`C:\Media\Photos\`,
		`\\nas\music\song.mp3`,
		`C:\`,
	}

	doc, err := Load(filepath.Join(t.TempDir(), "catalog.xml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	tree := NewTree(doc, nil)

	for _, path := range paths {
		e, err := tree.Resolve(path)
		if err != nil {
			t.Fatalf("Resolve(%q) failed: %v", path, err)
		}

		full := doc.FullPath(e.Handle())
		again, err := tree.Resolve(full)
		if err != nil {
			t.Fatalf("Resolve(FullPath=%q) failed: %v", full, err)
		}
		if again.Handle() != e.Handle() {
			t.Errorf("round trip of %q via %q landed on a different entry", path, full)
		}
	}

	// Round-tripping creates nothing new.
	before := doc.Len()
	for _, path := range paths {
		if _, err := tree.Resolve(path); err != nil {
			t.Fatalf("Resolve(%q) failed: %v", path, err)
		}
	}
	if doc.Len() != before {
		t.Errorf("re-resolving existing paths grew the document: %d -> %d", before, doc.Len())
	}
}

// TestLoadRejectsUnknownTag tests that a document with an unrecognized
// element tag fails to load.
func TestLoadRejectsUnknownTag(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.xml")
	raw := `<?xml version="1.0" encoding="UTF-8"?>
<catalog id="x" version="1"><bogus name="huh"></bogus></catalog>`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load accepted a document with an unknown element tag")
	}
}
