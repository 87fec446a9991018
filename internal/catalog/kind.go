package catalog

import (
	"fmt"
	"path/filepath"
	"strings"

	"media-catalog/internal/mediatypes"
)

// EntryKind is the closed set of catalog entry variants.
type EntryKind int

const (
	// KindNone is the zero value; no valid entry has it.
	KindNone EntryKind = iota
	// KindDrive is a local drive root ("C:").
	KindDrive
	// KindServer is a network share root ("\\nas").
	KindServer
	// KindFolder is a directory below a root.
	KindFolder
	// KindVideo is a video file.
	KindVideo
	// KindPhoto is a photo file.
	KindPhoto
	// KindAudio is an audio file. The catalog stores audio entries but the
	// pipeline derives no assets for them yet.
	KindAudio
)

// kindTags maps entry kinds to the element tags used in the catalog document.
var kindTags = map[EntryKind]string{
	KindDrive:  "drive",
	KindServer: "server",
	KindFolder: "folder",
	KindVideo:  "video",
	KindPhoto:  "photo",
	KindAudio:  "audio",
}

// Tag returns the document element tag for the kind.
func (k EntryKind) Tag() string {
	if tag, ok := kindTags[k]; ok {
		return tag
	}
	return "unknown"
}

func (k EntryKind) String() string {
	return k.Tag()
}

// IsFile reports whether the kind is a file variant.
func (k EntryKind) IsFile() bool {
	return k == KindVideo || k == KindPhoto || k == KindAudio
}

// IsRoot reports whether the kind is a tree root variant.
func (k EntryKind) IsRoot() bool {
	return k == KindDrive || k == KindServer
}

// IsContainer reports whether the kind can hold children.
func (k EntryKind) IsContainer() bool {
	return k.IsRoot() || k == KindFolder
}

// KindFromTag is the total classification function from a stored element tag.
// Unknown tags fail with ErrUnsupportedPathSegment.
func KindFromTag(tag string) (EntryKind, error) {
	for kind, t := range kindTags {
		if t == tag {
			return kind, nil
		}
	}
	return KindNone, fmt.Errorf("%w: unknown tag %q", ErrUnsupportedPathSegment, tag)
}

// ClassifySegment is the total classification function from path syntax.
// It infers an entry kind from the lexical shape of one path segment:
//
//	"C:"        drive root
//	"\\nas"     server root
//	"Photos\"   folder (explicit trailing separator)
//	"img.jpg"   file, kind per extension (leaf segments only)
//
// Non-leaf segments without a root shape are folders. A leaf segment whose
// extension is not a recognized media type fails with
// ErrUnsupportedPathSegment.
func ClassifySegment(seg string, leaf bool) (EntryKind, error) {
	if seg == "" {
		return KindNone, fmt.Errorf("%w: empty segment", ErrUnsupportedPathSegment)
	}

	if strings.HasPrefix(seg, `\\`) {
		if len(seg) == 2 || strings.Contains(seg[2:], `\`) {
			return KindNone, fmt.Errorf("%w: malformed server segment %q", ErrUnsupportedPathSegment, seg)
		}
		return KindServer, nil
	}

	if isDriveSegment(seg) {
		return KindDrive, nil
	}

	if strings.HasSuffix(seg, `\`) {
		return KindFolder, nil
	}

	if !leaf {
		return KindFolder, nil
	}

	ext := strings.ToLower(filepath.Ext(seg))
	switch mediatypes.KindForExtension(ext) {
	case mediatypes.KindVideo:
		return KindVideo, nil
	case mediatypes.KindPhoto:
		return KindPhoto, nil
	case mediatypes.KindAudio:
		return KindAudio, nil
	}
	return KindNone, fmt.Errorf("%w: unrecognized segment %q", ErrUnsupportedPathSegment, seg)
}

// isDriveSegment reports whether seg has the "X:" drive-letter shape.
func isDriveSegment(seg string) bool {
	if len(seg) != 2 || seg[1] != ':' {
		return false
	}
	c := seg[0]
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
