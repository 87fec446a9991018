package catalog

import (
	"fmt"
	"strings"
)

// Catalog paths use the backslash syntax of the cataloged volumes themselves,
// independent of the OS the catalog runs on:
//
//	C:\Photos\2019\img.jpg
//	\\nas\media\movie.mkv
//	C:\Photos\            (explicit folder path)
//
// splitPath breaks a path into segments. The server prefix "\\host" stays one
// segment; a trailing separator is preserved on the last segment so the
// classifier can tell an explicit folder leaf from a file leaf.
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrUnsupportedPathSegment)
	}

	trailingSep := strings.HasSuffix(path, `\`)

	var head string
	rest := path
	if strings.HasPrefix(path, `\\`) {
		cut := strings.IndexByte(path[2:], '\\')
		if cut < 0 {
			head, rest = path, ""
		} else {
			head, rest = path[:cut+2], path[cut+3:]
		}
	}

	segments := make([]string, 0, 8)
	if head != "" {
		segments = append(segments, head)
	}
	for _, seg := range strings.Split(rest, `\`) {
		if seg == "" {
			continue
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: %q has no segments", ErrUnsupportedPathSegment, path)
	}

	if trailingSep {
		last := len(segments) - 1
		if !strings.HasPrefix(segments[last], `\\`) && !isDriveSegment(segments[last]) {
			segments[last] += `\`
		}
	}

	return segments, nil
}

// segmentName strips the folder-marker separator from a segment.
func segmentName(seg string) string {
	return strings.TrimSuffix(seg, `\`)
}

// joinSegment appends one entry's path contribution. Separators are
// kind-specific: drives render as "C:\", servers as "\\nas\", folders as
// "name\" and files as their bare name.
func joinSegment(b *strings.Builder, kind EntryKind, name string) {
	b.WriteString(name)
	if kind.IsContainer() {
		b.WriteByte('\\')
	}
}
