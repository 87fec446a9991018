// Package catalog implements the media catalog: a tree of drive, server,
// folder and file entries backed by a single hierarchical XML document.
//
// The document owns an arena of entries addressed by handles; parent and
// child links are arena indices, so the tree carries no pointer cycles and
// full paths are always recomputed from the ancestor chain rather than
// stored. The document is loaded once at startup, mutated in memory by a
// single writer, and flushed to disk only when dirty.
//
// A file entry's lifecycle: created on first observation, probed (metadata
// filled by the derivation pipeline), thumbnailed, then on each re-scan
// either unchanged, modified (thumbnails cleared and regenerated) or
// tombstoned (Deleted flag set, node retained for restoration detection).
package catalog
