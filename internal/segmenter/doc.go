// Package segmenter serves HLS-style playback without pre-segmenting:
// playlists are synthesized from duration metadata and each transport
// segment is encoded on demand, per request, with nothing cached.
package segmenter
