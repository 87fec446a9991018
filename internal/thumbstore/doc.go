// Package thumbstore persists generated thumbnails in an embedded SQLite
// database, one row per file id with lazily added blob columns per slot.
//
// The store is disposable by design: corrupt or missing blobs degrade to an
// empty read and are simply regenerated by the pipeline.
package thumbstore
