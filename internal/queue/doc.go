// Package queue provides the deduplicating FIFO work queue that serializes
// background scan and thumbnail generation tasks.
package queue
