// Package progress provides an ordered, non-blocking progress sink: callers
// report fractions (and optional preview payloads) without waiting, and a
// single consumer delivers them to the downstream handler in FIFO order.
package progress
