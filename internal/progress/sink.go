package progress

import (
	"sync"

	"media-catalog/internal/logging"
)

// Report is one progress notification: a fraction in [0,1] and an optional
// preview payload (e.g. the thumbnail just generated) for a UI collaborator.
type Report struct {
	Fraction float64
	Preview  []byte
}

// Handler consumes ordered progress reports.
type Handler func(Report)

// Sink decouples progress producers from a downstream handler while
// preserving call order. Report never blocks the caller; a single consumer
// goroutine drains the buffer and invokes the handler strictly one report at
// a time, in FIFO order, even when many generation runs report through one
// shared sink.
type Sink struct {
	handler Handler

	mu      sync.Mutex
	buf     []Report
	wake    chan struct{}
	closing chan struct{}
	done    chan struct{}
}

// NewSink starts a sink draining into handler. Call Close to drain and stop.
func NewSink(handler Handler) *Sink {
	s := &Sink{
		handler: handler,
		wake:    make(chan struct{}, 1),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.drain()
	return s
}

// Report queues a notification and returns immediately. Reports made after
// Close are dropped.
func (s *Sink) Report(fraction float64, preview []byte) {
	select {
	case <-s.closing:
		logging.Debug("Progress report after close dropped (fraction=%.2f)", fraction)
		return
	default:
	}

	s.mu.Lock()
	s.buf = append(s.buf, Report{Fraction: fraction, Preview: preview})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// drain is the single consumer: it takes the buffered reports in order and
// invokes the handler for one report at a time.
func (s *Sink) drain() {
	defer close(s.done)
	for {
		s.mu.Lock()
		batch := s.buf
		s.buf = nil
		s.mu.Unlock()

		for _, r := range batch {
			s.handler(r)
		}

		select {
		case <-s.wake:
		case <-s.closing:
			// Flush anything reported before Close.
			s.mu.Lock()
			rest := s.buf
			s.buf = nil
			s.mu.Unlock()
			for _, r := range rest {
				s.handler(r)
			}
			return
		}
	}
}

// Close stops accepting reports, flushes what was already reported, and
// waits for the handler to finish.
func (s *Sink) Close() {
	close(s.closing)
	<-s.done
}
