package progress

import (
	"sync"
	"testing"
	"time"
)

// TestReportOrdering tests that reports reach the handler in submission order.
func TestReportOrdering(t *testing.T) {
	t.Parallel()

	var got []float64
	s := NewSink(func(r Report) { got = append(got, r.Fraction) })

	const n = 200
	for i := 0; i < n; i++ {
		s.Report(float64(i)/n, nil)
	}
	s.Close()

	if len(got) != n {
		t.Fatalf("handler saw %d reports, want %d", len(got), n)
	}
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Fatalf("reports out of order at %d: %v then %v", i, got[i-1], got[i])
		}
	}
}

// TestReportNeverBlocks tests that a slow handler does not stall producers.
func TestReportNeverBlocks(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	s := NewSink(func(Report) { <-release })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Report(0.5, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Report blocked on a busy handler")
	}

	close(release)
	s.Close()
}

// TestHandlerSequential tests that the handler is never invoked concurrently
// even with many producers.
func TestHandlerSequential(t *testing.T) {
	t.Parallel()

	var active, maxActive, total int
	var mu sync.Mutex
	s := NewSink(func(Report) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(time.Microsecond)

		mu.Lock()
		active--
		total++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	const producers, perProducer = 8, 50
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				s.Report(0.1, nil)
			}
		}()
	}
	wg.Wait()
	s.Close()

	if maxActive != 1 {
		t.Errorf("handler ran with concurrency %d, want 1", maxActive)
	}
	if total != producers*perProducer {
		t.Errorf("handler saw %d reports, want %d", total, producers*perProducer)
	}
}

// TestCloseFlushes tests that everything reported before Close is delivered.
func TestCloseFlushes(t *testing.T) {
	t.Parallel()

	var previews [][]byte
	s := NewSink(func(r Report) { previews = append(previews, r.Preview) })

	s.Report(0.5, []byte("thumb-a"))
	s.Report(1.0, []byte("thumb-b"))
	s.Close()

	if len(previews) != 2 {
		t.Fatalf("handler saw %d reports, want 2", len(previews))
	}
	if string(previews[0]) != "thumb-a" || string(previews[1]) != "thumb-b" {
		t.Errorf("previews = %q", previews)
	}

	// Reports after Close are dropped, not delivered or panicking.
	s.Report(0.9, nil)
	if len(previews) != 2 {
		t.Error("report after Close was delivered")
	}
}
