package transcription

import (
	"testing"
	"time"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()

	for i := int64(1); i <= 5; i++ {
		q.Enqueue(i)
	}

	for want := int64(1); want <= 5; want++ {
		select {
		case got := <-q.Jobs():
			if got != want {
				t.Fatalf("expected %d, got %d", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for job %d", want)
		}
	}
}

func TestMemoryQueueEnqueueNeverBlocks(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()

	// No consumer; a bounded channel would stall here.
	done := make(chan struct{})
	go func() {
		for i := int64(0); i < 10000; i++ {
			q.Enqueue(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked without a consumer")
	}
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue()
	q.Enqueue(1)
	q.Close()

	// Enqueue after close is a no-op, not a panic.
	q.Enqueue(2)

	select {
	case _, ok := <-q.Jobs():
		if ok {
			// Draining the last buffered job before close is fine.
			return
		}
	case <-time.After(time.Second):
		t.Fatal("jobs channel must close")
	}
}
