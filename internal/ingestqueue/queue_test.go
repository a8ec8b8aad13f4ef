package ingestqueue

import (
	"sync"
	"testing"

	"github.com/contrived-com/arecibo/internal/events"
)

func mkEvent(i int) events.Event {
	return events.Event{Ts: events.NowTs(), Type: "t", Severity: "info", Payload: map[string]interface{}{"i": i}}
}

func TestPushDropsOldestOnOverflow(t *testing.T) {
	counters := &Counters{}
	q := New(3, counters)

	for i := 0; i < 5; i++ {
		q.Push(mkEvent(i))
	}

	if q.Size() != 3 {
		t.Fatalf("expected size 3, got %d", q.Size())
	}

	batch := q.PopBatch(10)
	if len(batch) != 3 {
		t.Fatalf("expected 3 items, got %d", len(batch))
	}
	// Oldest two (0, 1) should have been dropped; remaining should start at 2.
	if batch[0].Payload["i"] != 2 {
		t.Fatalf("expected oldest surviving item to be i=2, got %v", batch[0].Payload["i"])
	}

	snap := counters.Snapshot()
	if snap.EventsReceivedTotal != 5 {
		t.Fatalf("expected 5 received, got %d", snap.EventsReceivedTotal)
	}
	if snap.DroppedByQueueSizeWindow != 2 {
		t.Fatalf("expected 2 queue-size drops, got %d", snap.DroppedByQueueSizeWindow)
	}
}

func TestSizeNeverExceedsCapacityUnderConcurrency(t *testing.T) {
	counters := &Counters{}
	q := New(10, counters)

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(mkEvent(p*1000 + i))
				if q.Size() > 10 {
					t.Errorf("size exceeded capacity: %d", q.Size())
				}
			}
		}(p)
	}
	wg.Wait()

	if q.Size() > 10 {
		t.Fatalf("final size %d exceeds capacity", q.Size())
	}
}

func TestPopBatchLimitsAndEmptiesGracefully(t *testing.T) {
	q := New(5, &Counters{})
	if batch := q.PopBatch(3); len(batch) != 0 {
		t.Fatalf("expected empty batch from empty queue, got %d", len(batch))
	}

	q.Push(mkEvent(1))
	q.Push(mkEvent(2))
	batch := q.PopBatch(1)
	if len(batch) != 1 {
		t.Fatalf("expected batch of 1, got %d", len(batch))
	}
	if q.Size() != 1 {
		t.Fatalf("expected 1 item remaining, got %d", q.Size())
	}
}

func TestConservationInvariant(t *testing.T) {
	counters := &Counters{}
	q := New(4, counters)

	for i := 0; i < 10; i++ {
		q.Push(mkEvent(i))
	}
	sent := q.PopBatch(2)
	counters.AddSent(int64(len(sent)))

	remaining := q.Size()
	snap := counters.Snapshot()
	if snap.EventsReceivedTotal != snap.EventsSentTotal+snap.EventsDroppedTotal+int64(remaining) {
		t.Fatalf("conservation invariant violated: received=%d sent=%d dropped=%d queued=%d",
			snap.EventsReceivedTotal, snap.EventsSentTotal, snap.EventsDroppedTotal, remaining)
	}
}
