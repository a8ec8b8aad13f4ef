package admin

import (
	"testing"

	"github.com/contrived-com/arecibo/internal/collector"
)

func TestSessionStoreTouchAndSnapshot(t *testing.T) {
	s := NewSessionStore()
	s.Touch("checkout", "prod", "inst-1", map[string]interface{}{"eventsSentTotal": 5}, false)
	s.Touch("checkout", "prod", "inst-2", nil, true)

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(snap))
	}

	var found bool
	for _, sess := range snap {
		if sess.InstanceID == "inst-2" && sess.GoDark {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected inst-2 to be recorded as go-dark")
	}
}

func TestDirectiveQueuePushAndPopDrains(t *testing.T) {
	q := NewDirectiveQueue()
	q.Push("checkout", "prod", "inst-1", collector.Directive{Type: "GO_DARK"})
	q.Push("checkout", "prod", "inst-1", collector.Directive{Type: "RESUME"})

	got := q.Pop("checkout", "prod", "inst-1")
	if len(got) != 2 {
		t.Fatalf("expected 2 queued directives, got %d", len(got))
	}

	if got := q.Pop("checkout", "prod", "inst-1"); len(got) != 0 {
		t.Fatalf("expected queue drained after Pop, got %d", len(got))
	}
}

func TestDirectiveQueueIsolatesInstances(t *testing.T) {
	q := NewDirectiveQueue()
	q.Push("checkout", "prod", "inst-1", collector.Directive{Type: "GO_DARK"})

	if got := q.Pop("checkout", "prod", "inst-2"); len(got) != 0 {
		t.Fatalf("expected no directives for a different instance, got %d", len(got))
	}
}
