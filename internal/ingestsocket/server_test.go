package ingestsocket

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/contrived-com/arecibo/internal/ingestqueue"
)

func dial(t *testing.T, path string) *net.UnixConn {
	t.Helper()
	raddr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		t.Fatalf("resolve addr: %v", err)
	}
	conn, err := net.DialUnix("unixgram", nil, raddr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitForSize(t *testing.T, q *ingestqueue.Queue, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if q.Size() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for queue size %d, got %d", want, q.Size())
}

func TestServerIngestsValidDatagram(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "ingest.sock")

	q := ingestqueue.New(10, &ingestqueue.Counters{})
	srv := New(sockPath, 4096, q, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Stop()

	conn := dial(t, sockPath)
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"type":"custom.type","payload":{"k":"v"}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitForSize(t, q, 1)
	batch := q.PopBatch(1)
	if batch[0].Type != "custom.type" {
		t.Fatalf("unexpected type: %s", batch[0].Type)
	}
}

func TestServerDiscardsMalformedDatagrams(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "ingest.sock")

	q := ingestqueue.New(10, &ingestqueue.Counters{})
	srv := New(sockPath, 4096, q, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Stop()

	conn := dial(t, sockPath)
	defer conn.Close()

	conn.Write([]byte(`not json`))
	conn.Write([]byte(`["array", "not object"]`))
	conn.Write([]byte(`{"type":"good"}`))

	waitForSize(t, q, 1)
	if q.Size() != 1 {
		t.Fatalf("expected only the well-formed object to be ingested, got size %d", q.Size())
	}
}

func TestStartRemovesStaleSocketFile(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "ingest.sock")

	if err := os.WriteFile(sockPath, []byte("stale"), 0o644); err != nil {
		t.Fatalf("seed stale file: %v", err)
	}

	q := ingestqueue.New(10, &ingestqueue.Counters{})
	srv := New(sockPath, 4096, q, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("start should clean up stale socket file: %v", err)
	}
	defer srv.Stop()
}

func TestStopReturnsAfterStart(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "ingest.sock")

	q := ingestqueue.New(10, &ingestqueue.Counters{})
	srv := New(sockPath, 4096, q, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	srv.Stop()
}
