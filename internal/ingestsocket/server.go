// Package ingestsocket implements the Agent's local ingest endpoint: a Unix
// domain datagram socket that accepts one JSON object per datagram and
// normalizes it into the ingest queue.
package ingestsocket

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/contrived-com/arecibo/internal/events"
	"github.com/contrived-com/arecibo/internal/ingestqueue"
)

// Server listens on a Unix datagram socket and pushes decoded events onto a
// Queue. One datagram is expected to contain exactly one JSON object;
// malformed or non-object datagrams are silently discarded, matching local
// (trusted, same-host) ingest semantics where there is no caller to report
// errors back to.
type Server struct {
	SocketPath  string
	BufferBytes int
	Queue       *ingestqueue.Queue
	Logger      *log.Logger

	mu      sync.Mutex
	conn    *net.UnixConn
	stopped chan struct{}
	done    chan struct{}
}

// New constructs a Server. bufferBytes is floored at 1024 to keep truncation
// of legitimate payloads unlikely.
func New(socketPath string, bufferBytes int, queue *ingestqueue.Queue, logger *log.Logger) *Server {
	if bufferBytes < 1024 {
		bufferBytes = 1024
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		SocketPath:  socketPath,
		BufferBytes: bufferBytes,
		Queue:       queue,
		Logger:      logger,
	}
}

// Start binds the socket, removing any stale file left behind by a previous
// process, and begins serving on a background goroutine. Start is not
// reentrant; calling it twice on the same Server is an error.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return fmt.Errorf("ingestsocket: server already started")
	}

	if dir := filepath.Dir(s.SocketPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ingestsocket: create socket dir: %w", err)
		}
	}

	if err := os.Remove(s.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ingestsocket: remove stale socket: %w", err)
	}

	addr, err := net.ResolveUnixAddr("unixgram", s.SocketPath)
	if err != nil {
		return fmt.Errorf("ingestsocket: resolve socket addr: %w", err)
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return fmt.Errorf("ingestsocket: bind socket: %w", err)
	}
	if err := os.Chmod(s.SocketPath, 0o666); err != nil {
		conn.Close()
		return fmt.Errorf("ingestsocket: chmod socket: %w", err)
	}

	s.conn = conn
	s.stopped = make(chan struct{})
	s.done = make(chan struct{})

	go s.run()
	return nil
}

// Stop closes the socket and waits up to one second for the receive loop to
// exit.
func (s *Server) Stop() {
	s.mu.Lock()
	conn := s.conn
	stopped := s.stopped
	done := s.done
	s.mu.Unlock()

	if conn == nil {
		return
	}
	close(stopped)
	conn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

func (s *Server) run() {
	defer close(s.done)
	buf := make([]byte, s.BufferBytes)
	for {
		select {
		case <-s.stopped:
			return
		default:
		}

		n, _, err := s.conn.ReadFromUnix(buf)
		if err != nil {
			select {
			case <-s.stopped:
				return
			default:
				s.Logger.Printf("ingestsocket: read error: %v", err)
				return
			}
		}

		var raw map[string]interface{}
		if err := json.Unmarshal(buf[:n], &raw); err != nil {
			continue
		}
		ev := events.FromDatagram(raw)
		s.Queue.Push(ev)
	}
}
