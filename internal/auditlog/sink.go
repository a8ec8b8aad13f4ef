package auditlog

import (
	"context"
	"log"
	"time"
)

// Sink adapts AuditRepository to the Collector's fire-and-forget
// AuditSink interface: Record never blocks the HTTP response path and
// never surfaces a write failure to the caller, only to the log.
type Sink struct {
	repo    *AuditRepository
	logger  *log.Logger
	timeout time.Duration
}

// NewSink constructs a Sink. timeout bounds each individual insert.
func NewSink(repo *AuditRepository, logger *log.Logger, timeout time.Duration) *Sink {
	if logger == nil {
		logger = log.New(log.Writer(), "[auditlog] ", log.LstdFlags)
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Sink{repo: repo, logger: logger, timeout: timeout}
}

// Record persists one audit row synchronously but never returns an error;
// failures are logged only, matching the audit log's strictly additive
// role relative to the Agent-visible contract.
func (s *Sink) Record(kind, requestID string, payload map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.repo.Insert(ctx, kind, requestID, payload); err != nil {
		s.logger.Printf("failed to record %s audit row requestId=%s: %v", kind, requestID, err)
	}
}
