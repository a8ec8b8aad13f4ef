package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Repository provides common database operations.
type Repository struct {
	conn *Connection
}

// NewRepository creates a new repository instance.
func NewRepository(conn *Connection) *Repository {
	return &Repository{conn: conn}
}

func (r *Repository) Connection() *Connection { return r.conn }

// WithTransaction executes fn within a database transaction.
func (r *Repository) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	return r.WithTransactionOptions(ctx, nil, fn)
}

func (r *Repository) WithTransactionOptions(ctx context.Context, opts *sql.TxOptions, fn func(*sql.Tx) error) error {
	tx, err := r.conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %v, rollback failed: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RetryableOperation executes an operation with exponential backoff retry.
func (r *Repository) RetryableOperation(ctx context.Context, maxRetries int, operation func() error) error {
	var lastErr error
	backoff := time.Millisecond * 100

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				if backoff > time.Second*10 {
					backoff = time.Second * 10
				}
			}
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !IsRetryableError(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
}

// HealthCheck performs a basic health check on the database.
func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.conn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var result int
	if err := r.conn.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query test failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("database query returned unexpected result: %d", result)
	}
	return nil
}

func (r *Repository) GetConnectionStats() sql.DBStats { return r.conn.Stats() }

// AuditRepository records one row per accepted Collector write
// (announce/heartbeat/events:batch). Append-only: there is no update or
// delete path, and no retention/cleanup job runs against this table.
type AuditRepository struct {
	*Repository
}

// NewAuditRepository creates a new audit_log repository.
func NewAuditRepository(conn *Connection) *AuditRepository {
	return &AuditRepository{Repository: NewRepository(conn)}
}

// Insert appends one audit row. payload is marshaled to JSON as-is; any
// marshal failure is the caller's bug (payload is always a decoded
// validated Collector request body), so it returns an error rather than
// silently truncating the record.
func (r *AuditRepository) Insert(ctx context.Context, kind, requestID string, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO audit_log (kind, request_id, payload, recorded_at)
		VALUES ($1, $2, $3, $4)`

	_, err = r.conn.ExecContext(ctx, query, kind, requestID, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}
