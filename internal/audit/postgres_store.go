package audit

import (
	"context"
	"database/sql"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO account_audit_log (stream_id, event_type, account_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (stream_id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.StreamID, entry.EventType, entry.AccountID, []byte(entry.Payload), entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}
