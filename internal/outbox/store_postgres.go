package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
)

// PostgresStore persists outbox rows in PostgreSQL. The unique constraint on
// idempotency_key makes duplicate enqueues a constraint violation rather
// than a racy lookup, and ClaimBatch uses FOR UPDATE SKIP LOCKED so multiple
// workers never claim the same row.
//
// Schema:
//
//	CREATE TABLE message_outbox (
//	    id              TEXT PRIMARY KEY,
//	    tenant_id       TEXT NOT NULL,
//	    recipient_type  TEXT NOT NULL,
//	    recipient_id    TEXT NOT NULL,
//	    phone           TEXT NOT NULL,
//	    template_id     TEXT NOT NULL,
//	    variables       JSONB NOT NULL DEFAULT '{}',
//	    priority        INT NOT NULL DEFAULT 1,
//	    idempotency_key TEXT NOT NULL UNIQUE,
//	    requires_confirmation BOOLEAN NOT NULL DEFAULT FALSE,
//	    status          TEXT NOT NULL DEFAULT 'pending',
//	    retry_count     INT NOT NULL DEFAULT 0,
//	    next_retry_at   TIMESTAMPTZ,
//	    claimed_at      TIMESTAMPTZ,
//	    sent_at         TIMESTAMPTZ,
//	    last_error      TEXT NOT NULL DEFAULT '',
//	    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE INDEX message_outbox_claim_idx
//	    ON message_outbox (status, priority DESC, created_at ASC);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, m *Message) error {
	vars, err := json.Marshal(m.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	query := `
		INSERT INTO message_outbox
			(id, tenant_id, recipient_type, recipient_id, phone, template_id, variables,
			 priority, idempotency_key, requires_confirmation, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $12)
	`
	_, err = s.db.ExecContext(ctx, query,
		m.ID, m.TenantID, m.RecipientType, m.RecipientID, m.Phone, m.TemplateID, vars,
		int(m.Priority), m.IdempotencyKey, m.RequiresConfirmation, string(m.Status), m.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return dErrors.New(dErrors.CodeConflict, "idempotency key already enqueued")
		}
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id)
	return scanMessage(row)
}

func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, key string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE idempotency_key = $1`, key)
	return scanMessage(row)
}

func (s *PostgresStore) ClaimBatch(ctx context.Context, now time.Time, limit int) ([]*Message, error) {
	query := `
		UPDATE message_outbox
		SET status = 'sending', claimed_at = $1
		WHERE id IN (
			SELECT id FROM message_outbox
			WHERE (status IN ('pending', 'failed')
			       AND (next_retry_at IS NULL OR next_retry_at <= $1))
			   OR (status = 'sending' AND claimed_at <= $2)
			ORDER BY priority DESC, created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, tenant_id, recipient_type, recipient_id, phone, template_id, variables,
		          priority, idempotency_key, requires_confirmation, status, retry_count, next_retry_at, claimed_at, sent_at, last_error, created_at
	`
	rows, err := s.db.QueryContext(ctx, query, now, now.Add(-StaleClaimAfter), limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	var claimed []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim outbox batch rows: %w", err)
	}
	return claimed, nil
}

func (s *PostgresStore) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE message_outbox SET status = 'sent', sent_at = $2, next_retry_at = NULL, claimed_at = NULL WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string, retryCount int, nextRetryAt time.Time, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE message_outbox SET status = 'failed', retry_count = $2, next_retry_at = $3, last_error = $4, claimed_at = NULL WHERE id = $1`,
		id, retryCount, nextRetryAt, lastError,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkDeadLetter(ctx context.Context, id string, retryCount int, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE message_outbox SET status = 'dead_letter', retry_count = $2, next_retry_at = NULL, claimed_at = NULL, last_error = $3 WHERE id = $1`,
		id, retryCount, lastError,
	)
	if err != nil {
		return fmt.Errorf("mark dead letter: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, tenant_id, recipient_type, recipient_id, phone, template_id, variables,
	       priority, idempotency_key, requires_confirmation, status, retry_count, next_retry_at, claimed_at, sent_at, last_error, created_at
	FROM message_outbox`

type messageRow interface {
	Scan(dest ...any) error
}

func scanMessage(row messageRow) (*Message, error) {
	var m Message
	var vars []byte
	var priority int
	var status string
	var nextRetryAt, claimedAt, sentAt sql.NullTime
	err := row.Scan(&m.ID, &m.TenantID, &m.RecipientType, &m.RecipientID, &m.Phone, &m.TemplateID, &vars,
		&priority, &m.IdempotencyKey, &m.RequiresConfirmation, &status, &m.RetryCount, &nextRetryAt, &claimedAt, &sentAt, &m.LastError, &m.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan outbox message: %w", err)
	}
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &m.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal variables: %w", err)
		}
	}
	m.Priority = Priority(priority)
	m.Status = Status(status)
	if nextRetryAt.Valid {
		m.NextRetryAt = &nextRetryAt.Time
	}
	if claimedAt.Valid {
		m.ClaimedAt = &claimedAt.Time
	}
	if sentAt.Valid {
		m.SentAt = &sentAt.Time
	}
	return &m, nil
}
