package safety

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresConfirmationStore persists pending confirmations.
//
// Schema:
//
//	CREATE TABLE safety_confirmations (
//	    message_id   TEXT PRIMARY KEY,
//	    tenant_id    TEXT NOT NULL,
//	    recipient_id TEXT NOT NULL,
//	    phone        TEXT NOT NULL,
//	    template_id  TEXT NOT NULL,
//	    sent_at      TIMESTAMPTZ NOT NULL,
//	    confirmed_at TIMESTAMPTZ,
//	    last_level   INT NOT NULL DEFAULT 0
//	);
//	CREATE INDEX safety_confirmations_scan_idx
//	    ON safety_confirmations (sent_at) WHERE confirmed_at IS NULL;
type PostgresConfirmationStore struct {
	db *sql.DB
}

func NewPostgresConfirmationStore(db *sql.DB) *PostgresConfirmationStore {
	return &PostgresConfirmationStore{db: db}
}

func (s *PostgresConfirmationStore) Expect(ctx context.Context, c Confirmation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO safety_confirmations (message_id, tenant_id, recipient_id, phone, template_id, sent_at, last_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_id) DO NOTHING
	`, c.MessageID, c.TenantID, c.RecipientID, c.Phone, c.TemplateID, c.SentAt, int(c.LastLevel))
	if err != nil {
		return fmt.Errorf("expect confirmation: %w", err)
	}
	return nil
}

func (s *PostgresConfirmationStore) Unconfirmed(ctx context.Context, since time.Time) ([]Confirmation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, tenant_id, recipient_id, phone, template_id, sent_at, confirmed_at, last_level
		FROM safety_confirmations
		WHERE confirmed_at IS NULL AND sent_at >= $1
		ORDER BY sent_at ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list unconfirmed: %w", err)
	}
	defer rows.Close()

	var out []Confirmation
	for rows.Next() {
		var c Confirmation
		var confirmedAt sql.NullTime
		var level int
		if err := rows.Scan(&c.MessageID, &c.TenantID, &c.RecipientID, &c.Phone, &c.TemplateID, &c.SentAt, &confirmedAt, &level); err != nil {
			return nil, fmt.Errorf("scan confirmation: %w", err)
		}
		if confirmedAt.Valid {
			c.ConfirmedAt = &confirmedAt.Time
		}
		c.LastLevel = Level(level)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unconfirmed rows: %w", err)
	}
	return out, nil
}

func (s *PostgresConfirmationStore) MarkConfirmed(ctx context.Context, messageID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE safety_confirmations SET confirmed_at = $2
		WHERE message_id = $1 AND confirmed_at IS NULL
	`, messageID, at)
	if err != nil {
		return fmt.Errorf("mark confirmed: %w", err)
	}
	return nil
}

func (s *PostgresConfirmationStore) SetLevel(ctx context.Context, messageID string, level Level) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE safety_confirmations SET last_level = $2
		WHERE message_id = $1 AND last_level < $2
	`, messageID, int(level))
	if err != nil {
		return fmt.Errorf("set escalation level: %w", err)
	}
	return nil
}
