package consent

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore persists consent records. Grant-time deactivation plus the
// partial unique index keeps at most one active record per pair even under
// concurrent grants.
//
// Schema:
//
//	CREATE TABLE consent_records (
//	    id              BIGSERIAL PRIMARY KEY,
//	    parent_id       TEXT NOT NULL,
//	    consent_type    TEXT NOT NULL,
//	    consent_version TEXT NOT NULL,
//	    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
//	    consented_at    TIMESTAMPTZ NOT NULL,
//	    revoked_at      TIMESTAMPTZ
//	);
//	CREATE UNIQUE INDEX consent_one_active_idx
//	    ON consent_records (parent_id, consent_type) WHERE is_active;
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, record ConsentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consent_records (parent_id, consent_type, consent_version, is_active, consented_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.ParentID, string(record.ConsentType), record.ConsentVersion, record.IsActive, record.ConsentedAt, record.RevokedAt)
	if err != nil {
		return fmt.Errorf("save consent record: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeactivateActive(ctx context.Context, parentID string, consentType ConsentType, revokedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE consent_records
		SET is_active = FALSE, revoked_at = $3
		WHERE parent_id = $1 AND consent_type = $2 AND is_active
	`, parentID, string(consentType), revokedAt)
	if err != nil {
		return fmt.Errorf("deactivate consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, parentID string, consentType ConsentType) (*ConsentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT parent_id, consent_type, consent_version, is_active, consented_at, revoked_at
		FROM consent_records
		WHERE parent_id = $1 AND consent_type = $2 AND is_active
		ORDER BY consented_at DESC
		LIMIT 1
	`, parentID, string(consentType))
	record, err := scanConsent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find active consent: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByParent(ctx context.Context, parentID string) ([]ConsentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT parent_id, consent_type, consent_version, is_active, consented_at, revoked_at
		FROM consent_records
		WHERE parent_id = $1
		ORDER BY consented_at ASC
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list consent records: %w", err)
	}
	defer rows.Close()

	var records []ConsentRecord
	for rows.Next() {
		record, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list consent rows: %w", err)
	}
	return records, nil
}

type consentRow interface {
	Scan(dest ...any) error
}

func scanConsent(row consentRow) (*ConsentRecord, error) {
	var record ConsentRecord
	var consentType string
	var revokedAt sql.NullTime
	if err := row.Scan(&record.ParentID, &consentType, &record.ConsentVersion, &record.IsActive, &record.ConsentedAt, &revokedAt); err != nil {
		return nil, err
	}
	record.ConsentType = ConsentType(consentType)
	if revokedAt.Valid {
		record.RevokedAt = &revokedAt.Time
	}
	return &record, nil
}
