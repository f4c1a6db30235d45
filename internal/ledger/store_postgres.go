package ledger

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists ledger entries in PostgreSQL. The outcome_facts
// table uses a BIGSERIAL sequence column, so append order and sequence order
// coincide. This store is pure I/O; folding lives in the replay engine.
//
// Schema:
//
//	CREATE TABLE outcome_facts (
//	    sequence     BIGSERIAL PRIMARY KEY,
//	    entity_id    TEXT NOT NULL,
//	    entity_type  TEXT NOT NULL,
//	    outcome_type TEXT NOT NULL,
//	    tier         TEXT NOT NULL,
//	    weight       DOUBLE PRECISION NOT NULL,
//	    occurred_at  TIMESTAMPTZ NOT NULL,
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE INDEX outcome_facts_entity_idx ON outcome_facts (entity_id, sequence);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, fact OutcomeFact) (LedgerEntry, error) {
	query := `
		INSERT INTO outcome_facts (entity_id, entity_type, outcome_type, tier, weight, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING sequence, created_at
	`
	entry := LedgerEntry{Fact: fact}
	err := s.db.QueryRowContext(ctx, query,
		fact.EntityID, fact.EntityType, fact.OutcomeType, string(fact.Tier), fact.Weight, fact.OccurredAt,
	).Scan(&entry.Sequence, &entry.CreatedAt)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("append outcome fact: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) Replay(ctx context.Context, fromSeq int64) ([]LedgerEntry, error) {
	if fromSeq < 1 {
		fromSeq = 1
	}
	query := `
		SELECT sequence, entity_id, entity_type, outcome_type, tier, weight, occurred_at, created_at
		FROM outcome_facts
		WHERE sequence >= $1
		ORDER BY sequence ASC
	`
	rows, err := s.db.QueryContext(ctx, query, fromSeq)
	if err != nil {
		return nil, fmt.Errorf("replay ledger: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var tier string
		if err := rows.Scan(&e.Sequence, &e.Fact.EntityID, &e.Fact.EntityType, &e.Fact.OutcomeType,
			&tier, &e.Fact.Weight, &e.Fact.OccurredAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Fact.Tier = Tier(tier)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("replay ledger rows: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) FactsByEntity(ctx context.Context, entityID string) ([]OutcomeFact, error) {
	query := `
		SELECT entity_id, entity_type, outcome_type, tier, weight, occurred_at
		FROM outcome_facts
		WHERE entity_id = $1
		ORDER BY sequence ASC
	`
	rows, err := s.db.QueryContext(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("facts by entity: %w", err)
	}
	defer rows.Close()

	var facts []OutcomeFact
	for rows.Next() {
		var f OutcomeFact
		var tier string
		if err := rows.Scan(&f.EntityID, &f.EntityType, &f.OutcomeType, &tier, &f.Weight, &f.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan outcome fact: %w", err)
		}
		f.Tier = Tier(tier)
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("facts by entity rows: %w", err)
	}
	return facts, nil
}
