// Package ledger defines the append-only, sequence-ordered store of outcome
// facts. Sequence order is the only ordering guarantee; entries are never
// rewritten.
package ledger

import "time"

// Tier classifies an outcome: S outcomes may trigger automation, A outcomes
// are record-only, TERMINAL outcomes freeze the entity.
type Tier string

const (
	TierS        Tier = "S"
	TierA        Tier = "A"
	TierTerminal Tier = "TERMINAL"
)

// OutcomeFact is an immutable domain event about a tracked relationship.
type OutcomeFact struct {
	EntityID    string    `json:"entity_id"`
	EntityType  string    `json:"entity_type"`
	OutcomeType string    `json:"outcome_type"`
	Tier        Tier      `json:"tier"`
	Weight      float64   `json:"weight"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// LedgerEntry is a fact as written: stamped with a monotonically increasing
// sequence number at append time.
type LedgerEntry struct {
	Fact      OutcomeFact `json:"fact"`
	Sequence  int64       `json:"sequence"`
	CreatedAt time.Time   `json:"created_at"`
}
