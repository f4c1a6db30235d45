package ledger

import "context"

// Store is the narrow interface the rest of the system sees. Both
// implementations guarantee that Replay returns entries in sequence order
// and FactsByEntity returns facts in occurrence (append) order.
type Store interface {
	Append(ctx context.Context, fact OutcomeFact) (LedgerEntry, error)
	Replay(ctx context.Context, fromSeq int64) ([]LedgerEntry, error)
	FactsByEntity(ctx context.Context, entityID string) ([]OutcomeFact, error)
}
