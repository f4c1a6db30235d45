package outbox

import (
	"context"
	"time"
)

// StaleClaimAfter is how long a row may sit in sending before it is treated
// as orphaned by a crashed worker and becomes claimable again.
const StaleClaimAfter = 5 * time.Minute

// Store persists outbox rows. Insert must enforce idempotency-key uniqueness
// at the storage layer and report CodeConflict for duplicates, so callers
// never race a lookup-then-insert. ClaimBatch must be an atomic conditional
// transition (pending|failed -> sending) so concurrent workers cannot
// double-send the same message.
type Store interface {
	Insert(ctx context.Context, m *Message) error
	Get(ctx context.Context, id string) (*Message, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*Message, error)

	// ClaimBatch claims up to limit rows in status pending or failed whose
	// next_retry_at is null or due at now, ordered by priority descending
	// then created_at ascending. Claimed rows move to sending and are stamped
	// with now; rows stuck in sending longer than StaleClaimAfter are claimed
	// again so a crash between claim and mark cannot strand a message.
	ClaimBatch(ctx context.Context, now time.Time, limit int) ([]*Message, error)

	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, retryCount int, nextRetryAt time.Time, lastError string) error
	MarkDeadLetter(ctx context.Context, id string, retryCount int, lastError string) error
}
