package consent

import (
	"context"
	"time"
)

// Store persists consent records. DeactivateActive must clear every active
// record for the pair so Grant can enforce the no-overlap invariant.
type Store interface {
	Save(ctx context.Context, record ConsentRecord) error
	DeactivateActive(ctx context.Context, parentID string, consentType ConsentType, revokedAt time.Time) error
	FindActive(ctx context.Context, parentID string, consentType ConsentType) (*ConsentRecord, error)
	ListByParent(ctx context.Context, parentID string) ([]ConsentRecord, error)
}
