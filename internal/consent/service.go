package consent

import (
	"context"
	"log/slog"
	"time"

	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
)

// Service owns the consent lifecycle. Grant and Revoke maintain the
// invariant that at most one record is active per (parent, consent type).
type Service struct {
	store  Store
	logger *slog.Logger

	now func() time.Time
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeConfig, "consent store is required")
	}
	svc := &Service{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Grant records a new consent decision. Any previously active record for the
// same pair is deactivated first, so re-granting under a new policy version
// supersedes rather than accumulates.
func (s *Service) Grant(ctx context.Context, parentID string, consentType ConsentType, version string) (*ConsentRecord, error) {
	if parentID == "" || consentType == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "parent_id and consent_type are required")
	}

	now := s.now().UTC()
	if err := s.store.DeactivateActive(ctx, parentID, consentType, now); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "deactivate prior consent failed")
	}

	record := ConsentRecord{
		ParentID:       parentID,
		ConsentType:    consentType,
		ConsentVersion: version,
		IsActive:       true,
		ConsentedAt:    now,
	}
	if err := s.store.Save(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "save consent failed")
	}

	s.logger.InfoContext(ctx, "consent granted",
		"parent_id", parentID,
		"consent_type", consentType,
		"consent_version", version,
	)
	return &record, nil
}

// Revoke deactivates the active record for the pair. Revoking when nothing
// is active is a no-op, not an error.
func (s *Service) Revoke(ctx context.Context, parentID string, consentType ConsentType) error {
	if parentID == "" || consentType == "" {
		return dErrors.New(dErrors.CodeBadRequest, "parent_id and consent_type are required")
	}
	if err := s.store.DeactivateActive(ctx, parentID, consentType, s.now().UTC()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "revoke consent failed")
	}
	s.logger.InfoContext(ctx, "consent revoked",
		"parent_id", parentID,
		"consent_type", consentType,
	)
	return nil
}

// Check returns the active record for the pair, or nil when none exists.
func (s *Service) Check(ctx context.Context, parentID string, consentType ConsentType) (*ConsentRecord, error) {
	record, err := s.store.FindActive(ctx, parentID, consentType)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "consent lookup failed")
	}
	return record, nil
}

// History returns every consent record for the parent, oldest first.
func (s *Service) History(ctx context.Context, parentID string) ([]ConsentRecord, error) {
	records, err := s.store.ListByParent(ctx, parentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "consent history failed")
	}
	return records, nil
}

// Permit implements the outbox consent gate: a gated message may go out only
// when an active record exists for the recipient and category.
func (s *Service) Permit(ctx context.Context, parentID, consentType string) (bool, error) {
	record, err := s.Check(ctx, parentID, ConsentType(consentType))
	if err != nil {
		return false, err
	}
	return record != nil, nil
}
