package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
)

// ConsentGate answers whether a gated notification category may be sent to a
// parent. Absence of consent is a soft skip, not an error.
type ConsentGate interface {
	Permit(ctx context.Context, parentID, consentType string) (bool, error)
}

// EnqueueRequest carries everything needed to create one outbox row.
type EnqueueRequest struct {
	TenantID       string
	RecipientType  string
	RecipientID    string
	Phone          string
	TemplateID     string
	Variables      map[string]string
	Priority       Priority
	IdempotencyKey string

	// RequiresConfirmation marks safety-critical sends the escalation chain
	// must watch until the recipient confirms.
	RequiresConfirmation bool

	// ConsentType, when set, gates this message on an active consent record
	// for the recipient (e.g. marketing reports).
	ConsentType string
}

// Service owns enqueueing. Delivery is the worker's job.
type Service struct {
	store   Store
	gate    ConsentGate
	logger  *slog.Logger
	metrics *Metrics
}

type ServiceOption func(*Service)

func WithConsentGate(gate ConsentGate) ServiceOption {
	return func(s *Service) { s.gate = gate }
}

func WithServiceMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeConfig, "outbox store is required")
	}
	svc := &Service{store: store, logger: logger}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Enqueue creates a pending outbox row and returns its id. A duplicate
// idempotency key resolves to the existing message id without inserting a
// second row. A gated message without active consent returns an empty id and
// no error: the skip is logged and counted, never raised.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if req.Phone == "" || req.TemplateID == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "phone and template_id are required")
	}

	if req.ConsentType != "" && s.gate != nil {
		permitted, err := s.gate.Permit(ctx, req.RecipientID, req.ConsentType)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "consent check failed")
		}
		if !permitted {
			s.logger.InfoContext(ctx, "message skipped: no active consent",
				"recipient_id", req.RecipientID,
				"consent_type", req.ConsentType,
				"template_id", req.TemplateID,
			)
			if s.metrics != nil {
				s.metrics.ConsentSkipped.Inc()
			}
			return "", nil
		}
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	msg := &Message{
		ID:                   uuid.NewString(),
		TenantID:             req.TenantID,
		RecipientType:        req.RecipientType,
		RecipientID:          req.RecipientID,
		Phone:                req.Phone,
		TemplateID:           req.TemplateID,
		Variables:            req.Variables,
		Priority:             req.Priority,
		IdempotencyKey:       key,
		RequiresConfirmation: req.RequiresConfirmation,
		Status:               StatusPending,
		CreatedAt:            time.Now().UTC(),
	}

	err := s.store.Insert(ctx, msg)
	if err == nil {
		if s.metrics != nil {
			s.metrics.Enqueued.Inc()
		}
		return msg.ID, nil
	}
	if !dErrors.Is(err, dErrors.CodeConflict) {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "enqueue failed")
	}

	existing, findErr := s.store.FindByIdempotencyKey(ctx, key)
	if findErr != nil {
		return "", dErrors.Wrap(findErr, dErrors.CodeInternal, "idempotency lookup failed")
	}
	if existing == nil {
		// Constraint fired but the row is gone; treat as internal.
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "enqueue conflict without existing row")
	}
	if s.metrics != nil {
		s.metrics.DuplicateKeys.Inc()
	}
	return existing.ID, nil
}
