package inbound

import (
	"context"
	"log/slog"
	"time"

	"github.com/Ohseho81/autus-sub014/internal/consent"
	"github.com/Ohseho81/autus-sub014/internal/deliverylog"
	"github.com/Ohseho81/autus-sub014/internal/ledger"
	"github.com/Ohseho81/autus-sub014/internal/policy"
	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
)

// Confirmer resolves a pending safety confirmation. Satisfied by the
// escalation chain.
type Confirmer interface {
	Confirm(ctx context.Context, messageID string, at time.Time) error
}

// ConsentGranter records a consent decision. Satisfied by the consent service.
type ConsentGranter interface {
	Grant(ctx context.Context, parentID string, consentType consent.ConsentType, version string) (*consent.ConsentRecord, error)
}

// Result says what a callback turned into.
type Result struct {
	Duplicate bool
	Routed    bool
}

// Service deduplicates and routes gateway callbacks. Routing never partially
// applies: a duplicate is dropped before any side effect.
type Service struct {
	deduper   Deduper
	ledger    ledger.Store
	confirmer Confirmer
	consents  ConsentGranter
	rules     *policy.Engine
	recorder  deliverylog.Recorder
	logger    *slog.Logger

	now func() time.Time
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(deduper Deduper, ledgerStore ledger.Store, confirmer Confirmer,
	consents ConsentGranter, rules *policy.Engine, recorder deliverylog.Recorder,
	logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if deduper == nil || ledgerStore == nil || confirmer == nil || consents == nil || rules == nil {
		return nil, dErrors.New(dErrors.CodeConfig, "deduper, ledger, confirmer, consents and rules are required")
	}
	svc := &Service{
		deduper:   deduper,
		ledger:    ledgerStore,
		confirmer: confirmer,
		consents:  consents,
		rules:     rules,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Handle processes one callback. Duplicates inside the window are dropped
// silently; an unknown response type is a bad request.
func (s *Service) Handle(ctx context.Context, cb Callback) (Result, error) {
	if cb.MessageID == "" {
		return Result{}, dErrors.New(dErrors.CodeBadRequest, "message_id is required")
	}
	switch cb.ResponseType {
	case ResponseAttend, ResponseAbsent, ResponseConsent, ResponseSignature, ResponseNone:
	default:
		return Result{}, dErrors.New(dErrors.CodeBadRequest, "unknown response type")
	}

	first, err := s.deduper.FirstSeen(ctx, cb.MessageID+":"+string(cb.ResponseType))
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "dedup check failed")
	}
	if !first {
		s.logger.InfoContext(ctx, "duplicate callback dropped",
			"message_id", cb.MessageID,
			"response_type", cb.ResponseType,
		)
		s.record(ctx, deliverylog.KindCallbackDuplicate, cb, "")
		return Result{Duplicate: true}, nil
	}

	if cb.ReceivedAt.IsZero() {
		cb.ReceivedAt = s.now().UTC()
	}

	if err := s.route(ctx, cb); err != nil {
		return Result{}, err
	}
	s.record(ctx, deliverylog.KindCallbackReceived, cb, string(cb.ResponseType))
	return Result{Routed: cb.ResponseType != ResponseNone}, nil
}

func (s *Service) route(ctx context.Context, cb Callback) error {
	switch cb.ResponseType {
	case ResponseAttend:
		if err := s.appendFact(ctx, cb, "attendance.confirmed"); err != nil {
			return err
		}
		return s.confirm(ctx, cb)
	case ResponseAbsent:
		if err := s.appendFact(ctx, cb, "attendance.absent"); err != nil {
			return err
		}
		// An explicit absence reply still confirms the parent saw the message.
		return s.confirm(ctx, cb)
	case ResponseConsent:
		if cb.ConsentType == "" {
			return dErrors.New(dErrors.CodeBadRequest, "consent callback without consent_type")
		}
		if _, err := s.consents.Grant(ctx, cb.ParentID, consent.ConsentType(cb.ConsentType), cb.ConsentVersion); err != nil {
			return err
		}
		return s.appendFact(ctx, cb, "consent.granted")
	case ResponseSignature:
		return s.appendFact(ctx, cb, "signature.received")
	case ResponseNone:
		// Delivery receipt only, nothing to route.
		return nil
	}
	return nil
}

func (s *Service) confirm(ctx context.Context, cb Callback) error {
	if err := s.confirmer.Confirm(ctx, cb.MessageID, cb.ReceivedAt); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "confirm safety message failed")
	}
	return nil
}

// appendFact records the callback as an outcome fact, classified through the
// rule table so replays see the same tier and weight policy assigned here.
func (s *Service) appendFact(ctx context.Context, cb Callback, outcomeType string) error {
	classification, err := s.rules.ClassifyOutcome(outcomeType)
	if err != nil {
		return err
	}
	entityID := cb.StudentID
	if entityID == "" {
		entityID = cb.ParentID
	}
	_, err = s.ledger.Append(ctx, ledger.OutcomeFact{
		EntityID:    entityID,
		EntityType:  "student",
		OutcomeType: outcomeType,
		Tier:        classification.Tier,
		Weight:      classification.Weight,
		OccurredAt:  cb.ReceivedAt,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "append outcome fact failed")
	}
	return nil
}

func (s *Service) record(ctx context.Context, kind deliverylog.Kind, cb Callback, detail string) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(ctx, deliverylog.Event{
		Kind:      kind,
		MessageID: cb.MessageID,
		TenantID:  cb.TenantID,
		Recipient: cb.ParentID,
		Detail:    detail,
	})
}
