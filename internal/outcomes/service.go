// Package outcomes is the write path of the pipeline: it ingests domain
// events, classifies them against the rule table, appends them to the
// ledger, tracks loop open/close conditions, and turns notify and trigger
// verdicts into outbound messages.
package outcomes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ohseho81/autus-sub014/internal/deliverylog"
	"github.com/Ohseho81/autus-sub014/internal/ledger"
	"github.com/Ohseho81/autus-sub014/internal/outbox"
	"github.com/Ohseho81/autus-sub014/internal/policy"
	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
)

// Enqueuer hands notifications to the outbox. Satisfied by the outbox
// service.
type Enqueuer interface {
	Enqueue(ctx context.Context, req outbox.EnqueueRequest) (string, error)
}

// IngestRequest is one domain event reported by an upstream system.
type IngestRequest struct {
	// EventID is the caller's idempotency handle: a retried ingest with the
	// same EventID never enqueues a second notification.
	EventID     string            `json:"event_id"`
	TenantID    string            `json:"tenant_id"`
	EntityID    string            `json:"entity_id"`
	EntityType  string            `json:"entity_type"`
	OutcomeType string            `json:"outcome_type"`
	ParentID    string            `json:"parent_id"`
	Phone       string            `json:"phone"`
	Variables   map[string]string `json:"variables"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// IngestResult reports what the event turned into.
type IngestResult struct {
	Sequence         int64       `json:"sequence"`
	Tier             ledger.Tier `json:"tier"`
	Weight           float64     `json:"weight"`
	MessageID        string      `json:"message_id,omitempty"`
	ProcessName      string      `json:"process_name,omitempty"`
	ProcessMessageID string      `json:"process_message_id,omitempty"`
	LoopsOpened      []string    `json:"loops_opened,omitempty"`
	LoopsClosed      []string    `json:"loops_closed,omitempty"`
}

// Service drives the classify -> append -> notify/trigger flow.
type Service struct {
	ledger   ledger.Store
	rules    *policy.Engine
	enqueuer Enqueuer
	recorder deliverylog.Recorder
	logger   *slog.Logger

	now func() time.Time
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(ledgerStore ledger.Store, rules *policy.Engine, enqueuer Enqueuer,
	recorder deliverylog.Recorder, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if ledgerStore == nil || rules == nil || enqueuer == nil {
		return nil, dErrors.New(dErrors.CodeConfig, "ledger, rules and enqueuer are required")
	}
	svc := &Service{
		ledger:   ledgerStore,
		rules:    rules,
		enqueuer: enqueuer,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Ingest records one outcome and fans out its consequences: the fact is
// appended first, so a downstream enqueue failure never loses the event
// itself.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.EntityID == "" || req.OutcomeType == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "entity_id and outcome_type are required")
	}

	classification, err := s.rules.ClassifyOutcome(req.OutcomeType)
	if err != nil {
		return nil, err
	}

	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}
	entry, err := s.ledger.Append(ctx, ledger.OutcomeFact{
		EntityID:    req.EntityID,
		EntityType:  req.EntityType,
		OutcomeType: req.OutcomeType,
		Tier:        classification.Tier,
		Weight:      classification.Weight,
		OccurredAt:  occurredAt,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "append outcome fact failed")
	}

	result := &IngestResult{
		Sequence: entry.Sequence,
		Tier:     classification.Tier,
		Weight:   classification.Weight,
	}
	s.trackLoops(ctx, req, result)

	dedup := req.EventID
	if dedup == "" {
		dedup = fmt.Sprintf("seq-%d", entry.Sequence)
	}

	if classification.Notify && req.Phone != "" {
		messageID, err := s.enqueuer.Enqueue(ctx, outbox.EnqueueRequest{
			TenantID:             req.TenantID,
			RecipientType:        "parent",
			RecipientID:          req.ParentID,
			Phone:                req.Phone,
			TemplateID:           req.OutcomeType,
			Variables:            req.Variables,
			Priority:             priorityFor(classification),
			IdempotencyKey:       "outcome-" + dedup,
			RequiresConfirmation: classification.Urgency == "high",
			ConsentType:          consentTypeFor(classification),
		})
		if err != nil {
			return nil, err
		}
		result.MessageID = messageID
	}

	trigger, err := s.rules.ShouldTriggerProcess(req.OutcomeType)
	if err != nil {
		return nil, err
	}
	if trigger.Trigger {
		result.ProcessName = trigger.ProcessName
		s.record(ctx, deliverylog.KindProcessTriggered, req, trigger.ProcessName)
		if req.Phone != "" {
			processMessageID, err := s.enqueuer.Enqueue(ctx, outbox.EnqueueRequest{
				TenantID:       req.TenantID,
				RecipientType:  "parent",
				RecipientID:    req.ParentID,
				Phone:          req.Phone,
				TemplateID:     trigger.ProcessName,
				Variables:      req.Variables,
				Priority:       outbox.PriorityHigh,
				IdempotencyKey: "process-" + trigger.ProcessName + "-" + dedup,
			})
			if err != nil {
				return nil, err
			}
			result.ProcessMessageID = processMessageID
		}
		s.logger.InfoContext(ctx, "automated process triggered",
			"entity_id", req.EntityID,
			"outcome_type", req.OutcomeType,
			"process", trigger.ProcessName,
		)
	}

	return result, nil
}

// priorityFor maps rule-table urgency to queue priority. Safety priority is
// reserved for escalation reminders.
func priorityFor(c policy.Classification) outbox.Priority {
	switch c.Urgency {
	case "high":
		return outbox.PriorityHigh
	case "medium":
		return outbox.PriorityNormal
	default:
		return outbox.PriorityLow
	}
}

// consentTypeFor gates courtesy notices on progress-report consent.
// Operational tier-S and terminal notices are never consent-gated.
func consentTypeFor(c policy.Classification) string {
	if c.Tier == ledger.TierA {
		return "progress_report"
	}
	return ""
}

func (s *Service) trackLoops(ctx context.Context, req IngestRequest, result *IngestResult) {
	for _, loop := range s.rules.LoopsOpenedBy(req.OutcomeType) {
		result.LoopsOpened = append(result.LoopsOpened, loop.ID)
		s.record(ctx, deliverylog.KindLoopOpened, req, loop.ID)
	}
	for _, loop := range s.rules.LoopsClosedBy(req.OutcomeType) {
		result.LoopsClosed = append(result.LoopsClosed, loop.ID)
		s.record(ctx, deliverylog.KindLoopClosed, req, loop.ID)
	}
}

func (s *Service) record(ctx context.Context, kind deliverylog.Kind, req IngestRequest, detail string) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(ctx, deliverylog.Event{
		Kind:     kind,
		EntityID: req.EntityID,
		TenantID: req.TenantID,
		Detail:   detail,
	})
}
