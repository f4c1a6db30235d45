package safety

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Ohseho81/autus-sub014/internal/deliverylog"
	"github.com/Ohseho81/autus-sub014/internal/outbox"
	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
)

// Enqueuer re-enqueues reminder messages. Satisfied by the outbox service.
type Enqueuer interface {
	Enqueue(ctx context.Context, req outbox.EnqueueRequest) (string, error)
}

// scanWindow bounds how far back a scan looks. Entries older than this have
// either been actioned at the critical level already or predate a restart by
// enough that paging again would be noise.
const scanWindow = time.Hour

// ChainConfig tunes the escalation loop.
type ChainConfig struct {
	ScanInterval time.Duration
}

func (c *ChainConfig) applyDefaults() {
	if c.ScanInterval <= 0 {
		c.ScanInterval = time.Minute
	}
}

// Chain watches pending confirmations and walks them up the escalation
// levels. Each scan actions only the highest newly-due level per entry, so a
// confirmation discovered 35 minutes after send goes straight to critical
// without a redundant reminder and call alert.
type Chain struct {
	confirmations ConfirmationStore
	alerts        AlertStore
	directory     Directory
	enqueuer      Enqueuer
	recorder      deliverylog.Recorder
	logger        *slog.Logger
	cfg           ChainConfig

	now func() time.Time
}

type ChainOption func(*Chain)

func WithChainClock(now func() time.Time) ChainOption {
	return func(c *Chain) { c.now = now }
}

func NewChain(confirmations ConfirmationStore, alerts AlertStore, directory Directory,
	enqueuer Enqueuer, recorder deliverylog.Recorder, logger *slog.Logger,
	cfg ChainConfig, opts ...ChainOption) (*Chain, error) {
	if confirmations == nil || alerts == nil || directory == nil || enqueuer == nil {
		return nil, dErrors.New(dErrors.CodeConfig, "confirmation store, alert store, directory and enqueuer are required")
	}
	cfg.applyDefaults()
	c := &Chain{
		confirmations: confirmations,
		alerts:        alerts,
		directory:     directory,
		enqueuer:      enqueuer,
		recorder:      recorder,
		logger:        logger,
		cfg:           cfg,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Expect registers a sent safety-critical message for confirmation tracking.
// It implements the outbox confirmation sink.
func (c *Chain) Expect(ctx context.Context, m *outbox.Message, sentAt time.Time) error {
	return c.confirmations.Expect(ctx, Confirmation{
		MessageID:   m.ID,
		TenantID:    m.TenantID,
		RecipientID: m.RecipientID,
		Phone:       m.Phone,
		TemplateID:  m.TemplateID,
		SentAt:      sentAt,
	})
}

// Confirm resolves a pending confirmation, stopping further escalation.
func (c *Chain) Confirm(ctx context.Context, messageID string, at time.Time) error {
	return c.confirmations.MarkConfirmed(ctx, messageID, at)
}

// Run scans on a fixed interval until ctx is cancelled.
func (c *Chain) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		if err := c.Scan(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "escalation scan failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Scan evaluates every unconfirmed entry in the window and escalates those
// whose due level exceeds the last actioned one.
func (c *Chain) Scan(ctx context.Context) error {
	now := c.now()
	pending, err := c.confirmations.Unconfirmed(ctx, now.Add(-scanWindow))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "list unconfirmed failed")
	}
	for _, entry := range pending {
		due := levelFor(now.Sub(entry.SentAt))
		if due <= entry.LastLevel {
			continue
		}
		if err := c.escalate(ctx, entry, due); err != nil {
			c.logger.ErrorContext(ctx, "escalation failed",
				"error", err,
				"message_id", entry.MessageID,
				"level", int(due),
			)
			continue
		}
		if err := c.confirmations.SetLevel(ctx, entry.MessageID, due); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "record escalation level failed")
		}
	}
	return nil
}

func levelFor(elapsed time.Duration) Level {
	switch {
	case elapsed >= CriticalAfter:
		return LevelCritical
	case elapsed >= CallAfter:
		return LevelCall
	case elapsed >= ReminderAfter:
		return LevelReminder
	default:
		return LevelNone
	}
}

func (c *Chain) escalate(ctx context.Context, entry Confirmation, level Level) error {
	switch level {
	case LevelReminder:
		return c.sendReminder(ctx, entry)
	case LevelCall:
		return c.raiseCallAlert(ctx, entry)
	case LevelCritical:
		return c.raiseCritical(ctx, entry)
	}
	return nil
}

// sendReminder re-enqueues the original template at safety priority. The
// idempotency key is derived from the message id, so overlapping scans
// collapse to one reminder.
func (c *Chain) sendReminder(ctx context.Context, entry Confirmation) error {
	_, err := c.enqueuer.Enqueue(ctx, outbox.EnqueueRequest{
		TenantID:       entry.TenantID,
		RecipientType:  "parent",
		RecipientID:    entry.RecipientID,
		Phone:          entry.Phone,
		TemplateID:     entry.TemplateID,
		Priority:       outbox.PrioritySafety,
		IdempotencyKey: "safety-reminder-" + entry.MessageID,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "enqueue reminder failed")
	}
	c.record(ctx, deliverylog.KindEscalationReminder, entry, "reminder re-sent at safety priority")
	c.logger.InfoContext(ctx, "escalation: reminder sent",
		"message_id", entry.MessageID,
		"recipient_id", entry.RecipientID,
	)
	return nil
}

func (c *Chain) raiseCallAlert(ctx context.Context, entry Confirmation) error {
	alert := Alert{
		ID:          uuid.NewString(),
		MessageID:   entry.MessageID,
		TenantID:    entry.TenantID,
		RecipientID: entry.RecipientID,
		Level:       LevelCall,
		Note:        "no confirmation after reminder, manual call needed",
		CreatedAt:   c.now().UTC(),
	}
	if err := c.alerts.Save(ctx, alert); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "save call alert failed")
	}
	c.record(ctx, deliverylog.KindEscalationCallNeeded, entry, alert.Note)
	c.logger.WarnContext(ctx, "escalation: manual call needed",
		"message_id", entry.MessageID,
		"recipient_id", entry.RecipientID,
	)
	return nil
}

// raiseCritical pages every director of the tenant. Alerts are raised per
// director so each has an assignment record to resolve.
func (c *Chain) raiseCritical(ctx context.Context, entry Confirmation) error {
	directors, err := c.directory.DirectorsByTenant(ctx, entry.TenantID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "director lookup failed")
	}
	for _, director := range directors {
		alert := Alert{
			ID:          uuid.NewString(),
			MessageID:   entry.MessageID,
			TenantID:    entry.TenantID,
			RecipientID: entry.RecipientID,
			Level:       LevelCritical,
			AssigneeID:  director.ID,
			Note:        "unconfirmed for 30 minutes, director intervention required",
			CreatedAt:   c.now().UTC(),
		}
		if err := c.alerts.Save(ctx, alert); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "save critical alert failed")
		}
	}
	c.record(ctx, deliverylog.KindEscalationCritical, entry, "director escalation raised")
	c.logger.ErrorContext(ctx, "escalation: critical, directors paged",
		"message_id", entry.MessageID,
		"recipient_id", entry.RecipientID,
		"directors", len(directors),
	)
	return nil
}

func (c *Chain) record(ctx context.Context, kind deliverylog.Kind, entry Confirmation, detail string) {
	if c.recorder == nil {
		return
	}
	c.recorder.Record(ctx, deliverylog.Event{
		Kind:      kind,
		MessageID: entry.MessageID,
		TenantID:  entry.TenantID,
		Recipient: entry.Phone,
		Detail:    detail,
	})
}
