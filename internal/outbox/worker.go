package outbox

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Ohseho81/autus-sub014/internal/deliverylog"
	"github.com/Ohseho81/autus-sub014/internal/gateway"
	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
)

// ConfirmationSink registers a successful safety-critical send so the
// escalation chain can watch for the recipient's confirmation.
type ConfirmationSink interface {
	Expect(ctx context.Context, m *Message, sentAt time.Time) error
}

// WorkerConfig tunes the delivery loop.
type WorkerConfig struct {
	BatchSize    int
	MaxRetries   int
	BackoffBase  time.Duration
	RatePerSec   int
	PollInterval time.Duration
}

func (c *WorkerConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
}

// Worker drains the outbox. The loop is single-threaded cooperative polling:
// each tick it claims batches, processes them serially under a global rate
// limit, and exits the drain once no due rows remain. All durability state
// stays in the store, so a crash mid-batch loses at most one in-flight send.
type Worker struct {
	store     Store
	templates TemplateStore
	gw        gateway.Gateway
	recorder  deliverylog.Recorder
	sink      ConfirmationSink
	metrics   *Metrics
	logger    *slog.Logger
	limiter   *rate.Limiter
	cfg       WorkerConfig
	tracer    trace.Tracer

	now func() time.Time
}

type WorkerOption func(*Worker)

func WithConfirmationSink(sink ConfirmationSink) WorkerOption {
	return func(w *Worker) { w.sink = sink }
}

func WithWorkerMetrics(m *Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

func NewWorker(store Store, templates TemplateStore, gw gateway.Gateway, recorder deliverylog.Recorder,
	logger *slog.Logger, cfg WorkerConfig, opts ...WorkerOption) (*Worker, error) {
	if store == nil || templates == nil || gw == nil {
		return nil, dErrors.New(dErrors.CodeConfig, "store, templates and gateway are required")
	}
	cfg.applyDefaults()
	w := &Worker{
		store:     store,
		templates: templates,
		gw:        gw,
		recorder:  recorder,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		cfg:       cfg,
		tracer:    otel.Tracer("outbox"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run polls until ctx is cancelled. Each tick drains the queue completely.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.Drain(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain claims and processes batches until no due rows remain.
func (w *Worker) Drain(ctx context.Context) error {
	for {
		n, err := w.RunOnce(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// RunOnce claims a single batch and processes it serially. Returns the
// number of messages claimed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	batch, err := w.store.ClaimBatch(ctx, w.now(), w.cfg.BatchSize)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "claim batch failed")
	}
	for _, m := range batch {
		if err := w.limiter.Wait(ctx); err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeTimeout, "worker cancelled")
		}
		w.process(ctx, m)
	}
	return len(batch), nil
}

func (w *Worker) process(ctx context.Context, m *Message) {
	ctx, span := w.tracer.Start(ctx, "outbox.send")
	defer span.End()

	tmpl, err := ResolveTemplate(ctx, w.templates, m.TenantID, m.TemplateID)
	if err == nil {
		var body string
		body, err = RenderTemplate(tmpl.Body, m.Variables)
		if err == nil {
			err = w.send(ctx, m, tmpl.Code, body)
		}
	}

	switch {
	case err == nil:
		w.markSent(ctx, m)
	case dErrors.Is(err, dErrors.CodeConfig):
		// Rule-table or caller bug: fail fast, never retried.
		w.markDeadLetter(ctx, m, m.RetryCount, err)
	default:
		w.markFailure(ctx, m, err)
	}
}

func (w *Worker) send(ctx context.Context, m *Message, templateCode, body string) error {
	start := w.now()
	err := w.gw.Send(ctx, gateway.SendRequest{
		TemplateCode: templateCode,
		Receiver:     m.Phone,
		RenderedBody: body,
	})
	if w.metrics != nil {
		w.metrics.SendDuration.Observe(time.Since(start).Seconds())
	}
	return err
}

func (w *Worker) markSent(ctx context.Context, m *Message) {
	sentAt := w.now()
	if err := w.store.MarkSent(ctx, m.ID, sentAt); err != nil {
		w.logger.ErrorContext(ctx, "mark sent failed", "error", err, "message_id", m.ID)
		return
	}
	if w.metrics != nil {
		w.metrics.Sent.Inc()
	}
	w.record(ctx, deliverylog.KindDeliverySent, m, "")
	if m.RequiresConfirmation && w.sink != nil {
		if err := w.sink.Expect(ctx, m, sentAt); err != nil {
			w.logger.ErrorContext(ctx, "register confirmation failed", "error", err, "message_id", m.ID)
		}
	}
}

// markFailure schedules a retry with exponential backoff (1s, 2s, ... from
// BackoffBase) or dead-letters once the retry budget is spent. Dead-lettering
// is a terminal status, never an error raised to the caller.
func (w *Worker) markFailure(ctx context.Context, m *Message, sendErr error) {
	retryCount := m.RetryCount + 1
	if retryCount >= w.cfg.MaxRetries {
		w.markDeadLetter(ctx, m, retryCount, sendErr)
		return
	}

	delay := w.cfg.BackoffBase << m.RetryCount
	nextRetryAt := w.now().Add(delay)
	if err := w.store.MarkFailed(ctx, m.ID, retryCount, nextRetryAt, sendErr.Error()); err != nil {
		w.logger.ErrorContext(ctx, "mark failed failed", "error", err, "message_id", m.ID)
		return
	}
	if w.metrics != nil {
		w.metrics.Failed.Inc()
	}
	w.logger.WarnContext(ctx, "send failed, retry scheduled",
		"message_id", m.ID,
		"retry_count", retryCount,
		"next_retry_at", nextRetryAt,
		"error", sendErr,
	)
	w.record(ctx, deliverylog.KindDeliveryFailed, m, sendErr.Error())
}

func (w *Worker) markDeadLetter(ctx context.Context, m *Message, retryCount int, cause error) {
	if err := w.store.MarkDeadLetter(ctx, m.ID, retryCount, cause.Error()); err != nil {
		w.logger.ErrorContext(ctx, "mark dead letter failed", "error", err, "message_id", m.ID)
		return
	}
	if w.metrics != nil {
		w.metrics.DeadLettered.Inc()
	}
	w.logger.ErrorContext(ctx, "message dead-lettered",
		"message_id", m.ID,
		"retry_count", retryCount,
		"error", cause,
	)
	w.record(ctx, deliverylog.KindDeliveryDeadLetter, m, cause.Error())
}

func (w *Worker) record(ctx context.Context, kind deliverylog.Kind, m *Message, detail string) {
	if w.recorder == nil {
		return
	}
	w.recorder.Record(ctx, deliverylog.Event{
		Kind:      kind,
		MessageID: m.ID,
		TenantID:  m.TenantID,
		Recipient: m.Phone,
		Detail:    detail,
	})
}
