package deliverylog

import (
	"context"
	"log/slog"
	"time"
)

// Recorder is what producers of delivery events depend on.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// Log decouples event producers from persistence: Record stamps the event
// and hands it to a buffered channel; the Worker drains the channel into the
// store and the stream publisher. A full buffer drops the event rather than
// blocking the delivery path.
type Log struct {
	inbox  chan Event
	logger *slog.Logger
}

const defaultBuffer = 1024

func NewLog(logger *slog.Logger) *Log {
	return &Log{
		inbox:  make(chan Event, defaultBuffer),
		logger: logger,
	}
}

func (l *Log) Record(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case l.inbox <- event:
	default:
		l.logger.WarnContext(ctx, "delivery log buffer full, event dropped",
			"kind", event.Kind,
			"message_id", event.MessageID,
		)
	}
}

// Worker consumes delivery events and persists them. It keeps background
// processing testable without wiring queue implementations into producers.
type Worker struct {
	log       *Log
	store     Store
	publisher Publisher
	logger    *slog.Logger
}

func NewWorker(log *Log, store Store, publisher Publisher, logger *slog.Logger) *Worker {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &Worker{log: log, store: store, publisher: publisher, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.log.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "delivery log append failed",
					"error", err,
					"kind", event.Kind,
				)
				continue
			}
			if err := w.publisher.Publish(ctx, event); err != nil {
				// Stream fan-out is best effort; the store copy is durable.
				w.logger.WarnContext(ctx, "delivery event publish failed",
					"error", err,
					"kind", event.Kind,
				)
			}
		}
	}
}
