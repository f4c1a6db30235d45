// Package outbox implements the durable, idempotent, priority-ordered
// message delivery queue with exponential backoff and dead-lettering.
package outbox

import "time"

// Status is the lifecycle of an outbox row: created pending, claimed into
// sending, then sent, failed (with a scheduled retry) or dead_letter once
// the retry budget is exhausted.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSending    Status = "sending"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusDeadLetter Status = "dead_letter"
)

// Priority orders claims: higher first. Safety traffic jumps ahead of
// everything else.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
	PrioritySafety Priority = 3
)

// Message is one outbox row. All durability state (status, retry count,
// next retry time) lives here, in the store, never in process memory.
type Message struct {
	ID             string
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

	Status      Status
	RetryCount  int
	NextRetryAt *time.Time
	ClaimedAt   *time.Time
	SentAt      *time.Time
	LastError   string
	CreatedAt   time.Time
}
