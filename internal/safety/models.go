// Package safety escalates unconfirmed safety-critical messages through a
// three-level chain: a reminder after 5 minutes, a manual-call alert after
// 10, and a critical alert to tenant directors after 30.
package safety

import "time"

// Level is the escalation step reached for one confirmation.
type Level int

const (
	LevelNone     Level = 0
	LevelReminder Level = 1
	LevelCall     Level = 2
	LevelCritical Level = 3
)

// Escalation thresholds, measured from the original send.
const (
	ReminderAfter = 5 * time.Minute
	CallAfter     = 10 * time.Minute
	CriticalAfter = 30 * time.Minute
)

// Confirmation tracks one safety-critical send awaiting acknowledgement.
// LastLevel records the highest level already actioned so repeated scans
// never re-fire a step.
type Confirmation struct {
	MessageID   string
	TenantID    string
	RecipientID string
	Phone       string
	TemplateID  string
	SentAt      time.Time
	ConfirmedAt *time.Time
	LastLevel   Level
}

// Alert is a manual-intervention record produced at levels 2 and 3.
type Alert struct {
	ID          string
	MessageID   string
	TenantID    string
	RecipientID string
	Level       Level
	AssigneeID  string
	Note        string
	CreatedAt   time.Time
}
