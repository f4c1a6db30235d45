// Package deliverylog is the audit trail of delivery activity: send
// outcomes, escalations and inbound callbacks. Events are transport-agnostic
// so stores and sinks can fan out.
package deliverylog

import "time"

// Kind classifies a delivery event.
type Kind string

const (
	KindDeliverySent       Kind = "delivery_sent"
	KindDeliveryFailed     Kind = "delivery_failed"
	KindDeliveryDeadLetter Kind = "delivery_dead_letter"

	KindEscalationReminder   Kind = "escalation_reminder"
	KindEscalationCallNeeded Kind = "escalation_call_needed"
	KindEscalationCritical   Kind = "escalation_critical"

	KindCallbackReceived  Kind = "callback_received"
	KindCallbackDuplicate Kind = "callback_duplicate"

	KindProcessTriggered Kind = "process_triggered"
	KindLoopOpened       Kind = "loop_opened"
	KindLoopClosed       Kind = "loop_closed"
	KindShadowEvaluated  Kind = "shadow_evaluated"
)

// Event is one delivery log record.
type Event struct {
	Kind      Kind      `json:"kind"`
	MessageID string    `json:"message_id,omitempty"`
	EntityID  string    `json:"entity_id,omitempty"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
