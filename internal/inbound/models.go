// Package inbound processes delivery gateway callbacks: deduplicates
// redelivered callbacks and routes each response type to the subsystem that
// owns it.
package inbound

import "time"

// ResponseType is the recipient's reaction carried by a gateway callback.
type ResponseType string

const (
	ResponseAttend    ResponseType = "ATTEND"
	ResponseAbsent    ResponseType = "ABSENT"
	ResponseConsent   ResponseType = "CONSENT"
	ResponseSignature ResponseType = "SIGNATURE"
	ResponseNone      ResponseType = "NONE"
)

// Callback is one gateway delivery/response notification.
type Callback struct {
	MessageID      string       `json:"message_id"`
	TenantID       string       `json:"tenant_id"`
	ParentID       string       `json:"parent_id"`
	StudentID      string       `json:"student_id,omitempty"`
	ResponseType   ResponseType `json:"response_type"`
	ConsentType    string       `json:"consent_type,omitempty"`
	ConsentVersion string       `json:"consent_version,omitempty"`
	ReceivedAt     time.Time    `json:"received_at"`
}
