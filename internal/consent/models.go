// Package consent gates notification categories on an active consent record
// per (parent, consent type). At most one record may be active for a pair at
// any time.
package consent

import "time"

// ConsentType labels what the parent agreed to receive. Type binding allows
// selective revocation without affecting other categories.
type ConsentType string

const (
	ConsentMarketing       ConsentType = "marketing"
	ConsentProgressReport  ConsentType = "progress_report"
	ConsentSafetyAlert     ConsentType = "safety_alert"
	ConsentBillingNotice   ConsentType = "billing_notice"
)

// ConsentRecord captures one consent decision with its policy version.
type ConsentRecord struct {
	ParentID       string
	ConsentType    ConsentType
	ConsentVersion string
	IsActive       bool
	ConsentedAt    time.Time
	RevokedAt      *time.Time
}
