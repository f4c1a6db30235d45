// Package policy is the stateless rule evaluator: it classifies outcomes,
// decides process triggers, evaluates shadow (approval) requests, checks
// thresholds, and maps continuous scores to banded statuses. All decision
// functions are pure lookups over immutable rule tables loaded at startup.
package policy

import (
	"github.com/Ohseho81/autus-sub014/internal/ledger"
)

// Classification is the rule-table verdict for a single outcome type.
type Classification struct {
	Tier    ledger.Tier
	Weight  float64
	Process string // automated process name, empty when none attached
	Label   string
	Urgency string
	Notify  bool
}

// TriggerDecision says whether an outcome starts an automated process.
type TriggerDecision struct {
	Trigger     bool
	ProcessName string
}

// ShadowOutcome enumerates shadow-request evaluation results.
type ShadowOutcome string

const (
	ShadowAutoApprove ShadowOutcome = "auto_approve"
	ShadowAutoReject  ShadowOutcome = "auto_reject"
	ShadowPending     ShadowOutcome = "pending"
)

// ShadowDecision is the evaluated verdict for an approval request.
type ShadowDecision struct {
	Decision     ShadowOutcome
	Authority    string
	ApprovalRate float64
	Reason       string
}

// ProcessStep is one action inside an automated process.
type ProcessStep struct {
	Action string `yaml:"action"`
	Delay  string `yaml:"delay"`
}

// ProcessDefinition describes an automated process attached to a trigger
// outcome. Static configuration, never mutated at runtime.
type ProcessDefinition struct {
	Trigger        string        `yaml:"trigger"`
	Steps          []ProcessStep `yaml:"steps"`
	SuccessOutcome string        `yaml:"success_outcome"`
	FailOutcome    string        `yaml:"fail_outcome"`
	MaxDays        int           `yaml:"max_days"`
}

// ShadowCategory configures automatic approval for one request category.
type ShadowCategory struct {
	ApprovalRate         float64 `yaml:"approval_rate"`
	AutoApproveCondition string  `yaml:"auto_approve_condition"`
	AutoRejectCondition  string  `yaml:"auto_reject_condition"`
	ApprovalAuthority    string  `yaml:"approval_authority"`
}

// LoopDefinition describes a closed-loop state opened and closed by specific
// outcome types, with an optional timeout in days (0 means none).
type LoopDefinition struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	OpenCondition  string `yaml:"open_condition"`
	CloseCondition string `yaml:"close_condition"`
	TimeoutDays    int    `yaml:"timeout_days"`
}

// VelocityBand maps a velocity value to a traffic-light status with a
// recommended action.
type VelocityBand struct {
	Status string
	Action string
}

// CLFBand maps a complexity score to a level.
type CLFBand struct {
	Level string
}
