package policy

import (
	"github.com/Ohseho81/autus-sub014/internal/ledger"
	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
)

// Engine evaluates the loaded rule table. It holds no mutable state and is
// safe for concurrent use. Construct one explicitly and inject it; there is
// no package-level singleton.
type Engine struct {
	table *RuleTable
}

func NewEngine(table *RuleTable) (*Engine, error) {
	if table == nil {
		return nil, dErrors.New(dErrors.CodeConfig, "rule table is required")
	}
	if err := table.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfig, "invalid rule table")
	}
	return &Engine{table: table}, nil
}

// ClassifyOutcome looks up tier, weight and process attachment for an outcome
// type. Unknown types are a configuration error, never retried.
func (e *Engine) ClassifyOutcome(outcomeType string) (Classification, error) {
	rule, ok := e.table.Outcomes[outcomeType]
	if !ok {
		return Classification{}, dErrors.New(dErrors.CodeConfig, "unknown outcome type: "+outcomeType)
	}
	return Classification{
		Tier:    ledger.Tier(rule.Tier),
		Weight:  rule.Weight,
		Process: rule.Process,
		Label:   rule.Label,
		Urgency: rule.Urgency,
		Notify:  rule.Notify,
	}, nil
}

// ShouldTriggerProcess decides whether an outcome starts automation. Only
// tier S outcomes with an attached process trigger; tier A only records;
// TERMINAL never triggers.
func (e *Engine) ShouldTriggerProcess(outcomeType string) (TriggerDecision, error) {
	c, err := e.ClassifyOutcome(outcomeType)
	if err != nil {
		return TriggerDecision{}, err
	}
	if c.Tier != ledger.TierS || c.Process == "" {
		return TriggerDecision{}, nil
	}
	return TriggerDecision{Trigger: true, ProcessName: c.Process}, nil
}

// Process returns the definition of a named automated process.
func (e *Engine) Process(name string) (ProcessDefinition, error) {
	proc, ok := e.table.Processes[name]
	if !ok {
		return ProcessDefinition{}, dErrors.New(dErrors.CodeConfig, "unknown process: "+name)
	}
	return proc, nil
}

// EvaluateShadow decides an approval request. The reject condition is checked
// before the approve condition: when both flags are present in context,
// reject wins. Anything else falls through to human review.
func (e *Engine) EvaluateShadow(category string, context map[string]bool) (ShadowDecision, error) {
	cat, ok := e.table.Shadow[category]
	if !ok {
		return ShadowDecision{}, dErrors.New(dErrors.CodeConfig, "unknown shadow category: "+category)
	}
	decision := ShadowDecision{
		Authority:    cat.ApprovalAuthority,
		ApprovalRate: cat.ApprovalRate,
	}
	switch {
	case cat.AutoRejectCondition != "" && context[cat.AutoRejectCondition]:
		decision.Decision = ShadowAutoReject
		decision.Reason = cat.AutoRejectCondition
	case cat.AutoApproveCondition != "" && context[cat.AutoApproveCondition]:
		decision.Decision = ShadowAutoApprove
		decision.Reason = cat.AutoApproveCondition
	default:
		decision.Decision = ShadowPending
		decision.Reason = "requires human review"
	}
	return decision, nil
}

// CheckThreshold reports whether currentValue breaches (>=) the configured
// threshold. Unknown keys are a configuration error.
func (e *Engine) CheckThreshold(key string, currentValue float64) (bool, error) {
	threshold, ok := e.table.Thresholds[key]
	if !ok {
		return false, dErrors.New(dErrors.CodeConfig, "unknown threshold key: "+key)
	}
	return currentValue >= threshold, nil
}

// VelocityStatus maps a velocity value to its band. Band edges are fixed:
// green for vv >= 0.5, yellow for -0.2 <= vv < 0.5, red below.
func (e *Engine) VelocityStatus(vv float64) VelocityBand {
	switch {
	case vv >= 0.5:
		return VelocityBand{Status: "green", Action: "maintain"}
	case vv >= -0.2:
		return VelocityBand{Status: "yellow", Action: "monitor_weekly"}
	default:
		return VelocityBand{Status: "red", Action: "intervene_now"}
	}
}

// CLFLevel maps a complexity score to a level: low < 15, medium 15-40,
// high >= 40.
func (e *Engine) CLFLevel(score float64) CLFBand {
	switch {
	case score < 15:
		return CLFBand{Level: "low"}
	case score < 40:
		return CLFBand{Level: "medium"}
	default:
		return CLFBand{Level: "high"}
	}
}

// LoopsOpenedBy returns every loop whose open condition matches outcomeType.
func (e *Engine) LoopsOpenedBy(outcomeType string) []LoopDefinition {
	var out []LoopDefinition
	for _, loop := range e.table.Loops {
		if loop.OpenCondition == outcomeType {
			out = append(out, loop)
		}
	}
	return out
}

// LoopsClosedBy returns every loop whose close condition matches outcomeType.
func (e *Engine) LoopsClosedBy(outcomeType string) []LoopDefinition {
	var out []LoopDefinition
	for _, loop := range e.table.Loops {
		if loop.CloseCondition == outcomeType {
			out = append(out, loop)
		}
	}
	return out
}
