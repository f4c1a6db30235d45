package policy

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Ohseho81/autus-sub014/internal/ledger"
)

//go:embed rules.yaml
var defaultRules []byte

// OutcomeRule is the per-outcome-type row of the rule table.
type OutcomeRule struct {
	Tier    string  `yaml:"tier"`
	Weight  float64 `yaml:"weight"`
	Process string  `yaml:"process"`
	Label   string  `yaml:"label"`
	Urgency string  `yaml:"urgency"`
	Notify  bool    `yaml:"notify"`
}

// RuleTable is the versioned, externally loadable policy configuration.
// It is validated once at startup and treated as immutable afterwards.
type RuleTable struct {
	Version    string                       `yaml:"version"`
	Outcomes   map[string]OutcomeRule       `yaml:"outcomes"`
	Processes  map[string]ProcessDefinition `yaml:"processes"`
	Shadow     map[string]ShadowCategory    `yaml:"shadow_categories"`
	Thresholds map[string]float64           `yaml:"thresholds"`
	Loops      []LoopDefinition             `yaml:"loops"`
}

// LoadRuleTable reads a rule table from path, falling back to the embedded
// default when path is empty.
func LoadRuleTable(path string) (*RuleTable, error) {
	data := defaultRules
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rule table: %w", err)
		}
		data = b
	}
	var table RuleTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse rule table: %w", err)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &table, nil
}

// Validate rejects tables that would produce undefined behavior at runtime:
// unknown tiers, triggers referencing missing processes, loops without both
// conditions.
func (t *RuleTable) Validate() error {
	if len(t.Outcomes) == 0 {
		return fmt.Errorf("rule table: no outcomes defined")
	}
	for name, rule := range t.Outcomes {
		switch ledger.Tier(rule.Tier) {
		case ledger.TierS, ledger.TierA, ledger.TierTerminal:
		default:
			return fmt.Errorf("rule table: outcome %q has unknown tier %q", name, rule.Tier)
		}
		if rule.Process != "" {
			if _, ok := t.Processes[rule.Process]; !ok {
				return fmt.Errorf("rule table: outcome %q references undefined process %q", name, rule.Process)
			}
		}
	}
	for id, proc := range t.Processes {
		if proc.Trigger == "" {
			return fmt.Errorf("rule table: process %q has no trigger", id)
		}
	}
	for _, loop := range t.Loops {
		if loop.ID == "" || loop.OpenCondition == "" || loop.CloseCondition == "" {
			return fmt.Errorf("rule table: loop %q is missing open/close conditions", loop.ID)
		}
	}
	return nil
}
