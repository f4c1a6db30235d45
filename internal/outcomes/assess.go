package outcomes

import (
	"context"
	"strings"
	"time"

	"github.com/Ohseho81/autus-sub014/internal/ledger"
	"github.com/Ohseho81/autus-sub014/internal/policy"
	"github.com/Ohseho81/autus-sub014/internal/replay"
	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
)

// velocityWindow is the trailing span whose weight delta stands in for the
// relationship's direction of travel.
const velocityWindow = 30 * 24 * time.Hour

// Assessment is the banded health read-out for one entity.
type Assessment struct {
	EntityID     string              `json:"entity_id"`
	CurrentState string              `json:"current_state"`
	TotalWeight  float64             `json:"total_weight"`
	IsTerminal   bool                `json:"is_terminal"`
	Velocity     float64             `json:"velocity"`
	VelocityBand policy.VelocityBand `json:"velocity_band"`
	CLFScore     float64             `json:"clf_score"`
	CLFBand      policy.CLFBand      `json:"clf_band"`

	ConsecutiveAbsences int  `json:"consecutive_absences"`
	AbsenceAlert        bool `json:"absence_alert"`
}

// Assessor derives banded indicators from replayed state.
type Assessor struct {
	ledger ledger.Store
	replay *replay.Engine
	rules  *policy.Engine
}

func NewAssessor(ledgerStore ledger.Store, replayEngine *replay.Engine, rules *policy.Engine) (*Assessor, error) {
	if ledgerStore == nil || replayEngine == nil || rules == nil {
		return nil, dErrors.New(dErrors.CodeConfig, "ledger, replay engine and rules are required")
	}
	return &Assessor{ledger: ledgerStore, replay: replayEngine, rules: rules}, nil
}

// Assess replays the entity and bands its indicators. Velocity is the weight
// accumulated in the trailing window ending at the last event; CLF scores
// operational friction from tier-S incident count plus history length.
func (a *Assessor) Assess(ctx context.Context, entityID string) (*Assessment, error) {
	state, err := a.replay.ReplayEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "no events recorded for entity")
	}

	facts, err := a.ledger.FactsByEntity(ctx, entityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "fetch entity facts failed")
	}

	velocity := recentWeight(facts, state.LastEventAt)
	clfScore := 10*float64(state.TierCounts[ledger.TierS]) + float64(state.EventCount)
	absences := trailingAbsences(facts)

	absenceAlert, err := a.rules.CheckThreshold("consecutive_absences", float64(absences))
	if err != nil {
		return nil, err
	}

	return &Assessment{
		EntityID:            entityID,
		CurrentState:        state.CurrentState,
		TotalWeight:         state.TotalWeight,
		IsTerminal:          state.IsTerminal,
		Velocity:            velocity,
		VelocityBand:        a.rules.VelocityStatus(velocity),
		CLFScore:            clfScore,
		CLFBand:             a.rules.CLFLevel(clfScore),
		ConsecutiveAbsences: absences,
		AbsenceAlert:        absenceAlert,
	}, nil
}

func recentWeight(facts []ledger.OutcomeFact, asOf time.Time) float64 {
	cutoff := asOf.Add(-velocityWindow)
	var sum float64
	for _, f := range facts {
		if f.OccurredAt.Before(cutoff) {
			continue
		}
		sum += f.Weight
	}
	return sum
}

// trailingAbsences counts consecutive attendance.absent facts at the tail of
// the attendance history; any other attendance event breaks the run.
func trailingAbsences(facts []ledger.OutcomeFact) int {
	count := 0
	for i := len(facts) - 1; i >= 0; i-- {
		if !strings.HasPrefix(facts[i].OutcomeType, "attendance.") {
			continue
		}
		if facts[i].OutcomeType != "attendance.absent" {
			break
		}
		count++
	}
	return count
}
