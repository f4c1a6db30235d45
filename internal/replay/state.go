// Package replay reconstructs per-entity relationship state by folding the
// ledger's ordered event stream. State is derived, never persisted: any
// question about an entity is answered by replaying its history.
package replay

import (
	"math"
	"time"

	"github.com/Ohseho81/autus-sub014/internal/ledger"
)

// State labels, ordered from worst to best on the weight axis.
const (
	StateTerminated = "terminated"
	StateCritical   = "critical"
	StateAtRisk     = "at_risk"
	StateDeclining  = "declining"
	StateNeutral    = "neutral"
	StateStable     = "stable"
	StateHealthy    = "healthy"
)

// Transition records one state change. Appended if and only if the current
// state actually changed on that event.
type Transition struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Weight     float64   `json:"weight"`
}

// EntityState is the folded view of one entity's history.
//
// Weight accumulates in integer thousandths (totalMilli) so long histories
// cannot drift the way repeated float addition would; the exported
// TotalWeight is derived from it after every event.
type EntityState struct {
	EntityID      string              `json:"entity_id"`
	EntityType    string              `json:"entity_type"`
	CurrentState  string              `json:"current_state"`
	PreviousState string              `json:"previous_state"`
	TotalWeight   float64             `json:"total_weight"`
	EventCount    int                 `json:"event_count"`
	TierCounts    map[ledger.Tier]int `json:"tier_counts"`
	FirstEventAt  time.Time           `json:"first_event_at"`
	LastEventAt   time.Time           `json:"last_event_at"`
	IsTerminal    bool                `json:"is_terminal"`
	Transitions   []Transition        `json:"transitions"`

	// WeightBreakdown maps outcome_type to its accumulated weight.
	WeightBreakdown map[string]float64 `json:"weight_breakdown"`

	totalMilli     int64
	breakdownMilli map[string]int64
}

func newEntityState(fact ledger.OutcomeFact) *EntityState {
	return &EntityState{
		EntityID:        fact.EntityID,
		EntityType:      fact.EntityType,
		CurrentState:    StateNeutral,
		TierCounts:      make(map[ledger.Tier]int),
		FirstEventAt:    fact.OccurredAt,
		WeightBreakdown: make(map[string]float64),
		breakdownMilli:  make(map[string]int64),
	}
}

// applyEvent folds one fact into the state. Terminal states absorb: once an
// entity is terminal nothing mutates it again. The next state label is
// derived from the weight after applying this fact, so the label reflects
// the result of the event rather than a pre-event snapshot.
func (s *EntityState) applyEvent(fact ledger.OutcomeFact, tier ledger.Tier, weight float64) {
	if s.IsTerminal {
		return
	}

	milli := toMilli(weight)
	s.totalMilli += milli
	s.TotalWeight = fromMilli(s.totalMilli)
	s.EventCount++
	s.TierCounts[tier]++
	s.breakdownMilli[fact.OutcomeType] += milli
	s.WeightBreakdown[fact.OutcomeType] = fromMilli(s.breakdownMilli[fact.OutcomeType])
	s.LastEventAt = fact.OccurredAt

	next := bandForWeight(s.totalMilli)
	if tier == ledger.TierTerminal {
		// TERMINAL overrides the numeric banding unconditionally.
		next = StateTerminated
		s.IsTerminal = true
	}

	if next != s.CurrentState {
		s.Transitions = append(s.Transitions, Transition{
			From:       s.CurrentState,
			To:         next,
			EventType:  fact.OutcomeType,
			OccurredAt: fact.OccurredAt,
			Weight:     weight,
		})
		s.PreviousState = s.CurrentState
		s.CurrentState = next
	}
}

// bandForWeight maps an accumulated weight (in thousandths) to a state label:
// <= -2.0 critical, <= -1.0 at_risk, < 0 declining, = 0 neutral, < 1.0
// stable, otherwise healthy.
func bandForWeight(milli int64) string {
	switch {
	case milli <= -2000:
		return StateCritical
	case milli <= -1000:
		return StateAtRisk
	case milli < 0:
		return StateDeclining
	case milli == 0:
		return StateNeutral
	case milli < 1000:
		return StateStable
	default:
		return StateHealthy
	}
}

func toMilli(w float64) int64 {
	return int64(math.Round(w * 1000))
}

func fromMilli(m int64) float64 {
	return float64(m) / 1000
}
