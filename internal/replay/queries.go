package replay

import (
	"context"
	"sort"
)

// Query helpers are built on ReplayAll and filter the result. No separate
// indexes are maintained: recompute cost is traded for zero staleness.

// EntitiesByState returns every entity currently in the given state.
func (e *Engine) EntitiesByState(ctx context.Context, state string) ([]*EntityState, error) {
	result, err := e.ReplayAll(ctx, 1)
	if err != nil {
		return nil, err
	}
	var out []*EntityState
	for _, s := range result.Entities {
		if s.CurrentState == state {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

// EntitiesByRisk returns non-terminal entities ordered by ascending total
// weight, worst first. limit <= 0 means no limit.
func (e *Engine) EntitiesByRisk(ctx context.Context, limit int) ([]*EntityState, error) {
	result, err := e.ReplayAll(ctx, 1)
	if err != nil {
		return nil, err
	}
	var out []*EntityState
	for _, s := range result.Entities {
		if s.IsTerminal {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].totalMilli != out[j].totalMilli {
			return out[i].totalMilli < out[j].totalMilli
		}
		return out[i].EntityID < out[j].EntityID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// StateDistribution counts entities per current state.
func (e *Engine) StateDistribution(ctx context.Context) (map[string]int, error) {
	result, err := e.ReplayAll(ctx, 1)
	if err != nil {
		return nil, err
	}
	dist := make(map[string]int)
	for _, s := range result.Entities {
		dist[s.CurrentState]++
	}
	return dist, nil
}
