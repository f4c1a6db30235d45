package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ohseho81/autus-sub014/internal/ledger"
	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	table, err := LoadRuleTable("")
	require.NoError(t, err)
	engine, err := NewEngine(table)
	require.NoError(t, err)
	return engine
}

func TestClassifyOutcome(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("known S-tier outcome", func(t *testing.T) {
		c, err := engine.ClassifyOutcome("renewal.failed")
		require.NoError(t, err)
		assert.Equal(t, ledger.TierS, c.Tier)
		assert.Equal(t, -1.0, c.Weight)
		assert.Equal(t, "retention_process", c.Process)
		assert.True(t, c.Notify)
	})

	t.Run("terminal outcome", func(t *testing.T) {
		c, err := engine.ClassifyOutcome("member.withdrawn")
		require.NoError(t, err)
		assert.Equal(t, ledger.TierTerminal, c.Tier)
	})

	t.Run("unknown type is a config error", func(t *testing.T) {
		_, err := engine.ClassifyOutcome("totally.made_up")
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeConfig))
	})
}

func TestShouldTriggerProcess(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("S tier with process triggers", func(t *testing.T) {
		d, err := engine.ShouldTriggerProcess("renewal.failed")
		require.NoError(t, err)
		assert.True(t, d.Trigger)
		assert.Equal(t, "retention_process", d.ProcessName)
	})

	t.Run("A tier only records", func(t *testing.T) {
		d, err := engine.ShouldTriggerProcess("renewal.completed")
		require.NoError(t, err)
		assert.False(t, d.Trigger)
		assert.Empty(t, d.ProcessName)
	})

	t.Run("TERMINAL never triggers", func(t *testing.T) {
		d, err := engine.ShouldTriggerProcess("member.withdrawn")
		require.NoError(t, err)
		assert.False(t, d.Trigger)
	})
}

func TestEvaluateShadow(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("reject wins over approve", func(t *testing.T) {
		d, err := engine.EvaluateShadow("schedule.change_requested", map[string]bool{
			"available_slot_exists": true,
			"target_slot_full":      true,
		})
		require.NoError(t, err)
		assert.Equal(t, ShadowAutoReject, d.Decision)
		assert.Equal(t, "target_slot_full", d.Reason)
		assert.Equal(t, "desk_manager", d.Authority)
	})

	t.Run("approve condition alone approves", func(t *testing.T) {
		d, err := engine.EvaluateShadow("schedule.change_requested", map[string]bool{
			"available_slot_exists": true,
		})
		require.NoError(t, err)
		assert.Equal(t, ShadowAutoApprove, d.Decision)
	})

	t.Run("no conditions means pending review", func(t *testing.T) {
		d, err := engine.EvaluateShadow("schedule.change_requested", nil)
		require.NoError(t, err)
		assert.Equal(t, ShadowPending, d.Decision)
		assert.Equal(t, 0.92, d.ApprovalRate)
	})

	t.Run("unknown category is a config error", func(t *testing.T) {
		_, err := engine.EvaluateShadow("unknown.category", nil)
		assert.True(t, dErrors.Is(err, dErrors.CodeConfig))
	})
}

func TestCheckThreshold(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("breached at exact value", func(t *testing.T) {
		breached, err := engine.CheckThreshold("consecutive_absences", 3)
		require.NoError(t, err)
		assert.True(t, breached)
	})

	t.Run("below threshold", func(t *testing.T) {
		breached, err := engine.CheckThreshold("consecutive_absences", 2)
		require.NoError(t, err)
		assert.False(t, breached)
	})

	t.Run("unknown key is a config error", func(t *testing.T) {
		_, err := engine.CheckThreshold("no_such_key", 1)
		assert.True(t, dErrors.Is(err, dErrors.CodeConfig))
	})
}

func TestVelocityStatus(t *testing.T) {
	engine := newTestEngine(t)

	cases := []struct {
		vv     float64
		status string
	}{
		{0.5, "green"},
		{0.8, "green"},
		{0.49, "yellow"},
		{0.0, "yellow"},
		{-0.2, "yellow"},
		{-0.21, "red"},
		{-1.5, "red"},
	}
	for _, tc := range cases {
		band := engine.VelocityStatus(tc.vv)
		assert.Equal(t, tc.status, band.Status, "vv=%v", tc.vv)
		assert.NotEmpty(t, band.Action)
	}
}

func TestCLFLevel(t *testing.T) {
	engine := newTestEngine(t)

	assert.Equal(t, "low", engine.CLFLevel(0).Level)
	assert.Equal(t, "low", engine.CLFLevel(14.99).Level)
	assert.Equal(t, "medium", engine.CLFLevel(15).Level)
	assert.Equal(t, "medium", engine.CLFLevel(39.99).Level)
	assert.Equal(t, "high", engine.CLFLevel(40).Level)
	assert.Equal(t, "high", engine.CLFLevel(100).Level)
}

func TestLoopLookups(t *testing.T) {
	engine := newTestEngine(t)

	opened := engine.LoopsOpenedBy("renewal.failed")
	require.Len(t, opened, 1)
	assert.Equal(t, "retention", opened[0].ID)

	closed := engine.LoopsClosedBy("payment.settled")
	require.Len(t, closed, 1)
	assert.Equal(t, "collection", closed[0].ID)
	assert.Zero(t, closed[0].TimeoutDays)

	assert.Empty(t, engine.LoopsOpenedBy("attendance.confirmed"))
}

func TestNewEngineRejectsBadTables(t *testing.T) {
	t.Run("nil table", func(t *testing.T) {
		_, err := NewEngine(nil)
		assert.True(t, dErrors.Is(err, dErrors.CodeConfig))
	})

	t.Run("unknown tier", func(t *testing.T) {
		table := &RuleTable{Outcomes: map[string]OutcomeRule{
			"x": {Tier: "B", Weight: 1},
		}}
		_, err := NewEngine(table)
		assert.True(t, dErrors.Is(err, dErrors.CodeConfig))
	})

	t.Run("dangling process reference", func(t *testing.T) {
		table := &RuleTable{Outcomes: map[string]OutcomeRule{
			"x": {Tier: "S", Weight: 1, Process: "missing"},
		}}
		_, err := NewEngine(table)
		assert.True(t, dErrors.Is(err, dErrors.CodeConfig))
	})
}
