package outcomes

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ohseho81/autus-sub014/internal/deliverylog"
	"github.com/Ohseho81/autus-sub014/internal/ledger"
	"github.com/Ohseho81/autus-sub014/internal/outbox"
	"github.com/Ohseho81/autus-sub014/internal/policy"
	"github.com/Ohseho81/autus-sub014/internal/replay"
	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
)

type directRecorder struct {
	store *deliverylog.InMemoryStore
}

func (r directRecorder) Record(ctx context.Context, event deliverylog.Event) {
	_ = r.store.Append(ctx, event)
}

type fixture struct {
	service     *Service
	assessor    *Assessor
	ledger      *ledger.InMemoryStore
	outboxStore *outbox.InMemoryStore
	events      *deliverylog.InMemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	table, err := policy.LoadRuleTable("")
	require.NoError(t, err)
	rules, err := policy.NewEngine(table)
	require.NoError(t, err)

	f := &fixture{
		ledger:      ledger.NewInMemoryStore(),
		outboxStore: outbox.NewInMemoryStore(),
		events:      deliverylog.NewInMemoryStore(),
	}
	enqueuer, err := outbox.NewService(f.outboxStore, slog.Default())
	require.NoError(t, err)

	svc, err := NewService(f.ledger, rules, enqueuer, directRecorder{store: f.events}, slog.Default())
	require.NoError(t, err)
	f.service = svc

	replayEngine, err := replay.NewEngine(f.ledger, rules)
	require.NoError(t, err)
	assessor, err := NewAssessor(f.ledger, replayEngine, rules)
	require.NoError(t, err)
	f.assessor = assessor
	return f
}

func ingestRequest(outcomeType string) IngestRequest {
	return IngestRequest{
		EventID:     "evt-1",
		TenantID:    "tenant-1",
		EntityID:    "student-1",
		EntityType:  "student",
		OutcomeType: outcomeType,
		ParentID:    "parent-1",
		Phone:       "01012345678",
		Variables:   map[string]string{"academy": "오트스", "student": "김민준"},
	}
}

func (f *fixture) messageByKey(t *testing.T, key string) *outbox.Message {
	t.Helper()
	m, err := f.outboxStore.FindByIdempotencyKey(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, m, "expected message for key %s", key)
	return m
}

func TestIngestAppendsClassifiedFact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.service.Ingest(ctx, ingestRequest("renewal.failed"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Sequence)
	assert.Equal(t, ledger.TierS, result.Tier)
	assert.InDelta(t, -1.0, result.Weight, 1e-9)

	facts, err := f.ledger.FactsByEntity(ctx, "student-1")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "renewal.failed", facts[0].OutcomeType)
}

func TestHighUrgencyOutcomeEnqueuesConfirmableNotification(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Ingest(context.Background(), ingestRequest("renewal.failed"))
	require.NoError(t, err)
	require.NotEmpty(t, result.MessageID)

	m := f.messageByKey(t, "outcome-evt-1")
	assert.Equal(t, result.MessageID, m.ID)
	assert.Equal(t, "renewal.failed", m.TemplateID)
	assert.Equal(t, outbox.PriorityHigh, m.Priority)
	assert.True(t, m.RequiresConfirmation, "high-urgency sends must enter the escalation watch")
	assert.Empty(t, m.Variables["missing"])
}

func TestTriggerEnqueuesProcessKickoff(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Ingest(context.Background(), ingestRequest("renewal.failed"))
	require.NoError(t, err)
	assert.Equal(t, "retention_process", result.ProcessName)
	require.NotEmpty(t, result.ProcessMessageID)

	m := f.messageByKey(t, "process-retention_process-evt-1")
	assert.Equal(t, "retention_process", m.TemplateID)
	assert.Equal(t, outbox.PriorityHigh, m.Priority)

	triggered := f.events.ByKind(deliverylog.KindProcessTriggered)
	require.Len(t, triggered, 1)
	assert.Equal(t, "retention_process", triggered[0].Detail)
	assert.Equal(t, "student-1", triggered[0].EntityID)
}

func TestMediumUrgencyIsNormalPriorityWithoutConfirmation(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Ingest(context.Background(), ingestRequest("attendance.absent"))
	require.NoError(t, err)

	m := f.messageByKey(t, "outcome-evt-1")
	assert.Equal(t, outbox.PriorityNormal, m.Priority)
	assert.False(t, m.RequiresConfirmation)
}

func TestCourtesyNoticeIsConsentGated(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Ingest(context.Background(), ingestRequest("consult.requested"))
	require.NoError(t, err)
	require.NotEmpty(t, result.MessageID)
	assert.Empty(t, result.ProcessName, "tier A never triggers automation")

	m := f.messageByKey(t, "outcome-evt-1")
	assert.Equal(t, outbox.PriorityLow, m.Priority)
}

type denyGate struct{}

func (denyGate) Permit(context.Context, string, string) (bool, error) { return false, nil }

func TestCourtesyNoticeSkippedWithoutConsentButFactRemains(t *testing.T) {
	table, err := policy.LoadRuleTable("")
	require.NoError(t, err)
	rules, err := policy.NewEngine(table)
	require.NoError(t, err)

	ledgerStore := ledger.NewInMemoryStore()
	enqueuer, err := outbox.NewService(outbox.NewInMemoryStore(), slog.Default(),
		outbox.WithConsentGate(denyGate{}))
	require.NoError(t, err)
	svc, err := NewService(ledgerStore, rules, enqueuer, nil, slog.Default())
	require.NoError(t, err)

	ctx := context.Background()
	result, err := svc.Ingest(ctx, ingestRequest("consult.requested"))
	require.NoError(t, err, "missing consent is a silent skip")
	assert.Empty(t, result.MessageID)

	facts, err := ledgerStore.FactsByEntity(ctx, "student-1")
	require.NoError(t, err)
	assert.Len(t, facts, 1, "the ledger fact survives the skipped notification")
}

func TestRecordOnlyOutcomeSendsNothing(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Ingest(context.Background(), ingestRequest("payment.settled"))
	require.NoError(t, err)
	assert.Empty(t, result.MessageID)
	assert.Empty(t, result.ProcessName)
}

func TestLoopsOpenAndClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	opened, err := f.service.Ingest(ctx, ingestRequest("payment.overdue"))
	require.NoError(t, err)
	assert.Equal(t, []string{"collection"}, opened.LoopsOpened)

	req := ingestRequest("payment.settled")
	req.EventID = "evt-2"
	closed, err := f.service.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"collection"}, closed.LoopsClosed)

	assert.Len(t, f.events.ByKind(deliverylog.KindLoopOpened), 1)
	assert.Len(t, f.events.ByKind(deliverylog.KindLoopClosed), 1)
}

func TestRetriedIngestDoesNotDuplicateNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Ingest(ctx, ingestRequest("renewal.failed"))
	require.NoError(t, err)
	second, err := f.service.Ingest(ctx, ingestRequest("renewal.failed"))
	require.NoError(t, err)

	assert.Equal(t, first.MessageID, second.MessageID,
		"same event id must resolve to the original message")
	assert.Equal(t, first.ProcessMessageID, second.ProcessMessageID)
}

func TestUnknownOutcomeTypeAppendsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Ingest(ctx, ingestRequest("typo.event"))
	assert.True(t, dErrors.Is(err, dErrors.CodeConfig))

	facts, err := f.ledger.FactsByEntity(ctx, "student-1")
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestIngestValidatesRequest(t *testing.T) {
	f := newFixture(t)
	req := ingestRequest("renewal.failed")
	req.EntityID = ""
	_, err := f.service.Ingest(context.Background(), req)
	assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))
}

func TestAssessBandsVelocityAndFriction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	ingest := func(id, outcomeType string, at time.Time) {
		req := ingestRequest(outcomeType)
		req.EventID = id
		req.OccurredAt = at
		_, err := f.service.Ingest(ctx, req)
		require.NoError(t, err)
	}

	// Old positive history, then a recent slide: three absences in a row.
	ingest("e1", "renewal.completed", base.Add(-90*24*time.Hour))
	ingest("e2", "attendance.absent", base)
	ingest("e3", "attendance.absent", base.Add(24*time.Hour))
	ingest("e4", "attendance.absent", base.Add(48*time.Hour))

	assessment, err := f.assessor.Assess(ctx, "student-1")
	require.NoError(t, err)
	assert.InDelta(t, -1.2, assessment.Velocity, 1e-9, "old events fall outside the velocity window")
	assert.Equal(t, "red", assessment.VelocityBand.Status)
	assert.Equal(t, 3, assessment.ConsecutiveAbsences)
	assert.True(t, assessment.AbsenceAlert, "three consecutive absences breach the threshold")
	assert.InDelta(t, 34, assessment.CLFScore, 1e-9) // 3 tier-S events, 4 total
	assert.Equal(t, "medium", assessment.CLFBand.Level)
}

func TestAssessUnknownEntityIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.assessor.Assess(context.Background(), "nobody")
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
}

func TestShadowEvaluationRejectWins(t *testing.T) {
	f := newFixture(t)

	decision, err := f.service.EvaluateShadow(context.Background(), ShadowRequest{
		Category: "schedule.change_requested",
		TenantID: "tenant-1",
		EntityID: "student-1",
		Context:  map[string]bool{"available_slot_exists": true, "target_slot_full": true},
	})
	require.NoError(t, err)
	assert.Equal(t, policy.ShadowAutoReject, decision.Decision)

	evaluated := f.events.ByKind(deliverylog.KindShadowEvaluated)
	require.Len(t, evaluated, 1)
	assert.Contains(t, evaluated[0].Detail, "auto_reject")
}
