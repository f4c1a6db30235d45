package safety

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ohseho81/autus-sub014/internal/deliverylog"
	"github.com/Ohseho81/autus-sub014/internal/outbox"
)

var _ outbox.ConfirmationSink = (*Chain)(nil)

type fakeEnqueuer struct {
	requests []outbox.EnqueueRequest
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, req outbox.EnqueueRequest) (string, error) {
	f.requests = append(f.requests, req)
	return "msg-" + req.IdempotencyKey, nil
}

type chainFixture struct {
	chain         *Chain
	confirmations *InMemoryConfirmationStore
	alerts        *InMemoryAlertStore
	directory     *InMemoryDirectory
	enqueuer      *fakeEnqueuer
	events        *deliverylog.InMemoryStore
	clock         *time.Time
}

type directRecorder struct {
	store *deliverylog.InMemoryStore
}

func (r directRecorder) Record(ctx context.Context, event deliverylog.Event) {
	_ = r.store.Append(ctx, event)
}

func newChainFixture(t *testing.T) *chainFixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := &chainFixture{
		confirmations: NewInMemoryConfirmationStore(),
		alerts:        NewInMemoryAlertStore(),
		directory:     NewInMemoryDirectory(),
		enqueuer:      &fakeEnqueuer{},
		events:        deliverylog.NewInMemoryStore(),
		clock:         &now,
	}
	chain, err := NewChain(f.confirmations, f.alerts, f.directory, f.enqueuer,
		directRecorder{store: f.events}, slog.Default(), ChainConfig{},
		WithChainClock(func() time.Time { return *f.clock }))
	require.NoError(t, err)
	f.chain = chain
	return f
}

func (f *chainFixture) expectMessage(t *testing.T, id string) {
	t.Helper()
	err := f.chain.Expect(context.Background(), &outbox.Message{
		ID:          id,
		TenantID:    "tenant-1",
		RecipientID: "parent-1",
		Phone:       "01012345678",
		TemplateID:  "pickup-alert",
	}, *f.clock)
	require.NoError(t, err)
}

func (f *chainFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func TestScanBeforeReminderThresholdDoesNothing(t *testing.T) {
	f := newChainFixture(t)
	f.expectMessage(t, "m1")
	f.advance(4 * time.Minute)

	require.NoError(t, f.chain.Scan(context.Background()))
	assert.Empty(t, f.enqueuer.requests)
	assert.Empty(t, f.alerts.alerts)
}

func TestReminderAfterFiveMinutes(t *testing.T) {
	f := newChainFixture(t)
	f.expectMessage(t, "m1")
	f.advance(6 * time.Minute)

	require.NoError(t, f.chain.Scan(context.Background()))

	require.Len(t, f.enqueuer.requests, 1)
	req := f.enqueuer.requests[0]
	assert.Equal(t, outbox.PrioritySafety, req.Priority)
	assert.Equal(t, "safety-reminder-m1", req.IdempotencyKey)
	assert.Equal(t, "pickup-alert", req.TemplateID)

	events := f.events.ByKind(deliverylog.KindEscalationReminder)
	assert.Len(t, events, 1)
}

func TestRepeatedScansDoNotRefireSameLevel(t *testing.T) {
	f := newChainFixture(t)
	f.expectMessage(t, "m1")
	f.advance(6 * time.Minute)

	require.NoError(t, f.chain.Scan(context.Background()))
	require.NoError(t, f.chain.Scan(context.Background()))
	f.advance(time.Minute)
	require.NoError(t, f.chain.Scan(context.Background()))

	assert.Len(t, f.enqueuer.requests, 1)
}

func TestCallAlertAfterTenMinutes(t *testing.T) {
	f := newChainFixture(t)
	f.expectMessage(t, "m1")

	f.advance(6 * time.Minute)
	require.NoError(t, f.chain.Scan(context.Background()))
	f.advance(5 * time.Minute)
	require.NoError(t, f.chain.Scan(context.Background()))

	alerts, err := f.alerts.ListByTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, LevelCall, alerts[0].Level)
	assert.Len(t, f.enqueuer.requests, 1, "call level must not re-send the reminder")
}

func TestCriticalPagesEveryDirector(t *testing.T) {
	f := newChainFixture(t)
	f.directory.Add(Operator{ID: "op-1", TenantID: "tenant-1", Role: RoleDirector})
	f.directory.Add(Operator{ID: "op-2", TenantID: "tenant-1", Role: RoleDirector})
	f.directory.Add(Operator{ID: "op-3", TenantID: "tenant-1", Role: "desk"})
	f.expectMessage(t, "m1")

	f.advance(31 * time.Minute)
	require.NoError(t, f.chain.Scan(context.Background()))

	alerts, err := f.alerts.ListByTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	for _, a := range alerts {
		assert.Equal(t, LevelCritical, a.Level)
	}
	assert.Len(t, f.events.ByKind(deliverylog.KindEscalationCritical), 1)
}

func TestLateDiscoveryJumpsToHighestDueLevel(t *testing.T) {
	f := newChainFixture(t)
	f.directory.Add(Operator{ID: "op-1", TenantID: "tenant-1", Role: RoleDirector})
	f.expectMessage(t, "m1")

	// First scan happens 35 minutes after send: straight to critical, no
	// redundant reminder or call alert on the way up.
	f.advance(35 * time.Minute)
	require.NoError(t, f.chain.Scan(context.Background()))

	assert.Empty(t, f.enqueuer.requests)
	alerts, err := f.alerts.ListByTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, LevelCritical, alerts[0].Level)
}

func TestConfirmStopsEscalation(t *testing.T) {
	f := newChainFixture(t)
	f.expectMessage(t, "m1")

	f.advance(3 * time.Minute)
	require.NoError(t, f.chain.Confirm(context.Background(), "m1", *f.clock))

	f.advance(40 * time.Minute)
	require.NoError(t, f.chain.Scan(context.Background()))

	assert.Empty(t, f.enqueuer.requests)
	assert.Empty(t, f.alerts.alerts)
}

func TestEntriesOutsideWindowAgeOut(t *testing.T) {
	f := newChainFixture(t)
	f.expectMessage(t, "m1")

	f.advance(2 * time.Hour)
	require.NoError(t, f.chain.Scan(context.Background()))

	assert.Empty(t, f.enqueuer.requests)
	assert.Empty(t, f.alerts.alerts)
}

func TestLevelForBoundaries(t *testing.T) {
	assert.Equal(t, LevelNone, levelFor(4*time.Minute+59*time.Second))
	assert.Equal(t, LevelReminder, levelFor(5*time.Minute))
	assert.Equal(t, LevelReminder, levelFor(9*time.Minute))
	assert.Equal(t, LevelCall, levelFor(10*time.Minute))
	assert.Equal(t, LevelCritical, levelFor(30*time.Minute))
}
