package consent

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	svc, err := NewService(store, slog.Default())
	require.NoError(t, err)
	return svc, store
}

func TestGrantCreatesActiveRecord(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	record, err := svc.Grant(ctx, "parent-1", ConsentMarketing, "v1")
	require.NoError(t, err)
	assert.True(t, record.IsActive)
	assert.Equal(t, "v1", record.ConsentVersion)

	active, err := svc.Check(ctx, "parent-1", ConsentMarketing)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "v1", active.ConsentVersion)
}

func TestRegrantSupersedesPriorRecord(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Grant(ctx, "parent-1", ConsentMarketing, "v1")
	require.NoError(t, err)
	_, err = svc.Grant(ctx, "parent-1", ConsentMarketing, "v2")
	require.NoError(t, err)

	history, err := svc.History(ctx, "parent-1")
	require.NoError(t, err)
	require.Len(t, history, 2)

	var activeCount int
	for _, r := range history {
		if r.IsActive {
			activeCount++
			assert.Equal(t, "v2", r.ConsentVersion)
		} else {
			require.NotNil(t, r.RevokedAt)
		}
	}
	assert.Equal(t, 1, activeCount, "exactly one record may be active per pair")
}

func TestRevokeDeactivates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Grant(ctx, "parent-1", ConsentProgressReport, "v1")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, "parent-1", ConsentProgressReport))

	active, err := svc.Check(ctx, "parent-1", ConsentProgressReport)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestRevokeWithoutActiveIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	assert.NoError(t, svc.Revoke(context.Background(), "parent-1", ConsentMarketing))
}

func TestConsentTypesAreIndependent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Grant(ctx, "parent-1", ConsentMarketing, "v1")
	require.NoError(t, err)
	_, err = svc.Grant(ctx, "parent-1", ConsentBillingNotice, "v1")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, "parent-1", ConsentMarketing))

	billing, err := svc.Check(ctx, "parent-1", ConsentBillingNotice)
	require.NoError(t, err)
	assert.NotNil(t, billing, "revoking marketing must not touch billing consent")
}

func TestPermitGatesOnActiveRecord(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ok, err := svc.Permit(ctx, "parent-1", string(ConsentMarketing))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Grant(ctx, "parent-1", ConsentMarketing, "v1")
	require.NoError(t, err)

	ok, err = svc.Permit(ctx, "parent-1", string(ConsentMarketing))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckReturnsMostRecentActive(t *testing.T) {
	store := NewInMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	svc, err := NewService(store, slog.Default(), WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.Grant(ctx, "parent-1", ConsentSafetyAlert, "v1")
	require.NoError(t, err)
	_, err = svc.Grant(ctx, "parent-1", ConsentSafetyAlert, "v3")
	require.NoError(t, err)

	active, err := svc.Check(ctx, "parent-1", ConsentSafetyAlert)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "v3", active.ConsentVersion)
}
