package outbox

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ohseho81/autus-sub014/internal/gateway"
)

type fakeSink struct {
	expected []string
}

func (f *fakeSink) Expect(_ context.Context, m *Message, _ time.Time) error {
	f.expected = append(f.expected, m.ID)
	return nil
}

type workerFixture struct {
	worker *Worker
	store  *InMemoryStore
	gw     *gateway.Stub
	sink   *fakeSink
	clock  *time.Time
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	templates := NewInMemoryTemplateStore()
	templates.Put(Template{ID: "billing-notice", Code: "BILL-01", Body: "hello #{name}", Active: true})

	f := &workerFixture{
		store: NewInMemoryStore(),
		gw:    gateway.NewStub(),
		sink:  &fakeSink{},
		clock: &now,
	}
	worker, err := NewWorker(f.store, templates, f.gw, nil, slog.Default(),
		WorkerConfig{BatchSize: 10, MaxRetries: 3, BackoffBase: time.Second, RatePerSec: 1000},
		WithConfirmationSink(f.sink),
		WithClock(func() time.Time { return *f.clock }),
	)
	require.NoError(t, err)
	f.worker = worker
	return f
}

func (f *workerFixture) enqueue(t *testing.T, id string, mutate func(*Message)) {
	t.Helper()
	m := &Message{
		ID:             id,
		TenantID:       "tenant-1",
		RecipientID:    "parent-1",
		Phone:          "01012345678",
		TemplateID:     "billing-notice",
		Variables:      map[string]string{"name": "민준"},
		Priority:       PriorityNormal,
		IdempotencyKey: "key-" + id,
		Status:         StatusPending,
		CreatedAt:      *f.clock,
	}
	if mutate != nil {
		mutate(m)
	}
	require.NoError(t, f.store.Insert(context.Background(), m))
}

func (f *workerFixture) message(t *testing.T, id string) *Message {
	t.Helper()
	m, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m
}

func TestSuccessfulSendMarksSent(t *testing.T) {
	f := newWorkerFixture(t)
	f.enqueue(t, "m1", nil)

	require.NoError(t, f.worker.Drain(context.Background()))

	m := f.message(t, "m1")
	assert.Equal(t, StatusSent, m.Status)
	require.NotNil(t, m.SentAt)

	sent := f.gw.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "BILL-01", sent[0].TemplateCode)
	assert.Equal(t, "hello 민준", sent[0].RenderedBody)
	assert.Empty(t, f.sink.expected, "unmarked messages must not register confirmations")
}

func TestRequiresConfirmationRegistersSink(t *testing.T) {
	f := newWorkerFixture(t)
	f.enqueue(t, "m1", func(m *Message) { m.RequiresConfirmation = true })

	require.NoError(t, f.worker.Drain(context.Background()))
	assert.Equal(t, []string{"m1"}, f.sink.expected)
}

func TestTransientFailureBacksOffExponentially(t *testing.T) {
	f := newWorkerFixture(t)
	f.enqueue(t, "m1", nil)
	f.gw.FailNext(2, errors.New("gateway timeout"))
	ctx := context.Background()

	// First attempt fails: retry in 1s.
	n, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	m := f.message(t, "m1")
	assert.Equal(t, StatusFailed, m.Status)
	assert.Equal(t, 1, m.RetryCount)
	require.NotNil(t, m.NextRetryAt)
	assert.Equal(t, f.clock.Add(time.Second), *m.NextRetryAt)

	// Not due yet: nothing claimed.
	n, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Second attempt fails: retry in 2s.
	*f.clock = f.clock.Add(time.Second)
	n, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	m = f.message(t, "m1")
	assert.Equal(t, 2, m.RetryCount)
	assert.Equal(t, f.clock.Add(2*time.Second), *m.NextRetryAt)

	// Third attempt succeeds.
	*f.clock = f.clock.Add(2 * time.Second)
	n, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, StatusSent, f.message(t, "m1").Status)
}

func TestThirdFailureDeadLetters(t *testing.T) {
	f := newWorkerFixture(t)
	f.enqueue(t, "m1", nil)
	f.gw.FailNext(3, errors.New("gateway down"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n, err := f.worker.RunOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		*f.clock = f.clock.Add(time.Minute)
	}

	m := f.message(t, "m1")
	assert.Equal(t, StatusDeadLetter, m.Status)
	assert.Equal(t, 3, m.RetryCount)
	assert.Equal(t, "gateway down", m.LastError)

	// Dead-lettered rows are never claimed again.
	n, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.gw.Sent())
}

func TestMissingTemplateDeadLettersImmediately(t *testing.T) {
	f := newWorkerFixture(t)
	f.enqueue(t, "m1", func(m *Message) { m.TemplateID = "no-such-template" })

	require.NoError(t, f.worker.Drain(context.Background()))

	m := f.message(t, "m1")
	assert.Equal(t, StatusDeadLetter, m.Status, "config errors are not retried")
	assert.Empty(t, f.gw.Sent())
}

func TestUnresolvedPlaceholderDeadLettersImmediately(t *testing.T) {
	f := newWorkerFixture(t)
	f.enqueue(t, "m1", func(m *Message) { m.Variables = nil })

	require.NoError(t, f.worker.Drain(context.Background()))
	assert.Equal(t, StatusDeadLetter, f.message(t, "m1").Status)
}

func TestDrainProcessesHigherPriorityFirst(t *testing.T) {
	f := newWorkerFixture(t)
	f.enqueue(t, "normal", nil)
	f.enqueue(t, "safety", func(m *Message) {
		m.Priority = PrioritySafety
		m.Phone = "01099998888"
		m.CreatedAt = f.clock.Add(time.Second)
	})

	require.NoError(t, f.worker.Drain(context.Background()))

	sent := f.gw.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "01099998888", sent[0].Receiver, "safety priority goes out first despite being newer")
	assert.Equal(t, StatusSent, f.message(t, "safety").Status)
	assert.Equal(t, StatusSent, f.message(t, "normal").Status)
}
