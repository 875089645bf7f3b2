package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunseo-park/kimpbot/internal/domain"
)

func newRetryFixture(t *testing.T) (*RetryManager, *memCycles, *memAudit, *captureSender) {
	t.Helper()
	trades := newMemTrades()
	cycles := newMemCycles(trades)
	audit := &memAudit{}
	notifier, sender := newCaptureNotifier()
	rm := NewRetryManager(cycles, audit, notifier, 5, 10*time.Minute, discardLogger())
	return rm, cycles, audit, sender
}

func TestBackoffDoublesPerAttempt(t *testing.T) {
	rm, _, _, _ := newRetryFixture(t)

	assert.Equal(t, 10*time.Minute, rm.Backoff(1))
	assert.Equal(t, 20*time.Minute, rm.Backoff(2))
	assert.Equal(t, 40*time.Minute, rm.Backoff(3))
	assert.Equal(t, 80*time.Minute, rm.Backoff(4))

	// Strictly monotonic over the whole retry budget.
	for n := 2; n <= 5; n++ {
		assert.Greater(t, rm.Backoff(n), rm.Backoff(n-1))
	}
}

func TestHandleFailureSchedulesRetryWithBackoff(t *testing.T) {
	rm, cycles, _, sender := newRetryFixture(t)
	ctx := context.Background()

	c, err := cycles.Create(ctx, domain.Cycle{Symbol: "xrp"})
	require.NoError(t, err)
	c.Status = domain.CycleRebInProgress
	cycles.put(c)

	require.NoError(t, rm.HandleFailure(ctx, c, errors.New("withdraw timed out")))

	stored := cycles.get(c.ID)
	assert.Equal(t, domain.CycleAwaitingRetry, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "withdraw timed out", *stored.FailureReason)
	require.NotNil(t, stored.LastRetryAt)
	require.NotNil(t, stored.NextRetryAt)
	assert.WithinDuration(t, stored.LastRetryAt.Add(10*time.Minute), *stored.NextRetryAt, time.Second)
	assert.Nil(t, stored.LockedAt)

	// A scheduled retry is routine; no operator alert.
	assert.Empty(t, sender.sent())
}

func TestHandleFailureDeadLettersAfterMaxRetries(t *testing.T) {
	rm, cycles, audit, sender := newRetryFixture(t)
	ctx := context.Background()

	c, err := cycles.Create(ctx, domain.Cycle{Symbol: "xrp"})
	require.NoError(t, err)
	c.Status = domain.CycleRebInProgress
	cycles.put(c)

	for i := 0; i < 5; i++ {
		stored := cycles.get(c.ID)
		require.NoError(t, rm.HandleFailure(ctx, stored, errors.New("still failing")))
	}

	final := cycles.get(c.ID)
	assert.Equal(t, domain.CycleDeadLetter, final.Status)
	assert.Equal(t, 5, final.RetryCount)
	assert.Nil(t, final.NextRetryAt)
	require.NotNil(t, final.EndTime)

	assert.Contains(t, audit.events(), "cycle.dead_letter")
	require.Len(t, sender.sent(), 1)
	assert.Equal(t, "Cycle dead-lettered", sender.sent()[0])
}

func TestSweepDueRetriesResetsOnlyElapsed(t *testing.T) {
	rm, cycles, _, _ := newRetryFixture(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)
	cycles.put(domain.Cycle{ID: "due", Status: domain.CycleAwaitingRetry, NextRetryAt: &past})
	cycles.put(domain.Cycle{ID: "later", Status: domain.CycleAwaitingRetry, NextRetryAt: &future})

	n, err := rm.SweepDueRetries(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, domain.CycleAwaitingReb, cycles.get("due").Status)
	assert.Nil(t, cycles.get("due").NextRetryAt)
	assert.Equal(t, domain.CycleAwaitingRetry, cycles.get("later").Status)
}

func TestRecoverDeadLetterReenqueues(t *testing.T) {
	rm, cycles, audit, sender := newRetryFixture(t)
	ctx := context.Background()

	reason := "exhausted"
	now := time.Now().UTC()
	cycles.put(domain.Cycle{
		ID:            "parked",
		Status:        domain.CycleDeadLetter,
		RetryCount:    5,
		FailureReason: &reason,
		EndTime:       &now,
	})

	c, err := rm.RecoverDeadLetter(ctx, "parked")
	require.NoError(t, err)
	assert.Equal(t, domain.CycleAwaitingReb, c.Status)
	assert.Zero(t, c.RetryCount)
	assert.Nil(t, c.FailureReason)
	assert.Nil(t, c.NextRetryAt)

	// The cycle is live again; its previous terminal timestamp must not
	// survive the recovery.
	assert.Nil(t, c.EndTime)

	assert.Contains(t, audit.events(), "cycle.recovered")
	require.Len(t, sender.sent(), 1)
	assert.Equal(t, "Cycle recovered", sender.sent()[0])
}

func TestRecoverDeadLetterRejectsNonParkedCycle(t *testing.T) {
	rm, cycles, _, _ := newRetryFixture(t)
	ctx := context.Background()

	cycles.put(domain.Cycle{ID: "live", Status: domain.CycleAwaitingReb})

	_, err := rm.RecoverDeadLetter(ctx, "live")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = rm.RecoverDeadLetter(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInspectorReportsBacklog(t *testing.T) {
	trades := newMemTrades()
	cycles := newMemCycles(trades)
	audit := &memAudit{}
	notifier, sender := newCaptureNotifier()
	inspector := NewDeadLetterInspector(cycles, audit, notifier, discardLogger())
	ctx := context.Background()

	n, err := inspector.Inspect(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, sender.sent())

	cycles.put(domain.Cycle{ID: "p1", Status: domain.CycleDeadLetter, StartTime: time.Now().UTC()})
	cycles.put(domain.Cycle{ID: "p2", Status: domain.CycleDeadLetter, StartTime: time.Now().UTC().Add(-time.Hour)})

	n, err = inspector.Inspect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, audit.events(), "dead_letter.inspected")
	require.Len(t, sender.sent(), 1)
	assert.Equal(t, "Dead-letter backlog", sender.sent()[0])
}
