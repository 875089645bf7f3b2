package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunseo-park/kimpbot/internal/domain"
)

func newSchedulerFixture(t *testing.T) (*Scheduler, *fixture) {
	t.Helper()
	f := newFixture(t)
	notifier, _ := newCaptureNotifier()
	inspector := NewDeadLetterInspector(f.cycles, f.audit, notifier, discardLogger())
	s := NewScheduler(
		"worker-test",
		f.processor,
		f.retry,
		inspector,
		f.audit,
		nil, // archiver
		nil, // locks
		Intervals{},
		0,
		discardLogger(),
	)
	return s, f
}

func TestClaimPassAuditsStaleLeaseReclaim(t *testing.T) {
	s, f := newSchedulerFixture(t)
	ctx := context.Background()

	stale := time.Now().UTC().Add(-time.Hour)
	f.cycles.put(domain.Cycle{
		ID:        "stuck",
		Status:    domain.CycleRebInProgress,
		Symbol:    "xrp",
		StartTime: stale,
		LockedAt:  &stale,
	})

	require.NoError(t, s.claimPass(ctx))

	assert.Contains(t, f.audit.events(), "cycle.lease_reclaimed")
}

func TestClaimPassIdleWritesNoAudit(t *testing.T) {
	s, f := newSchedulerFixture(t)

	require.NoError(t, s.claimPass(context.Background()))

	assert.Empty(t, f.audit.events())
}
