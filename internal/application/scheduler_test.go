package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"archie-core-sync-layer/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueIsSingleFlight(t *testing.T) {
	h := newHarness(t)
	conn := h.connection(domain.SyncRules{})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.scheduler.Enqueue(context.Background(), sourceShop, conn.ID, domain.JobFullSync)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrAlreadyRunning):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 19, rejected)

	jobs, err := h.jobs.ListByConnection(context.Background(), conn.ID, 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestEnqueueRejectsUnrunnableConnections(t *testing.T) {
	h := newHarness(t)
	conn := h.connection(domain.SyncRules{})
	ctx := context.Background()

	_, err := h.scheduler.Enqueue(ctx, sourceShop, conn.ID, domain.JobType("bogus"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.scheduler.Enqueue(ctx, "other.myshopify.com", conn.ID, domain.JobFullSync)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.connSvc.Pause(ctx, sourceShop, conn.ID)
	require.NoError(t, err)
	_, err = h.scheduler.Enqueue(ctx, sourceShop, conn.ID, domain.JobFullSync)
	assert.ErrorIs(t, err, domain.ErrConnectionPaused)

	_, err = h.connSvc.Resume(ctx, sourceShop, conn.ID)
	require.NoError(t, err)
	require.NoError(t, h.installations.MarkStale(ctx, sourceShop, time.Now()))
	_, err = h.scheduler.Enqueue(ctx, sourceShop, conn.ID, domain.JobFullSync)
	assert.ErrorIs(t, err, domain.ErrNeedsReinstall)
}

func TestSchedulerRunsJobToCompletion(t *testing.T) {
	h := newHarness(t)
	conn := h.connection(domain.SyncRules{CreateMissing: true})
	h.source.put(item("A", "1.00", 1))
	h.source.put(item("B", "2.00", 2))
	h.source.put(item("C", "3.00", 3))

	ctx := context.Background()
	require.NoError(t, h.scheduler.Start(ctx))
	defer h.scheduler.Stop(ctx)

	job, err := h.scheduler.Enqueue(ctx, sourceShop, conn.ID, domain.JobFullSync)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := h.jobs.Get(ctx, job.ID)
		return err == nil && stored.State == domain.JobSucceeded
	}, 2*time.Second, 5*time.Millisecond)

	stored, err := h.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Counters.Completed)
	assert.NotNil(t, stored.FinishedAt)

	require.Eventually(t, func() bool {
		holder, err := h.claims.Holder(ctx, claimKey(conn.ID))
		return err == nil && holder == ""
	}, time.Second, 5*time.Millisecond)

	_, err = h.scheduler.Enqueue(ctx, sourceShop, conn.ID, domain.JobIncremental)
	assert.NoError(t, err, "a finished job frees the connection")
}

func TestFailedJobIsRetriedUntilDead(t *testing.T) {
	h := newHarness(t)
	conn := h.connection(domain.SyncRules{})
	listErr := domain.NewConnectorError(domain.KindUpstreamClient, "list", 400, errors.New("bad request"))
	h.source.fail("list", "", listErr, listErr, listErr)

	ctx := context.Background()
	require.NoError(t, h.scheduler.Start(ctx))
	defer h.scheduler.Stop(ctx)

	first, err := h.scheduler.Enqueue(ctx, sourceShop, conn.ID, domain.JobFullSync)
	require.NoError(t, err)

	var jobs []*domain.SyncJob
	require.Eventually(t, func() bool {
		jobs, err = h.jobs.ListByState(ctx, domain.JobDead, 0)
		return err == nil && len(jobs) == 1
	}, 2*time.Second, 5*time.Millisecond)

	dead := jobs[0]
	assert.Equal(t, 2, dead.Attempt)
	assert.Equal(t, first.ID, dead.RetryOf)
	assert.Contains(t, h.logCodes(conn.ID), domain.CodeJobDead)

	stored, err := h.jobs.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, stored.State)
}

func TestReapStaleJobEnqueuesOneRecovery(t *testing.T) {
	h := newHarness(t)
	conn := h.connection(domain.SyncRules{})
	ctx := context.Background()

	stale := h.runningJob(conn, domain.JobFullSync)
	require.NoError(t, h.jobs.Heartbeat(ctx, stale.ID, time.Now().Add(-10*time.Minute)))

	n, err := h.scheduler.ReapStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reaped, err := h.jobs.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, reaped.State)
	assert.Equal(t, livenessExceeded, reaped.LastError)

	recovery, err := h.jobs.FindActive(ctx, conn.ID)
	require.NoError(t, err)
	require.NotNil(t, recovery)
	assert.Equal(t, domain.JobQueued, recovery.State)
	assert.Equal(t, stale.ID, recovery.RecoveredFrom)
	assert.Equal(t, 2, recovery.Attempt)

	holder, err := h.claims.Holder(ctx, claimKey(conn.ID))
	require.NoError(t, err)
	assert.Equal(t, recovery.ID, holder)

	n, err = h.scheduler.ReapStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a queued job waiting for a worker is not stale")
}

func TestReapStaleRecoveryJobIsBuried(t *testing.T) {
	h := newHarness(t)
	conn := h.connection(domain.SyncRules{})
	ctx := context.Background()

	stale := h.runningJob(conn, domain.JobFullSync, func(j *domain.SyncJob) {
		j.RecoveredFrom = "earlier"
	})
	require.NoError(t, h.jobs.Heartbeat(ctx, stale.ID, time.Now().Add(-10*time.Minute)))

	_, err := h.scheduler.ReapStale(ctx)
	require.NoError(t, err)

	reaped, err := h.jobs.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobDead, reaped.State)

	active, err := h.jobs.FindActive(ctx, conn.ID)
	require.NoError(t, err)
	assert.Nil(t, active)
	assert.Contains(t, h.logCodes(conn.ID), domain.CodeJobDead)
}

func TestEnqueueReclaimsStaleRunningJob(t *testing.T) {
	h := newHarness(t)
	conn := h.connection(domain.SyncRules{})
	ctx := context.Background()

	stale := h.runningJob(conn, domain.JobFullSync)
	require.NoError(t, h.jobs.Heartbeat(ctx, stale.ID, time.Now().Add(-10*time.Minute)))

	job, err := h.scheduler.Enqueue(ctx, sourceShop, conn.ID, domain.JobFullSync)
	require.NoError(t, err)
	assert.Equal(t, 1, job.Attempt)

	reaped, err := h.jobs.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, reaped.State)
}

func TestCancelActiveFailsQueuedJob(t *testing.T) {
	h := newHarness(t)
	conn := h.connection(domain.SyncRules{})
	ctx := context.Background()

	job, err := h.scheduler.Enqueue(ctx, sourceShop, conn.ID, domain.JobFullSync)
	require.NoError(t, err)

	require.NoError(t, h.scheduler.CancelActive(ctx, conn.ID))

	stored, err := h.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, stored.State)
	assert.Equal(t, "cancelled", stored.LastError)

	holder, err := h.claims.Holder(ctx, claimKey(conn.ID))
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestCancelActiveFlagsRunningJob(t *testing.T) {
	h := newHarness(t)
	conn := h.connection(domain.SyncRules{})
	ctx := context.Background()

	running := h.runningJob(conn, domain.JobFullSync)
	require.NoError(t, h.scheduler.CancelActive(ctx, conn.ID))

	stored, err := h.jobs.Get(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunning, stored.State)
	assert.True(t, stored.CancelRequested)
}

func TestEnqueueForShopSkipsBusyConnections(t *testing.T) {
	h := newHarness(t)
	conn := h.connection(domain.SyncRules{})
	ctx := context.Background()

	n, err := h.scheduler.EnqueueForShop(ctx, sourceShop, domain.JobIncremental)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = h.scheduler.EnqueueForShop(ctx, sourceShop, domain.JobIncremental)
	require.NoError(t, err)
	assert.Zero(t, n)

	active, err := h.jobs.FindActive(ctx, conn.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, domain.JobIncremental, active.Type)
}

func TestBackoffDoesNotHoldWorkers(t *testing.T) {
	h := newHarness(t)
	h.executor.cfg.ItemRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: 600 * time.Millisecond, MaxDelay: time.Second}
	h.source.put(item("X", "1.00", 1))

	rules := domain.SyncRules{CreateMissing: true}
	a, storeA := h.connectionTo("https://a.example.com", rules)
	b, storeB := h.connectionTo("https://b.example.com", rules)
	c, storeC := h.connectionTo("https://c.example.com", rules)
	storeA.fail("create", "X", rateLimited(600*time.Millisecond))
	storeB.fail("create", "X", rateLimited(600*time.Millisecond))

	ctx := context.Background()
	require.NoError(t, h.scheduler.Start(ctx))
	defer h.scheduler.Stop(ctx)

	jobA, err := h.scheduler.Enqueue(ctx, sourceShop, a.ID, domain.JobFullSync)
	require.NoError(t, err)
	jobB, err := h.scheduler.Enqueue(ctx, sourceShop, b.ID, domain.JobFullSync)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		h.scheduler.mu.Lock()
		defer h.scheduler.mu.Unlock()
		return len(h.scheduler.parked) == 2
	}, time.Second, 2*time.Millisecond)

	// Both workers are free while A and B wait out their backoff.
	jobC, err := h.scheduler.Enqueue(ctx, sourceShop, c.ID, domain.JobFullSync)
	require.NoError(t, err)
	h.waitForState(jobC.ID, domain.JobSucceeded, 300*time.Millisecond)
	_, ok := storeC.get("X")
	assert.True(t, ok)

	for _, id := range []string{jobA.ID, jobB.ID} {
		done := h.waitForState(id, domain.JobSucceeded, 2*time.Second)
		assert.Equal(t, 1, done.Counters.Completed)
		assert.Equal(t, 1, done.Counters.Retries)
	}
	assert.Equal(t, []string{"create:X", "create:X"}, storeA.callLog())
	assert.Equal(t, []string{"create:X", "create:X"}, storeB.callLog())
}

func TestCancelActiveWakesParkedJob(t *testing.T) {
	h := newHarness(t)
	h.executor.cfg.ItemRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Second, MaxDelay: 10 * time.Second}
	h.source.put(item("X", "1.00", 1))
	conn, store := h.connectionTo("https://a.example.com", domain.SyncRules{CreateMissing: true})
	store.fail("create", "X", rateLimited(0))

	ctx := context.Background()
	require.NoError(t, h.scheduler.Start(ctx))
	defer h.scheduler.Stop(ctx)

	job, err := h.scheduler.Enqueue(ctx, sourceShop, conn.ID, domain.JobFullSync)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		h.scheduler.mu.Lock()
		defer h.scheduler.mu.Unlock()
		_, ok := h.scheduler.parked[job.ID]
		return ok
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, h.scheduler.CancelActive(ctx, conn.ID))
	stopped := h.waitForState(job.ID, domain.JobFailed, time.Second)
	assert.Equal(t, "cancelled", stopped.LastError)
	assert.Equal(t, []string{"create:X"}, store.callLog())
}

func TestEnqueueRefusalIsLogged(t *testing.T) {
	h := newHarness(t)
	conn := h.connection(domain.SyncRules{})
	ctx := context.Background()

	_, err := h.scheduler.Enqueue(ctx, sourceShop, conn.ID, domain.JobFullSync)
	require.NoError(t, err)
	_, err = h.scheduler.Enqueue(ctx, sourceShop, conn.ID, domain.JobFullSync)
	require.ErrorIs(t, err, domain.ErrAlreadyRunning)
	require.NoError(t, h.scheduler.CancelActive(ctx, conn.ID))

	require.NoError(t, h.installations.MarkStale(ctx, sourceShop, time.Now()))
	_, err = h.scheduler.Enqueue(ctx, sourceShop, conn.ID, domain.JobFullSync)
	require.ErrorIs(t, err, domain.ErrNeedsReinstall)

	entries, err := h.logs.ListAll(ctx, conn.ID)
	require.NoError(t, err)
	severity := map[domain.Code]domain.Severity{}
	for _, e := range entries {
		if e.Code == domain.CodeAlreadyRunning || e.Code == domain.CodeNeedsReinstall {
			severity[e.Code] = e.Severity
		}
	}
	assert.Equal(t, domain.SeverityWarn, severity[domain.CodeAlreadyRunning])
	assert.Equal(t, domain.SeverityError, severity[domain.CodeNeedsReinstall])

	report, err := newTelemetry(h).GetHealth(ctx, sourceShop, conn.ID, 1)
	require.NoError(t, err)
	assert.NotEqual(t, domain.HealthHealthy, report.Status)
	assert.Contains(t, report.LastError, "not enqueued")
}

func TestEnqueueRefusedWhileClaimHeldWithoutJob(t *testing.T) {
	h := newHarness(t)
	conn := h.connection(domain.SyncRules{})
	ctx := context.Background()

	ok, err := h.claims.Acquire(ctx, claimKey(conn.ID), "finished-elsewhere", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.scheduler.Enqueue(ctx, sourceShop, conn.ID, domain.JobFullSync)
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)

	holder, err := h.claims.Holder(ctx, claimKey(conn.ID))
	require.NoError(t, err)
	assert.Equal(t, "finished-elsewhere", holder)
	assert.Contains(t, h.logCodes(conn.ID), domain.CodeAlreadyRunning)
}
