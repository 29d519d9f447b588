package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const livenessExceeded = "liveness deadline exceeded"

// SchedulerConfig tunes the worker pool and housekeeping.
type SchedulerConfig struct {
	Workers         int
	QueueSize       int
	MaxJobAttempts  int
	JobRetry        RetryPolicy
	LeaseTTL        time.Duration
	LivenessTimeout time.Duration
	ReapSchedule    string
	SyncSchedule    string
	PurgeSchedule   string
	LogRetention    time.Duration
}

// Scheduler turns triggers into sync jobs and runs them on a worker pool.
// At most one job per connection is queued or running at a time.
type Scheduler struct {
	cfg         SchedulerConfig
	connections ports.ConnectionRepository
	installs    ports.InstallationRepository
	jobs        ports.JobRepository
	claims      ports.ClaimStore
	executor    *Executor
	activity    *ActivityLog
	metrics     ports.MetricsRecorder
	events      ports.EventPublisher
	logger      zerolog.Logger
	now         func() time.Time

	queue  chan task
	stopCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	cron   *cron.Cron
	wg     sync.WaitGroup

	mu       sync.Mutex
	pending  map[string]struct{}
	parked   map[string]*run
	timers   map[string]*time.Timer
	started  bool
	stopOnce sync.Once
}

// NewScheduler creates a scheduler. metrics and events may be nil.
func NewScheduler(
	cfg SchedulerConfig,
	connections ports.ConnectionRepository,
	installs ports.InstallationRepository,
	jobs ports.JobRepository,
	claims ports.ClaimStore,
	executor *Executor,
	activity *ActivityLog,
	metrics ports.MetricsRecorder,
	events ports.EventPublisher,
	logger zerolog.Logger,
) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	if cfg.QueueSize < cfg.Workers {
		cfg.QueueSize = cfg.Workers * 16
	}
	if cfg.MaxJobAttempts < 1 {
		cfg.MaxJobAttempts = 3
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 5 * time.Minute
	}
	if cfg.LivenessTimeout <= 0 {
		cfg.LivenessTimeout = 2 * cfg.LeaseTTL
	}
	if cfg.ReapSchedule == "" {
		cfg.ReapSchedule = "@every 1m"
	}
	if cfg.PurgeSchedule == "" {
		cfg.PurgeSchedule = "@daily"
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if events == nil {
		events = nopEvents{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:         cfg,
		connections: connections,
		installs:    installs,
		jobs:        jobs,
		claims:      claims,
		executor:    executor,
		activity:    activity,
		metrics:     metrics,
		events:      events,
		logger:      logger,
		now:         time.Now,
		queue:       make(chan task, cfg.QueueSize),
		stopCh:      make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		cron:        cron.New(),
		pending:     make(map[string]struct{}),
		parked:      make(map[string]*run),
		timers:      make(map[string]*time.Timer),
	}
}

// task is one unit of worker input: a queued job to start, or a parked run
// whose backoff elapsed.
type task struct {
	jobID string
	run   *run
}

func claimKey(connectionID string) string {
	return "sync:connection:" + connectionID
}

func parkKey(jobID string) string {
	return "park:" + jobID
}

// Start launches workers and cron entries and re-dispatches queued jobs
// left in the store by a previous process.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(s.cfg.ReapSchedule, func() {
		if _, err := s.ReapStale(s.ctx); err != nil {
			s.logger.Error().Err(err).Msg("Failed to reap stale jobs")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule reaper: %w", err)
	}
	if s.cfg.SyncSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.SyncSchedule, func() { s.enqueueScheduled(s.ctx) }); err != nil {
			return fmt.Errorf("failed to schedule sync trigger: %w", err)
		}
	}
	if s.cfg.LogRetention > 0 {
		if _, err := s.cron.AddFunc(s.cfg.PurgeSchedule, func() { s.purgeLogs(s.ctx) }); err != nil {
			return fmt.Errorf("failed to schedule log purge: %w", err)
		}
	}

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	queued, err := s.jobs.ListByState(ctx, domain.JobQueued, 0)
	if err != nil {
		return fmt.Errorf("failed to list queued jobs: %w", err)
	}
	for i := len(queued) - 1; i >= 0; i-- {
		s.dispatch(queued[i].ID)
	}

	s.cron.Start()
	s.logger.Info().
		Int("workers", s.cfg.Workers).
		Int("recovered", len(queued)).
		Str("syncSchedule", s.cfg.SyncSchedule).
		Msg("Scheduler started")
	return nil
}

// Stop halts cron, pending retries and workers. Running jobs get until ctx
// is done to finish; after that they are interrupted and left for the
// reaper of the next process, as are parked jobs.
func (s *Scheduler) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		cronCtx := s.cron.Stop()
		close(s.stopCh)

		s.mu.Lock()
		for id, t := range s.timers {
			t.Stop()
			delete(s.timers, id)
		}
		parked := len(s.parked)
		s.mu.Unlock()
		if parked > 0 {
			s.logger.Warn().Int("parked", parked).Msg("Leaving parked jobs to the reaper")
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn().Msg("Interrupting running jobs")
			s.cancel()
			<-done
		}
		s.cancel()
		<-cronCtx.Done()
		s.logger.Info().Msg("Scheduler stopped")
	})
}

// Enqueue creates a queued job for a connection owned by shop. An empty
// shop skips the ownership check.
func (s *Scheduler) Enqueue(ctx context.Context, shop, connectionID string, jobType domain.JobType) (*domain.SyncJob, error) {
	if !jobType.Valid() {
		return nil, domain.NewValidationError("type", "must be full_sync, incremental or preview")
	}
	conn, err := loadOwnedConnection(ctx, s.connections, shop, connectionID)
	if err != nil {
		return nil, err
	}
	job, err := s.enqueue(ctx, conn, &domain.SyncJob{Type: jobType, Attempt: 1})
	if err != nil {
		s.recordRefusal(ctx, conn.ID, jobType, err)
		return nil, err
	}
	return job, nil
}

// recordRefusal logs a failed enqueue on the connection before it reaches
// the caller. A busy or paused connection is a warning; anything else is an
// error and counts against health.
func (s *Scheduler) recordRefusal(ctx context.Context, connectionID string, jobType domain.JobType, err error) {
	code := domain.CodeOf(err)
	if code == domain.CodeAlreadyRunning || code == domain.CodePaused {
		s.activity.Warn(ctx, connectionID, "", code, "", fmt.Sprintf("%s not enqueued: %v", jobType, err))
		return
	}
	s.activity.Error(ctx, connectionID, "", "", fmt.Errorf("%s not enqueued: %w", jobType, err))
}

// EnqueueForShop enqueues jobType for every active connection of shop and
// returns how many jobs were created. Connections already busy are skipped.
func (s *Scheduler) EnqueueForShop(ctx context.Context, shop string, jobType domain.JobType) (int, error) {
	conns, err := s.connections.ListByInstallation(ctx, shop)
	if err != nil {
		return 0, fmt.Errorf("failed to list connections: %w", err)
	}
	n := 0
	for _, conn := range conns {
		if conn.Status != domain.ConnectionActive {
			continue
		}
		if _, err := s.enqueue(ctx, conn, &domain.SyncJob{Type: jobType, Attempt: 1}); err != nil {
			if errors.Is(err, domain.ErrAlreadyRunning) {
				s.logger.Debug().Str("connectionId", conn.ID).Msg("Sync already running; trigger skipped")
				continue
			}
			s.recordRefusal(ctx, conn.ID, jobType, err)
			continue
		}
		n++
	}
	return n, nil
}

// enqueue enforces single-flight and stores the job. proto carries the
// type, attempt and lineage of the new job.
func (s *Scheduler) enqueue(ctx context.Context, conn *domain.Connection, proto *domain.SyncJob) (*domain.SyncJob, error) {
	if err := conn.Runnable(); err != nil {
		return nil, err
	}
	inst, err := s.installs.Get(ctx, conn.InstallationShop)
	if err != nil {
		return nil, fmt.Errorf("failed to get installation: %w", err)
	}
	if inst.NeedsReinstall() {
		return nil, domain.ErrNeedsReinstall
	}

	jobID := uuid.NewString()
	key := claimKey(conn.ID)
	ok, err := s.claims.Acquire(ctx, key, jobID, s.cfg.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire claim: %w", err)
	}
	if !ok {
		active, err := s.jobs.FindActive(ctx, conn.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to find active job: %w", err)
		}
		if active == nil || !s.isStale(active) {
			if active == nil {
				holder, _ := s.claims.Holder(ctx, key)
				s.logger.Debug().Str("connectionId", conn.ID).Str("holder", holder).Msg("Claim held without an active job")
			}
			return nil, domain.ErrAlreadyRunning
		}
		s.reap(ctx, active, false)
		if ok, err = s.claims.Acquire(ctx, key, jobID, s.cfg.LeaseTTL); err != nil {
			return nil, fmt.Errorf("failed to acquire claim: %w", err)
		}
		if !ok {
			return nil, domain.ErrAlreadyRunning
		}
	}

	// The durable record wins over an expired lease.
	active, err := s.jobs.FindActive(ctx, conn.ID)
	if err != nil {
		s.release(ctx, conn.ID, jobID)
		return nil, fmt.Errorf("failed to find active job: %w", err)
	}
	if active != nil {
		if !s.isStale(active) {
			s.release(ctx, conn.ID, jobID)
			return nil, domain.ErrAlreadyRunning
		}
		s.reap(ctx, active, false)
	}

	now := s.now()
	job := &domain.SyncJob{
		ID:            jobID,
		ConnectionID:  conn.ID,
		Type:          proto.Type,
		State:         domain.JobQueued,
		Attempt:       proto.Attempt,
		RecoveredFrom: proto.RecoveredFrom,
		RetryOf:       proto.RetryOf,
		CreatedAt:     now,
		HeartbeatAt:   now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.release(ctx, conn.ID, jobID)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info().
		Str("jobId", job.ID).
		Str("connectionId", conn.ID).
		Str("type", string(job.Type)).
		Int("attempt", job.Attempt).
		Msg("Job queued")
	s.events.Publish(&ports.JobEvent{ConnectionID: conn.ID, JobID: job.ID, State: domain.JobQueued, At: now})
	s.dispatch(job.ID)
	return job, nil
}

// isStale reports whether an active job may be reclaimed. Jobs still waiting
// in this process's queue or parked here are never stale.
func (s *Scheduler) isStale(job *domain.SyncJob) bool {
	if !job.State.Active() || !job.HeartbeatAt.Before(s.now().Add(-s.cfg.LivenessTimeout)) {
		return false
	}
	s.mu.Lock()
	_, waiting := s.pending[job.ID]
	_, parked := s.parked[job.ID]
	s.mu.Unlock()
	return !waiting && !parked
}

func (s *Scheduler) dispatch(jobID string) {
	s.mu.Lock()
	s.pending[jobID] = struct{}{}
	s.mu.Unlock()
	s.send(task{jobID: jobID})
}

func (s *Scheduler) send(t task) {
	select {
	case s.queue <- t:
	default:
		go func() {
			select {
			case s.queue <- t:
			case <-s.stopCh:
			}
		}()
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case t := <-s.queue:
			if t.run != nil {
				s.advance(t.run)
				continue
			}
			s.process(t.jobID)
		}
	}
}

// process starts a queued job with a conditional transition so it runs on
// exactly one worker.
func (s *Scheduler) process(jobID string) {
	ctx := s.ctx
	defer func() {
		s.mu.Lock()
		delete(s.pending, jobID)
		s.mu.Unlock()
	}()

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("jobId", jobID).Msg("Failed to load job")
		return
	}
	if job == nil || job.State != domain.JobQueued {
		return
	}
	log := s.logger.With().Str("jobId", job.ID).Str("connectionId", job.ConnectionID).Logger()

	key := claimKey(job.ConnectionID)
	held, err := s.claims.Refresh(ctx, key, job.ID, s.cfg.LeaseTTL)
	if err == nil && !held {
		held, err = s.claims.Acquire(ctx, key, job.ID, s.cfg.LeaseTTL)
	}
	if err != nil || !held {
		log.Warn().Err(err).Msg("Job lost its claim before starting")
		s.failQueued(ctx, job, "claim lost before start")
		return
	}

	if err := job.Transition(domain.JobRunning, s.now()); err != nil {
		log.Error().Err(err).Msg("Failed to start job")
		return
	}
	ok, err := s.jobs.TransitionState(ctx, job.ID, domain.JobQueued, domain.JobRunning, job)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start job")
		return
	}
	if !ok {
		return
	}

	s.metrics.ActiveJobs(1)
	s.events.Publish(&ports.JobEvent{ConnectionID: job.ConnectionID, JobID: job.ID, State: domain.JobRunning, At: s.now()})
	log.Info().Str("type", string(job.Type)).Int("attempt", job.Attempt).Msg("Job started")

	r, finished, err := s.executor.begin(ctx, job)
	if r == nil {
		s.settle(finished, err)
		return
	}
	s.advance(r)
}

// advance runs r until it finishes or parks on a backoff. A parked run
// holds no worker; a timer puts it back on the queue once eligible.
func (s *Scheduler) advance(r *run) {
	next, finished, err := s.executor.step(s.ctx, r)
	if finished != nil {
		s.settle(finished, err)
		return
	}

	id := r.job.ID
	s.mu.Lock()
	s.parked[id] = r
	s.mu.Unlock()
	s.logger.Debug().
		Str("jobId", id).
		Str("connectionId", r.job.ConnectionID).
		Time("until", next).
		Msg("Job parked on backoff")
	s.after(parkKey(id), time.Until(next), func() { s.wake(id) })
}

// wake re-queues a parked run at once.
func (s *Scheduler) wake(jobID string) {
	s.mu.Lock()
	r, ok := s.parked[jobID]
	delete(s.parked, jobID)
	if t, armed := s.timers[parkKey(jobID)]; armed {
		t.Stop()
		delete(s.timers, parkKey(jobID))
	}
	s.mu.Unlock()
	if ok {
		s.send(task{run: r})
	}
}

func (s *Scheduler) settle(job *domain.SyncJob, cause error) {
	s.metrics.ActiveJobs(-1)
	s.afterJob(job, cause)
}

// afterJob releases the claim and schedules a retry or dead-letters the job.
func (s *Scheduler) afterJob(job *domain.SyncJob, cause error) {
	ctx := s.ctx
	if job.State == domain.JobRunning {
		// Interrupted or taken over; the lease or the reaper settles it.
		return
	}
	s.release(ctx, job.ConnectionID, job.ID)
	if job.State != domain.JobFailed || !s.retryable(cause) {
		return
	}
	if job.Attempt >= s.cfg.MaxJobAttempts {
		s.bury(ctx, job)
		return
	}

	delay := s.cfg.JobRetry.Delay(job.Attempt, domain.RetryAfterHint(cause))
	s.logger.Info().
		Str("jobId", job.ID).
		Str("connectionId", job.ConnectionID).
		Int("attempt", job.Attempt).
		Dur("delay", delay).
		Msg("Scheduling job retry")
	s.after(job.ID, delay, func() {
		s.retryJob(job)
	})
}

func (s *Scheduler) retryable(cause error) bool {
	switch {
	case cause == nil:
		return true
	case errors.Is(cause, domain.ErrCancelled),
		errors.Is(cause, domain.ErrNeedsReinstall),
		errors.Is(cause, domain.ErrNotFound),
		domain.IsUnauthorized(cause):
		return false
	}
	return true
}

func (s *Scheduler) after(id string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopCh:
		return
	default:
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		fn()
	})
}

func (s *Scheduler) retryJob(prev *domain.SyncJob) {
	ctx := s.ctx
	conn, err := s.connections.Get(ctx, prev.ConnectionID)
	if err != nil || conn == nil {
		s.logger.Warn().Err(err).Str("jobId", prev.ID).Msg("Retry dropped: connection unavailable")
		return
	}
	_, err = s.enqueue(ctx, conn, &domain.SyncJob{
		Type:          prev.Type,
		Attempt:       prev.Attempt + 1,
		RetryOf:       prev.ID,
		RecoveredFrom: prev.RecoveredFrom,
	})
	if err != nil {
		s.logger.Info().Err(err).Str("jobId", prev.ID).Str("connectionId", prev.ConnectionID).Msg("Retry not enqueued")
		s.recordRefusal(ctx, prev.ConnectionID, prev.Type, err)
	}
}

// bury moves a failed job that exhausted its attempts to dead.
func (s *Scheduler) bury(ctx context.Context, job *domain.SyncJob) {
	from := job.State
	if err := job.Transition(domain.JobDead, s.now()); err != nil {
		s.logger.Error().Err(err).Str("jobId", job.ID).Msg("Failed to bury job")
		return
	}
	ok, err := s.jobs.TransitionState(ctx, job.ID, from, domain.JobDead, job)
	if err != nil || !ok {
		s.logger.Error().Err(err).Str("jobId", job.ID).Msg("Failed to bury job")
		return
	}
	s.metrics.JobFinished(job.Type, domain.JobDead, job.Duration)
	s.activity.Record(ctx, domain.LogEntry{
		ConnectionID: job.ConnectionID,
		JobID:        job.ID,
		Severity:     domain.SeverityError,
		Code:         domain.CodeJobDead,
		Message:      fmt.Sprintf("job dead after %d attempts: %s", job.Attempt, job.LastError),
	})
	s.events.Publish(&ports.JobEvent{
		ConnectionID: job.ConnectionID,
		JobID:        job.ID,
		State:        domain.JobDead,
		Counters:     job.Counters,
		Message:      job.LastError,
		At:           s.now(),
	})
}

// ReapStale force-fails active jobs whose heartbeat is past the liveness
// deadline and returns how many were reclaimed.
func (s *Scheduler) ReapStale(ctx context.Context) (int, error) {
	stale, err := s.jobs.ListStale(ctx, s.now().Add(-s.cfg.LivenessTimeout))
	if err != nil {
		return 0, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	n := 0
	for _, job := range stale {
		if !s.isStale(job) {
			continue
		}
		if s.reap(ctx, job, true) {
			n++
		}
	}
	return n, nil
}

// reap fails a stale job and releases its claim. With withRecovery set, a job
// that is not itself a recovery gets one more attempt.
func (s *Scheduler) reap(ctx context.Context, job *domain.SyncJob, withRecovery bool) bool {
	from := job.State
	job.LastError = livenessExceeded
	if err := job.Transition(domain.JobFailed, s.now()); err != nil {
		return false
	}
	ok, err := s.jobs.TransitionState(ctx, job.ID, from, domain.JobFailed, job)
	if err != nil || !ok {
		return false
	}
	s.release(ctx, job.ConnectionID, job.ID)
	s.metrics.JobFinished(job.Type, domain.JobFailed, job.Duration)
	s.activity.Record(ctx, domain.LogEntry{
		ConnectionID: job.ConnectionID,
		JobID:        job.ID,
		Severity:     domain.SeverityError,
		Code:         domain.CodeInternal,
		Message:      "job reclaimed: " + livenessExceeded,
	})

	if !withRecovery {
		return true
	}
	if job.RecoveredFrom != "" || job.Attempt >= s.cfg.MaxJobAttempts {
		s.bury(ctx, job)
		return true
	}
	conn, err := s.connections.Get(ctx, job.ConnectionID)
	if err != nil || conn == nil {
		return true
	}
	if _, err := s.enqueue(ctx, conn, &domain.SyncJob{
		Type:          job.Type,
		Attempt:       job.Attempt + 1,
		RecoveredFrom: job.ID,
	}); err != nil {
		s.logger.Info().Err(err).Str("jobId", job.ID).Msg("Recovery job not enqueued")
	}
	return true
}

// CancelActive asks the connection's active job to stop. A queued job is
// failed at once; a running job stops at its next item boundary, and a
// parked one is woken so it stops without waiting out its backoff.
func (s *Scheduler) CancelActive(ctx context.Context, connectionID string) error {
	active, err := s.jobs.FindActive(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("failed to find active job: %w", err)
	}
	if active == nil {
		return nil
	}
	if active.State == domain.JobQueued && s.failQueued(ctx, active, domain.ErrCancelled.Error()) {
		return nil
	}
	if err := s.jobs.RequestCancel(ctx, active.ID); err != nil {
		return fmt.Errorf("failed to request cancellation: %w", err)
	}
	s.logger.Info().Str("jobId", active.ID).Str("connectionId", connectionID).Msg("Cancellation requested")
	s.wake(active.ID)
	return nil
}

func (s *Scheduler) failQueued(ctx context.Context, job *domain.SyncJob, reason string) bool {
	job.LastError = reason
	if err := job.Transition(domain.JobFailed, s.now()); err != nil {
		return false
	}
	ok, err := s.jobs.TransitionState(ctx, job.ID, domain.JobQueued, domain.JobFailed, job)
	if err != nil || !ok {
		return false
	}
	s.release(ctx, job.ConnectionID, job.ID)
	s.activity.Warn(ctx, job.ConnectionID, job.ID, domain.CodeCancelled, "", "queued job stopped: "+reason)
	s.events.Publish(&ports.JobEvent{
		ConnectionID: job.ConnectionID,
		JobID:        job.ID,
		State:        domain.JobFailed,
		Message:      reason,
		At:           s.now(),
	})
	return true
}

func (s *Scheduler) release(ctx context.Context, connectionID, holder string) {
	if err := s.claims.Release(context.WithoutCancel(ctx), claimKey(connectionID), holder); err != nil {
		s.logger.Error().Err(err).Str("connectionId", connectionID).Msg("Failed to release claim")
	}
}

func (s *Scheduler) enqueueScheduled(ctx context.Context) {
	conns, err := s.connections.ListActive(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list active connections")
		return
	}
	n := 0
	for _, conn := range conns {
		if _, err := s.enqueue(ctx, conn, &domain.SyncJob{Type: domain.JobFullSync, Attempt: 1}); err == nil {
			n++
		} else if !errors.Is(err, domain.ErrAlreadyRunning) {
			s.logger.Warn().Err(err).Str("connectionId", conn.ID).Msg("Scheduled sync not enqueued")
		}
	}
	s.logger.Info().Int("enqueued", n).Int("active", len(conns)).Msg("Scheduled sync triggered")
}

func (s *Scheduler) purgeLogs(ctx context.Context) {
	n, err := s.activity.PurgeBefore(ctx, s.now().Add(-s.cfg.LogRetention))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to purge log entries")
		return
	}
	s.logger.Info().Int64("purged", n).Msg("Purged old log entries")
}
