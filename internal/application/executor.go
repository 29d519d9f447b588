package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"archie-core-sync-layer/internal/application/diff"
	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	errLeaseLost      = errors.New("job lease lost")
	errPartialFailure = errors.New("partial failure threshold reached")
)

// ExecutorConfig tunes job execution.
type ExecutorConfig struct {
	ItemConcurrency     int
	ItemRetry           RetryPolicy
	PartialFailureRatio float64
	LeaseTTL            time.Duration
	HeartbeatInterval   time.Duration
}

// Executor applies diff plans through store connectors.
type Executor struct {
	cfg           ExecutorConfig
	connections   ports.ConnectionRepository
	installations ports.InstallationRepository
	jobs          ports.JobRepository
	claims        ports.ClaimStore
	planner       *Planner
	activity      *ActivityLog
	metrics       ports.MetricsRecorder
	events        ports.EventPublisher
	logger        zerolog.Logger
	now           func() time.Time
}

// NewExecutor creates an executor. metrics and events may be nil.
func NewExecutor(
	cfg ExecutorConfig,
	connections ports.ConnectionRepository,
	installations ports.InstallationRepository,
	jobs ports.JobRepository,
	claims ports.ClaimStore,
	planner *Planner,
	activity *ActivityLog,
	metrics ports.MetricsRecorder,
	events ports.EventPublisher,
	logger zerolog.Logger,
) *Executor {
	if cfg.ItemConcurrency < 1 {
		cfg.ItemConcurrency = 1
	}
	if cfg.PartialFailureRatio <= 0 {
		cfg.PartialFailureRatio = 0.2
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 5 * time.Minute
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = cfg.LeaseTTL / 3
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if events == nil {
		events = nopEvents{}
	}
	return &Executor{
		cfg:           cfg,
		connections:   connections,
		installations: installations,
		jobs:          jobs,
		claims:        claims,
		planner:       planner,
		activity:      activity,
		metrics:       metrics,
		events:        events,
		logger:        logger,
		now:           time.Now,
	}
}

// pendingItem is a plan item not yet settled, with its retry state.
type pendingItem struct {
	item  domain.PlanItem
	retry retryState
}

// run is the in-memory state of a running job. It outlives a parked step so
// the job continues where it stopped.
type run struct {
	job         *domain.SyncJob
	conn        *domain.Connection
	destination ports.StoreConnector
	caps        ports.Capabilities
	listings    []*listing
	pending     []*pendingItem
	planned     bool
	stop        func()

	mu       sync.Mutex
	counters domain.JobCounters
}

func (r *run) add(delta domain.JobCounters) domain.JobCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.Completed += delta.Completed
	r.counters.Failed += delta.Failed
	r.counters.Retries += delta.Retries
	return r.counters
}

// ready splits off the pending items eligible at now. next is the earliest
// eligible time of the rest, zero when nothing is left.
func (r *run) ready(now time.Time) (ready []*pendingItem, next time.Time) {
	waiting := r.pending[:0:0]
	for _, p := range r.pending {
		if p.retry.Eligible(now) {
			ready = append(ready, p)
			continue
		}
		waiting = append(waiting, p)
		if next.IsZero() || p.retry.NextEligible.Before(next) {
			next = p.retry.NextEligible
		}
	}
	r.pending = waiting
	return ready, next
}

// sourceCredentialError marks an Unauthorized raised by the source shop.
type sourceCredentialError struct{ err error }

func (e *sourceCredentialError) Error() string { return "source: " + e.err.Error() }
func (e *sourceCredentialError) Unwrap() error { return e.err }

// Execute runs a job already transitioned to running and returns it in its
// terminal state, waiting out backoffs on the calling goroutine. The
// returned error explains a failed job.
func (e *Executor) Execute(ctx context.Context, job *domain.SyncJob) (*domain.SyncJob, error) {
	r, finished, err := e.begin(ctx, job)
	if r == nil {
		return finished, err
	}
	for {
		next, finished, err := e.step(ctx, r)
		if finished != nil {
			return finished, err
		}
		if err := waitUntil(ctx, next); err != nil {
			return e.end(ctx, r, err)
		}
	}
}

// begin loads the connection and opens its connectors. A nil run means the
// job already finished and the returned job is final.
func (e *Executor) begin(ctx context.Context, job *domain.SyncJob) (*run, *domain.SyncJob, error) {
	conn, err := e.connections.Get(ctx, job.ConnectionID)
	if err != nil {
		finished, err := e.finish(ctx, job, nil, fmt.Errorf("failed to get connection: %w", err))
		return nil, finished, err
	}
	if conn == nil {
		finished, err := e.finish(ctx, job, nil, fmt.Errorf("connection %s: %w", job.ConnectionID, domain.ErrNotFound))
		return nil, finished, err
	}

	r := &run{job: job, conn: conn, stop: e.keepAlive(ctx, job)}
	source, destination, err := e.planner.Open(ctx, conn)
	if err != nil {
		finished, err := e.end(ctx, r, err)
		return nil, finished, err
	}
	r.destination = destination
	r.caps = destination.Capabilities()
	r.listings = e.planner.listings(conn, job.Type, source, destination)
	return r, nil, nil
}

// step advances r until the job finishes or all remaining work waits on a
// backoff. A parked step returns the earliest eligible time and a nil job;
// otherwise the job is final. Liveness is kept while parked.
func (e *Executor) step(ctx context.Context, r *run) (time.Time, *domain.SyncJob, error) {
	stopped := func(err error) (time.Time, *domain.SyncJob, error) {
		finished, err := e.end(ctx, r, err)
		return time.Time{}, finished, err
	}
	if err := e.checkpoint(ctx, r.job); err != nil {
		return stopped(err)
	}

	if !r.planned {
		next, err := e.plan(ctx, r)
		if err != nil {
			return stopped(err)
		}
		if !next.IsZero() {
			return next, nil, nil
		}
		if r.job.Type == domain.JobPreview {
			return stopped(nil)
		}
	}

	for {
		ready, next := r.ready(e.now())
		if len(ready) == 0 {
			if next.IsZero() {
				return stopped(nil)
			}
			return next, nil, nil
		}
		retrying, err := e.apply(ctx, r, ready)
		r.pending = append(r.pending, retrying...)
		if err != nil {
			return stopped(err)
		}
	}
}

// plan drains both listings and computes the diff plan. A non-zero time
// means a listing is waiting on a backoff.
func (e *Executor) plan(ctx context.Context, r *run) (time.Time, error) {
	for _, l := range r.listings {
		next, err := e.planner.advance(ctx, l)
		if err != nil {
			if l.name == "source" && domain.IsUnauthorized(err) {
				return time.Time{}, &sourceCredentialError{err: err}
			}
			return time.Time{}, fmt.Errorf("%s: %w", l.name, err)
		}
		if !next.IsZero() {
			return next, nil
		}
	}

	job, conn := r.job, r.conn
	plan := diff.ComputePlan(r.listings[0].items, r.listings[1].items, conn.Rules)
	r.listings = nil

	skipped := 0
	for _, it := range plan {
		if it.Actionable() {
			r.pending = append(r.pending, &pendingItem{item: it})
			continue
		}
		skipped++
		if it.Reason == domain.ReasonAmbiguousMatch {
			e.activity.Warn(ctx, conn.ID, job.ID, domain.CodeValidation, it.SKU, "skipped: "+it.Reason)
		}
	}
	if err := e.jobs.SetTotal(ctx, job.ID, len(r.pending), skipped); err != nil {
		return time.Time{}, fmt.Errorf("failed to record job total: %w", err)
	}
	job.Counters.Total = len(r.pending)
	job.Counters.Skipped = skipped
	r.planned = true

	summary := domain.Summarize(plan)
	e.activity.Info(ctx, conn.ID, job.ID, fmt.Sprintf("plan computed: %d create, %d update, %d skip", summary.Create, summary.Update, summary.Skip))
	e.logger.Info().
		Str("jobId", job.ID).
		Str("connectionId", conn.ID).
		Int("create", summary.Create).
		Int("update", summary.Update).
		Int("skip", summary.Skip).
		Msg("Plan computed")
	return time.Time{}, nil
}

// end stops liveness upkeep and finalizes the job.
func (e *Executor) end(ctx context.Context, r *run, cause error) (*domain.SyncJob, error) {
	r.stop()
	r.job.Counters.Completed = r.counters.Completed
	r.job.Counters.Failed = r.counters.Failed
	r.job.Counters.Retries = r.counters.Retries
	return e.finish(ctx, r.job, r.conn, cause)
}

// apply attempts items in order, in batches of ItemConcurrency. Lease
// ownership is checked at every batch boundary and cancellation before
// every item. Items that need another attempt are returned.
func (e *Executor) apply(ctx context.Context, r *run, items []*pendingItem) ([]*pendingItem, error) {
	var retrying []*pendingItem
	for start := 0; start < len(items); start += e.cfg.ItemConcurrency {
		if start > 0 {
			if err := e.checkpoint(ctx, r.job); err != nil {
				return append(retrying, items[start:]...), err
			}
		}
		end := start + e.cfg.ItemConcurrency
		if end > len(items) {
			end = len(items)
		}

		batch := items[start:end]
		again := make([]bool, len(batch))
		var g errgroup.Group
		g.SetLimit(e.cfg.ItemConcurrency)
		for i, p := range batch {
			i, p := i, p
			g.Go(func() error {
				retry, err := e.applyItem(ctx, r, p)
				again[i] = retry
				return err
			})
		}
		err := g.Wait()
		for i, p := range batch {
			if again[i] {
				retrying = append(retrying, p)
			}
		}
		if err != nil {
			return retrying, err
		}

		e.events.Publish(&ports.JobEvent{
			ConnectionID: r.job.ConnectionID,
			JobID:        r.job.ID,
			State:        domain.JobRunning,
			Counters:     r.snapshot(),
			At:           e.now(),
		})
	}
	return retrying, nil
}

func (r *run) snapshot() domain.JobCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.counters
	c.Total = r.job.Counters.Total
	c.Skipped = r.job.Counters.Skipped
	return c
}

// checkpoint stops the job when cancellation was requested or the claim
// moved to another holder, and refreshes liveness otherwise.
func (e *Executor) checkpoint(ctx context.Context, job *domain.SyncJob) error {
	if err := e.stopRequested(ctx, job); err != nil {
		return err
	}
	ok, err := e.claims.Refresh(ctx, claimKey(job.ConnectionID), job.ID, e.cfg.LeaseTTL)
	if err != nil {
		return fmt.Errorf("failed to refresh claim: %w", err)
	}
	if !ok {
		return errLeaseLost
	}
	if err := e.jobs.Heartbeat(ctx, job.ID, e.now()); err != nil {
		return fmt.Errorf("failed to heartbeat: %w", err)
	}
	return nil
}

// stopRequested reports cancellation or a job finalized elsewhere.
func (e *Executor) stopRequested(ctx context.Context, job *domain.SyncJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored, err := e.jobs.Get(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to read job: %w", err)
	}
	if stored == nil || stored.State != domain.JobRunning {
		return errLeaseLost
	}
	if stored.CancelRequested {
		return domain.ErrCancelled
	}
	return nil
}

// applyItem makes one attempt at p. It reports whether p needs another
// attempt and returns an error only when the whole job must stop.
func (e *Executor) applyItem(ctx context.Context, r *run, p *pendingItem) (bool, error) {
	if err := e.stopRequested(ctx, r.job); err != nil {
		return true, err
	}
	it := p.item
	err := e.write(ctx, r, it)
	if err != nil && ctx.Err() == nil && !domain.IsUnauthorized(err) {
		if next, ok := e.cfg.ItemRetry.Next(p.retry, err, e.now()); ok {
			p.retry = next
			e.metrics.ItemRetried()
			e.persist(ctx, r, domain.JobCounters{Retries: 1})
			e.logger.Warn().
				Err(err).
				Str("jobId", r.job.ID).
				Str("sku", it.SKU).
				Int("attempt", next.Attempts).
				Time("nextEligible", next.NextEligible).
				Msg("Retrying item")
			return true, nil
		}
	}

	attempts := p.retry.Attempts + 1
	var delta domain.JobCounters
	switch {
	case err == nil:
		delta.Completed = 1
	case domain.IsUnauthorized(err):
		return false, err
	case ctx.Err() != nil:
		return true, ctx.Err()
	default:
		delta.Failed = 1
		e.activity.Error(ctx, r.conn.ID, r.job.ID, it.SKU, fmt.Errorf("%s failed after %d attempts: %w", it.Action, attempts, err))
	}

	e.metrics.ItemApplied(it.Action, err == nil)
	e.persist(ctx, r, delta)
	return false, nil
}

func (e *Executor) persist(ctx context.Context, r *run, delta domain.JobCounters) {
	r.add(delta)
	if err := e.jobs.IncrementCounters(ctx, r.job.ID, delta, e.now()); err != nil {
		e.logger.Error().Err(err).Str("jobId", r.job.ID).Msg("Failed to persist job counters")
	}
}

// write performs the connector calls for one item. "already exists" on
// create and "not found" on update are recovered here.
func (e *Executor) write(ctx context.Context, r *run, it domain.PlanItem) error {
	deltas := it.Deltas
	if it.Action == domain.ActionCreate {
		err := r.destination.CreateItem(ctx, it.Source, e.stripStock(r, deltas))
		if domain.IsAlreadyExists(err) {
			err = r.destination.UpdateItem(ctx, it.SKU, e.stripStock(r, deltas))
		}
		if err != nil {
			return err
		}
		return e.writeStock(ctx, r, it.SKU, deltas)
	}

	update := e.stripStock(r, deltas)
	if !update.Empty() {
		err := r.destination.UpdateItem(ctx, it.SKU, update)
		if domain.IsNotFound(err) {
			if !r.conn.Rules.CreateMissing {
				return err
			}
			deltas = diff.CreationDeltas(it.Source, r.conn.Rules)
			err = r.destination.CreateItem(ctx, it.Source, e.stripStock(r, deltas))
		}
		if err != nil {
			return err
		}
	}
	return e.writeStock(ctx, r, it.SKU, deltas)
}

func (e *Executor) stripStock(r *run, d domain.ItemDeltas) domain.ItemDeltas {
	if r.caps.InventoryViaLevels {
		return d.WithoutStock()
	}
	return d
}

func (e *Executor) writeStock(ctx context.Context, r *run, sku string, d domain.ItemDeltas) error {
	if !r.caps.InventoryViaLevels || d.Stock == nil {
		return nil
	}
	return r.destination.SetInventoryLevel(ctx, r.conn.LocationID, sku, *d.Stock)
}

// keepAlive refreshes heartbeat and claim between checkpoints, including
// while the job is parked on a backoff.
func (e *Executor) keepAlive(ctx context.Context, job *domain.SyncJob) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(e.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := e.claims.Refresh(ctx, claimKey(job.ConnectionID), job.ID, e.cfg.LeaseTTL); err != nil {
					e.logger.Warn().Err(err).Str("jobId", job.ID).Msg("Failed to refresh claim")
				}
				if err := e.jobs.Heartbeat(ctx, job.ID, e.now()); err != nil {
					e.logger.Warn().Err(err).Str("jobId", job.ID).Msg("Failed to heartbeat")
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// finish finalizes counters, connection bookkeeping and the terminal state.
func (e *Executor) finish(ctx context.Context, job *domain.SyncJob, conn *domain.Connection, cause error) (*domain.SyncJob, error) {
	log := e.logger.With().Str("jobId", job.ID).Str("connectionId", job.ConnectionID).Logger()

	if errors.Is(cause, errLeaseLost) {
		log.Warn().Msg("Job lost its lease; leaving state to the new holder")
		return job, cause
	}
	if cause != nil && ctx.Err() != nil && errors.Is(cause, ctx.Err()) {
		// Interrupted by shutdown: the job stays running until reclaimed.
		log.Warn().Err(cause).Msg("Job interrupted")
		return job, cause
	}

	if stored, err := e.jobs.Get(ctx, job.ID); err == nil && stored != nil {
		job.Counters = stored.Counters
	}
	c := job.Counters
	attempted := c.Processed()

	state := domain.JobSucceeded
	switch {
	case errors.Is(cause, domain.ErrCancelled):
		state = domain.JobFailed
		job.LastError = domain.ErrCancelled.Error()
		e.activity.Warn(ctx, job.ConnectionID, job.ID, domain.CodeCancelled, "", "job cancelled")
	case domain.IsUnauthorized(cause) || errors.Is(cause, domain.ErrNeedsReinstall):
		state = domain.JobFailed
		job.LastError = cause.Error()
		e.disable(ctx, job, conn, cause)
	case cause != nil:
		state = domain.JobFailed
		job.LastError = cause.Error()
		e.activity.Error(ctx, job.ConnectionID, job.ID, "", cause)
	case attempted > 0 && float64(c.Failed)/float64(attempted) >= e.cfg.PartialFailureRatio:
		state = domain.JobFailed
		cause = fmt.Errorf("%d of %d items failed: %w", c.Failed, attempted, errPartialFailure)
		job.LastError = cause.Error()
		e.activity.Error(ctx, job.ConnectionID, job.ID, "", cause)
	}

	if conn != nil && job.Type != domain.JobPreview {
		var syncedAt *time.Time
		if state == domain.JobSucceeded && job.StartedAt != nil {
			at := *job.StartedAt
			syncedAt = &at
		}
		if err := e.connections.RecordSync(ctx, conn.ID, syncedAt, c.Completed); err != nil && !domain.IsNotFound(err) {
			log.Error().Err(err).Msg("Failed to record sync on connection")
		}
	}

	if err := job.Transition(state, e.now()); err != nil {
		return job, err
	}
	ok, err := e.jobs.TransitionState(ctx, job.ID, domain.JobRunning, state, job)
	if err != nil {
		return job, fmt.Errorf("failed to finalize job: %w", err)
	}
	if !ok {
		log.Warn().Msg("Job was finalized elsewhere")
		return job, errLeaseLost
	}

	e.metrics.JobFinished(job.Type, state, job.Duration)
	e.events.Publish(&ports.JobEvent{
		ConnectionID: job.ConnectionID,
		JobID:        job.ID,
		State:        state,
		Counters:     c,
		Message:      job.LastError,
		At:           e.now(),
	})
	if state == domain.JobSucceeded {
		e.activity.Info(ctx, job.ConnectionID, job.ID, fmt.Sprintf("job succeeded: %d completed, %d failed, %d skipped", c.Completed, c.Failed, c.Skipped))
	}
	log.Info().
		Str("state", string(state)).
		Int("completed", c.Completed).
		Int("failed", c.Failed).
		Int("retries", c.Retries).
		Dur("duration", job.Duration).
		Msg("Job finished")
	return job, cause
}

// disable marks the connection disabled after a credential failure. A
// source credential rejection also clears the installation credential so
// every connection of the shop waits for re-authorization.
func (e *Executor) disable(ctx context.Context, job *domain.SyncJob, conn *domain.Connection, cause error) {
	e.activity.Record(ctx, domain.LogEntry{
		ConnectionID: job.ConnectionID,
		JobID:        job.ID,
		Severity:     domain.SeverityError,
		Code:         domain.CodeUnauthorized,
		Message:      "credential rejected, reinstall required: " + cause.Error(),
	})
	if conn == nil {
		return
	}
	var sourceErr *sourceCredentialError
	if errors.As(cause, &sourceErr) {
		if err := e.installations.MarkStale(ctx, conn.InstallationShop, e.now()); err != nil {
			e.logger.Error().Err(err).Str("shop", conn.InstallationShop).Msg("Failed to mark installation for reinstall")
		}
	}
	if err := e.connections.UpdateStatus(ctx, conn.ID, domain.ConnectionDisabled, domain.StatusReasonCredentialRejected); err != nil {
		e.logger.Error().Err(err).Str("connectionId", conn.ID).Msg("Failed to disable connection")
	}
}

type nopMetrics struct{}

func (nopMetrics) JobFinished(domain.JobType, domain.JobState, time.Duration) {}
func (nopMetrics) ItemApplied(domain.PlanAction, bool)                        {}
func (nopMetrics) ItemRetried()                                               {}
func (nopMetrics) ActiveJobs(int)                                             {}

type nopEvents struct{}

func (nopEvents) Publish(*ports.JobEvent) {}
