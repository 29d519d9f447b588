package application

import (
	"context"
	"fmt"
	"time"

	"archie-core-sync-layer/internal/application/diff"
	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"

	"github.com/rs/zerolog"
)

// Planner opens connectors for a connection and computes diff plans.
type Planner struct {
	installations ports.InstallationRepository
	connectors    ports.ConnectorFactory
	vault         *CredentialVault
	retry         RetryPolicy
	pageSize      int
	logger        zerolog.Logger
}

// NewPlanner creates a planner.
func NewPlanner(
	installations ports.InstallationRepository,
	connectors ports.ConnectorFactory,
	vault *CredentialVault,
	retry RetryPolicy,
	pageSize int,
	logger zerolog.Logger,
) *Planner {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Planner{
		installations: installations,
		connectors:    connectors,
		vault:         vault,
		retry:         retry,
		pageSize:      pageSize,
		logger:        logger,
	}
}

// Open returns the source and destination connectors of conn.
func (p *Planner) Open(ctx context.Context, conn *domain.Connection) (source, destination ports.StoreConnector, err error) {
	token, err := openInstallationToken(ctx, p.installations, p.vault, conn.InstallationShop)
	if err != nil {
		return nil, nil, err
	}
	source, err = p.connectors.Source(ctx, conn.InstallationShop, token)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open source connector: %w", err)
	}
	creds, err := p.vault.OpenDestination(conn.Destination)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open destination credentials: %w", err)
	}
	destination, err = p.connectors.Destination(ctx, conn, creds)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open destination connector: %w", err)
	}
	return source, destination, nil
}

// listing is a resumable drain of one connector's pages. A retryable
// failure is recorded on it and the next page waits for its eligible time.
type listing struct {
	name      string
	connector ports.StoreConnector
	opts      ports.ListOptions
	limit     int
	cursor    string
	items     []domain.CatalogItem
	truncated bool
	done      bool
	retry     retryState
}

func (p *Planner) newListing(name string, connector ports.StoreConnector, opts ports.ListOptions, limit int) *listing {
	if opts.PageSize <= 0 {
		opts.PageSize = p.pageSize
	}
	if limit > 0 && limit < opts.PageSize {
		opts.PageSize = limit
	}
	return &listing{name: name, connector: connector, opts: opts, limit: limit}
}

// listings returns the source and destination drains for a job.
func (p *Planner) listings(conn *domain.Connection, jobType domain.JobType, source, destination ports.StoreConnector) []*listing {
	opts := ports.ListOptions{}
	if jobType == domain.JobIncremental && conn.LastSyncedAt != nil {
		since := *conn.LastSyncedAt
		opts.UpdatedSince = &since
	}
	return []*listing{
		p.newListing("source", source, opts, 0),
		p.newListing("destination", destination, ports.ListOptions{}, 0),
	}
}

// advance fetches pages until l is drained or a retryable failure defers the
// next page. It returns the time the next page may be fetched, or the zero
// time once l is done.
func (p *Planner) advance(ctx context.Context, l *listing) (time.Time, error) {
	for !l.done {
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}
		if !l.retry.Eligible(time.Now()) {
			return l.retry.NextEligible, nil
		}
		page, err := l.connector.ListItems(ctx, l.cursor, l.opts)
		if err != nil {
			next, ok := p.retry.Next(l.retry, err, time.Now())
			if !ok {
				return time.Time{}, fmt.Errorf("failed to list items: %w", err)
			}
			l.retry = next
			p.logger.Warn().
				Err(err).
				Str("platform", string(l.connector.Platform())).
				Str("side", l.name).
				Int("attempt", next.Attempts).
				Time("nextEligible", next.NextEligible).
				Msg("Retrying item listing")
			continue
		}
		l.retry = retryState{}
		l.collect(page)
	}
	return time.Time{}, nil
}

func (l *listing) collect(page *domain.ItemPage) {
	for _, it := range page.Items {
		if l.limit > 0 && len(l.items) == l.limit {
			l.done, l.truncated = true, true
			return
		}
		l.items = append(l.items, it)
	}
	switch {
	case page.NextCursor == "":
		l.done = true
	case l.limit > 0 && len(l.items) == l.limit:
		l.done, l.truncated = true, true
	default:
		l.cursor = page.NextCursor
	}
}

// Collect drains connector listing pages in order, waiting out backoffs on
// the calling goroutine. A positive limit stops after limit items and
// reports whether more were available.
func (p *Planner) Collect(ctx context.Context, connector ports.StoreConnector, opts ports.ListOptions, limit int) ([]domain.CatalogItem, bool, error) {
	l := p.newListing("", connector, opts, limit)
	for {
		next, err := p.advance(ctx, l)
		if err != nil {
			return nil, false, err
		}
		if next.IsZero() {
			return l.items, l.truncated, nil
		}
		if err := waitUntil(ctx, next); err != nil {
			return nil, false, err
		}
	}
}

// Preview computes a plan over at most limit source items without writing.
func (p *Planner) Preview(ctx context.Context, conn *domain.Connection, limit int) (*domain.Preview, error) {
	source, destination, err := p.Open(ctx, conn)
	if err != nil {
		return nil, err
	}
	src, truncated, err := p.Collect(ctx, source, ports.ListOptions{}, limit)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	dst, _, err := p.Collect(ctx, destination, ports.ListOptions{}, 0)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	plan := diff.ComputePlan(src, dst, conn.Rules)
	return &domain.Preview{
		ConnectionID: conn.ID,
		Sampled:      len(src),
		Truncated:    truncated,
		Summary:      domain.Summarize(plan),
		Items:        plan,
	}, nil
}
