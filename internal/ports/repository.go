package ports

import (
	"context"
	"time"

	"archie-core-sync-layer/internal/domain"
)

// InstallationRepository persists installation records. Get returns nil, nil
// when the shop has never installed.
type InstallationRepository interface {
	Get(ctx context.Context, shop string) (*domain.Installation, error)
	Upsert(ctx context.Context, installation *domain.Installation) error
	MarkStale(ctx context.Context, shop string, at time.Time) error
}

// OAuthStateRepository persists ephemeral handshake states.
type OAuthStateRepository interface {
	Create(ctx context.Context, state *domain.OAuthState) error
	// Consume atomically deletes and returns the state; nil, nil when the
	// state is unknown or already consumed.
	Consume(ctx context.Context, state string) (*domain.OAuthState, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// ConnectionRepository persists connections. Get returns nil, nil when absent.
type ConnectionRepository interface {
	Create(ctx context.Context, conn *domain.Connection) error
	Get(ctx context.Context, id string) (*domain.Connection, error)
	ListByInstallation(ctx context.Context, shop string) ([]*domain.Connection, error)
	ListActive(ctx context.Context) ([]*domain.Connection, error)
	UpdateStatus(ctx context.Context, id string, status domain.ConnectionStatus, reason string) error
	// RecordSync stamps last_synced_at when syncedAt is non-nil and adds
	// syncedItems to the synced item count.
	RecordSync(ctx context.Context, id string, syncedAt *time.Time, syncedItems int) error
	Delete(ctx context.Context, id string) error
}

// JobRepository persists sync jobs and their counters.
type JobRepository interface {
	Create(ctx context.Context, job *domain.SyncJob) error
	Get(ctx context.Context, id string) (*domain.SyncJob, error)
	// FindActive returns the connection's queued or running job, if any.
	FindActive(ctx context.Context, connectionID string) (*domain.SyncJob, error)
	// TransitionState moves a job from one state to another only if it is
	// still in from, writing job's state, error and timestamps. Counters are
	// left untouched. It reports whether the transition happened.
	TransitionState(ctx context.Context, id string, from, to domain.JobState, job *domain.SyncJob) (bool, error)
	SetTotal(ctx context.Context, id string, total, skipped int) error
	IncrementCounters(ctx context.Context, id string, delta domain.JobCounters, heartbeat time.Time) error
	Heartbeat(ctx context.Context, id string, at time.Time) error
	RequestCancel(ctx context.Context, id string) error
	ListByConnection(ctx context.Context, connectionID string, limit int) ([]*domain.SyncJob, error)
	ListByState(ctx context.Context, state domain.JobState, limit int) ([]*domain.SyncJob, error)
	ListStale(ctx context.Context, heartbeatBefore time.Time) ([]*domain.SyncJob, error)
	ListSince(ctx context.Context, connectionID string, since time.Time) ([]*domain.SyncJob, error)
	DeleteByConnection(ctx context.Context, connectionID string) error
}

// LogRepository persists append-only activity entries.
type LogRepository interface {
	Append(ctx context.Context, entry *domain.LogEntry) error
	ListSince(ctx context.Context, connectionID string, since time.Time) ([]*domain.LogEntry, error)
	ListAll(ctx context.Context, connectionID string) ([]*domain.LogEntry, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TemplateRepository persists connection templates.
type TemplateRepository interface {
	Create(ctx context.Context, template *domain.Template) error
	Get(ctx context.Context, id string) (*domain.Template, error)
	ListByInstallation(ctx context.Context, shop string) ([]*domain.Template, error)
	Delete(ctx context.Context, id string) error
}

// InviteRepository persists retailer invites.
type InviteRepository interface {
	Create(ctx context.Context, invite *domain.Invite) error
	Get(ctx context.Context, id string) (*domain.Invite, error)
	ListByInstallation(ctx context.Context, shop string) ([]*domain.Invite, error)
	Update(ctx context.Context, invite *domain.Invite) error
}
