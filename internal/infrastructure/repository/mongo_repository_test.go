package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"archie-core-sync-layer/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

// testDB connects to MONGODB_TEST_URI; the tests are skipped without it.
func testDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}
	ctx := context.Background()
	client, err := Connect(ctx, uri)
	require.NoError(t, err)
	db := client.Database("sync_test_" + uuid.NewString()[:8])
	require.NoError(t, EnsureIndexes(ctx, db))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

func TestMongoJobSingleFlightAndTransitions(t *testing.T) {
	repos := NewMongoRepositories(testDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	job := &domain.SyncJob{ID: uuid.NewString(), ConnectionID: "c1", Type: domain.JobFullSync, State: domain.JobQueued, CreatedAt: now, HeartbeatAt: now}
	require.NoError(t, repos.Jobs.Create(ctx, job))

	second := *job
	second.ID = uuid.NewString()
	assert.ErrorIs(t, repos.Jobs.Create(ctx, &second), domain.ErrAlreadyRunning)

	require.NoError(t, job.Transition(domain.JobRunning, now))
	ok, err := repos.Jobs.TransitionState(ctx, job.ID, domain.JobQueued, domain.JobRunning, job)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repos.Jobs.TransitionState(ctx, job.ID, domain.JobQueued, domain.JobRunning, job)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repos.Jobs.SetTotal(ctx, job.ID, 10, 2))
	require.NoError(t, repos.Jobs.IncrementCounters(ctx, job.ID, domain.JobCounters{Completed: 3, Failed: 1}, now))
	require.NoError(t, repos.Jobs.IncrementCounters(ctx, job.ID, domain.JobCounters{Completed: 1, Retries: 2}, now))

	got, err := repos.Jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCounters{Total: 10, Completed: 4, Failed: 1, Skipped: 2, Retries: 2}, got.Counters)
	assert.Equal(t, domain.JobRunning, got.State)

	active, err := repos.Jobs.FindActive(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, job.ID, active.ID)

	stale, err := repos.Jobs.ListStale(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	missing, err := repos.Jobs.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMongoOAuthStateConsumedOnce(t *testing.T) {
	repos := NewMongoRepositories(testDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	state := &domain.OAuthState{State: "st-1", Shop: "brand.myshopify.com", CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, repos.OAuthStates.Create(ctx, state))
	assert.ErrorIs(t, repos.OAuthStates.Create(ctx, state), domain.ErrAlreadyExists)

	got, err := repos.OAuthStates.Consume(ctx, "st-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "brand.myshopify.com", got.Shop)

	again, err := repos.OAuthStates.Consume(ctx, "st-1")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestMongoConnectionRecordSync(t *testing.T) {
	repos := NewMongoRepositories(testDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	conn := &domain.Connection{ID: "c1", InstallationShop: "brand.myshopify.com", Name: "Retail", Platform: domain.PlatformWooCommerce, Status: domain.ConnectionActive, CreatedAt: now}
	require.NoError(t, repos.Connections.Create(ctx, conn))
	require.NoError(t, repos.Connections.RecordSync(ctx, "c1", nil, 2))
	require.NoError(t, repos.Connections.RecordSync(ctx, "c1", &now, 3))

	got, err := repos.Connections.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.SyncedItemCount)
	require.NotNil(t, got.LastSyncedAt)
	assert.True(t, now.Equal(*got.LastSyncedAt))

	assert.ErrorIs(t, repos.Connections.UpdateStatus(ctx, "missing", domain.ConnectionPaused, ""), domain.ErrNotFound)
}
