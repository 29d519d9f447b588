package pubsub

import (
	"context"
	"testing"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFiltersByConnection(t *testing.T) {
	ps := NewJobPubSub(zerolog.Nop(), 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mine := ps.Subscribe(ctx, &JobEventFilter{ConnectionIDs: []string{"conn-1"}})
	all := ps.Subscribe(ctx, nil)

	ps.Publish(&ports.JobEvent{ConnectionID: "conn-2", JobID: "j2", State: domain.JobRunning})
	ps.Publish(&ports.JobEvent{ConnectionID: "conn-1", JobID: "j1", State: domain.JobRunning})

	ev := <-mine.Events
	assert.Equal(t, "j1", ev.JobID)
	assert.Len(t, mine.Events, 0)
	assert.Len(t, all.Events, 2)
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	ps := NewJobPubSub(zerolog.Nop(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := ps.Subscribe(ctx, nil)
	ps.Publish(&ports.JobEvent{JobID: "a"})
	ps.Publish(&ports.JobEvent{JobID: "b"})

	assert.Equal(t, "a", (<-sub.Events).JobID)
	assert.Len(t, sub.Events, 0)
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	ps := NewJobPubSub(zerolog.Nop(), 1)
	ctx, cancel := context.WithCancel(context.Background())

	sub := ps.Subscribe(ctx, nil)
	require.Equal(t, 1, ps.Subscribers())
	cancel()

	select {
	case <-sub.Done:
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
	_, open := <-sub.Events
	assert.False(t, open)
	assert.Equal(t, 0, ps.Subscribers())
	ps.Publish(&ports.JobEvent{JobID: "late"})
}
