package pubsub

import (
	"context"
	"fmt"
	"sync"

	"archie-core-sync-layer/internal/ports"

	"github.com/rs/zerolog"
)

// JobEventChannel represents a subscription channel
type JobEventChannel struct {
	ID     string
	Filter *JobEventFilter
	Events chan *ports.JobEvent
	Done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// JobEventFilter filters job events
type JobEventFilter struct {
	ConnectionIDs []string
}

// JobPubSub fans job progress events out to live subscribers.
type JobPubSub struct {
	mu       sync.RWMutex
	channels map[string]*JobEventChannel
	logger   zerolog.Logger
	buffer   int
	nextID   int64
	idMu     sync.Mutex
}

var _ ports.EventPublisher = (*JobPubSub)(nil)

// NewJobPubSub creates a pub/sub whose subscriber channels hold buffer events.
func NewJobPubSub(logger zerolog.Logger, buffer int) *JobPubSub {
	if buffer <= 0 {
		buffer = 16
	}
	return &JobPubSub{
		channels: make(map[string]*JobEventChannel),
		logger:   logger,
		buffer:   buffer,
	}
}

// Subscribe creates a subscription that lives until ctx is done.
func (ps *JobPubSub) Subscribe(ctx context.Context, filter *JobEventFilter) *JobEventChannel {
	ps.idMu.Lock()
	id := ps.generateID()
	ps.idMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)

	channel := &JobEventChannel{
		ID:     id,
		Filter: filter,
		Events: make(chan *ports.JobEvent, ps.buffer),
		Done:   make(chan struct{}),
		ctx:    subCtx,
		cancel: cancel,
	}

	ps.mu.Lock()
	ps.channels[id] = channel
	ps.mu.Unlock()

	ps.logger.Debug().
		Str("channelId", id).
		Interface("filter", filter).
		Msg("Job event subscription created")

	go func() {
		<-subCtx.Done()
		ps.Unsubscribe(id)
	}()

	return channel
}

// Unsubscribe removes a subscription channel
func (ps *JobPubSub) Unsubscribe(channelID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	channel, exists := ps.channels[channelID]
	if !exists {
		return
	}

	close(channel.Events)
	close(channel.Done)
	channel.cancel()
	delete(ps.channels, channelID)

	ps.logger.Debug().
		Str("channelId", channelID).
		Msg("Job event subscription removed")
}

// Publish never blocks; a subscriber with a full buffer misses the event.
func (ps *JobPubSub) Publish(event *ports.JobEvent) {
	if event == nil {
		return
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	for _, channel := range ps.channels {
		if !matchesFilter(event, channel.Filter) {
			continue
		}
		select {
		case channel.Events <- event:
		case <-channel.ctx.Done():
		default:
			ps.logger.Warn().
				Str("channelId", channel.ID).
				Str("jobId", event.JobID).
				Msg("Channel buffer full, dropping event")
		}
	}
}

func matchesFilter(event *ports.JobEvent, filter *JobEventFilter) bool {
	if filter == nil || len(filter.ConnectionIDs) == 0 {
		return true
	}
	for _, id := range filter.ConnectionIDs {
		if event.ConnectionID == id {
			return true
		}
	}
	return false
}

func (ps *JobPubSub) generateID() string {
	ps.nextID++
	return fmt.Sprintf("channel-%d", ps.nextID)
}

// Subscribers returns the number of open subscriptions.
func (ps *JobPubSub) Subscribers() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.channels)
}
