package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/infrastructure/repository/entity"
	"archie-core-sync-layer/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var activeStates = bson.A{string(domain.JobQueued), string(domain.JobRunning)}

// MongoJobRepository implements JobRepository using MongoDB
type MongoJobRepository struct {
	collection *mongo.Collection
}

var _ ports.JobRepository = (*MongoJobRepository)(nil)

// Create inserts a job. The partial unique index makes a second active job
// for the same connection fail with ErrAlreadyRunning.
func (r *MongoJobRepository) Create(ctx context.Context, job *domain.SyncJob) error {
	_, err := r.collection.InsertOne(ctx, entity.MongoJobDocFromDomain(job))
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrAlreadyRunning
	}
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *MongoJobRepository) Get(ctx context.Context, id string) (*domain.SyncJob, error) {
	return r.findOne(ctx, bson.M{"_id": id}, nil)
}

func (r *MongoJobRepository) FindActive(ctx context.Context, connectionID string) (*domain.SyncJob, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return r.findOne(ctx, bson.M{"connectionId": connectionID, "state": bson.M{"$in": activeStates}}, opts)
}

func (r *MongoJobRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*domain.SyncJob, error) {
	var doc entity.MongoJobDoc
	var err error
	if opts != nil {
		err = r.collection.FindOne(ctx, filter, opts).Decode(&doc)
	} else {
		err = r.collection.FindOne(ctx, filter).Decode(&doc)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return doc.ToDomain(), nil
}

// TransitionState is a compare-and-set on the state field.
func (r *MongoJobRepository) TransitionState(ctx context.Context, id string, from, to domain.JobState, job *domain.SyncJob) (bool, error) {
	update := bson.M{"$set": bson.M{
		"state":       string(to),
		"lastError":   job.LastError,
		"startedAt":   job.StartedAt,
		"finishedAt":  job.FinishedAt,
		"durationMs":  job.Duration.Milliseconds(),
		"heartbeatAt": job.HeartbeatAt,
	}}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id, "state": string(from)}, update)
	if err != nil {
		return false, fmt.Errorf("failed to transition job: %w", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to check job: %w", err)
	}
	if n == 0 {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func (r *MongoJobRepository) SetTotal(ctx context.Context, id string, total, skipped int) error {
	return r.update(ctx, id, bson.M{"$set": bson.M{"counters.total": total, "counters.skipped": skipped}})
}

// IncrementCounters applies delta with $inc so concurrent item workers
// never lose an update.
func (r *MongoJobRepository) IncrementCounters(ctx context.Context, id string, delta domain.JobCounters, heartbeat time.Time) error {
	return r.update(ctx, id, bson.M{
		"$inc": bson.M{
			"counters.completed": delta.Completed,
			"counters.failed":    delta.Failed,
			"counters.skipped":   delta.Skipped,
			"counters.retries":   delta.Retries,
		},
		"$set": bson.M{"heartbeatAt": heartbeat},
	})
}

func (r *MongoJobRepository) Heartbeat(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, bson.M{"$set": bson.M{"heartbeatAt": at}})
}

func (r *MongoJobRepository) RequestCancel(ctx context.Context, id string) error {
	return r.update(ctx, id, bson.M{"$set": bson.M{"cancelRequested": true}})
}

func (r *MongoJobRepository) update(ctx context.Context, id string, update bson.M) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoJobRepository) ListByConnection(ctx context.Context, connectionID string, limit int) ([]*domain.SyncJob, error) {
	return r.find(ctx, bson.M{"connectionId": connectionID}, limit)
}

func (r *MongoJobRepository) ListByState(ctx context.Context, state domain.JobState, limit int) ([]*domain.SyncJob, error) {
	return r.find(ctx, bson.M{"state": string(state)}, limit)
}

func (r *MongoJobRepository) ListStale(ctx context.Context, heartbeatBefore time.Time) ([]*domain.SyncJob, error) {
	return r.find(ctx, bson.M{
		"state":       bson.M{"$in": activeStates},
		"heartbeatAt": bson.M{"$lt": heartbeatBefore},
	}, 0)
}

func (r *MongoJobRepository) ListSince(ctx context.Context, connectionID string, since time.Time) ([]*domain.SyncJob, error) {
	return r.find(ctx, bson.M{"connectionId": connectionID, "createdAt": bson.M{"$gte": since}}, 0)
}

func (r *MongoJobRepository) DeleteByConnection(ctx context.Context, connectionID string) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"connectionId": connectionID}); err != nil {
		return fmt.Errorf("failed to delete jobs: %w", err)
	}
	return nil
}

// find returns matching jobs newest first.
func (r *MongoJobRepository) find(ctx context.Context, filter bson.M, limit int) ([]*domain.SyncJob, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]*domain.SyncJob, 0)
	for cursor.Next(ctx) {
		var doc entity.MongoJobDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode job: %w", err)
		}
		out = append(out, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}
