package repository

import (
	"context"
	"fmt"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/infrastructure/repository/entity"
	"archie-core-sync-layer/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoLogRepository implements LogRepository using MongoDB
type MongoLogRepository struct {
	collection *mongo.Collection
}

var _ ports.LogRepository = (*MongoLogRepository)(nil)

func (r *MongoLogRepository) Append(ctx context.Context, entry *domain.LogEntry) error {
	if _, err := r.collection.InsertOne(ctx, entity.MongoLogEntryDocFromDomain(entry)); err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

func (r *MongoLogRepository) ListSince(ctx context.Context, connectionID string, since time.Time) ([]*domain.LogEntry, error) {
	return r.find(ctx, bson.M{"connectionId": connectionID, "createdAt": bson.M{"$gte": since}})
}

func (r *MongoLogRepository) ListAll(ctx context.Context, connectionID string) ([]*domain.LogEntry, error) {
	return r.find(ctx, bson.M{"connectionId": connectionID})
}

func (r *MongoLogRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to purge log entries: %w", err)
	}
	return res.DeletedCount, nil
}

// find returns matching entries oldest first.
func (r *MongoLogRepository) find(ctx context.Context, filter bson.M) ([]*domain.LogEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]*domain.LogEntry, 0)
	for cursor.Next(ctx) {
		var doc entity.MongoLogEntryDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode log entry: %w", err)
		}
		out = append(out, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}
