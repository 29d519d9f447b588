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

// MongoConnectionRepository implements ConnectionRepository using MongoDB
type MongoConnectionRepository struct {
	collection *mongo.Collection
}

var _ ports.ConnectionRepository = (*MongoConnectionRepository)(nil)

// Create inserts a new connection
func (r *MongoConnectionRepository) Create(ctx context.Context, conn *domain.Connection) error {
	_, err := r.collection.InsertOne(ctx, entity.MongoConnectionDocFromDomain(conn))
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}
	return nil
}

// Get retrieves a connection by ID
func (r *MongoConnectionRepository) Get(ctx context.Context, id string) (*domain.Connection, error) {
	var doc entity.MongoConnectionDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return doc.ToDomain(), nil
}

func (r *MongoConnectionRepository) ListByInstallation(ctx context.Context, shop string) ([]*domain.Connection, error) {
	return r.find(ctx, bson.M{"installationShop": shop})
}

func (r *MongoConnectionRepository) ListActive(ctx context.Context) ([]*domain.Connection, error) {
	return r.find(ctx, bson.M{"status": string(domain.ConnectionActive)})
}

func (r *MongoConnectionRepository) find(ctx context.Context, filter bson.M) ([]*domain.Connection, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]*domain.Connection, 0)
	for cursor.Next(ctx) {
		var doc entity.MongoConnectionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode connection: %w", err)
		}
		out = append(out, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}

func (r *MongoConnectionRepository) UpdateStatus(ctx context.Context, id string, status domain.ConnectionStatus, reason string) error {
	update := bson.M{"$set": bson.M{
		"status":       string(status),
		"statusReason": reason,
		"updatedAt":    time.Now(),
	}}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update connection status: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordSync adds to the synced item count atomically.
func (r *MongoConnectionRepository) RecordSync(ctx context.Context, id string, syncedAt *time.Time, syncedItems int) error {
	set := bson.M{"updatedAt": time.Now()}
	if syncedAt != nil {
		set["lastSyncedAt"] = *syncedAt
	}
	update := bson.M{
		"$set": set,
		"$inc": bson.M{"syncedItemCount": syncedItems},
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to record sync: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoConnectionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}
