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

// MongoInstallationRepository implements InstallationRepository using MongoDB
type MongoInstallationRepository struct {
	collection *mongo.Collection
}

var _ ports.InstallationRepository = (*MongoInstallationRepository)(nil)

// Get retrieves an installation by shop domain
func (r *MongoInstallationRepository) Get(ctx context.Context, shop string) (*domain.Installation, error) {
	var doc entity.MongoInstallationDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": shop}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installation: %w", err)
	}
	return doc.ToDomain(), nil
}

// Upsert saves or replaces an installation
func (r *MongoInstallationRepository) Upsert(ctx context.Context, installation *domain.Installation) error {
	doc := entity.MongoInstallationDocFromDomain(installation)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": doc.Shop}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save installation: %w", err)
	}
	return nil
}

// MarkStale clears the credential of an uninstalled shop
func (r *MongoInstallationRepository) MarkStale(ctx context.Context, shop string, at time.Time) error {
	update := bson.M{"$set": bson.M{
		"accessToken":   "",
		"stale":         true,
		"updatedAt":     at,
		"uninstalledAt": at,
	}}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": shop}, update); err != nil {
		return fmt.Errorf("failed to mark installation stale: %w", err)
	}
	return nil
}

// MongoOAuthStateRepository implements OAuthStateRepository using MongoDB
type MongoOAuthStateRepository struct {
	collection *mongo.Collection
}

var _ ports.OAuthStateRepository = (*MongoOAuthStateRepository)(nil)

func (r *MongoOAuthStateRepository) Create(ctx context.Context, state *domain.OAuthState) error {
	_, err := r.collection.InsertOne(ctx, state)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create oauth state: %w", err)
	}
	return nil
}

// Consume deletes and returns the state in one operation, so a replayed
// callback always finds nothing.
func (r *MongoOAuthStateRepository) Consume(ctx context.Context, state string) (*domain.OAuthState, error) {
	var s domain.OAuthState
	err := r.collection.FindOneAndDelete(ctx, bson.M{"_id": state}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return &s, nil
}

func (r *MongoOAuthStateRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, fmt.Errorf("failed to purge oauth states: %w", err)
	}
	return res.DeletedCount, nil
}
