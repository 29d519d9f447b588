package repository

import (
	"context"
	"errors"
	"fmt"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/infrastructure/repository/entity"
	"archie-core-sync-layer/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var oldestFirst = options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

// MongoTemplateRepository implements TemplateRepository using MongoDB
type MongoTemplateRepository struct {
	collection *mongo.Collection
}

var _ ports.TemplateRepository = (*MongoTemplateRepository)(nil)

func (r *MongoTemplateRepository) Create(ctx context.Context, template *domain.Template) error {
	_, err := r.collection.InsertOne(ctx, entity.MongoTemplateDocFromDomain(template))
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

func (r *MongoTemplateRepository) Get(ctx context.Context, id string) (*domain.Template, error) {
	var doc entity.MongoTemplateDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return doc.ToDomain(), nil
}

func (r *MongoTemplateRepository) ListByInstallation(ctx context.Context, shop string) ([]*domain.Template, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"installationShop": shop}, oldestFirst)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []entity.MongoTemplateDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode templates: %w", err)
	}
	out := make([]*domain.Template, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].ToDomain())
	}
	return out, nil
}

func (r *MongoTemplateRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

// MongoInviteRepository implements InviteRepository using MongoDB
type MongoInviteRepository struct {
	collection *mongo.Collection
}

var _ ports.InviteRepository = (*MongoInviteRepository)(nil)

func (r *MongoInviteRepository) Create(ctx context.Context, invite *domain.Invite) error {
	_, err := r.collection.InsertOne(ctx, entity.MongoInviteDocFromDomain(invite))
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

func (r *MongoInviteRepository) Get(ctx context.Context, id string) (*domain.Invite, error) {
	var doc entity.MongoInviteDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	return doc.ToDomain(), nil
}

func (r *MongoInviteRepository) ListByInstallation(ctx context.Context, shop string) ([]*domain.Invite, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"installationShop": shop}, oldestFirst)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []entity.MongoInviteDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode invites: %w", err)
	}
	out := make([]*domain.Invite, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].ToDomain())
	}
	return out, nil
}

func (r *MongoInviteRepository) Update(ctx context.Context, invite *domain.Invite) error {
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": invite.ID}, entity.MongoInviteDocFromDomain(invite))
	if err != nil {
		return fmt.Errorf("failed to update invite: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
