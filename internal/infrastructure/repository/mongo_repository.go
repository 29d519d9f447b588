// Package repository implements the persistence ports on MongoDB.
package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	installationsCollection = "installations"
	oauthStatesCollection   = "oauth_states"
	connectionsCollection   = "connections"
	jobsCollection          = "sync_jobs"
	logEntriesCollection    = "log_entries"
	templatesCollection     = "templates"
	invitesCollection       = "invites"
)

// Repositories bundles every Mongo-backed repository.
type Repositories struct {
	Installations *MongoInstallationRepository
	OAuthStates   *MongoOAuthStateRepository
	Connections   *MongoConnectionRepository
	Jobs          *MongoJobRepository
	Logs          *MongoLogRepository
	Templates     *MongoTemplateRepository
	Invites       *MongoInviteRepository
}

// NewMongoRepositories creates all repositories on db.
func NewMongoRepositories(db *mongo.Database) *Repositories {
	return &Repositories{
		Installations: &MongoInstallationRepository{collection: db.Collection(installationsCollection)},
		OAuthStates:   &MongoOAuthStateRepository{collection: db.Collection(oauthStatesCollection)},
		Connections:   &MongoConnectionRepository{collection: db.Collection(connectionsCollection)},
		Jobs:          &MongoJobRepository{collection: db.Collection(jobsCollection)},
		Logs:          &MongoLogRepository{collection: db.Collection(logEntriesCollection)},
		Templates:     &MongoTemplateRepository{collection: db.Collection(templatesCollection)},
		Invites:       &MongoInviteRepository{collection: db.Collection(invitesCollection)},
	}
}

// EnsureIndexes creates the secondary indexes the queries rely on. The
// partial unique index on sync_jobs backs single-flight in the store.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		oauthStatesCollection: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
		connectionsCollection: {
			{Keys: bson.D{{Key: "installationShop", Value: 1}, {Key: "createdAt", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		jobsCollection: {
			{Keys: bson.D{{Key: "connectionId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "state", Value: 1}, {Key: "heartbeatAt", Value: 1}}},
			{
				Keys: bson.D{{Key: "connectionId", Value: 1}},
				Options: options.Index().
					SetName("one_active_job_per_connection").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"state": bson.M{"$in": bson.A{"queued", "running"}}}),
			},
		},
		logEntriesCollection: {
			{Keys: bson.D{{Key: "connectionId", Value: 1}, {Key: "createdAt", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: 1}}},
		},
		templatesCollection: {
			{Keys: bson.D{{Key: "installationShop", Value: 1}}},
		},
		invitesCollection: {
			{Keys: bson.D{{Key: "installationShop", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}
	return nil
}

// Connect opens a client and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}
