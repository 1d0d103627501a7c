// Package store owns the MongoDB connection and the collections backing the
// bot's repositories.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	CollectionAccounts = "accounts"
	CollectionPayments = "payments"
	CollectionNotices  = "notices"
)

// mongoClient captures the subset of *mongo.Client the manager relies on,
// so tests can substitute fakes.
type mongoClient interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
	Database(name string, opts ...*options.DatabaseOptions) *mongo.Database
	Disconnect(ctx context.Context) error
}

// connectMongo is swapped in tests to avoid a live server.
var connectMongo = func(ctx context.Context, uri string) (mongoClient, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Manager holds the live MongoDB connection for the process.
type Manager struct {
	client   mongoClient
	database *mongo.Database
}

// Connect dials MongoDB, verifies the connection with a ping and returns a
// manager bound to the named database.
func Connect(ctx context.Context, uri, databaseName string) (*Manager, error) {
	if uri == "" {
		return nil, errors.New("store: empty mongo uri")
	}
	if databaseName == "" {
		return nil, errors.New("store: empty database name")
	}

	client, err := connectMongo(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Manager{
		client:   client,
		database: client.Database(databaseName),
	}, nil
}

// Close disconnects from MongoDB.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

// Ping verifies the connection is still healthy.
func (m *Manager) Ping(ctx context.Context) error {
	if m == nil || m.client == nil {
		return errors.New("store: not connected")
	}
	return m.client.Ping(ctx, readpref.Primary())
}

// Accounts returns the accounts collection.
func (m *Manager) Accounts() *mongo.Collection {
	return m.database.Collection(CollectionAccounts)
}

// Payments returns the payments collection.
func (m *Manager) Payments() *mongo.Collection {
	return m.database.Collection(CollectionPayments)
}

// Notices returns the notices collection.
func (m *Manager) Notices() *mongo.Collection {
	return m.database.Collection(CollectionNotices)
}

// EnsureBaseIndexes creates the indexes the repositories depend on. The
// unique index on payment references is what enforces reference uniqueness
// across the whole system.
func (m *Manager) EnsureBaseIndexes(ctx context.Context) error {
	if m == nil || m.database == nil {
		return errors.New("store: not connected")
	}

	accountIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "chat_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "plan.is_active", Value: 1}, {Key: "plan.end_date", Value: 1}},
		},
	}
	if _, err := m.Accounts().Indexes().CreateMany(ctx, accountIndexes); err != nil {
		return fmt.Errorf("create account indexes: %w", err)
	}

	paymentIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reference", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}
	if _, err := m.Payments().Indexes().CreateMany(ctx, paymentIndexes); err != nil {
		return fmt.Errorf("create payment indexes: %w", err)
	}

	return nil
}
