// Package database provides database connection utilities.
package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/microauthx/microauthx/internal/config"
)

// Mongo wraps a MongoDB client scoped to the service database.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo connects to MongoDB and verifies the connection.
func NewMongo(cfg config.MongoConfig) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	// Verify connection
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &Mongo{client: client, db: client.Database(cfg.Database)}, nil
}

// Database returns the underlying database handle.
func (m *Mongo) Database() *mongo.Database {
	return m.db
}

// Collection returns a handle to the named collection.
func (m *Mongo) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// Ping verifies the connection is alive.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (m *Mongo) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
