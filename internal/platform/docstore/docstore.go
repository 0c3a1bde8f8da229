// Package docstore connects to the MongoDB database holding append-only
// operational logs: appointment history, call logs and callbacks.
package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Collection names.
const (
	AppointmentHistory = "appointment_history"
	CallLogs           = "healthcare_call_logs"
	Callbacks          = "healthcare_callbacks"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri, verifies the primary is reachable, and selects database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

func (s *Store) Collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// indexes lists the secondary indexes each collection is queried by.
var indexes = map[string][]mongo.IndexModel{
	AppointmentHistory: {
		{Keys: bson.D{{Key: "appointment_id", Value: 1}, {Key: "timestamp", Value: -1}}},
	},
	CallLogs: {
		{Keys: bson.D{{Key: "ultravox_call_id", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "call_type", Value: 1}, {Key: "created_at", Value: -1}}},
	},
	Callbacks: {
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "callback_time", Value: 1}}},
	},
}

// EnsureIndexes creates the indexes if they do not exist yet.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}
