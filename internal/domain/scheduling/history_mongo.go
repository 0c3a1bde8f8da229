package scheduling

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type historyRepoMongo struct {
	coll *mongo.Collection
}

// NewHistoryRepo stores history entries in coll, normally
// docstore.AppointmentHistory.
func NewHistoryRepo(coll *mongo.Collection) HistoryRepository {
	return &historyRepoMongo{coll: coll}
}

func (r *historyRepoMongo) Append(ctx context.Context, e *HistoryEntry) error {
	if _, err := r.coll.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("append history for %s: %w", e.AppointmentID, err)
	}
	return nil
}

func (r *historyRepoMongo) ListByAppointment(ctx context.Context, appointmentID string) ([]*HistoryEntry, error) {
	cur, err := r.coll.Find(ctx,
		bson.D{{Key: "appointment_id", Value: appointmentID}},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var out []*HistoryEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
