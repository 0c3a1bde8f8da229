package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type callLogRepoMongo struct {
	coll *mongo.Collection
}

// NewCallLogRepo stores call logs in coll, normally docstore.CallLogs.
func NewCallLogRepo(coll *mongo.Collection) CallLogRepository {
	return &callLogRepoMongo{coll: coll}
}

func (r *callLogRepoMongo) Insert(ctx context.Context, l *CallLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if _, err := r.coll.InsertOne(ctx, l); err != nil {
		return fmt.Errorf("insert call log: %w", err)
	}
	return nil
}

func (r *callLogRepoMongo) SaveSummary(ctx context.Context, ultravoxCallID string, s *Summary) error {
	set := bson.D{
		{Key: "call_summary", Value: s.Summary},
		{Key: "call_intent", Value: s.Intent},
		{Key: "call_outcome", Value: s.Outcome},
		{Key: "summary_saved_at", Value: s.SavedAt},
	}
	if s.PatientID != "" {
		set = append(set,
			bson.E{Key: "patient_id", Value: s.PatientID},
			bson.E{Key: "patient_created", Value: true})
	}
	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "_id", Value: uuid.NewString()},
			{Key: "call_status", Value: CallCompleted},
			{Key: "created_at", Value: s.SavedAt},
		}},
	}
	_, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "ultravox_call_id", Value: ultravoxCallID}},
		update,
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save summary for %s: %w", ultravoxCallID, err)
	}
	return nil
}

func (r *callLogRepoMongo) MarkCallbackScheduled(ctx context.Context, ultravoxCallID, callbackID string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "ultravox_call_id", Value: ultravoxCallID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "callback_scheduled", Value: true},
			{Key: "callback_id", Value: callbackID},
			{Key: "callback_time", Value: at},
		}}})
	return err
}

func logQuery(f LogFilter, from, to *time.Time) bson.D {
	q := bson.D{}
	if f.CallType != "" {
		q = append(q, bson.E{Key: "call_type", Value: f.CallType})
	}
	created := bson.D{}
	if from != nil {
		created = append(created, bson.E{Key: "$gte", Value: *from})
	}
	if to != nil {
		created = append(created, bson.E{Key: "$lt", Value: *to})
	}
	if len(created) > 0 {
		q = append(q, bson.E{Key: "created_at", Value: created})
	}
	return q
}

func (r *callLogRepoMongo) List(ctx context.Context, f LogFilter, from, to *time.Time, limit, offset int) ([]*CallLog, int, error) {
	q := logQuery(f, from, to)
	total, err := r.coll.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	cur, err := r.coll.Find(ctx, q, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, 0, err
	}
	var out []*CallLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}

func (r *callLogRepoMongo) IntentDistribution(ctx context.Context, from, to time.Time) ([]IntentCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "created_at", Value: bson.D{
			{Key: "$gte", Value: from},
			{Key: "$lte", Value: to},
		}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$call_intent", "unknown"}}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate intents: %w", err)
	}
	var out []IntentCount
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type callbackRepoMongo struct {
	coll *mongo.Collection
}

// NewCallbackRepo stores callbacks in coll, normally docstore.Callbacks.
func NewCallbackRepo(coll *mongo.Collection) CallbackRepository {
	return &callbackRepoMongo{coll: coll}
}

func (r *callbackRepoMongo) Create(ctx context.Context, cb *Callback) error {
	if cb.ID == "" {
		cb.ID = uuid.NewString()
	}
	if _, err := r.coll.InsertOne(ctx, cb); err != nil {
		return fmt.Errorf("insert callback: %w", err)
	}
	return nil
}

func (r *callbackRepoMongo) Get(ctx context.Context, id string) (*Callback, error) {
	var cb Callback
	err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&cb)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrCallbackNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cb, nil
}

func (r *callbackRepoMongo) ListByStatus(ctx context.Context, status string) ([]*Callback, error) {
	cur, err := r.coll.Find(ctx,
		bson.D{{Key: "status", Value: status}},
		options.Find().SetSort(bson.D{{Key: "callback_time", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []*Callback
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *callbackRepoMongo) MarkExecuting(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "status", Value: CallbackScheduled}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: CallbackExecuting},
			{Key: "execution_started_at", Value: at},
		}}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *callbackRepoMongo) MarkCompleted(ctx context.Context, id, ultravoxCallID string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: CallbackCompleted},
			{Key: "ultravox_call_id", Value: ultravoxCallID},
			{Key: "executed_at", Value: at},
		}}})
	return err
}

func (r *callbackRepoMongo) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: CallbackFailed},
			{Key: "failure_reason", Value: reason},
			{Key: "failed_at", Value: at},
		}}})
	return err
}
