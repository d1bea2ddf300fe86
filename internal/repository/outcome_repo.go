package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"leadflow/internal/model"
)

type outcomeRepo struct {
	collection *mongo.Collection
}

// NewOutcomeRepo creates a new outcome repository
func NewOutcomeRepo(db *mongo.Database) OutcomeRepo {
	return &outcomeRepo{
		collection: db.Collection("outcomes"),
	}
}

// CreateOnce writes the outcome only if the session has none yet.
// It reports whether this call created the record.
func (r *outcomeRepo) CreateOnce(ctx context.Context, outcome *model.Outcome) (bool, error) {
	update := bson.M{"$setOnInsert": bson.M{
		"formId":         outcome.FormID,
		"clientId":       outcome.ClientID,
		"completionType": outcome.CompletionType,
		"leadStatus":     outcome.LeadStatus,
		"finalScore":     outcome.FinalScore,
		"message":        outcome.Message,
		"completedAt":    outcome.CompletedAt,
	}}
	opts := options.Update().SetUpsert(true)
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": outcome.SessionID}, update, opts)
	if err != nil {
		return false, err
	}
	return result.UpsertedCount == 1, nil
}

func (r *outcomeRepo) GetBySessionID(ctx context.Context, sessionID string) (*model.Outcome, error) {
	var outcome model.Outcome
	err := r.collection.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&outcome)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}
