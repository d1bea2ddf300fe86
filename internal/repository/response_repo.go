package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"leadflow/internal/model"
)

type responseRepo struct {
	collection *mongo.Collection
}

// NewResponseRepo creates a new response repository
func NewResponseRepo(db *mongo.Database) ResponseRepo {
	return &responseRepo{
		collection: db.Collection("responses"),
	}
}

// Save inserts the response unless one already exists for the same question.
// A retried write is a no-op, an existing row is never overwritten.
func (r *responseRepo) Save(ctx context.Context, response *model.Response) error {
	if response.Timestamp.IsZero() {
		response.Timestamp = time.Now()
	}

	filter := bson.M{"sessionId": response.SessionID, "questionId": response.QuestionID}
	update := bson.M{"$setOnInsert": bson.M{
		"answer":       response.Answer,
		"timestamp":    response.Timestamp,
		"step":         response.Step,
		"scoreAwarded": response.ScoreAwarded,
	}}
	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (r *responseRepo) GetBySessionID(ctx context.Context, sessionID string) ([]*model.Response, error) {
	opts := options.Find().SetSort(bson.D{{Key: "step", Value: 1}, {Key: "timestamp", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"sessionId": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var responses []*model.Response
	if err = cursor.All(ctx, &responses); err != nil {
		return nil, err
	}
	return responses, nil
}

// EnsureResponseIndexes creates the unique index that backs idempotent saves
func EnsureResponseIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("responses").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sessionId", Value: 1}, {Key: "questionId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("session_question_unique"),
	})
	return err
}
