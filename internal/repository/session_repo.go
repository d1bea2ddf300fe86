package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"leadflow/internal/model"
)

type sessionRepo struct {
	collection *mongo.Collection
}

// NewSessionRepo creates a new session repository
func NewSessionRepo(db *mongo.Database) SessionRepo {
	return &sessionRepo{
		collection: db.Collection("sessions"),
	}
}

func (r *sessionRepo) Create(ctx context.Context, session *model.Session) error {
	session.Version = 1
	_, err := r.collection.InsertOne(ctx, session)
	return err
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Update(ctx context.Context, session *model.Session) error {
	expected := session.Version
	session.Version = expected + 1

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": session.ID, "version": expected}, session)
	if err != nil {
		session.Version = expected
		return err
	}
	if result.MatchedCount == 0 {
		session.Version = expected
		return ErrVersionConflict
	}
	return nil
}

func (r *sessionRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]*model.Session, error) {
	filter := bson.M{
		"completed":               false,
		"engagement.lastActivity": bson.M{"$lt": before},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "engagement.lastActivity", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []*model.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}
