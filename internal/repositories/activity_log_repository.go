package repositories

import (
	"context"
	"time"

	"github.com/anonto42/campus-notify/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ActivityLog is an append-only record of push attempts and click beacons
type ActivityLog interface {
	RecordPushAttempt(ctx context.Context, attempt *models.PushAttempt) error
	RecordClick(ctx context.Context, event *models.ClickEvent) error
	PushAttempts(ctx context.Context, notificationID string, limit int64) ([]models.PushAttempt, error)
}

// MongoActivityLog implements ActivityLog for MongoDB
type MongoActivityLog struct {
	attempts *mongo.Collection
	clicks   *mongo.Collection
}

// NewMongoActivityLog creates a new MongoActivityLog
func NewMongoActivityLog(db *mongo.Database) *MongoActivityLog {
	return &MongoActivityLog{
		attempts: db.Collection("push_attempts"),
		clicks:   db.Collection("click_events"),
	}
}

// EnsureIndexes creates the lookup indexes used by PushAttempts
func (l *MongoActivityLog) EnsureIndexes(ctx context.Context) error {
	_, err := l.attempts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "notification_id", Value: 1}, {Key: "at", Value: -1}},
	})
	if err != nil {
		return err
	}
	_, err = l.clicks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "notification_id", Value: 1}},
	})
	return err
}

func (l *MongoActivityLog) RecordPushAttempt(ctx context.Context, attempt *models.PushAttempt) error {
	attempt.ID = primitive.NewObjectID()
	if attempt.At.IsZero() {
		attempt.At = time.Now()
	}
	_, err := l.attempts.InsertOne(ctx, attempt)
	return err
}

func (l *MongoActivityLog) RecordClick(ctx context.Context, event *models.ClickEvent) error {
	event.ID = primitive.NewObjectID()
	if event.At.IsZero() {
		event.At = time.Now()
	}
	_, err := l.clicks.InsertOne(ctx, event)
	return err
}

// PushAttempts returns the latest attempts for a notification, newest first
func (l *MongoActivityLog) PushAttempts(ctx context.Context, notificationID string, limit int64) ([]models.PushAttempt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: -1}}).SetLimit(limit)
	cursor, err := l.attempts.Find(ctx, bson.M{"notification_id": notificationID}, opts)
	if err != nil {
		return nil, err
	}
	var attempts []models.PushAttempt
	if err := cursor.All(ctx, &attempts); err != nil {
		return nil, err
	}
	return attempts, nil
}

// NopActivityLog discards everything; used when MongoDB is not configured
type NopActivityLog struct{}

func (NopActivityLog) RecordPushAttempt(context.Context, *models.PushAttempt) error { return nil }
func (NopActivityLog) RecordClick(context.Context, *models.ClickEvent) error        { return nil }
func (NopActivityLog) PushAttempts(context.Context, string, int64) ([]models.PushAttempt, error) {
	return nil, nil
}
