package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PushAttempt is one gateway call made by the push pipeline (MongoDB)
type PushAttempt struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	NotificationID string             `json:"notificationId" bson:"notification_id"`
	UserID         string             `json:"userId" bson:"user_id"`
	TokenSuffix    string             `json:"tokenSuffix" bson:"token_suffix"` // last characters only
	Platform       string             `json:"platform" bson:"platform"`
	Attempt        int                `json:"attempt" bson:"attempt"`
	Outcome        string             `json:"outcome" bson:"outcome"` // delivered, transient, rejected, failed
	Error          string             `json:"error,omitempty" bson:"error,omitempty"`
	At             time.Time          `json:"at" bson:"at"`
}

// ClickEvent is a raw click beacon (MongoDB)
type ClickEvent struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	NotificationID string             `json:"notificationId" bson:"notification_id"`
	UserID         string             `json:"userId,omitempty" bson:"user_id,omitempty"`
	At             time.Time          `json:"at" bson:"at"`
}
