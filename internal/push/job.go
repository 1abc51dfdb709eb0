// Package push delivers notifications to device gateways with bounded retries.
package push

import (
	"time"

	"github.com/anonto42/campus-notify/backend/internal/models"
)

// Job is one push attempt target: a notification for a single device token.
type Job struct {
	NotificationID string          `json:"notificationId"`
	UserID         string          `json:"userId"`
	Token          string          `json:"token"`
	Platform       string          `json:"platform"`
	Title          string          `json:"title"`
	Message        string          `json:"message"`
	Priority       models.Priority `json:"priority"`
	EnqueuedAt     time.Time       `json:"enqueuedAt"`
}

func (j Job) message() Message {
	return Message{
		Token:    j.Token,
		Platform: j.Platform,
		Title:    j.Title,
		Body:     j.Message,
		Priority: j.Priority,
		Data:     map[string]string{"notificationId": j.NotificationID},
	}
}

// State is the lifecycle of a job: Queued -> Sending -> Delivered | Failed.
type State string

const (
	StateQueued    State = "queued"
	StateSending   State = "sending"
	StateDelivered State = "delivered"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateFailed
}

// Outcome is the final state of a processed job.
type Outcome struct {
	Job      Job
	State    State
	Attempts int
	Err      error
}

// tokenSuffix keeps the last characters of a token for logs.
func tokenSuffix(token string) string {
	const keep = 8
	if len(token) <= keep {
		return token
	}
	return token[len(token)-keep:]
}
