// Package dispatch turns a send request into a persisted notification, one
// delivery row per recipient, and the push jobs for recipients with devices.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/anonto42/campus-notify/backend/internal/models"
	"github.com/anonto42/campus-notify/backend/internal/push"
	"github.com/anonto42/campus-notify/backend/internal/repositories"
	"github.com/anonto42/campus-notify/backend/internal/targeting"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidNotification rejects a request before anything is resolved or stored.
	ErrInvalidNotification = errors.New("invalid notification")
	// ErrStorageFailure means the create transaction failed and nothing was written.
	ErrStorageFailure = errors.New("failed to store notification")
)

// Content bounds, counted in characters
const (
	MaxTitleLength   = 200
	MaxMessageLength = 2000
)

// SendRequest is a validated-on-send notification request.
type SendRequest struct {
	Sender     targeting.Sender
	Title      string
	Message    string
	Priority   models.Priority
	Target     targeting.Spec
	EnablePush bool
}

// SendResult is what the sender sees. Push outcomes never change it.
type SendResult struct {
	NotificationID string `json:"notificationId"`
	RecipientCount int    `json:"recipientCount"`
}

// Resolver expands a target into recipient ids.
type Resolver interface {
	Resolve(ctx context.Context, spec targeting.Spec, sender targeting.Sender) ([]string, error)
}

// TokenLookup finds the valid devices of a set of users.
type TokenLookup interface {
	ActiveTokensForUsers(ctx context.Context, userIDs []string) (map[string][]models.DeviceToken, error)
}

// JobQueue accepts push jobs without waiting on delivery.
type JobQueue interface {
	Enqueue(ctx context.Context, job push.Job) error
}

// Dispatcher runs the send flow.
type Dispatcher struct {
	resolver Resolver
	store    repositories.NotificationRepository
	tokens   TokenLookup
	queue    JobQueue
	outcomes push.OutcomeRecorder
	logger   *zap.Logger

	newID func() string
	now   func() time.Time
}

// NewDispatcher creates a Dispatcher. A nil queue disables push.
func NewDispatcher(resolver Resolver, store repositories.NotificationRepository, tokens TokenLookup, queue JobQueue, outcomes push.OutcomeRecorder, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		resolver: resolver,
		store:    store,
		tokens:   tokens,
		queue:    queue,
		outcomes: outcomes,
		logger:   logger.Named("dispatch"),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Send resolves the audience, writes the notification and its deliveries in one
// transaction, then enqueues push jobs. It never waits on push delivery, and a
// request with zero recipients still creates the notification.
// Identical requests are separate sends.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := normalize(&req); err != nil {
		return nil, err
	}

	recipients, err := d.resolver.Resolve(ctx, req.Target, req.Sender)
	if err != nil {
		return nil, err
	}

	tokensByUser := d.lookupTokens(ctx, req, recipients)
	awaitingPush := make(map[string]bool, len(tokensByUser))
	for userID, tokens := range tokensByUser {
		if len(tokens) > 0 {
			awaitingPush[userID] = true
		}
	}

	targetType, targetValue := targeting.Encode(req.Target)
	n := &models.Notification{
		ID:           d.newID(),
		Title:        req.Title,
		Message:      req.Message,
		Priority:     req.Priority,
		SenderID:     req.Sender.UserID,
		SenderName:   req.Sender.Name,
		SenderRole:   req.Sender.Role,
		DepartmentID: req.Sender.DepartmentID,
		TargetType:   targetType,
		TargetValue:  targetValue,
		PushEnabled:  req.EnablePush,
		CreatedAt:    d.now(),
	}
	if err := d.store.Create(ctx, n, recipients, awaitingPush); err != nil {
		d.logger.Error("failed to create notification",
			zap.String("sender_id", req.Sender.UserID), zap.Int("recipients", len(recipients)), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}

	jobs := d.enqueue(ctx, n, recipients, tokensByUser)
	d.logger.Info("notification sent",
		zap.String("notification_id", n.ID),
		zap.String("sender_id", n.SenderID),
		zap.String("target_type", n.TargetType),
		zap.Int("recipients", n.TotalRecipients),
		zap.Int("push_jobs", jobs))

	return &SendResult{NotificationID: n.ID, RecipientCount: n.TotalRecipients}, nil
}

// lookupTokens returns the devices to push to. A lookup failure downgrades the
// send to in-app only.
func (d *Dispatcher) lookupTokens(ctx context.Context, req SendRequest, recipients []string) map[string][]models.DeviceToken {
	if !req.EnablePush || d.queue == nil || d.tokens == nil || len(recipients) == 0 {
		return nil
	}
	tokens, err := d.tokens.ActiveTokensForUsers(ctx, recipients)
	if err != nil {
		d.logger.Warn("device token lookup failed, sending in-app only", zap.Error(err))
		return nil
	}
	return tokens
}

// enqueue hands one job per (recipient, token) to the queue after commit. A job
// the queue refuses counts as a failed push.
func (d *Dispatcher) enqueue(ctx context.Context, n *models.Notification, recipients []string, tokensByUser map[string][]models.DeviceToken) int {
	if len(tokensByUser) == 0 {
		return 0
	}

	// The notification is committed; a cancelled request must not drop its jobs.
	ctx = context.WithoutCancel(ctx)
	enqueued := 0
	for _, userID := range recipients {
		for _, token := range tokensByUser[userID] {
			job := push.Job{
				NotificationID: n.ID,
				UserID:         userID,
				Token:          token.Token,
				Platform:       token.Platform,
				Title:          n.Title,
				Message:        n.Message,
				Priority:       n.Priority,
				EnqueuedAt:     d.now(),
			}
			if err := d.queue.Enqueue(ctx, job); err != nil {
				d.logger.Warn("failed to enqueue push job",
					zap.String("notification_id", n.ID), zap.String("user_id", userID), zap.Error(err))
				if d.outcomes != nil {
					if rerr := d.outcomes.RecordPushOutcome(ctx, n.ID, userID, false); rerr != nil {
						d.logger.Error("failed to record push failure", zap.Error(rerr))
					}
				}
				continue
			}
			enqueued++
		}
	}
	return enqueued
}

func normalize(req *SendRequest) error {
	req.Title = strings.TrimSpace(req.Title)
	req.Message = strings.TrimSpace(req.Message)

	if n := utf8.RuneCountInString(req.Title); n == 0 || n > MaxTitleLength {
		return fmt.Errorf("%w: title must be 1-%d characters", ErrInvalidNotification, MaxTitleLength)
	}
	if n := utf8.RuneCountInString(req.Message); n == 0 || n > MaxMessageLength {
		return fmt.Errorf("%w: message must be 1-%d characters", ErrInvalidNotification, MaxMessageLength)
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	if !req.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidNotification, req.Priority)
	}
	if err := targeting.Validate(req.Target); err != nil {
		return err
	}
	return nil
}
