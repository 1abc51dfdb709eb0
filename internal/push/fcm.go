package push

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
)

// FCMClient is the part of *messaging.Client the gateway uses.
type FCMClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMGateway delivers through Firebase Cloud Messaging.
type FCMGateway struct {
	client FCMClient
}

// NewFCMGateway creates a gateway over a Firebase messaging client
func NewFCMGateway(client FCMClient) *FCMGateway {
	return &FCMGateway{client: client}
}

func (g *FCMGateway) Send(ctx context.Context, msg Message) error {
	_, err := g.client.Send(ctx, fcmMessage(msg))
	return classifyFCM(err)
}

func fcmMessage(msg Message) *messaging.Message {
	androidPriority, apnsPriority, urgency := "normal", "5", "normal"
	if highPriority(msg.Priority) {
		androidPriority, apnsPriority, urgency = "high", "10", "high"
	}

	return &messaging.Message{
		Token: msg.Token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Priority: androidPriority,
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": apnsPriority},
		},
		Webpush: &messaging.WebpushConfig{
			Headers: map[string]string{"Urgency": urgency},
		},
	}
}

// classifyFCM maps Firebase error codes onto the gateway error classes. Only
// codes that speak about the token itself reject it; INVALID_ARGUMENT also
// covers payload faults such as an oversized message.
func classifyFCM(err error) error {
	switch {
	case err == nil:
		return nil
	case messaging.IsUnregistered(err), messaging.IsSenderIDMismatch(err):
		return fmt.Errorf("%w: %w", ErrTokenRejected, err)
	case messaging.IsInvalidArgument(err), messaging.IsThirdPartyAuthError(err):
		return fmt.Errorf("%w: %w", ErrPermanent, err)
	default:
		// quota, unavailable, internal, timeouts and anything unrecognised
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
}
