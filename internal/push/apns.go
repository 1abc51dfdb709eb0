package push

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// APNsClient is the part of *apns2.Client the gateway uses.
type APNsClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// APNsConfig holds the token-based auth settings for Apple Push.
type APNsConfig struct {
	KeyPath    string
	KeyID      string
	TeamID     string
	Topic      string // app bundle id
	Production bool
}

// APNsGateway delivers directly to Apple Push for ios tokens.
type APNsGateway struct {
	client APNsClient
	topic  string
}

// NewAPNsGateway parses the .p8 key and builds a token client
func NewAPNsGateway(cfg APNsConfig) (*APNsGateway, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}
	return NewAPNsGatewayWithClient(client, cfg.Topic), nil
}

// NewAPNsGatewayWithClient wraps an existing client
func NewAPNsGatewayWithClient(client APNsClient, topic string) *APNsGateway {
	return &APNsGateway{client: client, topic: topic}
}

func (g *APNsGateway) Send(ctx context.Context, msg Message) error {
	body := payload.NewPayload().
		AlertTitle(msg.Title).
		AlertBody(msg.Body).
		Sound("default")
	for k, v := range msg.Data {
		body.Custom(k, v)
	}

	n := &apns2.Notification{
		DeviceToken: msg.Token,
		Topic:       g.topic,
		Payload:     body,
		Priority:    apns2.PriorityLow,
	}
	if highPriority(msg.Priority) {
		n.Priority = apns2.PriorityHigh
	}

	res, err := g.client.PushWithContext(ctx, n)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return classifyAPNs(res)
}

func classifyAPNs(res *apns2.Response) error {
	if res.Sent() {
		return nil
	}
	switch res.Reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
		return fmt.Errorf("%w: apns %d %s", ErrTokenRejected, res.StatusCode, res.Reason)
	}
	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: apns %d %s", ErrTransient, res.StatusCode, res.Reason)
	}
	return fmt.Errorf("%w: apns %d %s", ErrPermanent, res.StatusCode, res.Reason)
}
