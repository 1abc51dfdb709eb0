package push

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/campus-notify/backend/internal/models"
)

// Gateway errors. Anything a gateway returns that wraps none of these is
// treated as transient.
var (
	// ErrTransient is retried with backoff until attempts run out.
	ErrTransient = errors.New("push: transient gateway failure")
	// ErrTokenRejected means the device token is dead and must be invalidated.
	ErrTokenRejected = errors.New("push: device token rejected")
	// ErrPermanent fails the job without touching the token.
	ErrPermanent = errors.New("push: permanent gateway failure")
)

// Message is the gateway-neutral payload for one device.
type Message struct {
	Token    string
	Platform string
	Title    string
	Body     string
	Priority models.Priority
	Data     map[string]string
}

// Gateway sends a single message to a single device.
type Gateway interface {
	Send(ctx context.Context, msg Message) error
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, msg Message) error

func (f GatewayFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// PlatformRouter picks a gateway by the token's platform, falling back to Default.
type PlatformRouter struct {
	Default    Gateway
	ByPlatform map[string]Gateway
}

func (r *PlatformRouter) Send(ctx context.Context, msg Message) error {
	if gw, ok := r.ByPlatform[msg.Platform]; ok && gw != nil {
		return gw.Send(ctx, msg)
	}
	if r.Default == nil {
		return fmt.Errorf("%w: no gateway for platform %q", ErrPermanent, msg.Platform)
	}
	return r.Default.Send(ctx, msg)
}

// highPriority reports whether the gateway should deliver immediately.
func highPriority(p models.Priority) bool {
	return p == models.PriorityHigh || p == models.PriorityUrgent
}
