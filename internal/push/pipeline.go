package push

import (
	"context"
	"errors"
	"time"

	"github.com/anonto42/campus-notify/backend/internal/models"
	"github.com/anonto42/campus-notify/backend/internal/repositories"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Config tunes the worker pool and retry policy.
type Config struct {
	Workers       int
	MaxAttempts   int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	SendTimeout   time.Duration
	RatePerSecond float64 // <= 0 disables rate limiting
	Burst         int
}

func (c Config) withDefaults() Config {
	if c.Workers < 1 {
		c.Workers = 8
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 4
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = c.BaseBackoff
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
	return c
}

// TokenStore is the slice of the device token registry the pipeline needs.
type TokenStore interface {
	IsValid(ctx context.Context, token string) (bool, error)
	Invalidate(ctx context.Context, token string) error
}

// OutcomeRecorder receives terminal outcomes: it flips the recipient's
// delivered flag and bumps the notification's push counters.
type OutcomeRecorder interface {
	RecordPushOutcome(ctx context.Context, notificationID, userID string, delivered bool) error
}

// Pipeline drains a Queue through a Gateway.
type Pipeline struct {
	cfg      Config
	queue    Queue
	gateway  Gateway
	tokens   TokenStore
	outcomes OutcomeRecorder
	activity repositories.ActivityLog
	limiter  *rate.Limiter
	logger   *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewPipeline creates a Pipeline. activity may be nil.
func NewPipeline(cfg Config, queue Queue, gateway Gateway, tokens TokenStore, outcomes OutcomeRecorder, activity repositories.ActivityLog, logger *zap.Logger) *Pipeline {
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if activity == nil {
		activity = repositories.NopActivityLog{}
	}
	return &Pipeline{
		cfg:      cfg,
		queue:    queue,
		gateway:  gateway,
		tokens:   tokens,
		outcomes: outcomes,
		activity: activity,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		logger:   logger.Named("push"),
		sleep:    sleepContext,
	}
}

// Run consumes jobs with cfg.Workers goroutines until ctx is cancelled. Each
// worker drives one job to a terminal state before taking the next.
func (p *Pipeline) Run(ctx context.Context) error {
	deliveries, release, err := p.queue.Consume(ctx)
	if err != nil {
		return err
	}
	p.logger.Info("push pipeline started", zap.Int("workers", p.cfg.Workers))

	g, ctx := errgroup.WithContext(ctx)
	for range p.cfg.Workers {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case d, ok := <-deliveries:
					if !ok {
						return nil
					}
					p.Process(ctx, d.Job)
					if err := d.Ack(); err != nil {
						p.logger.Warn("failed to ack push job", zap.String("notification_id", d.Job.NotificationID), zap.Error(err))
					}
				}
			}
		})
	}
	err = g.Wait()
	// Workers have acked everything they took.
	if rerr := release(); rerr != nil {
		p.logger.Warn("failed to release push consumer", zap.Error(rerr))
	}
	p.logger.Info("push pipeline stopped")
	return err
}

// Process runs one job through Queued -> Sending -> Delivered | Failed.
func (p *Pipeline) Process(ctx context.Context, job Job) Outcome {
	out := Outcome{Job: job, State: StateQueued}
	log := p.logger.With(
		zap.String("notification_id", job.NotificationID),
		zap.String("user_id", job.UserID),
		zap.String("token", tokenSuffix(job.Token)),
	)

	valid, err := p.tokens.IsValid(ctx, job.Token)
	if err != nil {
		log.Warn("token validity check failed, sending anyway", zap.Error(err))
		valid = true
	}
	if !valid {
		return p.finish(ctx, log, out, StateFailed, ErrTokenRejected)
	}

	for attempt := 1; ; attempt++ {
		out.State = StateSending
		out.Attempts = attempt

		if err := p.limiter.Wait(ctx); err != nil {
			return p.finish(ctx, log, out, StateFailed, err)
		}

		// An in-flight call is allowed to finish during shutdown.
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.SendTimeout)
		err := p.gateway.Send(sendCtx, job.message())
		cancel()
		p.recordAttempt(ctx, job, attempt, err)

		switch {
		case err == nil:
			return p.finish(ctx, log, out, StateDelivered, nil)
		case errors.Is(err, ErrTokenRejected):
			if ierr := p.tokens.Invalidate(context.WithoutCancel(ctx), job.Token); ierr != nil {
				log.Error("failed to invalidate rejected token", zap.Error(ierr))
			}
			return p.finish(ctx, log, out, StateFailed, err)
		case errors.Is(err, ErrPermanent):
			return p.finish(ctx, log, out, StateFailed, err)
		}

		if attempt >= p.cfg.MaxAttempts {
			return p.finish(ctx, log, out, StateFailed, err)
		}
		wait := p.backoff(attempt)
		log.Warn("transient push failure, retrying",
			zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))
		if serr := p.sleep(ctx, wait); serr != nil {
			return p.finish(ctx, log, out, StateFailed, errors.Join(err, serr))
		}
	}
}

// backoff returns base * 2^(attempt-1), capped at MaxBackoff.
func (p *Pipeline) backoff(attempt int) time.Duration {
	if attempt > 30 {
		return p.cfg.MaxBackoff
	}
	d := p.cfg.BaseBackoff << (attempt - 1)
	if d <= 0 || d > p.cfg.MaxBackoff {
		return p.cfg.MaxBackoff
	}
	return d
}

func (p *Pipeline) finish(ctx context.Context, log *zap.Logger, out Outcome, state State, err error) Outcome {
	out.State = state
	out.Err = err

	// Outcomes are recorded even when the pipeline is shutting down.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.SendTimeout)
	defer cancel()
	delivered := state == StateDelivered
	if rerr := p.outcomes.RecordPushOutcome(recordCtx, out.Job.NotificationID, out.Job.UserID, delivered); rerr != nil {
		log.Error("failed to record push outcome", zap.Bool("delivered", delivered), zap.Error(rerr))
	}

	if delivered {
		log.Debug("push delivered", zap.Int("attempts", out.Attempts))
	} else {
		log.Warn("push failed", zap.Int("attempts", out.Attempts), zap.Error(err))
	}
	return out
}

func (p *Pipeline) recordAttempt(ctx context.Context, job Job, attempt int, err error) {
	entry := &models.PushAttempt{
		NotificationID: job.NotificationID,
		UserID:         job.UserID,
		TokenSuffix:    tokenSuffix(job.Token),
		Platform:       job.Platform,
		Attempt:        attempt,
		Outcome:        attemptOutcome(err),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.SendTimeout)
	defer cancel()
	if aerr := p.activity.RecordPushAttempt(recordCtx, entry); aerr != nil {
		p.logger.Warn("failed to record push attempt", zap.Error(aerr))
	}
}

func attemptOutcome(err error) string {
	switch {
	case err == nil:
		return "delivered"
	case errors.Is(err, ErrTokenRejected):
		return "rejected"
	case errors.Is(err, ErrPermanent):
		return "failed"
	default:
		return "transient"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
