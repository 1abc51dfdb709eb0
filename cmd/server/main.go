package main

import (
	"context"
	"fmt"
	"time"

	"github.com/anonto42/campus-notify/backend/internal/analytics"
	"github.com/anonto42/campus-notify/backend/internal/authz"
	"github.com/anonto42/campus-notify/backend/internal/dispatch"
	"github.com/anonto42/campus-notify/backend/internal/handlers"
	"github.com/anonto42/campus-notify/backend/internal/middleware"
	"github.com/anonto42/campus-notify/backend/internal/models"
	"github.com/anonto42/campus-notify/backend/internal/push"
	"github.com/anonto42/campus-notify/backend/internal/readstate"
	"github.com/anonto42/campus-notify/backend/internal/repositories"
	"github.com/anonto42/campus-notify/backend/internal/router"
	"github.com/anonto42/campus-notify/backend/internal/targeting"
	"github.com/anonto42/campus-notify/backend/pkg/config"
	"github.com/anonto42/campus-notify/backend/pkg/firebase"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// accessTokenTTL is the lifetime of tokens issued by Firebase login
const accessTokenTTL = 12 * time.Hour

func main() {
	fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		infrastructure,
		services,
		fx.Provide(
			router.NewEchoServer,
			router.NewAuthenticators,
			newHandlers,
		),
		fx.Invoke(runPipeline, router.SetupRoutes),
	).Run()
}

var infrastructure = fx.Module("infrastructure",
	fx.Provide(
		config.Load,
		config.NewLogger,
		newDatabases,
		newRedis,
		newFirebase,
		newTokenVerifier,
		newActivityLog,
		newGateway,
		newQueue,
	),
)

var services = fx.Module("services",
	fx.Provide(
		repositories.NewPostgresNotificationRepository,
		repositories.NewPostgresDeviceTokenRepository,
		repositories.NewPostgresUserRepository,
		newResolver,
		newPolicy,
		analytics.NewAggregator,
		readstate.NewTracker,
		newDispatcher,
		newPipeline,
		func(users *repositories.PostgresUserRepository) middleware.UserLookup { return users },
	),
)

func newDatabases(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*config.DB, *gorm.DB, error) {
	db, err := config.InitDB(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	lc.Append(fx.StopHook(db.CloseDB))
	return db, db.Postgres, nil
}

func newRedis(lc fx.Lifecycle, cfg *config.Config) (*redis.Client, error) {
	rdb, err := config.InitRedis(cfg)
	if err != nil || rdb == nil {
		return nil, err
	}
	lc.Append(fx.StopHook(rdb.Close))
	return rdb, nil
}

// newFirebase returns nil when no credentials are configured; FCM delivery and
// Firebase login are then unavailable.
func newFirebase(cfg *config.Config, logger *zap.Logger) (*firebase.App, error) {
	if cfg.FirebaseCredentialsPath == "" {
		logger.Warn("FIREBASE_CREDENTIALS_PATH not set, FCM delivery disabled")
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
}

func newTokenVerifier(app *firebase.App) middleware.TokenVerifier {
	if app == nil {
		return nil
	}
	return app.AuthClient
}

func newActivityLog(lc fx.Lifecycle, cfg *config.Config, db *config.DB, logger *zap.Logger) repositories.ActivityLog {
	if db.Mongo == nil {
		return repositories.NopActivityLog{}
	}
	activity := repositories.NewMongoActivityLog(db.Mongo.Database(cfg.MongoDatabase))
	lc.Append(fx.StartHook(func(ctx context.Context) {
		if err := activity.EnsureIndexes(ctx); err != nil {
			logger.Warn("failed to create activity log indexes", zap.Error(err))
		}
	}))
	return activity
}

// newGateway routes ios tokens to APNs when a signing key is configured and
// everything else through FCM.
func newGateway(cfg *config.Config, app *firebase.App, logger *zap.Logger) (push.Gateway, error) {
	gateways := &push.PlatformRouter{ByPlatform: map[string]push.Gateway{}}
	if app != nil {
		gateways.Default = push.NewFCMGateway(app.MessagingClient)
	}
	if cfg.APNs.Enabled() {
		apns, err := push.NewAPNsGateway(push.APNsConfig(cfg.APNs))
		if err != nil {
			return nil, err
		}
		gateways.ByPlatform[models.PlatformIOS] = apns
		logger.Info("APNs delivery enabled", zap.Bool("production", cfg.APNs.Production))
	}
	return gateways, nil
}

func newQueue(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (push.Queue, error) {
	var queue push.Queue
	switch cfg.Push.Queue {
	case "amqp":
		q, err := push.DialAMQPQueue(cfg.Push.AMQPURL, cfg.Push.AMQPQueue, cfg.Push.Workers, logger)
		if err != nil {
			return nil, err
		}
		queue = q
	case "memory", "":
		queue = push.NewMemoryQueue(cfg.Push.QueueSize)
	default:
		return nil, fmt.Errorf("unknown PUSH_QUEUE %q", cfg.Push.Queue)
	}
	lc.Append(fx.StopHook(queue.Close))
	logger.Info("Push queue ready", zap.String("kind", cfg.Push.Queue))
	return queue, nil
}

func newResolver(cfg *config.Config, users *repositories.PostgresUserRepository) *targeting.Resolver {
	return targeting.NewResolver(users, cfg.DirectoryTimeout)
}

func newPolicy(cfg *config.Config) (*authz.Policy, error) {
	return authz.NewPolicy(cfg.RBACPolicyPath)
}

func newDispatcher(
	resolver *targeting.Resolver,
	store repositories.NotificationRepository,
	tokens repositories.DeviceTokenRepository,
	queue push.Queue,
	aggregator *analytics.Aggregator,
	logger *zap.Logger,
) *dispatch.Dispatcher {
	return dispatch.NewDispatcher(resolver, store, tokens, queue, aggregator, logger)
}

func newPipeline(
	cfg *config.Config,
	queue push.Queue,
	gateway push.Gateway,
	tokens repositories.DeviceTokenRepository,
	aggregator *analytics.Aggregator,
	activity repositories.ActivityLog,
	logger *zap.Logger,
) *push.Pipeline {
	return push.NewPipeline(push.Config{
		Workers:       cfg.Push.Workers,
		MaxAttempts:   cfg.Push.MaxAttempts,
		BaseBackoff:   cfg.Push.BaseBackoff,
		MaxBackoff:    cfg.Push.MaxBackoff,
		SendTimeout:   cfg.Push.SendTimeout,
		RatePerSecond: cfg.Push.RatePerSecond,
		Burst:         cfg.Push.RateBurst,
	}, queue, gateway, tokens, aggregator, activity, logger)
}

func newHandlers(
	cfg *config.Config,
	dispatcher *dispatch.Dispatcher,
	tracker *readstate.Tracker,
	aggregator *analytics.Aggregator,
	store repositories.NotificationRepository,
	tokens repositories.DeviceTokenRepository,
	users *repositories.PostgresUserRepository,
	policy *authz.Policy,
	verifier middleware.TokenVerifier,
	logger *zap.Logger,
) router.Handlers {
	h := router.Handlers{
		User:         handlers.NewUserHandler(users),
		Notification: handlers.NewNotificationHandler(dispatcher, tracker, aggregator, store, tokens, policy, logger),
	}
	if verifier != nil {
		h.Auth = handlers.NewAuthHandler(verifier, users, cfg.JWTSecret, accessTokenTTL, logger)
	}
	return h
}

// runPipeline drains the push queue until shutdown. It is invoked before the
// routes so the HTTP server stops accepting sends before the workers stop.
func runPipeline(lc fx.Lifecycle, pipeline *push.Pipeline, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := pipeline.Run(ctx); err != nil {
					logger.Error("push pipeline failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
