package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"glucoheart/internal/app"
	"glucoheart/internal/cache"
	"glucoheart/internal/config"
	"glucoheart/internal/event"
	"glucoheart/internal/model"
	"glucoheart/internal/pkg/logging"
	"glucoheart/internal/platform/database"
	rabbitmqClient "glucoheart/internal/platform/rabbitmq"
	redisClient "glucoheart/internal/platform/redis"
	"glucoheart/internal/repository"
	"glucoheart/internal/transport/ws"
	"glucoheart/internal/worker"
)

type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	DB          *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	RelayWorker *worker.EventRelayWorker

	Store             *repository.Store
	Hub               *ws.Hub
	Gateway           *ws.Gateway
	UserService       *app.UserService
	ChatService       *app.ChatService
	DiscussionService *app.DiscussionService

	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		Config:    cfg,
		Logger:    logger,
		StartedAt: time.Now(),
	}

	db, err := OpenDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.DB = db
	if cfg.Database.AutoMigrate {
		if err := Migrate(db); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Redis = redisCli

	a.Hub = ws.NewHub()
	var publisher event.Publisher = a.Hub
	if cfg.Realtime.Fanout == config.FanoutRabbitMQ {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.MQConn = mqConn

		// Every instance, including this one, receives its own events back
		// through the relay, so the hub is not called directly.
		publisher = rabbitmqClient.NewEventPublisher(mqConn, cfg.RabbitMQ.EventExchange)
		a.RelayWorker = worker.NewEventRelayWorker(mqConn, cfg.RabbitMQ.EventExchange, a.Hub)
		if err := a.RelayWorker.Start(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("start event relay worker failed: %w", err)
		}
	}

	policy := app.MessagePolicy{
		MaxContentRunes: cfg.Chat.MaxContentRunes,
		PageSize:        cfg.Chat.HistoryPageSize,
	}
	limiter := cache.NewRateLimiter(redisCli, "glucoheart:ratelimit:send", cfg.Chat.SendRatePerSecond, cfg.Chat.SendBurst)

	a.Store = repository.NewStore(db)
	a.UserService = app.NewUserService(a.Store)
	a.ChatService = app.NewChatService(
		a.Store,
		publisher,
		cache.NewHistoryCache[model.Message](redisCli, "chat", cfg.HistoryTTL(), cfg.HistoryDirtyTTL()),
		limiter,
		policy,
	)
	a.DiscussionService = app.NewDiscussionService(
		a.Store,
		publisher,
		cache.NewHistoryCache[model.DiscussionMessage](redisCli, "discussion", cfg.HistoryTTL(), cfg.HistoryDirtyTTL()),
		limiter,
		policy,
	)
	a.Gateway = ws.NewGateway(a.Hub, a.ChatService, a.DiscussionService, cfg.Auth.JWTSecret, ws.Options{
		SendBuffer:      cfg.Realtime.SendBuffer,
		MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
		PongWait:        cfg.PongWait(),
		AllowedOrigins:  cfg.Realtime.AllowedOrigins,
	})

	logger.Info("application initialised",
		"db_driver", cfg.Database.Driver,
		"fanout", cfg.Realtime.Fanout,
	)
	return a, nil
}

// OpenDatabase connects to the driver selected by database.driver.
func OpenDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:                                   logging.Gorm(logger, cfg.Log.Level),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	}
	return database.Open(ctx, cfg, gormCfg)
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.RelayWorker != nil {
		a.RelayWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
