package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/relaymesh/devicegate/internal/config"
	"github.com/relaymesh/devicegate/internal/domain"
	"github.com/relaymesh/devicegate/internal/health"
	"github.com/relaymesh/devicegate/internal/http/handler"
	"github.com/relaymesh/devicegate/internal/http/router"
	"github.com/relaymesh/devicegate/internal/repository"
	"github.com/relaymesh/devicegate/internal/security"
	"github.com/relaymesh/devicegate/internal/service"
)

// relayMessage is a placeholder schema for the outbound message table.
// The table belongs to the messaging collaborator; the gateway only
// creates it in the sandbox profile so the startup check has something
// to find.
type relayMessage struct {
	MessageID string `gorm:"primaryKey;size:64"`
	ToDevice  string `gorm:"index;size:80"`
	Payload   string
	CreatedAt time.Time
}

// App wires the stores, services, and HTTP surface together and owns
// their lifecycle.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *gorm.DB
	redis     *redis.Client
	readiness *health.ProbeRunner
	handler   http.Handler
	server    *http.Server
}

// New builds the full gateway. It refuses to start unless every backing
// store is reachable and the expected tables exist, so a misdeployed
// instance fails at boot instead of on the first request.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.IsSandbox() {
		if err := migrateSandbox(db, cfg); err != nil {
			return nil, err
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	challenges := repository.NewChallengeRepository(redisClient, cfg.ChallengeKeyPrefix, cfg.ChallengeTTL)
	keys := service.NewCachedKeyResolver(
		service.NewRedisKeyCacheStore(redisClient, "device_key"),
		service.NewRedisNegativeLookupCacheStore(redisClient, "negative_lookup"),
		repository.NewPublicKeyRepository(db),
		cfg.KeyCacheTTL,
	)
	sessions := repository.NewSessionRepository(db)

	deviceHandler := handler.NewDeviceHandler(
		service.NewChallengeService(challenges),
		service.NewSessionService(challenges, keys, sessions, security.NewDeviceKeyVerifier()),
	)

	readiness := health.NewProbeRunner(5*time.Second,
		tableProbe(db, "sessions-table", &domain.DeviceSession{}),
		tableProbe(db, "public-keys-table", &domain.DevicePublicKey{}),
		health.Probe{
			Name: "messages-table",
			Check: func(ctx context.Context) error {
				if !db.WithContext(ctx).Migrator().HasTable(cfg.MessagesTable) {
					return fmt.Errorf("table %q does not exist", cfg.MessagesTable)
				}
				return nil
			},
		},
		health.Probe{
			Name: "challenge-store",
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	)

	if ready, results := readiness.Ready(ctx); !ready {
		_ = redisClient.Close()
		for _, r := range results {
			if r.Status != "ok" {
				logger.Error("startup check failed", "check", r.Name, "error", r.Error)
			}
		}
		return nil, fmt.Errorf("startup checks failed, refusing to start")
	}

	h := router.NewRouter(router.Dependencies{
		DeviceHandler:   deviceHandler,
		APIRateLimitRPM: cfg.APIRateLimitRPM,
		Readiness:       readiness,
		EnableOTelHTTP:  cfg.OTELTracingEnabled,
	})

	return &App{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		redis:     redisClient,
		readiness: readiness,
		handler:   h,
		server: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler exposes the HTTP surface for tests.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP until ctx is cancelled, then drains in-flight
// requests within the configured shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("gateway listening", "addr", a.cfg.HTTPAddr, "profile", a.cfg.Profile)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down gateway")
		return a.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}

	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DatabaseDSN)
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DatabaseDriver, err)
	}
	return db, nil
}

func migrateSandbox(db *gorm.DB, cfg *config.Config) error {
	if err := db.AutoMigrate(&domain.DeviceSession{}, &domain.DevicePublicKey{}); err != nil {
		return fmt.Errorf("migrate sandbox schema: %w", err)
	}
	if !db.Migrator().HasTable(cfg.MessagesTable) {
		if err := db.Table(cfg.MessagesTable).AutoMigrate(&relayMessage{}); err != nil {
			return fmt.Errorf("create sandbox messages table: %w", err)
		}
	}
	return nil
}

func tableProbe(db *gorm.DB, name string, model any) health.Probe {
	return health.Probe{
		Name: name,
		Check: func(ctx context.Context) error {
			if !db.WithContext(ctx).Migrator().HasTable(model) {
				return fmt.Errorf("table for %T does not exist", model)
			}
			return nil
		},
	}
}
