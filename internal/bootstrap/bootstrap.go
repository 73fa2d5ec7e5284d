// Package bootstrap builds the shared object graph of the binaries.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/oggyb/outreach-campaigns/internal/cache"
	cacheredis "github.com/oggyb/outreach-campaigns/internal/cache/redis"
	"github.com/oggyb/outreach-campaigns/internal/campaign"
	"github.com/oggyb/outreach-campaigns/internal/config"
	"github.com/oggyb/outreach-campaigns/internal/db/gormdb"
	domain "github.com/oggyb/outreach-campaigns/internal/domain/message"
	"github.com/oggyb/outreach-campaigns/internal/metrics"
	"github.com/oggyb/outreach-campaigns/internal/provider"
	messagegorm "github.com/oggyb/outreach-campaigns/internal/repository/gorm/message"
	"github.com/oggyb/outreach-campaigns/internal/repository/table"
	"github.com/oggyb/outreach-campaigns/internal/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides config, logging, metrics, storage, cache, provider client and services.
var Module = fx.Options(
	fx.Provide(
		config.New,
		NewLogger,
		NewMetrics,
		NewRepository,
		NewCache,
		NewProviderClient,
		NewDispatcher,
		NewReconcileService,
		NewMessageService,
	),
)

// NewLogger returns a production logger outside development.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.App.Env == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("app", cfg.App.Name)), nil
}

// NewMetrics builds the process-wide Prometheus registry and collectors.
func NewMetrics() *metrics.Metrics {
	return metrics.New(nil)
}

// NewRepository opens the configured record store backend.
func NewRepository(cfg *config.Config, logger *zap.Logger, lc fx.Lifecycle) (domain.Repository, error) {
	log := logger.Named("store")

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		conn, err := gormdb.New(cfg.PostgresDSN(), gormdb.PoolOptions{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect db: %w", err)
		}
		repo := messagegorm.NewRepository(conn, messagegorm.Options{
			ReadRetries:    cfg.Store.ReadRetries,
			ReadRetryDelay: cfg.Store.ReadRetryDelay,
		}, log)

		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := repo.Migrate(ctx); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				log.Info("postgres store ready", zap.String("db", cfg.DB.Name))
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return conn.Close()
			},
		})
		return repo, nil

	default:
		store, err := table.Open(cfg.Store.Path, table.Options{
			ReadRetries:    cfg.Store.ReadRetries,
			ReadRetryDelay: cfg.Store.ReadRetryDelay,
		}, log)
		if err != nil {
			return nil, err
		}
		log.Info("file store ready", zap.String("path", store.Path()))
		return store, nil
	}
}

// NewCache connects to Redis when an address is configured. An unreachable
// Redis is logged and otherwise tolerated, every cache call is best effort.
func NewCache(cfg *config.Config, logger *zap.Logger, lc fx.Lifecycle) cache.Cache {
	if !cfg.RedisEnabled() {
		logger.Info("redis disabled")
		return cache.Noop{}
	}

	client := cacheredis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx); err != nil {
				logger.Warn("redis unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

func NewProviderClient(cfg *config.Config, logger *zap.Logger) provider.Client {
	return provider.NewHTTPClient(cfg.Provider.BaseURL, cfg.Provider.Timeout, logger.Named("provider"))
}

// NewDispatcher loads the template catalog and builds the campaign dispatcher.
func NewDispatcher(cfg *config.Config, client provider.Client, logger *zap.Logger) (service.Dispatcher, error) {
	templates, err := campaign.LoadTemplates(cfg.Campaign.TemplatesPath)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		logger.Warn("no message templates loaded", zap.String("path", cfg.Campaign.TemplatesPath))
	}

	return campaign.NewDispatcher(client, templates, campaign.RandomPicker{}, campaign.Options{
		MaxWorkers:        cfg.Worker.MaxWorkers,
		PerMessageTimeout: cfg.Worker.PerMessageTimeout,
		Pacing:            cfg.Worker.Pacing,
	}, logger.Named("dispatcher")), nil
}

func NewReconcileService(cfg *config.Config, repo domain.Repository, client provider.Client, c cache.Cache, m *metrics.Metrics, logger *zap.Logger) service.ReconcileService {
	return service.NewReconcileService(repo, client, service.Options{
		Policy: service.Policy{
			MaxRetries:       cfg.Policy.MaxRetries,
			RetryBackoff:     cfg.Policy.RetryBackoff,
			ReplyWindow:      cfg.Policy.ReplyWindow,
			FollowupDelay:    cfg.Policy.FollowupDelay,
			FollowupTemplate: cfg.Campaign.FollowupTemplate,
		},
		Cache:    c,
		CacheTTL: cfg.Redis.TTL,
		Metrics:  m,
	}, logger.Named("reconcile"))
}

func NewMessageService(repo domain.Repository, d service.Dispatcher, engine service.ReconcileService, c cache.Cache, logger *zap.Logger) service.MessageService {
	return service.NewMessageService(repo, d, engine, c, 0, logger.Named("messages"))
}
