package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/oggyb/outreach-campaigns/internal/bootstrap"
	"github.com/oggyb/outreach-campaigns/internal/campaign"
	"github.com/oggyb/outreach-campaigns/internal/config"
	"github.com/oggyb/outreach-campaigns/internal/handler"
	"github.com/oggyb/outreach-campaigns/internal/metrics"
	"github.com/oggyb/outreach-campaigns/internal/provider"
	routes "github.com/oggyb/outreach-campaigns/internal/router"
	"github.com/oggyb/outreach-campaigns/internal/scheduler"
	"github.com/oggyb/outreach-campaigns/internal/server"
	"github.com/oggyb/outreach-campaigns/internal/service"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	fx.New(
		bootstrap.Module,
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Provide(
			NewScheduler,
			NewServer,
		),
		fx.Invoke(runScheduler, runServer),
		// Stopping waits for an in-flight monitor cycle.
		fx.StopTimeout(3*time.Minute),
	).Run()
}

// NewScheduler builds the monitor loop. It is closed on shutdown after
// waiting for an in-flight cycle.
func NewScheduler(cfg *config.Config, engine service.ReconcileService, logger *zap.Logger, lc fx.Lifecycle) scheduler.SchedulerService {
	cron := scheduler.NewSchedulerService(engine, cfg.Scheduler.Interval, cfg.Scheduler.StopWait, logger.Named("scheduler"))
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := cron.Stop(); err != nil {
				logger.Warn("scheduler stop", zap.Error(err))
			}
			return cron.Close()
		},
	})
	return cron
}

func NewServer(
	cfg *config.Config,
	client provider.Client,
	msgSvc service.MessageService,
	engine service.ReconcileService,
	cron scheduler.SchedulerService,
	m *metrics.Metrics,
	logger *zap.Logger,
) *server.Server {
	leads := func() ([]campaign.Lead, error) {
		return campaign.LoadLeads(cfg.Campaign.LeadsPath)
	}

	deps := routes.AppDeps{
		Home:    handler.NewHomeHandler(client),
		Message: handler.NewMessageHandler(msgSvc, engine, cron, leads, logger.Named("handler")),
	}
	return server.New(cfg.Addr(), deps, m, logger.Named("http"))
}

// runScheduler starts monitoring once the provider answers its health probe.
func runScheduler(client provider.Client, cron scheduler.SchedulerService, logger *zap.Logger, lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := client.Health(probeCtx); err != nil {
				logger.Warn("provider unreachable, scheduler left stopped; start it via POST /scheduler", zap.Error(err))
				return nil
			}
			if err := cron.Start(); err != nil {
				return err
			}
			logger.Info("scheduler started")
			return nil
		},
	})
}

func runServer(cfg *config.Config, srv *server.Server, logger *zap.Logger, lc fx.Lifecycle, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr())
			if err != nil {
				return err
			}
			logger.Info("HTTP server listening", zap.String("addr", cfg.Addr()))

			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server error", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down HTTP server")
			return srv.Shutdown(ctx)
		},
	})
}
