// Command campaign prepares the record store and sends one campaign.
//
//	campaign migrate             create the store (table or file) and exit
//	campaign send [-leads path]  send to every lead and record the results
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oggyb/outreach-campaigns/internal/bootstrap"
	"github.com/oggyb/outreach-campaigns/internal/campaign"
	"github.com/oggyb/outreach-campaigns/internal/config"
	"github.com/oggyb/outreach-campaigns/internal/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var (
		cfg    *config.Config
		logger *zap.Logger
		msgSvc service.MessageService
	)
	app := fx.New(
		bootstrap.Module,
		fx.NopLogger,
		fx.Populate(&cfg, &logger, &msgSvc),
	)
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "campaign: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}

	code := 0
	switch os.Args[1] {
	case "migrate":
		logger.Info("store is ready", zap.String("backend", cfg.Store.Backend))
	case "send":
		if err := send(ctx, cfg, logger, msgSvc, os.Args[2:]); err != nil {
			logger.Error("campaign failed", zap.Error(err))
			code = 1
		}
	default:
		usage()
		code = 2
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	_ = logger.Sync()
	os.Exit(code)
}

func send(ctx context.Context, cfg *config.Config, logger *zap.Logger, msgSvc service.MessageService, args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	leadsPath := fs.String("leads", cfg.Campaign.LeadsPath, "leads CSV (name,phone,interest_area)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	leads, err := campaign.LoadLeads(*leadsPath)
	if err != nil {
		return err
	}
	logger.Info("leads loaded", zap.String("path", *leadsPath), zap.Int("count", len(leads)))

	queued, total, err := msgSvc.RunCampaign(ctx, leads)
	if err != nil {
		return err
	}
	logger.Info("campaign sent", zap.Int("queued", queued), zap.Int("total", total))
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: campaign migrate | campaign send [-leads path]")
}
