package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nkovacs/hospital/internal/app"
	"github.com/nkovacs/hospital/internal/config"
	"github.com/nkovacs/hospital/internal/healthcheck"
	"github.com/nkovacs/hospital/internal/hospital"
	"github.com/nkovacs/hospital/internal/logging"
	"github.com/nkovacs/hospital/internal/metrics"
	"github.com/nkovacs/hospital/internal/notify"
	"github.com/nkovacs/hospital/internal/probe"
	"github.com/nkovacs/hospital/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := logging.New()
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := logging.NewWithLevel(cfg.LogLevel)
	logger.Info().Msg("hospital starting")

	application, err := app.LoadDefinition(cfg.AppFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.AppFile).Msg("invalid application definition")
	}

	collectors := metrics.New()
	tracker := healthcheck.NewTracker()
	prober := probe.NewHTTPProber(cfg.ProbeTimeout)

	webhookNotifier, err := notify.NewWebhookNotifier(logger, cfg.NotifyWebhookURL, "")
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid webhook notifier")
	}
	notifiers := []notify.Notifier{notify.NewSlackNotifier(logger, cfg.SlackWebhookURL)}
	if webhookNotifier != nil {
		notifiers = append(notifiers, webhookNotifier)
	}
	notifier := notify.NewMultiNotifier(notifiers...)

	bridge := notify.NewBridge(logger, notifier)
	for _, svc := range application.Services {
		bridge.Attach(svc)
	}

	registry := hospital.New(logger, prober, collectors, tracker)
	registry.Start(application)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server.Start(ctx, logger, tracker, collectors, cfg.HealthPort, cfg.MetricsPort)

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	registry.Stop(application)
	for _, svc := range application.Services {
		bridge.Detach(svc)
	}
}
