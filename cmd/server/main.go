package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gastbokning/internal/api"
	"gastbokning/internal/app"
	"gastbokning/internal/config"
	"gastbokning/internal/database"
	"gastbokning/internal/metrics"
	"gastbokning/internal/pricing"
	"gastbokning/internal/scheduler"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load(".env")

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("GASTBOKNING_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start services")
	}
	defer a.Close()

	if cfg.Pricing.TariffFile != "" && cfg.Pricing.Watch {
		err := config.WatchTariff(ctx, cfg.Pricing.TariffFile, func(t *pricing.Tariff) {
			a.Calculator.SetTariff(t)
			logger.Info().Str("path", cfg.Pricing.TariffFile).Int("bands", len(t.Bands)).Msg("Tariff loaded")
		}, func(err error) {
			logger.Error().Err(err).Str("path", cfg.Pricing.TariffFile).Msg("Tariff reload failed, keeping previous tariff")
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to watch tariff")
		}
	}

	if cfg.Backup.Enabled {
		backups := database.NewBackupService(a.Store, cfg.Backup.Path, cfg.Backup.RetentionDays, &logger)
		if err := backups.Start(ctx, cfg.Backup.Cron, cfg.SchedulerLocation()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start backups")
		}
	}

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(scheduler.Config{
			Spec:     cfg.Scheduler.Cron,
			Location: cfg.SchedulerLocation(),
			Format:   cfg.Scheduler.Format,
			Preparer: cfg.Report.Preparer,
		}, a.Reports, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create report scheduler")
		}
		if !a.Reports.DeliveryEnabled() {
			logger.Warn().Msg("Report scheduler enabled without delivery channels; reports will fail to send")
		}
		sched.Start(ctx)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, a, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(fmt.Sprintf(":%d", cfg.ServerPort()), cfg.Server.APIKey, a.Bookings, a.Reports, cfg.ReadTimeout(), &logger)
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	logger.Info().
		Str("driver", a.Store.Driver()).
		Str("overlap_policy", cfg.OverlapPolicy().String()).
		Str("directory", cfg.Directory.Source).
		Strs("delivery", a.Dispatcher.Channels()).
		Str("api_key", cfg.MaskedAPIKey()).
		Msg("Guest apartment service started")

	if err := server.Start(); err != nil {
		logger.Error().Err(err).Msg("API server error")
	}
}

func startHealthServer(ctx context.Context, port int, a *app.App, logger *zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: api.NewHealthRouter(a.ReadinessChecks()), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
