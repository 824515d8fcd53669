// Package app wires configuration into the running services.
package app

import (
	"context"
	"errors"
	"fmt"

	"gastbokning/internal/api"
	"gastbokning/internal/billing"
	"gastbokning/internal/config"
	"gastbokning/internal/database"
	"gastbokning/internal/delivery"
	"gastbokning/internal/directory"
	"gastbokning/internal/events"
	"gastbokning/internal/google"
	"gastbokning/internal/lock"
	"gastbokning/internal/metrics"
	"gastbokning/internal/pricing"
	"gastbokning/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App holds the wired services and the resources they own.
type App struct {
	Config     *config.Config
	Store      *database.Store
	Redis      *redis.Client
	Calculator *pricing.Calculator
	Directory  directory.Source
	Sheets     *google.SheetsService
	Dispatcher *delivery.Dispatcher
	Events     *events.EventBus
	Bookings   *service.BookingService
	Reports    *service.ReportService

	logger *zerolog.Logger
}

// New opens the store and builds every service described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Events: events.NewEventBus(), logger: logger}

	tariff, err := cfg.LoadTariff()
	if err != nil {
		return nil, fmt.Errorf("load tariff: %w", err)
	}
	a.Calculator = pricing.NewCalculator(tariff)

	a.Store, err = database.Open(ctx, cfg.DatabaseDriver(), cfg.DatabaseDSN(), cfg.OverlapPolicy(), logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.Redis.Address != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	}

	if err := a.buildDirectory(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildDelivery(); err != nil {
		a.Close()
		return nil, err
	}

	var locker lock.Locker
	if cfg.Lock.Enabled && a.Redis != nil {
		locker = lock.NewRedisLocker(a.Redis, cfg.LockPrefix(), cfg.LockTTL(), cfg.LockWait())
	}
	a.Bookings = service.NewBookingService(a.Store, cfg.OverlapPolicy(), locker, a.Events, database.IsNotFound, logger)

	aggregator := billing.NewAggregator(a.Store, a.Directory, a.Calculator, cfg.Report.Organization, logger,
		billing.WithObserver(metrics.BillingObserver{}))
	a.Reports = service.NewReportService(aggregator, a.Dispatcher, a.Events, cfg.Report.Kind, logger)

	a.subscribeLogging()
	return a, nil
}

func (a *App) buildDirectory(ctx context.Context) error {
	var source directory.Source = a.Store
	if a.Config.Directory.Source == config.DirectorySheets {
		sheets, err := google.NewSheetsService(ctx,
			a.Config.Directory.Sheets.CredentialsFile,
			a.Config.Directory.Sheets.SpreadsheetID,
			a.Config.SheetsRange(),
			a.logger)
		if err != nil {
			return fmt.Errorf("sheets directory: %w", err)
		}
		a.Sheets = sheets
		source = sheets
	}

	if ttl := a.Config.DirectoryCacheTTL(); ttl > 0 && a.Redis != nil {
		a.Directory = directory.NewCachedSource(source, a.Redis, a.Config.Directory.CacheKey, ttl, a.logger)
		return nil
	}
	a.Directory = source
	return nil
}

func (a *App) buildDelivery() error {
	var senders []delivery.Sender
	if e := a.Config.Email; e.Enabled {
		senders = append(senders, delivery.NewEmailSender(delivery.EmailConfig{
			APIKey:   e.APIKey,
			From:     e.From,
			To:       e.To,
			Endpoint: e.Endpoint,
			Timeout:  a.Config.EmailTimeout(),
		}))
	}
	if tg := a.Config.Telegram; tg.Enabled {
		bot, err := delivery.NewTelegramBot(tg.BotToken, tg.APIEndpoint)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		senders = append(senders, delivery.NewTelegramSender(bot, tg.ChatIDs, tg.PerSecond))
	}
	a.Dispatcher = delivery.NewDispatcher(a.logger, senders...)
	return nil
}

func (a *App) subscribeLogging() {
	logBooking := func(e events.Event) error {
		var b struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		}
		if err := e.Decode(&b); err != nil {
			return err
		}
		a.logger.Debug().Int64("event_id", e.ID).Str("event", e.Type).Int64("booking_id", b.ID).Str("status", b.Status).Msg("Domain event")
		return nil
	}
	a.Events.Subscribe(events.TypeBookingCreated, logBooking)
	a.Events.Subscribe(events.TypeBookingStatusChanged, logBooking)
	a.Events.Subscribe(events.TypeReportDelivered, func(events.Event) error {
		// Delivered reports reflect the directory at that time; start the next month fresh.
		if cached, ok := a.Directory.(*directory.CachedSource); ok {
			return cached.Invalidate(context.Background())
		}
		return nil
	})
}

// ReadinessChecks returns the dependency checks served on /readyz.
func (a *App) ReadinessChecks() map[string]api.Check {
	checks := map[string]api.Check{
		"database": a.Store.Ping,
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close releases the store and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	return errors.Join(errs...)
}
