// Package scheduler runs the monthly billing report job.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gastbokning/internal/billing"
	"gastbokning/internal/service"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Reports is the part of the report service the job uses.
type Reports interface {
	Generate(ctx context.Context, req billing.Request, format string) (*service.Document, error)
	Deliver(ctx context.Context, doc *service.Document) error
}

// Config holds the job settings.
type Config struct {
	// Spec is a standard five-field cron expression, e.g. "0 7 1 * *".
	Spec     string
	Location *time.Location
	Format   string
	Preparer string
	Timeout  time.Duration
}

// Scheduler generates and delivers the previous month's report on a cron schedule.
type Scheduler struct {
	config  Config
	reports Reports
	cron    *cron.Cron
	logger  *zerolog.Logger
	now     func() time.Time

	mu            sync.Mutex
	lastRunPeriod string // YYYY-MM of the last delivered report
}

// New validates the cron expression and registers the job.
func New(config Config, reports Reports, logger *zerolog.Logger) (*Scheduler, error) {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.Preparer == "" {
		config.Preparer = "Scheduled report"
	}

	s := &Scheduler{
		config:  config,
		reports: reports,
		cron:    cron.New(cron.WithLocation(config.Location)),
		logger:  logger,
		now:     time.Now,
	}
	if _, err := s.cron.AddFunc(config.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
		defer cancel()
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled report failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", config.Spec, err)
	}
	return s, nil
}

// Start runs the cron loop until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.logger.Info().Str("spec", s.config.Spec).Str("timezone", s.config.Location.String()).Msg("Report scheduler started")
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.logger.Info().Msg("Report scheduler stopped")
	}()
}

// PreviousMonth returns the calendar month before the one containing t.
func PreviousMonth(t time.Time) (year, month int) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	prev := first.AddDate(0, -1, 0)
	return prev.Year(), int(prev.Month())
}

// RunOnce builds and delivers the previous month's report. A month that was
// already delivered by this process is not sent again.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	year, month := PreviousMonth(s.now().In(s.config.Location))
	period := fmt.Sprintf("%d-%02d", year, month)

	s.mu.Lock()
	alreadyRan := s.lastRunPeriod == period
	s.mu.Unlock()
	if alreadyRan {
		s.logger.Debug().Str("period", period).Msg("Report already delivered")
		return nil
	}

	start := time.Now()
	doc, err := s.reports.Generate(ctx, billing.Request{Year: year, Month: month, Preparer: s.config.Preparer}, s.config.Format)
	if err != nil {
		return fmt.Errorf("generate %s: %w", period, err)
	}
	if err := s.reports.Deliver(ctx, doc); err != nil {
		return fmt.Errorf("deliver %s: %w", doc.Filename, err)
	}

	s.mu.Lock()
	s.lastRunPeriod = period
	s.mu.Unlock()

	s.logger.Info().
		Str("period", period).
		Str("filename", doc.Filename).
		Dur("duration", time.Since(start)).
		Msg("Scheduled report delivered")
	return nil
}
