// Command report generates a monthly billing report file and can sync the
// resident directory from Google Sheets into the database.
//
//	report generate -year 2023 -month 7 -format pdf -out ./reports [-send]
//	report sync-residents
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gastbokning/internal/app"
	"gastbokning/internal/billing"
	"gastbokning/internal/config"
	"gastbokning/internal/scheduler"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load(".env")

	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(ctx, os.Args[2:], &logger)
	case "sync-residents":
		err = runSyncResidents(ctx, os.Args[2:], &logger)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error().Err(err).Str("command", os.Args[1]).Msg("command failed")
		stop()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: report generate [-config path] [-year Y] [-month M] [-format csv|pdf|xlsx] [-out dir] [-preparer name] [-send]")
	fmt.Fprintln(os.Stderr, "       report sync-residents [-config path]")
}

func runGenerate(ctx context.Context, args []string, logger *zerolog.Logger) error {
	prevYear, prevMonth := scheduler.PreviousMonth(time.Now())

	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("GASTBOKNING_CONFIG_PATH"), "path to config.yaml")
	year := fs.Int("year", prevYear, "report year")
	month := fs.Int("month", prevMonth, "report month (1-12)")
	format := fs.String("format", "pdf", "output format: csv, pdf or xlsx")
	outDir := fs.String("out", ".", "directory to write the report to")
	preparer := fs.String("preparer", "", "name printed as the report's preparer")
	send := fs.Bool("send", false, "deliver the report through the configured channels")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *preparer == "" {
		*preparer = cfg.Report.Preparer
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.Reports.Generate(ctx, billing.Request{Year: *year, Month: *month, Preparer: *preparer}, *format)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(*outDir, doc.Filename)
	if err := os.WriteFile(path, doc.Data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Info().Str("path", path).Str("total", doc.Report.Total.StringFixed(2)).Msg("Report written")

	if *send {
		if err := a.Reports.Deliver(ctx, doc); err != nil {
			return fmt.Errorf("report written to %s but delivery failed: %w", path, err)
		}
		logger.Info().Strs("channels", a.Dispatcher.Channels()).Msg("Report delivered")
	}
	return nil
}

func runSyncResidents(ctx context.Context, args []string, logger *zerolog.Logger) error {
	fs := flag.NewFlagSet("sync-residents", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("GASTBOKNING_CONFIG_PATH"), "path to config.yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Sheets == nil {
		return errors.New("directory.source must be sheets to sync residents")
	}
	residents, err := a.Sheets.ListResidents(ctx)
	if err != nil {
		return err
	}
	if err := a.Store.ReplaceResidents(ctx, residents); err != nil {
		return err
	}
	logger.Info().Int("residents", len(residents)).Msg("Resident directory synced")
	return nil
}
