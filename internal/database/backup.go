package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrBackupUnsupported is returned for drivers whose backups are managed outside the service.
var ErrBackupUnsupported = errors.New("backups are only supported for sqlite")

const backupPrefix = "gastbokning_"

// Snapshot writes a consistent copy of a SQLite database to path.
// VACUUM INTO is safe while other connections write in WAL mode.
func (s *Store) Snapshot(ctx context.Context, path string) error {
	if s.dialect.name != DriverSQLite {
		return ErrBackupUnsupported
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("backup %s already exists", path)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// BackupService periodically snapshots the booking database and prunes old copies.
type BackupService struct {
	store         *Store
	dir           string
	retentionDays int
	logger        *zerolog.Logger
	now           func() time.Time
}

func NewBackupService(store *Store, dir string, retentionDays int, logger *zerolog.Logger) *BackupService {
	if dir == "" {
		dir = "data/backups"
	}
	return &BackupService{store: store, dir: dir, retentionDays: retentionDays, logger: logger, now: time.Now}
}

// Start schedules backups with a cron expression until ctx is done.
func (s *BackupService) Start(ctx context.Context, spec string, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.PerformBackup(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled backup failed")
			return
		}
		s.CleanupOldBackups()
	}); err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", spec, err)
	}
	c.Start()
	s.logger.Info().Str("schedule", spec).Str("dir", s.dir).Msg("Backup service started")

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

// PerformBackup writes one snapshot and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s%s.db", backupPrefix, s.now().UTC().Format("20060102_150405"))
	path := filepath.Join(s.dir, name)

	start := time.Now()
	if err := s.store.Snapshot(ctx, path); err != nil {
		return "", err
	}
	s.logger.Info().Str("path", path).Dur("duration", time.Since(start)).Msg("Database backup completed")
	return path, nil
}

// CleanupOldBackups removes snapshots older than the retention period.
// Files this service did not create are left alone.
func (s *BackupService) CleanupOldBackups() int {
	if s.retentionDays <= 0 {
		return 0
	}
	files, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return 0
	}

	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}
		info, err := file.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, file.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", file.Name()).Msg("Failed to delete old backup")
			continue
		}
		s.logger.Info().Str("file", file.Name()).Msg("Deleted old backup")
		removed++
	}
	return removed
}
