package history

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// BackupConfig controls periodic copies of the ledger file.
type BackupConfig struct {
	Dir           string
	Interval      time.Duration
	RetentionDays int
}

// Backup periodically snapshots the sqlite ledger so a cleanup run can be
// audited even after the live file is gone.
type Backup struct {
	ledgerPath string
	cfg        BackupConfig
	logger     zerolog.Logger
}

// NewBackup creates a backup service for the ledger at ledgerPath.
func NewBackup(ledgerPath string, cfg BackupConfig, logger zerolog.Logger) *Backup {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &Backup{ledgerPath: ledgerPath, cfg: cfg, logger: logger}
}

// Run snapshots the ledger immediately and then on every interval until the
// context is cancelled.
func (b *Backup) Run(ctx context.Context) {
	b.logger.Info().Dur("interval", b.cfg.Interval).Str("dir", b.cfg.Dir).Msg("ledger backup started")

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	if err := b.Snapshot(); err != nil {
		b.logger.Error().Err(err).Msg("ledger backup failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Snapshot(); err != nil {
				b.logger.Error().Err(err).Msg("ledger backup failed")
			}
			b.prune()
		}
	}
}

// Snapshot copies the ledger file into the backup directory.
func (b *Backup) Snapshot() error {
	if err := os.MkdirAll(b.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	name := fmt.Sprintf("ledger_%s.db", time.Now().Format("20060102_150405"))
	path := filepath.Join(b.cfg.Dir, name)

	src, err := os.Open(b.ledgerPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create backup: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy ledger: %w", err)
	}

	b.logger.Info().Str("path", path).Msg("ledger backup written")
	return nil
}

// prune removes backups older than the retention window.
func (b *Backup) prune() {
	if b.cfg.RetentionDays <= 0 {
		return
	}

	entries, err := os.ReadDir(b.cfg.Dir)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to read backup dir")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -b.cfg.RetentionDays)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			b.logger.Info().Str("file", entry.Name()).Msg("pruning old ledger backup")
			_ = os.Remove(filepath.Join(b.cfg.Dir, entry.Name()))
		}
	}
}
