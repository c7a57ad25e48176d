package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/klarolink/notifications/internal/domain"
	"github.com/klarolink/notifications/internal/storage"
)

// CleanupOptions configures the retention worker
type CleanupOptions struct {
	Interval time.Duration
	// Archived notifications untouched for longer than Retention are exported and deleted.
	Retention time.Duration
	// Subscriber rows without a heartbeat for longer than StaleAfter are deactivated.
	StaleAfter time.Duration
	// Archive receives the exported rows. Nil deletes without exporting.
	Archive storage.FileStorage
}

// RunCleanup performs one retention pass
func (r *PostgresRepository) RunCleanup(ctx context.Context, opts CleanupOptions, logger *zap.Logger) error {
	now := time.Now()

	purged, err := r.purgeArchived(ctx, now.Add(-opts.Retention), now, opts.Archive)
	if err != nil {
		return fmt.Errorf("purge archived notifications: %w", err)
	}

	stale, err := r.DeactivateStaleSubscribers(ctx, now.Add(-opts.StaleAfter))
	if err != nil {
		return fmt.Errorf("deactivate stale subscribers: %w", err)
	}

	if purged > 0 || stale > 0 {
		logger.Info("cleanup finished", zap.Int("purged_notifications", purged), zap.Int64("stale_subscribers", stale))
	}
	return nil
}

// purgeArchived deletes old archived rows inside a transaction that only
// commits once the export has been stored.
func (r *PostgresRepository) purgeArchived(ctx context.Context, before, now time.Time, archive storage.FileStorage) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	query := `DELETE FROM task_notifications WHERE is_archived AND updated_at < $1 RETURNING ` + notificationColumns
	rows, err := tx.Query(ctx, query, before)
	if err != nil {
		return 0, err
	}
	purged, err := collectNotifications(rows)
	if err != nil {
		return 0, err
	}
	if len(purged) == 0 {
		return 0, nil
	}

	if archive != nil {
		body, err := encodeArchive(purged)
		if err != nil {
			return 0, err
		}
		if _, err := archive.SaveFile(ctx, bytes.NewReader(body), archiveName(now), "application/x-ndjson"); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(purged), nil
}

// encodeArchive renders notifications as newline-delimited JSON
func encodeArchive(ns []*domain.Notification) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, n := range ns {
		if err := enc.Encode(n); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func archiveName(now time.Time) string {
	return "task_notifications-" + now.UTC().Format("20060102T150405Z") + ".ndjson"
}

// StartCleanupWorker starts a background worker running RunCleanup on every tick
func (r *PostgresRepository) StartCleanupWorker(ctx context.Context, opts CleanupOptions, logger *zap.Logger) {
	go func() {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.RunCleanup(ctx, opts, logger); err != nil {
					logger.Error("cleanup failed", zap.Error(err))
				}
			}
		}
	}()
}
