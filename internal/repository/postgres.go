package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/klarolink/notifications/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const notificationColumns = `id, category, priority, status, title, description, metadata, progress_percentage,
	created_at, updated_at, estimated_completion, actual_completion, is_read, is_archived`

// PostgresRepository implements domain.NotificationRepository and
// domain.SubscriberRepository using PostgreSQL
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the notification tables if they do not exist
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks the pool can reach the database
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// CreateNotification inserts a notification
func (r *PostgresRepository) CreateNotification(ctx context.Context, params domain.CreateNotificationParams) (*domain.Notification, error) {
	query := `
		INSERT INTO task_notifications (category, priority, status, title, description, metadata, progress_percentage, estimated_completion)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + notificationColumns

	row := r.db.QueryRow(ctx, query,
		params.Category,
		string(params.Priority),
		string(params.Status),
		params.Title,
		params.Description,
		jsonbValue(params.Metadata),
		params.ProgressPercentage,
		params.EstimatedCompletion,
	)
	return scanNotification(row)
}

// GetNotification retrieves a notification by ID
func (r *PostgresRepository) GetNotification(ctx context.Context, id int64) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM task_notifications WHERE id = $1`
	return scanNotification(r.db.QueryRow(ctx, query, id))
}

// ListNotifications returns notifications matching filter, newest first
func (r *PostgresRepository) ListNotifications(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, error) {
	where, args := whereClause(filter)
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM task_notifications %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		notificationColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectNotifications(rows)
}

// GetNotificationStats counts notifications matching filter, ignoring paging
func (r *PostgresRepository) GetNotificationStats(ctx context.Context, filter domain.NotificationFilter) (domain.NotificationStats, error) {
	where, args := whereClause(filter)
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'in_progress'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COUNT(*) FILTER (WHERE priority = 'low'),
			COUNT(*) FILTER (WHERE priority = 'medium'),
			COUNT(*) FILTER (WHERE priority = 'high'),
			COUNT(*) FILTER (WHERE priority = 'critical'),
			COUNT(*) FILTER (WHERE NOT is_read),
			COUNT(*) FILTER (WHERE ` + overdueCondition + `)
		FROM task_notifications ` + where

	var st domain.NotificationStats
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&st.Total,
		&st.Pending,
		&st.InProgress,
		&st.Completed,
		&st.Failed,
		&st.Cancelled,
		&st.Low,
		&st.Medium,
		&st.High,
		&st.Critical,
		&st.Unread,
		&st.Overdue,
	)
	return st, err
}

// UpdateNotification applies a partial update
func (r *PostgresRepository) UpdateNotification(ctx context.Context, id int64, params domain.UpdateNotificationParams) (*domain.Notification, error) {
	set, args := updateSet(params)
	query := `UPDATE task_notifications SET ` + set + ` WHERE id = $1 RETURNING ` + notificationColumns
	return scanNotification(r.db.QueryRow(ctx, query, append([]interface{}{id}, args...)...))
}

// MarkNotificationRead sets is_read on a notification
func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, id int64) (*domain.Notification, error) {
	query := `UPDATE task_notifications SET is_read = TRUE, updated_at = NOW() WHERE id = $1 RETURNING ` + notificationColumns
	return scanNotification(r.db.QueryRow(ctx, query, id))
}

// BulkUpdateNotifications applies action to every row matching filter and
// returns the affected rows. Paging is ignored.
func (r *PostgresRepository) BulkUpdateNotifications(ctx context.Context, action domain.BulkAction, filter domain.NotificationFilter) ([]*domain.Notification, error) {
	where, args := whereClause(filter)

	var query string
	switch action {
	case domain.BulkMarkRead:
		query = `UPDATE task_notifications SET is_read = TRUE, updated_at = NOW() ` + where + ` AND NOT is_read`
	case domain.BulkMarkUnread:
		query = `UPDATE task_notifications SET is_read = FALSE, updated_at = NOW() ` + where + ` AND is_read`
	case domain.BulkArchive:
		query = `UPDATE task_notifications SET is_archived = TRUE, updated_at = NOW() ` + where
	case domain.BulkDelete:
		query = `DELETE FROM task_notifications ` + where
	default:
		return nil, domain.ErrUnknownBulkAction
	}

	rows, err := r.db.Query(ctx, query+` RETURNING `+notificationColumns, args...)
	if err != nil {
		return nil, err
	}
	return collectNotifications(rows)
}

// DeleteNotification removes a notification and returns it
func (r *PostgresRepository) DeleteNotification(ctx context.Context, id int64) (*domain.Notification, error) {
	query := `DELETE FROM task_notifications WHERE id = $1 RETURNING ` + notificationColumns
	return scanNotification(r.db.QueryRow(ctx, query, id))
}

// RegisterSubscriber upserts the registry row for a live connection
func (r *PostgresRepository) RegisterSubscriber(ctx context.Context, sub *domain.Subscriber) error {
	query := `
		INSERT INTO notification_subscribers (user_id, connection_id, categories, subscribed_at, last_ping, is_active)
		VALUES ($1, $2, $3, $4, $4, TRUE)
		ON CONFLICT (user_id, connection_id)
		DO UPDATE SET categories = EXCLUDED.categories, last_ping = EXCLUDED.last_ping, is_active = TRUE
	`
	_, err := r.db.Exec(ctx, query, sub.UserID, sub.ConnectionID, sub.Categories, sub.SubscribedAt)
	return err
}

// UpdateSubscriberCategories replaces the recorded categories of a connection
func (r *PostgresRepository) UpdateSubscriberCategories(ctx context.Context, userID, connectionID string, categories []string) error {
	query := `UPDATE notification_subscribers SET categories = $3, last_ping = NOW() WHERE user_id = $1 AND connection_id = $2`
	_, err := r.db.Exec(ctx, query, userID, connectionID, categories)
	return err
}

// TouchSubscriber records a heartbeat
func (r *PostgresRepository) TouchSubscriber(ctx context.Context, userID, connectionID string) error {
	query := `UPDATE notification_subscribers SET last_ping = NOW() WHERE user_id = $1 AND connection_id = $2`
	_, err := r.db.Exec(ctx, query, userID, connectionID)
	return err
}

// DeactivateSubscriber marks a connection row inactive
func (r *PostgresRepository) DeactivateSubscriber(ctx context.Context, userID, connectionID string) error {
	query := `UPDATE notification_subscribers SET is_active = FALSE WHERE user_id = $1 AND connection_id = $2`
	_, err := r.db.Exec(ctx, query, userID, connectionID)
	return err
}

// DeactivateStaleSubscribers marks rows inactive whose last heartbeat is older than the cutoff
func (r *PostgresRepository) DeactivateStaleSubscribers(ctx context.Context, before time.Time) (int64, error) {
	query := `UPDATE notification_subscribers SET is_active = FALSE WHERE is_active AND last_ping < $1`
	tag, err := r.db.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Helper functions for scanning rows

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	var priority, status string
	err := row.Scan(
		&n.ID,
		&n.Category,
		&priority,
		&status,
		&n.Title,
		&n.Description,
		&n.Metadata,
		&n.ProgressPercentage,
		&n.CreatedAt,
		&n.UpdatedAt,
		&n.EstimatedCompletion,
		&n.ActualCompletion,
		&n.IsRead,
		&n.IsArchived,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotificationNotFound
		}
		return nil, err
	}
	n.Priority = domain.Priority(priority)
	n.Status = domain.NotificationStatus(status)
	return &n, nil
}

func collectNotifications(rows pgx.Rows) ([]*domain.Notification, error) {
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// jsonbValue keeps an absent metadata map as SQL NULL rather than 'null'::jsonb.
func jsonbValue(m domain.Map) interface{} {
	if m == nil {
		return nil
	}
	return map[string]interface{}(m)
}
