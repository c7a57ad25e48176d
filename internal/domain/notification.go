package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidNotification  = errors.New("invalid notification")
	ErrInvalidFilter        = errors.New("invalid notification filter")
	ErrUnknownBulkAction    = errors.New("unknown bulk action")
)

// Priority is an ordered notification priority: low < medium < high < critical.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns the position of p in the priority order, or -1 if p is unknown.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	}
	return -1
}

func (p Priority) Valid() bool { return p.Rank() >= 0 }

type NotificationStatus string

const (
	StatusPending    NotificationStatus = "pending"
	StatusInProgress NotificationStatus = "in_progress"
	StatusCompleted  NotificationStatus = "completed"
	StatusFailed     NotificationStatus = "failed"
	StatusCancelled  NotificationStatus = "cancelled"
)

func (s NotificationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further progress is expected.
func (s NotificationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// NotificationType is a presentation hint derived from status and priority.
type NotificationType string

const (
	TypeInfo    NotificationType = "info"
	TypeSuccess NotificationType = "success"
	TypeWarning NotificationType = "warning"
	TypeError   NotificationType = "error"
)

// Map alias for JSONB data
type Map map[string]interface{}

// Notification is one unit of background task progress shown to an admin.
// Overdue and Kind are filled by Decorate and never stored.
type Notification struct {
	ID                  int64              `json:"id"`
	Category            string             `json:"category"`
	Priority            Priority           `json:"priority"`
	Status              NotificationStatus `json:"status"`
	Title               string             `json:"title"`
	Description         *string            `json:"description,omitempty"`
	Metadata            Map                `json:"metadata,omitempty"`
	ProgressPercentage  *int               `json:"progress_percentage,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
	EstimatedCompletion *time.Time         `json:"estimated_completion,omitempty"`
	ActualCompletion    *time.Time         `json:"actual_completion,omitempty"`
	IsRead              bool               `json:"is_read"`
	IsArchived          bool               `json:"is_archived"`

	Overdue bool             `json:"is_overdue"`
	Kind    NotificationType `json:"notification_type"`
}

// IsOverdue reports whether the estimated completion has passed while the task is still open.
func (n *Notification) IsOverdue(now time.Time) bool {
	if n.Status.Terminal() || n.EstimatedCompletion == nil {
		return false
	}
	return n.EstimatedCompletion.Before(now)
}

// Type derives the presentation hint.
func (n *Notification) Type() NotificationType {
	switch {
	case n.Status == StatusFailed:
		return TypeError
	case n.Status == StatusCompleted:
		return TypeSuccess
	case n.Status.Terminal():
		return TypeInfo
	case n.Priority == PriorityCritical || n.Priority == PriorityHigh:
		return TypeWarning
	}
	return TypeInfo
}

// Decorate fills the read-time view flags.
func (n *Notification) Decorate(now time.Time) *Notification {
	n.Overdue = n.IsOverdue(now)
	n.Kind = n.Type()
	return n
}

// DecorateAll fills the view flags of every notification in ns.
func DecorateAll(ns []*Notification, now time.Time) []*Notification {
	for _, n := range ns {
		n.Decorate(now)
	}
	return ns
}

// NotificationStats summarises a set of notifications.
type NotificationStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Low        int `json:"low"`
	Medium     int `json:"medium"`
	High       int `json:"high"`
	Critical   int `json:"critical"`
	Unread     int `json:"unread"`
	Overdue    int `json:"overdue"`
}

// ComputeStats counts ns by status, priority, read state and overdue state.
func ComputeStats(ns []*Notification, now time.Time) NotificationStats {
	var st NotificationStats
	for _, n := range ns {
		st.Total++
		switch n.Status {
		case StatusPending:
			st.Pending++
		case StatusInProgress:
			st.InProgress++
		case StatusCompleted:
			st.Completed++
		case StatusFailed:
			st.Failed++
		case StatusCancelled:
			st.Cancelled++
		}
		switch n.Priority {
		case PriorityLow:
			st.Low++
		case PriorityMedium:
			st.Medium++
		case PriorityHigh:
			st.High++
		case PriorityCritical:
			st.Critical++
		}
		if !n.IsRead {
			st.Unread++
		}
		if n.IsOverdue(now) {
			st.Overdue++
		}
	}
	return st
}

// NotificationList is the REST snapshot consumed by subscribers.
type NotificationList struct {
	Notifications []*Notification   `json:"notifications"`
	Stats         NotificationStats `json:"stats"`
}

// CreateNotificationParams holds parameters for notification creation
type CreateNotificationParams struct {
	Category            string             `json:"category"`
	Priority            Priority           `json:"priority"`
	Status              NotificationStatus `json:"status"`
	Title               string             `json:"title"`
	Description         *string            `json:"description,omitempty"`
	Metadata            Map                `json:"metadata,omitempty"`
	ProgressPercentage  *int               `json:"progress_percentage,omitempty"`
	EstimatedCompletion *time.Time         `json:"estimated_completion,omitempty"`
}

// UpdateNotificationParams holds a partial update; nil fields are left unchanged.
type UpdateNotificationParams struct {
	Status              *NotificationStatus `json:"status,omitempty"`
	Priority            *Priority           `json:"priority,omitempty"`
	Title               *string             `json:"title,omitempty"`
	Description         *string             `json:"description,omitempty"`
	Metadata            Map                 `json:"metadata,omitempty"`
	ProgressPercentage  *int                `json:"progress_percentage,omitempty"`
	EstimatedCompletion *time.Time          `json:"estimated_completion,omitempty"`
	IsRead              *bool               `json:"is_read,omitempty"`
	IsArchived          *bool               `json:"is_archived,omitempty"`

	// ActualCompletion is stamped by the service when Status turns terminal.
	ActualCompletion *time.Time `json:"-"`
}

// Empty reports whether the update changes nothing.
func (p UpdateNotificationParams) Empty() bool {
	return p.Status == nil && p.Priority == nil && p.Title == nil && p.Description == nil &&
		p.Metadata == nil && p.ProgressPercentage == nil && p.EstimatedCompletion == nil &&
		p.IsRead == nil && p.IsArchived == nil
}

// BulkAction names a mutation applied to every notification matching a filter.
type BulkAction string

const (
	BulkMarkRead   BulkAction = "mark_read"
	BulkMarkUnread BulkAction = "mark_unread"
	BulkArchive    BulkAction = "archive"
	BulkDelete     BulkAction = "delete"
)

func (a BulkAction) Valid() bool {
	switch a {
	case BulkMarkRead, BulkMarkUnread, BulkArchive, BulkDelete:
		return true
	}
	return false
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, params CreateNotificationParams) (*Notification, error)
	GetNotification(ctx context.Context, id int64) (*Notification, error)
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]*Notification, error)
	GetNotificationStats(ctx context.Context, filter NotificationFilter) (NotificationStats, error)
	UpdateNotification(ctx context.Context, id int64, params UpdateNotificationParams) (*Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) (*Notification, error)
	BulkUpdateNotifications(ctx context.Context, action BulkAction, filter NotificationFilter) ([]*Notification, error)
	DeleteNotification(ctx context.Context, id int64) (*Notification, error)
}
