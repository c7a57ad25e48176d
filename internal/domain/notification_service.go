package domain

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// NotificationService applies notification mutations and announces them to live subscribers.
type NotificationService struct {
	repo        NotificationRepository
	broadcaster Broadcaster
	pusher      Pusher
	logger      *zap.Logger
	now         func() time.Time
}

// NewNotificationService creates a service. broadcaster and pusher may be nil.
func NewNotificationService(repo NotificationRepository, broadcaster Broadcaster, pusher Pusher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		repo:        repo,
		broadcaster: broadcaster,
		pusher:      pusher,
		logger:      logger,
		now:         time.Now,
	}
}

// GetNotifications returns the filtered list together with stats over the same filter.
func (s *NotificationService) GetNotifications(ctx context.Context, filter NotificationFilter) (*NotificationList, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	notifs, err := s.repo.ListNotifications(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	stats, err := s.repo.GetNotificationStats(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("notification stats: %w", err)
	}
	if notifs == nil {
		notifs = []*Notification{}
	}

	return &NotificationList{
		Notifications: DecorateAll(notifs, s.now()),
		Stats:         stats,
	}, nil
}

func (s *NotificationService) GetNotification(ctx context.Context, id int64) (*Notification, error) {
	n, err := s.repo.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	return n.Decorate(s.now()), nil
}

func (s *NotificationService) CreateNotification(ctx context.Context, params CreateNotificationParams) (*Notification, error) {
	if params.Priority == "" {
		params.Priority = PriorityMedium
	}
	if params.Status == "" {
		params.Status = StatusPending
	}
	if !params.Priority.Valid() || !params.Status.Valid() || params.Title == "" || params.Category == "" {
		return nil, ErrInvalidNotification
	}

	n, err := s.repo.CreateNotification(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	n.Decorate(s.now())

	s.publish(MessageCreated, n, n.Category)

	if s.pusher != nil && n.Priority == PriorityCritical {
		go func() {
			if err := s.pusher.PushNotification(n); err != nil {
				s.logger.Warn("push failed", zap.Int64("notification_id", n.ID), zap.Error(err))
			}
		}()
	}
	return n, nil
}

// UpdateNotification applies a partial update. Entering a terminal status
// stamps actual_completion unless the caller already did.
func (s *NotificationService) UpdateNotification(ctx context.Context, id int64, params UpdateNotificationParams) (*Notification, error) {
	if params.Empty() {
		return nil, ErrInvalidNotification
	}
	if params.Status != nil {
		if !params.Status.Valid() {
			return nil, ErrInvalidNotification
		}
		if params.Status.Terminal() && params.ActualCompletion == nil {
			now := s.now()
			params.ActualCompletion = &now
		}
	}
	if params.Priority != nil && !params.Priority.Valid() {
		return nil, ErrInvalidNotification
	}

	n, err := s.repo.UpdateNotification(ctx, id, params)
	if err != nil {
		return nil, err
	}
	n.Decorate(s.now())

	s.publish(MessageUpdated, n, n.Category)
	return n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id int64) (*Notification, error) {
	n, err := s.repo.MarkNotificationRead(ctx, id)
	if err != nil {
		return nil, err
	}
	n.Decorate(s.now())

	s.publish(MessageUpdated, n, n.Category)
	return n, nil
}

// BulkUpdate applies action to every notification matching filter and returns
// the number of affected rows. Each affected row is announced individually.
func (s *NotificationService) BulkUpdate(ctx context.Context, action BulkAction, filter NotificationFilter) (int, error) {
	if !action.Valid() {
		return 0, ErrUnknownBulkAction
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	affected, err := s.repo.BulkUpdateNotifications(ctx, action, filter)
	if err != nil {
		return 0, fmt.Errorf("bulk %s: %w", action, err)
	}

	now := s.now()
	for _, n := range affected {
		if action == BulkDelete {
			s.publish(MessageDeleted, DeletionMarker{ID: n.ID}, n.Category)
			continue
		}
		s.publish(MessageUpdated, n.Decorate(now), n.Category)
	}
	return len(affected), nil
}

func (s *NotificationService) DeleteNotification(ctx context.Context, id int64) error {
	n, err := s.repo.DeleteNotification(ctx, id)
	if err != nil {
		return err
	}
	s.publish(MessageDeleted, DeletionMarker{ID: n.ID}, n.Category)
	return nil
}

func (s *NotificationService) publish(t MessageType, payload any, category string) {
	if s.broadcaster == nil {
		return
	}
	delivered := s.broadcaster.Broadcast(t, payload, []string{category})
	s.logger.Debug("notification event broadcast",
		zap.String("type", string(t)),
		zap.String("category", category),
		zap.Int("delivered", delivered),
	)
}
