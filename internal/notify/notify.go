package notify

import (
	"context"
	"errors"
	"time"

	"trainflow/internal/apperr"
	"trainflow/internal/model"
	"trainflow/internal/store"
)

// Store persists notifications and their read state.
type Store interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) (model.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
}

// Notice is a message addressed to one user.
type Notice struct {
	UserID  string
	Title   string
	Message string
	Type    model.Severity
	Link    string
}

// Service creates notifications and manages per-user read state.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Notify stores an unread notification for n.UserID.
func (s *Service) Notify(ctx context.Context, n Notice) error {
	if n.Type == "" {
		n.Type = model.SeverityInfo
	}
	return s.store.CreateNotification(ctx, &model.Notification{
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		Link:      n.Link,
		CreatedAt: s.now().UTC(),
	})
}

func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	list, err := s.store.ListNotifications(ctx, userID, unreadOnly, limit)
	if list == nil {
		list = []model.Notification{}
	}
	return list, err
}

// MarkRead marks one notification read; notifications of other users are not found.
func (s *Service) MarkRead(ctx context.Context, userID, id string) (model.Notification, error) {
	n, err := s.store.MarkNotificationRead(ctx, userID, id, s.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return model.Notification{}, apperr.NotFound("Notification not found")
	}
	return n, err
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.store.MarkAllNotificationsRead(ctx, userID, s.now().UTC())
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.CountUnreadNotifications(ctx, userID)
}
