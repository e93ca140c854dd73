package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/port"
)

// NotificationService reads a user's inbox. Notifications are only ever
// written by the marketplace coordinator.
type NotificationService struct {
	repo   port.MarketplaceRepository
	feed   port.ChangeFeed
	events *Dispatcher
	logger *zap.Logger
}

func NewNotificationService(repo port.MarketplaceRepository, feed port.ChangeFeed, events *Dispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{repo: repo, feed: feed, events: events, logger: logger}
}

func (s *NotificationService) Inbox(ctx context.Context, userID string) ([]domain.Notification, error) {
	list, err := s.repo.ListNotifications(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

func (s *NotificationService) Unread(ctx context.Context, userID string) (int, error) {
	list, err := s.Inbox(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, note := range list {
		if !note.Read {
			n++
		}
	}
	return n, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkNotificationsRead(ctx, userID)
	if err != nil {
		s.logger.Error("mark notifications read failed", zap.String("user_id", userID), zap.Error(err))
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	if n > 0 {
		s.events.Enqueue(ctx, Event{
			Topics: []string{UserTopic(userID)},
			Change: changeOf(domain.CollectionNotifications, domain.OpUpdate, "", userID, map[string]bool{"read": true}),
		})
	}
	return n, nil
}

func (s *NotificationService) Subscribe(ctx context.Context, userID string) (<-chan domain.Change, error) {
	ch, err := s.feed.Subscribe(ctx, UserTopic(userID))
	if err != nil {
		return nil, fmt.Errorf("subscribe notifications: %w", err)
	}
	return onlyCollection(ctx, ch, domain.CollectionNotifications), nil
}
