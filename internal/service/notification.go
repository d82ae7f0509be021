package service

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/sugarsphere/backend/internal/models"
	"github.com/sugarsphere/backend/internal/push"
)

type NotificationService struct {
	DB   *gorm.DB
	Push Pusher
}

// Create persists the notification first, then attempts a live push. A failed
// or absent push is silent: the recipient still sees it on the next poll.
func (s *NotificationService) Create(ctx context.Context, userID uint, typ, title, message string) (*models.Notification, error) {
	n := models.Notification{
		UserID:  userID,
		Type:    typ,
		Title:   title,
		Message: message,
	}
	if err := s.DB.WithContext(ctx).Create(&n).Error; err != nil {
		return nil, err
	}

	if s.Push != nil {
		s.Push.ToUser(userID, push.EventNotificationNew, n)
	}
	return &n, nil
}

type NotificationList struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int64                 `json:"unread_count"`
}

func (s *NotificationService) List(ctx context.Context, userID uint) (*NotificationList, error) {
	var items []models.Notification
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(50).
		Find(&items).Error; err != nil {
		return nil, err
	}

	var unread int64
	if err := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&unread).Error; err != nil {
		return nil, err
	}

	return &NotificationList{Notifications: items, UnreadCount: unread}, nil
}

// MarkRead only touches notifications owned by the caller; anything else is
// indistinguishable from not existing.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) (*models.Notification, error) {
	res := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: notification not found", ErrNotFound)
	}

	var n models.Notification
	if err := s.DB.WithContext(ctx).First(&n, id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) error {
	return s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true).Error
}
