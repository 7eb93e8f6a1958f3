package notification

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNotRecipient         = errors.New("not the recipient of this notification")
)

// Service handles notification business logic
type Service struct {
	repo *Repository
}

// NewService creates a new notification service
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Enqueue creates a notification record for later delivery
func (s *Service) Enqueue(ctx context.Context, recipientID int64, ntype, title, message string, groupID *int64) (*Notification, error) {
	return s.repo.Create(ctx, recipientID, ntype, title, message, groupID)
}

// ListByRecipientID retrieves notifications for a user
func (s *Service) ListByRecipientID(ctx context.Context, recipientID int64, page, perPage int, unreadOnly bool) ([]*Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.repo.ListByRecipientID(ctx, recipientID, perPage, offset, unreadOnly)
}

// MarkAsRead marks a notification as read
func (s *Service) MarkAsRead(ctx context.Context, id, userID int64) error {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n == nil {
		return ErrNotificationNotFound
	}
	if n.RecipientID != userID {
		return ErrNotRecipient
	}

	return s.repo.MarkAsRead(ctx, id)
}

// MarkAllAsRead marks all notifications as read for a user
func (s *Service) MarkAllAsRead(ctx context.Context, userID int64) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

// GetUnreadCount returns the count of unread notifications
func (s *Service) GetUnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.repo.GetUnreadCount(ctx, userID)
}

// Audit appends an audit log entry
func (s *Service) Audit(ctx context.Context, actorID int64, action, resourceType string, resourceID int64, details string) error {
	return s.repo.RecordAudit(ctx, actorID, action, resourceType, resourceID, details)
}

// Helper methods for specific notification types

// NotifyMemberJoined tells the group creator that someone joined
func (s *Service) NotifyMemberJoined(ctx context.Context, creatorID int64, username, groupName string, groupID int64, position int) (*Notification, error) {
	message := fmt.Sprintf("%s joined %s at rotation position %d", username, groupName, position)
	return s.Enqueue(ctx, creatorID, TypeMemberJoined, "New member", message, &groupID)
}

// NotifyGroupActivated tells a member that contributions have started
func (s *Service) NotifyGroupActivated(ctx context.Context, recipientID int64, groupName string, groupID int64) (*Notification, error) {
	message := fmt.Sprintf("%s is now active. Your first contribution is due.", groupName)
	return s.Enqueue(ctx, recipientID, TypeGroupActivated, "Group active", message, &groupID)
}

// NotifyGroupCancelled tells a member that the group was cancelled
func (s *Service) NotifyGroupCancelled(ctx context.Context, recipientID int64, groupName string, groupID int64) (*Notification, error) {
	message := fmt.Sprintf("%s has been cancelled.", groupName)
	return s.Enqueue(ctx, recipientID, TypeGroupCancelled, "Group cancelled", message, &groupID)
}
