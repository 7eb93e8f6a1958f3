package notification

import (
	"context"
	"database/sql"
	"fmt"
)

// Repository handles notification and audit log persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new notification repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new notification
func (r *Repository) Create(ctx context.Context, recipientID int64, ntype, title, message string, groupID *int64) (*Notification, error) {
	return create(ctx, r.db, recipientID, ntype, title, message, groupID)
}

// CreateTx inserts a new notification inside an existing transaction, so the
// enqueue commits or rolls back together with the state change that caused it.
func (r *Repository) CreateTx(ctx context.Context, tx *sql.Tx, recipientID int64, ntype, title, message string, groupID *int64) (*Notification, error) {
	return create(ctx, tx, recipientID, ntype, title, message, groupID)
}

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func create(ctx context.Context, q execer, recipientID int64, ntype, title, message string, groupID *int64) (*Notification, error) {
	query := `
		INSERT INTO notifications (recipient_id, type, title, message, related_group_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, recipient_id, type, title, message, is_read, related_group_id, created_at
	`

	n := &Notification{}
	err := q.QueryRowContext(ctx, query, recipientID, ntype, title, message, groupID).Scan(
		&n.ID,
		&n.RecipientID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.IsRead,
		&n.RelatedGroupID,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	return n, nil
}

// ListByRecipientID retrieves notifications for a user
func (r *Repository) ListByRecipientID(ctx context.Context, recipientID int64, limit, offset int, unreadOnly bool) ([]*Notification, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1`
	if unreadOnly {
		countQuery += ` AND is_read = false`
	}
	if err := r.db.QueryRowContext(ctx, countQuery, recipientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := `
		SELECT id, recipient_id, type, title, message, is_read, related_group_id, created_at
		FROM notifications
		WHERE recipient_id = $1
	`
	if unreadOnly {
		query += ` AND is_read = false`
	}
	query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, recipientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n := &Notification{}
		if err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.Type,
			&n.Title,
			&n.Message,
			&n.IsRead,
			&n.RelatedGroupID,
			&n.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	return notifications, total, nil
}

// GetByID retrieves a notification by its ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*Notification, error) {
	query := `
		SELECT id, recipient_id, type, title, message, is_read, related_group_id, created_at
		FROM notifications
		WHERE id = $1
	`

	n := &Notification{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&n.ID,
		&n.RecipientID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.IsRead,
		&n.RelatedGroupID,
		&n.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	return n, nil
}

// MarkAsRead marks a notification as read
func (r *Repository) MarkAsRead(ctx context.Context, id int64) error {
	query := `UPDATE notifications SET is_read = true WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	return nil
}

// MarkAllAsRead marks all notifications as read for a user
func (r *Repository) MarkAllAsRead(ctx context.Context, recipientID int64) error {
	query := `UPDATE notifications SET is_read = true WHERE recipient_id = $1 AND is_read = false`
	if _, err := r.db.ExecContext(ctx, query, recipientID); err != nil {
		return fmt.Errorf("failed to mark all notifications as read: %w", err)
	}
	return nil
}

// GetUnreadCount returns the count of unread notifications for a user
func (r *Repository) GetUnreadCount(ctx context.Context, recipientID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = false`
	if err := r.db.QueryRowContext(ctx, query, recipientID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// RecordAudit appends an audit log entry
func (r *Repository) RecordAudit(ctx context.Context, actorID int64, action, resourceType string, resourceID int64, details string) error {
	return recordAudit(ctx, r.db, actorID, action, resourceType, resourceID, details)
}

// RecordAuditTx appends an audit log entry inside an existing transaction
func (r *Repository) RecordAuditTx(ctx context.Context, tx *sql.Tx, actorID int64, action, resourceType string, resourceID int64, details string) error {
	return recordAudit(ctx, tx, actorID, action, resourceType, resourceID, details)
}

type auditExecer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func recordAudit(ctx context.Context, q auditExecer, actorID int64, action, resourceType string, resourceID int64, details string) error {
	query := `
		INSERT INTO audit_logs (actor_id, action, resource_type, resource_id, details)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := q.ExecContext(ctx, query, actorID, action, resourceType, resourceID, details); err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}
