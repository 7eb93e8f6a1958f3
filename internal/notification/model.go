package notification

import "time"

// Notification represents a queued notification for a user. Rows are
// append-only; delivery is handled by an external dispatcher.
type Notification struct {
	ID             int64     `json:"id"`
	RecipientID    int64     `json:"recipient_id"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	IsRead         bool      `json:"is_read"`
	RelatedGroupID *int64    `json:"related_group_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Notification types
const (
	TypeMemberJoined    = "member_joined"
	TypeGroupActivated  = "group_activated"
	TypeGroupCancelled  = "group_cancelled"
	TypePaymentReceived = "payment_received"
	TypePayoutSent      = "payout_sent"
)

// AuditLogEntry records who did what to which resource. Entries are
// append-only and never mutated.
type AuditLogEntry struct {
	ID           int64     `json:"id"`
	ActorID      int64     `json:"actor_id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   int64     `json:"resource_id"`
	Details      string    `json:"details"`
	CreatedAt    time.Time `json:"created_at"`
}
