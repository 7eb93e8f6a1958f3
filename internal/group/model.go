package group

import (
	"time"

	"github.com/temidayoh/esusu/internal/contribution"
)

// Status represents the lifecycle state of a group
type Status string

const (
	StatusForming   Status = "forming"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// MemberStatus represents the standing of a group member
type MemberStatus string

const (
	MemberStatusPending   MemberStatus = "pending"
	MemberStatusActive    MemberStatus = "active"
	MemberStatusDefaulted MemberStatus = "defaulted"
	MemberStatusRemoved   MemberStatus = "removed"
)

// Group represents a rotating savings group
type Group struct {
	ID                 int64                  `json:"id"`
	Name               string                 `json:"name"`
	CreatorID          int64                  `json:"creator_id"`
	ContributionAmount float64                `json:"contribution_amount"`
	Frequency          contribution.Frequency `json:"frequency"`
	TotalMembers       int                    `json:"total_members"`
	CurrentMembers     int                    `json:"current_members"`
	SecurityDeposit    float64                `json:"security_deposit"`
	ServiceFeePercent  float64                `json:"service_fee_percent"`
	Status             Status                 `json:"status"`
	CurrentCycle       int                    `json:"current_cycle"`
	TotalCycles        int                    `json:"total_cycles"`
	CreatedAt          time.Time              `json:"created_at"`
	StartedAt          *time.Time             `json:"started_at,omitempty"`
	EndedAt            *time.Time             `json:"ended_at,omitempty"`
}

// Member represents a user's membership in a group. Position is the rotation
// slot, assigned densely from 1 in join order, and never changes once set.
type Member struct {
	ID                int64        `json:"id"`
	GroupID           int64        `json:"group_id"`
	UserID            int64        `json:"user_id"`
	Position          int          `json:"position"`
	Status            MemberStatus `json:"status"`
	DepositPaid       bool         `json:"deposit_paid"`
	ContributionsMade int          `json:"contributions_made"`
	PayoutReceived    bool         `json:"payout_received"`
	PayoutAt          *time.Time   `json:"payout_at,omitempty"`
	PayoutAmount      *float64     `json:"payout_amount,omitempty"`
	JoinedAt          time.Time    `json:"joined_at"`

	// Populated from JOIN
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}
