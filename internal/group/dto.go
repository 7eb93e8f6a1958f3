package group

import (
	"github.com/temidayoh/esusu/internal/contribution"
)

// CreateGroupRequest represents the request to create a new group
type CreateGroupRequest struct {
	Name               string                 `json:"name" validate:"required,min=1,max=100"`
	ContributionAmount float64                `json:"contribution_amount" validate:"required,gt=0"`
	Frequency          contribution.Frequency `json:"frequency" validate:"required,oneof=daily weekly monthly"`
	TotalMembers       int                    `json:"total_members" validate:"required,min=2,max=100"`
	SecurityDeposit    float64                `json:"security_deposit" validate:"gte=0"`
	ServiceFeePercent  float64                `json:"service_fee_percent" validate:"gte=0,lte=100"`
}

// CancelGroupRequest represents the request to cancel a group
type CancelGroupRequest struct {
	// Override allows cancelling a group that has already paid out at least
	// one member. Without it such a cancellation is refused.
	Override bool   `json:"override"`
	Reason   string `json:"reason,omitempty"`
}

// JoinResponse reports the rotation position assigned to the new member
type JoinResponse struct {
	GroupID   int64  `json:"group_id"`
	UserID    int64  `json:"user_id"`
	Position  int    `json:"position"`
	Status    string `json:"status"`
	Activated bool   `json:"group_activated"`
}

// GroupResponse represents the response for a group
type GroupResponse struct {
	ID                 int64             `json:"id"`
	Name               string            `json:"name"`
	CreatorID          int64             `json:"creator_id"`
	ContributionAmount float64           `json:"contribution_amount"`
	Frequency          string            `json:"frequency"`
	TotalMembers       int               `json:"total_members"`
	CurrentMembers     int               `json:"current_members"`
	SecurityDeposit    float64           `json:"security_deposit"`
	ServiceFeePercent  float64           `json:"service_fee_percent"`
	Status             string            `json:"status"`
	CurrentCycle       int               `json:"current_cycle"`
	TotalCycles        int               `json:"total_cycles"`
	CreatedAt          string            `json:"created_at"`
	StartedAt          *string           `json:"started_at,omitempty"`
	EndedAt            *string           `json:"ended_at,omitempty"`
	Members            []*MemberResponse `json:"members,omitempty"`
}

// MemberResponse represents a member in a group response
type MemberResponse struct {
	ID                int64    `json:"id"`
	UserID            int64    `json:"user_id"`
	Username          string   `json:"username"`
	Position          int      `json:"position"`
	Status            string   `json:"status"`
	DepositPaid       bool     `json:"deposit_paid"`
	ContributionsMade int      `json:"contributions_made"`
	PayoutReceived    bool     `json:"payout_received"`
	PayoutAt          *string  `json:"payout_at,omitempty"`
	PayoutAmount      *float64 `json:"payout_amount,omitempty"`
	JoinedAt          string   `json:"joined_at"`
}

const timeFormat = "2006-01-02T15:04:05Z"

// ToResponse converts a Group model to a GroupResponse DTO
func (g *Group) ToResponse() *GroupResponse {
	resp := &GroupResponse{
		ID:                 g.ID,
		Name:               g.Name,
		CreatorID:          g.CreatorID,
		ContributionAmount: g.ContributionAmount,
		Frequency:          string(g.Frequency),
		TotalMembers:       g.TotalMembers,
		CurrentMembers:     g.CurrentMembers,
		SecurityDeposit:    g.SecurityDeposit,
		ServiceFeePercent:  g.ServiceFeePercent,
		Status:             string(g.Status),
		CurrentCycle:       g.CurrentCycle,
		TotalCycles:        g.TotalCycles,
		CreatedAt:          g.CreatedAt.Format(timeFormat),
	}
	if g.StartedAt != nil {
		s := g.StartedAt.Format(timeFormat)
		resp.StartedAt = &s
	}
	if g.EndedAt != nil {
		s := g.EndedAt.Format(timeFormat)
		resp.EndedAt = &s
	}
	return resp
}

// ToResponse converts a Member model to a MemberResponse DTO
func (m *Member) ToResponse() *MemberResponse {
	resp := &MemberResponse{
		ID:                m.ID,
		UserID:            m.UserID,
		Username:          m.Username,
		Position:          m.Position,
		Status:            string(m.Status),
		DepositPaid:       m.DepositPaid,
		ContributionsMade: m.ContributionsMade,
		PayoutReceived:    m.PayoutReceived,
		PayoutAmount:      m.PayoutAmount,
		JoinedAt:          m.JoinedAt.Format(timeFormat),
	}
	if m.PayoutAt != nil {
		s := m.PayoutAt.Format(timeFormat)
		resp.PayoutAt = &s
	}
	return resp
}
