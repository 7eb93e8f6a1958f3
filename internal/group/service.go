package group

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/temidayoh/esusu/internal/notification"
)

// Common errors
var (
	ErrGroupNotFound         = errors.New("group not found")
	ErrGroupNotOpen          = errors.New("group is not accepting members")
	ErrGroupFull             = errors.New("group is full")
	ErrAlreadyMember         = errors.New("user is already a member of this group")
	ErrInvalidTransition     = errors.New("invalid group status transition")
	ErrTooFewMembers         = errors.New("group needs at least two members to activate")
	ErrPayoutsBegun          = errors.New("payouts have begun; cancellation requires override")
	ErrPayoutAlreadyReceived = errors.New("member has already received a payout")
	ErrInvalidRequest        = errors.New("invalid group parameters")
)

// Service handles group business logic
type Service struct {
	repo     *Repository
	notifier *notification.Service
}

// NewService creates a new group service
func NewService(repo *Repository, notifier *notification.Service) *Service {
	return &Service{repo: repo, notifier: notifier}
}

// Create creates a new group in forming state. The creator joins it
// immediately at rotation position 1.
func (s *Service) Create(ctx context.Context, creatorID int64, req *CreateGroupRequest) (*Group, error) {
	if req.Name == "" || req.ContributionAmount <= 0 || req.TotalMembers < 2 || !req.Frequency.Valid() {
		return nil, ErrInvalidRequest
	}
	if req.ServiceFeePercent < 0 || req.ServiceFeePercent > 100 || req.SecurityDeposit < 0 {
		return nil, ErrInvalidRequest
	}

	g, err := s.repo.Create(ctx, creatorID, req)
	if err != nil {
		return nil, err
	}

	if _, _, err := s.repo.Join(ctx, g.ID, creatorID, time.Now().UTC()); err != nil {
		return nil, err
	}
	g.CurrentMembers = 1

	if err := s.notifier.Audit(ctx, creatorID, "group.created", "group", g.ID, g.Name); err != nil {
		slog.Warn("audit write failed", "action", "group.created", "group_id", g.ID, "error", err)
	}

	return g, nil
}

// Join admits a user into a forming group and assigns the next rotation
// position. Filling the last slot activates the group and opens cycle 1.
func (s *Service) Join(ctx context.Context, groupID, userID int64) (*Member, bool, error) {
	member, activated, err := s.repo.Join(ctx, groupID, userID, time.Now().UTC())
	if err != nil {
		return nil, false, err
	}

	if m, err := s.repo.GetMember(ctx, groupID, userID); err == nil && m != nil {
		member = m
	}

	g, err := s.repo.GetByID(ctx, groupID)
	if err == nil && g != nil {
		if _, err := s.notifier.NotifyMemberJoined(ctx, g.CreatorID, member.Username, g.Name, g.ID, member.Position); err != nil {
			slog.Warn("notification enqueue failed", "type", notification.TypeMemberJoined, "group_id", g.ID, "error", err)
		}
		if activated {
			members, err := s.repo.GetMembers(ctx, groupID)
			if err == nil {
				for _, m := range members {
					if _, err := s.notifier.NotifyGroupActivated(ctx, m.UserID, g.Name, g.ID); err != nil {
						slog.Warn("notification enqueue failed", "type", notification.TypeGroupActivated, "group_id", g.ID, "error", err)
					}
				}
			}
		}
	}

	details := fmt.Sprintf("position %d", member.Position)
	if err := s.notifier.Audit(ctx, userID, "group.joined", "group", groupID, details); err != nil {
		slog.Warn("audit write failed", "action", "group.joined", "group_id", groupID, "error", err)
	}

	return member, activated, nil
}

// GetByIDWithMembers retrieves a group with all its members
func (s *Service) GetByIDWithMembers(ctx context.Context, id int64) (*Group, []*Member, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if g == nil {
		return nil, nil, ErrGroupNotFound
	}

	members, err := s.repo.GetMembers(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return g, members, nil
}

// ListAvailable retrieves forming groups the user can still join
func (s *Service) ListAvailable(ctx context.Context, userID int64, page, perPage int) ([]*Group, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.repo.ListAvailable(ctx, userID, perPage, offset)
}

// ListByUserID retrieves all groups for a user
func (s *Service) ListByUserID(ctx context.Context, userID int64, page, perPage int) ([]*Group, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.repo.ListByUserID(ctx, userID, perPage, offset)
}

// Activate force-activates a partially filled forming group. This is an
// explicit administrative transition; auto-activation on fill happens in Join.
func (s *Service) Activate(ctx context.Context, groupID, actorID int64) (*Group, error) {
	g, err := s.repo.Activate(ctx, groupID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := s.notifier.Audit(ctx, actorID, "group.activated", "group", groupID, "manual activation"); err != nil {
		slog.Warn("audit write failed", "action", "group.activated", "group_id", groupID, "error", err)
	}

	members, err := s.repo.GetMembers(ctx, groupID)
	if err == nil {
		for _, m := range members {
			if _, err := s.notifier.NotifyGroupActivated(ctx, m.UserID, g.Name, g.ID); err != nil {
				slog.Warn("notification enqueue failed", "type", notification.TypeGroupActivated, "group_id", g.ID, "error", err)
			}
		}
	}

	return g, nil
}

// Cancel cancels a forming or active group. Once payouts have begun the
// caller must pass override explicitly.
func (s *Service) Cancel(ctx context.Context, groupID, actorID int64, req *CancelGroupRequest) (*Group, error) {
	g, err := s.repo.Cancel(ctx, groupID, req.Override, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	details := req.Reason
	if req.Override {
		details = "override: " + details
	}
	if err := s.notifier.Audit(ctx, actorID, "group.cancelled", "group", groupID, details); err != nil {
		slog.Warn("audit write failed", "action", "group.cancelled", "group_id", groupID, "error", err)
	}

	members, err := s.repo.GetMembers(ctx, groupID)
	if err == nil {
		for _, m := range members {
			if _, err := s.notifier.NotifyGroupCancelled(ctx, m.UserID, g.Name, g.ID); err != nil {
				slog.Warn("notification enqueue failed", "type", notification.TypeGroupCancelled, "group_id", g.ID, "error", err)
			}
		}
	}

	return g, nil
}
