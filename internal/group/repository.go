package group

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/temidayoh/esusu/internal/contribution"
)

// Repository handles group data persistence. Multi-row effects (join,
// activation, cancellation, cycle advancement) run as single transactions
// with the group row locked FOR UPDATE, so concurrent joins or concurrent
// reconciliations on the same group serialize on that row.
type Repository struct {
	db       *sql.DB
	contribs *contribution.Repository
}

// NewRepository creates a new group repository
func NewRepository(db *sql.DB, contribs *contribution.Repository) *Repository {
	return &Repository{db: db, contribs: contribs}
}

const groupColumns = `id, name, creator_id, contribution_amount, frequency, total_members,
	current_members, security_deposit, service_fee_percent, status, current_cycle,
	total_cycles, created_at, started_at, ended_at`

func scanGroup(row interface {
	Scan(dest ...interface{}) error
}) (*Group, error) {
	g := &Group{}
	err := row.Scan(
		&g.ID,
		&g.Name,
		&g.CreatorID,
		&g.ContributionAmount,
		&g.Frequency,
		&g.TotalMembers,
		&g.CurrentMembers,
		&g.SecurityDeposit,
		&g.ServiceFeePercent,
		&g.Status,
		&g.CurrentCycle,
		&g.TotalCycles,
		&g.CreatedAt,
		&g.StartedAt,
		&g.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Create inserts a new group in forming state
func (r *Repository) Create(ctx context.Context, creatorID int64, req *CreateGroupRequest) (*Group, error) {
	query := `
		INSERT INTO groups (name, creator_id, contribution_amount, frequency, total_members,
			security_deposit, service_fee_percent, status, total_cycles)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'forming', $5)
		RETURNING ` + groupColumns

	g, err := scanGroup(r.db.QueryRowContext(ctx, query,
		req.Name, creatorID, req.ContributionAmount, req.Frequency,
		req.TotalMembers, req.SecurityDeposit, req.ServiceFeePercent,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	return g, nil
}

// GetByID retrieves a group by its ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`

	g, err := scanGroup(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return g, nil
}

// lockGroupTx loads a group row under FOR UPDATE inside the transaction
func (r *Repository) lockGroupTx(ctx context.Context, tx *sql.Tx, id int64) (*Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1 FOR UPDATE`

	g, err := scanGroup(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to lock group: %w", err)
	}

	return g, nil
}

// GetMembers retrieves all members of a group in rotation order
func (r *Repository) GetMembers(ctx context.Context, groupID int64) ([]*Member, error) {
	query := `
		SELECT gm.id, gm.group_id, gm.user_id, gm.position, gm.status, gm.deposit_paid,
		       gm.contributions_made, gm.payout_received, gm.payout_at, gm.payout_amount,
		       gm.joined_at, u.username, u.email
		FROM group_members gm
		JOIN users u ON gm.user_id = u.id
		WHERE gm.group_id = $1
		ORDER BY gm.position
	`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(
			&m.ID,
			&m.GroupID,
			&m.UserID,
			&m.Position,
			&m.Status,
			&m.DepositPaid,
			&m.ContributionsMade,
			&m.PayoutReceived,
			&m.PayoutAt,
			&m.PayoutAmount,
			&m.JoinedAt,
			&m.Username,
			&m.Email,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, nil
}

// GetMember retrieves a specific member of a group
func (r *Repository) GetMember(ctx context.Context, groupID, userID int64) (*Member, error) {
	query := `
		SELECT gm.id, gm.group_id, gm.user_id, gm.position, gm.status, gm.deposit_paid,
		       gm.contributions_made, gm.payout_received, gm.payout_at, gm.payout_amount,
		       gm.joined_at, u.username, u.email
		FROM group_members gm
		JOIN users u ON gm.user_id = u.id
		WHERE gm.group_id = $1 AND gm.user_id = $2
	`

	m := &Member{}
	err := r.db.QueryRowContext(ctx, query, groupID, userID).Scan(
		&m.ID,
		&m.GroupID,
		&m.UserID,
		&m.Position,
		&m.Status,
		&m.DepositPaid,
		&m.ContributionsMade,
		&m.PayoutReceived,
		&m.PayoutAt,
		&m.PayoutAmount,
		&m.JoinedAt,
		&m.Username,
		&m.Email,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return m, nil
}

// ListAvailable retrieves forming groups that still have open slots and that
// the given user has not already joined
func (r *Repository) ListAvailable(ctx context.Context, userID int64, limit, offset int) ([]*Group, int, error) {
	where := `
		WHERE g.status = 'forming'
		  AND g.current_members < g.total_members
		  AND NOT EXISTS (
			SELECT 1 FROM group_members gm WHERE gm.group_id = g.id AND gm.user_id = $1
		  )
	`

	var total int
	countQuery := `SELECT COUNT(*) FROM groups g` + where
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count available groups: %w", err)
	}

	query := `SELECT ` + prefixColumns("g") + ` FROM groups g` + where + `
		ORDER BY g.created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list available groups: %w", err)
	}
	defer rows.Close()

	return collectGroups(rows, total)
}

// ListByUserID retrieves all groups a user belongs to
func (r *Repository) ListByUserID(ctx context.Context, userID int64, limit, offset int) ([]*Group, int, error) {
	var total int
	countQuery := `
		SELECT COUNT(DISTINCT g.id)
		FROM groups g
		JOIN group_members gm ON g.id = gm.group_id
		WHERE gm.user_id = $1
	`
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count groups: %w", err)
	}

	query := `SELECT ` + prefixColumns("g") + `
		FROM groups g
		JOIN group_members gm ON g.id = gm.group_id
		WHERE gm.user_id = $1
		ORDER BY g.created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	return collectGroups(rows, total)
}

func prefixColumns(alias string) string {
	return alias + `.id, ` + alias + `.name, ` + alias + `.creator_id, ` + alias + `.contribution_amount, ` +
		alias + `.frequency, ` + alias + `.total_members, ` + alias + `.current_members, ` +
		alias + `.security_deposit, ` + alias + `.service_fee_percent, ` + alias + `.status, ` +
		alias + `.current_cycle, ` + alias + `.total_cycles, ` + alias + `.created_at, ` +
		alias + `.started_at, ` + alias + `.ended_at`
}

func collectGroups(rows *sql.Rows, total int) ([]*Group, int, error) {
	var groups []*Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate groups: %w", err)
	}
	return groups, total, nil
}

// Join admits a user into a forming group as one atomic unit: the group row is
// locked, the capacity and status checks run against the locked row, the next
// dense rotation position is assigned, the member row is inserted and the
// member counter incremented under a compare-and-set guard. Filling the last
// slot activates the group and opens cycle 1.
func (r *Repository) Join(ctx context.Context, groupID, userID int64, now time.Time) (*Member, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	g, err := r.lockGroupTx(ctx, tx, groupID)
	if err != nil {
		return nil, false, err
	}

	if g.Status != StatusForming {
		return nil, false, ErrGroupNotOpen
	}
	if g.CurrentMembers >= g.TotalMembers {
		return nil, false, ErrGroupFull
	}

	var nextPosition int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM group_members WHERE group_id = $1`,
		groupID,
	).Scan(&nextPosition)
	if err != nil {
		return nil, false, fmt.Errorf("failed to compute next position: %w", err)
	}

	member := &Member{}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO group_members (group_id, user_id, position, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING id, group_id, user_id, position, status, deposit_paid,
		          contributions_made, payout_received, payout_at, payout_amount, joined_at
	`, groupID, userID, nextPosition).Scan(
		&member.ID,
		&member.GroupID,
		&member.UserID,
		&member.Position,
		&member.Status,
		&member.DepositPaid,
		&member.ContributionsMade,
		&member.PayoutReceived,
		&member.PayoutAt,
		&member.PayoutAmount,
		&member.JoinedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, false, ErrAlreadyMember
		}
		return nil, false, fmt.Errorf("failed to insert member: %w", err)
	}

	// Guarded increment: the WHERE clause re-checks capacity so the counter
	// can never pass total_members even if the earlier check raced.
	res, err := tx.ExecContext(ctx, `
		UPDATE groups SET current_members = current_members + 1
		WHERE id = $1 AND current_members < total_members
	`, groupID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to increment member count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, false, ErrGroupFull
	}

	activated := g.CurrentMembers+1 == g.TotalMembers
	if activated {
		g.CurrentMembers = g.TotalMembers
		if err := r.activateTx(ctx, tx, g, now); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit join: %w", err)
	}

	return member, activated, nil
}

// activateTx flips a locked forming group to active, starts cycle 1 and
// schedules its payout. Caller holds the group row lock.
func (r *Repository) activateTx(ctx context.Context, tx *sql.Tx, g *Group, now time.Time) error {
	if !CanTransition(g.Status, StatusActive) {
		return ErrInvalidTransition
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE groups
		SET status = 'active', current_cycle = 1, started_at = $2,
		    total_members = $3, total_cycles = $3
		WHERE id = $1
	`, g.ID, now, g.CurrentMembers)
	if err != nil {
		return fmt.Errorf("failed to activate group: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE group_members SET status = 'active' WHERE group_id = $1 AND status = 'pending'`,
		g.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to activate members: %w", err)
	}

	g.Status = StatusActive
	g.CurrentCycle = 1
	g.TotalMembers = g.CurrentMembers
	g.TotalCycles = g.CurrentMembers
	g.StartedAt = &now

	// Every member is eligible at activation
	return r.openCycleTx(ctx, tx, g, 1, g.CurrentMembers, now)
}

// openCycleTx generates the contribution rows for a cycle and schedules the
// pending payout transaction for the cycle's recipient. The payout pool is
// sized from the eligible member count so it never exceeds what the cycle's
// contribution rows can collect. The caller guarantees the recipient at
// position == cycle is eligible.
func (r *Repository) openCycleTx(ctx context.Context, tx *sql.Tx, g *Group, cycle, eligible int, now time.Time) error {
	start := now
	if g.StartedAt != nil {
		start = *g.StartedAt
	}
	dueDate := contribution.DueDate(start, g.Frequency, cycle)

	if err := r.contribs.InsertCycleTx(ctx, tx, g.ID, cycle, g.ContributionAmount, g.ServiceFeePercent, dueDate); err != nil {
		return err
	}

	var recipientID int64
	err := tx.QueryRowContext(ctx, `
		SELECT user_id FROM group_members
		WHERE group_id = $1 AND position = $2 AND status IN ('pending', 'active')
	`, g.ID, cycle).Scan(&recipientID)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("no eligible recipient for cycle %d of group %d", cycle, g.ID)
		}
		return fmt.Errorf("failed to find cycle recipient: %w", err)
	}

	_, _, net := PayoutAmount(g.ContributionAmount, eligible, g.ServiceFeePercent)
	reference := "ESU-PO-" + uuid.NewString()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (user_id, group_id, type, amount, status, reference)
		VALUES ($1, $2, 'payout', $3, 'pending', $4)
	`, recipientID, g.ID, net, reference)
	if err != nil {
		return fmt.Errorf("failed to schedule payout transaction: %w", err)
	}

	return nil
}

// Activate force-activates a partially filled forming group. Capacity and
// cycle count shrink to the members present so the rotation has no empty
// slots.
func (r *Repository) Activate(ctx context.Context, groupID int64, now time.Time) (*Group, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	g, err := r.lockGroupTx(ctx, tx, groupID)
	if err != nil {
		return nil, err
	}

	if g.Status != StatusForming {
		return nil, ErrInvalidTransition
	}
	if g.CurrentMembers < 2 {
		return nil, ErrTooFewMembers
	}

	if err := r.activateTx(ctx, tx, g, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit activation: %w", err)
	}

	return g, nil
}

// Cancel moves a forming or active group to cancelled. Once any payout has
// been received the cancellation is refused unless override is set.
func (r *Repository) Cancel(ctx context.Context, groupID int64, override bool, now time.Time) (*Group, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	g, err := r.lockGroupTx(ctx, tx, groupID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(g.Status, StatusCancelled) {
		return nil, ErrInvalidTransition
	}

	var payoutsBegun bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND payout_received)`,
		groupID,
	).Scan(&payoutsBegun)
	if err != nil {
		return nil, fmt.Errorf("failed to check payout progress: %w", err)
	}
	if payoutsBegun && !override {
		return nil, ErrPayoutsBegun
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE groups SET status = 'cancelled', ended_at = $2 WHERE id = $1`,
		groupID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel group: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	g.Status = StatusCancelled
	g.EndedAt = &now
	return g, nil
}

// MarkPayoutTx records a payout on the member row. The payout_received guard
// keeps a duplicate confirmation from paying a member twice.
func (r *Repository) MarkPayoutTx(ctx context.Context, tx *sql.Tx, groupID, userID int64, amount float64, when time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE group_members
		SET payout_received = true, payout_at = $3, payout_amount = $4
		WHERE group_id = $1 AND user_id = $2 AND NOT payout_received
	`, groupID, userID, when, amount)
	if err != nil {
		return fmt.Errorf("failed to mark payout: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPayoutAlreadyReceived
	}
	return nil
}

// AdvanceCycleTx closes the current cycle of a group after its payout
// confirmed and opens the next one. Cycles whose recipient has defaulted or
// been removed are skipped without a payout. Running past the last cycle
// completes the group. The caller owns the transaction; the group row is
// locked here.
func (r *Repository) AdvanceCycleTx(ctx context.Context, tx *sql.Tx, groupID int64, now time.Time) (bool, error) {
	g, err := r.lockGroupTx(ctx, tx, groupID)
	if err != nil {
		return false, err
	}
	if g.Status != StatusActive {
		return false, ErrInvalidTransition
	}

	statuses, err := r.memberStatusesTx(ctx, tx, groupID)
	if err != nil {
		return false, err
	}

	cycle, ok := NextCycle(g.CurrentCycle, g.TotalCycles, statuses)
	if !ok {
		if !CanTransition(g.Status, StatusCompleted) {
			return false, ErrInvalidTransition
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE groups SET status = 'completed', current_cycle = $2, ended_at = $3
			WHERE id = $1
		`, groupID, cycle, now)
		if err != nil {
			return false, fmt.Errorf("failed to complete group: %w", err)
		}
		return true, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE groups SET current_cycle = $2 WHERE id = $1`,
		groupID, cycle,
	)
	if err != nil {
		return false, fmt.Errorf("failed to advance cycle: %w", err)
	}

	g.CurrentCycle = cycle
	if err := r.openCycleTx(ctx, tx, g, cycle, CountEligible(statuses), now); err != nil {
		return false, err
	}
	return false, nil
}

// memberStatusesTx loads the rotation as position -> member status
func (r *Repository) memberStatusesTx(ctx context.Context, tx *sql.Tx, groupID int64) (map[int]MemberStatus, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT position, status FROM group_members WHERE group_id = $1`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load member statuses: %w", err)
	}
	defer rows.Close()

	statuses := make(map[int]MemberStatus)
	for rows.Next() {
		var position int
		var status MemberStatus
		if err := rows.Scan(&position, &status); err != nil {
			return nil, fmt.Errorf("failed to scan member status: %w", err)
		}
		statuses[position] = status
	}
	return statuses, nil
}
