package contribution

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository handles contribution data persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new contribution repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertCycleTx creates the contribution rows for one cycle of a group,
// one per member who has not defaulted or been removed. The unique index on
// (group_id, user_id, cycle) makes the operation idempotent: rows that
// already exist are left untouched.
func (r *Repository) InsertCycleTx(ctx context.Context, tx *sql.Tx, groupID int64, cycle int, amount, feePercent float64, dueDate time.Time) error {
	query := `
		INSERT INTO contributions (group_id, user_id, cycle, amount, service_fee, due_date, status)
		SELECT gm.group_id, gm.user_id, $2, $3, $4, $5, 'pending'
		FROM group_members gm
		WHERE gm.group_id = $1 AND gm.status IN ('pending', 'active')
		ON CONFLICT (group_id, user_id, cycle) DO NOTHING
	`

	fee := ServiceFee(amount, feePercent)
	if _, err := tx.ExecContext(ctx, query, groupID, cycle, amount, fee, dueDate); err != nil {
		return fmt.Errorf("failed to insert cycle %d contributions: %w", cycle, err)
	}
	return nil
}

// ApplyPaymentTx transitions a contribution from pending or late to paid and
// records the settling transaction reference. It refuses to re-apply a payment
// to a contribution that is already paid or missed.
func (r *Repository) ApplyPaymentTx(ctx context.Context, tx *sql.Tx, id int64, transactionRef string, paidAt time.Time) (*Contribution, error) {
	query := `
		UPDATE contributions
		SET status = 'paid', paid_at = $2, transaction_ref = $3
		WHERE id = $1 AND status IN ('pending', 'late')
		RETURNING id, group_id, user_id, cycle, amount, service_fee, penalty, due_date, paid_at, status, transaction_ref, created_at
	`

	c := &Contribution{}
	err := tx.QueryRowContext(ctx, query, id, paidAt, transactionRef).Scan(
		&c.ID,
		&c.GroupID,
		&c.UserID,
		&c.Cycle,
		&c.Amount,
		&c.ServiceFee,
		&c.Penalty,
		&c.DueDate,
		&c.PaidAt,
		&c.Status,
		&c.TransactionRef,
		&c.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to apply payment to contribution: %w", err)
	}

	return c, nil
}

// GetByID retrieves a contribution by its ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*Contribution, error) {
	query := `
		SELECT id, group_id, user_id, cycle, amount, service_fee, penalty, due_date, paid_at, status, transaction_ref, created_at
		FROM contributions
		WHERE id = $1
	`

	c := &Contribution{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.GroupID,
		&c.UserID,
		&c.Cycle,
		&c.Amount,
		&c.ServiceFee,
		&c.Penalty,
		&c.DueDate,
		&c.PaidAt,
		&c.Status,
		&c.TransactionRef,
		&c.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get contribution: %w", err)
	}

	return c, nil
}

// GetForMember retrieves a member's contribution for a specific cycle
func (r *Repository) GetForMember(ctx context.Context, groupID, userID int64, cycle int) (*Contribution, error) {
	query := `
		SELECT id, group_id, user_id, cycle, amount, service_fee, penalty, due_date, paid_at, status, transaction_ref, created_at
		FROM contributions
		WHERE group_id = $1 AND user_id = $2 AND cycle = $3
	`

	c := &Contribution{}
	err := r.db.QueryRowContext(ctx, query, groupID, userID, cycle).Scan(
		&c.ID,
		&c.GroupID,
		&c.UserID,
		&c.Cycle,
		&c.Amount,
		&c.ServiceFee,
		&c.Penalty,
		&c.DueDate,
		&c.PaidAt,
		&c.Status,
		&c.TransactionRef,
		&c.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get contribution: %w", err)
	}

	return c, nil
}

// ListFilter narrows a contribution listing
type ListFilter struct {
	UserID  *int64
	GroupID *int64
	Cycle   *int
	Status  *Status
}

// List retrieves contributions matching the filter, newest first
func (r *Repository) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Contribution, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	n := 0

	addArg := func(clause string, v interface{}) {
		n++
		where += fmt.Sprintf(" AND %s = $%d", clause, n)
		args = append(args, v)
	}

	if filter.UserID != nil {
		addArg("c.user_id", *filter.UserID)
	}
	if filter.GroupID != nil {
		addArg("c.group_id", *filter.GroupID)
	}
	if filter.Cycle != nil {
		addArg("c.cycle", *filter.Cycle)
	}
	if filter.Status != nil {
		addArg("c.status", *filter.Status)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM contributions c` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count contributions: %w", err)
	}

	query := `
		SELECT c.id, c.group_id, c.user_id, c.cycle, c.amount, c.service_fee, c.penalty,
		       c.due_date, c.paid_at, c.status, c.transaction_ref, c.created_at, u.username
		FROM contributions c
		JOIN users u ON c.user_id = u.id` + where +
		fmt.Sprintf(" ORDER BY c.due_date DESC, c.id DESC LIMIT $%d OFFSET $%d", n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	var contributions []*Contribution
	for rows.Next() {
		c := &Contribution{}
		if err := rows.Scan(
			&c.ID,
			&c.GroupID,
			&c.UserID,
			&c.Cycle,
			&c.Amount,
			&c.ServiceFee,
			&c.Penalty,
			&c.DueDate,
			&c.PaidAt,
			&c.Status,
			&c.TransactionRef,
			&c.CreatedAt,
			&c.Username,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan contribution: %w", err)
		}
		contributions = append(contributions, c)
	}

	return contributions, total, nil
}

// MarkOverdue sweeps contribution rows past their due date. Pending rows
// become late and accrue the penalty; late rows past the grace window become
// missed and their members are flagged as defaulted. Both moves happen in one
// transaction so a member is never defaulted without the missed row existing.
func (r *Repository) MarkOverdue(ctx context.Context, now time.Time, penaltyPercent float64, grace time.Duration) (late, missed int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lateQuery := `
		UPDATE contributions
		SET status = 'late', penalty = ROUND((amount * $2 / 100)::numeric, 2)
		WHERE status = 'pending' AND due_date < $1
	`
	res, err := tx.ExecContext(ctx, lateQuery, now, penaltyPercent)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to mark contributions late: %w", err)
	}
	late, _ = res.RowsAffected()

	missedQuery := `
		UPDATE contributions
		SET status = 'missed'
		WHERE status = 'late' AND due_date < $1 - ($2 * interval '1 second')
	`
	res, err = tx.ExecContext(ctx, missedQuery, now, int64(grace.Seconds()))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to mark contributions missed: %w", err)
	}
	missed, _ = res.RowsAffected()

	defaultQuery := `
		UPDATE group_members gm
		SET status = 'defaulted'
		WHERE gm.status IN ('pending', 'active')
		  AND EXISTS (
			SELECT 1 FROM contributions c
			WHERE c.group_id = gm.group_id AND c.user_id = gm.user_id AND c.status = 'missed'
		  )
	`
	if _, err := tx.ExecContext(ctx, defaultQuery); err != nil {
		return 0, 0, fmt.Errorf("failed to flag defaulted members: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit overdue sweep: %w", err)
	}

	return late, missed, nil
}
