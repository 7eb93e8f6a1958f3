package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"

	"github.com/temidayoh/esusu/internal/contribution"
	"github.com/temidayoh/esusu/internal/group"
	"github.com/temidayoh/esusu/internal/notification"
)

// Repository is the payment ledger. Reconciliation effects span transactions,
// contributions, group members, the group cycle and the notification queue;
// Apply runs them in one database transaction with the Transaction row locked
// FOR UPDATE so concurrent deliveries of the same event serialize.
type Repository struct {
	db       *sql.DB
	groups   *group.Repository
	contribs *contribution.Repository
	notifs   *notification.Repository
}

// NewRepository creates a new payment repository
func NewRepository(db *sql.DB, groups *group.Repository, contribs *contribution.Repository, notifs *notification.Repository) *Repository {
	return &Repository{db: db, groups: groups, contribs: contribs, notifs: notifs}
}

const txnColumns = `id, user_id, group_id, contribution_id, type, amount, status, reference, provider_ref, metadata, created_at`

func scanTransaction(row interface {
	Scan(dest ...interface{}) error
}) (*Transaction, error) {
	t := &Transaction{}
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.GroupID,
		&t.ContributionID,
		&t.Type,
		&t.Amount,
		&t.Status,
		&t.Reference,
		&t.ProviderRef,
		&t.Metadata,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTransaction inserts a new pending transaction
func (r *Repository) CreateTransaction(ctx context.Context, t *Transaction) (*Transaction, error) {
	query := `
		INSERT INTO transactions (user_id, group_id, contribution_id, type, amount, status, reference)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
		RETURNING ` + txnColumns

	created, err := scanTransaction(r.db.QueryRowContext(ctx, query,
		t.UserID, t.GroupID, t.ContributionID, t.Type, t.Amount, t.Reference,
	))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return created, nil
}

// ListByUserID retrieves a user's transactions, newest first
func (r *Repository) ListByUserID(ctx context.Context, userID int64, limit, offset int) ([]*Transaction, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM transactions WHERE user_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := `SELECT ` + txnColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}

	return transactions, total, nil
}

// InsertWebhookRecord records an inbound webhook as a durable intent record.
// If a record for (provider, reference) already exists the existing row is
// returned instead; duplicate deliveries never create a second record.
func (r *Repository) InsertWebhookRecord(ctx context.Context, provider, eventType, reference string, payload []byte) (*WebhookRecord, error) {
	insert := `
		INSERT INTO payment_webhooks (provider, event_type, reference, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, reference) DO NOTHING
		RETURNING id, provider, event_type, reference, payload, processed, processing_error, received_at, processed_at
	`

	rec := &WebhookRecord{}
	err := r.db.QueryRowContext(ctx, insert, provider, eventType, reference, payload).Scan(
		&rec.ID,
		&rec.Provider,
		&rec.EventType,
		&rec.Reference,
		&rec.Payload,
		&rec.Processed,
		&rec.ProcessingError,
		&rec.ReceivedAt,
		&rec.ProcessedAt,
	)
	if err == nil {
		return rec, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to insert webhook record: %w", err)
	}

	// Conflict: fetch the existing record
	query := `
		SELECT id, provider, event_type, reference, payload, processed, processing_error, received_at, processed_at
		FROM payment_webhooks
		WHERE provider = $1 AND reference = $2
	`
	err = r.db.QueryRowContext(ctx, query, provider, reference).Scan(
		&rec.ID,
		&rec.Provider,
		&rec.EventType,
		&rec.Reference,
		&rec.Payload,
		&rec.Processed,
		&rec.ProcessingError,
		&rec.ReceivedAt,
		&rec.ProcessedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook record: %w", err)
	}

	return rec, nil
}

// MarkWebhookError stores a diagnostic error on the webhook record. Called
// outside the atomic unit as a best-effort write after a failed application.
func (r *Repository) MarkWebhookError(ctx context.Context, id int64, msg string) error {
	query := `UPDATE payment_webhooks SET processing_error = $2 WHERE id = $1 AND NOT processed`
	if _, err := r.db.ExecContext(ctx, query, id, msg); err != nil {
		return fmt.Errorf("failed to mark webhook error: %w", err)
	}
	return nil
}

// MarkWebhookIgnored consumes a webhook the engine has no handler for, so
// the provider stops redelivering it
func (r *Repository) MarkWebhookIgnored(ctx context.Context, id int64) error {
	query := `UPDATE payment_webhooks SET processed = true, processed_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark webhook ignored: %w", err)
	}
	return nil
}

// ApplyParams carries a verified payment confirmation into the ledger
type ApplyParams struct {
	WebhookID      int64
	Reference      string
	ProviderRef    string
	Metadata       []byte
	PaidAt         time.Time
	ExpectedAmount float64
}

// ApplyResult reports what the application did
type ApplyResult struct {
	Transaction    *Transaction
	Noop           bool
	GroupCompleted bool
}

// Apply settles a verified payment confirmation in one atomic unit:
// the transaction completes, the type-specific effects (contribution paid,
// deposit flagged, payout recorded and cycle advanced) run, the notification
// is enqueued and the webhook record flips to processed. Any failure rolls
// back all of it.
func (r *Repository) Apply(ctx context.Context, p ApplyParams) (*ApplyResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txn, err := scanTransaction(tx.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE reference = $1 FOR UPDATE`,
		p.Reference,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}

	if txn.Status == StatusCompleted {
		// A different delivery already settled this transaction; just make
		// sure the webhook record reflects that
		if err := r.markProcessedTx(ctx, tx, p.WebhookID); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit no-op application: %w", err)
		}
		return &ApplyResult{Transaction: txn, Noop: true}, nil
	}
	if txn.Status == StatusFailed {
		return nil, ErrTransactionFinal
	}

	if p.ExpectedAmount > 0 && math.Abs(p.ExpectedAmount-txn.Amount) >= 0.01 {
		return nil, fmt.Errorf("%w: transaction %.2f, provider %.2f",
			ErrAmountMismatch, txn.Amount, p.ExpectedAmount)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'completed', provider_ref = $2, metadata = $3
		WHERE id = $1 AND status = 'pending'
	`, txn.ID, p.ProviderRef, p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to complete transaction: %w", err)
	}
	txn.Status = StatusCompleted

	result := &ApplyResult{Transaction: txn}

	switch txn.Type {
	case TypeContribution:
		if txn.ContributionID == nil || txn.GroupID == nil {
			return nil, fmt.Errorf("%w: contribution transaction %s has no contribution", ErrInvariantViolated, txn.Reference)
		}
		c, err := r.contribs.ApplyPaymentTx(ctx, tx, *txn.ContributionID, txn.Reference, p.PaidAt)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, ErrContributionNotPayable
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE group_members
			SET contributions_made = contributions_made + 1
			WHERE group_id = $1 AND user_id = $2
		`, c.GroupID, c.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to increment contribution counter: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("%w: paid contribution without membership row", ErrInvariantViolated)
		}

		msg := fmt.Sprintf("Your contribution of %.2f for cycle %d was received.", txn.Amount, c.Cycle)
		if _, err := r.notifs.CreateTx(ctx, tx, txn.UserID, notification.TypePaymentReceived, "Payment received", msg, txn.GroupID); err != nil {
			return nil, err
		}

	case TypeSecurityDeposit:
		if txn.GroupID == nil {
			return nil, fmt.Errorf("%w: deposit transaction %s has no group", ErrInvariantViolated, txn.Reference)
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE group_members SET deposit_paid = true
			WHERE group_id = $1 AND user_id = $2
		`, *txn.GroupID, txn.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to flag deposit: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("%w: deposit without membership row", ErrInvariantViolated)
		}

		msg := fmt.Sprintf("Your security deposit of %.2f was received.", txn.Amount)
		if _, err := r.notifs.CreateTx(ctx, tx, txn.UserID, notification.TypePaymentReceived, "Deposit received", msg, txn.GroupID); err != nil {
			return nil, err
		}

	case TypePayout:
		if txn.GroupID == nil {
			return nil, fmt.Errorf("%w: payout transaction %s has no group", ErrInvariantViolated, txn.Reference)
		}
		if err := r.groups.MarkPayoutTx(ctx, tx, *txn.GroupID, txn.UserID, txn.Amount, p.PaidAt); err != nil {
			return nil, err
		}
		completed, err := r.groups.AdvanceCycleTx(ctx, tx, *txn.GroupID, p.PaidAt)
		if err != nil {
			return nil, err
		}
		result.GroupCompleted = completed

		msg := fmt.Sprintf("Your payout of %.2f has been sent.", txn.Amount)
		if _, err := r.notifs.CreateTx(ctx, tx, txn.UserID, notification.TypePayoutSent, "Payout sent", msg, txn.GroupID); err != nil {
			return nil, err
		}

	case TypePenalty, TypeRefund:
		// Ledger-only settlement, no downstream effects
	}

	if err := r.notifs.RecordAuditTx(ctx, tx, txn.UserID, "payment.reconciled", "transaction", txn.ID, string(txn.Type)); err != nil {
		return nil, err
	}

	if err := r.markProcessedTx(ctx, tx, p.WebhookID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit application: %w", err)
	}

	return result, nil
}

// ApplyFailure settles a provider-reported failure: the transaction moves to
// failed and the webhook record flips to processed, atomically.
func (r *Repository) ApplyFailure(ctx context.Context, webhookID int64, reference, reason string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE transactions SET status = 'failed'
		WHERE reference = $1 AND status = 'pending'
	`, reference)
	if err != nil {
		return fmt.Errorf("failed to fail transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Already settled or unknown; the webhook is still consumed below so
		// the provider stops redelivering it
		var status TransactionStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM transactions WHERE reference = $1`, reference).Scan(&status)
		if err == sql.ErrNoRows {
			return ErrTransactionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check transaction: %w", err)
		}
	}

	if err := r.markProcessedTx(ctx, tx, webhookID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit failure application: %w", err)
	}

	return nil
}

func (r *Repository) markProcessedTx(ctx context.Context, tx *sql.Tx, webhookID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE payment_webhooks
		SET processed = true, processed_at = NOW(), processing_error = NULL
		WHERE id = $1
	`, webhookID)
	if err != nil {
		return fmt.Errorf("failed to mark webhook processed: %w", err)
	}
	return nil
}
