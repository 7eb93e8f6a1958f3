package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/temidayoh/esusu/internal/contribution"
	"github.com/temidayoh/esusu/internal/group"
)

// Common errors
var (
	ErrInvalidSignature       = errors.New("webhook signature verification failed")
	ErrBadPayload             = errors.New("malformed webhook payload")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrTransactionFinal       = errors.New("transaction already settled")
	ErrDuplicateReference     = errors.New("transaction reference already exists")
	ErrStatusMismatch         = errors.New("webhook status does not match provider status")
	ErrVerifyUnavailable      = errors.New("provider status verification unavailable")
	ErrAmountMismatch         = errors.New("webhook amount does not match transaction amount")
	ErrContributionNotPayable = errors.New("contribution is not payable")
	ErrNotMember              = errors.New("user is not a member of this group")
	ErrDepositNotRequired     = errors.New("group requires no security deposit")
	ErrDepositAlreadyPaid     = errors.New("security deposit already paid")
	ErrInvariantViolated      = errors.New("ledger invariant violated")
)

// Ledger is the persistence surface the reconciliation engine drives.
// *Repository is the production implementation.
type Ledger interface {
	CreateTransaction(ctx context.Context, t *Transaction) (*Transaction, error)
	ListByUserID(ctx context.Context, userID int64, limit, offset int) ([]*Transaction, int, error)
	InsertWebhookRecord(ctx context.Context, provider, eventType, reference string, payload []byte) (*WebhookRecord, error)
	MarkWebhookError(ctx context.Context, id int64, msg string) error
	MarkWebhookIgnored(ctx context.Context, id int64) error
	Apply(ctx context.Context, p ApplyParams) (*ApplyResult, error)
	ApplyFailure(ctx context.Context, webhookID int64, reference, reason string) error
}

// Provider verifies webhook authenticity and reports authoritative payment
// state. *Client is the production implementation.
type Provider interface {
	VerifySignature(body []byte, signature string) bool
	FetchStatus(ctx context.Context, reference string) (*ProviderStatus, error)
}

// Service handles payment business logic
type Service struct {
	ledger        Ledger
	provider      Provider
	providerName  string
	verifyTimeout time.Duration
	groups        *group.Repository
	contribs      *contribution.Repository
}

// NewService creates a new payment service
func NewService(ledger Ledger, provider Provider, providerName string, verifyTimeout time.Duration, groups *group.Repository, contribs *contribution.Repository) *Service {
	return &Service{
		ledger:        ledger,
		provider:      provider,
		providerName:  providerName,
		verifyTimeout: verifyTimeout,
		groups:        groups,
		contribs:      contribs,
	}
}

// webhookEvent is the wire shape of an inbound provider webhook
type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64           `json:"id"`
		Reference string          `json:"reference"`
		Status    string          `json:"status"`
		Amount    float64         `json:"amount"`
		PaidAt    time.Time       `json:"paid_at"`
		Metadata  json.RawMessage `json:"metadata"`
	} `json:"data"`
}

// ReconcileAck reports the outcome of a webhook reconciliation
type ReconcileAck struct {
	Status         string `json:"status"`
	Reference      string `json:"reference,omitempty"`
	GroupCompleted bool   `json:"group_completed,omitempty"`
}

// Reconcile outcomes
const (
	AckApplied          = "applied"
	AckAlreadyProcessed = "already_processed"
	AckFailureRecorded  = "failure_recorded"
	AckIgnored          = "ignored"
)

// Reconcile verifies and idempotently applies an external payment
// confirmation. The order is fixed: signature first (nothing is trusted
// before it), then the durable webhook record for idempotency, then the
// authoritative status check against the provider, then the atomic ledger
// application.
func (s *Service) Reconcile(ctx context.Context, rawBody []byte, signature string) (*ReconcileAck, error) {
	if !s.provider.VerifySignature(rawBody, signature) {
		// Raw body is logged for forensics but never persisted or acted on
		slog.Warn("webhook signature mismatch",
			"provider", s.providerName,
			"body_size", len(rawBody),
			"raw", string(rawBody),
		)
		return nil, ErrInvalidSignature
	}

	var event webhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		s.recordRaw(ctx, rawBody)
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if event.Event == "" || event.Data.Reference == "" {
		s.recordRaw(ctx, rawBody)
		return nil, ErrBadPayload
	}

	rec, err := s.ledger.InsertWebhookRecord(ctx, s.providerName, event.Event, event.Data.Reference, rawBody)
	if err != nil {
		return nil, err
	}
	if rec.Processed {
		slog.Info("webhook already processed",
			"provider", s.providerName,
			"reference", event.Data.Reference,
		)
		return &ReconcileAck{Status: AckAlreadyProcessed, Reference: event.Data.Reference}, nil
	}

	switch event.Event {
	case "charge.success", "transfer.success":
		return s.reconcileSuccess(ctx, rec, &event, rawBody)

	case "charge.failed", "transfer.failed", "transfer.reversed":
		if err := s.ledger.ApplyFailure(ctx, rec.ID, event.Data.Reference, event.Event); err != nil {
			s.recordError(ctx, rec.ID, err)
			return nil, err
		}
		slog.Info("payment failure recorded",
			"reference", event.Data.Reference,
			"event", event.Event,
		)
		return &ReconcileAck{Status: AckFailureRecorded, Reference: event.Data.Reference}, nil

	default:
		// Unknown event type: consume it so the provider stops redelivering
		if err := s.ledger.MarkWebhookIgnored(ctx, rec.ID); err != nil {
			return nil, err
		}
		return &ReconcileAck{Status: AckIgnored, Reference: event.Data.Reference}, nil
	}
}

func (s *Service) reconcileSuccess(ctx context.Context, rec *WebhookRecord, event *webhookEvent, rawBody []byte) (*ReconcileAck, error) {
	// Secondary verification against the provider's own API, bounded by a
	// timeout. A timeout is a failure, never an implicit success.
	vctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	status, err := s.provider.FetchStatus(vctx, event.Data.Reference)
	if err != nil {
		s.recordError(ctx, rec.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrVerifyUnavailable, err)
	}
	if !status.Succeeded() {
		err := fmt.Errorf("%w: webhook says %q, provider says %q",
			ErrStatusMismatch, event.Data.Status, status.Status)
		s.recordError(ctx, rec.ID, err)
		return nil, err
	}

	paidAt := event.Data.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	result, err := s.ledger.Apply(ctx, ApplyParams{
		WebhookID:      rec.ID,
		Reference:      event.Data.Reference,
		ProviderRef:    status.ProviderRef,
		Metadata:       status.Metadata,
		PaidAt:         paidAt,
		ExpectedAmount: status.Amount,
	})
	if err != nil {
		s.recordError(ctx, rec.ID, err)
		return nil, err
	}

	if result.Noop {
		return &ReconcileAck{Status: AckAlreadyProcessed, Reference: event.Data.Reference}, nil
	}

	slog.Info("payment reconciled",
		"reference", event.Data.Reference,
		"type", result.Transaction.Type,
		"amount", result.Transaction.Amount,
		"group_completed", result.GroupCompleted,
	)

	return &ReconcileAck{
		Status:         AckApplied,
		Reference:      event.Data.Reference,
		GroupCompleted: result.GroupCompleted,
	}, nil
}

// recordRaw keeps an authenticated but unusable payload on file, best
// effort. The synthetic reference is a digest of the body, so redeliveries
// of the same junk collapse into one consumed row.
func (s *Service) recordRaw(ctx context.Context, rawBody []byte) {
	sum := sha256.Sum256(rawBody)
	reference := "raw-" + hex.EncodeToString(sum[:8])

	rec, err := s.ledger.InsertWebhookRecord(ctx, s.providerName, "unparseable", reference, rawBody)
	if err != nil {
		slog.Error("failed to record unparseable webhook", "reference", reference, "error", err)
		return
	}
	if rec.Processed {
		return
	}
	if err := s.ledger.MarkWebhookIgnored(ctx, rec.ID); err != nil {
		slog.Error("failed to consume unparseable webhook", "reference", reference, "error", err)
	}
}

// recordError persists a diagnostic on the webhook record, best effort,
// outside the atomic unit
func (s *Service) recordError(ctx context.Context, webhookID int64, cause error) {
	if err := s.ledger.MarkWebhookError(ctx, webhookID, cause.Error()); err != nil {
		slog.Error("failed to record webhook error", "webhook_id", webhookID, "error", err)
	}
}

// Retryable reports whether the upstream transport should redeliver the
// webhook after this error. Authenticity failures, malformed payloads and
// settled-state conflicts are terminal; everything else is worth a retry.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrBadPayload),
		errors.Is(err, ErrTransactionFinal),
		errors.Is(err, ErrContributionNotPayable),
		errors.Is(err, ErrAmountMismatch),
		errors.Is(err, ErrInvariantViolated):
		return false
	}
	return true
}

// InitiateRequest asks for a pending transaction to pay through the provider
type InitiateRequest struct {
	GroupID int64  `json:"group_id" validate:"required"`
	Type    string `json:"type" validate:"required,oneof=contribution security_deposit"`
	Cycle   int    `json:"cycle,omitempty"`
}

// Initiate creates a pending transaction and mints the unique reference the
// payment gateway will echo back in its webhook.
func (s *Service) Initiate(ctx context.Context, userID int64, req *InitiateRequest) (*Transaction, error) {
	g, err := s.groups.GetByID(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, group.ErrGroupNotFound
	}

	member, err := s.groups.GetMember(ctx, req.GroupID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrNotMember
	}

	txn := &Transaction{
		UserID:  userID,
		GroupID: &g.ID,
	}

	switch TransactionType(req.Type) {
	case TypeContribution:
		cycle := req.Cycle
		if cycle == 0 {
			cycle = g.CurrentCycle
		}
		c, err := s.contribs.GetForMember(ctx, req.GroupID, userID, cycle)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, contribution.ErrContributionNotFound
		}
		if !c.Status.Payable() {
			return nil, ErrContributionNotPayable
		}
		txn.Type = TypeContribution
		txn.Amount = round2(c.Amount + c.Penalty)
		txn.ContributionID = &c.ID
		txn.Reference = "ESU-CT-" + uuid.NewString()

	case TypeSecurityDeposit:
		if g.SecurityDeposit <= 0 {
			return nil, ErrDepositNotRequired
		}
		if member.DepositPaid {
			return nil, ErrDepositAlreadyPaid
		}
		txn.Type = TypeSecurityDeposit
		txn.Amount = g.SecurityDeposit
		txn.Reference = "ESU-SD-" + uuid.NewString()

	default:
		return nil, fmt.Errorf("%w: type %q cannot be initiated", ErrBadPayload, req.Type)
	}

	return s.ledger.CreateTransaction(ctx, txn)
}

// ListByUserID retrieves a user's transactions with pagination
func (s *Service) ListByUserID(ctx context.Context, userID int64, page, perPage int) ([]*Transaction, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.ledger.ListByUserID(ctx, userID, perPage, offset)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
