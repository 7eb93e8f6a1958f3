package payment

import (
	"encoding/json"
	"time"
)

// TransactionType classifies a ledger transaction
type TransactionType string

const (
	TypeContribution    TransactionType = "contribution"
	TypePayout          TransactionType = "payout"
	TypeSecurityDeposit TransactionType = "security_deposit"
	TypePenalty         TransactionType = "penalty"
	TypeRefund          TransactionType = "refund"
)

// TransactionStatus is the settlement state of a transaction.
// Only pending -> completed and pending -> failed are legal; a settled
// transaction never changes again.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// Transaction is a ledger entry. Reference is the globally unique identifier
// handed to the payment provider and echoed back in webhooks.
type Transaction struct {
	ID             int64             `json:"id"`
	UserID         int64             `json:"user_id"`
	GroupID        *int64            `json:"group_id,omitempty"`
	ContributionID *int64            `json:"contribution_id,omitempty"`
	Type           TransactionType   `json:"type"`
	Amount         float64           `json:"amount"`
	Status         TransactionStatus `json:"status"`
	Reference      string            `json:"reference"`
	ProviderRef    *string           `json:"provider_ref,omitempty"`
	Metadata       json.RawMessage   `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// WebhookRecord is the durable intent record for one delivered webhook event.
// The (provider, reference) uniqueness plus the processed flag give exactly
// one successful application per distinct event, no matter how many times the
// provider delivers it.
type WebhookRecord struct {
	ID              int64      `json:"id"`
	Provider        string     `json:"provider"`
	EventType       string     `json:"event_type"`
	Reference       string     `json:"reference"`
	Payload         []byte     `json:"-"`
	Processed       bool       `json:"processed"`
	ProcessingError *string    `json:"processing_error,omitempty"`
	ReceivedAt      time.Time  `json:"received_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
}
