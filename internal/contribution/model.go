package contribution

import "time"

// Status represents the lifecycle state of a contribution obligation.
// Allowed transitions: pending -> paid, pending -> late, late -> paid,
// late -> missed. Paid and missed are terminal.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusLate    Status = "late"
	StatusMissed  Status = "missed"
)

// Payable reports whether a payment may still settle this contribution.
// Paid and missed are terminal; re-application is never allowed.
func (s Status) Payable() bool {
	return s == StatusPending || s == StatusLate
}

// CanTransition reports whether a contribution may move from one status to
// another. ApplyPaymentTx and MarkOverdue enforce the same map in their
// WHERE clauses.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusPaid || to == StatusLate
	case StatusLate:
		return to == StatusPaid || to == StatusMissed
	}
	return false
}

// Frequency is the contribution cadence of a group
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Valid reports whether f is a known frequency
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Contribution represents one member's payment obligation for one cycle
type Contribution struct {
	ID             int64      `json:"id"`
	GroupID        int64      `json:"group_id"`
	UserID         int64      `json:"user_id"`
	Cycle          int        `json:"cycle"`
	Amount         float64    `json:"amount"`
	ServiceFee     float64    `json:"service_fee"`
	Penalty        float64    `json:"penalty"`
	DueDate        time.Time  `json:"due_date"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	Status         Status     `json:"status"`
	TransactionRef *string    `json:"transaction_ref,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`

	// Populated from JOIN
	Username string `json:"username,omitempty"`
}
