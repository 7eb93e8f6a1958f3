package payment

const timeFormat = "2006-01-02T15:04:05Z07:00"

// TransactionResponse represents a ledger transaction in API responses
type TransactionResponse struct {
	ID             int64   `json:"id"`
	UserID         int64   `json:"user_id"`
	GroupID        *int64  `json:"group_id,omitempty"`
	ContributionID *int64  `json:"contribution_id,omitempty"`
	Type           string  `json:"type"`
	Amount         float64 `json:"amount"`
	Status         string  `json:"status"`
	Reference      string  `json:"reference"`
	CreatedAt      string  `json:"created_at"`
}

// ToResponse converts a Transaction to a TransactionResponse
func (t *Transaction) ToResponse() *TransactionResponse {
	return &TransactionResponse{
		ID:             t.ID,
		UserID:         t.UserID,
		GroupID:        t.GroupID,
		ContributionID: t.ContributionID,
		Type:           string(t.Type),
		Amount:         t.Amount,
		Status:         string(t.Status),
		Reference:      t.Reference,
		CreatedAt:      t.CreatedAt.Format(timeFormat),
	}
}
