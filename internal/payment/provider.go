package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ProviderStatus is the authoritative settlement state of a payment as
// reported by the provider's status endpoint
type ProviderStatus struct {
	Reference   string          `json:"reference"`
	Status      string          `json:"status"`
	Amount      float64         `json:"amount"`
	ProviderRef string          `json:"provider_ref"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// Succeeded reports whether the provider considers the payment settled
func (s *ProviderStatus) Succeeded() bool {
	return s.Status == "success"
}

// Client talks to the payment provider. It verifies webhook signatures
// locally and fetches authoritative payment status over HTTP.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// NewClient creates a provider client. The timeout bounds the authoritative
// status call; a timed-out verification is a failure, never a success.
func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
	}
}

// VerifySignature checks the HMAC-SHA512 signature the provider computes over
// the raw webhook body with the shared secret
func (c *Client) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(c.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

type statusEnvelope struct {
	Status bool   `json:"status"`
	Msg    string `json:"message"`
	Data   struct {
		ID        int64           `json:"id"`
		Reference string          `json:"reference"`
		Status    string          `json:"status"`
		Amount    float64         `json:"amount"`
		Metadata  json.RawMessage `json:"metadata"`
	} `json:"data"`
}

// FetchStatus asks the provider for the authoritative state of a payment.
// This is the defense against a forged or stale webhook: the ledger is only
// mutated after the provider's own API confirms the payment.
func (c *Client) FetchStatus(ctx context.Context, reference string) (*ProviderStatus, error) {
	url := fmt.Sprintf("%s/transaction/verify/%s", c.baseURL, reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status call returned %d", resp.StatusCode)
	}

	var envelope statusEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	if !envelope.Status {
		return nil, fmt.Errorf("provider rejected status query: %s", envelope.Msg)
	}

	return &ProviderStatus{
		Reference:   envelope.Data.Reference,
		Status:      envelope.Data.Status,
		Amount:      envelope.Data.Amount,
		ProviderRef: fmt.Sprintf("%d", envelope.Data.ID),
		Metadata:    envelope.Data.Metadata,
	}, nil
}
