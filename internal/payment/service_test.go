package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type insertedWebhook struct {
	provider  string
	eventType string
	reference string
	payload   []byte
}

type fakeLedger struct {
	record   *WebhookRecord
	applyRes *ApplyResult
	applyErr error
	failErr  error

	inserts      []insertedWebhook
	applied      []ApplyParams
	failures     []string
	errorsMarked []string
	ignored      []int64
}

func (f *fakeLedger) CreateTransaction(ctx context.Context, t *Transaction) (*Transaction, error) {
	return t, nil
}

func (f *fakeLedger) ListByUserID(ctx context.Context, userID int64, limit, offset int) ([]*Transaction, int, error) {
	return nil, 0, nil
}

func (f *fakeLedger) InsertWebhookRecord(ctx context.Context, provider, eventType, reference string, payload []byte) (*WebhookRecord, error) {
	f.inserts = append(f.inserts, insertedWebhook{provider, eventType, reference, payload})
	if f.record != nil {
		return f.record, nil
	}
	return &WebhookRecord{ID: 1, Provider: provider, EventType: eventType, Reference: reference}, nil
}

func (f *fakeLedger) MarkWebhookError(ctx context.Context, id int64, msg string) error {
	f.errorsMarked = append(f.errorsMarked, msg)
	return nil
}

func (f *fakeLedger) MarkWebhookIgnored(ctx context.Context, id int64) error {
	f.ignored = append(f.ignored, id)
	return nil
}

func (f *fakeLedger) Apply(ctx context.Context, p ApplyParams) (*ApplyResult, error) {
	f.applied = append(f.applied, p)
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	if f.applyRes != nil {
		return f.applyRes, nil
	}
	return &ApplyResult{Transaction: &Transaction{Reference: p.Reference, Type: TypeContribution, Amount: 5000, Status: StatusCompleted}}, nil
}

func (f *fakeLedger) ApplyFailure(ctx context.Context, webhookID int64, reference, reason string) error {
	f.failures = append(f.failures, reference)
	return f.failErr
}

type fakeProvider struct {
	valid  bool
	status *ProviderStatus
	err    error

	fetched []string
}

func (f *fakeProvider) VerifySignature(body []byte, signature string) bool {
	return f.valid
}

func (f *fakeProvider) FetchStatus(ctx context.Context, reference string) (*ProviderStatus, error) {
	f.fetched = append(f.fetched, reference)
	if f.err != nil {
		return nil, f.err
	}
	return f.status, nil
}

func newTestService(ledger *fakeLedger, provider *fakeProvider) *Service {
	return NewService(ledger, provider, "paystack", time.Second, nil, nil)
}

func successBody(reference string) []byte {
	return []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":"%s","status":"success","amount":5000}}`, reference))
}

func TestReconcileInvalidSignature(t *testing.T) {
	ledger := &fakeLedger{}
	provider := &fakeProvider{valid: false}
	svc := newTestService(ledger, provider)

	_, err := svc.Reconcile(context.Background(), successBody("ESU-CT-abc"), "bad-signature")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("Reconcile() error = %v, want ErrInvalidSignature", err)
	}

	// Nothing may be persisted or verified off an unauthenticated payload
	if len(ledger.inserts) != 0 || len(ledger.applied) != 0 || len(ledger.failures) != 0 || len(provider.fetched) != 0 {
		t.Errorf("side effects after signature failure: inserts=%d applied=%d failures=%d fetched=%d",
			len(ledger.inserts), len(ledger.applied), len(ledger.failures), len(provider.fetched))
	}
	if Retryable(err) {
		t.Error("Retryable() = true for invalid signature")
	}
}

func TestReconcileBadPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `this is not json`},
		{"missing event", `{"data":{"reference":"ESU-CT-abc"}}`},
		{"missing reference", `{"event":"charge.success","data":{"status":"success"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &fakeLedger{}
			svc := newTestService(ledger, &fakeProvider{valid: true})

			_, err := svc.Reconcile(context.Background(), []byte(tt.body), "sig")
			if !errors.Is(err, ErrBadPayload) {
				t.Errorf("Reconcile() error = %v, want ErrBadPayload", err)
			}

			// The authenticated raw body is still kept for audit, under a
			// digest reference, and consumed so the provider stops retrying.
			if len(ledger.inserts) != 1 {
				t.Fatalf("webhook inserts = %d, want 1", len(ledger.inserts))
			}
			ins := ledger.inserts[0]
			if ins.eventType != "unparseable" {
				t.Errorf("eventType = %q, want %q", ins.eventType, "unparseable")
			}
			if !strings.HasPrefix(ins.reference, "raw-") {
				t.Errorf("reference = %q, want raw- prefix", ins.reference)
			}
			if string(ins.payload) != tt.body {
				t.Errorf("payload = %q, want the raw body", ins.payload)
			}
			if len(ledger.ignored) != 1 {
				t.Errorf("MarkWebhookIgnored called %d times, want 1", len(ledger.ignored))
			}
		})
	}
}

func TestReconcileDuplicateDelivery(t *testing.T) {
	ledger := &fakeLedger{
		record: &WebhookRecord{ID: 7, Processed: true},
	}
	provider := &fakeProvider{valid: true}
	svc := newTestService(ledger, provider)

	ack, err := svc.Reconcile(context.Background(), successBody("ESU-CT-abc"), "sig")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if ack.Status != AckAlreadyProcessed {
		t.Errorf("ack.Status = %q, want %q", ack.Status, AckAlreadyProcessed)
	}
	if len(ledger.applied) != 0 {
		t.Errorf("Apply called %d times for an already-processed webhook", len(ledger.applied))
	}
	if len(provider.fetched) != 0 {
		t.Errorf("FetchStatus called for an already-processed webhook")
	}
}

func TestReconcileSuccessApplied(t *testing.T) {
	ledger := &fakeLedger{}
	provider := &fakeProvider{
		valid: true,
		status: &ProviderStatus{
			Reference:   "ESU-CT-abc",
			Status:      "success",
			Amount:      5000,
			ProviderRef: "4099261",
		},
	}
	svc := newTestService(ledger, provider)

	ack, err := svc.Reconcile(context.Background(), successBody("ESU-CT-abc"), "sig")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if ack.Status != AckApplied {
		t.Errorf("ack.Status = %q, want %q", ack.Status, AckApplied)
	}

	if len(ledger.applied) != 1 {
		t.Fatalf("Apply called %d times, want 1", len(ledger.applied))
	}
	p := ledger.applied[0]
	if p.Reference != "ESU-CT-abc" {
		t.Errorf("applied reference = %q, want %q", p.Reference, "ESU-CT-abc")
	}
	if p.ProviderRef != "4099261" {
		t.Errorf("applied provider ref = %q, want %q", p.ProviderRef, "4099261")
	}
	if p.ExpectedAmount != 5000 {
		t.Errorf("applied expected amount = %v, want 5000", p.ExpectedAmount)
	}
}

func TestReconcileVerificationUnavailable(t *testing.T) {
	ledger := &fakeLedger{}
	provider := &fakeProvider{valid: true, err: errors.New("connection refused")}
	svc := newTestService(ledger, provider)

	_, err := svc.Reconcile(context.Background(), successBody("ESU-CT-abc"), "sig")
	if !errors.Is(err, ErrVerifyUnavailable) {
		t.Fatalf("Reconcile() error = %v, want ErrVerifyUnavailable", err)
	}
	if !Retryable(err) {
		t.Error("Retryable() = false for unavailable verification")
	}
	if len(ledger.applied) != 0 {
		t.Error("Apply called without provider confirmation")
	}
	if len(ledger.errorsMarked) != 1 {
		t.Errorf("MarkWebhookError called %d times, want 1", len(ledger.errorsMarked))
	}
}

func TestReconcileStatusMismatch(t *testing.T) {
	ledger := &fakeLedger{}
	provider := &fakeProvider{
		valid:  true,
		status: &ProviderStatus{Reference: "ESU-CT-abc", Status: "failed", Amount: 5000},
	}
	svc := newTestService(ledger, provider)

	_, err := svc.Reconcile(context.Background(), successBody("ESU-CT-abc"), "sig")
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("Reconcile() error = %v, want ErrStatusMismatch", err)
	}
	if len(ledger.applied) != 0 {
		t.Error("Apply called despite the provider disagreeing with the webhook")
	}
}

func TestReconcileFailureEvent(t *testing.T) {
	ledger := &fakeLedger{}
	provider := &fakeProvider{valid: true}
	svc := newTestService(ledger, provider)

	body := []byte(`{"event":"charge.failed","data":{"reference":"ESU-CT-abc","status":"failed"}}`)
	ack, err := svc.Reconcile(context.Background(), body, "sig")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if ack.Status != AckFailureRecorded {
		t.Errorf("ack.Status = %q, want %q", ack.Status, AckFailureRecorded)
	}
	if len(ledger.failures) != 1 || ledger.failures[0] != "ESU-CT-abc" {
		t.Errorf("ApplyFailure calls = %v, want one for ESU-CT-abc", ledger.failures)
	}
	if len(provider.fetched) != 0 {
		t.Error("FetchStatus called for a failure event")
	}
}

func TestReconcileUnknownEventIgnored(t *testing.T) {
	ledger := &fakeLedger{}
	svc := newTestService(ledger, &fakeProvider{valid: true})

	body := []byte(`{"event":"subscription.create","data":{"reference":"SUB-123"}}`)
	ack, err := svc.Reconcile(context.Background(), body, "sig")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if ack.Status != AckIgnored {
		t.Errorf("ack.Status = %q, want %q", ack.Status, AckIgnored)
	}
	if len(ledger.ignored) != 1 {
		t.Errorf("MarkWebhookIgnored called %d times, want 1", len(ledger.ignored))
	}
}

func TestReconcileApplyConflict(t *testing.T) {
	ledger := &fakeLedger{applyErr: ErrContributionNotPayable}
	provider := &fakeProvider{
		valid:  true,
		status: &ProviderStatus{Reference: "ESU-CT-abc", Status: "success", Amount: 5000},
	}
	svc := newTestService(ledger, provider)

	_, err := svc.Reconcile(context.Background(), successBody("ESU-CT-abc"), "sig")
	if !errors.Is(err, ErrContributionNotPayable) {
		t.Fatalf("Reconcile() error = %v, want ErrContributionNotPayable", err)
	}
	if Retryable(err) {
		t.Error("Retryable() = true for a settled-state conflict")
	}
	if len(ledger.errorsMarked) != 1 {
		t.Errorf("MarkWebhookError called %d times, want 1", len(ledger.errorsMarked))
	}
}

func TestReconcilePayoutAdvancesGroup(t *testing.T) {
	ledger := &fakeLedger{
		applyRes: &ApplyResult{
			Transaction:    &Transaction{Reference: "ESU-PO-abc", Type: TypePayout, Amount: 14625, Status: StatusCompleted},
			GroupCompleted: true,
		},
	}
	provider := &fakeProvider{
		valid:  true,
		status: &ProviderStatus{Reference: "ESU-PO-abc", Status: "success", Amount: 14625},
	}
	svc := newTestService(ledger, provider)

	body := []byte(`{"event":"transfer.success","data":{"reference":"ESU-PO-abc","status":"success","amount":14625}}`)
	ack, err := svc.Reconcile(context.Background(), body, "sig")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !ack.GroupCompleted {
		t.Error("ack.GroupCompleted = false, want true after the final payout")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"invalid signature", ErrInvalidSignature, false},
		{"bad payload", ErrBadPayload, false},
		{"settled transaction", ErrTransactionFinal, false},
		{"amount mismatch", ErrAmountMismatch, false},
		{"invariant violated", ErrInvariantViolated, false},
		{"verification unavailable", ErrVerifyUnavailable, true},
		{"status mismatch", ErrStatusMismatch, true},
		{"unknown transaction", ErrTransactionNotFound, true},
		{"wrapped transient", fmt.Errorf("apply: %w", errors.New("deadlock detected")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
