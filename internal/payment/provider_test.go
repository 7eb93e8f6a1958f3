package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	client := NewClient("http://example.com", "sk_test_secret", time.Second)
	body := []byte(`{"event":"charge.success","data":{"reference":"ESU-CT-abc"}}`)

	tests := []struct {
		name      string
		body      []byte
		signature string
		want      bool
	}{
		{
			name:      "valid signature",
			body:      body,
			signature: sign("sk_test_secret", body),
			want:      true,
		},
		{
			name:      "wrong secret",
			body:      body,
			signature: sign("sk_test_other", body),
			want:      false,
		},
		{
			name:      "tampered body",
			body:      []byte(`{"event":"charge.success","data":{"reference":"ESU-CT-xyz"}}`),
			signature: sign("sk_test_secret", body),
			want:      false,
		},
		{
			name:      "empty signature",
			body:      body,
			signature: "",
			want:      false,
		},
		{
			name:      "garbage signature",
			body:      body,
			signature: "not-a-hex-digest",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := client.VerifySignature(tt.body, tt.signature); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFetchStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_secret" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"status":false,"message":"Invalid key"}`)
			return
		}

		switch r.URL.Path {
		case "/transaction/verify/ESU-CT-good":
			fmt.Fprint(w, `{"status":true,"message":"Verification successful","data":{"id":4099261,"reference":"ESU-CT-good","status":"success","amount":5000,"metadata":{"group_id":7}}}`)
		case "/transaction/verify/ESU-CT-abandoned":
			fmt.Fprint(w, `{"status":true,"message":"Verification successful","data":{"id":4099262,"reference":"ESU-CT-abandoned","status":"abandoned","amount":5000}}`)
		case "/transaction/verify/ESU-CT-unknown":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"status":false,"message":"Transaction reference not found"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test_secret", time.Second)

	t.Run("successful payment", func(t *testing.T) {
		status, err := client.FetchStatus(context.Background(), "ESU-CT-good")
		if err != nil {
			t.Fatalf("FetchStatus() error = %v", err)
		}
		if !status.Succeeded() {
			t.Errorf("Succeeded() = false, want true")
		}
		if status.Reference != "ESU-CT-good" {
			t.Errorf("Reference = %q, want %q", status.Reference, "ESU-CT-good")
		}
		if status.Amount != 5000 {
			t.Errorf("Amount = %v, want 5000", status.Amount)
		}
		if status.ProviderRef != "4099261" {
			t.Errorf("ProviderRef = %q, want %q", status.ProviderRef, "4099261")
		}
	})

	t.Run("abandoned payment is not success", func(t *testing.T) {
		status, err := client.FetchStatus(context.Background(), "ESU-CT-abandoned")
		if err != nil {
			t.Fatalf("FetchStatus() error = %v", err)
		}
		if status.Succeeded() {
			t.Errorf("Succeeded() = true for abandoned payment")
		}
	})

	t.Run("unknown reference", func(t *testing.T) {
		_, err := client.FetchStatus(context.Background(), "ESU-CT-unknown")
		if err == nil {
			t.Fatal("FetchStatus() error = nil, want error for unknown reference")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		bad := NewClient(server.URL, "sk_test_wrong", time.Second)
		_, err := bad.FetchStatus(context.Background(), "ESU-CT-good")
		if err == nil {
			t.Fatal("FetchStatus() error = nil, want error for rejected key")
		}
	})
}

func TestFetchStatusTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, "sk_test_secret", 50*time.Millisecond)

	_, err := client.FetchStatus(context.Background(), "ESU-CT-slow")
	if err == nil {
		t.Fatal("FetchStatus() error = nil, want timeout error")
	}
}
