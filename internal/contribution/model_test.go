package contribution

import "testing"

func TestStatusPayable(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, true},
		{StatusLate, true},
		{StatusPaid, false},
		{StatusMissed, false},
	}

	for _, tt := range tests {
		if got := tt.status.Payable(); got != tt.want {
			t.Errorf("Status(%s).Payable() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to paid", StatusPending, StatusPaid, true},
		{"pending to late", StatusPending, StatusLate, true},
		{"late to paid", StatusLate, StatusPaid, true},
		{"late to missed", StatusLate, StatusMissed, true},
		{"pending cannot miss directly", StatusPending, StatusMissed, false},
		{"paid is terminal", StatusPaid, StatusLate, false},
		{"paid cannot repay", StatusPaid, StatusPaid, false},
		{"missed is terminal", StatusMissed, StatusPaid, false},
		{"missed cannot relapse", StatusMissed, StatusLate, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
