package group

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"forming to active", StatusForming, StatusActive, true},
		{"forming to cancelled", StatusForming, StatusCancelled, true},
		{"active to completed", StatusActive, StatusCompleted, true},
		{"active to cancelled", StatusActive, StatusCancelled, true},
		{"forming to completed", StatusForming, StatusCompleted, false},
		{"active to forming", StatusActive, StatusForming, false},
		{"completed is terminal", StatusCompleted, StatusCancelled, false},
		{"completed cannot reopen", StatusCompleted, StatusActive, false},
		{"cancelled is terminal", StatusCancelled, StatusActive, false},
		{"cancelled cannot complete", StatusCancelled, StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestRecipientEligible(t *testing.T) {
	tests := []struct {
		status MemberStatus
		want   bool
	}{
		{MemberStatusPending, true},
		{MemberStatusActive, true},
		{MemberStatusDefaulted, false},
		{MemberStatusRemoved, false},
	}

	for _, tt := range tests {
		if got := RecipientEligible(tt.status); got != tt.want {
			t.Errorf("RecipientEligible(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestNextCycle(t *testing.T) {
	tests := []struct {
		name        string
		current     int
		totalCycles int
		statuses    map[int]MemberStatus
		wantCycle   int
		wantOK      bool
	}{
		{
			"advance to next member",
			1, 4,
			map[int]MemberStatus{1: MemberStatusActive, 2: MemberStatusActive, 3: MemberStatusActive, 4: MemberStatusActive},
			2, true,
		},
		{
			"defaulted recipient is skipped",
			1, 4,
			map[int]MemberStatus{1: MemberStatusActive, 2: MemberStatusDefaulted, 3: MemberStatusActive, 4: MemberStatusActive},
			3, true,
		},
		{
			"consecutive defaults are skipped",
			1, 4,
			map[int]MemberStatus{1: MemberStatusActive, 2: MemberStatusDefaulted, 3: MemberStatusRemoved, 4: MemberStatusActive},
			4, true,
		},
		{
			"unfilled position is skipped",
			1, 4,
			map[int]MemberStatus{1: MemberStatusActive, 3: MemberStatusActive, 4: MemberStatusActive},
			3, true,
		},
		{
			"pending member can still receive",
			1, 3,
			map[int]MemberStatus{1: MemberStatusActive, 2: MemberStatusPending, 3: MemberStatusActive},
			2, true,
		},
		{
			"rotation exhausted",
			4, 4,
			map[int]MemberStatus{1: MemberStatusActive, 2: MemberStatusActive, 3: MemberStatusActive, 4: MemberStatusActive},
			5, false,
		},
		{
			"tail of defaults ends the rotation",
			2, 4,
			map[int]MemberStatus{1: MemberStatusActive, 2: MemberStatusActive, 3: MemberStatusDefaulted, 4: MemberStatusRemoved},
			5, false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycle, ok := NextCycle(tt.current, tt.totalCycles, tt.statuses)
			if cycle != tt.wantCycle || ok != tt.wantOK {
				t.Errorf("NextCycle(%d, %d) = (%d, %v), want (%d, %v)",
					tt.current, tt.totalCycles, cycle, ok, tt.wantCycle, tt.wantOK)
			}
		})
	}
}

func TestCountEligible(t *testing.T) {
	tests := []struct {
		name     string
		statuses map[int]MemberStatus
		want     int
	}{
		{"all active", map[int]MemberStatus{1: MemberStatusActive, 2: MemberStatusActive}, 2},
		{"defaulted member excluded", map[int]MemberStatus{1: MemberStatusActive, 2: MemberStatusDefaulted, 3: MemberStatusActive}, 2},
		{"removed member excluded", map[int]MemberStatus{1: MemberStatusRemoved, 2: MemberStatusPending}, 1},
		{"empty", map[int]MemberStatus{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountEligible(tt.statuses); got != tt.want {
				t.Errorf("CountEligible() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPayoutAmount(t *testing.T) {
	tests := []struct {
		name       string
		amount     float64
		members    int
		feePercent float64
		wantPool   float64
		wantFee    float64
		wantNet    float64
	}{
		{"no fee", 1000, 5, 0, 5000, 0, 5000},
		{"flat fee", 1000, 5, 2, 5000, 100, 4900},
		{"fractional", 333.33, 3, 2.5, 999.99, 25, 974.99},
		{"two members", 50, 2, 10, 100, 10, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, fee, net := PayoutAmount(tt.amount, tt.members, tt.feePercent)
			if pool != tt.wantPool || fee != tt.wantFee || net != tt.wantNet {
				t.Errorf("PayoutAmount(%v, %d, %v) = (%v, %v, %v), want (%v, %v, %v)",
					tt.amount, tt.members, tt.feePercent, pool, fee, net,
					tt.wantPool, tt.wantFee, tt.wantNet)
			}
		})
	}
}
