package contribution

import (
	"testing"
	"time"
)

func TestDueDate(t *testing.T) {
	start := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		freq  Frequency
		cycle int
		want  time.Time
	}{
		{"daily cycle 1", FrequencyDaily, 1, time.Date(2026, time.January, 16, 0, 0, 0, 0, time.UTC)},
		{"daily cycle 10", FrequencyDaily, 10, time.Date(2026, time.January, 25, 0, 0, 0, 0, time.UTC)},
		{"weekly cycle 1", FrequencyWeekly, 1, time.Date(2026, time.January, 22, 0, 0, 0, 0, time.UTC)},
		{"weekly cycle 4", FrequencyWeekly, 4, time.Date(2026, time.February, 12, 0, 0, 0, 0, time.UTC)},
		{"monthly cycle 1", FrequencyMonthly, 1, time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC)},
		{"monthly cycle 12", FrequencyMonthly, 12, time.Date(2027, time.January, 15, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DueDate(start, tt.freq, tt.cycle)
			if !got.Equal(tt.want) {
				t.Errorf("DueDate(%v, %d) = %v, want %v", tt.freq, tt.cycle, got, tt.want)
			}
		})
	}
}

func TestDueDateMonthlyEndOfMonth(t *testing.T) {
	// January 31 + 1 month normalizes forward, it must not land before the start
	start := time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)
	got := DueDate(start, FrequencyMonthly, 1)
	if !got.After(start) {
		t.Errorf("DueDate end-of-month = %v, want after %v", got, start)
	}
}

func TestPenalty(t *testing.T) {
	tests := []struct {
		amount  float64
		percent float64
		want    float64
	}{
		{1000, 5, 50},
		{333.33, 5, 16.67},
		{1000, 0, 0},
		{99.99, 10, 10},
	}

	for _, tt := range tests {
		if got := Penalty(tt.amount, tt.percent); got != tt.want {
			t.Errorf("Penalty(%v, %v) = %v, want %v", tt.amount, tt.percent, got, tt.want)
		}
	}
}

func TestServiceFee(t *testing.T) {
	if got := ServiceFee(5000, 2.5); got != 125 {
		t.Errorf("ServiceFee(5000, 2.5) = %v, want 125", got)
	}
	if got := ServiceFee(100, 0); got != 0 {
		t.Errorf("ServiceFee(100, 0) = %v, want 0", got)
	}
}

func TestFrequencyValid(t *testing.T) {
	for _, f := range []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyMonthly} {
		if !f.Valid() {
			t.Errorf("expected %q to be valid", f)
		}
	}
	if Frequency("yearly").Valid() {
		t.Error("expected \"yearly\" to be invalid")
	}
}
