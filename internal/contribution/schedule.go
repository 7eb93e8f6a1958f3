package contribution

import (
	"math"
	"time"
)

// DueDate returns when the contribution for the given cycle falls due.
// Cycle numbering starts at 1, so cycle 1 is due one frequency period after
// the group's start date.
func DueDate(start time.Time, freq Frequency, cycle int) time.Time {
	switch freq {
	case FrequencyDaily:
		return start.AddDate(0, 0, cycle)
	case FrequencyWeekly:
		return start.AddDate(0, 0, 7*cycle)
	case FrequencyMonthly:
		return start.AddDate(0, cycle, 0)
	}
	return start
}

// Penalty computes the late fee for an unpaid contribution
func Penalty(amount, percent float64) float64 {
	return round2(amount * percent / 100)
}

// ServiceFee computes the platform fee withheld from a contribution
func ServiceFee(amount, percent float64) float64 {
	return round2(amount * percent / 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
