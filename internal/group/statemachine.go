package group

import "math"

// CanTransition reports whether a group may move from one status to another.
// Transitions only run forward: completed and cancelled are terminal.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusForming:
		return to == StatusActive || to == StatusCancelled
	case StatusActive:
		return to == StatusCompleted || to == StatusCancelled
	}
	return false
}

// RecipientEligible reports whether a member may receive a payout. Defaulted
// and removed members keep their rotation position but their cycle is skipped.
func RecipientEligible(status MemberStatus) bool {
	return status == MemberStatusPending || status == MemberStatusActive
}

// NextCycle selects the cycle that follows current in the rotation, given
// the member status at each rotation position. Cycles whose position is
// unfilled or whose recipient is ineligible are skipped permanently. The
// second return is false when the rotation is exhausted: the returned cycle
// is then past totalCycles and the group completes.
func NextCycle(current, totalCycles int, statuses map[int]MemberStatus) (int, bool) {
	for cycle := current + 1; cycle <= totalCycles; cycle++ {
		status, filled := statuses[cycle]
		if !filled {
			continue
		}
		if RecipientEligible(status) {
			return cycle, true
		}
	}
	return totalCycles + 1, false
}

// CountEligible counts the members still collectible in a cycle: the pool a
// cycle can raise is their contributions, not the original capacity.
func CountEligible(statuses map[int]MemberStatus) int {
	n := 0
	for _, status := range statuses {
		if RecipientEligible(status) {
			n++
		}
	}
	return n
}

// PayoutAmount computes the pooled payout for one cycle: every member's
// contribution, minus the platform's service fee on the pool.
func PayoutAmount(contributionAmount float64, members int, serviceFeePercent float64) (pool, fee, net float64) {
	pool = round2(contributionAmount * float64(members))
	fee = round2(pool * serviceFeePercent / 100)
	net = round2(pool - fee)
	return pool, fee, net
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
