package leave

import "github.com/shopspring/decimal"

// =============================================================================
// STATUS STATE MACHINE
// =============================================================================
//
//   pending ──▶ approved      remaining -= days
//   pending ──▶ rejected      (none)
//   approved ─▶ rejected      remaining += days
//   rejected ─▶ approved      remaining -= days
//   X ───────▶ X              (none, idempotent)
//
// Nothing transitions back to pending.

// Transition returns the change to the owner's remaining balance when a
// request of the given size moves from -> to.
func Transition(from, to Status, days decimal.Decimal) (decimal.Decimal, error) {
	if !to.Valid() {
		return decimal.Zero, invalid("status", "unknown status %q", to)
	}
	if from == to {
		return decimal.Zero, nil
	}

	switch {
	case to == StatusApproved:
		return days.Neg(), nil
	case from == StatusApproved && to == StatusRejected:
		return days, nil
	case from == StatusPending && to == StatusRejected:
		return decimal.Zero, nil
	}
	return decimal.Zero, invalid("status", "cannot move a request from %s to %s", from, to)
}

// ReleaseOnDelete is the balance restored when a request in status s is
// deleted: an approved request gives its days back, anything else is free.
func ReleaseOnDelete(s Status, days decimal.Decimal) decimal.Decimal {
	if s == StatusApproved {
		return days
	}
	return decimal.Zero
}
