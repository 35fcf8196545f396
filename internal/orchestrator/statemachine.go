package orchestrator

import "abaisprings/internal/gateway"

// CanTransition reports whether a payment intent may move between two
// statuses. Pending fans out to the four confirmation outcomes; completed
// may be reversed by a refund; everything else is frozen. Attempting a
// forbidden transition is a programming-level invariant violation, logged
// separately from ordinary payment failures.
func CanTransition(from, to gateway.Status) bool {
	switch from {
	case gateway.StatusPending:
		switch to {
		case gateway.StatusCompleted, gateway.StatusFailed, gateway.StatusCancelled, gateway.StatusTimeout:
			return true
		}
	case gateway.StatusCompleted:
		return to == gateway.StatusReversed
	}
	return false
}
