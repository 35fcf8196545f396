package gateway

// Status is the shared payment status taxonomy. Every provider result code
// maps onto exactly one of these values; codes nobody recognizes map to
// StatusPending so a later poll can still resolve them.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
	StatusReversed  Status = "reversed"
)

// IsTerminal reports whether a payment in this status can still change
// through confirmation. Reversed is reachable only from completed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout, StatusReversed:
		return true
	}
	return false
}

// Health is the result of an adapter health probe.
type Health string

const (
	HealthHealthy      Health = "healthy"
	HealthDegraded     Health = "degraded"
	HealthUnconfigured Health = "unconfigured"
)
