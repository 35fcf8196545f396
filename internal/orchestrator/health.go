package orchestrator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"abaisprings/internal/gateway"
)

// HealthRegistry holds the latest health probe per gateway. The refresh is
// best-effort: selection reads whatever snapshot exists and never waits on
// a probe.
type HealthRegistry struct {
	adapters map[string]gateway.Adapter
	logger   *zap.Logger

	mu       sync.RWMutex
	snapshot map[string]gateway.Health
}

func NewHealthRegistry(adapters map[string]gateway.Adapter, logger *zap.Logger) *HealthRegistry {
	return &HealthRegistry{
		adapters: adapters,
		logger:   logger,
		snapshot: make(map[string]gateway.Health),
	}
}

// Refresh probes every adapter and swaps in a fresh snapshot.
func (r *HealthRegistry) Refresh(ctx context.Context) {
	fresh := make(map[string]gateway.Health, len(r.adapters))
	for name, adapter := range r.adapters {
		health := adapter.HealthCheck(ctx)
		fresh[name] = health
		if health != gateway.HealthHealthy {
			r.logger.Warn("gateway health probe",
				zap.String("gateway", name),
				zap.String("health", string(health)))
		}
	}

	r.mu.Lock()
	r.snapshot = fresh
	r.mu.Unlock()
}

// Snapshot returns a copy of the latest probe results.
func (r *HealthRegistry) Snapshot() map[string]gateway.Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]gateway.Health, len(r.snapshot))
	for k, v := range r.snapshot {
		out[k] = v
	}
	return out
}
