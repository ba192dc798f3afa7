package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

// Pinger is a backing service that can report its own health.
type Pinger interface {
	Health(ctx context.Context) error
}

// Monitor aggregates the last batch result and component health.
type Monitor struct {
	mu         sync.RWMutex
	last       *domain.BatchResult
	components map[string]Pinger
	timeout    time.Duration
}

// NewMonitor creates a new health monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		components: make(map[string]Pinger),
		timeout:    2 * time.Second,
	}
}

// AddComponent registers a backing service checked on every report.
func (m *Monitor) AddComponent(name string, p Pinger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = p
}

// Record stores a finished batch.
func (m *Monitor) Record(r *domain.BatchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = r
}

// Latest returns the most recent batch, or nil before the first one finishes.
func (m *Monitor) Latest() *domain.BatchResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// CheckHealth builds a report. The worst status wins.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.RLock()
	last := m.last
	components := make(map[string]Pinger, len(m.components))
	for k, v := range m.components {
		components[k] = v
	}
	m.mu.RUnlock()

	report := HealthReport{SystemStatus: StatusHealthy}

	if last != nil {
		report.LastBatch = &BatchHealth{
			ID:         last.ID,
			Policy:     last.Policy.String(),
			Status:     string(last.Status),
			Summary:    last.Summary(),
			FinishedAt: last.FinishedAt,
		}
		report.SystemStatus = StatusOf(last.Status)
	}

	if len(components) > 0 {
		report.Components = make(map[string]ComponentHealth, len(components))
		for name, p := range components {
			pingCtx, cancel := context.WithTimeout(ctx, m.timeout)
			err := p.Health(pingCtx)
			cancel()

			ch := ComponentHealth{Status: StatusHealthy}
			if err != nil {
				// A broken store does not stop batches, so it only degrades.
				ch = ComponentHealth{Status: StatusDegraded, Error: err.Error()}
			}
			report.Components[name] = ch
			report.SystemStatus = worse(report.SystemStatus, ch.Status)
		}
	}

	return report
}
