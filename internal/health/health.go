// Package health reports the state of the most recent batch and of the
// configured backing services over HTTP.
package health

import (
	"time"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// worse returns the more severe of two statuses.
func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// StatusOf maps a batch's overall status to a health status.
func StatusOf(s domain.OverallStatus) SystemStatus {
	switch s {
	case domain.StatusAllSucceeded:
		return StatusHealthy
	case domain.StatusPartialFailure:
		return StatusDegraded
	default:
		return StatusCritical
	}
}

// BatchHealth summarizes the last finished batch.
type BatchHealth struct {
	ID         string              `json:"id"`
	Policy     string              `json:"policy"`
	Status     string              `json:"status"`
	Summary    domain.BatchSummary `json:"summary"`
	FinishedAt time.Time           `json:"finished_at"`
}

// ComponentHealth is the result of pinging a backing service.
type ComponentHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus               `json:"system_status"`
	LastBatch    *BatchHealth               `json:"last_batch,omitempty"`
	Components   map[string]ComponentHealth `json:"components,omitempty"`
}
