package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

// Notifier delivers outcome callbacks to an external system.
type Notifier interface {
	// Notify sends the callback for a single outcome
	Notify(ctx context.Context, batchID string, o domain.Outcome) error

	// Close releases any held connections
	Close() error
}

// Callback is the payload sent for every outcome.
type Callback struct {
	BatchID  string `json:"batch_id"`
	Index    int    `json:"index"`
	HandleID string `json:"handle_id"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// NewCallback builds the payload for an outcome.
func NewCallback(batchID string, o domain.Outcome) Callback {
	cb := Callback{
		BatchID:  batchID,
		Index:    o.Index,
		HandleID: o.HandleID,
		Status:   o.Result(),
		Attempts: o.Attempts,
	}
	if o.Aborted() {
		cb.Status = "aborted"
	}
	if o.Err != nil {
		cb.Error = o.Err.Error()
	}
	return cb
}

// Observer adapts a Notifier to the orchestrator's observer hook.
// Delivery errors are logged and never reach the batch.
func Observer(n Notifier, timeout time.Duration, log *slog.Logger) func(string, domain.Outcome) {
	if log == nil {
		log = slog.Default()
	}
	return func(batchID string, o domain.Outcome) {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := n.Notify(ctx, batchID, o); err != nil {
			log.Warn("Outcome callback failed",
				"batch", batchID,
				"handle", o.HandleID,
				"index", o.Index,
				"error", err,
			)
		}
	}
}
