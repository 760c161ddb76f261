// Package history records search invocations for later suggestion and
// analytics. Writes are best-effort from the broker's point of view: a
// failure to persist a record must never fail the invocation that produced
// it.
package history

import (
	"context"
	"log/slog"
	"time"
)

// Record is one executed search, appended after a successful invocation.
type Record struct {
	// CallerID identifies the user the search ran for.
	CallerID string

	// Query is the query text sent to the remote service.
	Query string

	// ResultCount is the number of items the reply carried.
	ResultCount int

	// Duration is the wall-clock time of the successful attempt.
	Duration time.Duration

	// Timestamp is when the invocation completed.
	Timestamp time.Time
}

// Store is the persistence boundary for search history.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append persists one record.
	Append(ctx context.Context, rec Record) error
}

// appendTimeout bounds a best-effort append so an unhealthy store cannot
// accumulate goroutines.
const appendTimeout = 5 * time.Second

// Recorder wraps a [Store] with fire-and-forget semantics: Record returns
// immediately and any persistence failure is logged, never surfaced. This is
// a deliberate partial-failure policy — history is an auxiliary side effect
// and must not affect the primary result.
type Recorder struct {
	store Store
}

// NewRecorder creates a [Recorder]. store may be nil, in which case Record
// is a no-op.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record appends rec asynchronously, swallowing any failure.
func (r *Recorder) Record(rec Record) {
	if r == nil || r.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		defer cancel()
		if err := r.store.Append(ctx, rec); err != nil {
			slog.Warn("search history append failed",
				"caller_id", rec.CallerID, "error", err)
		}
	}()
}
