package dialogue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kaiwa-dev/kaiwa/common/trace"
	"github.com/kaiwa-dev/kaiwa/internal/kaiwa/memory"
)

// Stats summarises one Recorder run.
type Stats struct {
	Ingested int
	Dropped  int
}

// Recorder drains a TurnProducer into the memory store. Each turn gets its
// own trace id; turns the classifier rejects are counted and skipped rather
// than aborting the run.
type Recorder struct {
	store  *memory.Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder. A nil logger falls back to slog.Default().
func NewRecorder(store *memory.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Record consumes producer until io.EOF or ctx cancellation and returns the
// run stats. Any error other than a per-turn classification failure stops
// the run.
func (r *Recorder) Record(ctx context.Context, producer TurnProducer) (Stats, error) {
	var stats Stats
	for {
		u, err := producer.Next(ctx)
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("dialogue: next turn: %w", err)
		}

		turnCtx := trace.WithTraceID(ctx, trace.GenerateID())
		id, err := r.store.Ingest(turnCtx, u)

		var cerr *memory.ClassificationError
		switch {
		case errors.As(err, &cerr):
			stats.Dropped++
			r.logger.Warn("dialogue: dropped turn",
				"trace_id", trace.FromContext(turnCtx),
				"agent_id", u.AgentID,
				"reason", cerr.Reason,
			)
		case err != nil:
			return stats, fmt.Errorf("dialogue: ingest turn: %w", err)
		default:
			stats.Ingested++
			r.logger.Debug("dialogue: recorded turn",
				"trace_id", trace.FromContext(turnCtx),
				"agent_id", u.AgentID,
				"memory_id", id,
			)
		}
	}
}
