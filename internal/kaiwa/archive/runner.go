package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kaiwa-dev/kaiwa/common/retry"
	"github.com/kaiwa-dev/kaiwa/internal/kaiwa/memory"
)

// Runner connects a memory store to an Archiver: it rehydrates every stored
// snapshot at startup and persists fresh payloads on an interval and at
// shutdown. Transient save failures are retried with backoff; an agent whose
// save ultimately fails keeps its previous snapshot.
type Runner struct {
	store    *memory.Store
	archiver Archiver
	interval time.Duration
	retryCfg retry.Config
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRunner creates a Runner. Interval defaults to 1 minute.
func NewRunner(store *memory.Store, archiver Archiver, interval time.Duration, logger *slog.Logger) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:    store,
		archiver: archiver,
		interval: interval,
		retryCfg: retry.DefaultConfig,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// RehydrateAll loads every stored snapshot into the store. Snapshots that
// fail rehydration are skipped; the count of restored agents is returned.
func (r *Runner) RehydrateAll(ctx context.Context) (int, error) {
	payloads, err := r.archiver.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("archive: rehydrate: %w", err)
	}

	restored := 0
	for _, p := range payloads {
		if err := r.store.Rehydrate(p); err != nil {
			r.logger.Warn("archive: skip snapshot on rehydrate", "agent_id", p.AgentID, "error", err)
			continue
		}
		restored++
	}
	if restored > 0 {
		r.logger.Info("archive: rehydrated agents", "count", restored)
	}
	return restored, nil
}

// Start launches the periodic persist loop.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.PersistAll(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight persist to finish. It does
// not run a final persist; callers do that explicitly during shutdown so the
// outcome is visible to them.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// PersistAll snapshots every agent. Per-agent failures are logged and do not
// block the remaining agents; the first error is returned.
func (r *Runner) PersistAll(ctx context.Context) error {
	var firstErr error
	for _, agentID := range r.store.AgentIDs() {
		if err := r.persistAgent(ctx, agentID); err != nil {
			r.logger.Error("archive: persist failed", "agent_id", agentID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Runner) persistAgent(ctx context.Context, agentID string) error {
	p := r.store.GeneratePayload(agentID)
	return retry.Do(ctx, r.retryCfg, func() error {
		return r.archiver.Save(ctx, p)
	})
}
