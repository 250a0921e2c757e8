package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RunnerConfig holds the knobs for the periodic compaction runner. Zero
// values fall back to the documented defaults.
type RunnerConfig struct {
	// Interval between compaction passes. Default: the store's
	// CompressionInterval.
	Interval time.Duration

	// MotifDecayRate is the per-pass multiplicative strength decay applied to
	// the registry. Default: 0.01.
	MotifDecayRate float64

	// MotifMaxAge is the age horizon past which decayed motifs are pruned.
	// Default: 168 h (one week).
	MotifMaxAge time.Duration
}

// CompactionRunner drives periodic compaction over all agents and keeps the
// motif registry decayed and pruned. Start it once; Stop is idempotent.
type CompactionRunner struct {
	store    *Store
	cfg      RunnerConfig
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCompactionRunner creates a runner for the given store.
func NewCompactionRunner(store *Store, cfg RunnerConfig, logger *slog.Logger) *CompactionRunner {
	if cfg.Interval <= 0 {
		cfg.Interval = store.cfg.CompressionInterval
	}
	if cfg.MotifDecayRate <= 0 {
		cfg.MotifDecayRate = 0.01
	}
	if cfg.MotifMaxAge <= 0 {
		cfg.MotifMaxAge = 168 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CompactionRunner{
		store:  store,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start launches the periodic loop. It returns immediately; the loop runs
// until Stop is called or ctx is cancelled.
func (r *CompactionRunner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.pass()
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (r *CompactionRunner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// pass runs one compaction sweep plus registry maintenance.
func (r *CompactionRunner) pass() {
	started := time.Now()
	blobs := r.store.CompactAll()

	r.store.registry.Decay(r.cfg.MotifDecayRate)
	pruned := r.store.registry.Prune(r.cfg.MotifMaxAge)

	total := 0
	for _, b := range blobs {
		total += b.Metadata.TotalSizeBytes
	}
	r.logger.Debug("memory: compaction pass complete",
		"agents", len(blobs),
		"total_bytes", total,
		"motifs_pruned", pruned,
		"elapsed", time.Since(started),
	)
}
