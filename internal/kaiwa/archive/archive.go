// Package archive persists per-agent memory snapshots across process
// restarts. The memory store stays the in-process source of truth; the
// archive only sees the compact SummaryPayload wire form.
package archive

import (
	"context"

	"github.com/kaiwa-dev/kaiwa/internal/kaiwa/memory"
)

// Archiver stores and retrieves SummaryPayload snapshots, one per agent.
// Save overwrites the agent's previous snapshot.
type Archiver interface {
	Save(ctx context.Context, p *memory.SummaryPayload) error
	Load(ctx context.Context, agentID string) (*memory.SummaryPayload, error)
	LoadAll(ctx context.Context) ([]*memory.SummaryPayload, error)
	Close() error
}

// Noop is an Archiver that drops every snapshot. Used when no database path
// is configured: the simulation runs purely in memory.
type Noop struct{}

func (Noop) Save(ctx context.Context, p *memory.SummaryPayload) error { return nil }

func (Noop) Load(ctx context.Context, agentID string) (*memory.SummaryPayload, error) {
	return nil, nil
}

func (Noop) LoadAll(ctx context.Context) ([]*memory.SummaryPayload, error) { return nil, nil }

func (Noop) Close() error { return nil }

var _ Archiver = Noop{}
