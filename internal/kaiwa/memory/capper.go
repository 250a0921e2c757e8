package memory

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Capper enforces the per-agent byte/count budget. Items are scored by a
// recency/confidence blend and evicted lowest-first until the blob fits; the
// agent's preserved motifs and StyleVector are removed last, and the vector
// never — a single pathologically large survivor is hard-truncated instead.
type Capper struct {
	cfg    Config
	logger *slog.Logger
}

// NewCapper creates a Capper. If logger is nil, the default slog logger is
// used.
func NewCapper(cfg Config, logger *slog.Logger) *Capper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capper{cfg: cfg.withDefaults(), logger: logger}
}

// Score blends recency and confidence for one item:
//
//	score = w*recencyFactor(lastAccessed) + (1-w)*confidence
//
// where recencyFactor decays linearly to 0 over the configured horizon.
func (c *Capper) Score(item *MemoryItem, now time.Time) float64 {
	return c.cfg.RecencyWeight*c.recencyFactor(item.LastAccessed, now) +
		(1-c.cfg.RecencyWeight)*item.Confidence
}

func (c *Capper) recencyFactor(lastAccessed time.Time, now time.Time) float64 {
	age := now.Sub(lastAccessed)
	if age <= 0 {
		return 1
	}
	if age >= c.cfg.RecencyHorizon {
		return 0
	}
	return 1 - float64(age)/float64(c.cfg.RecencyHorizon)
}

// Cap produces the capped MemoryBlob for one agent and returns the surviving
// items (which the store swaps in as the new live collection). rawBytes is
// the total ingested content size, used for the compression ratio.
//
// An agent with zero memories yields an empty blob with the given style
// vector — a degenerate state, not an error.
func (c *Capper) Cap(agentID string, items []*MemoryItem, motifs []Motif, style StyleVector, rawBytes int64, now time.Time) (MemoryBlob, []*MemoryItem) {
	// Rank descending by score; ties break by item id so compaction never
	// reorders on wall-clock jitter. Preserved jokes and callbacks rank ahead
	// of everything else so ordinary eviction cannot reach them.
	ranked := make([]*MemoryItem, len(items))
	copy(ranked, items)
	sort.Slice(ranked, func(i, j int) bool {
		pi, pj := c.preserved(ranked[i]), c.preserved(ranked[j])
		if pi != pj {
			return pi
		}
		si, sj := c.Score(ranked[i], now), c.Score(ranked[j], now)
		if si != sj {
			return si > sj
		}
		return ranked[i].ID < ranked[j].ID
	})

	// Count cap first.
	if len(ranked) > c.cfg.MaxRecentMemories {
		ranked = ranked[:c.cfg.MaxRecentMemories]
	}

	// Byte budget: evict lowest-scoring items, then weakest motifs down to
	// the protected minimum, then hard-truncate the last survivor.
	for {
		blob := c.assemble(agentID, ranked, motifs, style, rawBytes)
		if blob.Metadata.TotalSizeBytes <= c.cfg.MaxSizePerAgent {
			return blob, ranked
		}

		switch {
		case len(ranked) > 1 && !c.preserved(ranked[len(ranked)-1]):
			ranked = ranked[:len(ranked)-1]

		case len(motifs) > c.cfg.ProtectedMotifMin:
			motifs = motifs[:len(motifs)-1]

		case len(ranked) > 1:
			// Only preserved jokes remain and the motif floor is reached;
			// evicting them is the last resort before truncation.
			ranked = ranked[:len(ranked)-1]

		case len(ranked) == 1:
			overshoot := blob.Metadata.TotalSizeBytes - c.cfg.MaxSizePerAgent
			c.truncateContent(ranked[0], overshoot)
			blob = c.assemble(agentID, ranked, motifs, style, rawBytes)
			return blob, ranked

		default:
			// No items at all and still over budget: the motif floor plus the
			// style vector is the protected minimum; report what we have.
			return blob, ranked
		}
	}
}

// preserved reports whether an item is shielded from ordinary eviction: a
// joke or callback told often enough stays verbatim until everything
// unprotected is gone.
func (c *Capper) preserved(item *MemoryItem) bool {
	if item.Kind != KindJoke && item.Kind != KindCallback {
		return false
	}
	return item.Meta.ReuseCount+1 >= c.cfg.JokePreservationThreshold
}

// assemble builds the blob for the candidate survivor set and measures its
// size. The budget is accounted at the content level (item contents, motif
// patterns, persona summary) — the fixed envelope around them (ids,
// timestamps, the style vector) is bounded per item and not evictable, so it
// stays outside the accounting.
func (c *Capper) assemble(agentID string, items []*MemoryItem, motifs []Motif, style StyleVector, rawBytes int64) MemoryBlob {
	memories := make([]MemoryItem, len(items))
	size := 0
	for i, it := range items {
		memories[i] = it.clone()
		size += len(it.Content)
	}
	for _, m := range motifs {
		size += len(m.Pattern)
	}
	summary := c.personaSummary(items)
	size += len(summary)

	ratio := 1.0
	if rawBytes > 0 {
		ratio = float64(size) / float64(rawBytes)
	}

	return MemoryBlob{
		AgentID:        agentID,
		Memories:       memories,
		Motifs:         motifs,
		PersonaSummary: summary,
		StyleVector:    style,
		Metadata: BlobMetadata{
			TotalSizeBytes:   size,
			MemoryCount:      len(memories),
			MotifCount:       len(motifs),
			CompressionRatio: ratio,
		},
	}
}

// truncateContent hard-cuts an item's content so the blob can satisfy the
// byte budget even with a pathologically large single item. Reported, not
// fatal.
func (c *Capper) truncateContent(item *MemoryItem, overshoot int) {
	keep := len(item.Content) - overshoot
	if keep < 0 {
		keep = 0
	}
	// Back off to a rune boundary so the cut never splits a codepoint.
	for keep > 0 && keep < len(item.Content) && item.Content[keep]&0xC0 == 0x80 {
		keep--
	}
	item.Content = item.Content[:keep]
	item.AddTag(TagTruncated)
	c.logger.Warn("capper: hard-truncated oversized memory item",
		"item_id", item.ID,
		"agent_id", item.AgentID,
		"kept_bytes", keep,
	)
}

// personaSummary derives a short text from the highest-confidence facts and
// the dominant emotion label of the surviving set. Deterministic, capped to
// the configured length.
func (c *Capper) personaSummary(items []*MemoryItem) string {
	var facts []*MemoryItem
	emotion := ""
	for _, it := range items {
		switch it.Kind {
		case KindFact:
			facts = append(facts, it)
		case KindEmotion:
			if emotion == "" {
				emotion = it.Content
			}
		}
	}
	if len(facts) == 0 && emotion == "" {
		return ""
	}

	sort.Slice(facts, func(i, j int) bool {
		if facts[i].Confidence != facts[j].Confidence {
			return facts[i].Confidence > facts[j].Confidence
		}
		return facts[i].ID < facts[j].ID
	})

	var parts []string
	for i := 0; i < len(facts) && i < 2; i++ {
		parts = append(parts, facts[i].Content)
	}

	summary := strings.Join(parts, " ")
	if emotion != "" {
		if summary != "" {
			summary += ", "
		}
		summary += fmt.Sprintf("feeling %s", emotion)
	}

	runes := []rune(summary)
	if len(runes) > c.cfg.PersonaSummaryLength {
		summary = string(runes[:c.cfg.PersonaSummaryLength])
	}
	return summary
}
