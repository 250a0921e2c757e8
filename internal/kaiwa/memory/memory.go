// Package memory implements the bounded per-agent memory store at the heart
// of Kaiwa's dialogue simulation. Raw utterances are classified into memory
// kinds, compressed by kind-specific strategies, and capped to a hard
// per-agent byte/count budget by confidence/recency-weighted eviction.
// A compact SummaryPayload snapshot is exchanged with external durable
// storage for rehydration across process restarts.
package memory

import (
	"time"
)

// Kind identifies the memory category an utterance was classified into.
// The set is closed: compressors and the wire format only accept these values.
type Kind string

const (
	KindFact      Kind = "fact"
	KindJoke      Kind = "joke"
	KindCallback  Kind = "callback"
	KindEmotion   Kind = "emotion"
	KindSuspicion Kind = "suspicion"
	KindStyle     Kind = "style"
)

// Valid reports whether k is one of the closed set of memory kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFact, KindJoke, KindCallback, KindEmotion, KindSuspicion, KindStyle:
		return true
	}
	return false
}

// Tags applied to memory items by the compaction machinery.
const (
	// TagCompacted marks an item produced by merging raw items of its kind.
	TagCompacted = "compacted"
	// TagTruncated marks an item whose content was hard-cut to satisfy the
	// byte budget.
	TagTruncated = "truncated"
	// TagManual marks an item inserted via AddManualMemory.
	TagManual = "manual"
)

// SharedAgentID is the reserved scope for memories shared across all agents
// (manual memories inserted without an agent id).
const SharedAgentID = "__shared__"

// Utterance is a single raw conversational turn handed to the store by a
// dialogue producer. It is never retained past classification.
type Utterance struct {
	AgentID   string    `json:"agentId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	StyleHint string    `json:"styleHint,omitempty"`
}

// ItemMeta is the fixed, enumerable metadata carried by a MemoryItem.
// The shape is kind-specific: MergedCount for compacted facts, ReuseCount
// for verbatim-repeated jokes and callbacks, Axis for emotion items.
type ItemMeta struct {
	MergedCount int    `json:"mergedCount,omitempty"`
	ReuseCount  int    `json:"reuseCount,omitempty"`
	Axis        string `json:"axis,omitempty"`
}

// MemoryItem is the core retained unit. Items are created at ingest, mutated
// in place by compaction passes (aggregation merges raw items into one
// evolving item), and destroyed only by the capper when they fall outside
// the retained budget.
type MemoryItem struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agentId"`
	Kind         Kind      `json:"kind"`
	Content      string    `json:"content"`
	Confidence   float64   `json:"confidence"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
	// LastDecayed records when time-based confidence decay was last applied,
	// so repeated compaction passes at the same instant are no-ops.
	LastDecayed time.Time `json:"lastDecayed"`
	Tags        []string  `json:"tags,omitempty"`
	Meta        ItemMeta  `json:"meta,omitempty"`
}

// HasTag reports whether the item carries the given tag.
func (m *MemoryItem) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends tag unless already present.
func (m *MemoryItem) AddTag(tag string) {
	if !m.HasTag(tag) {
		m.Tags = append(m.Tags, tag)
	}
}

// clone returns a copy of the item. Tag slices are copied so callers cannot
// mutate store-owned state through query results.
func (m *MemoryItem) clone() MemoryItem {
	cp := *m
	if m.Tags != nil {
		cp.Tags = make([]string, len(m.Tags))
		copy(cp.Tags, m.Tags)
	}
	return cp
}

// Motif is a recurring phrase tracked across all agents. Motifs are global
// (not per-agent) but annotated with the agents that contributed them, and are
// exempt from size-based eviction within the registry's own cap.
type Motif struct {
	Pattern      string    `json:"pattern"`
	TimesUsed    int       `json:"timesUsed"`
	FirstSeen    time.Time `json:"firstSeen"`
	LastSeen     time.Time `json:"lastSeen"`
	Mood         string    `json:"mood,omitempty"`
	Strength     float64   `json:"strength"`
	Contributors []string  `json:"contributors,omitempty"`
}

// StyleVector is the per-agent stylistic profile, updated by exponential
// moving average. Exactly one exists per agent that has ingested at least one
// utterance; it is never evicted.
type StyleVector struct {
	Verbosity        float64 `json:"verbosity"`
	MetaphorAffinity float64 `json:"metaphorAffinity"`
	Formality        float64 `json:"formality"`
	Creativity       float64 `json:"creativity"`
	EmotionalTone    float64 `json:"emotionalTone"`
}

// DefaultStyleVector returns the neutral profile used before any utterance
// has been observed for an agent.
func DefaultStyleVector() StyleVector {
	return StyleVector{
		Verbosity:        0.5,
		MetaphorAffinity: 0.5,
		Formality:        0.5,
		Creativity:       0.5,
		EmotionalTone:    0.5,
	}
}

// blend moves the vector toward obs by rate per dimension, clamped to [0,1].
func (v *StyleVector) blend(obs StyleVector, rate float64) {
	v.Verbosity = clamp01(v.Verbosity*(1-rate) + obs.Verbosity*rate)
	v.MetaphorAffinity = clamp01(v.MetaphorAffinity*(1-rate) + obs.MetaphorAffinity*rate)
	v.Formality = clamp01(v.Formality*(1-rate) + obs.Formality*rate)
	v.Creativity = clamp01(v.Creativity*(1-rate) + obs.Creativity*rate)
	v.EmotionalTone = clamp01(v.EmotionalTone*(1-rate) + obs.EmotionalTone*rate)
}

// BlobMetadata summarises the size and shape of a capped MemoryBlob.
type BlobMetadata struct {
	TotalSizeBytes   int     `json:"totalSizeBytes"`
	MemoryCount      int     `json:"memoryCount"`
	MotifCount       int     `json:"motifCount"`
	CompressionRatio float64 `json:"compressionRatio"`
}

// MemoryBlob is the per-agent capped view produced by a compaction pass.
// After every pass TotalSizeBytes is at or under the configured budget.
type MemoryBlob struct {
	AgentID        string       `json:"agentId"`
	Memories       []MemoryItem `json:"memories"`
	Motifs         []Motif      `json:"motifs"`
	PersonaSummary string       `json:"personaSummary"`
	StyleVector    StyleVector  `json:"styleVector"`
	Metadata       BlobMetadata `json:"metadata"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
