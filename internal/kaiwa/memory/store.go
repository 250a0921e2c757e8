package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BlobChange notifies an observer that a compaction pass produced a fresh
// MemoryBlob for an agent. Callbacks run outside the store lock.
type BlobChange struct {
	AgentID string
	Blob    MemoryBlob
}

// agentState is the store-internal mutable record for one agent.
type agentState struct {
	items    []*MemoryItem
	emotions map[string]float64
	style    StyleVector
	// styleInit is set once the first utterance has been observed; until then
	// a rehydrated StyleVector may replace the neutral default wholesale.
	styleInit bool
	// rawBytes accumulates the total ingested text size, the denominator of
	// the compression ratio.
	rawBytes int64
}

// Store is the façade over classification, motif tracking, compression, and
// capping. One instance serves all agents; a single mutex guards the agent
// map and every agentState. Safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	cfg         Config
	classifier  UtteranceClassifier
	registry    *Registry
	capper      *Capper
	compressors map[Kind]Compressor
	agents      map[string]*agentState
	observers   []func(BlobChange)
	logger      *slog.Logger
	now         func() time.Time
}

// NewStore creates a Store. A nil classifier falls back to the default
// keyword classifier, a nil registry to a default-configured one, and a nil
// logger to slog.Default().
func NewStore(cfg Config, classifier UtteranceClassifier, registry *Registry, logger *slog.Logger) *Store {
	cfg = cfg.withDefaults()
	if classifier == nil {
		classifier = NewClassifier()
	}
	if registry == nil {
		registry = NewRegistry(DefaultMotifConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cfg:         cfg,
		classifier:  classifier,
		registry:    registry,
		capper:      NewCapper(cfg, logger),
		compressors: defaultCompressors(),
		agents:      make(map[string]*agentState),
		logger:      logger,
		now:         time.Now,
	}
}

// Registry exposes the motif registry the store was built with, for callers
// that query emergent motifs directly.
func (s *Store) Registry() *Registry { return s.registry }

// OnBlobChange registers a callback invoked after every compaction pass that
// produces a blob. Callbacks run outside the store lock and must not block.
func (s *Store) OnBlobChange(fn func(BlobChange)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Ingest classifies one utterance and records the resulting memory item.
// Returns the id of the item created (or, for a verbatim-repeated joke or
// callback, the id of the existing item whose reuse count was advanced).
// An unclassifiable utterance is dropped with a *ClassificationError; the
// store stays consistent and subsequent ingests proceed normally.
func (s *Store) Ingest(ctx context.Context, u Utterance) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("memory: ingest: %w", err)
	}
	if u.AgentID == "" {
		return "", &ClassificationError{AgentID: u.AgentID, Reason: "missing agent id"}
	}

	cls, err := s.classifier.Classify(u)
	if err != nil {
		s.logger.Warn("memory: dropped unclassifiable utterance",
			"agent_id", u.AgentID,
			"error", err,
		)
		return "", err
	}

	now := u.Timestamp
	if now.IsZero() {
		now = s.now()
	}

	// Motif tracking sees the raw text; the registry holds its own lock.
	s.registry.trackAt(u.Text, u.AgentID, cls.EmotionAxis, now)

	s.mu.Lock()
	st := s.agentLocked(u.AgentID)

	// Every utterance nudges the style profile, whatever its kind.
	st.style.blend(cls.Style, s.cfg.StyleUpdateRate)
	st.styleInit = true
	st.rawBytes += int64(len(u.Text))

	// Verbatim joke/callback repeats fold into the existing item instead of
	// duplicating it.
	if cls.Kind == KindJoke || cls.Kind == KindCallback {
		if existing := findVerbatim(st.items, cls.Content); existing != nil {
			existing.Meta.ReuseCount++
			if now.After(existing.LastAccessed) {
				existing.LastAccessed = now
			}
			if cls.Confidence > existing.Confidence {
				existing.Confidence = cls.Confidence
			}
			id := existing.ID
			s.mu.Unlock()
			return id, nil
		}
	}

	item := &MemoryItem{
		ID:           uuid.NewString(),
		AgentID:      u.AgentID,
		Kind:         cls.Kind,
		Content:      cls.Content,
		Confidence:   cls.Confidence,
		CreatedAt:    now,
		LastAccessed: now,
		LastDecayed:  now,
	}
	if cls.Kind == KindEmotion {
		item.Meta.Axis = cls.EmotionAxis
	}
	st.items = append(st.items, item)

	// Facts compact eagerly once enough have accumulated; the other kinds
	// wait for the periodic pass.
	if cls.Kind == KindFact && s.countRawFactsLocked(st) >= s.cfg.FactCompressionThreshold {
		s.compressKindLocked(st, KindFact, now)
	}

	id := item.ID
	s.mu.Unlock()
	return id, nil
}

// findVerbatim returns the existing joke/callback item whose canonical
// content matches, or nil.
func findVerbatim(items []*MemoryItem, content string) *MemoryItem {
	key := canonicalize(content)
	for _, it := range items {
		if (it.Kind == KindJoke || it.Kind == KindCallback) && canonicalize(it.Content) == key {
			return it
		}
	}
	return nil
}

// AddManualMemory inserts a memory directly, bypassing classification. It is
// created at full confidence, tagged manual, and exempt from confidence
// decay (though not from eviction). An empty agentID stores it in the shared
// scope visible to queries against SharedAgentID.
func (s *Store) AddManualMemory(agentID, content string) (string, error) {
	if content == "" {
		return "", &ClassificationError{AgentID: agentID, Reason: "empty content"}
	}
	if agentID == "" {
		agentID = SharedAgentID
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.agentLocked(agentID)
	item := &MemoryItem{
		ID:           uuid.NewString(),
		AgentID:      agentID,
		Kind:         KindFact,
		Content:      content,
		Confidence:   1.0,
		CreatedAt:    now,
		LastAccessed: now,
		LastDecayed:  now,
		Tags:         []string{TagManual},
	}
	st.items = append(st.items, item)
	st.rawBytes += int64(len(content))
	return item.ID, nil
}

// MemorySummary returns a short derived summary for the agent: the top
// retained facts plus the current mood label. Read-only. An unknown agent is
// an agent with no memories and summarizes to the empty string.
func (s *Store) MemorySummary(agentID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.agents[agentID]
	if st == nil {
		return ""
	}
	return s.capper.personaSummary(st.items)
}

// RecentMemories returns up to limit items most recently accessed, newest
// first. The returned items are copies; reading them does not refresh their
// access times.
func (s *Store) RecentMemories(agentID string, limit int) []MemoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.agents[agentID]
	if st == nil {
		return nil
	}

	sorted := make([]*MemoryItem, len(st.items))
	copy(sorted, st.items)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].LastAccessed.Equal(sorted[j].LastAccessed) {
			return sorted[i].LastAccessed.After(sorted[j].LastAccessed)
		}
		return sorted[i].ID < sorted[j].ID
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]MemoryItem, len(sorted))
	for i, it := range sorted {
		out[i] = it.clone()
	}
	return out
}

// MemoriesByKind returns copies of the agent's items of one kind, in
// insertion order. Read-only.
func (s *Store) MemoriesByKind(agentID string, kind Kind) []MemoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.agents[agentID]
	if st == nil {
		return nil
	}
	var out []MemoryItem
	for _, it := range st.items {
		if it.Kind == kind {
			out = append(out, it.clone())
		}
	}
	return out
}

// AgentIDs returns the ids of all agents with state, sorted.
func (s *Store) AgentIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StyleProfile returns the agent's current StyleVector. Agents without state
// report the neutral default.
func (s *Store) StyleProfile(agentID string) StyleVector {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.agents[agentID]; st != nil {
		return st.style
	}
	return DefaultStyleVector()
}

// Compact runs a full compaction pass for one agent and returns the capped
// blob. Running it twice at the same instant yields byte-identical blobs. An
// unknown agent compacts to the empty blob with the default style vector; no
// state is created and no observers fire.
func (s *Store) Compact(agentID string) MemoryBlob {
	now := s.now()

	s.mu.Lock()
	st := s.agents[agentID]
	if st == nil {
		s.mu.Unlock()
		return s.emptyBlob(agentID, now)
	}
	blob := s.compactLocked(st, agentID, now)
	observers := s.observers
	s.mu.Unlock()

	for _, fn := range observers {
		fn(BlobChange{AgentID: agentID, Blob: blob})
	}
	return blob
}

// emptyBlob is the degenerate result for an agent without state. Motifs the
// registry already knows for the agent (seeded catchphrases) still appear.
func (s *Store) emptyBlob(agentID string, now time.Time) MemoryBlob {
	motifs := s.registry.ForAgent(agentID, s.cfg.MotifPreservationThreshold)
	blob, _ := s.capper.Cap(agentID, nil, motifs, DefaultStyleVector(), 0, now)
	return blob
}

// CompactAll runs a compaction pass for every agent and returns the blobs,
// ordered by agent id.
func (s *Store) CompactAll() []MemoryBlob {
	now := s.now()

	s.mu.Lock()
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	blobs := make([]MemoryBlob, 0, len(ids))
	for _, id := range ids {
		blobs = append(blobs, s.compactLocked(s.agents[id], id, now))
	}
	observers := s.observers
	s.mu.Unlock()

	for _, blob := range blobs {
		for _, fn := range observers {
			fn(BlobChange{AgentID: blob.AgentID, Blob: blob})
		}
	}
	return blobs
}

// GeneratePayload compacts the agent's state and projects it into the wire
// format exchanged with durable storage. An unknown agent yields an empty
// payload around the default style vector.
func (s *Store) GeneratePayload(agentID string) *SummaryPayload {
	now := s.now()

	s.mu.Lock()
	st := s.agents[agentID]
	if st == nil {
		s.mu.Unlock()
		blob := s.emptyBlob(agentID, now)
		return s.projectPayload(agentID, blob, DefaultStyleVector(), "", EmotionLabel(nil), now)
	}
	blob := s.compactLocked(st, agentID, now)
	style := st.style
	facts := summaryFactsLocked(st)
	emotions := EmotionLabel(st.emotions)
	observers := s.observers
	s.mu.Unlock()

	for _, fn := range observers {
		fn(BlobChange{AgentID: agentID, Blob: blob})
	}
	return s.projectPayload(agentID, blob, style, facts, emotions, now)
}

// projectPayload renders a compacted blob into the wire shape.
func (s *Store) projectPayload(agentID string, blob MemoryBlob, style StyleVector, facts, emotions string, now time.Time) *SummaryPayload {
	hints := make([]string, 0, len(blob.Motifs))
	for _, m := range blob.Motifs {
		hints = append(hints, m.Pattern)
	}

	top := make([]TopMemory, 0, s.cfg.TopMemoryCount)
	for _, it := range blob.Memories {
		if len(top) >= s.cfg.TopMemoryCount {
			break
		}
		top = append(top, TopMemory{
			Kind:       it.Kind,
			Content:    truncateRunes(it.Content, s.cfg.PreviewSize),
			Confidence: it.Confidence,
		})
	}

	return &SummaryPayload{
		AgentID:         agentID,
		SummaryFacts:    facts,
		SummaryEmotions: emotions,
		MotifHints:      hints,
		TopMemories:     top,
		PersonaSummary:  blob.PersonaSummary,
		StyleVector:     style,
		Timestamp:       now.UnixMilli(),
	}
}

// Rehydrate restores agent state from a previously generated payload. Items
// re-imported from the same payload collide on their deterministic ids and
// merge rather than duplicate; an incoming item never lowers the confidence
// of the item it collides with. A malformed payload is rejected wholesale —
// no partial state is applied.
func (s *Store) Rehydrate(p *SummaryPayload) error {
	if err := validatePayload(p); err != nil {
		return err
	}

	restored := time.UnixMilli(p.Timestamp)

	s.mu.Lock()
	st := s.agentLocked(p.AgentID)

	for _, tm := range p.TopMemories {
		s.mergeRehydratedLocked(st, p.AgentID, tm.Kind, tm.Content, tm.Confidence, restored)
	}
	if p.SummaryFacts != "" && !hasCompactedFactLocked(st) {
		s.mergeRehydratedLocked(st, p.AgentID, KindFact, p.SummaryFacts, 0.5, restored)
		if it := st.items[len(st.items)-1]; it.Content == p.SummaryFacts {
			it.Meta.MergedCount = len(splitFacts(p.SummaryFacts))
		}
	}
	if !st.styleInit {
		st.style = p.StyleVector
		st.styleInit = true
	}
	s.mu.Unlock()

	// Motif hints fold into the registry under its own lock. Merged motifs
	// arrive at the preservation threshold so they survive the next pass.
	for _, pattern := range p.MotifHints {
		s.registry.Merge(pattern, p.AgentID, "", 0.5, s.cfg.MotifPreservationThreshold)
	}
	return nil
}

// mergeRehydratedLocked inserts one restored item under its deterministic
// id, or merges it into the colliding item. Must be called with mu held.
func (s *Store) mergeRehydratedLocked(st *agentState, agentID string, kind Kind, content string, confidence float64, restored time.Time) {
	id := rehydratedID(agentID, kind, content)
	for _, it := range st.items {
		if it.ID != id {
			continue
		}
		if confidence > it.Confidence {
			it.Confidence = confidence
		}
		if restored.After(it.LastAccessed) {
			it.LastAccessed = restored
		}
		return
	}
	st.items = append(st.items, &MemoryItem{
		ID:           id,
		AgentID:      agentID,
		Kind:         kind,
		Content:      content,
		Confidence:   confidence,
		CreatedAt:    restored,
		LastAccessed: restored,
		LastDecayed:  restored,
		Tags:         []string{TagCompacted},
	})
}

func hasCompactedFactLocked(st *agentState) bool {
	for _, it := range st.items {
		if it.Kind == KindFact && it.HasTag(TagCompacted) {
			return true
		}
	}
	return false
}

// agentLocked returns the state for agentID, creating it on first use. Must
// be called with mu held.
func (s *Store) agentLocked(agentID string) *agentState {
	st := s.agents[agentID]
	if st == nil {
		st = &agentState{
			emotions: make(map[string]float64),
			style:    DefaultStyleVector(),
		}
		s.agents[agentID] = st
	}
	return st
}

// compactLocked runs every kind compressor over the agent's items and caps
// the result. Must be called with mu held.
func (s *Store) compactLocked(st *agentState, agentID string, now time.Time) MemoryBlob {
	for _, kind := range compressionOrder {
		s.compressKindLocked(st, kind, now)
	}

	motifs := s.registry.ForAgent(agentID, s.cfg.MotifPreservationThreshold)
	blob, survivors := s.capper.Cap(agentID, st.items, motifs, st.style, st.rawBytes, now)
	st.items = survivors
	return blob
}

// compressionOrder fixes the per-kind pass order so compaction output is
// deterministic.
var compressionOrder = [...]Kind{
	KindFact, KindJoke, KindCallback, KindEmotion, KindStyle, KindSuspicion,
}

// compressKindLocked runs one kind's compressor in place. Must be called
// with mu held.
func (s *Store) compressKindLocked(st *agentState, kind Kind, now time.Time) {
	var group, rest []*MemoryItem
	for _, it := range st.items {
		if it.Kind == kind {
			group = append(group, it)
		} else {
			rest = append(rest, it)
		}
	}
	if len(group) == 0 {
		return
	}

	cc := &CompressionContext{
		Config:   s.cfg,
		Now:      now,
		Emotions: st.emotions,
		Style:    &st.style,
	}
	st.items = append(rest, s.compressors[kind].Compress(group, cc)...)
}

// countRawFactsLocked counts unmerged, non-manual fact items. Must be called
// with mu held.
func (s *Store) countRawFactsLocked(st *agentState) int {
	n := 0
	for _, it := range st.items {
		if it.Kind == KindFact && !it.HasTag(TagCompacted) && !it.HasTag(TagManual) {
			n++
		}
	}
	return n
}

// summaryFactsLocked renders the agent's fact summary: the rolling compacted
// item if present, else the raw facts joined. Must be called with mu held.
func summaryFactsLocked(st *agentState) string {
	var raw []string
	for _, it := range st.items {
		if it.Kind != KindFact {
			continue
		}
		if it.HasTag(TagCompacted) {
			return it.Content
		}
		raw = append(raw, it.Content)
	}
	return joinFacts(raw)
}

func joinFacts(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "; "
		}
		out += p
	}
	return out
}

// truncateRunes caps s to n runes without splitting a codepoint.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
