package memory

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// MotifConfig holds configuration for the Registry. Zero values fall back to
// the documented defaults.
type MotifConfig struct {
	// MinPatternWords is the minimum word count for a phrase to become a
	// motif candidate. Default: 4.
	MinPatternWords int

	// PromotionSightings is the number of sightings at which a candidate is
	// promoted to a tracked motif. Default: 2.
	PromotionSightings int

	// StrengthStep is added on each repetition, saturating at 1.0.
	// Default: 0.1.
	StrengthStep float64

	// InitialStrength is the strength of a freshly promoted motif.
	// Default: 0.3.
	InitialStrength float64

	// StrengthFloor is the prune floor: motifs decayed under it AND older
	// than the age horizon are dropped. Default: 0.1.
	StrengthFloor float64

	// MaxMotifs is the registry's own cap; the weakest motifs beyond it are
	// dropped on registration. Default: 256.
	MaxMotifs int
}

// DefaultMotifConfig returns a MotifConfig with the documented defaults.
func DefaultMotifConfig() MotifConfig {
	return MotifConfig{
		MinPatternWords:    4,
		PromotionSightings: 2,
		StrengthStep:       0.1,
		InitialStrength:    0.3,
		StrengthFloor:      0.1,
		MaxMotifs:          256,
	}
}

// motifState is the registry-internal mutable record for one motif.
type motifState struct {
	pattern      string // original casing of the first sighting
	key          string // canonical form, the map key
	timesUsed    int
	firstSeen    time.Time
	lastSeen     time.Time
	mood         string
	strength     float64
	contributors map[string]struct{}
}

// candidate tracks a canonical phrase that has not yet reached the promotion
// threshold.
type candidate struct {
	pattern      string
	count        int
	mood         string
	firstSeen    time.Time
	contributors map[string]struct{}
}

// Registry detects and tracks recurring phrases across all agents. It is the
// only structure exempt from size-based eviction (within its own cap) and is
// explicitly constructed and injected into the Store — there is no process-
// wide instance. Safe for concurrent use.
type Registry struct {
	mu         sync.Mutex
	cfg        MotifConfig
	motifs     map[string]*motifState
	candidates map[string]*candidate
	now        func() time.Time
}

// NewRegistry creates a Registry with the given configuration.
func NewRegistry(cfg MotifConfig) *Registry {
	d := DefaultMotifConfig()
	if cfg.MinPatternWords <= 0 {
		cfg.MinPatternWords = d.MinPatternWords
	}
	if cfg.PromotionSightings <= 0 {
		cfg.PromotionSightings = d.PromotionSightings
	}
	if cfg.StrengthStep <= 0 {
		cfg.StrengthStep = d.StrengthStep
	}
	if cfg.InitialStrength <= 0 {
		cfg.InitialStrength = d.InitialStrength
	}
	if cfg.StrengthFloor <= 0 {
		cfg.StrengthFloor = d.StrengthFloor
	}
	if cfg.MaxMotifs <= 0 {
		cfg.MaxMotifs = d.MaxMotifs
	}
	return &Registry{
		cfg:        cfg,
		motifs:     make(map[string]*motifState),
		candidates: make(map[string]*candidate),
		now:        time.Now,
	}
}

// Track is the store-facing entry point for one utterance: it detects known
// motifs in the text, strengthens them, and — when the text itself is a new
// recurring phrase — advances its candidate count, promoting it at the
// configured sighting threshold. Returns the motifs matched in the text.
func (r *Registry) Track(text, agentID, mood string) []Motif {
	return r.trackAt(text, agentID, mood, r.now())
}

// trackAt is the time-injectable core of Track (for testing).
func (r *Registry) trackAt(text, agentID, mood string, now time.Time) []Motif {
	key := canonicalize(text)
	if key == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	matches := r.detectLocked(key, agentID, now)

	// The full text only becomes a candidate when no known motif already
	// covers it exactly — otherwise detect has counted the sighting.
	if _, known := r.motifs[key]; !known && wordCount(key) >= r.cfg.MinPatternWords {
		r.observeLocked(text, key, agentID, mood, now)
	}

	return matches
}

// Detect scans text against known canonical patterns and returns the matches
// with their use counts incremented. Overlapping candidates resolve to the
// longer (more specific) pattern; equal length breaks by earliest FirstSeen.
func (r *Registry) Detect(text, agentID string) []Motif {
	key := canonicalize(text)
	if key == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detectLocked(key, agentID, r.now())
}

// detectLocked matches known motifs against the canonical text. Must be
// called with mu held.
func (r *Registry) detectLocked(key, agentID string, now time.Time) []Motif {
	type span struct {
		m          *motifState
		start, end int
	}

	var spans []span
	for _, m := range r.motifs {
		idx := strings.Index(key, m.key)
		if idx < 0 {
			continue
		}
		spans = append(spans, span{m: m, start: idx, end: idx + len(m.key)})
	}
	if len(spans) == 0 {
		return nil
	}

	// Longer pattern wins; equal length breaks by earliest firstSeen.
	sort.Slice(spans, func(i, j int) bool {
		li, lj := len(spans[i].m.key), len(spans[j].m.key)
		if li != lj {
			return li > lj
		}
		return spans[i].m.firstSeen.Before(spans[j].m.firstSeen)
	})

	var accepted []span
	for _, s := range spans {
		overlaps := false
		for _, a := range accepted {
			if s.start < a.end && a.start < s.end {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, s)
		}
	}

	out := make([]Motif, 0, len(accepted))
	for _, s := range accepted {
		r.strengthenLocked(s.m, agentID, now)
		out = append(out, s.m.snapshot())
	}
	return out
}

// observeLocked advances the candidate count for a canonical phrase and
// promotes it when the sighting threshold is reached. Must be called with mu
// held.
func (r *Registry) observeLocked(pattern, key, agentID, mood string, now time.Time) {
	c := r.candidates[key]
	if c == nil {
		c = &candidate{
			pattern:      strings.TrimSpace(pattern),
			mood:         mood,
			firstSeen:    now,
			contributors: map[string]struct{}{},
		}
		r.candidates[key] = c
	}
	c.count++
	c.contributors[agentID] = struct{}{}

	if c.count < r.cfg.PromotionSightings {
		return
	}

	// Promote: the motif inherits the candidate's full sighting history so
	// k repetitions of a phrase always yield timesUsed == k.
	m := &motifState{
		pattern:      c.pattern,
		key:          key,
		timesUsed:    c.count,
		firstSeen:    c.firstSeen,
		lastSeen:     now,
		mood:         c.mood,
		strength:     r.cfg.InitialStrength,
		contributors: c.contributors,
	}
	r.motifs[key] = m
	delete(r.candidates, key)
	r.enforceCapLocked()
}

// Register creates a motif if absent, else strengthens it: strength moves up
// by StrengthStep (saturating at 1.0), timesUsed increments, lastSeen updates.
func (r *Registry) Register(pattern, agentID, mood string) Motif {
	return r.registerAt(pattern, agentID, mood, r.now())
}

func (r *Registry) registerAt(pattern, agentID, mood string, now time.Time) Motif {
	key := canonicalize(pattern)

	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.motifs[key]
	if m == nil {
		m = &motifState{
			pattern:      strings.TrimSpace(pattern),
			key:          key,
			timesUsed:    1,
			firstSeen:    now,
			lastSeen:     now,
			mood:         mood,
			strength:     r.cfg.InitialStrength,
			contributors: map[string]struct{}{agentID: {}},
		}
		r.motifs[key] = m
		r.enforceCapLocked()
		return m.snapshot()
	}

	r.strengthenLocked(m, agentID, now)
	if m.mood == "" {
		m.mood = mood
	}
	return m.snapshot()
}

// Merge folds a rehydrated motif into the registry: strength takes the max of
// local and incoming, use counts take the max so a freshly merged motif is
// not immediately prunable.
func (r *Registry) Merge(pattern, agentID, mood string, strength float64, uses int) Motif {
	key := canonicalize(pattern)
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.motifs[key]
	if m == nil {
		m = &motifState{
			pattern:      strings.TrimSpace(pattern),
			key:          key,
			firstSeen:    now,
			mood:         mood,
			contributors: map[string]struct{}{},
		}
		r.motifs[key] = m
	}
	if strength > m.strength {
		m.strength = clamp01(strength)
	}
	if uses > m.timesUsed {
		m.timesUsed = uses
	}
	if m.lastSeen.Before(now) {
		m.lastSeen = now
	}
	m.contributors[agentID] = struct{}{}
	r.enforceCapLocked()
	return m.snapshot()
}

// Emergent returns motifs used at least thresholdUses times within the
// recency window — the "callback opportunities" consumed by the narrative
// layer. Strongest first, then most recent.
func (r *Registry) Emergent(thresholdUses int, window time.Duration) []Motif {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Motif
	for _, m := range r.motifs {
		if m.timesUsed < thresholdUses {
			continue
		}
		if window > 0 && now.Sub(m.lastSeen) > window {
			continue
		}
		out = append(out, m.snapshot())
	}
	sortMotifs(out)
	return out
}

// ForAgent returns the motifs the given agent contributed to, filtered to
// those used at least minUses times. Strongest first, then most recent.
func (r *Registry) ForAgent(agentID string, minUses int) []Motif {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Motif
	for _, m := range r.motifs {
		if m.timesUsed < minUses {
			continue
		}
		if _, ok := m.contributors[agentID]; !ok {
			continue
		}
		out = append(out, m.snapshot())
	}
	sortMotifs(out)
	return out
}

// Decay multiplies every motif's strength by (1-rate). Scheduled by the
// compaction runner; decayed motifs become prunable once under the floor.
func (r *Registry) Decay(rate float64) {
	if rate <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.motifs {
		m.strength *= 1 - rate
	}
}

// Prune drops motifs whose last sighting exceeds the age horizon AND whose
// strength has decayed under the floor. This is the registry's only
// destructive operation. Returns the number of motifs dropped.
func (r *Registry) Prune(maxAge time.Duration) int {
	return r.pruneAt(maxAge, r.now())
}

func (r *Registry) pruneAt(maxAge time.Duration, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for key, m := range r.motifs {
		if now.Sub(m.lastSeen) > maxAge && m.strength < r.cfg.StrengthFloor {
			delete(r.motifs, key)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of tracked motifs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.motifs)
}

// strengthenLocked records one more sighting. Must be called with mu held.
func (r *Registry) strengthenLocked(m *motifState, agentID string, now time.Time) {
	m.timesUsed++
	m.strength = clamp01(m.strength + r.cfg.StrengthStep)
	if m.lastSeen.Before(now) {
		m.lastSeen = now
	}
	m.contributors[agentID] = struct{}{}
}

// enforceCapLocked drops the weakest motifs beyond the registry's own cap.
// Must be called with mu held.
func (r *Registry) enforceCapLocked() {
	if len(r.motifs) <= r.cfg.MaxMotifs {
		return
	}
	all := make([]*motifState, 0, len(r.motifs))
	for _, m := range r.motifs {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].strength != all[j].strength {
			return all[i].strength < all[j].strength
		}
		return all[i].lastSeen.Before(all[j].lastSeen)
	})
	for _, m := range all[:len(all)-r.cfg.MaxMotifs] {
		delete(r.motifs, m.key)
	}
}

// snapshot converts the internal state to the public Motif, with contributor
// ids sorted for determinism.
func (m *motifState) snapshot() Motif {
	contributors := make([]string, 0, len(m.contributors))
	for id := range m.contributors {
		contributors = append(contributors, id)
	}
	sort.Strings(contributors)
	return Motif{
		Pattern:      m.pattern,
		TimesUsed:    m.timesUsed,
		FirstSeen:    m.firstSeen,
		LastSeen:     m.lastSeen,
		Mood:         m.mood,
		Strength:     m.strength,
		Contributors: contributors,
	}
}

func sortMotifs(motifs []Motif) {
	sort.Slice(motifs, func(i, j int) bool {
		if motifs[i].Strength != motifs[j].Strength {
			return motifs[i].Strength > motifs[j].Strength
		}
		if !motifs[i].LastSeen.Equal(motifs[j].LastSeen) {
			return motifs[i].LastSeen.After(motifs[j].LastSeen)
		}
		return motifs[i].Pattern < motifs[j].Pattern
	})
}

// canonicalize lowercases, collapses whitespace, and strips punctuation so
// trivially restated phrases key to the same motif.
func canonicalize(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		case r == ' ' || r == '\t' || r == '\n':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		default:
			// punctuation dropped
		}
	}
	return strings.TrimRight(b.String(), " ")
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
