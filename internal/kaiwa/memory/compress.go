package memory

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// CompressionContext carries the per-agent state a compressor may read or
// update: the decayed emotion estimates, the style vector, and the pass
// timestamp.
type CompressionContext struct {
	Config   Config
	Now      time.Time
	Emotions map[string]float64
	Style    *StyleVector
}

// Compressor is the per-kind compaction strategy. Implementations receive
// only the items of their kind and return the replacement slice. Every
// compressor is idempotent: re-running on already-compacted state changes
// neither size nor content.
type Compressor interface {
	Kind() Kind
	Compress(items []*MemoryItem, cc *CompressionContext) []*MemoryItem
}

// defaultCompressors returns the closed set of per-kind strategies. The joke
// strategy serves both KindJoke and KindCallback.
func defaultCompressors() map[Kind]Compressor {
	joke := &jokeCompressor{}
	return map[Kind]Compressor{
		KindFact:      &factCompressor{},
		KindJoke:      joke,
		KindCallback:  joke,
		KindEmotion:   &emotionCompressor{},
		KindStyle:     &styleCompressor{},
		KindSuspicion: &suspicionCompressor{},
	}
}

// --- fact -------------------------------------------------------------------

// factCompressor merges accumulated raw facts into one evolving rolling-
// summary item once the unmerged count reaches the configured threshold.
type factCompressor struct{}

func (f *factCompressor) Kind() Kind { return KindFact }

func (f *factCompressor) Compress(items []*MemoryItem, cc *CompressionContext) []*MemoryItem {
	var rolling *MemoryItem
	var raw []*MemoryItem
	var out []*MemoryItem

	for _, it := range items {
		switch {
		case it.HasTag(TagCompacted) && rolling == nil:
			rolling = it
		case it.HasTag(TagCompacted) || it.HasTag(TagManual):
			// Extra compacted items (from rehydration) and manual inserts are
			// left alone.
			out = append(out, it)
		default:
			raw = append(raw, it)
		}
	}

	if len(raw) < cc.Config.FactCompressionThreshold {
		// Below threshold: nothing merges this pass.
		if rolling != nil {
			out = append(out, rolling)
		}
		return append(out, raw...)
	}

	// Merge all raw facts (and the existing rolling item, weighted by how
	// many facts it already represents) into one item.
	parts := []string{}
	weight := 0
	confSum := 0.0
	if rolling != nil {
		parts = splitFacts(rolling.Content)
		weight = rolling.Meta.MergedCount
		if weight <= 0 {
			weight = len(parts)
		}
		confSum = rolling.Confidence * float64(weight)
	}

	latest := time.Time{}
	for _, it := range raw {
		if !containsFact(parts, it.Content) {
			parts = append(parts, it.Content)
		}
		confSum += it.Confidence
		weight++
		if it.LastAccessed.After(latest) {
			latest = it.LastAccessed
		}
	}

	// Cap to the most recent facts; older ones age out of the summary.
	if len(parts) > cc.Config.MaxMergedFacts {
		parts = parts[len(parts)-cc.Config.MaxMergedFacts:]
	}

	if rolling == nil {
		rolling = raw[0]
		rolling.AddTag(TagCompacted)
	}
	rolling.Content = strings.Join(parts, "; ")
	rolling.Confidence = clamp01(confSum / float64(weight))
	rolling.Meta.MergedCount = weight
	if latest.After(rolling.LastAccessed) {
		rolling.LastAccessed = latest
	}

	return append(out, rolling)
}

func splitFacts(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "; ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func containsFact(parts []string, fact string) bool {
	for _, p := range parts {
		if strings.EqualFold(p, fact) {
			return true
		}
	}
	return false
}

// --- joke / callback --------------------------------------------------------

// jokeCompressor preserves jokes and callbacks verbatim, collapsing verbatim
// repeats into a reuse counter on the first occurrence instead of keeping
// duplicates.
type jokeCompressor struct{}

func (j *jokeCompressor) Kind() Kind { return KindJoke }

func (j *jokeCompressor) Compress(items []*MemoryItem, cc *CompressionContext) []*MemoryItem {
	byText := make(map[string]*MemoryItem, len(items))
	var out []*MemoryItem

	for _, it := range items {
		key := canonicalize(it.Content)
		keeper, seen := byText[key]
		if !seen {
			byText[key] = it
			out = append(out, it)
			continue
		}
		keeper.Meta.ReuseCount += it.Meta.ReuseCount + 1
		if it.Confidence > keeper.Confidence {
			keeper.Confidence = it.Confidence
		}
		if it.LastAccessed.After(keeper.LastAccessed) {
			keeper.LastAccessed = it.LastAccessed
		}
	}
	return out
}

// --- emotion ----------------------------------------------------------------

// emotionCompressor folds raw emotion samples into the per-axis decayed
// running estimate and keeps a single evolving item whose content is a short
// natural-language label derived from the current axis values.
type emotionCompressor struct{}

func (e *emotionCompressor) Kind() Kind { return KindEmotion }

func (e *emotionCompressor) Compress(items []*MemoryItem, cc *CompressionContext) []*MemoryItem {
	var rolling *MemoryItem
	var out []*MemoryItem
	decay := cc.Config.EmotionDecayRate
	latest := time.Time{}

	for _, it := range items {
		if it.HasTag(TagCompacted) {
			if rolling == nil {
				rolling = it
			} else {
				out = append(out, it)
			}
			continue
		}
		// Raw sample: the classification intensity was seeded into the item's
		// confidence.
		axis := it.Meta.Axis
		if axis == "" {
			continue
		}
		cc.Emotions[axis] = cc.Emotions[axis]*(1-decay) + it.Confidence*decay
		if it.LastAccessed.After(latest) {
			latest = it.LastAccessed
		}
		if rolling == nil {
			rolling = it
			rolling.AddTag(TagCompacted)
		}
	}

	if rolling == nil {
		return out
	}

	axis, value := dominantAxis(cc.Emotions)
	rolling.Content = EmotionLabel(cc.Emotions)
	rolling.Confidence = value
	rolling.Meta.Axis = axis
	if latest.After(rolling.LastAccessed) {
		rolling.LastAccessed = latest
	}
	return append(out, rolling)
}

// dominantAxis returns the axis with the highest estimate. Ties break
// alphabetically for determinism.
func dominantAxis(emotions map[string]float64) (string, float64) {
	axes := make([]string, 0, len(emotions))
	for a := range emotions {
		axes = append(axes, a)
	}
	sort.Strings(axes)

	best, bestV := "", 0.0
	for _, a := range axes {
		if emotions[a] > bestV {
			best, bestV = a, emotions[a]
		}
	}
	return best, bestV
}

// EmotionLabel derives a short natural-language mood label from the axis
// estimates, e.g. "mostly joy, with a trace of curiosity".
func EmotionLabel(emotions map[string]float64) string {
	axis, value := dominantAxis(emotions)
	if axis == "" || value < 0.05 {
		return "even-tempered"
	}

	label := fmt.Sprintf("mostly %s", axis)
	// Mention a clear runner-up, if any.
	second, secondV := "", 0.0
	for a, v := range emotions {
		if a == axis {
			continue
		}
		if v > secondV || (v == secondV && a < second) {
			second, secondV = a, v
		}
	}
	if second != "" && secondV >= 0.2 {
		label += fmt.Sprintf(", with a trace of %s", second)
	}
	return label
}

// --- style ------------------------------------------------------------------

// styleHintProfiles maps style-signal hints to target dimension adjustments.
var styleHintProfiles = map[string]StyleVector{
	"poetic":   {Verbosity: 0.6, MetaphorAffinity: 0.9, Formality: 0.5, Creativity: 0.8, EmotionalTone: 0.6},
	"formal":   {Verbosity: 0.6, MetaphorAffinity: 0.3, Formality: 0.9, Creativity: 0.4, EmotionalTone: 0.3},
	"terse":    {Verbosity: 0.1, MetaphorAffinity: 0.2, Formality: 0.5, Creativity: 0.3, EmotionalTone: 0.3},
	"playful":  {Verbosity: 0.5, MetaphorAffinity: 0.6, Formality: 0.2, Creativity: 0.8, EmotionalTone: 0.8},
	"dramatic": {Verbosity: 0.8, MetaphorAffinity: 0.7, Formality: 0.4, Creativity: 0.7, EmotionalTone: 0.9},
}

// styleCompressor folds explicit style-signal items into the agent's
// StyleVector and drops them: stylistic state lives in the vector, never in
// retained items.
type styleCompressor struct{}

func (s *styleCompressor) Kind() Kind { return KindStyle }

func (s *styleCompressor) Compress(items []*MemoryItem, cc *CompressionContext) []*MemoryItem {
	for _, it := range items {
		profile, ok := styleHintProfiles[strings.ToLower(strings.TrimSpace(it.Content))]
		if !ok {
			continue
		}
		cc.Style.blend(profile, cc.Config.StyleUpdateRate)
	}
	return nil
}

// --- suspicion / observation ------------------------------------------------

// suspicionCompressor retains observations individually but applies the
// general time-based confidence decay. Decay is a function of elapsed time
// since the last decay application, so a second pass at the same instant is
// a no-op (idempotence) and confidence never increases between accesses.
type suspicionCompressor struct{}

func (s *suspicionCompressor) Kind() Kind { return KindSuspicion }

func (s *suspicionCompressor) Compress(items []*MemoryItem, cc *CompressionContext) []*MemoryItem {
	rate := cc.Config.ObservationDecayRate
	for _, it := range items {
		if it.HasTag(TagManual) {
			continue
		}
		elapsed := cc.Now.Sub(it.LastDecayed)
		if elapsed <= 0 {
			continue
		}
		factor := math.Pow(1-rate, elapsed.Hours())
		it.Confidence = clamp01(it.Confidence * factor)
		it.LastDecayed = cc.Now
	}
	return items
}
