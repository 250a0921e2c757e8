package memory

import (
	"math"
	"strings"
	"testing"
	"time"
)

func testContext(now time.Time) *CompressionContext {
	style := DefaultStyleVector()
	return &CompressionContext{
		Config:   DefaultConfig(),
		Now:      now,
		Emotions: make(map[string]float64),
		Style:    &style,
	}
}

func rawItem(id string, kind Kind, content string, conf float64, at time.Time) *MemoryItem {
	return &MemoryItem{
		ID:           id,
		AgentID:      "a1",
		Kind:         kind,
		Content:      content,
		Confidence:   conf,
		CreatedAt:    at,
		LastAccessed: at,
		LastDecayed:  at,
	}
}

func TestFactCompressorMergesAboveThreshold(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cc := testContext(now)
	f := &factCompressor{}

	items := []*MemoryItem{
		rawItem("f1", KindFact, "Edgar keeps the lighthouse", 0.6, now),
		rawItem("f2", KindFact, "Mira owns a telescope", 0.7, now.Add(time.Minute)),
		rawItem("f3", KindFact, "the festival starts at dawn", 0.8, now.Add(2*time.Minute)),
		rawItem("f4", KindFact, "the harbour froze in 1902", 0.6, now.Add(3*time.Minute)),
		rawItem("f5", KindFact, "the mayor hates seagulls", 0.9, now.Add(4*time.Minute)),
	}

	out := f.Compress(items, cc)
	if len(out) != 1 {
		t.Fatalf("Compress produced %d items, want 1 merged", len(out))
	}
	merged := out[0]
	if !merged.HasTag(TagCompacted) {
		t.Error("merged item missing compacted tag")
	}
	if merged.Meta.MergedCount != 5 {
		t.Errorf("MergedCount = %d, want 5", merged.Meta.MergedCount)
	}
	for _, want := range []string{"Edgar keeps the lighthouse", "the mayor hates seagulls"} {
		if !strings.Contains(merged.Content, want) {
			t.Errorf("merged content %q missing %q", merged.Content, want)
		}
	}
	wantConf := (0.6 + 0.7 + 0.8 + 0.6 + 0.9) / 5
	if math.Abs(merged.Confidence-wantConf) > 1e-9 {
		t.Errorf("Confidence = %v, want weighted mean %v", merged.Confidence, wantConf)
	}
	if !merged.LastAccessed.Equal(now.Add(4 * time.Minute)) {
		t.Errorf("LastAccessed = %v, want the newest constituent's", merged.LastAccessed)
	}

	// Idempotence: a second pass over the merged result is a no-op.
	again := f.Compress(out, cc)
	if len(again) != 1 || again[0].Content != merged.Content || again[0].Confidence != merged.Confidence {
		t.Errorf("second pass changed the merged item: %+v", again[0])
	}
}

func TestFactCompressorBelowThreshold(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cc := testContext(now)
	f := &factCompressor{}

	items := []*MemoryItem{
		rawItem("f1", KindFact, "Edgar keeps the lighthouse", 0.6, now),
		rawItem("f2", KindFact, "Mira owns a telescope", 0.7, now),
	}
	out := f.Compress(items, cc)
	if len(out) != 2 {
		t.Fatalf("Compress below threshold produced %d items, want 2 untouched", len(out))
	}
}

func TestFactCompressorCapsMergedFacts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cc := testContext(now)
	cc.Config.MaxMergedFacts = 3
	f := &factCompressor{}

	var items []*MemoryItem
	for i := 0; i < 6; i++ {
		items = append(items, rawItem(
			string(rune('a'+i)), KindFact,
			strings.Repeat("x", i+1)+" happened", 0.5,
			now.Add(time.Duration(i)*time.Minute)))
	}

	out := f.Compress(items, cc)
	if len(out) != 1 {
		t.Fatalf("got %d items, want 1", len(out))
	}
	parts := splitFacts(out[0].Content)
	if len(parts) != 3 {
		t.Fatalf("rolling summary holds %d facts, want capped at 3: %q", len(parts), out[0].Content)
	}
	// The most recent facts win the cap.
	if parts[2] != "xxxxxx happened" {
		t.Errorf("last kept fact = %q, want the newest", parts[2])
	}
}

func TestFactCompressorLeavesManualAlone(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cc := testContext(now)
	f := &factCompressor{}

	manual := rawItem("m1", KindFact, "the king is a fiction", 1.0, now)
	manual.AddTag(TagManual)
	items := []*MemoryItem{
		manual,
		rawItem("f1", KindFact, "fact one stands", 0.5, now),
		rawItem("f2", KindFact, "fact two stands", 0.5, now),
		rawItem("f3", KindFact, "fact three stands", 0.5, now),
	}

	out := f.Compress(items, cc)
	if len(out) != 2 {
		t.Fatalf("got %d items, want manual + merged", len(out))
	}
	var foundManual bool
	for _, it := range out {
		if it.HasTag(TagManual) {
			foundManual = true
			if it.Content != "the king is a fiction" || it.Confidence != 1.0 {
				t.Errorf("manual item mutated: %+v", it)
			}
		}
	}
	if !foundManual {
		t.Error("manual item was merged away")
	}
}

func TestJokeCompressorDeduplicatesVerbatim(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cc := testContext(now)
	j := &jokeCompressor{}

	items := []*MemoryItem{
		rawItem("j1", KindJoke, "Why did the crab blush? The sea weed!", 0.6, now),
		rawItem("j2", KindJoke, "why did the crab blush... the sea weed", 0.7, now.Add(time.Minute)),
		rawItem("j3", KindJoke, "WHY did the crab blush? The SEA weed!", 0.5, now.Add(2*time.Minute)),
		rawItem("j4", KindJoke, "a different joke entirely, honest", 0.6, now),
	}

	out := j.Compress(items, cc)
	if len(out) != 2 {
		t.Fatalf("got %d items, want 2 distinct jokes", len(out))
	}
	keeper := out[0]
	if keeper.Content != "Why did the crab blush? The sea weed!" {
		t.Errorf("keeper content = %q, want the first occurrence verbatim", keeper.Content)
	}
	if keeper.Meta.ReuseCount != 2 {
		t.Errorf("ReuseCount = %d, want 2", keeper.Meta.ReuseCount)
	}
	if keeper.Confidence != 0.7 {
		t.Errorf("Confidence = %v, want the max across repeats", keeper.Confidence)
	}
	if !keeper.LastAccessed.Equal(now.Add(2 * time.Minute)) {
		t.Errorf("LastAccessed = %v, want the latest repeat's", keeper.LastAccessed)
	}
}

func TestEmotionCompressorRunningEstimate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cc := testContext(now)
	e := &emotionCompressor{}

	s1 := rawItem("e1", KindEmotion, "I am so happy!", 0.8, now)
	s1.Meta.Axis = "joy"
	s2 := rawItem("e2", KindEmotion, "wonderful, truly wonderful", 0.8, now.Add(time.Minute))
	s2.Meta.Axis = "joy"

	out := e.Compress([]*MemoryItem{s1, s2}, cc)
	if len(out) != 1 {
		t.Fatalf("got %d items, want 1 rolling estimate", len(out))
	}
	rolling := out[0]
	if !rolling.HasTag(TagCompacted) {
		t.Error("rolling item missing compacted tag")
	}
	// Two samples at rate 0.1: 0 -> 0.08 -> 0.152.
	want := 0.8*0.1*0.9 + 0.8*0.1
	if math.Abs(cc.Emotions["joy"]-want) > 1e-9 {
		t.Errorf("joy estimate = %v, want %v", cc.Emotions["joy"], want)
	}
	if !strings.Contains(rolling.Content, "joy") {
		t.Errorf("rolling content = %q, want a joy label", rolling.Content)
	}

	// A second pass with no new samples leaves the estimate untouched.
	before := cc.Emotions["joy"]
	again := e.Compress(out, cc)
	if len(again) != 1 || cc.Emotions["joy"] != before || again[0].Content != rolling.Content {
		t.Error("second pass changed the rolling estimate")
	}
}

func TestEmotionLabel(t *testing.T) {
	cases := []struct {
		name     string
		emotions map[string]float64
		want     string
	}{
		{"empty", map[string]float64{}, "even-tempered"},
		{"faint", map[string]float64{"joy": 0.01}, "even-tempered"},
		{"single", map[string]float64{"joy": 0.6}, "mostly joy"},
		{"runner-up", map[string]float64{"joy": 0.6, "fear": 0.3}, "mostly joy, with a trace of fear"},
		{"faint runner-up ignored", map[string]float64{"joy": 0.6, "fear": 0.1}, "mostly joy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EmotionLabel(tc.emotions); got != tc.want {
				t.Errorf("EmotionLabel = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStyleCompressorFoldsHints(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cc := testContext(now)
	s := &styleCompressor{}

	out := s.Compress([]*MemoryItem{rawItem("s1", KindStyle, "poetic", 0.5, now)}, cc)
	if out != nil {
		t.Fatalf("style items should be dropped, got %d", len(out))
	}
	// Default 0.5 blended toward the poetic profile (metaphor 0.9) at rate 0.3.
	want := 0.5*0.7 + 0.9*0.3
	if math.Abs(cc.Style.MetaphorAffinity-want) > 1e-9 {
		t.Errorf("MetaphorAffinity = %v, want %v", cc.Style.MetaphorAffinity, want)
	}

	// Unknown hints are ignored, not an error.
	before := *cc.Style
	s.Compress([]*MemoryItem{rawItem("s2", KindStyle, "sarcastic-robot", 0.5, now)}, cc)
	if *cc.Style != before {
		t.Error("unknown hint mutated the style vector")
	}
}

func TestSuspicionCompressorTimeDecay(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cc := testContext(now)
	s := &suspicionCompressor{}

	it := rawItem("o1", KindSuspicion, "the gardener buries something at night", 1.0, now.Add(-10*time.Hour))
	out := s.Compress([]*MemoryItem{it}, cc)
	if len(out) != 1 {
		t.Fatalf("got %d items, want 1", len(out))
	}
	// 10 hours at 2%/hour: 0.98^10.
	want := math.Pow(0.98, 10)
	if math.Abs(it.Confidence-want) > 1e-9 {
		t.Errorf("Confidence = %v, want %v", it.Confidence, want)
	}
	if !it.LastDecayed.Equal(now) {
		t.Errorf("LastDecayed = %v, want the pass timestamp", it.LastDecayed)
	}

	// Idempotence: same instant, no further decay.
	s.Compress(out, cc)
	if math.Abs(it.Confidence-want) > 1e-9 {
		t.Errorf("second pass at same instant decayed again: %v", it.Confidence)
	}
}

func TestSuspicionCompressorSkipsManual(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cc := testContext(now)
	s := &suspicionCompressor{}

	it := rawItem("o1", KindSuspicion, "pinned observation", 1.0, now.Add(-100*time.Hour))
	it.AddTag(TagManual)
	s.Compress([]*MemoryItem{it}, cc)
	if it.Confidence != 1.0 {
		t.Errorf("manual observation decayed to %v, want 1.0", it.Confidence)
	}
}
