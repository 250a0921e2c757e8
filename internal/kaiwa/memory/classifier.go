package memory

import (
	"fmt"
	"strings"
)

// ClassificationError reports an utterance that could not be turned into a
// memory item (empty or whitespace-only text). The offending utterance is
// dropped; ingestion continues for subsequent utterances.
type ClassificationError struct {
	AgentID string
	Reason  string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify utterance for %q: %s", e.AgentID, e.Reason)
}

// Classification is the result of classifying a single utterance.
type Classification struct {
	Kind       Kind
	Content    string
	Confidence float64

	// EmotionAxis names the dominant emotion axis for KindEmotion items.
	// Intensity is the sample value fed into the decayed running estimate.
	EmotionAxis string
	Intensity   float64

	// Style carries the stylistic observation derived from the text. It is
	// populated for every classification, whatever the kind, so the agent's
	// StyleVector is updated on each utterance.
	Style StyleVector
}

// UtteranceClassifier is the pluggable classification seam. Implementations
// must be pure: deterministic given their heuristic tables, with no side
// effects. The store performs the actual insert.
type UtteranceClassifier interface {
	Classify(u Utterance) (Classification, error)
}

// Classifier is the default keyword/lexicon classifier. Heuristics are
// approximate by design; the tables below trade linguistic subtlety for
// determinism.
type Classifier struct {
	emotionLexicon  map[string][]string
	jokeMarkers     []string
	callbackMarkers []string
	hedgeMarkers    []string
	factMarkers     []string
	metaphorMarkers []string
	formalMarkers   []string
	casualMarkers   []string
}

// NewClassifier returns a Classifier with the default heuristic tables.
func NewClassifier() *Classifier {
	return &Classifier{
		emotionLexicon: map[string][]string{
			"joy":       {"happy", "glad", "delighted", "wonderful", "love", "joy", "thrilled"},
			"sadness":   {"sad", "miserable", "crying", "lonely", "grief", "heartbroken"},
			"anger":     {"angry", "furious", "hate", "annoyed", "rage", "outraged"},
			"fear":      {"afraid", "scared", "terrified", "worried", "anxious", "dread"},
			"curiosity": {"curious", "wondering", "intrigued", "fascinated", "mysterious"},
		},
		jokeMarkers: []string{
			"haha", "hehe", "lol", "lmao", "knock knock", "walks into a bar",
			"get it?", "just kidding", "pun intended",
		},
		callbackMarkers: []string{
			"remember when", "as you always say", "like you said", "as the saying goes",
			"that reminds me of", "you mentioned", "as we established",
		},
		hedgeMarkers: []string{
			"i suspect", "i think", "something is off", "seems like", "not sure",
			"is hiding", "i wonder if", "could it be",
		},
		factMarkers: []string{
			" is ", " are ", " was ", " has ", " have ", "i am ", "i'm ",
			"my name", " lives in ", " works ", " owns ", " born ",
		},
		metaphorMarkers: []string{"like a", "as if", "as though", "is like"},
		formalMarkers:   []string{"therefore", "moreover", "furthermore", "regarding", "hence"},
		casualMarkers:   []string{"gonna", "wanna", "kinda", "dunno", "ain't", "yeah"},
	}
}

// Classify assigns the utterance to a memory kind and derives a confidence
// seed plus kind-specific extras. It is deterministic given the heuristic
// tables and never mutates external state.
func (c *Classifier) Classify(u Utterance) (Classification, error) {
	text := strings.TrimSpace(u.Text)
	if text == "" {
		return Classification{}, &ClassificationError{AgentID: u.AgentID, Reason: "empty text"}
	}

	lower := strings.ToLower(text)
	cls := Classification{Content: text, Style: c.styleObservation(lower)}

	// Precedence: callbacks before jokes so a quoted joke counts as a
	// callback; hedged statements before facts so "I think X is Y" reads as
	// suspicion rather than assertion.
	switch {
	case matchesAny(lower, c.callbackMarkers):
		cls.Kind = KindCallback
		cls.Confidence = 0.7

	case matchesAny(lower, c.jokeMarkers):
		cls.Kind = KindJoke
		cls.Confidence = 0.6

	case c.dominantEmotion(lower) != "":
		axis := c.dominantEmotion(lower)
		cls.Kind = KindEmotion
		cls.EmotionAxis = axis
		cls.Intensity = c.emotionIntensity(lower, axis)
		cls.Confidence = cls.Intensity

	case matchesAny(lower, c.hedgeMarkers):
		cls.Kind = KindSuspicion
		cls.Confidence = 0.5

	case matchesAny(lower, c.factMarkers):
		cls.Kind = KindFact
		cls.Confidence = 0.6 + 0.1*float64(min(countMatches(lower, c.factMarkers)-1, 3))

	case u.StyleHint != "":
		cls.Kind = KindStyle
		cls.Content = u.StyleHint
		cls.Confidence = 0.5

	default:
		// Unclassifiable text defaults to a low-confidence observation.
		cls.Kind = KindSuspicion
		cls.Confidence = 0.3
	}

	return cls, nil
}

// dominantEmotion returns the axis with the most lexicon hits, or "" when no
// axis matches. Ties break alphabetically for determinism.
func (c *Classifier) dominantEmotion(lower string) string {
	best := ""
	bestHits := 0
	for _, axis := range [...]string{"anger", "curiosity", "fear", "joy", "sadness"} {
		hits := countMatches(lower, c.emotionLexicon[axis])
		if hits > bestHits {
			best, bestHits = axis, hits
		}
	}
	return best
}

// emotionIntensity derives a sample in [0,1] from lexicon hit count and
// exclamatory punctuation.
func (c *Classifier) emotionIntensity(lower, axis string) float64 {
	v := 0.4 + 0.1*float64(countMatches(lower, c.emotionLexicon[axis]))
	if strings.Contains(lower, "!") {
		v += 0.2
	}
	return clamp01(v)
}

// styleObservation derives the five style dimensions from the raw text.
func (c *Classifier) styleObservation(lower string) StyleVector {
	words := strings.Fields(lower)

	var emotionHits int
	for _, lex := range c.emotionLexicon {
		emotionHits += countMatches(lower, lex)
	}

	formality := 0.5 +
		0.1*float64(countMatches(lower, c.formalMarkers)) -
		0.1*float64(countMatches(lower, c.casualMarkers))

	return StyleVector{
		Verbosity:        clamp01(float64(len(words)) / 40),
		MetaphorAffinity: clamp01(0.25 * float64(countMatches(lower, c.metaphorMarkers))),
		Formality:        clamp01(formality),
		Creativity:       distinctWordRatio(words),
		EmotionalTone:    clamp01(0.2 * float64(emotionHits)),
	}
}

func matchesAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func countMatches(s string, markers []string) int {
	n := 0
	for _, m := range markers {
		if strings.Contains(s, m) {
			n++
		}
	}
	return n
}

func distinctWordRatio(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	return clamp01(float64(len(seen)) / float64(len(words)))
}
