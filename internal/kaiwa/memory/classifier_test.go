package memory

import (
	"errors"
	"testing"
	"time"
)

func TestClassifierKinds(t *testing.T) {
	c := NewClassifier()

	cases := []struct {
		name string
		text string
		hint string
		want Kind
	}{
		{"fact with name", "My name is Edgar and I keep the lighthouse.", "", KindFact},
		{"fact possession", "Mira has a brass telescope.", "", KindFact},
		{"joke marker", "Haha, the crab walks into a bar!", "", KindJoke},
		{"callback beats joke", "Remember when you told that knock knock joke?", "", KindCallback},
		{"emotion joy", "I am so happy today, this is wonderful!", "", KindEmotion},
		{"emotion fear", "I'm terrified of the fog, truly scared.", "", KindEmotion},
		{"hedge beats fact", "I suspect the gardener is hiding something.", "", KindSuspicion},
		{"style hint fallback", "Moonlit whispers drift slowly", "poetic", KindStyle},
		{"unclassifiable default", "Blorp.", "", KindSuspicion},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cls, err := c.Classify(Utterance{AgentID: "a1", Text: tc.text, StyleHint: tc.hint})
			if err != nil {
				t.Fatalf("Classify(%q) error: %v", tc.text, err)
			}
			if cls.Kind != tc.want {
				t.Fatalf("Classify(%q) kind = %q, want %q", tc.text, cls.Kind, tc.want)
			}
			if cls.Confidence <= 0 || cls.Confidence > 1 {
				t.Fatalf("Classify(%q) confidence = %v, want (0,1]", tc.text, cls.Confidence)
			}
		})
	}
}

func TestClassifierEmptyText(t *testing.T) {
	c := NewClassifier()

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := c.Classify(Utterance{AgentID: "a1", Text: text, Timestamp: time.Now()})
		if err == nil {
			t.Fatalf("Classify(%q) = nil error, want ClassificationError", text)
		}
		var cerr *ClassificationError
		if !errors.As(err, &cerr) {
			t.Fatalf("Classify(%q) error type = %T, want *ClassificationError", text, err)
		}
		if cerr.AgentID != "a1" {
			t.Fatalf("ClassificationError agent = %q, want a1", cerr.AgentID)
		}
	}
}

func TestClassifierEmotionIntensity(t *testing.T) {
	c := NewClassifier()

	mild, err := c.Classify(Utterance{AgentID: "a1", Text: "I feel a bit sad tonight"})
	if err != nil {
		t.Fatal(err)
	}
	strong, err := c.Classify(Utterance{AgentID: "a1", Text: "I am so sad and lonely, heartbroken with grief!"})
	if err != nil {
		t.Fatal(err)
	}

	if mild.Kind != KindEmotion || strong.Kind != KindEmotion {
		t.Fatalf("kinds = %q/%q, want emotion/emotion", mild.Kind, strong.Kind)
	}
	if mild.EmotionAxis != "sadness" || strong.EmotionAxis != "sadness" {
		t.Fatalf("axes = %q/%q, want sadness/sadness", mild.EmotionAxis, strong.EmotionAxis)
	}
	if strong.Intensity <= mild.Intensity {
		t.Fatalf("intensity %v (strong) <= %v (mild), want more lexicon hits to score higher",
			strong.Intensity, mild.Intensity)
	}
}

func TestClassifierStyleObservation(t *testing.T) {
	c := NewClassifier()

	terse, err := c.Classify(Utterance{AgentID: "a1", Text: "Blorp."})
	if err != nil {
		t.Fatal(err)
	}
	florid, err := c.Classify(Utterance{
		AgentID: "a1",
		Text: "The harbour glittered like a scattered crown, as if every lantern had " +
			"conspired to flatter the tide, and the night wore its fog like a borrowed coat.",
	})
	if err != nil {
		t.Fatal(err)
	}

	if florid.Style.Verbosity <= terse.Style.Verbosity {
		t.Errorf("verbosity: florid %v <= terse %v", florid.Style.Verbosity, terse.Style.Verbosity)
	}
	if florid.Style.MetaphorAffinity <= terse.Style.MetaphorAffinity {
		t.Errorf("metaphor affinity: florid %v <= terse %v",
			florid.Style.MetaphorAffinity, terse.Style.MetaphorAffinity)
	}

	formal, err := c.Classify(Utterance{AgentID: "a1", Text: "Therefore, regarding the harvest, moreover we must plan."})
	if err != nil {
		t.Fatal(err)
	}
	casual, err := c.Classify(Utterance{AgentID: "a1", Text: "Yeah I dunno, kinda wanna skip it."})
	if err != nil {
		t.Fatal(err)
	}
	if formal.Style.Formality <= casual.Style.Formality {
		t.Errorf("formality: formal %v <= casual %v", formal.Style.Formality, casual.Style.Formality)
	}
}

func TestClassifierDeterminism(t *testing.T) {
	c := NewClassifier()
	u := Utterance{AgentID: "a1", Text: "I suspect the lighthouse keeper is hiding a secret."}

	first, err := c.Classify(u)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := c.Classify(u)
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("run %d: classification %+v != %+v", i, again, first)
		}
	}
}
