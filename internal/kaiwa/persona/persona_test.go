package persona

import (
	"strings"
	"testing"

	"github.com/kaiwa-dev/kaiwa/internal/kaiwa/memory"
)

const validRoster = `
apiVersion: kaiwa/v1
name: harbour-town
agents:
  - id: edgar
    displayName: Edgar the Keeper
    temperament: wistful, suspicious of the mayor
    styleHint: poetic
    catchphrases:
      - "the tide keeps its own ledger"
    facts:
      - "Edgar has kept the lighthouse for thirty years."
  - id: mira
    catchphrases:
      - "a candle against the gale"
      - "the sea remembers every keel"
`

func TestParseValidRoster(t *testing.T) {
	r, err := Parse([]byte(validRoster))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Name != "harbour-town" || len(r.Agents) != 2 {
		t.Fatalf("roster = %+v", r)
	}

	edgar := r.Agent("edgar")
	if edgar == nil || edgar.DisplayName != "Edgar the Keeper" || edgar.StyleHint != "poetic" {
		t.Fatalf("Agent(edgar) = %+v", edgar)
	}
	if r.Agent("nobody") != nil {
		t.Error("Agent(nobody) should be nil")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"wrong version", "apiVersion: kaiwa/v2\nagents:\n  - id: a\n", "apiVersion"},
		{"no agents", "apiVersion: kaiwa/v1\nagents: []\n", "agents must not be empty"},
		{"empty id", "apiVersion: kaiwa/v1\nagents:\n  - id: \"\"\n", "id must not be empty"},
		{"reserved id", "apiVersion: kaiwa/v1\nagents:\n  - id: __shared__\n", "reserved"},
		{"duplicate id", "apiVersion: kaiwa/v1\nagents:\n  - id: a\n  - id: a\n", "duplicate"},
		{"blank catchphrase", "apiVersion: kaiwa/v1\nagents:\n  - id: a\n    catchphrases: [\"  \"]\n", "catchphrases"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("Parse accepted an invalid roster")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %q, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestSeedRegistersMotifsAndFacts(t *testing.T) {
	r, err := Parse([]byte(validRoster))
	if err != nil {
		t.Fatal(err)
	}

	store := memory.NewStore(memory.DefaultConfig(), nil, nil, nil)
	registered, err := r.Seed(store)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if registered != 3 {
		t.Errorf("registered = %d motifs, want 3", registered)
	}
	if got := store.Registry().Len(); got != 3 {
		t.Errorf("registry Len = %d, want 3", got)
	}
	if got := store.Registry().ForAgent("mira", 0); len(got) != 2 {
		t.Errorf("mira motifs = %d, want 2", len(got))
	}

	facts := store.MemoriesByKind("edgar", memory.KindFact)
	if len(facts) != 1 || !facts[0].HasTag(memory.TagManual) {
		t.Fatalf("seeded facts = %+v, want one manual memory", facts)
	}
	if facts[0].Confidence != 1.0 {
		t.Errorf("seeded fact confidence = %v, want 1.0", facts[0].Confidence)
	}
}
