// Package persona defines the versioned YAML roster that seeds a simulation:
// which agents take part, their starting temperament, and the catchphrases
// pre-registered as motifs before the first utterance.
package persona

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kaiwa-dev/kaiwa/internal/kaiwa/memory"
)

// SpecVersion is the API version string required in every roster file.
const SpecVersion = "kaiwa/v1"

// Roster is the root type for a persona roster file.
type Roster struct {
	// APIVersion must be "kaiwa/v1".
	APIVersion string `yaml:"apiVersion"`

	// Name labels the simulation run.
	Name string `yaml:"name"`

	// Agents lists the participating personas.
	Agents []Agent `yaml:"agents"`
}

// Agent describes one persona.
type Agent struct {
	// ID is the unique agent identifier used throughout the memory store.
	ID string `yaml:"id"`

	// DisplayName is a human-readable name. Defaults to the id.
	DisplayName string `yaml:"displayName,omitempty"`

	// Temperament is a free-form description of the persona. Advisory.
	Temperament string `yaml:"temperament,omitempty"`

	// StyleHint is the default style signal attached to the agent's
	// utterances when the producer supplies none. Optional.
	StyleHint string `yaml:"styleHint,omitempty"`

	// Catchphrases are pre-registered as motifs so the first game of the
	// simulation already has callback material.
	Catchphrases []string `yaml:"catchphrases,omitempty"`

	// Facts are seeded into the store as manual memories.
	Facts []string `yaml:"facts,omitempty"`
}

// Parse decodes a roster YAML document and validates it. It is the canonical
// entry point for loading roster files.
func Parse(data []byte) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("persona parse: %w", err)
	}
	if err := Validate(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Load reads and parses a roster file from disk.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona load %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks a Roster for structural correctness. It returns the first
// validation error encountered, or nil if the roster is valid.
func Validate(r *Roster) error {
	if r == nil {
		return fmt.Errorf("roster must not be nil")
	}
	if r.APIVersion != SpecVersion {
		return fmt.Errorf("apiVersion must be %q, got %q", SpecVersion, r.APIVersion)
	}
	if len(r.Agents) == 0 {
		return fmt.Errorf("agents must not be empty")
	}

	seen := make(map[string]struct{}, len(r.Agents))
	for i, a := range r.Agents {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return fmt.Errorf("agents[%d]: id must not be empty", i)
		}
		if id == memory.SharedAgentID {
			return fmt.Errorf("agents[%d]: id %q is reserved", i, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("agents[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}

		for j, c := range a.Catchphrases {
			if strings.TrimSpace(c) == "" {
				return fmt.Errorf("agents[%d].catchphrases[%d]: must not be empty", i, j)
			}
		}
	}
	return nil
}

// Seed registers every agent's catchphrases as motifs and inserts their
// seeded facts as manual memories. Returns the number of motifs registered.
func (r *Roster) Seed(store *memory.Store) (int, error) {
	registered := 0
	for _, a := range r.Agents {
		for _, phrase := range a.Catchphrases {
			store.Registry().Register(phrase, a.ID, "")
			registered++
		}
		for _, fact := range a.Facts {
			if _, err := store.AddManualMemory(a.ID, fact); err != nil {
				return registered, fmt.Errorf("persona seed %s: %w", a.ID, err)
			}
		}
	}
	return registered, nil
}

// Agent returns the agent with the given id, or nil.
func (r *Roster) Agent(id string) *Agent {
	for i := range r.Agents {
		if r.Agents[i].ID == id {
			return &r.Agents[i]
		}
	}
	return nil
}
