// Package dialogue feeds conversational turns into the memory store. A
// TurnProducer yields utterances from whatever source drives the simulation;
// the Recorder consumes them, ingests each one, and keeps going past
// unclassifiable turns.
package dialogue

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kaiwa-dev/kaiwa/internal/kaiwa/memory"
	"github.com/kaiwa-dev/kaiwa/internal/kaiwa/persona"
)

// TurnProducer yields the next utterance of the dialogue. Implementations
// return io.EOF when the stream is exhausted.
type TurnProducer interface {
	Next(ctx context.Context) (memory.Utterance, error)
}

// NarrativeConsumer receives emergent motifs — the callback opportunities a
// narrative layer can weave back into the dialogue. Implementations live
// outside this repository; the interface fixes the seam.
type NarrativeConsumer interface {
	ConsumeMotifs(ctx context.Context, motifs []memory.Motif) error
}

// StreamProducer reads JSONL-encoded utterances, one object per line. Blank
// lines are skipped. When a roster is supplied, utterances without a style
// hint inherit their agent's default.
type StreamProducer struct {
	scanner *bufio.Scanner
	roster  *persona.Roster
	line    int
}

// NewStreamProducer creates a producer reading from r. roster may be nil.
func NewStreamProducer(r io.Reader, roster *persona.Roster) *StreamProducer {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &StreamProducer{scanner: sc, roster: roster}
}

// Next returns the next utterance in the stream, io.EOF at the end.
func (p *StreamProducer) Next(ctx context.Context) (memory.Utterance, error) {
	for {
		if err := ctx.Err(); err != nil {
			return memory.Utterance{}, err
		}
		if !p.scanner.Scan() {
			if err := p.scanner.Err(); err != nil {
				return memory.Utterance{}, fmt.Errorf("dialogue: read stream: %w", err)
			}
			return memory.Utterance{}, io.EOF
		}
		p.line++

		raw := p.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var u memory.Utterance
		if err := json.Unmarshal(raw, &u); err != nil {
			return memory.Utterance{}, fmt.Errorf("dialogue: line %d: %w", p.line, err)
		}

		if u.StyleHint == "" && p.roster != nil {
			if a := p.roster.Agent(u.AgentID); a != nil {
				u.StyleHint = a.StyleHint
			}
		}
		return u, nil
	}
}

var _ TurnProducer = (*StreamProducer)(nil)

// SliceProducer yields a fixed sequence of utterances. Intended for tests
// and scripted scenes.
type SliceProducer struct {
	turns []memory.Utterance
	next  int
}

// NewSliceProducer creates a producer over the given turns.
func NewSliceProducer(turns []memory.Utterance) *SliceProducer {
	return &SliceProducer{turns: turns}
}

// Next returns the next scripted utterance, io.EOF when exhausted.
func (p *SliceProducer) Next(ctx context.Context) (memory.Utterance, error) {
	if err := ctx.Err(); err != nil {
		return memory.Utterance{}, err
	}
	if p.next >= len(p.turns) {
		return memory.Utterance{}, io.EOF
	}
	u := p.turns[p.next]
	p.next++
	return u, nil
}

var _ TurnProducer = (*SliceProducer)(nil)
