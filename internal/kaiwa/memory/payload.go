package memory

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed payload_schema.json
var payloadSchemaJSON string

// payloadSchema is compiled once at package init. The schema is the
// authoritative description of the persisted state shape — the only bit-exact
// contract this subsystem exposes.
var payloadSchema = func() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("summary_payload.schema.json", strings.NewReader(payloadSchemaJSON)); err != nil {
		panic(fmt.Sprintf("memory: add payload schema resource: %v", err))
	}
	return compiler.MustCompile("summary_payload.schema.json")
}()

// PayloadFormatError reports a malformed SummaryPayload handed to
// rehydration. No partial mutation is applied when it is returned.
type PayloadFormatError struct {
	Detail string
	Err    error
}

func (e *PayloadFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed summary payload: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("malformed summary payload: %s", e.Detail)
}

func (e *PayloadFormatError) Unwrap() error { return e.Err }

// TopMemory is one retained item projected into the wire format: kind,
// content preview, confidence.
type TopMemory struct {
	Kind       Kind    `json:"kind"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

// SummaryPayload is the serializable snapshot exchanged with external
// durable storage. MotifHints are rendered motif patterns ordered strongest
// first; TopMemories are ordered by descending capper score; Timestamp is
// Unix milliseconds.
type SummaryPayload struct {
	AgentID         string      `json:"agentId"`
	SummaryFacts    string      `json:"summaryFacts"`
	SummaryEmotions string      `json:"summaryEmotions"`
	MotifHints      []string    `json:"motifHints"`
	TopMemories     []TopMemory `json:"topMemories"`
	PersonaSummary  string      `json:"personaSummary"`
	StyleVector     StyleVector `json:"styleVector"`
	Timestamp       int64       `json:"timestamp"`
}

// Encode serializes the payload to its wire form.
func (p *SummaryPayload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode summary payload: %w", err)
	}
	return data, nil
}

// DecodePayload validates raw bytes against the payload schema and
// unmarshals them. A schema violation (missing required field, out-of-range
// confidence, unknown kind) yields a *PayloadFormatError and nothing else is
// touched.
func DecodePayload(data []byte) (*SummaryPayload, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &PayloadFormatError{Detail: "invalid JSON", Err: err}
	}
	if err := payloadSchema.Validate(raw); err != nil {
		return nil, &PayloadFormatError{Detail: "schema validation failed", Err: err}
	}

	var p SummaryPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &PayloadFormatError{Detail: "decode failed", Err: err}
	}
	return &p, nil
}

// validatePayload applies the schema checks to an in-memory payload (used by
// Rehydrate, whose callers may hand over an already-decoded struct).
func validatePayload(p *SummaryPayload) error {
	if p == nil {
		return &PayloadFormatError{Detail: "nil payload"}
	}
	if p.AgentID == "" {
		return &PayloadFormatError{Detail: "missing agentId"}
	}
	for i, tm := range p.TopMemories {
		if !tm.Kind.Valid() {
			return &PayloadFormatError{Detail: fmt.Sprintf("topMemories[%d]: unknown kind %q", i, tm.Kind)}
		}
		if tm.Confidence < 0 || tm.Confidence > 1 {
			return &PayloadFormatError{Detail: fmt.Sprintf("topMemories[%d]: confidence %v outside [0,1]", i, tm.Confidence)}
		}
	}
	return nil
}

// rehydratedID derives a deterministic id for an item restored from a
// payload. The wire format carries no ids, so re-importing the same payload
// must collide with (and merge into) the items it produced last time rather
// than duplicate them.
func rehydratedID(agentID string, kind Kind, content string) string {
	sum := sha256.Sum256([]byte(agentID + "\x00" + string(kind) + "\x00" + content))
	return "rh_" + hex.EncodeToString(sum[:16])
}
