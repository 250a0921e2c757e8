package memory

import "time"

// Config holds the knobs for the memory store, the kind compressors, and the
// capper. Zero values fall back to the documented defaults.
type Config struct {
	// MaxSizePerAgent is the hard byte budget for a serialized MemoryBlob.
	// Default: 500 KiB.
	MaxSizePerAgent int

	// MaxRecentMemories caps the number of retained items per agent after a
	// compaction pass. Default: 50.
	MaxRecentMemories int

	// CompressionInterval is how often the periodic compaction pass runs.
	// Default: 30 s.
	CompressionInterval time.Duration

	// FactCompressionThreshold is the number of unmerged fact items that
	// triggers a merge into the agent's rolling-summary item. Default: 3.
	FactCompressionThreshold int

	// MaxMergedFacts caps how many distinct facts the rolling summary keeps
	// (most recent first). Default: 8.
	MaxMergedFacts int

	// JokePreservationThreshold is the total use count (first telling plus
	// verbatim repeats) at or above which a joke or callback is shielded from
	// ordinary eviction during capping. Default: 2.
	JokePreservationThreshold int

	// MotifPreservationThreshold is the use count at or above which a motif
	// is carried into the agent's capped blob. Default: 3.
	MotifPreservationThreshold int

	// EmotionDecayRate is the per-sample decay applied to the running
	// per-axis emotion estimate: v = v*(1-rate) + sample*rate. Default: 0.1.
	EmotionDecayRate float64

	// StyleUpdateRate is the EMA rate for StyleVector updates. Default: 0.3.
	StyleUpdateRate float64

	// ObservationDecayRate is the per-hour multiplicative confidence decay
	// applied to suspicion/observation items during compaction. Default: 0.02.
	ObservationDecayRate float64

	// RecencyWeight weighs recency against confidence in the capper's score:
	// score = w*recency + (1-w)*confidence. Default: 0.7.
	RecencyWeight float64

	// RecencyHorizon is the age at which the recency factor reaches zero.
	// Default: 72 h.
	RecencyHorizon time.Duration

	// PersonaSummaryLength caps the derived persona summary, in characters.
	// Default: 200.
	PersonaSummaryLength int

	// PreviewSize caps the content length of topMemories entries in the
	// serialized payload. Default: 160.
	PreviewSize int

	// ProtectedMotifMin is the number of blob motifs the capper keeps even
	// under byte pressure (the emergency-fallback floor). Default: 1.
	ProtectedMotifMin int

	// TopMemoryCount is the number of items projected into a payload's
	// topMemories list. Default: 10.
	TopMemoryCount int
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxSizePerAgent:            500 * 1024,
		MaxRecentMemories:          50,
		CompressionInterval:        30 * time.Second,
		FactCompressionThreshold:   3,
		MaxMergedFacts:             8,
		JokePreservationThreshold:  2,
		MotifPreservationThreshold: 3,
		EmotionDecayRate:           0.1,
		StyleUpdateRate:            0.3,
		ObservationDecayRate:       0.02,
		RecencyWeight:              0.7,
		RecencyHorizon:             72 * time.Hour,
		PersonaSummaryLength:       200,
		PreviewSize:                160,
		ProtectedMotifMin:          1,
		TopMemoryCount:             10,
	}
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxSizePerAgent <= 0 {
		c.MaxSizePerAgent = d.MaxSizePerAgent
	}
	if c.MaxRecentMemories <= 0 {
		c.MaxRecentMemories = d.MaxRecentMemories
	}
	if c.CompressionInterval <= 0 {
		c.CompressionInterval = d.CompressionInterval
	}
	if c.FactCompressionThreshold <= 0 {
		c.FactCompressionThreshold = d.FactCompressionThreshold
	}
	if c.MaxMergedFacts <= 0 {
		c.MaxMergedFacts = d.MaxMergedFacts
	}
	if c.JokePreservationThreshold <= 0 {
		c.JokePreservationThreshold = d.JokePreservationThreshold
	}
	if c.MotifPreservationThreshold <= 0 {
		c.MotifPreservationThreshold = d.MotifPreservationThreshold
	}
	if c.EmotionDecayRate <= 0 {
		c.EmotionDecayRate = d.EmotionDecayRate
	}
	if c.StyleUpdateRate <= 0 {
		c.StyleUpdateRate = d.StyleUpdateRate
	}
	if c.ObservationDecayRate <= 0 {
		c.ObservationDecayRate = d.ObservationDecayRate
	}
	if c.RecencyWeight <= 0 {
		c.RecencyWeight = d.RecencyWeight
	}
	if c.RecencyHorizon <= 0 {
		c.RecencyHorizon = d.RecencyHorizon
	}
	if c.PersonaSummaryLength <= 0 {
		c.PersonaSummaryLength = d.PersonaSummaryLength
	}
	if c.PreviewSize <= 0 {
		c.PreviewSize = d.PreviewSize
	}
	if c.ProtectedMotifMin <= 0 {
		c.ProtectedMotifMin = d.ProtectedMotifMin
	}
	if c.TopMemoryCount <= 0 {
		c.TopMemoryCount = d.TopMemoryCount
	}
	return c
}
