package types

import "time"

// Pattern is an entry in the Adaptive Learning pattern store, keyed by a
// content hash of a quantized feature vector (spec.md §4.5).
type Pattern struct {
	Key            uint64    `json:"key"`
	ExpectedOutput float64   `json:"expected_output"` // in [0,1]
	Confidence     float64   `json:"confidence"`      // in [0,1]
	Frequency      int64     `json:"frequency"`
	LastSeen       time.Time `json:"last_seen"`
}
