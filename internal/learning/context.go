// Package learning implements the adaptive pattern store of spec.md §4.5:
// keyed by a 64-bit hash of a quantized feature vector, it learns an
// expected-output scalar with a confidence that decays toward new
// observations, predicts for unseen contexts with a capability-score
// fallback, and evicts on a retention/size policy.
//
// Grounded on the teacher's internal/memory/learning.go: a SQLite-backed
// store keyed by a hashed context, with UseCount/LastUsed bookkeeping
// directly parallel to this package's Frequency/LastSeen fields.
package learning

import (
	"hash/fnv"
	"sort"

	"github.com/hivecore/hivecore/internal/types"
)

const (
	confidenceThreshold = 0.7
	learnWeightOld      = 0.8
	learnWeightNew      = 0.2
	featureBucketCount  = 8 // bag-of-features slots quantized from the description
)

// Context is the input to Learn/Predict: the agent's state at decision
// time plus the task's description and required capabilities.
type Context struct {
	Agent              *types.Agent
	TaskDescription    string
	RequiredCapabilities []types.Requirement
}

// FeatureKey quantizes a Context into the 64-bit hash spec.md §4.5 keys
// patterns by: energy bucketed in tenths (11 levels, 0-10), capability count, experience
// count (log-bucketed), social-link count, and a bounded bag-of-features
// over the task description.
func FeatureKey(ctx Context) uint64 {
	h := fnv.New64a()

	energyBucket := int(ctx.Agent.Energy * 10)
	capCount := len(ctx.Agent.Capabilities)
	expBucket := logBucket(ctx.Agent.Experience)
	socialBucket := ctx.Agent.SocialLinks

	writeInt(h, energyBucket)
	writeInt(h, capCount)
	writeInt(h, expBucket)
	writeInt(h, socialBucket)

	for _, b := range bagOfFeatures(ctx.TaskDescription) {
		writeInt(h, b)
	}

	return h.Sum64()
}

func logBucket(n int64) int {
	bucket := 0
	for n > 0 {
		n >>= 1
		bucket++
	}
	return bucket
}

// bagOfFeatures reduces a description to a small fixed-size vector of
// word-length buckets, bounded so the key space stays finite regardless
// of description length.
func bagOfFeatures(desc string) []int {
	buckets := make([]int, featureBucketCount)
	word := 0
	idx := 0
	for _, r := range desc {
		if r == ' ' || r == '\t' || r == '\n' {
			if word > 0 {
				buckets[idx%featureBucketCount] += word
				idx++
				word = 0
			}
			continue
		}
		word++
	}
	if word > 0 {
		buckets[idx%featureBucketCount] += word
	}
	return buckets
}

func writeInt(h interface{ Write([]byte) (int, error) }, v int) {
	b := []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
	}
	_, _ = h.Write(b)
}

// capabilityFallbackScore is the monotone fallback Predict uses when no
// confident pattern exists: the mean proficiency across the task's
// required capabilities, a missing capability counting as 0 (so 0 when
// the agent has none of them), and 0.5 when the task has no requirements.
func capabilityFallbackScore(agent *types.Agent, reqs []types.Requirement) float64 {
	if len(reqs) == 0 {
		return 0.5
	}
	var sum float64
	for _, r := range reqs {
		if c := agent.CapabilityByName(r.Name); c != nil {
			sum += c.Proficiency
		}
	}
	return sum / float64(len(reqs))
}

// sortByConfidenceAsc is used by Cleanup's lowest-confidence-first
// eviction.
func sortByConfidenceAsc(patterns []types.Pattern) {
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Confidence < patterns[j].Confidence })
}
