package learning

import (
	"log"
	"sync"
	"time"

	"github.com/hivecore/hivecore/internal/types"
)

// Repository is the optional persistence collaborator a Store may write
// through to, paralleling the teacher's SQLite-backed memory store. A nil
// Repository makes the Store purely in-memory.
type Repository interface {
	Upsert(p types.Pattern) error
	Delete(key uint64) error
	LoadAll() ([]types.Pattern, error)
}

// Store is the in-process pattern table; it is always the runtime source
// of truth (spec.md §3 ownership rules), optionally mirrored to a
// Repository for durability across restarts.
type Store struct {
	mu         sync.RWMutex
	patterns   map[uint64]types.Pattern
	maxEntries int
	repo       Repository
}

const defaultMaxEntries = 50000

// NewStore creates an empty Store. maxEntries<=0 uses the default cap of
// 50000. repo may be nil.
func NewStore(maxEntries int, repo Repository) *Store {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	s := &Store{
		patterns:   make(map[uint64]types.Pattern),
		maxEntries: maxEntries,
		repo:       repo,
	}
	if repo != nil {
		if loaded, err := repo.LoadAll(); err == nil {
			for _, p := range loaded {
				s.patterns[p.Key] = p
			}
		} else {
			log.Printf("[LEARN] failed to load patterns from repository: %v", err)
		}
	}
	return s
}

// Learn records an observed outcome (0..1) for the context, updating an
// existing pattern or inserting a new one per spec.md §4.5's mixing rule.
func (s *Store) Learn(ctx Context, outcome float64) {
	key := FeatureKey(ctx)
	outcome = clip01(outcome)

	s.mu.Lock()
	p, exists := s.patterns[key]
	if !exists {
		p = types.Pattern{Key: key, ExpectedOutput: outcome, Confidence: outcome}
	} else {
		p.Confidence = learnWeightOld*p.Confidence + learnWeightNew*outcome
		p.ExpectedOutput = learnWeightOld*p.ExpectedOutput + learnWeightNew*outcome
	}
	p.Frequency++
	p.LastSeen = time.Now()
	s.patterns[key] = p
	s.mu.Unlock()

	s.evictIfOverCapacity()

	if s.repo != nil {
		if err := s.repo.Upsert(p); err != nil {
			log.Printf("[LEARN] failed to persist pattern %d: %v", key, err)
		}
	}
}

// Predict returns a scalar in [0,1]: the stored expected-output if a
// confident pattern exists (confidence >= 0.7), otherwise a monotone
// fallback from the agent's capability scores. Predict never fails —
// spec.md §4.5's "failure modes are non-fatal" invariant.
func (s *Store) Predict(ctx Context) float64 {
	key := FeatureKey(ctx)

	s.mu.RLock()
	p, exists := s.patterns[key]
	s.mu.RUnlock()

	if exists && p.Confidence >= confidenceThreshold {
		return p.ExpectedOutput
	}
	return capabilityFallbackScore(ctx.Agent, ctx.RequiredCapabilities)
}

// Cleanup removes patterns whose LastSeen is older than retention, then
// enforces the absolute size cap by evicting lowest-confidence entries
// first.
func (s *Store) Cleanup(now time.Time, retention time.Duration) int {
	s.mu.Lock()
	var removed []uint64
	for key, p := range s.patterns {
		if now.Sub(p.LastSeen) > retention {
			delete(s.patterns, key)
			removed = append(removed, key)
		}
	}
	s.mu.Unlock()

	for _, key := range removed {
		if s.repo != nil {
			if err := s.repo.Delete(key); err != nil {
				log.Printf("[LEARN] failed to delete expired pattern %d: %v", key, err)
			}
		}
	}

	removed = append(removed, s.evictIfOverCapacity()...)
	return len(removed)
}

// evictIfOverCapacity enforces maxEntries, evicting the lowest-confidence
// patterns first, and returns the evicted keys.
func (s *Store) evictIfOverCapacity() []uint64 {
	s.mu.Lock()
	if len(s.patterns) <= s.maxEntries {
		s.mu.Unlock()
		return nil
	}
	all := make([]types.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		all = append(all, p)
	}
	sortByConfidenceAsc(all)

	overBy := len(s.patterns) - s.maxEntries
	evicted := make([]uint64, 0, overBy)
	for i := 0; i < overBy; i++ {
		delete(s.patterns, all[i].Key)
		evicted = append(evicted, all[i].Key)
	}
	s.mu.Unlock()

	for _, key := range evicted {
		if s.repo != nil {
			if err := s.repo.Delete(key); err != nil {
				log.Printf("[LEARN] failed to delete evicted pattern %d: %v", key, err)
			}
		}
	}
	return evicted
}

// Len returns the current pattern count, chiefly for tests and metrics.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
