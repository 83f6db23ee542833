// Package fusion merges the goal candidates of all generators into a short,
// non-overlapping list.
package fusion

import (
	"sort"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
)

// Config of the greedy suppression.
type Config struct {
	MaxOverlap float64 `mapstructure:"max_overlap"` // a candidate overlapping an accepted one by more is dropped
	MaxGoals   int     `mapstructure:"max_goals"`
}

// DefaultConfig keeps the three best goals that overlap each other by less than half.
func DefaultConfig() Config {
	return Config{
		MaxOverlap: 0.5,
		MaxGoals:   3,
	}
}

// Fuse runs greedy non-maximum suppression over candidates. Candidates are
// visited by confidence, highest first, with ties kept in input order. The
// input slice is not modified.
func (c Config) Fuse(candidates []detection.GoalCandidate) []detection.GoalCandidate {
	if len(candidates) == 0 || c.MaxGoals <= 0 {
		return nil
	}

	order := make([]detection.GoalCandidate, len(candidates))
	copy(order, candidates)
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Confidence > order[j].Confidence
	})

	kept := make([]detection.GoalCandidate, 0, c.MaxGoals)
	for _, cand := range order {
		if c.suppressed(cand, kept) {
			continue
		}
		kept = append(kept, cand)
		if len(kept) == c.MaxGoals {
			break
		}
	}
	return kept
}

func (c Config) suppressed(cand detection.GoalCandidate, kept []detection.GoalCandidate) bool {
	for _, k := range kept {
		if geom.Overlap(cand.Box, k.Box) > c.MaxOverlap {
			return true
		}
	}
	return false
}
