// Package balance reads rehearsal statistics and reports which parts of the
// ending distribution fall outside target ranges.
package balance

import (
	"fmt"

	"github.com/jwebster45206/storyworld-balancer/pkg/rehearsal"
)

// Kind names an issue category
type Kind string

const (
	HighDeadEnd    Kind = "high_dead_end"
	Dominant       Kind = "dominant"
	Rare           Kind = "rare"
	Unreachable    Kind = "unreachable"
	HighBlocking   Kind = "high_blocking"
	LowBlocking    Kind = "low_blocking"
	ScriptFailures Kind = "script_failures" // informational, never tuned
)

// Issue is one finding. EncounterID is set for per-ending issues.
type Issue struct {
	Kind        Kind    `json:"kind"`
	EncounterID string  `json:"encounter_id,omitempty"`
	Value       float64 `json:"value"`
}

func (i Issue) String() string {
	switch i.Kind {
	case HighDeadEnd:
		return fmt.Sprintf("dead-end rate %.1f%% is above target", i.Value*100)
	case Dominant:
		return fmt.Sprintf("ending %s is dominant at %.1f%%", i.EncounterID, i.Value*100)
	case Rare:
		return fmt.Sprintf("ending %s is rare at %.2f%%", i.EncounterID, i.Value*100)
	case Unreachable:
		return fmt.Sprintf("ending %s is never reached", i.EncounterID)
	case HighBlocking:
		return fmt.Sprintf("late-stage blocking %.1f%% is above target", i.Value*100)
	case LowBlocking:
		return fmt.Sprintf("late-stage blocking %.1f%% is below target", i.Value*100)
	case ScriptFailures:
		return fmt.Sprintf("%.1f%% of episodes failed on malformed scripts", i.Value*100)
	default:
		return fmt.Sprintf("%s %s %.4f", i.Kind, i.EncounterID, i.Value)
	}
}

// Rules holds the target ranges
type Rules struct {
	MaxDeadEndRate  float64 `yaml:"max_dead_end_rate" json:"max_dead_end_rate"`
	DominantShare   float64 `yaml:"dominant_share" json:"dominant_share"`
	RareShare       float64 `yaml:"rare_share" json:"rare_share"`
	MinBlockingRate float64 `yaml:"min_blocking_rate" json:"min_blocking_rate"`
	MaxBlockingRate float64 `yaml:"max_blocking_rate" json:"max_blocking_rate"`
}

// DefaultRules returns the stock targets
func DefaultRules() Rules {
	return Rules{
		MaxDeadEndRate:  0.05,
		DominantShare:   0.30,
		RareShare:       0.005,
		MinBlockingRate: 0.10,
		MaxBlockingRate: 0.30,
	}
}

// Validate checks the rules are usable
func (r Rules) Validate() error {
	for name, v := range map[string]float64{
		"max_dead_end_rate": r.MaxDeadEndRate,
		"dominant_share":    r.DominantShare,
		"rare_share":        r.RareShare,
		"min_blocking_rate": r.MinBlockingRate,
		"max_blocking_rate": r.MaxBlockingRate,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, v)
		}
	}
	if r.RareShare > r.DominantShare {
		return fmt.Errorf("rare_share %v must not exceed dominant_share %v", r.RareShare, r.DominantShare)
	}
	if r.MinBlockingRate > r.MaxBlockingRate {
		return fmt.Errorf("min_blocking_rate %v must not exceed max_blocking_rate %v", r.MinBlockingRate, r.MaxBlockingRate)
	}
	return nil
}

// Analyze compares stats against rules. Issues come out in a fixed order:
// dead ends, then each ending in EndingIDs order, then blocking, then
// script failures.
func Analyze(stats *rehearsal.Statistics, rules Rules) []Issue {
	var issues []Issue
	if stats == nil || stats.RunCount == 0 {
		return issues
	}

	if rate := stats.DeadEndRate(); rate > rules.MaxDeadEndRate {
		issues = append(issues, Issue{Kind: HighDeadEnd, Value: rate})
	}

	known := make(map[string]bool, len(stats.KnownEndings))
	for _, id := range stats.KnownEndings {
		known[id] = true
	}
	for _, id := range stats.EndingIDs() {
		count := stats.EndingCounts[id]
		share := stats.Share(id)
		switch {
		case count == 0:
			if known[id] {
				issues = append(issues, Issue{Kind: Unreachable, EncounterID: id})
			}
		case share > rules.DominantShare:
			issues = append(issues, Issue{Kind: Dominant, EncounterID: id, Value: share})
		case share < rules.RareShare:
			issues = append(issues, Issue{Kind: Rare, EncounterID: id, Value: share})
		}
	}

	if rate, ok := stats.BlockingRate(); ok {
		switch {
		case rate > rules.MaxBlockingRate:
			issues = append(issues, Issue{Kind: HighBlocking, Value: rate})
		case rate < rules.MinBlockingRate:
			issues = append(issues, Issue{Kind: LowBlocking, Value: rate})
		}
	}

	if stats.Failures > 0 {
		issues = append(issues, Issue{Kind: ScriptFailures, Value: stats.FailureRate()})
	}
	return issues
}

// Count returns how many issues have kind k
func Count(issues []Issue, k Kind) int {
	n := 0
	for _, i := range issues {
		if i.Kind == k {
			n++
		}
	}
	return n
}
