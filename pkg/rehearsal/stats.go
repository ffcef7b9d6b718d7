package rehearsal

import (
	"math"
	"sort"

	"github.com/jwebster45206/storyworld-balancer/pkg/state"
)

// PropertyStat accumulates the final values of one property over all
// episodes. Episodes that never wrote the key contribute 0.
type PropertyStat struct {
	state.Key
	Sum        float64 `json:"sum"`
	SumSquares float64 `json:"sum_squares"`
}

// Statistics summarises a batch of episodes. It is a plain value safe to
// cache and compare.
type Statistics struct {
	RunCount       int            `json:"run_count"`
	Seed           int64          `json:"seed"`
	EndingCounts   map[string]int `json:"ending_counts"`
	KnownEndings   []string       `json:"known_endings"` // terminal encounters in document order
	DeadEnds       int            `json:"dead_ends"`
	Timeouts       int            `json:"timeouts"`
	Failures       int            `json:"failures"`
	FailureSamples []string       `json:"failure_samples,omitempty"`
	TurnSum        int            `json:"turn_sum"`
	LateArrivals   int            `json:"late_arrivals"`
	LateBlocks     int            `json:"late_blocks"`
	Secrets        []string       `json:"secrets,omitempty"` // page_secret_* encounters in document order
	SecretHits     map[string]int `json:"secret_hits,omitempty"`
	Properties     []PropertyStat `json:"properties"` // sorted by key
}

// Completed is the number of episodes that reached an ending, fallback
// included
func (s *Statistics) Completed() int {
	n := 0
	for _, c := range s.EndingCounts {
		n += c
	}
	return n
}

// Conserved reports whether every episode landed in exactly one bucket
func (s *Statistics) Conserved() bool {
	return s.Completed()+s.DeadEnds+s.Timeouts+s.Failures == s.RunCount
}

func (s *Statistics) rate(n int) float64 {
	if s.RunCount == 0 {
		return 0
	}
	return float64(n) / float64(s.RunCount)
}

// Share is the fraction of all episodes that ended at id
func (s *Statistics) Share(id string) float64 {
	return s.rate(s.EndingCounts[id])
}

// DeadEndRate is the fraction of episodes that finished without an ending.
// Timeouts count as dead ends here.
func (s *Statistics) DeadEndRate() float64 { return s.rate(s.DeadEnds + s.Timeouts) }

func (s *Statistics) TimeoutRate() float64 { return s.rate(s.Timeouts) }
func (s *Statistics) FailureRate() float64 { return s.rate(s.Failures) }

// BlockingRate is the fraction of late-stage arrivals that failed their
// acceptability check. ok is false when no episode reached the late stage.
func (s *Statistics) BlockingRate() (rate float64, ok bool) {
	if s.LateArrivals == 0 {
		return 0, false
	}
	return float64(s.LateBlocks) / float64(s.LateArrivals), true
}

// SecretRate is the fraction of episodes whose final state satisfies the
// gate of secret id
func (s *Statistics) SecretRate(id string) float64 {
	return s.rate(s.SecretHits[id])
}

// MeanTurns is the average episode length in moves
func (s *Statistics) MeanTurns() float64 {
	return s.rate(s.TurnSum)
}

// EndingIDs returns the known endings followed by any other observed
// ending ids in sorted order
func (s *Statistics) EndingIDs() []string {
	ids := append([]string(nil), s.KnownEndings...)
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	var extra []string
	for id := range s.EndingCounts {
		if !known[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	return append(ids, extra...)
}

// Entropy is the Shannon entropy in bits of the ending distribution over
// completed episodes
func (s *Statistics) Entropy() float64 {
	total := s.Completed()
	if total == 0 {
		return 0
	}
	h := 0.0
	for _, id := range s.EndingIDs() {
		c := s.EndingCounts[id]
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}

// EffectiveEndings is 2^H, the number of equally likely endings with the
// same entropy
func (s *Statistics) EffectiveEndings() float64 {
	if s.Completed() == 0 {
		return 0
	}
	return math.Exp2(s.Entropy())
}

// Property returns the accumulator for character.property
func (s *Statistics) Property(character, property string) (PropertyStat, bool) {
	key := state.Key{Character: character, Property: property}
	i := sort.Search(len(s.Properties), func(i int) bool {
		return !state.Less(s.Properties[i].Key, key)
	})
	if i < len(s.Properties) && s.Properties[i].Key == key {
		return s.Properties[i], true
	}
	return PropertyStat{}, false
}

// Mean is the population mean over runCount episodes
func (p PropertyStat) Mean(runCount int) float64 {
	if runCount == 0 {
		return 0
	}
	return p.Sum / float64(runCount)
}

// StdDev is the population standard deviation over runCount episodes
func (p PropertyStat) StdDev(runCount int) float64 {
	if runCount == 0 {
		return 0
	}
	mean := p.Mean(runCount)
	variance := p.SumSquares/float64(runCount) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}
