// Package tuner rewrites gate thresholds in a storyworld to push its ending
// distribution toward the balance targets, and drives the iterative
// simulate, analyze and tune session.
package tuner

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/jwebster45206/storyworld-balancer/pkg/balance"
	"github.com/jwebster45206/storyworld-balancer/pkg/episode"
	"github.com/jwebster45206/storyworld-balancer/pkg/script"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
)

// FallbackDesirability is the desirability given to the terminal encounter
// chosen as the guaranteed fallback ending
const FallbackDesirability = 0.001

// PreflightSpools are the spools switched on before the first iteration
var PreflightSpools = []string{"Endgame", "Secrets"}

// Factors are the threshold multipliers per issue kind
type Factors struct {
	Dominant    float64 `yaml:"dominant" json:"dominant"`
	Unreachable float64 `yaml:"unreachable" json:"unreachable"`
	Rare        float64 `yaml:"rare" json:"rare"`
	Blocking    float64 `yaml:"blocking" json:"blocking"`
}

// DefaultFactors tighten dominant endings and loosen unreachable, rare and
// over-blocking gates
func DefaultFactors() Factors {
	return Factors{
		Dominant:    1.15,
		Unreachable: 0.70,
		Rare:        0.85,
		Blocking:    0.80,
	}
}

// Validate checks the factors are usable
func (f Factors) Validate() error {
	for name, v := range map[string]float64{
		"dominant":    f.Dominant,
		"unreachable": f.Unreachable,
		"rare":        f.Rare,
		"blocking":    f.Blocking,
	} {
		if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			return fmt.Errorf("factor %s must be a positive number, got %v", name, v)
		}
	}
	return nil
}

// Action names what the tuner did to an encounter
type Action string

const (
	ScaleThresholds Action = "scale_thresholds"
	EnsureFallback  Action = "ensure_fallback"
	ActivateSpool   Action = "activate_spool"
)

// Adjustment records one change made by Tune or Preflight. Pre-flight
// adjustments carry no issue.
type Adjustment struct {
	Issue       balance.Issue `json:"issue"`
	Action      Action        `json:"action"`
	EncounterID string        `json:"encounter_id,omitempty"`
	SpoolID     string        `json:"spool_id,omitempty"`
	Factor      float64       `json:"factor,omitempty"`
	Changed     int           `json:"changed"` // thresholds rewritten
}

func (a Adjustment) String() string {
	cause := string(a.Issue.Kind)
	if cause == "" {
		cause = "pre-flight"
	}
	switch a.Action {
	case EnsureFallback:
		return fmt.Sprintf("%s: %s is now an always-acceptable fallback ending", cause, a.EncounterID)
	case ActivateSpool:
		return fmt.Sprintf("%s: spool %s now starts active", cause, a.SpoolID)
	default:
		return fmt.Sprintf("%s: scaled %d threshold(s) in %s by %.2f", cause, a.Changed, a.EncounterID, a.Factor)
	}
}

// Tuner applies threshold adjustments for balance issues
type Tuner struct {
	factors Factors
	logger  *slog.Logger
}

// New creates a tuner. A nil logger discards output.
func New(factors Factors, logger *slog.Logger) *Tuner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tuner{factors: factors, logger: logger}
}

// Tune returns a copy of w with adjustments for issues applied. w is never
// modified. With no issues, or none that can be acted on, it returns w
// itself and no adjustments.
func (t *Tuner) Tune(w *storyworld.Storyworld, issues []balance.Issue) (*storyworld.Storyworld, []Adjustment, error) {
	if len(issues) == 0 {
		return w, nil, nil
	}
	out, err := w.Clone()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to copy storyworld for tuning: %w", err)
	}

	var adjustments []Adjustment
	for _, issue := range issues {
		switch issue.Kind {
		case balance.Dominant:
			adjustments = append(adjustments, t.scaleEnding(out, issue, t.factors.Dominant)...)
		case balance.Unreachable:
			adjustments = append(adjustments, t.scaleEnding(out, issue, t.factors.Unreachable)...)
		case balance.Rare:
			adjustments = append(adjustments, t.scaleEnding(out, issue, t.factors.Rare)...)
		case balance.HighBlocking:
			adjustments = append(adjustments, t.loosenOrGates(out, issue)...)
		case balance.HighDeadEnd:
			adjustments = append(adjustments, t.ensureFallback(out, issue)...)
		default:
			t.logger.Debug("No adjustment for issue", "kind", issue.Kind, "encounter_id", issue.EncounterID)
		}
	}

	if len(adjustments) == 0 {
		return w, nil, nil
	}
	return out, adjustments, nil
}

// Preflight prepares w for balancing: it makes sure some terminal accepts
// every episode and switches on the Endgame and Secrets spools. A spool is
// left inactive when switching it on would move the start encounter. Like
// Tune, it returns w itself when nothing changes.
func (t *Tuner) Preflight(w *storyworld.Storyworld) (*storyworld.Storyworld, []Adjustment, error) {
	out, err := w.Clone()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to copy storyworld for pre-flight: %w", err)
	}

	adjustments := t.ensureFallback(out, balance.Issue{})
	start, err := out.StartEncounter()
	if err != nil {
		return nil, nil, err
	}
	for i := range out.Spools {
		sp := &out.Spools[i]
		if sp.StartsActive || !slices.ContainsFunc(PreflightSpools, func(name string) bool {
			return strings.EqualFold(name, sp.Name)
		}) {
			continue
		}
		sp.StartsActive = true
		if moved, err := out.StartEncounter(); err != nil || moved != start {
			sp.StartsActive = false
			t.logger.Warn("Spool left inactive, it would move the start encounter", "spool_id", sp.ID, "spool_name", sp.Name)
			continue
		}
		adjustments = append(adjustments, Adjustment{Action: ActivateSpool, SpoolID: sp.ID})
	}

	if len(adjustments) == 0 {
		return w, nil, nil
	}
	for _, adj := range adjustments {
		t.logger.Info("Pre-flight adjustment", "adjustment", adj.String())
	}
	return out, adjustments, nil
}

func (t *Tuner) scaleEnding(w *storyworld.Storyworld, issue balance.Issue, factor float64) []Adjustment {
	enc, ok := w.Encounter(issue.EncounterID)
	if !ok {
		t.logger.Debug("Issue names no encounter", "kind", issue.Kind, "encounter_id", issue.EncounterID)
		return nil
	}
	changed := scale(enc, factor)
	if changed == 0 {
		t.logger.Debug("Encounter has no adjustable thresholds", "kind", issue.Kind, "encounter_id", enc.ID)
		return nil
	}
	return []Adjustment{{Issue: issue, Action: ScaleThresholds, EncounterID: enc.ID, Factor: factor, Changed: changed}}
}

func (t *Tuner) loosenOrGates(w *storyworld.Storyworld, issue balance.Issue) []Adjustment {
	var out []Adjustment
	for i := range w.Encounters {
		enc := &w.Encounters[i]
		if enc.AcceptabilityScript == nil {
			continue
		}
		if _, isOr := enc.AcceptabilityScript.Node.(*script.Or); !isOr {
			continue
		}
		if changed := scale(enc, t.factors.Blocking); changed > 0 {
			out = append(out, Adjustment{Issue: issue, Action: ScaleThresholds, EncounterID: enc.ID, Factor: t.factors.Blocking, Changed: changed})
		}
	}
	return out
}

// scale multiplies every comparator threshold in the acceptability script
// of enc and returns how many values changed
func scale(enc *storyworld.Encounter, factor float64) int {
	if enc.AcceptabilityScript == nil {
		return 0
	}
	changed := 0
	for _, c := range script.Thresholds(enc.AcceptabilityScript.Node) {
		next := round6(c.Value * factor)
		if next != c.Value {
			c.Value = next
			changed++
		}
	}
	return changed
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// ensureFallback makes sure some terminal encounter accepts every episode.
// It prefers an existing page_end_fallback encounter, then the terminal
// with the lowest constant desirability.
func (t *Tuner) ensureFallback(w *storyworld.Storyworld, issue balance.Issue) []Adjustment {
	var candidate *storyworld.Encounter
	lowest := math.Inf(1)
	for i := range w.Encounters {
		enc := &w.Encounters[i]
		if !enc.IsTerminal() {
			continue
		}
		if isOpenEnding(enc) {
			return nil
		}
		if enc.ID == episode.FallbackEndingID {
			candidate, lowest = enc, math.Inf(-1)
			continue
		}
		if d := constantDesirability(enc); d < lowest {
			candidate, lowest = enc, d
		}
	}
	if candidate == nil {
		t.logger.Debug("No terminal encounter to use as fallback")
		return nil
	}

	candidate.AcceptabilityScript = script.New(&script.BoolConstant{Value: true, Bare: true})
	candidate.DesirabilityScript = script.New(script.Const(FallbackDesirability))
	candidate.EarliestTurn = nil
	candidate.LatestTurn = nil
	return []Adjustment{{Issue: issue, Action: EnsureFallback, EncounterID: candidate.ID}}
}

// isOpenEnding reports whether a terminal accepts any episode at any turn
func isOpenEnding(enc *storyworld.Encounter) bool {
	lo, _ := enc.TurnWindow()
	return script.IsTrue(enc.Acceptability()) && enc.LatestTurn == nil && lo <= 0
}

// constantDesirability reads a constant desirability; anything else sorts
// after every constant
func constantDesirability(enc *storyworld.Encounter) float64 {
	if c, ok := enc.Desirability().(*script.Constant); ok {
		return c.Value
	}
	return math.MaxFloat64
}
