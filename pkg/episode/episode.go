// Package episode plays one randomized walk through a storyworld, from the
// start encounter to an ending, dead end or timeout.
package episode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jwebster45206/d20"

	"github.com/jwebster45206/storyworld-balancer/pkg/script"
	"github.com/jwebster45206/storyworld-balancer/pkg/state"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
)

const (
	// FallbackEndingID is the ending reported when a terminal encounter
	// rejects the episode.
	FallbackEndingID = "page_end_fallback"

	// DefaultStepCeiling is the number of moves an episode may make
	// without reaching a terminal encounter.
	DefaultStepCeiling = 200

	// SecretPrefix marks encounters whose acceptability gate is checked
	// against the final state of every episode.
	SecretPrefix = "page_secret_"
)

var (
	ErrNoVisibleOptions      = errors.New("no visible options")
	ErrMissingConsequence    = errors.New("reaction has no consequence")
	ErrUnresolvedConsequence = errors.New("consequence names an unknown encounter")
	ErrStepCeilingExceeded   = errors.New("step ceiling exceeded")
)

// Kind is how an episode ended
type Kind int

const (
	Ending   Kind = iota // accepted terminal encounter
	Fallback             // terminal encounter rejected the episode
	DeadEnd
	Timeout
	Failed // a script could not be evaluated
)

func (k Kind) String() string {
	switch k {
	case Ending:
		return "ending"
	case Fallback:
		return "fallback"
	case DeadEnd:
		return "dead_end"
	case Timeout:
		return "timeout"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Options configures a Runner
type Options struct {
	StepCeiling int      // moves before Timeout; DefaultStepCeiling when 0
	Strict      bool     // reject legacy value nodes
	LateSpools  []string // spool ids or names whose encounters are late stage
}

// Result is the outcome of one episode
type Result struct {
	Kind         Kind
	EndingID     string // set for Ending and Fallback
	Encounter    string // encounter the episode stopped at
	Turns        int
	State        *state.CharacterState
	LateArrivals int
	LateBlocks   int      // late arrivals whose acceptability script was false
	SecretHits   []string // secrets whose gate the final state satisfies
	Err          error    // cause for DeadEnd, Timeout and Failed
}

// Runner plays episodes over one storyworld. It only reads the document
// and is safe for concurrent use.
type Runner struct {
	encounters map[string]*storyworld.Encounter
	start      string
	late       map[string]bool
	lateAtEnd  bool
	secrets    []*storyworld.Encounter
	ceiling    int
	eval       script.Evaluator
}

// NewRunner prepares w for simulation. The document must not change while
// the runner is in use.
func NewRunner(w *storyworld.Storyworld, opts Options) (*Runner, error) {
	start, err := w.StartEncounter()
	if err != nil {
		return nil, err
	}
	ceiling := opts.StepCeiling
	if ceiling <= 0 {
		ceiling = DefaultStepCeiling
	}
	r := &Runner{
		encounters: w.Index(),
		start:      start,
		ceiling:    ceiling,
		eval:       script.Evaluator{Strict: opts.Strict},
	}
	if len(opts.LateSpools) > 0 {
		r.late = w.SpoolMembers(opts.LateSpools)
	} else {
		r.lateAtEnd = true
	}
	for i := range w.Encounters {
		if strings.HasPrefix(w.Encounters[i].ID, SecretPrefix) {
			r.secrets = append(r.secrets, &w.Encounters[i])
		}
	}
	return r, nil
}

// Start is the encounter every episode begins at
func (r *Runner) Start() string {
	return r.start
}

// Secrets lists the secret encounter ids in document order
func (r *Runner) Secrets() []string {
	ids := make([]string, len(r.secrets))
	for i, enc := range r.secrets {
		ids[i] = enc.ID
	}
	return ids
}

// Run plays one episode, rolling a die over the visible options at each
// encounter. Episodes that finish without a script failure then have every
// secret gate checked against their final state.
func (r *Runner) Run(roller *d20.Roller) Result {
	res := r.play(roller)
	if res.Kind == Failed {
		return res
	}
	for _, enc := range r.secrets {
		v, err := r.eval.Evaluate(enc.Acceptability(), res.State)
		if err != nil {
			return r.fail(res, enc.ID, err)
		}
		if v.Truthy() {
			res.SecretHits = append(res.SecretHits, enc.ID)
		}
	}
	return res
}

func (r *Runner) play(roller *d20.Roller) Result {
	st := state.New()
	res := Result{State: st}
	id := r.start

	for {
		res.Encounter = id
		enc, ok := r.encounters[id]
		if !ok {
			res.Kind = DeadEnd
			res.Err = fmt.Errorf("%w: %q", ErrUnresolvedConsequence, id)
			return res
		}

		if enc.IsTerminal() {
			gate, err := r.eval.Evaluate(enc.Acceptability(), st)
			if err != nil {
				return r.fail(res, enc.ID, err)
			}
			if r.lateAtEnd || r.late[enc.ID] {
				res.LateArrivals++
				if !gate.Truthy() {
					res.LateBlocks++
				}
			}
			if gate.Truthy() && inWindow(enc, res.Turns) {
				res.Kind = Ending
				res.EndingID = enc.ID
			} else {
				res.Kind = Fallback
				res.EndingID = FallbackEndingID
			}
			return res
		}

		if res.Turns > r.ceiling {
			res.Kind = Timeout
			res.Err = fmt.Errorf("%w: %d moves", ErrStepCeilingExceeded, r.ceiling)
			return res
		}

		if r.late[enc.ID] {
			v, err := r.eval.Evaluate(enc.Acceptability(), st)
			if err != nil {
				return r.fail(res, enc.ID, err)
			}
			res.LateArrivals++
			if !v.Truthy() {
				res.LateBlocks++
			}
		}

		visible, err := r.visibleOptions(enc, st)
		if err != nil {
			return r.fail(res, enc.ID, err)
		}
		if len(visible) == 0 {
			res.Kind = DeadEnd
			res.Err = ErrNoVisibleOptions
			return res
		}

		roll, err := roller.Dice(1, uint(len(visible))).Roll()
		if err != nil {
			return r.fail(res, enc.ID, err)
		}
		opt := visible[roll.Value-1]
		rxn, err := r.selectReaction(opt, st)
		if err != nil {
			return r.fail(res, enc.ID, err)
		}
		if err := state.Apply(st, rxn, r.eval); err != nil {
			return r.fail(res, enc.ID, err)
		}
		res.Turns++

		if rxn == nil || rxn.ConsequenceID == "" {
			res.Kind = DeadEnd
			res.Err = ErrMissingConsequence
			return res
		}
		id = rxn.ConsequenceID
	}
}

func (r *Runner) fail(res Result, encounter string, err error) Result {
	res.Kind = Failed
	res.EndingID = ""
	res.SecretHits = nil
	res.Err = fmt.Errorf("encounter %s: %w", encounter, err)
	return res
}

func inWindow(enc *storyworld.Encounter, turn int) bool {
	lo, hi := enc.TurnWindow()
	return turn >= lo && turn <= hi
}

func (r *Runner) visibleOptions(enc *storyworld.Encounter, st *state.CharacterState) ([]*storyworld.Option, error) {
	visible := make([]*storyworld.Option, 0, len(enc.Options))
	for i := range enc.Options {
		opt := &enc.Options[i]
		v, err := r.eval.Evaluate(opt.Visibility(), st)
		if err != nil {
			return nil, fmt.Errorf("option %s visibility: %w", opt.ID, err)
		}
		if v.Truthy() {
			visible = append(visible, opt)
		}
	}
	return visible, nil
}

// selectReaction picks the most desirable reaction; the first one wins ties
func (r *Runner) selectReaction(opt *storyworld.Option, st *state.CharacterState) (*storyworld.Reaction, error) {
	var best *storyworld.Reaction
	bestScore := 0.0
	for i := range opt.Reactions {
		rxn := &opt.Reactions[i]
		v, err := r.eval.Evaluate(rxn.Desirability(), st)
		if err != nil {
			return nil, fmt.Errorf("reaction %s desirability: %w", rxn.ID, err)
		}
		score, ok := v.Float()
		if !ok {
			return nil, fmt.Errorf("reaction %s desirability: %w: %s value", rxn.ID, script.ErrMalformedScript, v.Type)
		}
		if best == nil || score > bestScore {
			best, bestScore = rxn, score
		}
	}
	return best, nil
}
