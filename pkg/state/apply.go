package state

import (
	"fmt"

	"github.com/jwebster45206/storyworld-balancer/pkg/script"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
)

// Apply runs a reaction's after-effects against st in list order. Each
// effect is evaluated against the state as left by the effects before it.
// Effects of other types than bounded number effects are ignored.
func Apply(st *CharacterState, reaction *storyworld.Reaction, ev script.Evaluator) error {
	if reaction == nil {
		return nil
	}
	for i := range reaction.AfterEffects {
		if err := applyEffect(st, &reaction.AfterEffects[i], ev); err != nil {
			return fmt.Errorf("reaction %s effect %d: %w", reaction.ID, i, err)
		}
	}
	return nil
}

func applyEffect(st *CharacterState, e *storyworld.Effect, ev script.Evaluator) error {
	if e.EffectType != storyworld.BoundedNumberEffect {
		return nil
	}
	target := e.Target()
	if target == nil {
		return fmt.Errorf("%w: effect target is not a bounded number pointer", script.ErrMalformedScript)
	}
	v, err := ev.Evaluate(e.Value(), st)
	if err != nil {
		return err
	}
	f, ok := v.Float()
	if !ok {
		return fmt.Errorf("%w: effect value is %s", script.ErrMalformedScript, v.Type)
	}
	st.Set(target.Character, target.Property, f)
	return nil
}
