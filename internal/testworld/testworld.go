// Package testworld builds small storyworlds for tests.
package testworld

import (
	"github.com/jwebster45206/storyworld-balancer/pkg/script"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
)

// Terminal is an encounter with no options gated by gate (nil = always)
func Terminal(id string, gate script.Node) storyworld.Encounter {
	enc := storyworld.Encounter{ID: id, Options: []storyworld.Option{}}
	if gate != nil {
		enc.AcceptabilityScript = script.New(gate)
	}
	return enc
}

// Step is a non-terminal encounter
func Step(id string, options ...storyworld.Option) storyworld.Encounter {
	return storyworld.Encounter{ID: id, Options: options}
}

// Choice is an always-visible option with a single reaction
func Choice(id, consequence string, effects ...storyworld.Effect) storyworld.Option {
	return storyworld.Option{
		ID: id,
		Reactions: []storyworld.Reaction{
			{ID: id + "_rxn", ConsequenceID: consequence, AfterEffects: effects},
		},
	}
}

// Hidden is an option whose visibility script is false
func Hidden(id, consequence string) storyworld.Option {
	opt := Choice(id, consequence)
	opt.VisibilityScript = script.New(script.False())
	return opt
}

// Nudge is an effect moving character.property by delta
func Nudge(character, property string, delta float64) storyworld.Effect {
	return storyworld.Effect{
		EffectType: storyworld.BoundedNumberEffect,
		Set:        script.New(script.Prop(character, property)),
		To:         script.New(script.NudgeBy(character, property, delta)),
	}
}

// Crossroads is a two-choice world: a bold or timid opening decides which
// of two gated endings the episode reaches, with even odds.
func Crossroads() *storyworld.Storyworld {
	return &storyworld.Storyworld{
		Characters: []storyworld.Character{{ID: "hero", Name: "Ada"}},
		Spools: []storyworld.Spool{
			{ID: "spool_main", Name: "Main", StartsActive: true, EncounterIDs: []string{"start", "crossroads"}},
			{ID: "spool_late", Name: "Age 14", CreationIndex: 1, EncounterIDs: []string{"ending_brave", "ending_meek"}},
		},
		Encounters: []storyworld.Encounter{
			Step("start",
				Choice("bold", "crossroads", Nudge("hero", "Courage", 0.5)),
				Choice("timid", "crossroads", Nudge("hero", "Courage", -0.5)),
			),
			Step("crossroads", storyworld.Option{
				ID: "proceed",
				Reactions: []storyworld.Reaction{
					{ID: "brave", DesirabilityScript: script.New(script.Prop("hero", "Courage")), ConsequenceID: "ending_brave"},
					{ID: "meek", DesirabilityScript: script.New(&script.PropertyRef{Character: "hero", Property: "Courage", Coefficient: -1}), ConsequenceID: "ending_meek"},
				},
			}),
			Terminal("ending_brave", script.AtLeast("hero", "Courage", 0.3)),
			Terminal("ending_meek", script.AtMost("hero", "Courage", -0.3)),
		},
	}
}

// Spread is a world whose start encounter offers one option per ending,
// so each of the given endings is reached with equal odds. Endings listed
// in gated get an acceptability gate of hero.Luck >= threshold, which no
// episode satisfies when threshold > 0.
func Spread(endings []string, gated map[string]float64) *storyworld.Storyworld {
	start := storyworld.Encounter{ID: "start"}
	w := &storyworld.Storyworld{Characters: []storyworld.Character{{ID: "hero"}}}
	var terminals []storyworld.Encounter
	for _, id := range endings {
		start.Options = append(start.Options, Choice("to_"+id, id))
		var gate script.Node
		if th, ok := gated[id]; ok {
			gate = script.AtLeast("hero", "Luck", th)
		}
		terminals = append(terminals, Terminal(id, gate))
	}
	w.Encounters = append([]storyworld.Encounter{start}, terminals...)
	return w
}
