// Package storyworld holds the SweepWeave storyworld document model: the
// characters, spools and encounter graph the balancer simulates and tunes.
package storyworld

import (
	"errors"
	"sort"

	"github.com/jwebster45206/storyworld-balancer/pkg/script"
)

// BoundedNumberEffect is the only effect type the simulator applies
const BoundedNumberEffect = "Bounded Number Effect"

// ErrMissingStartEncounter is returned when a document has no encounter to
// start an episode from.
var ErrMissingStartEncounter = errors.New("storyworld has no start encounter")

// Storyworld is the top-level document
type Storyworld struct {
	Characters         []Character        `json:"characters"`
	AuthoredProperties []AuthoredProperty `json:"authored_properties"`
	Spools             []Spool            `json:"spools"`
	Encounters         []Encounter        `json:"encounters"`
	Extra              Extra              `json:"-"`
}

type Character struct {
	ID         string             `json:"id"`
	Name       string             `json:"name,omitempty"`
	Properties map[string]float64 `json:"bnumber_properties,omitempty"` // authored starting values, informational
	Extra      Extra              `json:"-"`
}

type AuthoredProperty struct {
	ID           string  `json:"id"`
	PropertyName string  `json:"property_name,omitempty"`
	DefaultValue float64 `json:"default_value"`
	Extra        Extra   `json:"-"`
}

// Spool groups encounters; active spools decide where an episode starts
type Spool struct {
	ID            string   `json:"id"`
	Name          string   `json:"spool_name,omitempty"`
	StartsActive  bool     `json:"starts_active"`
	CreationIndex int      `json:"creation_index"`
	EncounterIDs  []string `json:"encounters"`
	Extra         Extra    `json:"-"`
}

// Encounter is a node of the story graph. An encounter with no options is
// terminal: reaching it ends the episode.
type Encounter struct {
	ID                  string         `json:"id"`
	Title               string         `json:"title,omitempty"`
	AcceptabilityScript *script.Script `json:"acceptability_script,omitempty"` // nil means always acceptable
	DesirabilityScript  *script.Script `json:"desirability_script,omitempty"`  // nil means 0
	EarliestTurn        *int           `json:"earliest_turn,omitempty"`
	LatestTurn          *int           `json:"latest_turn,omitempty"`
	Options             []Option       `json:"options"`
	Extra               Extra          `json:"-"`
}

type Option struct {
	ID               string         `json:"id"`
	VisibilityScript *script.Script `json:"visibility_script,omitempty"` // nil means visible
	Reactions        []Reaction     `json:"reactions"`
	Extra            Extra          `json:"-"`
}

type Reaction struct {
	ID                 string         `json:"id"`
	DesirabilityScript *script.Script `json:"desirability_script,omitempty"`
	ConsequenceID      string         `json:"consequence_id"` // empty ends the episode as a dead end
	AfterEffects       []Effect       `json:"after_effects"`
	Extra              Extra          `json:"-"`
}

// Effect assigns the value of To to the property referenced by Set
type Effect struct {
	EffectType string         `json:"effect_type"`
	Set        *script.Script `json:"Set,omitempty"`
	To         *script.Script `json:"to,omitempty"`
	Extra      Extra          `json:"-"`
}

// IsTerminal reports whether the encounter ends an episode
func (e *Encounter) IsTerminal() bool {
	return len(e.Options) == 0
}

// TurnWindow returns the inclusive turn range in which a terminal
// encounter may be accepted. Defaults are 0 and no upper bound.
func (e *Encounter) TurnWindow() (earliest, latest int) {
	earliest, latest = 0, int(^uint(0)>>1)
	if e.EarliestTurn != nil {
		earliest = *e.EarliestTurn
	}
	if e.LatestTurn != nil {
		latest = *e.LatestTurn
	}
	return earliest, latest
}

// Acceptability returns the acceptability gate, defaulting to true
func (e *Encounter) Acceptability() script.Node {
	if e.AcceptabilityScript == nil || e.AcceptabilityScript.Node == nil {
		return script.True()
	}
	return e.AcceptabilityScript.Node
}

// Desirability returns the encounter desirability, defaulting to 0
func (e *Encounter) Desirability() script.Node {
	if e.DesirabilityScript == nil || e.DesirabilityScript.Node == nil {
		return script.Const(0)
	}
	return e.DesirabilityScript.Node
}

// Visibility returns the option gate, defaulting to true
func (o *Option) Visibility() script.Node {
	if o.VisibilityScript == nil || o.VisibilityScript.Node == nil {
		return script.True()
	}
	return o.VisibilityScript.Node
}

// Desirability returns the reaction desirability, defaulting to 0
func (r *Reaction) Desirability() script.Node {
	if r.DesirabilityScript == nil || r.DesirabilityScript.Node == nil {
		return script.Const(0)
	}
	return r.DesirabilityScript.Node
}

// Target returns the property an effect writes, or nil when Set is not a
// property pointer.
func (e *Effect) Target() *script.PropertyRef {
	if e.Set == nil {
		return nil
	}
	ref, _ := e.Set.Node.(*script.PropertyRef)
	return ref
}

// Value returns the script producing the new value
func (e *Effect) Value() script.Node {
	if e.To == nil {
		return nil
	}
	return e.To.Node
}

// Encounter looks up an encounter by id
func (w *Storyworld) Encounter(id string) (*Encounter, bool) {
	for i := range w.Encounters {
		if w.Encounters[i].ID == id {
			return &w.Encounters[i], true
		}
	}
	return nil, false
}

// Index maps encounter ids to encounters. The first encounter wins when
// ids repeat.
func (w *Storyworld) Index() map[string]*Encounter {
	idx := make(map[string]*Encounter, len(w.Encounters))
	for i := range w.Encounters {
		if _, dup := idx[w.Encounters[i].ID]; !dup {
			idx[w.Encounters[i].ID] = &w.Encounters[i]
		}
	}
	return idx
}

// Terminals returns the ids of terminal encounters in document order
func (w *Storyworld) Terminals() []string {
	var ids []string
	for i := range w.Encounters {
		if w.Encounters[i].IsTerminal() {
			ids = append(ids, w.Encounters[i].ID)
		}
	}
	return ids
}

// StartEncounter resolves where episodes begin: the first encounter of the
// active spool with the lowest creation index, else the first encounter of
// the document.
func (w *Storyworld) StartEncounter() (string, error) {
	var active []Spool
	for _, sp := range w.Spools {
		if sp.StartsActive {
			active = append(active, sp)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].CreationIndex < active[j].CreationIndex
	})
	for _, sp := range active {
		if len(sp.EncounterIDs) > 0 && sp.EncounterIDs[0] != "" {
			return sp.EncounterIDs[0], nil
		}
	}
	if len(w.Encounters) > 0 && w.Encounters[0].ID != "" {
		return w.Encounters[0].ID, nil
	}
	return "", ErrMissingStartEncounter
}

// SpoolMembers returns the ids of encounters listed by the spools matching
// any of the given spool ids or names.
func (w *Storyworld) SpoolMembers(spools []string) map[string]bool {
	want := make(map[string]bool, len(spools))
	for _, s := range spools {
		want[s] = true
	}
	members := make(map[string]bool)
	for _, sp := range w.Spools {
		if !want[sp.ID] && !want[sp.Name] {
			continue
		}
		for _, id := range sp.EncounterIDs {
			members[id] = true
		}
	}
	return members
}
