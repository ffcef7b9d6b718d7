// Package state holds the per-episode character state and applies reaction
// effects to it.
package state

import (
	"fmt"
	"sort"

	"github.com/jwebster45206/storyworld-balancer/pkg/script"
)

// Key addresses one bounded number property of one character
type Key struct {
	Character string `json:"character"`
	Property  string `json:"property"`
}

func (k Key) String() string {
	return k.Character + "." + k.Property
}

// Entry is one key with its value
type Entry struct {
	Key
	Value float64 `json:"value"`
}

// CharacterState maps (character, property) to a value in [-1, 1]. Absent
// keys read 0. A CharacterState is owned by one episode at a time.
type CharacterState struct {
	values map[Key]float64
}

// New returns an empty state
func New() *CharacterState {
	return &CharacterState{values: make(map[Key]float64)}
}

var _ script.StateReader = (*CharacterState)(nil)

// Get returns the value of character.property, 0 when unset
func (s *CharacterState) Get(character, property string) float64 {
	return s.values[Key{Character: character, Property: property}]
}

// Set stores v clamped into [-1, 1]
func (s *CharacterState) Set(character, property string, v float64) {
	s.values[Key{Character: character, Property: property}] = script.Clamp(v)
}

// Len is the number of keys written
func (s *CharacterState) Len() int {
	return len(s.values)
}

// Entries returns every written key in sorted order
func (s *CharacterState) Entries() []Entry {
	out := make([]Entry, 0, len(s.values))
	for k, v := range s.values {
		out = append(out, Entry{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return Less(out[i].Key, out[j].Key)
	})
	return out
}

// Less orders keys by character then property
func Less(a, b Key) bool {
	if a.Character != b.Character {
		return a.Character < b.Character
	}
	return a.Property < b.Property
}

func (s *CharacterState) String() string {
	return fmt.Sprintf("%v", s.Entries())
}
