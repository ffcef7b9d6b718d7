package storyworld

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jwebster45206/storyworld-balancer/pkg/script"
)

type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warning"
)

const (
	CodeSchema                 = "schema_violation"
	CodeDuplicateID            = "duplicate_id"
	CodeMissingStart           = "missing_start_encounter"
	CodeUnresolvedConsequence  = "unresolved_consequence"
	CodeMissingSpoolEncounter  = "missing_spool_encounter"
	CodeUnknownCharacter       = "unknown_character"
	CodeMalformedScript        = "malformed_script"
	CodeInvalidEffect          = "invalid_effect"
	CodeInvertedTurnWindow     = "inverted_turn_window"
	CodeNoTerminalEncounter    = "no_terminal_encounter"
	CodeOptionWithoutReactions = "option_without_reactions"
)

// Issue is one finding of the consistency check
type Issue struct {
	Severity  Severity `json:"severity"`
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Encounter string   `json:"encounter,omitempty"`
}

func (i Issue) String() string {
	if i.Encounter != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", i.Severity, i.Code, i.Message, i.Encounter)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Code, i.Message)
}

// HasErrors reports whether any issue is an error
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// CheckOptions tunes the consistency check
type CheckOptions struct {
	Strict bool // report legacy value nodes as malformed
}

type checker struct {
	w      *Storyworld
	opts   CheckOptions
	issues []Issue
}

func (c *checker) add(sev Severity, code, encounter, format string, args ...any) {
	c.issues = append(c.issues, Issue{
		Severity:  sev,
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		Encounter: encounter,
	})
}

// Check runs the structural consistency check over a parsed document
func Check(w *Storyworld, opts CheckOptions) []Issue {
	c := &checker{w: w, opts: opts}

	characters := make(map[string]bool, len(w.Characters))
	for _, ch := range w.Characters {
		if characters[ch.ID] {
			c.add(SeverityError, CodeDuplicateID, "", "character id %q is used more than once", ch.ID)
		}
		characters[ch.ID] = true
	}

	encounters := make(map[string]bool, len(w.Encounters))
	for _, enc := range w.Encounters {
		if encounters[enc.ID] {
			c.add(SeverityError, CodeDuplicateID, enc.ID, "encounter id %q is used more than once", enc.ID)
		}
		encounters[enc.ID] = true
	}

	if _, err := w.StartEncounter(); err != nil {
		c.add(SeverityError, CodeMissingStart, "", "%v", err)
	}

	for _, sp := range w.Spools {
		for _, id := range sp.EncounterIDs {
			if !encounters[id] {
				c.add(SeverityWarn, CodeMissingSpoolEncounter, id, "spool %q lists unknown encounter %q", sp.ID, id)
			}
		}
	}

	terminals := 0
	for i := range w.Encounters {
		enc := &w.Encounters[i]
		if enc.IsTerminal() {
			terminals++
			if lo, hi := enc.TurnWindow(); lo > hi {
				c.add(SeverityWarn, CodeInvertedTurnWindow, enc.ID, "earliest_turn %d is after latest_turn %d", lo, hi)
			}
		}
		c.checkScript(enc.ID, "acceptability_script", enc.AcceptabilityScript, characters)
		c.checkScript(enc.ID, "desirability_script", enc.DesirabilityScript, characters)

		for _, opt := range enc.Options {
			c.checkScript(enc.ID, fmt.Sprintf("option %s visibility_script", opt.ID), opt.VisibilityScript, characters)
			if len(opt.Reactions) == 0 {
				c.add(SeverityWarn, CodeOptionWithoutReactions, enc.ID, "option %q has no reactions", opt.ID)
			}
			for _, rxn := range opt.Reactions {
				if rxn.ConsequenceID != "" && !encounters[rxn.ConsequenceID] {
					c.add(SeverityError, CodeUnresolvedConsequence, enc.ID, "reaction %q leads to unknown encounter %q", rxn.ID, rxn.ConsequenceID)
				}
				c.checkScript(enc.ID, fmt.Sprintf("reaction %s desirability_script", rxn.ID), rxn.DesirabilityScript, characters)
				for j := range rxn.AfterEffects {
					c.checkEffect(enc.ID, rxn.ID, &rxn.AfterEffects[j], characters)
				}
			}
		}
	}

	if len(w.Encounters) > 0 && terminals == 0 {
		c.add(SeverityWarn, CodeNoTerminalEncounter, "", "no encounter is terminal; every episode will dead-end or time out")
	}

	return c.issues
}

func (c *checker) checkScript(encounter, field string, s *script.Script, characters map[string]bool) {
	if s == nil {
		return
	}
	for _, reason := range script.Problems(s.Node, c.opts.Strict) {
		c.add(SeverityError, CodeMalformedScript, encounter, "%s: %s", field, reason)
	}
	c.checkCharacters(encounter, field, s.Node, characters)
}

func (c *checker) checkCharacters(encounter, field string, n script.Node, characters map[string]bool) {
	if len(characters) == 0 {
		return
	}
	for _, ref := range script.Properties(n) {
		if !characters[ref.Character] {
			c.add(SeverityWarn, CodeUnknownCharacter, encounter, "%s reads unknown character %q", field, ref.Character)
		}
	}
}

func (c *checker) checkEffect(encounter, reaction string, e *Effect, characters map[string]bool) {
	if e.EffectType != BoundedNumberEffect {
		return
	}
	field := fmt.Sprintf("reaction %s effect", reaction)
	target := e.Target()
	if target == nil {
		c.add(SeverityError, CodeInvalidEffect, encounter, "%s has no bounded number pointer in Set", field)
	} else if len(characters) > 0 && !characters[target.Character] {
		c.add(SeverityWarn, CodeUnknownCharacter, encounter, "%s writes unknown character %q", field, target.Character)
	}
	if e.Value() == nil {
		c.add(SeverityError, CodeInvalidEffect, encounter, "%s has no value script", field)
		return
	}
	c.checkScript(encounter, field, e.To, characters)
}

//go:embed storyworld.schema.json
var schemaSource []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("storyworld.schema.json", bytes.NewReader(schemaSource)); err != nil {
			schemaErr = fmt.Errorf("failed to load storyworld schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("storyworld.schema.json")
	})
	return schema, schemaErr
}

// ValidateSchema checks raw document bytes against the embedded JSON
// schema. Each leaf violation becomes one issue.
func ValidateSchema(data []byte) ([]Issue, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return []Issue{{Severity: SeverityError, Code: CodeSchema, Message: fmt.Sprintf("invalid JSON: %v", err)}}, nil
	}

	err = s.Validate(doc)
	if err == nil {
		return nil, nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return nil, fmt.Errorf("failed to validate storyworld: %w", err)
	}

	var issues []Issue
	for _, leaf := range leaves(verr) {
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		issues = append(issues, Issue{
			Severity: SeverityError,
			Code:     CodeSchema,
			Message:  fmt.Sprintf("%s: %s", loc, leaf.Message),
		})
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return strings.Compare(issues[i].Message, issues[j].Message) < 0
	})
	return issues, nil
}

func leaves(e *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(e.Causes) == 0 {
		return []*jsonschema.ValidationError{e}
	}
	var out []*jsonschema.ValidationError
	for _, c := range e.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}
