package storyworld

// Each document type decodes through an alias so unknown fields land in
// Extra and are written back on save.

func (w *Storyworld) UnmarshalJSON(data []byte) error {
	type alias Storyworld
	var a alias
	extra, err := decodeWithExtra(data, &a)
	if err != nil {
		return err
	}
	*w = Storyworld(a)
	w.Extra = extra
	return nil
}

func (w Storyworld) MarshalJSON() ([]byte, error) {
	type alias Storyworld
	a := alias(w)
	if a.Characters == nil {
		a.Characters = []Character{}
	}
	if a.AuthoredProperties == nil {
		a.AuthoredProperties = []AuthoredProperty{}
	}
	if a.Spools == nil {
		a.Spools = []Spool{}
	}
	if a.Encounters == nil {
		a.Encounters = []Encounter{}
	}
	return encodeWithExtra(a, w.Extra)
}

func (c *Character) UnmarshalJSON(data []byte) error {
	type alias Character
	var a alias
	extra, err := decodeWithExtra(data, &a)
	if err != nil {
		return err
	}
	*c = Character(a)
	c.Extra = extra
	return nil
}

func (c Character) MarshalJSON() ([]byte, error) {
	type alias Character
	return encodeWithExtra(alias(c), c.Extra)
}

func (p *AuthoredProperty) UnmarshalJSON(data []byte) error {
	type alias AuthoredProperty
	var a alias
	extra, err := decodeWithExtra(data, &a)
	if err != nil {
		return err
	}
	*p = AuthoredProperty(a)
	p.Extra = extra
	return nil
}

func (p AuthoredProperty) MarshalJSON() ([]byte, error) {
	type alias AuthoredProperty
	return encodeWithExtra(alias(p), p.Extra)
}

func (s *Spool) UnmarshalJSON(data []byte) error {
	type alias Spool
	var a alias
	extra, err := decodeWithExtra(data, &a)
	if err != nil {
		return err
	}
	*s = Spool(a)
	s.Extra = extra
	return nil
}

func (s Spool) MarshalJSON() ([]byte, error) {
	type alias Spool
	a := alias(s)
	if a.EncounterIDs == nil {
		a.EncounterIDs = []string{}
	}
	return encodeWithExtra(a, s.Extra)
}

func (e *Encounter) UnmarshalJSON(data []byte) error {
	type alias Encounter
	var a alias
	extra, err := decodeWithExtra(data, &a)
	if err != nil {
		return err
	}
	*e = Encounter(a)
	e.Extra = extra
	return nil
}

func (e Encounter) MarshalJSON() ([]byte, error) {
	type alias Encounter
	a := alias(e)
	if a.Options == nil {
		a.Options = []Option{}
	}
	return encodeWithExtra(a, e.Extra)
}

func (o *Option) UnmarshalJSON(data []byte) error {
	type alias Option
	var a alias
	extra, err := decodeWithExtra(data, &a)
	if err != nil {
		return err
	}
	*o = Option(a)
	o.Extra = extra
	return nil
}

func (o Option) MarshalJSON() ([]byte, error) {
	type alias Option
	a := alias(o)
	if a.Reactions == nil {
		a.Reactions = []Reaction{}
	}
	return encodeWithExtra(a, o.Extra)
}

func (r *Reaction) UnmarshalJSON(data []byte) error {
	type alias Reaction
	var a alias
	extra, err := decodeWithExtra(data, &a)
	if err != nil {
		return err
	}
	*r = Reaction(a)
	r.Extra = extra
	return nil
}

func (r Reaction) MarshalJSON() ([]byte, error) {
	type alias Reaction
	a := alias(r)
	if a.AfterEffects == nil {
		a.AfterEffects = []Effect{}
	}
	return encodeWithExtra(a, r.Extra)
}

func (e *Effect) UnmarshalJSON(data []byte) error {
	type alias Effect
	var a alias
	extra, err := decodeWithExtra(data, &a)
	if err != nil {
		return err
	}
	*e = Effect(a)
	e.Extra = extra
	return nil
}

func (e Effect) MarshalJSON() ([]byte, error) {
	type alias Effect
	return encodeWithExtra(alias(e), e.Extra)
}
