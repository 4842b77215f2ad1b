package provider

import (
	"fmt"
	"slices"

	"sourcery/internal/media"
)

// Registry holds the compiled-in providers. It is read-only after NewRegistry.
type Registry struct {
	sourcerers []Sourcerer
	embeds     []Embed
	embedByID  map[string]Embed
}

// NewRegistry sorts providers by descending rank, keeping registration order
// among equal ranks. IDs must be unique across both kinds.
func NewRegistry(sourcerers []Sourcerer, embeds []Embed) (*Registry, error) {
	seen := make(map[string]Kind, len(sourcerers)+len(embeds))
	check := func(id string, kind Kind) error {
		if id == "" {
			return fmt.Errorf("%s with empty id", kind)
		}
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("duplicate provider id %q (%s and %s)", id, prev, kind)
		}
		seen[id] = kind
		return nil
	}

	for _, s := range sourcerers {
		if err := check(s.ID, KindSourcerer); err != nil {
			return nil, err
		}
		if s.Scrape == nil && !s.Disabled {
			return nil, fmt.Errorf("sourcerer %q has no scrape function", s.ID)
		}
	}
	for _, e := range embeds {
		if err := check(e.ID, KindEmbed); err != nil {
			return nil, err
		}
		if e.Resolve == nil && !e.Disabled {
			return nil, fmt.Errorf("embed %q has no resolve function", e.ID)
		}
	}

	r := &Registry{
		sourcerers: slices.Clone(sourcerers),
		embeds:     slices.Clone(embeds),
		embedByID:  make(map[string]Embed, len(embeds)),
	}
	slices.SortStableFunc(r.sourcerers, func(a, b Sourcerer) int { return b.Rank - a.Rank })
	slices.SortStableFunc(r.embeds, func(a, b Embed) int { return b.Rank - a.Rank })
	for _, e := range r.embeds {
		r.embedByID[e.ID] = e
	}
	return r, nil
}

// Sourcerers returns enabled sourcerers, best rank first.
func (r *Registry) Sourcerers() []Sourcerer {
	out := make([]Sourcerer, 0, len(r.sourcerers))
	for _, s := range r.sourcerers {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

// Embeds returns enabled embeds, best rank first.
func (r *Registry) Embeds() []Embed {
	out := make([]Embed, 0, len(r.embeds))
	for _, e := range r.embeds {
		if !e.Disabled {
			out = append(out, e)
		}
	}
	return out
}

// Embed looks up an enabled embed. Unknown and disabled ids both wrap
// media.ErrNotFound.
func (r *Registry) Embed(id string) (Embed, error) {
	e, ok := r.embedByID[id]
	if !ok {
		return Embed{}, fmt.Errorf("%w: unknown embed %q", media.ErrNotFound, id)
	}
	if e.Disabled {
		return Embed{}, fmt.Errorf("%w: embed %q is disabled", media.ErrNotFound, id)
	}
	return e, nil
}

// Entry is a listing row covering both kinds, disabled ones included.
type Entry struct {
	Kind Kind
	Descriptor
}

// All lists every registered provider, sourcerers first, each in rank order.
func (r *Registry) All() []Entry {
	out := make([]Entry, 0, len(r.sourcerers)+len(r.embeds))
	for _, s := range r.sourcerers {
		out = append(out, Entry{Kind: KindSourcerer, Descriptor: s.Descriptor})
	}
	for _, e := range r.embeds {
		out = append(out, Entry{Kind: KindEmbed, Descriptor: e.Descriptor})
	}
	return out
}
