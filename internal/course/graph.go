package course

import (
	"fmt"
	"slices"

	"coursekit/internal/media"
)

// Page is one page of the course with its narration and media references.
type Page struct {
	Title     string      `json:"title"`
	Narration string      `json:"narration,omitempty"`
	Media     []media.Ref `json:"media,omitempty"`
}

// Graph is the declarative content of a course: a welcome page, a learning
// objectives page, and an ordered list of topics.
type Graph struct {
	Welcome    Page   `json:"welcome"`
	Objectives Page   `json:"objectives"`
	Topics     []Page `json:"topics"`
}

// Page returns the page addressed by ref.
func (g *Graph) Page(ref media.PageRef) (*Page, bool) {
	if !ref.Valid() {
		return nil, false
	}
	if n, ok := ref.IsTopic(); ok {
		if n >= len(g.Topics) {
			return nil, false
		}
		return &g.Topics[n], true
	}
	if ref == media.Welcome() {
		return &g.Welcome, true
	}
	return &g.Objectives, true
}

// PageCount returns the number of pages including welcome and objectives.
func (g *Graph) PageCount() int { return len(g.Topics) + 2 }

// Walk visits every page in document order. Returning an error stops the walk.
func (g *Graph) Walk(fn func(ref media.PageRef, page *Page) error) error {
	for pos := 0; pos < g.PageCount(); pos++ {
		ref, _ := media.PageAt(pos)
		page, _ := g.Page(ref)
		if err := fn(ref, page); err != nil {
			return err
		}
	}
	return nil
}

// Descriptors returns every media reference bound to its page, in document order.
func (g *Graph) Descriptors() []media.Descriptor {
	var out []media.Descriptor
	_ = g.Walk(func(ref media.PageRef, page *Page) error {
		for _, r := range page.Media {
			out = append(out, r.At(ref))
		}
		return nil
	})
	return out
}

// Find returns the descriptor for id.
func (g *Graph) Find(id string) (media.Descriptor, bool) {
	for _, d := range g.Descriptors() {
		if d.ID == id {
			return d, true
		}
	}
	return media.Descriptor{}, false
}

// IDs returns every referenced media id in document order.
func (g *Graph) IDs() []string {
	descs := g.Descriptors()
	ids := make([]string, len(descs))
	for i, d := range descs {
		ids[i] = d.ID
	}
	return ids
}

// SetRef places r on page, replacing any reference with the same id anywhere
// in the graph and, for singleton kinds, any other reference of the same kind
// on that page.
func (g *Graph) SetRef(page media.PageRef, r media.Ref) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, ok := g.Page(page); !ok {
		return fmt.Errorf("set media %s: page %s does not exist", r.ID, page)
	}
	g.RemoveRef(r.ID)
	target, _ := g.Page(page)
	if r.Kind.Singleton() {
		target.Media = slices.DeleteFunc(target.Media, func(existing media.Ref) bool {
			return existing.Kind == r.Kind
		})
	}
	target.Media = append(target.Media, r)
	return nil
}

// RemoveRef drops every reference with id and reports the first page it was on.
func (g *Graph) RemoveRef(id string) (media.Descriptor, bool) {
	var (
		removed media.Descriptor
		found   bool
	)
	_ = g.Walk(func(ref media.PageRef, page *Page) error {
		page.Media = slices.DeleteFunc(page.Media, func(r media.Ref) bool {
			if r.ID != id {
				return false
			}
			if !found {
				removed, found = r.At(ref), true
			}
			return true
		})
		return nil
	})
	return removed, found
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() Graph {
	out := Graph{
		Welcome:    g.Welcome.clone(),
		Objectives: g.Objectives.clone(),
		Topics:     make([]Page, len(g.Topics)),
	}
	for i := range g.Topics {
		out.Topics[i] = g.Topics[i].clone()
	}
	return out
}

func (p Page) clone() Page {
	p.Media = slices.Clone(p.Media)
	return p
}

// Validate checks every reference and rejects an id shared by references
// of different kinds or by two non-singleton references. Audio and caption
// ids repeated across or within pages are left for Align and the cache to
// neutralize.
func (g *Graph) Validate() error {
	seen := make(map[string]media.Descriptor)
	return g.Walk(func(ref media.PageRef, page *Page) error {
		for _, r := range page.Media {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("%s: %w", ref, err)
			}
			prev, dup := seen[r.ID]
			if !dup {
				seen[r.ID] = r.At(ref)
				continue
			}
			if prev.Kind != r.Kind || !r.Kind.Singleton() {
				return fmt.Errorf("media id %s referenced on both %s and %s", r.ID, prev.Page, ref)
			}
		}
		return nil
	})
}
