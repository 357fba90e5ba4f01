package course

import (
	"slices"

	"coursekit/internal/media"
	"coursekit/internal/mediaid"
)

// Correction records one change made by Align.
type Correction struct {
	Page    media.PageRef
	Kind    media.Kind
	Removed string
	Added   string
}

var singletonKinds = []media.Kind{media.KindAudio, media.KindCaption}

// Align drops singleton references whose id does not match their page
// position; of repeated ids only the positional owner keeps its reference.
// Then, for each page left without one, it restores the positional reference
// when has reports a stored payload for it that no page referenced before the
// drop. A payload the graph placed elsewhere is never moved onto another page.
func (g *Graph) Align(has func(id string) bool) []Correction {
	var fixes []Correction
	referenced := make(map[string]bool)
	for _, id := range g.IDs() {
		referenced[id] = true
	}
	_ = g.Walk(func(ref media.PageRef, page *Page) error {
		for _, kind := range singletonKinds {
			expected, _ := mediaid.ExpectedID(ref, kind)
			kept := false
			page.Media = slices.DeleteFunc(page.Media, func(r media.Ref) bool {
				if r.Kind != kind {
					return false
				}
				if r.ID == expected && !kept {
					kept = true
					return false
				}
				fixes = append(fixes, Correction{Page: ref, Kind: kind, Removed: r.ID})
				return true
			})
		}
		return nil
	})
	if has == nil {
		return fixes
	}
	_ = g.Walk(func(ref media.PageRef, page *Page) error {
		for _, kind := range singletonKinds {
			if slices.ContainsFunc(page.Media, func(r media.Ref) bool { return r.Kind == kind }) {
				continue
			}
			expected, _ := mediaid.ExpectedID(ref, kind)
			if referenced[expected] || !has(expected) {
				continue
			}
			page.Media = append(page.Media, media.Ref{ID: expected, Kind: kind, Source: media.LocalFile{}})
			fixes = append(fixes, Correction{Page: ref, Kind: kind, Added: expected})
		}
		return nil
	})
	return fixes
}
