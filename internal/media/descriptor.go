package media

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Ref is a media reference as it appears in the content graph; the owning
// page is implied by where the reference sits.
type Ref struct {
	ID     string
	Kind   Kind
	Source Source
}

// Descriptor is a Ref bound to its owning page.
type Descriptor struct {
	ID     string
	Kind   Kind
	Page   PageRef
	Source Source
}

// At binds r to page.
func (r Ref) At(page PageRef) Descriptor {
	return Descriptor{ID: r.ID, Kind: r.Kind, Page: page, Source: r.Source}
}

// Ref drops the page binding.
func (d Descriptor) Ref() Ref {
	return Ref{ID: d.ID, Kind: d.Kind, Source: d.Source}
}

// Validate checks the identifier, the kind, and that the source variant matches the kind.
func (r Ref) Validate() error {
	if err := ValidateID(r.ID); err != nil {
		return err
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("media %s: invalid kind", r.ID)
	}
	switch src := r.Source.(type) {
	case nil:
		if !r.Kind.Local() {
			return fmt.Errorf("media %s: %s requires a remote source", r.ID, r.Kind)
		}
	case LocalFile:
		if !r.Kind.Local() {
			return fmt.Errorf("media %s: %s cannot carry a local source", r.ID, r.Kind)
		}
		if err := src.Validate(); err != nil {
			return fmt.Errorf("media %s: %w", r.ID, err)
		}
	case RemoteVideo:
		if r.Kind != KindRemoteVideo {
			return fmt.Errorf("media %s: %s cannot carry a remote source", r.ID, r.Kind)
		}
		if err := src.Validate(); err != nil {
			return fmt.Errorf("media %s: %w", r.ID, err)
		}
	}
	return nil
}

// Validate checks the reference and the page.
func (d Descriptor) Validate() error {
	if err := d.Ref().Validate(); err != nil {
		return err
	}
	if !d.Page.Valid() {
		return fmt.Errorf("media %s: invalid page reference", d.ID)
	}
	return nil
}

// Equal reports whether two references are identical, including source metadata.
func (r Ref) Equal(o Ref) bool {
	return r.ID == o.ID && r.Kind == o.Kind && sourcesEqual(r.Source, o.Source)
}

// Equal reports whether two descriptors are identical.
func (d Descriptor) Equal(o Descriptor) bool {
	return d.Page == o.Page && d.Ref().Equal(o.Ref())
}

// Remote returns the remote video source when d references one.
func (d Descriptor) Remote() (RemoteVideo, bool) {
	rv, ok := d.Source.(RemoteVideo)
	return rv, ok
}

type refJSON struct {
	ID           string `json:"id"`
	Kind         Kind   `json:"kind"`
	MIME         string `json:"mime,omitempty"`
	Size         int64  `json:"size,omitempty"`
	OriginalName string `json:"original_name,omitempty"`
	URL          string `json:"url,omitempty"`
	Title        string `json:"title,omitempty"`
	ClipStart    *int   `json:"clip_start,omitempty"`
	ClipEnd      *int   `json:"clip_end,omitempty"`
}

func (r Ref) MarshalJSON() ([]byte, error) {
	out := refJSON{ID: r.ID, Kind: r.Kind}
	switch src := r.Source.(type) {
	case LocalFile:
		out.MIME = src.MIME
		out.Size = src.Size
		out.OriginalName = src.OriginalName
	case RemoteVideo:
		out.URL = src.URL
		out.Title = src.Title
		out.ClipStart = src.ClipStart
		out.ClipEnd = src.ClipEnd
	}
	return json.Marshal(out)
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	var in refJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	ref := Ref{ID: strings.TrimSpace(in.ID), Kind: in.Kind}
	switch {
	case in.Kind == KindRemoteVideo:
		ref.Source = RemoteVideo{URL: in.URL, Title: in.Title, ClipStart: in.ClipStart, ClipEnd: in.ClipEnd}
	case in.Kind.Local():
		ref.Source = LocalFile{MIME: in.MIME, Size: in.Size, OriginalName: in.OriginalName}
	default:
		return fmt.Errorf("media %s: missing kind", in.ID)
	}
	*r = ref
	return nil
}

// ValidateID rejects identifiers that are empty, too long, or unsafe as file names.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("media id is empty")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("media id %q exceeds %d bytes", id, maxIDLength)
	}
	if id[0] == '.' || id[0] == '-' {
		return fmt.Errorf("media id %q must start with a letter or digit", id)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return fmt.Errorf("media id %q contains %q", id, r)
		}
	}
	return nil
}

const maxIDLength = 128
