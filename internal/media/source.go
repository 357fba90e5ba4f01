package media

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Source carries kind-specific metadata. Implementations are LocalFile and
// RemoteVideo; the interface is sealed.
type Source interface {
	isSource()
	Validate() error
}

// LocalFile describes an asset whose payload lives in the media store.
type LocalFile struct {
	MIME         string
	Size         int64
	OriginalName string
}

func (LocalFile) isSource() {}

// Validate checks the size is not negative.
func (s LocalFile) Validate() error {
	if s.Size < 0 {
		return fmt.Errorf("local media size %d is negative", s.Size)
	}
	return nil
}

// RemoteVideo references an externally hosted video with optional clip bounds in seconds.
type RemoteVideo struct {
	URL       string
	Title     string
	ClipStart *int
	ClipEnd   *int
}

func (RemoteVideo) isSource() {}

// Validate checks the URL is absolute and the clip bounds are ordered and non-negative.
func (s RemoteVideo) Validate() error {
	raw := strings.TrimSpace(s.URL)
	if raw == "" {
		return errors.New("remote video url is empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("remote video url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("remote video url %q must use http or https", raw)
	}
	if s.ClipStart != nil && *s.ClipStart < 0 {
		return fmt.Errorf("clip start %d is negative", *s.ClipStart)
	}
	if s.ClipEnd != nil && *s.ClipEnd < 0 {
		return fmt.Errorf("clip end %d is negative", *s.ClipEnd)
	}
	if s.ClipStart != nil && s.ClipEnd != nil && *s.ClipEnd < *s.ClipStart {
		return fmt.Errorf("clip end %d precedes clip start %d", *s.ClipEnd, *s.ClipStart)
	}
	return nil
}

// Seconds returns a pointer to n, for building clip bounds.
func Seconds(n int) *int { return &n }

func sourcesEqual(a, b Source) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case LocalFile:
		y, ok := b.(LocalFile)
		return ok && x == y
	case RemoteVideo:
		y, ok := b.(RemoteVideo)
		return ok && x.URL == y.URL && x.Title == y.Title &&
			intPtrEqual(x.ClipStart, y.ClipStart) && intPtrEqual(x.ClipEnd, y.ClipEnd)
	default:
		return false
	}
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
