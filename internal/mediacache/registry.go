package mediacache

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"

	"coursekit/internal/media"
)

// Handle is a transient, process-scoped reference to one generation of an
// asset's bytes. Remote videos get a handle whose URL is the remote address.
type Handle struct {
	URL        string
	ID         string
	Generation uint64
	Remote     bool
}

type opener func(ctx context.Context) (io.ReadCloser, error)

type target struct {
	id   string
	gen  uint64
	open opener
}

// Registry issues handle URLs and resolves them until they are revoked.
type Registry struct {
	mu      sync.Mutex
	scheme  string
	targets map[string]target
}

// NewRegistry returns a registry that mints URLs with the given scheme.
func NewRegistry(scheme string) *Registry {
	scheme = strings.TrimSpace(scheme)
	if scheme == "" {
		scheme = "blob"
	}
	return &Registry{scheme: scheme, targets: make(map[string]target)}
}

func (r *Registry) issue(project, id string, gen uint64, open opener) *Handle {
	url := fmt.Sprintf("%s:coursekit/%s/%s", r.scheme, project, uuid.NewString())
	r.mu.Lock()
	r.targets[url] = target{id: id, gen: gen, open: open}
	r.mu.Unlock()
	return &Handle{URL: url, ID: id, Generation: gen}
}

// Revoke releases url. It reports whether the URL was live.
func (r *Registry) Revoke(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.targets[url]; !ok {
		return false
	}
	delete(r.targets, url)
	return true
}

// Alive reports whether url still resolves.
func (r *Registry) Alive(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.targets[url]
	return ok
}

// Live returns the number of unrevoked handles.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.targets)
}

// Resolve opens the bytes behind url. Revoked or unknown URLs report media.ErrNotFound.
func (r *Registry) Resolve(ctx context.Context, url string) (io.ReadCloser, error) {
	r.mu.Lock()
	t, ok := r.targets[url]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("resolve %s: %w", url, media.ErrNotFound)
	}
	return t.open(ctx)
}
