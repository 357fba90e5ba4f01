package mediacache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"coursekit/internal/logging"
	"coursekit/internal/media"
	"coursekit/internal/mediaid"
	"coursekit/internal/mediastore"
)

var (
	// ErrNotLoaded reports a query or mutation outside the Loaded state.
	ErrNotLoaded = errors.New("media cache not loaded")
	// ErrLoadInProgress reports a BeginLoad while another load or project is active.
	ErrLoadInProgress = errors.New("media cache already loading or loaded")
	// ErrLoadAborted reports use of a Loader after Reset or a newer load.
	ErrLoadAborted = errors.New("media cache load aborted")
)

// State is the lifecycle state of the cache for its project.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type entry struct {
	desc   media.Descriptor
	gen    uint64
	seq    uint64
	handle *Handle
}

// Cache is the in-memory index of one project's media plus the lifecycle of
// the transient handles derived from it.
type Cache struct {
	mu       sync.Mutex
	store    mediastore.Store
	registry *Registry
	logger   *slog.Logger

	state   State
	project string
	epoch   uint64
	gen     uint64
	seq     uint64
	entries map[string]*entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger routes cache diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logging.NewComponentLogger(logger, "mediacache") }
}

// WithRegistry shares a handle registry between caches.
func WithRegistry(r *Registry) Option {
	return func(c *Cache) { c.registry = r }
}

// New returns an unloaded cache backed by store.
func New(store mediastore.Store, opts ...Option) *Cache {
	c := &Cache{
		store:   store,
		logger:  logging.NewComponentLogger(nil, "mediacache"),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = NewRegistry("blob")
	}
	return c
}

// Registry returns the registry resolving this cache's handles.
func (c *Cache) Registry() *Registry { return c.registry }

// State returns the current state and the project it applies to.
func (c *Cache) State() (State, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.project
}

// Loader inserts descriptors while the cache is Loading. It becomes unusable
// once Reset runs or another load begins.
type Loader struct {
	cache *Cache
	epoch uint64
}

// BeginLoad moves the cache from Unloaded to Loading for projectID.
func (c *Cache) BeginLoad(projectID string) (*Loader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUnloaded {
		return nil, fmt.Errorf("begin load %s (state %s, project %s): %w", projectID, c.state, c.project, ErrLoadInProgress)
	}
	c.epoch++
	c.state = StateLoading
	c.project = projectID
	return &Loader{cache: c, epoch: c.epoch}, nil
}

// Insert adds a descriptor without payload bytes. See Cache.Insert.
func (l *Loader) Insert(ctx context.Context, d media.Descriptor) (bool, error) {
	return l.cache.insert(ctx, l.epoch, StateLoading, d)
}

// Finish moves the cache from Loading to Loaded.
func (l *Loader) Finish() error {
	c := l.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != l.epoch || c.state != StateLoading {
		return ErrLoadAborted
	}
	c.state = StateLoaded
	c.logger.Debug("media cache loaded",
		logging.ProjectID(c.project),
		logging.Int("entries", len(c.entries)),
	)
	return nil
}

// Reset clears the index, revokes every handle, and returns the cache to
// Unloaded in one critical section, whatever the current state.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		c.releaseLocked(e)
	}
	cleared := len(c.entries)
	c.entries = make(map[string]*entry)
	prev := c.state
	project := c.project
	c.state = StateUnloaded
	c.project = ""
	c.epoch++
	c.logger.Debug("media cache reset",
		logging.ProjectID(project),
		logging.String("previous_state", prev.String()),
		logging.Int("entries", cleared),
	)
}

// Insert adds d to the index without touching the store. Inserting a
// descriptor identical to the indexed one is a no-op and reports false.
// Singleton ids that do not match their page are rejected with media.ErrIDMismatch.
func (c *Cache) Insert(ctx context.Context, d media.Descriptor) (bool, error) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	return c.insert(ctx, epoch, StateLoaded, d)
}

func (c *Cache) insert(ctx context.Context, epoch uint64, want State, d media.Descriptor) (bool, error) {
	if err := c.checkDescriptor(ctx, d); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkStateLocked(epoch, want); err != nil {
		return false, err
	}
	if existing, ok := c.entries[d.ID]; ok {
		if existing.desc.Equal(d) {
			return false, nil
		}
		c.releaseLocked(existing)
		c.gen++
		existing.desc = d
		existing.gen = c.gen
		return true, nil
	}
	c.seq++
	c.gen++
	c.entries[d.ID] = &entry{desc: d, gen: c.gen, seq: c.seq}
	return true, nil
}

// Put stores d and, when r is non-nil, streams its payload into the store.
// New bytes start a new data generation: any handle for the previous bytes is
// revoked before the write begins. No handle is created here.
func (c *Cache) Put(ctx context.Context, d media.Descriptor, r io.Reader) error {
	if err := c.checkDescriptor(ctx, d); err != nil {
		return err
	}
	if r != nil && !d.Kind.Local() {
		return fmt.Errorf("put %s: %s has no local payload", d.ID, d.Kind)
	}

	c.mu.Lock()
	if c.state != StateLoaded {
		c.mu.Unlock()
		return ErrNotLoaded
	}
	epoch := c.epoch
	if r == nil {
		c.mu.Unlock()
		_, err := c.insert(ctx, epoch, StateLoaded, d)
		return err
	}
	if existing, ok := c.entries[d.ID]; ok {
		c.releaseLocked(existing)
	}
	c.mu.Unlock()

	meta := mediastore.PutMeta{Kind: d.Kind, Page: d.Page}
	if src, ok := d.Source.(media.LocalFile); ok {
		meta.MIME = src.MIME
		meta.OriginalName = src.OriginalName
	}
	stored, err := c.store.Put(ctx, d.ID, r, meta)
	if err != nil {
		return fmt.Errorf("put %s: %w", d.ID, err)
	}
	src, _ := d.Source.(media.LocalFile)
	src.Size = stored.Size
	d.Source = src

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkStateLocked(epoch, StateLoaded); err != nil {
		return err
	}
	c.gen++
	if existing, ok := c.entries[d.ID]; ok {
		c.releaseLocked(existing)
		existing.desc = d
		existing.gen = c.gen
		return nil
	}
	c.seq++
	c.entries[d.ID] = &entry{desc: d, gen: c.gen, seq: c.seq}
	return nil
}

// Delete drops id from the index and revokes its handle before removing the
// payload from the store, so no handle resolves to deleted content.
func (c *Cache) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.state != StateLoaded {
		c.mu.Unlock()
		return ErrNotLoaded
	}
	e, ok := c.entries[id]
	if ok {
		c.releaseLocked(e)
		delete(c.entries, id)
	}
	c.mu.Unlock()

	if ok && !e.desc.Kind.Local() {
		return nil
	}
	if _, err := c.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// Handle returns the transient handle for id, creating it on first use. The
// same handle is returned until the data changes or is deleted. ok is false
// when id is unknown or its payload is missing.
func (c *Cache) Handle(ctx context.Context, id string) (*Handle, bool, error) {
	c.mu.Lock()
	if c.state != StateLoaded {
		c.mu.Unlock()
		return nil, false, ErrNotLoaded
	}
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return nil, false, nil
	}
	if e.handle != nil {
		h := *e.handle
		c.mu.Unlock()
		return &h, true, nil
	}
	if rv, remote := e.desc.Remote(); remote {
		e.handle = &Handle{URL: rv.URL, ID: id, Generation: e.gen, Remote: true}
		h := *e.handle
		c.mu.Unlock()
		return &h, true, nil
	}
	gen, epoch := e.gen, c.epoch
	c.mu.Unlock()

	has, err := c.store.Has(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !has {
		return nil, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.state != StateLoaded {
		return nil, false, nil
	}
	e, ok = c.entries[id]
	if !ok || e.gen != gen {
		return nil, false, nil
	}
	if e.handle == nil {
		e.handle = c.registry.issue(c.project, id, gen, c.opener(id))
		c.logger.Debug("media handle created", logging.MediaID(id), logging.Uint64("generation", gen))
	}
	h := *e.handle
	return &h, true, nil
}

// Lookup returns the indexed descriptor for id.
func (c *Cache) Lookup(id string) (media.Descriptor, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateLoaded {
		return media.Descriptor{}, false, ErrNotLoaded
	}
	e, ok := c.entries[id]
	if !ok {
		return media.Descriptor{}, false, nil
	}
	return e.desc, true, nil
}

// QueryByPage returns the raw index entries for page in insertion order. The
// result is not checked against the store.
func (c *Cache) QueryByPage(page media.PageRef) ([]media.Descriptor, error) {
	return c.query(func(d media.Descriptor) bool { return d.Page == page })
}

// QueryAll returns every indexed descriptor in insertion order.
func (c *Cache) QueryAll() ([]media.Descriptor, error) {
	return c.query(func(media.Descriptor) bool { return true })
}

func (c *Cache) query(match func(media.Descriptor) bool) ([]media.Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateLoaded {
		return nil, ErrNotLoaded
	}
	hits := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		if match(e.desc) {
			hits = append(hits, e)
		}
	}
	slices.SortFunc(hits, func(a, b *entry) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})
	out := make([]media.Descriptor, len(hits))
	for i, e := range hits {
		out[i] = e.desc
	}
	return out, nil
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	State       State
	Project     string
	Entries     int
	LiveHandles int
}

// Stats reports the current state, entry count, and live handle count.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{State: c.state, Project: c.project, Entries: len(c.entries), LiveHandles: c.registry.Live()}
}

func (c *Cache) checkDescriptor(ctx context.Context, d media.Descriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.Validate(); err != nil {
		return err
	}
	if verdict := mediaid.Validate(d.ID, d.Page, d.Kind); !verdict.Accepted {
		logging.WarnWithContext(c.logger, "media id does not match page position; asset ignored", "media_id_mismatch",
			logging.MediaID(d.ID),
			logging.String("page", d.Page.String()),
			logging.String("expected_id", verdict.Expected),
			logging.String(logging.FieldErrorHint, "re-record the asset on the intended page"),
			logging.String(logging.FieldImpact, "page shows no "+d.Kind.String()),
		)
		return fmt.Errorf("%s on %s (expected %s): %w", d.ID, d.Page, verdict.Expected, media.ErrIDMismatch)
	}
	return nil
}

func (c *Cache) checkStateLocked(epoch uint64, want State) error {
	if c.epoch != epoch {
		return ErrLoadAborted
	}
	if c.state != want {
		if want == StateLoading {
			return ErrLoadAborted
		}
		return ErrNotLoaded
	}
	return nil
}

func (c *Cache) releaseLocked(e *entry) {
	if e.handle == nil {
		return
	}
	if !e.handle.Remote {
		c.registry.Revoke(e.handle.URL)
	}
	e.handle = nil
}

func (c *Cache) opener(id string) opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		rc, _, err := c.store.Open(ctx, id)
		return rc, err
	}
}
