package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/gofrs/flock"

	"coursekit/internal/config"
	"coursekit/internal/logging"
	"coursekit/internal/media"
	"coursekit/internal/mediacache"
	"coursekit/internal/mediaid"
	"coursekit/internal/mediastore"
	"coursekit/internal/project"
	"coursekit/internal/reconcile"
)

// ErrClosed is returned by every method after Close.
var ErrClosed = errors.New("studio: session closed")

// Upload describes a local file being added to a page.
type Upload struct {
	MIME         string
	OriginalName string
}

// Session is an open project.
type Session struct {
	mu         sync.Mutex
	projects   *project.Manager
	record     *project.Record
	store      *mediastore.FileStore
	cache      *mediacache.Cache
	reconciler *reconcile.Reconciler
	lock       *flock.Flock
	logger     *slog.Logger
	closed     bool
}

// Open locks project id, loads it and populates the media cache from its
// content graph. Misaligned singleton references are reported in the
// returned result and left out of the cache.
func Open(ctx context.Context, projects *project.Manager, cfg *config.Config, id string, logger *slog.Logger) (*Session, reconcile.PopulateResult, error) {
	logger = logging.NewComponentLogger(logger, "studio")
	ctx = logging.WithProjectID(ctx, id)

	lock, err := projects.Lock(id)
	if err != nil {
		return nil, reconcile.PopulateResult{}, err
	}
	s, result, err := open(ctx, projects, cfg, id, lock, logger)
	if err != nil {
		_ = lock.Unlock()
		return nil, reconcile.PopulateResult{}, err
	}
	return s, result, nil
}

func open(ctx context.Context, projects *project.Manager, cfg *config.Config, id string, lock *flock.Flock, logger *slog.Logger) (*Session, reconcile.PopulateResult, error) {
	rec, err := projects.Load(ctx, id)
	if err != nil {
		return nil, reconcile.PopulateResult{}, err
	}
	store, err := projects.MediaStore(id)
	if err != nil {
		return nil, reconcile.PopulateResult{}, err
	}
	cache := mediacache.New(store,
		mediacache.WithLogger(logger),
		mediacache.WithRegistry(mediacache.NewRegistry(cfg.Cache.HandleScheme)),
	)
	s := &Session{
		projects:   projects,
		record:     rec,
		store:      store,
		cache:      cache,
		reconciler: reconcile.New(store, cache, logger),
		lock:       lock,
		logger:     logger,
	}
	result, err := s.reconciler.Load(ctx, id, &rec.Graph)
	if err != nil {
		return nil, reconcile.PopulateResult{}, err
	}
	for _, m := range result.Mismatches {
		logging.WarnWithContext(logging.WithContext(ctx, logger), "media reference left out of session", "media_id_mismatch",
			logging.String("page", m.Page.String()),
			logging.String("found", m.Found),
			logging.String("expected", m.Expected),
			logging.String(logging.FieldErrorHint, "run 'coursekit media repair' or re-upload the asset"),
		)
	}
	return s, result, nil
}

// ProjectID returns the id of the open project.
func (s *Session) ProjectID() string { return s.record.ID }

// Record returns a copy of the current project record.
func (s *Session) Record() project.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := *s.record
	rec.Graph = s.record.Graph.Clone()
	return rec
}

// Cache exposes the session's media cache.
func (s *Session) Cache() *mediacache.Cache { return s.cache }

// StoreMedia streams r into the store as a new asset on page and saves the
// graph. Audio and captions take the positional id for page and replace any
// existing one; other kinds get the next free id.
func (s *Session) StoreMedia(ctx context.Context, page media.PageRef, kind media.Kind, r io.Reader, up Upload) (media.Descriptor, error) {
	if !kind.Local() {
		return media.Descriptor{}, fmt.Errorf("store media: %s has no local payload", kind)
	}
	if r == nil {
		return media.Descriptor{}, errors.New("store media: payload reader is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return media.Descriptor{}, ErrClosed
	}
	if _, ok := s.record.Graph.Page(page); !ok {
		return media.Descriptor{}, fmt.Errorf("store media: page %s does not exist", page)
	}

	id, err := s.allocate(ctx, page, kind)
	if err != nil {
		return media.Descriptor{}, err
	}
	d := media.Descriptor{ID: id, Kind: kind, Page: page, Source: media.LocalFile{MIME: up.MIME, OriginalName: up.OriginalName}}
	if err := s.cache.Put(ctx, d, r); err != nil {
		return media.Descriptor{}, err
	}
	if stored, ok, _ := s.cache.Lookup(id); ok {
		d = stored
	}
	if err := s.bind(ctx, d); err != nil {
		return media.Descriptor{}, err
	}
	s.logger.InfoContext(ctx, "media stored",
		logging.ProjectID(s.record.ID),
		logging.MediaID(id),
		logging.String("page", page.String()),
		logging.String(logging.FieldEventType, "media_stored"),
	)
	return d, nil
}

// DeclareRemoteVideo adds a remote video reference to page. Nothing is
// stored; its handle resolves to the remote URL.
func (s *Session) DeclareRemoteVideo(ctx context.Context, page media.PageRef, video media.RemoteVideo) (media.Descriptor, error) {
	if err := video.Validate(); err != nil {
		return media.Descriptor{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return media.Descriptor{}, ErrClosed
	}
	if _, ok := s.record.Graph.Page(page); !ok {
		return media.Descriptor{}, fmt.Errorf("declare video: page %s does not exist", page)
	}
	id, err := s.allocate(ctx, page, media.KindRemoteVideo)
	if err != nil {
		return media.Descriptor{}, err
	}
	d := media.Descriptor{ID: id, Kind: media.KindRemoteVideo, Page: page, Source: video}
	if err := s.cache.Put(ctx, d, nil); err != nil {
		return media.Descriptor{}, err
	}
	if err := s.bind(ctx, d); err != nil {
		return media.Descriptor{}, err
	}
	return d, nil
}

// DeleteMedia removes id from the cache, the store and the graph. Deleting
// an unknown id is not an error. When the store delete fails the graph keeps
// the reference and the cache indexes it again.
func (s *Session) DeleteMedia(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.cache.Delete(ctx, id); err != nil {
		if d, ok := s.record.Graph.Find(id); ok {
			if _, insErr := s.cache.Insert(context.WithoutCancel(ctx), d); insErr != nil && !errors.Is(insErr, media.ErrIDMismatch) {
				logging.WarnWithContext(logging.WithContext(ctx, s.logger), "media reference not re-indexed after failed delete", "media_reindex_failed",
					logging.MediaID(id),
					logging.Error(insErr),
				)
			}
		}
		return err
	}
	if _, inGraph := s.record.Graph.RemoveRef(id); !inGraph {
		return nil
	}
	if err := s.projects.Save(ctx, s.record); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "media deleted",
		logging.ProjectID(s.record.ID),
		logging.MediaID(id),
		logging.String(logging.FieldEventType, "media_deleted"),
	)
	return nil
}

// PageMedia returns the media of page whose payloads exist, with the
// references that were dropped because their payload is gone.
func (s *Session) PageMedia(ctx context.Context, page media.PageRef) ([]media.Descriptor, []reconcile.Drop, error) {
	if s.isClosed() {
		return nil, nil, ErrClosed
	}
	return s.reconciler.PageMedia(ctx, page)
}

// Handle returns the transient handle for id.
func (s *Session) Handle(ctx context.Context, id string) (*mediacache.Handle, bool, error) {
	if s.isClosed() {
		return nil, false, ErrClosed
	}
	return s.cache.Handle(ctx, id)
}

// OpenHandle resolves a handle URL to its payload.
func (s *Session) OpenHandle(ctx context.Context, url string) (io.ReadCloser, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	return s.cache.Registry().Resolve(ctx, url)
}

// ClearProject drops all cached state and repopulates it from the saved
// graph. Handles issued before the call stop resolving.
func (s *Session) ClearProject(ctx context.Context) (reconcile.PopulateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return reconcile.PopulateResult{}, ErrClosed
	}
	s.cache.Reset()
	return s.reconciler.Load(ctx, s.record.ID, &s.record.Graph)
}

// Close resets the cache and releases the project lock.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cache.Reset()
	return s.lock.Unlock()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) allocate(ctx context.Context, page media.PageRef, kind media.Kind) (string, error) {
	if kind.Singleton() {
		id, err := mediaid.ExpectedID(page, kind)
		if err != nil {
			return "", err
		}
		return id, nil
	}
	existing, err := s.store.List(ctx)
	if err != nil {
		return "", err
	}
	existing = append(existing, s.record.Graph.IDs()...)
	slices.Sort(existing)
	return mediaid.NextID(kind, slices.Compact(existing)), nil
}

// bind records d in the graph and saves the project. A singleton that
// replaces a differently named one on the same page drops the old payload.
func (s *Session) bind(ctx context.Context, d media.Descriptor) error {
	var replaced []string
	if page, ok := s.record.Graph.Page(d.Page); ok && d.Kind.Singleton() {
		for _, r := range page.Media {
			if r.Kind == d.Kind && r.ID != d.ID {
				replaced = append(replaced, r.ID)
			}
		}
	}
	if err := s.record.Graph.SetRef(d.Page, d.Ref()); err != nil {
		return err
	}
	for _, id := range replaced {
		if err := s.cache.Delete(ctx, id); err != nil && !errors.Is(err, media.ErrNotFound) {
			return err
		}
	}
	return s.projects.Save(ctx, s.record)
}
