package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"coursekit/internal/course"
	"coursekit/internal/logging"
	"coursekit/internal/media"
	"coursekit/internal/mediacache"
	"coursekit/internal/mediaid"
)

// Prober answers whether a payload exists without reading it.
type Prober interface {
	Has(ctx context.Context, id string) (bool, error)
}

// Inserter receives descriptors during population. Both *mediacache.Cache
// and *mediacache.Loader satisfy it.
type Inserter interface {
	Insert(ctx context.Context, d media.Descriptor) (bool, error)
}

// Drop reports a descriptor removed by Validate.
type Drop struct {
	ID     string
	Page   media.PageRef
	Reason string
}

// PopulateResult summarizes a population pass.
type PopulateResult struct {
	Inserted   int
	Unchanged  int
	Mismatches []mediaid.Mismatch
}

// Reconciler decides whether cached references are still backed by stored payloads.
type Reconciler struct {
	store  Prober
	cache  *mediacache.Cache
	logger *slog.Logger
}

// New returns a reconciler checking cache entries against store.
func New(store Prober, cache *mediacache.Cache, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		cache:  cache,
		logger: logging.NewComponentLogger(logger, "reconcile"),
	}
}

// Validate returns the descriptors whose payload exists. Local kinds without
// a payload are dropped and reported; remote videos pass through unchecked.
// Probe failures are returned, not treated as drops.
func (r *Reconciler) Validate(ctx context.Context, descs []media.Descriptor) ([]media.Descriptor, []Drop, error) {
	kept := make([]media.Descriptor, 0, len(descs))
	var drops []Drop
	for _, d := range descs {
		if !d.Kind.Local() {
			kept = append(kept, d)
			continue
		}
		has, err := r.store.Has(ctx, d.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("validate %s: %w", d.ID, err)
		}
		if has {
			kept = append(kept, d)
			continue
		}
		drop := Drop{ID: d.ID, Page: d.Page, Reason: "payload missing from media store"}
		drops = append(drops, drop)
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "dropping media reference without payload", "media_orphan_dropped",
			logging.MediaID(d.ID),
			logging.String("page", d.Page.String()),
			logging.String("kind", d.Kind.String()),
			logging.String("reason", drop.Reason),
			logging.String(logging.FieldErrorHint, "re-upload the asset or remove the reference"),
			logging.String(logging.FieldImpact, "asset hidden from the page"),
		)
	}
	return kept, drops, nil
}

// PageMedia is the consumer-safe page query: the raw cache entries for page,
// filtered through Validate.
func (r *Reconciler) PageMedia(ctx context.Context, page media.PageRef) ([]media.Descriptor, []Drop, error) {
	raw, err := r.cache.QueryByPage(page)
	if err != nil {
		return nil, nil, err
	}
	return r.Validate(ctx, raw)
}

// PopulateFromContentGraph inserts a descriptor for every reference in graph
// into the loaded cache. Repeating the call with the same graph leaves the
// index unchanged.
func (r *Reconciler) PopulateFromContentGraph(ctx context.Context, graph *course.Graph) (PopulateResult, error) {
	return r.populate(ctx, r.cache, graph)
}

// Load runs a full project open: BeginLoad, population, Finish. A failed or
// cancelled population leaves the cache Unloaded.
func (r *Reconciler) Load(ctx context.Context, projectID string, graph *course.Graph) (PopulateResult, error) {
	loader, err := r.cache.BeginLoad(projectID)
	if err != nil {
		return PopulateResult{}, err
	}
	result, err := r.populate(ctx, loader, graph)
	if err == nil {
		err = loader.Finish()
	}
	if err != nil {
		r.cache.Reset()
		return PopulateResult{}, err
	}
	r.logger.InfoContext(ctx, "project media loaded",
		logging.ProjectID(projectID),
		logging.Int("inserted", result.Inserted),
		logging.Int("mismatches", len(result.Mismatches)),
	)
	return result, nil
}

func (r *Reconciler) populate(ctx context.Context, target Inserter, graph *course.Graph) (PopulateResult, error) {
	var result PopulateResult
	if graph == nil {
		return result, nil
	}
	for i, d := range graph.Descriptors() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		inserted, err := target.Insert(ctx, d)
		switch {
		case errors.Is(err, media.ErrIDMismatch):
			verdict := mediaid.Validate(d.ID, d.Page, d.Kind)
			result.Mismatches = append(result.Mismatches, mediaid.Mismatch{
				Index:    i,
				Page:     d.Page,
				Kind:     d.Kind,
				Found:    d.ID,
				Expected: verdict.Expected,
			})
		case err != nil:
			return result, fmt.Errorf("populate %s: %w", d.ID, err)
		case inserted:
			result.Inserted++
		default:
			result.Unchanged++
		}
	}
	return result, nil
}
