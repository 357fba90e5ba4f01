package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"coursekit/internal/logging"
	"coursekit/internal/media"
	"coursekit/internal/mediaid"
	"coursekit/internal/mediastore"
)

// Labeler reads and rewrites the page recorded alongside a payload.
type Labeler interface {
	List(ctx context.Context) ([]string, error)
	Stat(ctx context.Context, id string) (mediastore.Meta, error)
	Relabel(ctx context.Context, id string, page media.PageRef) error
}

// PageFix describes a payload whose recorded page was corrected.
type PageFix struct {
	ID   string
	From media.PageRef
	To   media.PageRef
}

// RepairPageRefs derives the page of every positional payload (audio-N,
// caption-N) from its id and rewrites stored page labels that disagree.
// Payloads without a positional id are left alone.
func RepairPageRefs(ctx context.Context, store Labeler, logger *slog.Logger) ([]PageFix, error) {
	logger = logging.NewComponentLogger(logger, "reconcile")
	ids, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	var fixes []PageFix
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return fixes, err
		}
		page, _, ok := mediaid.PageForID(id)
		if !ok {
			continue
		}
		meta, err := store.Stat(ctx, id)
		if err != nil {
			return fixes, fmt.Errorf("repair %s: %w", id, err)
		}
		if meta.Page == page {
			continue
		}
		if err := store.Relabel(ctx, id, page); err != nil {
			return fixes, fmt.Errorf("repair %s: %w", id, err)
		}
		fixes = append(fixes, PageFix{ID: id, From: meta.Page, To: page})
		logger.InfoContext(ctx, "media page label repaired",
			logging.MediaID(id),
			logging.String("from", meta.Page.String()),
			logging.String("to", page.String()),
		)
	}
	return fixes, nil
}
