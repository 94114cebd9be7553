package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/wondertwin-ai/apiai-git/internal/resource"
)

// Fetcher reads every resource of a kind: one list call, then one call per
// resource for its full document.
type Fetcher struct {
	remote      Remote
	concurrency int
	logger      *slog.Logger
}

// NewFetcher creates a Fetcher. A concurrency above 1 fetches documents in
// parallel, bounded to that many requests in flight.
func NewFetcher(remote Remote, concurrency int, logger *slog.Logger) *Fetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fetcher{remote: remote, concurrency: concurrency, logger: logger}
}

// FetchAll returns a snapshot of every resource of kind. Any failed request
// aborts the whole fetch; no partial snapshot is returned.
func (f *Fetcher) FetchAll(ctx context.Context, kind resource.Kind) (resource.Snapshot, error) {
	summaries, err := f.remote.List(ctx, kind)
	if err != nil {
		return resource.Snapshot{}, fmt.Errorf("listing %s: %w", kind, err)
	}

	ids := make([]string, len(summaries))
	for i, s := range summaries {
		id, _ := s[resource.IDField].(string)
		if id == "" {
			return resource.Snapshot{}, fmt.Errorf("listing %s: summary %d: %w", kind, i, resource.ErrMissingID)
		}
		ids[i] = id
	}

	docs, err := f.fetchDocuments(ctx, kind, ids)
	if err != nil {
		return resource.Snapshot{}, err
	}

	rs := make([]resource.Resource, len(ids))
	for i, id := range ids {
		rs[i] = resource.New(id, docs[i])
	}
	snap, err := resource.NewSnapshot(kind, rs...)
	if err != nil {
		return resource.Snapshot{}, fmt.Errorf("fetching %s: %w", kind, err)
	}

	f.logger.Debug("fetched collection", "kind", kind, "count", snap.Len())
	return snap, nil
}

// fetchDocuments returns documents in the same order as ids.
func (f *Fetcher) fetchDocuments(ctx context.Context, kind resource.Kind, ids []string) ([]map[string]any, error) {
	docs := make([]map[string]any, len(ids))

	if f.concurrency == 1 {
		for i, id := range ids {
			doc, err := f.remote.Get(ctx, kind, id)
			if err != nil {
				return nil, fmt.Errorf("fetching %s %s: %w", kind.Singular(), id, err)
			}
			docs[i] = doc
		}
		return docs, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			doc, err := f.remote.Get(gctx, kind, id)
			if err != nil {
				return fmt.Errorf("fetching %s %s: %w", kind.Singular(), id, err)
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}
