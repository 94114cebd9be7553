// Package backup wires the fetcher, reconciler and history store into the
// save and load workflows.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/wondertwin-ai/apiai-git/internal/history"
	"github.com/wondertwin-ai/apiai-git/internal/reconcile"
	"github.com/wondertwin-ai/apiai-git/internal/resource"
)

// Options configures a Workflows.
type Options struct {
	BaseURL     string // recorded in snapshot metadata
	ToolVersion string
	Concurrency int
	Logger      *slog.Logger
	Now         func() time.Time
}

// Workflows runs save and load against one remote and one history repository.
type Workflows struct {
	repo       *history.Repo
	fetcher    *reconcile.Fetcher
	reconciler *reconcile.Reconciler
	opts       Options
	logger     *slog.Logger
}

// New creates Workflows over remote and repo.
func New(remote reconcile.Remote, repo *history.Repo, opts Options) *Workflows {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	fetcher := reconcile.NewFetcher(remote, opts.Concurrency, logger)
	return &Workflows{
		repo:       repo,
		fetcher:    fetcher,
		reconciler: reconcile.NewReconciler(remote, fetcher, logger),
		opts:       opts,
		logger:     logger,
	}
}

// CommitMessage is the message recorded for a saved snapshot.
func CommitMessage(intents, entities int) string {
	return fmt.Sprintf("# Intents: %d, # Entities: %d", intents, entities)
}

// SaveOptions controls what Save does after writing the snapshot files.
type SaveOptions struct {
	Commit bool
	Push   bool // implies Commit
}

// SaveResult describes a completed save.
type SaveResult struct {
	Snapshots []resource.Snapshot // in resource.Kinds() order
	Commit    *history.Commit     // nil unless a commit was made
	Unchanged bool                // commit requested but nothing differed
	Pushed    bool
}

// Count returns the number of resources saved for kind.
func (r SaveResult) Count(kind resource.Kind) int {
	for _, s := range r.Snapshots {
		if s.Kind == kind {
			return s.Len()
		}
	}
	return 0
}

// Save fetches every kind and writes the encoded snapshots into the history
// worktree. All fetches complete before anything is written, so a failed
// fetch leaves the history untouched.
func (w *Workflows) Save(ctx context.Context, opts SaveOptions) (SaveResult, error) {
	var res SaveResult
	counts := make(map[string]int)

	for _, kind := range resource.Kinds() {
		snap, err := w.fetcher.FetchAll(ctx, kind)
		if err != nil {
			return SaveResult{}, err
		}
		res.Snapshots = append(res.Snapshots, snap)
		counts[string(kind)] = snap.Len()
	}

	blobs := make(map[string][]byte, len(res.Snapshots)+1)
	for _, snap := range res.Snapshots {
		data, err := resource.Encode(snap)
		if err != nil {
			return SaveResult{}, err
		}
		blobs[snap.Kind.BlobName()] = data
	}
	// Metadata is only refreshed along with the snapshot, so saving an
	// unchanged state leaves nothing to commit.
	if !w.matchesHead(blobs) {
		meta := &history.Meta{
			CapturedAt:  w.opts.Now().UTC(),
			BaseURL:     w.opts.BaseURL,
			ToolVersion: w.opts.ToolVersion,
			Counts:      counts,
		}
		data, err := meta.Marshal()
		if err != nil {
			return SaveResult{}, err
		}
		blobs[history.MetaFile] = data
	}

	if err := w.repo.WriteBlobs(blobs); err != nil {
		return SaveResult{}, err
	}
	w.logger.Info("snapshot written", "intents", counts[string(resource.Intents)], "entities", counts[string(resource.Entities)])

	if !opts.Commit && !opts.Push {
		return res, nil
	}

	msg := CommitMessage(counts[string(resource.Intents)], counts[string(resource.Entities)])
	c, err := w.repo.Commit(msg)
	switch {
	case errors.Is(err, history.ErrNothingToCommit):
		res.Unchanged = true
		w.logger.Info("snapshot unchanged since last commit")
	case err != nil:
		return res, err
	default:
		res.Commit = &c
		w.logger.Info("snapshot committed", "commit", c.Short())
	}

	if opts.Push {
		if err := w.repo.Push(ctx); err != nil {
			return res, err
		}
		res.Pushed = true
	}
	return res, nil
}

// matchesHead reports whether every blob equals the one stored at HEAD.
func (w *Workflows) matchesHead(blobs map[string][]byte) bool {
	head, err := w.repo.Recent(1)
	if err != nil || len(head) == 0 {
		return false
	}
	for name, data := range blobs {
		stored, err := w.repo.ReadBlob(head[0], name)
		if err != nil || !bytes.Equal(stored, data) {
			return false
		}
	}
	return true
}

// Locate returns the commit named by hash, or asks chooser to pick one of the
// most recent commits when hash is empty.
func (w *Workflows) Locate(hash string, chooser history.CommitChooser) (history.Commit, error) {
	if hash != "" {
		return w.repo.Resolve(hash)
	}
	if chooser == nil {
		return history.Commit{}, fmt.Errorf("%w: no commit hash given", history.ErrInvalidChoice)
	}
	candidates, err := w.repo.Recent(history.DefaultRecent)
	if err != nil {
		return history.Commit{}, err
	}
	return chooser.Choose(candidates)
}

// ReadSnapshot decodes the snapshot of kind stored in repo at commit c.
func ReadSnapshot(repo *history.Repo, c history.Commit, kind resource.Kind) (resource.Snapshot, error) {
	data, err := repo.ReadBlob(c, kind.BlobName())
	if err != nil {
		return resource.Snapshot{}, err
	}
	snap, err := resource.Decode(data)
	if err != nil {
		return resource.Snapshot{}, fmt.Errorf("%s at %s: %w", kind.BlobName(), c.Short(), err)
	}
	if snap.Kind != kind {
		return resource.Snapshot{}, fmt.Errorf("%w: %s at %s holds %s", resource.ErrCorruptSnapshot, kind.BlobName(), c.Short(), snap.Kind)
	}
	return snap, nil
}

// Snapshot decodes the stored snapshot of kind at commit c.
func (w *Workflows) Snapshot(c history.Commit, kind resource.Kind) (resource.Snapshot, error) {
	return ReadSnapshot(w.repo, c, kind)
}

// Snapshots decodes every kind stored at c, in resource.Kinds() order.
func (w *Workflows) Snapshots(c history.Commit) ([]resource.Snapshot, error) {
	var out []resource.Snapshot
	for _, kind := range resource.Kinds() {
		snap, err := w.Snapshot(c, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// LoadOptions selects the commit to restore.
type LoadOptions struct {
	CommitHash string
	Chooser    history.CommitChooser // used when CommitHash is empty
	DryRun     bool
}

// KindPlan is the computed plan for one kind with the live state it was
// computed against.
type KindPlan struct {
	Current resource.Snapshot
	Plan    resource.Plan
}

// LoadResult describes a load or a dry run.
type LoadResult struct {
	Commit    history.Commit
	Plans     []KindPlan          // set by dry runs
	Summaries []reconcile.Summary // set by real loads
}

// Load restores the snapshot at the selected commit. Every stored snapshot
// is decoded before the first remote call. Kinds are restored in
// resource.Kinds() order; a failed fetch stops the load, while rejected
// writes are collected and returned joined after all kinds ran.
func (w *Workflows) Load(ctx context.Context, opts LoadOptions) (LoadResult, error) {
	c, err := w.Locate(opts.CommitHash, opts.Chooser)
	if err != nil {
		return LoadResult{}, err
	}
	snaps, err := w.Snapshots(c)
	if err != nil {
		return LoadResult{Commit: c}, err
	}
	res := LoadResult{Commit: c}

	if opts.DryRun {
		for _, target := range snaps {
			current, plan, err := w.reconciler.Plan(ctx, target)
			if err != nil {
				return res, err
			}
			res.Plans = append(res.Plans, KindPlan{Current: current, Plan: plan})
		}
		return res, nil
	}

	w.logger.Info("restoring snapshot", "commit", c.Short(), "message", c.Subject())
	var errs []error
	for _, target := range snaps {
		sum, err := w.reconciler.Reconcile(ctx, target)
		if err != nil {
			return res, err
		}
		res.Summaries = append(res.Summaries, sum)
		if err := sum.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}

// Plan computes the restore plans for the selected commit without writing.
func (w *Workflows) Plan(ctx context.Context, opts LoadOptions) (LoadResult, error) {
	opts.DryRun = true
	return w.Load(ctx, opts)
}
