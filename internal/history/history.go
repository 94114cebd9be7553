// Package history stores snapshots in a git repository: one commit per save,
// one blob per resource kind plus a metadata file.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// DefaultRecent is how many commits load offers to choose from.
const DefaultRecent = 10

// DefaultRemote is the remote name used by init and push.
const DefaultRemote = "origin"

var (
	// ErrNotInitialized means the history directory is not a git repository.
	ErrNotInitialized = errors.New("history repository not initialized")
	// ErrAlreadyInitialized is returned by Init when the directory already holds a repository.
	ErrAlreadyInitialized = errors.New("history repository already initialized")
	// ErrUnreachable means the repository URL is malformed or did not answer.
	ErrUnreachable = errors.New("repository URL unreachable")
	// ErrNoCommits means the history has no snapshots yet.
	ErrNoCommits = errors.New("history has no commits")
	// ErrCommitNotFound means no commit matches the requested hash.
	ErrCommitNotFound = errors.New("commit not found")
	// ErrBlobNotFound means a commit does not hold the requested snapshot file.
	ErrBlobNotFound = errors.New("snapshot file not found in commit")
	// ErrNothingToCommit means the saved blobs match the last commit.
	ErrNothingToCommit = errors.New("nothing to commit")
)

// Author signs snapshot commits.
type Author struct {
	Name  string
	Email string
}

// Commit describes one saved snapshot.
type Commit struct {
	Hash    string
	Message string
	Author  string
	When    time.Time
}

// Short returns the abbreviated hash.
func (c Commit) Short() string {
	if len(c.Hash) > 7 {
		return c.Hash[:7]
	}
	return c.Hash
}

// Subject returns the first line of the commit message.
func (c Commit) Subject() string {
	subject, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	return subject
}

func commitFrom(c *object.Commit) Commit {
	return Commit{
		Hash:    c.Hash.String(),
		Message: c.Message,
		Author:  c.Author.Name,
		When:    c.Author.When,
	}
}

// Repo is an opened history repository.
type Repo struct {
	repo   *git.Repository
	wt     *git.Worktree
	fs     billy.Filesystem
	author Author
	remote string
}

// New wraps an already opened repository. Tests use it with in-memory storage.
func New(repo *git.Repository, author Author) (*Repo, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}
	return &Repo{
		repo:   repo,
		wt:     wt,
		fs:     wt.Filesystem,
		author: author,
		remote: DefaultRemote,
	}, nil
}

// Open opens the history repository in dir.
func Open(dir string, author Author) (*Repo, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotInitialized, dir)
		}
		return nil, fmt.Errorf("opening history %s: %w", dir, err)
	}
	return New(repo, author)
}

// Init clones repoURL into dir. An empty remote repository is initialized
// locally with repoURL as its origin instead.
func Init(ctx context.Context, dir, repoURL string, hc *http.Client, author Author) (*Repo, error) {
	if _, err := git.PlainOpen(dir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInitialized, dir)
	}
	if err := CheckReachable(ctx, hc, repoURL); err != nil {
		return nil, err
	}

	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: repoURL})
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("cleaning up %s: %w", dir, err)
		}
		repo, err := git.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("initializing %s: %w", dir, err)
		}
		if _, err := repo.CreateRemote(&config.RemoteConfig{Name: DefaultRemote, URLs: []string{repoURL}}); err != nil {
			return nil, fmt.Errorf("adding remote: %w", err)
		}
	default:
		return nil, fmt.Errorf("cloning %s: %w", repoURL, err)
	}

	return Open(dir, author)
}

// CheckReachable verifies that an http(s) repository URL answers a HEAD
// request with 200. Other URL forms (ssh, scp-style, local paths) are left
// for git itself to validate.
func CheckReachable(ctx context.Context, hc *http.Client, repoURL string) error {
	if !strings.HasPrefix(repoURL, "http://") && !strings.HasPrefix(repoURL, "https://") {
		return nil
	}
	u, err := url.Parse(repoURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: malformed URL %q", ErrUnreachable, repoURL)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrUnreachable, repoURL, resp.StatusCode)
	}
	return nil
}

// WriteBlobs writes each named blob into the worktree and stages it.
func (r *Repo) WriteBlobs(blobs map[string][]byte) error {
	for name, data := range blobs {
		if err := util.WriteFile(r.fs, name, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		if _, err := r.wt.Add(name); err != nil {
			return fmt.Errorf("staging %s: %w", name, err)
		}
	}
	return nil
}

// Commit records the staged blobs.
func (r *Repo) Commit(message string) (Commit, error) {
	hash, err := r.wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  r.author.Name,
			Email: r.author.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return Commit{}, ErrNothingToCommit
		}
		return Commit{}, fmt.Errorf("committing: %w", err)
	}
	obj, err := r.repo.CommitObject(hash)
	if err != nil {
		return Commit{}, fmt.Errorf("reading commit %s: %w", hash, err)
	}
	return commitFrom(obj), nil
}

// Push pushes local branches to the origin remote.
func (r *Repo) Push(ctx context.Context) error {
	err := r.repo.PushContext(ctx, &git.PushOptions{RemoteName: r.remote})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pushing to %s: %w", r.remote, err)
	}
	return nil
}

// Recent returns up to n commits reachable from HEAD, newest first.
func (r *Repo) Recent(n int) ([]Commit, error) {
	var out []Commit
	err := r.walk(func(c *object.Commit) error {
		if n > 0 && len(out) >= n {
			return storer.ErrStop
		}
		out = append(out, commitFrom(c))
		return nil
	})
	return out, err
}

// Resolve finds the commit whose hash equals or starts with hashOrPrefix.
func (r *Repo) Resolve(hashOrPrefix string) (Commit, error) {
	prefix := strings.ToLower(strings.TrimSpace(hashOrPrefix))
	if len(prefix) < 4 {
		return Commit{}, fmt.Errorf("%w: %q is too short to identify a commit", ErrCommitNotFound, hashOrPrefix)
	}

	var matches []Commit
	err := r.walk(func(c *object.Commit) error {
		if strings.HasPrefix(c.Hash.String(), prefix) {
			matches = append(matches, commitFrom(c))
		}
		return nil
	})
	if err != nil {
		return Commit{}, err
	}
	switch len(matches) {
	case 0:
		return Commit{}, fmt.Errorf("%w: %s", ErrCommitNotFound, hashOrPrefix)
	case 1:
		return matches[0], nil
	default:
		return Commit{}, fmt.Errorf("commit prefix %s is ambiguous (%d matches)", hashOrPrefix, len(matches))
	}
}

// ReadBlob returns the contents of name as stored in commit c.
func (r *Repo) ReadBlob(c Commit, name string) ([]byte, error) {
	obj, err := r.repo.CommitObject(plumbing.NewHash(c.Hash))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCommitNotFound, c.Hash)
	}
	f, err := obj.File(name)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s at %s", ErrBlobNotFound, name, c.Short())
		}
		return nil, fmt.Errorf("reading %s at %s: %w", name, c.Short(), err)
	}
	rd, err := f.Reader()
	if err != nil {
		return nil, fmt.Errorf("reading %s at %s: %w", name, c.Short(), err)
	}
	defer rd.Close()
	return io.ReadAll(rd)
}

func (r *Repo) walk(fn func(*object.Commit) error) error {
	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return ErrNoCommits
		}
		return fmt.Errorf("reading HEAD: %w", err)
	}
	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return fmt.Errorf("reading log: %w", err)
	}
	defer iter.Close()
	if err := iter.ForEach(fn); err != nil && !errors.Is(err, storer.ErrStop) {
		return err
	}
	return nil
}
