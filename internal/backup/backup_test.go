package backup_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/apiai-git/internal/backup"
	"github.com/wondertwin-ai/apiai-git/internal/client"
	"github.com/wondertwin-ai/apiai-git/internal/history"
	"github.com/wondertwin-ai/apiai-git/internal/resource"
	"github.com/wondertwin-ai/apiai-git/internal/twin/twincore"
	"github.com/wondertwin-ai/apiai-git/internal/twin/twintest"
)

var fixedNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	twin *twintest.Twin
	api  *twintest.TwinClient
	repo *history.Repo
	wf   *backup.Workflows
}

func setup(t *testing.T) *env {
	t.Helper()
	tw := twintest.Start(t)
	c, err := client.New(client.Config{BaseURL: tw.BaseURL(), Token: twintest.Token, HTTPClient: tw.Server.Client()})
	require.NoError(t, err)

	gr, err := git.Init(memory.NewStorage(), memfs.New())
	require.NoError(t, err)
	repo, err := history.New(gr, history.Author{Name: "apiai-git", Email: "apiai-git@localhost"})
	require.NoError(t, err)

	wf := backup.New(c, repo, backup.Options{
		BaseURL:     c.BaseURL(),
		ToolVersion: "test",
		Concurrency: 2,
		Now:         func() time.Time { return fixedNow },
	})
	tw.Seed(t,
		map[string]map[string]any{
			"i1": {"name": "greeting", "templates": []any{"hello"}},
			"i2": {"name": "farewell", "templates": []any{"bye"}},
			"i3": {"name": "weather", "auto": true},
		},
		map[string]map[string]any{
			"e1": {"name": "color", "entries": []any{map[string]any{"value": "red", "synonyms": []any{"red"}}}},
		},
	)
	return &env{twin: tw, api: tw.Client.Authorized(twintest.Token), repo: repo, wf: wf}
}

func TestCommitMessage(t *testing.T) {
	assert.Equal(t, "# Intents: 3, # Entities: 1", backup.CommitMessage(3, 1))
}

func TestSaveCommitsSnapshot(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	res, err := e.wf.Save(ctx, backup.SaveOptions{Commit: true})
	require.NoError(t, err)
	require.NotNil(t, res.Commit)
	assert.Equal(t, "# Intents: 3, # Entities: 1", res.Commit.Subject())
	assert.Equal(t, 3, res.Count(resource.Intents))
	assert.Equal(t, 1, res.Count(resource.Entities))
	assert.Equal(t, 0, e.twin.Writes())

	stored, err := e.wf.Snapshots(*res.Commit)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for i, s := range stored {
		assert.True(t, s.Equal(res.Snapshots[i]), "stored %s differs from fetched", s.Kind)
	}

	meta, err := e.repo.ReadMeta(*res.Commit)
	require.NoError(t, err)
	assert.True(t, meta.CapturedAt.Equal(fixedNow))
	assert.Equal(t, 3, meta.Counts["intents"])
	assert.Equal(t, "test", meta.ToolVersion)
}

func TestSaveWithoutCommit(t *testing.T) {
	e := setup(t)

	res, err := e.wf.Save(context.Background(), backup.SaveOptions{})
	require.NoError(t, err)
	assert.Nil(t, res.Commit)

	_, err = e.repo.Recent(history.DefaultRecent)
	assert.ErrorIs(t, err, history.ErrNoCommits)
}

func TestSaveUnchangedStateIsNotCommitted(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.wf.Save(ctx, backup.SaveOptions{Commit: true})
	require.NoError(t, err)

	res, err := e.wf.Save(ctx, backup.SaveOptions{Commit: true})
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	assert.Nil(t, res.Commit)

	commits, err := e.repo.Recent(history.DefaultRecent)
	require.NoError(t, err)
	assert.Len(t, commits, 1)
}

func TestSaveFetchFailureWritesNothing(t *testing.T) {
	e := setup(t)
	e.twin.Admin.InjectFault("/v1/entities", twincore.FaultConfig{StatusCode: 503}).AssertStatus(http.StatusOK)

	_, err := e.wf.Save(context.Background(), backup.SaveOptions{Commit: true})
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, client.StatusCode(err))

	_, err = e.repo.Recent(history.DefaultRecent)
	assert.ErrorIs(t, err, history.ErrNoCommits)
}

func TestLoadRestoresChosenCommit(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	first, err := e.wf.Save(ctx, backup.SaveOptions{Commit: true})
	require.NoError(t, err)

	e.api.Delete("/v1/intents/i2").AssertStatus(http.StatusOK)
	e.api.Put("/v1/intents/i1", map[string]any{"name": "greeting", "templates": []any{"yo"}}).AssertStatus(http.StatusOK)
	e.api.Post("/v1/entities", map[string]any{"name": "size", "entries": []any{}}).AssertStatus(http.StatusOK)

	second, err := e.wf.Save(ctx, backup.SaveOptions{Commit: true})
	require.NoError(t, err)
	require.NotNil(t, second.Commit)
	assert.Equal(t, "# Intents: 2, # Entities: 2", second.Commit.Subject())

	// Candidates are newest first, so index 1 is the first save.
	res, err := e.wf.Load(ctx, backup.LoadOptions{Chooser: history.FixedChooser(1)})
	require.NoError(t, err)
	assert.Equal(t, first.Commit.Hash, res.Commit.Hash)
	require.Len(t, res.Summaries, 2)
	assert.Equal(t, []string{"i2"}, res.Summaries[0].Created)
	assert.Equal(t, []string{"i1"}, res.Summaries[0].Updated)
	assert.Len(t, res.Summaries[1].Deleted, 1)

	plan, err := e.wf.Plan(ctx, backup.LoadOptions{CommitHash: first.Commit.Short()})
	require.NoError(t, err)
	for _, kp := range plan.Plans {
		assert.True(t, kp.Plan.Empty(), "expected %s to be restored: %s", kp.Plan.Kind, kp.Plan)
	}

	writes := e.twin.Writes()
	_, err = e.wf.Load(ctx, backup.LoadOptions{CommitHash: first.Commit.Hash})
	require.NoError(t, err)
	assert.Equal(t, writes, e.twin.Writes(), "restoring the same snapshot twice must not write")
}

func TestPlanDoesNotWrite(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	saved, err := e.wf.Save(ctx, backup.SaveOptions{Commit: true})
	require.NoError(t, err)
	e.api.Delete("/v1/intents/i3").AssertStatus(http.StatusOK)
	writes := e.twin.Writes()

	res, err := e.wf.Plan(ctx, backup.LoadOptions{CommitHash: saved.Commit.Hash})
	require.NoError(t, err)
	require.Len(t, res.Plans, 2)
	assert.Len(t, res.Plans[0].Plan.Create, 1)
	assert.True(t, res.Plans[1].Plan.Empty())
	assert.Empty(t, res.Summaries)
	assert.Equal(t, writes, e.twin.Writes())
}

func TestLoadCorruptSnapshotMakesNoRemoteCalls(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.repo.WriteBlobs(map[string][]byte{
		resource.Intents.BlobName():  []byte("definitely not msgpack"),
		resource.Entities.BlobName(): []byte{0x80},
	}))
	c, err := e.repo.Commit("corrupt")
	require.NoError(t, err)
	e.twin.MW.ReqLog.Clear()

	_, err = e.wf.Load(context.Background(), backup.LoadOptions{CommitHash: c.Hash})
	assert.ErrorIs(t, err, resource.ErrCorruptSnapshot)
	assert.Equal(t, 0, e.twin.MW.ReqLog.Count(""))
}

func TestLoadMissingBlob(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.repo.WriteBlobs(map[string][]byte{"README": []byte("empty history")}))
	c, err := e.repo.Commit("no snapshot")
	require.NoError(t, err)

	_, err = e.wf.Load(context.Background(), backup.LoadOptions{CommitHash: c.Hash})
	assert.ErrorIs(t, err, history.ErrBlobNotFound)
}

func TestLoadReportsRejectedWrites(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	saved, err := e.wf.Save(ctx, backup.SaveOptions{Commit: true})
	require.NoError(t, err)
	e.api.Delete("/v1/entities/e1").AssertStatus(http.StatusOK)
	e.api.Delete("/v1/intents/i1").AssertStatus(http.StatusOK)
	e.twin.Admin.InjectFault("/v1/entities", twincore.FaultConfig{StatusCode: 400, Method: http.MethodPost}).AssertStatus(http.StatusOK)

	res, err := e.wf.Load(ctx, backup.LoadOptions{CommitHash: saved.Commit.Hash})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, client.StatusCode(err))

	require.Len(t, res.Summaries, 2)
	assert.True(t, res.Summaries[0].OK(), "intents restore should succeed")
	assert.Len(t, res.Summaries[1].Failures, 1)
	assert.Equal(t, 3, e.twin.Store.Intents.Count())
}

func TestLoadWithoutChooser(t *testing.T) {
	e := setup(t)

	_, err := e.wf.Load(context.Background(), backup.LoadOptions{})
	assert.True(t, errors.Is(err, history.ErrInvalidChoice))
}

func TestSaveUnreachableRemoteWritesNothing(t *testing.T) {
	srv := twintest.Start(t).Server
	baseURL := srv.URL + "/v1/"
	srv.Close()

	c, err := client.New(client.Config{BaseURL: baseURL, Token: twintest.Token, Timeout: time.Second})
	require.NoError(t, err)
	gr, err := git.Init(memory.NewStorage(), memfs.New())
	require.NoError(t, err)
	repo, err := history.New(gr, history.Author{Name: "apiai-git", Email: "apiai-git@localhost"})
	require.NoError(t, err)

	_, err = backup.New(c, repo, backup.Options{}).Save(context.Background(), backup.SaveOptions{Commit: true})
	require.Error(t, err)
	assert.True(t, client.IsTransport(err), "expected transport error, got %v", err)

	_, err = repo.Recent(history.DefaultRecent)
	assert.ErrorIs(t, err, history.ErrNoCommits)
}
