package reconcile_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/apiai-git/internal/client"
	"github.com/wondertwin-ai/apiai-git/internal/reconcile"
	"github.com/wondertwin-ai/apiai-git/internal/resource"
	"github.com/wondertwin-ai/apiai-git/internal/twin/twincore"
	"github.com/wondertwin-ai/apiai-git/internal/twin/twintest"
)

func startTwin(t *testing.T) (*twintest.Twin, *client.Client) {
	t.Helper()
	tw := twintest.Start(t)
	c, err := client.New(client.Config{BaseURL: tw.BaseURL(), Token: twintest.Token, HTTPClient: tw.Server.Client()})
	require.NoError(t, err)
	return tw, c
}

func seedIntents(t *testing.T, tw *twintest.Twin) {
	tw.Seed(t, map[string]map[string]any{
		"i1": {"name": "greeting", "templates": []any{"hello", "hi"}, "priority": 500000.0},
		"i2": {"name": "farewell", "templates": []any{"bye"}},
		"i3": {"name": "weather", "contexts": []any{}, "auto": true},
	}, nil)
}

func TestTwinFetchAllConcurrent(t *testing.T) {
	tw, c := startTwin(t)
	seedIntents(t, tw)
	ctx := context.Background()

	sequential, err := reconcile.NewFetcher(c, 1, nil).FetchAll(ctx, resource.Intents)
	require.NoError(t, err)
	parallel, err := reconcile.NewFetcher(c, 4, nil).FetchAll(ctx, resource.Intents)
	require.NoError(t, err)

	assert.Equal(t, []string{"i1", "i2", "i3"}, sequential.IDs())
	assert.True(t, sequential.Equal(parallel))
	assert.Equal(t, "greeting", sequential.Resources["i1"].Name())
	assert.Equal(t, 0, tw.Writes())
}

func TestTwinRestoreThenIdempotent(t *testing.T) {
	tw, c := startTwin(t)
	seedIntents(t, tw)
	ctx := context.Background()

	fetcher := reconcile.NewFetcher(c, 2, nil)
	target, err := fetcher.FetchAll(ctx, resource.Intents)
	require.NoError(t, err)

	// Drift the live state: one deleted, one changed, one added.
	admin := tw.Client.Authorized(twintest.Token)
	admin.Delete("/v1/intents/i2").AssertStatus(http.StatusOK)
	admin.Put("/v1/intents/i1", map[string]any{"name": "greeting", "templates": []any{"yo"}}).AssertStatus(http.StatusOK)
	admin.Post("/v1/intents", map[string]any{"name": "smalltalk"}).AssertStatus(http.StatusOK)

	r := reconcile.NewReconciler(c, fetcher, nil)
	sum, err := r.Reconcile(ctx, target)
	require.NoError(t, err)
	require.True(t, sum.OK(), "failures: %v", sum.Err())
	assert.Len(t, sum.Deleted, 1)
	assert.Equal(t, []string{"i2"}, sum.Created)
	assert.Equal(t, []string{"i1"}, sum.Updated)

	_, plan, err := r.Plan(ctx, target)
	require.NoError(t, err)
	assert.True(t, plan.Empty(), "second plan should be empty: %s", plan)

	writes := tw.Writes()
	sum, err = r.Reconcile(ctx, target)
	require.NoError(t, err)
	assert.True(t, sum.Plan.Empty())
	assert.Equal(t, writes, tw.Writes(), "second reconcile must not write")
}

func TestTwinRenamedResourceRecreatedAfterDelete(t *testing.T) {
	tw, c := startTwin(t)
	tw.Seed(t, map[string]map[string]any{"old": {"name": "greeting", "templates": []any{"hi"}}}, nil)
	ctx := context.Background()

	// Same name as the live resource but different content and id: the
	// delete must run before the create or the twin rejects the duplicate name.
	target, err := resource.NewSnapshot(resource.Intents,
		resource.New("new", map[string]any{"name": "greeting", "templates": []any{"hello"}}))
	require.NoError(t, err)

	sum, err := reconcile.NewReconciler(c, reconcile.NewFetcher(c, 1, nil), nil).Reconcile(ctx, target)
	require.NoError(t, err)
	require.True(t, sum.OK(), "failures: %v", sum.Err())
	assert.Equal(t, []string{"old"}, sum.Deleted)
	assert.Equal(t, []string{"new"}, sum.Created)
}

func TestTwinCreateReusingRenamedNameConverges(t *testing.T) {
	tw, c := startTwin(t)
	tw.Seed(t, map[string]map[string]any{"old": {"name": "greeting", "templates": []any{"hi"}}}, nil)
	ctx := context.Background()

	// "old" is renamed and a new intent takes its previous name.
	target, err := resource.NewSnapshot(resource.Intents,
		resource.New("old", map[string]any{"name": "greeting-v1", "templates": []any{"hi"}}),
		resource.New("new", map[string]any{"name": "greeting", "templates": []any{"hello"}}))
	require.NoError(t, err)

	r := reconcile.NewReconciler(c, reconcile.NewFetcher(c, 1, nil), nil)
	sum, err := r.Reconcile(ctx, target)
	require.NoError(t, err)
	require.True(t, sum.OK(), "failures: %v", sum.Err())
	assert.Equal(t, []string{"old"}, sum.Updated)
	assert.Equal(t, []string{"new"}, sum.Created)
	assert.Equal(t, 2, tw.Store.Intents.Count())

	_, plan, err := r.Plan(ctx, target)
	require.NoError(t, err)
	assert.True(t, plan.Empty(), "second run should have nothing to do: %s", plan)
}

func TestTwinListFailureWritesNothing(t *testing.T) {
	tw, c := startTwin(t)
	seedIntents(t, tw)
	tw.Admin.InjectFault("/v1/intents", twincore.FaultConfig{StatusCode: 503, Method: http.MethodGet}).AssertStatus(http.StatusOK)

	target, err := resource.NewSnapshot(resource.Intents)
	require.NoError(t, err)

	_, err = reconcile.NewReconciler(c, reconcile.NewFetcher(c, 1, nil), nil).Reconcile(context.Background(), target)
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, client.StatusCode(err))
	assert.Equal(t, 0, tw.Writes())
	assert.Equal(t, 3, tw.Store.Intents.Count())
}

func TestTwinRejectedDeleteDoesNotStopOthers(t *testing.T) {
	tw, c := startTwin(t)
	seedIntents(t, tw)
	tw.Admin.InjectFault("/v1/intents/i1", twincore.FaultConfig{StatusCode: 400, Method: http.MethodDelete}).AssertStatus(http.StatusOK)

	target, err := resource.NewSnapshot(resource.Intents)
	require.NoError(t, err)

	sum, err := reconcile.NewReconciler(c, reconcile.NewFetcher(c, 1, nil), nil).Reconcile(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, reconcile.OpDelete, sum.Failures[0].Op)
	assert.Equal(t, "i1", sum.Failures[0].ID)
	assert.Equal(t, http.StatusBadRequest, sum.Failures[0].StatusCode)
	assert.ElementsMatch(t, []string{"i2", "i3"}, sum.Deleted)
	assert.Equal(t, 1, tw.Store.Intents.Count())
}
