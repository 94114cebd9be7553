package api_test

import (
	"net/http"
	"testing"

	"github.com/wondertwin-ai/apiai-git/internal/twin/twincore"
	"github.com/wondertwin-ai/apiai-git/internal/twin/twintest"
)

func setup(t *testing.T) (*twintest.Twin, *twintest.TwinClient) {
	t.Helper()
	tw := twintest.Start(t)
	return tw, tw.Client.Authorized(twintest.Token)
}

// --- Auth Tests ---

func TestAuthRequired(t *testing.T) {
	tw, _ := setup(t)

	resp := tw.Client.Get("/v1/intents")
	resp.AssertStatus(http.StatusUnauthorized)
	resp.AssertBodyContains(`"errorType":"unauthorized"`)
}

func TestAuthInvalidFormat(t *testing.T) {
	tw, _ := setup(t)

	tc := *tw.Client
	tc.Headers = map[string]string{"Authorization": "Token abc"}
	tc.Get("/v1/intents").AssertStatus(http.StatusUnauthorized)
}

func TestAuthWrongToken(t *testing.T) {
	tw, _ := setup(t)

	tw.Client.Authorized("someone-else").Get("/v1/intents").AssertStatus(http.StatusUnauthorized)
}

// --- CRUD Tests ---

func TestCreateGetListIntent(t *testing.T) {
	_, tc := setup(t)

	resp := tc.Post("/v1/intents?v=20150910", map[string]any{
		"name":      "greeting",
		"templates": []string{"hello"},
	})
	resp.AssertStatus(http.StatusOK)
	resp.AssertBodyContains(`"errorType":"success"`)
	id, _ := resp.JSONMap()["id"].(string)
	if id == "" {
		t.Fatal("expected id in create response")
	}

	doc := tc.Get("/v1/intents/" + id).AssertStatus(http.StatusOK).JSONMap()
	if doc["id"] != id || doc["name"] != "greeting" {
		t.Errorf("unexpected document %v", doc)
	}

	var list []map[string]any
	tc.Get("/v1/intents").AssertStatus(http.StatusOK).JSON(&list)
	if len(list) != 1 || list[0]["id"] != id {
		t.Errorf("unexpected list %v", list)
	}
	if _, full := list[0]["templates"]; full {
		t.Error("expected list to return summaries only")
	}
}

func TestListEntitiesCountsEntries(t *testing.T) {
	tw, tc := setup(t)
	tw.Seed(t, nil, map[string]map[string]any{
		"e1": {"name": "color", "entries": []any{map[string]any{"value": "red"}, map[string]any{"value": "blue"}}},
	})

	var list []map[string]any
	tc.Get("/v1/entities").AssertStatus(http.StatusOK).JSON(&list)
	if len(list) != 1 || list[0]["count"] != float64(2) {
		t.Errorf("unexpected list %v", list)
	}
}

func TestCreateRejectsID(t *testing.T) {
	_, tc := setup(t)

	tc.Post("/v1/entities", map[string]any{"id": "x", "name": "color"}).AssertStatus(http.StatusBadRequest)
}

func TestCreateRequiresName(t *testing.T) {
	_, tc := setup(t)

	tc.Post("/v1/intents", map[string]any{"templates": []string{"hi"}}).
		AssertStatus(http.StatusBadRequest).
		AssertBodyContains("name is required")
}

func TestCreateDuplicateName(t *testing.T) {
	tw, tc := setup(t)
	tw.Seed(t, map[string]map[string]any{"i1": {"name": "greeting"}}, nil)

	tc.Post("/v1/intents", map[string]any{"name": "greeting"}).AssertStatus(http.StatusConflict)
}

func TestUpdateReplacesFields(t *testing.T) {
	tw, tc := setup(t)
	tw.Seed(t, map[string]map[string]any{"i1": {"name": "greeting", "priority": 1}}, nil)

	tc.Put("/v1/intents/i1", map[string]any{"name": "greeting", "auto": true}).AssertStatus(http.StatusOK)

	doc := tc.Get("/v1/intents/i1").JSONMap()
	if doc["auto"] != true {
		t.Errorf("expected auto=true, got %v", doc)
	}
	if _, kept := doc["priority"]; kept {
		t.Error("expected update to replace every field")
	}
}

func TestUpdateErrors(t *testing.T) {
	tw, tc := setup(t)
	tw.Seed(t, map[string]map[string]any{
		"i1": {"name": "greeting"},
		"i2": {"name": "goodbye"},
	}, nil)

	tc.Put("/v1/intents/missing", map[string]any{"name": "x"}).AssertStatus(http.StatusNotFound)
	tc.Put("/v1/intents/i1", map[string]any{"name": "goodbye"}).AssertStatus(http.StatusConflict)
	tc.Put("/v1/intents/i1", map[string]any{"id": "i2", "name": "greeting"}).AssertStatus(http.StatusBadRequest)
	tc.Put("/v1/intents/i1", "not an object").AssertStatus(http.StatusBadRequest)
}

func TestDelete(t *testing.T) {
	tw, tc := setup(t)
	tw.Seed(t, map[string]map[string]any{"i1": {"name": "greeting"}}, nil)

	tc.Delete("/v1/intents/i1").AssertStatus(http.StatusOK)
	tc.Get("/v1/intents/i1").AssertStatus(http.StatusNotFound)
	tc.Delete("/v1/intents/i1").AssertStatus(http.StatusNotFound)
}

func TestUnknownKind(t *testing.T) {
	_, tc := setup(t)

	tc.Get("/v1/agents").AssertStatus(http.StatusNotFound)
}

// --- Fault Tests ---

func TestFaultInjectionOnAPIRoute(t *testing.T) {
	tw, tc := setup(t)
	tw.Admin.InjectFault("/v1/intents", twincore.FaultConfig{StatusCode: 503}).AssertStatus(http.StatusOK)

	tc.Get("/v1/intents").AssertStatus(http.StatusServiceUnavailable)
	tw.Admin.Health().AssertStatus(http.StatusOK)

	tw.Admin.RemoveFault("/v1/intents").AssertStatus(http.StatusOK)
	tc.Get("/v1/intents").AssertStatus(http.StatusOK)
}

func TestResetClearsState(t *testing.T) {
	tw, tc := setup(t)
	tc.Post("/v1/intents", map[string]any{"name": "greeting"}).AssertStatus(http.StatusOK)

	tw.Admin.Reset().AssertStatus(http.StatusOK)

	if tw.Store.Intents.Count() != 0 {
		t.Errorf("expected empty store, got %d intents", tw.Store.Intents.Count())
	}
	entries := tw.Admin.GetRequests()
	if len(entries) != 1 || entries[0].Path != "/admin/reset" {
		t.Errorf("expected only the reset call to be logged, got %+v", entries)
	}
}
