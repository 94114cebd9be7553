package api

import (
	"encoding/json"
	"maps"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wondertwin-ai/apiai-git/internal/resource"
	"github.com/wondertwin-ai/apiai-git/internal/twin/store"
	"github.com/wondertwin-ai/apiai-git/internal/twin/twincore"
)

// collection resolves the {kind} URL parameter, writing a 404 when unknown.
func (h *Handler) collection(w http.ResponseWriter, r *http.Request) (resource.Kind, *store.Store[store.Document], bool) {
	kind, err := resource.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		twincore.Error(w, http.StatusNotFound, "not_found", err.Error())
		return "", nil, false
	}
	coll, err := h.store.Kind(kind)
	if err != nil {
		twincore.Error(w, http.StatusNotFound, "not_found", err.Error())
		return "", nil, false
	}
	return kind, coll, true
}

// List handles GET /v1/{kind}. It returns summaries, not full documents.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	kind, coll, ok := h.collection(w, r)
	if !ok {
		return
	}

	out := make([]map[string]any, 0, coll.Count())
	for _, id := range coll.ListIDs() {
		doc, ok := coll.Get(id)
		if !ok {
			continue
		}
		out = append(out, summary(kind, id, doc))
	}
	twincore.JSON(w, http.StatusOK, out)
}

// Get handles GET /v1/{kind}/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	kind, coll, ok := h.collection(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	doc, ok := coll.Get(id)
	if !ok {
		twincore.Error(w, http.StatusNotFound, "not_found", "No "+kind.Singular()+" with id "+id)
		return
	}
	out := maps.Clone(doc)
	out[resource.IDField] = id
	twincore.JSON(w, http.StatusOK, out)
}

// Create handles POST /v1/{kind}. The service assigns the id.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	kind, coll, ok := h.collection(w, r)
	if !ok {
		return
	}
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	if _, has := doc[resource.IDField]; has {
		twincore.Error(w, http.StatusBadRequest, "bad_request", "New "+kind.Singular()+" must not carry an id")
		return
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if !h.checkName(w, kind, coll, "", doc) {
		return
	}

	id := coll.NextID()
	coll.Set(id, doc)
	twincore.Success(w, map[string]any{resource.IDField: id})
}

// Update handles PUT /v1/{kind}/{id}, replacing every field.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	kind, coll, ok := h.collection(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	if bodyID, has := doc[resource.IDField]; has && bodyID != id {
		twincore.Error(w, http.StatusBadRequest, "bad_request", "Body id does not match the URL")
		return
	}
	delete(doc, resource.IDField)

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if _, exists := coll.Get(id); !exists {
		twincore.Error(w, http.StatusNotFound, "not_found", "No "+kind.Singular()+" with id "+id)
		return
	}
	if !h.checkName(w, kind, coll, id, doc) {
		return
	}

	coll.Set(id, doc)
	twincore.Success(w, nil)
}

// Delete handles DELETE /v1/{kind}/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, coll, ok := h.collection(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if !coll.Delete(id) {
		twincore.Error(w, http.StatusNotFound, "not_found", "No "+kind.Singular()+" with id "+id)
		return
	}
	twincore.Success(w, nil)
}

// checkName rejects documents without a name or whose name is taken by
// another resource of the same kind.
func (h *Handler) checkName(w http.ResponseWriter, kind resource.Kind, coll *store.Store[store.Document], self string, doc store.Document) bool {
	name, _ := doc["name"].(string)
	if name == "" {
		twincore.Error(w, http.StatusBadRequest, "bad_request", "The "+kind.Singular()+" name is required")
		return false
	}
	taken := func(id string, other store.Document) bool {
		return id != self && other["name"] == name
	}
	if _, dup := coll.Find(taken); dup {
		twincore.Error(w, http.StatusConflict, "conflict", "An "+kind.Singular()+" named '"+name+"' already exists")
		return false
	}
	return true
}

func decodeDocument(w http.ResponseWriter, r *http.Request) (store.Document, bool) {
	var doc store.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil || doc == nil {
		msg := "Request body must be a JSON object"
		if err != nil {
			msg += ": " + err.Error()
		}
		twincore.Error(w, http.StatusBadRequest, "bad_request", msg)
		return nil, false
	}
	return doc, true
}

func summary(kind resource.Kind, id string, doc store.Document) map[string]any {
	out := map[string]any{
		resource.IDField: id,
		"name":           doc["name"],
	}
	if kind == resource.Entities {
		if entries, ok := doc["entries"].([]any); ok {
			out["count"] = len(entries)
		}
	}
	return out
}
