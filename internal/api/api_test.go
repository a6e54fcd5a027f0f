package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/quill/internal/api"
	"github.com/omochice/quill/internal/rest"
)

func reply(w http.ResponseWriter, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": message, "data": data})
}

func newAPI(t *testing.T, mux *http.ServeMux) *api.API {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return api.New(rest.New(server.URL+"/api", rest.StaticToken("tok")))
}

func TestWorks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/works", func(w http.ResponseWriter, r *http.Request) {
		reply(w, 0, "", []api.Work{{ID: "w1", Title: "First"}, {ID: "w2", Title: "Second"}})
	})
	mux.HandleFunc("POST /api/works", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		reply(w, 0, "", api.Work{ID: "w3", Title: in["title"], Description: in["description"]})
	})
	mux.HandleFunc("GET /api/works/{id}", func(w http.ResponseWriter, r *http.Request) {
		reply(w, 40001, "not found", nil)
	})
	mux.HandleFunc("DELETE /api/works/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "w 1", r.PathValue("id"))
		reply(w, 0, "", nil)
	})
	a := newAPI(t, mux)
	ctx := context.Background()

	works, err := a.Works.List(ctx)
	require.NoError(t, err)
	assert.Len(t, works, 2)

	created, err := a.Works.Create(ctx, "Third", "draft")
	require.NoError(t, err)
	assert.Equal(t, "Third", created.Title)
	assert.Equal(t, "draft", created.Description)

	_, err = a.Works.Get(ctx, "missing")
	assert.True(t, rest.IsNotFound(err))

	_, err = a.Works.Get(ctx, "")
	assert.Error(t, err)

	require.NoError(t, a.Works.Delete(ctx, "w 1"))
}

func TestDocuments(t *testing.T) {
	const html = `<p>It was a <strong>dark</strong> night.</p>`
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		reply(w, 0, "", api.Document{ID: r.PathValue("id"), Content: html, Version: 3})
	})
	mux.HandleFunc("PUT /api/documents/{id}/content", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, html, in["content"])
		reply(w, 0, "", api.Document{ID: r.PathValue("id"), Content: in["content"], Version: 4})
	})
	mux.HandleFunc("GET /api/documents/{id}/versions", func(w http.ResponseWriter, r *http.Request) {
		reply(w, 0, "", []api.DocumentVersion{{Version: 4}, {Version: 3}})
	})
	mux.HandleFunc("POST /api/documents/{id}/versions/{v}/restore", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.PathValue("v"))
		reply(w, 0, "", api.Document{ID: r.PathValue("id"), Version: 5})
	})
	a := newAPI(t, mux)
	ctx := context.Background()

	doc, err := a.Documents.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, html, doc.Content)

	saved, err := a.Documents.SaveContent(ctx, "d1", html)
	require.NoError(t, err)
	assert.Equal(t, 4, saved.Version)

	versions, err := a.Documents.Versions(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	restored, err := a.Documents.Restore(ctx, "d1", 3)
	require.NoError(t, err)
	assert.Equal(t, 5, restored.Version)
}

func TestAgentsCreateSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/agents/{id}/sessions", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "w1", in["work_id"])
		reply(w, 0, "", api.AgentSession{SessionID: "s-" + r.PathValue("id")})
	})
	mux.HandleFunc("POST /api/agents/empty/sessions", func(w http.ResponseWriter, r *http.Request) {
		reply(w, 0, "", map[string]string{})
	})
	a := newAPI(t, mux)

	id, err := a.Agents.CreateSession(context.Background(), "writer", "w1")
	require.NoError(t, err)
	assert.Equal(t, "s-writer", id)

	_, err = a.Agents.CreateSession(context.Background(), "empty", "w1")
	assert.Error(t, err)
}

func TestPluginsSetEnabled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/plugins/{id}/{action}", func(w http.ResponseWriter, r *http.Request) {
		reply(w, 0, "", api.Plugin{ID: r.PathValue("id"), Enabled: r.PathValue("action") == "enable"})
	})
	a := newAPI(t, mux)

	p, err := a.Plugins.SetEnabled(context.Background(), "spell", true)
	require.NoError(t, err)
	assert.True(t, p.Enabled)

	p, err = a.Plugins.SetEnabled(context.Background(), "spell", false)
	require.NoError(t, err)
	assert.False(t, p.Enabled)
}

func TestKnowledgeAndMemories(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/works/{id}/knowledge", func(w http.ResponseWriter, r *http.Request) {
		var in api.KnowledgeBase
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		in.ID = "kb1"
		reply(w, 0, "", in)
	})
	mux.HandleFunc("GET /api/works/{id}/memories", func(w http.ResponseWriter, r *http.Request) {
		reply(w, 0, "", []api.Memory{{ID: "m1", WorkID: r.PathValue("id"), Content: "hero fears water"}})
	})
	a := newAPI(t, mux)
	ctx := context.Background()

	kb, err := a.KnowledgeBases.Create(ctx, api.KnowledgeBase{WorkID: "w1", Name: "Ada", Category: "character"})
	require.NoError(t, err)
	assert.Equal(t, "kb1", kb.ID)
	assert.Equal(t, "character", kb.Category)

	memories, err := a.Memories.List(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "w1", memories[0].WorkID)
}
