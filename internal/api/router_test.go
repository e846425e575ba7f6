package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartdesk/internal/coord"
	"chartdesk/internal/feed"
	"chartdesk/internal/layout"
	"chartdesk/internal/session"
	"chartdesk/internal/workspace"
)

func newTestRouter(t *testing.T) (http.Handler, *layout.MemoryStore) {
	t.Helper()
	st := layout.NewMemoryStore()
	m := session.NewManager(session.Options{
		Feed:      feed.Validated(feed.NewSynthetic(feed.SyntheticOptions{Bars: 120, End: time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC)})),
		Layouts:   st,
		Workspace: workspace.Options{Viewport: coord.Viewport{Width: 800, Height: 400}},
	})
	return NewRouter(m, nil), st
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type created struct {
	ID       string             `json:"id"`
	Snapshot workspace.Snapshot `json:"snapshot"`
}

func open(t *testing.T, h http.Handler) created {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/v1/sessions", map[string]string{"symbol": "AAA", "timeframe": "5"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var c created
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	return c
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t)
	w := do(t, h, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCreateSession(t *testing.T) {
	h, _ := newTestRouter(t)
	c := open(t, h)
	assert.NotEmpty(t, c.ID)
	require.NotNil(t, c.Snapshot.Series.Base)
	assert.Equal(t, 120, c.Snapshot.Series.Base.Bars)

	w := do(t, h, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Sessions []session.Info `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, c.ID, list.Sessions[0].ID)
}

func TestCreateSession_Errors(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"empty symbol", map[string]string{"symbol": "", "timeframe": "5"}, http.StatusUnprocessableEntity},
		{"bad timeframe", map[string]string{"symbol": "AAA", "timeframe": "fortnight"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/sessions", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestApplyEvents(t *testing.T) {
	h, _ := newTestRouter(t)
	c := open(t, h)

	w := do(t, h, http.MethodPost, "/api/v1/sessions/"+c.ID+"/events", map[string]any{
		"events": []map[string]any{
			{"type": "arm", "kind": "note"},
			{"type": "click", "x": 400, "y": 200},
			{"type": "teleport"},
			{"type": "addIndicator", "kind": "sma", "inputs": map[string]any{"length": 10}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Snapshot workspace.Snapshot `json:"snapshot"`
		Errors   []string           `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Len(t, out.Snapshot.Objects, 1)
	assert.Len(t, out.Snapshot.Indicators, 1)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "teleport")

	w = do(t, h, http.MethodGet, "/api/v1/sessions/"+c.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap workspace.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, out.Snapshot.Objects, snap.Objects)
}

func TestUnknownSession(t *testing.T) {
	h, _ := newTestRouter(t)
	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/sessions/nope"},
		{http.MethodPost, "/api/v1/sessions/nope/layout"},
		{http.MethodDelete, "/api/v1/sessions/nope"},
	} {
		w := do(t, h, r.method, r.path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, r.method+" "+r.path)
	}
	w := do(t, h, http.MethodPost, "/api/v1/sessions/nope/events", map[string]any{"events": []any{}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaveAndClose(t *testing.T) {
	h, st := newTestRouter(t)
	c := open(t, h)

	w := do(t, h, http.MethodPost, "/api/v1/sessions/"+c.ID+"/layout", nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	raw, err := st.ReadLayoutJSON(context.Background(), "AAA/5/layout@v1")
	require.NoError(t, err)
	assert.NotNil(t, raw)

	w = do(t, h, http.MethodDelete, "/api/v1/sessions/"+c.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodGet, "/api/v1/sessions/"+c.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCatalog(t *testing.T) {
	h, _ := newTestRouter(t)

	w := do(t, h, http.MethodGet, "/api/v1/indicators", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var kinds struct {
		Kinds []struct {
			Kind string `json:"kind"`
		} `json:"kinds"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &kinds))
	names := make([]string, 0, len(kinds.Kinds))
	for _, k := range kinds.Kinds {
		names = append(names, k.Kind)
	}
	assert.Contains(t, names, "sma")
	assert.Contains(t, names, "rsi")

	w = do(t, h, http.MethodGet, "/api/v1/drawings/types", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var types struct {
		Types []drawingType `json:"types"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &types))
	require.Len(t, types.Types, 10)
	assert.Equal(t, drawingType{Type: "note", Points: 1}, types.Types[0])
}

func TestSchemaNamer(t *testing.T) {
	h, _ := newTestRouter(t)
	w := do(t, h, http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		Components struct {
			Schemas map[string]json.RawMessage `json:"schemas"`
		} `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Contains(t, doc.Components.Schemas, "HoverState")
	assert.Contains(t, doc.Components.Schemas, "ScaleState")
}
