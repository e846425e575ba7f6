package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartdesk/internal/coord"
	"chartdesk/internal/feed"
	"chartdesk/internal/model"
	"chartdesk/internal/session"
	"chartdesk/internal/workspace"
)

type frame struct {
	Type    string             `json:"type"`
	Session string             `json:"session"`
	Seq     int64              `json:"seq"`
	Initial bool               `json:"initial"`
	Data    workspace.Snapshot `json:"data"`
	Errors  []string           `json:"errors"`
	Ping    int64              `json:"ping"`
}

type fixture struct {
	srv     *httptest.Server
	hub     *Hub
	mgr     *session.Manager
	id      string
	clients atomic.Int32
	batches atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	f.mgr = session.NewManager(session.Options{
		Feed:      feed.Validated(feed.NewSynthetic(feed.SyntheticOptions{Bars: 120, End: time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC)})),
		Workspace: workspace.Options{Viewport: coord.Viewport{Width: 800, Height: 400}},
	})
	id, _, err := f.mgr.Open(context.Background(), model.SeriesKey{Symbol: "AAA", Timeframe: "5"})
	require.NoError(t, err)
	f.id = id

	f.hub = NewHub(f.mgr, Options{
		Debounce: 5 * time.Millisecond,
		Hooks: Hooks{
			OnClients: func(n int) { f.clients.Store(int32(n)) },
			OnBatch:   func(int) { f.batches.Add(1) },
		},
	})
	r := chi.NewRouter()
	f.hub.Mount(r)
	f.srv = httptest.NewServer(r)
	t.Cleanup(func() {
		f.hub.Close()
		f.srv.Close()
	})
	return f
}

func (f *fixture) dial(t *testing.T, id string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/sessions/" + id
	return websocket.DefaultDialer.Dial(url, nil)
}

func (f *fixture) connect(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := f.dial(t, f.id)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames, splitting coalesced envelopes, until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		for _, line := range bytes.Split(msg, []byte{'\n'}) {
			var fr frame
			require.NoError(t, json.Unmarshal(line, &fr), string(line))
			if match(fr) {
				return fr
			}
		}
	}
}

func isType(typ string) func(frame) bool {
	return func(fr frame) bool { return fr.Type == typ }
}

func TestWS_UnknownSession(t *testing.T) {
	f := newFixture(t)
	_, resp, err := f.dial(t, "nope")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWS_InitialSnapshot(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t)

	fr := readUntil(t, conn, isType("snapshot"))
	assert.True(t, fr.Initial)
	assert.Equal(t, f.id, fr.Session)
	require.NotNil(t, fr.Data.Series.Base)
	assert.Equal(t, 120, fr.Data.Series.Base.Bars)
	assert.EqualValues(t, 1, f.clients.Load())
}

func TestWS_BatchFansOut(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t)
	readUntil(t, a, isType("snapshot"))
	b := f.connect(t)
	readUntil(t, b, isType("snapshot"))

	require.NoError(t, a.WriteMessage(websocket.TextMessage,
		[]byte(`[{"type":"arm","kind":"note"},{"type":"click","x":400,"y":200}]`)))

	hasDrawing := func(fr frame) bool { return fr.Type == "snapshot" && !fr.Initial && len(fr.Data.Objects) == 1 }
	got := readUntil(t, a, hasDrawing)
	assert.Positive(t, got.Seq)
	readUntil(t, b, hasDrawing)
	assert.Positive(t, f.batches.Load())

	dump, err := f.mgr.Dump(f.id)
	require.NoError(t, err)
	assert.Len(t, dump.Objects, 1)
}

func TestWS_ErrorsGoToSender(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t)
	readUntil(t, conn, isType("snapshot"))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport"}`)))
	fr := readUntil(t, conn, isType("error"))
	require.Len(t, fr.Errors, 1)
	assert.Contains(t, fr.Errors[0], "teleport")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	fr = readUntil(t, conn, isType("error"))
	assert.Contains(t, fr.Errors[0], "invalid frame")
}

func TestWS_Ping(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","ping":1234}`)))
	fr := readUntil(t, conn, isType("pong"))
	assert.EqualValues(t, 1234, fr.Ping)
}

func TestWS_DisconnectAndStats(t *testing.T) {
	f := newFixture(t)
	conn, _, err := f.dial(t, f.id)
	require.NoError(t, err)
	readUntil(t, conn, isType("snapshot"))
	assert.Equal(t, 1, f.hub.ClientCount())

	resp, err := http.Get(f.srv.URL + "/ws/stats")
	require.NoError(t, err)
	var st Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.Equal(t, 1, st.Clients)

	conn.Close()
	assert.Eventually(t, func() bool { return f.hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 0, f.clients.Load())
}

func TestDecodeFrame(t *testing.T) {
	evs, ping, err := decodeFrame([]byte(` {"type":"hover","x":10,"y":20} `))
	require.NoError(t, err)
	assert.Zero(t, ping)
	require.Len(t, evs, 1)
	assert.Equal(t, workspace.EvHover, evs[0].Type)
	assert.Equal(t, 10.0, evs[0].X)

	evs, _, err = decodeFrame([]byte(`[{"type":"autoFit"},{"type":"clearHover"}]`))
	require.NoError(t, err)
	assert.Len(t, evs, 2)

	evs, ping, err = decodeFrame([]byte(`{"type":"ping","ping":7}`))
	require.NoError(t, err)
	assert.Empty(t, evs)
	assert.EqualValues(t, 7, ping)

	_, _, err = decodeFrame([]byte(`[{"type":`))
	assert.Error(t, err)
}

func TestBroadcaster_DropsStaleSnapshots(t *testing.T) {
	h := NewHub(nil, Options{})
	c := &Client{session: "s1", send: make(chan []byte, 4)}
	h.clients[c] = struct{}{}

	newer := workspace.Snapshot{Render: workspace.Render{Passes: 5}}
	older := workspace.Snapshot{Render: workspace.Render{Passes: 3}}
	h.Broadcaster.Broadcast("s1", newer)
	h.Broadcaster.Broadcast("s1", older)
	h.Broadcaster.Broadcast("s2", newer)

	require.Len(t, c.send, 1)
	var fr frame
	require.NoError(t, json.Unmarshal(<-c.send, &fr))
	assert.EqualValues(t, 1, fr.Seq)
	assert.EqualValues(t, 5, fr.Data.Render.Passes)
}
