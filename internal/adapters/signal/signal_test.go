package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Together/internal/app"
	"github.com/dkeye/Together/internal/app/orch"
	"github.com/dkeye/Together/internal/domain"
	"github.com/dkeye/Together/internal/metrics"
)

type harness struct {
	ctl    *SignalWSController
	orch   *orch.Orchestrator
	m      *metrics.Metrics
	srv    *httptest.Server
	cancel context.CancelFunc
}

func testSettings() Settings {
	return Settings{
		ReadLimit:  4096,
		PingPeriod: time.Second,
		PongWait:   2 * time.Second,
		WriteWait:  time.Second,
		SendBuffer: 16,
	}
}

func newHarness(t *testing.T, s Settings, limiter *RoomRateLimiter) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := metrics.New(prometheus.NewRegistry())
	o := &orch.Orchestrator{
		Registry:    app.NewRegistry(),
		Connections: app.NewConnections(),
		Policy:      app.SimplePolicy{},
		JoinPolicy:  app.JoinMove,
		Metrics:     m,
	}
	if limiter == nil {
		limiter = NewRoomRateLimiter(100, time.Minute)
	}
	ctl := NewSignalWSController(o, limiter, m, s)

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)

	h := &harness{ctl: ctl, orch: o, m: m, srv: srv, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return h
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
	id domain.ConnID
}

func (h *harness) dial(t *testing.T, header http.Header) (*client, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return nil, resp, err
	}
	c := &client{t: t, ws: ws}
	t.Cleanup(func() { _ = ws.Close() })

	hello := c.read()
	require.Equal(t, "connected", hello["type"])
	c.id = domain.ConnID(hello["connectionId"].(string))
	require.NotEmpty(t, c.id)
	return c, resp, nil
}

func (h *harness) connect(t *testing.T) *client {
	t.Helper()
	c, _, err := h.dial(t, nil)
	require.NoError(t, err)
	return c
}

func (c *client) send(v any) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteJSON(v))
}

func (c *client) read() map[string]any {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m map[string]any
	require.NoError(c.t, c.ws.ReadJSON(&m))
	return m
}

// drain collects frames until the socket stays quiet for the given time.
func (c *client) drain(quiet time.Duration) []map[string]any {
	var out []map[string]any
	for {
		_ = c.ws.SetReadDeadline(time.Now().Add(quiet))
		var m map[string]any
		if err := c.ws.ReadJSON(&m); err != nil {
			return out
		}
		out = append(out, m)
	}
}

func TestSignalScenario(t *testing.T) {
	h := newHarness(t, testSettings(), nil)
	a := h.connect(t)
	b := h.connect(t)
	assert.NotEqual(t, a.id, b.id)

	a.send(map[string]any{"type": "join-room", "roomCode": "ABCD"})
	assert.Equal(t, map[string]any{"type": "room-users", "roomCode": "ABCD", "existingUsers": []any{}}, a.read())

	b.send(map[string]any{"type": "join-room", "roomCode": "ABCD"})
	assert.Equal(t, map[string]any{"type": "room-users", "roomCode": "ABCD", "existingUsers": []any{string(a.id)}}, b.read())
	assert.Equal(t, map[string]any{"type": "user-joined", "connectionId": string(b.id)}, a.read())

	b.send(map[string]any{"type": "offer", "target": a.id, "offer": map[string]any{"type": "offer", "sdp": "v=0"}})
	assert.Equal(t, map[string]any{
		"type":   "offer",
		"sender": string(b.id),
		"offer":  map[string]any{"type": "offer", "sdp": "v=0"},
	}, a.read())

	a.send(map[string]any{"type": "answer", "target": b.id, "answer": map[string]any{"type": "answer", "sdp": "v=0"}})
	assert.Equal(t, "answer", b.read()["type"])

	b.send(map[string]any{"type": "ice-candidate", "target": a.id, "candidate": map[string]any{"candidate": "c", "sdpMid": "0"}})
	got := a.read()
	assert.Equal(t, "ice-candidate", got["type"])
	assert.Equal(t, string(b.id), got["sender"])

	require.NoError(t, a.ws.Close())
	assert.Equal(t, map[string]any{"type": "user-left", "connectionId": string(a.id)}, b.read())
	require.Eventually(t, func() bool {
		members := h.orch.Registry.MembersOf("ABCD")
		return len(members) == 1 && members[0] == b.id
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.ws.Close())
	require.Eventually(t, func() bool {
		return h.orch.Registry.MembersOf("ABCD") == nil && h.orch.Connections.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, testutil.ToFloat64(h.m.Connections))
}

func TestMalformedFramesKeepConnection(t *testing.T) {
	h := newHarness(t, testSettings(), nil)
	a := h.connect(t)

	require.NoError(t, a.ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	a.send(map[string]any{"type": "offer", "offer": map[string]any{}})
	a.send(map[string]any{"type": "join-room"})
	a.send(map[string]any{"type": "teleport"})
	require.NoError(t, a.ws.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))

	a.send(map[string]any{"type": "ping"})
	assert.Equal(t, map[string]any{"type": "pong"}, a.read())

	a.send(map[string]any{"type": "join-room", "roomCode": "R"})
	assert.Equal(t, "room-users", a.read()["type"])
	assert.Equal(t, 5.0, testutil.ToFloat64(h.m.Malformed))
}

func TestRelayToUnknownTargetIsSilent(t *testing.T) {
	h := newHarness(t, testSettings(), nil)
	a := h.connect(t)

	a.send(map[string]any{"type": "offer", "target": "nobody", "offer": map[string]any{}})
	assert.Empty(t, a.drain(200*time.Millisecond))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.RelayDropped.WithLabelValues(metrics.ReasonUnknownTarget)))
}

func TestJoinRateLimit(t *testing.T) {
	h := newHarness(t, testSettings(), NewRoomRateLimiter(2, time.Minute))
	a := h.connect(t)

	a.send(map[string]any{"type": "join-room", "roomCode": "R"})
	assert.Equal(t, "room-users", a.read()["type"])
	a.send(map[string]any{"type": "join-room", "roomCode": "R"})
	assert.Equal(t, "room-users", a.read()["type"])
	a.send(map[string]any{"type": "join-room", "roomCode": "S"})
	assert.Equal(t, map[string]any{"type": "error", "error": "rate limited", "ref": "join-room"}, a.read())

	code, ok := h.orch.Registry.RoomOf(a.id)
	require.True(t, ok)
	assert.Equal(t, domain.RoomCode("R"), code)
}

func TestShutdownTearsDownSessions(t *testing.T) {
	h := newHarness(t, testSettings(), nil)
	a := h.connect(t)
	b := h.connect(t)
	a.send(map[string]any{"type": "join-room", "roomCode": "R"})
	a.read()
	b.send(map[string]any{"type": "join-room", "roomCode": "R"})
	b.read()

	h.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.ctl.Wait(ctx))
	assert.Zero(t, h.orch.Registry.Len())
	assert.Zero(t, h.orch.Connections.Len())

	_ = a.ws.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := a.ws.ReadMessage()
	for err == nil {
		_, _, err = a.ws.ReadMessage()
	}
	assert.Error(t, err)
}

// Closing from both ends at once must produce one teardown: one user-left
// per remaining member and a single gauge decrement.
func TestConcurrentCloseTearsDownOnce(t *testing.T) {
	h := newHarness(t, testSettings(), nil)
	a := h.connect(t)
	c := h.connect(t)
	a.send(map[string]any{"type": "join-room", "roomCode": "R"})
	a.read()
	c.send(map[string]any{"type": "join-room", "roomCode": "R"})
	c.read()
	a.read() // user-joined c

	server, ok := h.orch.Connections.Get(a.id)
	require.True(t, ok)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = a.ws.Close()
	}()
	go func() {
		defer wg.Done()
		server.Close()
	}()
	wg.Wait()

	frames := c.drain(300 * time.Millisecond)
	left := 0
	for _, f := range frames {
		if f["type"] == "user-left" {
			left++
			assert.Equal(t, string(a.id), f["connectionId"])
		}
	}
	assert.Equal(t, 1, left)
	assert.Equal(t, []domain.ConnID{c.id}, h.orch.Registry.MembersOf("R"))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.Connections))
}

func TestOriginAllowlist(t *testing.T) {
	s := testSettings()
	s.AllowedOrigins = []string{"https://meet.example"}
	h := newHarness(t, s, nil)

	_, resp, err := h.dial(t, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	c, _, err := h.dial(t, http.Header{"Origin": []string{"https://meet.example"}})
	require.NoError(t, err)
	assert.NotEmpty(t, c.id)
}

func TestJoinSnapshotExcludesSelf(t *testing.T) {
	h := newHarness(t, testSettings(), nil)
	clients := []*client{h.connect(t), h.connect(t), h.connect(t)}
	for _, c := range clients {
		c.send(map[string]any{"type": "join-room", "roomCode": "grp"})
	}

	for _, c := range clients {
		require.NoError(t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, raw, err := c.ws.ReadMessage()
		require.NoError(t, err)
		var first struct {
			Type          string   `json:"type"`
			ExistingUsers []string `json:"existingUsers"`
		}
		require.NoError(t, json.Unmarshal(raw, &first))
		assert.Equal(t, "room-users", first.Type)
		assert.NotContains(t, first.ExistingUsers, string(c.id))
	}
}

func TestLateJoinAfterTeardownLeavesNoMember(t *testing.T) {
	h := newHarness(t, testSettings(), nil)
	peer := h.connect(t)

	id := domain.NewConnID()
	conn := newWsSignalConn(peer.ws, 4)
	require.NoError(t, h.orch.Connections.Bind(id, conn))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &session{id: id, conn: conn, cancel: cancel}
	h.ctl.sessions.Add(1)

	// Write side gives up while the read side still holds a join it read.
	h.ctl.teardown(s, "write error")
	h.ctl.handleFrame(s, []byte(`{"type":"join-room","roomCode":"ROOM"}`))
	h.ctl.teardown(s, "read error")
	require.Error(t, ctx.Err())

	assert.Nil(t, h.orch.Registry.MembersOf("ROOM"))
	_, inRoom := h.orch.Registry.RoomOf(id)
	assert.False(t, inRoom)
	assert.Zero(t, h.orch.Registry.Len())
}
