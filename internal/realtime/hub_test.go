package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	safeA = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	safeB = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

func event(typ EventType, chainID, safe, kind string) *Event {
	return &Event{Type: typ, ChainID: chainID, Safe: safe, Data: AnalysisUpdate{Kind: kind}}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Stats().ConnectedClients == n },
		time.Second, 10*time.Millisecond)
}

func TestFilter_ZeroMatchesEverything(t *testing.T) {
	var f Filter
	assert.True(t, f.Matches(event(EventAnalysisUpdated, "1", safeA, "recipient")))
	assert.True(t, f.Matches(event(EventAnalysisCompleted, "137", safeB, "threat")))
}

func TestFilter_Matches(t *testing.T) {
	f := Filter{Safes: []string{safeA}, ChainIDs: []string{"1"}, Kinds: []string{"recipient", "threat"}}

	tests := []struct {
		name  string
		event *Event
		want  bool
	}{
		{"matching", event(EventAnalysisUpdated, "1", safeA, "recipient"), true},
		{"other safe", event(EventAnalysisUpdated, "1", safeB, "recipient"), false},
		{"other chain", event(EventAnalysisUpdated, "137", safeA, "recipient"), false},
		{"other kind", event(EventAnalysisUpdated, "1", safeA, "contract"), false},
		{"second kind", event(EventAnalysisCompleted, "1", safeA, "threat"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Matches(tt.event))
		})
	}
}

func TestFilter_CompletedOnly(t *testing.T) {
	f := Filter{CompletedOnly: true}
	assert.False(t, f.Matches(event(EventAnalysisUpdated, "1", safeA, "recipient")))
	assert.True(t, f.Matches(event(EventAnalysisCompleted, "1", safeA, "recipient")))
}

func TestFilterFromQuery(t *testing.T) {
	q := url.Values{
		"safe":      {strings.ToLower(safeA)},
		"chainId":   {"1"},
		"kind":      {"threat"},
		"completed": {"true"},
	}
	f := FilterFromQuery(q)
	assert.Equal(t, []string{safeA}, f.Safes, "safes are checksummed")
	assert.Equal(t, []string{"1"}, f.ChainIDs)
	assert.Equal(t, []string{"threat"}, f.Kinds)
	assert.True(t, f.CompletedOnly)

	empty := FilterFromQuery(url.Values{})
	assert.Empty(t, empty.Safes)
	assert.False(t, empty.CompletedOnly)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.safe.global/"})

	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://api.example/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, check(req("")), "non-browser clients are allowed")
	assert.True(t, check(req("https://app.safe.global")))
	assert.True(t, check(req("https://api.example")), "same host is allowed")
	assert.False(t, check(req("https://evil.example")))
}

func TestHub_StatsInitial(t *testing.T) {
	assert.Equal(t, Stats{}, testHub().Stats())
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := startHub(t)
	c := newClient(h, nil, Filter{})

	h.register <- c
	waitForClients(t, h, 1)

	h.unregister <- c
	waitForClients(t, h, 0)

	stats := h.Stats()
	assert.Equal(t, int64(1), stats.PeakClients)
	assert.Equal(t, int64(1), stats.TotalClients)

	_, open := <-c.send
	assert.False(t, open, "send channel is closed on unregister")
}

func TestHub_PublishAnalysisRespectsFilter(t *testing.T) {
	h := startHub(t)
	c := newClient(h, nil, Filter{Safes: []string{safeA}})
	h.register <- c
	waitForClients(t, h, 1)

	h.PublishAnalysis("1", safeB, AnalysisUpdate{Kind: "recipient", Loading: true})
	h.PublishAnalysis("1", strings.ToLower(safeA), AnalysisUpdate{Kind: "recipient"})

	select {
	case msg := <-c.send:
		var ev Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, EventAnalysisCompleted, ev.Type)
		assert.Equal(t, safeA, ev.Safe)
		assert.Equal(t, "recipient", ev.Data.Kind)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case <-c.send:
		t.Error("client should receive only the matching event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_SlowClientDisconnected(t *testing.T) {
	h := startHub(t)
	c := newClient(h, nil, Filter{})
	c.send = make(chan []byte) // unbuffered and never read
	h.register <- c
	waitForClients(t, h, 1)

	h.PublishAnalysis("1", safeA, AnalysisUpdate{Kind: "contract"})
	waitForClients(t, h, 0)
}

func TestHub_PublishDropsWhenQueueFull(t *testing.T) {
	h := testHub() // not running, nothing drains the queue
	for i := 0; i < cap(h.events)+3; i++ {
		h.PublishAnalysis("1", safeA, AnalysisUpdate{Kind: "recipient", Loading: true})
	}
	assert.Equal(t, int64(3), h.Stats().DroppedEvents)
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop after context cancellation")
	}

	w := httptest.NewRecorder()
	h.HandleWebSocket(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHub_WebSocketEndToEnd(t *testing.T) {
	h := startHub(t)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?safe=" + safeA
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	waitForClients(t, h, 1)

	// Narrow the subscription to completed threat results.
	require.NoError(t, conn.WriteJSON(Filter{Safes: []string{safeA}, Kinds: []string{"threat"}, CompletedOnly: true}))
	require.Eventually(t, func() bool {
		for c := range snapshotClients(h) {
			if c.filter.Load().CompletedOnly {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	h.PublishAnalysis("1", safeA, AnalysisUpdate{Kind: "threat", Loading: true})
	h.PublishAnalysis("1", safeA, AnalysisUpdate{Kind: "threat"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"analysis_completed"`)
}

func snapshotClients(h *Hub) map[*Client]struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[*Client]struct{}, len(h.clients))
	for c := range h.clients {
		out[c] = struct{}{}
	}
	return out
}
