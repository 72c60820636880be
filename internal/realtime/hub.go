// Package realtime streams analysis progress to WebSocket clients.
//
// Recipient analysis resolves source by source. Each partial merge is
// published as an analysis_updated event so that a client watching a Safe
// can render findings as they arrive instead of polling. The final state of
// an analysis is sent as analysis_completed.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxFilterBytes = 16 * 1024
	sendBuffer     = 64
)

// MaxClients is the maximum number of concurrent WebSocket connections.
const MaxClients = 10000

// EventType distinguishes partial from final analysis states.
type EventType string

const (
	EventAnalysisUpdated   EventType = "analysis_updated"
	EventAnalysisCompleted EventType = "analysis_completed"
)

// AnalysisUpdate is the payload of analysis events.
type AnalysisUpdate struct {
	Kind    string `json:"kind"` // "recipient", "contract", "threat"
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
	Results any    `json:"results,omitempty"`
}

// Event is one message on the stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	ChainID   string         `json:"chainId"`
	Safe      string         `json:"safe"`
	Data      AnalysisUpdate `json:"data"`
}

// Filter selects the events a client receives. Empty lists match
// everything, so the zero Filter receives the whole stream.
type Filter struct {
	Safes         []string `json:"safes"`
	ChainIDs      []string `json:"chainIds"`
	Kinds         []string `json:"kinds"`
	CompletedOnly bool     `json:"completedOnly"`
}

// Matches reports whether e passes the filter.
func (f *Filter) Matches(e *Event) bool {
	if f.CompletedOnly && e.Type != EventAnalysisCompleted {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, e.Data.Kind) {
		return false
	}
	if len(f.ChainIDs) > 0 && !slices.Contains(f.ChainIDs, e.ChainID) {
		return false
	}
	if len(f.Safes) > 0 && !slices.Contains(f.Safes, e.Safe) {
		return false
	}
	return true
}

func (f Filter) normalized() Filter {
	f.Safes = analysis.ChecksumAll(f.Safes)
	return f
}

// FilterFromQuery reads ?safe=&chainId=&kind=&completed= so a client can
// subscribe without sending a message first.
func FilterFromQuery(q url.Values) Filter {
	completed, _ := strconv.ParseBool(q.Get("completed"))
	return Filter{
		Safes:         q["safe"],
		ChainIDs:      q["chainId"],
		Kinds:         q["kind"],
		CompletedOnly: completed,
	}.normalized()
}

// Stats is a snapshot of hub activity.
type Stats struct {
	ConnectedClients int   `json:"connectedClients"`
	PeakClients      int64 `json:"peakClients"`
	TotalClients     int64 `json:"totalClients"`
	TotalEvents      int64 `json:"totalEvents"`
	DroppedEvents    int64 `json:"droppedEvents"`
}

// Client is one WebSocket subscriber.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	filter atomic.Pointer[Filter]
}

func newClient(h *Hub, conn *websocket.Conn, f Filter) *Client {
	c := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	c.filter.Store(&f)
	return c
}

func (c *Client) wants(e *Event) bool {
	return c.filter.Load().Matches(e)
}

// Hub fans analysis events out to subscribed clients.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	events     chan *Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed when Run exits

	mu         sync.RWMutex
	clients    map[*Client]struct{}
	maxClients int

	peak    atomic.Int64
	joined  atomic.Int64
	sent    atomic.Int64
	dropped atomic.Int64
}

// NewHub creates a hub. Browser origins other than the server's own host
// must be listed in allowedOrigins.
func NewHub(logger *slog.Logger, allowedOrigins ...string) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		events:     make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		maxClients: MaxClients,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client
		}
		if set["*"] || set[origin] {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("realtime hub stopped")
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case e := <-h.events:
			h.fanOut(e)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.joined.Add(1)
	if int64(n) > h.peak.Load() {
		h.peak.Store(int64(n))
	}
	metrics.ActiveWebSocketClients.Set(float64(n))
	h.logger.Debug("client connected", "total", n)
}

func (h *Hub) remove(clients ...*Client) {
	h.mu.Lock()
	for _, c := range clients {
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.ActiveWebSocketClients.Set(float64(n))
	h.logger.Debug("client disconnected", "total", n)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		close(c.send) // writePump answers with a close frame
		delete(h.clients, c)
	}
	h.mu.Unlock()
	metrics.ActiveWebSocketClients.Set(0)
}

// fanOut delivers e to every interested client. Clients whose buffer is
// full are disconnected rather than slowing down the stream.
func (h *Hub) fanOut(e *Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("encode realtime event", "error", err)
		return
	}
	h.sent.Add(1)

	var slow []*Client
	h.mu.RLock()
	for c := range h.clients {
		if !c.wants(e) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) > 0 {
		h.remove(slow...)
	}
}

// Publish queues an event without blocking the analysis that produced it.
func (h *Hub) Publish(e *Event) {
	select {
	case h.events <- e:
	default:
		h.dropped.Add(1)
		h.logger.Warn("realtime queue full, dropping event", "type", e.Type, "safe", e.Safe)
	}
}

// PublishAnalysis broadcasts analysis progress for a Safe.
func (h *Hub) PublishAnalysis(chainID, safe string, update AnalysisUpdate) {
	typ := EventAnalysisUpdated
	if !update.Loading {
		typ = EventAnalysisCompleted
	}
	h.Publish(&Event{
		Type:      typ,
		Timestamp: time.Now().UTC(),
		ChainID:   chainID,
		Safe:      analysis.Checksum(safe),
		Data:      update,
	})
}

// Stats returns a snapshot of hub activity.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return Stats{
		ConnectedClients: n,
		PeakClients:      h.peak.Load(),
		TotalClients:     h.joined.Load(),
		TotalEvents:      h.sent.Load(),
		DroppedEvents:    h.dropped.Load(),
	}
}

// HandleWebSocket upgrades the request and subscribes the connection.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	h.mu.RLock()
	full := len(h.clients) >= h.maxClients
	h.mu.RUnlock()
	if full {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn, FilterFromQuery(r.URL.Query()))
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump accepts filter replacements until the connection drops.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFilterBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		var f Filter
		if err := json.Unmarshal(msg, &f); err != nil {
			continue
		}
		f = f.normalized()
		c.filter.Store(&f)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.logger.Debug("websocket write error", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
