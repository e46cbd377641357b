package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"hypo-churn/internal/metrics"
	"hypo-churn/internal/serving"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// StatsStream pushes serving statistics to WebSocket clients at a fixed
// interval.
type StatsStream struct {
	source    func() serving.Stats
	interval  time.Duration
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	gauge     metrics.MetricsGauge
}

// NewStatsStream creates a stream reading from source. Origins follow the
// CORS allow-list.
func NewStatsStream(source func() serving.Stats, interval time.Duration, origins []string, gauge metrics.MetricsGauge) *StatsStream {
	if interval <= 0 {
		interval = time.Second
	}
	return &StatsStream{
		source:   source,
		interval: interval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || originAllowed(origins, origin)
			},
		},
		clients: make(map[*websocket.Conn]bool),
		gauge:   gauge,
	}
}

// Run broadcasts until ctx is done, then disconnects every client.
func (ss *StatsStream) Run(ctx context.Context) {
	ticker := time.NewTicker(ss.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ss.broadcast(ss.source())
		case <-ctx.Done():
			ss.closeAll()
			return
		}
	}
}

// ClientCount returns the number of connected clients.
func (ss *StatsStream) ClientCount() int {
	ss.clientsMu.Lock()
	defer ss.clientsMu.Unlock()
	return len(ss.clients)
}

func (ss *StatsStream) broadcast(stats serving.Stats) {
	data, err := json.Marshal(stats)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal stats for broadcast")
		return
	}

	ss.clientsMu.Lock()
	defer ss.clientsMu.Unlock()

	for client := range ss.clients {
		client.SetWriteDeadline(time.Now().Add(ss.interval))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Msg("Dropping stats stream client")
			client.Close()
			ss.remove(client)
		}
	}
}

// remove must be called with clientsMu held.
func (ss *StatsStream) remove(conn *websocket.Conn) {
	if _, ok := ss.clients[conn]; !ok {
		return
	}
	delete(ss.clients, conn)
	if ss.gauge != nil {
		ss.gauge.Add(-1)
	}
}

func (ss *StatsStream) closeAll() {
	ss.clientsMu.Lock()
	defer ss.clientsMu.Unlock()
	for client := range ss.clients {
		client.Close()
		ss.remove(client)
	}
}

func (ss *StatsStream) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ss.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	// Initial snapshot goes out before registration so the broadcaster never
	// writes to this connection concurrently.
	if data, err := json.Marshal(ss.source()); err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}

	ss.clientsMu.Lock()
	ss.clients[conn] = true
	if ss.gauge != nil {
		ss.gauge.Add(1)
	}
	ss.clientsMu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	ss.clientsMu.Lock()
	ss.remove(conn)
	ss.clientsMu.Unlock()
}
