package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/ignition-core/internal/status"
)

// Websocket timing and message size limits.
const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12
	defaultInterval  = 1 * time.Second
	minInterval      = 50 * time.Millisecond
	maxInterval      = 10 * time.Second
	maxIntervalMilli = 10_000
)

// envelope is the websocket message format.
type envelope struct {
	Type  string             `json:"type"`
	Data  *status.StatusJSON `json:"data,omitempty"`
	Error string             `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	// The status page is served from the controller itself on a closed network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS streams the status: once on connect, then on every tracker change
// and at least once per refresh interval.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	interval := parseInterval(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMsgSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go s.readLoop(conn, done)

	refresh := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		refresh.Stop()
		ping.Stop()
	}()

	changed, _ := s.tracker.Changed()
	if err := s.send(conn); err != nil {
		s.log.Infow("ws initial write failed", "err", err)
		return
	}

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Infow("ws ping failed", "err", err)
				return
			}
		case <-changed:
			changed, _ = s.tracker.Changed()
			if err := s.send(conn); err != nil {
				s.log.Infow("ws write failed", "err", err)
				return
			}
		case <-refresh.C:
			if err := s.send(conn); err != nil {
				s.log.Infow("ws write failed", "err", err)
				return
			}
		}
	}
}

// readLoop drains incoming messages so control frames are processed, and
// closes done when the peer goes away.
func (s *Server) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) send(conn *websocket.Conn) error {
	st := status.Build(s.tracker.Snapshot())
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(envelope{Type: "status", Data: &st})
}

// parseInterval reads ?interval=2s or ?interval_ms=2000 within bounds.
func parseInterval(r *http.Request) time.Duration {
	q := r.URL.Query()
	if v := q.Get("interval"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= minInterval && d <= maxInterval {
			return d
		}
	}
	if v := q.Get("interval_ms"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 && ms <= maxIntervalMilli {
			if d := time.Duration(ms) * time.Millisecond; d >= minInterval {
				return d
			}
		}
	}
	return defaultInterval
}
