package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"dles/internal/apperr"
	"dles/internal/raceevents"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// wsHub tracks live race sockets so they can be counted and closed on
// shutdown.
type wsHub struct {
	mu     sync.Mutex
	groups map[string]map[*websocket.Conn]struct{}
}

func newWSHub() *wsHub {
	return &wsHub{groups: make(map[string]map[*websocket.Conn]struct{})}
}

func (h *wsHub) Add(raceID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[raceID]
	if group == nil {
		group = make(map[*websocket.Conn]struct{})
		h.groups[raceID] = group
	}
	group[conn] = struct{}{}
}

func (h *wsHub) Remove(raceID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[raceID]
	if group == nil {
		return
	}
	delete(group, conn)
	_ = conn.Close()
	if len(group) == 0 {
		delete(h.groups, raceID)
	}
}

func (h *wsHub) Count(raceID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[raceID])
}

// CloseAll sends a going-away close frame to every socket.
func (h *wsHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for raceID, group := range h.groups {
		for conn := range group {
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			_ = conn.Close()
		}
		delete(h.groups, raceID)
	}
}

// raceMessage is one frame of the race feed.
type raceMessage struct {
	Type  string        `json:"type"`
	Seq   uint          `json:"seq,omitempty"`
	Race  *raceSnapshot `json:"race"`
	Event any           `json:"event,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleRaceWebsocket streams race snapshots. The first frame is the current
// state; each published event is followed by a fresh snapshot.
func (s *Server) handleRaceWebsocket(c *gin.Context) {
	raceID := c.Param("id")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe, err := s.broker.Subscribe(ctx, raceID)
	if err != nil {
		s.respondError(c, apperr.Internal(err, "Race feed unavailable"), "Race feed unavailable")
		return
	}
	defer unsubscribe()
	snap, err := s.raceSnapshot(c.Request.Context(), raceID)
	if err != nil {
		s.respondError(c, err, "Failed to fetch race")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("ws upgrade failed", zap.String("race_id", raceID), zap.Error(err))
		return
	}
	s.logger.Info("ws connected", zap.String("race_id", raceID), zap.String("remote", c.ClientIP()))
	s.ws.Add(raceID, conn)
	defer s.ws.Remove(raceID, conn)

	go s.readRaceWS(raceID, conn, cancel)

	if err := s.writeWS(conn, raceMessage{Type: "snapshot", Race: &snap}); err != nil {
		return
	}
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			msg := raceMessage{Type: event.Type, Seq: event.Seq, Event: orNull(event.Payload)}
			if event.Type == raceevents.TypeDeleted {
				_ = s.writeWS(conn, msg)
				return
			}
			snap, err := s.raceSnapshot(ctx, raceID)
			if err != nil {
				s.logger.Warn("ws snapshot failed", zap.String("race_id", raceID), zap.Error(err))
				return
			}
			msg.Race = &snap
			if err := s.writeWS(conn, msg); err != nil {
				return
			}
		}
	}
}

func orNull(payload json.RawMessage) json.RawMessage {
	if len(payload) == 0 {
		return json.RawMessage("null")
	}
	return payload
}

func (s *Server) writeWS(conn *websocket.Conn, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readRaceWS drains client frames and cancels the feed once the peer goes
// away.
func (s *Server) readRaceWS(raceID string, conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.logger.Debug("ws disconnected", zap.String("race_id", raceID), zap.Error(err))
			return
		}
	}
}

// Close ends every live race socket.
func (s *Server) Close() {
	s.ws.CloseAll()
}
