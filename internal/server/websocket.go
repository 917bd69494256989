package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"watcher/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
)

// handleWS streams Stats, then History, then live bus messages.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	// Subscribe before taking the snapshots so nothing published in between is lost.
	sub := s.bus.Subscribe()
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Server: websocket upgrade failed", "remoteAddr", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	s.metrics.SubscriberConnected()
	defer s.metrics.SubscriberDisconnected()
	s.logger.Info("Server: subscriber connected", "remoteAddr", r.RemoteAddr)

	if err := s.send(conn, model.NewStatsMessage(s.history.Stats())); err != nil {
		s.logger.Warn("Server: failed to send stats", "remoteAddr", r.RemoteAddr, "error", err)
		return
	}
	if err := s.send(conn, model.NewHistoryMessage(s.history.RecentSignals())); err != nil {
		s.logger.Warn("Server: failed to send history", "remoteAddr", r.RemoteAddr, "error", err)
		return
	}

	closed := make(chan struct{})
	go readLoop(conn, closed)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-closed:
			s.logger.Info("Server: subscriber disconnected", "remoteAddr", r.RemoteAddr, "dropped", sub.Dropped())
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			if err := s.send(conn, msg); err != nil {
				s.logger.Warn("Server: failed to send message", "remoteAddr", r.RemoteAddr, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, msg model.Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// readLoop discards client frames and closes done once the peer goes away or
// stops answering pings.
func readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
