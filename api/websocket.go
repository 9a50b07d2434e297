package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"espmonitor/stream"
)

// wsConn serializes writes; gorilla connections allow one concurrent writer
type wsConn struct {
	c         *websocket.Conn
	writeWait time.Duration
	writeMu   sync.Mutex
}

func (cw *wsConn) writeText(b []byte) error {
	cw.writeMu.Lock()
	defer cw.writeMu.Unlock()
	cw.c.SetWriteDeadline(time.Now().Add(cw.writeWait))
	return cw.c.WriteMessage(websocket.TextMessage, b)
}

func (cw *wsConn) writePing() error {
	cw.writeMu.Lock()
	defer cw.writeMu.Unlock()
	cw.c.SetWriteDeadline(time.Now().Add(cw.writeWait))
	return cw.c.WriteMessage(websocket.PingMessage, nil)
}

func (cw *wsConn) closeWith(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = cw.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(cw.writeWait))
}

// handleSerialStream pushes every serial line to the client as {ts, line}.
// Client frames are read and discarded only to notice a disconnect.
func (s *Server) handleSerialStream(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn := &wsConn{c: c, writeWait: s.writeWait}

	sub := s.broadcaster.Subscribe()
	logger := s.logger.With("remote", r.RemoteAddr, "subscriber", sub.ID())
	logger.Info("Stream client connected", "clients", s.broadcaster.Count())

	ctx, cancel := context.WithCancel(s.ctx)
	defer func() {
		cancel()
		s.broadcaster.Unsubscribe(sub)
		c.Close()
		logger.Info("Stream client disconnected", "dropped", sub.Dropped())
	}()

	go func() {
		defer cancel()
		c.SetReadLimit(4096)
		for {
			if _, _, err := c.NextReader(); err != nil {
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(s.pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.writePing(); err != nil {
					logger.Debug("Ping failed", "error", err)
					cancel()
					return
				}
			}
		}
	}()

	for {
		line, err := sub.Next(ctx)
		if err != nil {
			// Unsubscribed by the broadcaster or the server is stopping
			if s.ctx.Err() != nil || errors.Is(err, stream.ErrClosed) {
				conn.closeWith(websocket.CloseGoingAway, "stream closed")
			}
			return
		}

		data, err := json.Marshal(line)
		if err != nil {
			logger.Error("Failed to marshal line", "error", err)
			continue
		}
		if err := conn.writeText(data); err != nil {
			logger.Debug("Stream write failed", "error", err)
			return
		}
	}
}
