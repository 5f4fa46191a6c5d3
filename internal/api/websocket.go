package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"signal-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamMessage is one bus event as sent to websocket clients.
type streamMessage struct {
	Event   events.Event `json:"event"`
	Payload any          `json:"payload"`
}

// websocket streams every lifecycle event until the client goes away.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	if s.bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	done := make(chan struct{})
	defer close(done)

	merged := make(chan streamMessage, 64)
	for _, topic := range events.All {
		stream, unsub := s.bus.Subscribe(topic, 32)
		defer unsub()
		go func(topic events.Event) {
			for payload := range stream {
				select {
				case merged <- streamMessage{Event: topic, Payload: payload}:
				case <-done:
					return
				}
			}
		}(topic)
	}

	// The reader notices client close frames; its exit ends the stream.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg := <-merged:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				s.log.Debug().Err(err).Msg("ws write failed")
				return
			}
		}
	}
}
