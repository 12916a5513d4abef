package devserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"unigo-console/internal/model"
	"unigo-console/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Development only: any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client is one authenticated websocket connection.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID int
}

func (c *client) readPump() {
	defer func() {
		c.hub.send(c.hub.unregister, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).WithField("user_id", c.userID).Debug("socket closed")
			}
			return
		}
		var env realtime.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.hub.log.WithError(err).Warn("dropping malformed frame")
			continue
		}
		c.handle(env)
	}
}

func (c *client) handle(env realtime.Envelope) {
	switch env.Event {
	case realtime.EventUserOnline:
		c.hub.send(c.hub.online, c)

	case realtime.EventTyping, realtime.EventStopTyping:
		var ev model.TypingEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil || ev.ReceiverID == 0 {
			return
		}
		out := realtime.EventUserTyping
		if env.Event == realtime.EventStopTyping {
			out = realtime.EventUserStopTyping
		}
		if err := c.hub.Push(ev.ReceiverID, out, model.TypingEvent{SenderID: c.userID}); err != nil {
			c.hub.log.WithError(err).Warn("relay typing")
		}

	default:
		c.hub.log.WithField("event", env.Event).Debug("ignoring client event")
	}
}

// writePump writes one frame per queued event and keeps the peer alive
// with pings. It owns every write on conn.
func (c *client) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer c.conn.Close()

	for {
		kind, frame := websocket.TextMessage, []byte(nil)
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, nil)
				return
			}
			frame = msg
		case <-ping.C:
			kind = websocket.PingMessage
		}
		if err := c.write(kind, frame); err != nil {
			c.hub.log.WithError(err).WithField("user_id", c.userID).Debug("socket write")
			return
		}
	}
}

func (c *client) write(kind int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}

// serveSocket upgrades an authenticated request and registers the
// connection with the hub.
func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade")
		return
	}
	c := &client{hub: s.hub, conn: conn, send: make(chan []byte, 256), userID: claims.ID}
	s.hub.send(s.hub.register, c)

	go c.writePump()
	go c.readPump()
}
