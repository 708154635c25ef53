package ws

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/teamchat/teamchat/internal/metrics"
	"github.com/teamchat/teamchat/internal/protocol"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBufSize  = 256

	// Inbound frame budget per session. Anything past this is dropped as a
	// protocol no-op rather than surfaced as an error.
	inboundRate  = 25
	inboundBurst = 50
)

// Client represents a single websocket session on the server.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	limiter   *rate.Limiter
	log       *zap.Logger

	send chan []byte
	done chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, sessionID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: sessionID,
		limiter:   rate.NewLimiter(rate.Limit(inboundRate), inboundBurst),
		log:       hub.log,
		send:      make(chan []byte, sendBufSize),
		done:      make(chan struct{}),
	}
}

// ReadPump reads frames from the websocket and feeds them to the hub loop.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var ev protocol.Event
		err := wsjson.Read(context.Background(), c.conn, &ev)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.log.Debug("session closed", zap.String("session", c.sessionID))
			} else {
				c.log.Debug("read error",
					zap.String("session", c.sessionID),
					zap.Error(err))
			}
			return
		}
		if !c.limiter.Allow() {
			metrics.EventsDropped.Inc()
			continue
		}
		c.hub.inbound <- inboundFrame{client: c, ev: ev}
	}
}

// WritePump writes frames from the send channel to the websocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.log.Debug("write error",
					zap.String("session", c.sessionID),
					zap.Error(err))
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
