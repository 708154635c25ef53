package ws

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ServeWS returns an HTTP handler that upgrades to websocket and registers
// the session with the hub. Login is a name announcement over the socket, not
// an authentication step, so the upgrade itself is unauthenticated.
func ServeWS(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true, // any origin, same as the CORS policy
		})
		if err != nil {
			hub.log.Warn("websocket accept", zap.Error(err))
			return
		}

		client := NewClient(hub, conn, uuid.NewString())
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}
