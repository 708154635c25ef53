package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/teamchat/teamchat/internal/protocol"
)

func TestDispatchRunsHandlersInSubscriptionOrder(t *testing.T) {
	d := newDispatcher()

	var order []string
	d.on("message:new", func(json.RawMessage) { order = append(order, "first") })
	d.on("message:new", func(json.RawMessage) { order = append(order, "second") })
	d.on("message:new", func(json.RawMessage) { order = append(order, "third") })

	d.dispatch("message:new", nil)

	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("dispatch order = %v", order)
	}
}

func TestCancelRemovesOnlyThatHandler(t *testing.T) {
	d := newDispatcher()

	var got []string
	d.on("presence:update", func(json.RawMessage) { got = append(got, "a") })
	sub := d.on("presence:update", func(json.RawMessage) { got = append(got, "b") })
	d.on("presence:update", func(json.RawMessage) { got = append(got, "c") })

	sub.Cancel()
	d.dispatch("presence:update", nil)

	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("handlers after cancel = %v", got)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	d := newDispatcher()
	sub := d.on("typing:update", func(json.RawMessage) {})
	sub.Cancel()
	sub.Cancel()

	var nilSub *Subscription
	nilSub.Cancel()
}

func TestDispatchUnknownEventIsNoop(t *testing.T) {
	d := newDispatcher()
	d.on("channel:activity", func(json.RawMessage) {
		t.Fatal("handler for a different event fired")
	})
	d.dispatch("no:such:event", nil)
}

func TestDispatchPassesPayloadThrough(t *testing.T) {
	d := newDispatcher()

	var got json.RawMessage
	d.on("message:update", func(p json.RawMessage) { got = p })

	raw := json.RawMessage(`{"id":"m1"}`)
	d.dispatch("message:update", raw)

	if string(got) != `{"id":"m1"}` {
		t.Fatalf("payload = %s", got)
	}
}

func TestReconnectDelayGrowsAndIsCapped(t *testing.T) {
	r := newReconnector()

	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		delay := r.nextDelay()
		if delay < prev && delay != r.maxDelay {
			t.Fatalf("delay shrank before hitting the cap: %v after %v", delay, prev)
		}
		if delay > r.maxDelay {
			t.Fatalf("delay %v exceeds cap %v", delay, r.maxDelay)
		}
		prev = delay
	}
	if prev != r.maxDelay {
		t.Fatalf("delay never reached cap: %v", prev)
	}
}

// recordingServer accepts one websocket session and streams the names of the
// frames it receives.
func recordingServer(t *testing.T) (*httptest.Server, chan string) {
	t.Helper()
	names := make(chan string, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		for {
			var ev protocol.Event
			if err := wsjson.Read(r.Context(), c, &ev); err != nil {
				return
			}
			names <- ev.Name
		}
	}))
	t.Cleanup(srv.Close)
	return srv, names
}

func nextName(t *testing.T, names chan string) string {
	t.Helper()
	select {
	case name := <-names:
		return name
	case <-time.After(5 * time.Second):
		t.Fatal("no frame received")
		return ""
	}
}

func TestOfflineBufferFlushesAfterConnectHandlers(t *testing.T) {
	srv, names := recordingServer(t)

	conn := NewConn(srv.URL, zap.NewNop())
	t.Cleanup(conn.Close)
	conn.OnConnect(func() {
		conn.Emit(protocol.EventAuthLogin, protocol.LoginPayload{UserID: "u1", Name: "Ana"})
	})

	// Emitted while disconnected: buffered, and a connection attempt starts.
	// The login announced by the connect handler must hit the wire first or
	// the server drops the frame as unbound.
	if err := conn.Emit(protocol.EventMessageReact, protocol.ReactPayload{
		ChannelID: "general", MessageID: "m1", Emoji: "👍",
	}); err != nil {
		t.Fatalf("emit while offline: %v", err)
	}

	if first := nextName(t, names); first != protocol.EventAuthLogin {
		t.Fatalf("first frame = %q, want %q", first, protocol.EventAuthLogin)
	}
	if second := nextName(t, names); second != protocol.EventMessageReact {
		t.Fatalf("second frame = %q, want %q", second, protocol.EventMessageReact)
	}
}

func TestReconnectAttemptResetsAfterStableUptime(t *testing.T) {
	r := newReconnector()
	for i := 0; i < 6; i++ {
		r.nextDelay()
	}
	// Simulate a connection that stayed up well past the stability window.
	r.connectedAt = time.Now().Add(-2 * time.Minute)

	if delay := r.nextDelay(); delay > 2*r.baseDelay {
		t.Fatalf("delay %v after stable uptime, want near base %v", delay, r.baseDelay)
	}
}
