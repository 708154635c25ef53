// Package protocol defines the wire format shared by server and client: an
// event envelope plus one typed payload struct per event. Both connection
// layers decode incoming frames into this closed set at the boundary; nothing
// downstream ever sees raw JSON.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/teamchat/teamchat/internal/domain"
)

// Event names - client → server.
const (
	EventAuthLogin     = "auth:login"
	EventChannelJoin   = "channel:join"
	EventChannelLeave  = "channel:leave"
	EventMessageSend   = "message:send"
	EventMessageReact  = "message:react"
	EventPresenceGet   = "presence:get"
	EventTypingStart   = "typing:start"
	EventTypingStop    = "typing:stop"
	EventGetUserCounts = "channel:getUserCounts"
)

// Event names - server → client.
const (
	EventChannelHistory  = "channel:history"
	EventMessageNew      = "message:new"
	EventMessageUpdate   = "message:update"
	EventPresenceUpdate  = "presence:update"
	EventTypingUpdate    = "typing:update"
	EventChannelActivity = "channel:activity"
	EventUserCounts      = "channel:userCounts"
)

// ErrUnknownEvent is returned when a frame names an event outside the
// protocol. Unknown frames are dropped by both sides.
var ErrUnknownEvent = errors.New("protocol: unknown event")

// Event is the envelope for every frame in both directions.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	TS      int64           `json:"ts,omitempty"`
}

// NewEvent wraps a payload into an envelope with the current timestamp.
func NewEvent(name string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return Event{Name: name, Payload: data, TS: time.Now().Unix()}, nil
}

// --- Client → server payloads ---

type LoginPayload struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type JoinPayload struct {
	ChannelID string `json:"channelId"`
}

type LeavePayload struct {
	ChannelID string `json:"channelId"`
}

type SendPayload struct {
	TempID    string `json:"tempId"`
	ChannelID string `json:"channelId"`
	Text      string `json:"text"`
}

type ReactPayload struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type PresenceGetPayload struct {
	ChannelID string `json:"channelId"`
}

type TypingStartPayload struct {
	ChannelID string `json:"channelId"`
}

type TypingStopPayload struct {
	ChannelID string `json:"channelId"`
}

type GetUserCountsPayload struct{}

// --- Server → client payloads ---

type HistoryPayload []domain.Message

// MessagePayload carries a full message for message:new and message:update.
type MessagePayload struct {
	domain.Message
}

type PresencePayload struct {
	ChannelID string        `json:"channelId"`
	Users     []domain.User `json:"users"`
}

type TypingUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type TypingPayload struct {
	ChannelID string       `json:"channelId"`
	Users     []TypingUser `json:"users"`
}

type ActivityPayload struct {
	ChannelID string `json:"channelId"`
}

type ChannelCount struct {
	ChannelID string `json:"channelId"`
	UserCount int    `json:"userCount"`
}

type UserCountsPayload []ChannelCount

// ClientFrame is the closed union of client → server payloads.
type ClientFrame interface{ clientFrame() }

func (*LoginPayload) clientFrame()         {}
func (*JoinPayload) clientFrame()          {}
func (*LeavePayload) clientFrame()         {}
func (*SendPayload) clientFrame()          {}
func (*ReactPayload) clientFrame()         {}
func (*PresenceGetPayload) clientFrame()   {}
func (*TypingStartPayload) clientFrame()   {}
func (*TypingStopPayload) clientFrame()    {}
func (*GetUserCountsPayload) clientFrame() {}

// DecodeClient decodes an inbound envelope on the server side.
func DecodeClient(ev Event) (ClientFrame, error) {
	var frame ClientFrame
	switch ev.Name {
	case EventAuthLogin:
		frame = &LoginPayload{}
	case EventChannelJoin:
		frame = &JoinPayload{}
	case EventChannelLeave:
		frame = &LeavePayload{}
	case EventMessageSend:
		frame = &SendPayload{}
	case EventMessageReact:
		frame = &ReactPayload{}
	case EventPresenceGet:
		frame = &PresenceGetPayload{}
	case EventTypingStart:
		frame = &TypingStartPayload{}
	case EventTypingStop:
		frame = &TypingStopPayload{}
	case EventGetUserCounts:
		frame = &GetUserCountsPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Name)
	}
	if err := unmarshalPayload(ev.Payload, frame); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ev.Name, err)
	}
	return frame, nil
}

// ServerFrame is the closed union of server → client payloads.
type ServerFrame interface{ serverFrame() }

func (*MessagePayload) serverFrame()    {}
func (*HistoryPayload) serverFrame()    {}
func (*PresencePayload) serverFrame()   {}
func (*TypingPayload) serverFrame()     {}
func (*ActivityPayload) serverFrame()   {}
func (*UserCountsPayload) serverFrame() {}

// DecodeServer decodes an inbound envelope on the client side.
func DecodeServer(ev Event) (ServerFrame, error) {
	var frame ServerFrame
	switch ev.Name {
	case EventChannelHistory:
		frame = &HistoryPayload{}
	case EventMessageNew, EventMessageUpdate:
		frame = &MessagePayload{}
	case EventPresenceUpdate:
		frame = &PresencePayload{}
	case EventTypingUpdate:
		frame = &TypingPayload{}
	case EventChannelActivity:
		frame = &ActivityPayload{}
	case EventUserCounts:
		frame = &UserCountsPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Name)
	}
	if err := unmarshalPayload(ev.Payload, frame); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ev.Name, err)
	}
	return frame, nil
}

// unmarshalPayload tolerates an absent payload: events like
// channel:getUserCounts carry none.
func unmarshalPayload(p json.RawMessage, v any) error {
	if len(p) == 0 {
		return nil
	}
	return json.Unmarshal(p, v)
}
