package realtime

import "encoding/json"

// Client to server
const (
	EventUserOnline = "user_online"
	EventTyping     = "typing"
	EventStopTyping = "stop_typing"
)

// Server to client
const (
	EventNewNotification   = "new_notification"
	EventNewMessage        = "new_message"
	EventUserTyping        = "user_typing"
	EventUserStopTyping    = "user_stop_typing"
	EventUserStatusChanged = "user_status_changed"
	EventMessagesRead      = "messages_read"
)

// Envelope is the JSON frame exchanged on the socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type HandlerFunc func(data json.RawMessage)

// Subscriber registers handlers for inbound events.
type Subscriber interface {
	On(event string, h HandlerFunc)
}

// Emitter sends an event to the server.
type Emitter interface {
	Emit(event string, payload interface{}) error
}
