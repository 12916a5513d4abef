package model

import "time"

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

type Message struct {
	ID        int         `json:"id"`
	Sender    UserRef     `json:"sender"`
	Receiver  UserRef     `json:"receiver"`
	Type      MessageType `json:"message_type"`
	Content   string      `json:"content,omitempty"`
	FileURL   string      `json:"file_url,omitempty"`
	FileName  string      `json:"file_name,omitempty"`
	FileSize  int64       `json:"file_size,omitempty"`
	Read      bool        `json:"read"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Counterpart returns the id of the participant that is not viewerID.
func (m *Message) Counterpart(viewerID int) int {
	if m.Sender.ID == viewerID {
		return m.Receiver.ID
	}
	return m.Sender.ID
}

type Conversation struct {
	ID          int      `json:"id"`
	OtherUser   UserRef  `json:"otherUser"`
	LastMessage *Message `json:"lastMessage"`
	UnreadCount int      `json:"unreadCount"`
}

// Realtime payloads.

type TypingEvent struct {
	ReceiverID int `json:"receiverId,omitempty"`
	SenderID   int `json:"senderId"`
}

type StatusEvent struct {
	UserID int    `json:"userId"`
	Status string `json:"status"`
}

const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)
