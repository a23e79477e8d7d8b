package ws

import "time"

const (
	EventActivity       = "activity"
	EventMessageDeleted = "message_deleted"
	EventRead           = "read"
)

// Event is the wire format pushed to connected clients. It only tells the
// client which conversation changed; the client refetches over HTTP.
type Event struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId,omitempty"`
	At             int64  `json:"at"`
}

func NewEvent(typ, conversationID, messageID string, at time.Time) Event {
	return Event{Type: typ, ConversationID: conversationID, MessageID: messageID, At: at.Unix()}
}
