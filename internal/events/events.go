// Package events publishes domain events about conversations and messages to
// a broker for downstream consumers (notification fan-out, analytics). Every
// publisher is best-effort: the conversation service logs failures and never
// fails a request because of them.
package events

import (
	"context"
	"time"
)

const (
	TypeConversationCreated = "conversation.created"
	TypeMessageCreated      = "message.created"
	TypeMessageDeleted      = "message.deleted"
	TypeConversationRead    = "conversation.read"
)

type Event struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id,omitempty"`
	ActorID        string    `json:"actor_id"`
	Participants   []string  `json:"participants,omitempty"`
	Count          int64     `json:"count,omitempty"`
	At             time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event. It is used when events.driver is "none".
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
