package models

import "time"

type Message struct {
	ID             string    `bson:"_id" json:"_id"`
	ConversationID string    `bson:"conversation_id" json:"conversationId"`
	SenderID       string    `bson:"sender_id" json:"sender"`
	ReceiverID     string    `bson:"receiver_id,omitempty" json:"receiver,omitempty"`
	Text           string    `bson:"text" json:"text"`
	Read           bool      `bson:"read" json:"read"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updatedAt"`
}
