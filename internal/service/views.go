package service

import (
	"time"

	"github.com/fathima-sithara/petadopt-messaging/internal/models"
)

// ConversationView is a conversation joined with the profiles and the last
// message needed by the inbox list.
type ConversationView struct {
	ID               string            `json:"_id"`
	Participants     []*models.Profile `json:"participants"`
	OtherParticipant *models.Profile   `json:"otherParticipant"`
	LastMessage      *models.Message   `json:"lastMessage"`
	UnreadCount      int64             `json:"unreadCount"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// MessageView is a message with its sender's display fields.
type MessageView struct {
	ID             string          `json:"_id"`
	ConversationID string          `json:"conversationId"`
	Sender         *models.Profile `json:"sender"`
	Receiver       string          `json:"receiver,omitempty"`
	Text           string          `json:"text"`
	Read           bool            `json:"read"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func newMessageView(m *models.Message, sender *models.Profile) *MessageView {
	return &MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         sender,
		Receiver:       m.ReceiverID,
		Text:           m.Text,
		Read:           m.Read,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

type profileSet map[string]*models.Profile

// get never returns nil; users missing from the directory get a bare profile.
func (ps profileSet) get(id string) *models.Profile {
	if p, ok := ps[models.NormalizeID(id)]; ok {
		return p
	}
	return models.UnknownProfile(id)
}
