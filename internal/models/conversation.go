package models

import "time"

type Conversation struct {
	ID           string    `bson:"_id" json:"_id"`
	Participants []string  `bson:"participants" json:"participants"`
	PairKey      string    `bson:"pair_key" json:"-"`
	LastMessage  *string   `bson:"last_message" json:"lastMessage"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updatedAt"`
}

// NewConversation builds an unsaved conversation between caller and other,
// keeping that order in Participants.
func NewConversation(caller, other string, now time.Time) *Conversation {
	caller, other = NormalizeID(caller), NormalizeID(other)
	return &Conversation{
		ID:           NewID(),
		Participants: []string{caller, other},
		PairKey:      PairKey(caller, other),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if SameID(p, userID) {
			return true
		}
	}
	return false
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID string) string {
	for _, p := range c.Participants {
		if !SameID(p, userID) {
			return NormalizeID(p)
		}
	}
	return ""
}

func (c *Conversation) LastMessageIs(messageID string) bool {
	return c.LastMessage != nil && SameID(*c.LastMessage, messageID)
}
