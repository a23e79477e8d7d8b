package repository

import (
	"context"
	"time"

	"github.com/fathima-sithara/petadopt-messaging/internal/models"
)

// ConversationStore persists two-party conversations. Missing documents are
// reported as apperr.ErrNotFound, infrastructure failures as
// apperr.ErrUnavailable.
type ConversationStore interface {
	// FindOrCreateConversation atomically returns the conversation for the
	// unordered pair of c.Participants, inserting c when none exists. The
	// boolean reports whether c was inserted.
	FindOrCreateConversation(ctx context.Context, c *models.Conversation) (*models.Conversation, bool, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	// ListConversations returns the user's conversations, most recently
	// updated first.
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	// SetLastMessage stores the last-message pointer (nil clears it) and
	// updatedAt.
	SetLastMessage(ctx context.Context, conversationID string, messageID *string, updatedAt time.Time) error
}

// MessageStore persists messages scoped to a conversation.
type MessageStore interface {
	InsertMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	// GetMessages resolves ids in one round trip; unknown ids are absent
	// from the result.
	GetMessages(ctx context.Context, ids []string) (map[string]*models.Message, error)
	// ListMessages returns the conversation's messages oldest first, ties in
	// insertion order.
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	// LatestMessage returns the newest message or apperr.ErrNotFound.
	LatestMessage(ctx context.Context, conversationID string) (*models.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	// MarkRead flags every unread message not sent by readerID as read and
	// returns how many changed.
	MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error)
	// UnreadCounts counts unread messages not sent by readerID per
	// conversation.
	UnreadCounts(ctx context.Context, conversationIDs []string, readerID string) (map[string]int64, error)
}

// UserDirectory resolves display profiles for user ids.
type UserDirectory interface {
	Profiles(ctx context.Context, ids []string) (map[string]*models.Profile, error)
}
