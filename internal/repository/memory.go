package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fathima-sithara/petadopt-messaging/internal/apperr"
	"github.com/fathima-sithara/petadopt-messaging/internal/models"
)

// MemoryStore keeps conversations, messages and profiles in process memory.
// It backs tests and the "memory" store driver. Values are copied on the way
// in and out so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	convs    map[string]*models.Conversation
	pairs    map[string]string // pair key -> conversation id
	msgs     map[string]*models.Message
	order    []string // message ids in insertion order
	profiles map[string]*models.Profile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs:    make(map[string]*models.Conversation),
		pairs:    make(map[string]string),
		msgs:     make(map[string]*models.Message),
		profiles: make(map[string]*models.Profile),
	}
}

// PutProfile seeds a user profile.
func (s *MemoryStore) PutProfile(p models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = models.NormalizeID(p.ID)
	s.profiles[p.ID] = &p
}

func copyConversation(c *models.Conversation) *models.Conversation {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	if c.LastMessage != nil {
		id := *c.LastMessage
		cp.LastMessage = &id
	}
	return &cp
}

func copyMessage(m *models.Message) *models.Message {
	cp := *m
	return &cp
}

func (s *MemoryStore) FindOrCreateConversation(ctx context.Context, c *models.Conversation) (*models.Conversation, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, apperr.Unavailable("find or create conversation", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.pairs[c.PairKey]; ok {
		return copyConversation(s.convs[id]), false, nil
	}
	stored := copyConversation(c)
	s.convs[stored.ID] = stored
	s.pairs[stored.PairKey] = stored.ID
	return copyConversation(stored), true, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unavailable("get conversation", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, apperr.NotFound("conversation not found")
	}
	return copyConversation(c), nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unavailable("list conversations", err)
	}
	s.mu.RLock()
	out := []*models.Conversation{}
	for _, c := range s.convs {
		if c.HasParticipant(userID) {
			out = append(out, copyConversation(c))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) SetLastMessage(ctx context.Context, conversationID string, messageID *string, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return apperr.Unavailable("set last message", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	if messageID == nil {
		c.LastMessage = nil
	} else {
		id := *messageID
		c.LastMessage = &id
	}
	c.UpdatedAt = updatedAt
	return nil
}

func (s *MemoryStore) InsertMessage(ctx context.Context, m *models.Message) error {
	if err := ctx.Err(); err != nil {
		return apperr.Unavailable("insert message", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs[m.ID] = copyMessage(m)
	s.order = append(s.order, m.ID)
	return nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unavailable("get message", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, apperr.NotFound("message not found")
	}
	return copyMessage(m), nil
}

func (s *MemoryStore) GetMessages(ctx context.Context, ids []string) (map[string]*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unavailable("get messages", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*models.Message, len(ids))
	for _, id := range ids {
		if m, ok := s.msgs[id]; ok {
			out[id] = copyMessage(m)
		}
	}
	return out, nil
}

// conversationMessages returns the conversation's messages in insertion
// order. Callers hold s.mu.
func (s *MemoryStore) conversationMessages(conversationID string) []*models.Message {
	out := []*models.Message{}
	for _, id := range s.order {
		if m, ok := s.msgs[id]; ok && m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unavailable("list messages", err)
	}
	s.mu.RLock()
	msgs := s.conversationMessages(conversationID)
	out := make([]*models.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, copyMessage(m))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) LatestMessage(ctx context.Context, conversationID string) (*models.Message, error) {
	msgs, err := s.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, apperr.NotFound("no messages")
	}
	return msgs[len(msgs)-1], nil
}

func (s *MemoryStore) DeleteMessage(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return apperr.Unavailable("delete message", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.msgs[id]; !ok {
		return apperr.NotFound("message not found")
	}
	delete(s.msgs, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperr.Unavailable("mark read", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.conversationMessages(conversationID) {
		if m.Read || models.SameID(m.SenderID, readerID) {
			continue
		}
		m.Read = true
		m.UpdatedAt = at
		n++
	}
	return n, nil
}

func (s *MemoryStore) UnreadCounts(ctx context.Context, conversationIDs []string, readerID string) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unavailable("unread counts", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(conversationIDs))
	for _, cid := range conversationIDs {
		for _, m := range s.conversationMessages(cid) {
			if !m.Read && !models.SameID(m.SenderID, readerID) {
				out[cid]++
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) Profiles(ctx context.Context, ids []string) (map[string]*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unavailable("profiles", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*models.Profile, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[models.NormalizeID(id)]; ok {
			cp := *p
			out[cp.ID] = &cp
		}
	}
	return out, nil
}
