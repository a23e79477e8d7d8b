package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/petadopt-messaging/internal/apperr"
	"github.com/fathima-sithara/petadopt-messaging/internal/events"
	"github.com/fathima-sithara/petadopt-messaging/internal/metrics"
	"github.com/fathima-sithara/petadopt-messaging/internal/models"
	"github.com/fathima-sithara/petadopt-messaging/internal/repository"
	"github.com/fathima-sithara/petadopt-messaging/internal/ws"
)

// Notifier pushes realtime events to a user's live connections. Delivery is
// best-effort.
type Notifier interface {
	Notify(userID string, ev ws.Event)
}

const errNotParticipant = "not authorized to access this conversation"

// ConversationService mediates every read and write of conversations and
// messages. It keeps no state between calls; each operation is a
// read-compute-write against the stores.
type ConversationService struct {
	convs    repository.ConversationStore
	msgs     repository.MessageStore
	users    repository.UserDirectory
	notifier Notifier
	pub      events.Publisher
	metrics  *metrics.Metrics
	log      *zap.Logger

	eventTimeout time.Duration
	now          func() time.Time
}

type Deps struct {
	Conversations repository.ConversationStore
	Messages      repository.MessageStore
	Users         repository.UserDirectory
	Notifier      Notifier
	Publisher     events.Publisher
	Metrics       *metrics.Metrics
	Log           *zap.Logger
	EventTimeout  time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewConversationService(d Deps) *ConversationService {
	s := &ConversationService{
		convs:        d.Conversations,
		msgs:         d.Messages,
		users:        d.Users,
		notifier:     d.Notifier,
		pub:          d.Publisher,
		metrics:      d.Metrics,
		log:          d.Log,
		eventTimeout: d.EventTimeout,
		now:          d.Now,
	}
	if s.pub == nil {
		s.pub = events.Nop{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.eventTimeout <= 0 {
		s.eventTimeout = 2 * time.Second
	}
	return s
}

// timestamp is truncated to the store's millisecond precision so values read
// back compare equal to the ones written.
func (s *ConversationService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// ListConversations returns the caller's conversations, most recently updated
// first.
func (s *ConversationService) ListConversations(ctx context.Context, callerID string) ([]*ConversationView, error) {
	callerID = models.NormalizeID(callerID)
	convs, err := s.convs.ListConversations(ctx, callerID)
	if err != nil {
		return nil, err
	}
	out := make([]*ConversationView, 0, len(convs))
	if len(convs) == 0 {
		return out, nil
	}

	var userIDs, lastIDs, convIDs []string
	seen := map[string]bool{}
	for _, c := range convs {
		convIDs = append(convIDs, c.ID)
		for _, p := range c.Participants {
			if p = models.NormalizeID(p); !seen[p] {
				seen[p] = true
				userIDs = append(userIDs, p)
			}
		}
		if c.LastMessage != nil {
			lastIDs = append(lastIDs, *c.LastMessage)
		}
	}

	profiles, err := s.users.Profiles(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	last, err := s.msgs.GetMessages(ctx, lastIDs)
	if err != nil {
		return nil, err
	}
	unread, err := s.msgs.UnreadCounts(ctx, convIDs, callerID)
	if err != nil {
		return nil, err
	}

	ps := profileSet(profiles)
	for _, c := range convs {
		v := &ConversationView{
			ID:               c.ID,
			OtherParticipant: ps.get(c.Other(callerID)),
			UnreadCount:      unread[c.ID],
			CreatedAt:        c.CreatedAt,
			UpdatedAt:        c.UpdatedAt,
		}
		for _, p := range c.Participants {
			v.Participants = append(v.Participants, ps.get(p))
		}
		if c.LastMessage != nil {
			// a stale pointer left by an interrupted post resolves to nil
			v.LastMessage = last[*c.LastMessage]
		}
		out = append(out, v)
	}
	return out, nil
}

// authorize loads the conversation and checks the caller takes part in it. A
// missing conversation and a foreign one are reported identically.
func (s *ConversationService) authorize(ctx context.Context, callerID, conversationID string) (*models.Conversation, error) {
	if conversationID == "" {
		return nil, apperr.Forbidden(errNotParticipant)
	}
	c, err := s.convs.GetConversation(ctx, conversationID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Forbidden(errNotParticipant)
	}
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(callerID) {
		return nil, apperr.Forbidden(errNotParticipant)
	}
	return c, nil
}

// ListMessages returns the conversation's history, oldest first.
func (s *ConversationService) ListMessages(ctx context.Context, callerID, conversationID string) ([]*MessageView, error) {
	callerID = models.NormalizeID(callerID)
	c, err := s.authorize(ctx, callerID, models.NormalizeID(conversationID))
	if err != nil {
		return nil, err
	}
	msgs, err := s.msgs.ListMessages(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	profiles, err := s.users.Profiles(ctx, c.Participants)
	if err != nil {
		return nil, err
	}
	ps := profileSet(profiles)
	out := make([]*MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, newMessageView(m, ps.get(m.SenderID)))
	}
	return out, nil
}

// FindOrCreateConversation returns the conversation between the caller and
// otherUserID, creating it on first contact.
func (s *ConversationService) FindOrCreateConversation(ctx context.Context, callerID, otherUserID string) (*ConversationView, error) {
	callerID, otherUserID = models.NormalizeID(callerID), models.NormalizeID(otherUserID)
	if otherUserID == "" {
		return nil, apperr.BadRequest("otherUserId is required")
	}
	if otherUserID == callerID {
		return nil, apperr.BadRequest("cannot start a conversation with yourself")
	}

	c, created, err := s.convs.FindOrCreateConversation(ctx, models.NewConversation(callerID, otherUserID, s.timestamp()))
	if err != nil {
		return nil, err
	}
	if created {
		s.log.Info("conversation created", zap.String("conversation_id", c.ID), zap.String("user_id", callerID))
		s.publish(ctx, events.Event{
			Type:           events.TypeConversationCreated,
			ConversationID: c.ID,
			ActorID:        callerID,
			Participants:   c.Participants,
			At:             c.CreatedAt,
		})
	}

	profiles, err := s.users.Profiles(ctx, c.Participants)
	if err != nil {
		return nil, err
	}
	ps := profileSet(profiles)
	v := &ConversationView{
		ID:               c.ID,
		OtherParticipant: ps.get(c.Other(callerID)),
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	for _, p := range c.Participants {
		v.Participants = append(v.Participants, ps.get(p))
	}
	if c.LastMessage != nil {
		if m, err := s.msgs.GetMessage(ctx, *c.LastMessage); err == nil {
			v.LastMessage = m
		}
	}
	return v, nil
}

// PostMessage appends a message from the caller and moves the conversation's
// last-message pointer to it.
func (s *ConversationService) PostMessage(ctx context.Context, callerID, conversationID, text string) (*MessageView, error) {
	callerID = models.NormalizeID(callerID)
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.BadRequest("message text is required")
	}
	c, err := s.authorize(ctx, callerID, models.NormalizeID(conversationID))
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	if now.Before(c.UpdatedAt) {
		now = c.UpdatedAt
	}
	m := &models.Message{
		ID:             models.NewID(),
		ConversationID: c.ID,
		SenderID:       callerID,
		ReceiverID:     c.Other(callerID),
		Text:           text,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.msgs.InsertMessage(ctx, m); err != nil {
		return nil, err
	}
	s.metrics.MessagePosted()

	// The message is durable at this point; a failed pointer update only
	// leaves the inbox preview stale, so it is logged rather than returned.
	if err := s.convs.SetLastMessage(ctx, c.ID, &m.ID, now); err != nil {
		s.log.Warn("last message pointer not updated",
			zap.String("conversation_id", c.ID), zap.String("message_id", m.ID), zap.Error(err))
	}

	s.notify(m.ReceiverID, ws.NewEvent(ws.EventActivity, c.ID, m.ID, now))
	s.publish(ctx, events.Event{
		Type:           events.TypeMessageCreated,
		ConversationID: c.ID,
		MessageID:      m.ID,
		ActorID:        callerID,
		Participants:   c.Participants,
		At:             now,
	})

	profiles, err := s.users.Profiles(ctx, []string{callerID})
	if err != nil {
		s.log.Warn("sender profile lookup failed", zap.String("user_id", callerID), zap.Error(err))
	}
	return newMessageView(m, profileSet(profiles).get(callerID)), nil
}

// DeleteMessage removes one of the caller's messages. When it was the
// conversation's last message the pointer is moved to the newest remaining
// message, or cleared.
func (s *ConversationService) DeleteMessage(ctx context.Context, callerID, messageID string) error {
	callerID, messageID = models.NormalizeID(callerID), models.NormalizeID(messageID)
	if messageID == "" {
		return apperr.NotFound("message not found")
	}
	m, err := s.msgs.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if !models.SameID(m.SenderID, callerID) {
		return apperr.Forbidden("not authorized to delete this message")
	}
	if err := s.msgs.DeleteMessage(ctx, m.ID); err != nil {
		return err
	}

	c, err := s.convs.GetConversation(ctx, m.ConversationID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	now := s.timestamp()
	if c.LastMessageIs(m.ID) {
		var next *string
		latest, err := s.msgs.LatestMessage(ctx, c.ID)
		switch {
		case err == nil:
			next = &latest.ID
		case errors.Is(err, apperr.ErrNotFound):
		default:
			return err
		}
		if now.Before(c.UpdatedAt) {
			now = c.UpdatedAt
		}
		if err := s.convs.SetLastMessage(ctx, c.ID, next, now); err != nil {
			return err
		}
	}

	s.notify(c.Other(callerID), ws.NewEvent(ws.EventMessageDeleted, c.ID, m.ID, now))
	s.publish(ctx, events.Event{
		Type:           events.TypeMessageDeleted,
		ConversationID: c.ID,
		MessageID:      m.ID,
		ActorID:        callerID,
		Participants:   c.Participants,
		At:             now,
	})
	return nil
}

// MarkConversationRead flags every message the caller received in the
// conversation as read and returns how many changed.
func (s *ConversationService) MarkConversationRead(ctx context.Context, callerID, conversationID string) (int64, error) {
	callerID = models.NormalizeID(callerID)
	c, err := s.authorize(ctx, callerID, models.NormalizeID(conversationID))
	if err != nil {
		return 0, err
	}
	now := s.timestamp()
	n, err := s.msgs.MarkRead(ctx, c.ID, callerID, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.notify(c.Other(callerID), ws.NewEvent(ws.EventRead, c.ID, "", now))
		s.publish(ctx, events.Event{
			Type:           events.TypeConversationRead,
			ConversationID: c.ID,
			ActorID:        callerID,
			Participants:   c.Participants,
			Count:          n,
			At:             now,
		})
	}
	return n, nil
}

func (s *ConversationService) notify(userID string, ev ws.Event) {
	if s.notifier == nil || userID == "" {
		return
	}
	s.notifier.Notify(userID, ev)
}

// publish hands ev to the broker. Failures are logged and counted only.
func (s *ConversationService) publish(ctx context.Context, ev events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.eventTimeout)
	defer cancel()
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.metrics.PublishFailed(ev.Type)
		s.log.Warn("publish event failed",
			zap.String("type", ev.Type), zap.String("conversation_id", ev.ConversationID), zap.Error(err))
	}
}
