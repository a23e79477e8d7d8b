package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/fathima-sithara/petadopt-messaging/internal/apperr"
	"github.com/fathima-sithara/petadopt-messaging/internal/models"
)

const (
	ayse  = "650000000000000000000001"
	burak = "650000000000000000000002"
)

var day = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func ns(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func conversationDoc(id string, at time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "participants", Value: bson.A{ayse, burak}},
		{Key: "pair_key", Value: models.PairKey(ayse, burak)},
		{Key: "last_message", Value: nil},
		{Key: "created_at", Value: primitive.NewDateTimeFromTime(at)},
		{Key: "updated_at", Value: primitive.NewDateTimeFromTime(at)},
	}
}

func messageDoc(id, sender, text string, at time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "conversation_id", Value: "c1"},
		{Key: "sender_id", Value: sender},
		{Key: "text", Value: text},
		{Key: "read", Value: false},
		{Key: "created_at", Value: primitive.NewDateTimeFromTime(at)},
		{Key: "updated_at", Value: primitive.NewDateTimeFromTime(at)},
	}
}

// sortKeys returns the sort spec of a started find command as key/direction
// pairs, in order.
func sortKeys(t *testing.T, cmd bson.Raw) []bson.E {
	t.Helper()
	raw, err := cmd.LookupErr("sort")
	require.NoError(t, err, "command has no sort")
	elems, err := raw.Document().Elements()
	require.NoError(t, err)
	out := make([]bson.E, 0, len(elems))
	for _, e := range elems {
		out = append(out, bson.E{Key: e.Key(), Value: e.Value().AsInt64()})
	}
	return out
}

func TestConversationRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("constructor creates the unique pair index", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		_, err := NewConversationRepository(ctx, mt.Coll, time.Second)
		require.NoError(mt, err)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "createIndexes", evt.CommandName)
		ixs, err := evt.Command.Lookup("indexes").Array().Values()
		require.NoError(mt, err)

		unique := map[string]bool{}
		for _, v := range ixs {
			doc := v.Document()
			u, _ := doc.Lookup("unique").BooleanOK()
			unique[doc.Lookup("name").StringValue()] = u
		}
		assert.Equal(mt, map[string]bool{"participants_updated_idx": false, "pair_key_uniq": true}, unique)
	})

	mt.Run("constructor failure is unavailable", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad index", Name: "BadValue"}))
		_, err := NewConversationRepository(ctx, mt.Coll, time.Second)
		assert.ErrorIs(mt, err, apperr.ErrUnavailable)
	})

	mt.Run("find or create inserts a new pair", func(mt *mtest.T) {
		repo := &ConversationRepository{coll: mt.Coll, timeout: time.Second}
		c := models.NewConversation(ayse, burak, day)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: conversationDoc(c.ID, day)}))

		got, created, err := repo.FindOrCreateConversation(ctx, c)
		require.NoError(mt, err)
		assert.True(mt, created)
		assert.Equal(mt, c.ID, got.ID)
		assert.Equal(mt, []string{ayse, burak}, got.Participants)
		assert.Nil(mt, got.LastMessage)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "findAndModify", evt.CommandName)
		assert.True(mt, evt.Command.Lookup("upsert").Boolean())
		assert.Equal(mt, c.PairKey, evt.Command.Lookup("query", "pair_key").StringValue())
		assert.Equal(mt, c.ID, evt.Command.Lookup("update", "$setOnInsert", "_id").StringValue())
	})

	mt.Run("find or create returns the existing pair", func(mt *mtest.T) {
		repo := &ConversationRepository{coll: mt.Coll, timeout: time.Second}
		existing := models.NewID()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: conversationDoc(existing, day)}))

		got, created, err := repo.FindOrCreateConversation(ctx, models.NewConversation(burak, ayse, day.Add(time.Hour)))
		require.NoError(mt, err)
		assert.False(mt, created)
		assert.Equal(mt, existing, got.ID)
	})

	mt.Run("duplicate key on upsert re-reads the winner", func(mt *mtest.T) {
		repo := &ConversationRepository{coll: mt.Coll, timeout: time.Second}
		winner := models.NewID()
		mt.AddMockResponses(
			mtest.CreateCommandErrorResponse(mtest.CommandError{
				Code:    11000,
				Message: "E11000 duplicate key error collection: conversations index: pair_key_uniq",
				Name:    "DuplicateKey",
			}),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, conversationDoc(winner, day)),
		)

		c := models.NewConversation(ayse, burak, day)
		got, created, err := repo.FindOrCreateConversation(ctx, c)
		require.NoError(mt, err)
		assert.False(mt, created)
		assert.Equal(mt, winner, got.ID)

		evts := mt.GetAllStartedEvents()
		require.Len(mt, evts, 2)
		assert.Equal(mt, "findAndModify", evts[0].CommandName)
		assert.Equal(mt, "find", evts[1].CommandName)
		assert.Equal(mt, c.PairKey, evts[1].Command.Lookup("filter", "pair_key").StringValue())
	})

	mt.Run("other upsert errors are unavailable", func(mt *mtest.T) {
		repo := &ConversationRepository{coll: mt.Coll, timeout: time.Second}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad", Name: "BadValue"}))

		_, _, err := repo.FindOrCreateConversation(ctx, models.NewConversation(ayse, burak, day))
		assert.ErrorIs(mt, err, apperr.ErrUnavailable)
	})

	mt.Run("get missing conversation", func(mt *mtest.T) {
		repo := &ConversationRepository{coll: mt.Coll, timeout: time.Second}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		_, err := repo.GetConversation(ctx, "nope")
		assert.ErrorIs(mt, err, apperr.ErrNotFound)
	})

	mt.Run("list is newest first with id tie-break", func(mt *mtest.T) {
		repo := &ConversationRepository{coll: mt.Coll, timeout: time.Second}
		first, second := models.NewID(), models.NewID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			conversationDoc(second, day.Add(time.Minute)),
			conversationDoc(first, day),
		))

		list, err := repo.ListConversations(ctx, ayse)
		require.NoError(mt, err)
		require.Len(mt, list, 2)
		assert.Equal(mt, second, list[0].ID)
		assert.Equal(mt, first, list[1].ID)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, ayse, evt.Command.Lookup("filter", "participants").StringValue())
		assert.Equal(mt, []bson.E{{Key: "updated_at", Value: int64(-1)}, {Key: "_id", Value: int64(-1)}}, sortKeys(mt.T, evt.Command))
	})

	mt.Run("list with no conversations is empty not nil", func(mt *mtest.T) {
		repo := &ConversationRepository{coll: mt.Coll, timeout: time.Second}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		list, err := repo.ListConversations(ctx, ayse)
		require.NoError(mt, err)
		assert.NotNil(mt, list)
		assert.Empty(mt, list)
	})

	mt.Run("set last message", func(mt *mtest.T) {
		repo := &ConversationRepository{coll: mt.Coll, timeout: time.Second}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		msgID := "m1"
		require.NoError(mt, repo.SetLastMessage(ctx, "c1", &msgID, day))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)
		upd := evt.Command.Lookup("updates").Array().Index(0).Value().Document()
		assert.Equal(mt, "c1", upd.Lookup("q", "_id").StringValue())
		assert.Equal(mt, "m1", upd.Lookup("u", "$set", "last_message").StringValue())
	})

	mt.Run("clearing last message writes null", func(mt *mtest.T) {
		repo := &ConversationRepository{coll: mt.Coll, timeout: time.Second}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		require.NoError(mt, repo.SetLastMessage(ctx, "c1", nil, day))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		upd := evt.Command.Lookup("updates").Array().Index(0).Value().Document()
		assert.Equal(mt, bson.TypeNull, upd.Lookup("u", "$set", "last_message").Type)
	})

	mt.Run("set last message on missing conversation", func(mt *mtest.T) {
		repo := &ConversationRepository{coll: mt.Coll, timeout: time.Second}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		err := repo.SetLastMessage(ctx, "gone", nil, day)
		assert.ErrorIs(mt, err, apperr.ErrNotFound)
	})
}

func TestMessageRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("constructor", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		_, err := NewMessageRepository(ctx, mt.Coll, time.Second)
		require.NoError(mt, err)
	})

	mt.Run("insert", func(mt *mtest.T) {
		repo := &MessageRepository{coll: mt.Coll, timeout: time.Second}
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		m := &models.Message{ID: models.NewID(), ConversationID: "c1", SenderID: ayse, ReceiverID: burak, Text: "merhaba", CreatedAt: day, UpdatedAt: day}
		require.NoError(mt, repo.InsertMessage(ctx, m))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		doc := evt.Command.Lookup("documents").Array().Index(0).Value().Document()
		assert.Equal(mt, m.ID, doc.Lookup("_id").StringValue())
		assert.False(mt, doc.Lookup("read").Boolean())
	})

	mt.Run("insert failure is unavailable", func(mt *mtest.T) {
		repo := &MessageRepository{coll: mt.Coll, timeout: time.Second}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 121, Message: "document failed validation"}))

		err := repo.InsertMessage(ctx, &models.Message{ID: models.NewID(), ConversationID: "c1"})
		assert.ErrorIs(mt, err, apperr.ErrUnavailable)
	})

	mt.Run("history is chronological with id tie-break", func(mt *mtest.T) {
		repo := &MessageRepository{coll: mt.Coll, timeout: time.Second}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			messageDoc("m1", ayse, "one", day),
			messageDoc("m2", burak, "two", day),
		))

		msgs, err := repo.ListMessages(ctx, "c1")
		require.NoError(mt, err)
		require.Len(mt, msgs, 2)
		assert.Equal(mt, "one", msgs[0].Text)
		assert.True(mt, msgs[0].CreatedAt.Equal(day))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "c1", evt.Command.Lookup("filter", "conversation_id").StringValue())
		assert.Equal(mt, []bson.E{{Key: "created_at", Value: int64(1)}, {Key: "_id", Value: int64(1)}}, sortKeys(mt.T, evt.Command))
	})

	mt.Run("latest message sorts newest first", func(mt *mtest.T) {
		repo := &MessageRepository{coll: mt.Coll, timeout: time.Second}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, messageDoc("m2", burak, "two", day)))

		m, err := repo.LatestMessage(ctx, "c1")
		require.NoError(mt, err)
		assert.Equal(mt, "m2", m.ID)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, []bson.E{{Key: "created_at", Value: int64(-1)}, {Key: "_id", Value: int64(-1)}}, sortKeys(mt.T, evt.Command))
	})

	mt.Run("latest message of empty conversation", func(mt *mtest.T) {
		repo := &MessageRepository{coll: mt.Coll, timeout: time.Second}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		_, err := repo.LatestMessage(ctx, "c1")
		assert.ErrorIs(mt, err, apperr.ErrNotFound)
	})

	mt.Run("get messages by id", func(mt *mtest.T) {
		repo := &MessageRepository{coll: mt.Coll, timeout: time.Second}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, messageDoc("m1", ayse, "one", day)))

		got, err := repo.GetMessages(ctx, []string{"m1", "m9"})
		require.NoError(mt, err)
		require.Len(mt, got, 1)
		assert.Equal(mt, "one", got["m1"].Text)
	})

	mt.Run("get messages without ids skips the query", func(mt *mtest.T) {
		repo := &MessageRepository{coll: mt.Coll, timeout: time.Second}

		got, err := repo.GetMessages(ctx, nil)
		require.NoError(mt, err)
		assert.Empty(mt, got)
		assert.Empty(mt, mt.GetAllStartedEvents())
	})

	mt.Run("delete", func(mt *mtest.T) {
		repo := &MessageRepository{coll: mt.Coll, timeout: time.Second}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		require.NoError(mt, repo.DeleteMessage(ctx, "m1"))
	})

	mt.Run("delete missing message", func(mt *mtest.T) {
		repo := &MessageRepository{coll: mt.Coll, timeout: time.Second}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		err := repo.DeleteMessage(ctx, "m1")
		assert.ErrorIs(mt, err, apperr.ErrNotFound)
	})

	mt.Run("mark read only touches the other sender's unread", func(mt *mtest.T) {
		repo := &MessageRepository{coll: mt.Coll, timeout: time.Second}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}, bson.E{Key: "nModified", Value: 2}))

		n, err := repo.MarkRead(ctx, "c1", burak, day)
		require.NoError(mt, err)
		assert.Equal(mt, int64(2), n)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		upd := evt.Command.Lookup("updates").Array().Index(0).Value().Document()
		assert.True(mt, upd.Lookup("multi").Boolean())
		assert.Equal(mt, "c1", upd.Lookup("q", "conversation_id").StringValue())
		assert.False(mt, upd.Lookup("q", "read").Boolean())
		assert.Equal(mt, burak, upd.Lookup("q", "sender_id", "$ne").StringValue())
		assert.True(mt, upd.Lookup("u", "$set", "read").Boolean())
	})

	mt.Run("unread counts", func(mt *mtest.T) {
		repo := &MessageRepository{coll: mt.Coll, timeout: time.Second}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "c1"}, {Key: "n", Value: int32(3)}},
			bson.D{{Key: "_id", Value: "c2"}, {Key: "n", Value: int32(1)}},
		))

		counts, err := repo.UnreadCounts(ctx, []string{"c1", "c2", "c3"}, ayse)
		require.NoError(mt, err)
		assert.Equal(mt, map[string]int64{"c1": 3, "c2": 1}, counts)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "aggregate", evt.CommandName)
		match := evt.Command.Lookup("pipeline").Array().Index(0).Value().Document().Lookup("$match").Document()
		assert.Equal(mt, ayse, match.Lookup("sender_id", "$ne").StringValue())
		assert.False(mt, match.Lookup("read").Boolean())
	})

	mt.Run("unread counts query failure", func(mt *mtest.T) {
		repo := &MessageRepository{coll: mt.Coll, timeout: time.Second}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad pipeline", Name: "BadValue"}))

		_, err := repo.UnreadCounts(ctx, []string{"c1"}, ayse)
		assert.ErrorIs(mt, err, apperr.ErrUnavailable)
	})
}

func TestUserRepositoryProfiles(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("object id and string keys", func(mt *mtest.T) {
		repo := NewUserRepository(mt.Coll, time.Second)
		oid, err := primitive.ObjectIDFromHex(ayse)
		require.NoError(mt, err)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: oid}, {Key: "name", Value: "Ayse"}, {Key: "profilePicture", Value: "a.png"}},
			bson.D{{Key: "_id", Value: "legacy-user"}, {Key: "name", Value: "Legacy"}},
		))

		got, err := repo.Profiles(ctx, []string{" " + ayse, "legacy-user"})
		require.NoError(mt, err)
		require.Len(mt, got, 2)
		assert.Equal(mt, &models.Profile{ID: ayse, Name: "Ayse", ProfilePicture: "a.png"}, got[ayse])
		assert.Equal(mt, "Legacy", got["legacy-user"].Name)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		keys, err := evt.Command.Lookup("filter", "_id", "$in").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, keys, 3)
		assert.Equal(mt, oid, keys[0].ObjectID())
		assert.Equal(mt, ayse, keys[1].StringValue())
		assert.Equal(mt, "legacy-user", keys[2].StringValue())
	})

	mt.Run("no ids skips the query", func(mt *mtest.T) {
		repo := NewUserRepository(mt.Coll, time.Second)
		got, err := repo.Profiles(ctx, nil)
		require.NoError(mt, err)
		assert.Empty(mt, got)
		assert.Empty(mt, mt.GetAllStartedEvents())
	})

	mt.Run("query failure", func(mt *mtest.T) {
		repo := NewUserRepository(mt.Coll, time.Second)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad", Name: "BadValue"}))

		_, err := repo.Profiles(ctx, []string{ayse})
		assert.ErrorIs(mt, err, apperr.ErrUnavailable)
	})
}
