package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/petadopt-messaging/internal/models"
)

type ConversationRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// NewConversationRepository ensures the participant and pair indexes. The
// unique pair_key index is what keeps one conversation per user pair under
// concurrent creates.
func NewConversationRepository(ctx context.Context, coll *mongo.Collection, timeout time.Duration) (*ConversationRepository, error) {
	ixs := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("participants_updated_idx"),
		},
		{
			Keys:    bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().SetName("pair_key_uniq").SetUnique(true),
		},
	}
	ictx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := coll.Indexes().CreateMany(ictx, ixs); err != nil {
		return nil, translate("create conversation indexes", err, "")
	}
	return &ConversationRepository{coll: coll, timeout: timeout}, nil
}

func (r *ConversationRepository) FindOrCreateConversation(ctx context.Context, c *models.Conversation) (*models.Conversation, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	filter := bson.M{"pair_key": c.PairKey}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":          c.ID,
		"participants": c.Participants,
		"pair_key":     c.PairKey,
		"last_message": nil,
		"created_at":   c.CreatedAt,
		"updated_at":   c.UpdatedAt,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out models.Conversation
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
	if mongo.IsDuplicateKeyError(err) {
		// lost the upsert race; the winner's document is now visible
		err = r.coll.FindOne(ctx, filter).Decode(&out)
	}
	if err != nil {
		return nil, false, translate("find or create conversation", err, "conversation not found")
	}
	return &out, out.ID == c.ID, nil
}

func (r *ConversationRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	var c models.Conversation
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, translate("get conversation", err, "conversation not found")
	}
	return &c, nil
}

func (r *ConversationRepository) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, translate("list conversations", err, "")
	}
	defer cur.Close(ctx)

	out := []*models.Conversation{}
	for cur.Next(ctx) {
		var c models.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, translate("decode conversation", err, "")
		}
		out = append(out, &c)
	}
	if err := cur.Err(); err != nil {
		return nil, translate("list conversations", err, "")
	}
	return out, nil
}

func (r *ConversationRepository) SetLastMessage(ctx context.Context, conversationID string, messageID *string, updatedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	update := bson.M{"$set": bson.M{"last_message": messageID, "updated_at": updatedAt}}
	res, err := r.coll.UpdateByID(ctx, conversationID, update)
	if err != nil {
		return translate("set last message", err, "")
	}
	if res.MatchedCount == 0 {
		return translate("set last message", mongo.ErrNoDocuments, "conversation not found")
	}
	return nil
}
