package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/petadopt-messaging/internal/models"
)

// chronological is the history order: created_at, then the time-ordered _id
// so messages created in the same millisecond keep insertion order.
var chronological = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

type MessageRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func NewMessageRepository(ctx context.Context, coll *mongo.Collection, timeout time.Duration) (*MessageRepository, error) {
	ixs := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("conversation_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "read", Value: 1}, {Key: "sender_id", Value: 1}},
			Options: options.Index().SetName("conversation_unread_idx"),
		},
	}
	ictx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := coll.Indexes().CreateMany(ictx, ixs); err != nil {
		return nil, translate("create message indexes", err, "")
	}
	return &MessageRepository{coll: coll, timeout: timeout}, nil
}

func (r *MessageRepository) InsertMessage(ctx context.Context, m *models.Message) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, m)
	return translate("insert message", err, "")
}

func (r *MessageRepository) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	var m models.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, translate("get message", err, "message not found")
	}
	return &m, nil
}

func (r *MessageRepository) GetMessages(ctx context.Context, ids []string) (map[string]*models.Message, error) {
	out := make(map[string]*models.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msgs, err := r.find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find())
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		out[m.ID] = m
	}
	return out, nil
}

func (r *MessageRepository) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.find(ctx, bson.M{"conversation_id": conversationID}, options.Find().SetSort(chronological))
}

func (r *MessageRepository) LatestMessage(ctx context.Context, conversationID string) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	var m models.Message
	if err := r.coll.FindOne(ctx, bson.M{"conversation_id": conversationID}, opts).Decode(&m); err != nil {
		return nil, translate("latest message", err, "no messages")
	}
	return &m, nil
}

func (r *MessageRepository) DeleteMessage(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return translate("delete message", err, "")
	}
	if res.DeletedCount == 0 {
		return translate("delete message", mongo.ErrNoDocuments, "message not found")
	}
	return nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	filter := bson.M{
		"conversation_id": conversationID,
		"read":            false,
		"sender_id":       bson.M{"$ne": readerID},
	}
	res, err := r.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true, "updated_at": at}})
	if err != nil {
		return 0, translate("mark read", err, "")
	}
	return res.ModifiedCount, nil
}

func (r *MessageRepository) UnreadCounts(ctx context.Context, conversationIDs []string, readerID string) (map[string]int64, error) {
	out := make(map[string]int64, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return out, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"conversation_id": bson.M{"$in": conversationIDs},
			"read":            false,
			"sender_id":       bson.M{"$ne": readerID},
		}}},
		{{Key: "$group", Value: bson.M{"_id": "$conversation_id", "n": bson.M{"$sum": 1}}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, translate("unread counts", err, "")
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
			N  int64  `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, translate("decode unread count", err, "")
		}
		out[row.ID] = row.N
	}
	if err := cur.Err(); err != nil {
		return nil, translate("unread counts", err, "")
	}
	return out, nil
}

func (r *MessageRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Message, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, translate("find messages", err, "")
	}
	defer cur.Close(ctx)

	out := []*models.Message{}
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, translate("decode message", err, "")
		}
		out = append(out, &m)
	}
	if err := cur.Err(); err != nil {
		return nil, translate("find messages", err, "")
	}
	return out, nil
}
