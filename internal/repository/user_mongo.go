package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/petadopt-messaging/internal/models"
)

// UserRepository reads display fields from the account service's users
// collection. Users written by the account service use ObjectID keys; string
// keys are accepted as well.
type UserRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func NewUserRepository(coll *mongo.Collection, timeout time.Duration) *UserRepository {
	return &UserRepository{coll: coll, timeout: timeout}
}

type userDoc struct {
	ID             interface{} `bson:"_id"`
	Name           string      `bson:"name"`
	Email          string      `bson:"email"`
	ProfilePicture string      `bson:"profilePicture"`
}

func (d *userDoc) key() string {
	switch v := d.ID.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return models.NormalizeID(v)
	default:
		return ""
	}
}

func (r *UserRepository) Profiles(ctx context.Context, ids []string) (map[string]*models.Profile, error) {
	out := make(map[string]*models.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]interface{}, 0, len(ids)*2)
	for _, id := range ids {
		id = models.NormalizeID(id)
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			keys = append(keys, oid)
		}
		keys = append(keys, id)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	proj := options.Find().SetProjection(bson.M{"name": 1, "email": 1, "profilePicture": 1})
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": keys}}, proj)
	if err != nil {
		return nil, translate("find users", err, "")
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var d userDoc
		if err := cur.Decode(&d); err != nil {
			return nil, translate("decode user", err, "")
		}
		id := d.key()
		if id == "" {
			continue
		}
		out[id] = &models.Profile{ID: id, Name: d.Name, Email: d.Email, ProfilePicture: d.ProfilePicture}
	}
	if err := cur.Err(); err != nil {
		return nil, translate("find users", err, "")
	}
	return out, nil
}
