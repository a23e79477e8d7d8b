package models

import (
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NormalizeID trims an id. ObjectID hex strings are also lower-cased so
// that ids coming from tokens, paths and stored documents compare equal;
// any other id is opaque and keeps its case.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid.Hex()
	}
	return id
}

func SameID(a, b string) bool {
	na := NormalizeID(a)
	return na != "" && na == NormalizeID(b)
}

// NewID returns a time-ordered document id.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// PairKey identifies the unordered participant pair {a, b}.
func PairKey(a, b string) string {
	ids := []string{NormalizeID(a), NormalizeID(b)}
	sort.Strings(ids)
	return ids[0] + ":" + ids[1]
}
