package repository

import (
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fathima-sithara/petadopt-messaging/internal/apperr"
)

// translate maps driver errors onto the apperr taxonomy.
func translate(op string, err error, notFound string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound(notFound)
	}
	return apperr.Unavailable(op, err)
}
