package repo

import (
	"errors"

	"gorm.io/gorm"

	"github.com/Skotchmaster/online_catalog/internal/apperr"
)

var (
	ErrUserNotFound    = apperr.New(apperr.NotFound, "user not found")
	ErrProductNotFound = apperr.New(apperr.NotFound, "product not found")
	ErrEmailTaken      = apperr.New(apperr.Conflict, "email is already registered")
)

type GormRepo struct {
	DB *gorm.DB
}

// dbError maps a gorm failure to the store's error kinds. notFound is returned
// for gorm.ErrRecordNotFound so callers can tell "absent" from "broken".
func dbError(err error, notFound *apperr.Error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrEmailTaken
	default:
		return apperr.Wrap(apperr.Internal, op, err)
	}
}

func withUpdatedAt(fields []string) []string {
	out := make([]string, 0, len(fields)+1)
	out = append(out, fields...)
	return append(out, "UpdatedAt")
}
