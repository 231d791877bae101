package repository

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"media-lending/pkg/apperrors"
)

// ErrNoRows is wrapped into a DataAccessError when an update or delete that
// expects an existing row matches nothing.
var ErrNoRows = errors.New("no matching row")

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Repos() Repos {
	return newRepos(s.db)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(r Repos) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(newRepos(tx))
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil && err == fnErr {
		return err
	}
	return dataErr("transaction", err)
}

func newRepos(db *gorm.DB) Repos {
	return Repos{
		Users:        &gormUsers{db: db},
		Items:        &gormMediaItems{db: db},
		Loans:        &gormLoans{db: db},
		Reservations: &gormReservations{db: db},
		Fines:        &gormFines{db: db},
	}
}

func dataErr(op string, err error) error {
	return apperrors.DataAccess(op, errors.WithStack(err))
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// likePattern builds a case-insensitive substring pattern with LIKE
// metacharacters escaped. Use with `LIKE ? ESCAPE '\'`.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}
