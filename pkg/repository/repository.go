// Package repository defines the store contracts consumed by the lending
// services and their gorm implementation.
//
// Every find-style method returns an empty result (nil pointer, empty slice,
// false, zero) for absent or invalid keys instead of an error. Errors are
// always *apperrors.DataAccessError.
package repository

import (
	"context"
	"time"

	"media-lending/pkg/models"
)

type UserRepository interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Save(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	// DeleteByID removes the user together with its loans, fines and reservations.
	DeleteByID(ctx context.Context, id uint) (bool, error)
}

type MediaItemRepository interface {
	FindByID(ctx context.Context, id uint) (*models.MediaItem, error)
	// FindByIDForUpdate reads the row under a write lock when the store supports it.
	FindByIDForUpdate(ctx context.Context, id uint) (*models.MediaItem, error)
	FindByISBN(ctx context.Context, isbn string) (*models.MediaItem, error)
	FindByType(ctx context.Context, mediaType string) ([]models.MediaItem, error)
	FindByTitleContaining(ctx context.Context, title string) ([]models.MediaItem, error)
	FindByAuthorContaining(ctx context.Context, author string) ([]models.MediaItem, error)
	Search(ctx context.Context, keyword string) ([]models.MediaItem, error)
	ExistsByISBN(ctx context.Context, isbn string) (bool, error)
	Save(ctx context.Context, item *models.MediaItem) error
	Update(ctx context.Context, item *models.MediaItem) error
	// UpdateAvailableCopies sets an absolute count. Negative values are accepted.
	UpdateAvailableCopies(ctx context.Context, id uint, copies int) error
	AdjustAvailableCopies(ctx context.Context, id uint, delta int) error
	// DecrementIfAvailable takes one copy only while at least one is free.
	DecrementIfAvailable(ctx context.Context, id uint) (bool, error)
	// DeleteByID removes the item together with its loans, fines and reservations.
	DeleteByID(ctx context.Context, id uint) (bool, error)
}

type LoanRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Loan, error)
	FindByUserID(ctx context.Context, userID uint) ([]models.Loan, error)
	FindByItemID(ctx context.Context, itemID uint) ([]models.Loan, error)
	Save(ctx context.Context, loan *models.Loan) error
	Update(ctx context.Context, loan *models.Loan) error
}

type ReservationRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Reservation, error)
	FindByUserID(ctx context.Context, userID uint) ([]models.Reservation, error)
	FindActiveByUserID(ctx context.Context, userID uint) ([]models.Reservation, error)
	// FindActiveByItemID returns the waiting queue ordered by reservation
	// date, then sequence, then id.
	FindActiveByItemID(ctx context.Context, itemID uint) ([]models.Reservation, error)
	// FindExpired returns ACTIVE reservations whose expiry date is before asOf.
	FindExpired(ctx context.Context, asOf time.Time) ([]models.Reservation, error)
	CountActiveByItemID(ctx context.Context, itemID uint) (int64, error)
	Save(ctx context.Context, reservation *models.Reservation) error
	Update(ctx context.Context, reservation *models.Reservation) error
	// TransitionStatus moves the reservation to `to` only while it is still in
	// `from`, and reports whether it did.
	TransitionStatus(ctx context.Context, id uint, from, to models.ReservationStatus) (bool, error)
	DeleteByID(ctx context.Context, id uint) (bool, error)
}

type FineRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Fine, error)
	FindByLoanID(ctx context.Context, loanID uint) (*models.Fine, error)
	FindByUserID(ctx context.Context, userID uint) ([]models.Fine, error)
	Save(ctx context.Context, fine *models.Fine) error
	Update(ctx context.Context, fine *models.Fine) error
}

// Repos is one consistent view of every repository, either on the shared
// connection pool or bound to a single transaction.
type Repos struct {
	Users        UserRepository
	Items        MediaItemRepository
	Loans        LoanRepository
	Reservations ReservationRepository
	Fines        FineRepository
}

type Store interface {
	Repos() Repos
	// Transaction runs fn against repositories bound to one transaction.
	// Any error returned by fn rolls the transaction back and is returned as is.
	Transaction(ctx context.Context, fn func(r Repos) error) error
}
