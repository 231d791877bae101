// Package service implements the lending rules: borrowing, returning, fines,
// the reservation queue and account checks.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"media-lending/pkg/apperrors"
	"media-lending/pkg/fine"
	"media-lending/pkg/models"
	"media-lending/pkg/repository"
)

type LibraryService struct {
	store        repository.Store
	fines        fine.Calculator
	reservations *ReservationService
	policy       Policy
	log          *zap.Logger
}

// ReturnResult describes everything a return changed.
type ReturnResult struct {
	Loan *models.Loan
	// Fine is nil when the loan came back on time.
	Fine *models.Fine
	// Promoted is the loan created for the head of the reservation queue, if any.
	Promoted *models.Loan
}

func NewLibraryService(store repository.Store, calc fine.Calculator, reservations *ReservationService, policy Policy, log *zap.Logger) *LibraryService {
	if calc == nil {
		calc = fine.DailyRate{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LibraryService{
		store:        store,
		fines:        calc,
		reservations: reservations,
		policy:       policy,
		log:          log,
	}
}

func validateMediaItem(item *models.MediaItem) error {
	if item == nil {
		return apperrors.Validation("item", "must not be nil")
	}
	if strings.TrimSpace(item.Title) == "" {
		return apperrors.Validation("title", "is required")
	}
	if strings.TrimSpace(item.Type) == "" {
		return apperrors.Validation("type", "is required")
	}
	if item.TotalCopies < 0 {
		return apperrors.Validation("totalCopies", "must not be negative")
	}
	if item.LateFeesPerDay.IsNegative() {
		return apperrors.Validation("lateFeesPerDay", "must not be negative")
	}
	if item.ISBN != nil && strings.TrimSpace(*item.ISBN) == "" {
		item.ISBN = nil
	}
	return nil
}

func (s *LibraryService) AddMediaItem(ctx context.Context, item *models.MediaItem) (*models.MediaItem, error) {
	if err := validateMediaItem(item); err != nil {
		return nil, err
	}
	if err := s.store.Repos().Items.Save(ctx, item); err != nil {
		s.log.Error("add media item failed", zap.String("title", item.Title), zap.Error(err))
		return nil, err
	}
	s.log.Info("media item added", zap.Uint("item_id", item.ID), zap.String("type", item.Type))
	return item, nil
}

func (s *LibraryService) UpdateMediaItem(ctx context.Context, item *models.MediaItem) (*models.MediaItem, error) {
	if err := validateMediaItem(item); err != nil {
		return nil, err
	}
	if err := s.store.Repos().Items.Update(ctx, item); err != nil {
		s.log.Error("update media item failed", zap.Uint("item_id", item.ID), zap.Error(err))
		return nil, err
	}
	return item, nil
}

// DeleteMediaItem reports false when no item had the id.
func (s *LibraryService) DeleteMediaItem(ctx context.Context, id uint) (bool, error) {
	deleted, err := s.store.Repos().Items.DeleteByID(ctx, id)
	if err != nil {
		s.log.Error("delete media item failed", zap.Uint("item_id", id), zap.Error(err))
		return false, err
	}
	if deleted {
		s.log.Info("media item deleted", zap.Uint("item_id", id))
	}
	return deleted, nil
}

// GetMediaItem returns nil when the item does not exist.
func (s *LibraryService) GetMediaItem(ctx context.Context, id uint) (*models.MediaItem, error) {
	return s.store.Repos().Items.FindByID(ctx, id)
}

func (s *LibraryService) FindByISBN(ctx context.Context, isbn string) (*models.MediaItem, error) {
	return s.store.Repos().Items.FindByISBN(ctx, isbn)
}

func (s *LibraryService) SearchMediaItems(ctx context.Context, keyword string) ([]models.MediaItem, error) {
	return s.store.Repos().Items.Search(ctx, keyword)
}

func (s *LibraryService) FindByType(ctx context.Context, mediaType string) ([]models.MediaItem, error) {
	return s.store.Repos().Items.FindByType(ctx, mediaType)
}

func (s *LibraryService) FindByTitleContaining(ctx context.Context, title string) ([]models.MediaItem, error) {
	return s.store.Repos().Items.FindByTitleContaining(ctx, title)
}

func (s *LibraryService) FindByAuthorContaining(ctx context.Context, author string) ([]models.MediaItem, error) {
	return s.store.Repos().Items.FindByAuthorContaining(ctx, author)
}

// BorrowItem lends one copy of the item to the user. The copy count and the
// new loan are written in one transaction.
func (s *LibraryService) BorrowItem(ctx context.Context, userID, itemID uint, asOf time.Time) (*models.Loan, error) {
	var loan *models.Loan
	err := s.store.Transaction(ctx, func(r repository.Repos) error {
		var err error
		loan, err = borrow(ctx, r, s.policy, userID, itemID, asOf)
		return err
	})
	if err != nil {
		s.logFailure("borrow failed", err, zap.Uint("user_id", userID), zap.Uint("item_id", itemID))
		return nil, err
	}
	s.log.Info("item borrowed",
		zap.Uint("loan_id", loan.ID), zap.Uint("user_id", userID), zap.Uint("item_id", itemID),
		zap.Time("due_date", loan.DueDate))
	return loan, nil
}

func borrow(ctx context.Context, r repository.Repos, policy Policy, userID, itemID uint, asOf time.Time) (*models.Loan, error) {
	user, err := r.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.Business(apperrors.UserNotFound, "user %d not found", userID)
	}

	item, err := r.Items.FindByIDForUpdate(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperrors.Business(apperrors.ItemNotFound, "media item %d not found", itemID)
	}
	if item.AvailableCopies <= 0 {
		return nil, apperrors.Business(apperrors.NoCopiesAvailable, "no copies of media item %d available", itemID)
	}

	loanDate := fine.Day(asOf)
	loan := &models.Loan{
		UserID:   userID,
		ItemID:   itemID,
		LoanDate: loanDate,
		DueDate:  loanDate.AddDate(0, 0, policy.LoanDays(item.MediaType())),
		Status:   models.LoanActive,
	}

	ok, err := r.Items.DecrementIfAvailable(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Business(apperrors.NoCopiesAvailable, "no copies of media item %d available", itemID)
	}
	if err := r.Loans.Save(ctx, loan); err != nil {
		return nil, err
	}
	return loan, nil
}

// ReturnItem closes the loan, frees the copy, records any fine and hands the
// copy to the head of the reservation queue, all in one transaction.
func (s *LibraryService) ReturnItem(ctx context.Context, loanID uint, asOf time.Time) (*ReturnResult, error) {
	result := &ReturnResult{}
	err := s.store.Transaction(ctx, func(r repository.Repos) error {
		loan, err := r.Loans.FindByID(ctx, loanID)
		if err != nil {
			return err
		}
		if loan == nil {
			return apperrors.Business(apperrors.LoanNotFound, "loan %d not found", loanID)
		}
		if loan.Status == models.LoanReturned {
			return apperrors.Business(apperrors.LoanAlreadyReturned, "loan %d already returned", loanID)
		}

		item, err := r.Items.FindByIDForUpdate(ctx, loan.ItemID)
		if err != nil {
			return err
		}
		if item == nil {
			return apperrors.Business(apperrors.ItemNotFound, "media item %d of loan %d not found", loan.ItemID, loanID)
		}

		returned := fine.Day(asOf)
		loan.Status = models.LoanReturned
		loan.ReturnDate = &returned
		if err := r.Loans.Update(ctx, loan); err != nil {
			return err
		}
		if err := r.Items.AdjustAvailableCopies(ctx, item.ID, 1); err != nil {
			return err
		}

		amount := s.fines.Calculate(*loan, item.LateFeesPerDay, asOf)
		if amount.Sign() > 0 {
			f := &models.Fine{LoanID: loan.ID, Amount: amount}
			if err := r.Fines.Save(ctx, f); err != nil {
				return err
			}
			result.Fine = f
		}
		result.Loan = loan

		if s.reservations != nil {
			promoted, err := s.reservations.promote(ctx, r, item.ID, asOf)
			if err != nil {
				return err
			}
			result.Promoted = promoted
		}
		return nil
	})
	if err != nil {
		s.logFailure("return failed", err, zap.Uint("loan_id", loanID))
		return nil, err
	}

	fields := []zap.Field{zap.Uint("loan_id", loanID), zap.Uint("item_id", result.Loan.ItemID)}
	if result.Fine != nil {
		fields = append(fields, zap.String("fine", result.Fine.Amount.StringFixed(2)))
	}
	if result.Promoted != nil {
		fields = append(fields, zap.Uint("promoted_loan_id", result.Promoted.ID))
	}
	s.log.Info("item returned", fields...)
	return result, nil
}

func (s *LibraryService) ListLoansForUser(ctx context.Context, userID uint) ([]models.Loan, error) {
	return s.store.Repos().Loans.FindByUserID(ctx, userID)
}

// OutstandingFines returns the unpaid fines of a user and their total.
func (s *LibraryService) OutstandingFines(ctx context.Context, userID uint) ([]models.Fine, decimal.Decimal, error) {
	all, err := s.store.Repos().Fines.FindByUserID(ctx, userID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	unpaid := make([]models.Fine, 0, len(all))
	total := decimal.Zero
	for _, f := range all {
		if f.Paid {
			continue
		}
		unpaid = append(unpaid, f)
		total = total.Add(f.Amount)
	}
	return unpaid, total, nil
}

func (s *LibraryService) PayFine(ctx context.Context, fineID uint) (*models.Fine, error) {
	var paid *models.Fine
	err := s.store.Transaction(ctx, func(r repository.Repos) error {
		f, err := r.Fines.FindByID(ctx, fineID)
		if err != nil {
			return err
		}
		if f == nil {
			return apperrors.Business(apperrors.FineNotFound, "fine %d not found", fineID)
		}
		if f.Paid {
			return apperrors.Business(apperrors.FineAlreadyPaid, "fine %d already paid", fineID)
		}
		f.Paid = true
		if err := r.Fines.Update(ctx, f); err != nil {
			return err
		}
		paid = f
		return nil
	})
	if err != nil {
		s.logFailure("pay fine failed", err, zap.Uint("fine_id", fineID))
		return nil, err
	}
	s.log.Info("fine paid", zap.Uint("fine_id", fineID), zap.String("amount", paid.Amount.StringFixed(2)))
	return paid, nil
}

// DeleteUser removes the user with its loans, fines and reservations.
func (s *LibraryService) DeleteUser(ctx context.Context, userID uint) (bool, error) {
	deleted, err := s.store.Repos().Users.DeleteByID(ctx, userID)
	if err != nil {
		s.log.Error("delete user failed", zap.Uint("user_id", userID), zap.Error(err))
		return false, err
	}
	return deleted, nil
}

func (s *LibraryService) logFailure(msg string, err error, fields ...zap.Field) {
	logFailure(s.log, msg, err, fields...)
}

func logFailure(log *zap.Logger, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	switch {
	case apperrors.IsDataAccess(err):
		log.Error(msg, fields...)
	case apperrors.IsBusiness(err):
		log.Info(msg, fields...)
	default:
		log.Warn(msg, fields...)
	}
}
