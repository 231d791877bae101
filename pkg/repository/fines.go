package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"media-lending/pkg/models"
)

type gormFines struct {
	db *gorm.DB
}

func (r *gormFines) FindByID(ctx context.Context, id uint) (*models.Fine, error) {
	if id == 0 {
		return nil, nil
	}
	var fine models.Fine
	if err := r.db.WithContext(ctx).First(&fine, id).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, dataErr("find fine", errors.Wrapf(err, "fine %d", id))
	}
	return &fine, nil
}

func (r *gormFines) FindByLoanID(ctx context.Context, loanID uint) (*models.Fine, error) {
	if loanID == 0 {
		return nil, nil
	}
	var fine models.Fine
	if err := r.db.WithContext(ctx).Where("loan_id = ?", loanID).First(&fine).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, dataErr("find fine by loan", errors.Wrapf(err, "loan %d", loanID))
	}
	return &fine, nil
}

func (r *gormFines) FindByUserID(ctx context.Context, userID uint) ([]models.Fine, error) {
	fines := []models.Fine{}
	if userID == 0 {
		return fines, nil
	}
	err := r.db.WithContext(ctx).
		Joins("JOIN loans ON loans.id = fines.loan_id").
		Where("loans.user_id = ?", userID).
		Order("fines.id").
		Find(&fines).Error
	if err != nil {
		return nil, dataErr("find fines by user", err)
	}
	return fines, nil
}

func (r *gormFines) Save(ctx context.Context, fine *models.Fine) error {
	if fine == nil {
		return dataErr("save fine", errors.New("fine is nil"))
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(fine).Error; err != nil {
		return dataErr("save fine", errors.Wrapf(err, "loan %d", fine.LoanID))
	}
	return nil
}

func (r *gormFines) Update(ctx context.Context, fine *models.Fine) error {
	if fine == nil || fine.ID == 0 {
		return dataErr("update fine", ErrNoRows)
	}
	res := r.db.WithContext(ctx).Model(&models.Fine{}).Where("id = ?", fine.ID).Updates(map[string]interface{}{
		"amount": fine.Amount,
		"paid":   fine.Paid,
	})
	if res.Error != nil {
		return dataErr("update fine", errors.Wrapf(res.Error, "fine %d", fine.ID))
	}
	if res.RowsAffected == 0 {
		return dataErr("update fine", errors.Wrapf(ErrNoRows, "fine %d", fine.ID))
	}
	return nil
}
