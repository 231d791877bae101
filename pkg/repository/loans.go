package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"media-lending/pkg/models"
)

type gormLoans struct {
	db *gorm.DB
}

func (r *gormLoans) FindByID(ctx context.Context, id uint) (*models.Loan, error) {
	if id == 0 {
		return nil, nil
	}
	var loan models.Loan
	if err := r.db.WithContext(ctx).First(&loan, id).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, dataErr("find loan", errors.Wrapf(err, "loan %d", id))
	}
	return &loan, nil
}

func (r *gormLoans) FindByUserID(ctx context.Context, userID uint) ([]models.Loan, error) {
	return r.list(ctx, "find loans by user", "user_id = ?", userID)
}

func (r *gormLoans) FindByItemID(ctx context.Context, itemID uint) ([]models.Loan, error) {
	return r.list(ctx, "find loans by item", "item_id = ?", itemID)
}

func (r *gormLoans) list(ctx context.Context, op, query string, id uint) ([]models.Loan, error) {
	loans := []models.Loan{}
	if id == 0 {
		return loans, nil
	}
	if err := r.db.WithContext(ctx).Where(query, id).Order("loan_date, id").Find(&loans).Error; err != nil {
		return nil, dataErr(op, err)
	}
	return loans, nil
}

func (r *gormLoans) Save(ctx context.Context, loan *models.Loan) error {
	if loan == nil {
		return dataErr("save loan", errors.New("loan is nil"))
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(loan).Error; err != nil {
		return dataErr("save loan", errors.Wrapf(err, "user %d item %d", loan.UserID, loan.ItemID))
	}
	return nil
}

func (r *gormLoans) Update(ctx context.Context, loan *models.Loan) error {
	if loan == nil || loan.ID == 0 {
		return dataErr("update loan", ErrNoRows)
	}
	res := r.db.WithContext(ctx).Model(&models.Loan{}).Where("id = ?", loan.ID).Updates(map[string]interface{}{
		"due_date":    loan.DueDate,
		"return_date": loan.ReturnDate,
		"status":      loan.Status,
	})
	if res.Error != nil {
		return dataErr("update loan", errors.Wrapf(res.Error, "loan %d", loan.ID))
	}
	if res.RowsAffected == 0 {
		return dataErr("update loan", errors.Wrapf(ErrNoRows, "loan %d", loan.ID))
	}
	return nil
}
