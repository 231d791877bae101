package repository

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"media-lending/pkg/models"
)

type gormUsers struct {
	db *gorm.DB
}

func (r *gormUsers) FindByID(ctx context.Context, id uint) (*models.User, error) {
	if id == 0 {
		return nil, nil
	}
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, dataErr("find user", err)
	}
	return &user, nil
}

func (r *gormUsers) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, nil
	}
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, dataErr("find user by username", err)
	}
	return &user, nil
}

func (r *gormUsers) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if strings.TrimSpace(username) == "" {
		return false, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, dataErr("check username", err)
	}
	return count > 0, nil
}

func (r *gormUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if strings.TrimSpace(email) == "" {
		return false, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, dataErr("check email", err)
	}
	return count > 0, nil
}

func (r *gormUsers) Save(ctx context.Context, user *models.User) error {
	if user == nil {
		return dataErr("save user", errors.New("user is nil"))
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return dataErr("save user", errors.Wrapf(err, "username %q", user.Username))
	}
	return nil
}

func (r *gormUsers) Update(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == 0 {
		return dataErr("update user", ErrNoRows)
	}
	res := r.db.WithContext(ctx).Model(user).Select("*").Omit("CreatedAt").Updates(user)
	if res.Error != nil {
		return dataErr("update user", errors.Wrapf(res.Error, "user %d", user.ID))
	}
	if res.RowsAffected == 0 {
		return dataErr("update user", errors.Wrapf(ErrNoRows, "user %d", user.ID))
	}
	return nil
}

func (r *gormUsers) DeleteByID(ctx context.Context, id uint) (bool, error) {
	if id == 0 {
		return false, nil
	}
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loans := tx.Model(&models.Loan{}).Select("id").Where("user_id = ?", id)
		if err := tx.Where("loan_id IN (?)", loans).Delete(&models.Fine{}).Error; err != nil {
			return errors.Wrap(err, "fines")
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Loan{}).Error; err != nil {
			return errors.Wrap(err, "loans")
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Reservation{}).Error; err != nil {
			return errors.Wrap(err, "reservations")
		}
		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return errors.Wrap(res.Error, "user")
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, dataErr("delete user", err)
	}
	return deleted, nil
}
