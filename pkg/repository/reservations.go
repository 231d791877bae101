package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"media-lending/pkg/models"
)

const queueOrder = "reservation_date ASC, sequence ASC, id ASC"

type gormReservations struct {
	db *gorm.DB
}

func (r *gormReservations) FindByID(ctx context.Context, id uint) (*models.Reservation, error) {
	if id == 0 {
		return nil, nil
	}
	var res models.Reservation
	if err := r.db.WithContext(ctx).First(&res, id).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, dataErr("find reservation", errors.Wrapf(err, "reservation %d", id))
	}
	return &res, nil
}

func (r *gormReservations) FindByUserID(ctx context.Context, userID uint) ([]models.Reservation, error) {
	if userID == 0 {
		return []models.Reservation{}, nil
	}
	return r.list(ctx, "find reservations by user", r.db.WithContext(ctx).Where("user_id = ?", userID))
}

func (r *gormReservations) FindActiveByUserID(ctx context.Context, userID uint) ([]models.Reservation, error) {
	if userID == 0 {
		return []models.Reservation{}, nil
	}
	return r.list(ctx, "find active reservations by user", r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.ReservationActive))
}

func (r *gormReservations) FindActiveByItemID(ctx context.Context, itemID uint) ([]models.Reservation, error) {
	if itemID == 0 {
		return []models.Reservation{}, nil
	}
	return r.list(ctx, "find reservation queue", r.db.WithContext(ctx).
		Where("item_id = ? AND status = ?", itemID, models.ReservationActive))
}

func (r *gormReservations) FindExpired(ctx context.Context, asOf time.Time) ([]models.Reservation, error) {
	return r.list(ctx, "find expired reservations", r.db.WithContext(ctx).
		Where("status = ? AND expiry_date < ?", models.ReservationActive, asOf.UTC()))
}

func (r *gormReservations) list(_ context.Context, op string, q *gorm.DB) ([]models.Reservation, error) {
	out := []models.Reservation{}
	if err := q.Order(queueOrder).Find(&out).Error; err != nil {
		return nil, dataErr(op, err)
	}
	return out, nil
}

func (r *gormReservations) CountActiveByItemID(ctx context.Context, itemID uint) (int64, error) {
	if itemID == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("item_id = ? AND status = ?", itemID, models.ReservationActive).
		Count(&count).Error
	if err != nil {
		return 0, dataErr("count active reservations", err)
	}
	return count, nil
}

func (r *gormReservations) Save(ctx context.Context, res *models.Reservation) error {
	if res == nil {
		return dataErr("save reservation", errors.New("reservation is nil"))
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(res).Error; err != nil {
		return dataErr("save reservation", errors.Wrapf(err, "user %d item %d", res.UserID, res.ItemID))
	}
	return nil
}

func (r *gormReservations) Update(ctx context.Context, res *models.Reservation) error {
	if res == nil || res.ID == 0 {
		return dataErr("update reservation", ErrNoRows)
	}
	result := r.db.WithContext(ctx).Model(&models.Reservation{}).Where("id = ?", res.ID).Updates(map[string]interface{}{
		"expiry_date": res.ExpiryDate,
		"status":      res.Status,
	})
	if result.Error != nil {
		return dataErr("update reservation", errors.Wrapf(result.Error, "reservation %d", res.ID))
	}
	if result.RowsAffected == 0 {
		return dataErr("update reservation", errors.Wrapf(ErrNoRows, "reservation %d", res.ID))
	}
	return nil
}

func (r *gormReservations) TransitionStatus(ctx context.Context, id uint, from, to models.ReservationStatus) (bool, error) {
	if id == 0 {
		return false, nil
	}
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, dataErr("transition reservation", errors.Wrapf(res.Error, "reservation %d", id))
	}
	return res.RowsAffected == 1, nil
}

func (r *gormReservations) DeleteByID(ctx context.Context, id uint) (bool, error) {
	if id == 0 {
		return false, nil
	}
	res := r.db.WithContext(ctx).Delete(&models.Reservation{}, id)
	if res.Error != nil {
		return false, dataErr("delete reservation", errors.Wrapf(res.Error, "reservation %d", id))
	}
	return res.RowsAffected > 0, nil
}
