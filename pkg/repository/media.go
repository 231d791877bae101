package repository

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"media-lending/pkg/models"
)

const likeEscape = ` LIKE ? ESCAPE '\'`

type gormMediaItems struct {
	db *gorm.DB
}

func (r *gormMediaItems) FindByID(ctx context.Context, id uint) (*models.MediaItem, error) {
	return r.first(ctx, r.db.WithContext(ctx), id)
}

func (r *gormMediaItems) FindByIDForUpdate(ctx context.Context, id uint) (*models.MediaItem, error) {
	return r.first(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *gormMediaItems) first(_ context.Context, db *gorm.DB, id uint) (*models.MediaItem, error) {
	if id == 0 {
		return nil, nil
	}
	var item models.MediaItem
	if err := db.First(&item, id).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, dataErr("find media item", errors.Wrapf(err, "media item %d", id))
	}
	return &item, nil
}

func (r *gormMediaItems) FindByISBN(ctx context.Context, isbn string) (*models.MediaItem, error) {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return nil, nil
	}
	var item models.MediaItem
	if err := r.db.WithContext(ctx).Where("isbn = ?", isbn).First(&item).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, dataErr("find media item by isbn", err)
	}
	return &item, nil
}

func (r *gormMediaItems) FindByType(ctx context.Context, mediaType string) ([]models.MediaItem, error) {
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		return []models.MediaItem{}, nil
	}
	return r.list(ctx, "find media items by type", "UPPER(type) = ?", strings.ToUpper(mediaType))
}

func (r *gormMediaItems) FindByTitleContaining(ctx context.Context, title string) ([]models.MediaItem, error) {
	if strings.TrimSpace(title) == "" {
		return []models.MediaItem{}, nil
	}
	return r.list(ctx, "find media items by title", "LOWER(title)"+likeEscape, likePattern(title))
}

func (r *gormMediaItems) FindByAuthorContaining(ctx context.Context, author string) ([]models.MediaItem, error) {
	if strings.TrimSpace(author) == "" {
		return []models.MediaItem{}, nil
	}
	return r.list(ctx, "find media items by author", "LOWER(author)"+likeEscape, likePattern(author))
}

func (r *gormMediaItems) Search(ctx context.Context, keyword string) ([]models.MediaItem, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return []models.MediaItem{}, nil
	}
	p := likePattern(keyword)
	return r.list(ctx, "search media items",
		"LOWER(title)"+likeEscape+" OR LOWER(author)"+likeEscape+
			" OR LOWER(publisher)"+likeEscape+" OR LOWER(isbn)"+likeEscape,
		p, p, p, p)
}

func (r *gormMediaItems) list(ctx context.Context, op, query string, args ...interface{}) ([]models.MediaItem, error) {
	items := []models.MediaItem{}
	if err := r.db.WithContext(ctx).Where(query, args...).Order("id").Find(&items).Error; err != nil {
		return nil, dataErr(op, err)
	}
	return items, nil
}

func (r *gormMediaItems) ExistsByISBN(ctx context.Context, isbn string) (bool, error) {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return false, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.MediaItem{}).Where("isbn = ?", isbn).Count(&count).Error; err != nil {
		return false, dataErr("check isbn", err)
	}
	return count > 0, nil
}

func (r *gormMediaItems) Save(ctx context.Context, item *models.MediaItem) error {
	if item == nil {
		return dataErr("save media item", errors.New("media item is nil"))
	}
	if strings.TrimSpace(item.Title) == "" {
		return dataErr("save media item", errors.New("title violates not-null constraint"))
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return dataErr("save media item", errors.Wrapf(err, "title %q", item.Title))
	}
	return nil
}

func (r *gormMediaItems) Update(ctx context.Context, item *models.MediaItem) error {
	if item == nil || item.ID == 0 {
		return dataErr("update media item", ErrNoRows)
	}
	res := r.db.WithContext(ctx).Model(item).Select("*").Omit("CreatedAt").Updates(item)
	if res.Error != nil {
		return dataErr("update media item", errors.Wrapf(res.Error, "media item %d", item.ID))
	}
	if res.RowsAffected == 0 {
		return dataErr("update media item", errors.Wrapf(ErrNoRows, "media item %d", item.ID))
	}
	return nil
}

func (r *gormMediaItems) UpdateAvailableCopies(ctx context.Context, id uint, copies int) error {
	res := r.db.WithContext(ctx).Model(&models.MediaItem{}).Where("id = ?", id).
		UpdateColumn("available_copies", copies)
	return copiesResult("update available copies", id, res)
}

func (r *gormMediaItems) AdjustAvailableCopies(ctx context.Context, id uint, delta int) error {
	res := r.db.WithContext(ctx).Model(&models.MediaItem{}).Where("id = ?", id).
		UpdateColumn("available_copies", gorm.Expr("available_copies + ?", delta))
	return copiesResult("adjust available copies", id, res)
}

func copiesResult(op string, id uint, res *gorm.DB) error {
	if res.Error != nil {
		return dataErr(op, errors.Wrapf(res.Error, "media item %d", id))
	}
	if res.RowsAffected == 0 {
		return dataErr(op, errors.Wrapf(ErrNoRows, "media item %d", id))
	}
	return nil
}

func (r *gormMediaItems) DecrementIfAvailable(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.MediaItem{}).
		Where("id = ? AND available_copies > 0", id).
		UpdateColumn("available_copies", gorm.Expr("available_copies - 1"))
	if res.Error != nil {
		return false, dataErr("decrement available copies", errors.Wrapf(res.Error, "media item %d", id))
	}
	return res.RowsAffected == 1, nil
}

func (r *gormMediaItems) DeleteByID(ctx context.Context, id uint) (bool, error) {
	if id == 0 {
		return false, nil
	}
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loans := tx.Model(&models.Loan{}).Select("id").Where("item_id = ?", id)
		if err := tx.Where("loan_id IN (?)", loans).Delete(&models.Fine{}).Error; err != nil {
			return errors.Wrap(err, "fines")
		}
		if err := tx.Where("item_id = ?", id).Delete(&models.Loan{}).Error; err != nil {
			return errors.Wrap(err, "loans")
		}
		if err := tx.Where("item_id = ?", id).Delete(&models.Reservation{}).Error; err != nil {
			return errors.Wrap(err, "reservations")
		}
		res := tx.Delete(&models.MediaItem{}, id)
		if res.Error != nil {
			return errors.Wrap(res.Error, "media item")
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, dataErr("delete media item", err)
	}
	return deleted, nil
}
