package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"media-lending/pkg/clock"
	"media-lending/pkg/config"
	"media-lending/pkg/database"
	"media-lending/pkg/fine"
	"media-lending/pkg/models"
	"media-lending/pkg/repository"
)

var start = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db           *gorm.DB
	store        *repository.GormStore
	clock        *clock.Manual
	library      *LibraryService
	reservations *ReservationService
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.Database{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "library.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	store := repository.NewGormStore(db)
	clk := clock.NewManual(start)
	policy := DefaultPolicy()
	reservations := NewReservationService(store, policy, NewMonotonicSequencer(clk), zap.NewNop())
	return &fixture{
		db:           db,
		store:        store,
		clock:        clk,
		library:      NewLibraryService(store, fine.DailyRate{}, reservations, policy, zap.NewNop()),
		reservations: reservations,
	}
}

func (f *fixture) user(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, Password: "secret", Email: name + "@example.com", Role: models.RoleMember}
	require.NoError(t, f.store.Repos().Users.Save(context.Background(), u))
	return u
}

func (f *fixture) item(t *testing.T, title, kind string, total, available int) *models.MediaItem {
	t.Helper()
	item := &models.MediaItem{
		Title:           title,
		Author:          "Author of " + title,
		Type:            kind,
		TotalCopies:     total,
		AvailableCopies: available,
		LateFeesPerDay:  decimal.RequireFromString("0.50"),
	}
	require.NoError(t, f.store.Repos().Items.Save(context.Background(), item))
	return item
}

func (f *fixture) reload(t *testing.T, id uint) *models.MediaItem {
	t.Helper()
	item, err := f.store.Repos().Items.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, item)
	return item
}
