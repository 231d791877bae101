package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"media-lending/pkg/config"
	"media-lending/pkg/models"
)

const retryDelay = 5 * time.Second

// Open connects to the configured store, retrying the initial connection,
// and applies the schema.
func Open(cfg config.Database, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	log.Info("connecting to database",
		zap.String("driver", cfg.Driver),
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.String("name", cfg.Name))

	attempts := cfg.ConnectRetries
	if attempts < 1 {
		attempts = 1
	}
	var db *gorm.DB
	for i := 0; i < attempts; i++ {
		db, err = gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
		if err == nil {
			break
		}
		log.Warn("database connection attempt failed",
			zap.Int("attempt", i+1), zap.Int("max", attempts), zap.Error(err))
		if i < attempts-1 {
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("database connection established")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	return nil
}

func dialectorFor(cfg config.Database) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.Open(cfg.DSN()), nil
	case config.DriverSQLite:
		return sqlite.Open(cfg.DSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
