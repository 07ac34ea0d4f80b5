package db

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go-journey/internal/chat"
	"go-journey/internal/config"
	"go-journey/internal/member"
)

// ErrNoDatabase is returned when neither postgres nor sqlite is configured
var ErrNoDatabase = errors.New("no database configured")

var DB *gorm.DB

// Init opens Postgres when a DSN is set, otherwise the SQLite file, and
// migrates the member and transcript tables.
func Init(cfg *config.Config, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	var dialector gorm.Dialector
	switch {
	case cfg.Postgres.DSN != "":
		dialector = postgres.Open(cfg.Postgres.DSN)
	case cfg.SQLite.Path != "":
		dialector = sqlite.Open(cfg.SQLite.Path)
	default:
		return ErrNoDatabase
	}

	db, err := Open(dialector)
	if err != nil {
		return err
	}
	DB = db
	log.Named("db").Info("Database connected and migrated", zap.String("driver", dialector.Name()))
	return nil
}

// Open connects with dialector and migrates
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&member.Member{}, &chat.Message{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return db, nil
}
