// Package repo implements the persisted record store on top of GORM,
// supporting SQLite and PostgreSQL through the same schema.
package repo

import (
	"errors"
	"fmt"

	gsqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vpn-backend/internal/store/model"
)

const currentSchemaVersion = 1

// Repository provides access to all locally owned records.
type Repository struct {
	db *gorm.DB
}

// Open opens (or creates) a SQLite database at path and migrates it.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*Repository, error) {
	db, err := gorm.Open(gsqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := migrateSchema(db); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

// OpenPostgres connects to a PostgreSQL database and migrates it.
func OpenPostgres(url string) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := migrateSchema(db); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

// Close closes the underlying connection.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// seedDefaultSettingsFn is swappable for tests.
var seedDefaultSettingsFn = seedDefaultSettings

func migrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Config{},
		&model.PremadeConfig{},
		&model.Notice{},
		&model.AdminSettings{},
		&model.UsageSample{},
		&model.SchemaVersion{},
	); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	var v model.SchemaVersion
	err := db.Take(&v).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := db.Create(&model.SchemaVersion{Version: currentSchemaVersion}).Error; err != nil {
			return fmt.Errorf("seed schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case v.Version < currentSchemaVersion:
		if err := db.Model(&model.SchemaVersion{}).Where("1 = 1").Update("version", currentSchemaVersion).Error; err != nil {
			return fmt.Errorf("bump schema version: %w", err)
		}
	}

	return seedDefaultSettingsFn(db)
}

func seedDefaultSettings(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.AdminSettings{}).Where("id = 1").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return db.Create(&model.AdminSettings{
		ID:                1,
		DefaultMaxConfigs: 2,
		DefaultMaxGB:      10,
		ShowLiveUsers:     true,
	}).Error
}
