package database

import (
	"errors"
	"time"

	"github.com/taskmindhq/taskmind/backend/internal/tasks"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationPurgeOwnerlessTasks = "2026-06-18_purge_ownerless_tasks"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationPurgeOwnerlessTasks, apply: purgeOwnerlessTasks},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// purgeOwnerlessTasks drops rows written before the ownership predicate was
// mandatory; such rows are unreachable through the API.
func purgeOwnerlessTasks(db *gorm.DB) error {
	return db.Where("user_id = '' OR user_id IS NULL").Delete(&tasks.Task{}).Error
}
