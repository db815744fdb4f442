package db

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"requestportal/internal/model"
)

// Models lists every persisted model in dependency order.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Counter{},
		&model.Request{},
		&model.Attachment{},
		&model.Remark{},
	}
}

// Migrate creates or updates the schema. When reset is set, tables are dropped first.
func Migrate(gormDB *gorm.DB, reset bool, log *zap.Logger) error {
	if reset {
		log.Warn("RESET_DB=true detected, dropping all tables")
		models := Models()
		for i := len(models) - 1; i >= 0; i-- {
			if err := gormDB.Migrator().DropTable(models[i]); err != nil {
				log.Warn("failed to drop table (may not exist)", zap.Error(err))
			}
		}
	}

	if err := gormDB.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
