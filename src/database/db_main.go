package database

import (
	"fmt"
	"strings"
	"time"

	"signalcopier/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MainDB is the snapshot database connection used by the bot.
var MainDB *gorm.DB

// InitMainDB opens the snapshot database and runs migrations. A postgres
// DATABASE_URL takes precedence; otherwise a local sqlite file is used.
// This should be called once at application startup (e.g. in the runner).
func InitMainDB() error {

	config := GetConfig()

	var dialector gorm.Dialector
	if strings.HasPrefix(config.DatabaseURL, "postgres") {
		dialector = postgres.Open(config.DatabaseURL)
	} else {
		dialector = sqlite.Open(config.StateDBPath)
	}

	db, err := gorm.Open(dialector,
		&gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to connect to state database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB from GORM: %w", err)
	}
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.Info("[database] MainDB connection established")

	if err := MainDB.AutoMigrate(
		&model.StateRecord{},
		&model.OHLCVRecord{},
		&model.Exception{},
	); err != nil {
		return fmt.Errorf("failed to run migrations on MainDB: %w", err)
	}

	logrus.Info("[database] MainDB migrations completed")

	return nil
}
