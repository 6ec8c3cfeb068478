package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalcopier/src/database"
	"signalcopier/src/model"
)

const serviceName = "signal_copier"

// ExceptionRepository persists operational errors for later review.
type ExceptionRepository struct {
	db *gorm.DB
}

// NewExceptionRepository creates a new repository instance using the main database.
func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ExceptionRepository) WithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Record writes one error row. Recording must never take the caller down, so
// a missing database or a failed insert only logs.
func (r *ExceptionRepository) Record(ctx context.Context, module, method, level string, cause error) {
	if r == nil || r.db == nil || cause == nil {
		return
	}

	exc := &model.Exception{
		Service: serviceName,
		Module:  module,
		Method:  method,
		Message: cause.Error(),
		Level:   level,
	}

	if err := r.db.WithContext(ctx).Create(exc).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "ExceptionRepository",
			"module": module,
			"method": method,
		}).WithError(err).Error("Failed to record exception")
	}
}
