package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalcopier/src/database"
	"signalcopier/src/model"
)

// StateRepository persists the bot state snapshot as a single keyed row.
// The write is an upsert inside a transaction, so the on-disk copy is
// always a complete snapshot and never a partial one.
type StateRepository struct {
	db *gorm.DB
}

// NewStateRepository creates a new repository instance using the main database.
func NewStateRepository() *StateRepository {
	return &StateRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *StateRepository) WithDB(db *gorm.DB) *StateRepository {
	return &StateRepository{db: db}
}

// Load fetches the snapshot payload for the given key and deserializes it.
// Returns (nil, nil) when no snapshot exists yet.
func (r *StateRepository) Load(ctx context.Context, key string) (*model.State, error) {

	logger.WithFields(map[string]interface{}{
		"repo": "StateRepository",
		"op":   "Load",
		"key":  key,
	}).Debug("Loading state snapshot")

	var rec model.StateRecord

	err := r.db.WithContext(ctx).
		Where("key = ?", key).
		First(&rec).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "StateRepository",
				"op":   "Load",
				"key":  key,
			}).Info("No snapshot found, starting fresh")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "StateRepository",
			"op":   "Load",
			"key":  key,
		}).WithError(err).Error("Failed to load state snapshot")

		return nil, err
	}

	state, err := model.StateFromJSON(rec.Payload)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "StateRepository",
			"op":   "Load",
			"key":  key,
		}).WithError(err).Error("Failed to decode state snapshot payload")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "StateRepository",
		"op":     "Load",
		"key":    key,
		"trades": len(state.Trades),
	}).Info("State snapshot loaded")

	return state, nil
}

// Save upserts the snapshot payload for the given key.
func (r *StateRepository) Save(ctx context.Context, key, payload string) error {

	logger.WithFields(map[string]interface{}{
		"repo":  "StateRepository",
		"op":    "Save",
		"key":   key,
		"bytes": len(payload),
	}).Debug("Saving state snapshot")

	rec := &model.StateRecord{
		Key:     key,
		Payload: payload,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).Create(rec).Error
	})

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "StateRepository",
			"op":   "Save",
			"key":  key,
		}).WithError(err).Error("Failed to save state snapshot")

		return err
	}

	return nil
}
