package audit

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/bitizen-labs/sessiond/internal/domain/models"
	"github.com/bitizen-labs/sessiond/internal/domain/service"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

// GormTaskLogStore appends delegated-task outcomes to the task_logs table.
// The table is append-only; reconciliation tooling reads it to pair
// settlement references with recorded usage.
type GormTaskLogStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewGormTaskLogStore migrates the task_logs table and returns the store.
func NewGormTaskLogStore(db *gorm.DB, log logger.Logger) (service.TaskLogStore, error) {
	if err := db.AutoMigrate(&models.TaskLog{}); err != nil {
		return nil, fmt.Errorf("migrate task_logs: %w", err)
	}
	return &GormTaskLogStore{db: db, logger: log.WithComponent("GormTaskLogStore")}, nil
}

// Append durably writes one gate outcome.
func (s *GormTaskLogStore) Append(ctx context.Context, entry *models.TaskLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.logger.Error(ctx, "failed to append task log", err,
			logger.String("task_id", entry.TaskID),
			logger.String("session_id", entry.SessionID))
		return err
	}
	return nil
}

// FindBySession returns the most recent outcomes for a session, newest first.
func (s *GormTaskLogStore) FindBySession(ctx context.Context, sessionID string, limit int) ([]*models.TaskLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var logs []*models.TaskLog
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
