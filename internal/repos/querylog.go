package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/digvijay2003/contract-intelligence-api/internal/logger"
	"github.com/digvijay2003/contract-intelligence-api/internal/types"
)

// QueryLogRepo is write-once by design: no update or delete methods.
type QueryLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, logs []*types.QueryLog) ([]*types.QueryLog, error)
	ListBySessionID(ctx context.Context, tx *gorm.DB, sessionID string, limit int) ([]*types.QueryLog, error)
}

type queryLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQueryLogRepo(db *gorm.DB, baseLog *logger.Logger) QueryLogRepo {
	return &queryLogRepo{db: db, log: baseLog.With("repo", "QueryLogRepo")}
}

func (r *queryLogRepo) Create(ctx context.Context, tx *gorm.DB, logs []*types.QueryLog) ([]*types.QueryLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(logs) == 0 {
		return []*types.QueryLog{}, nil
	}
	if err := transaction.WithContext(ctx).Create(logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *queryLogRepo) ListBySessionID(ctx context.Context, tx *gorm.DB, sessionID string, limit int) ([]*types.QueryLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var results []*types.QueryLog
	if err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
