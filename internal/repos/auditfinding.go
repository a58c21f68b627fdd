package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/digvijay2003/contract-intelligence-api/internal/logger"
	"github.com/digvijay2003/contract-intelligence-api/internal/types"
)

type AuditFindingRepo interface {
	Create(ctx context.Context, tx *gorm.DB, findings []*types.AuditFinding) ([]*types.AuditFinding, error)
	GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.AuditFinding, error)
	DeleteByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) error
}

type auditFindingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditFindingRepo(db *gorm.DB, baseLog *logger.Logger) AuditFindingRepo {
	return &auditFindingRepo{db: db, log: baseLog.With("repo", "AuditFindingRepo")}
}

func (r *auditFindingRepo) Create(ctx context.Context, tx *gorm.DB, findings []*types.AuditFinding) ([]*types.AuditFinding, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(findings) == 0 {
		return []*types.AuditFinding{}, nil
	}
	if err := transaction.WithContext(ctx).Create(findings).Error; err != nil {
		return nil, err
	}
	return findings, nil
}

func (r *auditFindingRepo) GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.AuditFinding, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.AuditFinding
	if err := transaction.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("rule_id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *auditFindingRepo) DeleteByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("document_id = ?", documentID).
		Delete(&types.AuditFinding{}).Error
}
