package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/digvijay2003/contract-intelligence-api/internal/logger"
	"github.com/digvijay2003/contract-intelligence-api/internal/types"
)

type ExtractedFieldRepo interface {
	Create(ctx context.Context, tx *gorm.DB, fields []*types.ExtractedField) ([]*types.ExtractedField, error)
	GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) (*types.ExtractedField, error)
	DeleteByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) error
}

type extractedFieldRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExtractedFieldRepo(db *gorm.DB, baseLog *logger.Logger) ExtractedFieldRepo {
	return &extractedFieldRepo{db: db, log: baseLog.With("repo", "ExtractedFieldRepo")}
}

func (r *extractedFieldRepo) Create(ctx context.Context, tx *gorm.DB, fields []*types.ExtractedField) ([]*types.ExtractedField, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(fields) == 0 {
		return []*types.ExtractedField{}, nil
	}
	if err := transaction.WithContext(ctx).Create(fields).Error; err != nil {
		return nil, err
	}
	return fields, nil
}

func (r *extractedFieldRepo) GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) (*types.ExtractedField, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var field types.ExtractedField
	err := transaction.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("extracted_at DESC").
		First(&field).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &field, nil
}

func (r *extractedFieldRepo) DeleteByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("document_id = ?", documentID).
		Delete(&types.ExtractedField{}).Error
}
