package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/digvijay2003/contract-intelligence-api/internal/logger"
	"github.com/digvijay2003/contract-intelligence-api/internal/types"
)

// ErrInvalidTransition is returned when a caller asks for a status
// change the lifecycle table does not allow.
var ErrInvalidTransition = errors.New("invalid document status transition")

type DocumentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, docs []*types.Document) ([]*types.Document, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Document, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Document, error)
	List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*types.Document, error)

	// UpdateStatusIf flips the document from `from` to `to` only when
	// its persisted status still equals `from`, applying extra column
	// updates in the same statement. Returns false when the guard did
	// not match (someone else already moved the document).
	UpdateStatusIf(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to types.DocumentStatus, extra map[string]interface{}) (bool, error)

	// ClaimNextPending atomically claims the oldest pending document for
	// processing. Returns nil when there is nothing to claim.
	ClaimNextPending(ctx context.Context, tx *gorm.DB) (*types.Document, error)

	// SetExtractedText records the full text and page count once. It
	// refuses to overwrite non-empty text.
	SetExtractedText(ctx context.Context, tx *gorm.DB, id uuid.UUID, fullText string, pageCount int) error

	// FailStranded moves every PROCESSING document to FAILED with the
	// given reason. Meant for startup, when no worker can still own a
	// claim from a previous run. Returns the number of rows moved.
	FailStranded(ctx context.Context, tx *gorm.DB, reason string) (int64, error)

	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) Create(ctx context.Context, tx *gorm.DB, docs []*types.Document) ([]*types.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(docs) == 0 {
		return []*types.Document{}, nil
	}
	if err := transaction.WithContext(ctx).Create(docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var doc types.Document
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Document
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentRepo) List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*types.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var results []*types.Document
	if err := transaction.WithContext(ctx).
		Order("uploaded_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentRepo) UpdateStatusIf(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to types.DocumentStatus, extra map[string]interface{}) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if !types.CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := transaction.WithContext(ctx).
		Model(&types.Document{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *documentRepo) FailStranded(ctx context.Context, tx *gorm.DB, reason string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.Document{}).
		Where("status = ?", types.StatusProcessing).
		Updates(map[string]interface{}{
			"status":         types.StatusFailed,
			"failure_reason": reason,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *documentRepo) ClaimNextPending(ctx context.Context, tx *gorm.DB) (*types.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	// The conditional update is the claim; losing a race just means
	// another worker got the document first, so try the next one.
	const maxCandidates = 5
	for attempt := 0; attempt < maxCandidates; attempt++ {
		var doc types.Document
		err := transaction.WithContext(ctx).
			Where("status = ?", types.StatusPending).
			Order("uploaded_at ASC").
			Offset(attempt).
			First(&doc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		claimed, err := r.UpdateStatusIf(ctx, transaction, doc.ID, types.StatusPending, types.StatusProcessing, nil)
		if err != nil {
			return nil, err
		}
		if claimed {
			doc.Status = types.StatusProcessing
			return &doc, nil
		}
	}
	return nil, nil
}

func (r *documentRepo) SetExtractedText(ctx context.Context, tx *gorm.DB, id uuid.UUID, fullText string, pageCount int) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.Document{}).
		Where("id = ? AND (full_text IS NULL OR full_text = '')", id).
		Updates(map[string]interface{}{
			"full_text":  fullText,
			"page_count": pageCount,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("full_text already populated for document %s", id)
	}
	return nil
}

func (r *documentRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Where("id = ?", id).Delete(&types.Document{}).Error
}
