package types

import (
	"time"

	"github.com/google/uuid"
)

// DocumentChunk is one overlapping retrieval window of a document's
// full text. ChunkIndex is zero-based and gapless per document.
type DocumentChunk struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	ChunkIndex int    `gorm:"column:chunk_index;not null" json:"chunk_index"`
	Text       string `gorm:"column:text;type:text;not null" json:"text"`
	Span       Span   `gorm:"embedded" json:"span"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (DocumentChunk) TableName() string { return "document_chunk" }
