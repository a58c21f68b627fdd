package types

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Filename    string         `gorm:"column:filename;not null" json:"filename"`
	StoragePath string         `gorm:"column:storage_path;not null" json:"storage_path"`
	SizeBytes   int64          `gorm:"column:size_bytes" json:"size_bytes"`
	MimeType    string         `gorm:"column:mime_type" json:"mime_type"`
	Status      DocumentStatus `gorm:"column:status;not null;default:'pending';index" json:"status"`

	// FailureReason is set only when Status is failed.
	FailureReason string `gorm:"column:failure_reason" json:"failure_reason,omitempty"`

	// FullText is populated exactly once per successful text-extraction
	// step and cleared only by an explicit re-process.
	FullText  string `gorm:"column:full_text;type:text" json:"-"`
	PageCount int    `gorm:"column:page_count" json:"page_count"`

	UploadedAt  time.Time  `gorm:"column:uploaded_at;not null" json:"uploaded_at"`
	ProcessedAt *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (Document) TableName() string { return "document" }
