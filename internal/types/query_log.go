package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// QueryLog is the append-only record of a served query. Rows are
// written once and never mutated or deleted by the core.
type QueryLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID string    `gorm:"column:session_id;index" json:"session_id"`

	Question    string         `gorm:"column:question;type:text" json:"question"`
	Answer      string         `gorm:"column:answer;type:text" json:"answer"`
	DocumentIDs datatypes.JSON `gorm:"column:document_ids;type:jsonb" json:"document_ids"`

	LatencyMS int64 `gorm:"column:latency_ms" json:"latency_ms"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (QueryLog) TableName() string { return "query_log" }
