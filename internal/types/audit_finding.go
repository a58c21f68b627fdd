package types

import (
	"time"

	"github.com/google/uuid"
)

// AuditFinding is one rule hit against a document. EvidenceText, when
// the span is non-nil, is the verbatim substring
// FullText[Span.CharStart:Span.CharEnd]. A finding the engine could
// not anchor keeps a nil span rather than a fabricated one.
type AuditFinding struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	RuleID      string       `gorm:"column:rule_id;not null;index" json:"rule_id"`
	RuleName    string       `gorm:"column:rule_name;not null" json:"rule_name"`
	Severity    RiskSeverity `gorm:"column:severity;not null" json:"severity"`
	Description string       `gorm:"column:description;type:text" json:"description"`

	EvidenceText string `gorm:"column:evidence_text;type:text" json:"evidence_text,omitempty"`
	Span         *Span  `gorm:"embedded" json:"span,omitempty"`

	DetectedAt time.Time `gorm:"column:detected_at;not null" json:"detected_at"`
}

func (AuditFinding) TableName() string { return "audit_finding" }
