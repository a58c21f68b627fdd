package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ExtractedField holds the structured contractual fields pulled out of
// one document by the extraction model. Re-extraction supersedes: the
// pipeline keeps at most one current row per document.
type ExtractedField struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	Parties         datatypes.JSON `gorm:"column:parties;type:jsonb" json:"parties,omitempty"`
	EffectiveDate   string         `gorm:"column:effective_date" json:"effective_date,omitempty"`
	Term            string         `gorm:"column:term" json:"term,omitempty"`
	GoverningLaw    string         `gorm:"column:governing_law" json:"governing_law,omitempty"`
	PaymentTerms    string         `gorm:"column:payment_terms;type:text" json:"payment_terms,omitempty"`
	Termination     string         `gorm:"column:termination;type:text" json:"termination,omitempty"`
	AutoRenewal     string         `gorm:"column:auto_renewal" json:"auto_renewal,omitempty"`
	Confidentiality string         `gorm:"column:confidentiality;type:text" json:"confidentiality,omitempty"`
	Indemnity       string         `gorm:"column:indemnity;type:text" json:"indemnity,omitempty"`

	// LiabilityCapAmount is nil when absent or when the model returned
	// a value that failed validation (negative amount, bad currency).
	LiabilityCapAmount   *float64 `gorm:"column:liability_cap_amount" json:"liability_cap_amount,omitempty"`
	LiabilityCapCurrency string   `gorm:"column:liability_cap_currency" json:"liability_cap_currency,omitempty"`

	Signatories datatypes.JSON `gorm:"column:signatories;type:jsonb" json:"signatories,omitempty"`

	ExtractedAt     time.Time `gorm:"column:extracted_at;not null" json:"extracted_at"`
	ExtractionModel string    `gorm:"column:extraction_model" json:"extraction_model"`
}

func (ExtractedField) TableName() string { return "extracted_field" }
