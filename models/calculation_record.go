package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CalculationRecord is the immutable audit snapshot of one calculation:
// the request, the result, and the exact rule revisions consulted.
// Records are appended once and never updated or deleted.
type CalculationRecord struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`

	RequestFingerprint string `gorm:"size:64;not null;index:idx_calculation_records_fingerprint" json:"request_fingerprint"`
	SnapshotVersion    int64  `gorm:"not null" json:"snapshot_version"`

	Request        json.RawMessage `gorm:"type:jsonb;not null" json:"request"`
	Result         json.RawMessage `gorm:"type:jsonb;not null" json:"result"`
	RulesConsulted json.RawMessage `gorm:"type:jsonb;not null" json:"rules_consulted"`

	ComputedAt time.Time `gorm:"not null;index:idx_calculation_records_computed_at" json:"computed_at"`
}

// BeforeCreate ensures UUID is set
func (cr *CalculationRecord) BeforeCreate(tx *gorm.DB) error {
	if cr.UUID == uuid.Nil {
		cr.UUID = uuid.New()
	}
	return nil
}

// TableName specifies the table name for GORM
func (CalculationRecord) TableName() string {
	return "calculation_records"
}

// DecodeRequest unmarshals the stored request snapshot.
func (cr *CalculationRecord) DecodeRequest() (CalculationRequest, error) {
	var req CalculationRequest
	err := json.Unmarshal(cr.Request, &req)
	return req, err
}

// DecodeResult unmarshals the stored result snapshot.
func (cr *CalculationRecord) DecodeResult() (CalculationResult, error) {
	var res CalculationResult
	err := json.Unmarshal(cr.Result, &res)
	return res, err
}

// DecodeRulesConsulted unmarshals the stored rule revision set.
func (cr *CalculationRecord) DecodeRulesConsulted() ([]RuleVersionRef, error) {
	var refs []RuleVersionRef
	err := json.Unmarshal(cr.RulesConsulted, &refs)
	return refs, err
}

// CalculationRecordFilter represents filter criteria for calculation record queries
type CalculationRecordFilter struct {
	ID                 *uint      `json:"id,omitempty"`
	UUID               *uuid.UUID `json:"uuid,omitempty"`
	RequestFingerprint *string    `json:"request_fingerprint,omitempty"`
	ComputedAfter      *time.Time `json:"computed_after,omitempty"`
	ComputedBefore     *time.Time `json:"computed_before,omitempty"`
}
