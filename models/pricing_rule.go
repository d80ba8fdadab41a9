// Package models contains domain entities and business models for the pricing engine
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Rule category constants
const (
	RuleCategoryBaseRate          = "base_rate"
	RuleCategoryVolumeDiscount    = "volume_discount"
	RuleCategoryLocationSurcharge = "location_surcharge"
	RuleCategoryColorSurcharge    = "color_surcharge"
	RuleCategorySetupFee          = "setup_fee"
	RuleCategoryMargin            = "margin"
	RuleCategoryAddOn             = "addon"
	RuleCategoryRushSurcharge     = "rush_surcharge"
)

// Effect kind constants
const (
	EffectFlat      = "flat"       // flat amount, applied once per order
	EffectPercent   = "percent"    // percentage multiplier; the base it applies to depends on the category
	EffectPerUnit   = "per_unit"   // rate multiplied by quantity
	EffectPerStitch = "per_stitch" // rate multiplied by stitch count and quantity (embroidery)
)

// RuleCategories lists all known categories in a stable order.
var RuleCategories = []string{
	RuleCategoryBaseRate,
	RuleCategoryVolumeDiscount,
	RuleCategoryLocationSurcharge,
	RuleCategoryColorSurcharge,
	RuleCategorySetupFee,
	RuleCategoryMargin,
	RuleCategoryAddOn,
	RuleCategoryRushSurcharge,
}

// IsValidRuleCategory reports whether the given category is known.
func IsValidRuleCategory(category string) bool {
	for _, c := range RuleCategories {
		if c == category {
			return true
		}
	}
	return false
}

// IsValidEffectType reports whether the given effect kind is known.
func IsValidEffectType(effectType string) bool {
	switch effectType {
	case EffectFlat, EffectPercent, EffectPerUnit, EffectPerStitch:
		return true
	}
	return false
}

// PricingRule is one revision of a pricing rule. Rules are never updated in
// place: editing a rule inserts a new row with the same rule UUID and an
// incremented revision, so historical calculation records stay reproducible.
type PricingRule struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RuleUUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_pricing_rules_uuid_revision,priority:1;index:idx_pricing_rules_uuid" json:"rule_uuid"`
	Revision int       `gorm:"not null;uniqueIndex:idx_pricing_rules_uuid_revision,priority:2" json:"revision"`

	Category string `gorm:"type:varchar(30);not null;index:idx_pricing_rules_category" json:"category"`

	// Scope dimensions; nil means "any" for that dimension
	Service     *string `gorm:"type:varchar(30);index:idx_pricing_rules_service" json:"service,omitempty"`
	Location    *string `gorm:"type:varchar(30)" json:"location,omitempty"`
	MinQuantity *int    `json:"min_quantity,omitempty"` // inclusive
	MaxQuantity *int    `json:"max_quantity,omitempty"` // exclusive
	MinColors   *int    `json:"min_colors,omitempty"`   // inclusive
	MaxColors   *int    `json:"max_colors,omitempty"`   // exclusive
	IsNewDesign *bool   `json:"is_new_design,omitempty"`
	AddOnTag    *string `gorm:"type:varchar(30)" json:"add_on_tag,omitempty"`

	// Effect
	EffectType string          `gorm:"type:varchar(15);not null" json:"effect_type"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"amount"`

	Priority int  `gorm:"not null;default:0" json:"priority"`
	IsActive bool `gorm:"not null;default:true;index:idx_pricing_rules_active" json:"is_active"`

	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`

	Description string `gorm:"type:text" json:"description"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (PricingRule) TableName() string {
	return "pricing_rules"
}

// InWindow reports whether the rule's validity window contains the given instant.
func (r *PricingRule) InWindow(asOf time.Time) bool {
	if r.EffectiveFrom != nil && asOf.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !asOf.Before(*r.EffectiveTo) {
		return false
	}
	return true
}

// AppliesToService reports whether the rule's service scope matches.
func (r *PricingRule) AppliesToService(service string) bool {
	return r.Service == nil || *r.Service == service
}

// QuantityInRange reports whether quantity falls inside the rule's
// [min, max) quantity range.
func (r *PricingRule) QuantityInRange(quantity int) bool {
	if r.MinQuantity != nil && quantity < *r.MinQuantity {
		return false
	}
	if r.MaxQuantity != nil && quantity >= *r.MaxQuantity {
		return false
	}
	return true
}

// ColorsInRange reports whether colorCount falls inside the rule's
// [min, max) color-count range.
func (r *PricingRule) ColorsInRange(colorCount int) bool {
	if r.MinColors != nil && colorCount < *r.MinColors {
		return false
	}
	if r.MaxColors != nil && colorCount >= *r.MaxColors {
		return false
	}
	return true
}

// PricingRuleFilter represents filter criteria for pricing rule queries
type PricingRuleFilter struct {
	ID       *uint      `json:"id,omitempty"`
	RuleUUID *uuid.UUID `json:"rule_uuid,omitempty"`
	Category *string    `json:"category,omitempty"`
	Service  *string    `json:"service,omitempty"`
	IsActive *bool      `json:"is_active,omitempty"`
}
