package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreatePricingRuleRequest is the payload for creating a pricing rule.
// Scope fields left nil mean "any" for that dimension.
type CreatePricingRuleRequest struct {
	Category    string  `json:"category" validate:"required"`
	Service     *string `json:"service,omitempty"`
	Location    *string `json:"location,omitempty"`
	MinQuantity *int    `json:"min_quantity,omitempty" validate:"omitempty,gte=0"`
	MaxQuantity *int    `json:"max_quantity,omitempty" validate:"omitempty,gte=1"`
	MinColors   *int    `json:"min_colors,omitempty" validate:"omitempty,gte=0"`
	MaxColors   *int    `json:"max_colors,omitempty" validate:"omitempty,gte=1"`
	IsNewDesign *bool   `json:"is_new_design,omitempty"`
	AddOnTag    *string `json:"add_on_tag,omitempty"`

	EffectType string          `json:"effect_type" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`

	Priority      int        `json:"priority"`
	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	Description   string     `json:"description"`
}

// UpdatePricingRuleRequest is the payload for editing a rule. Only fields
// that are present are changed; the edit produces a new revision.
type UpdatePricingRuleRequest struct {
	Service     *string `json:"service,omitempty"`
	Location    *string `json:"location,omitempty"`
	MinQuantity *int    `json:"min_quantity,omitempty" validate:"omitempty,gte=0"`
	MaxQuantity *int    `json:"max_quantity,omitempty" validate:"omitempty,gte=1"`
	MinColors   *int    `json:"min_colors,omitempty" validate:"omitempty,gte=0"`
	MaxColors   *int    `json:"max_colors,omitempty" validate:"omitempty,gte=1"`
	IsNewDesign *bool   `json:"is_new_design,omitempty"`
	AddOnTag    *string `json:"add_on_tag,omitempty"`

	EffectType *string          `json:"effect_type,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`

	Priority      *int       `json:"priority,omitempty"`
	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	Description   *string    `json:"description,omitempty"`
}

// PricingRuleItem is the API representation of one rule revision.
type PricingRuleItem struct {
	RuleUUID    string  `json:"rule_uuid"`
	Revision    int     `json:"revision"`
	Category    string  `json:"category"`
	Service     *string `json:"service,omitempty"`
	Location    *string `json:"location,omitempty"`
	MinQuantity *int    `json:"min_quantity,omitempty"`
	MaxQuantity *int    `json:"max_quantity,omitempty"`
	MinColors   *int    `json:"min_colors,omitempty"`
	MaxColors   *int    `json:"max_colors,omitempty"`
	IsNewDesign *bool   `json:"is_new_design,omitempty"`
	AddOnTag    *string `json:"add_on_tag,omitempty"`

	EffectType string          `json:"effect_type"`
	Amount     decimal.Decimal `json:"amount"`

	Priority      int     `json:"priority"`
	IsActive      bool    `json:"is_active"`
	EffectiveFrom *string `json:"effective_from,omitempty"`
	EffectiveTo   *string `json:"effective_to,omitempty"`
	Description   string  `json:"description"`
	CreatedAt     string  `json:"created_at"`
}

// RuleWarningItem reports a non-fatal rule configuration finding, such as
// overlapping volume discount brackets observed during matching.
type RuleWarningItem struct {
	Category  string   `json:"category"`
	RuleUUIDs []string `json:"rule_uuids"`
	Message   string   `json:"message"`
}

// PricingRuleResponse wraps one rule revision.
type PricingRuleResponse struct {
	Message string          `json:"message"`
	Rule    PricingRuleItem `json:"rule"`
}

// ListPricingRulesResponse wraps a rule listing plus any accumulated
// configuration warnings.
type ListPricingRulesResponse struct {
	Message  string            `json:"message"`
	Items    []PricingRuleItem `json:"items"`
	Warnings []RuleWarningItem `json:"warnings,omitempty"`
}
