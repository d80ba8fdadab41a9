package testing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/printshop-os/pricing-engine/models"
)

// Rule fixtures. Each helper returns revision 1 of an active rule with
// sensible defaults; tests adjust fields as needed before saving.

// NewBaseRateRule creates a per-unit base rate rule scoped to one service.
func NewBaseRateRule(service string, perUnit string) *models.PricingRule {
	return &models.PricingRule{
		RuleUUID:   uuid.New(),
		Revision:   1,
		Category:   models.RuleCategoryBaseRate,
		Service:    &service,
		EffectType: models.EffectPerUnit,
		Amount:     decimal.RequireFromString(perUnit),
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
}

// NewPerStitchBaseRateRule creates an embroidery base rate priced per stitch.
func NewPerStitchBaseRateRule(perStitch string) *models.PricingRule {
	service := models.ServiceEmbroidery
	return &models.PricingRule{
		RuleUUID:   uuid.New(),
		Revision:   1,
		Category:   models.RuleCategoryBaseRate,
		Service:    &service,
		EffectType: models.EffectPerStitch,
		Amount:     decimal.RequireFromString(perStitch),
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
}

// NewMarginRule creates a margin rule with the given fraction-of-retail rate.
func NewMarginRule(rate string) *models.PricingRule {
	return &models.PricingRule{
		RuleUUID:   uuid.New(),
		Revision:   1,
		Category:   models.RuleCategoryMargin,
		EffectType: models.EffectPercent,
		Amount:     decimal.RequireFromString(rate),
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
}

// NewSetupFeeRule creates a flat setup fee rule.
func NewSetupFeeRule(amount string, isNewDesign *bool) *models.PricingRule {
	return &models.PricingRule{
		RuleUUID:    uuid.New(),
		Revision:    1,
		Category:    models.RuleCategorySetupFee,
		IsNewDesign: isNewDesign,
		EffectType:  models.EffectFlat,
		Amount:      decimal.RequireFromString(amount),
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
}

// NewVolumeDiscountRule creates a bracket over [minQty, maxQty) with the
// given multiplier. Pass maxQty <= 0 for an open-ended bracket.
func NewVolumeDiscountRule(minQty, maxQty int, multiplier string) *models.PricingRule {
	rule := &models.PricingRule{
		RuleUUID:    uuid.New(),
		Revision:    1,
		Category:    models.RuleCategoryVolumeDiscount,
		MinQuantity: &minQty,
		EffectType:  models.EffectPercent,
		Amount:      decimal.RequireFromString(multiplier),
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if maxQty > 0 {
		rule.MaxQuantity = &maxQty
	}
	return rule
}

// NewLocationSurchargeRule creates a per-unit surcharge for one print location.
func NewLocationSurchargeRule(location string, perUnit string) *models.PricingRule {
	return &models.PricingRule{
		RuleUUID:   uuid.New(),
		Revision:   1,
		Category:   models.RuleCategoryLocationSurcharge,
		Location:   &location,
		EffectType: models.EffectPerUnit,
		Amount:     decimal.RequireFromString(perUnit),
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
}

// NewColorSurchargeRule creates a per-unit surcharge for a color-count range
// over [minColors, maxColors). Pass maxColors <= 0 for an open-ended range.
func NewColorSurchargeRule(minColors, maxColors int, perUnit string) *models.PricingRule {
	rule := &models.PricingRule{
		RuleUUID:   uuid.New(),
		Revision:   1,
		Category:   models.RuleCategoryColorSurcharge,
		MinColors:  &minColors,
		EffectType: models.EffectPerUnit,
		Amount:     decimal.RequireFromString(perUnit),
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if maxColors > 0 {
		rule.MaxColors = &maxColors
	}
	return rule
}

// NewAddOnRule creates a flat add-on charge for one add-on tag.
func NewAddOnRule(tag string, amount string) *models.PricingRule {
	return &models.PricingRule{
		RuleUUID:   uuid.New(),
		Revision:   1,
		Category:   models.RuleCategoryAddOn,
		AddOnTag:   &tag,
		EffectType: models.EffectFlat,
		Amount:     decimal.RequireFromString(amount),
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
}

// NewRushSurchargeRule creates a percent-of-retail rush surcharge.
func NewRushSurchargeRule(rate string) *models.PricingRule {
	return &models.PricingRule{
		RuleUUID:   uuid.New(),
		Revision:   1,
		Category:   models.RuleCategoryRushSurcharge,
		EffectType: models.EffectPercent,
		Amount:     decimal.RequireFromString(rate),
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
}

// StandardRuleSet returns a complete rule set that prices screen print jobs:
// base rate 2.00/unit, front location 0.50/unit, color bracket [2,3) at
// 0.50/unit, 10% off at 100+, setup fee 0, margin 35%.
func StandardRuleSet() []*models.PricingRule {
	return []*models.PricingRule{
		NewBaseRateRule(models.ServiceScreenPrint, "2.00"),
		NewLocationSurchargeRule(models.LocationFront, "0.50"),
		NewColorSurchargeRule(2, 3, "0.50"),
		NewVolumeDiscountRule(100, 0, "0.90"),
		NewSetupFeeRule("0", nil),
		NewMarginRule("0.35"),
	}
}
