package businessflow

import (
	"fmt"

	"github.com/printshop-os/pricing-engine/models"
	"github.com/printshop-os/pricing-engine/utils"
	"github.com/shopspring/decimal"
)

// CalculatePrice folds matched rules into a price breakdown. The stage
// order is a contract: base cost, location surcharges, color surcharges,
// volume discount, setup fee, margin inversion, add-ons and rush, per-unit
// price. Reordering stages changes results.
//
// All arithmetic is decimal; amounts are rounded to the currency minor
// unit only at margin inversion and at the final total, never at
// intermediate stages. Percentage location and color surcharges are each
// computed against the original base cost independently and summed, not
// compounded.
func CalculatePrice(req models.CalculationRequest, matched *MatchedRules) (*models.CalculationResult, error) {
	quantity := decimal.NewFromInt(int64(req.Quantity))
	result := &models.CalculationResult{LineItems: []models.LineItem{}}

	// Stage 1: base cost
	baseRate := matched.BaseRate
	var baseCost decimal.Decimal
	switch baseRate.EffectType {
	case models.EffectPerStitch:
		if req.EmbroideryStitchCount == nil {
			return nil, NewValidationError("embroidery_stitch_count", "stitch count is required for per-stitch pricing", ErrStitchCountRequired)
		}
		stitches := decimal.NewFromInt(int64(*req.EmbroideryStitchCount))
		baseCost = baseRate.Amount.Mul(stitches).Mul(quantity)
		appendLineItem(result, baseRate, fmt.Sprintf("base rate %s/stitch x %d stitches x %d units", baseRate.Amount, *req.EmbroideryStitchCount, req.Quantity), baseCost)
	case models.EffectPerUnit:
		baseCost = baseRate.Amount.Mul(quantity)
		appendLineItem(result, baseRate, fmt.Sprintf("base rate %s/unit x %d units", baseRate.Amount, req.Quantity), baseCost)
	default:
		return nil, NewValidationError("base_rate", "base rate rule has an unsupported effect type", ErrRuleEffectMismatch)
	}

	subtotal := baseCost

	// Stage 2: location surcharges, one per matching location tag; a rule
	// without a location scope applies once as an order-level fee
	for _, rule := range matched.LocationSurcharges {
		var amount decimal.Decimal
		var desc string
		switch {
		case rule.EffectType == models.EffectPercent:
			amount = baseCost.Mul(rule.Amount)
			desc = fmt.Sprintf("location surcharge %s%% of base", percentDisplay(rule.Amount))
		case rule.Location == nil:
			amount = rule.Amount
			desc = "location surcharge (any location, flat)"
		default:
			amount = rule.Amount.Mul(quantity)
			desc = fmt.Sprintf("location surcharge %s/unit (%s)", rule.Amount, *rule.Location)
		}
		if rule.Location != nil && rule.EffectType == models.EffectPercent {
			desc = fmt.Sprintf("location surcharge %s%% of base (%s)", percentDisplay(rule.Amount), *rule.Location)
		}
		subtotal = subtotal.Add(amount)
		appendLineItem(result, rule, desc, amount)
	}

	// Stage 3: color surcharges
	for _, rule := range matched.ColorSurcharges {
		var amount decimal.Decimal
		var desc string
		if rule.EffectType == models.EffectPercent {
			amount = baseCost.Mul(rule.Amount)
			desc = fmt.Sprintf("color surcharge %s%% of base (%d colors)", percentDisplay(rule.Amount), req.ColorCount)
		} else {
			amount = rule.Amount.Mul(quantity)
			desc = fmt.Sprintf("color surcharge %s/unit (%d colors)", rule.Amount, req.ColorCount)
		}
		subtotal = subtotal.Add(amount)
		appendLineItem(result, rule, desc, amount)
	}

	// Stage 4: volume discount on the running subtotal. Discounts only
	// reduce; a multiplier above 1 is rejected at rule write time.
	if bracket := matched.VolumeDiscount; bracket != nil {
		discounted := subtotal.Mul(bracket.Amount)
		delta := discounted.Sub(subtotal)
		appendLineItem(result, bracket, fmt.Sprintf("volume discount x%s for quantity %d", bracket.Amount, req.Quantity), delta)
		subtotal = discounted
	}

	// Stage 5: setup fee, additive, never multiplied by quantity
	setup := matched.SetupFee
	designKind := "repeat design"
	if req.IsNewDesign {
		designKind = "new design"
	}
	subtotal = subtotal.Add(setup.Amount)
	appendLineItem(result, setup, fmt.Sprintf("setup fee (%s)", designKind), setup.Amount)

	result.CostSubtotal = subtotal

	// Stage 6: margin inversion. The margin rate is a fraction of retail,
	// not a markup on cost: retail = cost / (1 - m). This is the first
	// point where rounding to the currency minor unit is allowed.
	margin := matched.Margin
	one := decimal.NewFromInt(1)
	retailBeforeAddOns := subtotal.Div(one.Sub(margin.Amount)).Round(utils.CurrencyMinorUnitScale)
	result.MarginAppliedRate = margin.Amount
	result.RetailBeforeAddOns = retailBeforeAddOns
	appendLineItem(result, margin, fmt.Sprintf("margin %s%% of retail", percentDisplay(margin.Amount)), retailBeforeAddOns.Sub(subtotal))

	// Stage 7: add-ons and rush surcharge against retail-before-add-ons,
	// in priority order
	retail := retailBeforeAddOns
	surcharges := make([]*models.PricingRule, 0, len(matched.AddOns)+len(matched.RushSurcharges))
	surcharges = append(surcharges, matched.AddOns...)
	surcharges = append(surcharges, matched.RushSurcharges...)
	sortMultiApply(surcharges)
	for _, rule := range surcharges {
		var amount decimal.Decimal
		var desc string
		if rule.EffectType == models.EffectPercent {
			amount = retailBeforeAddOns.Mul(rule.Amount)
			desc = fmt.Sprintf("%s %s%% of retail", surchargeKind(rule), percentDisplay(rule.Amount))
		} else {
			amount = rule.Amount
			desc = fmt.Sprintf("%s flat %s", surchargeKind(rule), rule.Amount)
		}
		retail = retail.Add(amount)
		appendLineItem(result, rule, desc, amount)
	}

	// Stage 8: final total and display per-unit price
	result.RetailTotal = retail.Round(utils.CurrencyMinorUnitScale)
	result.PerUnitPrice = result.RetailTotal.Div(quantity).Round(utils.CurrencyMinorUnitScale)

	return result, nil
}

func appendLineItem(result *models.CalculationResult, rule *models.PricingRule, description string, amount decimal.Decimal) {
	result.LineItems = append(result.LineItems, models.LineItem{
		RuleUUID:     rule.RuleUUID,
		RuleRevision: rule.Revision,
		Category:     rule.Category,
		Description:  description,
		Amount:       amount,
	})
}

func surchargeKind(rule *models.PricingRule) string {
	if rule.Category == models.RuleCategoryRushSurcharge {
		return "rush surcharge"
	}
	if rule.AddOnTag != nil {
		return fmt.Sprintf("add-on %s", *rule.AddOnTag)
	}
	return "add-on"
}

func percentDisplay(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).String()
}
