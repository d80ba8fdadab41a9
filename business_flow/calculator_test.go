package businessflow

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printshop-os/pricing-engine/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }

func testRule(category, effectType, amount string) *models.PricingRule {
	return &models.PricingRule{
		RuleUUID:   uuid.New(),
		Revision:   1,
		Category:   category,
		EffectType: effectType,
		Amount:     dec(amount),
		IsActive:   true,
	}
}

// screenPrintMatch builds the matched rule set for the standard screen print
// job: $2.00/unit base, $0.50/unit front location, $0.50/unit color charge,
// 10% off volume bracket, $0 repeat setup, 35% margin.
func screenPrintMatch() *MatchedRules {
	location := testRule(models.RuleCategoryLocationSurcharge, models.EffectPerUnit, "0.50")
	location.Location = strPtr(models.LocationFront)

	return &MatchedRules{
		BaseRate:           testRule(models.RuleCategoryBaseRate, models.EffectPerUnit, "2.00"),
		Margin:             testRule(models.RuleCategoryMargin, models.EffectPercent, "0.35"),
		SetupFee:           testRule(models.RuleCategorySetupFee, models.EffectFlat, "0"),
		VolumeDiscount:     testRule(models.RuleCategoryVolumeDiscount, models.EffectPercent, "0.90"),
		LocationSurcharges: []*models.PricingRule{location},
		ColorSurcharges:    []*models.PricingRule{testRule(models.RuleCategoryColorSurcharge, models.EffectPerUnit, "0.50")},
	}
}

func TestCalculatePrice_ScreenPrintScenario(t *testing.T) {
	req := models.CalculationRequest{
		Service:        models.ServiceScreenPrint,
		Quantity:       100,
		ColorCount:     2,
		PrintLocations: []string{models.LocationFront},
	}

	result, err := CalculatePrice(req, screenPrintMatch())
	require.NoError(t, err)

	// (2.00 + 0.50 + 0.50) x 100 = 300, minus 10% = 270, setup 0
	assert.Equal(t, "270.00", result.CostSubtotal.StringFixed(2))
	// 270 / (1 - 0.35) = 415.38
	assert.Equal(t, "415.38", result.RetailBeforeAddOns.StringFixed(2))
	assert.Equal(t, "415.38", result.RetailTotal.StringFixed(2))
	assert.Equal(t, "4.15", result.PerUnitPrice.StringFixed(2))
	assert.Equal(t, "0.35", result.MarginAppliedRate.String())

	// base, location, color, volume delta, setup, margin
	require.Len(t, result.LineItems, 6)
	assert.Equal(t, "-30.00", result.LineItems[3].Amount.StringFixed(2))
}

func TestCalculatePrice_EmbroideryScenario(t *testing.T) {
	setup := testRule(models.RuleCategorySetupFee, models.EffectFlat, "35")
	setup.IsNewDesign = boolPtr(true)

	matched := &MatchedRules{
		BaseRate: testRule(models.RuleCategoryBaseRate, models.EffectPerStitch, "0.0008"),
		Margin:   testRule(models.RuleCategoryMargin, models.EffectPercent, "0.35"),
		SetupFee: setup,
	}

	req := models.CalculationRequest{
		Service:               models.ServiceEmbroidery,
		Quantity:              24,
		IsNewDesign:           true,
		EmbroideryStitchCount: intPtr(5000),
	}

	result, err := CalculatePrice(req, matched)
	require.NoError(t, err)

	// 0.0008 x 5000 x 24 = 96.00, plus 35 setup before margin inversion
	assert.Equal(t, "96.00", result.LineItems[0].Amount.StringFixed(2))
	assert.Equal(t, "131.00", result.CostSubtotal.StringFixed(2))
	assert.Equal(t, "201.54", result.RetailTotal.StringFixed(2))
	assert.Equal(t, "8.40", result.PerUnitPrice.StringFixed(2))
}

func TestCalculatePrice_PerStitchRequiresStitchCount(t *testing.T) {
	matched := &MatchedRules{
		BaseRate: testRule(models.RuleCategoryBaseRate, models.EffectPerStitch, "0.0008"),
		Margin:   testRule(models.RuleCategoryMargin, models.EffectPercent, "0.35"),
		SetupFee: testRule(models.RuleCategorySetupFee, models.EffectFlat, "0"),
	}

	req := models.CalculationRequest{
		Service:  models.ServiceEmbroidery,
		Quantity: 24,
	}

	_, err := CalculatePrice(req, matched)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestCalculatePrice_MarginInvariant(t *testing.T) {
	rates := []string{"0", "0.10", "0.35", "0.50", "0.80"}

	for _, rate := range rates {
		t.Run("margin "+rate, func(t *testing.T) {
			matched := screenPrintMatch()
			matched.Margin = testRule(models.RuleCategoryMargin, models.EffectPercent, rate)

			req := models.CalculationRequest{
				Service:        models.ServiceScreenPrint,
				Quantity:       100,
				ColorCount:     2,
				PrintLocations: []string{models.LocationFront},
			}

			result, err := CalculatePrice(req, matched)
			require.NoError(t, err)

			// (retailBeforeAddOns - costSubtotal) / retailBeforeAddOns ~= m
			achieved := result.RetailBeforeAddOns.Sub(result.CostSubtotal).Div(result.RetailBeforeAddOns)
			epsilon := dec("0.0001")
			assert.True(t, achieved.Sub(dec(rate)).Abs().LessThanOrEqual(epsilon),
				"achieved margin %s too far from target %s", achieved, rate)
		})
	}
}

func TestCalculatePrice_QuantityMonotonicity(t *testing.T) {
	// Holding rules fixed with no volume brackets, a larger quantity must
	// never produce a smaller total.
	matched := &MatchedRules{
		BaseRate: testRule(models.RuleCategoryBaseRate, models.EffectPerUnit, "2.00"),
		Margin:   testRule(models.RuleCategoryMargin, models.EffectPercent, "0.35"),
		SetupFee: testRule(models.RuleCategorySetupFee, models.EffectFlat, "25"),
	}

	prevTotal := decimal.Zero
	var prevPerUnit decimal.Decimal
	for i, quantity := range []int{1, 5, 10, 50, 100, 500, 1000} {
		req := models.CalculationRequest{Service: models.ServiceScreenPrint, Quantity: quantity}
		result, err := CalculatePrice(req, matched)
		require.NoError(t, err)
		assert.True(t, result.RetailTotal.GreaterThanOrEqual(prevTotal),
			"total %s at quantity %d dropped below %s", result.RetailTotal, quantity, prevTotal)
		if i > 0 {
			assert.True(t, result.PerUnitPrice.LessThanOrEqual(prevPerUnit),
				"per-unit %s at quantity %d rose above %s", result.PerUnitPrice, quantity, prevPerUnit)
		}
		prevTotal = result.RetailTotal
		prevPerUnit = result.PerUnitPrice
	}
}

func TestCalculatePrice_Determinism(t *testing.T) {
	matched := screenPrintMatch()
	matched.AddOns = []*models.PricingRule{
		testRule(models.RuleCategoryAddOn, models.EffectFlat, "15"),
	}
	matched.RushSurcharges = []*models.PricingRule{
		testRule(models.RuleCategoryRushSurcharge, models.EffectPercent, "0.20"),
	}

	req := models.CalculationRequest{
		Service:        models.ServiceScreenPrint,
		Quantity:       100,
		ColorCount:     2,
		PrintLocations: []string{models.LocationFront},
		RushRequested:  true,
		AddOns:         []string{models.AddOnFoldAndBag},
	}

	first, err := CalculatePrice(req, matched)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := CalculatePrice(req, matched)
		require.NoError(t, err)
		assert.True(t, first.RetailTotal.Equal(again.RetailTotal))
		require.Len(t, again.LineItems, len(first.LineItems))
		for j := range first.LineItems {
			assert.Equal(t, first.LineItems[j].RuleUUID, again.LineItems[j].RuleUUID)
			assert.True(t, first.LineItems[j].Amount.Equal(again.LineItems[j].Amount))
		}
	}
}

func TestCalculatePrice_PercentageSurchargesAdditive(t *testing.T) {
	// Two percentage location surcharges each apply to the original base
	// cost, not to the running subtotal: 100 + 10% + 10% = 120, not 121.
	left := testRule(models.RuleCategoryLocationSurcharge, models.EffectPercent, "0.10")
	left.Location = strPtr(models.LocationFront)
	right := testRule(models.RuleCategoryLocationSurcharge, models.EffectPercent, "0.10")
	right.Location = strPtr(models.LocationBack)

	matched := &MatchedRules{
		BaseRate:           testRule(models.RuleCategoryBaseRate, models.EffectPerUnit, "1.00"),
		Margin:             testRule(models.RuleCategoryMargin, models.EffectPercent, "0"),
		SetupFee:           testRule(models.RuleCategorySetupFee, models.EffectFlat, "0"),
		LocationSurcharges: []*models.PricingRule{left, right},
	}

	req := models.CalculationRequest{
		Service:        models.ServiceScreenPrint,
		Quantity:       100,
		PrintLocations: []string{models.LocationFront, models.LocationBack},
	}

	result, err := CalculatePrice(req, matched)
	require.NoError(t, err)
	assert.Equal(t, "120.00", result.CostSubtotal.StringFixed(2))
}

func TestCalculatePrice_AddOnsAgainstRetailBeforeAddOns(t *testing.T) {
	matched := &MatchedRules{
		BaseRate: testRule(models.RuleCategoryBaseRate, models.EffectPerUnit, "1.00"),
		Margin:   testRule(models.RuleCategoryMargin, models.EffectPercent, "0.50"),
		SetupFee: testRule(models.RuleCategorySetupFee, models.EffectFlat, "0"),
		RushSurcharges: []*models.PricingRule{
			testRule(models.RuleCategoryRushSurcharge, models.EffectPercent, "0.20"),
		},
	}

	req := models.CalculationRequest{
		Service:       models.ServiceScreenPrint,
		Quantity:      100,
		RushRequested: true,
	}

	result, err := CalculatePrice(req, matched)
	require.NoError(t, err)

	// cost 100, retail before add-ons 200, rush 20% of 200 = 40
	assert.Equal(t, "200.00", result.RetailBeforeAddOns.StringFixed(2))
	assert.Equal(t, "240.00", result.RetailTotal.StringFixed(2))
}

func TestCalculatePrice_FlatLocationRuleAppliesOnce(t *testing.T) {
	anywhere := testRule(models.RuleCategoryLocationSurcharge, models.EffectFlat, "12")

	matched := &MatchedRules{
		BaseRate:           testRule(models.RuleCategoryBaseRate, models.EffectPerUnit, "1.00"),
		Margin:             testRule(models.RuleCategoryMargin, models.EffectPercent, "0"),
		SetupFee:           testRule(models.RuleCategorySetupFee, models.EffectFlat, "0"),
		LocationSurcharges: []*models.PricingRule{anywhere},
	}

	req := models.CalculationRequest{
		Service:        models.ServiceScreenPrint,
		Quantity:       50,
		PrintLocations: []string{models.LocationFront, models.LocationBack},
	}

	result, err := CalculatePrice(req, matched)
	require.NoError(t, err)
	assert.Equal(t, "62.00", result.CostSubtotal.StringFixed(2))
}

func TestMatchedRules_ConsultedRules(t *testing.T) {
	matched := screenPrintMatch()
	refs := matched.ConsultedRules()
	require.Len(t, refs, 6)
	for _, ref := range refs {
		assert.NotEqual(t, uuid.Nil, ref.RuleUUID)
		assert.Equal(t, 1, ref.Revision)
	}
}

func TestPricingRule_Windows(t *testing.T) {
	now := time.Now().UTC()
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)

	rule := testRule(models.RuleCategoryBaseRate, models.EffectPerUnit, "1.00")
	assert.True(t, rule.InWindow(now))

	rule.EffectiveFrom = &tomorrow
	assert.False(t, rule.InWindow(now))

	rule.EffectiveFrom = &yesterday
	rule.EffectiveTo = &tomorrow
	assert.True(t, rule.InWindow(now))

	// effective_to is exclusive
	assert.False(t, rule.InWindow(tomorrow))
}
