package businessflow

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printshop-os/pricing-engine/app/dto"
	"github.com/printshop-os/pricing-engine/models"
)

// screenPrintRules is the stored-rule counterpart of screenPrintMatch: a
// rule set that fully covers screen print jobs.
func screenPrintRules() []*models.PricingRule {
	service := models.ServiceScreenPrint
	return []*models.PricingRule{
		scopedRule(models.RuleCategoryBaseRate, models.EffectPerUnit, "2.00", func(r *models.PricingRule) {
			r.Service = &service
		}),
		testRule(models.RuleCategoryMargin, models.EffectPercent, "0.35"),
		testRule(models.RuleCategorySetupFee, models.EffectFlat, "0"),
		scopedRule(models.RuleCategoryVolumeDiscount, models.EffectPercent, "0.90", func(r *models.PricingRule) {
			r.MinQuantity = intPtr(50)
			r.MaxQuantity = intPtr(200)
		}),
		scopedRule(models.RuleCategoryLocationSurcharge, models.EffectPerUnit, "0.50", func(r *models.PricingRule) {
			r.Location = strPtr(models.LocationFront)
		}),
		scopedRule(models.RuleCategoryColorSurcharge, models.EffectPerUnit, "0.50", func(r *models.PricingRule) {
			r.MinColors = intPtr(2)
			r.MaxColors = intPtr(3)
		}),
	}
}

func newTestCalculationFlow(t *testing.T, ruleRepo *fakeRuleRepo, recordRepo *fakeRecordRepo) (CalculationFlow, *RuleIndex) {
	t.Helper()
	index := NewRuleIndex(ruleRepo)
	require.NoError(t, index.Rebuild(context.Background()))
	flow := NewCalculationFlow(ruleRepo, recordRepo, index, nil, 0, 0)
	return flow, index
}

func screenPrintCalculateRequest() *dto.CalculateRequest {
	return &dto.CalculateRequest{
		Service:        models.ServiceScreenPrint,
		Quantity:       100,
		ColorCount:     2,
		PrintLocations: []string{models.LocationFront},
	}
}

func TestCalculationFlow_Calculate(t *testing.T) {
	ruleRepo := newFakeRuleRepo(screenPrintRules()...)
	recordRepo := &fakeRecordRepo{}
	flow, _ := newTestCalculationFlow(t, ruleRepo, recordRepo)

	resp, err := flow.Calculate(context.Background(), screenPrintCalculateRequest())
	require.NoError(t, err)

	assert.Equal(t, "415.38", resp.Result.RetailTotal.StringFixed(2))
	assert.Equal(t, "4.15", resp.Result.PerUnitPrice.StringFixed(2))
	assert.Equal(t, int64(1), resp.SnapshotVersion)
	assert.NotEmpty(t, resp.Result.RequestFingerprint)

	recordUUID, err := uuid.Parse(resp.RecordUUID)
	require.NoError(t, err)

	// The audit record was written before the result left the flow.
	require.Len(t, recordRepo.records, 1)
	record := recordRepo.records[0]
	assert.Equal(t, recordUUID, record.UUID)
	assert.Equal(t, resp.Result.RequestFingerprint, record.RequestFingerprint)
	assert.Equal(t, int64(1), record.SnapshotVersion)

	refs, err := record.DecodeRulesConsulted()
	require.NoError(t, err)
	assert.Len(t, refs, 6)
}

func TestCalculationFlow_Calculate_ValidationRejections(t *testing.T) {
	ruleRepo := newFakeRuleRepo(screenPrintRules()...)
	recordRepo := &fakeRecordRepo{}
	flow, _ := newTestCalculationFlow(t, ruleRepo, recordRepo)

	cases := []struct {
		name string
		req  *dto.CalculateRequest
	}{
		{"unknown service", &dto.CalculateRequest{Service: "laser_etching", Quantity: 10}},
		{"zero quantity", &dto.CalculateRequest{Service: models.ServiceScreenPrint, Quantity: 0}},
		{"negative colors", &dto.CalculateRequest{Service: models.ServiceScreenPrint, Quantity: 10, ColorCount: -1}},
		{"unknown location", &dto.CalculateRequest{Service: models.ServiceScreenPrint, Quantity: 10, PrintLocations: []string{"hood"}}},
		{"unknown add-on", &dto.CalculateRequest{Service: models.ServiceScreenPrint, Quantity: 10, AddOns: []string{"gift_wrap"}}},
		{"stitch count outside embroidery", &dto.CalculateRequest{Service: models.ServiceScreenPrint, Quantity: 10, EmbroideryStitchCount: intPtr(5000)}},
		{"zero stitch count", &dto.CalculateRequest{Service: models.ServiceEmbroidery, Quantity: 10, EmbroideryStitchCount: intPtr(0)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := flow.Calculate(context.Background(), tc.req)
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.True(t, IsValidationError(err))
		})
	}

	assert.Empty(t, recordRepo.records, "rejected requests must not produce audit records")
}

func TestCalculationFlow_Calculate_CoverageError(t *testing.T) {
	rules := screenPrintRules()
	// Drop the margin rule so the category has zero coverage.
	withoutMargin := make([]*models.PricingRule, 0, len(rules)-1)
	for _, r := range rules {
		if r.Category != models.RuleCategoryMargin {
			withoutMargin = append(withoutMargin, r)
		}
	}

	ruleRepo := newFakeRuleRepo(withoutMargin...)
	recordRepo := &fakeRecordRepo{}
	flow, _ := newTestCalculationFlow(t, ruleRepo, recordRepo)

	resp, err := flow.Calculate(context.Background(), screenPrintCalculateRequest())
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, IsCoverageError(err))
	assert.Empty(t, recordRepo.records)
}

func TestCalculationFlow_Calculate_AuditFailureSuppressesResult(t *testing.T) {
	ruleRepo := newFakeRuleRepo(screenPrintRules()...)
	recordRepo := &fakeRecordRepo{saveErr: errors.New("connection refused")}
	flow, _ := newTestCalculationFlow(t, ruleRepo, recordRepo)

	resp, err := flow.Calculate(context.Background(), screenPrintCalculateRequest())
	require.Error(t, err)
	assert.Nil(t, resp, "an un-audited price must never leave the engine")
	assert.True(t, IsAuditWriteError(err))
}

func TestCalculationFlow_Calculate_LazySnapshotBuild(t *testing.T) {
	ruleRepo := newFakeRuleRepo(screenPrintRules()...)
	recordRepo := &fakeRecordRepo{}
	index := NewRuleIndex(ruleRepo)
	flow := NewCalculationFlow(ruleRepo, recordRepo, index, nil, 0, 0)

	require.Nil(t, index.CurrentSnapshot())

	resp, err := flow.Calculate(context.Background(), screenPrintCalculateRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.SnapshotVersion)
	assert.NotNil(t, index.CurrentSnapshot())
}

func TestCalculationFlow_Calculate_SnapshotUnavailable(t *testing.T) {
	ruleRepo := newFakeRuleRepo(screenPrintRules()...)
	ruleRepo.listErr = errors.New("connection refused")
	recordRepo := &fakeRecordRepo{}
	index := NewRuleIndex(ruleRepo)
	flow := NewCalculationFlow(ruleRepo, recordRepo, index, nil, 0, 0)

	resp, err := flow.Calculate(context.Background(), screenPrintCalculateRequest())
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, IsSnapshotUnavailable(err))
}

func TestCalculationFlow_RepeatRequestsShareFingerprint(t *testing.T) {
	ruleRepo := newFakeRuleRepo(screenPrintRules()...)
	recordRepo := &fakeRecordRepo{}
	flow, _ := newTestCalculationFlow(t, ruleRepo, recordRepo)

	first, err := flow.Calculate(context.Background(), screenPrintCalculateRequest())
	require.NoError(t, err)
	second, err := flow.Calculate(context.Background(), screenPrintCalculateRequest())
	require.NoError(t, err)

	assert.Equal(t, first.Result.RequestFingerprint, second.Result.RequestFingerprint)
	assert.True(t, first.Result.RetailTotal.Equal(second.Result.RetailTotal))

	records, err := flow.ListCalculationRecords(context.Background(), first.Result.RequestFingerprint, 10, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCalculationFlow_GetCalculationRecord_NotFound(t *testing.T) {
	ruleRepo := newFakeRuleRepo(screenPrintRules()...)
	recordRepo := &fakeRecordRepo{}
	flow, _ := newTestCalculationFlow(t, ruleRepo, recordRepo)

	record, err := flow.GetCalculationRecord(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Nil(t, record)
	assert.True(t, IsRecordNotFound(err))
}

func TestCalculationFlow_Replay_ReproducesAfterRuleEdit(t *testing.T) {
	rules := screenPrintRules()
	baseRate := rules[0]

	ruleRepo := newFakeRuleRepo(rules...)
	recordRepo := &fakeRecordRepo{}
	flow, index := newTestCalculationFlow(t, ruleRepo, recordRepo)

	original, err := flow.Calculate(context.Background(), screenPrintCalculateRequest())
	require.NoError(t, err)

	// Edit the base rate: a new revision row, the old one untouched.
	edited := cloneRevision(baseRate)
	edited.Amount = dec("3.00")
	require.NoError(t, ruleRepo.Save(context.Background(), edited))
	require.NoError(t, index.Rebuild(context.Background()))

	recomputed, err := flow.Calculate(context.Background(), screenPrintCalculateRequest())
	require.NoError(t, err)
	assert.False(t, recomputed.Result.RetailTotal.Equal(original.Result.RetailTotal),
		"the edit must change the live price")

	// Replaying the pre-edit record still sees revision 1 of the base rate.
	replay, err := flow.ReplayCalculation(context.Background(), uuid.MustParse(original.RecordUUID))
	require.NoError(t, err)
	assert.True(t, replay.Reproduced)
	assert.True(t, replay.RecomputedResult.RetailTotal.Equal(original.Result.RetailTotal))
	assert.True(t, replay.OriginalResult.RetailTotal.Equal(replay.RecomputedResult.RetailTotal))
}

func TestCalculationFlow_Replay_UnknownRecord(t *testing.T) {
	ruleRepo := newFakeRuleRepo(screenPrintRules()...)
	recordRepo := &fakeRecordRepo{}
	flow, _ := newTestCalculationFlow(t, ruleRepo, recordRepo)

	replay, err := flow.ReplayCalculation(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Nil(t, replay)
	assert.True(t, IsRecordNotFound(err))
}
