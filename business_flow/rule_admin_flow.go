package businessflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/printshop-os/pricing-engine/app/dto"
	"github.com/printshop-os/pricing-engine/models"
	"github.com/printshop-os/pricing-engine/repository"
	"github.com/printshop-os/pricing-engine/utils"
)

// RuleAdminFlow handles pricing rule administration: create, edit,
// deactivate, history, listing, and export. Every successful write rebuilds
// the rule index before returning, so the caller observes its own change.
type RuleAdminFlow interface {
	CreateRule(ctx context.Context, req *dto.CreatePricingRuleRequest) (*dto.PricingRuleResponse, error)
	UpdateRule(ctx context.Context, ruleUUID uuid.UUID, req *dto.UpdatePricingRuleRequest) (*dto.PricingRuleResponse, error)
	DeactivateRule(ctx context.Context, ruleUUID uuid.UUID) (*dto.PricingRuleResponse, error)
	GetRule(ctx context.Context, ruleUUID uuid.UUID) (*dto.PricingRuleResponse, error)
	ListActiveRules(ctx context.Context) (*dto.ListPricingRulesResponse, error)
	ListRuleHistory(ctx context.Context, ruleUUID uuid.UUID) (*dto.ListPricingRulesResponse, error)
	ExportRules(ctx context.Context) ([]byte, error)
}

// RuleAdminFlowImpl implements the rule administration business flow
type RuleAdminFlowImpl struct {
	ruleRepo repository.PricingRuleRepository
	index    *RuleIndex

	// writeMu serializes rule writes so the conflict check and the insert
	// are not racing another admin's write.
	writeMu sync.Mutex
}

// NewRuleAdminFlow creates a new rule administration business flow
func NewRuleAdminFlow(ruleRepo repository.PricingRuleRepository, index *RuleIndex) RuleAdminFlow {
	return &RuleAdminFlowImpl{ruleRepo: ruleRepo, index: index}
}

// CreateRule validates and stores revision 1 of a new rule, then rebuilds
// the index.
func (f *RuleAdminFlowImpl) CreateRule(ctx context.Context, req *dto.CreatePricingRuleRequest) (*dto.PricingRuleResponse, error) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	rule := &models.PricingRule{
		RuleUUID:      uuid.New(),
		Revision:      1,
		Category:      req.Category,
		Service:       req.Service,
		Location:      req.Location,
		MinQuantity:   req.MinQuantity,
		MaxQuantity:   req.MaxQuantity,
		MinColors:     req.MinColors,
		MaxColors:     req.MaxColors,
		IsNewDesign:   req.IsNewDesign,
		AddOnTag:      req.AddOnTag,
		EffectType:    req.EffectType,
		Amount:        req.Amount,
		Priority:      req.Priority,
		IsActive:      true,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
		Description:   req.Description,
	}

	if err := validatePricingRule(rule); err != nil {
		return nil, err
	}
	if err := f.checkConflicts(ctx, rule); err != nil {
		return nil, err
	}
	if err := f.ruleRepo.Save(ctx, rule); err != nil {
		return nil, NewBusinessError("RULE_SAVE_FAILED", "Failed to save pricing rule", err)
	}
	if err := f.index.Rebuild(ctx); err != nil {
		return nil, err
	}

	return &dto.PricingRuleResponse{Message: "Pricing rule created", Rule: toRuleItem(rule)}, nil
}

// UpdateRule appends a new revision with the provided fields merged over the
// latest revision. The prior revision row is never touched, so historical
// calculation records remain reproducible.
func (f *RuleAdminFlowImpl) UpdateRule(ctx context.Context, ruleUUID uuid.UUID, req *dto.UpdatePricingRuleRequest) (*dto.PricingRuleResponse, error) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	latest, err := f.ruleRepo.LatestByRuleUUID(ctx, ruleUUID)
	if err != nil {
		return nil, NewBusinessError("RULE_QUERY_FAILED", "Failed to query pricing rule", err)
	}
	if latest == nil {
		return nil, NewBusinessError("RULE_NOT_FOUND", "Pricing rule not found", ErrRuleNotFound)
	}

	next := mergeRuleUpdate(latest, req)
	if next == nil {
		return nil, NewValidationError("", "at least one field must be provided", ErrRuleUpdateRequired)
	}

	if err := validatePricingRule(next); err != nil {
		return nil, err
	}
	if err := f.checkConflicts(ctx, next); err != nil {
		return nil, err
	}
	if err := f.ruleRepo.Save(ctx, next); err != nil {
		return nil, NewBusinessError("RULE_SAVE_FAILED", "Failed to save pricing rule revision", err)
	}
	if err := f.index.Rebuild(ctx); err != nil {
		return nil, err
	}

	return &dto.PricingRuleResponse{Message: "Pricing rule updated", Rule: toRuleItem(next)}, nil
}

// DeactivateRule appends an inactive revision. The rule disappears from the
// next snapshot but every prior revision stays queryable and replayable.
func (f *RuleAdminFlowImpl) DeactivateRule(ctx context.Context, ruleUUID uuid.UUID) (*dto.PricingRuleResponse, error) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	latest, err := f.ruleRepo.LatestByRuleUUID(ctx, ruleUUID)
	if err != nil {
		return nil, NewBusinessError("RULE_QUERY_FAILED", "Failed to query pricing rule", err)
	}
	if latest == nil {
		return nil, NewBusinessError("RULE_NOT_FOUND", "Pricing rule not found", ErrRuleNotFound)
	}

	next := cloneRevision(latest)
	next.IsActive = false

	if err := f.ruleRepo.Save(ctx, next); err != nil {
		return nil, NewBusinessError("RULE_SAVE_FAILED", "Failed to save pricing rule revision", err)
	}
	if err := f.index.Rebuild(ctx); err != nil {
		return nil, err
	}

	return &dto.PricingRuleResponse{Message: "Pricing rule deactivated", Rule: toRuleItem(next)}, nil
}

// GetRule returns the latest revision of one rule.
func (f *RuleAdminFlowImpl) GetRule(ctx context.Context, ruleUUID uuid.UUID) (*dto.PricingRuleResponse, error) {
	latest, err := f.ruleRepo.LatestByRuleUUID(ctx, ruleUUID)
	if err != nil {
		return nil, NewBusinessError("RULE_QUERY_FAILED", "Failed to query pricing rule", err)
	}
	if latest == nil {
		return nil, NewBusinessError("RULE_NOT_FOUND", "Pricing rule not found", ErrRuleNotFound)
	}
	return &dto.PricingRuleResponse{Message: "Pricing rule found", Rule: toRuleItem(latest)}, nil
}

// ListActiveRules returns the currently effective rule set together with
// any match warnings accumulated since the previous listing.
func (f *RuleAdminFlowImpl) ListActiveRules(ctx context.Context) (*dto.ListPricingRulesResponse, error) {
	rules, err := f.ruleRepo.ListActive(ctx, utils.UTCNow())
	if err != nil {
		return nil, NewBusinessError("RULE_QUERY_FAILED", "Failed to list pricing rules", err)
	}

	items := make([]dto.PricingRuleItem, 0, len(rules))
	for _, r := range rules {
		items = append(items, toRuleItem(r))
	}

	var warnings []dto.RuleWarningItem
	for _, w := range f.index.DrainWarnings() {
		ids := make([]string, 0, len(w.RuleUUIDs))
		for _, id := range w.RuleUUIDs {
			ids = append(ids, id.String())
		}
		warnings = append(warnings, dto.RuleWarningItem{
			Category:  w.Category,
			RuleUUIDs: ids,
			Message:   w.Message,
		})
	}

	return &dto.ListPricingRulesResponse{
		Message:  "Active pricing rules",
		Items:    items,
		Warnings: warnings,
	}, nil
}

// ListRuleHistory returns every revision of one rule, oldest first.
func (f *RuleAdminFlowImpl) ListRuleHistory(ctx context.Context, ruleUUID uuid.UUID) (*dto.ListPricingRulesResponse, error) {
	revisions, err := f.ruleRepo.History(ctx, ruleUUID)
	if err != nil {
		return nil, NewBusinessError("RULE_QUERY_FAILED", "Failed to query rule history", err)
	}
	if len(revisions) == 0 {
		return nil, NewBusinessError("RULE_NOT_FOUND", "Pricing rule not found", ErrRuleNotFound)
	}

	items := make([]dto.PricingRuleItem, 0, len(revisions))
	for _, r := range revisions {
		items = append(items, toRuleItem(r))
	}
	return &dto.ListPricingRulesResponse{Message: "Pricing rule history", Items: items}, nil
}

// ExportRules renders the latest revision of every rule into an XLSX
// workbook for offline review.
func (f *RuleAdminFlowImpl) ExportRules(ctx context.Context) ([]byte, error) {
	rules, err := f.ruleRepo.ListLatest(ctx)
	if err != nil {
		return nil, NewBusinessError("RULE_QUERY_FAILED", "Failed to list pricing rules", err)
	}

	wb := excelize.NewFile()
	defer wb.Close()

	const sheet = "Pricing Rules"
	idx, err := wb.NewSheet(sheet)
	if err != nil {
		return nil, NewBusinessError("RULE_EXPORT_FAILED", "Failed to build export workbook", err)
	}
	wb.SetActiveSheet(idx)
	if err := wb.DeleteSheet("Sheet1"); err != nil {
		return nil, NewBusinessError("RULE_EXPORT_FAILED", "Failed to build export workbook", err)
	}

	headers := []string{
		"Rule UUID", "Revision", "Category", "Service", "Location",
		"Min Qty", "Max Qty", "Min Colors", "Max Colors", "New Design",
		"Add-On", "Effect", "Amount", "Priority", "Active",
		"Effective From", "Effective To", "Description",
	}
	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, NewBusinessError("RULE_EXPORT_FAILED", "Failed to build export workbook", err)
		}
		if err := wb.SetCellValue(sheet, cell, h); err != nil {
			return nil, NewBusinessError("RULE_EXPORT_FAILED", "Failed to build export workbook", err)
		}
	}

	for row, r := range rules {
		values := []any{
			r.RuleUUID.String(), r.Revision, r.Category,
			strOrEmpty(r.Service), strOrEmpty(r.Location),
			intOrEmpty(r.MinQuantity), intOrEmpty(r.MaxQuantity),
			intOrEmpty(r.MinColors), intOrEmpty(r.MaxColors),
			boolOrEmpty(r.IsNewDesign),
			strOrEmpty(r.AddOnTag), r.EffectType, r.Amount.String(),
			r.Priority, r.IsActive,
			timeOrEmpty(r.EffectiveFrom), timeOrEmpty(r.EffectiveTo),
			r.Description,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, NewBusinessError("RULE_EXPORT_FAILED", "Failed to build export workbook", err)
			}
			if err := wb.SetCellValue(sheet, cell, v); err != nil {
				return nil, NewBusinessError("RULE_EXPORT_FAILED", "Failed to build export workbook", err)
			}
		}
	}

	buf, err := wb.WriteToBuffer()
	if err != nil {
		return nil, NewBusinessError("RULE_EXPORT_FAILED", "Failed to serialize export workbook", err)
	}
	return buf.Bytes(), nil
}

// checkConflicts blocks a write that would leave a single-winner category
// ambiguous: another active rule with equal priority, overlapping service
// scope, and an overlapping validity window.
func (f *RuleAdminFlowImpl) checkConflicts(ctx context.Context, candidate *models.PricingRule) error {
	switch candidate.Category {
	case models.RuleCategoryBaseRate, models.RuleCategoryMargin, models.RuleCategorySetupFee:
	default:
		return nil
	}

	existing, err := f.ruleRepo.ListLatest(ctx)
	if err != nil {
		return NewBusinessError("RULE_QUERY_FAILED", "Failed to check rule conflicts", err)
	}

	var colliding []uuid.UUID
	for _, r := range existing {
		if r.RuleUUID == candidate.RuleUUID || !r.IsActive {
			continue
		}
		if r.Category != candidate.Category || r.Priority != candidate.Priority {
			continue
		}
		if !serviceScopesOverlap(r.Service, candidate.Service) {
			continue
		}
		if !windowsOverlap(r, candidate) {
			continue
		}
		colliding = append(colliding, r.RuleUUID)
	}

	if len(colliding) > 0 {
		colliding = append(colliding, candidate.RuleUUID)
		return &ConflictError{Category: candidate.Category, RuleUUIDs: colliding}
	}
	return nil
}

func serviceScopesOverlap(a, b *string) bool {
	if a == nil || b == nil {
		return true
	}
	return *a == *b
}

func windowsOverlap(a, b *models.PricingRule) bool {
	if a.EffectiveTo != nil && b.EffectiveFrom != nil && !b.EffectiveFrom.Before(*a.EffectiveTo) {
		return false
	}
	if b.EffectiveTo != nil && a.EffectiveFrom != nil && !a.EffectiveFrom.Before(*b.EffectiveTo) {
		return false
	}
	return true
}

// validatePricingRule enforces the per-category effect and scope rules.
func validatePricingRule(rule *models.PricingRule) error {
	if !models.IsValidRuleCategory(rule.Category) {
		return NewValidationError("category", fmt.Sprintf("unknown category %q", rule.Category), ErrRuleCategoryInvalid)
	}
	if !models.IsValidEffectType(rule.EffectType) {
		return NewValidationError("effect_type", fmt.Sprintf("unknown effect type %q", rule.EffectType), ErrRuleEffectTypeInvalid)
	}
	if rule.Service != nil && !models.IsValidServiceType(*rule.Service) {
		return NewValidationError("service", fmt.Sprintf("unknown service %q", *rule.Service), ErrRuleServiceInvalid)
	}
	if rule.Location != nil && !models.IsValidLocation(*rule.Location) {
		return NewValidationError("location", fmt.Sprintf("unknown print location %q", *rule.Location), ErrRuleLocationInvalid)
	}
	if rule.AddOnTag != nil && !models.IsValidAddOn(*rule.AddOnTag) {
		return NewValidationError("add_on_tag", fmt.Sprintf("unknown add-on %q", *rule.AddOnTag), ErrRuleAddOnTagInvalid)
	}
	if rule.MinQuantity != nil && *rule.MinQuantity < 0 {
		return NewValidationError("min_quantity", "minimum quantity must not be negative", ErrRuleQuantityRange)
	}
	if rule.MinQuantity != nil && rule.MaxQuantity != nil && *rule.MaxQuantity <= *rule.MinQuantity {
		return NewValidationError("max_quantity", "quantity range is empty", ErrRuleQuantityRange)
	}
	if rule.MinColors != nil && rule.MaxColors != nil && *rule.MaxColors <= *rule.MinColors {
		return NewValidationError("max_colors", "color-count range is empty", ErrRuleColorRange)
	}
	if rule.EffectiveFrom != nil && rule.EffectiveTo != nil && rule.EffectiveTo.Before(*rule.EffectiveFrom) {
		return NewValidationError("effective_to", "validity window ends before it starts", ErrRuleWindowInvalid)
	}

	one := decimal.NewFromInt(1)
	switch rule.Category {
	case models.RuleCategoryBaseRate:
		if rule.EffectType != models.EffectPerUnit && rule.EffectType != models.EffectPerStitch {
			return NewValidationError("effect_type", "base rate must be per_unit or per_stitch", ErrRuleEffectMismatch)
		}
		if !rule.Amount.IsPositive() {
			return NewValidationError("amount", "base rate must be positive", ErrRuleAmountInvalid)
		}
	case models.RuleCategoryMargin:
		if rule.EffectType != models.EffectPercent {
			return NewValidationError("effect_type", "margin must use the percent effect", ErrRuleEffectMismatch)
		}
		if rule.Amount.IsNegative() || rule.Amount.GreaterThanOrEqual(one) {
			return NewValidationError("amount", "margin rate must be in [0, 1)", ErrRuleAmountInvalid)
		}
	case models.RuleCategoryVolumeDiscount:
		if rule.EffectType != models.EffectPercent {
			return NewValidationError("effect_type", "volume discount must use the percent effect", ErrRuleEffectMismatch)
		}
		if !rule.Amount.IsPositive() || rule.Amount.GreaterThan(one) {
			return NewValidationError("amount", "volume discount multiplier must be in (0, 1]", ErrRuleAmountInvalid)
		}
		if rule.MinQuantity == nil {
			return NewValidationError("min_quantity", "volume discount brackets need a quantity range", ErrRuleQuantityRange)
		}
	case models.RuleCategorySetupFee:
		if rule.EffectType != models.EffectFlat {
			return NewValidationError("effect_type", "setup fee must be a flat amount", ErrRuleEffectMismatch)
		}
		if rule.Amount.IsNegative() {
			return NewValidationError("amount", "setup fee must not be negative", ErrRuleAmountInvalid)
		}
	case models.RuleCategoryLocationSurcharge, models.RuleCategoryColorSurcharge:
		if rule.EffectType == models.EffectPerStitch {
			return NewValidationError("effect_type", "surcharges cannot be per_stitch", ErrRuleEffectMismatch)
		}
		if rule.Amount.IsNegative() {
			return NewValidationError("amount", "surcharge must not be negative", ErrRuleAmountInvalid)
		}
	case models.RuleCategoryAddOn:
		if rule.AddOnTag == nil {
			return NewValidationError("add_on_tag", "add-on rules must name an add-on tag", ErrRuleAddOnTagRequired)
		}
		if rule.EffectType != models.EffectFlat && rule.EffectType != models.EffectPercent {
			return NewValidationError("effect_type", "add-on rules must be flat or percent", ErrRuleEffectMismatch)
		}
		if rule.Amount.IsNegative() {
			return NewValidationError("amount", "add-on charge must not be negative", ErrRuleAmountInvalid)
		}
	case models.RuleCategoryRushSurcharge:
		if rule.EffectType != models.EffectFlat && rule.EffectType != models.EffectPercent {
			return NewValidationError("effect_type", "rush surcharge must be flat or percent", ErrRuleEffectMismatch)
		}
		if rule.Amount.IsNegative() {
			return NewValidationError("amount", "rush surcharge must not be negative", ErrRuleAmountInvalid)
		}
	}
	return nil
}

// cloneRevision copies the latest revision into a fresh row with the
// revision bumped, ready for modification.
func cloneRevision(latest *models.PricingRule) *models.PricingRule {
	next := *latest
	next.ID = 0
	next.Revision = latest.Revision + 1
	next.CreatedAt = time.Time{}
	next.UpdatedAt = time.Time{}
	return &next
}

// mergeRuleUpdate applies the non-nil update fields onto a clone of the
// latest revision. Returns nil when the update carries no fields.
func mergeRuleUpdate(latest *models.PricingRule, req *dto.UpdatePricingRuleRequest) *models.PricingRule {
	next := cloneRevision(latest)
	changed := false

	if req.Service != nil {
		next.Service = req.Service
		changed = true
	}
	if req.Location != nil {
		next.Location = req.Location
		changed = true
	}
	if req.MinQuantity != nil {
		next.MinQuantity = req.MinQuantity
		changed = true
	}
	if req.MaxQuantity != nil {
		next.MaxQuantity = req.MaxQuantity
		changed = true
	}
	if req.MinColors != nil {
		next.MinColors = req.MinColors
		changed = true
	}
	if req.MaxColors != nil {
		next.MaxColors = req.MaxColors
		changed = true
	}
	if req.IsNewDesign != nil {
		next.IsNewDesign = req.IsNewDesign
		changed = true
	}
	if req.AddOnTag != nil {
		next.AddOnTag = req.AddOnTag
		changed = true
	}
	if req.EffectType != nil {
		next.EffectType = *req.EffectType
		changed = true
	}
	if req.Amount != nil {
		next.Amount = *req.Amount
		changed = true
	}
	if req.Priority != nil {
		next.Priority = *req.Priority
		changed = true
	}
	if req.EffectiveFrom != nil {
		next.EffectiveFrom = req.EffectiveFrom
		changed = true
	}
	if req.EffectiveTo != nil {
		next.EffectiveTo = req.EffectiveTo
		changed = true
	}
	if req.Description != nil {
		next.Description = *req.Description
		changed = true
	}

	if !changed {
		return nil
	}
	return next
}

func toRuleItem(r *models.PricingRule) dto.PricingRuleItem {
	return dto.PricingRuleItem{
		RuleUUID:      r.RuleUUID.String(),
		Revision:      r.Revision,
		Category:      r.Category,
		Service:       r.Service,
		Location:      r.Location,
		MinQuantity:   r.MinQuantity,
		MaxQuantity:   r.MaxQuantity,
		MinColors:     r.MinColors,
		MaxColors:     r.MaxColors,
		IsNewDesign:   r.IsNewDesign,
		AddOnTag:      r.AddOnTag,
		EffectType:    r.EffectType,
		Amount:        r.Amount,
		Priority:      r.Priority,
		IsActive:      r.IsActive,
		EffectiveFrom: timePtrString(r.EffectiveFrom),
		EffectiveTo:   timePtrString(r.EffectiveTo),
		Description:   r.Description,
		CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func timePtrString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intOrEmpty(i *int) any {
	if i == nil {
		return ""
	}
	return *i
}

func boolOrEmpty(b *bool) any {
	if b == nil {
		return ""
	}
	return *b
}

func timeOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
