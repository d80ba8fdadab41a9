package businessflow

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/printshop-os/pricing-engine/models"
)

// resolutionPolicy says how rules of one category resolve when several match.
type resolutionPolicy int

const (
	// policySingleWinner: the highest-priority match wins; ties break to
	// the larger rule UUID; zero matches is a coverage error.
	policySingleWinner resolutionPolicy = iota
	// policyMultiApply: all matches apply, ordered by priority descending
	// then rule UUID ascending. The order is part of the contract because
	// percentage surcharges on a running subtotal are order-sensitive.
	policyMultiApply
	// policyBracketSelect: the single bracket containing the quantity is
	// selected; overlapping brackets pick the lowest resulting per-unit
	// price and raise a non-fatal warning.
	policyBracketSelect
)

// categoryPolicy is the explicit per-category resolution table. Precedence
// rules live here, not in scattered conditionals.
var categoryPolicy = map[string]resolutionPolicy{
	models.RuleCategoryBaseRate:          policySingleWinner,
	models.RuleCategoryMargin:            policySingleWinner,
	models.RuleCategorySetupFee:          policySingleWinner,
	models.RuleCategoryLocationSurcharge: policyMultiApply,
	models.RuleCategoryColorSurcharge:    policyMultiApply,
	models.RuleCategoryAddOn:             policyMultiApply,
	models.RuleCategoryRushSurcharge:     policyMultiApply,
	models.RuleCategoryVolumeDiscount:    policyBracketSelect,
}

// MatchWarning is a non-fatal matcher finding, surfaced to rule
// administration on its next list call.
type MatchWarning struct {
	Category  string      `json:"category"`
	RuleUUIDs []uuid.UUID `json:"rule_uuids"`
	Message   string      `json:"message"`
}

// MatchedRules is the per-category outcome of matching one request against
// one snapshot.
type MatchedRules struct {
	BaseRate       *models.PricingRule
	Margin         *models.PricingRule
	SetupFee       *models.PricingRule
	VolumeDiscount *models.PricingRule // nil when no bracket contains the quantity

	LocationSurcharges []*models.PricingRule
	ColorSurcharges    []*models.PricingRule
	AddOns             []*models.PricingRule
	RushSurcharges     []*models.PricingRule
}

// ConsultedRules returns the exact rule revisions that participated in the
// match, for the audit record.
func (m *MatchedRules) ConsultedRules() []models.RuleVersionRef {
	var refs []models.RuleVersionRef
	add := func(r *models.PricingRule) {
		if r != nil {
			refs = append(refs, models.RuleVersionRef{RuleUUID: r.RuleUUID, Revision: r.Revision})
		}
	}
	add(m.BaseRate)
	for _, r := range m.LocationSurcharges {
		add(r)
	}
	for _, r := range m.ColorSurcharges {
		add(r)
	}
	add(m.VolumeDiscount)
	add(m.SetupFee)
	add(m.Margin)
	for _, r := range m.AddOns {
		add(r)
	}
	for _, r := range m.RushSurcharges {
		add(r)
	}
	return refs
}

// scopeMatches evaluates every scope dimension of a rule against the
// request. Dimensions a rule leaves unset match anything.
func scopeMatches(rule *models.PricingRule, req models.CalculationRequest, asOf time.Time) bool {
	if !rule.InWindow(asOf) {
		return false
	}
	if !rule.AppliesToService(req.Service) {
		return false
	}
	if !rule.QuantityInRange(req.Quantity) {
		return false
	}
	if !rule.ColorsInRange(req.ColorCount) {
		return false
	}
	if rule.IsNewDesign != nil && *rule.IsNewDesign != req.IsNewDesign {
		return false
	}
	if rule.Location != nil && !containsTag(req.PrintLocations, *rule.Location) {
		return false
	}
	if rule.AddOnTag != nil && !containsTag(req.AddOns, *rule.AddOnTag) {
		return false
	}
	return true
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// MatchRules resolves, per category, the ordered applicable rules for a
// request against a pinned snapshot. Single-winner categories with zero
// matches produce a CoverageError; the whole match fails rather than
// returning a partial rule set.
func MatchRules(snap *RuleSnapshot, req models.CalculationRequest, asOf time.Time) (*MatchedRules, []MatchWarning, error) {
	matched := &MatchedRules{}
	var warnings []MatchWarning

	for _, category := range models.RuleCategories {
		// Rush surcharges only participate when rush was requested.
		if category == models.RuleCategoryRushSurcharge && !req.RushRequested {
			continue
		}

		candidates := filterMatches(snap.RulesFor(category), req, asOf)

		switch categoryPolicy[category] {
		case policySingleWinner:
			if len(candidates) == 0 {
				return nil, nil, &CoverageError{Category: category, Service: req.Service}
			}
			winner := selectWinner(candidates)
			switch category {
			case models.RuleCategoryBaseRate:
				matched.BaseRate = winner
			case models.RuleCategoryMargin:
				matched.Margin = winner
			case models.RuleCategorySetupFee:
				matched.SetupFee = winner
			}

		case policyMultiApply:
			sortMultiApply(candidates)
			switch category {
			case models.RuleCategoryLocationSurcharge:
				matched.LocationSurcharges = candidates
			case models.RuleCategoryColorSurcharge:
				matched.ColorSurcharges = candidates
			case models.RuleCategoryAddOn:
				matched.AddOns = candidates
			case models.RuleCategoryRushSurcharge:
				matched.RushSurcharges = candidates
			}

		case policyBracketSelect:
			bracket, warning := selectBracket(candidates)
			matched.VolumeDiscount = bracket
			if warning != nil {
				warnings = append(warnings, *warning)
			}
		}
	}

	return matched, warnings, nil
}

func filterMatches(rules []*models.PricingRule, req models.CalculationRequest, asOf time.Time) []*models.PricingRule {
	var out []*models.PricingRule
	for _, r := range rules {
		if scopeMatches(r, req, asOf) {
			out = append(out, r)
		}
	}
	return out
}

// selectWinner picks the highest-priority rule; ties break to the larger
// rule UUID so the outcome is deterministic and stable.
func selectWinner(candidates []*models.PricingRule) *models.PricingRule {
	winner := candidates[0]
	for _, c := range candidates[1:] {
		if c.Priority > winner.Priority {
			winner = c
			continue
		}
		if c.Priority == winner.Priority && c.RuleUUID.String() > winner.RuleUUID.String() {
			winner = c
		}
	}
	return winner
}

// sortMultiApply orders rules by priority descending, then rule UUID
// ascending. Stable application order is load-bearing: some surcharges are
// percentage-of-running-subtotal, so reordering changes the result.
func sortMultiApply(rules []*models.PricingRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].RuleUUID.String() < rules[j].RuleUUID.String()
	})
}

// selectBracket picks the volume bracket containing the quantity. When
// brackets overlap (an administration validation gap), the bracket with
// the lowest multiplier wins, and the overlap is reported as a warning,
// never an error.
func selectBracket(candidates []*models.PricingRule) (*models.PricingRule, *MatchWarning) {
	if len(candidates) == 0 {
		return nil, nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Amount.LessThan(best.Amount) {
			best = c
			continue
		}
		if c.Amount.Equal(best.Amount) && c.RuleUUID.String() < best.RuleUUID.String() {
			best = c
		}
	}
	if len(candidates) == 1 {
		return best, nil
	}

	ids := make([]uuid.UUID, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.RuleUUID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return best, &MatchWarning{
		Category:  models.RuleCategoryVolumeDiscount,
		RuleUUIDs: ids,
		Message:   fmt.Sprintf("%d overlapping volume discount brackets; selected rule %s with the lowest multiplier", len(candidates), best.RuleUUID),
	}
}
