package models

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service type constants
const (
	ServiceScreenPrint = "screen_print"
	ServiceEmbroidery  = "embroidery"
	ServiceDTG         = "dtg"
	ServiceTransfer    = "transfer"
	ServiceVinyl       = "vinyl"
	ServiceOther       = "other"
)

// Print location tags
const (
	LocationFront       = "front"
	LocationBack        = "back"
	LocationLeftChest   = "left_chest"
	LocationRightChest  = "right_chest"
	LocationLeftSleeve  = "left_sleeve"
	LocationRightSleeve = "right_sleeve"
	LocationNeckLabel   = "neck_label"
)

// Add-on tags
const (
	AddOnFoldAndBag     = "fold_and_bag"
	AddOnHangTag        = "hang_tag"
	AddOnHeatPressTag   = "heat_press_tag"
	AddOnMetallicThread = "metallic_thread"
	AddOnNamesNumbers   = "names_numbers"
	AddOnColorMatch     = "color_match"
)

var validServiceTypes = map[string]bool{
	ServiceScreenPrint: true,
	ServiceEmbroidery:  true,
	ServiceDTG:         true,
	ServiceTransfer:    true,
	ServiceVinyl:       true,
	ServiceOther:       true,
}

var validLocations = map[string]bool{
	LocationFront:       true,
	LocationBack:        true,
	LocationLeftChest:   true,
	LocationRightChest:  true,
	LocationLeftSleeve:  true,
	LocationRightSleeve: true,
	LocationNeckLabel:   true,
}

var validAddOns = map[string]bool{
	AddOnFoldAndBag:     true,
	AddOnHangTag:        true,
	AddOnHeatPressTag:   true,
	AddOnMetallicThread: true,
	AddOnNamesNumbers:   true,
	AddOnColorMatch:     true,
}

// IsValidServiceType reports whether the given service type tag is known.
func IsValidServiceType(service string) bool {
	return validServiceTypes[service]
}

// IsValidLocation reports whether the given print location tag is known.
func IsValidLocation(location string) bool {
	return validLocations[location]
}

// IsValidAddOn reports whether the given add-on tag is known.
func IsValidAddOn(addOn string) bool {
	return validAddOns[addOn]
}

// CalculationRequest is the structured description of a job to price.
// It is a value type, not a persisted entity; it is embedded into
// CalculationRecord snapshots as JSON.
type CalculationRequest struct {
	Service               string   `json:"service"`
	Quantity              int      `json:"quantity"`
	ColorCount            int      `json:"color_count"`
	PrintLocations        []string `json:"print_locations,omitempty"`
	IsNewDesign           bool     `json:"is_new_design"`
	RushRequested         bool     `json:"rush_requested"`
	AddOns                []string `json:"add_ons,omitempty"`
	EmbroideryStitchCount *int     `json:"embroidery_stitch_count,omitempty"`
}

// Normalized returns a copy with the set-valued fields sorted and
// de-duplicated so that logically equal requests compare and hash equal.
func (r CalculationRequest) Normalized() CalculationRequest {
	out := r
	out.PrintLocations = normalizeTagSet(r.PrintLocations)
	out.AddOns = normalizeTagSet(r.AddOns)
	return out
}

func normalizeTagSet(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// LineItem is one contribution to a calculation's total, in the order applied.
type LineItem struct {
	RuleUUID     uuid.UUID       `json:"rule_uuid"`
	RuleRevision int             `json:"rule_revision"`
	Category     string          `json:"category"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
}

// CalculationResult is the full auditable price breakdown.
type CalculationResult struct {
	LineItems          []LineItem      `json:"line_items"`
	CostSubtotal       decimal.Decimal `json:"cost_subtotal"`
	MarginAppliedRate  decimal.Decimal `json:"margin_applied_rate"`
	RetailBeforeAddOns decimal.Decimal `json:"retail_before_add_ons"`
	RetailTotal        decimal.Decimal `json:"retail_total"`
	PerUnitPrice       decimal.Decimal `json:"per_unit_price"`
	RequestFingerprint string          `json:"request_fingerprint"`
}

// RuleVersionRef identifies the exact rule revision consulted by a calculation.
type RuleVersionRef struct {
	RuleUUID uuid.UUID `json:"rule_uuid"`
	Revision int       `json:"revision"`
}
