package dto

import (
	"github.com/printshop-os/pricing-engine/models"
)

// CalculateRequest describes one job to price.
type CalculateRequest struct {
	Service               string   `json:"service" validate:"required"`
	Quantity              int      `json:"quantity" validate:"required,gte=1"`
	ColorCount            int      `json:"color_count" validate:"gte=0"`
	PrintLocations        []string `json:"print_locations" validate:"omitempty,dive,required"`
	IsNewDesign           bool     `json:"is_new_design"`
	RushRequested         bool     `json:"rush_requested"`
	AddOns                []string `json:"add_ons" validate:"omitempty,dive,required"`
	EmbroideryStitchCount *int     `json:"embroidery_stitch_count" validate:"omitempty,gte=1"`
}

// ToModel converts the request payload into the domain value type.
func (r *CalculateRequest) ToModel() models.CalculationRequest {
	return models.CalculationRequest{
		Service:               r.Service,
		Quantity:              r.Quantity,
		ColorCount:            r.ColorCount,
		PrintLocations:        r.PrintLocations,
		IsNewDesign:           r.IsNewDesign,
		RushRequested:         r.RushRequested,
		AddOns:                r.AddOns,
		EmbroideryStitchCount: r.EmbroideryStitchCount,
	}
}

// CalculateResponse carries the full price breakdown and the audit handle.
type CalculateResponse struct {
	Message         string                   `json:"message"`
	RecordUUID      string                   `json:"record_uuid"`
	SnapshotVersion int64                    `json:"snapshot_version"`
	Result          models.CalculationResult `json:"result"`
}

// ReplayCalculationResponse is the result of recomputing a stored
// calculation record against its pinned rule revisions.
type ReplayCalculationResponse struct {
	Message          string                   `json:"message"`
	RecordUUID       string                   `json:"record_uuid"`
	OriginalResult   models.CalculationResult `json:"original_result"`
	RecomputedResult models.CalculationResult `json:"recomputed_result"`
	Reproduced       bool                     `json:"reproduced"`
}
