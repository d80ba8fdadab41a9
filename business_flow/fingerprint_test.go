package businessflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/printshop-os/pricing-engine/models"
)

func TestRequestFingerprint_SetOrderInsensitive(t *testing.T) {
	a := models.CalculationRequest{
		Service:        models.ServiceScreenPrint,
		Quantity:       100,
		ColorCount:     2,
		PrintLocations: []string{models.LocationFront, models.LocationBack},
		AddOns:         []string{models.AddOnHangTag, models.AddOnFoldAndBag},
	}
	b := models.CalculationRequest{
		Service:        models.ServiceScreenPrint,
		Quantity:       100,
		ColorCount:     2,
		PrintLocations: []string{models.LocationBack, models.LocationFront},
		AddOns:         []string{models.AddOnFoldAndBag, models.AddOnHangTag},
	}

	assert.Equal(t, RequestFingerprint(a), RequestFingerprint(b))
}

func TestRequestFingerprint_DuplicateTagsCollapse(t *testing.T) {
	a := models.CalculationRequest{
		Service:        models.ServiceScreenPrint,
		Quantity:       100,
		PrintLocations: []string{models.LocationFront},
	}
	b := models.CalculationRequest{
		Service:        models.ServiceScreenPrint,
		Quantity:       100,
		PrintLocations: []string{models.LocationFront, models.LocationFront},
	}

	assert.Equal(t, RequestFingerprint(a), RequestFingerprint(b))
}

func TestRequestFingerprint_FieldChangesDiffer(t *testing.T) {
	base := models.CalculationRequest{
		Service:    models.ServiceScreenPrint,
		Quantity:   100,
		ColorCount: 2,
	}

	variants := []models.CalculationRequest{
		{Service: models.ServiceDTG, Quantity: 100, ColorCount: 2},
		{Service: models.ServiceScreenPrint, Quantity: 101, ColorCount: 2},
		{Service: models.ServiceScreenPrint, Quantity: 100, ColorCount: 3},
		{Service: models.ServiceScreenPrint, Quantity: 100, ColorCount: 2, RushRequested: true},
		{Service: models.ServiceScreenPrint, Quantity: 100, ColorCount: 2, IsNewDesign: true},
		{Service: models.ServiceScreenPrint, Quantity: 100, ColorCount: 2, EmbroideryStitchCount: intPtr(5000)},
	}

	seen := map[string]bool{RequestFingerprint(base): true}
	for _, v := range variants {
		fp := RequestFingerprint(v)
		assert.False(t, seen[fp], "variant %+v collided", v)
		seen[fp] = true
	}
}

func TestRequestFingerprint_Stable(t *testing.T) {
	req := models.CalculationRequest{
		Service:               models.ServiceEmbroidery,
		Quantity:              24,
		EmbroideryStitchCount: intPtr(5000),
	}

	first := RequestFingerprint(req)
	assert.Len(t, first, 64)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, RequestFingerprint(req))
	}
}
