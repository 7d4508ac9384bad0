package Billing

import (
	"testing"
	"time"

	"Voltway/Models"

	"github.com/stretchr/testify/assert"
)

func TestComputeFromChargeLevels(t *testing.T) {
	engine := NewEngine(DefaultRates())

	breakdown := engine.Compute(Input{
		Levels: Models.ChargeLevels{
			Start: []float64{80, 60},
			End:   []float64{50, 60},
		},
	})

	assert.InDelta(t, 30, breakdown.DepletedUnits, 1e-9)
	assert.InDelta(t, 7.5, breakdown.KWH, 1e-9)
	assert.False(t, breakdown.TimeFallback)
	assert.InDelta(t, 3.30, breakdown.UtilityCost, 1e-9)
	assert.InDelta(t, 1.95, breakdown.OperatorCost, 1e-9)
	assert.InDelta(t, 30, breakdown.DeliveryFee, 1e-9)
	assert.InDelta(t, 35.25, breakdown.Subtotal, 1e-9)
	assert.InDelta(t, 1.76, breakdown.VAT, 1e-9)
	assert.InDelta(t, 37.01, breakdown.Total, 1e-9)
}

func TestComputeIgnoresRisingSegments(t *testing.T) {
	engine := NewEngine(DefaultRates())

	// Second segment rose; it contributes zero, never a negative unit.
	breakdown := engine.Compute(Input{
		Levels: Models.ChargeLevels{
			Start: []float64{80, 40},
			End:   []float64{50, 70},
		},
	})

	assert.InDelta(t, 30, breakdown.DepletedUnits, 1e-9)
}

func TestComputeTimeFallback(t *testing.T) {
	engine := NewEngine(DefaultRates())

	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)

	breakdown := engine.Compute(Input{
		Levels:    Models.ChargeLevels{Start: []float64{50}, End: []float64{50}},
		StartedAt: &start,
		EndedAt:   &end,
	})

	assert.True(t, breakdown.TimeFallback)
	assert.InDelta(t, 10.5, breakdown.KWH, 1e-9)
	assert.InDelta(t, 4.62, breakdown.UtilityCost, 1e-9)
	assert.InDelta(t, 2.73, breakdown.OperatorCost, 1e-9)
	assert.InDelta(t, 37.35, breakdown.Subtotal, 1e-9)
	assert.InDelta(t, 1.86, breakdown.VAT, 1e-9)
	assert.InDelta(t, 39.21, breakdown.Total, 1e-9)
}

func TestComputeFallbackWithoutWindow(t *testing.T) {
	engine := NewEngine(DefaultRates())

	// No usable levels and no charging window prices only the flat fee.
	breakdown := engine.Compute(Input{})

	assert.InDelta(t, 0, breakdown.KWH, 1e-9)
	assert.InDelta(t, 30, breakdown.Subtotal, 1e-9)
	assert.InDelta(t, 1.5, breakdown.VAT, 1e-9)
	assert.InDelta(t, 31.5, breakdown.Total, 1e-9)
}

func TestComputeDiscountBeforeVAT(t *testing.T) {
	engine := NewEngine(DefaultRates())

	breakdown := engine.Compute(Input{
		Levels: Models.ChargeLevels{
			Start: []float64{80, 60},
			End:   []float64{50, 60},
		},
		DiscountPct: 10,
	})

	// 10% off the 35.25 subtotal gives a 31.725 base; VAT is computed on
	// the discounted base and floored to two decimals. The 33.305 total
	// rounds up to the nearest fil.
	assert.InDelta(t, 35.25, breakdown.Subtotal, 1e-9)
	assert.InDelta(t, 3.53, breakdown.DiscountAmount, 1e-9)
	assert.InDelta(t, 1.58, breakdown.VAT, 1e-9)
	assert.InDelta(t, 33.31, breakdown.Total, 1e-9)
}

func TestQuoteIsFlatFeeOnly(t *testing.T) {
	engine := NewEngine(DefaultRates())
	assert.InDelta(t, 30, engine.Quote(), 1e-9)
}

func TestDepletedUnitsPairsShortestLength(t *testing.T) {
	units := DepletedUnits(Models.ChargeLevels{
		Start: []float64{90, 80, 70},
		End:   []float64{60, 75},
	})
	assert.InDelta(t, 35, units, 1e-9)
}

func TestLoadRatesMissingFileUsesDefaults(t *testing.T) {
	rates, err := LoadRates("does-not-exist.json5")
	assert.NoError(t, err)
	assert.Equal(t, DefaultRates(), rates)
}
