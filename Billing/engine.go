package Billing

import (
	"math"
	"time"

	"Voltway/Models"
)

// Engine converts charge-level telemetry into a priced, VAT-adjusted
// line-item breakdown. It is pure: no I/O, no clock, no database, which
// keeps it unit-testable against literal input/output pairs.
type Engine struct {
	Rates Rates
}

func NewEngine(rates Rates) *Engine {
	return &Engine{Rates: rates}
}

// Input is one completed charging job.
type Input struct {
	Levels Models.ChargeLevels

	// Charging window, used only when the level readings are absent or
	// degenerate (summed depleted units below one).
	StartedAt *time.Time
	EndedAt   *time.Time

	// Percentage discount from a redeemed coupon, 0-100.
	DiscountPct float64
}

// Breakdown is the priced result, suitable for invoice rendering.
type Breakdown struct {
	DepletedUnits  float64 `json:"depleted_units"`
	KWH            float64 `json:"kwh"`
	TimeFallback   bool    `json:"time_fallback"`
	UtilityCost    float64 `json:"utility_cost"`
	OperatorCost   float64 `json:"operator_cost"`
	DeliveryFee    float64 `json:"delivery_fee"`
	Subtotal       float64 `json:"subtotal"`
	DiscountPct    float64 `json:"discount_pct"`
	DiscountAmount float64 `json:"discount_amount"`
	VAT            float64 `json:"vat"`
	Total          float64 `json:"total"`
	Currency       string  `json:"currency"`
}

// Compute prices a charging job.
//
// Each monetary component is rounded to two decimals before summation so
// floating error cannot compound across line items. The discount applies
// to the pre-tax subtotal and the discounted base is deliberately left
// unrounded before VAT; VAT itself is floored to two decimals.
func (e *Engine) Compute(in Input) Breakdown {
	units := DepletedUnits(in.Levels)

	var (
		kwh      float64
		fallback bool
	)
	if units >= 1 {
		kwh = units * e.Rates.UnitToKWH
	} else {
		fallback = true
		kwh = e.fallbackKWH(in.StartedAt, in.EndedAt)
	}

	utility := round2(kwh * e.Rates.UtilityRate)
	operator := round2(kwh * e.Rates.OperatorRate)
	fee := round2(e.Rates.DeliveryFee)
	subtotal := round2(utility + operator + fee)

	discount := subtotal * in.DiscountPct / 100
	base := subtotal - discount
	vat := floor2(base * e.Rates.VATRate)
	total := round2(base + vat)

	return Breakdown{
		DepletedUnits:  units,
		KWH:            kwh,
		TimeFallback:   fallback,
		UtilityCost:    utility,
		OperatorCost:   operator,
		DeliveryFee:    fee,
		Subtotal:       subtotal,
		DiscountPct:    in.DiscountPct,
		DiscountAmount: round2(discount),
		VAT:            vat,
		Total:          total,
		Currency:       e.Rates.Currency,
	}
}

// Quote is the price shown at booking time. Per the finalize-path
// formula only the flat fee is known up front; energy charges and VAT
// are computed once at reconciliation.
func (e *Engine) Quote() float64 {
	return round2(e.Rates.DeliveryFee)
}

// DepletedUnits pairs the start/end readings and sums the positive
// depletion per segment. Segments where the level rose or held are worth
// zero, never negative.
func DepletedUnits(levels Models.ChargeLevels) float64 {
	n := len(levels.Start)
	if len(levels.End) < n {
		n = len(levels.End)
	}
	var units float64
	for i := 0; i < n; i++ {
		if d := levels.Start[i] - levels.End[i]; d > 0 {
			units += d
		}
	}
	return units
}

// fallbackKWH estimates energy from the charging window when level data
// is unusable. Conservative proxy: elapsed hours times a fixed delivery
// rate. Missing or inverted windows yield zero.
func (e *Engine) fallbackKWH(start, end *time.Time) float64 {
	if start == nil || end == nil || !end.After(*start) {
		return 0
	}
	hours := end.Sub(*start).Minutes() / 60
	return hours * e.Rates.KWHPerHour
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func floor2(v float64) float64 {
	return math.Floor(v*100) / 100
}
