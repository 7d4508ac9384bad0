package Billing

import (
	"fmt"
	"os"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// Rates are the fixed pricing constants. Defaults match the reference
// AED tariff; ops can override any of them from a json5 file so the
// tariff file can carry inline commentary.
type Rates struct {
	// UnitToKWH converts one depleted battery-level unit to energy.
	UnitToKWH float64 `json:"unit_to_kwh"`
	// KWHPerHour is the assumed delivery rate for the time fallback.
	KWHPerHour float64 `json:"kwh_per_hour"`
	// UtilityRate is the pass-through cost per kWh.
	UtilityRate float64 `json:"utility_rate"`
	// OperatorRate is the operator margin per kWh.
	OperatorRate float64 `json:"operator_rate"`
	// DeliveryFee is the flat call-out fee per booking.
	DeliveryFee float64 `json:"delivery_fee"`
	// VATRate is the value-added tax fraction.
	VATRate float64 `json:"vat_rate"`
	// Currency is the ISO 4217 code invoices are issued in.
	Currency string `json:"currency"`
}

func DefaultRates() Rates {
	return Rates{
		UnitToKWH:    0.25,
		KWHPerHour:   7,
		UtilityRate:  0.44,
		OperatorRate: 0.26,
		DeliveryFee:  30,
		VATRate:      0.05,
		Currency:     "AED",
	}
}

// LoadRates reads a json5 tariff file over the defaults. A missing file
// is not an error; the defaults apply.
func LoadRates(path string) (Rates, error) {
	rates := DefaultRates()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rates, nil
		}
		return rates, err
	}
	if err := json5.Unmarshal(data, &rates); err != nil {
		return DefaultRates(), fmt.Errorf("invalid tariff file %s: %w", path, err)
	}
	return rates, nil
}
