package Models

import "fmt"

// ChargeLevels is the pair of ordered battery-level sequences recorded at
// the start and end of each charging segment. It is validated once at the
// API boundary; the billing engine consumes it as-is.
type ChargeLevels struct {
	Start []float64 `json:"start"`
	End   []float64 `json:"end"`
}

// Validate checks that the two sequences pair up and contain sane
// percentage readings.
func (c ChargeLevels) Validate() error {
	if len(c.Start) != len(c.End) {
		return fmt.Errorf("charge levels: %d start readings vs %d end readings", len(c.Start), len(c.End))
	}
	for i := range c.Start {
		if c.Start[i] < 0 || c.Start[i] > 100 || c.End[i] < 0 || c.End[i] > 100 {
			return fmt.Errorf("charge levels: reading %d out of range 0-100", i)
		}
	}
	return nil
}

// Empty reports whether no readings were captured at all.
func (c ChargeLevels) Empty() bool {
	return len(c.Start) == 0 && len(c.End) == 0
}
