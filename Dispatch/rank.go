package Dispatch

import (
	"math"
	"sort"

	"Voltway/Models"

	"gorm.io/gorm"
)

// avgSpeedKMH is the assumed urban driving speed behind the ETA estimate.
const avgSpeedKMH = 35.0

// Candidate is one dispatchable agent ranked against a booking's pickup
// point.
type Candidate struct {
	Agent      Models.Agent `json:"agent"`
	DistanceKM float64      `json:"distance_km"`
	ETAMinutes float64      `json:"eta_minutes"`

	// HasFix is false when the agent has no recorded location yet; such
	// candidates rank last with zeroed distance.
	HasFix bool `json:"has_fix"`
}

// RankCandidates lists idle on-duty agents on the booking's service line,
// nearest to the pickup point first. Agents without a location fix go to
// the back of the list rather than being excluded; a dispatcher may still
// want to call them.
func RankCandidates(db *gorm.DB, booking *Models.Booking, limit int) ([]Candidate, error) {
	var agents []Models.Agent
	err := db.Preload("User").
		Where("service_line = ? AND on_duty = ? AND active_orders = 0", booking.ServiceLine, true).
		Find(&agents).Error
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(agents))
	for _, agent := range agents {
		candidate := Candidate{Agent: agent}
		if agent.LastLat != 0 || agent.LastLng != 0 {
			candidate.HasFix = true
			candidate.DistanceKM = haversineKM(agent.LastLat, agent.LastLng, booking.PickupLat, booking.PickupLng)
			candidate.ETAMinutes = candidate.DistanceKM / avgSpeedKMH * 60
		}
		candidates = append(candidates, candidate)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].HasFix != candidates[j].HasFix {
			return candidates[i].HasFix
		}
		return candidates[i].DistanceKM < candidates[j].DistanceKM
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// haversineKM is the great-circle distance between two coordinates.
func haversineKM(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKM = 6371.0

	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}
