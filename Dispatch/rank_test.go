package Dispatch

import (
	"fmt"
	"strings"
	"testing"

	"Voltway/Models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, Models.Migrate(db))
	return db
}

var seedAgentSeq int

func seedAgent(t *testing.T, db *gorm.DB, line Models.ServiceLine, lat, lng float64, onDuty bool, activeOrders int) Models.Agent {
	t.Helper()
	seedAgentSeq++
	user := Models.User{Name: "Agent", Email: fmt.Sprintf("%s-%d-%f-%f@test.dev", t.Name(), seedAgentSeq, lat, lng)}
	require.NoError(t, db.Create(&user).Error)
	agent := Models.Agent{
		UserID:       user.ID,
		ServiceLine:  line,
		OnDuty:       onDuty,
		ActiveOrders: activeOrders,
		LastLat:      lat,
		LastLng:      lng,
	}
	require.NoError(t, db.Create(&agent).Error)
	return agent
}

func TestRankCandidatesNearestFirst(t *testing.T) {
	db := testDB(t)

	// Pickup in central Dubai; one agent close by, one across town, one
	// with no location fix yet.
	far := seedAgent(t, db, Models.ValetCharging, 25.07, 55.14, true, 0)
	near := seedAgent(t, db, Models.ValetCharging, 25.20, 55.27, true, 0)
	noFix := seedAgent(t, db, Models.ValetCharging, 0, 0, true, 0)

	booking := Models.Booking{PickupLat: 25.2048, PickupLng: 55.2708, ServiceLine: Models.ValetCharging}
	candidates, err := RankCandidates(db, &booking, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	assert.Equal(t, near.ID, candidates[0].Agent.ID)
	assert.Equal(t, far.ID, candidates[1].Agent.ID)
	assert.Equal(t, noFix.ID, candidates[2].Agent.ID)

	assert.True(t, candidates[0].HasFix)
	assert.False(t, candidates[2].HasFix)
	assert.Less(t, candidates[0].DistanceKM, candidates[1].DistanceKM)
	assert.Greater(t, candidates[0].ETAMinutes, 0.0)
}

func TestRankCandidatesFilters(t *testing.T) {
	db := testDB(t)

	eligible := seedAgent(t, db, Models.Roadside, 25.20, 55.27, true, 0)
	seedAgent(t, db, Models.Roadside, 25.20, 55.27, false, 0) // off duty
	seedAgent(t, db, Models.Roadside, 25.20, 55.27, true, 1)  // busy
	seedAgent(t, db, Models.ValetCharging, 25.20, 55.27, true, 0)

	booking := Models.Booking{PickupLat: 25.2048, PickupLng: 55.2708, ServiceLine: Models.Roadside}
	candidates, err := RankCandidates(db, &booking, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, eligible.ID, candidates[0].Agent.ID)
}

func TestRankCandidatesLimit(t *testing.T) {
	db := testDB(t)
	for i := 0; i < 5; i++ {
		seedAgent(t, db, Models.PortableCharger, 25.1+float64(i)*0.01, 55.2, true, 0)
	}

	booking := Models.Booking{PickupLat: 25.1, PickupLng: 55.2, ServiceLine: Models.PortableCharger}
	candidates, err := RankCandidates(db, &booking, 2)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
}

func TestHaversineKnownDistance(t *testing.T) {
	// Dubai Mall to Burj Al Arab is roughly 11 km great-circle.
	d := haversineKM(25.1972, 55.2744, 25.1412, 55.1853)
	assert.InDelta(t, 10.9, d, 1.5)
}
