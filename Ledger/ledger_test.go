package Ledger

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

func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Models.LedgerEntry{}))
	return NewStore(db)
}

func TestAppendDeduplicates(t *testing.T) {
	store := testStore(t)

	duplicate, err := store.Append(nil, 1, 7, Models.StatusEnRoute, Meta{Lat: 25.2, Lng: 55.3})
	require.NoError(t, err)
	assert.False(t, duplicate)

	duplicate, err = store.Append(nil, 1, 7, Models.StatusEnRoute, Meta{})
	require.NoError(t, err)
	assert.True(t, duplicate)

	// Same status by a different actor is a distinct entry.
	duplicate, err = store.Append(nil, 1, 8, Models.StatusEnRoute, Meta{})
	require.NoError(t, err)
	assert.False(t, duplicate)

	var count int64
	require.NoError(t, store.DB.Model(&Models.LedgerEntry{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestExists(t *testing.T) {
	store := testStore(t)

	seen, err := store.Exists(nil, 1, 7, Models.StatusPickedUp)
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = store.Append(nil, 1, 7, Models.StatusPickedUp, Meta{MediaRef: "proof.jpg"})
	require.NoError(t, err)

	seen, err = store.Exists(nil, 1, 7, Models.StatusPickedUp)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestHistoryInsertionOrder(t *testing.T) {
	store := testStore(t)

	sequence := []Models.Status{Models.StatusAccepted, Models.StatusEnRoute, Models.StatusPickedUp}
	for _, status := range sequence {
		_, err := store.Append(nil, 1, 7, status, Meta{})
		require.NoError(t, err)
	}
	_, err := store.Append(nil, 2, 7, Models.StatusAccepted, Meta{})
	require.NoError(t, err)

	entries, err := store.History(1)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, status := range sequence {
		assert.Equal(t, status, entries[i].StatusCode)
	}
}

func TestPurgeBooking(t *testing.T) {
	store := testStore(t)

	_, err := store.Append(nil, 1, 7, Models.StatusAccepted, Meta{})
	require.NoError(t, err)
	_, err = store.Append(nil, 2, 7, Models.StatusAccepted, Meta{})
	require.NoError(t, err)

	require.NoError(t, store.PurgeBooking(nil, 1))

	entries, err := store.History(1)
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = store.History(2)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
