package Models

import (
	"fmt"
	"strings"
	"testing"

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
	require.NoError(t, Migrate(db))
	return db
}

func TestNextBookingNo(t *testing.T) {
	db := testDB(t)

	no, err := NextBookingNo(db, ValetCharging)
	require.NoError(t, err)
	assert.Equal(t, "VC-1001", no)

	no, err = NextBookingNo(db, ValetCharging)
	require.NoError(t, err)
	assert.Equal(t, "VC-1002", no)

	// Each line keeps its own counter.
	no, err = NextBookingNo(db, PortableCharger)
	require.NoError(t, err)
	assert.Equal(t, "PD-1001", no)

	no, err = NextBookingNo(db, Roadside)
	require.NoError(t, err)
	assert.Equal(t, "RS-1001", no)
}

func TestInvoiceNoFor(t *testing.T) {
	assert.Equal(t, "VCI-1042", InvoiceNoFor("VC-1042"))
	assert.Equal(t, "PDI-1042", InvoiceNoFor("PD-1042"))
	assert.Equal(t, "RSI-2001", InvoiceNoFor("RS-2001"))
	assert.Equal(t, "INV-garbled", InvoiceNoFor("garbled"))
}

func TestChargeLevelsValidate(t *testing.T) {
	assert.NoError(t, ChargeLevels{Start: []float64{80, 60}, End: []float64{50, 60}}.Validate())
	assert.NoError(t, ChargeLevels{}.Validate())
	assert.Error(t, ChargeLevels{Start: []float64{80}, End: []float64{}}.Validate())
	assert.Error(t, ChargeLevels{Start: []float64{120}, End: []float64{50}}.Validate())
	assert.Error(t, ChargeLevels{Start: []float64{80}, End: []float64{-1}}.Validate())
}

func TestSingleAcceptedAssignmentIndex(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.Create(&Assignment{BookingID: 1, AgentID: 7, Status: AssignmentAccepted}).Error)
	require.NoError(t, db.Create(&Assignment{BookingID: 1, AgentID: 8, Status: AssignmentPending}).Error)

	err := db.Create(&Assignment{BookingID: 1, AgentID: 9, Status: AssignmentAccepted}).Error
	assert.Error(t, err)
}
