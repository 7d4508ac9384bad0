package Models

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Connect opens the database and runs migrations. An empty dsn falls back
// to a local sqlite file; anything else is treated as a MySQL DSN. The
// returned handle is passed explicitly to every engine and handler so the
// lifecycle and billing code stay testable against in-memory databases.
func Connect(dsn string) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	if dsn == "" {
		db, err = gorm.Open(sqlite.Open("voltway.db"), &gorm.Config{})
	} else {
		db, err = gorm.Open(mysql.Open(dsn), &gorm.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs AutoMigrate in dependency order and sets up the composite
// indexes that the schema tags cannot express.
func Migrate(db *gorm.DB) error {
	// 1. Models with no dependencies
	if err := db.AutoMigrate(
		&User{},
		&Agent{},
		&FCMToken{},
		&Coupon{},
		&BookingSequence{},
	); err != nil {
		return err
	}

	// 2. Bookings and everything hanging off them
	if err := db.AutoMigrate(
		&Booking{},
		&Assignment{},
		&LedgerEntry{},
		&Invoice{},
		&QueuedEmail{},
	); err != nil {
		return err
	}

	// 3. Special indexes
	if err := SetupAssignmentIndexes(db); err != nil {
		log.Printf("Error creating assignment indexes: %v", err)
		return err
	}
	return nil
}

// SetupAssignmentIndexes enforces at most one accepted assignment per
// booking at the datastore level, alongside the business-rule check in
// the Lifecycle engine.
func SetupAssignmentIndexes(db *gorm.DB) error {
	return db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_booking_accepted ON assignments (booking_id) WHERE status = 'accepted' AND deleted_at IS NULL").Error
}

// NextBookingNo hands out the next sequential, service-line-prefixed
// booking number. Must run inside the transaction creating the booking so
// two concurrent creates cannot take the same number.
func NextBookingNo(tx *gorm.DB, line ServiceLine) (string, error) {
	var seq BookingSequence
	if err := tx.Where(BookingSequence{ServiceLine: line}).
		Attrs(BookingSequence{NextSeq: 1000}).
		FirstOrCreate(&seq).Error; err != nil {
		return "", err
	}
	seq.NextSeq++
	if err := tx.Save(&seq).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d", line.BookingNoPrefix(), seq.NextSeq), nil
}

// InvoiceNoFor derives the invoice number from a booking number by prefix
// substitution, e.g. "VC-1042" -> "VCI-1042". Keeping the line prefix in
// the substituted form keeps invoice numbers unique across service lines.
func InvoiceNoFor(bookingNo string) string {
	parts := strings.SplitN(bookingNo, "-", 2)
	if len(parts) != 2 {
		return "INV-" + bookingNo
	}
	return parts[0] + "I-" + parts[1]
}
