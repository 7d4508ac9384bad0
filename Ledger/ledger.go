package Ledger

import (
	"Voltway/Models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Meta carries the optional payload recorded alongside a transition.
type Meta struct {
	Remarks  string
	MediaRef string
	Lat      float64
	Lng      float64
}

// Store appends and queries booking ledger entries. Entries are
// append-only; nothing here updates or deletes rows.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// Append inserts a ledger entry for (bookingID, agentID, status) if none
// exists yet. It returns duplicate=true when the entry was already
// present. The insert rides on the unique index over the three columns
// with ON CONFLICT DO NOTHING, so two near-simultaneous retries cannot
// both pass a pre-check and double-apply: exactly one wins the insert.
func (s *Store) Append(tx *gorm.DB, bookingID, agentID uint, status Models.Status, meta Meta) (duplicate bool, err error) {
	if tx == nil {
		tx = s.DB
	}
	entry := Models.LedgerEntry{
		BookingID:  bookingID,
		AgentID:    agentID,
		StatusCode: status,
		Remarks:    meta.Remarks,
		MediaRef:   meta.MediaRef,
		Lat:        meta.Lat,
		Lng:        meta.Lng,
	}
	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "booking_id"}, {Name: "agent_id"}, {Name: "status_code"}},
		DoNothing: true,
	}).Create(&entry)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 0, nil
}

// Exists reports whether a transition has already been recorded. Used by
// the lifecycle engine to short-circuit duplicate deliveries before
// touching the booking row.
func (s *Store) Exists(tx *gorm.DB, bookingID, agentID uint, status Models.Status) (bool, error) {
	if tx == nil {
		tx = s.DB
	}
	var count int64
	err := tx.Model(&Models.LedgerEntry{}).
		Where("booking_id = ? AND agent_id = ? AND status_code = ?", bookingID, agentID, status).
		Count(&count).Error
	return count > 0, err
}

// History returns all entries for a booking in insertion order.
func (s *Store) History(bookingID uint) ([]Models.LedgerEntry, error) {
	var entries []Models.LedgerEntry
	err := s.DB.Where("booking_id = ?", bookingID).
		Order("id asc").
		Find(&entries).Error
	return entries, err
}

// PurgeBooking removes every entry for a booking. Only the account
// erasure cascade calls this.
func (s *Store) PurgeBooking(tx *gorm.DB, bookingID uint) error {
	if tx == nil {
		tx = s.DB
	}
	return tx.Where("booking_id = ?", bookingID).Delete(&Models.LedgerEntry{}).Error
}
