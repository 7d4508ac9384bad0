package Models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ServiceLine identifies which of the three field-service products a
// booking belongs to. Each line carries its own status set, booking-number
// prefix and transition table (see the Lifecycle package).
type ServiceLine string

const (
	ValetCharging   ServiceLine = "valet_charging"
	PortableCharger ServiceLine = "portable_charger"
	Roadside        ServiceLine = "roadside"
)

// BookingNoPrefix returns the prefix used for sequential booking numbers,
// e.g. "VC-1042".
func (s ServiceLine) BookingNoPrefix() string {
	switch s {
	case ValetCharging:
		return "VC"
	case PortableCharger:
		return "PD"
	case Roadside:
		return "RS"
	}
	return "BK"
}

// Status is a booking lifecycle status code. The set of valid values
// depends on the service line; membership and ordering are enforced by
// the Lifecycle transition tables, not here.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusConfirmed        Status = "confirmed"
	StatusAccepted         Status = "accepted"
	StatusEnRoute          Status = "en_route"
	StatusPickedUp         Status = "picked_up"
	StatusReachedStation   Status = "reached_station"
	StatusReachedLocation  Status = "reached_location"
	StatusChargingStarted  Status = "charging_started"
	StatusChargeComplete   Status = "charge_complete"
	StatusChargingComplete Status = "charging_complete"
	StatusDroppedOff       Status = "dropped_off"
	StatusReturnedToDepot  Status = "returned_to_depot"
	StatusArrived          Status = "arrived"
	StatusWorkComplete     Status = "work_complete"
	StatusEscalated        Status = "escalated"
	StatusClosed           Status = "closed"
	StatusCancelled        Status = "cancelled"
	StatusRejected         Status = "rejected"
)

// Booking represents a single field-service request for any of the three
// service lines.
type Booking struct {
	gorm.Model
	BookingNo   string      `json:"booking_no" gorm:"size:20;uniqueIndex;not null"`
	ServiceLine ServiceLine `json:"service_line" gorm:"size:30;index;not null"`
	UserID      uint        `json:"user_id" gorm:"index;not null"`
	AgentID     *uint       `json:"agent_id" gorm:"index"` // set once an assignment is accepted
	Status      Status      `json:"status" gorm:"size:30;index;not null"`

	VehiclePlate string `json:"vehicle_plate" gorm:"size:20"`

	PickupLat  float64 `json:"pickup_lat"`
	PickupLng  float64 `json:"pickup_lng"`
	DropOffLat float64 `json:"drop_off_lat"`
	DropOffLng float64 `json:"drop_off_lng"`

	QuotedPrice float64 `json:"quoted_price"`
	FinalPrice  float64 `json:"final_price"`
	CouponCode  string  `json:"coupon_code" gorm:"size:30"`

	PaymentIntentID string `json:"payment_intent_id" gorm:"size:64"`

	// Telemetry captured by the agent at start/end of active charging.
	ChargeReadings  datatypes.JSONType[ChargeLevels] `json:"charge_readings"`
	ChargeStartedAt *time.Time                       `json:"charge_started_at"`
	ChargeEndedAt   *time.Time                       `json:"charge_ended_at"`

	Notes string `json:"notes" gorm:"type:text"`

	User  User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Agent *Agent `json:"agent,omitempty" gorm:"foreignKey:AgentID"`
}

func (Booking) TableName() string {
	return "bookings"
}

// AssignmentStatus is the tri-state assignment lifecycle. Rejected
// assignments are deleted rather than kept in a third state, matching the
// dispatch protocol where the operator re-assigns manually.
type AssignmentStatus string

const (
	AssignmentPending  AssignmentStatus = "pending"
	AssignmentAccepted AssignmentStatus = "accepted"
)

// Assignment links one booking to one candidate field agent. At most one
// accepted assignment may exist per booking (enforced by the Lifecycle
// engine) and one per agent per service line.
type Assignment struct {
	gorm.Model
	BookingID uint             `json:"booking_id" gorm:"index;not null"`
	AgentID   uint             `json:"agent_id" gorm:"index;not null"`
	Status    AssignmentStatus `json:"status" gorm:"size:20;not null"`

	Booking Booking `json:"booking,omitempty" gorm:"foreignKey:BookingID"`
}

func (Assignment) TableName() string {
	return "assignments"
}

// LedgerEntry is the immutable audit record of one status transition for
// one booking. The composite unique index on (booking_id, agent_id,
// status_code) is the idempotency guard for transition re-delivery: the
// ledger append is an insert-if-absent, so duplicate retries from mobile
// clients collapse to a single row. Entries are never updated; they are
// removed only by the whole-booking cascade on account erasure.
type LedgerEntry struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	BookingID  uint      `json:"booking_id" gorm:"not null;index;uniqueIndex:idx_ledger_dedup"`
	AgentID    uint      `json:"agent_id" gorm:"not null;uniqueIndex:idx_ledger_dedup"` // 0 for requester/operator events
	StatusCode Status    `json:"status_code" gorm:"size:30;not null;uniqueIndex:idx_ledger_dedup"`
	Remarks    string    `json:"remarks" gorm:"type:text"`
	MediaRef   string    `json:"media_ref" gorm:"size:255"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (LedgerEntry) TableName() string {
	return "booking_ledger"
}

// BookingSequence hands out per-service-line sequential booking numbers.
type BookingSequence struct {
	ServiceLine ServiceLine `gorm:"primaryKey;size:30"`
	NextSeq     uint        `gorm:"not null"`
}

func (BookingSequence) TableName() string {
	return "booking_sequences"
}

// Coupon is a percentage discount code redeemable against a booking. The
// discount applies to the pre-tax subtotal during billing.
type Coupon struct {
	gorm.Model
	Code        string     `json:"code" gorm:"size:30;uniqueIndex;not null"`
	DiscountPct float64    `json:"discount_pct" gorm:"not null"`
	Active      bool       `json:"active" gorm:"default:true"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

func (Coupon) TableName() string {
	return "coupons"
}
