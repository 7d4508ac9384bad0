package Models

import (
	"time"

	"gorm.io/gorm"
)

// Permission levels. Handlers gate routes with middleware.Verify(level).
const (
	PermissionCustomer = 1
	PermissionAgent    = 2
	PermissionOperator = 3
	PermissionAdmin    = 4
)

type User struct {
	gorm.Model
	Name       string `json:"name" gorm:"size:255;not null"`
	Email      string `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Phone      string `json:"phone" gorm:"size:30"`
	Password   []byte `json:"-"`
	Permission int    `json:"permission" gorm:"default:1"`
	IsApproved int    `json:"is_approved" gorm:"default:1"`
}

func (User) TableName() string {
	return "users"
}

// Agent is the field-agent profile behind a user account. ActiveOrders
// counts currently accepted assignments; the dispatch rule allows at most
// one per service line at a time.
type Agent struct {
	gorm.Model
	UserID       uint        `json:"user_id" gorm:"uniqueIndex;not null"`
	ServiceLine  ServiceLine `json:"service_line" gorm:"size:30;index;not null"`
	VehiclePlate string      `json:"vehicle_plate" gorm:"size:20"`
	ActiveOrders int         `json:"active_orders" gorm:"default:0"`
	OnDuty       bool        `json:"on_duty" gorm:"default:false"`

	// Last known position, stamped from transition telemetry. Used by the
	// dispatch candidate ranking.
	LastLat   float64    `json:"last_lat"`
	LastLng   float64    `json:"last_lng"`
	LastFixAt *time.Time `json:"last_fix_at"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (Agent) TableName() string {
	return "agents"
}

// FCMToken stores one device push token per user. Updated in place when
// the device re-registers.
type FCMToken struct {
	gorm.Model
	UserID uint   `json:"user_id" gorm:"uniqueIndex;not null"`
	Value  string `json:"value" gorm:"size:512;not null"`
}

func (FCMToken) TableName() string {
	return "fcm_tokens"
}
