package Controllers

import (
	"strconv"

	"Voltway/Billing"
	"Voltway/Dispatch"
	"Voltway/Ledger"
	"Voltway/Lifecycle"
	"Voltway/Models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// BookingHandler contains handler methods for booking routes
type BookingHandler struct {
	DB       *gorm.DB
	Engine   *Lifecycle.Engine
	Ledger   *Ledger.Store
	Billing  *Billing.Engine
	validate *validator.Validate
}

func NewBookingHandler(db *gorm.DB, engine *Lifecycle.Engine, ledger *Ledger.Store, billing *Billing.Engine) *BookingHandler {
	return &BookingHandler{
		DB:       db,
		Engine:   engine,
		Ledger:   ledger,
		Billing:  billing,
		validate: validator.New(),
	}
}

type CreateBookingRequest struct {
	ServiceLine  Models.ServiceLine `json:"service_line" validate:"required,oneof=valet_charging portable_charger roadside"`
	VehiclePlate string             `json:"vehicle_plate"`
	PickupLat    float64            `json:"pickup_lat" validate:"required"`
	PickupLng    float64            `json:"pickup_lng" validate:"required"`
	DropOffLat   float64            `json:"drop_off_lat"`
	DropOffLng   float64            `json:"drop_off_lng"`
	CouponCode   string             `json:"coupon_code"`
	Notes        string             `json:"notes"`

	PaymentIntentID string `json:"payment_intent_id"`
}

// CreateBooking opens a new booking with a sequential service-line number
// and the flat quote, and writes the creation into the ledger.
// POST /api/bookings
func (h *BookingHandler) CreateBooking(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(Models.User)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Not logged in",
		})
	}

	var req CreateBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"message": err.Error(),
		})
	}

	booking := Models.Booking{
		ServiceLine:     req.ServiceLine,
		UserID:          user.ID,
		Status:          Lifecycle.InitialStatus(req.ServiceLine),
		VehiclePlate:    req.VehiclePlate,
		PickupLat:       req.PickupLat,
		PickupLng:       req.PickupLng,
		DropOffLat:      req.DropOffLat,
		DropOffLng:      req.DropOffLng,
		QuotedPrice:     h.Billing.Quote(),
		CouponCode:      req.CouponCode,
		PaymentIntentID: req.PaymentIntentID,
		Notes:           req.Notes,
	}

	tx := h.DB.Begin()
	if tx.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Transaction error",
		})
	}
	bookingNo, err := Models.NextBookingNo(tx, req.ServiceLine)
	if err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to allocate booking number",
			"message": err.Error(),
		})
	}
	booking.BookingNo = bookingNo
	if err := tx.Create(&booking).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to create booking",
			"message": err.Error(),
		})
	}
	if _, err := h.Ledger.Append(tx, booking.ID, 0, booking.Status, Ledger.Meta{}); err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to record booking history",
			"message": err.Error(),
		})
	}
	if err := tx.Commit().Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to commit transaction",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(booking)
}

// GetMyBookings lists the caller's bookings, newest first.
// GET /api/bookings
func (h *BookingHandler) GetMyBookings(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(Models.User)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Not logged in",
		})
	}

	var bookings []Models.Booking
	if err := h.DB.Where("user_id = ?", user.ID).Order("id desc").Find(&bookings).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch bookings",
		})
	}
	return c.JSON(bookings)
}

// GetBooking returns one booking with its ledger history. Customers can
// only see their own; agents and operators see any.
// GET /api/bookings/:id
func (h *BookingHandler) GetBooking(c *fiber.Ctx) error {
	user, _ := c.Locals("user").(Models.User)

	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid booking id",
		})
	}

	var booking Models.Booking
	if err := h.DB.Preload("Agent").First(&booking, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Booking not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error",
		})
	}
	if user.Permission < Models.PermissionAgent && booking.UserID != user.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Not your booking",
		})
	}

	history, err := h.Ledger.History(booking.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch history",
		})
	}

	return c.JSON(fiber.Map{
		"booking": booking,
		"history": history,
	})
}

type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// CancelBooking cancels the caller's booking with a mandatory reason.
// POST /api/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(Models.User)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Not logged in",
		})
	}

	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid booking id",
		})
	}

	var req CancelBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	byOperator := user.Permission >= Models.PermissionOperator
	if !byOperator {
		var booking Models.Booking
		if err := h.DB.First(&booking, id).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Booking not found",
			})
		}
		if booking.UserID != user.ID {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Not your booking",
			})
		}
	}

	outcome := h.Engine.Cancel(uint(id), user.ID, byOperator, req.Reason)
	return respondOutcome(c, outcome)
}

// GetUnassignedBookings lists bookings waiting for dispatch.
// GET /api/dispatch/unassigned
func (h *BookingHandler) GetUnassignedBookings(c *fiber.Ctx) error {
	var bookings []Models.Booking
	err := h.DB.
		Where("agent_id IS NULL AND status IN ?", []Models.Status{Models.StatusDraft, Models.StatusConfirmed}).
		Order("id asc").
		Find(&bookings).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch bookings",
		})
	}
	return c.JSON(bookings)
}

// GetCandidates ranks idle agents on the booking's service line by
// distance from the pickup point, nearest first.
// GET /api/dispatch/:id/candidates
func (h *BookingHandler) GetCandidates(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid booking id",
		})
	}

	var booking Models.Booking
	if err := h.DB.First(&booking, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Booking not found",
		})
	}

	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	candidates, err := Dispatch.RankCandidates(h.DB, &booking, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to rank candidates",
		})
	}
	return c.JSON(candidates)
}

type AssignAgentRequest struct {
	AgentID uint `json:"agent_id" validate:"required"`
}

// AssignAgent offers a booking to one field agent (pending assignment).
// POST /api/dispatch/:id/assign
func (h *BookingHandler) AssignAgent(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid booking id",
		})
	}

	var req AssignAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"message": err.Error(),
		})
	}

	outcome := h.Engine.Assign(uint(id), req.AgentID)
	return respondOutcome(c, outcome)
}

// respondOutcome maps engine result codes onto HTTP statuses. Duplicate
// is a success: the retry was already processed.
func respondOutcome(c *fiber.Ctx, outcome Lifecycle.Outcome) error {
	switch outcome.Code {
	case Lifecycle.ResultOK, Lifecycle.ResultDuplicate:
		return c.JSON(outcome)
	case Lifecycle.ResultNotAssigned:
		return c.Status(fiber.StatusForbidden).JSON(outcome)
	case Lifecycle.ResultInvalidTransition:
		return c.Status(fiber.StatusConflict).JSON(outcome)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(outcome)
	}
}
