package Lifecycle

import (
	"errors"
	"log"
	"time"

	"Voltway/Ledger"
	"Voltway/Models"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notifier dispatches push notifications. Best-effort: the engine logs
// failures and moves on.
type Notifier interface {
	PushToUser(userID uint, title, body, category, deepLink string) error
	PushToOperators(title, body, category, deepLink string) error
}

// Reconciler turns a completed booking into an invoice. Invoked
// synchronously on terminal hand-back transitions; its failure never
// rolls back the transition.
type Reconciler interface {
	Reconcile(bookingID uint) (*Models.Invoice, error)
}

// Engine validates and applies booking lifecycle transitions. All of its
// collaborators are injected so tests can run it against an in-memory
// database with stub notifiers and reconcilers.
type Engine struct {
	DB         *gorm.DB
	Ledger     *Ledger.Store
	Notifier   Notifier
	Reconciler Reconciler

	validate *validator.Validate
}

func NewEngine(db *gorm.DB, ledger *Ledger.Store, notifier Notifier, reconciler Reconciler) *Engine {
	return &Engine{
		DB:         db,
		Ledger:     ledger,
		Notifier:   notifier,
		Reconciler: reconciler,
		validate:   validator.New(),
	}
}

// TransitionPayload is the agent-supplied data accompanying a transition.
type TransitionPayload struct {
	Reason   string  `json:"reason"`
	MediaRef string  `json:"media_ref"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`

	// Charge-level readings, supplied with the charging start/complete
	// transitions. Validated at the boundary, stored on the booking for
	// billing.
	ChargeLevels *Models.ChargeLevels `json:"charge_levels,omitempty"`
}

// ApplyTransition moves a booking to target on behalf of an agent.
//
// The order of checks follows the dispatch protocol: assignment first,
// then the ledger idempotency guard, then payload validation, then the
// status mutation and ledger append as one transaction. Side effects
// (push, invoice reconciliation) run after commit and never roll the
// transition back.
func (e *Engine) ApplyTransition(bookingID, agentID uint, target Models.Status, payload TransitionPayload) Outcome {
	var booking Models.Booking
	if err := e.DB.First(&booking, bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failure(ResultValidationFailed, ErrBookingNotFound.Error())
		}
		return failure(ResultValidationFailed, err.Error())
	}

	// Initial accept travels through the assignment protocol, which also
	// flips the pending assignment and the agent's counter.
	if target == AcceptStatus(booking.ServiceLine) && booking.Status == InitialStatus(booking.ServiceLine) {
		return e.Accept(bookingID, agentID)
	}

	// 1. Idempotency pre-check. The authoritative guard is the atomic
	// insert inside the transaction below; this read keeps duplicate
	// retries from re-running validation and notifications, and must run
	// before the assignment lookup: a terminal transition releases the
	// assignment, so its retry has no assignment row left to find.
	if seen, err := e.Ledger.Exists(nil, bookingID, agentID, target); err != nil {
		return failure(ResultValidationFailed, err.Error())
	} else if seen {
		return Outcome{Code: ResultDuplicate, Booking: &booking}
	}

	// 2. The agent must hold the accepted assignment for this booking.
	var assignment Models.Assignment
	err := e.DB.Where("booking_id = ? AND agent_id = ? AND status = ?",
		bookingID, agentID, Models.AssignmentAccepted).First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failure(ResultNotAssigned, ErrNotAssigned.Error())
		}
		return failure(ResultValidationFailed, err.Error())
	}

	// 3. Ordering and payload validation. No state has changed yet.
	if !CanTransition(booking.ServiceLine, booking.Status, target) {
		return failure(ResultInvalidTransition, ErrInvalidTransition.Error())
	}
	if out, ok := e.validatePayload(booking.ServiceLine, target, payload); !ok {
		return out
	}

	// 4-5. Status mutation and ledger append, one atomic unit.
	duplicate := false
	tx := e.DB.Begin()
	if tx.Error != nil {
		return failure(ResultValidationFailed, tx.Error.Error())
	}

	booking.Status = target
	e.stampTelemetry(&booking, target, payload)
	if err := tx.Save(&booking).Error; err != nil {
		tx.Rollback()
		return failure(ResultValidationFailed, err.Error())
	}

	// A terminal status ends the agent's engagement: the assignment is
	// removed and the agent freed for the next job. The booking keeps
	// its agent reference for the record.
	if IsTerminal(booking.ServiceLine, target) {
		if err := tx.Where("booking_id = ? AND agent_id = ? AND status = ?",
			bookingID, agentID, Models.AssignmentAccepted).
			Delete(&Models.Assignment{}).Error; err != nil {
			tx.Rollback()
			return failure(ResultValidationFailed, err.Error())
		}
		if err := tx.Model(&Models.Agent{}).Where("id = ? AND active_orders > 0", agentID).
			Update("active_orders", gorm.Expr("active_orders - 1")).Error; err != nil {
			tx.Rollback()
			return failure(ResultValidationFailed, err.Error())
		}
	}

	duplicate, err = e.Ledger.Append(tx, bookingID, agentID, target, Ledger.Meta{
		Remarks:  payload.Reason,
		MediaRef: payload.MediaRef,
		Lat:      payload.Lat,
		Lng:      payload.Lng,
	})
	if err != nil {
		tx.Rollback()
		return failure(ResultValidationFailed, err.Error())
	}
	if duplicate {
		// A concurrent retry won the insert between the pre-check and
		// here. Drop our mutation; theirs already applied.
		tx.Rollback()
		return Outcome{Code: ResultDuplicate, Booking: &booking}
	}
	if err := tx.Commit().Error; err != nil {
		return failure(ResultValidationFailed, err.Error())
	}

	// 6. Notify, best-effort. The agent's reported position also becomes
	// their last known fix for dispatch ranking.
	e.notifyTransition(&booking, target)
	if payload.Lat != 0 || payload.Lng != 0 {
		now := time.Now()
		if err := e.DB.Model(&Models.Agent{}).Where("id = ?", agentID).
			Updates(map[string]interface{}{
				"last_lat":    payload.Lat,
				"last_lng":    payload.Lng,
				"last_fix_at": &now,
			}).Error; err != nil {
			log.Printf("Failed to update agent %d location: %v", agentID, err)
		}
	}

	// 7. Terminal hand-back triggers billing. Failure is reported, not
	// retried, and never reverts the committed transition.
	out := Outcome{Code: ResultOK, Booking: &booking}
	if IsHandBack(booking.ServiceLine, target) && e.Reconciler != nil {
		invoice, err := e.Reconciler.Reconcile(booking.ID)
		if err != nil {
			log.Printf("Invoice reconciliation failed for booking %s: %v", booking.BookingNo, err)
			out.Message = "transition applied; invoice generation pending"
		} else {
			out.Invoice = invoice
			if invoice != nil {
				booking.FinalPrice = invoice.Amount
				if err := e.DB.Model(&Models.Booking{}).Where("id = ?", booking.ID).
					Update("final_price", invoice.Amount).Error; err != nil {
					log.Printf("Failed to record final price for booking %s: %v", booking.BookingNo, err)
				}
			}
		}
	}
	return out
}

// Cancel marks a booking cancelled on behalf of the requester or an
// operator. A non-empty reason is mandatory. If an assignment exists it
// is removed and the agent's active-order counter decremented.
func (e *Engine) Cancel(bookingID uint, cancelledBy uint, byOperator bool, reason string) Outcome {
	if err := e.validate.Var(reason, "required"); err != nil {
		return failure(ResultValidationFailed, "cancellation reason is required")
	}

	var booking Models.Booking
	if err := e.DB.First(&booking, bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failure(ResultValidationFailed, ErrBookingNotFound.Error())
		}
		return failure(ResultValidationFailed, err.Error())
	}
	// Duplicate check comes first so a re-delivered cancel reports
	// duplicate rather than tripping over the already-cancelled status.
	if seen, err := e.Ledger.Exists(nil, bookingID, 0, Models.StatusCancelled); err != nil {
		return failure(ResultValidationFailed, err.Error())
	} else if seen {
		return Outcome{Code: ResultDuplicate, Booking: &booking}
	}
	if !Cancellable(booking.ServiceLine, booking.Status) {
		return failure(ResultInvalidTransition, "booking can no longer be cancelled")
	}

	tx := e.DB.Begin()
	if tx.Error != nil {
		return failure(ResultValidationFailed, tx.Error.Error())
	}

	// Drop any live assignment and release the agent.
	var assignments []Models.Assignment
	if err := tx.Where("booking_id = ?", bookingID).Find(&assignments).Error; err != nil {
		tx.Rollback()
		return failure(ResultValidationFailed, err.Error())
	}
	for _, a := range assignments {
		if a.Status == Models.AssignmentAccepted {
			if err := tx.Model(&Models.Agent{}).Where("id = ? AND active_orders > 0", a.AgentID).
				Update("active_orders", gorm.Expr("active_orders - 1")).Error; err != nil {
				tx.Rollback()
				return failure(ResultValidationFailed, err.Error())
			}
		}
		if err := tx.Delete(&Models.Assignment{}, a.ID).Error; err != nil {
			tx.Rollback()
			return failure(ResultValidationFailed, err.Error())
		}
	}

	booking.Status = Models.StatusCancelled
	booking.AgentID = nil
	if err := tx.Save(&booking).Error; err != nil {
		tx.Rollback()
		return failure(ResultValidationFailed, err.Error())
	}

	duplicate, err := e.Ledger.Append(tx, bookingID, 0, Models.StatusCancelled, Ledger.Meta{Remarks: reason})
	if err != nil {
		tx.Rollback()
		return failure(ResultValidationFailed, err.Error())
	}
	if duplicate {
		tx.Rollback()
		return Outcome{Code: ResultDuplicate, Booking: &booking}
	}
	if err := tx.Commit().Error; err != nil {
		return failure(ResultValidationFailed, err.Error())
	}

	if byOperator {
		e.push(booking.UserID, "Booking cancelled",
			"Your booking "+booking.BookingNo+" was cancelled: "+reason,
			"booking_cancelled", "/bookings/"+booking.BookingNo)
	} else {
		e.pushOperators("Booking cancelled by customer",
			booking.BookingNo+": "+reason,
			"booking_cancelled", "/dispatch/"+booking.BookingNo)
	}
	for _, a := range assignments {
		e.pushAgent(a.AgentID, "Booking cancelled",
			booking.BookingNo+" was cancelled: "+reason,
			"booking_cancelled", "/jobs")
	}

	return Outcome{Code: ResultOK, Booking: &booking}
}

// validatePayload enforces per-target payload requirements: a proof photo
// for pick-up, drop-off and hand-back transitions; paired charge readings
// whenever supplied.
func (e *Engine) validatePayload(line Models.ServiceLine, target Models.Status, payload TransitionPayload) (Outcome, bool) {
	if RequiresPhoto(target) || IsHandBack(line, target) {
		if err := e.validate.Var(payload.MediaRef, "required"); err != nil {
			return failure(ResultValidationFailed, "a proof photo is required for this step"), false
		}
	}
	if target == Models.StatusCancelled {
		if err := e.validate.Var(payload.Reason, "required"); err != nil {
			return failure(ResultValidationFailed, "a cancellation reason is required"), false
		}
	}
	if payload.ChargeLevels != nil {
		if err := payload.ChargeLevels.Validate(); err != nil {
			return failure(ResultValidationFailed, err.Error()), false
		}
	}
	return Outcome{}, true
}

// stampTelemetry records charge readings and the charging window on the
// booking as the relevant transitions arrive.
func (e *Engine) stampTelemetry(booking *Models.Booking, target Models.Status, payload TransitionPayload) {
	now := time.Now()
	switch target {
	case Models.StatusReachedStation, Models.StatusChargingStarted:
		booking.ChargeStartedAt = &now
	case Models.StatusChargeComplete, Models.StatusChargingComplete:
		booking.ChargeEndedAt = &now
	}
	if payload.ChargeLevels != nil {
		merged := booking.ChargeReadings.Data()
		merged.Start = append(merged.Start, payload.ChargeLevels.Start...)
		merged.End = append(merged.End, payload.ChargeLevels.End...)
		booking.ChargeReadings = datatypes.NewJSONType(merged)
	}
}

func (e *Engine) notifyTransition(booking *Models.Booking, target Models.Status) {
	title, body := transitionCopy(booking, target)
	e.push(booking.UserID, title, body, "booking_update", "/bookings/"+booking.BookingNo)
	if IsTerminal(booking.ServiceLine, target) || IsHandBack(booking.ServiceLine, target) {
		e.pushOperators("Booking "+string(target), booking.BookingNo+" is now "+string(target),
			"booking_update", "/dispatch/"+booking.BookingNo)
	}
}

func transitionCopy(booking *Models.Booking, target Models.Status) (title, body string) {
	switch target {
	case Models.StatusEnRoute:
		return "Agent on the way", "Your agent is en route for " + booking.BookingNo
	case Models.StatusPickedUp:
		if booking.ServiceLine == Models.PortableCharger {
			return "Charger collected", "The portable charger for " + booking.BookingNo + " has been picked up"
		}
		return "Vehicle picked up", "Your vehicle has been picked up for charging"
	case Models.StatusReachedStation:
		return "At charging station", "Your vehicle has arrived at the charging station"
	case Models.StatusChargingStarted:
		return "Charging started", "Charging has started for " + booking.BookingNo
	case Models.StatusChargeComplete, Models.StatusChargingComplete:
		return "Charging complete", "Charging is complete for " + booking.BookingNo
	case Models.StatusDroppedOff:
		return "Vehicle returned", "Your vehicle has been dropped off. Invoice to follow."
	case Models.StatusArrived:
		return "Agent arrived", "Your roadside agent has arrived"
	case Models.StatusWorkComplete:
		return "Service complete", "Work is complete for " + booking.BookingNo
	default:
		return "Booking update", booking.BookingNo + " is now " + string(target)
	}
}

func (e *Engine) push(userID uint, title, body, category, deepLink string) {
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.PushToUser(userID, title, body, category, deepLink); err != nil {
		log.Printf("Push to user %d failed: %v", userID, err)
	}
}

func (e *Engine) pushOperators(title, body, category, deepLink string) {
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.PushToOperators(title, body, category, deepLink); err != nil {
		log.Printf("Push to operators failed: %v", err)
	}
}

// pushAgent resolves the agent's user account before pushing.
func (e *Engine) pushAgent(agentID uint, title, body, category, deepLink string) {
	var agent Models.Agent
	if err := e.DB.First(&agent, agentID).Error; err != nil {
		return
	}
	e.push(agent.UserID, title, body, category, deepLink)
}
