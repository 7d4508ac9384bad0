package Lifecycle

import (
	"errors"

	"Voltway/Ledger"
	"Voltway/Models"

	"gorm.io/gorm"
)

// Assign links a booking to a candidate agent with a pending assignment
// and notifies the agent. Dispatch is an operator action; the engine
// never picks a candidate itself.
func (e *Engine) Assign(bookingID, agentID uint) Outcome {
	var booking Models.Booking
	if err := e.DB.First(&booking, bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failure(ResultValidationFailed, ErrBookingNotFound.Error())
		}
		return failure(ResultValidationFailed, err.Error())
	}
	if booking.Status != InitialStatus(booking.ServiceLine) {
		return failure(ResultInvalidTransition, "booking is past the dispatch stage")
	}

	var agent Models.Agent
	if err := e.DB.First(&agent, agentID).Error; err != nil {
		return failure(ResultValidationFailed, "agent not found")
	}
	if agent.ServiceLine != booking.ServiceLine {
		return failure(ResultValidationFailed, "agent does not serve this line")
	}

	var accepted int64
	if err := e.DB.Model(&Models.Assignment{}).
		Where("booking_id = ? AND status = ?", bookingID, Models.AssignmentAccepted).
		Count(&accepted).Error; err != nil {
		return failure(ResultValidationFailed, err.Error())
	}
	if accepted > 0 {
		return failure(ResultInvalidTransition, ErrAlreadyAssigned.Error())
	}

	assignment := Models.Assignment{
		BookingID: bookingID,
		AgentID:   agentID,
		Status:    Models.AssignmentPending,
	}
	if err := e.DB.Where(Models.Assignment{BookingID: bookingID, AgentID: agentID}).
		FirstOrCreate(&assignment).Error; err != nil {
		return failure(ResultValidationFailed, err.Error())
	}

	e.pushAgent(agentID, "New job offer",
		"Booking "+booking.BookingNo+" is waiting for your response",
		"assignment_offer", "/jobs/"+booking.BookingNo)

	return Outcome{Code: ResultOK, Booking: &booking}
}

// Accept flips the agent's pending assignment to accepted, sets the
// booking's agent reference and post-acceptance status, and bumps the
// agent's active-order counter. At most one accepted assignment may exist
// per booking, and an agent may hold only one per service line.
func (e *Engine) Accept(bookingID, agentID uint) Outcome {
	var booking Models.Booking
	if err := e.DB.First(&booking, bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failure(ResultValidationFailed, ErrBookingNotFound.Error())
		}
		return failure(ResultValidationFailed, err.Error())
	}

	// A retried accept already has its ledger entry; report duplicate
	// before the pending-assignment lookup, which the first accept
	// consumed.
	target := AcceptStatus(booking.ServiceLine)
	if seen, err := e.Ledger.Exists(nil, bookingID, agentID, target); err != nil {
		return failure(ResultValidationFailed, err.Error())
	} else if seen {
		return Outcome{Code: ResultDuplicate, Booking: &booking}
	}

	// The initial accept requires a pending assignment.
	var assignment Models.Assignment
	err := e.DB.Where("booking_id = ? AND agent_id = ? AND status = ?",
		bookingID, agentID, Models.AssignmentPending).First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failure(ResultNotAssigned, ErrNotAssigned.Error())
		}
		return failure(ResultValidationFailed, err.Error())
	}

	var acceptedForBooking int64
	if err := e.DB.Model(&Models.Assignment{}).
		Where("booking_id = ? AND status = ?", bookingID, Models.AssignmentAccepted).
		Count(&acceptedForBooking).Error; err != nil {
		return failure(ResultValidationFailed, err.Error())
	}
	if acceptedForBooking > 0 {
		return failure(ResultInvalidTransition, ErrAlreadyAssigned.Error())
	}

	// One live job per agent per service line.
	var busy int64
	if err := e.DB.Model(&Models.Assignment{}).
		Joins("JOIN bookings ON bookings.id = assignments.booking_id").
		Where("assignments.agent_id = ? AND assignments.status = ? AND bookings.service_line = ?",
			agentID, Models.AssignmentAccepted, booking.ServiceLine).
		Count(&busy).Error; err != nil {
		return failure(ResultValidationFailed, err.Error())
	}
	if busy > 0 {
		return failure(ResultInvalidTransition, ErrAgentBusy.Error())
	}

	if !CanTransition(booking.ServiceLine, booking.Status, target) {
		return failure(ResultInvalidTransition, ErrInvalidTransition.Error())
	}

	tx := e.DB.Begin()
	if tx.Error != nil {
		return failure(ResultValidationFailed, tx.Error.Error())
	}

	assignment.Status = Models.AssignmentAccepted
	if err := tx.Save(&assignment).Error; err != nil {
		tx.Rollback()
		return failure(ResultValidationFailed, err.Error())
	}
	booking.Status = target
	booking.AgentID = &agentID
	if err := tx.Save(&booking).Error; err != nil {
		tx.Rollback()
		return failure(ResultValidationFailed, err.Error())
	}
	if err := tx.Model(&Models.Agent{}).Where("id = ?", agentID).
		Update("active_orders", gorm.Expr("active_orders + 1")).Error; err != nil {
		tx.Rollback()
		return failure(ResultValidationFailed, err.Error())
	}
	duplicate, err := e.Ledger.Append(tx, bookingID, agentID, target, Ledger.Meta{})
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

	e.push(booking.UserID, "Agent assigned",
		"An agent has accepted your booking "+booking.BookingNo,
		"assignment_accepted", "/bookings/"+booking.BookingNo)

	return Outcome{Code: ResultOK, Booking: &booking}
}

// Reject removes the agent's pending assignment, records the rejection
// reason in the ledger and notifies the dispatching operator to reassign.
func (e *Engine) Reject(bookingID, agentID uint, reason string) Outcome {
	if err := e.validate.Var(reason, "required"); err != nil {
		return failure(ResultValidationFailed, "a rejection reason is required")
	}

	var assignment Models.Assignment
	err := e.DB.Where("booking_id = ? AND agent_id = ? AND status = ?",
		bookingID, agentID, Models.AssignmentPending).First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failure(ResultNotAssigned, ErrNotAssigned.Error())
		}
		return failure(ResultValidationFailed, err.Error())
	}

	var booking Models.Booking
	if err := e.DB.First(&booking, bookingID).Error; err != nil {
		return failure(ResultValidationFailed, err.Error())
	}

	tx := e.DB.Begin()
	if tx.Error != nil {
		return failure(ResultValidationFailed, tx.Error.Error())
	}
	if err := tx.Delete(&Models.Assignment{}, assignment.ID).Error; err != nil {
		tx.Rollback()
		return failure(ResultValidationFailed, err.Error())
	}
	if _, err := e.Ledger.Append(tx, bookingID, agentID, Models.StatusRejected, Ledger.Meta{Remarks: reason}); err != nil {
		tx.Rollback()
		return failure(ResultValidationFailed, err.Error())
	}
	if err := tx.Commit().Error; err != nil {
		return failure(ResultValidationFailed, err.Error())
	}

	e.pushOperators("Assignment rejected",
		booking.BookingNo+" needs a new agent: "+reason,
		"assignment_rejected", "/dispatch/"+booking.BookingNo)

	return Outcome{Code: ResultOK, Booking: &booking}
}
