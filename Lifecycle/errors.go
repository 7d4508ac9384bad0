package Lifecycle

import (
	"errors"

	"Voltway/Models"
)

// Result codes returned to handlers. Transport-agnostic on purpose; the
// controllers map them to HTTP status codes.
const (
	ResultOK                = "ok"
	ResultDuplicate         = "duplicate"
	ResultInvalidTransition = "invalid-transition"
	ResultNotAssigned       = "not-assigned"
	ResultValidationFailed  = "validation-failed"
)

var (
	// ErrNotAssigned means no assignment in the required prior status
	// exists for (booking, agent).
	ErrNotAssigned = errors.New("agent is not assigned to this booking")

	// ErrInvalidTransition means the target status is not reachable from
	// the booking's current status.
	ErrInvalidTransition = errors.New("transition not allowed from current status")

	// ErrBookingNotFound is returned when the booking id resolves to
	// nothing.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrAlreadyAssigned guards the single-accepted-assignment rule.
	ErrAlreadyAssigned = errors.New("booking already has an accepted assignment")

	// ErrAgentBusy guards the one-accepted-assignment-per-line rule.
	ErrAgentBusy = errors.New("agent already holds an accepted assignment on this service line")
)

// Outcome is the result of a lifecycle operation. Code is always set;
// Booking reflects post-operation state for ok/duplicate results. Invoice
// is set when a terminal hand-back triggered reconciliation successfully.
type Outcome struct {
	Code    string          `json:"code"`
	Message string          `json:"message,omitempty"`
	Booking *Models.Booking `json:"booking,omitempty"`
	Invoice *Models.Invoice `json:"invoice,omitempty"`
}

func failure(code, message string) Outcome {
	return Outcome{Code: code, Message: message}
}
