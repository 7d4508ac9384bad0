package Lifecycle

import (
	"Voltway/Models"

	"golang.org/x/exp/slices"
)

// transitionTables maps, per service line, each status to the statuses
// legally reachable from it. Cancellation is handled separately by
// Cancellable since it is reachable from every pre-terminal status.
var transitionTables = map[Models.ServiceLine]map[Models.Status][]Models.Status{
	Models.ValetCharging: {
		Models.StatusConfirmed:      {Models.StatusAccepted},
		Models.StatusAccepted:       {Models.StatusEnRoute},
		Models.StatusEnRoute:        {Models.StatusPickedUp},
		Models.StatusPickedUp:       {Models.StatusReachedStation},
		Models.StatusReachedStation: {Models.StatusChargeComplete},
		Models.StatusChargeComplete: {Models.StatusDroppedOff},
		Models.StatusDroppedOff:     {Models.StatusWorkComplete},
		Models.StatusWorkComplete:   {},
	},
	Models.PortableCharger: {
		Models.StatusConfirmed:        {Models.StatusAccepted},
		Models.StatusAccepted:         {Models.StatusEnRoute},
		Models.StatusEnRoute:          {Models.StatusReachedLocation},
		Models.StatusReachedLocation:  {Models.StatusChargingStarted},
		Models.StatusChargingStarted:  {Models.StatusChargingComplete},
		Models.StatusChargingComplete: {Models.StatusPickedUp},
		Models.StatusPickedUp:         {Models.StatusReturnedToDepot},
		Models.StatusReturnedToDepot:  {},
	},
	Models.Roadside: {
		Models.StatusDraft:        {Models.StatusConfirmed},
		Models.StatusConfirmed:    {Models.StatusEnRoute},
		Models.StatusEnRoute:      {Models.StatusArrived},
		Models.StatusArrived:      {Models.StatusWorkComplete},
		Models.StatusWorkComplete: {Models.StatusEscalated, Models.StatusClosed},
		Models.StatusEscalated:    {Models.StatusClosed},
		Models.StatusClosed:       {},
	},
}

// handBackStatus is, per line, the status at which the service is
// physically concluded and invoice reconciliation fires.
var handBackStatus = map[Models.ServiceLine]Models.Status{
	Models.ValetCharging:   Models.StatusDroppedOff,
	Models.PortableCharger: Models.StatusPickedUp,
	Models.Roadside:        Models.StatusWorkComplete,
}

// initialAcceptStatus is the status an accept moves the booking into.
var initialAcceptStatus = map[Models.ServiceLine]Models.Status{
	Models.ValetCharging:   Models.StatusAccepted,
	Models.PortableCharger: Models.StatusAccepted,
	Models.Roadside:        Models.StatusConfirmed,
}

// photoRequired lists transitions whose payload must carry a proof photo.
var photoRequired = []Models.Status{
	Models.StatusPickedUp,
	Models.StatusDroppedOff,
	Models.StatusReturnedToDepot,
}

// CanTransition reports whether target is legal from current on the given
// service line.
func CanTransition(line Models.ServiceLine, current, target Models.Status) bool {
	table, ok := transitionTables[line]
	if !ok {
		return false
	}
	return slices.Contains(table[current], target)
}

// IsTerminal reports whether no further transition leaves the status.
func IsTerminal(line Models.ServiceLine, status Models.Status) bool {
	table, ok := transitionTables[line]
	if !ok {
		return true
	}
	next, known := table[status]
	return !known || len(next) == 0
}

// postHandBack lists, per line, the statuses that come after the
// hand-back. They close out paperwork on a service already performed.
var postHandBack = map[Models.ServiceLine][]Models.Status{
	Models.ValetCharging:   {Models.StatusWorkComplete},
	Models.PortableCharger: {Models.StatusReturnedToDepot},
	Models.Roadside:        {Models.StatusEscalated, Models.StatusClosed},
}

// Cancellable reports whether a booking in the given status may still be
// cancelled. The window closes at hand-back: from there the service has
// been performed and an invoice exists, so cancellation is no longer
// meaningful.
func Cancellable(line Models.ServiceLine, status Models.Status) bool {
	if status == Models.StatusCancelled {
		return false
	}
	if IsHandBack(line, status) || slices.Contains(postHandBack[line], status) {
		return false
	}
	return !IsTerminal(line, status)
}

// IsHandBack reports whether a status is the line's terminal hand-back,
// the point where billing is triggered.
func IsHandBack(line Models.ServiceLine, status Models.Status) bool {
	return handBackStatus[line] == status
}

// RequiresPhoto reports whether the transition payload must include a
// media reference.
func RequiresPhoto(status Models.Status) bool {
	return slices.Contains(photoRequired, status)
}

// InitialStatus is the status a freshly created booking starts in.
func InitialStatus(line Models.ServiceLine) Models.Status {
	if line == Models.Roadside {
		return Models.StatusDraft
	}
	return Models.StatusConfirmed
}

// AcceptStatus is the status an accepted assignment moves the booking to.
func AcceptStatus(line Models.ServiceLine) Models.Status {
	return initialAcceptStatus[line]
}
