package Lifecycle

import (
	"fmt"
	"strings"
	"testing"

	"Voltway/Ledger"
	"Voltway/Models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubNotifier struct {
	userPushes     []string
	operatorPushes []string
}

func (n *stubNotifier) PushToUser(userID uint, title, body, category, deepLink string) error {
	n.userPushes = append(n.userPushes, category)
	return nil
}

func (n *stubNotifier) PushToOperators(title, body, category, deepLink string) error {
	n.operatorPushes = append(n.operatorPushes, category)
	return nil
}

type stubReconciler struct {
	calls   []uint
	invoice *Models.Invoice
	err     error
}

func (r *stubReconciler) Reconcile(bookingID uint) (*Models.Invoice, error) {
	r.calls = append(r.calls, bookingID)
	return r.invoice, r.err
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, Models.Migrate(db))
	return db
}

type fixture struct {
	db         *gorm.DB
	engine     *Engine
	notifier   *stubNotifier
	reconciler *stubReconciler
	customer   Models.User
	agent      Models.Agent
	booking    Models.Booking
}

func newFixture(t *testing.T, line Models.ServiceLine) *fixture {
	t.Helper()
	db := testDB(t)

	customer := Models.User{Name: "Dana", Email: t.Name() + "-customer@test.dev", Permission: Models.PermissionCustomer}
	require.NoError(t, db.Create(&customer).Error)

	agentUser := Models.User{Name: "Faris", Email: t.Name() + "-agent@test.dev", Permission: Models.PermissionAgent}
	require.NoError(t, db.Create(&agentUser).Error)
	agent := Models.Agent{UserID: agentUser.ID, ServiceLine: line, OnDuty: true}
	require.NoError(t, db.Create(&agent).Error)

	bookingNo, err := Models.NextBookingNo(db, line)
	require.NoError(t, err)
	booking := Models.Booking{
		BookingNo:   bookingNo,
		ServiceLine: line,
		UserID:      customer.ID,
		Status:      InitialStatus(line),
	}
	require.NoError(t, db.Create(&booking).Error)

	notifier := &stubNotifier{}
	reconciler := &stubReconciler{invoice: &Models.Invoice{Amount: 37.01, Status: Models.InvoicePending}}
	engine := NewEngine(db, Ledger.NewStore(db), notifier, reconciler)

	return &fixture{
		db:         db,
		engine:     engine,
		notifier:   notifier,
		reconciler: reconciler,
		customer:   customer,
		agent:      agent,
		booking:    booking,
	}
}

// secondAgent creates another agent on the given line.
func (f *fixture) secondAgent(t *testing.T, line Models.ServiceLine) Models.Agent {
	t.Helper()
	user := Models.User{Name: "Omar", Email: t.Name() + "-agent2@test.dev", Permission: Models.PermissionAgent}
	require.NoError(t, f.db.Create(&user).Error)
	agent := Models.Agent{UserID: user.ID, ServiceLine: line, OnDuty: true}
	require.NoError(t, f.db.Create(&agent).Error)
	return agent
}

func (f *fixture) accept(t *testing.T) {
	t.Helper()
	require.Equal(t, ResultOK, f.engine.Assign(f.booking.ID, f.agent.ID).Code)
	require.Equal(t, ResultOK, f.engine.Accept(f.booking.ID, f.agent.ID).Code)
}

func (f *fixture) reloadBooking(t *testing.T) Models.Booking {
	t.Helper()
	var booking Models.Booking
	require.NoError(t, f.db.First(&booking, f.booking.ID).Error)
	return booking
}

func (f *fixture) ledgerCount(t *testing.T, status Models.Status) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&Models.LedgerEntry{}).
		Where("booking_id = ? AND status_code = ?", f.booking.ID, status).
		Count(&count).Error)
	return count
}

func TestAcceptAssignment(t *testing.T) {
	f := newFixture(t, Models.ValetCharging)

	out := f.engine.Assign(f.booking.ID, f.agent.ID)
	require.Equal(t, ResultOK, out.Code)

	out = f.engine.Accept(f.booking.ID, f.agent.ID)
	require.Equal(t, ResultOK, out.Code)

	booking := f.reloadBooking(t)
	assert.Equal(t, Models.StatusAccepted, booking.Status)
	require.NotNil(t, booking.AgentID)
	assert.Equal(t, f.agent.ID, *booking.AgentID)

	var agent Models.Agent
	require.NoError(t, f.db.First(&agent, f.agent.ID).Error)
	assert.Equal(t, 1, agent.ActiveOrders)

	assert.EqualValues(t, 1, f.ledgerCount(t, Models.StatusAccepted))
	assert.Contains(t, f.notifier.userPushes, "assignment_accepted")
}

func TestAcceptRetryIsDuplicate(t *testing.T) {
	f := newFixture(t, Models.ValetCharging)
	f.accept(t)

	out := f.engine.Accept(f.booking.ID, f.agent.ID)
	assert.Equal(t, ResultDuplicate, out.Code)

	var agent Models.Agent
	require.NoError(t, f.db.First(&agent, f.agent.ID).Error)
	assert.Equal(t, 1, agent.ActiveOrders)
	assert.EqualValues(t, 1, f.ledgerCount(t, Models.StatusAccepted))
}

func TestAcceptWithoutOffer(t *testing.T) {
	f := newFixture(t, Models.ValetCharging)

	out := f.engine.Accept(f.booking.ID, f.agent.ID)
	assert.Equal(t, ResultNotAssigned, out.Code)
	assert.Equal(t, InitialStatus(Models.ValetCharging), f.reloadBooking(t).Status)
}

func TestAcceptSecondAgentRejected(t *testing.T) {
	f := newFixture(t, Models.ValetCharging)
	rival := f.secondAgent(t, Models.ValetCharging)

	require.Equal(t, ResultOK, f.engine.Assign(f.booking.ID, f.agent.ID).Code)
	require.Equal(t, ResultOK, f.engine.Assign(f.booking.ID, rival.ID).Code)
	require.Equal(t, ResultOK, f.engine.Accept(f.booking.ID, f.agent.ID).Code)

	out := f.engine.Accept(f.booking.ID, rival.ID)
	// The booking has left the dispatch stage once the first accept
	// lands; the engine refuses the second regardless of which guard
	// fires first.
	assert.Equal(t, ResultInvalidTransition, out.Code)

	var accepted int64
	require.NoError(t, f.db.Model(&Models.Assignment{}).
		Where("booking_id = ? AND status = ?", f.booking.ID, Models.AssignmentAccepted).
		Count(&accepted).Error)
	assert.EqualValues(t, 1, accepted)
}

func TestAgentBusyAcrossBookings(t *testing.T) {
	f := newFixture(t, Models.PortableCharger)
	f.accept(t)

	bookingNo, err := Models.NextBookingNo(f.db, Models.PortableCharger)
	require.NoError(t, err)
	second := Models.Booking{
		BookingNo:   bookingNo,
		ServiceLine: Models.PortableCharger,
		UserID:      f.customer.ID,
		Status:      InitialStatus(Models.PortableCharger),
	}
	require.NoError(t, f.db.Create(&second).Error)
	require.Equal(t, ResultOK, f.engine.Assign(second.ID, f.agent.ID).Code)

	out := f.engine.Accept(second.ID, f.agent.ID)
	assert.Equal(t, ResultInvalidTransition, out.Code)
	assert.Equal(t, ErrAgentBusy.Error(), out.Message)
}

func TestTransitionIdempotent(t *testing.T) {
	f := newFixture(t, Models.ValetCharging)
	f.accept(t)

	out := f.engine.ApplyTransition(f.booking.ID, f.agent.ID, Models.StatusEnRoute, TransitionPayload{})
	require.Equal(t, ResultOK, out.Code)

	// Same transition delivered again, as a mobile client retry would.
	out = f.engine.ApplyTransition(f.booking.ID, f.agent.ID, Models.StatusEnRoute, TransitionPayload{})
	assert.Equal(t, ResultDuplicate, out.Code)

	assert.Equal(t, Models.StatusEnRoute, f.reloadBooking(t).Status)
	assert.EqualValues(t, 1, f.ledgerCount(t, Models.StatusEnRoute))
}

func TestOutOfOrderTransitionRejected(t *testing.T) {
	f := newFixture(t, Models.ValetCharging)
	f.accept(t)

	// picked_up is two steps ahead of accepted for valet jobs.
	out := f.engine.ApplyTransition(f.booking.ID, f.agent.ID, Models.StatusPickedUp, TransitionPayload{MediaRef: "proof.jpg"})
	assert.Equal(t, ResultInvalidTransition, out.Code)

	assert.Equal(t, Models.StatusAccepted, f.reloadBooking(t).Status)
	assert.EqualValues(t, 0, f.ledgerCount(t, Models.StatusPickedUp))
}

func TestTransitionByUnassignedAgent(t *testing.T) {
	f := newFixture(t, Models.ValetCharging)
	f.accept(t)
	rival := f.secondAgent(t, Models.ValetCharging)

	out := f.engine.ApplyTransition(f.booking.ID, rival.ID, Models.StatusEnRoute, TransitionPayload{})
	assert.Equal(t, ResultNotAssigned, out.Code)
	assert.Equal(t, Models.StatusAccepted, f.reloadBooking(t).Status)
}

func TestPhotoRequiredOnPickup(t *testing.T) {
	f := newFixture(t, Models.ValetCharging)
	f.accept(t)
	require.Equal(t, ResultOK,
		f.engine.ApplyTransition(f.booking.ID, f.agent.ID, Models.StatusEnRoute, TransitionPayload{}).Code)

	out := f.engine.ApplyTransition(f.booking.ID, f.agent.ID, Models.StatusPickedUp, TransitionPayload{})
	assert.Equal(t, ResultValidationFailed, out.Code)
	assert.Equal(t, Models.StatusEnRoute, f.reloadBooking(t).Status)

	out = f.engine.ApplyTransition(f.booking.ID, f.agent.ID, Models.StatusPickedUp, TransitionPayload{MediaRef: "proof.jpg"})
	assert.Equal(t, ResultOK, out.Code)
}

func TestChargeLevelsValidated(t *testing.T) {
	f := newFixture(t, Models.ValetCharging)
	f.accept(t)
	require.Equal(t, ResultOK,
		f.engine.ApplyTransition(f.booking.ID, f.agent.ID, Models.StatusEnRoute, TransitionPayload{}).Code)

	out := f.engine.ApplyTransition(f.booking.ID, f.agent.ID, Models.StatusPickedUp, TransitionPayload{
		MediaRef:     "proof.jpg",
		ChargeLevels: &Models.ChargeLevels{Start: []float64{80, 120}, End: []float64{50}},
	})
	assert.Equal(t, ResultValidationFailed, out.Code)
}

func TestHandBackTriggersReconciliationOnce(t *testing.T) {
	f := newFixture(t, Models.ValetCharging)
	f.accept(t)

	steps := []struct {
		target  Models.Status
		payload TransitionPayload
	}{
		{Models.StatusEnRoute, TransitionPayload{}},
		{Models.StatusPickedUp, TransitionPayload{MediaRef: "pickup.jpg"}},
		{Models.StatusReachedStation, TransitionPayload{}},
		{Models.StatusChargeComplete, TransitionPayload{
			ChargeLevels: &Models.ChargeLevels{Start: []float64{22}, End: []float64{96}},
		}},
	}
	for _, step := range steps {
		require.Equal(t, ResultOK,
			f.engine.ApplyTransition(f.booking.ID, f.agent.ID, step.target, step.payload).Code,
			"step %s", step.target)
	}

	out := f.engine.ApplyTransition(f.booking.ID, f.agent.ID, Models.StatusDroppedOff, TransitionPayload{MediaRef: "dropoff.jpg"})
	require.Equal(t, ResultOK, out.Code)
	require.NotNil(t, out.Invoice)
	assert.Equal(t, []uint{f.booking.ID}, f.reconciler.calls)

	booking := f.reloadBooking(t)
	assert.Equal(t, Models.StatusDroppedOff, booking.Status)
	assert.InDelta(t, 37.01, booking.FinalPrice, 1e-9)
	readings := booking.ChargeReadings.Data()
	assert.Equal(t, []float64{22}, readings.Start)
	assert.Equal(t, []float64{96}, readings.End)
	assert.NotNil(t, booking.ChargeStartedAt)
	assert.NotNil(t, booking.ChargeEndedAt)

	// Re-delivered hand-back must not reconcile again.
	out = f.engine.ApplyTransition(f.booking.ID, f.agent.ID, Models.StatusDroppedOff, TransitionPayload{MediaRef: "dropoff.jpg"})
	assert.Equal(t, ResultDuplicate, out.Code)
	assert.Len(t, f.reconciler.calls, 1)
}

func TestCompletionReleasesAgent(t *testing.T) {
	f := newFixture(t, Models.ValetCharging)
	f.accept(t)

	steps := []struct {
		target  Models.Status
		payload TransitionPayload
	}{
		{Models.StatusEnRoute, TransitionPayload{}},
		{Models.StatusPickedUp, TransitionPayload{MediaRef: "pickup.jpg"}},
		{Models.StatusReachedStation, TransitionPayload{}},
		{Models.StatusChargeComplete, TransitionPayload{
			ChargeLevels: &Models.ChargeLevels{Start: []float64{20}, End: []float64{95}},
		}},
		{Models.StatusDroppedOff, TransitionPayload{MediaRef: "dropoff.jpg"}},
		{Models.StatusWorkComplete, TransitionPayload{}},
	}
	for _, step := range steps {
		require.Equal(t, ResultOK,
			f.engine.ApplyTransition(f.booking.ID, f.agent.ID, step.target, step.payload).Code,
			"step %s", step.target)
	}

	var agent Models.Agent
	require.NoError(t, f.db.First(&agent, f.agent.ID).Error)
	assert.Equal(t, 0, agent.ActiveOrders)

	var held int64
	require.NoError(t, f.db.Model(&Models.Assignment{}).
		Where("agent_id = ? AND status = ?", f.agent.ID, Models.AssignmentAccepted).
		Count(&held).Error)
	assert.EqualValues(t, 0, held)

	// The booking keeps its agent reference for the record.
	booking := f.reloadBooking(t)
	require.NotNil(t, booking.AgentID)

	// A re-delivered terminal transition is still a duplicate, not
	// not-assigned, even though the assignment row is gone.
	out := f.engine.ApplyTransition(f.booking.ID, f.agent.ID, Models.StatusWorkComplete, TransitionPayload{})
	assert.Equal(t, ResultDuplicate, out.Code)

	// The freed agent can take the next job on the same line.
	bookingNo, err := Models.NextBookingNo(f.db, Models.ValetCharging)
	require.NoError(t, err)
	next := Models.Booking{
		BookingNo:   bookingNo,
		ServiceLine: Models.ValetCharging,
		UserID:      f.customer.ID,
		Status:      InitialStatus(Models.ValetCharging),
	}
	require.NoError(t, f.db.Create(&next).Error)
	require.Equal(t, ResultOK, f.engine.Assign(next.ID, f.agent.ID).Code)
	require.Equal(t, ResultOK, f.engine.Accept(next.ID, f.agent.ID).Code)

	require.NoError(t, f.db.First(&agent, f.agent.ID).Error)
	assert.Equal(t, 1, agent.ActiveOrders)
}

func TestReconcilerFailureKeepsTransition(t *testing.T) {
	f := newFixture(t, Models.Roadside)
	f.reconciler.err = fmt.Errorf("billing backend down")
	f.reconciler.invoice = nil

	require.Equal(t, ResultOK, f.engine.Assign(f.booking.ID, f.agent.ID).Code)
	require.Equal(t, ResultOK, f.engine.Accept(f.booking.ID, f.agent.ID).Code)
	require.Equal(t, ResultOK,
		f.engine.ApplyTransition(f.booking.ID, f.agent.ID, Models.StatusEnRoute, TransitionPayload{}).Code)
	require.Equal(t, ResultOK,
		f.engine.ApplyTransition(f.booking.ID, f.agent.ID, Models.StatusArrived, TransitionPayload{}).Code)

	out := f.engine.ApplyTransition(f.booking.ID, f.agent.ID, Models.StatusWorkComplete, TransitionPayload{MediaRef: "done.jpg"})
	assert.Equal(t, ResultOK, out.Code)
	assert.Nil(t, out.Invoice)
	assert.NotEmpty(t, out.Message)
	assert.Equal(t, Models.StatusWorkComplete, f.reloadBooking(t).Status)
}

func TestRoadsideAcceptConfirms(t *testing.T) {
	f := newFixture(t, Models.Roadside)
	assert.Equal(t, Models.StatusDraft, f.booking.Status)

	require.Equal(t, ResultOK, f.engine.Assign(f.booking.ID, f.agent.ID).Code)
	out := f.engine.ApplyTransition(f.booking.ID, f.agent.ID, Models.StatusConfirmed, TransitionPayload{})
	require.Equal(t, ResultOK, out.Code)
	assert.Equal(t, Models.StatusConfirmed, f.reloadBooking(t).Status)
}

func TestAssignLineMismatch(t *testing.T) {
	f := newFixture(t, Models.ValetCharging)
	roadside := f.secondAgent(t, Models.Roadside)

	out := f.engine.Assign(f.booking.ID, roadside.ID)
	assert.Equal(t, ResultValidationFailed, out.Code)
}

func TestAssignPastDispatchStage(t *testing.T) {
	f := newFixture(t, Models.ValetCharging)
	f.accept(t)
	rival := f.secondAgent(t, Models.ValetCharging)

	out := f.engine.Assign(f.booking.ID, rival.ID)
	assert.Equal(t, ResultInvalidTransition, out.Code)
}

func TestCancelReleasesAgent(t *testing.T) {
	f := newFixture(t, Models.ValetCharging)
	f.accept(t)

	out := f.engine.Cancel(f.booking.ID, f.customer.ID, false, "changed my mind")
	require.Equal(t, ResultOK, out.Code)

	booking := f.reloadBooking(t)
	assert.Equal(t, Models.StatusCancelled, booking.Status)
	assert.Nil(t, booking.AgentID)

	var assignments int64
	require.NoError(t, f.db.Model(&Models.Assignment{}).
		Where("booking_id = ?", f.booking.ID).Count(&assignments).Error)
	assert.EqualValues(t, 0, assignments)

	var agent Models.Agent
	require.NoError(t, f.db.First(&agent, f.agent.ID).Error)
	assert.Equal(t, 0, agent.ActiveOrders)

	var entry Models.LedgerEntry
	require.NoError(t, f.db.Where("booking_id = ? AND status_code = ?",
		f.booking.ID, Models.StatusCancelled).First(&entry).Error)
	assert.Equal(t, "changed my mind", entry.Remarks)

	out = f.engine.Cancel(f.booking.ID, f.customer.ID, false, "changed my mind")
	assert.Equal(t, ResultDuplicate, out.Code)
	assert.EqualValues(t, 1, f.ledgerCount(t, Models.StatusCancelled))
}

func TestCancelRequiresReason(t *testing.T) {
	f := newFixture(t, Models.ValetCharging)

	out := f.engine.Cancel(f.booking.ID, f.customer.ID, false, "")
	assert.Equal(t, ResultValidationFailed, out.Code)
	assert.NotEqual(t, Models.StatusCancelled, f.reloadBooking(t).Status)
}

func TestCancelAfterTerminal(t *testing.T) {
	f := newFixture(t, Models.ValetCharging)
	require.NoError(t, f.db.Model(&Models.Booking{}).Where("id = ?", f.booking.ID).
		Update("status", Models.StatusWorkComplete).Error)

	out := f.engine.Cancel(f.booking.ID, f.customer.ID, true, "too late anyway")
	assert.Equal(t, ResultInvalidTransition, out.Code)
}

func TestCancelAfterHandBack(t *testing.T) {
	cases := []struct {
		line   Models.ServiceLine
		status Models.Status
	}{
		{Models.ValetCharging, Models.StatusDroppedOff},
		{Models.PortableCharger, Models.StatusPickedUp},
		{Models.Roadside, Models.StatusWorkComplete},
		{Models.Roadside, Models.StatusEscalated},
	}
	for _, tc := range cases {
		t.Run(string(tc.line)+"/"+string(tc.status), func(t *testing.T) {
			f := newFixture(t, tc.line)
			require.NoError(t, f.db.Model(&Models.Booking{}).Where("id = ?", f.booking.ID).
				Update("status", tc.status).Error)

			out := f.engine.Cancel(f.booking.ID, f.customer.ID, true, "changed my mind")
			assert.Equal(t, ResultInvalidTransition, out.Code)
			assert.Equal(t, tc.status, f.reloadBooking(t).Status)
		})
	}
}

func TestRejectRemovesOffer(t *testing.T) {
	f := newFixture(t, Models.ValetCharging)
	require.Equal(t, ResultOK, f.engine.Assign(f.booking.ID, f.agent.ID).Code)

	out := f.engine.Reject(f.booking.ID, f.agent.ID, "")
	assert.Equal(t, ResultValidationFailed, out.Code)

	out = f.engine.Reject(f.booking.ID, f.agent.ID, "vehicle too far")
	require.Equal(t, ResultOK, out.Code)

	var assignments int64
	require.NoError(t, f.db.Model(&Models.Assignment{}).
		Where("booking_id = ?", f.booking.ID).Count(&assignments).Error)
	assert.EqualValues(t, 0, assignments)

	var entry Models.LedgerEntry
	require.NoError(t, f.db.Where("booking_id = ? AND status_code = ?",
		f.booking.ID, Models.StatusRejected).First(&entry).Error)
	assert.Equal(t, "vehicle too far", entry.Remarks)
	assert.Contains(t, f.notifier.operatorPushes, "assignment_rejected")
}
