package Controllers

import (
	"log"
	"strconv"

	"Voltway/Lifecycle"
	"Voltway/Models"
	"Voltway/Slack"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AgentHandler contains handler methods for the field-agent app routes
type AgentHandler struct {
	DB     *gorm.DB
	Engine *Lifecycle.Engine
	Slack  *Slack.Client
}

func NewAgentHandler(db *gorm.DB, engine *Lifecycle.Engine, slack *Slack.Client) *AgentHandler {
	return &AgentHandler{DB: db, Engine: engine, Slack: slack}
}

// agentFor resolves the agent profile behind the logged-in user.
func (h *AgentHandler) agentFor(c *fiber.Ctx) (*Models.Agent, error) {
	user, ok := c.Locals("user").(Models.User)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Not logged in")
	}
	var agent Models.Agent
	if err := h.DB.Where("user_id = ?", user.ID).First(&agent).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusForbidden, "No agent profile for this account")
	}
	return &agent, nil
}

// MyAssignments lists the agent's pending offers and live jobs.
// GET /api/agent/assignments
func (h *AgentHandler) MyAssignments(c *fiber.Ctx) error {
	agent, err := h.agentFor(c)
	if err != nil {
		return err
	}

	var assignments []Models.Assignment
	if err := h.DB.Preload("Booking").
		Where("agent_id = ?", agent.ID).
		Order("id desc").
		Find(&assignments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch assignments",
		})
	}
	return c.JSON(assignments)
}

// AcceptAssignment accepts the pending offer for a booking.
// POST /api/agent/bookings/:id/accept
func (h *AgentHandler) AcceptAssignment(c *fiber.Ctx) error {
	agent, err := h.agentFor(c)
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid booking id",
		})
	}

	outcome := h.Engine.Accept(uint(id), agent.ID)
	return respondOutcome(c, outcome)
}

type RejectAssignmentRequest struct {
	Reason string `json:"reason"`
}

// RejectAssignment declines the pending offer; the operator reassigns.
// POST /api/agent/bookings/:id/reject
func (h *AgentHandler) RejectAssignment(c *fiber.Ctx) error {
	agent, err := h.agentFor(c)
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid booking id",
		})
	}

	var req RejectAssignmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	outcome := h.Engine.Reject(uint(id), agent.ID, req.Reason)
	return respondOutcome(c, outcome)
}

type TransitionRequest struct {
	Status       Models.Status        `json:"status"`
	Reason       string               `json:"reason"`
	MediaRef     string               `json:"media_ref"`
	Lat          float64              `json:"lat"`
	Lng          float64              `json:"lng"`
	ChargeLevels *Models.ChargeLevels `json:"charge_levels,omitempty"`
}

// ApplyTransition moves a booking forward through its lifecycle. Safe to
// retry: duplicate deliveries come back with code "duplicate" and no
// further effects.
// POST /api/agent/bookings/:id/transition
func (h *AgentHandler) ApplyTransition(c *fiber.Ctx) error {
	agent, err := h.agentFor(c)
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid booking id",
		})
	}

	var req TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
	}
	if req.Status == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"message": "status is required",
		})
	}

	outcome := h.Engine.ApplyTransition(uint(id), agent.ID, req.Status, Lifecycle.TransitionPayload{
		Reason:       req.Reason,
		MediaRef:     req.MediaRef,
		Lat:          req.Lat,
		Lng:          req.Lng,
		ChargeLevels: req.ChargeLevels,
	})

	if outcome.Code == Lifecycle.ResultOK && req.Status == Models.StatusEscalated &&
		h.Slack != nil && outcome.Booking != nil {
		if err := h.Slack.NotifyEscalation(outcome.Booking.BookingNo, req.Reason); err != nil {
			log.Printf("Slack escalation alert failed for %s: %v", outcome.Booking.BookingNo, err)
		}
	}
	return respondOutcome(c, outcome)
}
