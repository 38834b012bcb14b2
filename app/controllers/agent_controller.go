package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ApexAgent/app/models"
	"github.com/ManuelReschke/ApexAgent/app/repository"
)

type agentRequest struct {
	Name         string `json:"name" validate:"required,min=1,max=150"`
	Instructions string `json:"instructions" validate:"required,min=1"`
}

// ============================================================================
// AGENT CONTROLLER - Repository Pattern
// ============================================================================

// AgentController serves the owner-scoped agents API
type AgentController struct {
	agents repository.AgentRepository
}

// NewAgentController creates a new agent controller with repository
func NewAgentController(agents repository.AgentRepository) *AgentController {
	return &AgentController{agents: agents}
}

func (ac *AgentController) handleError(c *fiber.Ctx, message string, err error) error {
	log.Errorf("[AgentController] %s: %v", message, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": message})
}

func (ac *AgentController) parseBody(c *fiber.Ctx) (*agentRequest, error) {
	var req agentRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Instructions = strings.TrimSpace(req.Instructions)
	if err := validate.Struct(req); err != nil {
		return nil, validationError(c, err)
	}
	return &req, nil
}

// HandleListAgents lists the caller's agents with their meeting counts
func (ac *AgentController) HandleListAgents(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return unauthorized(c)
	}

	page, pageSize := parsePaging(c)
	agents, total, err := ac.agents.List(c.UserContext(), repository.AgentFilter{
		UserID:   userID,
		Search:   strings.TrimSpace(c.Query("search")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return ac.handleError(c, "Failed to list agents", err)
	}
	if agents == nil {
		agents = []repository.AgentWithMeetingCount{}
	}
	return c.JSON(pageResponse{Items: agents, Total: total, TotalPages: totalPages(total, pageSize)})
}

// HandleGetAgent returns one of the caller's agents
func (ac *AgentController) HandleGetAgent(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return unauthorized(c)
	}

	agent, err := ac.agents.GetByIDForUser(c.UserContext(), c.Params("id"), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return agentNotFound(c)
		}
		return ac.handleError(c, "Failed to load agent", err)
	}
	return c.JSON(agent)
}

// HandleCreateAgent creates an agent for the caller
func (ac *AgentController) HandleCreateAgent(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return unauthorized(c)
	}

	req, err := ac.parseBody(c)
	if req == nil {
		return err
	}

	agent := &models.Agent{Name: req.Name, Instructions: req.Instructions, UserID: userID}
	if err := ac.agents.Create(c.UserContext(), agent); err != nil {
		return ac.handleError(c, "Failed to create agent", err)
	}
	return c.Status(fiber.StatusCreated).JSON(agent)
}

// HandleUpdateAgent replaces an agent's name and instructions
func (ac *AgentController) HandleUpdateAgent(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return unauthorized(c)
	}

	req, err := ac.parseBody(c)
	if req == nil {
		return err
	}

	ctx := c.UserContext()
	agent := &models.Agent{ID: c.Params("id"), UserID: userID, Name: req.Name, Instructions: req.Instructions}
	if err := ac.agents.Update(ctx, agent); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return agentNotFound(c)
		}
		return ac.handleError(c, "Failed to update agent", err)
	}

	updated, err := ac.agents.GetByIDForUser(ctx, agent.ID, userID)
	if err != nil {
		return ac.handleError(c, "Failed to reload agent", err)
	}
	return c.JSON(updated)
}

// HandleDeleteAgent removes an agent; its meetings go with it
func (ac *AgentController) HandleDeleteAgent(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return unauthorized(c)
	}

	agent, err := ac.agents.DeleteForUser(c.UserContext(), c.Params("id"), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return agentNotFound(c)
		}
		return ac.handleError(c, "Failed to delete agent", err)
	}
	return c.JSON(agent)
}

// ============================================================================
// GLOBAL AGENT CONTROLLER INSTANCE - Singleton Pattern
// ============================================================================

var agentController *AgentController

// InitializeAgentController initializes the global agent controller
func InitializeAgentController() {
	agentController = NewAgentController(repository.GetGlobalFactory().GetAgentRepository())
}

// GetAgentController returns the global agent controller instance
func GetAgentController() *AgentController {
	if agentController == nil {
		InitializeAgentController()
	}
	return agentController
}

// ============================================================================
// ADAPTER FUNCTIONS
// ============================================================================

func HandleListAgents(c *fiber.Ctx) error  { return GetAgentController().HandleListAgents(c) }
func HandleGetAgent(c *fiber.Ctx) error    { return GetAgentController().HandleGetAgent(c) }
func HandleCreateAgent(c *fiber.Ctx) error { return GetAgentController().HandleCreateAgent(c) }
func HandleUpdateAgent(c *fiber.Ctx) error { return GetAgentController().HandleUpdateAgent(c) }
func HandleDeleteAgent(c *fiber.Ctx) error { return GetAgentController().HandleDeleteAgent(c) }
