package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ApexAgent/app/models"
	"github.com/ManuelReschke/ApexAgent/app/repository"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/streamvideo"
)

// userTokenTTL is the lifetime of tokens handed to the browser video client
const userTokenTTL = time.Hour

// CallPlatform is the part of the video platform used by the meetings API
type CallPlatform interface {
	CreateCall(ctx context.Context, callType, callID string, req streamvideo.CreateCallRequest) (*streamvideo.Call, error)
	UpsertUsers(ctx context.Context, users ...streamvideo.User) error
	GenerateUserToken(userID string, ttl time.Duration) (string, error)
}

// meetingResponse adds the derived duration to a meeting
type meetingResponse struct {
	models.Meeting
	Duration *float64 `json:"duration"`
}

func toMeetingResponse(m *models.Meeting) meetingResponse {
	return meetingResponse{Meeting: *m, Duration: m.Duration()}
}

type createMeetingRequest struct {
	Name    string `json:"name" validate:"required,min=1,max=255"`
	AgentID string `json:"agentId" validate:"required"`
}

type updateMeetingRequest struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=255"`
	AgentID *string `json:"agentId" validate:"omitempty,min=1"`
}

// ============================================================================
// MEETING CONTROLLER - Repository Pattern
// ============================================================================

// MeetingController serves the owner-scoped meetings API
type MeetingController struct {
	meetings repository.MeetingRepository
	agents   repository.AgentRepository
	users    repository.UserRepository
	platform CallPlatform
}

// NewMeetingController creates a new meeting controller with repositories
func NewMeetingController(meetings repository.MeetingRepository, agents repository.AgentRepository, users repository.UserRepository, platform CallPlatform) *MeetingController {
	return &MeetingController{
		meetings: meetings,
		agents:   agents,
		users:    users,
		platform: platform,
	}
}

// handleError is a helper method for consistent error handling
func (mc *MeetingController) handleError(c *fiber.Ctx, message string, err error) error {
	log.Errorf("[MeetingController] %s: %v", message, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": message})
}

func meetingNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Meeting not found"})
}

func agentNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Agent not found"})
}

// HandleListMeetings lists the caller's meetings
func (mc *MeetingController) HandleListMeetings(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return unauthorized(c)
	}

	page, pageSize := parsePaging(c)
	status := models.MeetingStatus(strings.TrimSpace(c.Query("status")))
	if status != "" && !status.IsValid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status"})
	}

	meetings, total, err := mc.meetings.List(c.UserContext(), repository.MeetingFilter{
		UserID:   userID,
		Search:   strings.TrimSpace(c.Query("search")),
		Status:   status,
		AgentID:  strings.TrimSpace(c.Query("agentId")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return mc.handleError(c, "Failed to list meetings", err)
	}

	items := make([]meetingResponse, 0, len(meetings))
	for i := range meetings {
		items = append(items, toMeetingResponse(&meetings[i]))
	}
	return c.JSON(pageResponse{Items: items, Total: total, TotalPages: totalPages(total, pageSize)})
}

// HandleGetMeeting returns one of the caller's meetings
func (mc *MeetingController) HandleGetMeeting(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return unauthorized(c)
	}

	meeting, err := mc.meetings.GetByIDForUser(c.UserContext(), c.Params("id"), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return meetingNotFound(c)
		}
		return mc.handleError(c, "Failed to load meeting", err)
	}
	return c.JSON(toMeetingResponse(meeting))
}

// HandleCreateMeeting stores a meeting and creates its video call. The call is
// created with transcription and recording enabled and carries the meeting id
// so webhooks can be mapped back.
func (mc *MeetingController) HandleCreateMeeting(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return unauthorized(c)
	}

	var req createMeetingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	ctx := c.UserContext()
	agent, err := mc.agents.GetByIDForUser(ctx, req.AgentID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return agentNotFound(c)
		}
		return mc.handleError(c, "Failed to load agent", err)
	}

	meeting := &models.Meeting{Name: req.Name, UserID: userID, AgentID: agent.ID}
	if err := mc.meetings.Create(ctx, meeting); err != nil {
		return mc.handleError(c, "Failed to create meeting", err)
	}

	if err := mc.provisionCall(ctx, meeting, agent); err != nil {
		log.Errorf("[MeetingController] Video call for meeting %s could not be created: %v", meeting.ID, err)
		if _, delErr := mc.meetings.DeleteForUser(ctx, meeting.ID, userID); delErr != nil {
			log.Errorf("[MeetingController] Rollback of meeting %s failed: %v", meeting.ID, delErr)
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Failed to create video call"})
	}

	meeting.Agent = agent
	return c.Status(fiber.StatusCreated).JSON(toMeetingResponse(meeting))
}

func (mc *MeetingController) provisionCall(ctx context.Context, meeting *models.Meeting, agent *models.Agent) error {
	req := streamvideo.MeetingCallRequest(meeting.UserID, meeting.ID, meeting.Name)
	if _, err := mc.platform.CreateCall(ctx, streamvideo.DefaultCallType, meeting.ID, req); err != nil {
		return err
	}
	return mc.platform.UpsertUsers(ctx, streamvideo.User{
		ID:   agent.ID,
		Name: agent.Name,
		Role: streamvideo.RoleUser,
	})
}

// HandleUpdateMeeting renames a meeting or reassigns its agent
func (mc *MeetingController) HandleUpdateMeeting(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return unauthorized(c)
	}

	var req updateMeetingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		req.Name = &trimmed
	}
	if err := validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	ctx := c.UserContext()
	meeting, err := mc.meetings.GetByIDForUser(ctx, c.Params("id"), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return meetingNotFound(c)
		}
		return mc.handleError(c, "Failed to load meeting", err)
	}

	if req.Name != nil {
		meeting.Name = *req.Name
	}
	if req.AgentID != nil && *req.AgentID != meeting.AgentID {
		agent, err := mc.agents.GetByIDForUser(ctx, *req.AgentID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return agentNotFound(c)
			}
			return mc.handleError(c, "Failed to load agent", err)
		}
		meeting.AgentID = agent.ID
		meeting.Agent = agent
	}

	if err := mc.meetings.Update(ctx, meeting); err != nil {
		return mc.handleError(c, "Failed to update meeting", err)
	}

	updated, err := mc.meetings.GetByIDForUser(ctx, meeting.ID, userID)
	if err != nil {
		return mc.handleError(c, "Failed to reload meeting", err)
	}
	return c.JSON(toMeetingResponse(updated))
}

// HandleDeleteMeeting removes a meeting and returns the deleted row
func (mc *MeetingController) HandleDeleteMeeting(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return unauthorized(c)
	}

	meeting, err := mc.meetings.DeleteForUser(c.UserContext(), c.Params("id"), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return meetingNotFound(c)
		}
		return mc.handleError(c, "Failed to delete meeting", err)
	}
	return c.JSON(toMeetingResponse(meeting))
}

// HandleCancelMeeting cancels a meeting that has not finished yet
func (mc *MeetingController) HandleCancelMeeting(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return unauthorized(c)
	}

	meeting, err := mc.meetings.CancelIfOpen(c.UserContext(), c.Params("id"), userID)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return meetingNotFound(c)
		case errors.Is(err, repository.ErrPreconditionFailed):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Meeting is already completed or cancelled"})
		default:
			return mc.handleError(c, "Failed to cancel meeting", err)
		}
	}
	return c.JSON(toMeetingResponse(meeting))
}

// HandleGenerateToken registers the caller with the video platform and
// returns a short-lived token for the browser client
func (mc *MeetingController) HandleGenerateToken(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return unauthorized(c)
	}

	ctx := c.UserContext()
	user, err := mc.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return unauthorized(c)
		}
		return mc.handleError(c, "Failed to load user", err)
	}

	if err := mc.platform.UpsertUsers(ctx, streamvideo.User{
		ID:    user.ID,
		Name:  user.Name,
		Role:  streamvideo.RoleAdmin,
		Image: user.Image,
	}); err != nil {
		log.Errorf("[MeetingController] Upsert of platform user %s failed: %v", user.ID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Failed to register video user"})
	}

	token, err := mc.platform.GenerateUserToken(user.ID, userTokenTTL)
	if err != nil {
		return mc.handleError(c, "Failed to generate token", err)
	}
	return c.JSON(fiber.Map{"token": token})
}

// ============================================================================
// GLOBAL MEETING CONTROLLER INSTANCE - Singleton Pattern
// ============================================================================

var meetingController *MeetingController

// InitializeMeetingController initializes the global meeting controller
func InitializeMeetingController(platform CallPlatform) {
	factory := repository.GetGlobalFactory()
	meetingController = NewMeetingController(
		factory.GetMeetingRepository(),
		factory.GetAgentRepository(),
		factory.GetUserRepository(),
		platform,
	)
}

// GetMeetingController returns the global meeting controller instance
func GetMeetingController() *MeetingController {
	if meetingController == nil {
		panic("meeting controller not initialized")
	}
	return meetingController
}

// ============================================================================
// ADAPTER FUNCTIONS
// ============================================================================

func HandleListMeetings(c *fiber.Ctx) error  { return GetMeetingController().HandleListMeetings(c) }
func HandleGetMeeting(c *fiber.Ctx) error    { return GetMeetingController().HandleGetMeeting(c) }
func HandleCreateMeeting(c *fiber.Ctx) error { return GetMeetingController().HandleCreateMeeting(c) }
func HandleUpdateMeeting(c *fiber.Ctx) error { return GetMeetingController().HandleUpdateMeeting(c) }
func HandleDeleteMeeting(c *fiber.Ctx) error { return GetMeetingController().HandleDeleteMeeting(c) }
func HandleCancelMeeting(c *fiber.Ctx) error { return GetMeetingController().HandleCancelMeeting(c) }
func HandleGenerateToken(c *fiber.Ctx) error { return GetMeetingController().HandleGenerateToken(c) }
