package handler

import (
	"net/http"
	"strconv"

	"water-meter-platform/internal/command"
	"water-meter-platform/internal/commandlog/repository"
	"water-meter-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CommandHandler exposes the simulated SMS command channel and the command
// audit log.
type CommandHandler struct {
	service *command.Service
	logs    *repository.CommandLogRepository
}

func NewCommandHandler(service *command.Service, logs *repository.CommandLogRepository) *CommandHandler {
	return &CommandHandler{service: service, logs: logs}
}

func (h *CommandHandler) RegisterTechnicianRoutes(router *gin.RouterGroup) {
	sms := router.Group("/sms")
	{
		sms.POST("/simulate", h.Simulate)
		sms.GET("/logs", h.ListLogs)
		sms.GET("/logs/device/:meterId", h.ListLogsByMeterID)
	}
}

type simulateRequest struct {
	Command string `json:"command" binding:"required"`
}

func (h *CommandHandler) Simulate(c *gin.Context) {
	var req simulateRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	var technicianID *uuid.UUID
	if rawID, exists := c.Get("userID"); exists {
		if parsed, err := uuid.Parse(rawID.(string)); err == nil {
			technicianID = &parsed
		}
	}

	result, err := h.service.Process(c.Request.Context(), req.Command, technicianID)
	if err != nil {
		utils.ErrorResponse(c, statusFromError(err), err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, result.Message, result)
}

func (h *CommandHandler) ListLogs(c *gin.Context) {
	limit := parseLimit(c, 100)
	if limit <= 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid limit")
		return
	}

	logs, err := h.logs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		utils.ErrorResponse(c, statusFromError(err), err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Command logs retrieved successfully", logs)
}

func (h *CommandHandler) ListLogsByMeterID(c *gin.Context) {
	meterID := c.Param("meterId")
	if meterID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Meter ID is required")
		return
	}

	limit := parseLimit(c, 100)
	if limit <= 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid limit")
		return
	}

	logs, err := h.logs.ListByMeterID(c.Request.Context(), meterID, limit)
	if err != nil {
		utils.ErrorResponse(c, statusFromError(err), err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Command logs retrieved successfully", logs)
}

func parseLimit(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}

	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return limit
}
