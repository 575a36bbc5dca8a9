package handler

import (
	"net/http"

	"water-meter-platform/internal/assignment"
	"water-meter-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

// AssignmentHandler exposes the admin-only consistency repair pass.
type AssignmentHandler struct {
	manager *assignment.Manager
}

func NewAssignmentHandler(manager *assignment.Manager) *AssignmentHandler {
	return &AssignmentHandler{manager: manager}
}

func (h *AssignmentHandler) RegisterAdminRoutes(router *gin.RouterGroup) {
	assignments := router.Group("/assignments")
	{
		assignments.POST("/reconcile", h.Reconcile)
	}
}

func (h *AssignmentHandler) Reconcile(c *gin.Context) {
	report, err := h.manager.Reconcile(c.Request.Context())
	if err != nil {
		utils.ErrorResponse(c, statusFromError(err), err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Reconciliation completed", report)
}
