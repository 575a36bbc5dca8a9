package handler

import (
	"io"
	"net/http"
	"strings"

	"water-meter-platform/internal/telemetry"
	"water-meter-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

// MeterDataHandler is the HTTP ingress for raw meter reports. Field gateways
// post either a plain-text body or a small JSON wrapper; both carry the same
// `KEY:value;...` payload the MQTT ingress receives.
type MeterDataHandler struct {
	pipeline *telemetry.Pipeline
}

func NewMeterDataHandler(pipeline *telemetry.Pipeline) *MeterDataHandler {
	return &MeterDataHandler{pipeline: pipeline}
}

func (h *MeterDataHandler) RegisterRoutes(router *gin.RouterGroup) {
	meterdata := router.Group("/meterdata")
	{
		meterdata.POST("", h.Ingest)
	}
}

func (h *MeterDataHandler) RegisterAdminRoutes(router *gin.RouterGroup) {
	meterdata := router.Group("/meterdata")
	{
		meterdata.GET("/metrics", h.GetMetrics)
	}
}

type meterDataEnvelope struct {
	Message string `json:"message"`
	Text    string `json:"text"`
}

func (h *MeterDataHandler) Ingest(c *gin.Context) {
	raw, err := extractPayload(c)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Unable to read request body")
		return
	}

	if strings.TrimSpace(raw) == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Empty report payload")
		return
	}

	result, err := h.pipeline.Ingest(c.Request.Context(), raw)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	if result.State == telemetry.StateRejected {
		status := http.StatusBadRequest
		if result.Reason == telemetry.ReasonUnknownDevice {
			status = http.StatusNotFound
		}
		c.JSON(status, utils.APIResponse{
			Success: false,
			Message: result.Response,
			Data:    result,
		})
		return
	}

	utils.SuccessResponse(c, http.StatusOK, result.Response, result)
}

func (h *MeterDataHandler) GetMetrics(c *gin.Context) {
	metrics := h.pipeline.Metrics()
	utils.SuccessResponse(c, http.StatusOK, "Ingestion metrics retrieved successfully", metrics)
}

func extractPayload(c *gin.Context) (string, error) {
	contentType := c.ContentType()

	if strings.Contains(contentType, "application/json") {
		var envelope meterDataEnvelope
		if err := c.ShouldBindJSON(&envelope); err != nil {
			return "", err
		}
		if envelope.Message != "" {
			return envelope.Message, nil
		}
		return envelope.Text, nil
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
