package handler

import (
	"net/http"
	"strconv"

	"water-meter-platform/internal/device/model"
	"water-meter-platform/internal/device/service"
	"water-meter-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type DeviceHandler struct {
	service *service.Service
}

func NewDeviceHandler(service *service.Service) *DeviceHandler {
	return &DeviceHandler{service: service}
}

func (h *DeviceHandler) RegisterRoutes(router *gin.RouterGroup) {
	devices := router.Group("/devices")
	{
		devices.GET("", h.ListDevices)
		devices.GET("/:id", h.GetDevice)
		devices.GET("/meter/:meterId", h.GetDeviceByMeterID)
		devices.GET("/meter/:meterId/readings", h.ListReadingsByMeterID)
		devices.GET("/:id/readings", h.ListReadings)
		devices.GET("/:id/readings/latest", h.LatestReading)
	}
}

func (h *DeviceHandler) RegisterAdminRoutes(router *gin.RouterGroup) {
	devices := router.Group("/devices")
	{
		devices.POST("", h.CreateDevice)
		devices.PUT("/:id", h.UpdateDevice)
		devices.DELETE("/:id", h.DeleteDevice)
		devices.POST("/:id/readings", h.AddManualReading)
		devices.GET("/statistics", h.GetStatistics)
	}
}

func (h *DeviceHandler) CreateDevice(c *gin.Context) {
	var req model.CreateDeviceRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	device, err := h.service.CreateDevice(c.Request.Context(), &req)
	if err != nil {
		utils.ErrorResponse(c, statusFromError(err), err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Device created successfully", device)
}

func (h *DeviceHandler) GetDevice(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	device, err := h.service.GetDevice(c.Request.Context(), deviceID)
	if err != nil {
		utils.ErrorResponse(c, statusFromError(err), err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device retrieved successfully", device)
}

func (h *DeviceHandler) GetDeviceByMeterID(c *gin.Context) {
	meterID := c.Param("meterId")
	if meterID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Meter ID is required")
		return
	}

	device, err := h.service.GetDeviceByMeterID(c.Request.Context(), meterID)
	if err != nil {
		utils.ErrorResponse(c, statusFromError(err), err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device retrieved successfully", device)
}

func (h *DeviceHandler) ListDevices(c *gin.Context) {
	var filter model.DeviceFilterRequest

	if err := c.ShouldBindQuery(&filter); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid query parameters")
		return
	}

	devices, err := h.service.ListDevices(c.Request.Context(), &filter)
	if err != nil {
		utils.ErrorResponse(c, statusFromError(err), err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Devices retrieved successfully", devices)
}

func (h *DeviceHandler) UpdateDevice(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	var req model.UpdateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	device, err := h.service.UpdateDevice(c.Request.Context(), deviceID, &req)
	if err != nil {
		utils.ErrorResponse(c, statusFromError(err), err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device updated successfully", device)
}

func (h *DeviceHandler) DeleteDevice(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	if err := h.service.DeleteDevice(c.Request.Context(), deviceID); err != nil {
		utils.ErrorResponse(c, statusFromError(err), err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device deleted successfully", nil)
}

func (h *DeviceHandler) AddManualReading(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	var req model.ManualReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	reading, err := h.service.AddManualReading(c.Request.Context(), deviceID, *req.VolumeReading)
	if err != nil {
		utils.ErrorResponse(c, statusFromError(err), err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Reading recorded successfully", reading)
}

func (h *DeviceHandler) ListReadings(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	readings, err := h.service.ListReadings(c.Request.Context(), deviceID, limit)
	if err != nil {
		utils.ErrorResponse(c, statusFromError(err), err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Readings retrieved successfully", readings)
}

func (h *DeviceHandler) ListReadingsByMeterID(c *gin.Context) {
	meterID := c.Param("meterId")
	if meterID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Meter ID is required")
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	readings, err := h.service.ListReadingsByMeterID(c.Request.Context(), meterID, limit)
	if err != nil {
		utils.ErrorResponse(c, statusFromError(err), err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Readings retrieved successfully", readings)
}

func (h *DeviceHandler) LatestReading(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	reading, err := h.service.LatestReading(c.Request.Context(), deviceID)
	if err != nil {
		utils.ErrorResponse(c, statusFromError(err), err.Error())
		return
	}
	if reading == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "No readings recorded for this device")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Reading retrieved successfully", reading)
}

func (h *DeviceHandler) GetStatistics(c *gin.Context) {
	stats, err := h.service.GetStatistics(c.Request.Context())
	if err != nil {
		utils.ErrorResponse(c, statusFromError(err), err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Statistics retrieved successfully", stats)
}
