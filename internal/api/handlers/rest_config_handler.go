package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"greendrake/r1/internal/services"
)

// RestConfigHandler handles requests for the /config REST endpoint.
type RestConfigHandler struct {
	configService services.IConfigService
}

// NewRestConfigHandler creates a new RestConfigHandler.
func NewRestConfigHandler(configService services.IConfigService) *RestConfigHandler {
	return &RestConfigHandler{configService: configService}
}

// GetPublicConfig returns the publicly accessible configuration parameters.
// Handles GET /v1/config
func (h *RestConfigHandler) GetPublicConfig(c *gin.Context) {
	publicConfig, err := h.configService.GetAllPublic(c.Request.Context())
	if err != nil {
		_ = c.Error(err) // Attach error to context for potential logging middleware
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve configuration"})
		return
	}

	c.JSON(http.StatusOK, publicConfig)
}

// SetConfigInput is the payload for POST /v1/staff/config.
type SetConfigInput struct {
	Key    string      `json:"key" binding:"required"`
	Value  interface{} `json:"value" binding:"required"`
	Public bool        `json:"public"`
}

// SetConfig upserts a configuration parameter and broadcasts the change.
// Handles POST /v1/staff/config
func (h *RestConfigHandler) SetConfig(c *gin.Context) {
	var input SetConfigInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Key and value are required"})
		return
	}

	if err := h.configService.SetConfigValue(c.Request.Context(), input.Key, input.Value, input.Public); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update configuration"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
