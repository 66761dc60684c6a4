package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"greendrake/r1/internal/config"
	"greendrake/r1/internal/gateway"
	"greendrake/r1/internal/services"
)

// RestWebhookHandler receives payment result callbacks from the gateway.
//
// The response code is the acknowledgement protocol: 200 tells the gateway the
// delivery is handled (including no-op redeliveries), 403 rejects a callback
// that fails the site check, 404 reports an unknown transaction, and 500 asks
// the gateway to redeliver later.
type RestWebhookHandler struct {
	cfg            *config.Config
	gateway        gateway.Client
	paymentService services.IPaymentService
}

// NewRestWebhookHandler creates a new RestWebhookHandler.
func NewRestWebhookHandler(cfg *config.Config, gw gateway.Client, paymentService services.IPaymentService) *RestWebhookHandler {
	return &RestWebhookHandler{cfg: cfg, gateway: gw, paymentService: paymentService}
}

// PaymentCallback handles POST /v1/payment/callback
func (h *RestWebhookHandler) PaymentCallback(c *gin.Context) {
	var payload gateway.CallbackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed callback payload"})
		return
	}

	if !gateway.ValidateCallback(payload, h.cfg.GatewaySiteID) {
		log.Printf("WARN: Payment callback rejected: site id %q does not match (correlation %s).", payload.SiteID, payload.CorrelationID)
		c.JSON(http.StatusForbidden, gin.H{"error": "Site verification failed"})
		return
	}

	if _, err := h.paymentService.GetByCorrelationID(c.Request.Context(), payload.CorrelationID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown transaction"})
			return
		}
		log.Printf("WARN: Could not look up payment for callback correlation %s: %v", payload.CorrelationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lookup failed, please redeliver"})
		return
	}

	// The callback body is advisory only. The status that gets applied is
	// always re-queried from the gateway, so a forged or stale callback can
	// at worst trigger a lookup.
	result, err := h.gateway.CheckStatus(c.Request.Context(), payload.CorrelationID)
	if err != nil {
		log.Printf("WARN: Could not verify callback for correlation %s against the gateway: %v", payload.CorrelationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Status verification failed, please redeliver"})
		return
	}

	raw := bson.M{
		"transaction_id": payload.CorrelationID,
		"result":         payload.Result,
		"site_id":        payload.SiteID,
	}
	if payload.Method != "" {
		raw["method"] = payload.Method
	}

	err = h.paymentService.ApplyGatewayResult(c.Request.Context(), payload.CorrelationID, result.Status, result, raw)
	if err != nil {
		if errors.Is(err, services.ErrUnknownTransaction) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown transaction"})
			return
		}
		log.Printf("WARN: Failed to apply callback for correlation %s: %v", payload.CorrelationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed, please redeliver"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}
