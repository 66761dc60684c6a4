package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"greendrake/r1/internal/services"
	"greendrake/r1/internal/utils"
)

// RestPaymentHandler handles REST requests for payments.
type RestPaymentHandler struct {
	paymentService services.IPaymentService
}

// NewRestPaymentHandler creates a new RestPaymentHandler.
func NewRestPaymentHandler(paymentService services.IPaymentService) *RestPaymentHandler {
	return &RestPaymentHandler{paymentService: paymentService}
}

// ContactPaymentInput is the payload for POST /v1/listing/:id/contact-payment.
type ContactPaymentInput struct {
	Message        string   `json:"message"`
	PreferredSlots []string `json:"preferred_slots"`
}

// InitiateContactPayment handles POST /v1/listing/:id/contact-payment
func (h *RestPaymentHandler) InitiateContactPayment(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	// The body is optional; message and preferred slots default to empty.
	var input ContactPaymentInput
	_ = c.ShouldBindJSON(&input)

	payment, err := h.paymentService.InitializeContactPayment(c.Request.Context(), userID, listingID, input.Message, input.PreferredSlots)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		case errors.Is(err, services.ErrListingUnavailable):
			c.JSON(http.StatusConflict, gin.H{"error": "Listing is not available for contact requests"})
		case errors.Is(err, services.ErrAlreadyPaid):
			c.JSON(http.StatusConflict, gin.H{"error": "You have already paid to contact this listing"})
		default:
			_ = c.Error(err)
			// The pending payment may have been recorded even though checkout
			// could not start; tell the client to retry.
			c.JSON(http.StatusBadGateway, gin.H{"error": "Payment could not be initialized, please try again"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"correlation_id": payment.CorrelationID,
		"checkout_url":   payment.CheckoutURL,
		"amount":         payment.Amount,
		"currency_code":  payment.CurrencyCode,
		"status":         payment.Status,
	})
}

// GetPayment handles GET /v1/payment/:correlation_id
func (h *RestPaymentHandler) GetPayment(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	payment, err := h.paymentService.GetByCorrelationID(c.Request.Context(), c.Param("correlation_id"))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve payment"})
		}
		return
	}
	if payment.PayerID != userID && !isStaff(c) {
		// Do not reveal whether the transaction exists.
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		return
	}

	c.JSON(http.StatusOK, payment)
}

// MyPayments handles GET /v1/payments
func (h *RestPaymentHandler) MyPayments(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	payments, err := h.paymentService.ListByPayer(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve payments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payments})
}

// DemoCompletePayment handles POST /v1/payment/:correlation_id/demo-complete
func (h *RestPaymentHandler) DemoCompletePayment(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	err = h.paymentService.DemoComplete(c.Request.Context(), c.Param("correlation_id"), userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSandboxDisabled):
			c.JSON(http.StatusForbidden, gin.H{"error": "Demo completion is only available in sandbox mode"})
		case errors.Is(err, services.ErrUnknownTransaction):
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		case errors.Is(err, services.ErrNotRequester):
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete payment"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}

// RefundPayment handles POST /v1/staff/payment/:id/refund
func (h *RestPaymentHandler) RefundPayment(c *gin.Context) {
	staffID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	paymentID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment ID format"})
		return
	}

	err = h.paymentService.Refund(c.Request.Context(), paymentID, staffID)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		case errors.Is(err, services.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "Only completed payments can be refunded"})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refund payment"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "refunded"})
}
