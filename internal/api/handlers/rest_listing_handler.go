package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"greendrake/r1/internal/models"
	"greendrake/r1/internal/services"
	"greendrake/r1/internal/utils"
)

// RestListingHandler handles REST requests for listings.
type RestListingHandler struct {
	listingService services.IListingService
}

// NewRestListingHandler creates a new RestListingHandler.
func NewRestListingHandler(listingService services.IListingService) *RestListingHandler {
	return &RestListingHandler{listingService: listingService}
}

// GetListingByID handles GET /v1/listing/:id
func (h *RestListingHandler) GetListingByID(c *gin.Context) {
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	listing, err := h.listingService.FindListingByID(c.Request.Context(), listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve listing"})
		}
		return
	}

	// View counting is best effort; a failed increment never blocks the page.
	_ = h.listingService.IncrementViewCount(c.Request.Context(), listingID)

	c.JSON(http.StatusOK, listing)
}

// CreateListingInput is the payload for POST /v1/listing.
type CreateListingInput struct {
	Title        string `json:"title" binding:"required"`
	Address      string `json:"address"`
	MonthlyFee   int64  `json:"monthly_fee" binding:"required"`
	CurrencyCode string `json:"currency_code"`
}

// CreateListing handles POST /v1/listing
func (h *RestListingHandler) CreateListing(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var input CreateListingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	listing, err := h.listingService.CreateListing(c.Request.Context(), userID, input.Title, input.Address, input.MonthlyFee, input.CurrencyCode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, listing)
}

// MyListings handles GET /v1/my/listings
func (h *RestListingHandler) MyListings(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	listings, err := h.listingService.FindListingsByOwner(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve listings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": listings})
}

// ApproveListing handles POST /v1/staff/listing/:id/approve
func (h *RestListingHandler) ApproveListing(c *gin.Context) {
	staffID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	err = h.listingService.Approve(c.Request.Context(), listingID, staffID)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		case errors.Is(err, services.ErrAlreadyProcessed):
			c.JSON(http.StatusConflict, gin.H{"error": "Listing validation already processed"})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to approve listing"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "approved"})
}

// RejectListingInput is the payload for POST /v1/staff/listing/:id/reject.
type RejectListingInput struct {
	Reason string `json:"reason" binding:"required"`
}

// RejectListing handles POST /v1/staff/listing/:id/reject
func (h *RestListingHandler) RejectListing(c *gin.Context) {
	staffID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	var input RejectListingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Rejection reason is required"})
		return
	}

	err = h.listingService.Reject(c.Request.Context(), listingID, staffID, input.Reason)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		case errors.Is(err, services.ErrAlreadyProcessed):
			c.JSON(http.StatusConflict, gin.H{"error": "Listing validation already processed"})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reject listing"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

// OverrideStatusInput is the payload for POST /v1/staff/listing/:id/status.
type OverrideStatusInput struct {
	Status string `json:"status" binding:"required"`
}

// OverrideListingStatus handles POST /v1/staff/listing/:id/status
func (h *RestListingHandler) OverrideListingStatus(c *gin.Context) {
	staffID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	var input OverrideStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Target status is required"})
		return
	}

	err = h.listingService.OverrideStatus(c.Request.Context(), listingID, staffID, models.PublicationStatus(input.Status))
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		case errors.Is(err, services.ErrListingUnavailable):
			c.JSON(http.StatusConflict, gin.H{"error": "Listing must be approved before it can be made available"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": input.Status})
}
