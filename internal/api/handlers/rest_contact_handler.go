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

// RestContactHandler handles REST requests for contact cases.
type RestContactHandler struct {
	contactService services.IContactService
	paymentService services.IPaymentService
}

// NewRestContactHandler creates a new RestContactHandler.
func NewRestContactHandler(contactService services.IContactService, paymentService services.IPaymentService) *RestContactHandler {
	return &RestContactHandler{contactService: contactService, paymentService: paymentService}
}

// MyContacts handles GET /v1/my/contacts
func (h *RestContactHandler) MyContacts(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	cases, err := h.contactService.ListByRequester(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve contact requests"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cases})
}

// CancelContact handles POST /v1/contact/:id/cancel
func (h *RestContactHandler) CancelContact(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	caseID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid contact case ID format"})
		return
	}

	err = h.contactService.Cancel(c.Request.Context(), caseID, userID)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			c.JSON(http.StatusNotFound, gin.H{"error": "Contact case not found"})
		case errors.Is(err, services.ErrNotRequester):
			c.JSON(http.StatusNotFound, gin.H{"error": "Contact case not found"})
		case errors.Is(err, services.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "This contact request can no longer be cancelled"})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel contact request"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// caseID parses the :id path parameter.
func (h *RestContactHandler) caseID(c *gin.Context) (utils.SixID, bool) {
	caseID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid contact case ID format"})
		return utils.SixID{}, false
	}
	return caseID, true
}

// staffAction runs a case transition and maps its errors onto HTTP codes.
func (h *RestContactHandler) staffAction(c *gin.Context, action func() error, okStatus string) {
	err := action()
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			c.JSON(http.StatusNotFound, gin.H{"error": "Contact case not found"})
		case errors.Is(err, services.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": okStatus})
}

// ListContactsByStatus handles GET /v1/staff/contacts?status=pending
func (h *RestContactHandler) ListContactsByStatus(c *gin.Context) {
	status := models.ContactStatus(c.DefaultQuery("status", string(models.ContactPending)))

	cases, err := h.contactService.ListByStatus(c.Request.Context(), status)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve contact cases"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cases})
}

// GetContactCase handles GET /v1/staff/contact/:id
func (h *RestContactHandler) GetContactCase(c *gin.Context) {
	caseID, ok := h.caseID(c)
	if !ok {
		return
	}

	contactCase, err := h.contactService.FindByID(c.Request.Context(), caseID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contact case not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve contact case"})
		}
		return
	}

	c.JSON(http.StatusOK, contactCase)
}

// MarkContacted handles POST /v1/staff/contact/:id/contacted
func (h *RestContactHandler) MarkContacted(c *gin.Context) {
	staffID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	caseID, ok := h.caseID(c)
	if !ok {
		return
	}
	h.staffAction(c, func() error {
		return h.contactService.MarkContacted(c.Request.Context(), caseID, staffID)
	}, "contacted")
}

// ScheduleVisitInput is the payload for POST /v1/staff/contact/:id/visit.
type ScheduleVisitInput struct {
	Date    string `json:"date" binding:"required"`
	Time    string `json:"time"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

// ScheduleVisit handles POST /v1/staff/contact/:id/visit
func (h *RestContactHandler) ScheduleVisit(c *gin.Context) {
	staffID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	caseID, ok := h.caseID(c)
	if !ok {
		return
	}

	var input ScheduleVisitInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Visit date is required"})
		return
	}

	visit := models.VisitRecord{
		Date:    input.Date,
		Time:    input.Time,
		Address: input.Address,
		Notes:   input.Notes,
	}
	h.staffAction(c, func() error {
		return h.contactService.ScheduleVisit(c.Request.Context(), caseID, staffID, visit)
	}, "visit_scheduled")
}

// CompleteVisitInput is the payload for POST /v1/staff/contact/:id/visit-done.
type CompleteVisitInput struct {
	Attended bool   `json:"attended"`
	Feedback string `json:"feedback"`
}

// CompleteVisit handles POST /v1/staff/contact/:id/visit-done
func (h *RestContactHandler) CompleteVisit(c *gin.Context) {
	staffID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	caseID, ok := h.caseID(c)
	if !ok {
		return
	}

	var input CompleteVisitInput
	_ = c.ShouldBindJSON(&input)

	h.staffAction(c, func() error {
		return h.contactService.CompleteVisit(c.Request.Context(), caseID, staffID, input.Attended, input.Feedback)
	}, "visit_done")
}

// StartNegotiation handles POST /v1/staff/contact/:id/negotiate
func (h *RestContactHandler) StartNegotiation(c *gin.Context) {
	staffID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	caseID, ok := h.caseID(c)
	if !ok {
		return
	}
	h.staffAction(c, func() error {
		return h.contactService.StartNegotiation(c.Request.Context(), caseID, staffID)
	}, "negotiating")
}

// CloseSuccessInput is the payload for POST /v1/staff/contact/:id/success.
type CloseSuccessInput struct {
	CollectCommission bool `json:"collect_commission"`
}

// CloseAsSuccess handles POST /v1/staff/contact/:id/success. When commission
// collection is requested, a commission payment is initialized for the
// requester before the case is closed and linked into the outcome.
func (h *RestContactHandler) CloseAsSuccess(c *gin.Context) {
	staffID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	caseID, ok := h.caseID(c)
	if !ok {
		return
	}

	var input CloseSuccessInput
	_ = c.ShouldBindJSON(&input)

	var commissionPaymentID *utils.SixID
	if input.CollectCommission {
		contactCase, err := h.contactService.FindByID(c.Request.Context(), caseID)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Contact case not found"})
			} else {
				_ = c.Error(err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve contact case"})
			}
			return
		}
		payment, err := h.paymentService.InitializeCommissionPayment(c.Request.Context(), contactCase.RequesterID, contactCase.ListingID)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Commission payment could not be initialized"})
			return
		}
		commissionPaymentID = &payment.ID
	}

	h.staffAction(c, func() error {
		return h.contactService.CloseAsSuccess(c.Request.Context(), caseID, staffID, commissionPaymentID)
	}, "success")
}

// CloseFailedInput is the payload for POST /v1/staff/contact/:id/failed.
type CloseFailedInput struct {
	Reason string `json:"reason" binding:"required"`
}

// CloseAsFailed handles POST /v1/staff/contact/:id/failed
func (h *RestContactHandler) CloseAsFailed(c *gin.Context) {
	staffID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	caseID, ok := h.caseID(c)
	if !ok {
		return
	}

	var input CloseFailedInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failure reason is required"})
		return
	}

	h.staffAction(c, func() error {
		return h.contactService.CloseAsFailed(c.Request.Context(), caseID, staffID, input.Reason)
	}, "failed")
}

// AssignInput is the payload for POST /v1/staff/contact/:id/assign.
type AssignInput struct {
	StaffID string `json:"staff_id" binding:"required"`
}

// AssignContact handles POST /v1/staff/contact/:id/assign
func (h *RestContactHandler) AssignContact(c *gin.Context) {
	caseID, ok := h.caseID(c)
	if !ok {
		return
	}

	var input AssignInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Staff ID is required"})
		return
	}
	assigneeID, err := utils.ParseSixID(input.StaffID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid staff ID format"})
		return
	}

	h.staffAction(c, func() error {
		return h.contactService.AssignStaff(c.Request.Context(), caseID, assigneeID)
	}, "assigned")
}

// PriorityInput is the payload for POST /v1/staff/contact/:id/priority.
type PriorityInput struct {
	Priority int `json:"priority"`
}

// SetContactPriority handles POST /v1/staff/contact/:id/priority
func (h *RestContactHandler) SetContactPriority(c *gin.Context) {
	caseID, ok := h.caseID(c)
	if !ok {
		return
	}

	var input PriorityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	h.staffAction(c, func() error {
		return h.contactService.SetPriority(c.Request.Context(), caseID, input.Priority)
	}, "priority_set")
}

// NoteInput is the payload for POST /v1/staff/contact/:id/note.
type NoteInput struct {
	Text string `json:"text" binding:"required"`
}

// AddContactNote handles POST /v1/staff/contact/:id/note
func (h *RestContactHandler) AddContactNote(c *gin.Context) {
	staffID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	caseID, ok := h.caseID(c)
	if !ok {
		return
	}

	var input NoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Note text is required"})
		return
	}

	h.staffAction(c, func() error {
		return h.contactService.AddNote(c.Request.Context(), caseID, staffID, input.Text)
	}, "note_added")
}
