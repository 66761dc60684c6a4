package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/mongo"
	"greendrake/r1/internal/api/handlers"
	"greendrake/r1/internal/api/middleware"
	"greendrake/r1/internal/models"
	"greendrake/r1/internal/services"
	"greendrake/r1/internal/utils"
)

// fakeAuth injects an authenticated user the way AuthMiddleware would.
func fakeAuth(userID utils.SixID, isStaff bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, userID.String())
		c.Set(middleware.ContextKeyIsStaff, isStaff)
		c.Next()
	}
}

func TestPaymentHandler_InitiateContactPayment(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockPayments := new(MockPaymentService)
	handler := handlers.NewRestPaymentHandler(mockPayments)

	userID := utils.NewSixID()
	listingID := utils.NewSixID()

	r := gin.New()
	r.POST("/v1/listing/:id/contact-payment", fakeAuth(userID, false), handler.InitiateContactPayment)

	payment := &models.Payment{
		CorrelationID: "corr-abc",
		PayerID:       userID,
		ListingID:     listingID,
		Purpose:       models.PurposeContact,
		Amount:        2000,
		CurrencyCode:  "EUR",
		Status:        models.PaymentPending,
		CheckoutURL:   "https://gw.example/checkout/corr-abc",
	}
	mockPayments.On("InitializeContactPayment", mock.Anything, userID, listingID, "Hello", []string{"Sat"}).
		Return(payment, nil)

	body, _ := json.Marshal(map[string]interface{}{"message": "Hello", "preferred_slots": []string{"Sat"}})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/listing/"+listingID.String()+"/contact-payment", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "corr-abc", resp["correlation_id"])
	assert.Equal(t, "https://gw.example/checkout/corr-abc", resp["checkout_url"])
	mockPayments.AssertExpectations(t)
}

func TestPaymentHandler_InitiateContactPayment_Conflicts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userID := utils.NewSixID()
	listingID := utils.NewSixID()

	cases := []struct {
		name     string
		err      error
		expected int
	}{
		{"already paid", services.ErrAlreadyPaid, http.StatusConflict},
		{"listing unavailable", services.ErrListingUnavailable, http.StatusConflict},
		{"listing missing", mongo.ErrNoDocuments, http.StatusNotFound},
		{"gateway down", assert.AnError, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mockPayments := new(MockPaymentService)
			handler := handlers.NewRestPaymentHandler(mockPayments)
			r := gin.New()
			r.POST("/v1/listing/:id/contact-payment", fakeAuth(userID, false), handler.InitiateContactPayment)

			mockPayments.On("InitializeContactPayment", mock.Anything, userID, listingID, "", mock.Anything).
				Return(nil, tc.err)

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/v1/listing/"+listingID.String()+"/contact-payment", nil)
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.expected, w.Code)
		})
	}
}

func TestPaymentHandler_GetPayment_OwnershipHidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockPayments := new(MockPaymentService)
	handler := handlers.NewRestPaymentHandler(mockPayments)

	ownerID := utils.NewSixID()
	strangerID := utils.NewSixID()
	payment := &models.Payment{CorrelationID: "corr-x", PayerID: ownerID, Status: models.PaymentCompleted}
	mockPayments.On("GetByCorrelationID", mock.Anything, "corr-x").Return(payment, nil)

	r := gin.New()
	r.GET("/v1/payment/:correlation_id", fakeAuth(strangerID, false), handler.GetPayment)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/payment/corr-x", nil)
	r.ServeHTTP(w, req)

	// Someone else's payment looks like it doesn't exist
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentHandler_GetPayment_Owner(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockPayments := new(MockPaymentService)
	handler := handlers.NewRestPaymentHandler(mockPayments)

	ownerID := utils.NewSixID()
	payment := &models.Payment{CorrelationID: "corr-y", PayerID: ownerID, Status: models.PaymentPending}
	mockPayments.On("GetByCorrelationID", mock.Anything, "corr-y").Return(payment, nil)

	r := gin.New()
	r.GET("/v1/payment/:correlation_id", fakeAuth(ownerID, false), handler.GetPayment)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/payment/corr-y", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.Payment
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "corr-y", resp.CorrelationID)
}

func TestPaymentHandler_GetPayment_StaffCanReadAny(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockPayments := new(MockPaymentService)
	handler := handlers.NewRestPaymentHandler(mockPayments)

	ownerID := utils.NewSixID()
	staffID := utils.NewSixID()
	payment := &models.Payment{CorrelationID: "corr-z", PayerID: ownerID, Status: models.PaymentCompleted}
	mockPayments.On("GetByCorrelationID", mock.Anything, "corr-z").Return(payment, nil)

	r := gin.New()
	r.GET("/v1/payment/:correlation_id", fakeAuth(staffID, true), handler.GetPayment)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/payment/corr-z", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPaymentHandler_DemoComplete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userID := utils.NewSixID()

	cases := []struct {
		name     string
		err      error
		expected int
	}{
		{"ok", nil, http.StatusOK},
		{"sandbox off", services.ErrSandboxDisabled, http.StatusForbidden},
		{"unknown", services.ErrUnknownTransaction, http.StatusNotFound},
		{"not payer", services.ErrNotRequester, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mockPayments := new(MockPaymentService)
			handler := handlers.NewRestPaymentHandler(mockPayments)
			r := gin.New()
			r.POST("/v1/payment/:correlation_id/demo-complete", fakeAuth(userID, false), handler.DemoCompletePayment)

			mockPayments.On("DemoComplete", mock.Anything, "corr-demo", userID).Return(tc.err)

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/v1/payment/corr-demo/demo-complete", nil)
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.expected, w.Code)
		})
	}
}

func TestPaymentHandler_Refund(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockPayments := new(MockPaymentService)
	handler := handlers.NewRestPaymentHandler(mockPayments)

	staffID := utils.NewSixID()
	paymentID := utils.NewSixID()

	r := gin.New()
	r.POST("/v1/staff/payment/:id/refund", fakeAuth(staffID, true), handler.RefundPayment)

	mockPayments.On("Refund", mock.Anything, paymentID, staffID).Return(services.ErrInvalidTransition)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/staff/payment/"+paymentID.String()+"/refund", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	mockPayments.AssertExpectations(t)
}

func TestPaymentHandler_MyPayments(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockPayments := new(MockPaymentService)
	handler := handlers.NewRestPaymentHandler(mockPayments)

	userID := utils.NewSixID()
	mockPayments.On("ListByPayer", mock.Anything, userID).Return([]models.Payment{{CorrelationID: "a"}, {CorrelationID: "b"}}, nil)

	r := gin.New()
	r.GET("/v1/payments", fakeAuth(userID, false), handler.MyPayments)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/payments", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []models.Payment `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
}
