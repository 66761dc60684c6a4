package handlers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"greendrake/r1/internal/gateway"
	"greendrake/r1/internal/models"
	"greendrake/r1/internal/utils"
)

// --- MockListingService ---

type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) CreateListing(ctx context.Context, ownerID utils.SixID, title, address string, monthlyFee int64, currencyCode string) (*models.Listing, error) {
	args := m.Called(ctx, ownerID, title, address, monthlyFee, currencyCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) FindListingByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) FindListingsByOwner(ctx context.Context, ownerID utils.SixID) ([]models.Listing, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

func (m *MockListingService) Approve(ctx context.Context, listingID, staffID utils.SixID) error {
	args := m.Called(ctx, listingID, staffID)
	return args.Error(0)
}

func (m *MockListingService) Reject(ctx context.Context, listingID, staffID utils.SixID, reason string) error {
	args := m.Called(ctx, listingID, staffID, reason)
	return args.Error(0)
}

func (m *MockListingService) OverrideStatus(ctx context.Context, listingID, staffID utils.SixID, status models.PublicationStatus) error {
	args := m.Called(ctx, listingID, staffID, status)
	return args.Error(0)
}

func (m *MockListingService) IncrementViewCount(ctx context.Context, listingID utils.SixID) error {
	args := m.Called(ctx, listingID)
	return args.Error(0)
}

func (m *MockListingService) IncrementContactCount(ctx context.Context, listingID utils.SixID) error {
	args := m.Called(ctx, listingID)
	return args.Error(0)
}

func (m *MockListingService) MarkRented(ctx context.Context, listingID, tenantID utils.SixID) error {
	args := m.Called(ctx, listingID, tenantID)
	return args.Error(0)
}

// --- MockPaymentService ---

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) InitializeContactPayment(ctx context.Context, payerID, listingID utils.SixID, message string, preferredSlots []string) (*models.Payment, error) {
	args := m.Called(ctx, payerID, listingID, message, preferredSlots)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentService) InitializeCommissionPayment(ctx context.Context, payerID, listingID utils.SixID) (*models.Payment, error) {
	args := m.Called(ctx, payerID, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentService) ApplyGatewayResult(ctx context.Context, correlationID string, status gateway.Status, result *gateway.StatusResult, rawPayload bson.M) error {
	args := m.Called(ctx, correlationID, status, result, rawPayload)
	return args.Error(0)
}

func (m *MockPaymentService) DemoComplete(ctx context.Context, correlationID string, payerID utils.SixID) error {
	args := m.Called(ctx, correlationID, payerID)
	return args.Error(0)
}

func (m *MockPaymentService) Refund(ctx context.Context, paymentID, staffID utils.SixID) error {
	args := m.Called(ctx, paymentID, staffID)
	return args.Error(0)
}

func (m *MockPaymentService) GetByCorrelationID(ctx context.Context, correlationID string) (*models.Payment, error) {
	args := m.Called(ctx, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentService) ListByPayer(ctx context.Context, payerID utils.SixID) ([]models.Payment, error) {
	args := m.Called(ctx, payerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Payment), args.Error(1)
}

func (m *MockPaymentService) PollPendingPayments(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockPaymentService) ReconcileMissingCases(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// --- MockContactService ---

type MockContactService struct {
	mock.Mock
}

func (m *MockContactService) CreateFromPayment(ctx context.Context, payment *models.Payment) (*models.ContactCase, bool, error) {
	args := m.Called(ctx, payment)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.ContactCase), args.Bool(1), args.Error(2)
}

func (m *MockContactService) FindByID(ctx context.Context, caseID utils.SixID) (*models.ContactCase, error) {
	args := m.Called(ctx, caseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ContactCase), args.Error(1)
}

func (m *MockContactService) FindByPaymentID(ctx context.Context, paymentID utils.SixID) (*models.ContactCase, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ContactCase), args.Error(1)
}

func (m *MockContactService) ListByStatus(ctx context.Context, status models.ContactStatus) ([]models.ContactCase, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ContactCase), args.Error(1)
}

func (m *MockContactService) ListByRequester(ctx context.Context, requesterID utils.SixID) ([]models.ContactCase, error) {
	args := m.Called(ctx, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ContactCase), args.Error(1)
}

func (m *MockContactService) MarkContacted(ctx context.Context, caseID, staffID utils.SixID) error {
	args := m.Called(ctx, caseID, staffID)
	return args.Error(0)
}

func (m *MockContactService) ScheduleVisit(ctx context.Context, caseID, staffID utils.SixID, visit models.VisitRecord) error {
	args := m.Called(ctx, caseID, staffID, visit)
	return args.Error(0)
}

func (m *MockContactService) CompleteVisit(ctx context.Context, caseID, staffID utils.SixID, attended bool, feedback string) error {
	args := m.Called(ctx, caseID, staffID, attended, feedback)
	return args.Error(0)
}

func (m *MockContactService) StartNegotiation(ctx context.Context, caseID, staffID utils.SixID) error {
	args := m.Called(ctx, caseID, staffID)
	return args.Error(0)
}

func (m *MockContactService) CloseAsSuccess(ctx context.Context, caseID, staffID utils.SixID, commissionPaymentID *utils.SixID) error {
	args := m.Called(ctx, caseID, staffID, commissionPaymentID)
	return args.Error(0)
}

func (m *MockContactService) CloseAsFailed(ctx context.Context, caseID, staffID utils.SixID, reason string) error {
	args := m.Called(ctx, caseID, staffID, reason)
	return args.Error(0)
}

func (m *MockContactService) Cancel(ctx context.Context, caseID, requesterID utils.SixID) error {
	args := m.Called(ctx, caseID, requesterID)
	return args.Error(0)
}

func (m *MockContactService) AssignStaff(ctx context.Context, caseID, staffID utils.SixID) error {
	args := m.Called(ctx, caseID, staffID)
	return args.Error(0)
}

func (m *MockContactService) SetPriority(ctx context.Context, caseID utils.SixID, priority int) error {
	args := m.Called(ctx, caseID, priority)
	return args.Error(0)
}

func (m *MockContactService) AddNote(ctx context.Context, caseID, authorID utils.SixID, text string) error {
	args := m.Called(ctx, caseID, authorID, text)
	return args.Error(0)
}

// --- MockConfigService ---

type MockConfigService struct {
	mock.Mock
}

func (m *MockConfigService) GetAllPublic(ctx context.Context) (map[string]interface{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *MockConfigService) Get(ctx context.Context, key string) (interface{}, error) {
	args := m.Called(ctx, key)
	return args.Get(0), args.Error(1)
}

func (m *MockConfigService) GetInt(ctx context.Context, key string, defaultValue int) int {
	args := m.Called(ctx, key, defaultValue)
	return args.Int(0)
}

func (m *MockConfigService) GetInt64(ctx context.Context, key string, defaultValue int64) int64 {
	args := m.Called(ctx, key, defaultValue)
	return args.Get(0).(int64)
}

func (m *MockConfigService) GetString(ctx context.Context, key string, defaultValue string) string {
	args := m.Called(ctx, key, defaultValue)
	return args.String(0)
}

func (m *MockConfigService) GetBool(ctx context.Context, key string, defaultValue bool) bool {
	args := m.Called(ctx, key, defaultValue)
	return args.Bool(0)
}

func (m *MockConfigService) GetFloat64(ctx context.Context, key string, defaultValue float64) float64 {
	args := m.Called(ctx, key, defaultValue)
	return args.Get(0).(float64)
}

func (m *MockConfigService) GetDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	args := m.Called(ctx, key, defaultValue)
	return args.Get(0).(time.Duration)
}

func (m *MockConfigService) Load(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockConfigService) SubscribeToChanges(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockConfigService) SetConfigValue(ctx context.Context, key string, value interface{}, isPublic bool) error {
	args := m.Called(ctx, key, value, isPublic)
	return args.Error(0)
}

// --- MockGatewayClient ---

type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.InitializeResult), args.Error(1)
}

func (m *MockGatewayClient) CheckStatus(ctx context.Context, correlationID string) (*gateway.StatusResult, error) {
	args := m.Called(ctx, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.StatusResult), args.Error(1)
}
