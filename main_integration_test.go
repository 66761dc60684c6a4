package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/joho/godotenv"

	"greendrake/r1/internal/auth"
	"greendrake/r1/internal/models"
	"greendrake/r1/internal/utils"
)

const (
	testAppBinary     = "./r1_test_app"
	testAppPort       = "8089"
	testServiceApiPort = "8091"
	testAppURL        = "http://localhost:" + testAppPort
	testJwtSecret     = "integration-test-secret"
	testGatewaySiteID = "site-integration"
	startupTimeout    = 15 * time.Second
	pingEndpoint      = testAppURL + "/v1/ping"
)

// Seeded accounts, created in TestMain before the server starts.
var (
	tenantID = utils.NewSixID()
	ownerID  = utils.NewSixID()
	staffID  = utils.NewSixID()
)

// TestMain manages the setup and teardown of the integration test environment.
func TestMain(m *testing.M) {
	defer func() {
		log.Println("Integration Test Teardown: Cleaning up test binary...")
		_ = os.Remove(testAppBinary)
	}()

	log.Println("Integration Test Setup: Building application...")
	godotenv.Load()
	buildCmd := exec.Command("go", "build", "-o", testAppBinary, ".")
	buildOutput, err := buildCmd.CombinedOutput()
	if err != nil {
		log.Printf("Failed to build application: %v\nOutput:\n%s", err, string(buildOutput))
		os.Exit(1)
	}
	log.Printf("Integration Test Setup: Build successful: %s", testAppBinary)

	if seedErr := seedTestData(); seedErr != nil {
		log.Printf("Failed to seed test data: %v", seedErr)
		os.Exit(1)
	}
	defer cleanupTestData()

	// --- Start API Process ---
	apiCmd := exec.Command(testAppBinary, "-m", "api")
	apiCmd.Env = append(os.Environ(),
		"API_PORT="+testAppPort,
		"SERVICE_API_PORT="+testServiceApiPort,
		"JWT_SECRET="+testJwtSecret,
		"GIN_MODE=release",
		"GATEWAY_SANDBOX=true",
		"GATEWAY_SITE_ID="+testGatewaySiteID,
		"CONTACT_FEE=2000",
		"COMMISSION_PERCENT=50",
		"RATE_LIMIT_BUCKET_SIZE=500",
		"RATE_LIMIT_REFILL_RATE=500",
		"REDIS_ADDR=localhost:6379",
	)
	apiCmd.Stderr = os.Stderr
	apiCmd.Stdout = os.Stdout

	log.Println("Integration Test Setup: Starting API process...")
	if err := apiCmd.Start(); err != nil {
		log.Printf("Failed to start API process: %v", err)
		os.Exit(1)
	}
	log.Printf("Integration Test Setup: API process started (PID: %d)...", apiCmd.Process.Pid)

	defer func() {
		log.Println("Integration Test Teardown: Shutting down application process...")
		if processErr := apiCmd.Process.Signal(syscall.SIGTERM); processErr != nil {
			log.Printf("Integration Test Teardown: Failed to send SIGTERM to API Process: %v. Killing.", processErr)
			_ = apiCmd.Process.Kill()
		} else {
			_, waitErr := apiCmd.Process.Wait()
			if waitErr != nil && waitErr.Error() != "signal: killed" && waitErr.Error() != "exit status 1" {
				log.Printf("Integration Test Teardown: Error waiting for API Process exit: %v", waitErr)
			}
		}
		log.Println("Integration Test Teardown: Application process stopped.")
	}()

	// Wait for the API application to be ready by polling the ping endpoint
	log.Printf("Integration Test Setup: Waiting for API application to become ready at %s...", pingEndpoint)
	startTime := time.Now()
	ready := false
	for time.Since(startTime) < startupTimeout {
		resp, err := http.Get(pingEndpoint)
		if err == nil && resp.StatusCode == http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if string(bodyBytes) == "pong" {
				log.Println("Integration Test Setup: Application is ready!")
				ready = true
				break
			}
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(200 * time.Millisecond)
	}

	if !ready {
		log.Printf("Application failed to start within %v", startupTimeout)
		os.Exit(1)
	}

	log.Println("Integration Test Setup: Running tests...")
	exitCode := m.Run()
	log.Printf("Integration Test Teardown: Tests finished with exit code %d.", exitCode)
	// Let TestMain return normally so the deferred teardown runs.
}

// tokenFor mints a JWT the way the auth service would issue one.
func tokenFor(t *testing.T, userID utils.SixID, isStaff bool) string {
	t.Helper()
	token, err := auth.GenerateJWT(userID, isStaff, testJwtSecret, time.Hour)
	require.NoError(t, err, "Failed to mint test JWT")
	return token
}

// apiRequest performs a JSON request against the running server and decodes
// the response body into a generic map.
func apiRequest(t *testing.T, method, path string, payload interface{}, token string) (map[string]interface{}, *http.Response) {
	t.Helper()
	var bodyReader io.Reader
	if payload != nil {
		bodyBytes, err := json.Marshal(payload)
		require.NoError(t, err, "Failed to marshal request payload")
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, testAppURL+path, bodyReader)
	require.NoError(t, err, "Failed to create HTTP request")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "Request to %s should not fail", path)

	respBodyBytes, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, readErr, "Failed to read response body")

	var respBody map[string]interface{}
	if unmarshalErr := json.Unmarshal(respBodyBytes, &respBody); unmarshalErr != nil {
		respBody = map[string]interface{}{"raw_body": string(respBodyBytes)}
	}
	return respBody, resp
}

// createApprovedListing drives a listing through creation and staff approval
// and returns its id.
func createApprovedListing(t *testing.T, title string) string {
	t.Helper()
	ownerToken := tokenFor(t, ownerID, false)
	staffToken := tokenFor(t, staffID, true)

	created, resp := apiRequest(t, "POST", "/v1/listing", map[string]interface{}{
		"title":       title,
		"address":     "12 Example Lane",
		"monthly_fee": 60000,
	}, ownerToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "Listing creation status: %+v", created)
	listingID, ok := created["id"].(string)
	require.True(t, ok, "Created listing response should carry an id: %+v", created)

	_, resp = apiRequest(t, "POST", "/v1/staff/listing/"+listingID+"/approve", nil, staffToken)
	require.Equal(t, http.StatusOK, resp.StatusCode, "Listing approval should succeed")

	return listingID
}

func TestIntegration_Ping(t *testing.T) {
	resp, err := http.Get(pingEndpoint)
	require.NoError(t, err, "Request to %s should not fail", pingEndpoint)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	bodyBytes, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Equal(t, "pong", string(bodyBytes))
}

func TestIntegration_PublicConfig(t *testing.T) {
	body, resp := apiRequest(t, "GET", "/v1/config", nil, "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "APP_NAME")
	assert.Contains(t, body, "CONTACT_FEE")
}

func TestIntegration_StaffRoutesRequireStaff(t *testing.T) {
	tenantToken := tokenFor(t, tenantID, false)

	_, resp := apiRequest(t, "GET", "/v1/staff/contacts", nil, tenantToken)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp = apiRequest(t, "GET", "/v1/staff/contacts", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// TestIntegration_ContactPaymentFlow walks the whole paid-introduction
// lifecycle: listing approval, contact fee checkout, sandbox completion,
// webhook redelivery, staff mediation and the final rented close.
func TestIntegration_ContactPaymentFlow(t *testing.T) {
	tenantToken := tokenFor(t, tenantID, false)
	staffToken := tokenFor(t, staffID, true)

	listingID := createApprovedListing(t, fmt.Sprintf("Sunny room %d", time.Now().UnixNano()))

	// The approved listing is publicly visible and available.
	listing, resp := apiRequest(t, "GET", "/v1/listing/"+listingID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "available", listing["publication_status"])

	// Tenant pays the contact fee.
	payment, resp := apiRequest(t, "POST", "/v1/listing/"+listingID+"/contact-payment", map[string]interface{}{
		"message": "Is the room still free from October?",
	}, tenantToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "Contact payment initiation: %+v", payment)
	correlationID, ok := payment["correlation_id"].(string)
	require.True(t, ok, "Payment response should carry a correlation_id")
	assert.NotEmpty(t, payment["checkout_url"])
	assert.Equal(t, "pending", payment["status"])
	assert.Equal(t, float64(2000), payment["amount"])

	// Sandbox completion stands in for the shopper finishing checkout.
	_, resp = apiRequest(t, "POST", "/v1/payment/"+correlationID+"/demo-complete", nil, tenantToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The completed payment opened a contact case.
	contacts, resp := apiRequest(t, "GET", "/v1/my/contacts", nil, tenantToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	caseList, ok := contacts["data"].([]interface{})
	require.True(t, ok, "my/contacts should return a data array")
	var contactCase map[string]interface{}
	for _, raw := range caseList {
		c := raw.(map[string]interface{})
		if c["listing_id"] == listingID {
			contactCase = c
		}
	}
	require.NotNil(t, contactCase, "A contact case for the paid listing should exist")
	assert.Equal(t, "pending", contactCase["status"])
	caseID := contactCase["id"].(string)

	// A redelivered gateway callback for the same transaction is a no-op ack.
	callback, resp := apiRequest(t, "POST", "/v1/payment/callback", map[string]interface{}{
		"transaction_id": correlationID,
		"result":         "accepted",
		"site_id":        testGatewaySiteID,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, "Webhook redelivery should ack: %+v", callback)

	// Paying the same listing again is refused.
	conflict, resp := apiRequest(t, "POST", "/v1/listing/"+listingID+"/contact-payment", nil, tenantToken)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "Second contact payment: %+v", conflict)

	// Staff mediate the case through to a successful rental.
	for _, step := range []struct {
		path    string
		payload interface{}
	}{
		{"/contacted", nil},
		{"/visit", map[string]interface{}{"date": "2026-09-20", "time": "14:00"}},
		{"/visit-done", map[string]interface{}{"attended": true, "feedback": "liked the room"}},
		{"/negotiate", nil},
		{"/success", nil},
	} {
		stepBody, resp := apiRequest(t, "POST", "/v1/staff/contact/"+caseID+step.path, step.payload, staffToken)
		require.Equal(t, http.StatusOK, resp.StatusCode, "Staff step %s: %+v", step.path, stepBody)
	}

	// The listing is now rented.
	listing, resp = apiRequest(t, "GET", "/v1/listing/"+listingID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "rented", listing["publication_status"])

	// The closed case carries the outcome.
	closedCase, resp := apiRequest(t, "GET", "/v1/staff/contact/"+caseID, nil, staffToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", closedCase["status"])
}

func TestIntegration_WebhookRejections(t *testing.T) {
	// Unknown transaction: the gateway is told to stop redelivering.
	_, resp := apiRequest(t, "POST", "/v1/payment/callback", map[string]interface{}{
		"transaction_id": "no-such-transaction",
		"result":         "accepted",
		"site_id":        testGatewaySiteID,
	}, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Wrong site id: rejected before any lookup.
	_, resp = apiRequest(t, "POST", "/v1/payment/callback", map[string]interface{}{
		"transaction_id": "whatever",
		"result":         "accepted",
		"site_id":        "someone-else",
	}, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestIntegration_CancelContact(t *testing.T) {
	tenantToken := tokenFor(t, tenantID, false)

	listingID := createApprovedListing(t, fmt.Sprintf("Quiet flat %d", time.Now().UnixNano()))

	payment, resp := apiRequest(t, "POST", "/v1/listing/"+listingID+"/contact-payment", nil, tenantToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	correlationID := payment["correlation_id"].(string)

	_, resp = apiRequest(t, "POST", "/v1/payment/"+correlationID+"/demo-complete", nil, tenantToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	contacts, _ := apiRequest(t, "GET", "/v1/my/contacts", nil, tenantToken)
	var caseID string
	for _, raw := range contacts["data"].([]interface{}) {
		c := raw.(map[string]interface{})
		if c["listing_id"] == listingID {
			caseID = c["id"].(string)
		}
	}
	require.NotEmpty(t, caseID, "A contact case for the paid listing should exist")

	_, resp = apiRequest(t, "POST", "/v1/contact/"+caseID+"/cancel", nil, tenantToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Cancelling again is refused: the case is already terminal.
	_, resp = apiRequest(t, "POST", "/v1/contact/"+caseID+"/cancel", nil, tenantToken)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

// seedTestData connects to MongoDB and inserts the test accounts.
func seedTestData() error {
	log.Println("Seeding test data...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoURI := os.Getenv("MONGO_URI")
	dbName := os.Getenv("MONGO_DB_NAME")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB for seeding: %w", err)
	}
	defer func() {
		if err := client.Disconnect(ctx); err != nil {
			log.Printf("Error disconnecting seeding client: %v", err)
		}
	}()

	db := client.Database(dbName)
	usersCollection := db.Collection("users")

	now := time.Now().UTC()
	users := []interface{}{
		models.User{Base: models.Base{ID: tenantID}, Name: "Integration Tenant", Email: "tenant@integration.test", CreatedAt: now, UpdatedAt: now},
		models.User{Base: models.Base{ID: ownerID}, Name: "Integration Owner", Email: "owner@integration.test", CreatedAt: now, UpdatedAt: now},
		models.User{Base: models.Base{ID: staffID}, Name: "Integration Staff", Email: "staff@integration.test", IsStaff: true, CreatedAt: now, UpdatedAt: now},
	}
	if _, err := usersCollection.InsertMany(ctx, users); err != nil {
		return fmt.Errorf("failed to seed test users: %w", err)
	}
	log.Println("Successfully seeded test users.")
	return nil
}

// cleanupTestData removes the seeded accounts and everything the tests created.
func cleanupTestData() {
	log.Println("Cleaning up seeded test data...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoURI := os.Getenv("MONGO_URI")
	dbName := os.Getenv("MONGO_DB_NAME")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Printf("Failed to connect to MongoDB for cleanup: %v", err)
		return
	}
	defer func() {
		if err := client.Disconnect(ctx); err != nil {
			log.Printf("Error disconnecting cleanup client: %v", err)
		}
	}()

	db := client.Database(dbName)
	seededIDs := bson.A{tenantID, ownerID, staffID}

	if _, err := db.Collection("users").DeleteMany(ctx, bson.M{"_id": bson.M{"$in": seededIDs}}); err != nil {
		log.Printf("Failed to delete seeded users during cleanup: %v", err)
	}
	if _, err := db.Collection("listings").DeleteMany(ctx, bson.M{"owner_id": ownerID}); err != nil {
		log.Printf("Failed to delete test listings during cleanup: %v", err)
	}
	if _, err := db.Collection("payments").DeleteMany(ctx, bson.M{"payer_id": tenantID}); err != nil {
		log.Printf("Failed to delete test payments during cleanup: %v", err)
	}
	if _, err := db.Collection("contact_cases").DeleteMany(ctx, bson.M{"requester_id": tenantID}); err != nil {
		log.Printf("Failed to delete test contact cases during cleanup: %v", err)
	}

	log.Println("Finished cleaning up seeded data.")
}
