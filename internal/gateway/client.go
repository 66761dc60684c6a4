package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"greendrake/r1/internal/config"
)

// Status is the gateway's result vocabulary, parsed into a closed set.
// Anything the gateway reports outside the known values maps to
// StatusUnrecognized; callers log it and leave the payment pending.
type Status string

const (
	StatusAccepted     Status = "accepted"
	StatusRefused      Status = "refused"
	StatusCancelled    Status = "cancelled"
	StatusPending      Status = "pending"
	StatusUnrecognized Status = "unrecognized"
)

// ParseStatus maps a raw gateway result code onto the Status set.
func ParseStatus(raw string) Status {
	switch raw {
	case "accepted", "paid", "ok":
		return StatusAccepted
	case "refused", "declined":
		return StatusRefused
	case "cancelled", "canceled":
		return StatusCancelled
	case "pending", "open":
		return StatusPending
	default:
		return StatusUnrecognized
	}
}

// InitializeRequest carries everything the gateway needs to open a checkout.
type InitializeRequest struct {
	CorrelationID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	CurrencyCode  string `json:"currency"`
	Description   string `json:"description"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	ReturnURL     string `json:"return_url"`
	CallbackURL   string `json:"callback_url"`
}

// InitializeResult is the checkout handle returned by the gateway.
type InitializeResult struct {
	CheckoutURL   string `json:"checkout_url"`
	CheckoutToken string `json:"checkout_token"`
}

// StatusResult is the authoritative payment status reported by the gateway.
type StatusResult struct {
	Status   Status
	Method   string
	PaidAt   *time.Time
	Metadata map[string]interface{}
}

// CallbackPayload is the body the gateway POSTs to the webhook endpoint.
// Raw retains the payload as delivered for audit storage on the Payment.
type CallbackPayload struct {
	CorrelationID string `json:"transaction_id"`
	Result        string `json:"result"`
	SiteID        string `json:"site_id"`
	Method        string `json:"method,omitempty"`
}

// ValidateCallback performs the gateway's authenticity check: the site id
// embedded in the callback must match the configured one. It is a coarse
// check, not a cryptographic signature; the authoritative status is always
// re-queried from the gateway before any state is applied.
func ValidateCallback(p CallbackPayload, configuredSiteID string) bool {
	return configuredSiteID != "" && p.SiteID == configuredSiteID
}

// Client is the payment gateway collaborator. Both calls are opaque network
// operations with a bounded timeout; failures surface as errors, never hangs.
type Client interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	CheckStatus(ctx context.Context, correlationID string) (*StatusResult, error)
}

// httpClient implements Client against the real gateway's JSON API.
type httpClient struct {
	cfg  *config.Config
	http *http.Client
}

// NewClient creates a gateway client from configuration.
func NewClient(cfg *config.Config) Client {
	return &httpClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.GatewayTimeout},
	}
}

// initializeResponse is the gateway's wire shape for checkout creation.
type initializeResponse struct {
	Success       bool     `json:"success"`
	ErrorCodes    []string `json:"error-codes"`
	CheckoutURL   string   `json:"checkout_url"`
	CheckoutToken string   `json:"checkout_token"`
}

// statusResponse is the gateway's wire shape for a status query.
type statusResponse struct {
	Success    bool                   `json:"success"`
	ErrorCodes []string               `json:"error-codes"`
	Status     string                 `json:"status"`
	Method     string                 `json:"method"`
	PaidAt     string                 `json:"paid_at"` // RFC3339 or empty
	Metadata   map[string]interface{} `json:"metadata"`
}

func (c *httpClient) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	jsonData, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.GatewayBaseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		log.Printf("Error creating gateway request for %s: %v", path, err)
		return fmt.Errorf("failed to create gateway request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.cfg.GatewayAPIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("Error calling gateway %s: %v", path, err)
		return fmt.Errorf("failed to contact payment gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("Error reading gateway response body for %s: %v", path, err)
		return fmt.Errorf("failed to read gateway response")
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("Gateway %s returned non-OK status: %d - Body: %s", path, resp.StatusCode, string(body))
		return fmt.Errorf("gateway call failed with status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		log.Printf("Error unmarshalling gateway response for %s: %v - Body: %s", path, err, string(body))
		return fmt.Errorf("failed to parse gateway response")
	}
	return nil
}

// Initialize opens a checkout for the given correlation id.
func (c *httpClient) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	body := struct {
		InitializeRequest
		SiteID string `json:"site_id"`
	}{InitializeRequest: req, SiteID: c.cfg.GatewaySiteID}

	var resp initializeResponse
	if err := c.post(ctx, "/v1/checkout", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		log.Printf("Gateway refused checkout initialization for %s. Error codes: %v", req.CorrelationID, resp.ErrorCodes)
		return nil, fmt.Errorf("gateway refused checkout initialization: %v", resp.ErrorCodes)
	}
	return &InitializeResult{CheckoutURL: resp.CheckoutURL, CheckoutToken: resp.CheckoutToken}, nil
}

// CheckStatus queries the authoritative status for a correlation id.
func (c *httpClient) CheckStatus(ctx context.Context, correlationID string) (*StatusResult, error) {
	body := struct {
		CorrelationID string `json:"transaction_id"`
		SiteID        string `json:"site_id"`
	}{CorrelationID: correlationID, SiteID: c.cfg.GatewaySiteID}

	var resp statusResponse
	if err := c.post(ctx, "/v1/status", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		log.Printf("Gateway status query unsuccessful for %s. Error codes: %v", correlationID, resp.ErrorCodes)
		return nil, fmt.Errorf("gateway status query unsuccessful: %v", resp.ErrorCodes)
	}

	result := &StatusResult{
		Status:   ParseStatus(resp.Status),
		Method:   resp.Method,
		Metadata: resp.Metadata,
	}
	if resp.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, resp.PaidAt); err == nil {
			result.PaidAt = &t
		} else {
			log.Printf("WARN: Gateway returned unparseable paid_at %q for %s", resp.PaidAt, correlationID)
		}
	}
	return result, nil
}
