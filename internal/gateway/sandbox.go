package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Sandbox is an in-process Client for development and tests. It hands out
// fabricated checkout handles and reports every initialized transaction as
// accepted once asked. Completion still flows through the exact same
// reconciliation path as the real gateway; the sandbox only replaces the
// network hop.
type Sandbox struct {
	mu     sync.Mutex
	known  map[string]InitializeRequest
	status map[string]Status
}

// NewSandbox creates a sandbox gateway.
func NewSandbox() *Sandbox {
	return &Sandbox{
		known:  make(map[string]InitializeRequest),
		status: make(map[string]Status),
	}
}

// Initialize records the transaction and returns a fake checkout handle.
func (s *Sandbox) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known[req.CorrelationID] = req
	s.status[req.CorrelationID] = StatusPending
	return &InitializeResult{
		CheckoutURL:   "https://sandbox.gateway.invalid/checkout/" + req.CorrelationID,
		CheckoutToken: "sandbox-" + req.CorrelationID,
	}, nil
}

// CheckStatus reports the sandbox state for a known transaction.
func (s *Sandbox) CheckStatus(ctx context.Context, correlationID string) (*StatusResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[correlationID]
	if !ok {
		return nil, fmt.Errorf("sandbox gateway has no transaction %s", correlationID)
	}
	result := &StatusResult{Status: st, Method: "sandbox"}
	if st == StatusAccepted {
		now := time.Now().UTC()
		result.PaidAt = &now
	}
	return result, nil
}

// Resolve marks a sandbox transaction with a final status, standing in for
// the shopper finishing checkout.
func (s *Sandbox) Resolve(correlationID string, st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.status[correlationID]; ok {
		s.status[correlationID] = st
	}
}
