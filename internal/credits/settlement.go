package credits

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/medianamer-platform/medianamer/internal/config"
)

// ErrSettlementNotConfigured signals missing remote credentials. Never
// retried.
var ErrSettlementNotConfigured = errors.New("settlement service credentials not configured")

// TerminalSettlementError marks a remote failure that retrying cannot fix:
// auth rejection, malformed request, or insufficient balance on the server.
type TerminalSettlementError struct {
	StatusCode int
	Reason     string
}

func (e *TerminalSettlementError) Error() string {
	return fmt.Sprintf("settlement rejected (HTTP %d): %s", e.StatusCode, e.Reason)
}

// SettlementResult is the remote service's confirmation.
type SettlementResult struct {
	Confirmed        bool `json:"confirmed"`
	RemainingBalance int  `json:"remaining_balance"`
}

// SettlementClient is the remote credit-settlement collaborator. Deduct is
// idempotent per requestID so a retried call cannot double-charge.
type SettlementClient interface {
	Deduct(ctx context.Context, ownerID string, amount int, requestID string) (*SettlementResult, error)
}

type httpSettlementClient struct {
	cfg    config.CreditsConfig
	client *http.Client
}

// NewSettlementClient builds the JSON/HTTP settlement client.
func NewSettlementClient(cfg config.CreditsConfig) SettlementClient {
	return &httpSettlementClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.SettlementTimeout},
	}
}

type settlementRequest struct {
	OwnerID   string `json:"owner_id"`
	Amount    int    `json:"amount"`
	RequestID string `json:"request_id"`
}

type settlementResponse struct {
	Confirmed        bool   `json:"confirmed"`
	RemainingBalance int    `json:"remaining_balance"`
	Reason           string `json:"reason,omitempty"`
}

func (c *httpSettlementClient) Deduct(ctx context.Context, ownerID string, amount int, requestID string) (*SettlementResult, error) {
	if c.cfg.SettlementURL == "" || c.cfg.SettlementAPIKey == "" {
		return nil, ErrSettlementNotConfigured
	}

	body, err := json.Marshal(settlementRequest{OwnerID: ownerID, Amount: amount, RequestID: requestID})
	if err != nil {
		return nil, fmt.Errorf("marshaling settlement request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SettlementURL+"/v1/deduct", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating settlement request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.SettlementAPIKey)
	req.Header.Set("Idempotency-Key", requestID)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling settlement service: %w", err)
	}
	defer resp.Body.Close()

	var sr settlementResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			return nil, fmt.Errorf("decoding settlement response: %w", err)
		}
		if !sr.Confirmed {
			// The server declined without an error status: treat as
			// insufficient-on-server, which retrying cannot fix.
			return nil, &TerminalSettlementError{StatusCode: resp.StatusCode, Reason: sr.Reason}
		}
		return &SettlementResult{Confirmed: true, RemainingBalance: sr.RemainingBalance}, nil
	}

	_ = json.NewDecoder(resp.Body).Decode(&sr)
	reason := sr.Reason
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired, http.StatusConflict:
		return nil, &TerminalSettlementError{StatusCode: resp.StatusCode, Reason: reason}
	default:
		// 5xx and everything else is transient.
		return nil, fmt.Errorf("settlement service HTTP %d: %s", resp.StatusCode, reason)
	}
}
