package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const defaultRazorpayBaseURL = "https://api.razorpay.com/v1"

var (
	// ErrGatewayUnavailable means the gateway is misconfigured or rejected
	// our credentials; the client must not retry as if payment failed.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayTimeout means payment is not confirmed, not that it failed:
	// the gateway may still complete the charge asynchronously.
	ErrGatewayTimeout = errors.New("payment gateway timed out, payment not confirmed")
)

// RazorpayClient talks to the payment gateway's order API.
type RazorpayClient struct {
	keyID     string
	keySecret string
	baseURL   string
	http      *http.Client
}

func NewRazorpayClient(keyID, keySecret, baseURL string) *RazorpayClient {
	if baseURL == "" {
		baseURL = defaultRazorpayBaseURL
	}
	return &RazorpayClient{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

// GatewayOrder is the gateway's payment-intent object.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type gatewayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder requests a payment intent for the given amount in the
// gateway's smallest currency unit (paise).
func (c *RazorpayClient) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string, notes map[string]string) (*GatewayOrder, error) {
	if c.keyID == "" || c.keySecret == "" {
		return nil, ErrGatewayUnavailable
	}
	if amountPaise <= 0 {
		return nil, fmt.Errorf("gateway order amount must be positive, got %d", amountPaise)
	}
	if currency == "" {
		currency = DefaultCurrency
	}

	payload, err := json.Marshal(gatewayOrderRequest{
		Amount:   amountPaise,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, ErrGatewayTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gateway returned status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var order GatewayOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("%w: invalid gateway response", ErrGatewayUnavailable)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%w: gateway returned no order id", ErrGatewayUnavailable)
	}

	return &order, nil
}

// VerifySignature recomputes the HMAC-SHA256 signature over
// "gatewayOrderID|paymentID" with the merchant secret and compares it to the
// supplied value in constant time. The boolean result is the only outcome.
func (c *RazorpayClient) VerifySignature(gatewayOrderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.keySecret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
