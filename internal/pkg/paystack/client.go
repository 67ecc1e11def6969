package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds Paystack API configuration
type Config struct {
	BaseURL   string
	SecretKey string
	PublicKey string
	Timeout   time.Duration
}

// Client represents Paystack payment gateway client
type Client struct {
	httpClient *http.Client
	config     Config
}

// InitializeRequest represents a transaction initialization request.
// Amount is in kobo (minor currency units).
type InitializeRequest struct {
	Email       string   `json:"email"`
	Amount      int64    `json:"amount"`
	Reference   string   `json:"reference,omitempty"`
	CallbackURL string   `json:"callback_url,omitempty"`
	Channels    []string `json:"channels,omitempty"`
}

// InitializeResponse represents a transaction initialization response
type InitializeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Verification represents the outcome of a transaction verify call
type Verification struct {
	Status    string `json:"status"` // success, failed, abandoned, pending
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"` // kobo
	Channel   string `json:"channel"`
	PaidAt    string `json:"paid_at"`
}

// Success reports whether the gateway settled the payment
func (v *Verification) Success() bool {
	return v != nil && v.Status == "success"
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// NewClient creates new Paystack API client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
	}
}

// InitializeTransaction asks Paystack to set up a charge and returns the
// authorization URL the user is redirected to
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("validation error: amount must be > 0")
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, fmt.Errorf("validation error: email must be non-empty")
	}

	body, err := c.call(ctx, http.MethodPost, "/transaction/initialize", req)
	if err != nil {
		return nil, err
	}

	var out InitializeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse paystack response: %w", err)
	}
	return &out, nil
}

// VerifyTransaction fetches the settled state of a transaction by reference
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Verification, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, fmt.Errorf("validation error: reference must be non-empty")
	}

	body, err := c.call(ctx, http.MethodGet, "/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}

	var out Verification
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse paystack response: %w", err)
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, method, path string, payload interface{}) (json.RawMessage, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("paystack client is not initialized")
	}
	if strings.TrimSpace(c.config.BaseURL) == "" {
		return nil, fmt.Errorf("paystack config error: base_url is empty")
	}
	if strings.TrimSpace(c.config.SecretKey) == "" {
		return nil, fmt.Errorf("paystack config error: secret_key is empty")
	}

	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode paystack request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	base := strings.TrimRight(c.config.BaseURL, "/")
	url := base + path

	timeout := c.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("paystack api call failed: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.SecretKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("paystack api call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("paystack api call failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("paystack api returned non-2xx status: %d, body: %s", resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse paystack envelope: %w", err)
	}
	if !env.Status {
		return nil, fmt.Errorf("paystack api error: %s", env.Message)
	}

	return env.Data, nil
}
