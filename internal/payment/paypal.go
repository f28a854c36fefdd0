package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// PayPalOptions configures the Orders v2 client.
type PayPalOptions struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	HTTPClient   *http.Client
}

// PayPal talks to the PayPal Orders v2 API using client-credentials tokens.
type PayPal struct {
	clientID     string
	clientSecret string
	baseURL      string
	httpClient   *http.Client
	now          func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	Amount      amount `json:"amount"`
	Description string `json:"description,omitempty"`
}

type createOrderRequest struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func NewPayPal(opts PayPalOptions) (*PayPal, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, errors.New("paypal: client id and secret are required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api-m.sandbox.paypal.com"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &PayPal{
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		baseURL:      baseURL,
		httpClient:   client,
		now:          time.Now,
	}, nil
}

func (p *PayPal) CreateOrder(ctx context.Context, order Order) (string, error) {
	body := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			Amount:      amount{CurrencyCode: order.Currency, Value: order.Amount},
			Description: order.Description,
		}},
	}
	var out orderResponse
	if err := p.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("paypal: order response missing id")
	}
	return out.ID, nil
}

func (p *PayPal) CaptureOrder(ctx context.Context, orderRef string) (Status, error) {
	path := "/v2/checkout/orders/" + url.PathEscape(orderRef) + "/capture"
	var out orderResponse
	if err := p.do(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return "", err
	}
	return Status(out.Status), nil
}

func (p *PayPal) do(ctx context.Context, method, path string, payload, out any) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("paypal: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("paypal: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paypal: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("paypal: decode response: %w", err)
	}
	return nil
}

func (p *PayPal) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("paypal: create token request: %w", err)
	}
	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", decodeAPIError(resp)
	}
	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("paypal: decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("paypal: empty access token")
	}

	p.token = tok.AccessToken
	// refresh a minute early
	p.tokenExpiry = p.now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return p.token, nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var apiErr apiError
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Name != "" {
		return fmt.Errorf("paypal: status %d: %s: %s", resp.StatusCode, apiErr.Name, apiErr.Message)
	}
	return fmt.Errorf("paypal: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}

var _ Processor = (*PayPal)(nil)
