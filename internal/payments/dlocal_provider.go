package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/montebazar/api/internal/domain"
)

const (
	dlocalProductionBaseURL = "https://api.dlocalgo.com"
	dlocalSandboxBaseURL    = "https://api-sbx.dlocalgo.com"

	dlocalRequestTimeout = 15 * time.Second
)

// DLocalLogger defines the logging contract for dLocal Go operations.
type DLocalLogger func(ctx context.Context, event string, fields map[string]any)

type dlocalHTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DLocalProviderConfig configures the DLocalProvider.
type DLocalProviderConfig struct {
	APIKey          string
	SecretKey       string
	Environment     string
	Country         string
	NotificationURL string
	BaseURL         string
	HTTPClient      dlocalHTTPDoer
	Logger          DLocalLogger
	Clock           func() time.Time
}

// DLocalProvider implements Provider against the dLocal Go hosted payments API.
type DLocalProvider struct {
	apiKey          string
	secretKey       string
	baseURL         string
	country         string
	notificationURL string
	httpClient      dlocalHTTPDoer
	clock           func() time.Time
	logger          DLocalLogger
}

// NewDLocalProvider constructs the adapter using the given configuration.
func NewDLocalProvider(cfg DLocalProviderConfig) (*DLocalProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if apiKey == "" || secretKey == "" {
		return nil, errors.New("dlocal: api key and secret key are required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		if strings.EqualFold(strings.TrimSpace(cfg.Environment), "production") {
			baseURL = dlocalProductionBaseURL
		} else {
			baseURL = dlocalSandboxBaseURL
		}
	}

	country := strings.ToUpper(strings.TrimSpace(cfg.Country))
	if country == "" {
		country = "UY"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: dlocalRequestTimeout}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &DLocalProvider{
		apiKey:          apiKey,
		secretKey:       secretKey,
		baseURL:         strings.TrimRight(baseURL, "/"),
		country:         country,
		notificationURL: strings.TrimSpace(cfg.NotificationURL),
		httpClient:      httpClient,
		clock:           clock,
		logger:          logger,
	}, nil
}

// Name implements Provider.
func (p *DLocalProvider) Name() domain.PaymentProvider {
	return domain.PaymentProviderDLocalGo
}

type dlocalPaymentRequest struct {
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Country         string  `json:"country"`
	OrderID         string  `json:"order_id"`
	Description     string  `json:"description,omitempty"`
	SuccessURL      string  `json:"success_url,omitempty"`
	BackURL         string  `json:"back_url,omitempty"`
	NotificationURL string  `json:"notification_url,omitempty"`
}

type dlocalPaymentResponse struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// CreateCheckoutSession creates a hosted payment and returns its redirect URL.
func (p *DLocalProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil || p.httpClient == nil {
		return CheckoutSession{}, errors.New("dlocal: provider not initialised")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return CheckoutSession{}, errors.New("dlocal: order id is required")
	}
	if req.Amount <= 0 {
		return CheckoutSession{}, errors.New("dlocal: amount must be positive")
	}

	payload := dlocalPaymentRequest{
		Amount:          float64(req.Amount) / 100,
		Currency:        strings.ToUpper(strings.TrimSpace(req.Currency)),
		Country:         p.country,
		OrderID:         req.OrderID,
		Description:     sessionDescription(req),
		SuccessURL:      req.SuccessURL,
		BackURL:         req.FailureURL,
		NotificationURL: p.notificationURL,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("dlocal: encode payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("dlocal: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s:%s", p.apiKey, p.secretKey))

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger(ctx, "dlocal.payment_failed", map[string]any{
			"orderId": req.OrderID,
			"error":   err.Error(),
		})
		return CheckoutSession{}, fmt.Errorf("dlocal: create payment: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("dlocal: read response: %w", err)
	}

	var decoded dlocalPaymentResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return CheckoutSession{}, fmt.Errorf("dlocal: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger(ctx, "dlocal.payment_rejected", map[string]any{
			"orderId": req.OrderID,
			"status":  resp.StatusCode,
			"message": decoded.Message,
		})
		return CheckoutSession{}, fmt.Errorf("dlocal: create payment: status %d: %s", resp.StatusCode, decoded.Message)
	}
	if strings.TrimSpace(decoded.RedirectURL) == "" {
		return CheckoutSession{}, errors.New("dlocal: response missing redirect url")
	}

	p.logger(ctx, "dlocal.payment_created", map[string]any{
		"orderId":   req.OrderID,
		"paymentId": decoded.ID,
	})
	return CheckoutSession{
		ID:          decoded.ID,
		Provider:    domain.PaymentProviderDLocalGo,
		RedirectURL: decoded.RedirectURL,
		InitURL:     decoded.RedirectURL,
		Raw: map[string]any{
			"paymentId": decoded.ID,
			"status":    decoded.Status,
		},
	}, nil
}

// TranslateEventStatus maps dLocal payment statuses onto the shared set.
func (p *DLocalProvider) TranslateEventStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PAID", "APPROVED":
		return StatusApproved
	case "REJECTED":
		return StatusRejected
	case "CANCELLED", "EXPIRED":
		return StatusCancelled
	default:
		return StatusPending
	}
}

func sessionDescription(req CheckoutSessionRequest) string {
	if len(req.Items) == 1 {
		return req.Items[0].Title
	}
	if len(req.Items) > 1 {
		return fmt.Sprintf("%s y %d más", req.Items[0].Title, len(req.Items)-1)
	}
	return "Compra " + req.OrderID
}
