package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/preference"

	domain "github.com/montebazar/api/internal/domain"
	"github.com/montebazar/api/internal/platform/textutil"
)

// MercadoPagoLogger defines the logging contract for Mercado Pago operations.
type MercadoPagoLogger func(ctx context.Context, event string, fields map[string]any)

type mercadoPagoPreferenceAPI interface {
	Create(ctx context.Context, request preference.Request) (*preference.Response, error)
}

// MercadoPagoProviderConfig configures the MercadoPagoProvider.
type MercadoPagoProviderConfig struct {
	AccessToken         string
	Environment         string
	StatementDescriptor string
	NotificationURL     string
	Logger              MercadoPagoLogger
	Clock               func() time.Time
	Preferences         mercadoPagoPreferenceAPI
}

// MercadoPagoProvider implements Provider on top of Mercado Pago checkout preferences.
type MercadoPagoProvider struct {
	preferences         mercadoPagoPreferenceAPI
	production          bool
	statementDescriptor string
	notificationURL     string
	clock               func() time.Time
	logger              MercadoPagoLogger
}

// NewMercadoPagoProvider constructs the adapter using the given configuration.
func NewMercadoPagoProvider(cfg MercadoPagoProviderConfig) (*MercadoPagoProvider, error) {
	preferences := cfg.Preferences
	if preferences == nil {
		token := strings.TrimSpace(cfg.AccessToken)
		if token == "" {
			return nil, errors.New("mercadopago: access token is required")
		}
		sdkCfg, err := mpconfig.New(token)
		if err != nil {
			return nil, fmt.Errorf("mercadopago: initialise sdk: %w", err)
		}
		preferences = preference.NewClient(sdkCfg)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &MercadoPagoProvider{
		preferences:         preferences,
		production:          strings.EqualFold(strings.TrimSpace(cfg.Environment), "production"),
		statementDescriptor: strings.TrimSpace(cfg.StatementDescriptor),
		notificationURL:     strings.TrimSpace(cfg.NotificationURL),
		clock:               clock,
		logger:              logger,
	}, nil
}

// Name implements Provider.
func (p *MercadoPagoProvider) Name() domain.PaymentProvider {
	return domain.PaymentProviderMercadoPago
}

// CreateCheckoutSession creates a checkout preference and returns the redirect.
// Outside production the sandbox init point is preferred whenever Mercado Pago
// supplies one.
func (p *MercadoPagoProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil || p.preferences == nil {
		return CheckoutSession{}, errors.New("mercadopago: provider not initialised")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return CheckoutSession{}, errors.New("mercadopago: order id is required")
	}
	if len(req.Items) == 0 {
		return CheckoutSession{}, errors.New("mercadopago: at least one item is required")
	}

	items := make([]preference.ItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		currency := strings.ToUpper(strings.TrimSpace(item.Currency))
		if currency == "" {
			currency = strings.ToUpper(strings.TrimSpace(req.Currency))
		}
		items = append(items, preference.ItemRequest{
			ID:         item.ProductID,
			Title:      item.Title,
			Quantity:   item.Quantity,
			UnitPrice:  float64(item.UnitPrice) / 100,
			CurrencyID: currency,
		})
	}

	request := preference.Request{
		Items:             items,
		ExternalReference: req.OrderID,
		Metadata:          metadataToAny(req.Metadata),
	}
	if p.statementDescriptor != "" {
		request.StatementDescriptor = p.statementDescriptor
	}
	if p.notificationURL != "" {
		request.NotificationURL = p.notificationURL
	}
	if req.CustomerEmail != "" {
		request.Payer = &preference.PayerRequest{Email: req.CustomerEmail}
	}
	if req.SuccessURL != "" || req.FailureURL != "" || req.PendingURL != "" {
		request.BackURLs = &preference.BackURLsRequest{
			Success: req.SuccessURL,
			Pending: req.PendingURL,
			Failure: req.FailureURL,
		}
		request.AutoReturn = "approved"
	}

	resource, err := p.preferences.Create(ctx, request)
	if err != nil {
		p.logger(ctx, "mercadopago.preference_failed", map[string]any{
			"orderId": req.OrderID,
			"error":   err.Error(),
		})
		return CheckoutSession{}, fmt.Errorf("mercadopago: create preference: %w", err)
	}

	redirect := resource.InitPoint
	if !p.production && strings.TrimSpace(resource.SandboxInitPoint) != "" {
		redirect = resource.SandboxInitPoint
	}

	p.logger(ctx, "mercadopago.preference_created", map[string]any{
		"orderId":      req.OrderID,
		"preferenceId": resource.ID,
	})
	return CheckoutSession{
		ID:          resource.ID,
		Provider:    domain.PaymentProviderMercadoPago,
		RedirectURL: redirect,
		InitURL:     resource.InitPoint,
		SandboxURL:  resource.SandboxInitPoint,
		Raw: map[string]any{
			"preferenceId":      resource.ID,
			"externalReference": resource.ExternalReference,
		},
	}, nil
}

// TranslateEventStatus maps Mercado Pago payment statuses onto the shared set.
func (p *MercadoPagoProvider) TranslateEventStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved", "accredited":
		return StatusApproved
	case "rejected", "charged_back":
		return StatusRejected
	case "cancelled", "expired":
		return StatusCancelled
	default:
		return StatusPending
	}
}

func metadataToAny(metadata map[string]string) map[string]any {
	normalized := textutil.NormalizeStringMap(metadata)
	if len(normalized) == 0 {
		return nil
	}
	out := make(map[string]any, len(normalized))
	for k, v := range normalized {
		out[k] = v
	}
	return out
}
