package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/montebazar/api/internal/domain"
	pfirestore "github.com/montebazar/api/internal/platform/firestore"
	"github.com/montebazar/api/internal/repositories"
)

const (
	settingsCollection = "settings"
	settingsDocumentID = "storefront"
)

// SettingsRepository reads the single storefront settings document.
type SettingsRepository struct {
	base *pfirestore.BaseRepository[settingsDocument]
}

// NewSettingsRepository constructs a Firestore-backed settings repository.
func NewSettingsRepository(provider *pfirestore.Provider) (*SettingsRepository, error) {
	if provider == nil {
		return nil, errors.New("settings repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[settingsDocument](provider, settingsCollection, nil, nil)
	return &SettingsRepository{base: base}, nil
}

// Get loads the storefront settings document.
func (r *SettingsRepository) Get(ctx context.Context) (domain.StoreSettings, error) {
	if r == nil || r.base == nil {
		return domain.StoreSettings{}, errors.New("settings repository not initialised")
	}

	doc, err := r.base.Get(ctx, settingsDocumentID)
	if err != nil {
		return domain.StoreSettings{}, err
	}

	settings := domain.StoreSettings{
		Currency:              strings.ToUpper(strings.TrimSpace(doc.Data.Currency)),
		FreeShippingThreshold: doc.Data.FreeShippingThreshold,
		DefaultShippingCost:   doc.Data.DefaultShippingCost,
		CheckoutEnabled:       doc.Data.CheckoutEnabled,
		DefaultProvider:       domain.PaymentProvider(doc.Data.DefaultProvider),
		UpdatedAt:             doc.Data.UpdatedAt,
	}
	for _, raw := range doc.Data.EnabledProviders {
		provider, ok := domain.ParsePaymentProvider(raw)
		if !ok {
			continue
		}
		settings.EnabledProviders = append(settings.EnabledProviders, provider)
	}
	if settings.Currency == "" {
		settings.Currency = domain.CurrencyUYU
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = doc.UpdateTime
	}
	return settings, nil
}

type settingsDocument struct {
	Currency              string    `firestore:"currency"`
	FreeShippingThreshold int64     `firestore:"freeShippingThreshold"`
	DefaultShippingCost   int64     `firestore:"defaultShippingCost"`
	CheckoutEnabled       bool      `firestore:"checkoutEnabled"`
	DefaultProvider       string    `firestore:"defaultProvider,omitempty"`
	EnabledProviders      []string  `firestore:"enabledProviders,omitempty"`
	UpdatedAt             time.Time `firestore:"updatedAt"`
}

var _ repositories.SettingsRepository = (*SettingsRepository)(nil)
