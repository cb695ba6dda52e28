package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/montebazar/api/internal/domain"
	pfirestore "github.com/montebazar/api/internal/platform/firestore"
	"github.com/montebazar/api/internal/repositories"
)

const shippingRateCollection = "shippingRates"

// ShippingRateRepository reads the per-department shipping cost table,
// one document per department keyed by its display name.
type ShippingRateRepository struct {
	base *pfirestore.BaseRepository[shippingRateDocument]
}

// NewShippingRateRepository constructs a Firestore-backed shipping rate repository.
func NewShippingRateRepository(provider *pfirestore.Provider) (*ShippingRateRepository, error) {
	if provider == nil {
		return nil, errors.New("shipping rate repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[shippingRateDocument](provider, shippingRateCollection, nil, nil)
	return &ShippingRateRepository{base: base}, nil
}

// GetRate loads the stored cost for a single department.
func (r *ShippingRateRepository) GetRate(ctx context.Context, department domain.Department) (domain.ShippingRate, error) {
	if r == nil || r.base == nil {
		return domain.ShippingRate{}, errors.New("shipping rate repository not initialised")
	}
	if department == "" {
		return domain.ShippingRate{}, errors.New("shipping rate repository: department is required")
	}

	doc, err := r.base.Get(ctx, string(department))
	if err != nil {
		return domain.ShippingRate{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListRates loads the full cost table ordered by department name.
func (r *ShippingRateRepository) ListRates(ctx context.Context) ([]domain.ShippingRate, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("shipping rate repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	rates := make([]domain.ShippingRate, 0, len(docs))
	for _, doc := range docs {
		rates = append(rates, doc.Data.toDomain(doc.ID))
	}
	return rates, nil
}

type shippingRateDocument struct {
	Amount    int64     `firestore:"amount"`
	Currency  string    `firestore:"currency"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d shippingRateDocument) toDomain(id string) domain.ShippingRate {
	return domain.ShippingRate{
		Department: domain.Department(id),
		Amount:     d.Amount,
		Currency:   d.Currency,
		UpdatedAt:  d.UpdatedAt,
	}
}

var _ repositories.ShippingRateRepository = (*ShippingRateRepository)(nil)
