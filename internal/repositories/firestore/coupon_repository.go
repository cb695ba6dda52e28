package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/montebazar/api/internal/domain"
	pfirestore "github.com/montebazar/api/internal/platform/firestore"
	"github.com/montebazar/api/internal/repositories"
)

const couponCollection = "coupons"

// CouponRepository reads coupon definitions keyed by their normalised code.
type CouponRepository struct {
	base     *pfirestore.BaseRepository[couponDocument]
	provider *pfirestore.Provider
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[couponDocument](provider, couponCollection, nil, nil)
	return &CouponRepository{base: base, provider: provider}, nil
}

// FindByCode loads the coupon document for the given code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	id := couponDocumentID(code)
	if id == "" {
		return domain.Coupon{}, errors.New("coupon repository: code is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Coupon{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// IncrementUsage bumps the redemption counter inside a transaction so the
// usage limit is never exceeded under concurrent checkouts.
func (r *CouponRepository) IncrementUsage(ctx context.Context, code string, now time.Time) (domain.Coupon, error) {
	if r == nil || r.provider == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	id := couponDocumentID(code)
	if id == "" {
		return domain.Coupon{}, errors.New("coupon repository: code is required")
	}

	var saved domain.Coupon
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var doc couponDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("decode coupon %s: %w", id, err)
		}
		if doc.UsageLimit > 0 && doc.UsageCount >= doc.UsageLimit {
			return fmt.Errorf("coupon %s usage limit %d reached", id, doc.UsageLimit)
		}

		doc.UsageCount++
		doc.UpdatedAt = now.UTC()
		if err := tx.Update(ref, []firestore.Update{
			{Path: "usageCount", Value: doc.UsageCount},
			{Path: "updatedAt", Value: doc.UpdatedAt},
		}); err != nil {
			return err
		}

		saved = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Coupon{}, pfirestore.WrapError("coupons.incrementUsage", err)
	}
	return saved, nil
}

func couponDocumentID(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type couponDocument struct {
	Type            string     `firestore:"type"`
	Value           int64      `firestore:"value"`
	Currency        string     `firestore:"currency,omitempty"`
	MinimumSubtotal int64      `firestore:"minimumSubtotal"`
	UsageLimit      int        `firestore:"usageLimit"`
	UsageCount      int        `firestore:"usageCount"`
	ExpiresAt       *time.Time `firestore:"expiresAt,omitempty"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
}

func (d couponDocument) toDomain(code string) domain.Coupon {
	coupon := domain.Coupon{
		Code:            code,
		Type:            domain.CouponType(d.Type),
		Value:           d.Value,
		Currency:        d.Currency,
		MinimumSubtotal: d.MinimumSubtotal,
		UsageLimit:      d.UsageLimit,
		UsageCount:      d.UsageCount,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	if d.ExpiresAt != nil {
		expires := d.ExpiresAt.UTC()
		coupon.ExpiresAt = &expires
	}
	return coupon
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)
