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

const cartCollection = "carts"

// CartRepository persists carts in Firestore, one document per user.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{base: base}, nil
}

// UpsertCart writes the full cart document keyed by user ID.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID := strings.TrimSpace(cart.UserID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc := encodeCartDocument(cart)
	result, err := r.base.Set(ctx, userID, doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := doc.toDomain(userID)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// GetCart loads the cart for the given user ID.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := doc.Data.toDomain(uid)
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = doc.UpdateTime
	}
	return cart, nil
}

// DeleteCart removes the cart document for the given user ID.
func (r *CartRepository) DeleteCart(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}

	ref, err := r.base.DocumentRef(ctx, uid)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("carts.delete", err)
	}
	return nil
}

type cartDocument struct {
	CartID    string              `firestore:"cartId"`
	Currency  string              `firestore:"currency"`
	Items     []cartItemDocument  `firestore:"items"`
	Coupon    *cartCouponDocument `firestore:"coupon,omitempty"`
	CreatedAt time.Time           `firestore:"createdAt"`
	UpdatedAt time.Time           `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ItemID         string  `firestore:"itemId,omitempty"`
	ProductID      string  `firestore:"productId"`
	VariantID      *string `firestore:"variantId,omitempty"`
	Name           string  `firestore:"name"`
	Slug           string  `firestore:"slug,omitempty"`
	UnitPrice      int64   `firestore:"unitPrice"`
	CompareAtPrice *int64  `firestore:"compareAtPrice,omitempty"`
	Currency       string  `firestore:"currency"`
	Quantity       int     `firestore:"quantity"`
	Stock          int     `firestore:"stock"`
	ImageURL       *string `firestore:"imageUrl,omitempty"`
}

type cartCouponDocument struct {
	Code      string    `firestore:"code"`
	Type      string    `firestore:"type"`
	Value     int64     `firestore:"value"`
	AppliedAt time.Time `firestore:"appliedAt"`
}

func encodeCartDocument(cart domain.Cart) cartDocument {
	doc := cartDocument{
		CartID:    strings.TrimSpace(cart.ID),
		Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:     make([]cartItemDocument, 0, len(cart.Items)),
		CreatedAt: cart.CreatedAt.UTC(),
		UpdatedAt: cart.UpdatedAt.UTC(),
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ItemID:         item.ID,
			ProductID:      item.ProductID,
			VariantID:      cloneOptionalString(item.VariantID),
			Name:           item.Name,
			Slug:           item.Slug,
			UnitPrice:      item.UnitPrice,
			CompareAtPrice: cloneOptionalInt64(item.CompareAtPrice),
			Currency:       item.Currency,
			Quantity:       item.Quantity,
			Stock:          item.Stock,
			ImageURL:       cloneOptionalString(item.ImageURL),
		})
	}
	if cart.Coupon != nil {
		doc.Coupon = &cartCouponDocument{
			Code:      cart.Coupon.Code,
			Type:      string(cart.Coupon.Type),
			Value:     cart.Coupon.Value,
			AppliedAt: cart.Coupon.AppliedAt.UTC(),
		}
	}
	return doc
}

func (d cartDocument) toDomain(userID string) domain.Cart {
	cart := domain.Cart{
		ID:        d.CartID,
		UserID:    userID,
		Currency:  d.Currency,
		Items:     make([]domain.CartItem, 0, len(d.Items)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, item := range d.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:             item.ItemID,
			ProductID:      item.ProductID,
			VariantID:      cloneOptionalString(item.VariantID),
			Name:           item.Name,
			Slug:           item.Slug,
			UnitPrice:      item.UnitPrice,
			CompareAtPrice: cloneOptionalInt64(item.CompareAtPrice),
			Currency:       item.Currency,
			Quantity:       item.Quantity,
			Stock:          item.Stock,
			ImageURL:       cloneOptionalString(item.ImageURL),
		})
	}
	if d.Coupon != nil {
		cart.Coupon = &domain.AppliedCoupon{
			Code:      d.Coupon.Code,
			Type:      domain.CouponType(d.Coupon.Type),
			Value:     d.Coupon.Value,
			AppliedAt: d.Coupon.AppliedAt,
		}
	}
	return cart
}

var _ repositories.CartRepository = (*CartRepository)(nil)
