package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/montebazar/api/internal/domain"
	pfirestore "github.com/montebazar/api/internal/platform/firestore"
	"github.com/montebazar/api/internal/platform/pagination"
	"github.com/montebazar/api/internal/repositories"
)

const (
	orderCollection      = "orders"
	orderDefaultPageSize = 20
	orderMaxPageSize     = 100
)

// OrderRepository persists order documents in a single top-level collection.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates the order document. An existing document under the same ID is a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update rewrites the full order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}

	if _, err := r.base.Set(ctx, id, encodeOrderDocument(order)); err != nil {
		return err
	}
	return nil
}

// FindByID loads a single order document.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List queries orders with optional user, status, and creation-date filters,
// newest first, returning an opaque cursor for the next page.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = orderDefaultPageSize
	}
	if pageSize > orderMaxPageSize {
		pageSize = orderMaxPageSize
	}

	query := client.Collection(orderCollection).Query
	if uid := strings.TrimSpace(filter.UserID); uid != "" {
		query = query.Where("userId", "==", uid)
	}
	if statuses := nonEmptyStrings(filter.Status); len(statuses) > 0 {
		query = query.Where("status", "in", statuses)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	if len(cursor.StartAfter) > 0 {
		query = query.StartAfter(cursor.StartAfter...)
	}

	// Fetch one extra document to decide whether a next page exists.
	iter := query.Limit(pageSize + 1).Documents(ctx)
	defer iter.Stop()

	var (
		orders      []domain.Order
		lastCreated time.Time
		lastID      string
	)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		if len(orders) == pageSize {
			token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{lastCreated, lastID}})
			if err != nil {
				return domain.CursorPage[domain.Order]{}, err
			}
			return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: token}, nil
		}

		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
		lastCreated = doc.CreatedAt
		lastID = snap.Ref.ID
	}

	return domain.CursorPage[domain.Order]{Items: orders}, nil
}

func nonEmptyStrings(values []string) []string {
	var out []string
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type orderDocument struct {
	UserID           string              `firestore:"userId"`
	Status           string              `firestore:"status"`
	Items            []orderItemDocument `firestore:"items"`
	Totals           orderTotalsDocument `firestore:"totals"`
	CouponCode       *string             `firestore:"couponCode,omitempty"`
	AddressID        string              `firestore:"addressId"`
	Provider         string              `firestore:"provider"`
	PaymentSessionID *string             `firestore:"paymentSessionId,omitempty"`
	RedirectURL      *string             `firestore:"redirectUrl,omitempty"`
	CreatedAt        time.Time           `firestore:"createdAt"`
	UpdatedAt        time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	UnitPrice int64  `firestore:"unitPrice"`
	Currency  string `firestore:"currency"`
	Quantity  int    `firestore:"quantity"`
}

type orderTotalsDocument struct {
	Currency string `firestore:"currency"`
	Subtotal int64  `firestore:"subtotal"`
	Discount int64  `firestore:"discount"`
	Shipping int64  `firestore:"shipping"`
	Total    int64  `firestore:"total"`
}

func encodeOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		UserID: strings.TrimSpace(order.UserID),
		Status: string(order.Status),
		Items:  make([]orderItemDocument, 0, len(order.Items)),
		Totals: orderTotalsDocument{
			Currency: order.Totals.Currency,
			Subtotal: order.Totals.Subtotal,
			Discount: order.Totals.Discount,
			Shipping: order.Totals.Shipping,
			Total:    order.Totals.Total,
		},
		CouponCode:       cloneOptionalString(order.CouponCode),
		AddressID:        strings.TrimSpace(order.AddressID),
		Provider:         string(order.Provider),
		PaymentSessionID: cloneOptionalString(order.PaymentSessionID),
		RedirectURL:      cloneOptionalString(order.RedirectURL),
		CreatedAt:        order.CreatedAt.UTC(),
		UpdatedAt:        order.UpdatedAt.UTC(),
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Currency:  item.Currency,
			Quantity:  item.Quantity,
		})
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:     id,
		UserID: d.UserID,
		Status: domain.OrderStatus(d.Status),
		Items:  make([]domain.OrderItem, 0, len(d.Items)),
		Totals: domain.OrderTotals{
			Currency: d.Totals.Currency,
			Subtotal: d.Totals.Subtotal,
			Discount: d.Totals.Discount,
			Shipping: d.Totals.Shipping,
			Total:    d.Totals.Total,
		},
		CouponCode:       cloneOptionalString(d.CouponCode),
		AddressID:        d.AddressID,
		Provider:         domain.PaymentProvider(d.Provider),
		PaymentSessionID: cloneOptionalString(d.PaymentSessionID),
		RedirectURL:      cloneOptionalString(d.RedirectURL),
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Currency:  item.Currency,
			Quantity:  item.Quantity,
		})
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
