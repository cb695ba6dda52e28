package domain

import "time"

// CartTotals captures the aggregated monetary results of pricing a cart.
// Total never goes below zero even when the discount exceeds subtotal plus shipping.
type CartTotals struct {
	Currency            string
	Subtotal            int64
	Discount            int64
	Shipping            int64
	Total               int64
	FreeShippingApplied bool
	CouponCode          *string
}

// ShippingQuoteSource records where a shipping cost came from.
type ShippingQuoteSource string

const (
	// ShippingQuoteSourceRemote means the cost was resolved from the rate store.
	ShippingQuoteSourceRemote ShippingQuoteSource = "remote"
	// ShippingQuoteSourceFallback means the static default table supplied the cost.
	ShippingQuoteSourceFallback ShippingQuoteSource = "fallback"
)

// ShippingQuote is a resolved shipping cost for one department.
type ShippingQuote struct {
	Department Department
	Amount     int64
	Currency   string
	Source     ShippingQuoteSource
	FetchedAt  time.Time
}

// ShippingRate is the stored per-department cost record.
type ShippingRate struct {
	Department Department
	Amount     int64
	Currency   string
	UpdatedAt  time.Time
}
