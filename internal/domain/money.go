package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Monetary amounts are carried as int64 minor units (cents). Arithmetic on minor
// units stays exact; amounts only become decimal strings at the formatting edge.

const (
	// CurrencyUYU is the Uruguayan peso, the storefront's base currency.
	CurrencyUYU = "UYU"
	// CurrencyUSD is supported for price display on imported catalog items.
	CurrencyUSD = "USD"

	minorUnitsPerMajor = 100
)

// SumAmounts adds minor-unit amounts.
func SumAmounts(amounts ...int64) int64 {
	var total int64
	for _, amount := range amounts {
		total += amount
	}
	return total
}

// MultiplyAmount scales a unit price by a quantity.
func MultiplyAmount(unitPrice int64, quantity int) int64 {
	if quantity <= 0 {
		return 0
	}
	return unitPrice * int64(quantity)
}

// PercentageOf returns the given percentage of an amount, expressed in basis
// points (100bp = 1%), rounding half away from zero.
func PercentageOf(amount int64, basisPoints int64) int64 {
	if amount <= 0 || basisPoints <= 0 {
		return 0
	}
	return (amount*basisPoints + 5000) / 10000
}

// ClampNonNegative floors an amount at zero.
func ClampNonNegative(amount int64) int64 {
	if amount < 0 {
		return 0
	}
	return amount
}

// MinAmount returns the smaller of two minor-unit amounts.
func MinAmount(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

var displayPrinter = message.NewPrinter(language.MustParse("es-UY"))

// CurrencySymbol maps a currency code to its local display symbol.
func CurrencySymbol(currency string) string {
	switch strings.ToUpper(strings.TrimSpace(currency)) {
	case CurrencyUYU:
		return "$U"
	case CurrencyUSD:
		return "US$"
	default:
		return strings.ToUpper(strings.TrimSpace(currency))
	}
}

// FormatAmount renders a minor-unit amount using Uruguayan number conventions,
// for example FormatAmount(CurrencyUYU, 123456) returns "$U 1.234,56".
func FormatAmount(currency string, amount int64) string {
	major := float64(amount) / minorUnitsPerMajor
	formatted := displayPrinter.Sprint(number.Decimal(major,
		number.MinFractionDigits(2),
		number.MaxFractionDigits(2),
	))
	return fmt.Sprintf("%s %s", CurrencySymbol(currency), formatted)
}
