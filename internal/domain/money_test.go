package domain

import "testing"

func TestSumAmounts(t *testing.T) {
	if got := SumAmounts(); got != 0 {
		t.Fatalf("expected empty sum to be 0, got %d", got)
	}
	if got := SumAmounts(150000, 9900, 9900); got != 169800 {
		t.Fatalf("expected 169800, got %d", got)
	}
}

func TestMultiplyAmount(t *testing.T) {
	if got := MultiplyAmount(9900, 3); got != 29700 {
		t.Fatalf("expected 29700, got %d", got)
	}
	if got := MultiplyAmount(9900, 0); got != 0 {
		t.Fatalf("expected zero quantity to yield 0, got %d", got)
	}
	if got := MultiplyAmount(9900, -2); got != 0 {
		t.Fatalf("expected negative quantity to yield 0, got %d", got)
	}
}

func TestPercentageOf(t *testing.T) {
	cases := []struct {
		name        string
		amount      int64
		basisPoints int64
		want        int64
	}{
		{name: "ten percent", amount: 120000, basisPoints: 1000, want: 12000},
		{name: "rounds half up", amount: 15, basisPoints: 1000, want: 2},
		{name: "rounds down below half", amount: 14, basisPoints: 1000, want: 1},
		{name: "full amount", amount: 50000, basisPoints: 10000, want: 50000},
		{name: "zero amount", amount: 0, basisPoints: 1000, want: 0},
		{name: "zero basis points", amount: 50000, basisPoints: 0, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PercentageOf(tc.amount, tc.basisPoints); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestClampNonNegative(t *testing.T) {
	if got := ClampNonNegative(-500); got != 0 {
		t.Fatalf("expected negative amount clamped to 0, got %d", got)
	}
	if got := ClampNonNegative(500); got != 500 {
		t.Fatalf("expected positive amount unchanged, got %d", got)
	}
}

func TestMinAmount(t *testing.T) {
	if got := MinAmount(5000, 3000); got != 3000 {
		t.Fatalf("expected 3000, got %d", got)
	}
	if got := MinAmount(3000, 5000); got != 3000 {
		t.Fatalf("expected 3000, got %d", got)
	}
}

func TestCurrencySymbol(t *testing.T) {
	if got := CurrencySymbol(" uyu "); got != "$U" {
		t.Fatalf("expected $U, got %q", got)
	}
	if got := CurrencySymbol("USD"); got != "US$" {
		t.Fatalf("expected US$, got %q", got)
	}
	if got := CurrencySymbol("eur"); got != "EUR" {
		t.Fatalf("expected pass-through code EUR, got %q", got)
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(CurrencyUYU, 123456); got != "$U 1.234,56" {
		t.Fatalf("expected Uruguayan formatting, got %q", got)
	}
	if got := FormatAmount(CurrencyUYU, 0); got != "$U 0,00" {
		t.Fatalf("expected zero formatting, got %q", got)
	}
}
