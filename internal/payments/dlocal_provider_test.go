package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

type fakeHTTPDoer struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (f *fakeHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	return f.doFunc(req)
}

func jsonResponse(status int, body any) *http.Response {
	raw, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(raw)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestDLocalCreateCheckoutSession(t *testing.T) {
	var captured dlocalPaymentRequest
	var gotAuth, gotURL string
	client := &fakeHTTPDoer{
		doFunc: func(req *http.Request) (*http.Response, error) {
			gotAuth = req.Header.Get("Authorization")
			gotURL = req.URL.String()
			body, _ := io.ReadAll(req.Body)
			if err := json.Unmarshal(body, &captured); err != nil {
				t.Fatalf("unexpected payload: %v", err)
			}
			return jsonResponse(http.StatusCreated, dlocalPaymentResponse{
				ID:          "pay-1",
				RedirectURL: "https://checkout.dlocalgo.com/pay-1",
				Status:      "PENDING",
			}), nil
		},
	}

	provider, err := NewDLocalProvider(DLocalProviderConfig{
		APIKey:     "key",
		SecretKey:  "secret",
		HTTPClient: client,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing provider: %v", err)
	}

	session, err := provider.CreateCheckoutSession(context.Background(), sessionRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAuth != "Bearer key:secret" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if !strings.HasPrefix(gotURL, "https://api-sbx.dlocalgo.com") {
		t.Fatalf("expected sandbox base url by default, got %q", gotURL)
	}
	if captured.Amount != 1950 {
		t.Fatalf("expected amount in major units 1950, got %v", captured.Amount)
	}
	if captured.Country != "UY" {
		t.Fatalf("expected country UY, got %q", captured.Country)
	}
	if captured.OrderID != "ord_1" {
		t.Fatalf("expected order id forwarded, got %q", captured.OrderID)
	}
	if session.RedirectURL != "https://checkout.dlocalgo.com/pay-1" {
		t.Fatalf("expected redirect url, got %q", session.RedirectURL)
	}
}

func TestDLocalProductionBaseURL(t *testing.T) {
	var gotURL string
	client := &fakeHTTPDoer{
		doFunc: func(req *http.Request) (*http.Response, error) {
			gotURL = req.URL.String()
			return jsonResponse(http.StatusCreated, dlocalPaymentResponse{
				ID:          "pay-1",
				RedirectURL: "https://checkout.dlocalgo.com/pay-1",
			}), nil
		},
	}

	provider, err := NewDLocalProvider(DLocalProviderConfig{
		APIKey:      "key",
		SecretKey:   "secret",
		Environment: "production",
		HTTPClient:  client,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing provider: %v", err)
	}

	if _, err := provider.CreateCheckoutSession(context.Background(), sessionRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(gotURL, "https://api.dlocalgo.com") {
		t.Fatalf("expected production base url, got %q", gotURL)
	}
}

func TestDLocalRejectsAPIError(t *testing.T) {
	client := &fakeHTTPDoer{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusUnprocessableEntity, dlocalPaymentResponse{
				Message: "invalid currency",
			}), nil
		},
	}

	provider, err := NewDLocalProvider(DLocalProviderConfig{
		APIKey:     "key",
		SecretKey:  "secret",
		HTTPClient: client,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing provider: %v", err)
	}

	_, err = provider.CreateCheckoutSession(context.Background(), sessionRequest())
	if err == nil || !strings.Contains(err.Error(), "invalid currency") {
		t.Fatalf("expected API error surfaced, got %v", err)
	}
}

func TestDLocalRejectsMissingRedirect(t *testing.T) {
	client := &fakeHTTPDoer{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusCreated, dlocalPaymentResponse{ID: "pay-1"}), nil
		},
	}

	provider, err := NewDLocalProvider(DLocalProviderConfig{
		APIKey:     "key",
		SecretKey:  "secret",
		HTTPClient: client,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing provider: %v", err)
	}

	_, err = provider.CreateCheckoutSession(context.Background(), sessionRequest())
	if err == nil {
		t.Fatalf("expected error for missing redirect url")
	}
}

func TestDLocalTranslateEventStatus(t *testing.T) {
	provider := &DLocalProvider{}
	cases := map[string]Status{
		"PAID":      StatusApproved,
		"APPROVED":  StatusApproved,
		"REJECTED":  StatusRejected,
		"CANCELLED": StatusCancelled,
		"EXPIRED":   StatusCancelled,
		"PENDING":   StatusPending,
	}
	for raw, want := range cases {
		if got := provider.TranslateEventStatus(raw); got != want {
			t.Fatalf("status %q: expected %q, got %q", raw, want, got)
		}
	}
}

func TestSimulationProviderFabricatesRedirect(t *testing.T) {
	provider, err := NewSimulationProvider(SimulationProviderConfig{
		BaseURL:     "https://montebazar.uy/",
		IDGenerator: func() string { return "ABC123" },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing provider: %v", err)
	}

	session, err := provider.CreateCheckoutSession(context.Background(), sessionRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.ID != "sim_ABC123" {
		t.Fatalf("expected session id sim_ABC123, got %q", session.ID)
	}
	want := "https://montebazar.uy/checkout/simulation?session=sim_ABC123&order=ord_1"
	if session.RedirectURL != want {
		t.Fatalf("expected redirect %q, got %q", want, session.RedirectURL)
	}
}
