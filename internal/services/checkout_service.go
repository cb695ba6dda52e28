package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/montebazar/api/internal/domain"
	"github.com/montebazar/api/internal/repositories"
)

var (
	errCheckoutRepositoryRequired = errors.New("checkout service: draft repository is required")
	errCheckoutOrdersRequired     = errors.New("checkout service: order service is required")
	errCheckoutClockRequired      = errors.New("checkout service: clock is required")
)

// ErrCheckoutInvalidInput indicates the caller supplied invalid input.
var ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")

// ErrCheckoutUnavailable indicates a checkout dependency could not be reached.
var ErrCheckoutUnavailable = errors.New("checkout service: unavailable")

// ErrCheckoutValidation indicates step data failed validation; the returned
// draft carries the field-keyed error map.
var ErrCheckoutValidation = errors.New("checkout service: validation failed")

// ErrCheckoutSubmitInProgress indicates a submission for this draft is already running.
var ErrCheckoutSubmitInProgress = errors.New("checkout service: submit already in progress")

// ErrCheckoutIncomplete indicates Submit was called before all steps were committed.
var ErrCheckoutIncomplete = errors.New("checkout service: steps incomplete")

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// CheckoutServiceDeps wires the draft store and collaborators for the checkout flow.
type CheckoutServiceDeps struct {
	Drafts      repositories.CheckoutDraftRepository
	Orders      OrderService
	Carts       CartService
	Coupons     CouponService
	Settings    SettingsService
	Profiles    ProfileLoader
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type checkoutService struct {
	drafts   repositories.CheckoutDraftRepository
	orders   OrderService
	carts    CartService
	coupons  CouponService
	settings SettingsService
	profiles ProfileLoader
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)

	listenerMu sync.RWMutex
	listeners  []DepartmentChangeListener

	// submitting holds the in-process re-entrancy guard per user. The persisted
	// draft status covers multi-instance deployments.
	submitMu   sync.Mutex
	submitting map[string]bool
}

// NewCheckoutService constructs the CheckoutService enforcing dependency validation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Drafts == nil {
		return nil, errCheckoutRepositoryRequired
	}
	if deps.Orders == nil {
		return nil, errCheckoutOrdersRequired
	}
	if deps.Clock == nil {
		return nil, errCheckoutClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &checkoutService{
		drafts:     deps.Drafts,
		orders:     deps.Orders,
		carts:      deps.Carts,
		coupons:    deps.Coupons,
		settings:   deps.Settings,
		profiles:   deps.Profiles,
		now:        func() time.Time { return deps.Clock().UTC() },
		newID:      idGen,
		logger:     logger,
		submitting: make(map[string]bool),
	}, nil
}

// SubscribeDepartmentChanges registers a listener invoked whenever a committed
// shipping address changes the destination department.
func (s *checkoutService) SubscribeDepartmentChanges(listener DepartmentChangeListener) {
	if s == nil || listener == nil {
		return
	}
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// GetOrCreateDraft loads the in-progress draft, starting a fresh one when none
// exists or the previous checkout already completed.
func (s *checkoutService) GetOrCreateDraft(ctx context.Context, userID string) (CheckoutDraft, error) {
	if s == nil || s.drafts == nil {
		return CheckoutDraft{}, ErrCheckoutUnavailable
	}

	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CheckoutDraft{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}

	draft, err := s.drafts.Get(ctx, uid)
	if err != nil {
		if !isRepoNotFound(err) {
			return CheckoutDraft{}, s.translateRepoError(err)
		}
		return s.saveDraft(ctx, s.newDraft(ctx, uid))
	}
	if draft.Status == domain.CheckoutStatusCompleted {
		return s.saveDraft(ctx, s.newDraft(ctx, uid))
	}
	return draft, nil
}

// SubmitPersonalData commits the first step. On validation failure the draft
// keeps its step, the entered data is preserved, and FieldErrors names each
// offending field.
func (s *checkoutService) SubmitPersonalData(ctx context.Context, cmd SubmitPersonalDataCommand) (CheckoutDraft, error) {
	draft, err := s.editableDraft(ctx, cmd.UserID)
	if err != nil {
		return draft, err
	}

	personal := domain.PersonalData{
		FirstName: strings.TrimSpace(cmd.Personal.FirstName),
		LastName:  strings.TrimSpace(cmd.Personal.LastName),
		Email:     strings.TrimSpace(cmd.Personal.Email),
		Phone:     strings.TrimSpace(cmd.Personal.Phone),
	}

	fieldErrors := map[string]string{}
	if personal.FirstName == "" {
		fieldErrors["firstName"] = "ingresá tu nombre"
	}
	if personal.LastName == "" {
		fieldErrors["lastName"] = "ingresá tu apellido"
	}
	switch {
	case personal.Email == "":
		fieldErrors["email"] = "ingresá tu email"
	case !emailPattern.MatchString(personal.Email):
		fieldErrors["email"] = "el email no es válido"
	}
	if personal.Phone == "" {
		fieldErrors["phone"] = "ingresá un teléfono de contacto"
	}

	draft.Personal = personal
	if len(fieldErrors) > 0 {
		draft.FieldErrors = fieldErrors
		saved, saveErr := s.saveDraft(ctx, draft)
		if saveErr != nil {
			return draft, saveErr
		}
		return saved, ErrCheckoutValidation
	}

	draft.FieldErrors = nil
	draft.Step = domain.CheckoutStepShippingAddress
	return s.saveDraft(ctx, draft)
}

// SubmitShippingAddress commits the second step. A committed department change
// is published to subscribed listeners before the draft advances.
func (s *checkoutService) SubmitShippingAddress(ctx context.Context, cmd SubmitShippingAddressCommand) (CheckoutDraft, error) {
	draft, err := s.editableDraft(ctx, cmd.UserID)
	if err != nil {
		return draft, err
	}
	if draft.Step == domain.CheckoutStepPersonalData {
		return draft, fmt.Errorf("%w: personal data must be committed first", ErrCheckoutInvalidInput)
	}

	shipping := domain.ShippingDetails{
		Line1:      strings.TrimSpace(cmd.Shipping.Line1),
		Line2:      trimOptional(cmd.Shipping.Line2),
		City:       strings.TrimSpace(cmd.Shipping.City),
		PostalCode: trimOptional(cmd.Shipping.PostalCode),
		Notes:      trimOptional(cmd.Shipping.Notes),
	}

	fieldErrors := map[string]string{}
	if shipping.Line1 == "" {
		fieldErrors["line1"] = "ingresá la dirección"
	}
	if shipping.City == "" {
		fieldErrors["city"] = "ingresá la ciudad"
	}
	if shipping.PostalCode == nil {
		fieldErrors["postalCode"] = "ingresá el código postal"
	}
	dept, ok := domain.ParseDepartment(string(cmd.Shipping.Department))
	if !ok {
		fieldErrors["department"] = "elegí un departamento válido"
	} else {
		shipping.Department = dept
	}

	previous := draft.Shipping.Department
	draft.Shipping = shipping
	if len(fieldErrors) > 0 {
		draft.FieldErrors = fieldErrors
		saved, saveErr := s.saveDraft(ctx, draft)
		if saveErr != nil {
			return draft, saveErr
		}
		return saved, ErrCheckoutValidation
	}

	draft.FieldErrors = nil
	draft.Step = domain.CheckoutStepPaymentMethod
	saved, err := s.saveDraft(ctx, draft)
	if err != nil {
		return draft, err
	}

	if dept != previous {
		s.notifyDepartmentChange(ctx, previous, dept)
	}
	return saved, nil
}

// SubmitPaymentMethod commits the third step. Provider identifiers are matched
// exactly against the closed enum, and a method disabled in the storefront
// settings is rejected even though it parses.
func (s *checkoutService) SubmitPaymentMethod(ctx context.Context, cmd SubmitPaymentMethodCommand) (CheckoutDraft, error) {
	draft, err := s.editableDraft(ctx, cmd.UserID)
	if err != nil {
		return draft, err
	}
	if draft.Step != domain.CheckoutStepPaymentMethod {
		return draft, fmt.Errorf("%w: shipping address must be committed first", ErrCheckoutInvalidInput)
	}

	provider, ok := domain.ParsePaymentProvider(strings.TrimSpace(cmd.Provider))
	if !ok {
		draft.FieldErrors = map[string]string{"provider": "elegí un medio de pago válido"}
		saved, saveErr := s.saveDraft(ctx, draft)
		if saveErr != nil {
			return draft, saveErr
		}
		return saved, ErrCheckoutValidation
	}

	enabled, err := s.providerEnabled(ctx, provider)
	if err != nil {
		return draft, err
	}
	if !enabled {
		draft.FieldErrors = map[string]string{"provider": "ese medio de pago no está disponible"}
		saved, saveErr := s.saveDraft(ctx, draft)
		if saveErr != nil {
			return draft, saveErr
		}
		return saved, ErrCheckoutValidation
	}

	draft.FieldErrors = nil
	draft.Payment = domain.PaymentSelection{Provider: provider}
	return s.saveDraft(ctx, draft)
}

// Back moves the draft one step towards personal data. Committed data is
// preserved so returning forward re-renders it; field errors are cleared.
func (s *checkoutService) Back(ctx context.Context, userID string) (CheckoutDraft, error) {
	draft, err := s.editableDraft(ctx, userID)
	if err != nil {
		return draft, err
	}

	switch draft.Step {
	case domain.CheckoutStepPaymentMethod:
		draft.Step = domain.CheckoutStepShippingAddress
	case domain.CheckoutStepShippingAddress:
		draft.Step = domain.CheckoutStepPersonalData
	case domain.CheckoutStepPersonalData:
		// Already at the first step.
	}
	draft.FieldErrors = nil
	return s.saveDraft(ctx, draft)
}

// Submit places the order for a fully committed draft. Concurrent submissions
// for the same user are rejected while one is in flight. A failed submission
// leaves the draft in the failed state; retrying creates a brand new address
// and order rather than reusing the ones from the failed attempt.
func (s *checkoutService) Submit(ctx context.Context, cmd SubmitCheckoutCommand) (CheckoutResult, error) {
	if s == nil || s.drafts == nil {
		return CheckoutResult{}, ErrCheckoutUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return CheckoutResult{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}

	if !s.acquireSubmit(uid) {
		return CheckoutResult{}, ErrCheckoutSubmitInProgress
	}
	defer s.releaseSubmit(uid)

	draft, err := s.drafts.Get(ctx, uid)
	if err != nil {
		return CheckoutResult{}, s.translateRepoError(err)
	}
	if draft.Status == domain.CheckoutStatusSubmitting {
		return CheckoutResult{}, ErrCheckoutSubmitInProgress
	}
	if err := draftReady(draft); err != nil {
		return CheckoutResult{Draft: draft}, err
	}
	// A method disabled after step 3 was committed must not place an order.
	enabled, err := s.providerEnabled(ctx, draft.Payment.Provider)
	if err != nil {
		return CheckoutResult{Draft: draft}, err
	}
	if !enabled {
		return CheckoutResult{Draft: draft}, fmt.Errorf("%w: payment method %s is no longer enabled", ErrCheckoutIncomplete, draft.Payment.Provider)
	}

	draft.Status = domain.CheckoutStatusSubmitting
	draft.FailureMessage = nil
	draft, err = s.saveDraft(ctx, draft)
	if err != nil {
		return CheckoutResult{}, err
	}

	result, placeErr := s.orders.PlaceOrder(ctx, PlaceOrderCommand{
		UserID:   uid,
		Personal: draft.Personal,
		Shipping: draft.Shipping,
		Provider: draft.Payment.Provider,
	})
	if placeErr != nil {
		message := localizedFailureMessage(placeErr)
		draft.Status = domain.CheckoutStatusFailed
		draft.FailureMessage = &message
		if saved, saveErr := s.saveDraft(ctx, draft); saveErr == nil {
			draft = saved
		}
		s.logger(ctx, "checkout.submit_failed", map[string]any{
			"userId": uid,
			"error":  placeErr.Error(),
		})
		return CheckoutResult{Draft: draft}, placeErr
	}

	s.finalisePlacement(ctx, uid, result.Order)

	orderID := result.Order.ID
	draft.Status = domain.CheckoutStatusCompleted
	draft.OrderID = &orderID
	draft, err = s.saveDraft(ctx, draft)
	if err != nil {
		// The order exists; surface the draft as completed regardless.
		draft.Status = domain.CheckoutStatusCompleted
	}

	s.logger(ctx, "checkout.completed", map[string]any{
		"userId":  uid,
		"orderId": orderID,
	})
	order := result.Order
	return CheckoutResult{
		Draft:       draft,
		Order:       &order,
		RedirectURL: result.RedirectURL,
	}, nil
}

// finalisePlacement clears the cart and consumes the coupon once the order is
// durable. Failures here are logged, never rolled back into the checkout.
func (s *checkoutService) finalisePlacement(ctx context.Context, userID string, order Order) {
	if s.coupons != nil && order.CouponCode != nil {
		if err := s.coupons.Redeem(ctx, RedeemCouponCommand{UserID: userID, Code: *order.CouponCode}); err != nil {
			s.logger(ctx, "checkout.coupon_redeem_failed", map[string]any{
				"userId": userID,
				"code":   *order.CouponCode,
				"error":  err.Error(),
			})
		}
	}
	if s.carts != nil {
		if err := s.carts.ClearCart(ctx, userID); err != nil {
			s.logger(ctx, "checkout.cart_clear_failed", map[string]any{
				"userId": userID,
				"error":  err.Error(),
			})
		}
	}
}

func (s *checkoutService) editableDraft(ctx context.Context, userID string) (CheckoutDraft, error) {
	draft, err := s.GetOrCreateDraft(ctx, userID)
	if err != nil {
		return CheckoutDraft{}, err
	}
	if draft.Status == domain.CheckoutStatusSubmitting {
		return draft, ErrCheckoutSubmitInProgress
	}
	if draft.Status == domain.CheckoutStatusFailed {
		draft.Status = domain.CheckoutStatusEditing
	}
	return draft, nil
}

// newDraft starts a fresh draft on the personal-data step. When a profile
// loader is wired the stored account details are prefilled so a returning
// shopper only has to confirm them; a loader failure degrades to an empty
// draft rather than blocking the flow.
func (s *checkoutService) newDraft(ctx context.Context, userID string) CheckoutDraft {
	now := s.now()
	draft := CheckoutDraft{
		ID:        "chk_" + s.newID(),
		UserID:    userID,
		Step:      domain.CheckoutStepPersonalData,
		Status:    domain.CheckoutStatusEditing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.profiles != nil {
		profile, err := s.profiles(ctx, userID)
		if err != nil {
			s.logger(ctx, "checkout draft prefill skipped", map[string]any{
				"user_id": userID,
				"error":   err.Error(),
			})
			return draft
		}
		draft.Personal = domain.PersonalData{
			FirstName: strings.TrimSpace(profile.FirstName),
			LastName:  strings.TrimSpace(profile.LastName),
			Email:     strings.TrimSpace(profile.Email),
			Phone:     strings.TrimSpace(profile.Phone),
		}
	}
	return draft
}

func (s *checkoutService) saveDraft(ctx context.Context, draft CheckoutDraft) (CheckoutDraft, error) {
	draft.UpdatedAt = s.now()
	saved, err := s.drafts.Upsert(ctx, draft)
	if err != nil {
		return CheckoutDraft{}, s.translateRepoError(err)
	}
	return saved, nil
}

func (s *checkoutService) notifyDepartmentChange(ctx context.Context, previous, current Department) {
	s.listenerMu.RLock()
	listeners := make([]DepartmentChangeListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.RUnlock()

	var prev *Department
	if previous != "" {
		p := previous
		prev = &p
	}
	for _, listener := range listeners {
		listener(ctx, prev, current)
	}
}

// providerEnabled consults the storefront settings for dynamic method
// enablement. Without a settings collaborator every known provider passes.
func (s *checkoutService) providerEnabled(ctx context.Context, provider domain.PaymentProvider) (bool, error) {
	if s.settings == nil {
		return true, nil
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	return settings.ProviderEnabled(provider), nil
}

func (s *checkoutService) acquireSubmit(userID string) bool {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	if s.submitting[userID] {
		return false
	}
	s.submitting[userID] = true
	return true
}

func (s *checkoutService) releaseSubmit(userID string) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	delete(s.submitting, userID)
}

func (s *checkoutService) translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoConflict(err):
		return ErrCheckoutSubmitInProgress
	default:
		return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
}

func draftReady(draft CheckoutDraft) error {
	if draft.Personal.Email == "" || draft.Personal.FirstName == "" {
		return fmt.Errorf("%w: personal data missing", ErrCheckoutIncomplete)
	}
	if draft.Shipping.Line1 == "" || draft.Shipping.Department == "" {
		return fmt.Errorf("%w: shipping address missing", ErrCheckoutIncomplete)
	}
	if draft.Payment.Provider == "" {
		return fmt.Errorf("%w: payment method missing", ErrCheckoutIncomplete)
	}
	return nil
}

// localizedFailureMessage maps placement errors to the shopper-facing message.
func localizedFailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrOrderEmptyCart):
		return "tu carrito está vacío"
	case errors.Is(err, ErrOrderPaymentSession):
		return "no pudimos iniciar el pago, intentá de nuevo"
	case errors.Is(err, ErrOrderUnavailable):
		return "no pudimos procesar tu pedido, intentá más tarde"
	default:
		return "ocurrió un error al procesar tu pedido"
	}
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
