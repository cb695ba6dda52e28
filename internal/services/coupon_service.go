package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/montebazar/api/internal/domain"
	"github.com/montebazar/api/internal/repositories"
)

// ErrCouponInvalidInput indicates the caller supplied an empty or malformed command.
var ErrCouponInvalidInput = errors.New("coupon service: invalid input")

// ErrCouponUnavailable indicates the coupon backend could not be reached during redemption.
var ErrCouponUnavailable = errors.New("coupon service: unavailable")

var (
	errCouponRepositoryRequired = errors.New("coupon service: repository is required")
	errCouponClockRequired      = errors.New("coupon service: clock is required")
)

// CouponServiceDeps wires the catalog and usage stores behind the validator.
type CouponServiceDeps struct {
	Coupons repositories.CouponRepository
	Usage   repositories.CouponUsageRepository
	Clock   func() time.Time
	Logger  func(context.Context, string, map[string]any)
}

type couponService struct {
	coupons repositories.CouponRepository
	usage   repositories.CouponUsageRepository
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewCouponService constructs the CouponService enforcing dependency validation.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errCouponRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCouponClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &couponService{
		coupons: deps.Coupons,
		usage:   deps.Usage,
		now:     func() time.Time { return deps.Clock().UTC() },
		logger:  logger,
	}, nil
}

// Validate checks a code against the catalog and reports a typed outcome.
// Invalid codes never surface as errors: every rejection carries a reason so
// callers can render the matching message. Only malformed commands error out.
func (s *couponService) Validate(ctx context.Context, cmd ValidateCouponCommand) (CouponValidationResult, error) {
	if s == nil || s.coupons == nil {
		return CouponValidationResult{}, ErrCouponUnavailable
	}

	code := normaliseCouponCode(cmd.Code)
	if code == "" {
		return CouponValidationResult{}, fmt.Errorf("%w: code is required", ErrCouponInvalidInput)
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CouponValidationResult{}, fmt.Errorf("%w: user id is required", ErrCouponInvalidInput)
	}
	if cmd.Subtotal < 0 {
		return CouponValidationResult{}, fmt.Errorf("%w: subtotal must not be negative", ErrCouponInvalidInput)
	}

	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		if isRepoNotFound(err) {
			return rejection(domain.CouponRejectionNotFound, "el cupón no existe"), nil
		}
		s.logger(ctx, "coupon.lookup_failed", map[string]any{"code": code, "error": err.Error()})
		return rejection(domain.CouponRejectionGenericError, "no pudimos validar el cupón, intentá de nuevo"), nil
	}

	now := s.now()
	if coupon.ExpiresAt != nil && now.After(*coupon.ExpiresAt) {
		return rejection(domain.CouponRejectionExpired, "el cupón está vencido"), nil
	}

	if coupon.UsageLimit > 0 && coupon.UsageCount >= coupon.UsageLimit {
		return rejection(domain.CouponRejectionUsageLimitReached, "el cupón alcanzó su límite de usos"), nil
	}

	if s.usage != nil {
		used, err := s.usage.HasUsed(ctx, code, userID)
		if err != nil {
			s.logger(ctx, "coupon.usage_lookup_failed", map[string]any{"code": code, "error": err.Error()})
			return rejection(domain.CouponRejectionGenericError, "no pudimos validar el cupón, intentá de nuevo"), nil
		}
		if used {
			return rejection(domain.CouponRejectionAlreadyUsed, "ya usaste este cupón"), nil
		}
	}

	if coupon.MinimumSubtotal > 0 && cmd.Subtotal < coupon.MinimumSubtotal {
		currency := coupon.Currency
		if strings.TrimSpace(currency) == "" {
			currency = strings.ToUpper(strings.TrimSpace(cmd.Currency))
		}
		message := fmt.Sprintf("el cupón requiere una compra mínima de %s",
			domain.FormatAmount(currency, coupon.MinimumSubtotal))
		return rejection(domain.CouponRejectionMinimumNotMet, message), nil
	}

	snapshot := domain.AppliedCoupon{
		Code:      coupon.Code,
		Type:      coupon.Type,
		Value:     coupon.Value,
		AppliedAt: now,
	}
	return CouponValidationResult{
		Valid:    true,
		Coupon:   &coupon,
		Discount: couponDiscount(snapshot, cmd.Subtotal),
	}, nil
}

// Redeem consumes one use of the coupon after an order is placed. The global
// counter and the per-user record are written together inside a unit of work
// by the caller when atomicity is needed.
func (s *couponService) Redeem(ctx context.Context, cmd RedeemCouponCommand) error {
	if s == nil || s.coupons == nil {
		return ErrCouponUnavailable
	}

	code := normaliseCouponCode(cmd.Code)
	userID := strings.TrimSpace(cmd.UserID)
	if code == "" || userID == "" {
		return fmt.Errorf("%w: code and user id are required", ErrCouponInvalidInput)
	}

	now := s.now()
	if _, err := s.coupons.IncrementUsage(ctx, code, now); err != nil {
		return fmt.Errorf("%w: increment usage: %v", ErrCouponUnavailable, err)
	}
	if s.usage != nil {
		if err := s.usage.RecordUse(ctx, code, userID, now); err != nil {
			return fmt.Errorf("%w: record use: %v", ErrCouponUnavailable, err)
		}
	}
	s.logger(ctx, "coupon.redeemed", map[string]any{"code": code, "userId": userID})
	return nil
}

func normaliseCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func rejection(reason domain.CouponRejectionReason, message string) CouponValidationResult {
	return CouponValidationResult{Valid: false, Reason: reason, Message: message}
}
