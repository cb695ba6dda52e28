package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/montebazar/api/internal/platform/firestore"
	"github.com/montebazar/api/internal/repositories"
)

const couponUsageCollectionPattern = "coupons/%s/usages"

// CouponUsageRepository records per-user redemptions under each coupon document.
type CouponUsageRepository struct {
	provider *pfirestore.Provider
}

// NewCouponUsageRepository constructs a Firestore-backed coupon usage repository.
func NewCouponUsageRepository(provider *pfirestore.Provider) (*CouponUsageRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon usage repository requires firestore provider")
	}
	return &CouponUsageRepository{provider: provider}, nil
}

// HasUsed reports whether the user already redeemed the coupon.
func (r *CouponUsageRepository) HasUsed(ctx context.Context, code string, userID string) (bool, error) {
	coll, uid, err := r.collection(ctx, code, userID)
	if err != nil {
		return false, err
	}

	_, err = coll.Doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, pfirestore.WrapError("couponUsages.hasUsed", err)
	}
	return true, nil
}

// RecordUse marks the coupon as redeemed by the user. Recording twice is a no-op.
func (r *CouponUsageRepository) RecordUse(ctx context.Context, code string, userID string, now time.Time) error {
	coll, uid, err := r.collection(ctx, code, userID)
	if err != nil {
		return err
	}

	doc := couponUsageDocument{RedeemedAt: now.UTC()}
	if _, err := coll.Doc(uid).Create(ctx, doc); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return pfirestore.WrapError("couponUsages.recordUse", err)
	}
	return nil
}

func (r *CouponUsageRepository) collection(ctx context.Context, code string, userID string) (*firestore.CollectionRef, string, error) {
	if r == nil || r.provider == nil {
		return nil, "", errors.New("coupon usage repository not initialised")
	}
	id := couponDocumentID(code)
	if id == "" {
		return nil, "", errors.New("coupon usage repository: code is required")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, "", errors.New("coupon usage repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, "", err
	}
	return client.Collection(fmt.Sprintf(couponUsageCollectionPattern, id)), uid, nil
}

type couponUsageDocument struct {
	RedeemedAt time.Time `firestore:"redeemedAt"`
}

var _ repositories.CouponUsageRepository = (*CouponUsageRepository)(nil)
