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

const checkoutDraftCollection = "checkoutDrafts"

// CheckoutDraftRepository stores the single in-progress checkout per user.
type CheckoutDraftRepository struct {
	base *pfirestore.BaseRepository[checkoutDraftDocument]
}

// NewCheckoutDraftRepository constructs a Firestore-backed checkout draft repository.
func NewCheckoutDraftRepository(provider *pfirestore.Provider) (*CheckoutDraftRepository, error) {
	if provider == nil {
		return nil, errors.New("checkout draft repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[checkoutDraftDocument](provider, checkoutDraftCollection, nil, nil)
	return &CheckoutDraftRepository{base: base}, nil
}

// Upsert writes the full draft document keyed by user ID.
func (r *CheckoutDraftRepository) Upsert(ctx context.Context, draft domain.CheckoutDraft) (domain.CheckoutDraft, error) {
	if r == nil || r.base == nil {
		return domain.CheckoutDraft{}, errors.New("checkout draft repository not initialised")
	}
	userID := strings.TrimSpace(draft.UserID)
	if userID == "" {
		return domain.CheckoutDraft{}, errors.New("checkout draft repository: user id is required")
	}

	doc := encodeCheckoutDraftDocument(draft)
	result, err := r.base.Set(ctx, userID, doc)
	if err != nil {
		return domain.CheckoutDraft{}, err
	}

	saved := doc.toDomain(userID)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// Get loads the draft for the given user ID.
func (r *CheckoutDraftRepository) Get(ctx context.Context, userID string) (domain.CheckoutDraft, error) {
	if r == nil || r.base == nil {
		return domain.CheckoutDraft{}, errors.New("checkout draft repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CheckoutDraft{}, errors.New("checkout draft repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.CheckoutDraft{}, err
	}

	draft := doc.Data.toDomain(uid)
	if draft.UpdatedAt.IsZero() {
		draft.UpdatedAt = doc.UpdateTime
	}
	return draft, nil
}

// Delete removes the draft document, typically after a completed submission.
func (r *CheckoutDraftRepository) Delete(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("checkout draft repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("checkout draft repository: user id is required")
	}

	ref, err := r.base.DocumentRef(ctx, uid)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("checkoutDrafts.delete", err)
	}
	return nil
}

type checkoutDraftDocument struct {
	DraftID        string                   `firestore:"draftId"`
	Step           string                   `firestore:"step"`
	Status         string                   `firestore:"status"`
	Personal       checkoutPersonalDocument `firestore:"personal"`
	Shipping       checkoutShippingDocument `firestore:"shipping"`
	Provider       string                   `firestore:"provider,omitempty"`
	FieldErrors    map[string]string        `firestore:"fieldErrors,omitempty"`
	OrderID        *string                  `firestore:"orderId,omitempty"`
	FailureMessage *string                  `firestore:"failureMessage,omitempty"`
	CreatedAt      time.Time                `firestore:"createdAt"`
	UpdatedAt      time.Time                `firestore:"updatedAt"`
}

type checkoutPersonalDocument struct {
	FirstName string `firestore:"firstName,omitempty"`
	LastName  string `firestore:"lastName,omitempty"`
	Email     string `firestore:"email,omitempty"`
	Phone     string `firestore:"phone,omitempty"`
}

type checkoutShippingDocument struct {
	Line1      string  `firestore:"line1,omitempty"`
	Line2      *string `firestore:"line2,omitempty"`
	City       string  `firestore:"city,omitempty"`
	Department string  `firestore:"department,omitempty"`
	PostalCode *string `firestore:"postalCode,omitempty"`
	Notes      *string `firestore:"notes,omitempty"`
}

func encodeCheckoutDraftDocument(draft domain.CheckoutDraft) checkoutDraftDocument {
	doc := checkoutDraftDocument{
		DraftID: strings.TrimSpace(draft.ID),
		Step:    string(draft.Step),
		Status:  string(draft.Status),
		Personal: checkoutPersonalDocument{
			FirstName: draft.Personal.FirstName,
			LastName:  draft.Personal.LastName,
			Email:     draft.Personal.Email,
			Phone:     draft.Personal.Phone,
		},
		Shipping: checkoutShippingDocument{
			Line1:      draft.Shipping.Line1,
			Line2:      cloneOptionalString(draft.Shipping.Line2),
			City:       draft.Shipping.City,
			Department: string(draft.Shipping.Department),
			PostalCode: cloneOptionalString(draft.Shipping.PostalCode),
			Notes:      cloneOptionalString(draft.Shipping.Notes),
		},
		Provider:       string(draft.Payment.Provider),
		OrderID:        cloneOptionalString(draft.OrderID),
		FailureMessage: cloneOptionalString(draft.FailureMessage),
		CreatedAt:      draft.CreatedAt.UTC(),
		UpdatedAt:      draft.UpdatedAt.UTC(),
	}
	if len(draft.FieldErrors) > 0 {
		doc.FieldErrors = make(map[string]string, len(draft.FieldErrors))
		for field, message := range draft.FieldErrors {
			doc.FieldErrors[field] = message
		}
	}
	return doc
}

func (d checkoutDraftDocument) toDomain(userID string) domain.CheckoutDraft {
	draft := domain.CheckoutDraft{
		ID:     d.DraftID,
		UserID: userID,
		Step:   domain.CheckoutStep(d.Step),
		Status: domain.CheckoutStatus(d.Status),
		Personal: domain.PersonalData{
			FirstName: d.Personal.FirstName,
			LastName:  d.Personal.LastName,
			Email:     d.Personal.Email,
			Phone:     d.Personal.Phone,
		},
		Shipping: domain.ShippingDetails{
			Line1:      d.Shipping.Line1,
			Line2:      cloneOptionalString(d.Shipping.Line2),
			City:       d.Shipping.City,
			Department: domain.Department(d.Shipping.Department),
			PostalCode: cloneOptionalString(d.Shipping.PostalCode),
			Notes:      cloneOptionalString(d.Shipping.Notes),
		},
		Payment:        domain.PaymentSelection{Provider: domain.PaymentProvider(d.Provider)},
		OrderID:        cloneOptionalString(d.OrderID),
		FailureMessage: cloneOptionalString(d.FailureMessage),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if len(d.FieldErrors) > 0 {
		draft.FieldErrors = make(map[string]string, len(d.FieldErrors))
		for field, message := range d.FieldErrors {
			draft.FieldErrors[field] = message
		}
	}
	return draft
}

var _ repositories.CheckoutDraftRepository = (*CheckoutDraftRepository)(nil)
