package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/montebazar/api/internal/domain"
	pfirestore "github.com/montebazar/api/internal/platform/firestore"
	"github.com/montebazar/api/internal/repositories"
)

const paymentSessionCollection = "paymentSessions"

// PaymentSessionRepository persists hosted payment session records.
type PaymentSessionRepository struct {
	base *pfirestore.BaseRepository[paymentSessionDocument]
}

// NewPaymentSessionRepository constructs a Firestore-backed payment session repository.
func NewPaymentSessionRepository(provider *pfirestore.Provider) (*PaymentSessionRepository, error) {
	if provider == nil {
		return nil, errors.New("payment session repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[paymentSessionDocument](provider, paymentSessionCollection, nil, nil)
	return &PaymentSessionRepository{base: base}, nil
}

// Insert creates the session document. An existing document under the same ID is a conflict.
func (r *PaymentSessionRepository) Insert(ctx context.Context, session domain.PaymentSession) error {
	if r == nil || r.base == nil {
		return errors.New("payment session repository not initialised")
	}
	id := strings.TrimSpace(session.ID)
	if id == "" {
		return errors.New("payment session repository: session id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	doc := paymentSessionDocument{
		OrderID:     strings.TrimSpace(session.OrderID),
		Provider:    string(session.Provider),
		RedirectURL: session.RedirectURL,
		Status:      session.Status,
		CreatedAt:   session.CreatedAt.UTC(),
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("paymentSessions.insert", err)
	}
	return nil
}

// UpdateStatus records the latest provider-reported status for the session.
func (r *PaymentSessionRepository) UpdateStatus(ctx context.Context, sessionID string, status string, now time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("payment session repository not initialised")
	}
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return errors.New("payment session repository: session id is required")
	}

	_, err := r.base.Update(ctx, id, []firestore.Update{
		{Path: "status", Value: strings.TrimSpace(status)},
		{Path: "updatedAt", Value: now.UTC()},
	})
	return err
}

// FindByID loads a single session document.
func (r *PaymentSessionRepository) FindByID(ctx context.Context, sessionID string) (domain.PaymentSession, error) {
	if r == nil || r.base == nil {
		return domain.PaymentSession{}, errors.New("payment session repository not initialised")
	}
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return domain.PaymentSession{}, errors.New("payment session repository: session id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	return domain.PaymentSession{
		ID:          doc.ID,
		OrderID:     doc.Data.OrderID,
		Provider:    domain.PaymentProvider(doc.Data.Provider),
		RedirectURL: doc.Data.RedirectURL,
		Status:      doc.Data.Status,
		CreatedAt:   doc.Data.CreatedAt,
	}, nil
}

type paymentSessionDocument struct {
	OrderID     string    `firestore:"orderId"`
	Provider    string    `firestore:"provider"`
	RedirectURL string    `firestore:"redirectUrl"`
	Status      string    `firestore:"status"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt,omitempty"`
}

var _ repositories.PaymentSessionRepository = (*PaymentSessionRepository)(nil)
