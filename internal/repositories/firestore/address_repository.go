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
	"github.com/montebazar/api/internal/repositories"
)

const addressCollectionPattern = "users/%s/addresses"

// AddressRepository persists delivery addresses under each user document.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// Insert creates a new address document. The caller supplies the identifier;
// an existing document under the same ID is a conflict.
func (r *AddressRepository) Insert(ctx context.Context, addr domain.Address) (domain.Address, error) {
	coll, err := r.collection(ctx, addr.UserID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addr.ID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}

	doc := encodeAddressDocument(addr)
	if _, err := coll.Doc(id).Create(ctx, doc); err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.insert", err)
	}
	return doc.toDomain(id, strings.TrimSpace(addr.UserID)), nil
}

// Get loads a single address owned by the given user.
func (r *AddressRepository) Get(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}

	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.get", err)
	}
	return decodeAddressDocument(snap, strings.TrimSpace(userID))
}

// List returns all addresses for the specified user ordered by most recent update.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy("updatedAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var results []domain.Address
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("addresses.list", err)
		}
		addr, err := decodeAddressDocument(snap, strings.TrimSpace(userID))
		if err != nil {
			return nil, err
		}
		results = append(results, addr)
	}
	return results, nil
}

func (r *AddressRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("address repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("address repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(addressCollectionPattern, uid)), nil
}

func decodeAddressDocument(snapshot *firestore.DocumentSnapshot, userID string) (domain.Address, error) {
	var doc addressDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Address{}, fmt.Errorf("decode address %s: %w", snapshot.Ref.ID, err)
	}
	return doc.toDomain(snapshot.Ref.ID, userID), nil
}

type addressDocument struct {
	Recipient  string    `firestore:"recipient"`
	Line1      string    `firestore:"line1"`
	Line2      *string   `firestore:"line2,omitempty"`
	City       string    `firestore:"city"`
	Department string    `firestore:"department"`
	PostalCode *string   `firestore:"postalCode,omitempty"`
	Phone      string    `firestore:"phone"`
	Notes      *string   `firestore:"notes,omitempty"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func encodeAddressDocument(addr domain.Address) addressDocument {
	return addressDocument{
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      cloneOptionalString(addr.Line2),
		City:       addr.City,
		Department: string(addr.Department),
		PostalCode: cloneOptionalString(addr.PostalCode),
		Phone:      addr.Phone,
		Notes:      cloneOptionalString(addr.Notes),
		CreatedAt:  addr.CreatedAt.UTC(),
		UpdatedAt:  addr.UpdatedAt.UTC(),
	}
}

func (d addressDocument) toDomain(id string, userID string) domain.Address {
	return domain.Address{
		ID:         id,
		UserID:     userID,
		Recipient:  d.Recipient,
		Line1:      d.Line1,
		Line2:      cloneOptionalString(d.Line2),
		City:       d.City,
		Department: domain.Department(d.Department),
		PostalCode: cloneOptionalString(d.PostalCode),
		Phone:      d.Phone,
		Notes:      cloneOptionalString(d.Notes),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func cloneOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	cloned := *value
	if strings.TrimSpace(cloned) == "" {
		return nil
	}
	return &cloned
}

func cloneOptionalInt64(value *int64) *int64 {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)
