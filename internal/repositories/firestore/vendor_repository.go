package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/feastline/api/internal/domain"
	pfirestore "github.com/feastline/api/internal/platform/firestore"
)

const vendorsCollection = "vendors"

// VendorRepository implements repositories.VendorRepository backed by Firestore.
type VendorRepository struct {
	provider *pfirestore.Provider
}

// NewVendorRepository constructs a Firestore-backed vendor repository.
func NewVendorRepository(provider *pfirestore.Provider) (*VendorRepository, error) {
	if provider == nil {
		return nil, errors.New("vendor repository requires firestore provider")
	}
	return &VendorRepository{provider: provider}, nil
}

// FindByID loads a vendor catalog record.
func (r *VendorRepository) FindByID(ctx context.Context, vendorID string) (domain.Vendor, error) {
	id := strings.TrimSpace(vendorID)
	if id == "" {
		return domain.Vendor{}, errors.New("vendors: vendor id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Vendor{}, err
	}
	ref := client.Collection(vendorsCollection).Doc(id)

	var snap *firestore.DocumentSnapshot
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return domain.Vendor{}, pfirestore.WrapError("vendors.find", err)
	}

	var vendor domain.Vendor
	if err := snap.DataTo(&vendor); err != nil {
		return domain.Vendor{}, pfirestore.WrapError("vendors.find", err)
	}
	vendor.ID = snap.Ref.ID
	return vendor, nil
}

// FindByUserID resolves the vendor record owned by the given account. Vendor
// actors authenticate with their user id, not the vendor document id.
func (r *VendorRepository) FindByUserID(ctx context.Context, userID string) (domain.Vendor, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return domain.Vendor{}, errors.New("vendors: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Vendor{}, err
	}

	query := client.Collection(vendorsCollection).Where("userId", "==", id).Limit(1)
	var snaps []*firestore.DocumentSnapshot
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		snaps, err = tx.Documents(query).GetAll()
	} else {
		snaps, err = query.Documents(ctx).GetAll()
	}
	if err != nil {
		return domain.Vendor{}, pfirestore.WrapError("vendors.findByUser", err)
	}
	if len(snaps) == 0 {
		return domain.Vendor{}, pfirestore.NotFoundError("vendors.findByUser", errors.New("vendor not found for user"))
	}

	var vendor domain.Vendor
	if err := snaps[0].DataTo(&vendor); err != nil {
		return domain.Vendor{}, pfirestore.WrapError("vendors.findByUser", err)
	}
	vendor.ID = snaps[0].Ref.ID
	return vendor, nil
}

// RecordDelivery increments the vendor's delivered-order stats. The update is
// a server-side increment, so it is write-only and valid inside a transaction
// even after reads have completed.
func (r *VendorRepository) RecordDelivery(ctx context.Context, vendorID string, earnings float64) error {
	id := strings.TrimSpace(vendorID)
	if id == "" {
		return errors.New("vendors: vendor id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	ref := client.Collection(vendorsCollection).Doc(id)

	updates := []firestore.Update{
		{Path: "totalOrders", Value: firestore.Increment(1)},
		{Path: "totalEarnings", Value: firestore.Increment(earnings)},
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("vendors.recordDelivery", tx.Update(ref, updates))
	}
	_, err = ref.Update(ctx, updates)
	return pfirestore.WrapError("vendors.recordDelivery", err)
}
