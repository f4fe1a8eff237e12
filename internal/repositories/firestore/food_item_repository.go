package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/feastline/api/internal/domain"
	pfirestore "github.com/feastline/api/internal/platform/firestore"
)

const foodItemsCollection = "foodItems"

// FoodItemRepository implements repositories.FoodItemRepository backed by Firestore.
type FoodItemRepository struct {
	provider *pfirestore.Provider
}

// NewFoodItemRepository constructs a Firestore-backed food item repository.
func NewFoodItemRepository(provider *pfirestore.Provider) (*FoodItemRepository, error) {
	if provider == nil {
		return nil, errors.New("food item repository requires firestore provider")
	}
	return &FoodItemRepository{provider: provider}, nil
}

// FindByID loads a catalog item.
func (r *FoodItemRepository) FindByID(ctx context.Context, itemID string) (domain.FoodItem, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.FoodItem{}, errors.New("foodItems: item id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.FoodItem{}, err
	}
	ref := client.Collection(foodItemsCollection).Doc(id)

	var snap *firestore.DocumentSnapshot
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return domain.FoodItem{}, pfirestore.WrapError("foodItems.find", err)
	}

	var item domain.FoodItem
	if err := snap.DataTo(&item); err != nil {
		return domain.FoodItem{}, pfirestore.WrapError("foodItems.find", err)
	}
	item.ID = snap.Ref.ID
	return item, nil
}

// AddOrderCount increments the item's popularity counter via a server-side
// increment, write-only and transaction-safe.
func (r *FoodItemRepository) AddOrderCount(ctx context.Context, itemID string, delta int64) error {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return errors.New("foodItems: item id is required")
	}
	if delta == 0 {
		return nil
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	ref := client.Collection(foodItemsCollection).Doc(id)

	updates := []firestore.Update{
		{Path: "totalOrders", Value: firestore.Increment(delta)},
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("foodItems.addOrderCount", tx.Update(ref, updates))
	}
	_, err = ref.Update(ctx, updates)
	return pfirestore.WrapError("foodItems.addOrderCount", err)
}
