package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/feastline/api/internal/platform/firestore"
	"github.com/feastline/api/internal/repositories"
)

// Registry wires the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider  *pfirestore.Provider
	orders    *OrderRepository
	vendors   *VendorRepository
	foodItems *FoodItemRepository
	counters  *CounterRepository
	health    *HealthRepository
}

// NewRegistry constructs the registry over a shared Firestore provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	vendors, err := NewVendorRepository(provider)
	if err != nil {
		return nil, err
	}
	foodItems, err := NewFoodItemRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}
	health, err := NewHealthRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:  provider,
		orders:    orders,
		vendors:   vendors,
		foodItems: foodItems,
		counters:  counters,
		health:    health,
	}, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close() error {
	return r.provider.Close()
}

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Vendors returns the vendor repository.
func (r *Registry) Vendors() repositories.VendorRepository { return r.vendors }

// FoodItems returns the food item repository.
func (r *Registry) FoodItems() repositories.FoodItemRepository { return r.foodItems }

// Counters returns the counter repository.
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

// Health returns the health repository.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx executes fn within a Firestore transaction carried by the context.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunTransaction(ctx, pfirestore.TxFunc(fn))
}
