package repositories

import (
	"context"

	"github.com/feastline/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close() error

	Orders() OrderRepository
	Vendors() VendorRepository
	FoodItems() FoodItemRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary. The
// transaction travels through the context, so repository calls made inside fn
// automatically participate in it.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	Status domain.OrderStatus
	Limit  int
}

// OrderRepository persists marketplace orders. Orders are never deleted.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByCustomer(ctx context.Context, customerID string, filter OrderListFilter) ([]domain.Order, error)
	ListByVendor(ctx context.Context, vendorID string, filter OrderListFilter) ([]domain.Order, error)
}

// VendorRepository reads vendor catalog records and applies delivery stats.
type VendorRepository interface {
	FindByID(ctx context.Context, vendorID string) (domain.Vendor, error)
	// FindByUserID resolves the vendor record owned by the given account.
	FindByUserID(ctx context.Context, userID string) (domain.Vendor, error)
	// RecordDelivery atomically increments the vendor's order count and
	// earnings. Inside a transaction it joins that transaction.
	RecordDelivery(ctx context.Context, vendorID string, earnings float64) error
}

// FoodItemRepository reads catalog items and applies popularity stats.
type FoodItemRepository interface {
	FindByID(ctx context.Context, itemID string) (domain.FoodItem, error)
	// AddOrderCount atomically increments the item's popularity counter.
	AddOrderCount(ctx context.Context, itemID string, delta int64) error
}

// CounterRepository hands out monotonic sequence values backed by a
// transactional counter document.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// HealthRepository verifies the persistence backend is reachable.
type HealthRepository interface {
	Ping(ctx context.Context) error
}
