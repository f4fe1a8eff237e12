package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/feastline/api/internal/domain"
	pfirestore "github.com/feastline/api/internal/platform/firestore"
	"github.com/feastline/api/internal/repositories"
)

const (
	ordersCollection = "orders"
	defaultListLimit = 50
	maxListLimit     = 200
)

// OrderRepository implements repositories.OrderRepository backed by Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

func (r *OrderRepository) docRef(ctx context.Context, orderID string) (*firestore.DocumentRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(ordersCollection).Doc(orderID), nil
}

// Insert creates the order document, failing when the id already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("orders: order id is required")
	}
	ref, err := r.docRef(ctx, id)
	if err != nil {
		return err
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("orders.insert", tx.Create(ref, order))
	}
	_, err = ref.Create(ctx, order)
	return pfirestore.WrapError("orders.insert", err)
}

// Update overwrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("orders: order id is required")
	}
	ref, err := r.docRef(ctx, id)
	if err != nil {
		return err
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("orders.update", tx.Set(ref, order))
	}
	_, err = ref.Set(ctx, order)
	return pfirestore.WrapError("orders.update", err)
}

// FindByID loads a single order. Inside RunInTx the read joins the transaction
// so concurrent mutations serialize against it.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("orders: order id is required")
	}
	ref, err := r.docRef(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}

	var snap *firestore.DocumentSnapshot
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.find", err)
	}

	var order domain.Order
	if err := snap.DataTo(&order); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.find", err)
	}
	order.ID = snap.Ref.ID
	return order, nil
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	return r.list(ctx, "customerId", customerID, filter)
}

// ListByVendor returns the vendor's orders, newest first.
func (r *OrderRepository) ListByVendor(ctx context.Context, vendorID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	return r.list(ctx, "vendorId", vendorID, filter)
}

func (r *OrderRepository) list(ctx context.Context, field, value string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if strings.TrimSpace(value) == "" {
		return nil, errors.New("orders: list owner id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := client.Collection(ordersCollection).
		Where(field, "==", value).
		OrderBy("createdAt", firestore.Desc).
		Limit(limit)
	if filter.Status != "" {
		query = query.Where("status", "==", string(filter.Status))
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	orders := make([]domain.Order, 0, limit)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.list", err)
		}
		var order domain.Order
		if err := snap.DataTo(&order); err != nil {
			return nil, pfirestore.WrapError("orders.list", err)
		}
		order.ID = snap.Ref.ID
		orders = append(orders, order)
	}
	return orders, nil
}
