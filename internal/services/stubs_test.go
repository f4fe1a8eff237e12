package services

import (
	"context"
	"errors"
	"sync"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/payments"
	"github.com/feastline/api/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return "repository error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

var errRepoNotFound = &stubRepoError{notFound: true}

// memOrderRepo keeps orders in a map so transition tests observe writes.
type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]domain.Order

	insertFn func(context.Context, domain.Order) error
	updateFn func(context.Context, domain.Order) error
	findFn   func(context.Context, string) (domain.Order, error)
}

func newMemOrderRepo(orders ...domain.Order) *memOrderRepo {
	repo := &memOrderRepo{orders: make(map[string]domain.Order)}
	for _, o := range orders {
		repo.orders[o.ID] = o
	}
	return repo
}

func (s *memOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
	return nil
}

func (s *memOrderRepo) Update(ctx context.Context, order domain.Order) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, order)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
	return nil
}

func (s *memOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, errRepoNotFound
	}
	return order, nil
}

func (s *memOrderRepo) ListByCustomer(ctx context.Context, customerID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memOrderRepo) ListByVendor(ctx context.Context, vendorID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.VendorID == vendorID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memOrderRepo) get(orderID string) domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[orderID]
}

type stubVendorRepo struct {
	vendors    map[string]domain.Vendor
	deliveries []struct {
		VendorID string
		Earnings float64
	}
	recordErr error
}

func newStubVendorRepo(vendors ...domain.Vendor) *stubVendorRepo {
	repo := &stubVendorRepo{vendors: make(map[string]domain.Vendor)}
	for _, v := range vendors {
		repo.vendors[v.ID] = v
	}
	return repo
}

func (s *stubVendorRepo) FindByID(ctx context.Context, vendorID string) (domain.Vendor, error) {
	v, ok := s.vendors[vendorID]
	if !ok {
		return domain.Vendor{}, errRepoNotFound
	}
	return v, nil
}

func (s *stubVendorRepo) FindByUserID(ctx context.Context, userID string) (domain.Vendor, error) {
	for _, v := range s.vendors {
		if v.UserID == userID {
			return v, nil
		}
	}
	return domain.Vendor{}, errRepoNotFound
}

func (s *stubVendorRepo) RecordDelivery(ctx context.Context, vendorID string, earnings float64) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.deliveries = append(s.deliveries, struct {
		VendorID string
		Earnings float64
	}{vendorID, earnings})
	return nil
}

type stubFoodItemRepo struct {
	items  map[string]domain.FoodItem
	counts map[string]int64
}

func newStubFoodItemRepo(items ...domain.FoodItem) *stubFoodItemRepo {
	repo := &stubFoodItemRepo{items: make(map[string]domain.FoodItem), counts: make(map[string]int64)}
	for _, it := range items {
		repo.items[it.ID] = it
	}
	return repo
}

func (s *stubFoodItemRepo) FindByID(ctx context.Context, itemID string) (domain.FoodItem, error) {
	it, ok := s.items[itemID]
	if !ok {
		return domain.FoodItem{}, errRepoNotFound
	}
	return it, nil
}

func (s *stubFoodItemRepo) AddOrderCount(ctx context.Context, itemID string, delta int64) error {
	s.counts[itemID] += delta
	return nil
}

type stubCounterRepo struct {
	value int64
	err   error
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.value += step
	return s.value, nil
}

type capturePublisher struct {
	events []OrderEvent
	err    error
}

func (p *capturePublisher) PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return "msg-1", nil
}

type stubPricingEngine struct {
	quoteFn func(context.Context, []OrderLineInput) (PriceQuote, error)
}

func (s *stubPricingEngine) Quote(ctx context.Context, lines []OrderLineInput) (PriceQuote, error) {
	if s.quoteFn != nil {
		return s.quoteFn(ctx, lines)
	}
	return PriceQuote{}, errors.New("not implemented")
}

type stubGateway struct {
	createFn func(context.Context, string, payments.IntentRequest) (payments.Intent, error)
	fetchFn  func(context.Context, string, string) (payments.PaymentDetails, error)
	refundFn func(context.Context, string, payments.RefundRequest) (payments.RefundDetails, error)
}

func (s *stubGateway) CreateIntent(ctx context.Context, method string, req payments.IntentRequest) (payments.Intent, error) {
	if s.createFn != nil {
		return s.createFn(ctx, method, req)
	}
	return payments.Intent{}, errors.New("not implemented")
}

func (s *stubGateway) FetchPayment(ctx context.Context, method, paymentID string) (payments.PaymentDetails, error) {
	if s.fetchFn != nil {
		return s.fetchFn(ctx, method, paymentID)
	}
	return payments.PaymentDetails{}, errors.New("not implemented")
}

func (s *stubGateway) Refund(ctx context.Context, method string, req payments.RefundRequest) (payments.RefundDetails, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, method, req)
	}
	return payments.RefundDetails{}, errors.New("not implemented")
}
