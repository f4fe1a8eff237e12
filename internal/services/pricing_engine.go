package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/repositories"
)

// Pricing engine errors.
var (
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	ErrItemUnavailable     = errors.New("pricing: item unavailable")
	ErrMixedVendorOrder    = errors.New("pricing: order spans multiple vendors")
)

const maxOrderLines = 50

// PricingEngineDeps lists the collaborators the pricing engine needs.
type PricingEngineDeps struct {
	FoodItems repositories.FoodItemRepository
	Vendors   repositories.VendorRepository

	// TaxRate is the fractional tax applied to the item subtotal.
	TaxRate float64

	Logger func(ctx context.Context, event string, fields map[string]any)
}

type pricingEngine struct {
	foodItems repositories.FoodItemRepository
	vendors   repositories.VendorRepository
	taxRate   float64
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewPricingEngine constructs the catalog-backed pricing engine.
func NewPricingEngine(deps PricingEngineDeps) (PricingEngine, error) {
	if deps.FoodItems == nil {
		return nil, errors.New("pricing engine requires food item repository")
	}
	if deps.Vendors == nil {
		return nil, errors.New("pricing engine requires vendor repository")
	}
	if deps.TaxRate < 0 || deps.TaxRate >= 1 {
		return nil, fmt.Errorf("pricing engine tax rate out of range: %v", deps.TaxRate)
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &pricingEngine{
		foodItems: deps.FoodItems,
		vendors:   deps.Vendors,
		taxRate:   deps.TaxRate,
		logger:    logger,
	}, nil
}

// Quote resolves every line against the catalog and computes authoritative
// totals. The first line fixes the vendor; all lines must belong to it.
func (e *pricingEngine) Quote(ctx context.Context, lines []OrderLineInput) (PriceQuote, error) {
	if len(lines) == 0 {
		return PriceQuote{}, fmt.Errorf("%w: order needs at least one line", ErrPricingInvalidInput)
	}
	if len(lines) > maxOrderLines {
		return PriceQuote{}, fmt.Errorf("%w: too many lines (max %d)", ErrPricingInvalidInput, maxOrderLines)
	}
	for i, line := range lines {
		if strings.TrimSpace(line.FoodItemID) == "" {
			return PriceQuote{}, fmt.Errorf("%w: line %d is missing a food item id", ErrPricingInvalidInput, i)
		}
		if line.Quantity < 1 {
			return PriceQuote{}, fmt.Errorf("%w: line %d has quantity %d", ErrPricingInvalidInput, i, line.Quantity)
		}
	}

	items, err := e.fetchItems(ctx, lines)
	if err != nil {
		return PriceQuote{}, err
	}

	vendorID := items[0].VendorID
	resolved := make([]domain.OrderItem, 0, len(lines))
	subtotal := 0.0
	for i, line := range lines {
		item := items[i]
		if !item.IsAvailable {
			return PriceQuote{}, fmt.Errorf("%w: %s is not available", ErrItemUnavailable, item.Name)
		}
		if item.VendorID != vendorID {
			return PriceQuote{}, fmt.Errorf("%w: %s belongs to a different vendor", ErrMixedVendorOrder, item.Name)
		}

		orderItem, err := resolveLine(item, line)
		if err != nil {
			return PriceQuote{}, err
		}
		resolved = append(resolved, orderItem)
		subtotal += orderItem.LineTotal()
	}

	vendor, err := e.vendors.FindByID(ctx, vendorID)
	if err != nil {
		return PriceQuote{}, mapCatalogError(err, "vendor")
	}
	if !vendor.AcceptsOrders() {
		return PriceQuote{}, fmt.Errorf("%w: %s is not accepting orders", ErrItemUnavailable, vendor.BusinessName)
	}

	tax := subtotal * e.taxRate
	pricing := domain.OrderPricing{
		Subtotal:    domain.RoundMoney(subtotal),
		DeliveryFee: domain.RoundMoney(vendor.DeliveryFee),
		Tax:         domain.RoundMoney(tax),
		Discount:    0,
		Total:       domain.RoundMoney(subtotal + vendor.DeliveryFee + tax),
	}

	e.logger(ctx, "pricing.quote", map[string]any{
		"vendor_id": vendorID,
		"lines":     len(resolved),
		"total":     pricing.Total,
	})

	return PriceQuote{
		VendorID:         vendor.ID,
		VendorName:       vendor.BusinessName,
		Lines:            resolved,
		Pricing:          pricing,
		EstimatedMinutes: vendor.EstimatedMinutes,
	}, nil
}

// fetchItems loads all referenced catalog items concurrently, preserving line
// order. Duplicate item ids are fetched once.
func (e *pricingEngine) fetchItems(ctx context.Context, lines []OrderLineInput) ([]domain.FoodItem, error) {
	type fetchResult struct {
		item domain.FoodItem
		err  error
	}

	results := make(map[string]*fetchResult, len(lines))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for _, line := range lines {
		id := strings.TrimSpace(line.FoodItemID)
		if _, seen := results[id]; seen {
			continue
		}
		slot := &fetchResult{}
		results[id] = slot
		group.Go(func() error {
			slot.item, slot.err = e.foodItems.FindByID(groupCtx, id)
			return slot.err
		})
	}
	if err := group.Wait(); err != nil {
		return nil, mapCatalogError(err, "item")
	}

	items := make([]domain.FoodItem, len(lines))
	for i, line := range lines {
		items[i] = results[strings.TrimSpace(line.FoodItemID)].item
	}
	return items, nil
}

// resolveLine snapshots catalog pricing onto an order line, applying the
// selected variant and add-ons.
func resolveLine(item domain.FoodItem, line OrderLineInput) (domain.OrderItem, error) {
	unitPrice := item.Price
	var variant *domain.VariantSelection
	if name := strings.TrimSpace(line.VariantName); name != "" {
		v, ok := item.Variant(name)
		if !ok {
			return domain.OrderItem{}, fmt.Errorf("%w: %s has no variant %q", ErrItemUnavailable, item.Name, name)
		}
		if !v.IsAvailable {
			return domain.OrderItem{}, fmt.Errorf("%w: variant %s is not available", ErrItemUnavailable, v.Name)
		}
		unitPrice = v.Price
		variant = &domain.VariantSelection{Name: v.Name, Price: v.Price}
	}

	addOns := make([]domain.AddOnSelection, 0, len(line.AddOnNames))
	for _, name := range line.AddOnNames {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		a, ok := item.AddOn(trimmed)
		if !ok {
			return domain.OrderItem{}, fmt.Errorf("%w: %s has no add-on %q", ErrItemUnavailable, item.Name, trimmed)
		}
		if !a.IsAvailable {
			return domain.OrderItem{}, fmt.Errorf("%w: add-on %s is not available", ErrItemUnavailable, a.Name)
		}
		addOns = append(addOns, domain.AddOnSelection{Name: a.Name, Price: a.Price})
	}

	return domain.OrderItem{
		FoodItemID: item.ID,
		Name:       item.Name,
		UnitPrice:  unitPrice,
		Quantity:   line.Quantity,
		Variant:    variant,
		AddOns:     addOns,
		Note:       strings.TrimSpace(line.Note),
	}, nil
}

func mapCatalogError(err error, kind string) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s not found", ErrItemUnavailable, kind)
	}
	return err
}
