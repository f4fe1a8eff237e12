package handlers

import (
	"time"

	"github.com/feastline/api/internal/domain"
)

type variantPayload struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type addOnPayload struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type orderItemPayload struct {
	FoodItemID string          `json:"food_item_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  float64         `json:"unit_price"`
	Variant    *variantPayload `json:"variant,omitempty"`
	AddOns     []addOnPayload  `json:"add_ons,omitempty"`
	Note       string          `json:"note,omitempty"`
	LineTotal  float64         `json:"line_total"`
}

type addressPayload struct {
	Label    string `json:"label,omitempty"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	City     string `json:"city"`
	State    string `json:"state,omitempty"`
	Pincode  string `json:"pincode"`
	Landmark string `json:"landmark,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

type paymentPayload struct {
	Method    string  `json:"method"`
	Status    string  `json:"status"`
	IntentID  string  `json:"intent_id,omitempty"`
	PaymentID string  `json:"payment_id,omitempty"`
	Amount    float64 `json:"amount"`
}

type pricingPayload struct {
	Subtotal    float64 `json:"subtotal"`
	DeliveryFee float64 `json:"delivery_fee"`
	Tax         float64 `json:"tax"`
	Discount    float64 `json:"discount"`
	Total       float64 `json:"total"`
}

type timelinePayload struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

type trackingPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Location  string    `json:"location,omitempty"`
	Status    string    `json:"status,omitempty"`
	Note      string    `json:"note,omitempty"`
}

type deliveryPayload struct {
	EstimatedMinutes int               `json:"estimated_minutes"`
	DeliveredAt      *time.Time        `json:"delivered_at,omitempty"`
	Tracking         []trackingPayload `json:"tracking,omitempty"`
}

type refundPayload struct {
	Amount float64 `json:"amount"`
	Reason string  `json:"reason,omitempty"`
	Status string  `json:"status"`
}

type orderPayload struct {
	ID              string            `json:"id"`
	OrderNumber     string            `json:"order_number"`
	CustomerID      string            `json:"customer_id"`
	VendorID        string            `json:"vendor_id"`
	Items           []orderItemPayload `json:"items"`
	DeliveryAddress addressPayload    `json:"delivery_address"`
	Payment         paymentPayload    `json:"payment"`
	Pricing         pricingPayload    `json:"pricing"`
	Status          string            `json:"status"`
	Timeline        []timelinePayload `json:"timeline"`
	Delivery        deliveryPayload   `json:"delivery"`
	Refund          *refundPayload    `json:"refund,omitempty"`
	Note            string            `json:"note,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

// trackResponse is the slim projection served by the track endpoint. Customers
// polling delivery progress get the lifecycle trail without payment details.
type trackResponse struct {
	OrderID          string            `json:"order_id"`
	OrderNumber      string            `json:"order_number"`
	Status           string            `json:"status"`
	EstimatedMinutes int               `json:"estimated_minutes"`
	DeliveredAt      *time.Time        `json:"delivered_at,omitempty"`
	Timeline         []timelinePayload `json:"timeline"`
	Tracking         []trackingPayload `json:"tracking,omitempty"`
}

func buildTrackResponse(order domain.Order) trackResponse {
	full := buildOrderPayload(order)
	return trackResponse{
		OrderID:          full.ID,
		OrderNumber:      full.OrderNumber,
		Status:           full.Status,
		EstimatedMinutes: full.Delivery.EstimatedMinutes,
		DeliveredAt:      full.Delivery.DeliveredAt,
		Timeline:         full.Timeline,
		Tracking:         full.Delivery.Tracking,
	}
}

type orderListResponse struct {
	Items []orderPayload `json:"items"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		payload := orderItemPayload{
			FoodItemID: item.FoodItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Note:       item.Note,
			LineTotal:  domain.RoundMoney(item.LineTotal()),
		}
		if item.Variant != nil {
			payload.Variant = &variantPayload{Name: item.Variant.Name, Price: item.Variant.Price}
		}
		for _, a := range item.AddOns {
			payload.AddOns = append(payload.AddOns, addOnPayload{Name: a.Name, Price: a.Price})
		}
		items = append(items, payload)
	}

	timeline := make([]timelinePayload, 0, len(order.Timeline))
	for _, entry := range order.Timeline {
		timeline = append(timeline, timelinePayload{
			Status:    string(entry.Status),
			Timestamp: entry.Timestamp,
			Note:      entry.Note,
		})
	}

	tracking := make([]trackingPayload, 0, len(order.Delivery.Tracking))
	for _, update := range order.Delivery.Tracking {
		tracking = append(tracking, trackingPayload{
			Timestamp: update.Timestamp,
			Location:  update.Location,
			Status:    update.Status,
			Note:      update.Note,
		})
	}

	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		VendorID:    order.VendorID,
		Items:       items,
		DeliveryAddress: addressPayload{
			Label:    order.DeliveryAddress.Label,
			Name:     order.DeliveryAddress.Name,
			Address:  order.DeliveryAddress.Address,
			City:     order.DeliveryAddress.City,
			State:    order.DeliveryAddress.State,
			Pincode:  order.DeliveryAddress.Pincode,
			Landmark: order.DeliveryAddress.Landmark,
			Phone:    order.DeliveryAddress.Phone,
		},
		Payment: paymentPayload{
			Method:    string(order.Payment.Method),
			Status:    string(order.Payment.Status),
			IntentID:  order.Payment.IntentID,
			PaymentID: order.Payment.PaymentID,
			Amount:    order.Payment.Amount,
		},
		Pricing: pricingPayload{
			Subtotal:    order.Pricing.Subtotal,
			DeliveryFee: order.Pricing.DeliveryFee,
			Tax:         order.Pricing.Tax,
			Discount:    order.Pricing.Discount,
			Total:       order.Pricing.Total,
		},
		Status:   string(order.Status),
		Timeline: timeline,
		Delivery: deliveryPayload{
			EstimatedMinutes: order.Delivery.EstimatedMinutes,
			DeliveredAt:      order.Delivery.DeliveredAt,
			Tracking:         tracking,
		},
		Note:      order.Note,
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
	if order.Refund.Status != "" && order.Refund.Status != domain.RefundStatusNone {
		payload.Refund = &refundPayload{
			Amount: order.Refund.Amount,
			Reason: order.Refund.Reason,
			Status: string(order.Refund.Status),
		}
	}
	return payload
}
