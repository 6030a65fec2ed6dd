package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	"github.com/angelmondragon/retailops-backend/pkg/outbox"
)

// CreateOrderInput is a new order from any channel. ExternalID makes intake
// idempotent: a second order with the same channel and external id returns
// the first one.
type CreateOrderInput struct {
	Channel       enums.SalesChannel
	ExternalID    *string
	CustomerName  *string
	CustomerEmail *string
	Currency      string
	Items         []ItemInput
	Actor         *outbox.ActorRef
}

type ItemInput struct {
	VariantID  uuid.UUID
	LocationID uuid.UUID
	Quantity   int
	UnitPrice  decimal.Decimal
}

type CancelOrderInput struct {
	OrderID uuid.UUID
	Reason  string
	Actor   *outbox.ActorRef
}

type RequestReturnInput struct {
	OrderItemID uuid.UUID
	Quantity    int
	Reason      *string
}

// ListFilters narrow the order list.
type ListFilters struct {
	Channel *enums.SalesChannel
	Status  *enums.OrderStatus
}

// CreateResult reports whether CreateOrder wrote a new order.
type CreateResult struct {
	Order   OrderView `json:"order"`
	Created bool      `json:"created"`
}

type OrderView struct {
	ID            uuid.UUID          `json:"id"`
	Channel       enums.SalesChannel `json:"channel"`
	ExternalID    *string            `json:"external_id,omitempty"`
	Status        enums.OrderStatus  `json:"status"`
	CustomerName  *string            `json:"customer_name,omitempty"`
	CustomerEmail *string            `json:"customer_email,omitempty"`
	Currency      string             `json:"currency"`
	TotalAmount   decimal.Decimal    `json:"total_amount"`
	CanceledAt    *time.Time         `json:"canceled_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	Items         []ItemView         `json:"items"`
}

type ItemView struct {
	ID         uuid.UUID       `json:"id"`
	VariantID  uuid.UUID       `json:"variant_id"`
	LocationID uuid.UUID       `json:"location_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type ReturnView struct {
	ID          uuid.UUID          `json:"id"`
	OrderItemID uuid.UUID          `json:"order_item_id"`
	Quantity    int                `json:"quantity"`
	Status      enums.ReturnStatus `json:"status"`
	Reason      *string            `json:"reason,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

type OrderList struct {
	Orders     []OrderView `json:"orders"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func toOrderView(order models.Order) OrderView {
	view := OrderView{
		ID:            order.ID,
		Channel:       order.Channel,
		ExternalID:    order.ExternalID,
		Status:        order.Status,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		Currency:      order.Currency,
		TotalAmount:   order.TotalAmount,
		CanceledAt:    order.CanceledAt,
		CreatedAt:     order.CreatedAt,
		Items:         make([]ItemView, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, ItemView{
			ID:         item.ID,
			VariantID:  item.VariantID,
			LocationID: item.LocationID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}
	return view
}

func toReturnView(ret models.OrderReturn) ReturnView {
	return ReturnView{
		ID:          ret.ID,
		OrderItemID: ret.OrderItemID,
		Quantity:    ret.Quantity,
		Status:      ret.Status,
		Reason:      ret.Reason,
		CompletedAt: ret.CompletedAt,
		CreatedAt:   ret.CreatedAt,
	}
}
