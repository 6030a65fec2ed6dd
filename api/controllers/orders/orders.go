package orders

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/retailops-backend/api/middleware"
	"github.com/angelmondragon/retailops-backend/api/responses"
	"github.com/angelmondragon/retailops-backend/api/validators"
	internalorders "github.com/angelmondragon/retailops-backend/internal/orders"
	"github.com/angelmondragon/retailops-backend/pkg/amount"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
	"github.com/angelmondragon/retailops-backend/pkg/pagination"
)

type createOrderRequest struct {
	Channel       string              `json:"channel,omitempty" validate:"omitempty,oneof=manual trendyol shopify"`
	ExternalID    *string             `json:"external_id,omitempty" validate:"omitempty,max=128"`
	CustomerName  *string             `json:"customer_name,omitempty" validate:"omitempty,max=255"`
	CustomerEmail *string             `json:"customer_email,omitempty" validate:"omitempty,email"`
	Currency      string              `json:"currency" validate:"required,currency"`
	Items         []createItemRequest `json:"items" validate:"required,min=1,dive"`
}

// createItemRequest carries unit_price as text so locale formats such as
// "1.234,50" go through the amount parser instead of float decoding.
type createItemRequest struct {
	VariantID  uuid.UUID `json:"variant_id" validate:"required"`
	LocationID uuid.UUID `json:"location_id" validate:"required"`
	Quantity   int       `json:"quantity" validate:"gt=0"`
	UnitPrice  string    `json:"unit_price" validate:"required"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type returnRequest struct {
	OrderItemID uuid.UUID `json:"order_item_id" validate:"required"`
	Quantity    int       `json:"quantity" validate:"gt=0"`
	Reason      *string   `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// Create writes a new order, or returns the existing one when the channel
// already delivered the same external_id.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		var body createOrderRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := body.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.Actor = middleware.ActorFromContext(r.Context())

		result, err := svc.CreateOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Created {
			responses.WriteCreated(w, result)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		filters, err := buildFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		list, err := svc.ListOrders(r.Context(), filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// Cancel marks the order canceled. Stock for each item is released by the
// inventory worker once the cancel events are delivered.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body cancelOrderRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.CancelOrder(r.Context(), internalorders.CancelOrderInput{
			OrderID: orderID,
			Reason:  body.Reason,
			Actor:   middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// RequestReturn opens a return for one item of the order in the path.
func RequestReturn(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body returnRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !hasItem(order, body.OrderItemID) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found on order"))
			return
		}

		ret, err := svc.RequestReturn(r.Context(), internalorders.RequestReturnInput{
			OrderItemID: body.OrderItemID,
			Quantity:    body.Quantity,
			Reason:      body.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, ret)
	}
}

// CompleteReturn restocks the returned quantity through the outbox.
func CompleteReturn(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		returnID, err := validators.PathUUID(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ret, err := svc.CompleteReturn(r.Context(), returnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ret)
	}
}

func (b createOrderRequest) toInput() (internalorders.CreateOrderInput, error) {
	channel := enums.ChannelManual
	if b.Channel != "" {
		channel = enums.SalesChannel(b.Channel)
	}
	input := internalorders.CreateOrderInput{
		Channel:       channel,
		ExternalID:    b.ExternalID,
		CustomerName:  b.CustomerName,
		CustomerEmail: b.CustomerEmail,
		Currency:      strings.ToUpper(b.Currency),
		Items:         make([]internalorders.ItemInput, 0, len(b.Items)),
	}

	priceErrors := map[string]string{}
	for i, item := range b.Items {
		price, err := amount.ParseDecimal(item.UnitPrice)
		if err != nil {
			priceErrors[fmt.Sprintf("items[%d].unit_price", i)] = "not a valid amount"
			continue
		}
		if price.LessThan(decimal.Zero) {
			priceErrors[fmt.Sprintf("items[%d].unit_price", i)] = "cannot be negative"
			continue
		}
		input.Items = append(input.Items, internalorders.ItemInput{
			VariantID:  item.VariantID,
			LocationID: item.LocationID,
			Quantity:   item.Quantity,
			UnitPrice:  price,
		})
	}
	if len(priceErrors) > 0 {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(priceErrors)
	}
	return input, nil
}

func buildFilters(r *http.Request) (internalorders.ListFilters, error) {
	var filters internalorders.ListFilters
	if raw := strings.TrimSpace(r.URL.Query().Get("channel")); raw != "" {
		channel, err := enums.ParseSalesChannel(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid channel")
		}
		filters.Channel = &channel
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := enums.OrderStatus(raw)
		if !status.IsValid() {
			return filters, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", raw))
		}
		filters.Status = &status
	}
	return filters, nil
}

func hasItem(order *internalorders.OrderView, itemID uuid.UUID) bool {
	for _, item := range order.Items {
		if item.ID == itemID {
			return true
		}
	}
	return false
}
