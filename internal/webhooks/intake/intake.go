// Package intake turns marketplace order payloads into orders. Lines are
// matched to variants by SKU, then barcode, and booked against the
// configured webhook location.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/retailops-backend/internal/orders"
	"github.com/angelmondragon/retailops-backend/pkg/amount"
	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/outbox"
)

type catalogLookup interface {
	GetVariantBySKU(ctx context.Context, sku string) (*models.ProductVariant, error)
	GetVariantByBarcode(ctx context.Context, barcode string) (*models.ProductVariant, error)
	GetLocationByCode(ctx context.Context, code string) (*models.Location, error)
}

type orderService interface {
	CreateOrder(ctx context.Context, input orders.CreateOrderInput) (*orders.CreateResult, error)
	CancelOrder(ctx context.Context, input orders.CancelOrderInput) (*orders.OrderView, error)
	GetOrderByExternalID(ctx context.Context, channel enums.SalesChannel, externalID string) (*orders.OrderView, error)
}

// Order is the channel-neutral shape of a marketplace order.
type Order struct {
	Channel       enums.SalesChannel
	ExternalID    string
	Currency      string
	CustomerName  *string
	CustomerEmail *string
	Lines         []Line
}

type Line struct {
	SKU       string
	Barcode   string
	Quantity  int
	UnitPrice string
}

type Intake struct {
	catalog      catalogLookup
	orders       orderService
	locationCode string
}

func New(catalog catalogLookup, orderSvc orderService, locationCode string) (*Intake, error) {
	if catalog == nil {
		return nil, errors.New("catalog lookup required")
	}
	if orderSvc == nil {
		return nil, errors.New("orders service required")
	}
	return &Intake{catalog: catalog, orders: orderSvc, locationCode: strings.TrimSpace(locationCode)}, nil
}

// Create records the order once per (channel, external id).
func (i *Intake) Create(ctx context.Context, order Order) (*orders.CreateResult, error) {
	externalID := strings.TrimSpace(order.ExternalID)
	if externalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external order id required")
	}
	if i.locationCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook location not configured")
	}
	location, err := i.catalog.GetLocationByCode(ctx, i.locationCode)
	if err != nil {
		return nil, err
	}

	items := make([]orders.ItemInput, 0, len(order.Lines))
	for n, line := range order.Lines {
		variant, err := i.resolveVariant(ctx, line)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("line %d", n+1))
		}
		price, err := amount.ParseDecimal(line.UnitPrice)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("line %d: unit price", n+1))
		}
		items = append(items, orders.ItemInput{
			VariantID:  variant.ID,
			LocationID: location.ID,
			Quantity:   line.Quantity,
			UnitPrice:  price,
		})
	}

	return i.orders.CreateOrder(ctx, orders.CreateOrderInput{
		Channel:       order.Channel,
		ExternalID:    &externalID,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		Currency:      order.Currency,
		Items:         items,
		Actor:         &outbox.ActorRef{Type: "webhook", ID: string(order.Channel)},
	})
}

// Cancel cancels the order with the given external id. Unknown orders are
// reported as not found so the marketplace retries after the create arrives.
func (i *Intake) Cancel(ctx context.Context, channel enums.SalesChannel, externalID, reason string) (*orders.OrderView, error) {
	existing, err := i.orders.GetOrderByExternalID(ctx, channel, externalID)
	if err != nil {
		return nil, err
	}
	return i.orders.CancelOrder(ctx, orders.CancelOrderInput{
		OrderID: existing.ID,
		Reason:  reason,
		Actor:   &outbox.ActorRef{Type: "webhook", ID: string(channel)},
	})
}

func (i *Intake) resolveVariant(ctx context.Context, line Line) (*models.ProductVariant, error) {
	sku := strings.TrimSpace(line.SKU)
	barcode := strings.TrimSpace(line.Barcode)
	if sku == "" && barcode == "" {
		return nil, errors.New("sku or barcode required")
	}
	if sku != "" {
		variant, err := i.catalog.GetVariantBySKU(ctx, sku)
		if err == nil {
			return variant, nil
		}
		if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) || barcode == "" {
			return nil, err
		}
	}
	return i.catalog.GetVariantByBarcode(ctx, barcode)
}
