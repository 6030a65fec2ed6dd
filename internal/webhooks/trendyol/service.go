package trendyol

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/angelmondragon/retailops-backend/internal/orders"
	"github.com/angelmondragon/retailops-backend/internal/webhooks/intake"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
)

// Package statuses Trendyol sends for shipment packages.
const (
	StatusCreated    = "Created"
	StatusCancelled  = "Cancelled"
	StatusUnSupplied = "UnSupplied"
)

// PackageEvent is the shipment package body Trendyol posts. Prices arrive
// as JSON numbers and go through the amount parser like any other input.
type PackageEvent struct {
	OrderNumber       string        `json:"orderNumber"`
	ShipmentPackageID json.Number   `json:"shipmentPackageId"`
	Status            string        `json:"status"`
	CurrencyCode      string        `json:"currencyCode"`
	CustomerFirstName string        `json:"customerFirstName"`
	CustomerLastName  string        `json:"customerLastName"`
	CustomerEmail     string        `json:"customerEmail"`
	Lines             []PackageLine `json:"lines"`
}

type PackageLine struct {
	MerchantSKU string      `json:"merchantSku"`
	Barcode     string      `json:"barcode"`
	Quantity    int         `json:"quantity"`
	Price       json.Number `json:"price"`
}

type orderIntake interface {
	Create(ctx context.Context, order intake.Order) (*orders.CreateResult, error)
	Cancel(ctx context.Context, channel enums.SalesChannel, externalID, reason string) (*orders.OrderView, error)
}

type Service struct {
	intake orderIntake
	logg   *logger.Logger
}

func NewService(in orderIntake, logg *logger.Logger) (*Service, error) {
	if in == nil {
		return nil, errors.New("order intake required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{intake: in, logg: logg}, nil
}

// HandlePackage applies one package event. Statuses other than created and
// cancelled carry nothing for stock and are acknowledged without effect.
func (s *Service) HandlePackage(ctx context.Context, event PackageEvent) error {
	externalID := externalID(event)
	if externalID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "orderNumber or shipmentPackageId required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"channel":     enums.ChannelTrendyol,
		"external_id": externalID,
		"status":      event.Status,
	})

	switch event.Status {
	case StatusCreated:
		result, err := s.intake.Create(ctx, toOrder(externalID, event))
		if err != nil {
			return err
		}
		if result.Created {
			s.logg.Info(ctx, "trendyol order created")
		}
		return nil
	case StatusCancelled, StatusUnSupplied:
		if _, err := s.intake.Cancel(ctx, enums.ChannelTrendyol, externalID, "trendyol "+strings.ToLower(event.Status)); err != nil {
			return err
		}
		s.logg.Info(ctx, "trendyol order canceled")
		return nil
	default:
		s.logg.Debug(ctx, "trendyol package status ignored")
		return nil
	}
}

// externalID prefers the package id: one Trendyol order can split into
// several packages shipped from the same warehouse.
func externalID(event PackageEvent) string {
	if id := strings.TrimSpace(event.ShipmentPackageID.String()); id != "" {
		if _, err := strconv.ParseInt(id, 10, 64); err == nil {
			return id
		}
	}
	return strings.TrimSpace(event.OrderNumber)
}

func toOrder(externalID string, event PackageEvent) intake.Order {
	order := intake.Order{
		Channel:    enums.ChannelTrendyol,
		ExternalID: externalID,
		Currency:   event.CurrencyCode,
		Lines:      make([]intake.Line, 0, len(event.Lines)),
	}
	if order.Currency == "" {
		order.Currency = "TRY"
	}
	if name := strings.TrimSpace(event.CustomerFirstName + " " + event.CustomerLastName); name != "" {
		order.CustomerName = &name
	}
	if email := strings.TrimSpace(event.CustomerEmail); email != "" {
		order.CustomerEmail = &email
	}
	for _, line := range event.Lines {
		order.Lines = append(order.Lines, intake.Line{
			SKU:       line.MerchantSKU,
			Barcode:   line.Barcode,
			Quantity:  line.Quantity,
			UnitPrice: line.Price.String(),
		})
	}
	return order
}
