package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/angelmondragon/retailops-backend/internal/orders"
	"github.com/angelmondragon/retailops-backend/internal/webhooks/intake"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
)

const (
	TopicOrdersCreate    = "orders/create"
	TopicOrdersCancelled = "orders/cancelled"
)

// OrderPayload keeps the order fields the intake needs. Shopify sends
// prices as decimal strings.
type OrderPayload struct {
	ID           json.Number `json:"id"`
	Name         string      `json:"name"`
	Currency     string      `json:"currency"`
	Email        string      `json:"email"`
	CancelReason string      `json:"cancel_reason"`
	Customer     *struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"customer"`
	LineItems []struct {
		SKU      string `json:"sku"`
		Barcode  string `json:"barcode"`
		Quantity int    `json:"quantity"`
		Price    string `json:"price"`
	} `json:"line_items"`
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

// HandleTopic applies an order webhook. Unsupported topics are acknowledged.
func (s *Service) HandleTopic(ctx context.Context, topic string, body []byte) error {
	if topic != TopicOrdersCreate && topic != TopicOrdersCancelled {
		s.logg.Debug(s.logg.WithField(ctx, "topic", topic), "shopify topic ignored")
		return nil
	}
	var payload OrderPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode shopify order")
	}
	externalID := strings.TrimSpace(payload.ID.String())
	if externalID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "shopify order id required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"channel":     enums.ChannelShopify,
		"external_id": externalID,
		"topic":       topic,
	})

	if topic == TopicOrdersCancelled {
		reason := payload.CancelReason
		if reason == "" {
			reason = "shopify cancel"
		}
		if _, err := s.intake.Cancel(ctx, enums.ChannelShopify, externalID, reason); err != nil {
			return err
		}
		s.logg.Info(ctx, "shopify order canceled")
		return nil
	}

	order := intake.Order{
		Channel:    enums.ChannelShopify,
		ExternalID: externalID,
		Currency:   payload.Currency,
		Lines:      make([]intake.Line, 0, len(payload.LineItems)),
	}
	if email := strings.TrimSpace(payload.Email); email != "" {
		order.CustomerEmail = &email
	}
	if payload.Customer != nil {
		if name := strings.TrimSpace(payload.Customer.FirstName + " " + payload.Customer.LastName); name != "" {
			order.CustomerName = &name
		}
	}
	for _, item := range payload.LineItems {
		order.Lines = append(order.Lines, intake.Line{
			SKU:       item.SKU,
			Barcode:   item.Barcode,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}
	result, err := s.intake.Create(ctx, order)
	if err != nil {
		return err
	}
	if result.Created {
		s.logg.Info(ctx, "shopify order created")
	}
	return nil
}
