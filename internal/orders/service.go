package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/retailops-backend/pkg/db"
	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
	"github.com/angelmondragon/retailops-backend/pkg/outbox"
	"github.com/angelmondragon/retailops-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/retailops-backend/pkg/pagination"
)

const maxOrderItems = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitAll(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error
}

// Service owns the order lifecycle. Stock is never touched here: every
// lifecycle step emits an outbox event in the same transaction and the
// inventory handlers apply the movement once it is delivered.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateResult, error)
	CancelOrder(ctx context.Context, input CancelOrderInput) (*OrderView, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*OrderView, error)
	GetOrderByExternalID(ctx context.Context, channel enums.SalesChannel, externalID string) (*OrderView, error)
	ListOrders(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error)
	RequestReturn(ctx context.Context, input RequestReturnInput) (*ReturnView, error)
	CompleteReturn(ctx context.Context, returnID uuid.UUID) (*ReturnView, error)
}

type ServiceParams struct {
	Repository Repository
	DB         txRunner
	Outbox     outboxPublisher
	Logger     *logger.Logger
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:   params.Repository,
		tx:     params.DB,
		outbox: params.Outbox,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateResult, error) {
	if err := validateCreate(&input); err != nil {
		return nil, err
	}

	if input.ExternalID != nil {
		existing, err := s.repo.FindOrderByExternalID(ctx, input.Channel, *input.ExternalID)
		if err == nil {
			return &CreateResult{Order: toOrderView(*existing)}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by external id")
		}
	}

	order := buildOrder(input)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.ensureReferences(ctx, repo, input.Items); err != nil {
			return err
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			return err
		}
		events := make([]outbox.DomainEvent, 0, len(order.Items))
		for _, item := range order.Items {
			events = append(events, outbox.DomainEvent{
				EventType:     enums.EventOrderItemCreated,
				AggregateType: enums.AggregateOrderItem,
				AggregateID:   item.ID,
				Actor:         input.Actor,
				Data: payloads.OrderItemCreated{
					OrderItemID: item.ID,
					OrderID:     order.ID,
					VariantID:   item.VariantID,
					LocationID:  item.LocationID,
					Quantity:    item.Quantity,
				},
			})
		}
		if err := s.outbox.EmitAll(ctx, tx, events...); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order_item_created")
		}
		return nil
	})
	if err != nil {
		if input.ExternalID != nil && dbpkg.IsUniqueViolation(err, "") {
			// Lost a race with a concurrent delivery of the same external order.
			existing, findErr := s.repo.FindOrderByExternalID(ctx, input.Channel, *input.ExternalID)
			if findErr == nil {
				return &CreateResult{Order: toOrderView(*existing)}, nil
			}
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID,
		"channel":  order.Channel,
		"items":    len(order.Items),
	}), "order created")
	return &CreateResult{Order: toOrderView(*order), Created: true}, nil
}

// CancelOrder cancels an order and asks the ledger to put back each line.
// Canceling an already canceled order returns it unchanged.
func (s *service) CancelOrder(ctx context.Context, input CancelOrderInput) (*OrderView, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return notFound(err, "order")
		}
		if order.Status == enums.OrderStatusCanceled {
			result = order
			return nil
		}

		at := s.now()
		rows, err := repo.MarkCanceled(ctx, order.ID, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be canceled in current state")
		}
		order.Status = enums.OrderStatusCanceled
		order.CanceledAt = &at

		reason := strings.TrimSpace(input.Reason)
		events := make([]outbox.DomainEvent, 0, len(order.Items))
		for _, item := range order.Items {
			events = append(events, outbox.DomainEvent{
				EventType:     enums.EventOrderItemCanceled,
				AggregateType: enums.AggregateOrderItem,
				AggregateID:   item.ID,
				Actor:         input.Actor,
				Data: payloads.OrderItemCanceled{
					OrderItemID: item.ID,
					OrderID:     order.ID,
					VariantID:   item.VariantID,
					LocationID:  item.LocationID,
					Quantity:    item.Quantity,
					Reason:      reason,
				},
			})
		}
		if err := s.outbox.EmitAll(ctx, tx, events...); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order_item_canceled")
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := toOrderView(*result)
	return &view, nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*OrderView, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, id)
	if err != nil {
		return nil, notFound(err, "order")
	}
	view := toOrderView(*order)
	return &view, nil
}

func (s *service) GetOrderByExternalID(ctx context.Context, channel enums.SalesChannel, externalID string) (*OrderView, error) {
	externalID = strings.TrimSpace(externalID)
	if !channel.IsValid() || externalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel and external id required")
	}
	order, err := s.repo.FindOrderByExternalID(ctx, channel, externalID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	view := toOrderView(*order)
	return &view, nil
}

func (s *service) ListOrders(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error) {
	if filters.Channel != nil && !filters.Channel.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid channel")
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListOrders(ctx, filters, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	rows, next := pagination.Page(rows, params.Limit, cursorOf)

	list := &OrderList{Orders: make([]OrderView, 0, len(rows))}
	for _, row := range rows {
		list.Orders = append(list.Orders, toOrderView(row))
	}
	list.NextCursor = next
	return list, nil
}

func cursorOf(row models.Order) pagination.Cursor {
	return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
}

// RequestReturn opens a return for part or all of an order item. Returned
// quantity across all returns of the item never exceeds what was ordered.
func (s *service) RequestReturn(ctx context.Context, input RequestReturnInput) (*ReturnView, error) {
	if input.OrderItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item id required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}

	var ret *models.OrderReturn
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.FindOrderItem(ctx, input.OrderItemID)
		if err != nil {
			return notFound(err, "order item")
		}
		order, err := repo.FindOrderForUpdate(ctx, item.OrderID)
		if err != nil {
			return notFound(err, "order")
		}
		if order.Status == enums.OrderStatusCanceled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "canceled orders cannot be returned")
		}
		returned, err := repo.SumReturnedQuantity(ctx, item.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum returned quantity")
		}
		if returned+int64(input.Quantity) > int64(item.Quantity) {
			return pkgerrors.New(pkgerrors.CodeValidation, "return quantity exceeds ordered quantity").
				WithDetails(map[string]any{
					"ordered":  item.Quantity,
					"returned": returned,
				})
		}

		ret = &models.OrderReturn{
			OrderItemID: item.ID,
			Quantity:    input.Quantity,
			Status:      enums.ReturnStatusRequested,
			Reason:      input.Reason,
		}
		if err := repo.CreateReturn(ctx, ret); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := toReturnView(*ret)
	return &view, nil
}

// CompleteReturn marks the return received and emits the restock event.
// Completing a completed return is a no-op.
func (s *service) CompleteReturn(ctx context.Context, returnID uuid.UUID) (*ReturnView, error) {
	if returnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}

	var ret *models.OrderReturn
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindReturnForUpdate(ctx, returnID)
		if err != nil {
			return notFound(err, "return")
		}
		ret = found
		if ret.Status == enums.ReturnStatusCompleted {
			return nil
		}
		item, err := repo.FindOrderItem(ctx, ret.OrderItemID)
		if err != nil {
			return notFound(err, "order item")
		}

		at := s.now()
		rows, err := repo.MarkReturnCompleted(ctx, ret.ID, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete return")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return cannot be completed in current state")
		}
		ret.Status = enums.ReturnStatusCompleted
		ret.CompletedAt = &at

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderReturnCompleted,
			AggregateType: enums.AggregateOrderReturn,
			AggregateID:   ret.ID,
			Data: payloads.OrderReturnCompleted{
				ReturnID:    ret.ID,
				OrderItemID: item.ID,
				VariantID:   item.VariantID,
				LocationID:  item.LocationID,
				Quantity:    ret.Quantity,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order_return_completed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := toReturnView(*ret)
	return &view, nil
}

func (s *service) ensureReferences(ctx context.Context, repo Repository, items []ItemInput) error {
	variants, locations := distinctKeys(items)
	count, err := repo.CountVariants(ctx, variants)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check variants")
	}
	if count != int64(len(variants)) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "one or more variants not found")
	}
	count, err = repo.CountActiveLocations(ctx, locations)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check locations")
	}
	if count != int64(len(locations)) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "one or more locations not found or inactive")
	}
	return nil
}

func validateCreate(input *CreateOrderInput) error {
	var errs []error
	if !input.Channel.IsValid() {
		errs = append(errs, fmt.Errorf("invalid channel %q", input.Channel))
	}
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	if len(input.Currency) != 3 {
		errs = append(errs, errors.New("currency must be a 3-letter code"))
	}
	if input.ExternalID != nil {
		id := strings.TrimSpace(*input.ExternalID)
		if id == "" {
			input.ExternalID = nil
		} else {
			input.ExternalID = &id
		}
	}
	switch {
	case len(input.Items) == 0:
		errs = append(errs, errors.New("at least one item is required"))
	case len(input.Items) > maxOrderItems:
		errs = append(errs, fmt.Errorf("at most %d items are allowed", maxOrderItems))
	}
	for i, item := range input.Items {
		if item.VariantID == uuid.Nil {
			errs = append(errs, fmt.Errorf("items[%d]: variant id required", i))
		}
		if item.LocationID == uuid.Nil {
			errs = append(errs, fmt.Errorf("items[%d]: location id required", i))
		}
		if item.Quantity <= 0 {
			errs = append(errs, fmt.Errorf("items[%d]: quantity must be greater than zero", i))
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, fmt.Errorf("items[%d]: unit price cannot be negative", i))
		}
	}
	if err := multierr.Combine(errs...); err != nil {
		messages := make([]string, 0, len(errs))
		for _, e := range multierr.Errors(err) {
			messages = append(messages, e.Error())
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order").WithDetails(messages)
	}
	return nil
}

func buildOrder(input CreateOrderInput) *models.Order {
	order := &models.Order{
		ID:            uuid.New(),
		Channel:       input.Channel,
		ExternalID:    input.ExternalID,
		Status:        enums.OrderStatusCreated,
		CustomerName:  input.CustomerName,
		CustomerEmail: input.CustomerEmail,
		Currency:      input.Currency,
		TotalAmount:   decimal.Zero,
		Items:         make([]models.OrderItem, 0, len(input.Items)),
	}
	for _, item := range input.Items {
		order.Items = append(order.Items, models.OrderItem{
			ID:         uuid.New(),
			OrderID:    order.ID,
			VariantID:  item.VariantID,
			LocationID: item.LocationID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice.Round(2),
		})
		line := item.UnitPrice.Round(2).Mul(decimal.NewFromInt(int64(item.Quantity)))
		order.TotalAmount = order.TotalAmount.Add(line)
	}
	return order
}

func distinctKeys(items []ItemInput) (variants, locations []uuid.UUID) {
	seenV := map[uuid.UUID]struct{}{}
	seenL := map[uuid.UUID]struct{}{}
	for _, item := range items {
		if _, ok := seenV[item.VariantID]; !ok {
			seenV[item.VariantID] = struct{}{}
			variants = append(variants, item.VariantID)
		}
		if _, ok := seenL[item.LocationID]; !ok {
			seenL[item.LocationID] = struct{}{}
			locations = append(locations, item.LocationID)
		}
	}
	return variants, locations
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+what)
}
