package trendyol

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/retailops-backend/internal/orders"
	"github.com/angelmondragon/retailops-backend/internal/webhooks/intake"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
)

type fakeIntake struct {
	created  []intake.Order
	canceled []string
}

func (f *fakeIntake) Create(_ context.Context, order intake.Order) (*orders.CreateResult, error) {
	f.created = append(f.created, order)
	return &orders.CreateResult{Created: true}, nil
}

func (f *fakeIntake) Cancel(_ context.Context, _ enums.SalesChannel, externalID, _ string) (*orders.OrderView, error) {
	f.canceled = append(f.canceled, externalID)
	return &orders.OrderView{}, nil
}

const createdPackage = `{
  "orderNumber": "10654411111",
  "shipmentPackageId": 3330111111,
  "status": "Created",
  "customerFirstName": "Ayşe",
  "customerLastName": "Yılmaz",
  "lines": [
    {"merchantSku": "MUG-01", "barcode": "8690000000017", "quantity": 2, "price": 129.9}
  ]
}`

func TestHandlePackageCreated(t *testing.T) {
	fake := &fakeIntake{}
	svc, err := NewService(fake, nil)
	require.NoError(t, err)

	var event PackageEvent
	require.NoError(t, json.Unmarshal([]byte(createdPackage), &event))
	require.NoError(t, svc.HandlePackage(context.Background(), event))

	require.Len(t, fake.created, 1)
	order := fake.created[0]
	require.Equal(t, "3330111111", order.ExternalID)
	require.Equal(t, "TRY", order.Currency)
	require.Equal(t, "Ayşe Yılmaz", *order.CustomerName)
	require.Nil(t, order.CustomerEmail)
	require.Equal(t, []intake.Line{{SKU: "MUG-01", Barcode: "8690000000017", Quantity: 2, UnitPrice: "129.9"}}, order.Lines)
}

func TestHandlePackageCancelAndIgnore(t *testing.T) {
	fake := &fakeIntake{}
	svc, err := NewService(fake, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, svc.HandlePackage(ctx, PackageEvent{OrderNumber: "A-1", Status: StatusCancelled}))
	require.NoError(t, svc.HandlePackage(ctx, PackageEvent{OrderNumber: "A-2", Status: StatusUnSupplied}))
	require.NoError(t, svc.HandlePackage(ctx, PackageEvent{OrderNumber: "A-3", Status: "Shipped"}))
	require.Equal(t, []string{"A-1", "A-2"}, fake.canceled)
	require.Empty(t, fake.created)

	err = svc.HandlePackage(ctx, PackageEvent{Status: StatusCreated})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
